package production

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/comalice/harel"
)

// DefaultVisualizer renders charts as Graphviz DOT and JSON.
type DefaultVisualizer struct{}

// ExportDOT generates DOT source for c. States active in h are filled; pass
// a zero StateMachine to render the chart alone. The output is
// deterministic: states and edges follow document order.
func (v *DefaultVisualizer) ExportDOT(c *harel.Chart, h harel.StateMachine) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "digraph %q {\n", c.Name())
	buf.WriteString("  compound=true;\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, fontsize=10, style=rounded];\n")
	buf.WriteString("  edge [fontsize=9];\n")
	buf.WriteString("  \"__start\" [shape=point];\n")

	for _, root := range c.Roots() {
		renderState(&buf, c, root, h, "  ")
	}

	fmt.Fprintf(&buf, "  \"__start\" -> %q;\n", c.Label(c.Initial()))
	for _, t := range c.Transitions() {
		from := c.Label(t.Source())
		attrs := []string{fmt.Sprintf("label=%q", edgeLabel(t))}
		to := from
		if target, ok := t.Target(); ok {
			to = c.Label(target)
		} else {
			attrs = append(attrs, "style=dashed")
		}
		fmt.Fprintf(&buf, "  %q -> %q [%s];\n", from, to, strings.Join(attrs, ", "))
	}
	buf.WriteString("}\n")
	return buf.String()
}

func renderState(buf *bytes.Buffer, c *harel.Chart, id harel.StateID, h harel.StateMachine, indent string) {
	s := c.MustState(id)
	active := h.IsActive(id)

	if s.IsLeaf() {
		attrs := []string{fmt.Sprintf("label=%q", s.Label())}
		if s.Kind() == harel.Final {
			attrs = append(attrs, "shape=doublecircle")
		}
		if active {
			attrs = append(attrs, "style=filled", "fillcolor=lightgreen")
		}
		fmt.Fprintf(buf, "%s%q [%s];\n", indent, s.Label(), strings.Join(attrs, ", "))
		return
	}

	fmt.Fprintf(buf, "%ssubgraph %q {\n", indent, "cluster_"+s.Label())
	inner := indent + "  "
	fmt.Fprintf(buf, "%slabel=%q;\n", inner, fmt.Sprintf("%s (%s)", s.Label(), s.Kind()))
	switch {
	case active:
		fmt.Fprintf(buf, "%sstyle=filled;\n%sfillcolor=orange;\n", inner, inner)
	case s.Kind() == harel.Parallel:
		fmt.Fprintf(buf, "%sstyle=dashed;\n", inner)
	}
	anchor := []string{fmt.Sprintf("label=%q", s.Label()), "shape=ellipse"}
	fmt.Fprintf(buf, "%s%q [%s];\n", inner, s.Label(), strings.Join(anchor, ", "))
	for _, sub := range s.Substates() {
		renderState(buf, c, sub, h, inner)
	}
	if init, ok := s.Initial(); ok {
		fmt.Fprintf(buf, "%s%q -> %q [style=dotted];\n", inner, s.Label(), c.Label(init))
	}
	fmt.Fprintf(buf, "%s}\n", indent)
}

func edgeLabel(t *harel.Transition) string {
	var parts []string
	if t.Eventless() {
		parts = append(parts, "ε")
	} else {
		parts = append(parts, strings.Join(t.Events(), " "))
	}
	if cond := harel.DescribeCondition(t.Condition()); cond != "" {
		parts = append(parts, "["+cond+"]")
	}
	if actions := t.Actions(); len(actions) > 0 {
		names := make([]string, len(actions))
		for i, a := range actions {
			names[i] = a.Name()
		}
		parts = append(parts, "/ "+strings.Join(names, ", "))
	}
	if t.Internal() {
		parts = append(parts, "(internal)")
	}
	return strings.Join(parts, " ")
}

// ChartDescription is the JSON form of a chart's structure.
type ChartDescription struct {
	Name    string             `json:"name"`
	Version string             `json:"version"`
	Initial string             `json:"initial"`
	States  []StateDescription `json:"states"`
}

// StateDescription describes one state. Parent and Initial are empty when
// absent.
type StateDescription struct {
	ID          int                     `json:"id"`
	Label       string                  `json:"label"`
	Kind        string                  `json:"kind"`
	Parent      string                  `json:"parent,omitempty"`
	Initial     string                  `json:"initial,omitempty"`
	Transitions []TransitionDescription `json:"transitions,omitempty"`
}

// TransitionDescription describes one transition.
type TransitionDescription struct {
	Events    []string `json:"events,omitempty"`
	Target    string   `json:"target,omitempty"`
	Condition string   `json:"condition,omitempty"`
	Actions   []string `json:"actions,omitempty"`
	Internal  bool     `json:"internal,omitempty"`
}

// Describe builds the JSON description of c.
func (v *DefaultVisualizer) Describe(c *harel.Chart) ChartDescription {
	d := ChartDescription{
		Name:    c.Name(),
		Version: c.Version(),
		Initial: c.Label(c.Initial()),
	}
	for _, s := range c.States() {
		sd := StateDescription{
			ID:    int(s.ID()),
			Label: s.Label(),
			Kind:  s.Kind().String(),
		}
		if p, ok := s.Parent(); ok {
			sd.Parent = c.Label(p)
		}
		if init, ok := s.Initial(); ok {
			sd.Initial = c.Label(init)
		}
		for _, t := range s.Transitions() {
			td := TransitionDescription{
				Events:    t.Events(),
				Condition: harel.DescribeCondition(t.Condition()),
				Internal:  t.Internal(),
			}
			if target, ok := t.Target(); ok {
				td.Target = c.Label(target)
			}
			for _, a := range t.Actions() {
				td.Actions = append(td.Actions, a.Name())
			}
			sd.Transitions = append(sd.Transitions, td)
		}
		d.States = append(d.States, sd)
	}
	return d
}

// ExportJSON serializes Describe(c).
func (v *DefaultVisualizer) ExportJSON(c *harel.Chart) ([]byte, error) {
	return json.MarshalIndent(v.Describe(c), "", "  ")
}
