package reader

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const scxmlNS = "http://www.w3.org/2005/07/scxml"

// xmlNode is a generic element tree. SCXML documents are walked by element
// name so unsupported elements can be reported instead of silently skipped.
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []xmlNode  `xml:",any"`
	Text     string     `xml:",chardata"`
}

func (n *xmlNode) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// ReadSCXML decodes the SCXML subset the interpreter executes: state,
// parallel, final, initial, transition, onentry, onexit, datamodel/data and
// the log, raise and assign executable content. Expressions in cond are
// resolved through the Registry at compile time. Executable content in any
// other namespace names a registered command, its attributes becoming the
// command arguments. Other elements, history included, are reported as
// errors.
func ReadSCXML(r io.Reader) (*Document, error) {
	var root xmlNode
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, malformed("", fmt.Errorf("decode scxml: %w", err))
	}
	if root.XMLName.Local != "scxml" {
		return nil, malformed("", fmt.Errorf("root element is <%s>, want <scxml>", root.XMLName.Local))
	}

	p := &scxmlParser{}
	d := &Document{
		Name:    root.attr("name"),
		Initial: root.attr("initial"),
	}
	if d.Name == "" {
		d.Name = "scxml"
	}
	for i := range root.Children {
		c := &root.Children[i]
		switch c.XMLName.Local {
		case "state", "parallel", "final":
			d.States = append(d.States, p.state(c))
		case "datamodel":
			d.Data = p.datamodel(c, d.Data)
		default:
			p.fail("<scxml>: unsupported element <%s>", c.XMLName.Local)
		}
	}
	if len(p.problems) > 0 {
		return nil, malformed(d.Name, errors.Join(p.problems...))
	}
	return d, nil
}

type scxmlParser struct {
	problems []error
}

func (p *scxmlParser) fail(format string, args ...any) {
	p.problems = append(p.problems, fmt.Errorf(format, args...))
}

func (p *scxmlParser) state(n *xmlNode) *StateDoc {
	s := &StateDoc{ID: n.attr("id"), Initial: n.attr("initial")}
	switch n.XMLName.Local {
	case "parallel":
		s.Type = TypeParallel
	case "final":
		s.Type = TypeFinal
	}
	if strings.ContainsRune(s.Initial, ' ') {
		p.fail("state %q: multiple initial targets are not supported", s.ID)
	}

	for i := range n.Children {
		c := &n.Children[i]
		switch c.XMLName.Local {
		case "state", "parallel", "final":
			s.States = append(s.States, p.state(c))
		case "transition":
			s.Transitions = append(s.Transitions, p.transition(s.ID, c))
		case "onentry":
			s.OnEntry = append(s.OnEntry, p.commands(s.ID, c)...)
		case "onexit":
			s.OnExit = append(s.OnExit, p.commands(s.ID, c)...)
		case "initial":
			s.Initial = p.initial(s.ID, c)
		case "datamodel":
			// state-scoped data is not supported; only the document data model
			p.fail("state %q: <datamodel> is only supported under <scxml>", s.ID)
		default:
			p.fail("state %q: unsupported element <%s>", s.ID, c.XMLName.Local)
		}
	}
	return s
}

// initial handles <initial><transition target="x"/></initial>.
func (p *scxmlParser) initial(state string, n *xmlNode) string {
	if len(n.Children) != 1 || n.Children[0].XMLName.Local != "transition" {
		p.fail("state %q: <initial> must hold exactly one <transition>", state)
		return ""
	}
	t := &n.Children[0]
	if len(t.Children) > 0 {
		p.fail("state %q: actions on the initial transition are not supported", state)
	}
	return t.attr("target")
}

func (p *scxmlParser) transition(state string, n *xmlNode) TransitionDoc {
	t := TransitionDoc{
		Event:  n.attr("event"),
		Target: n.attr("target"),
		Cond:   n.attr("cond"),
	}
	if strings.ContainsRune(strings.TrimSpace(t.Target), ' ') {
		p.fail("state %q: multiple transition targets are not supported", state)
	}
	switch typ := n.attr("type"); typ {
	case "", "external":
	case "internal":
		t.Internal = true
	default:
		p.fail("state %q: unknown transition type %q", state, typ)
	}
	t.Actions = p.commands(state, n)
	return t
}

func (p *scxmlParser) commands(state string, n *xmlNode) []CommandDoc {
	var out []CommandDoc
	for i := range n.Children {
		c := &n.Children[i]
		switch c.XMLName.Local {
		case "log":
			args := map[string]any{"message": c.attr("label")}
			if expr := c.attr("expr"); expr != "" {
				args["value"] = literal(expr)
			}
			out = append(out, CommandDoc{Command: "log", Args: args})
		case "raise":
			out = append(out, CommandDoc{Command: "raise", Args: map[string]any{"event": c.attr("event")}})
		case "assign":
			out = append(out, CommandDoc{Command: "assign", Args: map[string]any{
				"key":   c.attr("location"),
				"value": literal(c.attr("expr")),
			}})
		default:
			if c.XMLName.Space == "" || c.XMLName.Space == scxmlNS {
				p.fail("state %q: unsupported executable content <%s>", state, c.XMLName.Local)
				continue
			}
			out = append(out, custom(c))
		}
	}
	return out
}

// custom maps a foreign-namespace element to the registered command of the
// same local name, with its attributes as arguments.
func custom(n *xmlNode) CommandDoc {
	args := make(map[string]any, len(n.Attrs))
	for _, a := range n.Attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		args[a.Name.Local] = literal(a.Value)
	}
	return CommandDoc{Command: n.XMLName.Local, Args: args}
}

func (p *scxmlParser) datamodel(n *xmlNode, data map[string]any) map[string]any {
	if data == nil {
		data = make(map[string]any)
	}
	for i := range n.Children {
		c := &n.Children[i]
		if c.XMLName.Local != "data" {
			p.fail("<datamodel>: unsupported element <%s>", c.XMLName.Local)
			continue
		}
		id := c.attr("id")
		if id == "" {
			p.fail("<data> without id")
			continue
		}
		expr := c.attr("expr")
		if expr == "" {
			expr = strings.TrimSpace(c.Text)
		}
		data[id] = literal(expr)
	}
	return data
}

// literal converts an ECMAScript-ish literal to a Go value: quoted strings,
// booleans, integers and floats. Anything else is kept verbatim.
func literal(s string) any {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
