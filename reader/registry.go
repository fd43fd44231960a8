package reader

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/comalice/harel"
	"github.com/comalice/harel/internal/extensibility"
)

// ActionFactory builds an action from a command's arguments.
type ActionFactory func(args map[string]any) (harel.Action, error)

// Registry maps command names to action factories and condition names to
// conditions. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	logger     *slog.Logger
	tracing    bool
	actions    map[string]ActionFactory
	conditions map[string]harel.Condition
}

// NewRegistry returns a registry holding the built-in commands "log",
// "raise" and "assign". The log command writes to logger; nil uses
// slog.Default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger:     logger,
		actions:    make(map[string]ActionFactory),
		conditions: make(map[string]harel.Condition),
	}
	r.RegisterAction("log", r.logAction)
	r.RegisterAction("raise", raiseAction)
	r.RegisterAction("assign", assignAction)
	return r
}

// SetTracing wraps every action built afterwards with a debug-logging
// wrapper.
func (r *Registry) SetTracing(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracing = on
}

// RegisterAction registers or replaces a command.
func (r *Registry) RegisterAction(name string, f ActionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = f
}

// RegisterFunc registers a command that takes no arguments.
func (r *Registry) RegisterFunc(name string, fn harel.ActionFunc) {
	a := harel.NewAction(name, fn)
	r.RegisterAction(name, func(args map[string]any) (harel.Action, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("command %q takes no arguments", name)
		}
		return a, nil
	})
}

// RegisterCondition registers or replaces a named condition.
func (r *Registry) RegisterCondition(name string, c harel.Condition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conditions[name] = c
}

// RegisterGuard registers a predicate as a named condition.
func (r *Registry) RegisterGuard(name string, fn func(cc harel.ConditionContext) bool) {
	r.RegisterCondition(name, harel.Guard{Name: name, Fn: fn})
}

// Action builds the action a command names.
func (r *Registry) Action(cmd CommandDoc) (harel.Action, error) {
	r.mu.RLock()
	f, ok := r.actions[cmd.Command]
	tracing := r.tracing
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown command %q", cmd.Command)
	}
	a, err := f(cmd.Args)
	if err != nil {
		return nil, fmt.Errorf("command %q: %w", cmd.Command, err)
	}
	if tracing {
		a = extensibility.NewLoggingAction(a, r.logger)
	}
	return a, nil
}

// Condition resolves a condition expression. In order it accepts: a
// registered name, "true" or "false", conjunctions joined by "&&", a "!"
// prefix, In(label), and property comparisons such as "count < 3" (see
// extensibility.ParseExpression).
func (r *Registry) Condition(expr string) (harel.Condition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty condition")
	}

	r.mu.RLock()
	c, ok := r.conditions[expr]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	switch expr {
	case "true":
		return harel.Guard{Name: "true", Fn: func(harel.ConditionContext) bool { return true }}, nil
	case "false":
		return harel.Guard{Name: "false", Fn: func(harel.ConditionContext) bool { return false }}, nil
	}

	if parts := strings.Split(expr, "&&"); len(parts) > 1 {
		all := make([]harel.Condition, 0, len(parts))
		for _, p := range parts {
			c, err := r.Condition(p)
			if err != nil {
				return nil, err
			}
			all = append(all, c)
		}
		return harel.All(all...), nil
	}
	if rest, ok := strings.CutPrefix(expr, "!"); ok {
		c, err := r.Condition(rest)
		if err != nil {
			return nil, err
		}
		return harel.Not(c), nil
	}
	if inner, ok := strings.CutPrefix(expr, "In("); ok && strings.HasSuffix(inner, ")") {
		label := unquote(strings.TrimSpace(strings.TrimSuffix(inner, ")")))
		if label == "" {
			return nil, fmt.Errorf("condition %q: empty state label", expr)
		}
		return harel.InState(label), nil
	}

	e, err := extensibility.ParseExpression(expr)
	if err != nil {
		return nil, fmt.Errorf("unknown condition: %w", err)
	}
	return e, nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// decodeArgs decodes command arguments into a typed struct. Unknown keys are
// rejected.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}

type logArgs struct {
	Message string `mapstructure:"message"`
	Level   string `mapstructure:"level"`
	Value   any    `mapstructure:"value"`
}

func (r *Registry) logAction(args map[string]any) (harel.Action, error) {
	var la logArgs
	if err := decodeArgs(args, &la); err != nil {
		return nil, err
	}
	level := slog.LevelInfo
	if la.Level != "" {
		if err := level.UnmarshalText([]byte(la.Level)); err != nil {
			return nil, fmt.Errorf("invalid level %q", la.Level)
		}
	}
	logger := r.logger
	return harel.NewAction("log", func(ctx context.Context, ac harel.ActionContext) error {
		attrs := []slog.Attr{slog.String("chart", ac.Chart.Name()), slog.String("state", ac.Chart.Label(ac.State))}
		if ac.Event != nil {
			attrs = append(attrs, slog.String("event", ac.Event.Name()))
		}
		if la.Value != nil {
			attrs = append(attrs, slog.Any("value", la.Value))
		}
		logger.LogAttrs(ctx, level, la.Message, attrs...)
		return nil
	}), nil
}

type raiseArgs struct {
	Event      string            `mapstructure:"event"`
	Properties map[string]string `mapstructure:"properties"`
}

func raiseAction(args map[string]any) (harel.Action, error) {
	var ra raiseArgs
	if err := decodeArgs(args, &ra); err != nil {
		return nil, err
	}
	if ra.Event == "" {
		return nil, fmt.Errorf("missing event")
	}
	ev := harel.NewEvent(ra.Event, ra.Properties)
	return harel.NewAction("raise", func(_ context.Context, ac harel.ActionContext) error {
		ac.Raise(ev)
		return nil
	}), nil
}

type assignArgs struct {
	Key   string `mapstructure:"key"`
	Value any    `mapstructure:"value"`
}

func assignAction(args map[string]any) (harel.Action, error) {
	var aa assignArgs
	if err := decodeArgs(args, &aa); err != nil {
		return nil, err
	}
	if aa.Key == "" {
		return nil, fmt.Errorf("missing key")
	}
	return harel.NewAction("assign", func(_ context.Context, ac harel.ActionContext) error {
		dm, ok := harel.HostData(ac.Host)
		if !ok {
			return fmt.Errorf("assign %q: host has no data model", aa.Key)
		}
		dm.Set(aa.Key, aa.Value)
		return nil
	}), nil
}
