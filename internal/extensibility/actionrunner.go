package extensibility

import (
	"context"
	"log/slog"
	"time"

	"github.com/comalice/harel"
)

// LoggingAction wraps an action and logs around its execution.
type LoggingAction struct {
	inner  harel.Action
	logger *slog.Logger
}

// NewLoggingAction wraps inner. A nil logger uses slog.Default.
func NewLoggingAction(inner harel.Action, logger *slog.Logger) *LoggingAction {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingAction{inner: inner, logger: logger}
}

func (a *LoggingAction) ID() harel.ActionID { return a.inner.ID() }
func (a *LoggingAction) Name() string       { return a.inner.Name() }

// Execute logs before and after delegating to the wrapped action.
func (a *LoggingAction) Execute(ctx context.Context, ac harel.ActionContext) error {
	attrs := []any{
		slog.String("action", a.inner.Name()),
		slog.String("phase", ac.Phase.String()),
		slog.String("state", stateLabel(ac.Chart, ac.State)),
	}
	if ac.Event != nil {
		attrs = append(attrs, slog.String("event", ac.Event.Name()))
	}
	a.logger.DebugContext(ctx, "executing action", attrs...)
	start := time.Now()
	err := a.inner.Execute(ctx, ac)
	attrs = append(attrs, slog.Duration("duration", time.Since(start)))
	if err != nil {
		a.logger.WarnContext(ctx, "action failed", append(attrs, slog.Any("error", err))...)
		return err
	}
	a.logger.DebugContext(ctx, "action completed", attrs...)
	return nil
}

// WrapActions wraps every action with NewLoggingAction.
func WrapActions(logger *slog.Logger, actions ...harel.Action) []harel.Action {
	out := make([]harel.Action, len(actions))
	for i, a := range actions {
		out[i] = NewLoggingAction(a, logger)
	}
	return out
}

func stateLabel(c *harel.Chart, id harel.StateID) string {
	if c == nil {
		return ""
	}
	return c.Label(id)
}
