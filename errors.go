package harel

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes the errors reported by the builder and the engine.
type Kind uint8

const (
	// KindUnknownState reports a handle that references a state the chart does
	// not contain, or a configuration that is not legal for the chart. The
	// handle and the chart do not belong together; retrying cannot help.
	KindUnknownState Kind = iota + 1

	// KindMalformedChart is only produced by Builder.Build and the readers.
	KindMalformedChart

	// KindNoApplicableTransition reports an ignored trigger. The returned
	// handle is the input handle and is safe to keep.
	KindNoApplicableTransition

	// KindActionFailed reports an action or condition that returned an error
	// or panicked while a macrostep was running.
	KindActionFailed

	// KindMicrostepLimit reports a macrostep that did not settle within the
	// configured number of microsteps.
	KindMicrostepLimit
)

var (
	ErrUnknownState           = errors.New("unknown state")
	ErrMalformedChart         = errors.New("malformed chart")
	ErrNoApplicableTransition = errors.New("no applicable transition")
	ErrActionFailed           = errors.New("action failed")
	ErrMicrostepLimit         = errors.New("microstep limit exceeded")
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnknownState:
		return ErrUnknownState
	case KindMalformedChart:
		return ErrMalformedChart
	case KindNoApplicableTransition:
		return ErrNoApplicableTransition
	case KindActionFailed:
		return ErrActionFailed
	case KindMicrostepLimit:
		return ErrMicrostepLimit
	}
	return nil
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the structured error returned by Build, Start and Update.
// It matches its Kind's sentinel with errors.Is.
type Error struct {
	Kind  Kind
	Chart string
	// State is the label of the state involved, if any.
	State string
	// Event is the name of the trigger, empty for eventless processing.
	Event string
	// Action is the name of the failing action, if any.
	Action string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	var fields []string
	for _, f := range [...]struct{ k, v string }{
		{"chart", e.Chart}, {"state", e.State}, {"event", e.Event}, {"action", e.Action},
	} {
		if f.v != "" {
			fields = append(fields, f.k+"="+f.v)
		}
	}
	if len(fields) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(fields, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsIgnorable reports whether err only signals that a trigger was ignored.
func IsIgnorable(err error) bool {
	return errors.Is(err, ErrNoApplicableTransition)
}

// KindOf returns the Kind carried by err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
