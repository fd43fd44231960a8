// Package harel is an embeddable statechart interpreter.
//
// A Chart is built once with a Builder and is immutable afterwards. Each
// running instance is a StateMachine value: the set of active states and the
// instance clock. Engine.Update takes a chart, a handle and a trigger and
// returns the next handle, so hosts decide where instances live and how
// events reach them. The realtime and internal/core packages provide two
// ready-made hosts.
//
// Semantics follow Harel statecharts as formalized by SCXML, with these
// choices:
//
//   - Document order is the declaration order of the builder. StateIDs are
//     assigned in that order, parents before children.
//   - For each active leaf, the innermost state with an enabled transition
//     contributes every enabled transition it declares.
//   - When the exit sets of two selected transitions intersect, the one
//     declared first in document order fires; the other is dropped. A
//     targetless transition exits nothing and never conflicts.
//   - Exits run innermost-first, then transition actions in document order,
//     then entries outermost-first.
//   - Entering a final state raises "done.state.<parent>" on the internal
//     queue. A parallel state raises its done event once every region has
//     reached a final state.
//   - After the triggering microstep, eventless transitions run until none is
//     enabled, then internal events are consumed one at a time.
//
// A trigger that fires nothing returns ErrNoApplicableTransition together
// with the unchanged handle; IsIgnorable recognizes it.
package harel
