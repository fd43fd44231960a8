// Package realtime provides a tick-based deterministic host for harel charts.
//
// Events are not processed when sent. They are batched and applied at fixed
// tick boundaries:
//
//  1. the batch collected since the previous tick is taken atomically
//  2. it is ordered by priority (higher first), then by send order
//  3. every event is applied with harel.Update, one macrostep each
//  4. the handle clock advances by the tick rate
//  5. a tick trigger fires so delayed transitions are re-evaluated
//
// Given the same sequence of SendEvent calls between ticks the chart always
// runs the same way, regardless of goroutine scheduling.
//
// # Example Usage
//
//	rt := realtime.NewRuntime(chart, realtime.Config{
//		TickRate: 16667 * time.Microsecond, // 60 FPS
//	})
//	rt.Start(ctx)
//	defer rt.Stop()
//	rt.SendEvent(harel.NewEvent("jump", nil))
//
// # Trade-offs vs Event-Driven
//
// Latency is bounded by the tick rate instead of being immediate, and every
// event waits for the next boundary. In exchange processing is reproducible
// and each tick has a fixed time budget, which suits game loops, fixed-step
// simulations, control loops and replayable tests.
//
// Step runs one tick synchronously and is what the loop started by Start
// calls; simulations and tests can drive a Runtime with Step alone.
package realtime
