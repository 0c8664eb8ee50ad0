// Package event is a small synchronous publish/subscribe bus used to fan out
// host notifications such as debugger stops, script errors and cartridge
// state changes.
//
// Events are published as Envelopes. Handlers subscribe with a topic
// pattern (see package topic) and run on the publishing goroutine, in
// subscription order. A panicking handler is recovered and reported as a
// HandlerError; remaining handlers still run.
//
//	bus := event.NewBus()
//	bus.Subscribe("debug.*", func(ctx context.Context, env event.Envelope) error {
//		log.Printf("%s %v", env.Topic, env.Payload)
//		return nil
//	})
//	bus.Publish(ctx, event.NewEnvelope(event.NewEvent("debug.stopped", payload, "debugger")))
package event
