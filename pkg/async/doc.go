// Package async runs detached side effects such as audit appends.
//
// Dispatcher is a bounded worker pool whose Submit never blocks. Each task
// runs with panic recovery and a timeout, detached from the submitter's
// cancellation:
//
//	d := async.NewDispatcher(async.DispatcherConfig{Workers: 4, QueueSize: 1024}, logger)
//	defer d.Shutdown(ctx)
//	if err := d.Submit(ctx, "audit:role_switch", write); err != nil {
//		// queue full or closed; the caller decides whether to log
//	}
package async
