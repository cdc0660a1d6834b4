// Package runner drives a simulation engine one timestep at a time.
//
// The package defines the engine boundary and the stepping controller:
//
//   - [Loader], [Model], [Timestepper]: what an engine must provide
//   - [Controller]: pause/resume/stop state machine on a background goroutine
//   - [Listener], [Event]: one-directional events from the run loop
//   - [Batch]: unattended parallel runs of several documents
//
// # Example
//
//	ctrl := runner.New(engine.New(logger), logger)
//	ctrl.AddListener(runner.ListenerFuncs{Progress: func(p runner.Progress) { fmt.Println(p) }})
//	ctrl.Start(ctx, doc, basePath)
//	ctrl.RunTo(target)
//	ctrl.Kill()
//	err := ctrl.Wait()
//
// # Indexing
//
// After loading, a model sits at index 0, the first period. Each step moves
// it forward by one and the Progress event reports the new position, so a
// model with N periods admits N-1 steps.
//
// # Thread Safety
//
// Controller command methods are safe for concurrent use. Listeners are
// called on the run loop goroutine, in registration order, and Finished is
// always the last event of a session.
package runner
