// Package viz provides the terminal run panel for stepping a model.
//
// [Panel] is a Bubble Tea model driving a [runner.Controller]. Events reach
// the panel through a [runner.ChannelListener]; every event becomes a tea.Msg
// so the view is only ever updated on the UI goroutine.
//
// # Key Bindings
//
//	s       - Step one timestep
//	0-9 -   - Edit the target date field
//	d       - Run to the date in the field
//	e       - Run to the end of the model
//	k       - Kill the run
//	t       - Cycle color themes
//	q       - Quit (kills a live run first)
package viz
