package runner

import "fmt"

type EventKind int

const (
	EventStatus EventKind = iota + 1
	EventModelLoadError
	EventBeforeStep
	EventStepDone
	EventBeforeRunToDate
	EventRunToDateDone
	EventProgress
	EventStepError
	EventFinished
)

var eventNames = map[EventKind]string{
	EventStatus:          "status",
	EventModelLoadError:  "model_load_error",
	EventBeforeStep:      "before_step",
	EventStepDone:        "step_done",
	EventBeforeRunToDate: "before_run_to_date",
	EventRunToDateDone:   "run_to_date_done",
	EventProgress:        "progress",
	EventStepError:       "step_error",
	EventFinished:        "finished",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is emitted by the run loop. Message carries the status text or error
// details; Progress is set only for EventProgress.
type Event struct {
	Kind     EventKind
	Message  string
	Progress Progress
}

func (e Event) String() string {
	switch e.Kind {
	case EventProgress:
		return fmt.Sprintf("%s %s", e.Kind, e.Progress)
	case EventStatus, EventModelLoadError, EventStepError:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return e.Kind.String()
	}
}

// Listener receives events from the run loop goroutine. Handle must not call
// back into the controller's blocking methods (Wait).
type Listener interface {
	Handle(Event)
}

// ListenerFuncs is a Listener built from optional callbacks.
type ListenerFuncs struct {
	Status          func(msg string)
	ModelLoadError  func(details string)
	BeforeStep      func()
	StepDone        func()
	BeforeRunToDate func()
	RunToDateDone   func()
	Progress        func(Progress)
	StepError       func(details string)
	Finished        func()
}

func (l ListenerFuncs) Handle(e Event) {
	switch e.Kind {
	case EventStatus:
		call1(l.Status, e.Message)
	case EventModelLoadError:
		call1(l.ModelLoadError, e.Message)
	case EventBeforeStep:
		call0(l.BeforeStep)
	case EventStepDone:
		call0(l.StepDone)
	case EventBeforeRunToDate:
		call0(l.BeforeRunToDate)
	case EventRunToDateDone:
		call0(l.RunToDateDone)
	case EventProgress:
		call1(l.Progress, e.Progress)
	case EventStepError:
		call1(l.StepError, e.Message)
	case EventFinished:
		call0(l.Finished)
	}
}

func call0(fn func()) {
	if fn != nil {
		fn()
	}
}

func call1[T any](fn func(T), v T) {
	if fn != nil {
		fn(v)
	}
}

// ChannelListener forwards events to a bounded channel. A full channel blocks
// the run loop until the consumer catches up, so no Progress event is dropped.
// The channel is closed after Finished.
type ChannelListener struct {
	ch chan Event
}

func NewChannelListener(size int) *ChannelListener {
	if size < 1 {
		size = 1
	}
	return &ChannelListener{ch: make(chan Event, size)}
}

func (c *ChannelListener) Handle(e Event) {
	c.ch <- e
	if e.Kind == EventFinished {
		close(c.ch)
	}
}

func (c *ChannelListener) Events() <-chan Event { return c.ch }
