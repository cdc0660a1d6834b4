package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/san-kum/flowlab/internal/document"
)

// Timestep is the engine's position within a run.
type Timestep struct {
	Index  int
	Period time.Time
}

type Timestepper interface {
	Current() Timestep
	Len() int
}

// Model is a loaded engine instance. It is owned by a single goroutine.
type Model interface {
	Step() error
	Timestepper() Timestepper
	Close() error
}

// Loader builds a Model from a document. basePath resolves relative file
// references inside the document.
type Loader interface {
	Load(ctx context.Context, doc *document.Document, basePath string) (Model, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, doc *document.Document, basePath string) (Model, error)

func (f LoaderFunc) Load(ctx context.Context, doc *document.Document, basePath string) (Model, error) {
	return f(ctx, doc, basePath)
}

// Mode is what the run loop does once it is resumed.
type Mode int

const (
	ModeNone Mode = iota
	ModeStep
	ModeRunToDate
	ModeRun
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeStep:
		return "step"
	case ModeRunToDate:
		return "run_to_date"
	case ModeRun:
		return "run"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Progress is reported after every engine step. 0 <= Index <= LastIndex.
type Progress struct {
	Timestamp time.Time
	Index     int
	LastIndex int
}

// Fraction returns completed steps over total steps, in [0, 1].
func (p Progress) Fraction() float64 {
	if p.LastIndex <= 0 {
		return 1
	}
	return float64(p.Index) / float64(p.LastIndex)
}

func (p Progress) String() string {
	return fmt.Sprintf("%s (%d/%d)", p.Timestamp.Format(document.DateLayout), p.Index, p.LastIndex)
}

type State int

const (
	StateIdle State = iota
	StateLoading
	StatePaused
	StateRunning
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePaused:
		return "paused"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome records how a session ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeKilled    Outcome = "killed"
	OutcomeLoadError Outcome = "load_error"
	OutcomeStepError Outcome = "step_error"
)

// Status is a point-in-time view of a controller.
type Status struct {
	State    State
	Mode     Mode
	Last     Progress
	Outcome  Outcome
	HasModel bool
}
