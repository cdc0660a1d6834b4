package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/san-kum/flowlab/internal/document"
)

// Controller drives a Model one timestep at a time on a background goroutine.
// Step, RunTo, Run and Kill may be called from any goroutine and never wait on
// engine work. A Controller serves exactly one run session; start a new one to
// run again.
type Controller struct {
	loader    Loader
	logger    *slog.Logger
	listeners []Listener

	mu   sync.Mutex
	cond *sync.Cond

	started bool
	done    bool
	state   State

	mode   Mode
	runTo  time.Time
	seq    uint64
	paused bool
	killed bool

	last     Progress
	hasModel bool
	outcome  Outcome
	err      error

	finished chan struct{}
}

func New(loader Loader, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		loader:   loader,
		logger:   logger,
		finished: make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// AddListener registers l. Listeners must be added before Start.
func (c *Controller) AddListener(l Listener) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrAlreadyStarted
	}
	c.listeners = append(c.listeners, l)
	return nil
}

// Start loads doc on the background goroutine and leaves the loop paused.
// Cancelling ctx has the same effect as Kill.
func (c *Controller) Start(ctx context.Context, doc *document.Document, basePath string) error {
	if ctx == nil {
		return ErrNilContext
	}
	if doc == nil {
		return ErrNilDocument
	}
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.state = StateLoading
	c.mu.Unlock()

	go c.run(ctx, doc, basePath)
	return nil
}

func (c *Controller) Step() error { return c.command(ModeStep, time.Time{}) }

// RunTo steps until the current period reaches target or the final timestep.
func (c *Controller) RunTo(target time.Time) error { return c.command(ModeRunToDate, target) }

// Run steps until the final timestep, then ends the session.
func (c *Controller) Run() error { return c.command(ModeRun, time.Time{}) }

// Kill asks the loop to exit. An engine step already in progress completes
// first; no further step starts afterwards.
func (c *Controller) Kill() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.activeLocked(); err != nil {
		return err
	}
	if c.killed {
		return nil
	}
	c.killed = true
	c.paused = false
	c.cond.Broadcast()
	return nil
}

// Wait blocks until the session ends. It returns a *LoadError or *StepError
// when the session failed and nil after a kill or a completed run.
func (c *Controller) Wait() error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	<-c.finished

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed once Finished has been delivered to every listener.
func (c *Controller) Done() <-chan struct{} { return c.finished }

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:    c.state,
		Mode:     c.mode,
		Last:     c.last,
		Outcome:  c.outcome,
		HasModel: c.hasModel,
	}
}

func (c *Controller) command(mode Mode, target time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.activeLocked(); err != nil {
		return err
	}
	if c.killed {
		return ErrFinished
	}
	c.mode = mode
	c.runTo = target
	c.seq++
	if c.paused {
		c.paused = false
		c.cond.Broadcast()
	}
	return nil
}

func (c *Controller) activeLocked() error {
	if !c.started {
		return ErrNotStarted
	}
	if c.done {
		return ErrFinished
	}
	return nil
}

func (c *Controller) emit(e Event) {
	for _, l := range c.listeners {
		l.Handle(e)
	}
}

func (c *Controller) run(ctx context.Context, doc *document.Document, basePath string) {
	defer close(c.finished)
	stop := context.AfterFunc(ctx, func() { _ = c.Kill() })
	defer stop()

	logger := c.logger.With("model", doc.Metadata.Title)
	c.emit(Event{Kind: EventStatus, Message: "Loading model..."})

	model, err := c.loader.Load(ctx, doc, basePath)
	if err != nil {
		logger.Error("model load failed", "error", err)
		c.emit(Event{Kind: EventModelLoadError, Message: err.Error()})
		c.finish(OutcomeLoadError, &LoadError{Wrapped: err})
		return
	}

	lastIndex := model.Timestepper().Len() - 1
	c.mu.Lock()
	c.hasModel = true
	c.last = Progress{Timestamp: model.Timestepper().Current().Period, Index: model.Timestepper().Current().Index, LastIndex: lastIndex}
	c.paused = c.mode == ModeNone
	if c.paused {
		c.state = StatePaused
	}
	c.mu.Unlock()
	logger.Info("model loaded", "last_index", lastIndex)
	c.emit(Event{Kind: EventStatus, Message: "Model loaded"})

	outcome, err := c.loop(model, lastIndex)
	if cerr := model.Close(); cerr != nil {
		logger.Warn("model close failed", "error", cerr)
	}
	if err != nil {
		logger.Error("run loop stopped", "error", err)
		c.emit(Event{Kind: EventStepError, Message: err.Error()})
	} else {
		logger.Info("run loop stopped", "outcome", outcome)
	}
	c.finish(outcome, err)
}

// finish records the outcome and emits Finished, the last event of a session.
func (c *Controller) finish(outcome Outcome, err error) {
	c.mu.Lock()
	c.done = true
	c.state = StateFinished
	c.mode = ModeNone
	c.paused = false
	c.hasModel = false
	c.outcome = outcome
	c.err = err
	c.mu.Unlock()

	c.emit(Event{Kind: EventFinished})
}

func (c *Controller) loop(m Model, lastIndex int) (Outcome, error) {
	ts := m.Timestepper()
	for {
		c.mu.Lock()
		for c.paused && !c.killed {
			c.cond.Wait()
		}
		if c.killed {
			c.mu.Unlock()
			return OutcomeKilled, nil
		}
		mode, target, seq := c.mode, c.runTo, c.seq
		c.state = StateRunning
		c.mu.Unlock()

		if mode != ModeNone && ts.Current().Index >= lastIndex {
			return OutcomeCompleted, nil
		}

		var err error
		switch mode {
		case ModeStep:
			err = c.step(m, lastIndex)
		case ModeRunToDate:
			err = c.runToDate(m, lastIndex, target)
		case ModeRun:
			err = c.runToEnd(m, lastIndex)
		}
		if err != nil {
			return OutcomeStepError, err
		}
		if mode == ModeRun && !c.isKilled() {
			return OutcomeCompleted, nil
		}
		c.pause(seq)
	}
}

// pause clears the mode unless a newer command arrived while the loop was busy,
// in which case that command runs next.
func (c *Controller) pause(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq != seq {
		return
	}
	c.mode = ModeNone
	c.runTo = time.Time{}
	c.paused = true
	c.state = StatePaused
}

func (c *Controller) isKilled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killed
}

func (c *Controller) advance(m Model, lastIndex int) error {
	ts := m.Timestepper()
	next := ts.Current().Index + 1
	if err := m.Step(); err != nil {
		return &StepError{Index: next, Wrapped: err}
	}
	cur := ts.Current()
	p := Progress{Timestamp: cur.Period, Index: cur.Index, LastIndex: lastIndex}

	c.mu.Lock()
	c.last = p
	c.mu.Unlock()

	c.emit(Event{Kind: EventProgress, Progress: p})
	return nil
}

func (c *Controller) step(m Model, lastIndex int) error {
	c.emit(Event{Kind: EventBeforeStep})
	if err := c.advance(m, lastIndex); err != nil {
		return err
	}
	c.emit(Event{Kind: EventStepDone})
	return nil
}

func (c *Controller) runToDate(m Model, lastIndex int, target time.Time) error {
	ts := m.Timestepper()
	c.emit(Event{Kind: EventBeforeRunToDate})
	for !c.isKilled() {
		cur := ts.Current()
		if !cur.Period.Before(target) || cur.Index >= lastIndex {
			break
		}
		if err := c.advance(m, lastIndex); err != nil {
			return err
		}
	}
	c.emit(Event{Kind: EventRunToDateDone})
	return nil
}

func (c *Controller) runToEnd(m Model, lastIndex int) error {
	ts := m.Timestepper()
	for !c.isKilled() && ts.Current().Index < lastIndex {
		if err := c.advance(m, lastIndex); err != nil {
			return err
		}
	}
	return nil
}
