package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/san-kum/flowlab/internal/document"
)

var (
	testStart   = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	errBadModel = errors.New("bad model")
	errSolver   = errors.New("solver blew up")
)

func day(i int) time.Time { return testStart.AddDate(0, 0, i) }

type fakeTimestepper struct {
	m *fakeModel
}

func (t fakeTimestepper) Current() Timestep {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return Timestep{Index: t.m.idx, Period: day(t.m.idx)}
}

func (t fakeTimestepper) Len() int { return t.m.n }

// fakeModel advances one day per step. When gate is set every Step waits for
// a value (or close) on it first.
type fakeModel struct {
	mu     sync.Mutex
	n      int
	idx    int
	steps  int
	failAt int
	closed bool
	gate   chan struct{}
}

func newFakeModel(n int) *fakeModel { return &fakeModel{n: n, failAt: -1} }

func (m *fakeModel) Step() error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("step on closed model")
	}
	if m.idx+1 == m.failAt {
		return errSolver
	}
	if m.idx+1 >= m.n {
		return errors.New("stepped past the end")
	}
	m.idx++
	m.steps++
	return nil
}

func (m *fakeModel) Timestepper() Timestepper { return fakeTimestepper{m: m} }

func (m *fakeModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeModel) stepCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.steps
}

func (m *fakeModel) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func loaderFor(m *fakeModel) Loader {
	return LoaderFunc(func(ctx context.Context, doc *document.Document, basePath string) (Model, error) {
		return m, nil
	})
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventLog) Handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventLog) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventLog) kinds() []EventKind {
	var out []EventKind
	for _, e := range r.all() {
		out = append(out, e.Kind)
	}
	return out
}

func (r *eventLog) count(kind EventKind) int {
	n := 0
	for _, e := range r.all() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *eventLog) indices() []int {
	var out []int
	for _, e := range r.all() {
		if e.Kind == EventProgress {
			out = append(out, e.Progress.Index)
		}
	}
	return out
}
