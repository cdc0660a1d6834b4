package engine

import (
	"time"

	"github.com/san-kum/flowlab/internal/document"
	"github.com/san-kum/flowlab/internal/runner"
)

// Timestepper walks a fixed window in whole-day steps. It starts at index 0.
type Timestepper struct {
	start time.Time
	step  time.Duration
	n     int
	idx   int
}

func newTimestepper(t document.Timestepper) (*Timestepper, error) {
	start, end, step, err := t.Window()
	if err != nil {
		return nil, err
	}
	return &Timestepper{
		start: start,
		step:  step,
		n:     int(end.Sub(start)/step) + 1,
	}, nil
}

func (t *Timestepper) Current() runner.Timestep {
	return runner.Timestep{Index: t.idx, Period: t.period(t.idx)}
}

func (t *Timestepper) Len() int { return t.n }

func (t *Timestepper) period(i int) time.Time {
	return t.start.Add(time.Duration(i) * t.step)
}

// Periods returns the periods from index 1 through the current index.
func (t *Timestepper) Periods() []time.Time {
	out := make([]time.Time, 0, t.idx)
	for i := 1; i <= t.idx; i++ {
		out = append(out, t.period(i))
	}
	return out
}
