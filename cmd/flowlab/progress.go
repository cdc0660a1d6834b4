package main

import (
	"io"
	"sync"

	"github.com/gosuri/uiprogress"

	"github.com/san-kum/flowlab/internal/runner"
)

// progressBar renders Progress events as a terminal bar labelled with the
// current period.
type progressBar struct {
	progress *uiprogress.Progress
	bar      *uiprogress.Bar

	mu    sync.Mutex
	label string
}

func newProgressBar(out io.Writer, total int) *progressBar {
	if total < 1 {
		total = 1
	}
	p := &progressBar{progress: uiprogress.New(), label: "loading   "}
	p.progress.SetOut(out)
	p.bar = p.progress.AddBar(total).AppendCompleted().PrependElapsed()
	p.bar.PrependFunc(func(*uiprogress.Bar) string {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.label
	})
	p.progress.Start()
	return p
}

func (p *progressBar) Handle(e runner.Event) {
	switch e.Kind {
	case runner.EventProgress:
		p.mu.Lock()
		p.label = e.Progress.Timestamp.Format("2006-01-02")
		p.mu.Unlock()
		_ = p.bar.Set(e.Progress.Index)
	case runner.EventFinished:
		p.progress.Stop()
	}
}
