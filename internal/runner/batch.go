package runner

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/flowlab/internal/document"
)

// Job is one document to run unattended.
type Job struct {
	Name     string
	Doc      *document.Document
	BasePath string
}

type BatchResult struct {
	Job     string
	Outcome Outcome
	Last    Progress
	Steps   int
	Elapsed time.Duration
	Err     error
}

// Batch runs jobs to completion in parallel, each on its own Controller.
type Batch struct {
	loader      Loader
	logger      *slog.Logger
	concurrency int
}

func NewBatch(loader Loader, logger *slog.Logger, concurrency int) *Batch {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Batch{loader: loader, logger: logger, concurrency: concurrency}
}

// Run executes every job. Failures of individual jobs are reported in their
// BatchResult; the returned error is only set when ctx is cancelled.
func (b *Batch) Run(ctx context.Context, jobs []Job, listen func(job string) Listener) ([]BatchResult, error) {
	results := make([]BatchResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			results[i] = b.runOne(gctx, job, listen)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func (b *Batch) runOne(ctx context.Context, job Job, listen func(string) Listener) BatchResult {
	start := time.Now()
	res := BatchResult{Job: job.Name}

	ctrl := New(b.loader, b.logger.With("job", job.Name))
	steps := 0
	_ = ctrl.AddListener(ListenerFuncs{Progress: func(Progress) { steps++ }})
	if listen != nil {
		if l := listen(job.Name); l != nil {
			_ = ctrl.AddListener(l)
		}
	}

	if err := ctrl.Start(ctx, job.Doc, job.BasePath); err != nil {
		res.Outcome = OutcomeLoadError
		res.Err = err
		return res
	}
	if err := ctrl.Run(); err != nil {
		b.logger.Debug("run command rejected", "job", job.Name, "error", err)
	}
	res.Err = ctrl.Wait()

	st := ctrl.Status()
	res.Outcome = st.Outcome
	res.Last = st.Last
	res.Steps = steps
	res.Elapsed = time.Since(start)
	return res
}
