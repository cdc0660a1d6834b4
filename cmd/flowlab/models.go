package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/san-kum/flowlab/internal/document"
	"github.com/san-kum/flowlab/internal/engine"
	"github.com/san-kum/flowlab/internal/metrics"
	"github.com/san-kum/flowlab/internal/runner"
	"github.com/san-kum/flowlab/internal/storage"
)

// modelSet wraps the engine as a runner.Loader and keeps every loaded model
// so results can be read after the session ends.
type modelSet struct {
	eng *engine.Engine

	mu     sync.Mutex
	models map[*document.Document]*engine.Model
}

func newModelSet() *modelSet {
	return &modelSet{
		eng:    engine.New(logger),
		models: make(map[*document.Document]*engine.Model),
	}
}

func (s *modelSet) Load(ctx context.Context, doc *document.Document, basePath string) (runner.Model, error) {
	m, err := s.eng.LoadModel(ctx, doc, basePath)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.models[doc] = m
	s.mu.Unlock()
	return m, nil
}

func (s *modelSet) model(doc *document.Document) *engine.Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.models[doc]
}

func (s *modelSet) series(doc *document.Document) storage.Series {
	m := s.model(doc)
	if m == nil {
		return storage.Series{}
	}
	return storage.Series{Periods: m.Periods(), Values: m.Results()}
}

// saveRun stores a finished session. waitErr is the controller's Wait result.
func saveRun(st *storage.Store, file string, doc *document.Document, outcome runner.Outcome, waitErr error, series storage.Series) (string, error) {
	if err := st.Init(); err != nil {
		return "", err
	}
	meta := storage.RunMetadata{
		Title:   doc.Metadata.Title,
		File:    file,
		Start:   doc.Timestepper.Start,
		End:     doc.Timestepper.End,
		Outcome: string(outcome),
		Metrics: metrics.Summarize(metrics.RecorderKinds(doc), series.Values),
		Created: time.Now().UTC(),
	}
	if waitErr != nil {
		meta.Error = waitErr.Error()
	}
	id, err := st.Save(meta, series)
	if err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	return id, nil
}

// runToOutcome reports a session that was killed after reaching the --to
// date, or the final timestep, as completed.
func runToOutcome(status runner.Status, target time.Time) runner.Outcome {
	if status.Outcome != runner.OutcomeKilled || !status.HasModel {
		return status.Outcome
	}
	if !status.Last.Timestamp.Before(target) || status.Last.Index >= status.Last.LastIndex {
		return runner.OutcomeCompleted
	}
	return status.Outcome
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(document.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// killQuietly asks ctrl to stop, ignoring a session that already ended.
func killQuietly(ctrl *runner.Controller) {
	if err := ctrl.Kill(); err != nil && !errors.Is(err, runner.ErrFinished) {
		logger.Debug("kill rejected", "error", err)
	}
}
