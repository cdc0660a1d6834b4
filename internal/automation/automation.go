package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/flowlab/internal/document"
	"github.com/san-kum/flowlab/internal/runner"
)

const (
	ActionStep  = "step"
	ActionRunTo = "run_to"
	ActionRun   = "run"
	ActionKill  = "kill"
)

var ErrInvalidScript = errors.New("automation: invalid script")

// Script is a scripted run session against one model file.
type Script struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Model       string       `yaml:"model"`
	Steps       []ScriptStep `yaml:"steps"`

	baseDir string
}

// ScriptStep is one controller command. Repeat applies to step only.
type ScriptStep struct {
	Action string `yaml:"action"`
	Date   string `yaml:"date,omitempty"`
	Repeat int    `yaml:"repeat,omitempty"`
}

// LoadScript loads a script from a YAML file. The model path is resolved
// relative to the script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	script.baseDir = filepath.Dir(path)
	if err := script.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &script, nil
}

func (s *Script) ModelPath() string {
	return document.ResolvePath(s.baseDir, s.Model)
}

func (s *Script) Validate() error {
	var errs []error
	if s.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	for i, st := range s.Steps {
		switch st.Action {
		case ActionStep, ActionRun, ActionKill:
		case ActionRunTo:
			if _, err := time.Parse(document.DateLayout, st.Date); err != nil {
				errs = append(errs, fmt.Errorf("step %d: bad date %q", i+1, st.Date))
			}
		default:
			errs = append(errs, fmt.Errorf("step %d: unknown action %q", i+1, st.Action))
		}
		if st.Repeat < 0 {
			errs = append(errs, fmt.Errorf("step %d: negative repeat", i+1))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidScript, errors.Join(errs...))
	}
	return nil
}

// Report is what a script run observed.
type Report struct {
	Name     string
	Outcome  runner.Outcome
	Progress []runner.Progress
	Issued   int
	Err      error
}

func (r *Report) Last() (runner.Progress, bool) {
	if len(r.Progress) == 0 {
		return runner.Progress{}, false
	}
	return r.Progress[len(r.Progress)-1], true
}

type Runner struct {
	loader runner.Loader
	logger *slog.Logger
}

func NewRunner(loader runner.Loader, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{loader: loader, logger: logger}
}

// Run loads the script's model and issues each command once the previous
// one has paused the loop. A session still open after the last command is
// killed. Extra listeners see every event of the session.
func (r *Runner) Run(ctx context.Context, script *Script, extra ...runner.Listener) (*Report, error) {
	doc, base, err := document.LoadFile(script.ModelPath())
	if err != nil {
		return nil, err
	}
	return r.RunDocument(ctx, script, doc, base, extra...)
}

func (r *Runner) RunDocument(ctx context.Context, script *Script, doc *document.Document, basePath string, extra ...runner.Listener) (*Report, error) {
	logger := r.logger.With("script", script.Name)
	ctrl := runner.New(r.loader, r.logger)

	seg := newSegmentListener()
	defer seg.stop()
	if err := ctrl.AddListener(seg); err != nil {
		return nil, err
	}
	for _, l := range extra {
		if err := ctrl.AddListener(l); err != nil {
			return nil, err
		}
	}
	if err := ctrl.Start(ctx, doc, basePath); err != nil {
		return nil, err
	}

	report := &Report{Name: script.Name}
	finished := false

commands:
	for i, st := range script.Steps {
		repeat := 1
		if st.Action == ActionStep && st.Repeat > 0 {
			repeat = st.Repeat
		}
		for n := 0; n < repeat; n++ {
			if err := issue(ctrl, st); err != nil {
				if errors.Is(err, runner.ErrFinished) {
					logger.Debug("session already finished", "step", i+1)
					finished = true
					break commands
				}
				return nil, err
			}
			report.Issued++

			kind, err := seg.next(ctx)
			if err != nil {
				_ = ctrl.Kill()
				<-ctrl.Done()
				return nil, err
			}
			if kind == runner.EventFinished {
				finished = true
				break commands
			}
		}
	}

	if !finished {
		if err := ctrl.Kill(); err != nil && !errors.Is(err, runner.ErrFinished) {
			return nil, err
		}
	}
	report.Err = ctrl.Wait()
	report.Outcome = ctrl.Status().Outcome
	report.Progress = seg.progress()

	logger.Info("script finished",
		"outcome", report.Outcome,
		"commands", report.Issued,
		"steps", len(report.Progress))
	return report, nil
}

func issue(ctrl *runner.Controller, st ScriptStep) error {
	switch st.Action {
	case ActionStep:
		return ctrl.Step()
	case ActionRunTo:
		target, err := time.Parse(document.DateLayout, st.Date)
		if err != nil {
			return err
		}
		return ctrl.RunTo(target)
	case ActionRun:
		return ctrl.Run()
	case ActionKill:
		return ctrl.Kill()
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidScript, st.Action)
	}
}

// segmentListener signals the end of each command: StepDone, RunToDateDone
// or Finished.
type segmentListener struct {
	ends chan runner.EventKind
	quit chan struct{}
	once sync.Once

	mu    sync.Mutex
	steps []runner.Progress
}

func newSegmentListener() *segmentListener {
	return &segmentListener{
		ends: make(chan runner.EventKind, 4),
		quit: make(chan struct{}),
	}
}

func (s *segmentListener) Handle(e runner.Event) {
	switch e.Kind {
	case runner.EventProgress:
		s.mu.Lock()
		s.steps = append(s.steps, e.Progress)
		s.mu.Unlock()
	case runner.EventStepDone, runner.EventRunToDateDone, runner.EventFinished:
		select {
		case s.ends <- e.Kind:
		case <-s.quit:
		}
	}
}

func (s *segmentListener) next(ctx context.Context) (runner.EventKind, error) {
	select {
	case kind := <-s.ends:
		return kind, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *segmentListener) progress() []runner.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]runner.Progress, len(s.steps))
	copy(out, s.steps)
	return out
}

func (s *segmentListener) stop() {
	s.once.Do(func() { close(s.quit) })
}
