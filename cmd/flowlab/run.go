package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/san-kum/flowlab/internal/automation"
	"github.com/san-kum/flowlab/internal/document"
	"github.com/san-kum/flowlab/internal/metrics"
	"github.com/san-kum/flowlab/internal/runner"
	"github.com/san-kum/flowlab/internal/storage"
	"github.com/san-kum/flowlab/internal/viz"
)

var (
	runTo       string
	noSave      bool
	quiet       bool
	theme       string
	concurrency int
	eventBuffer int
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [model.json]",
		Short: "run a model to the end, or to a date",
		Args:  cobra.ExactArgs(1),
		RunE:  runModel,
	}
	cmd.Flags().StringVar(&runTo, "to", "", "stop after reaching this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "hide the progress bar")
	return cmd
}

func newStepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step [model.json]",
		Short: "step through a model in the interactive run panel",
		Args:  cobra.ExactArgs(1),
		RunE:  stepModel,
	}
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	cmd.Flags().StringVar(&theme, "theme", viz.ThemeRiver.Name, fmt.Sprintf("color theme %v", viz.ThemeNames()))
	cmd.Flags().IntVar(&eventBuffer, "buffer", 0, "event buffer size (default from config)")
	return cmd
}

func newScriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script [script.yaml]",
		Short: "drive a model with a scripted command sequence",
		Args:  cobra.ExactArgs(1),
		RunE:  runScript,
	}
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	return cmd
}

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [model.json...]",
		Short: "run several models to the end in parallel",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBatch,
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel runs (default from config)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the runs")
	return cmd
}

func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runModel(cmd *cobra.Command, args []string) error {
	file := args[0]
	doc, base, err := document.LoadFile(file)
	if err != nil {
		return err
	}

	var target time.Time
	if runTo != "" {
		if target, err = parseDate(runTo); err != nil {
			return err
		}
	}

	ctx, cancel := interruptContext()
	defer cancel()

	models := newModelSet()
	ctrl := runner.New(models, logger)

	if !quiet {
		total := 1
		if start, end, step, werr := doc.Timestepper.Window(); werr == nil {
			total = int(end.Sub(start) / step)
		}
		if err := ctrl.AddListener(newProgressBar(os.Stdout, total)); err != nil {
			return err
		}
	}
	if err := ctrl.AddListener(runner.ListenerFuncs{
		ModelLoadError: func(details string) { fmt.Fprintln(os.Stderr, "model load failed:", details) },
		StepError:      func(details string) { fmt.Fprintln(os.Stderr, "step failed:", details) },
		RunToDateDone:  func() { killQuietly(ctrl) },
	}); err != nil {
		return err
	}

	fmt.Printf("running %s...\n", title(doc, file))
	started := time.Now()

	if err := ctrl.Start(ctx, doc, base); err != nil {
		return err
	}
	if runTo != "" {
		err = ctrl.RunTo(target)
	} else {
		err = ctrl.Run()
	}
	if err != nil {
		logger.Debug("command rejected", "error", err)
	}
	waitErr := ctrl.Wait()
	status := ctrl.Status()
	if runTo != "" && ctx.Err() == nil {
		status.Outcome = runToOutcome(status, target)
	}

	fmt.Printf("%s in %v\n", status.Outcome, time.Since(started).Round(time.Millisecond))
	if status.Last.LastIndex > 0 {
		fmt.Printf("reached %s\n", status.Last)
	}
	series := models.series(doc)
	if summary := metrics.Summarize(metrics.RecorderKinds(doc), series.Values); len(summary) > 0 {
		fmt.Println("\nmetrics:")
		for _, k := range metrics.Keys(summary) {
			fmt.Printf("  %s: %.6f\n", k, summary[k])
		}
	}
	if err := store(file, doc, status.Outcome, waitErr, series); err != nil {
		return err
	}
	return waitErr
}

func stepModel(cmd *cobra.Command, args []string) error {
	file := args[0]
	doc, base, err := document.LoadFile(file)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("buffer") {
		eventBuffer = cfg.EventBuffer
	}

	ctx, cancel := interruptContext()
	defer cancel()

	models := newModelSet()
	ctrl := runner.New(models, logger)
	events := runner.NewChannelListener(eventBuffer)
	if err := ctrl.AddListener(events); err != nil {
		return err
	}
	if err := ctrl.Start(ctx, doc, base); err != nil {
		return err
	}

	start, _, _, _ := doc.Timestepper.Window()
	panel := viz.NewPanel(ctrl, events.Events(), title(doc, file), start).WithTheme(theme)
	_, uiErr := tea.NewProgram(panel).Run()

	killQuietly(ctrl)
	go func() {
		for range events.Events() {
		}
	}()
	waitErr := ctrl.Wait()
	if uiErr != nil {
		return uiErr
	}

	status := ctrl.Status()
	if err := store(file, doc, status.Outcome, waitErr, models.series(doc)); err != nil {
		return err
	}
	return waitErr
}

func runScript(cmd *cobra.Command, args []string) error {
	script, err := automation.LoadScript(args[0])
	if err != nil {
		return err
	}
	doc, base, err := document.LoadFile(script.ModelPath())
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	models := newModelSet()
	printer := runner.ListenerFuncs{
		Progress:  func(p runner.Progress) { fmt.Printf("  %s\n", p) },
		StepError: func(details string) { fmt.Fprintln(os.Stderr, "step failed:", details) },
	}

	fmt.Printf("script %s on %s\n", script.Name, title(doc, script.Model))
	report, err := automation.NewRunner(models, logger).RunDocument(ctx, script, doc, base, printer)
	if err != nil {
		return err
	}

	fmt.Printf("%s after %d commands, %d steps\n", report.Outcome, report.Issued, len(report.Progress))
	if err := store(script.ModelPath(), doc, report.Outcome, report.Err, models.series(doc)); err != nil {
		return err
	}
	return report.Err
}

func runBatch(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("concurrency") {
		concurrency = cfg.BatchConcurrency
	}

	jobs := make([]runner.Job, 0, len(args))
	for _, file := range args {
		doc, base, err := document.LoadFile(file)
		if err != nil {
			return err
		}
		jobs = append(jobs, runner.Job{Name: file, Doc: doc, BasePath: base})
	}

	ctx, cancel := interruptContext()
	defer cancel()

	models := newModelSet()
	results, err := runner.NewBatch(models, logger, concurrency).Run(ctx, jobs, nil)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tOUTCOME\tSTEPS\tREACHED\tELAPSED\tRUN")
	failed := 0
	for i, res := range results {
		job := jobs[i]
		runID := "-"
		if !noSave {
			id, serr := saveRun(storage.New(cfg.DataDir), job.Name, job.Doc, res.Outcome, res.Err, models.series(job.Doc))
			if serr != nil {
				return serr
			}
			runID = id
		}
		if res.Err != nil {
			failed++
			logger.Warn("batch job failed", "job", job.Name, "error", res.Err)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%v\t%s\n",
			job.Name,
			res.Outcome,
			res.Steps,
			res.Last.Timestamp.Format(document.DateLayout),
			res.Elapsed.Round(time.Millisecond),
			runID,
		)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(jobs))
	}
	return nil
}

func store(file string, doc *document.Document, outcome runner.Outcome, waitErr error, series storage.Series) error {
	if noSave {
		return nil
	}
	id, err := saveRun(storage.New(cfg.DataDir), file, doc, outcome, waitErr, series)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", id)
	return nil
}

func title(doc *document.Document, file string) string {
	if doc.Metadata.Title != "" {
		return doc.Metadata.Title
	}
	return file
}
