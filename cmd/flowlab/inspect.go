package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/flowlab/internal/document"
	"github.com/san-kum/flowlab/internal/engine"
	"github.com/san-kum/flowlab/internal/storage"
)

const maxPlots = 6

var (
	recorder   string
	plotHeight int
	plotWidth  int
	outFile    string
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [model.json...]",
		Short: "check model documents without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE:  validateModels,
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}
}

func newPlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot recorder series of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	cmd.Flags().StringVar(&recorder, "recorder", "", "plot only this recorder")
	cmd.Flags().IntVar(&plotHeight, "height", 0, "plot height (default from config)")
	cmd.Flags().IntVar(&plotWidth, "width", 0, "plot width (default from config)")
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export recorder series of a stored run as csv",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")
	return cmd
}

func validateModels(cmd *cobra.Command, args []string) error {
	eng := engine.New(logger)
	failed := 0
	for _, file := range args {
		doc, base, err := document.LoadFile(file)
		if err == nil {
			var m *engine.Model
			if m, err = eng.LoadModel(context.Background(), doc, base); err == nil {
				fmt.Printf("ok    %s: %d nodes, %d edges, %d timesteps\n",
					file, len(doc.Nodes), len(doc.Edges), m.Timestepper().Len())
				_ = m.Close()
				continue
			}
		}
		failed++
		fmt.Printf("error %s: %v\n", file, err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d models invalid", failed, len(args))
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(cfg.DataDir).List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tOUTCOME\tSTEPS\tWINDOW\tCREATED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s..%s\t%s\n",
			run.ID,
			run.Title,
			run.Outcome,
			run.Steps,
			run.Start,
			run.End,
			run.Created.Local().Format("2006-01-02 15:04:05"),
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	if !cmd.Flags().Changed("height") {
		plotHeight = cfg.Plot.Height
	}
	if !cmd.Flags().Changed("width") {
		plotWidth = cfg.Plot.Width
	}

	st := storage.New(cfg.DataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	series, err := st.LoadSeries(runID)
	if err != nil {
		return err
	}
	if len(series.Periods) == 0 {
		return fmt.Errorf("run %s has no data to plot", runID)
	}

	names := series.Names()
	if recorder != "" {
		if _, ok := series.Values[recorder]; !ok {
			return fmt.Errorf("run %s has no recorder %q (have %v)", runID, recorder, names)
		}
		names = []string{recorder}
	}
	if len(names) > maxPlots {
		names = names[:maxPlots]
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s (%s)\n", meta.Title, meta.Outcome)
	fmt.Printf("periods: %s..%s\n\n",
		series.Periods[0].Format(document.DateLayout),
		series.Periods[len(series.Periods)-1].Format(document.DateLayout))

	for _, name := range names {
		graph := asciigraph.Plot(series.Values[name],
			asciigraph.Height(plotHeight),
			asciigraph.Width(plotWidth),
			asciigraph.Caption(name),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(cfg.DataDir)
	if outFile == "" {
		return st.Export(args[0], os.Stdout)
	}

	file, err := os.Create(outFile)
	if err != nil {
		return err
	}
	if err := st.Export(args[0], file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", outFile)
	return nil
}
