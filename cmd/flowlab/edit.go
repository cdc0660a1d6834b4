package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/san-kum/flowlab/internal/document"
)

var (
	nodeType      string
	maxFlow       string
	minFlow       string
	flow          string
	cost          string
	maxVolume     string
	initialVolume float64
	comment       string
)

func newEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "edit the network of a model document in place",
	}

	addNodeCmd := &cobra.Command{
		Use:   "add-node [model.json] [name]",
		Short: "add a node",
		Args:  cobra.ExactArgs(2),
		RunE:  addNode,
	}
	addNodeCmd.Flags().StringVar(&nodeType, "type", document.NodeLink, "node type (input, output, link, storage, catchment)")
	addNodeCmd.Flags().StringVar(&maxFlow, "max-flow", "", "maximum flow, a number or parameter name")
	addNodeCmd.Flags().StringVar(&minFlow, "min-flow", "", "minimum flow, a number or parameter name")
	addNodeCmd.Flags().StringVar(&flow, "flow", "", "catchment flow, a number or parameter name")
	addNodeCmd.Flags().StringVar(&cost, "cost", "", "cost, a number or parameter name")
	addNodeCmd.Flags().StringVar(&maxVolume, "max-volume", "", "storage capacity, a number or parameter name")
	addNodeCmd.Flags().Float64Var(&initialVolume, "initial-volume", 0, "initial storage volume")
	addNodeCmd.Flags().StringVar(&comment, "comment", "", "free text comment")

	cmd.AddCommand(
		addNodeCmd,
		&cobra.Command{
			Use:   "remove-node [model.json] [name]",
			Short: "remove a node with its edges and recorders",
			Args:  cobra.ExactArgs(2),
			RunE: editDocument(func(d *document.Document, args []string) error {
				return d.RemoveNode(args[0])
			}),
		},
		&cobra.Command{
			Use:   "rename-node [model.json] [old] [new]",
			Short: "rename a node",
			Args:  cobra.ExactArgs(3),
			RunE: editDocument(func(d *document.Document, args []string) error {
				return d.RenameNode(args[0], args[1])
			}),
		},
		&cobra.Command{
			Use:   "add-edge [model.json] [from] [to]",
			Short: "connect two nodes",
			Args:  cobra.ExactArgs(3),
			RunE: editDocument(func(d *document.Document, args []string) error {
				return d.AddEdge(args[0], args[1])
			}),
		},
		&cobra.Command{
			Use:   "remove-edge [model.json] [from] [to]",
			Short: "disconnect two nodes",
			Args:  cobra.ExactArgs(3),
			RunE: editDocument(func(d *document.Document, args []string) error {
				return d.RemoveEdge(args[0], args[1])
			}),
		},
	)
	return cmd
}

// editDocument loads args[0], applies edit to the remaining args and saves the
// file. A document left invalid by the edit is still saved, with a warning.
func editDocument(edit func(*document.Document, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		file := args[0]
		doc, _, err := document.LoadFile(file)
		if err != nil {
			return err
		}
		if err := edit(doc, args[1:]); err != nil {
			return err
		}
		if err := doc.Validate(); err != nil {
			logger.Warn("document is not runnable after edit", "file", file, "error", err)
		}
		if err := doc.Save(file); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", cmd.Name(), file)
		return nil
	}
}

func addNode(cmd *cobra.Command, args []string) error {
	n := document.Node{Name: args[1], Type: nodeType, Comment: comment}
	values := []struct {
		flag string
		raw  string
		dst  **document.Value
	}{
		{"max-flow", maxFlow, &n.MaxFlow},
		{"min-flow", minFlow, &n.MinFlow},
		{"flow", flow, &n.Flow},
		{"cost", cost, &n.Cost},
		{"max-volume", maxVolume, &n.MaxVolume},
	}
	for _, v := range values {
		if cmd.Flags().Changed(v.flag) {
			*v.dst = parseValue(v.raw)
		}
	}
	if cmd.Flags().Changed("initial-volume") {
		n.InitialVolume = &initialVolume
	}

	return editDocument(func(d *document.Document, _ []string) error {
		return d.AddNode(n)
	})(cmd, args)
}

// parseValue reads a number as a constant and anything else as a parameter
// reference.
func parseValue(s string) *document.Value {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return document.Const(f)
	}
	return document.Ref(s)
}
