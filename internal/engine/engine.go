package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/san-kum/flowlab/internal/document"
	"github.com/san-kum/flowlab/internal/runner"
)

// Engine loads model documents into runnable models. It implements runner.Loader.
type Engine struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

func (e *Engine) Load(ctx context.Context, doc *document.Document, basePath string) (runner.Model, error) {
	m, err := e.LoadModel(ctx, doc, basePath)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// LoadModel validates doc and builds the network, parameters and recorders.
func (e *Engine) LoadModel(ctx context.Context, doc *document.Document, basePath string) (*Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}

	ts, err := newTimestepper(doc.Timestepper)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}

	params, err := buildParameters(doc, newTableCache(basePath, doc.Tables))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}

	nodes, err := buildNetwork(doc, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}

	byName := make(map[string]*node, len(nodes))
	for _, n := range nodes {
		byName[n.name] = n
	}

	names := make([]string, 0, len(doc.Recorders))
	for name := range doc.Recorders {
		names = append(names, name)
	}
	sort.Strings(names)

	recorders := make([]*recorder, 0, len(names))
	for _, name := range names {
		def := doc.Recorders[name]
		var outputs []*node
		if def.Node == "" {
			for _, n := range nodes {
				if n.kind == document.NodeOutput {
					outputs = append(outputs, n)
				}
			}
		} else {
			outputs = []*node{byName[def.Node]}
		}
		recorders = append(recorders, &recorder{name: name, kind: def.Type, nodes: outputs})
	}

	e.logger.Debug("model built",
		"title", doc.Metadata.Title,
		"nodes", len(nodes),
		"timesteps", ts.Len(),
		"recorders", len(recorders))

	return &Model{
		title:     doc.Metadata.Title,
		ts:        ts,
		nodes:     nodes,
		byName:    byName,
		recorders: recorders,
	}, nil
}

// buildNetwork resolves node attributes and returns nodes in topological order.
func buildNetwork(doc *document.Document, params map[string]valueFn) ([]*node, error) {
	byName := make(map[string]*node, len(doc.Nodes))
	order := make([]*node, 0, len(doc.Nodes))
	for _, def := range doc.Nodes {
		n := &node{name: def.Name, kind: def.Type}
		var err error
		if n.maxFlow, err = resolve(def.MaxFlow, params, math.Inf(1)); err != nil {
			return nil, fmt.Errorf("node %q max_flow: %w", def.Name, err)
		}
		if n.flow, err = resolve(def.Flow, params, 0); err != nil {
			return nil, fmt.Errorf("node %q flow: %w", def.Name, err)
		}
		if n.cost, err = resolve(def.Cost, params, 0); err != nil {
			return nil, fmt.Errorf("node %q cost: %w", def.Name, err)
		}
		if n.maxVolume, err = resolve(def.MaxVolume, params, 0); err != nil {
			return nil, fmt.Errorf("node %q max_volume: %w", def.Name, err)
		}
		if def.Type == document.NodeOutput && def.MaxFlow == nil {
			n.maxFlow = constant(0)
		}
		if def.Type == document.NodeStorage {
			n.volume = initialVolume(def, n.maxVolume)
		}
		byName[def.Name] = n
		order = append(order, n)
	}

	indegree := make(map[*node]int, len(order))
	for _, e := range doc.Edges {
		from, to := byName[e.From], byName[e.To]
		from.children = append(from.children, to)
		indegree[to]++
	}

	queue := make([]*node, 0, len(order))
	for _, n := range order {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	sorted := make([]*node, 0, len(order))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		sorted = append(sorted, n)
		for _, c := range n.children {
			indegree[c]--
			if indegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}
	if len(sorted) != len(order) {
		return nil, ErrCycle
	}
	return sorted, nil
}

func initialVolume(def document.Node, maxVolume valueFn) float64 {
	if def.InitialVolume != nil {
		return *def.InitialVolume
	}
	if def.InitialVolumePC != nil {
		return *def.InitialVolumePC * maxVolume(runner.Timestep{})
	}
	return 0
}
