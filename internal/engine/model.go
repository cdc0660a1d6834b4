package engine

import (
	"math"
	"sort"
	"time"

	"github.com/san-kum/flowlab/internal/document"
	"github.com/san-kum/flowlab/internal/runner"
)

const volumeTolerance = 1e-9

type node struct {
	name     string
	kind     string
	children []*node

	maxFlow   valueFn
	flow      valueFn
	cost      valueFn
	maxVolume valueFn

	volume float64

	demand  float64
	inflow  float64
	through float64
	deficit float64
	spill   float64
}

// Model is a loaded network. It is not safe for concurrent use; the runner
// keeps it on a single goroutine.
type Model struct {
	title     string
	ts        *Timestepper
	nodes     []*node
	byName    map[string]*node
	recorders []*recorder
	closed    bool
}

func (m *Model) Title() string { return m.title }

func (m *Model) Timestepper() runner.Timestepper { return m.ts }

// Close releases the network. Recorded results stay readable.
func (m *Model) Close() error {
	m.closed = true
	m.nodes = nil
	m.byName = nil
	for _, r := range m.recorders {
		r.nodes = nil
	}
	return nil
}

// Step advances one timestep and routes water through the network for the
// period entered.
func (m *Model) Step() error {
	if m.closed {
		return ErrClosed
	}
	if m.ts.idx >= m.ts.n-1 {
		return ErrPastEnd
	}
	next := m.ts.idx + 1
	ts := runner.Timestep{Index: next, Period: m.ts.period(next)}

	for _, n := range m.nodes {
		n.inflow, n.through, n.deficit, n.spill = 0, 0, 0, 0
	}

	for i := len(m.nodes) - 1; i >= 0; i-- {
		n := m.nodes[i]
		downstream := childDemand(n)
		switch n.kind {
		case document.NodeOutput:
			n.demand = n.maxFlow(ts)
		case document.NodeLink:
			n.demand = math.Min(downstream, n.maxFlow(ts))
		case document.NodeStorage:
			n.demand = downstream + math.Max(0, n.maxVolume(ts)-n.volume)
		default:
			n.demand = downstream
		}
	}

	for _, n := range m.nodes {
		if err := m.route(n, ts); err != nil {
			return err
		}
	}

	// Commit the period only after every route succeeded.
	m.ts.idx = next
	for _, r := range m.recorders {
		r.observe()
	}
	return nil
}

func (m *Model) route(n *node, ts runner.Timestep) error {
	fail := func(msg string) error {
		return &BalanceError{Index: ts.Index, Period: ts.Period, Node: n.name, Message: msg}
	}

	var avail float64
	switch n.kind {
	case document.NodeCatchment:
		avail = n.flow(ts)
		if avail < 0 {
			return fail("negative catchment inflow")
		}
	case document.NodeInput:
		avail = math.Min(n.maxFlow(ts), childDemand(n))
	case document.NodeLink:
		avail = n.inflow
	case document.NodeStorage:
		n.volume += n.inflow
		avail = math.Min(n.volume, childDemand(n))
	case document.NodeOutput:
		n.through = n.inflow
		n.deficit = math.Max(0, n.demand-n.inflow)
		return nil
	}
	if math.IsNaN(avail) || math.IsInf(avail, 0) {
		return fail("flow is not finite")
	}

	sent := distribute(n, avail, ts)
	n.through = sent

	switch n.kind {
	case document.NodeStorage:
		n.volume -= sent
		if capacity := n.maxVolume(ts); n.volume > capacity {
			n.spill = n.volume - capacity
			n.volume = capacity
		}
		if n.volume < -volumeTolerance {
			return fail("storage volume below zero")
		}
	default:
		n.spill = avail - sent
	}
	return nil
}

// distribute hands avail to children in ascending cost order, each up to its
// unmet demand, and returns the amount sent.
func distribute(n *node, avail float64, ts runner.Timestep) float64 {
	children := make([]*node, len(n.children))
	copy(children, n.children)
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].cost(ts) < children[j].cost(ts)
	})

	sent := 0.0
	for _, c := range children {
		if avail-sent <= 0 {
			break
		}
		want := math.Max(0, c.demand-c.inflow)
		give := math.Min(want, avail-sent)
		c.inflow += give
		sent += give
	}
	return sent
}

func childDemand(n *node) float64 {
	total := 0.0
	for _, c := range n.children {
		total += c.demand
	}
	return total
}

// Results returns a copy of every recorder series, keyed by recorder name.
func (m *Model) Results() map[string][]float64 {
	out := make(map[string][]float64, len(m.recorders))
	for _, r := range m.recorders {
		values := make([]float64, len(r.values))
		copy(values, r.values)
		out[r.name] = values
	}
	return out
}

func (m *Model) RecorderNames() []string {
	names := make([]string, 0, len(m.recorders))
	for _, r := range m.recorders {
		names = append(names, r.name)
	}
	return names
}

// Periods returns the period of every recorded step.
func (m *Model) Periods() []time.Time { return m.ts.Periods() }

// Volume returns a storage node's current volume.
func (m *Model) Volume(name string) (float64, bool) {
	n, ok := m.byName[name]
	if !ok || n.kind != document.NodeStorage {
		return 0, false
	}
	return n.volume, true
}
