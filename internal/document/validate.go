package document

import (
	"errors"
	"fmt"
	"sort"
)

// Validate checks the document for structural problems. All problems found are
// joined into one error wrapping ErrInvalidDocument.
func (d *Document) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, _, _, err := d.Timestepper.Window(); err != nil {
		errs = append(errs, err)
	}

	names := make(map[string]bool, len(d.Nodes))
	for i, n := range d.Nodes {
		if n.Name == "" {
			add("node %d has no name", i)
			continue
		}
		if names[n.Name] {
			add("%w: %q", ErrDuplicateNode, n.Name)
		}
		names[n.Name] = true
		if !nodeTypes[n.Type] {
			add("node %q: unknown type %q", n.Name, n.Type)
		}
		for _, attr := range sortedKeys(n.values()) {
			v := n.values()[attr]
			if v != nil && v.IsRef() {
				if _, ok := d.Parameters[v.Ref]; !ok {
					add("node %q: %s references unknown parameter %q", n.Name, attr, v.Ref)
				}
			}
		}
		if n.MinFlow != nil && n.MaxFlow != nil && n.MinFlow.Const != nil && n.MaxFlow.Const != nil &&
			*n.MinFlow.Const > *n.MaxFlow.Const {
			add("node %q: min_flow %g exceeds max_flow %g", n.Name, *n.MinFlow.Const, *n.MaxFlow.Const)
		}
		if n.Type == NodeStorage && n.MaxVolume == nil {
			add("storage node %q has no max_volume", n.Name)
		}
	}

	seen := make(map[Edge]bool, len(d.Edges))
	for _, e := range d.Edges {
		if !names[e.From] {
			add("edge %s: %w %q", e, ErrUnknownNode, e.From)
		}
		if !names[e.To] {
			add("edge %s: %w %q", e, ErrUnknownNode, e.To)
		}
		if e.From == e.To {
			add("edge %s: self loop", e)
		}
		if seen[e] {
			add("edge %s: %w", e, ErrDuplicateEdge)
		}
		seen[e] = true
	}

	for _, name := range sortedKeys(d.Parameters) {
		p := d.Parameters[name]
		if !paramTypes[p.Type] {
			add("parameter %q: unknown type %q", name, p.Type)
			continue
		}
		switch p.Type {
		case ParamConstant:
			if p.Value == nil {
				add("parameter %q: constant has no value", name)
			}
		case ParamMonthlyProfile:
			if len(p.Values) != 12 {
				add("parameter %q: monthly profile needs 12 values, got %d", name, len(p.Values))
			}
		case ParamDailyProfile:
			if len(p.Values) != 366 {
				add("parameter %q: daily profile needs 366 values, got %d", name, len(p.Values))
			}
		case ParamTableArray:
			if _, ok := d.Tables[p.Table]; !ok {
				add("parameter %q: unknown table %q", name, p.Table)
			}
			if p.Column == "" {
				add("parameter %q: tablearray has no column", name)
			}
		}
	}

	for _, name := range sortedKeys(d.Recorders) {
		r := d.Recorders[name]
		if !recorderTypes[r.Type] {
			add("recorder %q: unknown type %q", name, r.Type)
			continue
		}
		if r.Type == RecorderDeficit && r.Node == "" {
			continue
		}
		if !names[r.Node] {
			add("recorder %q: %w %q", name, ErrUnknownNode, r.Node)
		}
	}

	for _, name := range sortedKeys(d.Tables) {
		if d.Tables[name].URL == "" {
			add("table %q has no url", name)
		}
	}

	for _, s := range d.Scenarios {
		if s.Size < 1 {
			add("scenario %q: size must be at least 1", s.Name)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w:\n%w", ErrInvalidDocument, errors.Join(errs...))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
