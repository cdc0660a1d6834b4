package engine

import "github.com/san-kum/flowlab/internal/document"

type recorder struct {
	name   string
	kind   string
	nodes  []*node
	total  float64
	values []float64
}

func (r *recorder) observe() {
	var v float64
	switch r.kind {
	case document.RecorderNode:
		v = r.nodes[0].through
	case document.RecorderStorage:
		v = r.nodes[0].volume
	case document.RecorderTotalFlow:
		r.total += r.nodes[0].through
		v = r.total
	case document.RecorderDeficit:
		for _, n := range r.nodes {
			v += n.deficit
		}
	}
	r.values = append(r.values, v)
}
