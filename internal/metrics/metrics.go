package metrics

import (
	"math"
	"sort"

	"github.com/san-kum/flowlab/internal/document"
)

// Metric folds a recorder series into one number.
type Metric interface {
	Name() string
	Observe(v float64)
	Value() float64
	Reset()
}

type Mean struct {
	sum     float64
	samples int
}

func (m *Mean) Name() string { return "mean" }

func (m *Mean) Observe(v float64) {
	m.sum += v
	m.samples++
}

func (m *Mean) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *Mean) Reset() { *m = Mean{} }

type Min struct {
	min  float64
	seen bool
}

func (m *Min) Name() string { return "min" }

func (m *Min) Observe(v float64) {
	if !m.seen || v < m.min {
		m.min = v
	}
	m.seen = true
}

func (m *Min) Value() float64 { return m.min }

func (m *Min) Reset() { *m = Min{} }

type Max struct {
	max  float64
	seen bool
}

func (m *Max) Name() string { return "max" }

func (m *Max) Observe(v float64) {
	if !m.seen || v > m.max {
		m.max = v
	}
	m.seen = true
}

func (m *Max) Value() float64 { return m.max }

func (m *Max) Reset() { *m = Max{} }

type Final struct {
	last float64
}

func (m *Final) Name() string { return "final" }

func (m *Final) Observe(v float64) { m.last = v }

func (m *Final) Value() float64 { return m.last }

func (m *Final) Reset() { m.last = 0 }

type Total struct {
	sum float64
}

func (m *Total) Name() string { return "total" }

func (m *Total) Observe(v float64) { m.sum += v }

func (m *Total) Value() float64 { return m.sum }

func (m *Total) Reset() { m.sum = 0 }

// Reliability is the fraction of periods whose deficit stays within tolerance.
// An empty series is fully reliable.
type Reliability struct {
	tolerance float64
	met       int
	samples   int
}

func NewReliability(tolerance float64) *Reliability {
	return &Reliability{tolerance: tolerance}
}

func (r *Reliability) Name() string { return "reliability" }

func (r *Reliability) Observe(v float64) {
	r.samples++
	if math.Abs(v) <= r.tolerance {
		r.met++
	}
}

func (r *Reliability) Value() float64 {
	if r.samples == 0 {
		return 1
	}
	return float64(r.met) / float64(r.samples)
}

func (r *Reliability) Reset() {
	r.met = 0
	r.samples = 0
}

const deficitTolerance = 1e-6

// ForRecorder returns the metrics reported for a recorder type.
func ForRecorder(kind string) []Metric {
	switch kind {
	case document.RecorderStorage:
		return []Metric{&Min{}, &Max{}, &Final{}}
	case document.RecorderTotalFlow:
		return []Metric{&Final{}}
	case document.RecorderDeficit:
		return []Metric{&Total{}, &Max{}, NewReliability(deficitTolerance)}
	default:
		return []Metric{&Mean{}, &Min{}, &Max{}}
	}
}

// Summarize computes every metric of every recorder in values. Keys are
// "<recorder>.<metric>". Recorders missing from kinds get the node metrics.
func Summarize(kinds map[string]string, values map[string][]float64) map[string]float64 {
	out := make(map[string]float64)
	for name, series := range values {
		for _, m := range ForRecorder(kinds[name]) {
			for _, v := range series {
				m.Observe(v)
			}
			out[name+"."+m.Name()] = m.Value()
		}
	}
	return out
}

// Keys returns the summary keys in sorted order.
func Keys(summary map[string]float64) []string {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RecorderKinds maps recorder names to their types.
func RecorderKinds(doc *document.Document) map[string]string {
	kinds := make(map[string]string, len(doc.Recorders))
	for name, r := range doc.Recorders {
		kinds[name] = r.Type
	}
	return kinds
}
