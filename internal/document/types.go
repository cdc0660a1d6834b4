package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the layout used for timestepper dates.
const DateLayout = "2006-01-02"

// Node types understood by the built-in engine.
const (
	NodeInput     = "input"
	NodeOutput    = "output"
	NodeLink      = "link"
	NodeStorage   = "storage"
	NodeCatchment = "catchment"
)

// Parameter types.
const (
	ParamConstant       = "constant"
	ParamMonthlyProfile = "monthlyprofile"
	ParamDailyProfile   = "dailyprofile"
	ParamTableArray     = "tablearray"
)

// Recorder types.
const (
	RecorderNode      = "node"
	RecorderStorage   = "storage"
	RecorderTotalFlow = "totalflow"
	RecorderDeficit   = "deficit"
)

var (
	nodeTypes     = map[string]bool{NodeInput: true, NodeOutput: true, NodeLink: true, NodeStorage: true, NodeCatchment: true}
	paramTypes    = map[string]bool{ParamConstant: true, ParamMonthlyProfile: true, ParamDailyProfile: true, ParamTableArray: true}
	recorderTypes = map[string]bool{RecorderNode: true, RecorderStorage: true, RecorderTotalFlow: true, RecorderDeficit: true}
)

type Document struct {
	Metadata    Metadata             `json:"metadata"`
	Timestepper Timestepper          `json:"timestepper"`
	Nodes       []Node               `json:"nodes"`
	Edges       []Edge               `json:"edges"`
	Parameters  map[string]Parameter `json:"parameters,omitempty"`
	Recorders   map[string]Recorder  `json:"recorders,omitempty"`
	Tables      map[string]Table     `json:"tables,omitempty"`
	Scenarios   []Scenario           `json:"scenarios,omitempty"`
}

type Metadata struct {
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	MinimumVersion string `json:"minimum_version,omitempty"`
}

// Timestepper is the simulated window. Timestep is a whole number of days.
type Timestepper struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timestep int    `json:"timestep,omitempty"`
}

// Window parses the timestepper into its start, end and step length.
func (t Timestepper) Window() (start, end time.Time, step time.Duration, err error) {
	start, err = time.Parse(DateLayout, t.Start)
	if err != nil {
		return start, end, 0, fmt.Errorf("timestepper start: %w", err)
	}
	end, err = time.Parse(DateLayout, t.End)
	if err != nil {
		return start, end, 0, fmt.Errorf("timestepper end: %w", err)
	}
	days := t.Timestep
	if days == 0 {
		days = 1
	}
	if days < 0 {
		return start, end, 0, fmt.Errorf("timestepper timestep must be positive, got %d", days)
	}
	if end.Before(start) {
		return start, end, 0, fmt.Errorf("timestepper end %s is before start %s", t.End, t.Start)
	}
	return start, end, time.Duration(days) * 24 * time.Hour, nil
}

type Node struct {
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	Comment         string   `json:"comment,omitempty"`
	MaxFlow         *Value   `json:"max_flow,omitempty"`
	MinFlow         *Value   `json:"min_flow,omitempty"`
	Flow            *Value   `json:"flow,omitempty"`
	Cost            *Value   `json:"cost,omitempty"`
	MaxVolume       *Value   `json:"max_volume,omitempty"`
	InitialVolume   *float64 `json:"initial_volume,omitempty"`
	InitialVolumePC *float64 `json:"initial_volume_pc,omitempty"`
}

// values returns the node's parameterisable attributes keyed by JSON name.
func (n Node) values() map[string]*Value {
	return map[string]*Value{
		"max_flow":   n.MaxFlow,
		"min_flow":   n.MinFlow,
		"flow":       n.Flow,
		"cost":       n.Cost,
		"max_volume": n.MaxVolume,
	}
}

// Value is a node attribute: either a literal number or the name of a parameter.
type Value struct {
	Const *float64
	Ref   string
}

func Const(v float64) *Value { return &Value{Const: &v} }
func Ref(name string) *Value { return &Value{Ref: name} }

func (v Value) IsRef() bool { return v.Ref != "" }

func (v Value) String() string {
	if v.IsRef() {
		return v.Ref
	}
	if v.Const != nil {
		return strconv.FormatFloat(*v.Const, 'g', -1, 64)
	}
	return ""
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return ErrBadValue
		}
		*v = Value{Ref: s}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %s", ErrBadValue, data)
	}
	*v = Value{Const: &f}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsRef() {
		return json.Marshal(v.Ref)
	}
	if v.Const == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*v.Const)
}

// Edge is a directed connection, serialised as a two-element array.
type Edge struct {
	From string
	To   string
}

func (e *Edge) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("edge: %w", err)
	}
	if len(pair) < 2 {
		return fmt.Errorf("edge: expected [from, to], got %d elements", len(pair))
	}
	e.From, e.To = pair[0], pair[1]
	return nil
}

func (e Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{e.From, e.To})
}

func (e Edge) String() string { return e.From + " -> " + e.To }

type Parameter struct {
	Type   string    `json:"type"`
	Value  *float64  `json:"value,omitempty"`
	Values []float64 `json:"values,omitempty"`
	Table  string    `json:"table,omitempty"`
	Column string    `json:"column,omitempty"`
}

type Recorder struct {
	Type string `json:"type"`
	Node string `json:"node,omitempty"`
}

// Table is a CSV file. URL is resolved against the document's base path.
type Table struct {
	URL      string `json:"url"`
	IndexCol string `json:"index_col,omitempty"`
}

type Scenario struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}
