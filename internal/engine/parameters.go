package engine

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/san-kum/flowlab/internal/document"
	"github.com/san-kum/flowlab/internal/runner"
)

// valueFn evaluates an attribute for a timestep.
type valueFn func(runner.Timestep) float64

func constant(v float64) valueFn {
	return func(runner.Timestep) float64 { return v }
}

func monthly(values []float64) valueFn {
	return func(ts runner.Timestep) float64 {
		return values[int(ts.Period.Month())-1]
	}
}

// daily indexes a 366-entry profile; non-leap years skip Feb 29.
func daily(values []float64) valueFn {
	return func(ts runner.Timestep) float64 {
		day := ts.Period.YearDay() - 1
		if !isLeap(ts.Period.Year()) && day >= 59 {
			day++
		}
		return values[day]
	}
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// series returns one value per timestep index, holding the last value once the
// series runs out.
func series(values []float64) valueFn {
	return func(ts runner.Timestep) float64 {
		if len(values) == 0 {
			return 0
		}
		i := ts.Index
		if i >= len(values) {
			i = len(values) - 1
		}
		return values[i]
	}
}

type tableCache struct {
	basePath string
	tables   map[string]document.Table
	loaded   map[string]map[string][]float64
}

func newTableCache(basePath string, tables map[string]document.Table) *tableCache {
	return &tableCache{basePath: basePath, tables: tables, loaded: make(map[string]map[string][]float64)}
}

func (c *tableCache) column(table, column string) ([]float64, error) {
	cols, ok := c.loaded[table]
	if !ok {
		t, ok := c.tables[table]
		if !ok {
			return nil, fmt.Errorf("unknown table %q", table)
		}
		var err error
		cols, err = readCSVColumns(document.ResolvePath(c.basePath, t.URL), t.IndexCol)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", table, err)
		}
		c.loaded[table] = cols
	}
	values, ok := cols[column]
	if !ok {
		return nil, fmt.Errorf("table %q has no column %q", table, column)
	}
	return values, nil
}

func readCSVColumns(path, indexCol string) (map[string][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}

	header := records[0]
	cols := make(map[string][]float64, len(header))
	for row, record := range records[1:] {
		for i, name := range header {
			name = strings.TrimSpace(name)
			if name == indexCol || i >= len(record) {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d column %q: %w", path, row+2, name, err)
			}
			cols[name] = append(cols[name], v)
		}
	}
	return cols, nil
}

func buildParameters(doc *document.Document, tables *tableCache) (map[string]valueFn, error) {
	params := make(map[string]valueFn, len(doc.Parameters))
	for name, p := range doc.Parameters {
		switch p.Type {
		case document.ParamConstant:
			params[name] = constant(*p.Value)
		case document.ParamMonthlyProfile:
			params[name] = monthly(p.Values)
		case document.ParamDailyProfile:
			params[name] = daily(p.Values)
		case document.ParamTableArray:
			values, err := tables.column(p.Table, p.Column)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", name, err)
			}
			params[name] = series(values)
		default:
			return nil, fmt.Errorf("parameter %q: unsupported type %q", name, p.Type)
		}
	}
	return params, nil
}

// resolve turns a document value into a valueFn; an unset value yields def.
func resolve(v *document.Value, params map[string]valueFn, def float64) (valueFn, error) {
	if v == nil {
		return constant(def), nil
	}
	if v.IsRef() {
		fn, ok := params[v.Ref]
		if !ok {
			return nil, fmt.Errorf("unknown parameter %q", v.Ref)
		}
		return fn, nil
	}
	if v.Const == nil || math.IsNaN(*v.Const) {
		return constant(def), nil
	}
	return constant(*v.Const), nil
}
