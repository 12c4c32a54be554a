package timeseries

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Panel is a monthly multi-column table for one region or area. The backing
// matrix is T x K (rows are months, columns are named variables), matching
// the layout the VAR estimator consumes.
type Panel struct {
	EntityID string
	Months   []time.Time

	cols   []string
	colIdx map[string]int
	data   *mat.Dense
}

// NewPanel builds a panel from named columns. All columns must share the
// month grid, which must be gap-free and increasing.
func NewPanel(entityID string, months []time.Time, cols []string, columns map[string][]float64) (*Panel, error) {
	if err := checkMonthGrid(months); err != nil {
		return nil, fmt.Errorf("panel %s: %w", entityID, err)
	}
	t, k := len(months), len(cols)
	if k == 0 {
		return nil, fmt.Errorf("panel %s: no columns", entityID)
	}
	data := mat.NewDense(t, k, nil)
	colIdx := make(map[string]int, k)
	for j, name := range cols {
		vals, ok := columns[name]
		if !ok {
			return nil, fmt.Errorf("panel %s: missing column %s", entityID, name)
		}
		if len(vals) != t {
			return nil, fmt.Errorf("panel %s: column %s has %d rows, want %d", entityID, name, len(vals), t)
		}
		for i, v := range vals {
			data.Set(i, j, v)
		}
		colIdx[name] = j
	}
	return &Panel{
		EntityID: entityID,
		Months:   months,
		cols:     append([]string(nil), cols...),
		colIdx:   colIdx,
		data:     data,
	}, nil
}

// Rows returns the number of monthly observations.
func (p *Panel) Rows() int { return len(p.Months) }

// Columns returns the ordered column names.
func (p *Panel) Columns() []string { return append([]string(nil), p.cols...) }

// HasColumn reports whether the panel carries the named column.
func (p *Panel) HasColumn(name string) bool {
	_, ok := p.colIdx[name]
	return ok
}

// Column extracts one column as a Series.
func (p *Panel) Column(name string) (*Series, error) {
	j, ok := p.colIdx[name]
	if !ok {
		return nil, fmt.Errorf("panel %s: no column %s", p.EntityID, name)
	}
	values := make([]float64, p.Rows())
	for i := range values {
		values[i] = p.data.At(i, j)
	}
	return &Series{Name: name, Months: p.Months, Values: values}, nil
}

// Matrix assembles the named columns into a fresh T x len(names) matrix in
// the given order.
func (p *Panel) Matrix(names ...string) (*mat.Dense, error) {
	out := mat.NewDense(p.Rows(), len(names), nil)
	for j, name := range names {
		src, ok := p.colIdx[name]
		if !ok {
			return nil, fmt.Errorf("panel %s: no column %s", p.EntityID, name)
		}
		for i := 0; i < p.Rows(); i++ {
			out.Set(i, j, p.data.At(i, src))
		}
	}
	return out, nil
}

// Window returns the sub-panel covering rows [i, j). The backing data is
// copied so callers can mutate windows independently.
func (p *Panel) Window(i, j int) *Panel {
	t := j - i
	data := mat.NewDense(t, len(p.cols), nil)
	for r := 0; r < t; r++ {
		for c := range p.cols {
			data.Set(r, c, p.data.At(i+r, c))
		}
	}
	colIdx := make(map[string]int, len(p.cols))
	for c, name := range p.cols {
		colIdx[name] = c
	}
	return &Panel{
		EntityID: p.EntityID,
		Months:   p.Months[i:j],
		cols:     append([]string(nil), p.cols...),
		colIdx:   colIdx,
		data:     data,
	}
}

// Clone deep-copies the panel.
func (p *Panel) Clone() *Panel {
	return p.Window(0, p.Rows())
}

// Shift adds delta to every value in the named column, in place. Used by
// scenario adjustments before fitting.
func (p *Panel) Shift(name string, delta float64) error {
	j, ok := p.colIdx[name]
	if !ok {
		return fmt.Errorf("panel %s: no column %s", p.EntityID, name)
	}
	for i := 0; i < p.Rows(); i++ {
		p.data.Set(i, j, p.data.At(i, j)+delta)
	}
	return nil
}

// At returns the value at row i of the named column.
func (p *Panel) At(i int, name string) (float64, error) {
	j, ok := p.colIdx[name]
	if !ok {
		return 0, fmt.Errorf("panel %s: no column %s", p.EntityID, name)
	}
	return p.data.At(i, j), nil
}
