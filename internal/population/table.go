package population

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Standard host columns.
const (
	ColumnAge   = "age"
	ColumnSex   = "sex"
	ColumnAlive = "alive"
)

var (
	// ErrNoColumn is returned when a column does not exist.
	ErrNoColumn = errors.New("no such column")

	// ErrColumnExists is returned when a column is created twice.
	ErrColumnExists = errors.New("column already exists")

	// ErrColumnType is returned when a column exists with another type.
	ErrColumnType = errors.New("column has a different type")
)

// Table is a simulant table. Simulant IDs are the row indices.
//
// Column getters return the backing slice; writes through it are visible
// to every reader. Table is not safe for concurrent use.
type Table struct {
	size      int
	strings   map[string][]string
	floats    map[string][]float64
	durations map[string][]time.Duration
	bools     map[string][]bool
}

// NewTable creates a table of n simulants with no columns.
func NewTable(n int) *Table {
	return &Table{
		size:      n,
		strings:   make(map[string][]string),
		floats:    make(map[string][]float64),
		durations: make(map[string][]time.Duration),
		bools:     make(map[string][]bool),
	}
}

// Len returns the number of simulants.
func (t *Table) Len() int { return t.size }

// HasColumn reports whether a column of any type exists.
func (t *Table) HasColumn(name string) bool {
	if _, ok := t.strings[name]; ok {
		return true
	}
	if _, ok := t.floats[name]; ok {
		return true
	}
	if _, ok := t.durations[name]; ok {
		return true
	}
	_, ok := t.bools[name]
	return ok
}

// Columns returns every column name, sorted.
func (t *Table) Columns() []string {
	var names []string
	for n := range t.strings {
		names = append(names, n)
	}
	for n := range t.floats {
		names = append(names, n)
	}
	for n := range t.durations {
		names = append(names, n)
	}
	for n := range t.bools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (t *Table) checkNew(name string) error {
	if t.HasColumn(name) {
		return fmt.Errorf("create %q: %w", name, ErrColumnExists)
	}
	return nil
}

func (t *Table) missing(name string) error {
	if t.HasColumn(name) {
		return fmt.Errorf("column %q: %w", name, ErrColumnType)
	}
	return fmt.Errorf("column %q: %w", name, ErrNoColumn)
}

// CreateStringColumn adds a string column filled with init.
func (t *Table) CreateStringColumn(name, init string) ([]string, error) {
	if err := t.checkNew(name); err != nil {
		return nil, err
	}
	col := make([]string, t.size)
	for i := range col {
		col[i] = init
	}
	t.strings[name] = col
	return col, nil
}

// CreateFloatColumn adds a zero-filled float column.
func (t *Table) CreateFloatColumn(name string) ([]float64, error) {
	if err := t.checkNew(name); err != nil {
		return nil, err
	}
	col := make([]float64, t.size)
	t.floats[name] = col
	return col, nil
}

// CreateDurationColumn adds a zero-filled duration column.
func (t *Table) CreateDurationColumn(name string) ([]time.Duration, error) {
	if err := t.checkNew(name); err != nil {
		return nil, err
	}
	col := make([]time.Duration, t.size)
	t.durations[name] = col
	return col, nil
}

// CreateBoolColumn adds a bool column filled with init.
func (t *Table) CreateBoolColumn(name string, init bool) ([]bool, error) {
	if err := t.checkNew(name); err != nil {
		return nil, err
	}
	col := make([]bool, t.size)
	if init {
		for i := range col {
			col[i] = true
		}
	}
	t.bools[name] = col
	return col, nil
}

// StringColumn returns a string column.
func (t *Table) StringColumn(name string) ([]string, error) {
	col, ok := t.strings[name]
	if !ok {
		return nil, t.missing(name)
	}
	return col, nil
}

// FloatColumn returns a float column.
func (t *Table) FloatColumn(name string) ([]float64, error) {
	col, ok := t.floats[name]
	if !ok {
		return nil, t.missing(name)
	}
	return col, nil
}

// DurationColumn returns a duration column.
func (t *Table) DurationColumn(name string) ([]time.Duration, error) {
	col, ok := t.durations[name]
	if !ok {
		return nil, t.missing(name)
	}
	return col, nil
}

// BoolColumn returns a bool column.
func (t *Table) BoolColumn(name string) ([]bool, error) {
	col, ok := t.bools[name]
	if !ok {
		return nil, t.missing(name)
	}
	return col, nil
}

// Index returns the simulants still in the simulation, in ID order. Without
// an alive column every simulant is included.
func (t *Table) Index() []int {
	alive, ok := t.bools[ColumnAlive]
	idx := make([]int, 0, t.size)
	for i := 0; i < t.size; i++ {
		if !ok || alive[i] {
			idx = append(idx, i)
		}
	}
	return idx
}
