// Package dataset holds the in-memory tabular data a validation run works on.
//
// A Dataset is an ordered list of rows over a fixed, ordered set of named
// columns. Row positions are zero-based and never change once loaded, so
// issue row indexes and "bad row" subsets always refer to the source file.
// Cell values are optional strings: an empty CSV cell loads as absent.
package dataset

// Value is an optional string cell.
type Value struct {
	Text  string
	Valid bool
}

// Null is the absent value.
var Null = Value{}

// Text returns a present value holding s.
func Text(s string) Value {
	return Value{Text: s, Valid: true}
}

// OrEmpty returns the text of v, or "" when v is absent.
func (v Value) OrEmpty() string {
	if !v.Valid {
		return ""
	}
	return v.Text
}

// Dataset is an immutable table of optional string values.
type Dataset struct {
	columns []string
	index   map[string]int
	rows    [][]Value
}

// New builds a Dataset. Rows shorter than the header are padded with Null,
// longer rows are truncated. When a column name repeats, lookups by name
// resolve to its first occurrence.
func New(columns []string, rows [][]Value) *Dataset {
	cols := make([]string, len(columns))
	copy(cols, columns)

	index := make(map[string]int, len(cols))
	for i, c := range cols {
		if _, dup := index[c]; !dup {
			index[c] = i
		}
	}

	fixed := make([][]Value, len(rows))
	for i, row := range rows {
		r := make([]Value, len(cols))
		copy(r, row)
		fixed[i] = r
	}

	return &Dataset{columns: cols, index: index, rows: fixed}
}

// FromRecords builds a Dataset from raw string records, treating empty
// cells as absent.
func FromRecords(header []string, records [][]string) *Dataset {
	rows := make([][]Value, len(records))
	for i, rec := range records {
		row := make([]Value, len(rec))
		for j, cell := range rec {
			if cell != "" {
				row[j] = Text(cell)
			}
		}
		rows[i] = row
	}
	return New(header, rows)
}

// Columns returns the column names in file order.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.columns))
	copy(out, d.columns)
	return out
}

// HasColumn reports whether the dataset has a column with this name.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Len returns the number of data rows.
func (d *Dataset) Len() int {
	return len(d.rows)
}

// Value returns the cell at row position i in column name.
// The second result is false when the column does not exist.
func (d *Dataset) Value(i int, name string) (Value, bool) {
	j, ok := d.index[name]
	if !ok || i < 0 || i >= len(d.rows) {
		return Null, false
	}
	return d.rows[i][j], true
}

// Column returns every value of the named column in row order.
func (d *Dataset) Column(name string) ([]Value, bool) {
	j, ok := d.index[name]
	if !ok {
		return nil, false
	}
	out := make([]Value, len(d.rows))
	for i, row := range d.rows {
		out[i] = row[j]
	}
	return out, true
}

// Row returns a copy of the values at row position i, aligned with Columns.
func (d *Dataset) Row(i int) []Value {
	out := make([]Value, len(d.columns))
	copy(out, d.rows[i])
	return out
}

// Samples returns the present values of a column from the first limit rows.
// A limit of zero or less scans every row.
func (d *Dataset) Samples(name string, limit int) []string {
	j, ok := d.index[name]
	if !ok {
		return nil
	}
	n := len(d.rows)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]string, 0, n)
	for _, row := range d.rows[:n] {
		if row[j].Valid {
			out = append(out, row[j].Text)
		}
	}
	return out
}

// SampleAll returns Samples for every column, keyed by column name.
func (d *Dataset) SampleAll(limit int) map[string][]string {
	out := make(map[string][]string, len(d.columns))
	for _, c := range d.columns {
		if _, seen := out[c]; !seen {
			out[c] = d.Samples(c, limit)
		}
	}
	return out
}

// Subset returns a new Dataset holding the given row positions in
// ascending order. Positions out of range are ignored.
func (d *Dataset) Subset(positions []int) *Dataset {
	rows := make([][]Value, 0, len(positions))
	for _, p := range positions {
		if p >= 0 && p < len(d.rows) {
			rows = append(rows, d.rows[p])
		}
	}
	return New(d.columns, rows)
}
