package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes the header and every row. Absent values are written as
// empty cells.
func (d *Dataset) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(d.columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	rec := make([]string, len(d.columns))
	for i, row := range d.rows {
		for j, v := range row {
			rec[j] = v.OrEmpty()
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
