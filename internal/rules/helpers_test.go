package rules

import (
	"context"
	"reflect"
	"testing"

	"github.com/JonMunkholm/reconcile/internal/dataset"
)

// table builds a dataset; a nil cell is absent, strings are present.
func table(cols []string, rows ...[]any) *dataset.Dataset {
	out := make([][]dataset.Value, len(rows))
	for i, row := range rows {
		vals := make([]dataset.Value, len(row))
		for j, cell := range row {
			if s, ok := cell.(string); ok {
				vals[j] = dataset.Text(s)
			}
		}
		out[i] = vals
	}
	return dataset.New(cols, out)
}

// column builds a one-column dataset of present values.
func column(name string, values ...string) *dataset.Dataset {
	rows := make([][]any, len(values))
	for i, v := range values {
		rows[i] = []any{v}
	}
	return table([]string{name}, rows...)
}

func single(ds *dataset.Dataset) Input {
	return Input{RunID: "run1", Mode: ModeSingle, Left: ds}
}

func compare(left, right *dataset.Dataset) Input {
	return Input{RunID: "run1", Mode: ModeCompare, Left: left, Right: right}
}

func runOne(in Input, r Rule) Result {
	return Run(context.Background(), in, []Rule{r})
}

func rowsOf(t *testing.T, issues []Issue) []int {
	t.Helper()
	out := make([]int, 0, len(issues))
	for _, is := range issues {
		if is.RowIndex == nil {
			t.Fatalf("issue %s has no row index", is.IssueID)
		}
		out = append(out, *is.RowIndex)
	}
	return out
}

func assertRows(t *testing.T, name string, got RowSet, want []int) {
	t.Helper()
	if want == nil {
		want = []int{}
	}
	if g := got.Sorted(); !reflect.DeepEqual(g, want) {
		t.Errorf("%s = %v, want %v", name, g, want)
	}
}
