package dataset

import (
	"bytes"
	"strings"
	"testing"
)

func TestRead(t *testing.T) {
	input := "id,email, name \n1,a@x.com,Ann\n2,,Bob\n\n3,c@x.com\n"

	ds, err := Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	wantCols := []string{"id", "email", "name"}
	if got := ds.Columns(); strings.Join(got, ",") != strings.Join(wantCols, ",") {
		t.Errorf("Columns() = %v, want %v", got, wantCols)
	}
	if ds.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", ds.Len())
	}

	tests := []struct {
		row   int
		col   string
		want  Value
		found bool
	}{
		{0, "email", Text("a@x.com"), true},
		{1, "email", Null, true},
		{2, "name", Null, true},
		{2, "id", Text("3"), true},
		{0, "missing", Null, false},
	}
	for _, tt := range tests {
		got, found := ds.Value(tt.row, tt.col)
		if got != tt.want || found != tt.found {
			t.Errorf("Value(%d, %q) = %v, %v; want %v, %v", tt.row, tt.col, got, found, tt.want, tt.found)
		}
	}
}

func TestRead_KeepsRowsOfEmptyCells(t *testing.T) {
	input := "id,email\n1,a@x.com\n,\n\n3,c@x.com\n"

	ds, err := Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if ds.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", ds.Len())
	}

	for _, col := range []string{"id", "email"} {
		if got, _ := ds.Value(1, col); got != Null {
			t.Errorf("Value(1, %q) = %v, want Null", col, got)
		}
	}
	if got, _ := ds.Value(2, "id"); got != Text("3") {
		t.Errorf("Value(2, \"id\") = %v, want 3", got)
	}
}

func TestRead_Empty(t *testing.T) {
	if _, err := Read(strings.NewReader("")); err != ErrEmptyFile {
		t.Errorf("Read(\"\") error = %v, want ErrEmptyFile", err)
	}
}

func TestRead_BOMAndInvalidUTF8(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("name\nca")...)
	input = append(input, 0x80)
	input = append(input, []byte("fe\nwelt\n")...)

	ds, err := Read(bytes.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !ds.HasColumn("name") {
		t.Fatalf("BOM not stripped from header: %q", ds.Columns())
	}
	if v, _ := ds.Value(0, "name"); v.Text != "ca?fe" {
		t.Errorf("row 0 = %q, want %q", v.Text, "ca?fe")
	}
	if v, _ := ds.Value(1, "name"); v.Text != "welt" {
		t.Errorf("row 1 = %q, want %q", v.Text, "welt")
	}
}

func TestReadHeader(t *testing.T) {
	cols, err := ReadHeader(strings.NewReader("a, b ,c\n1,2,3\n"))
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if strings.Join(cols, "|") != "a|b|c" {
		t.Errorf("ReadHeader() = %q", cols)
	}
}

func TestNew_PadsAndTruncates(t *testing.T) {
	ds := New([]string{"a", "b"}, [][]Value{
		{Text("1")},
		{Text("1"), Text("2"), Text("3")},
	})
	if v, ok := ds.Value(0, "b"); !ok || v.Valid {
		t.Errorf("short row not padded with Null: %v", v)
	}
	if got := len(ds.Row(1)); got != 2 {
		t.Errorf("long row len = %d, want 2", got)
	}
}

func TestSamples(t *testing.T) {
	ds := FromRecords([]string{"x"}, [][]string{{"a"}, {""}, {"b"}, {"c"}})

	if got := ds.Samples("x", 0); strings.Join(got, "") != "abc" {
		t.Errorf("Samples(0) = %v", got)
	}
	if got := ds.Samples("x", 3); strings.Join(got, "") != "ab" {
		t.Errorf("Samples(3) = %v", got)
	}
	if got := ds.Samples("nope", 3); got != nil {
		t.Errorf("Samples(missing) = %v, want nil", got)
	}
}

func TestSubsetAndWriteCSV(t *testing.T) {
	ds := FromRecords([]string{"id", "v"}, [][]string{{"1", "a"}, {"2", ""}, {"3", "c"}})

	sub := ds.Subset([]int{0, 1, 7})
	if sub.Len() != 2 {
		t.Fatalf("Subset Len = %d, want 2", sub.Len())
	}

	var buf bytes.Buffer
	if err := sub.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	want := "id,v\n1,a\n2,\n"
	if buf.String() != want {
		t.Errorf("WriteCSV() = %q, want %q", buf.String(), want)
	}
}
