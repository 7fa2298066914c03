package rules

import (
	"reflect"
	"testing"
)

func TestRequiredColumns(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		ds := table([]string{"id", "name"})
		res := runOne(single(ds), Rule{"type": "required_columns", "columns": []any{"id", "email", "phone"}})

		if len(res.Issues) != 2 {
			t.Fatalf("issues = %d, want 2", len(res.Issues))
		}
		is := res.Issues[0]
		if is.Column != "email" || is.IssueType != IssueMissingColumn || is.FileSide != SideSingle || is.Severity != SeverityError {
			t.Errorf("issue = %+v", is)
		}
		if is.RowIndex != nil {
			t.Errorf("RowIndex = %v, want nil", *is.RowIndex)
		}
		assertRows(t, "LeftRows", res.LeftRows, nil)
	})

	t.Run("compare", func(t *testing.T) {
		in := compare(table([]string{"id"}), table([]string{"key"}))
		res := runOne(in, Rule{
			"type":     "required_columns",
			"severity": "warning",
			"columns":  map[string]any{"left": []any{"id", "amount"}, "right": []any{"id"}},
		})

		var got []string
		for _, is := range res.Issues {
			got = append(got, string(is.FileSide)+":"+is.Column)
			if is.Severity != SeverityWarn {
				t.Errorf("severity = %s, want WARN", is.Severity)
			}
		}
		want := []string{"LEFT:amount", "RIGHT:id"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("issues = %v, want %v", got, want)
		}
	})
}

func TestRequiredNonNull_CompareSides(t *testing.T) {
	left := table([]string{"a"}, []any{"x"}, []any{" "})
	right := table([]string{"b"}, []any{nil}, []any{"y"}, []any{""})

	res := runOne(compare(left, right), Rule{
		"type":    "required_non_null",
		"columns": map[string]any{"left": []any{"a", "missing"}, "right": []any{"b"}},
	})

	if len(res.Issues) != 3 {
		t.Fatalf("issues = %d, want 3", len(res.Issues))
	}
	if res.Issues[0].IssueID != "null_LEFT_a_1" {
		t.Errorf("IssueID = %q", res.Issues[0].IssueID)
	}
	if res.Issues[0].Severity != SeverityWarn {
		t.Errorf("default severity = %s, want WARN", res.Issues[0].Severity)
	}
	assertRows(t, "LeftRows", res.LeftRows, []int{1})
	assertRows(t, "RightRows", res.RightRows, []int{0, 2})
}

func TestUniqueKey(t *testing.T) {
	t.Run("flags every occurrence", func(t *testing.T) {
		res := runOne(single(column("k", "A", "B", "A")), Rule{"type": "unique_key", "key": "k"})
		assertRows(t, "LeftRows", res.LeftRows, []int{0, 2})
		if len(res.Issues) != 2 || res.Issues[0].RecordKey != "A" || res.Issues[0].Severity != SeverityError {
			t.Errorf("issues = %+v", res.Issues)
		}
	})

	t.Run("absent keys are not duplicates", func(t *testing.T) {
		ds := table([]string{"k"}, []any{nil}, []any{nil}, []any{"A"})
		res := runOne(single(ds), Rule{"type": "unique_key", "key": "k"})
		if len(res.Issues) != 0 {
			t.Errorf("issues = %+v, want none", res.Issues)
		}
	})

	t.Run("compare checks sides independently", func(t *testing.T) {
		in := compare(column("id", "1", "1", "2"), column("ref", "2", "3", "3", "2"))
		res := runOne(in, Rule{"type": "unique_key", "key": map[string]any{"left": "id", "right": "ref"}})
		assertRows(t, "LeftRows", res.LeftRows, []int{0, 1})
		assertRows(t, "RightRows", res.RightRows, []int{0, 1, 2, 3})
	})
}

func TestAllowedValues(t *testing.T) {
	ds := table([]string{"status"}, []any{"open"}, []any{"closed"}, []any{nil}, []any{"1"})
	res := runOne(single(ds), Rule{"type": "allowed_values", "column": "status", "values": []any{"open", "closed", 1}})

	assertRows(t, "LeftRows", res.LeftRows, []int{2})
	if res.Issues[0].LeftValue != "" || res.Issues[0].IssueID != "allowed_status_2" {
		t.Errorf("issue = %+v", res.Issues[0])
	}
}

func TestAllowedValues_RightSide(t *testing.T) {
	in := compare(column("s", "bad"), column("s", "ok", "bad"))
	res := runOne(in, Rule{"type": "allowed_values", "column": "s", "values": []any{"ok"}, "side": "right"})

	assertRows(t, "LeftRows", res.LeftRows, nil)
	assertRows(t, "RightRows", res.RightRows, []int{1})
	is := res.Issues[0]
	if is.FileSide != SideRight || is.RightValue != "bad" || is.LeftValue != "" {
		t.Errorf("issue = %+v", is)
	}
}

func TestRegex(t *testing.T) {
	ds := column("sku", "AB-1", "xAB-2", "AB-3 trailing", "")

	res := runOne(single(ds), Rule{"type": "regex", "column": "sku", "pattern": `[A-Z]{2}-\d`})
	assertRows(t, "LeftRows", res.LeftRows, []int{1, 3})

	res = runOne(single(ds), Rule{"type": "regex", "column": "sku", "pattern": `a|b`})
	assertRows(t, "alternation anchored", res.LeftRows, []int{0, 1, 2, 3})

	res = runOne(single(ds), Rule{"type": "regex", "column": "sku", "pattern": `([`})
	if len(res.Issues) != 0 {
		t.Errorf("invalid pattern produced %d issues, want 0", len(res.Issues))
	}
}

func TestTypeChecks(t *testing.T) {
	tests := []struct {
		check string
		input []string
		want  []int
	}{
		{"integer", []string{"12", "1.5", "", "-3", "007"}, []int{1, 3}},
		{"float", []string{"1.5", " 2 ", "1e3", "abc", ""}, []int{3}},
		{"email", []string{"a@x.com", "a@x", "a b@x.com", ""}, []int{1, 2}},
		{"date", []string{"2024-01-05", "2024-01-05T10:00", "01/05/2024", ""}, []int{2}},
		{"uuid", []string{"anything"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.check, func(t *testing.T) {
			res := runOne(single(column("v", tt.input...)), Rule{"type": "type_checks", "column": "v", "check": tt.check})
			assertRows(t, "LeftRows", res.LeftRows, tt.want)
		})
	}
}

func TestRange(t *testing.T) {
	ds := column("amt", "0", "10", "-0.5", "10.01", "abc", "", " 5 ", "NaN")

	res := runOne(single(ds), Rule{"type": "range", "column": "amt", "min": 0, "max": 10})
	assertRows(t, "LeftRows", res.LeftRows, []int{2, 3})
	if res.Issues[0].LeftValue != "-0.5" || res.Issues[0].IssueType != IssueOutOfRange {
		t.Errorf("issue = %+v", res.Issues[0])
	}

	res = runOne(single(ds), Rule{"type": "range", "column": "amt", "max": 5.0})
	assertRows(t, "max only", res.LeftRows, []int{1, 3})

	res = runOne(single(ds), Rule{"type": "range", "column": "amt"})
	if len(res.Issues) != 0 {
		t.Errorf("range without bounds produced %d issues", len(res.Issues))
	}
}

func TestRowRules(t *testing.T) {
	ds := table([]string{"qty", "price", "Unit Cost"},
		[]any{"2", "10", "4"},
		[]any{"0", "5", "6"},
		[]any{"3", nil, "1"},
	)

	tests := []struct {
		name string
		rule Rule
		want []int
	}{
		{"numeric comparison", Rule{"expression": "qty <= 0"}, []int{1}},
		{"bracket access", Rule{"expression": `row["Unit Cost"] > 5`}, []int{1}},
		{"nil check", Rule{"expression": "price == nil"}, []int{2}},
		{"runtime error discards rule", Rule{"expression": "price * qty > 10"}, nil},
		{"non-boolean discards rule", Rule{"expression": "qty + 1"}, nil},
		{"compile error discards rule", Rule{"expression": "qty > ("}, nil},
		{"empty expression", Rule{"expression": ""}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rule["type"] = "row_rules"
			res := runOne(single(ds), tt.rule)
			assertRows(t, "LeftRows", res.LeftRows, tt.want)
		})
	}
}

func TestRowRules_ColumnTypes(t *testing.T) {
	ds := table([]string{"zip", "amount", "blank"},
		[]any{"02134", "10", nil},
		[]any{"N/A", "2.5", nil},
		[]any{nil, "-3", nil},
	)

	tests := []struct {
		name string
		expr string
		want []int
	}{
		{"mixed column stays text", `zip == "02134"`, []int{0}},
		{"string length on mixed column", `zip != nil && len(zip) != 5`, []int{1}},
		{"numeric column", "amount < 0", []int{2}},
		{"all-absent column", "blank == nil && amount > 5", []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runOne(single(ds), Rule{"type": "row_rules", "expression": tt.expr})
			assertRows(t, "LeftRows", res.LeftRows, tt.want)
		})
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want float64
	}{
		{"42", true, 42},
		{" -1.5 ", true, -1.5},
		{"1e3", true, 1000},
		{"NaN", false, 0},
		{"Inf", false, 0},
		{"0x1p3", false, 0},
		{"1_000", false, 0},
		{"abc", false, 0},
	}
	for _, tt := range tests {
		got, ok := parseDecimal(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseDecimal(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRowRules_Message(t *testing.T) {
	res := runOne(single(column("a", "1")), Rule{"type": "row_rules", "expression": "a == 1", "message": "a must not be 1"})
	if len(res.Issues) != 1 || res.Issues[0].Message != "a must not be 1" || res.Issues[0].IssueID != "row_rule_0" {
		t.Errorf("issues = %+v", res.Issues)
	}
}
