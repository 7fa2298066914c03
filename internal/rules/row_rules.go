package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/reconcile/internal/dataset"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

const defaultRowRuleMessage = "Row rule failed"

type rowRules struct {
	severity Severity
	message  string
	rule     Rule
	program  *vm.Program
}

func decodeRowRules(r Rule) Validator {
	v := &rowRules{severity: r.severity(SeverityWarn), message: defaultRowRuleMessage, rule: r}
	if msg, ok := r.str("message"); ok && msg != "" {
		v.message = msg
	}
	if src, ok := r.str("expression"); ok && strings.TrimSpace(src) != "" {
		v.program, _ = expr.Compile(src, expr.AllowUndefinedVariables())
	}
	return v
}

func (v *rowRules) Type() string { return TypeRowRules }

// Validate flags rows where the expression is true. Columns are exposed as
// variables and all of them as the map row, for names that are not
// identifiers. A column is float64 only when every present value in it is
// a number, otherwise string; absent cells are nil. A compile error, a
// runtime error on any row, or a non-boolean result discards the whole rule.
func (v *rowRules) Validate(in Input) Result {
	t := targetFor(in, v.rule)
	if v.program == nil || t.ds == nil {
		return newResult()
	}

	mask, err := v.evaluate(t.ds)
	if err != nil {
		return newResult()
	}

	c := newCollector(in, v.severity)
	for i, bad := range mask {
		if !bad {
			continue
		}
		is := Issue{
			IssueID:   fmt.Sprintf("row_rule_%d", i),
			IssueType: IssueRowRule,
			Message:   v.message,
			FileSide:  t.side,
			RowIndex:  rowPtr(i),
		}
		if !c.add(is, t, i) {
			break
		}
	}
	return c.res
}

func (v *rowRules) evaluate(ds *dataset.Dataset) ([]bool, error) {
	cols := ds.Columns()
	numeric := numericColumns(ds)
	mask := make([]bool, ds.Len())

	for i := range mask {
		out, err := expr.Run(v.program, rowEnv(cols, numeric, ds.Row(i)))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		switch b := out.(type) {
		case bool:
			mask[i] = b
		case nil:
		default:
			return nil, fmt.Errorf("row %d: expression returned %T, want bool", i, out)
		}
	}
	return mask, nil
}

// numericColumns reports, per column position, whether every present value
// parses as a decimal number. A column with no present values is text.
func numericColumns(ds *dataset.Dataset) []bool {
	cols := ds.Columns()
	out := make([]bool, len(cols))
	for j, col := range cols {
		values, _ := ds.Column(col)
		seen := false
		out[j] = true
		for _, val := range values {
			if !val.Valid {
				continue
			}
			seen = true
			if _, ok := parseDecimal(val.Text); !ok {
				out[j] = false
				break
			}
		}
		out[j] = out[j] && seen
	}
	return out
}

// parseDecimal accepts plain decimal notation only; NaN, Inf and hex
// floats stay text.
func parseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(strings.ToLower(s), "xnip_") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func rowEnv(cols []string, numeric []bool, values []dataset.Value) map[string]any {
	row := make(map[string]any, len(cols))
	for j, col := range cols {
		if _, dup := row[col]; dup {
			continue
		}
		row[col] = exprValue(values[j], numeric[j])
	}

	env := make(map[string]any, len(row)+1)
	for k, val := range row {
		env[k] = val
	}
	env["row"] = row
	return env
}

func exprValue(v dataset.Value, numeric bool) any {
	if !v.Valid {
		return nil
	}
	if numeric {
		f, _ := parseDecimal(v.Text)
		return f
	}
	return v.Text
}
