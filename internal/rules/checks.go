package rules

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

type requiredColumns struct {
	severity    Severity
	left, right []string
}

func decodeRequiredColumns(r Rule) Validator {
	left, right := r.lists("columns")
	return &requiredColumns{severity: r.severity(SeverityError), left: left, right: right}
}

func (v *requiredColumns) Type() string { return TypeRequiredColumns }

// Validate reports one issue per declared column the file lacks. No rows
// are flagged.
func (v *requiredColumns) Validate(in Input) Result {
	c := newCollector(in, v.severity)
	lt, rt := sideTargets(in)

	for _, col := range v.left {
		if lt.ds != nil && !lt.ds.HasColumn(col) {
			c.push(Issue{
				IssueID:   "missing_left_" + col,
				IssueType: IssueMissingColumn,
				Message:   fmt.Sprintf("Missing required column %s in left file", col),
				FileSide:  lt.side,
				Column:    col,
			})
		}
	}
	if in.compare() {
		for _, col := range v.right {
			if !rt.ds.HasColumn(col) {
				c.push(Issue{
					IssueID:   "missing_right_" + col,
					IssueType: IssueMissingColumn,
					Message:   fmt.Sprintf("Missing required column %s in right file", col),
					FileSide:  SideRight,
					Column:    col,
				})
			}
		}
	}
	return c.res
}

type requiredNonNull struct {
	severity    Severity
	left, right []string
}

func decodeRequiredNonNull(r Rule) Validator {
	left, right := r.lists("columns")
	return &requiredNonNull{severity: r.severity(SeverityWarn), left: left, right: right}
}

func (v *requiredNonNull) Type() string { return TypeRequiredNonNull }

// Validate flags rows whose value is absent or blank after trimming.
func (v *requiredNonNull) Validate(in Input) Result {
	c := newCollector(in, v.severity)
	lt, rt := sideTargets(in)

	check := func(t target, cols []string) bool {
		if t.ds == nil {
			return true
		}
		for _, col := range cols {
			values, ok := t.ds.Column(col)
			if !ok {
				continue
			}
			for i, val := range values {
				if val.Valid && strings.TrimSpace(val.Text) != "" {
					continue
				}
				added := c.add(Issue{
					IssueID:   fmt.Sprintf("null_%s_%s_%d", t.side, col, i),
					IssueType: IssueNullValue,
					Message:   fmt.Sprintf("Null or blank value in %s", col),
					FileSide:  t.side,
					RowIndex:  rowPtr(i),
					Column:    col,
				}, t, i)
				if !added {
					return false
				}
			}
		}
		return true
	}

	if check(lt, v.left) && in.compare() {
		check(rt, v.right)
	}
	return c.res
}

type uniqueKey struct {
	severity    Severity
	left, right string
}

func decodeUniqueKey(r Rule) Validator {
	left, right := r.pair("key")
	return &uniqueKey{severity: r.severity(SeverityError), left: left, right: right}
}

func (v *uniqueKey) Type() string { return TypeUniqueKey }

// Validate flags every row whose key value occurs more than once,
// including the first occurrence. Absent keys are not duplicates.
func (v *uniqueKey) Validate(in Input) Result {
	c := newCollector(in, v.severity)
	lt, rt := sideTargets(in)

	check := func(t target, col string) bool {
		if t.ds == nil || col == "" {
			return true
		}
		values, ok := t.ds.Column(col)
		if !ok {
			return true
		}
		counts := make(map[string]int, len(values))
		for _, val := range values {
			if val.Valid {
				counts[val.Text]++
			}
		}
		for i, val := range values {
			if !val.Valid || counts[val.Text] < 2 {
				continue
			}
			added := c.add(Issue{
				IssueID:   fmt.Sprintf("dup_%s_%s_%d", t.side, col, i),
				IssueType: IssueDuplicateKey,
				Message:   fmt.Sprintf("Duplicate key in %s", col),
				FileSide:  t.side,
				RowIndex:  rowPtr(i),
				Column:    col,
				RecordKey: val.Text,
			}, t, i)
			if !added {
				return false
			}
		}
		return true
	}

	if check(lt, v.left) && in.compare() {
		check(rt, v.right)
	}
	return c.res
}

// columnRule holds the fields shared by single-column rules.
type columnRule struct {
	severity Severity
	column   string
	rule     Rule
}

func decodeColumnRule(r Rule) columnRule {
	col, _ := r.str("column")
	return columnRule{severity: r.severity(SeverityWarn), column: col, rule: r}
}

// scan passes each value of the target column to build, with absent
// values as "", and records an issue for every row build rejects.
func (cr columnRule) scan(in Input, build func(i int, value string) (Issue, bool)) Result {
	t := targetFor(in, cr.rule)
	c := newCollector(in, cr.severity)
	if t.ds == nil || cr.column == "" {
		return c.res
	}
	values, ok := t.ds.Column(cr.column)
	if !ok {
		return c.res
	}
	for i, val := range values {
		is, bad := build(i, val.OrEmpty())
		if !bad {
			continue
		}
		is.FileSide = t.side
		is.RowIndex = rowPtr(i)
		is.Column = cr.column
		if t.right {
			is.RightValue, is.LeftValue = is.LeftValue, ""
		}
		if !c.add(is, t, i) {
			break
		}
	}
	return c.res
}

type allowedValues struct {
	columnRule
	allowed map[string]bool
}

func decodeAllowedValues(r Rule) Validator {
	allowed := make(map[string]bool)
	for _, s := range r.strList("values") {
		allowed[s] = true
	}
	return &allowedValues{columnRule: decodeColumnRule(r), allowed: allowed}
}

func (v *allowedValues) Type() string { return TypeAllowedValues }

// Validate flags values outside the allow-set. Absent values compare as "".
func (v *allowedValues) Validate(in Input) Result {
	return v.scan(in, func(i int, value string) (Issue, bool) {
		if v.allowed[value] {
			return Issue{}, false
		}
		return Issue{
			IssueID:   fmt.Sprintf("allowed_%s_%d", v.column, i),
			IssueType: IssueDisallowedValue,
			Message:   fmt.Sprintf("Value not allowed in %s", v.column),
			LeftValue: value,
		}, true
	})
}

type regexRule struct {
	columnRule
	re *regexp.Regexp
}

func decodeRegex(r Rule) Validator {
	v := &regexRule{columnRule: decodeColumnRule(r)}
	if p, ok := r.str("pattern"); ok && p != "" {
		v.re, _ = regexp.Compile("^(?:" + p + ")")
	}
	return v
}

func (v *regexRule) Type() string { return TypeRegex }

// Validate flags values that do not match the pattern at their start.
// A missing or invalid pattern disables the rule.
func (v *regexRule) Validate(in Input) Result {
	if v.re == nil {
		return newResult()
	}
	return v.scan(in, func(i int, value string) (Issue, bool) {
		if v.re.MatchString(value) {
			return Issue{}, false
		}
		return Issue{
			IssueID:   fmt.Sprintf("regex_%s_%d", v.column, i),
			IssueType: IssueRegexMismatch,
			Message:   fmt.Sprintf("Value does not match regex for %s", v.column),
			LeftValue: value,
		}, true
	})
}

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
)

// typePredicates are the checks type_checks understands. Unknown checks
// accept every value.
var typePredicates = map[string]func(string) bool{
	"integer": isAllDigits,
	"float": func(s string) bool {
		_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return err == nil
	},
	"email": emailPattern.MatchString,
	"date":  datePattern.MatchString,
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

type typeChecks struct {
	columnRule
	check string
}

func decodeTypeChecks(r Rule) Validator {
	check, _ := r.str("check")
	return &typeChecks{columnRule: decodeColumnRule(r), check: check}
}

func (v *typeChecks) Type() string { return TypeTypeChecks }

// Validate flags non-empty values failing the declared check.
func (v *typeChecks) Validate(in Input) Result {
	pred, ok := typePredicates[v.check]
	if !ok {
		return newResult()
	}
	return v.scan(in, func(i int, value string) (Issue, bool) {
		if value == "" || pred(value) {
			return Issue{}, false
		}
		return Issue{
			IssueID:   fmt.Sprintf("type_%s_%d", v.column, i),
			IssueType: IssueTypeMismatch,
			Message:   fmt.Sprintf("Value does not match type %s in %s", v.check, v.column),
			LeftValue: value,
		}, true
	})
}

type rangeRule struct {
	columnRule
	min, max       float64
	hasMin, hasMax bool
}

func decodeRange(r Rule) Validator {
	v := &rangeRule{columnRule: decodeColumnRule(r)}
	v.min, v.hasMin = r.float("min")
	v.max, v.hasMax = r.float("max")
	return v
}

func (v *rangeRule) Type() string { return TypeRange }

// Validate flags numbers below min or above max. Both bounds are
// inclusive; values that do not parse as numbers are skipped.
func (v *rangeRule) Validate(in Input) Result {
	if !v.hasMin && !v.hasMax {
		return newResult()
	}
	return v.scan(in, func(i int, value string) (Issue, bool) {
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || math.IsNaN(f) {
			return Issue{}, false
		}
		if (v.hasMin && f < v.min) || (v.hasMax && f > v.max) {
			return Issue{
				IssueID:   fmt.Sprintf("range_%s_%d", v.column, i),
				IssueType: IssueOutOfRange,
				Message:   fmt.Sprintf("Value out of range in %s", v.column),
				LeftValue: value,
			}, true
		}
		return Issue{}, false
	})
}
