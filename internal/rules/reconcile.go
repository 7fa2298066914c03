package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/JonMunkholm/reconcile/internal/dataset"
	"github.com/JonMunkholm/reconcile/internal/normalize"
)

type crossFileMatch struct {
	severity    Severity
	left, right string
}

func decodeCrossFileMatch(r Rule) Validator {
	left, right := r.pair("key")
	return &crossFileMatch{severity: r.severity(SeverityWarn), left: left, right: right}
}

func (v *crossFileMatch) Type() string { return TypeCrossFileMatch }

// Validate reports key values present on one side only, left-only values
// first, each in first-occurrence order. Absent keys are ignored and no
// rows are flagged.
func (v *crossFileMatch) Validate(in Input) Result {
	c := newCollector(in, v.severity)
	if !in.compare() || v.left == "" || v.right == "" {
		return c.res
	}
	leftKeys, lok := distinctKeys(in.Left, v.left)
	rightKeys, rok := distinctKeys(in.Right, v.right)
	if !lok || !rok {
		return c.res
	}

	leftSet := make(map[string]bool, len(leftKeys))
	for _, k := range leftKeys {
		leftSet[k] = true
	}
	rightSet := make(map[string]bool, len(rightKeys))
	for _, k := range rightKeys {
		rightSet[k] = true
	}

	for _, k := range leftKeys {
		if rightSet[k] {
			continue
		}
		if !c.push(Issue{
			IssueID:   "missing_right_" + k,
			IssueType: IssueMissingInRight,
			Message:   "Key missing from right file",
			FileSide:  SideLeft,
			RecordKey: k,
		}) {
			return c.res
		}
	}
	for _, k := range rightKeys {
		if leftSet[k] {
			continue
		}
		if !c.push(Issue{
			IssueID:   "missing_left_" + k,
			IssueType: IssueMissingInLeft,
			Message:   "Key missing from left file",
			FileSide:  SideRight,
			RecordKey: k,
		}) {
			return c.res
		}
	}
	return c.res
}

func distinctKeys(ds *dataset.Dataset, col string) ([]string, bool) {
	values, ok := ds.Column(col)
	if !ok {
		return nil, false
	}
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		if v.Valid && !seen[v.Text] {
			seen[v.Text] = true
			out = append(out, v.Text)
		}
	}
	return out, true
}

type compareFields struct {
	severity          Severity
	fields            []string
	ignoreIfBothBlank bool
	tolerance         float64
	hasTolerance      bool
}

func decodeCompareFields(r Rule) Validator {
	v := &compareFields{
		severity:          r.severity(SeverityWarn),
		fields:            r.strList("fields"),
		ignoreIfBothBlank: r.boolean("ignore_if_both_blank"),
	}
	v.tolerance, v.hasTolerance = r.float("tolerance")
	return v
}

func (v *compareFields) Type() string { return TypeCompareFields }

// joinedRow is one inner-join match between a left and a right row.
type joinedRow struct {
	left, right int
	key         string
}

// Validate joins both files on the mapping keys and compares each mapped
// field after normalization and value remapping. A mismatch flags the left
// and right rows of that match. Without a mapping, keys, or key columns
// the rule does nothing.
func (v *compareFields) Validate(in Input) Result {
	c := newCollector(in, v.severity)
	m := in.Mapping
	if !in.compare() || !m.HasKeys() {
		return c.res
	}
	if !in.Left.HasColumn(m.Keys.Left) || !in.Right.HasColumn(m.Keys.Right) {
		return c.res
	}

	joined := innerJoin(in.Left, in.Right, m.Keys.Left, m.Keys.Right)

	for _, f := range v.selectFields(m) {
		if !in.Left.HasColumn(f.Left) || !in.Right.HasColumn(f.Right) {
			continue
		}
		tol, hasTol := v.tolerance, v.hasTolerance
		if f.Tolerance != nil {
			tol, hasTol = *f.Tolerance, true
		}

		for _, jr := range joined {
			lraw, _ := in.Left.Value(jr.left, f.Left)
			rraw, _ := in.Right.Value(jr.right, f.Right)
			lv := canonicalValue(lraw.OrEmpty(), f)
			rv := canonicalValue(rraw.OrEmpty(), f)

			if v.ignoreIfBothBlank && lv == "" && rv == "" {
				continue
			}
			if lv == rv || (hasTol && withinTolerance(lv, rv, tol)) {
				continue
			}

			if c.full() {
				return c.res
			}
			c.push(Issue{
				IssueID:    fmt.Sprintf("compare_%s_%d", f.Name, jr.left),
				IssueType:  IssueMismatchField,
				Message:    fmt.Sprintf("Field mismatch for %s", f.Name),
				FileSide:   SideBoth,
				RowIndex:   rowPtr(jr.left),
				RecordKey:  jr.key,
				Column:     f.Name,
				LeftValue:  lv,
				RightValue: rv,
			})
			c.res.LeftRows.Add(jr.left)
			c.res.RightRows.Add(jr.right)
		}
	}
	return c.res
}

// selectFields returns the rule's named fields, or every mapped field when
// none are named. Skipped and unknown fields are dropped.
func (v *compareFields) selectFields(m *Mapping) []FieldMapping {
	var out []FieldMapping
	if len(v.fields) == 0 {
		for _, f := range m.Fields {
			if !f.Skip {
				out = append(out, f)
			}
		}
		return out
	}
	for _, name := range v.fields {
		if f, ok := m.Field(name); ok && !f.Skip {
			out = append(out, f)
		}
	}
	return out
}

// innerJoin matches rows with equal, present key values, in left row
// order and then right row order.
func innerJoin(left, right *dataset.Dataset, leftKey, rightKey string) []joinedRow {
	rightKeys, _ := right.Column(rightKey)
	byKey := make(map[string][]int)
	for j, k := range rightKeys {
		if k.Valid {
			byKey[k.Text] = append(byKey[k.Text], j)
		}
	}

	leftKeys, _ := left.Column(leftKey)
	var out []joinedRow
	for i, k := range leftKeys {
		if !k.Valid {
			continue
		}
		for _, j := range byKey[k.Text] {
			out = append(out, joinedRow{left: i, right: j, key: k.Text})
		}
	}
	return out
}

// canonicalValue normalizes a raw value and applies the field's value map.
func canonicalValue(raw string, f FieldMapping) string {
	v := normalize.Apply(dataset.Text(raw), f.Normalize)
	if v.Valid && f.ValueMap != nil {
		if mapped, ok := f.ValueMap[v.Text]; ok {
			return mapped
		}
	}
	return v.OrEmpty()
}

func withinTolerance(a, b string, tol float64) bool {
	x, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return false
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return false
	}
	return math.Abs(x-y) <= tol
}
