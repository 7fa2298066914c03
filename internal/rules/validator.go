package rules

import (
	"strings"

	"github.com/JonMunkholm/reconcile/internal/dataset"
)

// MaxIssuesPerRule bounds how many issues one rule invocation may emit.
const MaxIssuesPerRule = 5000

// Rule type tags.
const (
	TypeRequiredColumns = "required_columns"
	TypeRequiredNonNull = "required_non_null"
	TypeUniqueKey       = "unique_key"
	TypeAllowedValues   = "allowed_values"
	TypeRegex           = "regex"
	TypeTypeChecks      = "type_checks"
	TypeRange           = "range"
	TypeRowRules        = "row_rules"
	TypeCrossFileMatch  = "cross_file_match"
	TypeCompareFields   = "compare_fields"
)

// Types lists every supported rule type in registry order.
var Types = []string{
	TypeRequiredColumns, TypeRequiredNonNull, TypeUniqueKey, TypeAllowedValues,
	TypeRegex, TypeTypeChecks, TypeRange, TypeRowRules, TypeCrossFileMatch, TypeCompareFields,
}

// Input is everything one validation run reads. Right is nil in single mode.
type Input struct {
	RunID   string
	Mode    Mode
	Left    *dataset.Dataset
	Right   *dataset.Dataset
	Mapping *Mapping
}

func (in Input) compare() bool {
	return in.Mode == ModeCompare && in.Left != nil && in.Right != nil
}

// Result is the output of one validator or of a whole run.
type Result struct {
	Issues    []Issue
	LeftRows  RowSet
	RightRows RowSet
}

func newResult() Result {
	return Result{LeftRows: RowSet{}, RightRows: RowSet{}}
}

// Validator is one decoded rule. Implementations only read Input and
// return their own contribution.
type Validator interface {
	Type() string
	Validate(in Input) Result
}

// Decode turns a rule document into its Validator. It reports false for
// unknown types.
func Decode(r Rule) (Validator, bool) {
	switch r.Type() {
	case TypeRequiredColumns:
		return decodeRequiredColumns(r), true
	case TypeRequiredNonNull:
		return decodeRequiredNonNull(r), true
	case TypeUniqueKey:
		return decodeUniqueKey(r), true
	case TypeAllowedValues:
		return decodeAllowedValues(r), true
	case TypeRegex:
		return decodeRegex(r), true
	case TypeTypeChecks:
		return decodeTypeChecks(r), true
	case TypeRange:
		return decodeRange(r), true
	case TypeRowRules:
		return decodeRowRules(r), true
	case TypeCrossFileMatch:
		return decodeCrossFileMatch(r), true
	case TypeCompareFields:
		return decodeCompareFields(r), true
	}
	return nil, false
}

// collector accumulates one invocation's output and enforces the cap.
type collector struct {
	runID    string
	severity Severity
	res      Result
}

func newCollector(in Input, sev Severity) *collector {
	return &collector{runID: in.RunID, severity: sev, res: newResult()}
}

func (c *collector) full() bool {
	return len(c.res.Issues) >= MaxIssuesPerRule
}

// add records is and flags its row on the side it belongs to. It reports
// false once the cap is reached.
func (c *collector) add(is Issue, t target, row int) bool {
	if c.full() {
		return false
	}
	c.push(is)
	if t.right {
		c.res.RightRows.Add(row)
	} else {
		c.res.LeftRows.Add(row)
	}
	return true
}

// push records an issue without flagging rows.
func (c *collector) push(is Issue) bool {
	if c.full() {
		return false
	}
	is.RunID = c.runID
	is.Severity = c.severity
	if is.Tags == nil {
		is.Tags = []string{}
	}
	c.res.Issues = append(c.res.Issues, is)
	return true
}

// target is the dataset a single-column rule inspects.
type target struct {
	ds    *dataset.Dataset
	side  FileSide
	right bool
}

// targetFor resolves a rule's optional "side" key. Single mode always
// checks the one file.
func targetFor(in Input, r Rule) target {
	if in.Mode != ModeCompare {
		return target{ds: in.Left, side: SideSingle}
	}
	if s, _ := r.str("side"); strings.EqualFold(s, "right") && in.Right != nil {
		return target{ds: in.Right, side: SideRight, right: true}
	}
	return target{ds: in.Left, side: SideLeft}
}

func sideTargets(in Input) (left, right target) {
	if in.Mode != ModeCompare {
		return target{ds: in.Left, side: SideSingle}, target{}
	}
	return target{ds: in.Left, side: SideLeft},
		target{ds: in.Right, side: SideRight, right: true}
}
