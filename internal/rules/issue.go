package rules

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Severity grades an issue.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// ParseSeverity accepts INFO, WARN, WARNING and ERROR in any case.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INFO":
		return SeverityInfo, true
	case "WARN", "WARNING":
		return SeverityWarn, true
	case "ERROR":
		return SeverityError, true
	}
	return "", false
}

// FileSide says which dataset an issue refers to.
type FileSide string

const (
	SideSingle FileSide = "SINGLE"
	SideLeft   FileSide = "LEFT"
	SideRight  FileSide = "RIGHT"
	SideBoth   FileSide = "BOTH"
)

// Issue types.
const (
	IssueMissingColumn   = "MISSING_COLUMN"
	IssueNullValue       = "NULL_VALUE"
	IssueDuplicateKey    = "DUPLICATE_KEY"
	IssueDisallowedValue = "DISALLOWED_VALUE"
	IssueRegexMismatch   = "REGEX_MISMATCH"
	IssueTypeMismatch    = "TYPE_MISMATCH"
	IssueOutOfRange      = "OUT_OF_RANGE"
	IssueRowRule         = "ROW_RULE"
	IssueMissingInRight  = "MISSING_IN_RIGHT"
	IssueMissingInLeft   = "MISSING_IN_LEFT"
	IssueMismatchField   = "MISMATCH_FIELD"
)

// Issue is one finding of one validator. Empty optional strings and a nil
// RowIndex mean the field does not apply.
type Issue struct {
	RunID        string   `json:"run_id"`
	IssueID      string   `json:"issue_id"`
	Severity     Severity `json:"severity"`
	IssueType    string   `json:"issue_type"`
	FileSide     FileSide `json:"file_side"`
	RowIndex     *int     `json:"row_index,omitempty"`
	RecordKey    string   `json:"record_key,omitempty"`
	Column       string   `json:"column,omitempty"`
	LeftValue    string   `json:"left_value,omitempty"`
	RightValue   string   `json:"right_value,omitempty"`
	Message      string   `json:"message"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
	Tags         []string `json:"tags"`
}

// IssueColumns is the header of an issues CSV.
var IssueColumns = []string{
	"run_id", "severity", "issue_type", "file_side", "record_key", "row_index",
	"column", "left_value", "right_value", "message", "suggested_fix", "tags",
}

// Record returns the issue as a CSV record aligned with IssueColumns.
func (i Issue) Record() []string {
	row := ""
	if i.RowIndex != nil {
		row = strconv.Itoa(*i.RowIndex)
	}
	return []string{
		i.RunID, string(i.Severity), i.IssueType, string(i.FileSide), i.RecordKey, row,
		i.Column, i.LeftValue, i.RightValue, i.Message, i.SuggestedFix, strings.Join(i.Tags, ";"),
	}
}

// WriteIssuesCSV writes issues with an IssueColumns header.
func WriteIssuesCSV(w io.Writer, issues []Issue) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(IssueColumns); err != nil {
		return fmt.Errorf("write issues header: %w", err)
	}
	for n, is := range issues {
		if err := cw.Write(is.Record()); err != nil {
			return fmt.Errorf("write issue %d: %w", n, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func rowPtr(i int) *int {
	return &i
}
