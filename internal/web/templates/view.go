// Package templates holds the templ components behind every HTML page and
// the standalone report.html written with each run.
//
// Edit the .templ files and regenerate with `templ generate`; the
// *_templ.go files are generated output.
package templates

import (
	"net/url"
	"strconv"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/reconcile/internal/rules"
)

// IssueTable is one page of issues as CSV columns and rows. RunID, when
// set, enables the download link shown for truncated tables.
type IssueTable struct {
	RunID     string
	Columns   []string
	Rows      [][]string
	Total     int
	Truncated bool
}

// IssueTableFromIssues lays out at most limit issues with every issue
// column except run_id. limit <= 0 means no limit.
func IssueTableFromIssues(issues []rules.Issue, limit int) IssueTable {
	shown := issues
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	rows := make([][]string, len(shown))
	for i, is := range shown {
		rows[i] = is.Record()[1:]
	}
	return IssueTable{
		Columns:   rules.IssueColumns[1:],
		Rows:      rows,
		Total:     len(issues),
		Truncated: len(shown) < len(issues),
	}
}

// severity returns the row's severity cell, or "" without that column.
func (t IssueTable) severity(row []string) string {
	for i, col := range t.Columns {
		if col == "severity" && i < len(row) {
			return row[i]
		}
	}
	return ""
}

// shownOf describes how many rows are displayed.
func (t IssueTable) shownOf() string {
	if t.Total > len(t.Rows) {
		return strconv.Itoa(len(t.Rows)) + " of " + strconv.Itoa(t.Total)
	}
	return strconv.Itoa(len(t.Rows))
}

type summaryRow struct {
	Label, Value string
}

func summaryRows(sum rules.Summary) []summaryRow {
	return []summaryRow{
		{"Run", sum.RunID},
		{"Mode", string(sum.Mode)},
		{"Rows (left)", strconv.Itoa(sum.RowsLeft)},
		{"Rows (right)", strconv.Itoa(sum.RowsRight)},
		{"Errors", strconv.Itoa(sum.Errors)},
		{"Warnings", strconv.Itoa(sum.Warnings)},
		{"Infos", strconv.Itoa(sum.Infos)},
	}
}

func runURL(runID string) templ.SafeURL {
	return templ.URL("/runs/" + url.PathEscape(runID))
}

func issuesURL(runID string) templ.SafeURL {
	return templ.URL("/runs/" + url.PathEscape(runID) + "/issues")
}

func downloadURL(runID, name string) templ.SafeURL {
	return templ.URL("/download/" + url.PathEscape(runID) + "/" + url.PathEscape(name))
}
