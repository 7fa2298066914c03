// Package rules is the validation rule engine.
//
// A rule file holds an ordered list of rule documents, each tagged with a
// type from a closed set of ten validators. Run decodes every rule, runs it
// against one file (single mode) or two (compare mode), and merges the
// results: issues are concatenated in rule order and flagged row positions
// are unioned per side.
//
// Nothing here returns an error. Unknown rule types are skipped, rules with
// missing fields or columns produce nothing, values that fail a cast are
// exempt from that check, and each rule invocation emits at most
// MaxIssuesPerRule issues.
package rules

import (
	"context"

	"github.com/JonMunkholm/reconcile/internal/logging"
)

// Run executes rules in order against in. Validators share no state, so
// rule order only affects the order of the returned issues.
func Run(ctx context.Context, in Input, rules []Rule) Result {
	logger := logging.FromContext(logging.WithRun(ctx, in.RunID))
	out := newResult()

	for n, r := range rules {
		v, ok := Decode(r)
		if !ok {
			logger.Debug("skipping unknown rule type", "index", n, "type", r.Type())
			continue
		}

		res := v.Validate(in)
		out.Issues = append(out.Issues, res.Issues...)
		out.LeftRows.Union(res.LeftRows)
		out.RightRows.Union(res.RightRows)

		logger.Debug("rule evaluated",
			"index", n,
			"type", v.Type(),
			"issues", len(res.Issues),
			"left_rows", len(res.LeftRows),
			"right_rows", len(res.RightRows),
		)
	}

	if out.Issues == nil {
		out.Issues = []Issue{}
	}
	return out
}

// Summary counts rows and issues of a run.
type Summary struct {
	RunID     string `json:"run_id"`
	Mode      Mode   `json:"mode"`
	RowsLeft  int    `json:"rows_left"`
	RowsRight int    `json:"rows_right"`
	Errors    int    `json:"errors"`
	Warnings  int    `json:"warnings"`
	Infos     int    `json:"infos"`
}

// Summarize counts rows per side and issues per severity.
func Summarize(in Input, issues []Issue) Summary {
	s := Summary{RunID: in.RunID, Mode: in.Mode}
	if in.Left != nil {
		s.RowsLeft = in.Left.Len()
	}
	if in.Right != nil {
		s.RowsRight = in.Right.Len()
	}
	for _, is := range issues {
		switch is.Severity {
		case SeverityError:
			s.Errors++
		case SeverityWarn:
			s.Warnings++
		case SeverityInfo:
			s.Infos++
		}
	}
	return s
}
