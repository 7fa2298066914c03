// Package guess proposes column mappings and value transforms between two
// CSV files by inspecting headers and sampled values.
//
// Everything here is a deterministic heuristic: the same inputs always
// yield the same scores and ordering.
package guess

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	headerWeight  = 0.6
	typeBonus     = 15
	overlapWeight = 0.4
	maxAlternates = 2
)

// Candidate is one scored right-hand column.
type Candidate struct {
	Column     string   `json:"column"`
	Confidence int      `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// Suggestion is the ranked guess for one left column. BestRight is empty
// when the right file has no columns.
type Suggestion struct {
	LeftColumn string      `json:"left_column"`
	BestRight  string      `json:"best_right,omitempty"`
	Confidence int         `json:"confidence"`
	Reasons    []string    `json:"reasons"`
	Alternates []Candidate `json:"alternates"`
}

// GuessMappings scores every right column against every left column and
// returns one Suggestion per left column, in left column order.
// Samples are keyed by column name; missing keys mean no samples.
func GuessMappings(leftColumns, rightColumns []string, leftSamples, rightSamples map[string][]string) []Suggestion {
	type rightInfo struct {
		header string
		kind   Kind
		values map[string]struct{}
	}

	rights := make([]rightInfo, len(rightColumns))
	for i, col := range rightColumns {
		rights[i] = rightInfo{
			header: normHeader(col),
			kind:   DetectType(rightSamples[col]),
			values: valueSet(rightSamples[col]),
		}
	}

	out := make([]Suggestion, 0, len(leftColumns))
	for _, left := range leftColumns {
		header := normHeader(left)
		kind := DetectType(leftSamples[left])
		values := valueSet(leftSamples[left])

		scored := make([]Candidate, len(rightColumns))
		for i, right := range rightColumns {
			scored[i] = score(right, header, kind, values, rights[i].header, rights[i].kind, rights[i].values)
		}
		sort.SliceStable(scored, func(i, j int) bool {
			return scored[i].Confidence > scored[j].Confidence
		})

		s := Suggestion{LeftColumn: left, Reasons: []string{}, Alternates: []Candidate{}}
		if len(scored) > 0 {
			s.BestRight = scored[0].Column
			s.Confidence = scored[0].Confidence
			s.Reasons = scored[0].Reasons
			end := min(len(scored), 1+maxAlternates)
			s.Alternates = append(s.Alternates, scored[1:end]...)
		}
		out = append(out, s)
	}
	return out
}

func score(right, leftHeader string, leftKind Kind, leftValues map[string]struct{}, rightHeader string, rightKind Kind, rightValues map[string]struct{}) Candidate {
	reasons := []string{}

	headerScore := 100.0
	if leftHeader != rightHeader {
		headerScore = Ratio(leftHeader, rightHeader)
	}
	if headerScore > 0 {
		reasons = append(reasons, fmt.Sprintf("header fuzzy %.0f", headerScore))
	}

	typeScore := 0.0
	if leftKind == rightKind {
		typeScore = typeBonus
		reasons = append(reasons, fmt.Sprintf("type %s", leftKind))
	}

	overlapScore := overlap(leftValues, rightValues)
	if overlapScore > 0 {
		reasons = append(reasons, fmt.Sprintf("overlap %.0f%%", overlapScore))
	}

	conf := math.Round(headerScore*headerWeight + typeScore + overlapScore*overlapWeight)
	conf = math.Max(0, math.Min(100, conf))

	return Candidate{Column: right, Confidence: int(conf), Reasons: reasons}
}

// valueSet returns the distinct trimmed, lower-cased non-empty samples.
func valueSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// overlap is the share of left values also seen on the right, in [0,100].
func overlap(left, right map[string]struct{}) float64 {
	if len(left) == 0 || len(right) == 0 {
		return 0
	}
	shared := 0
	for v := range left {
		if _, ok := right[v]; ok {
			shared++
		}
	}
	return 100 * float64(shared) / float64(max(len(left), 1))
}
