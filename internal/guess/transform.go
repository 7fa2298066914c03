package guess

import (
	"strings"
	"unicode"

	"github.com/JonMunkholm/reconcile/internal/normalize"
)

const (
	// maxDistinctScan bounds how many distinct values per side are collected.
	maxDistinctScan = 30
	// maxDistinct is the largest per-side set still treated as categorical.
	maxDistinct = 15
	// maxValueMap is the largest value map worth proposing.
	maxValueMap = 12
	// matchThreshold is the minimum Ratio for two values to be variants.
	matchThreshold = 92
)

const (
	reasonTrim     = "Trim whitespace"
	reasonCollapse = "Collapse repeated spaces"
	reasonEmail    = "Email-like values"
	reasonPhone    = "Phone-like values"
	reasonYesNo    = "Yes/No-style values detected"
	reasonCategory = "Small categorical set with close matches"
)

var (
	yesTokens = map[string]bool{"y": true, "yes": true, "true": true, "t": true, "1": true, "on": true}
	noTokens  = map[string]bool{"n": true, "no": true, "false": true, "f": true, "0": true, "off": true}
	boolStyle = map[string]bool{"true": true, "false": true, "t": true, "f": true}
)

// Field names one mapped pair of columns.
type Field struct {
	Name  string `json:"name"`
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Transform is the proposed normalization for one field.
type Transform struct {
	Normalize []string          `json:"normalize"`
	ValueMap  map[string]string `json:"value_map,omitempty"`
	Reasons   []string          `json:"reasons"`
}

// GuessTransforms proposes normalize steps and an optional value map for
// each field. Only fields with at least one proposal are returned.
func GuessTransforms(fields []Field, leftSamples, rightSamples map[string][]string) map[string]Transform {
	out := make(map[string]Transform)

	for _, f := range fields {
		left := leftSamples[f.Left]
		right := rightSamples[f.Right]
		combined := make([]string, 0, len(left)+len(right))
		combined = append(combined, left...)
		combined = append(combined, right...)

		steps := []string{}
		reasons := []string{}

		if needsTrim(combined) {
			steps = append(steps, normalize.Trim)
			reasons = append(reasons, reasonTrim)
		}
		if needsCollapse(combined) {
			steps = append(steps, normalize.CollapseWhitespace)
			reasons = append(reasons, reasonCollapse)
		}

		switch DetectType(combined) {
		case KindEmail:
			steps = append(steps, normalize.NormalizeEmail)
			reasons = append(reasons, reasonEmail)
		case KindPhone:
			steps = append(steps, normalize.NormalizePhoneUS)
			reasons = append(reasons, reasonPhone)
		}

		valueMap, reason := suggestValueMap(left, right, steps)
		if valueMap != nil {
			reasons = append(reasons, reason)
		}

		if len(steps) > 0 || valueMap != nil {
			out[f.Name] = Transform{Normalize: steps, ValueMap: valueMap, Reasons: reasons}
		}
	}
	return out
}

func needsTrim(values []string) bool {
	for _, v := range values {
		if v != "" && v != strings.TrimSpace(v) {
			return true
		}
	}
	return false
}

func needsCollapse(values []string) bool {
	for _, v := range values {
		run := 0
		for _, r := range v {
			if unicode.IsSpace(r) {
				run++
				if run >= 2 {
					return true
				}
			} else {
				run = 0
			}
		}
	}
	return false
}

// normalizedValues runs every value through steps, dropping empty results.
func normalizedValues(values []string, steps []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := normalize.ApplyString(v, steps); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// distinct returns up to limit distinct values in first-seen order.
func distinct(values []string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func suggestValueMap(left, right []string, steps []string) (map[string]string, string) {
	leftNorm := normalizedValues(left, steps)
	rightNorm := normalizedValues(right, steps)
	leftUniq := distinct(leftNorm, maxDistinctScan)
	rightUniq := distinct(rightNorm, maxDistinctScan)

	if len(leftUniq) == 0 || len(rightUniq) == 0 {
		return nil, ""
	}
	if len(leftUniq) > maxDistinct || len(rightUniq) > maxDistinct {
		return nil, ""
	}

	combined := make([]string, 0, len(leftUniq)+len(rightUniq))
	combined = append(combined, leftUniq...)
	combined = append(combined, rightUniq...)
	if m := yesNoMap(combined); m != nil {
		return m, reasonYesNo
	}

	leftSet := toSet(leftUniq)
	rightSet := toSet(rightUniq)
	if sameSet(leftSet, rightSet) {
		return nil, ""
	}

	counts := make(map[string]int, len(combined))
	for _, v := range combined {
		counts[v]++
	}

	m := make(map[string]string)
	for _, v := range leftUniq {
		if rightSet[v] {
			continue
		}
		if match, s := bestMatch(v, rightUniq); match != "" && s >= matchThreshold {
			if c := canonical(v, match, counts); c != v {
				m[v] = c
			}
		}
	}
	for _, v := range rightUniq {
		if leftSet[v] {
			continue
		}
		if match, s := bestMatch(v, leftUniq); match != "" && s >= matchThreshold {
			if c := canonical(match, v, counts); c != v {
				if _, taken := m[v]; !taken {
					m[v] = c
				}
			}
		}
	}

	if len(m) == 0 || len(m) > maxValueMap {
		return nil, ""
	}
	return m, reasonCategory
}

// yesNoMap maps every yes/no token to a canonical spelling when all tokens
// are yes/no words and both polarities appear. Identity entries are left
// out; nil means no map.
func yesNoMap(values []string) map[string]string {
	hasYes, hasNo, boolish := false, false, false
	for _, v := range values {
		tok := strings.ToLower(strings.TrimSpace(v))
		if tok == "" {
			continue
		}
		switch {
		case yesTokens[tok]:
			hasYes = true
		case noTokens[tok]:
			hasNo = true
		default:
			return nil
		}
		if boolStyle[tok] {
			boolish = true
		}
	}
	if !hasYes || !hasNo {
		return nil
	}

	yes, no := "Yes", "No"
	if boolish {
		yes, no = "True", "False"
	}

	m := make(map[string]string)
	for _, v := range values {
		tok := strings.ToLower(strings.TrimSpace(v))
		target := no
		if yesTokens[tok] {
			target = yes
		}
		if tok != "" && v != target {
			m[v] = target
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// bestMatch returns the candidate with the highest Ratio after stripping
// everything but ASCII letters and digits. Earlier candidates win ties.
func bestMatch(value string, candidates []string) (string, float64) {
	norm := normToken(value)
	best, bestScore := "", 0.0
	for _, c := range candidates {
		if s := Ratio(norm, normToken(c)); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore
}

// canonical picks the spelling a value map should converge on: the value
// seen on more sides, then the longer string, then left.
func canonical(left, right string, counts map[string]int) string {
	switch {
	case counts[left] > counts[right]:
		return left
	case counts[right] > counts[left]:
		return right
	case len(right) > len(left):
		return right
	default:
		return left
	}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if !b[v] {
			return false
		}
	}
	return true
}
