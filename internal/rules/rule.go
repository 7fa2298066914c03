package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Rule is one entry of a rule file's validators list, kept as the decoded
// key/value document. Validators read the fields they need from it.
type Rule map[string]any

// Mode selects single-file checks or two-file reconciliation.
type Mode string

const (
	ModeSingle  Mode = "single"
	ModeCompare Mode = "compare"
)

// ParseMode accepts "single" and "compare" in any case.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSingle:
		return ModeSingle, nil
	case ModeCompare:
		return ModeCompare, nil
	}
	return "", fmt.Errorf("unknown mode %q: want single or compare", s)
}

// ParseRuleSet extracts the validators list of a rule document. A missing
// key or a non-list value yields no rules; entries that are not maps are
// dropped.
func ParseRuleSet(doc map[string]any) []Rule {
	list, ok := doc["validators"].([]any)
	if !ok {
		return nil
	}
	out := make([]Rule, 0, len(list))
	for _, item := range list {
		if m, ok := asMap(item); ok {
			out = append(out, Rule(m))
		}
	}
	return out
}

// Type returns the rule's type tag.
func (r Rule) Type() string {
	s, _ := r.str("type")
	return s
}

// severity returns the declared severity, or def when absent or invalid.
func (r Rule) severity(def Severity) Severity {
	s, ok := r.str("severity")
	if !ok {
		return def
	}
	if sev, ok := ParseSeverity(s); ok {
		return sev
	}
	return def
}

func (r Rule) str(key string) (string, bool) {
	return scalarString(r[key])
}

func (r Rule) strList(key string) []string {
	return stringList(r[key])
}

func (r Rule) boolean(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func (r Rule) float(key string) (float64, bool) {
	return toFloat(r[key])
}

// pair reads a {left, right} map. A plain string names the same column on
// both sides.
func (r Rule) pair(key string) (left, right string) {
	switch v := r[key].(type) {
	case string:
		return v, v
	default:
		if m, ok := asMap(v); ok {
			left, _ = scalarString(m["left"])
			right, _ = scalarString(m["right"])
		}
	}
	return left, right
}

// lists reads a {left: [...], right: [...]} map. A plain list applies to
// the left side only.
func (r Rule) lists(key string) (left, right []string) {
	if m, ok := asMap(r[key]); ok {
		return stringList(m["left"]), stringList(m["right"])
	}
	return stringList(r[key]), nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Rule:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

// scalarString renders a scalar document value as text.
func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int, int64, int32, uint, uint64, uint32, bool:
		return fmt.Sprint(x), true
	}
	return "", false
}

func stringList(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := scalarString(item); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{x}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}
