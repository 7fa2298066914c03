package guess

import (
	"strings"
	"unicode"
)

// Kind is the coarse shape of a column's values.
type Kind string

const (
	KindNumeric Kind = "numeric"
	KindEmail   Kind = "email"
	KindPhone   Kind = "phone"
	KindDate    Kind = "date"
	KindText    Kind = "text"
)

// DefaultSampleCap is how many values DetectType looks at.
const DefaultSampleCap = 200

// DetectType classifies values by majority vote over the first
// DefaultSampleCap entries. Ties go to the earlier kind in the order
// numeric, email, phone, date. With no votes at all the result is text.
func DetectType(values []string) Kind {
	return DetectTypeCap(values, DefaultSampleCap)
}

// DetectTypeCap is DetectType with an explicit sample cap.
func DetectTypeCap(values []string, sampleCap int) Kind {
	if sampleCap > 0 && len(values) > sampleCap {
		values = values[:sampleCap]
	}

	kinds := [...]Kind{KindNumeric, KindEmail, KindPhone, KindDate}
	var counts [len(kinds)]int
	for _, v := range values {
		if isNumeric(v) {
			counts[0]++
		}
		if strings.Contains(v, "@") {
			counts[1]++
		}
		if countDigits(v) >= 10 {
			counts[2]++
		}
		if strings.ContainsAny(v, "/-") {
			counts[3]++
		}
	}

	best := -1
	for i, c := range counts {
		if c > 0 && (best < 0 || c > counts[best]) {
			best = i
		}
	}
	if best < 0 {
		return KindText
	}
	return kinds[best]
}

// isNumeric accepts one or more digits with at most one '.' anywhere.
func isNumeric(v string) bool {
	digits, dots := 0, 0
	for _, r := range v {
		switch {
		case r == '.':
			dots++
			if dots > 1 {
				return false
			}
		case unicode.IsDigit(r):
			digits++
		default:
			return false
		}
	}
	return digits > 0
}

func countDigits(v string) int {
	n := 0
	for _, r := range v {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
