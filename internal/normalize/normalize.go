// Package normalize implements named, composable string transforms used to
// reconcile values from two files before they are compared.
//
// Every step maps an optional string to an optional string and maps an
// absent value to absent. Pipelines run steps left to right; names that are
// not registered are ignored so rule files can mention steps that do not
// exist yet without failing a run. The set of steps is fixed at build time;
// Steps lists it for clients composing pipelines.
package normalize

import (
	"sort"
	"strings"
	"unicode"

	"github.com/JonMunkholm/reconcile/internal/dataset"
)

// step transforms one optional value.
type step func(dataset.Value) dataset.Value

// Built-in step names.
const (
	Trim               = "trim"
	Lower              = "lower"
	Upper              = "upper"
	CollapseWhitespace = "collapse_whitespace"
	RemovePunctuation  = "remove_punctuation"
	DigitsOnly         = "digits_only"
	NullIfBlank        = "null_if_blank"
	NormalizeEmail     = "normalize_email"
	NormalizePhoneUS   = "normalize_phone_us"
	RemoveSuffixes     = "remove_suffixes"
)

var registry = map[string]step{
	Trim:               text(trim),
	Lower:              text(func(s string) string { return strings.ToLower(trim(s)) }),
	Upper:              text(func(s string) string { return strings.ToUpper(trim(s)) }),
	CollapseWhitespace: text(collapseWhitespace),
	RemovePunctuation:  text(removePunctuation),
	DigitsOnly:         digitsOnly,
	NullIfBlank:        nullIfBlank,
	NormalizeEmail:     text(func(s string) string { return strings.ToLower(trim(s)) }),
	NormalizePhoneUS:   normalizePhoneUS,
	RemoveSuffixes:     removeSuffixes,
}

// nameSuffixes are dropped by remove_suffixes when they are the last token.
var nameSuffixes = map[string]bool{"jr": true, "sr": true, "ii": true, "iii": true}

// Known reports whether name is a registered step.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// Steps returns all registered step names, sorted.
func Steps() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply runs v through steps in order. Unknown step names are skipped.
func Apply(v dataset.Value, steps []string) dataset.Value {
	for _, name := range steps {
		if fn, ok := registry[name]; ok {
			v = fn(v)
		}
	}
	return v
}

// ApplyString is Apply for a present value, returning "" when the pipeline
// yields absent.
func ApplyString(s string, steps []string) string {
	return Apply(dataset.Text(s), steps).OrEmpty()
}

// text lifts a string function into a step that leaves absent values alone.
func text(fn func(string) string) step {
	return func(v dataset.Value) dataset.Value {
		if !v.Valid {
			return v
		}
		return dataset.Text(fn(v.Text))
	}
}

func trim(s string) string {
	return strings.TrimSpace(s)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func removePunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, trim(s))
}

func keepDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func digitsOnly(v dataset.Value) dataset.Value {
	if !v.Valid {
		return v
	}
	d := keepDigits(v.Text)
	if d == "" {
		return dataset.Null
	}
	return dataset.Text(d)
}

func nullIfBlank(v dataset.Value) dataset.Value {
	if !v.Valid {
		return v
	}
	s := trim(v.Text)
	if s == "" {
		return dataset.Null
	}
	return dataset.Text(s)
}

// normalizePhoneUS does not check that ten digits remain.
func normalizePhoneUS(v dataset.Value) dataset.Value {
	v = digitsOnly(v)
	if !v.Valid {
		return v
	}
	if len(v.Text) == 11 && v.Text[0] == '1' {
		return dataset.Text(v.Text[1:])
	}
	return v
}

func removeSuffixes(v dataset.Value) dataset.Value {
	if !v.Valid {
		return v
	}
	parts := strings.Fields(v.Text)
	if n := len(parts); n > 0 && nameSuffixes[strings.Trim(strings.ToLower(parts[n-1]), ".")] {
		parts = parts[:n-1]
	}
	if len(parts) == 0 {
		return dataset.Null
	}
	return dataset.Text(strings.Join(parts, " "))
}
