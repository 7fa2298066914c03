// Package specfile reads and writes the YAML rule and mapping files kept
// under the configured rules and mappings directories.
package specfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/reconcile/internal/rules"
)

const (
	// Ext is the extension of rule and mapping files.
	Ext = ".yaml"

	// TrashDir receives deleted mappings.
	TrashDir = "_trash"

	defaultName = "mapping"
)

var (
	// ErrNotFound is returned when a named file does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidName is returned for names that would leave their directory.
	ErrInvalidName = errors.New("invalid file name")
)

// SanitizeFilename keeps letters, digits, '-', '_' and '.', falling back
// to "mapping" when nothing survives.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return defaultName
	}
	return b.String()
}

// resolve maps a user-supplied file name to a path directly inside dir.
func resolve(dir, name string) (string, error) {
	if name == "" || name != SanitizeFilename(name) || strings.Trim(name, ".") == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !strings.HasSuffix(name, Ext) {
		name += Ext
	}
	return filepath.Join(dir, name), nil
}

// listYAML returns the sorted *.yaml file names directly under dir. A
// missing directory lists nothing.
func listYAML(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), Ext) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// RuleSet is a parsed rule file.
type RuleSet struct {
	Name  string
	Doc   map[string]any
	Rules []rules.Rule
}

// ParseRules decodes a rule document. An empty document has no rules.
func ParseRules(data []byte) (map[string]any, []rules.Rule, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse rules: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, rules.ParseRuleSet(doc), nil
}

// LoadRulesFile reads a rule file from an arbitrary path.
func LoadRulesFile(path string) (*RuleSet, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	doc, rs, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return &RuleSet{Name: filepath.Base(path), Doc: doc, Rules: rs}, nil
}

// Rules is the directory of rule files.
type Rules struct {
	dir string
}

// NewRules returns a store rooted at dir.
func NewRules(dir string) *Rules {
	return &Rules{dir: dir}
}

// List returns the rule file names, sorted.
func (s *Rules) List() ([]string, error) {
	return listYAML(s.dir)
}

// Load reads the named rule file.
func (s *Rules) Load(name string) (*RuleSet, error) {
	path, err := resolve(s.dir, name)
	if err != nil {
		return nil, err
	}
	return LoadRulesFile(path)
}
