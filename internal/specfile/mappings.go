package specfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/reconcile/internal/rules"
)

// MappingSummary describes a saved mapping for pickers.
type MappingSummary struct {
	Name         string   `json:"name"`
	LeftColumns  []string `json:"left_columns"`
	RightColumns []string `json:"right_columns"`
	LeftKey      string   `json:"left_key"`
	RightKey     string   `json:"right_key"`
	FieldCount   int      `json:"field_count"`
}

// Mappings is the directory of mapping files.
type Mappings struct {
	dir string
	now func() time.Time
}

// NewMappings returns a store rooted at dir.
func NewMappings(dir string) *Mappings {
	return &Mappings{dir: dir, now: time.Now}
}

// List returns the mapping file names, sorted.
func (s *Mappings) List() ([]string, error) {
	return listYAML(s.dir)
}

// Path returns the on-disk path of the named mapping, which must exist.
func (s *Mappings) Path(name string) (string, error) {
	path, err := resolve(s.dir, name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return "", err
	}
	return path, nil
}

// Load reads the named mapping.
func (s *Mappings) Load(name string) (*rules.Mapping, error) {
	path, err := resolve(s.dir, name)
	if err != nil {
		return nil, err
	}
	return LoadMappingFile(path)
}

// LoadMappingFile reads a mapping from an arbitrary path.
func LoadMappingFile(path string) (*rules.Mapping, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var m rules.Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", filepath.Base(path), err)
	}
	return &m, nil
}

// Save writes m under a sanitized form of name, stamping meta.name and
// meta.created_at. It returns the file name written.
func (s *Mappings) Save(name string, m *rules.Mapping) (string, error) {
	file := SanitizeFilename(name)
	path, err := resolve(s.dir, file)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create mappings dir: %w", err)
	}

	out := *m
	out.Meta = &rules.Meta{Name: name, CreatedAt: s.now().Format("2006-01-02T15:04:05")}

	data, err := yaml.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode mapping: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return filepath.Base(path), nil
}

// Delete moves the named mapping into the trash directory, replacing any
// earlier trashed copy.
func (s *Mappings) Delete(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	trash := filepath.Join(s.dir, TrashDir)
	if err := os.MkdirAll(trash, 0o755); err != nil {
		return fmt.Errorf("create trash dir: %w", err)
	}
	if err := os.Rename(path, filepath.Join(trash, filepath.Base(path))); err != nil {
		return fmt.Errorf("trash mapping: %w", err)
	}
	return nil
}

// Summaries describes every readable mapping. Unparseable files are
// skipped.
func (s *Mappings) Summaries() ([]MappingSummary, error) {
	names, err := s.List()
	if err != nil {
		return nil, err
	}
	out := make([]MappingSummary, 0, len(names))
	for _, name := range names {
		m, err := LoadMappingFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		out = append(out, Summarize(name, m))
	}
	return out, nil
}

// Summarize lists the mapped columns of m.
func Summarize(name string, m *rules.Mapping) MappingSummary {
	sum := MappingSummary{
		Name:         name,
		LeftColumns:  []string{},
		RightColumns: []string{},
		LeftKey:      m.Keys.Left,
		RightKey:     m.Keys.Right,
		FieldCount:   len(m.Fields),
	}
	for _, f := range m.Fields {
		if f.Left != "" {
			sum.LeftColumns = append(sum.LeftColumns, f.Left)
		}
		if f.Right != "" {
			sum.RightColumns = append(sum.RightColumns, f.Right)
		}
	}
	return sum
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
