package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Keys names the join column on each side.
type Keys struct {
	Left  string `yaml:"left" json:"left"`
	Right string `yaml:"right" json:"right"`
}

// Meta is bookkeeping written when a mapping is saved.
type Meta struct {
	Name      string `yaml:"name" json:"name"`
	CreatedAt string `yaml:"created_at" json:"created_at"`
}

// FieldMapping reconciles one left column with one right column.
type FieldMapping struct {
	Name      string            `yaml:"-" json:"name"`
	Left      string            `yaml:"left" json:"left"`
	Right     string            `yaml:"right" json:"right"`
	Normalize []string          `yaml:"normalize,omitempty" json:"normalize,omitempty"`
	ValueMap  map[string]string `yaml:"value_map,omitempty" json:"value_map,omitempty"`
	Skip      bool              `yaml:"skip,omitempty" json:"skip,omitempty"`
	Tolerance *float64          `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
}

// Mapping is a user-approved correspondence between two files. Fields keep
// the order they were written in.
type Mapping struct {
	Meta   *Meta          `json:"meta,omitempty"`
	Keys   Keys           `json:"keys"`
	Fields []FieldMapping `json:"fields"`
}

// HasKeys reports whether both join columns are named.
func (m *Mapping) HasKeys() bool {
	return m != nil && m.Keys.Left != "" && m.Keys.Right != ""
}

// Field returns the named field mapping.
func (m *Mapping) Field(name string) (FieldMapping, bool) {
	if m == nil {
		return FieldMapping{}, false
	}
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldMapping{}, false
}

// SetField replaces the named field or appends it.
func (m *Mapping) SetField(f FieldMapping) {
	for i := range m.Fields {
		if m.Fields[i].Name == f.Name {
			m.Fields[i] = f
			return
		}
	}
	m.Fields = append(m.Fields, f)
}

// mappingDoc is the YAML shape of a Mapping; fields is a name-keyed map.
type mappingDoc struct {
	Meta   *Meta     `yaml:"meta,omitempty"`
	Keys   Keys      `yaml:"keys"`
	Fields yaml.Node `yaml:"fields"`
}

// UnmarshalYAML decodes fields in document order.
func (m *Mapping) UnmarshalYAML(node *yaml.Node) error {
	var doc mappingDoc
	if err := node.Decode(&doc); err != nil {
		return err
	}

	m.Meta = doc.Meta
	m.Keys = doc.Keys
	m.Fields = nil

	if doc.Fields.Kind == 0 {
		return nil
	}
	if doc.Fields.Kind != yaml.MappingNode {
		return fmt.Errorf("mapping fields: line %d: expected a map of field names", doc.Fields.Line)
	}

	content := doc.Fields.Content
	for i := 0; i+1 < len(content); i += 2 {
		var f FieldMapping
		if err := content[i+1].Decode(&f); err != nil {
			return fmt.Errorf("mapping field %q: %w", content[i].Value, err)
		}
		f.Name = content[i].Value
		m.Fields = append(m.Fields, f)
	}
	return nil
}

// MarshalYAML encodes fields as an ordered map.
func (m Mapping) MarshalYAML() (any, error) {
	fields := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range m.Fields {
		var val yaml.Node
		if err := val.Encode(f); err != nil {
			return nil, fmt.Errorf("encode field %q: %w", f.Name, err)
		}
		fields.Content = append(fields.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Name},
			&val,
		)
	}

	return struct {
		Meta   *Meta      `yaml:"meta,omitempty"`
		Keys   Keys       `yaml:"keys"`
		Fields *yaml.Node `yaml:"fields"`
	}{m.Meta, m.Keys, fields}, nil
}
