package model

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldKind is the declared type of a record field.
type FieldKind string

const (
	KindText   FieldKind = "text"
	KindEnum   FieldKind = "enum"
	KindNumber FieldKind = "number"
	KindDate   FieldKind = "date"
	KindBool   FieldKind = "bool"
	KindTags   FieldKind = "tags"
)

// DateLayout is the storage and input format of date fields.
const DateLayout = "2006-01-02"

// Reserved record keys that a schema may not redeclare.
const (
	KeyID        = "id"
	KeyCreatedAt = "createdAt"
	KeyUpdatedAt = "updatedAt"
)

// RankTable is an explicit sort order for enum values. Version changes whenever
// Order changes so stored preferences can detect a reshuffle.
type RankTable struct {
	Version int      `yaml:"version"`
	Order   []string `yaml:"order"`
}

// Rank returns the position of value, or len(Order) for values not in the table.
func (r *RankTable) Rank(value string) int {
	for i, v := range r.Order {
		if v == value {
			return i
		}
	}
	return len(r.Order)
}

// PriorityRankV1 is the high < medium < low order used by the built-in schemas.
var PriorityRankV1 = RankTable{Version: 1, Order: []string{"high", "medium", "low"}}

// namedRanks are the tables a schema can reference by name instead of inlining.
var namedRanks = map[string]RankTable{
	"priority-v1": PriorityRankV1,
}

// UnmarshalYAML accepts either an inline table or the name of a registered one.
func (r *RankTable) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		named, ok := namedRanks[node.Value]
		if !ok {
			return fmt.Errorf("unknown rank table %q", node.Value)
		}
		r.Version = named.Version
		r.Order = append([]string(nil), named.Order...)
		return nil
	}
	type plain RankTable
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = RankTable(p)
	return nil
}

// FieldDef declares one domain field of a record.
type FieldDef struct {
	Name       string     `yaml:"name"`
	Label      string     `yaml:"label"`
	Kind       FieldKind  `yaml:"kind"`
	Required   bool       `yaml:"required"`
	Searchable bool       `yaml:"searchable"`
	Values     []string   `yaml:"values"`
	Default    string     `yaml:"default"`
	Cycle      []string   `yaml:"cycle"`
	Rank       *RankTable `yaml:"rank"`
	Min        *float64   `yaml:"min"`
}

// DisplayName returns the label, falling back to the field name.
func (f FieldDef) DisplayName() string {
	if strings.TrimSpace(f.Label) != "" {
		return f.Label
	}
	return f.Name
}

// Allows reports whether value is one of the declared enum values.
func (f FieldDef) Allows(value string) bool {
	for _, v := range f.Values {
		if v == value {
			return true
		}
	}
	return false
}

// CycleValues returns the toggle order of an enum field.
func (f FieldDef) CycleValues() []string {
	if len(f.Cycle) > 0 {
		return f.Cycle
	}
	return f.Values
}

// SortSpec is a sort key plus direction.
type SortSpec struct {
	Key  string `yaml:"key"`
	Desc bool   `yaml:"desc"`
}

// Schema declares the shape of one list ("app instance").
type Schema struct {
	Name        string     `yaml:"name"`
	Title       string     `yaml:"title"`
	Locale      string     `yaml:"locale"`
	StatusField string     `yaml:"status_field"`
	DueField    string     `yaml:"due_field"`
	DoneValues  []string   `yaml:"done_values"`
	DefaultSort SortSpec   `yaml:"default_sort"`
	Fields      []FieldDef `yaml:"fields"`
}

// Field looks up a field definition by name.
func (s *Schema) Field(name string) (FieldDef, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// Status returns the status-like enum field.
func (s *Schema) Status() FieldDef {
	f, _ := s.Field(s.StatusField)
	return f
}

// IsDone reports whether a status value counts as finished.
func (s *Schema) IsDone(status string) bool {
	for _, v := range s.DoneValues {
		if v == status {
			return true
		}
	}
	return false
}

// SearchableFields lists the fields matched by free-text search.
func (s *Schema) SearchableFields() []FieldDef {
	var out []FieldDef
	for _, f := range s.Fields {
		if f.Searchable {
			out = append(out, f)
		}
	}
	return out
}

// TitleField returns the first required text field, used as a record's headline.
func (s *Schema) TitleField() FieldDef {
	for _, f := range s.Fields {
		if f.Kind == KindText && f.Required {
			return f
		}
	}
	for _, f := range s.Fields {
		if f.Kind == KindText {
			return f
		}
	}
	return FieldDef{Name: KeyID, Kind: KindText}
}

// Check verifies the schema is internally consistent.
func (s *Schema) Check() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("schema: name is required")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %s: no fields declared", s.Name)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		switch f.Name {
		case "", KeyID, KeyCreatedAt, KeyUpdatedAt:
			return fmt.Errorf("schema %s: invalid field name %q", s.Name, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("schema %s: duplicate field %q", s.Name, f.Name)
		}
		seen[f.Name] = true
		switch f.Kind {
		case KindText, KindNumber, KindDate, KindBool, KindTags:
		case KindEnum:
			if len(f.Values) == 0 {
				return fmt.Errorf("schema %s: enum %q has no values", s.Name, f.Name)
			}
			if f.Default != "" && !f.Allows(f.Default) {
				return fmt.Errorf("schema %s: enum %q default %q not declared", s.Name, f.Name, f.Default)
			}
			for _, v := range f.Cycle {
				if !f.Allows(v) {
					return fmt.Errorf("schema %s: enum %q cycle value %q not declared", s.Name, f.Name, v)
				}
			}
		default:
			return fmt.Errorf("schema %s: field %q has unknown kind %q", s.Name, f.Name, f.Kind)
		}
	}
	status, ok := s.Field(s.StatusField)
	if !ok || status.Kind != KindEnum {
		return fmt.Errorf("schema %s: status_field %q must name an enum field", s.Name, s.StatusField)
	}
	for _, v := range s.DoneValues {
		if !status.Allows(v) {
			return fmt.Errorf("schema %s: done value %q not a status", s.Name, v)
		}
	}
	if s.DueField != "" {
		due, ok := s.Field(s.DueField)
		if !ok || due.Kind != KindDate {
			return fmt.Errorf("schema %s: due_field %q must name a date field", s.Name, s.DueField)
		}
	}
	return nil
}

//go:embed schemas/*.yaml
var builtinFS embed.FS

// ParseSchema decodes and checks a YAML schema document.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if s.DefaultSort.Key == "" {
		s.DefaultSort = SortSpec{Key: KeyCreatedAt, Desc: true}
	}
	if err := s.Check(); err != nil {
		return nil, err
	}
	return &s, nil
}

// BuiltinSchemaNames lists the embedded schemas.
func BuiltinSchemaNames() []string {
	entries, err := builtinFS.ReadDir("schemas")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// LoadSchema resolves ref as a built-in schema name or a path to a YAML file.
func LoadSchema(ref string) (*Schema, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = "todo"
	}
	if !strings.ContainsAny(ref, `/\`) && filepath.Ext(ref) == "" {
		data, err := builtinFS.ReadFile("schemas/" + ref + ".yaml")
		if err != nil {
			return nil, fmt.Errorf("unknown schema %q (built-in: %s)", ref, strings.Join(BuiltinSchemaNames(), ", "))
		}
		return ParseSchema(data)
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("read schema %q: %w", ref, err)
	}
	return ParseSchema(data)
}
