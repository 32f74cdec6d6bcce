package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Defaults returns the typed default value of every field that declares one.
func (s *Schema) Defaults() map[string]any {
	out := make(map[string]any)
	for _, f := range s.Fields {
		if f.Default == "" {
			if f.Kind == KindTags {
				out[f.Name] = []string{}
			}
			continue
		}
		switch f.Kind {
		case KindNumber:
			if n, err := strconv.ParseFloat(f.Default, 64); err == nil {
				out[f.Name] = n
			}
		case KindBool:
			if b, err := strconv.ParseBool(f.Default); err == nil {
				out[f.Name] = b
			}
		case KindTags:
			out[f.Name] = NormalizeTags(strings.Split(f.Default, ","))
		default:
			out[f.Name] = f.Default
		}
	}
	return out
}

// Validate checks typed field values against the schema. It is the last gate
// before a value reaches the collection, so it rejects unknown enum values that
// stored data is otherwise allowed to carry.
func (s *Schema) Validate(fields map[string]any) error {
	verr := NewValidationError()
	for name := range fields {
		if _, ok := s.Field(name); !ok {
			verr.Add(name, "unknown field")
		}
	}
	for _, f := range s.Fields {
		v, present := fields[f.Name]
		if !present || v == nil {
			if f.Required {
				verr.Add(f.Name, "required")
			}
			continue
		}
		if msg := checkValue(f, v); msg != "" {
			verr.Add(f.Name, msg)
		}
	}
	return verr.OrNil()
}

func checkValue(f FieldDef, v any) string {
	switch f.Kind {
	case KindText:
		s, ok := v.(string)
		if !ok {
			return "must be text"
		}
		if f.Required && strings.TrimSpace(s) == "" {
			return "required"
		}
	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return "must be text"
		}
		if s == "" {
			if f.Required {
				return "required"
			}
			return ""
		}
		if !f.Allows(s) {
			return "must be one of: " + strings.Join(f.Values, ", ")
		}
	case KindNumber:
		n, ok := v.(float64)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return "must be a number"
		}
		if f.Min != nil && n < *f.Min {
			return fmt.Sprintf("must be at least %s", strconv.FormatFloat(*f.Min, 'f', -1, 64))
		}
	case KindDate:
		s, ok := v.(string)
		if !ok {
			return "must be a date (YYYY-MM-DD)"
		}
		if s == "" {
			if f.Required {
				return "required"
			}
			return ""
		}
		if _, err := time.Parse(DateLayout, s); err != nil {
			return "must be a date (YYYY-MM-DD)"
		}
	case KindBool:
		if _, ok := v.(bool); !ok {
			return "must be yes or no"
		}
	case KindTags:
		tags, ok := v.([]string)
		if !ok {
			return "must be a list of tags"
		}
		if f.Required && len(tags) == 0 {
			return "required"
		}
	}
	return ""
}
