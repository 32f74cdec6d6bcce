// Package form maps records to editable text fields and parses them back.
package form

import (
	"math"
	"strconv"
	"strings"
	"time"

	"list-manager/internal/model"
)

// Draft is the editable text of a record, keyed by field name.
type Draft map[string]string

// ToDraft returns the editable text of rec, or the schema defaults when rec is nil.
func ToDraft(s *model.Schema, rec *model.Record) Draft {
	d := make(Draft, len(s.Fields))
	if rec == nil {
		for _, f := range s.Fields {
			d[f.Name] = f.Default
		}
		return d
	}
	for _, f := range s.Fields {
		d[f.Name] = model.FormatValue(f, rec.Fields[f.Name])
	}
	return d
}

// FromDraft parses and validates d. On failure the error is a
// *model.ValidationError with one message per rejected field.
func FromDraft(s *model.Schema, d Draft) (map[string]any, error) {
	fields := make(map[string]any, len(s.Fields))
	verr := model.NewValidationError()
	for name := range d {
		if _, ok := s.Field(name); !ok {
			verr.Add(name, "unknown field")
		}
	}
	for _, f := range s.Fields {
		raw := strings.TrimSpace(d[f.Name])
		v, msg := ParseValue(f, raw)
		if msg != "" {
			verr.Add(f.Name, msg)
			continue
		}
		if v != nil {
			fields[f.Name] = v
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	if err := s.Validate(fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// ParseValue converts one trimmed input string to the field's canonical type.
// A nil value with no message means the field was left empty.
func ParseValue(f model.FieldDef, raw string) (any, string) {
	if raw == "" {
		if f.Required {
			return nil, "required"
		}
		if f.Kind == model.KindTags {
			return []string{}, ""
		}
		return nil, ""
	}
	switch f.Kind {
	case model.KindText:
		return raw, ""
	case model.KindEnum:
		for _, v := range f.Values {
			if strings.EqualFold(v, raw) {
				return v, ""
			}
		}
		return nil, "must be one of: " + strings.Join(f.Values, ", ")
	case model.KindNumber:
		n, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, "must be a number"
		}
		if f.Min != nil && n < *f.Min {
			return nil, "must be at least " + strconv.FormatFloat(*f.Min, 'f', -1, 64)
		}
		return n, ""
	case model.KindDate:
		t, err := time.Parse(model.DateLayout, raw)
		if err != nil {
			return nil, "must be a date (YYYY-MM-DD)"
		}
		return t.Format(model.DateLayout), ""
	case model.KindBool:
		switch strings.ToLower(raw) {
		case "true", "yes", "y", "1", "да", "д":
			return true, ""
		case "false", "no", "n", "0", "нет", "н":
			return false, ""
		}
		return nil, "must be yes or no"
	case model.KindTags:
		tags := model.NormalizeTags(strings.Split(raw, ","))
		if f.Required && len(tags) == 0 {
			return nil, "required"
		}
		return tags, ""
	}
	return nil, "unsupported field"
}
