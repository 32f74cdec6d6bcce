package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Record is one entity of a list: a task, a lead, an investment, a shipment.
// Field values use canonical Go types: string for text, enum and date fields,
// float64 for numbers, bool, and a sorted []string for tags.
type Record struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    map[string]any
	// Extra holds stored keys the schema does not declare; they are written back untouched.
	Extra map[string]json.RawMessage
}

// Collection is the ordered list of records owned by a session.
type Collection []Record

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	if r.Fields != nil {
		out.Fields = make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			if tags, ok := v.([]string); ok {
				v = append([]string(nil), tags...)
			}
			out.Fields[k] = v
		}
	}
	if r.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Text returns a string-valued field, or "" when absent.
func (r Record) Text(name string) string {
	s, _ := r.Fields[name].(string)
	return s
}

// Number returns a numeric field.
func (r Record) Number(name string) (float64, bool) {
	f, ok := r.Fields[name].(float64)
	return f, ok
}

// Bool returns a boolean field, false when absent.
func (r Record) Bool(name string) bool {
	b, _ := r.Fields[name].(bool)
	return b
}

// Tags returns a tags field.
func (r Record) Tags(name string) []string {
	t, _ := r.Fields[name].([]string)
	return t
}

// Date parses a date field.
func (r Record) Date(name string) (time.Time, bool) {
	s := r.Text(name)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Anomalies lists stored values that do not fit the schema. Such values are kept
// and rendered in a fallback bucket rather than rejected.
func (r Record) Anomalies(s *Schema) []string {
	var out []string
	for _, f := range s.Fields {
		v, ok := r.Fields[f.Name]
		if !ok {
			continue
		}
		switch f.Kind {
		case KindEnum:
			if str, _ := v.(string); str != "" && !f.Allows(str) {
				out = append(out, fmt.Sprintf("record %s: %s has unknown value %q", r.ID, f.Name, str))
			}
		case KindDate:
			if str, _ := v.(string); str != "" {
				if _, err := time.Parse(DateLayout, str); err != nil {
					out = append(out, fmt.Sprintf("record %s: %s has malformed date %q", r.ID, f.Name, str))
				}
			}
		}
	}
	return out
}

// Find returns the index of the record with id, or -1.
func (c Collection) Find(id string) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}

// IDs returns every record id in order.
func (c Collection) IDs() []string {
	out := make([]string, len(c))
	for i := range c {
		out[i] = c[i].ID
	}
	return out
}

// FormatValue renders a field value the way a user would type it.
func FormatValue(f FieldDef, v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "yes"
		}
		return "no"
	case []string:
		return strings.Join(val, ", ")
	default:
		return fmt.Sprint(val)
	}
}

// MarshalJSON writes the record as a flat object.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+len(r.Extra)+3)
	for k, v := range r.Extra {
		out[k] = v
	}
	for k, v := range r.Fields {
		out[k] = v
	}
	out[KeyID] = r.ID
	out[KeyCreatedAt] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	out[KeyUpdatedAt] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	return json.Marshal(out)
}

// DecodeWarning reports a stored value that was coerced leniently or dropped.
type DecodeWarning struct {
	RecordID string
	Field    string
	Msg      string
	// Dropped is set when the value could not be coerced and is missing from the record.
	Dropped bool
}

func (w DecodeWarning) String() string {
	return fmt.Sprintf("record %s: %s: %s", w.RecordID, w.Field, w.Msg)
}

// ErrShape is wrapped by decode errors for data that is not a list of records.
var ErrShape = errors.New("unexpected shape")

// EncodeCollection serializes the collection as a JSON array.
func EncodeCollection(c Collection) ([]byte, error) {
	if c == nil {
		c = Collection{}
	}
	return json.Marshal(c)
}

// DecodeCollection parses a JSON array of flat objects. Each object needs a
// string id and ids must be unique; anything else is coerced leniently and
// reported through the returned warnings.
func DecodeCollection(s *Schema, data []byte) (Collection, []DecodeWarning, error) {
	var raws []map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raws); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrShape, err)
	}
	if raws == nil {
		// a literal null is not a list
		return nil, nil, fmt.Errorf("%w: expected an array", ErrShape)
	}
	out := make(Collection, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	var warnings []DecodeWarning
	for i, raw := range raws {
		if raw == nil {
			return nil, nil, fmt.Errorf("%w: element %d is not an object", ErrShape, i)
		}
		rec, warn, err := DecodeRecord(s, raw)
		if err != nil {
			return nil, nil, fmt.Errorf("element %d: %w", i, err)
		}
		if seen[rec.ID] {
			return nil, nil, fmt.Errorf("%w: duplicate id %q", ErrShape, rec.ID)
		}
		seen[rec.ID] = true
		warnings = append(warnings, warn...)
		out = append(out, rec)
	}
	return out, warnings, nil
}

// DecodeRecord converts one stored object into a Record.
func DecodeRecord(s *Schema, raw map[string]json.RawMessage) (Record, []DecodeWarning, error) {
	var rec Record
	idRaw, ok := raw[KeyID]
	if !ok {
		return rec, nil, fmt.Errorf("%w: missing id", ErrShape)
	}
	if err := json.Unmarshal(idRaw, &rec.ID); err != nil || rec.ID == "" {
		return rec, nil, fmt.Errorf("%w: id must be a non-empty string", ErrShape)
	}
	var warnings []DecodeWarning
	var err error
	if rec.CreatedAt, err = decodeTime(raw[KeyCreatedAt]); err != nil {
		warnings = append(warnings, DecodeWarning{RecordID: rec.ID, Field: KeyCreatedAt, Msg: err.Error()})
	}
	if rec.UpdatedAt, err = decodeTime(raw[KeyUpdatedAt]); err != nil {
		warnings = append(warnings, DecodeWarning{RecordID: rec.ID, Field: KeyUpdatedAt, Msg: err.Error()})
	}
	if rec.UpdatedAt.Before(rec.CreatedAt) {
		rec.UpdatedAt = rec.CreatedAt
	}

	rec.Fields = make(map[string]any)
	for key, value := range raw {
		switch key {
		case KeyID, KeyCreatedAt, KeyUpdatedAt:
			continue
		}
		def, known := s.Field(key)
		if !known {
			if rec.Extra == nil {
				rec.Extra = make(map[string]json.RawMessage)
			}
			rec.Extra[key] = append(json.RawMessage(nil), value...)
			continue
		}
		v, ok := coerceStored(def, value)
		if !ok {
			warnings = append(warnings, DecodeWarning{RecordID: rec.ID, Field: key, Msg: "dropped value " + string(value), Dropped: true})
			continue
		}
		if v != nil {
			rec.Fields[key] = v
		}
	}
	return rec, warnings, nil
}

func decodeTime(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, errors.New("missing")
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		t, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("not a timestamp: %s", string(raw))
	}
	return time.UnixMilli(ms).UTC(), nil
}

// coerceStored maps a stored JSON value onto the field's canonical type.
// A nil value with ok=true means "absent".
func coerceStored(f FieldDef, raw json.RawMessage) (any, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	if v == nil {
		return nil, true
	}
	switch f.Kind {
	case KindText, KindEnum, KindDate:
		switch val := v.(type) {
		case string:
			return val, true
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64), true
		case bool:
			return strconv.FormatBool(val), true
		}
	case KindNumber:
		switch val := v.(type) {
		case float64:
			return val, true
		case string:
			n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
				return n, true
			}
		}
	case KindBool:
		switch val := v.(type) {
		case bool:
			return val, true
		case string:
			if b, err := strconv.ParseBool(val); err == nil {
				return b, true
			}
		}
	case KindTags:
		switch val := v.(type) {
		case []any:
			tags := make([]string, 0, len(val))
			for _, item := range val {
				if s, ok := item.(string); ok {
					tags = append(tags, s)
				}
			}
			return NormalizeTags(tags), true
		case string:
			return NormalizeTags(strings.Split(val, ",")), true
		}
	}
	return nil, false
}

// NormalizeTags trims, drops empties, de-duplicates and sorts.
func NormalizeTags(in []string) []string {
	set := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" || set[t] {
			continue
		}
		set[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
