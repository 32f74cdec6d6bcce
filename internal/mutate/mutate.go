// Package mutate applies single create/update/remove/toggle operations to a
// collection. Every function is pure: the input collection is never modified and
// records that are not touched keep their identity in the result.
package mutate

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"list-manager/internal/model"
)

// Mutator carries the schema plus the clock and id source used by mutations.
type Mutator struct {
	Schema *model.Schema
	Now    func() time.Time
	NewID  func() string
}

func New(schema *model.Schema) Mutator {
	return Mutator{Schema: schema, Now: time.Now, NewID: uuid.NewString}
}

func (m Mutator) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now().UTC()
}

// freshID draws ids until one is unused in c.
func (m Mutator) freshID(c model.Collection) string {
	gen := m.NewID
	if gen == nil {
		gen = uuid.NewString
	}
	for {
		id := gen()
		if id != "" && c.Find(id) < 0 {
			return id
		}
	}
}

// Create validates fields and inserts a new record at the front of c.
// Fields the caller leaves out take their schema defaults.
func (m Mutator) Create(c model.Collection, fields map[string]any) (model.Collection, model.Record, error) {
	merged := m.Schema.Defaults()
	for k, v := range fields {
		merged[k] = v
	}
	if err := m.Schema.Validate(merged); err != nil {
		return c, model.Record{}, err
	}
	now := m.now()
	rec := model.Record{
		ID:        m.freshID(c),
		CreatedAt: now,
		UpdatedAt: now,
		Fields:    copyFields(merged),
	}
	out := make(model.Collection, 0, len(c)+1)
	out = append(out, rec)
	out = append(out, c...)
	return out, rec, nil
}

// Update replaces the fields of the record with id, keeping its id and createdAt.
// Fields absent from the update are cleared, matching a full form submission.
func (m Mutator) Update(c model.Collection, id string, fields map[string]any) (model.Collection, model.Record, error) {
	idx := c.Find(id)
	if idx < 0 {
		return c, model.Record{}, NotFoundError{Kind: "record", ID: id}
	}
	if err := m.Schema.Validate(fields); err != nil {
		return c, model.Record{}, err
	}
	prev := c[idx]
	rec := model.Record{
		ID:        prev.ID,
		CreatedAt: prev.CreatedAt,
		UpdatedAt: m.advance(prev.UpdatedAt),
		Fields:    copyFields(fields),
		Extra:     prev.Clone().Extra,
	}
	return replaceAt(c, idx, rec), rec, nil
}

// Remove drops the record with id. A missing id leaves c unchanged and reports false.
func (m Mutator) Remove(c model.Collection, id string) (model.Collection, bool) {
	idx := c.Find(id)
	if idx < 0 {
		return c, false
	}
	out := make(model.Collection, 0, len(c)-1)
	out = append(out, c[:idx]...)
	out = append(out, c[idx+1:]...)
	return out, true
}

// Toggle flips a bool field or advances an enum field to the next value of its cycle.
// An enum holding a value outside the cycle moves to the first cycle value.
func (m Mutator) Toggle(c model.Collection, id, field string) (model.Collection, model.Record, error) {
	idx := c.Find(id)
	if idx < 0 {
		return c, model.Record{}, NotFoundError{Kind: "record", ID: id}
	}
	def, ok := m.Schema.Field(field)
	if !ok {
		return c, model.Record{}, fmt.Errorf("%w: unknown field %q", ErrNotToggleable, field)
	}
	rec := c[idx].Clone()
	if rec.Fields == nil {
		rec.Fields = make(map[string]any)
	}
	switch def.Kind {
	case model.KindBool:
		rec.Fields[field] = !rec.Bool(field)
	case model.KindEnum:
		rec.Fields[field] = NextInCycle(def.CycleValues(), rec.Text(field))
	default:
		return c, model.Record{}, fmt.Errorf("%w: %s is %s", ErrNotToggleable, field, def.Kind)
	}
	rec.UpdatedAt = m.advance(rec.UpdatedAt)
	return replaceAt(c, idx, rec), rec, nil
}

// NextInCycle returns the value after current, wrapping around.
func NextInCycle(cycle []string, current string) string {
	for i, v := range cycle {
		if v == current {
			return cycle[(i+1)%len(cycle)]
		}
	}
	return cycle[0]
}

// advance returns now, or prev+1ns when the clock has not moved past prev.
func (m Mutator) advance(prev time.Time) time.Time {
	now := m.now()
	if !now.After(prev) {
		return prev.Add(time.Nanosecond)
	}
	return now
}

func replaceAt(c model.Collection, idx int, rec model.Record) model.Collection {
	out := make(model.Collection, len(c))
	copy(out, c)
	out[idx] = rec
	return out
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if v == nil {
			continue
		}
		if tags, ok := v.([]string); ok {
			v = model.NormalizeTags(tags)
		}
		out[k] = v
	}
	return out
}
