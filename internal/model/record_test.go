package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func todoSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := LoadSchema("todo")
	require.NoError(t, err)
	return s
}

func TestCollectionRoundTrip(t *testing.T) {
	s := todoSchema(t)
	t0 := time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC)
	c := Collection{
		{
			ID:        "1",
			CreatedAt: t0,
			UpdatedAt: t0.Add(time.Hour),
			Fields: map[string]any{
				"title":    "Buy milk",
				"status":   "pending",
				"priority": "low",
				"dueDate":  "2026-03-02",
				"tags":     []string{"home", "shop"},
			},
		},
		{ID: "2", CreatedAt: t0, UpdatedAt: t0, Fields: map[string]any{"title": "Call bank", "status": "completed"}},
	}

	data, err := EncodeCollection(c)
	require.NoError(t, err)
	got, warnings, err := DecodeCollection(s, data)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, c, got)
}

func TestDecodeCollectionRejectsBadShapes(t *testing.T) {
	s := todoSchema(t)
	for _, doc := range []string{
		`{not json`,
		`{"id":"1"}`,
		`null`,
		`[1, 2]`,
		`[null]`,
		`[{"title":"no id"}]`,
		`[{"id": 7}]`,
		`[{"id":"a"},{"id":"a"}]`,
	} {
		_, _, err := DecodeCollection(s, []byte(doc))
		assert.ErrorIs(t, err, ErrShape, doc)
	}
}

func TestDecodeKeepsUnknownKeysAndEnumValues(t *testing.T) {
	s := todoSchema(t)
	doc := `[{"id":"1","createdAt":1700000000000,"updatedAt":"2023-11-14T22:13:20Z","title":"x","priority":"urgent","color":"red","tags":"b, a ,b"}]`
	c, warnings, err := DecodeCollection(s, []byte(doc))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, c, 1)
	rec := c[0]
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), rec.CreatedAt)
	assert.Equal(t, "urgent", rec.Text("priority"))
	assert.Equal(t, []string{"a", "b"}, rec.Tags("tags"))
	assert.JSONEq(t, `"red"`, string(rec.Extra["color"]))
	assert.Len(t, rec.Anomalies(s), 1)

	out, err := EncodeCollection(c)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"color":"red"`)
}

func TestDecodeDropsUncoercibleValues(t *testing.T) {
	s, err := LoadSchema("leads")
	require.NoError(t, err)
	c, warnings, err := DecodeCollection(s, []byte(`[{"id":"1","name":"Ann","value":"12.5"},{"id":"2","name":"Bob","value":{"x":1}}]`))
	require.NoError(t, err)
	v, ok := c[0].Number("value")
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)
	_, ok = c[1].Number("value")
	assert.False(t, ok)
	assert.Len(t, warnings, 5) // four missing timestamps plus the dropped value
	var dropped []string
	for _, w := range warnings {
		if w.Dropped {
			dropped = append(dropped, w.RecordID+"/"+w.Field)
		}
	}
	assert.Equal(t, []string{"2/value"}, dropped)
}

func TestValidate(t *testing.T) {
	s := todoSchema(t)
	err := s.Validate(map[string]any{"title": "  ", "priority": "urgent", "dueDate": "tomorrow", "bogus": 1})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "required", verr.Fields["title"])
	assert.Equal(t, "must be one of: high, medium, low", verr.Fields["priority"])
	assert.Equal(t, "must be a date (YYYY-MM-DD)", verr.Fields["dueDate"])
	assert.Equal(t, "unknown field", verr.Fields["bogus"])

	assert.NoError(t, s.Validate(map[string]any{"title": "ok", "status": "pending"}))
}

func TestDefaults(t *testing.T) {
	s := todoSchema(t)
	d := s.Defaults()
	assert.Equal(t, "pending", d["status"])
	assert.Equal(t, "medium", d["priority"])
	assert.Equal(t, []string{}, d["tags"])
	_, ok := d["title"]
	assert.False(t, ok)
}
