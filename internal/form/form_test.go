package form

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"list-manager/internal/model"
)

func schema(t *testing.T, name string) *model.Schema {
	t.Helper()
	s, err := model.LoadSchema(name)
	require.NoError(t, err)
	return s
}

func TestToDraftNewUsesDefaults(t *testing.T) {
	d := ToDraft(schema(t, "todo"), nil)
	assert.Equal(t, "medium", d["priority"])
	assert.Equal(t, "pending", d["status"])
	assert.Equal(t, "", d["dueDate"])
	assert.Equal(t, "", d["title"])
}

func TestToDraftCopiesRecord(t *testing.T) {
	s := schema(t, "shipments")
	rec := model.Record{ID: "x", CreatedAt: time.Now(), Fields: map[string]any{
		"trackingNumber": "RU123",
		"weightKg":       2.5,
		"fragile":        true,
	}}
	d := ToDraft(s, &rec)
	assert.Equal(t, "RU123", d["trackingNumber"])
	assert.Equal(t, "2.5", d["weightKg"])
	assert.Equal(t, "yes", d["fragile"])
	assert.Equal(t, "", d["eta"])
}

func TestFromDraftParsesTypes(t *testing.T) {
	s := schema(t, "todo")
	fields, err := FromDraft(s, Draft{
		"title":    "  Buy milk ",
		"status":   "In_Progress",
		"priority": "HIGH",
		"dueDate":  "2026-05-01",
		"tags":     "home, ,errands,home",
	})
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", fields["title"])
	assert.Equal(t, "in_progress", fields["status"])
	assert.Equal(t, "high", fields["priority"])
	assert.Equal(t, "2026-05-01", fields["dueDate"])
	assert.Equal(t, []string{"errands", "home"}, fields["tags"])
	assert.NotContains(t, fields, "description")
}

func TestFromDraftCollectsFieldErrors(t *testing.T) {
	s := schema(t, "leads")
	_, err := FromDraft(s, Draft{"name": "", "stage": "maybe", "value": "-3", "followUp": "tomorrow"})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "required", verr.Fields["name"])
	assert.Contains(t, verr.Fields["stage"], "must be one of")
	assert.Equal(t, "must be at least 0", verr.Fields["value"])
	assert.Equal(t, "must be a date (YYYY-MM-DD)", verr.Fields["followUp"])
}

func TestFromDraftNumbersAndBools(t *testing.T) {
	s := schema(t, "shipments")
	fields, err := FromDraft(s, Draft{"trackingNumber": "1", "weightKg": "1,25", "fragile": "да"})
	require.NoError(t, err)
	assert.Equal(t, 1.25, fields["weightKg"])
	assert.Equal(t, true, fields["fragile"])

	_, err = FromDraft(s, Draft{"trackingNumber": "1", "weightKg": "heavy", "fragile": "perhaps"})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must be a number", verr.Fields["weightKg"])
	assert.Equal(t, "must be yes or no", verr.Fields["fragile"])
}

func TestFromDraftRejectsUnknownField(t *testing.T) {
	_, err := FromDraft(schema(t, "todo"), Draft{"title": "x", "colour": "red"})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unknown field", verr.Fields["colour"])
}

func TestDraftRoundTrip(t *testing.T) {
	s := schema(t, "investments")
	in := map[string]any{"fund": "Index", "type": "equity", "amount": 1200.0, "purchasedOn": "2025-12-01", "tags": []string{"long"}}
	rec := model.Record{ID: "1", Fields: in}
	out, err := FromDraft(s, ToDraft(s, &rec))
	require.NoError(t, err)
	for k, v := range in {
		assert.Equal(t, v, out[k], k)
	}
}
