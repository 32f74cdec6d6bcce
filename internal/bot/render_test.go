package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"list-manager/internal/model"
	"list-manager/internal/service"
	"list-manager/internal/view"
)

var now = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func todoSchema(t *testing.T) *model.Schema {
	t.Helper()
	s, err := model.LoadSchema("todo")
	require.NoError(t, err)
	return s
}

func sampleTodos() model.Collection {
	return model.Collection{
		{ID: "aaaaaaaa-1111", CreatedAt: now, UpdatedAt: now, Fields: map[string]any{
			"title": "buy <milk>", "status": "pending", "priority": "low", "dueDate": "2026-03-30",
		}},
		{ID: "bbbbbbbb-2222", CreatedAt: now.Add(time.Minute), UpdatedAt: now.Add(time.Minute), Fields: map[string]any{
			"title": "Call bank", "status": "archived", "priority": "high", "description": "mortgage",
		}},
	}
}

func TestRenderListEmpty(t *testing.T) {
	s := todoSchema(t)
	res := view.Project(s, nil, view.DefaultState(s))
	text, markup := renderList(s, res, view.DefaultState(s), false, now)
	assert.Contains(t, text, "The list is empty")
	assert.Nil(t, markup)
}

func TestRenderListNoMatches(t *testing.T) {
	s := todoSchema(t)
	fs := view.FilterState{Search: "zzz"}
	res := view.Project(s, sampleTodos(), fs)
	text, markup := renderList(s, res, fs, false, now)
	assert.Contains(t, text, "Nothing matches")
	assert.Contains(t, text, "0 of 2")
	assert.Nil(t, markup)
}

func TestRenderListItems(t *testing.T) {
	s := todoSchema(t)
	fs := view.DefaultState(s)
	res := view.Project(s, sampleTodos(), fs)
	text, markup := renderList(s, res, fs, false, now)

	require.NotNil(t, markup)
	assert.Len(t, markup.InlineKeyboard, 2)
	assert.Contains(t, text, "Buy &lt;milk&gt;")
	assert.Contains(t, text, iconOverdue)
	assert.Contains(t, text, "<code>aaaaaaaa</code>")
	assert.Contains(t, text, "Description: mortgage")
	// undeclared status value is kept and marked
	assert.Contains(t, text, iconUnknown+" archived")

	row := markup.InlineKeyboard[0]
	require.Len(t, row, 3)
	require.NotNil(t, row[0].CallbackData)
	assert.Equal(t, cbTogglePrefix+"bbbbbbbb-2222", *row[0].CallbackData)
}

func TestRenderListCompact(t *testing.T) {
	s := todoSchema(t)
	fs := view.DefaultState(s)
	res := view.Project(s, sampleTodos(), fs)
	text, _ := renderList(s, res, fs, true, now)
	assert.NotContains(t, text, "Description")
	assert.Contains(t, text, "Call bank")
}

func TestRenderListDescribesFilters(t *testing.T) {
	s := todoSchema(t)
	fs := view.DefaultState(s).With(view.Filter{Field: "priority", Values: []string{"low"}})
	fs.Search = "milk"
	res := view.Project(s, sampleTodos(), fs)
	text, _ := renderList(s, res, fs, false, now)
	assert.Contains(t, text, "Priority = low")
	assert.Contains(t, text, "search “milk”")
	assert.Contains(t, text, "1 of 2")
}

func TestRenderValidationFollowsSchemaOrder(t *testing.T) {
	s := todoSchema(t)
	verr := model.NewValidationError()
	verr.Add("dueDate", "must be a date (YYYY-MM-DD)")
	verr.Add("title", "required")
	verr.Add("zzz", "unknown field")
	text := renderValidation(s, verr)

	title := strings.Index(text, "Title: required")
	due := strings.Index(text, "Due date: must be")
	unknown := strings.Index(text, "zzz: unknown field")
	require.True(t, title >= 0 && due >= 0 && unknown >= 0, text)
	assert.Less(t, title, due)
	assert.Less(t, due, unknown)
}

func TestRenderNotices(t *testing.T) {
	text, markup := renderNotices([]service.Notice{
		{ID: 3, Kind: service.NoticePersistence, Text: "Storage is full"},
		{ID: 4, Kind: service.NoticeCollaborator, Text: "timeout <5s>"},
	})
	assert.Contains(t, text, "💾 Storage is full")
	assert.Contains(t, text, "timeout &lt;5s&gt;")
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, cbDismissPrefix+"4", *markup.InlineKeyboard[1][0].CallbackData)
}

func TestShortHelpers(t *testing.T) {
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "12345678", shortID("1234567890"))
	assert.Equal(t, "Привет", shortTitle(" Привет ", 10))
	assert.Equal(t, "Прив…", shortTitle("Привет мир", 5))
	assert.Equal(t, "Hello", normalizeTitle(" hello "))
}

func TestBoolInputAndSkip(t *testing.T) {
	assert.True(t, isSkipInput(btnSkip))
	assert.True(t, isCancelDialogInput(btnCancelDialog))
	assert.Equal(t, "yes", boolInput(btnYes))
}
