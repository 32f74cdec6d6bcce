package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinSchemasLoad(t *testing.T) {
	names := BuiltinSchemaNames()
	assert.Equal(t, []string{"investments", "leads", "shipments", "todo"}, names)
	for _, name := range names {
		s, err := LoadSchema(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, s.Name)
		assert.Equal(t, KindEnum, s.Status().Kind)
	}
}

func TestLoadSchemaDefaultsToTodo(t *testing.T) {
	s, err := LoadSchema("")
	require.NoError(t, err)
	assert.Equal(t, "todo", s.Name)
	assert.Equal(t, SortSpec{Key: KeyCreatedAt, Desc: true}, s.DefaultSort)
}

func TestLoadSchemaUnknownName(t *testing.T) {
	_, err := LoadSchema("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "todo")
}

func TestRankTableByName(t *testing.T) {
	s, err := LoadSchema("todo")
	require.NoError(t, err)
	priority, ok := s.Field("priority")
	require.True(t, ok)
	require.NotNil(t, priority.Rank)
	assert.Equal(t, PriorityRankV1.Version, priority.Rank.Version)
	assert.Equal(t, 0, priority.Rank.Rank("high"))
	assert.Equal(t, 2, priority.Rank.Rank("low"))
	assert.Equal(t, 3, priority.Rank.Rank("urgent"))
}

func TestLoadSchemaFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.yaml")
	doc := `
name: books
status_field: state
fields:
  - name: title
    kind: text
    required: true
  - name: state
    kind: enum
    values: [unread, reading, read]
    default: unread
    rank:
      version: 3
      order: [reading, unread, read]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	s, err := LoadSchema(path)
	require.NoError(t, err)
	state, _ := s.Field("state")
	assert.Equal(t, 3, state.Rank.Version)
	assert.Equal(t, 0, state.Rank.Rank("reading"))
}

func TestSchemaCheckRejectsBrokenSchemas(t *testing.T) {
	cases := map[string]string{
		"reserved name": `
name: x
status_field: status
fields:
  - {name: id, kind: text}
  - {name: status, kind: enum, values: [a]}
`,
		"duplicate": `
name: x
status_field: status
fields:
  - {name: status, kind: enum, values: [a]}
  - {name: status, kind: enum, values: [a]}
`,
		"missing status": `
name: x
status_field: state
fields:
  - {name: title, kind: text}
`,
		"bad default": `
name: x
status_field: status
fields:
  - {name: status, kind: enum, values: [a], default: b}
`,
		"bad kind": `
name: x
status_field: status
fields:
  - {name: status, kind: enum, values: [a]}
  - {name: when, kind: datetime}
`,
		"bad rank ref": `
name: x
status_field: status
fields:
  - {name: status, kind: enum, values: [a], rank: nope}
`,
	}
	for name, doc := range cases {
		_, err := ParseSchema([]byte(doc))
		assert.Error(t, err, name)
	}
}
