package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t  *testing.T
	db string
}

func newHarness(t *testing.T) harness {
	t.Helper()
	return harness{t: t, db: filepath.Join(t.TempDir(), "cli.db")}
}

// run executes one command against the harness database.
func (h harness) run(args ...string) (string, string, error) {
	h.t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--db", h.db}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func (h harness) mustRun(args ...string) string {
	h.t.Helper()
	out, errOut, err := h.run(args...)
	require.NoError(h.t, err, errOut)
	return out
}

func TestAddAndList(t *testing.T) {
	h := newHarness(t)
	id := strings.TrimSpace(h.mustRun("add", "--set", "title=Buy milk", "--set", "priority=high", "--set", "tags=home, shop"))
	require.NotEmpty(t, id)

	out := h.mustRun("list")
	assert.Contains(t, out, "Buy milk")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "home, shop")
	assert.Contains(t, out, id[:8])
	assert.Contains(t, out, "1 of 1")
}

func TestAddRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run("add", "--set", "priority=high")
	assert.ErrorContains(t, err, "title: required")

	_, _, err = h.run("add", "--set", "title=x", "--set", "dueDate=tomorrow")
	assert.ErrorContains(t, err, "dueDate")

	_, _, err = h.run("add", "--set", "title")
	assert.ErrorContains(t, err, "expected field=value")

	assert.Contains(t, h.mustRun("list"), "The list is empty.")
}

func TestAddHonoursSlotQuota(t *testing.T) {
	h := newHarness(t)
	t.Setenv("SLOT_QUOTA_BYTES", "16")
	_, errOut, err := h.run("add", "--set", "title=Buy milk")
	assert.ErrorContains(t, err, "changes were not saved")
	assert.Contains(t, errOut, "Storage is full")

	t.Setenv("SLOT_QUOTA_BYTES", "lots")
	_, _, err = h.run("list")
	assert.ErrorContains(t, err, "SLOT_QUOTA_BYTES")

	t.Setenv("SLOT_QUOTA_BYTES", "")
	assert.Contains(t, h.mustRun("list"), "The list is empty.")
}

func TestListFiltersAndSearch(t *testing.T) {
	h := newHarness(t)
	h.mustRun("add", "--set", "title=Buy milk", "--set", "priority=low")
	h.mustRun("add", "--set", "title=Call bank", "--set", "priority=high")

	out := h.mustRun("list", "--filter", "priority=high")
	assert.Contains(t, out, "Call bank")
	assert.NotContains(t, out, "Buy milk")
	assert.Contains(t, out, "1 of 2")

	out = h.mustRun("list", "--search", "MILK", "--compact")
	assert.Contains(t, out, "Buy milk")
	assert.NotContains(t, out, "Priority")

	assert.Contains(t, h.mustRun("list", "--search", "zzz"), "Nothing matches")

	_, _, err := h.run("list", "--sort", "nope")
	assert.Error(t, err)
}

func TestEditToggleRemove(t *testing.T) {
	h := newHarness(t)
	id := strings.TrimSpace(h.mustRun("add", "--set", "title=Write report"))

	h.mustRun("edit", id[:6], "--set", "priority=high", "--set", "dueDate=2026-05-01")
	out := h.mustRun("list")
	assert.Contains(t, out, "high")
	assert.Contains(t, out, "2026-05-01")

	assert.Contains(t, h.mustRun("toggle", id), "status=completed")
	assert.Contains(t, h.mustRun("toggle", id), "status=pending")

	_, _, err := h.run("toggle", id, "title")
	assert.Error(t, err)

	h.mustRun("rm", id)
	assert.Contains(t, h.mustRun("list"), "The list is empty.")

	_, _, err = h.run("rm", id)
	assert.Error(t, err)
}

func TestExportImport(t *testing.T) {
	h := newHarness(t)
	h.mustRun("add", "--set", "title=One")
	h.mustRun("add", "--set", "title=Two, with comma")

	csvOut := h.mustRun("export", "--format", "csv")
	assert.True(t, strings.HasPrefix(csvOut, "id,createdAt,updatedAt,title"))
	assert.Contains(t, csvOut, `"Two, with comma"`)

	file := filepath.Join(t.TempDir(), "list.json")
	h.mustRun("export", "-o", file)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(data, &docs))
	assert.Len(t, docs, 2)

	other := newHarness(t)
	assert.Contains(t, other.mustRun("import", file), "imported 2 records")
	assert.Contains(t, other.mustRun("list"), "2 of 2")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"title":"no id"}]`), 0o644))
	_, _, err = other.run("import", bad)
	assert.Error(t, err)
	assert.Contains(t, other.mustRun("list"), "2 of 2")
}

func TestOwnersAreSeparate(t *testing.T) {
	h := newHarness(t)
	h.mustRun("--owner", "alice", "add", "--set", "title=Alice task")
	assert.Contains(t, h.mustRun("--owner", "bob", "list"), "The list is empty.")
	assert.Contains(t, h.mustRun("--owner", "alice", "list"), "Alice task")
}

func TestSchemas(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("schemas")
	for _, name := range []string{"investments", "leads", "shipments", "todo"} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "* todo")

	out = h.mustRun("schemas", "todo")
	assert.Contains(t, out, "dueDate")
	assert.Contains(t, out, "pending, in_progress, completed")

	_, _, err := h.run("schemas", "nope")
	assert.Error(t, err)
}

func TestOtherSchema(t *testing.T) {
	h := newHarness(t)
	h.mustRun("--schema", "investments", "add", "--set", "fund=Index", "--set", "type=equity", "--set", "amount=1000,5")
	out := h.mustRun("--schema", "investments", "list")
	assert.Contains(t, out, "Index")
	assert.Contains(t, h.mustRun("list"), "The list is empty.")
}

func TestApplySets(t *testing.T) {
	d := map[string]string{"title": "x"}
	require.NoError(t, applySets(d, []string{"title= y ", "tags=a=b"}))
	assert.Equal(t, "y", d["title"])
	assert.Equal(t, "a=b", d["tags"])
	assert.Error(t, applySets(d, []string{"=v"}))
}

func TestOwnersAndClear(t *testing.T) {
	h := newHarness(t)
	h.mustRun("--owner", "alice", "add", "--set", "title=A")
	h.mustRun("--owner", "bob", "add", "--set", "title=B")
	h.mustRun("--schema", "leads", "--owner", "carol", "list")

	assert.Equal(t, "alice\nbob\n", h.mustRun("owners"))

	_, _, err := h.run("--owner", "alice", "clear")
	assert.ErrorContains(t, err, "--yes")

	h.mustRun("--owner", "alice", "clear", "--yes")
	assert.Equal(t, "bob\n", h.mustRun("owners"))
	assert.Contains(t, h.mustRun("--owner", "alice", "list"), "The list is empty.")
}
