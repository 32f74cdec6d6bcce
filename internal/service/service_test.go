package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"list-manager/internal/backup"
	"list-manager/internal/metrics"
	"list-manager/internal/model"
	"list-manager/internal/mutate"
	"list-manager/internal/repository"
	"list-manager/internal/store"
	"list-manager/internal/suggest"
	"list-manager/internal/view"
)

type memSlot struct {
	mu     sync.Mutex
	data   map[string]string
	sets   map[string]int
	setErr error
}

func newMemSlot() *memSlot {
	return &memSlot{data: make(map[string]string), sets: make(map[string]int)}
}

func (m *memSlot) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memSlot) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.sets[key]++
	m.data[key] = value
	return nil
}

func (m *memSlot) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memSlot) writes(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets[key]
}

type fixture struct {
	slot    *memSlot
	lists   *ListService
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, schemaName string) fixture {
	t.Helper()
	schema, err := model.LoadSchema(schemaName)
	require.NoError(t, err)
	slot := newMemSlot()
	m := metrics.New()
	clock := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	mut := mutate.Mutator{
		Schema: schema,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
		NewID: func() string {
			n++
			return fmt.Sprintf("id%04d", n)
		},
	}
	return fixture{slot: slot, lists: NewListService(store.New(slot, schema), mut, m), metrics: m}
}

const owner = "tg1"

func recordsKey() string { return store.RecordsKey("todo", owner) }

func TestCreateSavesOnce(t *testing.T) {
	f := newFixture(t, "todo")
	ctx := context.Background()
	sess := f.lists.Open(ctx, owner)
	loadWrites := f.slot.writes(recordsKey())

	rec, err := sess.Create(ctx, map[string]any{"title": "Buy milk"})
	require.NoError(t, err)
	assert.Equal(t, "pending", rec.Text("status"))
	assert.Equal(t, loadWrites+1, f.slot.writes(recordsKey()))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Mutations.WithLabelValues("create")))
}

func TestInvalidCreateDoesNotWrite(t *testing.T) {
	f := newFixture(t, "todo")
	ctx := context.Background()
	sess := f.lists.Open(ctx, owner)
	_, err := sess.Create(ctx, map[string]any{"title": "Existing"})
	require.NoError(t, err)
	before := sess.Items()
	writes := f.slot.writes(recordsKey())

	_, err = sess.Create(ctx, map[string]any{"title": ""})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "required", verr.Fields["title"])
	assert.Equal(t, before, sess.Items())
	assert.Equal(t, writes, f.slot.writes(recordsKey()))
}

func TestRemoveTwiceWritesOnce(t *testing.T) {
	f := newFixture(t, "todo")
	ctx := context.Background()
	sess := f.lists.Open(ctx, owner)
	rec, err := sess.Create(ctx, map[string]any{"title": "x"})
	require.NoError(t, err)
	writes := f.slot.writes(recordsKey())

	assert.True(t, sess.Remove(ctx, rec.ID))
	assert.False(t, sess.Remove(ctx, rec.ID))
	assert.Empty(t, sess.Items())
	assert.Equal(t, writes+1, f.slot.writes(recordsKey()))
}

func TestUpdateAndToggleNotFound(t *testing.T) {
	f := newFixture(t, "todo")
	ctx := context.Background()
	sess := f.lists.Open(ctx, owner)
	writes := f.slot.writes(recordsKey())

	_, err := sess.Update(ctx, "missing", map[string]any{"title": "x"})
	var nf mutate.NotFoundError
	assert.ErrorAs(t, err, &nf)
	_, err = sess.Toggle(ctx, "missing", "")
	assert.ErrorAs(t, err, &nf)
	assert.Equal(t, writes, f.slot.writes(recordsKey()))
}

func TestToggleDefaultsToStatus(t *testing.T) {
	f := newFixture(t, "todo")
	ctx := context.Background()
	sess := f.lists.Open(ctx, owner)
	rec, err := sess.Create(ctx, map[string]any{"title": "x"})
	require.NoError(t, err)

	rec, err = sess.Toggle(ctx, rec.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "completed", rec.Text("status"))
	rec, err = sess.Toggle(ctx, rec.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "pending", rec.Text("status"))
}

func TestPersistenceFailureKeepsMemoryState(t *testing.T) {
	f := newFixture(t, "todo")
	ctx := context.Background()
	sess := f.lists.Open(ctx, owner)
	f.slot.setErr = fmt.Errorf("set: %w", repository.ErrQuotaExceeded)

	rec, err := sess.Create(ctx, map[string]any{"title": "kept"})
	require.NoError(t, err)
	got, ok := sess.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, "kept", got.Text("title"))

	notices := sess.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticePersistence, notices[0].Kind)
	assert.Contains(t, notices[0].Text, "Storage is full")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PersistenceFailures.WithLabelValues("true")))

	assert.True(t, sess.Dismiss(notices[0].ID))
	assert.False(t, sess.Dismiss(notices[0].ID))
	assert.Empty(t, sess.Notices())
}

func TestCorruptedLoadBecomesNotice(t *testing.T) {
	f := newFixture(t, "todo")
	f.slot.data[recordsKey()] = "{not json"
	sess := f.lists.Open(context.Background(), owner)

	assert.Empty(t, sess.Items())
	notices := sess.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeCorrupted, notices[0].Kind)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CorruptedLoads))

	// cached session is not reloaded
	assert.Same(t, sess, f.lists.Open(context.Background(), owner))
	f.lists.Forget(owner)
	again := f.lists.Open(context.Background(), owner)
	assert.Empty(t, again.Notices())
}

func TestUnknownEnumOnLoadIsFlagged(t *testing.T) {
	f := newFixture(t, "todo")
	f.slot.data[recordsKey()] = `[{"id":"a","title":"x","priority":"urgent","createdAt":"2026-01-01T00:00:00Z","updatedAt":"2026-01-01T00:00:00Z"}]`
	sess := f.lists.Open(context.Background(), owner)
	require.Len(t, sess.Items(), 1)
	assert.Equal(t, "urgent", sess.Items()[0].Text("priority"))
	notices := sess.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeAnomaly, notices[0].Kind)
	assert.Contains(t, notices[0].Text, "urgent")
}

func TestImportReplacesOrLeavesUntouched(t *testing.T) {
	f := newFixture(t, "todo")
	ctx := context.Background()
	sess := f.lists.Open(ctx, owner)
	_, err := sess.Create(ctx, map[string]any{"title": "old"})
	require.NoError(t, err)
	before := sess.Items()
	writes := f.slot.writes(recordsKey())

	_, err = sess.Import(ctx, strings.NewReader(`[{"id":"a","title":"x"},{"id":"a","title":"y"}]`))
	var cerr *model.CollaboratorError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, before, sess.Items())
	assert.Equal(t, writes, f.slot.writes(recordsKey()))
	require.Len(t, sess.Notices(), 1)
	assert.Equal(t, NoticeCollaborator, sess.Notices()[0].Kind)

	n, err := sess.Import(ctx, strings.NewReader(`[{"id":"a","title":"x"},{"id":"b","title":"y"}]`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, sess.Items().IDs())
	assert.Equal(t, writes+1, f.slot.writes(recordsKey()))
}

func TestExportFormats(t *testing.T) {
	f := newFixture(t, "todo")
	ctx := context.Background()
	sess := f.lists.Open(ctx, owner)
	_, err := sess.Create(ctx, map[string]any{"title": "a, \"b\""})
	require.NoError(t, err)

	var js, csv bytes.Buffer
	require.NoError(t, sess.Export(&js, FormatJSON))
	assert.True(t, strings.HasPrefix(js.String(), "["))
	require.NoError(t, sess.Export(&csv, FormatCSV))
	assert.Contains(t, csv.String(), `"a, ""b"""`)
	assert.Error(t, sess.Export(&csv, "xml"))
}

func TestResolveShortIDs(t *testing.T) {
	f := newFixture(t, "todo")
	ctx := context.Background()
	sess := f.lists.Open(ctx, owner)
	for i := 0; i < 2; i++ {
		_, err := sess.Create(ctx, map[string]any{"title": "x"})
		require.NoError(t, err)
	}
	id, err := sess.Resolve("id0001")
	require.NoError(t, err)
	assert.Equal(t, "id0001", id)
	id, err = sess.Resolve(" id0002 ")
	require.NoError(t, err)
	assert.Equal(t, "id0002", id)

	_, err = sess.Resolve("id000")
	assert.ErrorIs(t, err, ErrAmbiguousID)
	_, err = sess.Resolve("zz")
	var nf mutate.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestSessionViewState(t *testing.T) {
	f := newFixture(t, "todo")
	ctx := context.Background()
	sess := f.lists.Open(ctx, owner)
	_, err := sess.Create(ctx, map[string]any{"title": "milk", "priority": "low"})
	require.NoError(t, err)
	_, err = sess.Create(ctx, map[string]any{"title": "bank", "priority": "high"})
	require.NoError(t, err)

	require.NoError(t, sess.SetSort("priority", false))
	assert.Equal(t, "bank", sess.View().Items[0].Text("title"))

	require.NoError(t, sess.SetFilter(view.Filter{Field: "priority", Values: []string{"low"}}))
	got := sess.View()
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Total)

	sess.SetSearch("nothing")
	assert.True(t, sess.View().NoMatches())

	assert.Error(t, sess.SetSort("nope", false))
	assert.Error(t, sess.SetFilter(view.Filter{Field: "nope", Values: []string{"x"}}))

	sess.ResetView()
	assert.Len(t, sess.View().Items, 2)
	assert.False(t, sess.Filter().Active())
}

func TestCompactFlagPersists(t *testing.T) {
	f := newFixture(t, "todo")
	ctx := context.Background()
	sess := f.lists.Open(ctx, owner)
	assert.False(t, sess.Compact())
	sess.SetCompact(ctx, true)
	assert.Equal(t, "true", f.slot.data[store.UserFlagKey("todo", "compact", owner)])

	f.lists.Forget(owner)
	assert.True(t, f.lists.Open(ctx, owner).Compact())
}

type scriptedClient struct {
	text string
	err  error
	gate chan struct{}
}

func (c *scriptedClient) Complete(ctx context.Context, _ suggest.Request) (string, error) {
	if c.gate != nil {
		<-c.gate
	}
	return c.text, c.err
}

func TestSuggestTitlesCreatesRecords(t *testing.T) {
	f := newFixture(t, "todo")
	ctx := context.Background()
	sess := f.lists.Open(ctx, owner)
	svc := NewSuggestService(suggest.NewService(&scriptedClient{text: `["Pack bags", "Book taxi"]`}), f.metrics)

	ch, err := svc.Titles(ctx, sess, "plan a trip")
	require.NoError(t, err)
	out := <-ch
	require.NoError(t, out.Err)
	require.Len(t, out.Created, 2)
	assert.Len(t, sess.Items(), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Suggestions.WithLabelValues("ok")))
}

func TestSuggestFailureLeavesCollection(t *testing.T) {
	f := newFixture(t, "todo")
	ctx := context.Background()
	sess := f.lists.Open(ctx, owner)
	writes := f.slot.writes(recordsKey())

	for _, client := range []*scriptedClient{{err: errors.New("timeout")}, {text: "I cannot help"}} {
		svc := NewSuggestService(suggest.NewService(client), f.metrics)
		ch, err := svc.Titles(ctx, sess, "x")
		require.NoError(t, err)
		out := <-ch
		var cerr *model.CollaboratorError
		assert.ErrorAs(t, out.Err, &cerr)
	}
	assert.Empty(t, sess.Items())
	assert.Equal(t, writes, f.slot.writes(recordsKey()))
	assert.Len(t, sess.Notices(), 2)
}

func TestSuggestStaleResultIsIgnored(t *testing.T) {
	f := newFixture(t, "todo")
	ctx := context.Background()
	sess := f.lists.Open(ctx, owner)
	client := &scriptedClient{text: `["late"]`, gate: make(chan struct{})}
	svc := NewSuggestService(suggest.NewService(client), f.metrics)

	ch, err := svc.Titles(ctx, sess, "x")
	require.NoError(t, err)
	assert.True(t, svc.Busy(owner))
	_, err = svc.Titles(ctx, sess, "y")
	assert.ErrorIs(t, err, suggest.ErrBusy)

	svc.Cancel(owner)
	close(client.gate)
	out := <-ch
	assert.True(t, out.Stale)
	assert.Empty(t, sess.Items())
}

func TestSuggestExtractReturnsDraft(t *testing.T) {
	f := newFixture(t, "todo")
	ctx := context.Background()
	sess := f.lists.Open(ctx, owner)
	svc := NewSuggestService(suggest.NewService(&scriptedClient{text: `{"title":"Dentist","dueDate":"2026-05-02"}`}), f.metrics)

	ch, err := svc.Extract(ctx, sess, "dentist on may 2", nil)
	require.NoError(t, err)
	out := <-ch
	require.NoError(t, out.Err)
	assert.Equal(t, "Dentist", out.Draft["title"])
	assert.Equal(t, "2026-05-02", out.Draft["dueDate"])
	assert.Empty(t, sess.Items())
}

func TestSummary(t *testing.T) {
	schema, err := model.LoadSchema("todo")
	require.NoError(t, err)
	now := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	c := model.Collection{
		{ID: "1", CreatedAt: now, Fields: map[string]any{"title": "Later <b>", "status": "pending", "dueDate": "2026-05-01"}},
		{ID: "2", CreatedAt: now, Fields: map[string]any{"title": "Late", "status": "pending", "dueDate": "2026-04-01"}},
		{ID: "3", CreatedAt: now, Fields: map[string]any{"title": "Soon", "status": "in_progress", "dueDate": "2026-04-11"}},
		{ID: "4", CreatedAt: now, Fields: map[string]any{"title": "Done", "status": "completed", "dueDate": "2026-04-01"}},
		{ID: "5", CreatedAt: now, Fields: map[string]any{"title": "Undated", "status": "pending"}},
	}
	out := Summary(schema, c, now)
	assert.NotContains(t, out, "Done")
	assert.Contains(t, out, "Later &lt;b&gt;")
	late := strings.Index(out, "⚠️ Late")
	soon := strings.Index(out, "⏳ Soon")
	later := strings.Index(out, "🟢 Later")
	undated := strings.Index(out, "🟢 Undated")
	require.True(t, late >= 0 && soon >= 0 && later >= 0 && undated >= 0, out)
	assert.True(t, late < soon && soon < later && later < undated)
	assert.Contains(t, out, "Open: 4 · overdue: 1 · due within 48h: 1")

	assert.Equal(t, "", Summary(schema, c[3:4], now))
}

type staticUsers []model.User

func (u staticUsers) ListAll(context.Context) ([]model.User, error) { return u, nil }

func TestBackupRun(t *testing.T) {
	f := newFixture(t, "todo")
	ctx := context.Background()
	_, err := f.lists.Open(ctx, "tg1").Create(ctx, map[string]any{"title": "x"})
	require.NoError(t, err)

	dir := t.TempDir()
	sink, err := backup.NewFS(dir)
	require.NoError(t, err)
	svc := NewBackupService(f.lists, staticUsers{{TelegramID: 1}, {TelegramID: 2}}, sink, f.metrics)
	now := time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC)

	n, err := svc.Run(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(filepath.Join(dir, "todo", "2026-04-01", "tg1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title":"x"`)
	data, err = os.ReadFile(filepath.Join(dir, "todo", "2026-04-01", "tg2.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Backups.WithLabelValues("ok")))
}

func TestBuildDailySpec(t *testing.T) {
	spec, err := buildDailySpec("07:30")
	require.NoError(t, err)
	assert.Equal(t, "0 30 7 * * *", spec)
	for _, bad := range []string{"", "7", "24:00", "10:60", "aa:bb"} {
		_, err := buildDailySpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestScheduleInterval(t *testing.T) {
	s := NewSchedulerService(context.Background(), time.UTC)
	_, err := s.ScheduleInterval("x", 0, func(context.Context) {})
	assert.Error(t, err)
	id, err := s.ScheduleDaily("backup", "03:00", func(context.Context) {})
	require.NoError(t, err)
	assert.NotZero(t, id)
}
