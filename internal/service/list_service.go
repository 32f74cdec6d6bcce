package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"list-manager/internal/form"
	"list-manager/internal/metrics"
	"list-manager/internal/model"
	"list-manager/internal/mutate"
	"list-manager/internal/store"
	"list-manager/internal/transfer"
	"list-manager/internal/view"
)

// ErrAmbiguousID is returned when a short id matches more than one record.
var ErrAmbiguousID = errors.New("id prefix matches several records")

// ListService owns the store and mutator and hands out one Session per owner.
type ListService struct {
	store   *store.Store
	mut     mutate.Mutator
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewListService(st *store.Store, mut mutate.Mutator, m *metrics.Metrics) *ListService {
	return &ListService{store: st, mut: mut, metrics: m, sessions: make(map[string]*Session)}
}

func (s *ListService) Schema() *model.Schema { return s.store.Schema() }

// Open returns the owner's session, loading it on first use. Load problems are
// recorded as notices on the session.
func (s *ListService) Open(ctx context.Context, owner string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[owner]; ok {
		return sess
	}
	sess := &Session{
		svc:        s,
		owner:      owner,
		key:        store.RecordsKey(s.Schema().Name, owner),
		compactKey: store.UserFlagKey(s.Schema().Name, "compact", owner),
		filter:     view.DefaultState(s.Schema()),
	}
	sess.load(ctx)
	s.sessions[owner] = sess
	return sess
}

// Forget drops the cached session so the next Open reloads from the slot.
func (s *ListService) Forget(owner string) {
	s.mu.Lock()
	delete(s.sessions, owner)
	s.mu.Unlock()
}

// Clear removes the owner's stored list. The next Open starts from an empty one.
func (s *ListService) Clear(ctx context.Context, owner string) error {
	s.Forget(owner)
	return s.store.Clear(ctx, store.RecordsKey(s.Schema().Name, owner))
}

// NoticeKind classifies a notice.
type NoticeKind string

const (
	NoticeCorrupted    NoticeKind = "corrupted"
	NoticePersistence  NoticeKind = "persistence"
	NoticeCollaborator NoticeKind = "collaborator"
	NoticeAnomaly      NoticeKind = "anomaly"
)

// Notice is a dismissible message about something that went wrong outside the
// user's direct control.
type Notice struct {
	ID   int
	Kind NoticeKind
	Text string
}

// Session is one owner's list state: the collection, the current view settings
// and pending notices. All methods are safe for concurrent use.
type Session struct {
	svc        *ListService
	owner      string
	key        string
	compactKey string

	mu         sync.Mutex
	items      model.Collection
	filter     view.FilterState
	compact    bool
	notices    []Notice
	nextNotice int
}

func (s *Session) Owner() string { return s.owner }

func (s *Session) Schema() *model.Schema { return s.svc.Schema() }

func (s *Session) load(ctx context.Context) {
	items, err := s.svc.store.Load(ctx, s.key, nil)
	s.items = items
	s.recordLoadError(err)
	for _, rec := range items {
		for _, a := range rec.Anomalies(s.Schema()) {
			s.addNotice(NoticeAnomaly, a)
		}
	}
	compact, err := s.svc.store.LoadFlag(ctx, s.compactKey, false)
	s.compact = compact
	s.recordLoadError(err)
}

func (s *Session) recordLoadError(err error) {
	if err == nil {
		return
	}
	var corrupted *store.CorruptedStateError
	var perr *store.PersistenceError
	switch {
	case errors.As(err, &corrupted):
		s.svc.metrics.CorruptedLoad()
		s.addNotice(NoticeCorrupted, "Saved data could not be read and was reset to defaults.")
	case errors.As(err, &perr):
		s.svc.metrics.PersistenceFailure(perr.Quota)
		s.addNotice(NoticePersistence, "Saved data could not be read; changes will not be stored until restart.")
	default:
		s.addNotice(NoticePersistence, err.Error())
	}
	log.Printf("[warn] load session %s: %v", s.owner, err)
}

func (s *Session) addNotice(kind NoticeKind, text string) {
	s.nextNotice++
	s.notices = append(s.notices, Notice{ID: s.nextNotice, Kind: kind, Text: text})
}

// save writes the collection once. Failures become notices; the in-memory
// state is kept either way.
func (s *Session) save(ctx context.Context) {
	err := s.svc.store.Save(ctx, s.key, s.items)
	if err == nil {
		return
	}
	var perr *store.PersistenceError
	quota := errors.As(err, &perr) && perr.Quota
	s.svc.metrics.PersistenceFailure(quota)
	log.Printf("[warn] save %s: %v", s.key, err)
	if quota {
		s.addNotice(NoticePersistence, "Storage is full; the latest change is kept only until restart.")
	} else {
		s.addNotice(NoticePersistence, "Could not save the latest change; it is kept only until restart.")
	}
}

// Items returns the whole collection.
func (s *Session) Items() model.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(model.Collection(nil), s.items...)
}

// Get returns the record with id.
func (s *Session) Get(id string) (model.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.items.Find(id); idx >= 0 {
		return s.items[idx].Clone(), true
	}
	return model.Record{}, false
}

// Resolve maps a full id or a unique id prefix to a record id.
func (s *Session) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref == "" {
		return "", mutate.NotFoundError{Kind: "record", ID: ref}
	}
	if s.items.Find(ref) >= 0 {
		return ref, nil
	}
	var match string
	for _, rec := range s.items {
		if strings.HasPrefix(rec.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("%w: %s", ErrAmbiguousID, ref)
			}
			match = rec.ID
		}
	}
	if match == "" {
		return "", mutate.NotFoundError{Kind: "record", ID: ref}
	}
	return match, nil
}

// View projects the collection through the current filter state.
func (s *Session) View() view.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return view.Project(s.Schema(), s.items, s.filter)
}

func (s *Session) Filter() view.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetFilter replaces the filter on f.Field; empty values clear it.
func (s *Session) SetFilter(f view.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.filter.With(f)
	if err := next.Check(s.Schema()); err != nil {
		return err
	}
	s.filter = next
	return nil
}

func (s *Session) SetSearch(q string) {
	s.mu.Lock()
	s.filter.Search = strings.TrimSpace(q)
	s.mu.Unlock()
}

func (s *Session) SetSort(key string, desc bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.filter
	next.SortKey, next.Desc = key, desc
	if err := next.Check(s.Schema()); err != nil {
		return err
	}
	s.filter = next
	return nil
}

// ResetView restores the schema's default sort with no filters or search.
func (s *Session) ResetView() {
	s.mu.Lock()
	s.filter = view.DefaultState(s.Schema())
	s.mu.Unlock()
}

// Create adds a record. Validation failures leave the collection untouched and
// skip persistence.
func (s *Session) Create(ctx context.Context, fields map[string]any) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, rec, err := s.svc.mut.Create(s.items, fields)
	if err != nil {
		return model.Record{}, err
	}
	s.items = items
	s.save(ctx)
	s.svc.metrics.Mutation("create")
	log.Printf("[info] record created id=%s owner=%s", rec.ID, s.owner)
	return rec, nil
}

// CreateMany validates every entry first and then adds them all with a single
// save. Any invalid entry rejects the whole batch.
func (s *Session) CreateMany(ctx context.Context, entries []map[string]any) ([]model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items
	out := make([]model.Record, 0, len(entries))
	for i, fields := range entries {
		var rec model.Record
		var err error
		items, rec, err = s.svc.mut.Create(items, fields)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, nil
	}
	s.items = items
	s.save(ctx)
	s.svc.metrics.Mutation("create")
	log.Printf("[info] %d records created owner=%s", len(out), s.owner)
	return out, nil
}

func (s *Session) Update(ctx context.Context, id string, fields map[string]any) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, rec, err := s.svc.mut.Update(s.items, id, fields)
	if err != nil {
		return model.Record{}, err
	}
	s.items = items
	s.save(ctx)
	s.svc.metrics.Mutation("update")
	log.Printf("[info] record updated id=%s owner=%s", rec.ID, s.owner)
	return rec, nil
}

// Toggle advances field, or the schema's status field when field is empty.
func (s *Session) Toggle(ctx context.Context, id, field string) (model.Record, error) {
	if field == "" {
		field = s.Schema().StatusField
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items, rec, err := s.svc.mut.Toggle(s.items, id, field)
	if err != nil {
		return model.Record{}, err
	}
	s.items = items
	s.save(ctx)
	s.svc.metrics.Mutation("toggle")
	log.Printf("[info] record toggled id=%s field=%s owner=%s", rec.ID, field, s.owner)
	return rec, nil
}

// Remove deletes the record with id and reports whether it existed.
func (s *Session) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, removed := s.svc.mut.Remove(s.items, id)
	if !removed {
		return false
	}
	s.items = items
	s.save(ctx)
	s.svc.metrics.Mutation("remove")
	log.Printf("[info] record removed id=%s owner=%s", id, s.owner)
	return true
}

// Import replaces the collection with the records in r. On failure the current
// collection is kept and a collaborator notice is added.
func (s *Session) Import(ctx context.Context, r io.Reader) (int, error) {
	c, err := transfer.ReadJSON(s.Schema(), r, time.Now().UTC())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		log.Printf("[warn] import for %s rejected: %v", s.owner, err)
		s.addNotice(NoticeCollaborator, err.Error())
		return 0, err
	}
	s.items = c
	s.save(ctx)
	s.svc.metrics.Mutation("import")
	log.Printf("[info] imported %d records owner=%s", len(c), s.owner)
	return len(c), nil
}

// Export format names.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Export writes the full collection, ignoring the current view.
func (s *Session) Export(w io.Writer, format string) error {
	items := s.Items()
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return transfer.WriteJSON(w, items)
	case FormatCSV:
		return transfer.WriteCSV(w, s.Schema(), items)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// Compact reports the owner's list density preference.
func (s *Session) Compact() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compact
}

func (s *Session) SetCompact(ctx context.Context, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compact = v
	if err := s.svc.store.SaveFlag(ctx, s.compactKey, v); err != nil {
		var perr *store.PersistenceError
		s.svc.metrics.PersistenceFailure(errors.As(err, &perr) && perr.Quota)
		log.Printf("[warn] save %s: %v", s.compactKey, err)
		s.addNotice(NoticePersistence, "Could not save the display preference.")
	}
}

// Notify adds a notice.
func (s *Session) Notify(kind NoticeKind, text string) {
	s.mu.Lock()
	s.addNotice(kind, text)
	s.mu.Unlock()
}

// Notices returns pending notices, oldest first.
func (s *Session) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notice(nil), s.notices...)
}

// Dismiss removes the notice with id.
func (s *Session) Dismiss(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notices {
		if n.ID == id {
			s.notices = append(s.notices[:i], s.notices[i+1:]...)
			return true
		}
	}
	return false
}

// DismissAll clears every notice.
func (s *Session) DismissAll() {
	s.mu.Lock()
	s.notices = nil
	s.mu.Unlock()
}

// FieldsFromDraft parses a draft against the session schema.
func (s *Session) FieldsFromDraft(d form.Draft) (map[string]any, error) {
	return form.FromDraft(s.Schema(), d)
}
