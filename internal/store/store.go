package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"list-manager/internal/model"
	"list-manager/internal/repository"
)

// Slot is a durable string key-value store.
type Slot interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Store moves collections and preference flags between memory and a Slot.
type Store struct {
	slot   Slot
	schema *model.Schema

	mu     sync.Mutex
	loaded map[string]bool
}

func New(slot Slot, schema *model.Schema) *Store {
	return &Store{slot: slot, schema: schema, loaded: make(map[string]bool)}
}

// Schema returns the schema records are decoded with.
func (s *Store) Schema() *model.Schema { return s.schema }

// Loaded reports whether Load has completed for key.
func (s *Store) Loaded(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded[key]
}

func (s *Store) markLoaded(key string) {
	s.mu.Lock()
	s.loaded[key] = true
	s.mu.Unlock()
}

// Load reads the collection at key. A missing value is replaced by defaults,
// which are persisted immediately. An unreadable value is discarded in favour of
// the defaults and reported as *CorruptedStateError. In both fallback cases the
// returned collection is a copy of defaults.
func (s *Store) Load(ctx context.Context, key string, defaults model.Collection) (model.Collection, error) {
	raw, ok, err := s.slot.Get(ctx, key)
	if err != nil {
		// Key stays unloaded so a later Save cannot clobber data we never saw.
		return cloneCollection(defaults), &PersistenceError{Key: key, Err: err}
	}
	if !ok {
		s.markLoaded(key)
		c := cloneCollection(defaults)
		if err := s.write(ctx, key, c); err != nil {
			return c, err
		}
		return c, nil
	}

	c, warnings, err := model.DecodeCollection(s.schema, []byte(raw))
	if err != nil {
		log.Printf("[warn] corrupted collection at %q: %v", key, err)
		s.markLoaded(key)
		fallback := cloneCollection(defaults)
		if werr := s.write(ctx, key, fallback); werr != nil {
			log.Printf("[warn] reset %q to defaults: %v", key, werr)
		}
		return fallback, &CorruptedStateError{Key: key, Err: err}
	}
	for _, w := range warnings {
		log.Printf("[warn] %s: %s", key, w)
	}
	for _, rec := range c {
		for _, a := range rec.Anomalies(s.schema) {
			log.Printf("[warn] %s: %s", key, a)
		}
	}
	s.markLoaded(key)
	return c, nil
}

// Save writes the collection at key. It refuses keys that have not been loaded.
func (s *Store) Save(ctx context.Context, key string, c model.Collection) error {
	if !s.Loaded(key) {
		return fmt.Errorf("%w: %s", ErrNotLoaded, key)
	}
	return s.write(ctx, key, c)
}

func (s *Store) write(ctx context.Context, key string, c model.Collection) error {
	data, err := model.EncodeCollection(c)
	if err != nil {
		return &PersistenceError{Key: key, Err: err}
	}
	return s.set(ctx, key, string(data))
}

func (s *Store) set(ctx context.Context, key, value string) error {
	if err := s.slot.Set(ctx, key, value); err != nil {
		return &PersistenceError{Key: key, Quota: errors.Is(err, repository.ErrQuotaExceeded), Err: err}
	}
	return nil
}

// LoadFlag reads a boolean preference with the same contract as Load.
func (s *Store) LoadFlag(ctx context.Context, key string, def bool) (bool, error) {
	raw, ok, err := s.slot.Get(ctx, key)
	if err != nil {
		return def, &PersistenceError{Key: key, Err: err}
	}
	s.markLoaded(key)
	if !ok {
		return def, s.setFlag(ctx, key, def)
	}
	var v bool
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		log.Printf("[warn] corrupted flag at %q: %v", key, err)
		if werr := s.setFlag(ctx, key, def); werr != nil {
			log.Printf("[warn] reset %q to default: %v", key, werr)
		}
		return def, &CorruptedStateError{Key: key, Err: err}
	}
	return v, nil
}

// SaveFlag writes a boolean preference.
func (s *Store) SaveFlag(ctx context.Context, key string, v bool) error {
	if !s.Loaded(key) {
		return fmt.Errorf("%w: %s", ErrNotLoaded, key)
	}
	return s.setFlag(ctx, key, v)
}

func (s *Store) setFlag(ctx context.Context, key string, v bool) error {
	data, _ := json.Marshal(v)
	return s.set(ctx, key, string(data))
}

// Clear removes the value at key; the next Load starts from defaults.
func (s *Store) Clear(ctx context.Context, key string) error {
	if err := s.slot.Remove(ctx, key); err != nil {
		return &PersistenceError{Key: key, Err: err}
	}
	s.mu.Lock()
	delete(s.loaded, key)
	s.mu.Unlock()
	return nil
}

func cloneCollection(c model.Collection) model.Collection {
	out := make(model.Collection, len(c))
	for i := range c {
		out[i] = c[i].Clone()
	}
	return out
}
