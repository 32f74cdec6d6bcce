package store

import (
	"errors"
	"fmt"
)

// ErrNotLoaded is returned by Save for a key whose initial Load has not completed.
var ErrNotLoaded = errors.New("store: save before load")

// CorruptedStateError reports a persisted value that could not be read back.
// The defaults were used in its place.
type CorruptedStateError struct {
	Key string
	Err error
}

func (e *CorruptedStateError) Error() string {
	return fmt.Sprintf("corrupted state at %q, using defaults: %v", e.Key, e.Err)
}

func (e *CorruptedStateError) Unwrap() error { return e.Err }

// PersistenceError reports a failed write. The in-memory state stays valid.
type PersistenceError struct {
	Key   string
	Quota bool
	Err   error
}

func (e *PersistenceError) Error() string {
	if e.Quota {
		return fmt.Sprintf("storage full, %q not saved: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("could not save %q: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
