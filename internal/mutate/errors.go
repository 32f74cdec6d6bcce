package mutate

import (
	"errors"
	"fmt"
)

// ErrNotToggleable is returned when Toggle targets a field that is neither bool nor enum.
var ErrNotToggleable = errors.New("field cannot be toggled")

type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}
