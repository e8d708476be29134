package catalog

import (
	"errors"
	"fmt"

	"github.com/c360studio/semtypes/storage"
)

// Error kinds returned by catalog operations. Callers classify with errors.Is.
var (
	// ErrValidation marks malformed input; the request must be corrected.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks a create whose key already exists.
	ErrConflict = errors.New("already exists")

	// ErrNotFound marks a missing target or an empty filter result.
	ErrNotFound = errors.New("not found")

	// ErrConsistency marks store contents that contradict the id scheme.
	// It is an internal fault and should alert, never be retried.
	ErrConsistency = errors.New("consistency violation")
)

// translate maps storage sentinels onto catalog kinds; anything else is an
// external store failure and passes through wrapped.
func translate(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, storage.ErrConflict):
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case errors.Is(err, storage.ErrCorrupt):
		return fmt.Errorf("%w: %s: %v", ErrConsistency, msg, err)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
