// Package apperr defines the error kinds shared across the middleware so
// that REST handlers can map any wrapped error back to a status code via
// errors.Is/errors.As without each package inventing its own sentinel.
package apperr

import "errors"

// Sentinel kinds. Wrap with fmt.Errorf("...: %w", Kind) at the point of
// failure so context survives while errors.Is(err, apperr.ErrKeyNotFound)
// still resolves.
var (
	// ErrDuplicateIDWithConflict is raised by data-model ingestion when two
	// distinct values share an identifier.
	ErrDuplicateIDWithConflict = errors.New("duplicate id with conflicting value")

	// ErrKeyNotFound is raised by the persistence registry when hierarchical
	// fallback lookup exhausts without a match.
	ErrKeyNotFound = errors.New("key not found")

	// ErrConnection is raised by a connector's Provider/Consumer/Receiver
	// methods on transport failure.
	ErrConnection = errors.New("connection error")

	// ErrMapping is raised by a Mapper or Formatter that fails to transform
	// a value.
	ErrMapping = errors.New("mapping error")

	// ErrWorkflow wraps a panic or error surfaced from inside a workflow run.
	ErrWorkflow = errors.New("workflow error")

	// ErrAlreadyRunning is raised when a workflow execution mode rejects a
	// call because no pool slot is free.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning is raised by interrupt() when no run is active.
	ErrNotRunning = errors.New("not running")

	// ErrCancelled marks a workflow run that was cancelled cooperatively.
	// Logged only; never mapped to an HTTP status.
	ErrCancelled = errors.New("cancelled")

	// ErrNoIdentifier is raised when no identifier can be extracted from a
	// value and no synthetic fallback was requested.
	ErrNoIdentifier = errors.New("no identifier")
)

// StatusHint classifies an error kind into the REST status family it maps
// to, mirroring spec.md §7's table. Handlers call this once instead of
// repeating errors.Is chains.
type StatusHint int

const (
	StatusInternal StatusHint = iota
	StatusBadRequest
	StatusNotFound
)

// Classify returns the StatusHint for err, walking the wrap chain.
func Classify(err error) StatusHint {
	switch {
	case errors.Is(err, ErrDuplicateIDWithConflict):
		return StatusBadRequest
	case errors.Is(err, ErrKeyNotFound):
		return StatusBadRequest // historical: not-found-on-retrieval maps to 400, per spec.md §7
	case errors.Is(err, ErrMapping):
		return StatusBadRequest
	case errors.Is(err, ErrAlreadyRunning):
		return StatusBadRequest
	case errors.Is(err, ErrConnection):
		return StatusInternal
	case errors.Is(err, ErrWorkflow):
		return StatusInternal
	default:
		return StatusInternal
	}
}
