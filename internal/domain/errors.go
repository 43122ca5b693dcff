package domain

import "errors"

// Cross-worker error taxonomy. Conflicts are silent skips, data errors
// skip one unit of work, fatal errors end the process and rely on the
// supervisor to restart it.
var (
	// ErrBusy means another worker holds the lease for the resource.
	ErrBusy = errors.New("resource lease is busy")

	// ErrSkipped means a unit of work was intentionally not performed
	// (lease busy, duplicate non-terminal position, stale data).
	ErrSkipped = errors.New("unit of work skipped")

	// ErrConflict means a guarded state transition found the row in an
	// unexpected status.
	ErrConflict = errors.New("state transition conflict")

	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDataError means the input data for one unit of work was
	// malformed or insufficient; siblings in the batch continue.
	ErrDataError = errors.New("malformed or insufficient data")

	// ErrFatal wraps startup failures that must exit the process.
	ErrFatal = errors.New("fatal")
)
