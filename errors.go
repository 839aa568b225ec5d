package checkout

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedStrategy is returned by Options.Validate when the
	// strategy contains flags this implementation does not support, such
	// as submodule recursion.
	ErrUnsupportedStrategy = errors.New("unsupported checkout strategy")

	// ErrInvalidOptions is returned by Options.Validate for option sets
	// that cannot be normalized, e.g. more than one conflict style.
	ErrInvalidOptions = errors.New("invalid checkout options")

	// ErrNotifyCancel is returned when a notify callback cancelled the
	// checkout. Filesystem and index are untouched when the cancellation
	// happened during classification.
	ErrNotifyCancel = errors.New("checkout cancelled by notify callback")

	// ErrLockedDirectory is reported when a directory cannot be accessed.
	// With SkipLockedDirectories set the paths below it are skipped
	// instead.
	ErrLockedDirectory = errors.New("directory is locked")

	// ErrNoTarget is returned by Head when HEAD cannot be resolved to a
	// commit.
	ErrNoTarget = errors.New("no target tree to check out")
)

// ConflictError cancels a Safe checkout before any filesystem mutation. It
// carries every conflicting path found during classification, not just the
// first.
type ConflictError struct {
	Paths []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%d conflicts prevent checkout", len(e.Paths))
}

// ApplyError reports a failure while mutating the filesystem. Steps already
// applied are not rolled back; Completed and Total let the caller assess
// the partial state.
type ApplyError struct {
	Path      string
	Completed int
	Total     int
	Err       error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("checkout of %q failed after %d of %d steps: %s",
		e.Path, e.Completed, e.Total, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// IndexWriteError reports that the index could not be written after the
// working directory was already updated. Filesystem changes are kept.
type IndexWriteError struct {
	Err error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("working directory updated but index write failed: %s", e.Err)
}

func (e *IndexWriteError) Unwrap() error { return e.Err }
