// Package errs defines the error taxonomy from spec.md §7 as sentinel
// errors, so callers distinguish them with errors.Is/errors.As instead of
// matching message strings.
package errs

import "errors"

var (
	// ErrUsage is a missing/invalid CLI argument. Exit 1, help on stderr.
	ErrUsage = errors.New("usage error")
	// ErrNotFound is a referenced ID absent from a store.
	ErrNotFound = errors.New("not found")
	// ErrParse is a malformed individual record; the caller should skip it
	// and keep going rather than abort the whole file.
	ErrParse = errors.New("parse error")
	// ErrLockContended is a lock not acquired within its timeout;
	// internal/lock returns this same value as lock.ErrLockContended.
	ErrLockContended = errors.New("lock contended")
	// ErrIO is a filesystem failure with no partial write performed.
	ErrIO = errors.New("io error")
	// ErrExternalTimeout is a summarizer/ranker call exceeding its deadline.
	ErrExternalTimeout = errors.New("external call timed out")
	// ErrDuplicate is raised by Store.Add when an identical normalized
	// title already exists in the same tier and force was not requested.
	ErrDuplicate = errors.New("duplicate lesson title")
	// ErrCorpusTooLarge marks inputs sanitized/skipped for being oversized.
	ErrCorpusTooLarge = errors.New("input too large")
)

// ExitCode maps a taxonomy error to the CLI exit code from spec.md §6:
// 0 success, 1 usage error, 2 recoverable error (no state change).
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage):
		return 1
	default:
		return 2
	}
}
