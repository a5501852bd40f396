package data

import (
	"errors"
	"fmt"
)

// Sentinel errors for remote failures that callers branch on.
var (
	ErrNotFound    = errors.New("resource not found")
	ErrRateLimited = errors.New("rate limit retry budget exhausted")
)

// InvalidReferenceError means the user-supplied string matched no known
// URL or identifier pattern. User-fixable.
type InvalidReferenceError struct {
	Input string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid reference %q: not a MangaDex URL, UUID or keyword", e.Input)
}

// AuthError means the remote API rejected the supplied credentials or token.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// PageFetchError records a single page that failed all retries and the
// fallback mirror. Chapter-scoped: it never aborts the run on its own.
type PageFetchError struct {
	ChapterID string
	Page      int
	Err       error
}

func (e *PageFetchError) Error() string {
	return fmt.Sprintf("page %d of chapter %s: %v", e.Page, e.ChapterID, e.Err)
}

func (e *PageFetchError) Unwrap() error { return e.Err }

// ArchiveWriteError wraps an I/O or container format failure for one
// archive target.
type ArchiveWriteError struct {
	Target string
	Err    error
}

func (e *ArchiveWriteError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Target, e.Err)
}

func (e *ArchiveWriteError) Unwrap() error { return e.Err }
