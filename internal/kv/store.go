package kv

import (
	"context"
	"errors"
)

// Entry is a stored key together with its value and the versionstamp of the
// commit that last wrote it.
type Entry struct {
	Key          Key
	Value        []byte
	Versionstamp string
}

// ListOptions bounds a prefix listing.
type ListOptions struct {
	// Limit caps the number of entries; zero or less means no cap.
	Limit   int
	Reverse bool
	// Cursor resumes after the last entry of a previous page.
	Cursor string
}

// ListResult is one page of a prefix listing. Cursor is empty when the
// listing is exhausted.
type ListResult struct {
	Entries []Entry
	Cursor  string
}

// CommitResult reports the outcome of an atomic operation. OK is false when a
// check failed and nothing was written.
type CommitResult struct {
	OK           bool
	Versionstamp string
}

// Store is an ordered key-value store with optimistic atomic commits.
type Store interface {
	// Get returns nil when the key is absent.
	Get(ctx context.Context, key Key) (*Entry, error)
	// List returns keys that strictly extend prefix, in key order.
	List(ctx context.Context, prefix Key, opts ListOptions) (*ListResult, error)
	// Scan calls fn for every key under prefix in ascending order.
	// Returning a non-nil error from fn stops the scan.
	Scan(ctx context.Context, prefix Key, fn func(Entry) error) error
	Commit(ctx context.Context, op *AtomicOperation) (CommitResult, error)
	Close() error
}

var (
	ErrInvalidCursor = errors.New("kv: invalid cursor")
	ErrClosed        = errors.New("kv: store closed")
)

// Set writes a single key without checks.
func Set(ctx context.Context, s Store, key Key, value []byte) (CommitResult, error) {
	return s.Commit(ctx, NewAtomic().Set(key, value))
}

// Delete removes a single key without checks.
func Delete(ctx context.Context, s Store, key Key) (CommitResult, error) {
	return s.Commit(ctx, NewAtomic().Delete(key))
}
