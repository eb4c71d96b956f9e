package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound           = errors.New("invite not found")
	ErrCodeRequired       = errors.New("invite code required")
	ErrInvalidCursor      = errors.New("invalid cursor")
	ErrInvalidCodeOptions = errors.New("invalid code options")
	ErrCommitFailed       = errors.New("invite commit failed")
	ErrBulkDeleteFailed   = errors.New("bulk delete failed")
	ErrDeleteAllFailed    = errors.New("delete all failed")
)

// Repository persists invites under a primary key and a creation-time index.
type Repository interface {
	Add(ctx context.Context, invite Invite) error
	// Get returns nil when the code is unknown.
	Get(ctx context.Context, code string) (*Invite, error)
	// Delete is a no-op for unknown codes.
	Delete(ctx context.Context, code string) error
	DeleteMany(ctx context.Context, codes []string) error
	DeleteAll(ctx context.Context) error
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Reindex(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*IndexStats, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest, opts CodeOptions) (*Invite, error)
	Get(ctx context.Context, code string) (*Invite, error)
	Delete(ctx context.Context, code string) error
	DeleteMany(ctx context.Context, codes []string) error
	DeleteAll(ctx context.Context) error
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Reindex(ctx context.Context) (int, error)
	IndexStats(ctx context.Context) (*IndexStats, error)
}
