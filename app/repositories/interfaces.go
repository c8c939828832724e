package repositories

import (
	"context"

	"inkwell/app/models"
	"inkwell/app/query"
)

// Store opens transactions against the backing database. Implementations
// must detect concurrent writes to the same post or comment and fail the
// later commit with models.ErrConflict.
type Store interface {
	Begin(ctx context.Context, writable bool) (Tx, error)
	Outbox
	Close() error
}

// Outbox exposes events committed alongside state changes.
type Outbox interface {
	PendingEvents(ctx context.Context, limit int) ([]*models.Event, error)
	MarkEventsSent(ctx context.Context, ids []int64) error
}

// Tx is a unit of work. Rollback after Commit is a no-op so callers can
// always defer it.
type Tx interface {
	Commit() error
	Rollback() error

	PostRepository
	CommentRepository

	EnqueueEvent(event *models.Event) error
}

// PostRepository defines post data access within a transaction
type PostRepository interface {
	// CreatePost assigns the post its id.
	CreatePost(post *models.Post) error
	// GetPost returns soft-deleted posts too.
	GetPost(id int64) (*models.Post, error)
	// UpdatePost stores post if the stored version equals expectedVersion.
	UpdatePost(post *models.Post, expectedVersion int64) error
	DeletePost(id int64) error
	QueryPosts(filter query.Filter, page query.Page) ([]*models.Post, int, error)
}

// CommentRepository defines comment data access within a transaction
type CommentRepository interface {
	CreateComment(comment *models.Comment) error
	GetComment(id int64) (*models.Comment, error)
	UpdateComment(comment *models.Comment) error
	DeleteComment(id int64) error
	// ScanComments calls fn for each comment of the post ordered by
	// (created_at, id) until fn returns false.
	ScanComments(postID int64, fn func(*models.Comment) bool) error
}
