package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"inkwell/app/cache"
	"inkwell/app/models"
	"inkwell/app/repositories"
)

// DefaultStorageTimeout bounds an operation whose caller set no deadline.
const DefaultStorageTimeout = 5 * time.Second

// Options tune the workflow rules shared by the services.
type Options struct {
	StorageTimeout time.Duration
	// AutoApproveComments makes new comments Visible instead of PendingReview.
	AutoApproveComments bool
	// RequirePublishedForComments only lets Published posts take comments.
	RequirePublishedForComments bool
	// HardDelete removes deleted posts and their comments from storage
	// instead of tombstoning them.
	HardDelete bool
	Cache      cache.PostCache
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.StorageTimeout <= 0 {
		o.StorageTimeout = DefaultStorageTimeout
	}
	if o.Cache == nil {
		o.Cache = cache.Nop{}
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// txRunner runs closures inside store transactions with the timeout rules
// every service shares.
type txRunner struct {
	store   repositories.Store
	timeout time.Duration
}

// update runs fn in a writable transaction and commits it. A caller that
// is already cancelled is refused before the transaction opens. Once open,
// the transaction is detached from cancellation but keeps the deadline, so
// it either commits or fails atomically.
func (r txRunner) update(ctx context.Context, fn func(tx repositories.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return contextError(err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(r.timeout)
	}
	opCtx, cancel := context.WithDeadline(context.WithoutCancel(ctx), deadline)
	defer cancel()

	return r.run(opCtx, true, fn)
}

// view runs fn in a read-only transaction that honours cancellation.
func (r txRunner) view(ctx context.Context, fn func(tx repositories.Tx) error) error {
	opCtx, cancel := r.viewContext(ctx)
	defer cancel()
	return r.run(opCtx, false, fn)
}

func (r txRunner) viewContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r txRunner) run(ctx context.Context, writable bool, fn func(tx repositories.Tx) error) error {
	tx, err := r.store.Begin(ctx, writable)
	if err != nil {
		return withContext(ctx, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return withContext(ctx, err)
	}
	if !writable {
		return nil
	}
	return withContext(ctx, tx.Commit())
}

// withContext reports an expired deadline as ErrTimeout whatever the
// storage layer made of it.
func withContext(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, models.ErrTimeout) {
		return fmt.Errorf("%w: %w", models.ErrTimeout, err)
	}
	return err
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", models.ErrTimeout, err)
	}
	return err
}

// loadPost returns a live post. Soft-deleted posts are reported missing.
func loadPost(tx repositories.Tx, id int64) (*models.Post, error) {
	post, err := tx.GetPost(id)
	if err != nil {
		return nil, err
	}
	if post.Deleted {
		return nil, fmt.Errorf("post %d: %w", id, models.ErrNotFound)
	}
	return post, nil
}

func loadComment(tx repositories.Tx, id int64) (*models.Comment, error) {
	return tx.GetComment(id)
}

// countComments counts the comments of a post. With onlyVisible, pending,
// hidden and deleted comments are left out.
func countComments(tx repositories.Tx, postID int64, onlyVisible bool) (int, error) {
	n := 0
	err := tx.ScanComments(postID, func(c *models.Comment) bool {
		if !onlyVisible || c.IsVisible() {
			n++
		}
		return true
	})
	return n, err
}

// conflict reports a stale expected version.
func conflict(id, expected, actual int64) error {
	return fmt.Errorf("%w: post %d is at version %d, expected %d", models.ErrConflict, id, actual, expected)
}

func invalidate(ctx context.Context, c cache.PostCache, id int64) {
	if err := c.InvalidatePost(context.WithoutCancel(ctx), id); err != nil {
		log.Printf("post cache: invalidate %d: %v", id, err)
	}
}
