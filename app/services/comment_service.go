package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"

	"inkwell/app/models"
	"inkwell/app/moderation"
	"inkwell/app/repositories"
)

// CommentService handles business logic for comments
type CommentService struct {
	tx   txRunner
	opts Options
}

// NewCommentService creates a new CommentService
func NewCommentService(store repositories.Store, opts Options) *CommentService {
	opts = opts.withDefaults()
	return &CommentService{
		tx:   txRunner{store: store, timeout: opts.StorageTimeout},
		opts: opts,
	}
}

// AddComment attaches a comment, or a reply when parentID is set, to a post.
// New comments wait for moderation unless auto-approve is on.
func (s *CommentService) AddComment(ctx context.Context, postID int64, authorID, body string, parentID *int64) (*models.Comment, error) {
	now := s.opts.Now()
	status := models.CommentPendingReview
	if s.opts.AutoApproveComments {
		status = models.CommentVisible
	}
	comment, err := models.NewComment(postID, authorID, body, parentID, status, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.update(ctx, func(tx repositories.Tx) error {
		post, err := loadPost(tx, postID)
		if err != nil {
			return err
		}
		if !post.CanAcceptComment(s.opts.RequirePublishedForComments) {
			return fmt.Errorf("%w: %s post %d does not take comments", models.ErrIllegalTransition, post.Status, postID)
		}
		if comment.IsReply() {
			if err := checkParent(tx, postID, *comment.ParentID); err != nil {
				return err
			}
		}
		if err := tx.CreateComment(comment); err != nil {
			return err
		}
		return tx.EnqueueEvent(models.NewCommentEvent(models.EventCommentAdded, comment, "", now))
	})
	if err != nil {
		return nil, err
	}
	log.Printf("comment service: comment %d added to post %d as %s", comment.ID, postID, comment.Status)
	return comment, nil
}

// checkParent requires a live parent comment on the same post.
func checkParent(tx repositories.Tx, postID, parentID int64) error {
	parent, err := loadComment(tx, parentID)
	if errors.Is(err, models.ErrNotFound) || (err == nil && parent.PostID != postID) {
		return fmt.Errorf("parent comment %d on post %d: %w", parentID, postID, models.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if parent.Deleted {
		return fmt.Errorf("%w: comment %d was deleted and takes no replies", models.ErrIllegalTransition, parentID)
	}
	return nil
}

// ModerateComment applies a moderator decision.
func (s *CommentService) ModerateComment(ctx context.Context, id int64, decision moderation.CommentDecision) (*models.Comment, error) {
	var moderated *models.Comment
	err := s.tx.update(ctx, func(tx repositories.Tx) error {
		c, err := s.liveComment(tx, id)
		if err != nil {
			return err
		}
		from := c.Status
		next, err := moderation.NextCommentStatus(from, decision)
		if err != nil {
			return err
		}
		c.Status = next
		c.UpdatedAt = s.opts.Now()
		if err := tx.UpdateComment(c); err != nil {
			return err
		}
		moderated = c
		return tx.EnqueueEvent(models.NewCommentEvent(models.EventCommentModerated, c, from, c.UpdatedAt))
	})
	if err != nil {
		return nil, err
	}
	log.Printf("comment service: comment %d %s -> %s", id, decision, moderated.Status)
	return moderated, nil
}

// EditComment replaces the body of a comment. Tombstones cannot be edited.
func (s *CommentService) EditComment(ctx context.Context, id int64, body string) (*models.Comment, error) {
	var edited *models.Comment
	err := s.tx.update(ctx, func(tx repositories.Tx) error {
		c, err := s.liveComment(tx, id)
		if err != nil {
			return err
		}
		if c.Deleted {
			return fmt.Errorf("%w: comment %d was deleted", models.ErrIllegalTransition, id)
		}
		if err := c.SetBody(body, s.opts.Now()); err != nil {
			return err
		}
		if err := tx.UpdateComment(c); err != nil {
			return err
		}
		edited = c
		return tx.EnqueueEvent(models.NewCommentEvent(models.EventCommentEdited, c, c.Status, c.UpdatedAt))
	})
	if err != nil {
		return nil, err
	}
	return edited, nil
}

// DeleteComment tombstones a comment. Replies stay in place and are marked
// as answering a deleted comment.
func (s *CommentService) DeleteComment(ctx context.Context, id int64) error {
	now := s.opts.Now()
	orphaned := 0
	err := s.tx.update(ctx, func(tx repositories.Tx) error {
		c, err := s.liveComment(tx, id)
		if err != nil {
			return err
		}
		if c.Deleted {
			return fmt.Errorf("comment %d: %w", id, models.ErrNotFound)
		}
		from := c.Status
		c.Tombstone(now)
		if err := tx.UpdateComment(c); err != nil {
			return err
		}

		var replies []*models.Comment
		if err := tx.ScanComments(c.PostID, func(r *models.Comment) bool {
			if r.ParentID != nil && *r.ParentID == id && !r.ParentDeleted {
				replies = append(replies, r)
			}
			return true
		}); err != nil {
			return err
		}
		for _, r := range replies {
			r.ParentDeleted = true
			if err := tx.UpdateComment(r); err != nil {
				return err
			}
		}
		orphaned = len(replies)
		return tx.EnqueueEvent(models.NewCommentEvent(models.EventCommentDeleted, c, from, now))
	})
	if err != nil {
		return err
	}
	log.Printf("comment service: deleted comment %d, %d replies orphaned", id, orphaned)
	return nil
}

// ForceStatus sets a comment status outside the moderation table.
func (s *CommentService) ForceStatus(ctx context.Context, id int64, status string) (*models.Comment, error) {
	target, err := moderation.OverrideComment(status)
	if err != nil {
		return nil, err
	}
	var forced *models.Comment
	err = s.tx.update(ctx, func(tx repositories.Tx) error {
		c, err := s.liveComment(tx, id)
		if err != nil {
			return err
		}
		from := c.Status
		c.Status = target
		c.UpdatedAt = s.opts.Now()
		if err := c.Validate(); err != nil {
			return err
		}
		if err := tx.UpdateComment(c); err != nil {
			return err
		}
		forced = c
		return tx.EnqueueEvent(models.NewCommentEvent(models.EventCommentForced, c, from, c.UpdatedAt))
	})
	if err != nil {
		return nil, err
	}
	log.Printf("comment service: status of comment %d forced to %s", id, target)
	return forced, nil
}

// GetComment returns comment id if it belongs to postID.
func (s *CommentService) GetComment(ctx context.Context, postID, id int64) (*models.Comment, error) {
	var comment *models.Comment
	err := s.tx.view(ctx, func(tx repositories.Tx) error {
		c, err := s.liveComment(tx, id)
		if err != nil {
			return err
		}
		if c.PostID != postID {
			return fmt.Errorf("comment %d on post %d: %w", id, postID, models.ErrNotFound)
		}
		comment = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// FindComment returns a comment by id alone.
func (s *CommentService) FindComment(ctx context.Context, id int64) (*models.Comment, error) {
	var comment *models.Comment
	err := s.tx.view(ctx, func(tx repositories.Tx) error {
		var err error
		comment, err = s.liveComment(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// ListComments streams the comments of a post oldest first. Every range
// over the result reads from a fresh transaction, so the sequence can be
// consumed more than once. With onlyVisible, pending, hidden and deleted
// comments are skipped.
func (s *CommentService) ListComments(ctx context.Context, postID int64, onlyVisible bool) iter.Seq2[*models.Comment, error] {
	return func(yield func(*models.Comment, error) bool) {
		stopped := false
		err := s.tx.view(ctx, func(tx repositories.Tx) error {
			if _, err := loadPost(tx, postID); err != nil {
				return err
			}
			return tx.ScanComments(postID, func(c *models.Comment) bool {
				if onlyVisible && !c.IsVisible() {
					return true
				}
				if !yield(c, nil) {
					stopped = true
					return false
				}
				return true
			})
		})
		if err != nil && !stopped {
			yield(nil, err)
		}
	}
}

// CountComments counts the comments ListComments would return.
func (s *CommentService) CountComments(ctx context.Context, postID int64, onlyVisible bool) (int, error) {
	n := 0
	err := s.tx.view(ctx, func(tx repositories.Tx) error {
		if _, err := loadPost(tx, postID); err != nil {
			return err
		}
		var err error
		n, err = countComments(tx, postID, onlyVisible)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// liveComment loads a comment whose post still exists.
func (s *CommentService) liveComment(tx repositories.Tx, id int64) (*models.Comment, error) {
	c, err := loadComment(tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := loadPost(tx, c.PostID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("comment %d: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return c, nil
}
