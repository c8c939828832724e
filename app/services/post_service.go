package services

import (
	"context"
	"fmt"
	"log"

	"inkwell/app/cache"
	"inkwell/app/models"
	"inkwell/app/moderation"
	"inkwell/app/repositories"
)

// PostService handles the lifecycle of blog posts
type PostService struct {
	tx    txRunner
	cache cache.PostCache
	opts  Options
}

// NewPostService creates a new PostService
func NewPostService(store repositories.Store, opts Options) *PostService {
	opts = opts.withDefaults()
	return &PostService{
		tx:    txRunner{store: store, timeout: opts.StorageTimeout},
		cache: opts.Cache,
		opts:  opts,
	}
}

// CreatePost drafts a new post for authorID
func (s *PostService) CreatePost(ctx context.Context, authorID string, req models.CreatePostRequest) (*models.Post, error) {
	now := s.opts.Now()
	post, err := models.NewPost(authorID, req.Title, req.Body, req.Tags, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.update(ctx, func(tx repositories.Tx) error {
		if err := tx.CreatePost(post); err != nil {
			return err
		}
		return tx.EnqueueEvent(models.NewPostEvent(models.EventPostCreated, post, "", now))
	})
	if err != nil {
		return nil, err
	}
	log.Printf("post service: created post %d by %s", post.ID, authorID)
	return post, nil
}

// UpdatePost edits title, body or tags if the post is still at
// expectedVersion.
func (s *PostService) UpdatePost(ctx context.Context, id, expectedVersion int64, patch models.PostPatch) (*models.Post, error) {
	var updated *models.Post
	err := s.tx.update(ctx, func(tx repositories.Tx) error {
		post, err := loadPost(tx, id)
		if err != nil {
			return err
		}
		if !post.IsEditable() {
			return fmt.Errorf("%w: %s post %d cannot be edited", models.ErrIllegalTransition, post.Status, id)
		}
		if post.Version != expectedVersion {
			return conflict(id, expectedVersion, post.Version)
		}
		if err := post.ApplyPatch(patch); err != nil {
			return err
		}
		if err := post.CheckInvariants(); err != nil {
			return err
		}
		if err := s.save(tx, post, expectedVersion, models.EventPostUpdated, post.Status); err != nil {
			return err
		}
		updated = post
		return nil
	})
	if err != nil {
		return nil, err
	}
	invalidate(ctx, s.cache, id)
	return updated, nil
}

// SubmitForReview moves a draft into the moderation queue
func (s *PostService) SubmitForReview(ctx context.Context, id, expectedVersion int64) (*models.Post, error) {
	return s.transition(ctx, id, &expectedVersion, moderation.Submit, nil)
}

// Approve publishes a post awaiting review
func (s *PostService) Approve(ctx context.Context, id int64) (*models.Post, error) {
	return s.transition(ctx, id, nil, moderation.Approve, nil)
}

// Reject sends a post under review back to its author with a reason
func (s *PostService) Reject(ctx context.Context, id int64, reason string) (*models.Post, error) {
	return s.transition(ctx, id, nil, moderation.Reject, func(p *models.Post) {
		p.RejectionReason = reason
	})
}

// Archive retires a published post. Archived posts are read-only.
func (s *PostService) Archive(ctx context.Context, id int64) (*models.Post, error) {
	return s.transition(ctx, id, nil, moderation.Archive, nil)
}

// Resubmit returns a rejected post to Draft so the author can rework it
func (s *PostService) Resubmit(ctx context.Context, id, expectedVersion int64) (*models.Post, error) {
	return s.transition(ctx, id, &expectedVersion, moderation.Resubmit, func(p *models.Post) {
		p.RejectionReason = ""
	})
}

// transition applies a state machine action. Author actions carry the
// version the author saw; moderator actions act on the current version.
func (s *PostService) transition(ctx context.Context, id int64, expectedVersion *int64, action moderation.PostAction, mutate func(*models.Post)) (*models.Post, error) {
	var updated *models.Post
	err := s.tx.update(ctx, func(tx repositories.Tx) error {
		post, err := loadPost(tx, id)
		if err != nil {
			return err
		}
		from := post.Status
		next, err := moderation.NextPostStatus(from, action)
		if err != nil {
			return err
		}
		if expectedVersion != nil && post.Version != *expectedVersion {
			return conflict(id, *expectedVersion, post.Version)
		}
		if (action == moderation.Submit || action == moderation.Approve) && !post.IsPublishable() {
			return fmt.Errorf("%w: post %d needs a non-empty body and at least one tag before it can be %s",
				models.ErrInvariantViolation, id, next)
		}

		post.Status = next
		if mutate != nil {
			mutate(post)
		}
		if err := post.CheckInvariants(); err != nil {
			return err
		}
		if err := s.save(tx, post, post.Version, moderation.PostEvent(action), from); err != nil {
			return err
		}
		updated = post
		return nil
	})
	if err != nil {
		return nil, err
	}
	invalidate(ctx, s.cache, id)
	log.Printf("post service: post %d %s -> %s (v%d)", id, action, updated.Status, updated.Version)
	return updated, nil
}

// ForceStatus sets any known status, bypassing the transition table. The
// entity invariants still hold for the forced state.
func (s *PostService) ForceStatus(ctx context.Context, id int64, status string) (*models.Post, error) {
	target, err := moderation.OverridePost(status)
	if err != nil {
		return nil, err
	}
	var updated *models.Post
	err = s.tx.update(ctx, func(tx repositories.Tx) error {
		post, err := loadPost(tx, id)
		if err != nil {
			return err
		}
		from := post.Status
		post.Status = target
		if target != models.PostRejected {
			post.RejectionReason = ""
		}
		if err := post.CheckInvariants(); err != nil {
			return err
		}
		if err := s.save(tx, post, post.Version, models.EventPostForced, from); err != nil {
			return err
		}
		updated = post
		return nil
	})
	if err != nil {
		return nil, err
	}
	invalidate(ctx, s.cache, id)
	log.Printf("post service: status of post %d forced to %s", id, target)
	return updated, nil
}

// GetPost returns the post if viewer may see it. Posts the viewer may not
// see are reported as missing.
func (s *PostService) GetPost(ctx context.Context, id int64, viewer models.Principal) (*models.Post, error) {
	cached, err := s.cache.GetPost(ctx, id)
	if err != nil {
		log.Printf("post cache: get %d: %v", id, err)
	}
	if cached != nil && cached.VisibleTo(viewer) {
		return cached, nil
	}

	// The generation is read before the store so a mutation committed in
	// between voids the fill below.
	generation, genErr := s.cache.Generation(ctx, id)
	if genErr != nil {
		log.Printf("post cache: generation %d: %v", id, genErr)
	}

	var post *models.Post
	err = s.tx.view(ctx, func(tx repositories.Tx) error {
		var err error
		post, err = loadPost(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !post.VisibleTo(viewer) {
		return nil, fmt.Errorf("post %d: %w", id, models.ErrNotFound)
	}
	if post.Status == models.PostPublished && genErr == nil {
		if err := s.cache.SetPost(ctx, post, generation); err != nil {
			log.Printf("post cache: set %d: %v", id, err)
		}
	}
	return post, nil
}

// DeletePost removes a post and hides every comment on it in one
// transaction. In hard delete mode the rows are removed instead.
func (s *PostService) DeletePost(ctx context.Context, id int64) error {
	now := s.opts.Now()
	hidden := 0
	err := s.tx.update(ctx, func(tx repositories.Tx) error {
		post, err := loadPost(tx, id)
		if err != nil {
			return err
		}

		var comments []*models.Comment
		if err := tx.ScanComments(id, func(c *models.Comment) bool {
			comments = append(comments, c)
			return true
		}); err != nil {
			return err
		}

		from := post.Status
		if s.opts.HardDelete {
			for _, c := range comments {
				if err := tx.DeleteComment(c.ID); err != nil {
					return err
				}
			}
			if err := tx.DeletePost(id); err != nil {
				return err
			}
			hidden = len(comments)
			return tx.EnqueueEvent(models.NewPostEvent(models.EventPostDeleted, post, from, now))
		}

		for _, c := range comments {
			if c.Status == models.CommentHidden {
				continue
			}
			c.Status = models.CommentHidden
			c.UpdatedAt = now
			if err := tx.UpdateComment(c); err != nil {
				return err
			}
			hidden++
		}
		post.Deleted = true
		post.DeletedAt = &now
		return s.save(tx, post, post.Version, models.EventPostDeleted, from)
	})
	if err != nil {
		return err
	}
	invalidate(ctx, s.cache, id)
	log.Printf("post service: deleted post %d, hid %d comments", id, hidden)
	return nil
}

// LikePost counts a like on a published post. Likes do not change the
// version, so they never invalidate an editor's pending update.
func (s *PostService) LikePost(ctx context.Context, id int64) (*models.Post, error) {
	var liked *models.Post
	err := s.tx.update(ctx, func(tx repositories.Tx) error {
		post, err := loadPost(tx, id)
		if err != nil {
			return err
		}
		if post.Status != models.PostPublished {
			return fmt.Errorf("post %d: %w", id, models.ErrNotFound)
		}
		post.Likes++
		if err := tx.UpdatePost(post, post.Version); err != nil {
			return err
		}
		liked = post
		return tx.EnqueueEvent(models.NewPostEvent(models.EventPostLiked, post, post.Status, s.opts.Now()))
	})
	if err != nil {
		return nil, err
	}
	invalidate(ctx, s.cache, id)
	return liked, nil
}

// save bumps the version, stamps the update time and writes the post with
// its outbox event.
func (s *PostService) save(tx repositories.Tx, post *models.Post, expectedVersion int64, event models.EventType, from models.PostStatus) error {
	now := s.opts.Now()
	post.Version = expectedVersion + 1
	post.UpdatedAt = now
	if err := tx.UpdatePost(post, expectedVersion); err != nil {
		return err
	}
	return tx.EnqueueEvent(models.NewPostEvent(event, post, from, now))
}
