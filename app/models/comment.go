package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// NewComment builds a comment in the given initial state.
func NewComment(postID int64, authorID, body string, parentID *int64, status CommentStatus, now time.Time) (*Comment, error) {
	verr := &ValidationError{}
	if strings.TrimSpace(authorID) == "" {
		verr.Add("author_id", "is required")
	}
	checkCommentBody(verr, body)
	if parentID != nil && *parentID <= 0 {
		verr.Add("parent_id", "must be greater than 0")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	c := &Comment{
		PostID:    postID,
		AuthorID:  authorID,
		Body:      body,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if parentID != nil {
		id := *parentID
		c.ParentID = &id
	}
	return c, nil
}

// Validate checks if the comment meets all validation requirements
func (c *Comment) Validate() error {
	if err := fromValidator(validate.Struct(c)); err != nil {
		return err
	}
	if !c.Status.Valid() {
		return NewValidationError("status", fmt.Sprintf("unknown status %q", c.Status))
	}
	if c.CreatedAt.IsZero() {
		return NewValidationError("created_at", "must not be zero")
	}
	if c.Deleted && (c.Body != "" || c.Status != CommentHidden) {
		return fmt.Errorf("%w: deleted comment %d must be hidden with an empty body", ErrInvariantViolation, c.ID)
	}
	return nil
}

// SetBody validates and replaces the comment text.
func (c *Comment) SetBody(body string, now time.Time) error {
	verr := &ValidationError{}
	checkCommentBody(verr, body)
	if err := verr.OrNil(); err != nil {
		return err
	}
	c.Body = body
	c.UpdatedAt = now
	return nil
}

// Tombstone clears the comment in place. Replies keep pointing at it.
func (c *Comment) Tombstone(now time.Time) {
	c.Deleted = true
	c.Body = ""
	c.Status = CommentHidden
	c.UpdatedAt = now
}

// IsVisible reports whether the comment is shown to the public.
func (c *Comment) IsVisible() bool {
	return !c.Deleted && c.Status == CommentVisible
}

// VisibleTo reports whether viewer may read the comment.
func (c *Comment) VisibleTo(viewer Principal) bool {
	if c.IsVisible() || viewer.CanModerate() {
		return true
	}
	return !viewer.IsAnonymous() && viewer.ID == c.AuthorID
}

// IsReply reports whether the comment answers another comment.
func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}

func (c *Comment) Clone() *Comment {
	cp := *c
	if c.ParentID != nil {
		id := *c.ParentID
		cp.ParentID = &id
	}
	return &cp
}

func checkCommentBody(verr *ValidationError, body string) {
	switch {
	case strings.TrimSpace(body) == "":
		verr.Add("body", "must not be blank")
	case utf8.RuneCountInString(body) > MaxCommentLength:
		verr.Add("body", fmt.Sprintf("must be at most %d characters", MaxCommentLength))
	}
}
