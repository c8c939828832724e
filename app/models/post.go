package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// PreviewLength is the number of runes kept by Post.Preview.
const PreviewLength = 200

// PostPatch carries the fields of an edit. Nil fields are left unchanged.
type PostPatch struct {
	Title *string
	Body  *string
	Tags  *[]string
}

// NewPost builds a draft post at version 1 with normalized tags.
func NewPost(authorID, title, body string, tags []string, now time.Time) (*Post, error) {
	verr := &ValidationError{}
	if strings.TrimSpace(authorID) == "" {
		verr.Add("author_id", "is required")
	}
	checkTitle(verr, title)
	checkBody(verr, body)
	normalized, err := NormalizeTags(tags)
	if err != nil {
		var tagErr *ValidationError
		if errors.As(err, &tagErr) {
			verr.Fields = append(verr.Fields, tagErr.Fields...)
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	post := &Post{
		AuthorID:  authorID,
		Title:     strings.TrimSpace(title),
		Body:      body,
		Status:    PostDraft,
		Tags:      normalized,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return post, nil
}

// Validate checks if the post meets all validation requirements
func (p *Post) Validate() error {
	if err := fromValidator(validate.Struct(p)); err != nil {
		return err
	}
	if !p.Status.Valid() {
		return NewValidationError("status", fmt.Sprintf("unknown status %q", p.Status))
	}
	if p.CreatedAt.IsZero() {
		return NewValidationError("created_at", "must not be zero")
	}
	return p.CheckInvariants()
}

// CheckInvariants enforces the rules every stored post must satisfy
// regardless of how it reached its state.
func (p *Post) CheckInvariants() error {
	if p.Status == PostPublished && !p.IsPublishable() {
		return fmt.Errorf("%w: published post %d needs a non-empty body and at least one tag", ErrInvariantViolation, p.ID)
	}
	return nil
}

// IsPublishable reports whether the post may become Published.
func (p *Post) IsPublishable() bool {
	return strings.TrimSpace(p.Body) != "" && len(p.Tags) > 0
}

// IsEditable reports whether title, body or tags may still change.
func (p *Post) IsEditable() bool {
	return !p.Deleted && p.Status != PostArchived
}

// CanAcceptComment reports whether new comments may be attached. With
// requirePublished only Published posts qualify; otherwise any post that
// has left Draft and is not Archived does.
func (p *Post) CanAcceptComment(requirePublished bool) bool {
	if p.Deleted {
		return false
	}
	if requirePublished {
		return p.Status == PostPublished
	}
	return p.Status != PostDraft && p.Status != PostArchived
}

// VisibleTo reports whether viewer may read the post. Non-published posts
// are visible to their author and to moderators only.
func (p *Post) VisibleTo(viewer Principal) bool {
	if p.Deleted {
		return false
	}
	if p.Status == PostPublished || viewer.CanModerate() {
		return true
	}
	return !viewer.IsAnonymous() && viewer.ID == p.AuthorID
}

// IsOwnedBy reports whether viewer wrote the post.
func (p *Post) IsOwnedBy(viewer Principal) bool {
	return !viewer.IsAnonymous() && viewer.ID == p.AuthorID
}

// ApplyPatch validates and applies an edit. It leaves the post untouched
// when any field is rejected.
func (p *Post) ApplyPatch(patch PostPatch) error {
	verr := &ValidationError{}
	if patch.Title != nil {
		checkTitle(verr, *patch.Title)
	}
	if patch.Body != nil {
		checkBody(verr, *patch.Body)
	}
	var tags []string
	if patch.Tags != nil {
		normalized, err := NormalizeTags(*patch.Tags)
		var tagErr *ValidationError
		if errors.As(err, &tagErr) {
			verr.Fields = append(verr.Fields, tagErr.Fields...)
		}
		tags = normalized
	}
	if err := verr.OrNil(); err != nil {
		return err
	}

	if patch.Title != nil {
		p.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Body != nil {
		p.Body = *patch.Body
	}
	if patch.Tags != nil {
		p.Tags = tags
	}
	return nil
}

// Preview returns the first PreviewLength runes of the body.
func (p *Post) Preview() string {
	if utf8.RuneCountInString(p.Body) <= PreviewLength {
		return p.Body
	}
	runes := []rune(p.Body)
	return string(runes[:PreviewLength]) + "…"
}

// Clone returns a deep copy of the post.
func (p *Post) Clone() *Post {
	cp := *p
	cp.Tags = append([]string(nil), p.Tags...)
	if p.DeletedAt != nil {
		at := *p.DeletedAt
		cp.DeletedAt = &at
	}
	return &cp
}

func checkTitle(verr *ValidationError, title string) {
	trimmed := strings.TrimSpace(title)
	switch {
	case trimmed == "":
		verr.Add("title", "must not be blank")
	case utf8.RuneCountInString(trimmed) > MaxTitleLength:
		verr.Add("title", fmt.Sprintf("must be at most %d characters", MaxTitleLength))
	}
}

func checkBody(verr *ValidationError, body string) {
	if strings.TrimSpace(body) == "" {
		verr.Add("body", "must not be blank")
	}
}
