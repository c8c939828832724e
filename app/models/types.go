package models

import (
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// Field limits shared by the entities and the request payloads.
const (
	MaxTitleLength   = 200
	MaxCommentLength = 1000
	MaxTagLength     = 50
	MaxTags          = 20
	MaxReasonLength  = 500
)

// PostStatus is the moderation state of a post.
type PostStatus string

const (
	PostDraft         PostStatus = "draft"
	PostPendingReview PostStatus = "pending_review"
	PostPublished     PostStatus = "published"
	PostRejected      PostStatus = "rejected"
	PostArchived      PostStatus = "archived"
)

// PostStatuses lists every post state.
var PostStatuses = []PostStatus{PostDraft, PostPendingReview, PostPublished, PostRejected, PostArchived}

// Valid reports whether s is a known post state.
func (s PostStatus) Valid() bool {
	for _, known := range PostStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// CommentStatus is the moderation state of a comment.
type CommentStatus string

const (
	CommentPendingReview CommentStatus = "pending_review"
	CommentVisible       CommentStatus = "visible"
	CommentHidden        CommentStatus = "hidden"
)

// CommentStatuses lists every comment state.
var CommentStatuses = []CommentStatus{CommentPendingReview, CommentVisible, CommentHidden}

func (s CommentStatus) Valid() bool {
	for _, known := range CommentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Post represents a blog post moving through the moderation workflow
type Post struct {
	ID              int64      `json:"id"`
	AuthorID        string     `json:"author_id" validate:"required"`
	Title           string     `json:"title" validate:"notblank,max=200"`
	Body            string     `json:"body"`
	Status          PostStatus `json:"status" validate:"required"`
	Tags            []string   `json:"tags"`
	Version         int64      `json:"version" validate:"gte=1"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	Likes           int64      `json:"likes"`
	Deleted         bool       `json:"deleted,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// Comment represents a comment on a post, optionally replying to another comment
type Comment struct {
	ID            int64         `json:"id"`
	PostID        int64         `json:"post_id" validate:"required"`
	AuthorID      string        `json:"author_id" validate:"required"`
	Body          string        `json:"body" validate:"max=1000"`
	Status        CommentStatus `json:"status" validate:"required"`
	ParentID      *int64        `json:"parent_id,omitempty"`
	ParentDeleted bool          `json:"parent_deleted,omitempty"`
	Deleted       bool          `json:"deleted,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Role is the coarse permission level of a caller.
type Role string

const (
	RoleReader    Role = "reader"
	RoleAuthor    Role = "author"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleReader, RoleAuthor, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// Principal identifies the caller of an operation. The zero value is the
// anonymous reader.
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (p Principal) IsAnonymous() bool {
	return p.ID == ""
}

// CanModerate reports whether p may see and act on unpublished content.
func (p Principal) CanModerate() bool {
	return p.Role == RoleModerator || p.Role == RoleAdmin
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimFunc(fl.Field().String(), unicode.IsSpace) != ""
	})
	return v
}
