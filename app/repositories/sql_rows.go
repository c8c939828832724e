package repositories

import (
	"time"

	"inkwell/app/models"
)

// Table rows for the relational store. They mirror the entities but keep
// tags in their own table so tag filters can be pushed down to SQL.

type postRow struct {
	ID              int64      `gorm:"primaryKey;autoIncrement"`
	AuthorID        string     `gorm:"size:64;not null;index:idx_posts_author"`
	Title           string     `gorm:"size:800;not null"`
	Body            string     `gorm:"type:text;not null"`
	Status          string     `gorm:"size:20;not null;index:idx_posts_status_created,priority:1"`
	Version         int64      `gorm:"not null"`
	RejectionReason string     `gorm:"size:2000"`
	Likes           int64      `gorm:"not null;default:0"`
	Deleted         bool       `gorm:"not null;default:false"`
	DeletedAt       *time.Time `gorm:"column:deleted_at"`
	CreatedAt       time.Time  `gorm:"not null;precision:6;index:idx_posts_status_created,priority:2"`
	UpdatedAt       time.Time  `gorm:"not null;precision:6"`
}

func (postRow) TableName() string { return "posts" }

type postTagRow struct {
	PostID int64  `gorm:"primaryKey;autoIncrement:false"`
	Tag    string `gorm:"primaryKey;size:50;index:idx_post_tags_tag"`
}

func (postTagRow) TableName() string { return "post_tags" }

type commentRow struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	PostID        int64     `gorm:"not null;index:idx_comments_post_created,priority:1"`
	AuthorID      string    `gorm:"size:64;not null"`
	Body          string    `gorm:"type:text;not null"`
	Status        string    `gorm:"size:20;not null"`
	ParentID      *int64    `gorm:"index:idx_comments_parent"`
	ParentDeleted bool      `gorm:"not null;default:false"`
	Deleted       bool      `gorm:"not null;default:false"`
	CreatedAt     time.Time `gorm:"not null;precision:6;index:idx_comments_post_created,priority:2"`
	UpdatedAt     time.Time `gorm:"not null;precision:6"`
}

func (commentRow) TableName() string { return "comments" }

// outboxRow stores a pending event; Status 0 is pending and 1 is sent.
type outboxRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	EventType string    `gorm:"size:32;not null"`
	PostID    int64     `gorm:"not null"`
	Payload   string    `gorm:"type:json;not null"`
	Status    int8      `gorm:"not null;default:0;index:idx_outbox_status"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

func (outboxRow) TableName() string { return "outbox" }

func newPostRow(p *models.Post) *postRow {
	return &postRow{
		ID:              p.ID,
		AuthorID:        p.AuthorID,
		Title:           p.Title,
		Body:            p.Body,
		Status:          string(p.Status),
		Version:         p.Version,
		RejectionReason: p.RejectionReason,
		Likes:           p.Likes,
		Deleted:         p.Deleted,
		DeletedAt:       p.DeletedAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func (r *postRow) toModel(tags []string) *models.Post {
	if tags == nil {
		tags = []string{}
	}
	return &models.Post{
		ID:              r.ID,
		AuthorID:        r.AuthorID,
		Title:           r.Title,
		Body:            r.Body,
		Status:          models.PostStatus(r.Status),
		Tags:            tags,
		Version:         r.Version,
		RejectionReason: r.RejectionReason,
		Likes:           r.Likes,
		Deleted:         r.Deleted,
		DeletedAt:       r.DeletedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func newCommentRow(c *models.Comment) *commentRow {
	return &commentRow{
		ID:            c.ID,
		PostID:        c.PostID,
		AuthorID:      c.AuthorID,
		Body:          c.Body,
		Status:        string(c.Status),
		ParentID:      c.ParentID,
		ParentDeleted: c.ParentDeleted,
		Deleted:       c.Deleted,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func (r *commentRow) toModel() *models.Comment {
	return &models.Comment{
		ID:            r.ID,
		PostID:        r.PostID,
		AuthorID:      r.AuthorID,
		Body:          r.Body,
		Status:        models.CommentStatus(r.Status),
		ParentID:      r.ParentID,
		ParentDeleted: r.ParentDeleted,
		Deleted:       r.Deleted,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
