package models

import (
	"strconv"
	"time"
)

// EventType names a state change recorded in the outbox.
type EventType string

const (
	EventPostCreated     EventType = "post.created"
	EventPostUpdated     EventType = "post.updated"
	EventPostSubmitted   EventType = "post.submitted"
	EventPostPublished   EventType = "post.published"
	EventPostRejected    EventType = "post.rejected"
	EventPostArchived    EventType = "post.archived"
	EventPostResubmitted EventType = "post.resubmitted"
	EventPostDeleted     EventType = "post.deleted"
	EventPostLiked       EventType = "post.liked"
	EventPostForced      EventType = "post.status_forced"

	EventCommentAdded     EventType = "comment.added"
	EventCommentEdited    EventType = "comment.edited"
	EventCommentModerated EventType = "comment.moderated"
	EventCommentDeleted   EventType = "comment.deleted"
	EventCommentForced    EventType = "comment.status_forced"
)

// Event is an outbox record written in the same transaction as the change
// it describes.
type Event struct {
	ID         int64     `json:"id"`
	Type       EventType `json:"type"`
	PostID     int64     `json:"post_id"`
	CommentID  int64     `json:"comment_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	Version    int64     `json:"version,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewPostEvent records a change to post, moving from the given status.
func NewPostEvent(typ EventType, post *Post, from PostStatus, at time.Time) *Event {
	return &Event{
		Type:       typ,
		PostID:     post.ID,
		From:       string(from),
		To:         string(post.Status),
		Version:    post.Version,
		Reason:     post.RejectionReason,
		OccurredAt: at,
	}
}

// NewCommentEvent records a change to c, moving from the given status.
func NewCommentEvent(typ EventType, c *Comment, from CommentStatus, at time.Time) *Event {
	return &Event{
		Type:       typ,
		PostID:     c.PostID,
		CommentID:  c.ID,
		ActorID:    c.AuthorID,
		From:       string(from),
		To:         string(c.Status),
		OccurredAt: at,
	}
}

// PartitionKey keeps every event of a post on the same partition.
func (e *Event) PartitionKey() string {
	return strconv.FormatInt(e.PostID, 10)
}
