// Package moderation holds the post and comment state machines. Every status
// change in the system is decided here; the services only persist the result.
package moderation

import (
	"fmt"
	"sort"

	"inkwell/app/models"
)

// PostAction is a workflow step applied to a post.
type PostAction string

const (
	Submit   PostAction = "submit"
	Approve  PostAction = "approve"
	Reject   PostAction = "reject"
	Archive  PostAction = "archive"
	Resubmit PostAction = "resubmit"
)

// PostActions lists every post action.
var PostActions = []PostAction{Submit, Approve, Reject, Archive, Resubmit}

// CommentDecision is a moderator verdict on a comment.
type CommentDecision string

const (
	ApproveComment  CommentDecision = "approve"
	RejectComment   CommentDecision = "reject"
	TakedownComment CommentDecision = "takedown"
)

var CommentDecisions = []CommentDecision{ApproveComment, RejectComment, TakedownComment}

type postEdge struct {
	from   models.PostStatus
	action PostAction
}

type commentEdge struct {
	from     models.CommentStatus
	decision CommentDecision
}

var postTransitions = map[postEdge]models.PostStatus{
	{models.PostDraft, Submit}:          models.PostPendingReview,
	{models.PostPendingReview, Approve}: models.PostPublished,
	{models.PostPendingReview, Reject}:  models.PostRejected,
	{models.PostPublished, Archive}:     models.PostArchived,
	{models.PostRejected, Resubmit}:     models.PostDraft,
}

var commentTransitions = map[commentEdge]models.CommentStatus{
	{models.CommentPendingReview, ApproveComment}: models.CommentVisible,
	{models.CommentPendingReview, RejectComment}:  models.CommentHidden,
	{models.CommentVisible, TakedownComment}:      models.CommentHidden,
}

// NextPostStatus returns the state reached by applying action to a post in
// state from, or ErrIllegalTransition when the pair is not in the table.
func NextPostStatus(from models.PostStatus, action PostAction) (models.PostStatus, error) {
	next, ok := postTransitions[postEdge{from, action}]
	if !ok {
		return from, fmt.Errorf("%w: cannot %s a %s post", models.ErrIllegalTransition, action, from)
	}
	return next, nil
}

// NextCommentStatus returns the state reached by applying decision to a
// comment in state from.
func NextCommentStatus(from models.CommentStatus, decision CommentDecision) (models.CommentStatus, error) {
	next, ok := commentTransitions[commentEdge{from, decision}]
	if !ok {
		return from, fmt.Errorf("%w: cannot %s a %s comment", models.ErrIllegalTransition, decision, from)
	}
	return next, nil
}

// AllowedPostActions lists the actions legal from the given state, sorted.
func AllowedPostActions(from models.PostStatus) []PostAction {
	var actions []PostAction
	for edge := range postTransitions {
		if edge.from == from {
			actions = append(actions, edge.action)
		}
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// ParseCommentDecision maps a wire value onto a CommentDecision.
func ParseCommentDecision(s string) (CommentDecision, error) {
	for _, d := range CommentDecisions {
		if string(d) == s {
			return d, nil
		}
	}
	return "", models.NewValidationError("decision", fmt.Sprintf("unknown decision %q", s))
}

// OverridePost validates the target of an administrative status override.
// Overrides bypass the transition table but not the entity invariants,
// which the caller checks once the new state is applied.
func OverridePost(target string) (models.PostStatus, error) {
	status := models.PostStatus(target)
	if !status.Valid() {
		return "", models.NewValidationError("status", fmt.Sprintf("unknown post status %q", target))
	}
	return status, nil
}

// OverrideComment validates the target of a comment status override.
func OverrideComment(target string) (models.CommentStatus, error) {
	status := models.CommentStatus(target)
	if !status.Valid() {
		return "", models.NewValidationError("status", fmt.Sprintf("unknown comment status %q", target))
	}
	return status, nil
}

// PostEvent names the outbox event emitted for an action.
func PostEvent(action PostAction) models.EventType {
	switch action {
	case Submit:
		return models.EventPostSubmitted
	case Approve:
		return models.EventPostPublished
	case Reject:
		return models.EventPostRejected
	case Archive:
		return models.EventPostArchived
	case Resubmit:
		return models.EventPostResubmitted
	}
	return models.EventPostUpdated
}
