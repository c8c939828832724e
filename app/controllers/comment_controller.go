package controllers

import (
	"context"
	"fmt"
	"net/http"

	"inkwell/app/models"
	"inkwell/app/moderation"
	"inkwell/app/services"
)

// CommentController handles HTTP requests for comments
type CommentController struct {
	comments *services.CommentService
	posts    *services.PostService
}

// NewCommentController creates a new CommentController
func NewCommentController(comments *services.CommentService, posts *services.PostService) *CommentController {
	return &CommentController{comments: comments, posts: posts}
}

// Index lists the comments of a post. Moderators may pass visible=false to
// include pending, hidden and deleted comments.
func (cc *CommentController) Index(w http.ResponseWriter, r *http.Request) {
	postID, err := pathID(r, "postId")
	if err != nil {
		SendError(w, r, err)
		return
	}
	viewer := principal(r)
	if _, err := cc.posts.GetPost(r.Context(), postID, viewer); err != nil {
		SendError(w, r, err)
		return
	}

	onlyVisible := !(viewer.CanModerate() && r.URL.Query().Get("visible") == "false")
	comments := []*models.Comment{}
	for c, err := range cc.comments.ListComments(r.Context(), postID, onlyVisible) {
		if err != nil {
			SendError(w, r, err)
			return
		}
		comments = append(comments, c)
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"post_id":  postID,
		"comments": comments,
		"total":    len(comments),
	})
}

// Show returns one comment of a post.
func (cc *CommentController) Show(w http.ResponseWriter, r *http.Request) {
	postID, err := pathID(r, "postId")
	if err != nil {
		SendError(w, r, err)
		return
	}
	id, err := pathID(r, "commentId")
	if err != nil {
		SendError(w, r, err)
		return
	}
	viewer := principal(r)
	if _, err := cc.posts.GetPost(r.Context(), postID, viewer); err != nil {
		SendError(w, r, err)
		return
	}

	c, err := cc.comments.GetComment(r.Context(), postID, id)
	if err != nil {
		SendError(w, r, err)
		return
	}
	if !c.VisibleTo(viewer) {
		SendError(w, r, fmt.Errorf("comment %d: %w", id, models.ErrNotFound))
		return
	}
	sendJSON(w, http.StatusOK, c)
}

// Create adds a comment or reply as the caller.
func (cc *CommentController) Create(w http.ResponseWriter, r *http.Request) {
	postID, err := pathID(r, "postId")
	if err != nil {
		SendError(w, r, err)
		return
	}
	user, err := requireUser(r)
	if err != nil {
		SendError(w, r, err)
		return
	}
	if _, err := cc.posts.GetPost(r.Context(), postID, user); err != nil {
		SendError(w, r, err)
		return
	}

	var req models.CreateCommentRequest
	if err := bind(r, &req); err != nil {
		SendError(w, r, err)
		return
	}

	c, err := cc.comments.AddComment(r.Context(), postID, user.ID, req.Body, req.ParentID)
	if err != nil {
		SendError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/posts/%d/comments/%d", postID, c.ID))
	sendJSON(w, http.StatusCreated, c)
}

// Edit replaces the body of the caller's comment.
func (cc *CommentController) Edit(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateCommentRequest
	if err := bind(r, &req); err != nil {
		SendError(w, r, err)
		return
	}
	cc.act(w, r, ownerOrModerator, func(ctx context.Context, id int64) (*models.Comment, error) {
		return cc.comments.EditComment(ctx, id, req.Body)
	})
}

// Delete tombstones a comment.
func (cc *CommentController) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		SendError(w, r, err)
		return
	}
	if _, err := cc.authorize(r, id, ownerOrModerator); err != nil {
		SendError(w, r, err)
		return
	}
	if err := cc.comments.DeleteComment(r.Context(), id); err != nil {
		SendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Moderate applies approve, reject or takedown.
func (cc *CommentController) Moderate(w http.ResponseWriter, r *http.Request) {
	var req models.ModerateCommentRequest
	if err := bind(r, &req); err != nil {
		SendError(w, r, err)
		return
	}
	decision, err := moderation.ParseCommentDecision(req.Decision)
	if err != nil {
		SendError(w, r, err)
		return
	}
	cc.act(w, r, moderatorOnly, func(ctx context.Context, id int64) (*models.Comment, error) {
		return cc.comments.ModerateComment(ctx, id, decision)
	})
}

// ForceStatus overrides the comment status. Admins only.
func (cc *CommentController) ForceStatus(w http.ResponseWriter, r *http.Request) {
	var req models.ForceStatusRequest
	if err := bind(r, &req); err != nil {
		SendError(w, r, err)
		return
	}
	cc.act(w, r, adminOnly, func(ctx context.Context, id int64) (*models.Comment, error) {
		return cc.comments.ForceStatus(ctx, id, req.Status)
	})
}

func (cc *CommentController) act(w http.ResponseWriter, r *http.Request, rule accessRule, action func(context.Context, int64) (*models.Comment, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		SendError(w, r, err)
		return
	}
	if _, err := cc.authorize(r, id, rule); err != nil {
		SendError(w, r, err)
		return
	}
	c, err := action(r.Context(), id)
	if err != nil {
		SendError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, c)
}

// authorize loads the comment and checks rule against its author. Comments
// the caller cannot see are reported missing.
func (cc *CommentController) authorize(r *http.Request, id int64, rule accessRule) (*models.Comment, error) {
	user, err := requireUser(r)
	if err != nil {
		return nil, err
	}
	c, err := cc.comments.FindComment(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !c.VisibleTo(user) {
		return nil, fmt.Errorf("comment %d: %w", id, models.ErrNotFound)
	}
	if !rule(user, c.AuthorID) {
		return nil, fmt.Errorf("%w: %s may not change comment %d", models.ErrForbidden, user.ID, id)
	}
	return c, nil
}
