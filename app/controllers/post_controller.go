package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"inkwell/app/models"
	"inkwell/app/moderation"
	"inkwell/app/query"
	"inkwell/app/services"
)

// PostController handles HTTP requests for blog posts
type PostController struct {
	posts    *services.PostService
	comments *services.CommentService
	queries  *services.QueryService
}

// NewPostController creates a new PostController
func NewPostController(posts *services.PostService, comments *services.CommentService, queries *services.QueryService) *PostController {
	return &PostController{posts: posts, comments: comments, queries: queries}
}

// postView is the JSON shape of a single post.
type postView struct {
	*models.Post
	AllowedActions []moderation.PostAction `json:"allowed_actions"`
	CommentsCount  *int                    `json:"comments_count,omitempty"`
}

func newPostView(post *models.Post) postView {
	actions := moderation.AllowedPostActions(post.Status)
	if actions == nil {
		actions = []moderation.PostAction{}
	}
	return postView{Post: post, AllowedActions: actions}
}

// Index lists posts. Query parameters: status, tag, author, q, offset, limit.
func (pc *PostController) Index(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := query.Filter{
		Tag:      q.Get("tag"),
		AuthorID: q.Get("author"),
		Search:   q.Get("q"),
	}
	if s := q.Get("status"); s != "" {
		status := models.PostStatus(strings.ToLower(s))
		filter.Status = &status
	}

	offset, err := queryInt(r, "offset")
	if err != nil {
		SendError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		SendError(w, r, err)
		return
	}

	page, err := pc.queries.ListPosts(r.Context(), filter, query.Page{Offset: offset, Limit: limit}, principal(r))
	if err != nil {
		SendError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, page)
}

// Show returns one post with its ETag, or 304 when the client copy is
// current.
func (pc *PostController) Show(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		SendError(w, r, err)
		return
	}

	post, err := pc.posts.GetPost(r.Context(), id, principal(r))
	if err != nil {
		SendError(w, r, err)
		return
	}
	comments, err := pc.comments.CountComments(r.Context(), id, true)
	if err != nil {
		SendError(w, r, err)
		return
	}

	tag := etag(post, comments)
	w.Header().Set("ETag", tag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == tag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	view := newPostView(post)
	view.CommentsCount = &comments
	sendJSON(w, http.StatusOK, view)
}

// Create drafts a post owned by the caller.
func (pc *PostController) Create(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		SendError(w, r, err)
		return
	}
	if user.Role == models.RoleReader {
		SendError(w, r, fmt.Errorf("%w: readers cannot write posts", models.ErrForbidden))
		return
	}

	var req models.CreatePostRequest
	if err := bind(r, &req); err != nil {
		SendError(w, r, err)
		return
	}

	post, err := pc.posts.CreatePost(r.Context(), user.ID, req)
	if err != nil {
		SendError(w, r, err)
		return
	}
	pc.sendPost(w, http.StatusCreated, post)
}

// Edit applies a partial update. The expected version comes from the body
// or the If-Match header.
func (pc *PostController) Edit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		SendError(w, r, err)
		return
	}
	if _, err := pc.authorize(r, id, ownerOrModerator); err != nil {
		SendError(w, r, err)
		return
	}

	var req models.UpdatePostRequest
	if err := decodeJSON(r, &req); err != nil {
		SendError(w, r, err)
		return
	}
	if req.Version, err = expectedVersion(r, req.Version); err != nil {
		SendError(w, r, err)
		return
	}
	if err := models.ValidateRequest(&req); err != nil {
		SendError(w, r, err)
		return
	}

	post, err := pc.posts.UpdatePost(r.Context(), id, req.Version, req.Patch())
	if err != nil {
		SendError(w, r, err)
		return
	}
	pc.sendPost(w, http.StatusOK, post)
}

// Delete removes a post and hides its comments.
func (pc *PostController) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		SendError(w, r, err)
		return
	}
	if _, err := pc.authorize(r, id, ownerOrModerator); err != nil {
		SendError(w, r, err)
		return
	}
	if err := pc.posts.DeletePost(r.Context(), id); err != nil {
		SendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Submit sends a draft to review.
func (pc *PostController) Submit(w http.ResponseWriter, r *http.Request) {
	pc.versioned(w, r, pc.posts.SubmitForReview)
}

// Resubmit turns a rejected post back into a draft.
func (pc *PostController) Resubmit(w http.ResponseWriter, r *http.Request) {
	pc.versioned(w, r, pc.posts.Resubmit)
}

// Approve publishes a post under review.
func (pc *PostController) Approve(w http.ResponseWriter, r *http.Request) {
	pc.moderate(w, r, moderatorOnly, pc.posts.Approve)
}

// Archive retires a published post.
func (pc *PostController) Archive(w http.ResponseWriter, r *http.Request) {
	pc.moderate(w, r, ownerOrModerator, pc.posts.Archive)
}

// Reject returns a post under review to its author.
func (pc *PostController) Reject(w http.ResponseWriter, r *http.Request) {
	var req models.RejectPostRequest
	if err := bind(r, &req); err != nil {
		SendError(w, r, err)
		return
	}
	pc.moderate(w, r, moderatorOnly, func(ctx context.Context, id int64) (*models.Post, error) {
		return pc.posts.Reject(ctx, id, req.Reason)
	})
}

// ForceStatus overrides the post status. Admins only.
func (pc *PostController) ForceStatus(w http.ResponseWriter, r *http.Request) {
	var req models.ForceStatusRequest
	if err := bind(r, &req); err != nil {
		SendError(w, r, err)
		return
	}
	pc.moderate(w, r, adminOnly, func(ctx context.Context, id int64) (*models.Post, error) {
		return pc.posts.ForceStatus(ctx, id, req.Status)
	})
}

// Like counts a like from any signed-in user.
func (pc *PostController) Like(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		SendError(w, r, err)
		return
	}
	if _, err := requireUser(r); err != nil {
		SendError(w, r, err)
		return
	}
	post, err := pc.posts.LikePost(r.Context(), id)
	if err != nil {
		SendError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]int64{"id": post.ID, "likes": post.Likes})
}

func (pc *PostController) versioned(w http.ResponseWriter, r *http.Request, action func(context.Context, int64, int64) (*models.Post, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		SendError(w, r, err)
		return
	}
	if _, err := pc.authorize(r, id, ownerOrModerator); err != nil {
		SendError(w, r, err)
		return
	}

	var req models.VersionRequest
	if err := decodeJSON(r, &req); err != nil {
		SendError(w, r, err)
		return
	}
	version, err := expectedVersion(r, req.Version)
	if err != nil {
		SendError(w, r, err)
		return
	}

	post, err := action(r.Context(), id, version)
	if err != nil {
		SendError(w, r, err)
		return
	}
	pc.sendPost(w, http.StatusOK, post)
}

func (pc *PostController) moderate(w http.ResponseWriter, r *http.Request, rule accessRule, action func(context.Context, int64) (*models.Post, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		SendError(w, r, err)
		return
	}
	if _, err := pc.authorize(r, id, rule); err != nil {
		SendError(w, r, err)
		return
	}
	post, err := action(r.Context(), id)
	if err != nil {
		SendError(w, r, err)
		return
	}
	pc.sendPost(w, http.StatusOK, post)
}

// authorize checks rule against the caller. Posts the caller cannot see are
// reported missing before any permission error.
func (pc *PostController) authorize(r *http.Request, id int64, rule accessRule) (*models.Post, error) {
	user, err := requireUser(r)
	if err != nil {
		return nil, err
	}
	post, err := pc.posts.GetPost(r.Context(), id, user)
	if err != nil {
		return nil, err
	}
	if !rule(user, post.AuthorID) {
		return nil, fmt.Errorf("%w: %s may not change post %d", models.ErrForbidden, user.ID, id)
	}
	return post, nil
}

func (pc *PostController) sendPost(w http.ResponseWriter, status int, post *models.Post) {
	w.Header().Set("ETag", ETag(post))
	if status == http.StatusCreated {
		w.Header().Set("Location", fmt.Sprintf("/api/posts/%d", post.ID))
	}
	sendJSON(w, status, newPostView(post))
}

// accessRule decides whether user may act on something written by owner.
type accessRule func(user models.Principal, owner string) bool

func ownerOrModerator(user models.Principal, owner string) bool {
	return user.CanModerate() || user.ID == owner
}

func moderatorOnly(user models.Principal, _ string) bool {
	return user.CanModerate()
}

func adminOnly(user models.Principal, _ string) bool {
	return user.IsAdmin()
}
