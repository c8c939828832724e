package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"inkwell/app/identity"
	"inkwell/app/middleware"
	"inkwell/app/models"
	"inkwell/app/repositories/mock"
	"inkwell/app/services"
)

var (
	alice = models.Principal{ID: "alice", Role: models.RoleAuthor}
	bob   = models.Principal{ID: "bob", Role: models.RoleAuthor}
	rita  = models.Principal{ID: "rita", Role: models.RoleReader}
	mod   = models.Principal{ID: "mod", Role: models.RoleModerator}
	admin = models.Principal{ID: "root", Role: models.RoleAdmin}
	anon  = models.Principal{}
)

type harness struct {
	t        *testing.T
	router   *mux.Router
	verifier *identity.Verifier
	posts    *services.PostService
	comments *services.CommentService
}

func newHarness(t *testing.T, opts services.Options) *harness {
	store := mock.NewStore()
	posts := services.NewPostService(store, opts)
	comments := services.NewCommentService(store, opts)
	queries := services.NewQueryService(store, opts)
	postController := NewPostController(posts, comments, queries)
	commentController := NewCommentController(comments, posts)

	verifier := identity.NewVerifier([]byte("controller-test"))
	router := mux.NewRouter()
	router.Use(middleware.Authenticate(verifier))
	router.HandleFunc("/api/posts", postController.Index).Methods("GET")
	router.HandleFunc("/api/posts", postController.Create).Methods("POST")
	router.HandleFunc("/api/posts/{id:[0-9]+}", postController.Show).Methods("GET")
	router.HandleFunc("/api/posts/{id:[0-9]+}", postController.Edit).Methods("PUT")
	router.HandleFunc("/api/posts/{id:[0-9]+}", postController.Delete).Methods("DELETE")
	router.HandleFunc("/api/posts/{id:[0-9]+}/submit", postController.Submit).Methods("POST")
	router.HandleFunc("/api/posts/{id:[0-9]+}/approve", postController.Approve).Methods("POST")
	router.HandleFunc("/api/posts/{id:[0-9]+}/reject", postController.Reject).Methods("POST")
	router.HandleFunc("/api/posts/{id:[0-9]+}/archive", postController.Archive).Methods("POST")
	router.HandleFunc("/api/posts/{id:[0-9]+}/resubmit", postController.Resubmit).Methods("POST")
	router.HandleFunc("/api/posts/{id:[0-9]+}/status", postController.ForceStatus).Methods("POST")
	router.HandleFunc("/api/posts/{id:[0-9]+}/likes", postController.Like).Methods("POST")
	router.HandleFunc("/api/posts/{postId:[0-9]+}/comments", commentController.Index).Methods("GET")
	router.HandleFunc("/api/posts/{postId:[0-9]+}/comments", commentController.Create).Methods("POST")
	router.HandleFunc("/api/posts/{postId:[0-9]+}/comments/{commentId:[0-9]+}", commentController.Show).Methods("GET")
	router.HandleFunc("/api/comments/{id:[0-9]+}", commentController.Edit).Methods("PUT")
	router.HandleFunc("/api/comments/{id:[0-9]+}", commentController.Delete).Methods("DELETE")
	router.HandleFunc("/api/comments/{id:[0-9]+}/moderate", commentController.Moderate).Methods("POST")
	router.HandleFunc("/api/comments/{id:[0-9]+}/status", commentController.ForceStatus).Methods("POST")

	return &harness{t: t, router: router, verifier: verifier, posts: posts, comments: comments}
}

// do sends a request as who. Extra headers come in name, value pairs.
func (h *harness) do(method, path, body string, who models.Principal, headers ...string) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if !who.IsAnonymous() {
		token, err := h.verifier.Issue(who.ID, who.Role, time.Hour)
		require.NoError(h.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[ApiError](t, w).ErrorCode
}

// createPublished drafts, submits and approves a post through the API.
func (h *harness) createPublished(author models.Principal, title string) *models.Post {
	h.t.Helper()
	w := h.do("POST", "/api/posts", `{"title":"`+title+`","body":"text","tags":["go"]}`, author)
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	post := decode[models.Post](h.t, w)

	w = h.do("POST", pathf("/api/posts/%d/submit", post.ID), `{"version":1}`, author)
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	w = h.do("POST", pathf("/api/posts/%d/approve", post.ID), "", mod)
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	published := decode[models.Post](h.t, w)
	return &published
}

func pathf(format string, args ...any) string { return fmt.Sprintf(format, args...) }
