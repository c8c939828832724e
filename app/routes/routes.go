// Package routes wires the JSON API onto a gorilla/mux router.
package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"inkwell/app/controllers"
	"inkwell/app/middleware"
	"inkwell/app/models"
	"inkwell/app/services"
)

// Deps are the collaborators the handlers need.
type Deps struct {
	Posts    *services.PostService
	Comments *services.CommentService
	Queries  *services.QueryService
	Tokens   middleware.TokenParser
}

// SetupRoutes defines the application's routes and returns a router.
func SetupRoutes(deps Deps) *mux.Router {
	router := mux.NewRouter()

	// Apply global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.ContentTypeJSON)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		controllers.SendError(w, r, models.ErrNotFound)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error_code":"METHOD_NOT_ALLOWED","message":"method not allowed"}` + "\n"))
	})

	postController := controllers.NewPostController(deps.Posts, deps.Comments, deps.Queries)
	commentController := controllers.NewCommentController(deps.Comments, deps.Posts)

	// API routes
	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.Authenticate(deps.Tokens))

	// Posts API endpoints
	posts := api.PathPrefix("/posts").Subrouter()
	posts.HandleFunc("", postController.Index).Methods("GET")
	posts.HandleFunc("", postController.Create).Methods("POST")
	posts.HandleFunc("/{id:[0-9]+}", postController.Show).Methods("GET")
	posts.HandleFunc("/{id:[0-9]+}", postController.Edit).Methods("PUT")
	posts.HandleFunc("/{id:[0-9]+}", postController.Delete).Methods("DELETE")
	posts.HandleFunc("/{id:[0-9]+}/submit", postController.Submit).Methods("POST")
	posts.HandleFunc("/{id:[0-9]+}/approve", postController.Approve).Methods("POST")
	posts.HandleFunc("/{id:[0-9]+}/reject", postController.Reject).Methods("POST")
	posts.HandleFunc("/{id:[0-9]+}/archive", postController.Archive).Methods("POST")
	posts.HandleFunc("/{id:[0-9]+}/resubmit", postController.Resubmit).Methods("POST")
	posts.HandleFunc("/{id:[0-9]+}/status", postController.ForceStatus).Methods("POST")
	posts.HandleFunc("/{id:[0-9]+}/likes", postController.Like).Methods("POST")

	// Comments API endpoints
	posts.HandleFunc("/{postId:[0-9]+}/comments", commentController.Index).Methods("GET")
	posts.HandleFunc("/{postId:[0-9]+}/comments", commentController.Create).Methods("POST")
	posts.HandleFunc("/{postId:[0-9]+}/comments/{commentId:[0-9]+}", commentController.Show).Methods("GET")
	api.HandleFunc("/comments/{id:[0-9]+}", commentController.Edit).Methods("PUT")
	api.HandleFunc("/comments/{id:[0-9]+}", commentController.Delete).Methods("DELETE")
	api.HandleFunc("/comments/{id:[0-9]+}/moderate", commentController.Moderate).Methods("POST")
	api.HandleFunc("/comments/{id:[0-9]+}/status", commentController.ForceStatus).Methods("POST")

	return router
}
