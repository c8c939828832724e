package controllers

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/sha3"

	"inkwell/app/identity"
	"inkwell/app/models"
)

var errUnauthenticated = errors.New("authentication required")

// ApiError is the body of every error response.
type ApiError struct {
	ErrorCode string              `json:"error_code"`
	Message   string              `json:"message"`
	Fields    []models.FieldError `json:"fields,omitempty"`
}

func (e ApiError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.Message)
}

// statusOf maps an error kind onto its HTTP status and error code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, errUnauthenticated), errors.Is(err, identity.ErrTokenInvalid),
		errors.Is(err, identity.ErrTokenExpired):
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict, "VERSION_CONFLICT"
	case errors.Is(err, models.ErrIllegalTransition):
		return http.StatusUnprocessableEntity, "ILLEGAL_TRANSITION"
	case errors.Is(err, models.ErrInvariantViolation):
		return http.StatusUnprocessableEntity, "INVARIANT_VIOLATION"
	case errors.Is(err, models.ErrTimeout):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, models.ErrStorage):
		return http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("controllers: encode response: %v", err)
	}
}

// SendError writes err as an ApiError envelope.
func SendError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	apiErr := ApiError{ErrorCode: code, Message: err.Error()}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		apiErr.Fields = verr.Fields
	}
	if status == http.StatusInternalServerError {
		log.Printf("controllers: %s %s: %v", r.Method, r.URL.Path, err)
		apiErr.Message = "an unknown error occurred"
	}
	sendJSON(w, status, apiErr)
}

// decodeJSON reads the request body into dst. An empty body leaves dst at
// its zero value.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return models.NewValidationError("request", "malformed JSON: "+err.Error())
	}
	return nil
}

// bind decodes and validates a request payload.
func bind(r *http.Request, dst interface{}) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	return models.ValidateRequest(dst)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, models.NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, models.NewValidationError(name, "must be an integer")
	}
	return n, nil
}

// principal returns the caller, which is anonymous when no token was sent.
func principal(r *http.Request) models.Principal {
	return identity.FromContext(r.Context())
}

func requireUser(r *http.Request) (models.Principal, error) {
	p := principal(r)
	if p.IsAnonymous() {
		return p, errUnauthenticated
	}
	return p, nil
}

// ETag derives a strong validator from the post id, version, content and
// likes. It always starts with the version so it can come back in If-Match.
func ETag(post *models.Post) string {
	return etag(post, 0)
}

// etag folds the comment count into the validator of a post detail view.
func etag(post *models.Post, comments int) string {
	h := sha3.New256()
	fmt.Fprintf(h, "%d\x00%d\x00%s\x00%s\x00%s\x00%d\x00%d",
		post.ID, post.Version, post.Title, post.Body, strings.Join(post.Tags, ","), post.Likes, comments)
	return fmt.Sprintf(`"%d-%s"`, post.Version, hex.EncodeToString(h.Sum(nil)[:8]))
}

// ifMatchVersion extracts the version from an If-Match header produced by
// ETag. A bare quoted version is accepted too.
func ifMatchVersion(header string) (int64, bool, error) {
	v := strings.TrimSpace(header)
	if v == "" {
		return 0, false, nil
	}
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, `"`)
	if i := strings.IndexByte(v, '-'); i >= 0 {
		v = v[:i]
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, false, models.NewValidationError("If-Match", "must carry a post version")
	}
	return n, true, nil
}

// expectedVersion prefers the version in the body and falls back to the
// If-Match header.
func expectedVersion(r *http.Request, body int64) (int64, error) {
	if body > 0 {
		return body, nil
	}
	v, ok, err := ifMatchVersion(r.Header.Get("If-Match"))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, models.NewValidationError("version", "is required in the body or If-Match header")
	}
	return v, nil
}
