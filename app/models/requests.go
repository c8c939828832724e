package models

// CreatePostRequest is the payload accepted when drafting a post.
type CreatePostRequest struct {
	Title string   `json:"title" validate:"notblank,max=200"`
	Body  string   `json:"body" validate:"notblank"`
	Tags  []string `json:"tags" validate:"max=20,dive,notblank,max=50"`
}

// UpdatePostRequest edits a post guarded by the version the client last saw.
type UpdatePostRequest struct {
	Version int64     `json:"version" validate:"gt=0"`
	Title   *string   `json:"title,omitempty" validate:"omitempty,notblank,max=200"`
	Body    *string   `json:"body,omitempty" validate:"omitempty,notblank"`
	Tags    *[]string `json:"tags,omitempty" validate:"omitempty,max=20,dive,notblank,max=50"`
}

// Patch converts the request into a PostPatch.
func (r UpdatePostRequest) Patch() PostPatch {
	return PostPatch{Title: r.Title, Body: r.Body, Tags: r.Tags}
}

// VersionRequest carries the expected version for author transitions.
type VersionRequest struct {
	Version int64 `json:"version" validate:"gt=0"`
}

type RejectPostRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ForceStatusRequest is the administrative override payload.
type ForceStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type CreateCommentRequest struct {
	Body     string `json:"body" validate:"notblank,max=1000"`
	ParentID *int64 `json:"parent_id,omitempty" validate:"omitempty,gt=0"`
}

type UpdateCommentRequest struct {
	Body string `json:"body" validate:"notblank,max=1000"`
}

// ModerateCommentRequest carries a moderator decision on a comment.
type ModerateCommentRequest struct {
	Decision string `json:"decision" validate:"oneof=approve reject takedown"`
}
