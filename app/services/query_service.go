package services

import (
	"context"
	"time"

	"inkwell/app/models"
	"inkwell/app/query"
	"inkwell/app/repositories"
)

// PostSummary is a post as it appears in a listing: the body is cut down
// to a preview and the visible comments are counted.
type PostSummary struct {
	ID            int64             `json:"id"`
	AuthorID      string            `json:"author_id"`
	Title         string            `json:"title"`
	Preview       string            `json:"preview"`
	Status        models.PostStatus `json:"status"`
	Tags          []string          `json:"tags"`
	Version       int64             `json:"version"`
	Likes         int64             `json:"likes"`
	CommentsCount int               `json:"comments_count"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func summarize(post *models.Post, comments int) *PostSummary {
	return &PostSummary{
		ID:            post.ID,
		AuthorID:      post.AuthorID,
		Title:         post.Title,
		Preview:       post.Preview(),
		Status:        post.Status,
		Tags:          post.Tags,
		Version:       post.Version,
		Likes:         post.Likes,
		CommentsCount: comments,
		CreatedAt:     post.CreatedAt,
		UpdatedAt:     post.UpdatedAt,
	}
}

// PostPage is one window of a post listing. Pages are numbered from 1;
// LastPage is at least 1 even when nothing matched.
type PostPage struct {
	Items    []*PostSummary `json:"items"`
	Total    int            `json:"total"`
	Offset   int            `json:"offset"`
	Limit    int            `json:"limit"`
	LastPage int            `json:"last_page"`
	HasPrev  bool           `json:"has_prev"`
	HasNext  bool           `json:"has_next"`
}

// QueryService lists posts for a viewer.
type QueryService struct {
	tx txRunner
}

func NewQueryService(store repositories.Store, opts Options) *QueryService {
	opts = opts.withDefaults()
	return &QueryService{tx: txRunner{store: store, timeout: opts.StorageTimeout}}
}

// ListPosts returns the page of posts matching filter that viewer may see.
// Viewers without moderation rights only ever see published posts.
func (s *QueryService) ListPosts(ctx context.Context, filter query.Filter, page query.Page, viewer models.Principal) (*PostPage, error) {
	f, err := query.ForViewer(filter, viewer)
	if err != nil {
		return nil, err
	}
	page = page.Normalize()

	var (
		items []*PostSummary
		total int
	)
	err = s.tx.view(ctx, func(tx repositories.Tx) error {
		posts, n, err := tx.QueryPosts(f, page)
		if err != nil {
			return err
		}
		total = n
		items = make([]*PostSummary, 0, len(posts))
		for _, post := range posts {
			comments, err := countComments(tx, post.ID, true)
			if err != nil {
				return err
			}
			items = append(items, summarize(post, comments))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &PostPage{
		Items:    items,
		Total:    total,
		Offset:   page.Offset,
		Limit:    page.Limit,
		LastPage: lastPage(total, page.Limit),
		HasPrev:  page.Offset > 0,
		HasNext:  page.Offset+len(items) < total,
	}, nil
}

func lastPage(total, limit int) int {
	if total <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}
