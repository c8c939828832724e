// Package query filters, orders and paginates posts. Stores that cannot push
// a filter down to their engine run it through Apply so every backend
// returns the same pages.
package query

import (
	"sort"
	"strings"

	"inkwell/app/models"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Filter selects posts. Zero fields match everything.
type Filter struct {
	Status   *models.PostStatus
	Tag      string
	AuthorID string
	Search   string
}

// Page is an offset window.
type Page struct {
	Offset int
	Limit  int
}

// Normalize clamps the window: a missing limit becomes DefaultLimit, the
// limit is capped at MaxLimit and negative offsets become zero.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ForViewer normalizes f for the given caller. Readers and authors only
// ever see Published posts; moderators may filter on any status.
func ForViewer(f Filter, viewer models.Principal) (Filter, error) {
	verr := &models.ValidationError{}
	if f.Status != nil && !f.Status.Valid() {
		verr.Add("status", "unknown status "+string(*f.Status))
	}
	if f.Tag != "" {
		tag, err := models.NormalizeTag(f.Tag)
		if err != nil {
			verr.Add("tag", err.Error())
		}
		f.Tag = tag
	}
	if err := verr.OrNil(); err != nil {
		return Filter{}, err
	}

	if !viewer.CanModerate() {
		published := models.PostPublished
		f.Status = &published
	}
	f.AuthorID = strings.TrimSpace(f.AuthorID)
	f.Search = strings.TrimSpace(f.Search)
	return f, nil
}

// Match reports whether post passes the filter. Deleted posts never match.
func (f Filter) Match(post *models.Post) bool {
	if post.Deleted {
		return false
	}
	if f.Status != nil && post.Status != *f.Status {
		return false
	}
	if f.Tag != "" && !post.HasTag(f.Tag) {
		return false
	}
	if f.AuthorID != "" && post.AuthorID != f.AuthorID {
		return false
	}
	if f.Search != "" && !matchesSearch(post, f.Search) {
		return false
	}
	return true
}

// matchesSearch is a case-insensitive substring match on title or body.
func matchesSearch(post *models.Post, term string) bool {
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(post.Title), term) ||
		strings.Contains(strings.ToLower(post.Body), term)
}

// Less orders posts newest first, ties broken by ascending id.
func Less(a, b *models.Post) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Sort orders posts in place with Less.
func Sort(posts []*models.Post) {
	sort.SliceStable(posts, func(i, j int) bool { return Less(posts[i], posts[j]) })
}

// Apply filters, sorts and slices posts. It returns the page and the total
// number of matches.
func Apply(posts []*models.Post, f Filter, p Page) ([]*models.Post, int) {
	matched := make([]*models.Post, 0, len(posts))
	for _, post := range posts {
		if f.Match(post) {
			matched = append(matched, post)
		}
	}
	Sort(matched)
	return Window(matched, p), len(matched)
}

// Window slices an already ordered result set.
func Window(posts []*models.Post, p Page) []*models.Post {
	p = p.Normalize()
	if p.Offset >= len(posts) {
		return []*models.Post{}
	}
	end := p.Offset + p.Limit
	if end > len(posts) {
		end = len(posts)
	}
	return posts[p.Offset:end]
}
