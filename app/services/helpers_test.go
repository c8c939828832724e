package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inkwell/app/models"
	"inkwell/app/repositories"
	"inkwell/app/repositories/mock"
)

var (
	alice     = models.Principal{ID: "alice", Role: models.RoleAuthor}
	bob       = models.Principal{ID: "bob", Role: models.RoleAuthor}
	moderator = models.Principal{ID: "mod", Role: models.RoleModerator}
	anonymous = models.Principal{}
)

// clock hands out strictly increasing timestamps so creation order is
// observable in listings.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	store    repositories.Store
	posts    *PostService
	comments *CommentService
	queries  *QueryService
}

func newFixture(store repositories.Store, opts Options) *fixture {
	if opts.Now == nil {
		opts.Now = newClock().Now
	}
	return &fixture{
		store:    store,
		posts:    NewPostService(store, opts),
		comments: NewCommentService(store, opts),
		queries:  NewQueryService(store, opts),
	}
}

// eachStore runs fn against the in-memory mock and an in-memory badger
// database.
func eachStore(t *testing.T, opts Options, fn func(t *testing.T, f *fixture)) {
	t.Run("mock", func(t *testing.T) {
		fn(t, newFixture(mock.NewStore(), opts))
	})
	t.Run("badger", func(t *testing.T) {
		store, err := repositories.OpenBadgerStore("")
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		fn(t, newFixture(store, opts))
	})
}

func createPost(t *testing.T, f *fixture, author, title string, tags ...string) *models.Post {
	t.Helper()
	post, err := f.posts.CreatePost(context.Background(), author, models.CreatePostRequest{
		Title: title,
		Body:  "Body of " + title,
		Tags:  tags,
	})
	require.NoError(t, err)
	return post
}

// publishPost creates a post and walks it through review.
func publishPost(t *testing.T, f *fixture, author, title string, tags ...string) *models.Post {
	t.Helper()
	ctx := context.Background()
	if len(tags) == 0 {
		tags = []string{"general"}
	}
	post := createPost(t, f, author, title, tags...)
	post, err := f.posts.SubmitForReview(ctx, post.ID, post.Version)
	require.NoError(t, err)
	post, err = f.posts.Approve(ctx, post.ID)
	require.NoError(t, err)
	return post
}

func eventTypes(t *testing.T, store repositories.Store) []models.EventType {
	t.Helper()
	events, err := store.PendingEvents(context.Background(), 1000)
	require.NoError(t, err)
	types := make([]models.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func ptr[T any](v T) *T { return &v }
