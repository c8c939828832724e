package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/app/models"
	"inkwell/app/query"
)

// testStoreContract exercises behaviour every Store implementation shares.
func testStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	write := func(t *testing.T, fn func(tx Tx)) {
		t.Helper()
		tx, err := store.Begin(ctx, true)
		require.NoError(t, err)
		defer tx.Rollback()
		fn(tx)
		require.NoError(t, tx.Commit())
	}
	newPost := func(t *testing.T, title string, tags []string, at time.Time) *models.Post {
		t.Helper()
		post, err := models.NewPost("alice", title, "body of "+title, tags, at)
		require.NoError(t, err)
		write(t, func(tx Tx) { require.NoError(t, tx.CreatePost(post)) })
		return post
	}

	t.Run("create and get post", func(t *testing.T) {
		post := newPost(t, "Create and get", []string{"go", "db"}, base)
		assert.Greater(t, post.ID, int64(0))

		tx, err := store.Begin(ctx, false)
		require.NoError(t, err)
		defer tx.Rollback()

		got, err := tx.GetPost(post.ID)
		require.NoError(t, err)
		assert.Equal(t, post.Title, got.Title)
		assert.Equal(t, []string{"db", "go"}, got.Tags)
		assert.Equal(t, models.PostDraft, got.Status)
		assert.Equal(t, int64(1), got.Version)
		assert.True(t, post.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("missing post", func(t *testing.T) {
		tx, err := store.Begin(ctx, false)
		require.NoError(t, err)
		defer tx.Rollback()
		_, err = tx.GetPost(999999)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("update checks version", func(t *testing.T) {
		post := newPost(t, "Versioned", []string{"go"}, base)

		updated := post.Clone()
		updated.Title = "Versioned v2"
		updated.Version = 2
		write(t, func(tx Tx) { require.NoError(t, tx.UpdatePost(updated, 1)) })

		stale := post.Clone()
		stale.Title = "Stale"
		stale.Version = 2
		tx, err := store.Begin(ctx, true)
		require.NoError(t, err)
		defer tx.Rollback()
		assert.ErrorIs(t, tx.UpdatePost(stale, 1), models.ErrConflict)
	})

	t.Run("rollback discards writes", func(t *testing.T) {
		post, err := models.NewPost("alice", "Rolled back", "body", nil, base)
		require.NoError(t, err)

		tx, err := store.Begin(ctx, true)
		require.NoError(t, err)
		require.NoError(t, tx.CreatePost(post))
		require.NoError(t, tx.Rollback())
		require.NoError(t, tx.Rollback(), "second rollback is a no-op")

		tx, err = store.Begin(ctx, false)
		require.NoError(t, err)
		defer tx.Rollback()
		_, err = tx.GetPost(post.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("query by tag status and title", func(t *testing.T) {
		first := newPost(t, "Query Alpha", []string{"querytag"}, base.Add(time.Hour))
		second := newPost(t, "Query Beta", []string{"querytag", "extra"}, base.Add(2*time.Hour))
		third := newPost(t, "Query Gamma", []string{"querytag"}, base.Add(2*time.Hour))

		published := second.Clone()
		published.Status = models.PostPublished
		published.Version = 2
		write(t, func(tx Tx) { require.NoError(t, tx.UpdatePost(published, 1)) })

		tx, err := store.Begin(ctx, false)
		require.NoError(t, err)
		defer tx.Rollback()

		items, total, err := tx.QueryPosts(query.Filter{Tag: "querytag"}, query.Page{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, items, 3)
		// second and third share a timestamp, so the lower id wins.
		assert.Equal(t, []int64{second.ID, third.ID, first.ID}, []int64{items[0].ID, items[1].ID, items[2].ID})

		status := models.PostPublished
		items, total, err = tx.QueryPosts(query.Filter{Tag: "querytag", Status: &status}, query.Page{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, second.ID, items[0].ID)
		assert.Equal(t, []string{"extra", "querytag"}, items[0].Tags)

		items, total, err = tx.QueryPosts(query.Filter{Tag: "querytag", Search: "gAmMa"}, query.Page{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, third.ID, items[0].ID)

		items, total, err = tx.QueryPosts(query.Filter{Tag: "querytag"}, query.Page{Offset: 2, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, items, 1)
		assert.Equal(t, first.ID, items[0].ID)
	})

	t.Run("search matches title or body", func(t *testing.T) {
		post, err := models.NewPost("alice", "Weekly notes", "Release Train departs Friday", []string{"searchtag"}, base)
		require.NoError(t, err)
		write(t, func(tx Tx) { require.NoError(t, tx.CreatePost(post)) })

		tx, err := store.Begin(ctx, false)
		require.NoError(t, err)
		defer tx.Rollback()

		for _, term := range []string{"release train", "WEEKLY", "friday"} {
			items, total, err := tx.QueryPosts(query.Filter{Tag: "searchtag", Search: term}, query.Page{Limit: 10})
			require.NoError(t, err)
			assert.Equal(t, 1, total, term)
			require.Len(t, items, 1, term)
			assert.Equal(t, post.ID, items[0].ID)
		}

		_, total, err := tx.QueryPosts(query.Filter{Tag: "searchtag", Search: "monday"}, query.Page{Limit: 10})
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("retagging moves the tag index", func(t *testing.T) {
		post := newPost(t, "Retag", []string{"oldtag"}, base)
		updated := post.Clone()
		updated.Tags = []string{"newtag"}
		updated.Version = 2
		write(t, func(tx Tx) { require.NoError(t, tx.UpdatePost(updated, 1)) })

		tx, err := store.Begin(ctx, false)
		require.NoError(t, err)
		defer tx.Rollback()
		_, total, err := tx.QueryPosts(query.Filter{Tag: "oldtag"}, query.Page{})
		require.NoError(t, err)
		assert.Zero(t, total)
		_, total, err = tx.QueryPosts(query.Filter{Tag: "newtag"}, query.Page{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("deleted posts never match", func(t *testing.T) {
		post := newPost(t, "Soft deleted", []string{"softtag"}, base)
		deleted := post.Clone()
		deleted.Deleted = true
		at := base.Add(time.Minute)
		deleted.DeletedAt = &at
		deleted.Version = 2
		write(t, func(tx Tx) { require.NoError(t, tx.UpdatePost(deleted, 1)) })

		tx, err := store.Begin(ctx, false)
		require.NoError(t, err)
		defer tx.Rollback()
		_, total, err := tx.QueryPosts(query.Filter{Tag: "softtag"}, query.Page{})
		require.NoError(t, err)
		assert.Zero(t, total)
		got, err := tx.GetPost(post.ID)
		require.NoError(t, err)
		assert.True(t, got.Deleted)
	})

	t.Run("hard delete", func(t *testing.T) {
		post := newPost(t, "Hard deleted", []string{"hardtag"}, base)
		write(t, func(tx Tx) { require.NoError(t, tx.DeletePost(post.ID)) })

		tx, err := store.Begin(ctx, false)
		require.NoError(t, err)
		defer tx.Rollback()
		_, err = tx.GetPost(post.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, total, err := tx.QueryPosts(query.Filter{Tag: "hardtag"}, query.Page{})
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("comments scan in creation order", func(t *testing.T) {
		post := newPost(t, "Threaded", []string{"go"}, base)

		late, err := models.NewComment(post.ID, "bob", "late", nil, models.CommentVisible, base.Add(time.Hour))
		require.NoError(t, err)
		early, err := models.NewComment(post.ID, "carol", "early", nil, models.CommentVisible, base)
		require.NoError(t, err)
		// Created with a higher id but an earlier timestamp.
		write(t, func(tx Tx) {
			require.NoError(t, tx.CreateComment(late))
			require.NoError(t, tx.CreateComment(early))
		})
		reply, err := models.NewComment(post.ID, "dave", "reply", &early.ID, models.CommentPendingReview, base.Add(2*time.Hour))
		require.NoError(t, err)
		write(t, func(tx Tx) { require.NoError(t, tx.CreateComment(reply)) })

		tx, err := store.Begin(ctx, false)
		require.NoError(t, err)
		defer tx.Rollback()

		var bodies []string
		require.NoError(t, tx.ScanComments(post.ID, func(c *models.Comment) bool {
			bodies = append(bodies, c.Body)
			return true
		}))
		assert.Equal(t, []string{"early", "late", "reply"}, bodies)

		var firstOnly []string
		require.NoError(t, tx.ScanComments(post.ID, func(c *models.Comment) bool {
			firstOnly = append(firstOnly, c.Body)
			return false
		}))
		assert.Equal(t, []string{"early"}, firstOnly)

		got, err := tx.GetComment(reply.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ParentID)
		assert.Equal(t, early.ID, *got.ParentID)
	})

	t.Run("update and delete comment", func(t *testing.T) {
		post := newPost(t, "Comment edits", []string{"go"}, base)
		c, err := models.NewComment(post.ID, "bob", "first", nil, models.CommentPendingReview, base)
		require.NoError(t, err)
		write(t, func(tx Tx) { require.NoError(t, tx.CreateComment(c)) })

		c.Tombstone(base.Add(time.Minute))
		write(t, func(tx Tx) { require.NoError(t, tx.UpdateComment(c)) })

		tx, err := store.Begin(ctx, true)
		require.NoError(t, err)
		got, err := tx.GetComment(c.ID)
		require.NoError(t, err)
		assert.True(t, got.Deleted)
		assert.Empty(t, got.Body)
		require.NoError(t, tx.DeleteComment(c.ID))
		require.NoError(t, tx.Commit())

		tx, err = store.Begin(ctx, false)
		require.NoError(t, err)
		defer tx.Rollback()
		_, err = tx.GetComment(c.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("rewriting identical values", func(t *testing.T) {
		post := newPost(t, "Unchanged", []string{"go"}, base)
		c, err := models.NewComment(post.ID, "bob", "same", nil, models.CommentVisible, base)
		require.NoError(t, err)
		write(t, func(tx Tx) { require.NoError(t, tx.CreateComment(c)) })

		write(t, func(tx Tx) {
			require.NoError(t, tx.UpdateComment(c.Clone()), "an update that changes nothing still finds the row")
			require.NoError(t, tx.UpdatePost(post.Clone(), post.Version))
		})

		tx, err := store.Begin(ctx, true)
		require.NoError(t, err)
		defer tx.Rollback()
		missing := c.Clone()
		missing.ID = 999999
		assert.ErrorIs(t, tx.UpdateComment(missing), models.ErrNotFound)
		assert.ErrorIs(t, tx.UpdatePost(post.Clone(), post.Version+5), models.ErrConflict)
	})

	t.Run("outbox", func(t *testing.T) {
		pending, err := store.PendingEvents(ctx, 1000)
		require.NoError(t, err)
		var ids []int64
		for _, e := range pending {
			ids = append(ids, e.ID)
		}
		require.NoError(t, store.MarkEventsSent(ctx, ids))

		post := newPost(t, "Evented", []string{"go"}, base)
		write(t, func(tx Tx) {
			require.NoError(t, tx.EnqueueEvent(models.NewPostEvent(models.EventPostCreated, post, "", base)))
			require.NoError(t, tx.EnqueueEvent(models.NewPostEvent(models.EventPostSubmitted, post, models.PostDraft, base)))
		})

		pending, err = store.PendingEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, models.EventPostCreated, pending[0].Type)
		assert.Equal(t, models.EventPostSubmitted, pending[1].Type)
		assert.Equal(t, post.ID, pending[1].PostID)
		assert.Less(t, pending[0].ID, pending[1].ID)

		require.NoError(t, store.MarkEventsSent(ctx, []int64{pending[0].ID}))
		pending, err = store.PendingEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, models.EventPostSubmitted, pending[0].Type)
	})

	t.Run("expired context", func(t *testing.T) {
		expired, cancel := context.WithDeadline(ctx, time.Now().Add(-time.Second))
		defer cancel()
		_, err := store.Begin(expired, false)
		assert.ErrorIs(t, err, models.ErrTimeout)
	})
}
