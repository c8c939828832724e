// Package mock provides an in-memory Store for tests.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"inkwell/app/models"
	"inkwell/app/query"
	"inkwell/app/repositories"
)

// Store keeps every entity in maps. Each transaction works on a private
// copy and publishes its writes at commit, failing with ErrConflict when a
// post it updated moved on in the meantime.
type Store struct {
	mutex     sync.Mutex
	posts     map[int64]*models.Post
	comments  map[int64]*models.Comment
	events    []*models.Event
	revisions map[int64]int64 // committed writes per post

	nextPostID    int64
	nextCommentID int64
	nextEventID   int64

	// FailBegin, when set, is returned by every Begin call.
	FailBegin error
	// CommitHook runs under the store lock just before writes are applied.
	CommitHook func()
}

var _ repositories.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		posts:     make(map[int64]*models.Post),
		comments:  make(map[int64]*models.Comment),
		revisions: make(map[int64]int64),
	}
}

func (m *Store) Close() error { return nil }

// Clear drops all data.
func (m *Store) Clear() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.posts = make(map[int64]*models.Post)
	m.comments = make(map[int64]*models.Comment)
	m.revisions = make(map[int64]int64)
	m.events = nil
}

func (m *Store) Begin(ctx context.Context, writable bool) (repositories.Tx, error) {
	if m.FailBegin != nil {
		return nil, m.FailBegin
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	tx := &Tx{
		ctx:        ctx,
		store:      m,
		writable:   writable,
		posts:      make(map[int64]*models.Post, len(m.posts)),
		comments:   make(map[int64]*models.Comment, len(m.comments)),
		baseRevs:   make(map[int64]int64, len(m.revisions)),
		readRevs:   make(map[int64]int64),
		dirtyPosts: make(map[int64]bool),
		dirtyComms: make(map[int64]bool),
	}
	for id, p := range m.posts {
		tx.posts[id] = p.Clone()
	}
	for id, c := range m.comments {
		tx.comments[id] = c.Clone()
	}
	for id, rev := range m.revisions {
		tx.baseRevs[id] = rev
	}
	return tx, nil
}

func (m *Store) PendingEvents(ctx context.Context, limit int) ([]*models.Event, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if limit > len(m.events) {
		limit = len(m.events)
	}
	out := make([]*models.Event, 0, limit)
	for _, e := range m.events[:limit] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Store) MarkEventsSent(ctx context.Context, ids []int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	sent := make(map[int64]bool, len(ids))
	for _, id := range ids {
		sent[id] = true
	}
	kept := m.events[:0]
	for _, e := range m.events {
		if !sent[e.ID] {
			kept = append(kept, e)
		}
	}
	m.events = kept
	return nil
}

// Events returns a copy of the unsent outbox.
func (m *Store) Events() []*models.Event {
	events, _ := m.PendingEvents(context.Background(), 1<<30)
	return events
}

// PostCount returns the number of stored posts, deleted ones included.
func (m *Store) PostCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.posts)
}

// Tx is a snapshot transaction over Store.
type Tx struct {
	ctx      context.Context
	store    *Store
	writable bool
	done     bool

	posts    map[int64]*models.Post
	comments map[int64]*models.Comment
	events   []*models.Event

	// baseRevs is the revision of every post at Begin; readRevs holds the
	// ones this transaction wrote over.
	baseRevs   map[int64]int64
	readRevs   map[int64]int64
	dirtyPosts map[int64]bool
	dirtyComms map[int64]bool
}

func (t *Tx) Commit() error {
	if t.done {
		return fmt.Errorf("%w: transaction already finished", models.ErrStorage)
	}
	t.done = true
	if err := t.ctx.Err(); err != nil {
		if err == context.DeadlineExceeded {
			return fmt.Errorf("%w: %w", models.ErrTimeout, err)
		}
		return err
	}
	if !t.writable {
		return nil
	}

	m := t.store
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for id, rev := range t.readRevs {
		if _, ok := m.posts[id]; !ok || m.revisions[id] != rev {
			return fmt.Errorf("%w: post %d changed concurrently", models.ErrConflict, id)
		}
	}
	if m.CommitHook != nil {
		m.CommitHook()
	}
	for id := range t.dirtyPosts {
		m.revisions[id]++
		if p, ok := t.posts[id]; ok {
			m.posts[id] = p.Clone()
		} else {
			delete(m.posts, id)
		}
	}
	for id := range t.dirtyComms {
		if c, ok := t.comments[id]; ok {
			m.comments[id] = c.Clone()
		} else {
			delete(m.comments, id)
		}
	}
	m.events = append(m.events, t.events...)
	return nil
}

func (t *Tx) Rollback() error {
	t.done = true
	return nil
}

func (t *Tx) check() error {
	if err := t.ctx.Err(); err != nil {
		if err == context.DeadlineExceeded {
			return fmt.Errorf("%w: %w", models.ErrTimeout, err)
		}
		return err
	}
	if t.done {
		return fmt.Errorf("%w: transaction already finished", models.ErrStorage)
	}
	return nil
}

func (t *Tx) writeCheck() error {
	if err := t.check(); err != nil {
		return err
	}
	if !t.writable {
		return fmt.Errorf("%w: write in read-only transaction", models.ErrStorage)
	}
	return nil
}

func (t *Tx) CreatePost(post *models.Post) error {
	if err := t.writeCheck(); err != nil {
		return err
	}
	t.store.mutex.Lock()
	t.store.nextPostID++
	post.ID = t.store.nextPostID
	t.store.mutex.Unlock()

	t.posts[post.ID] = post.Clone()
	t.dirtyPosts[post.ID] = true
	return nil
}

func (t *Tx) GetPost(id int64) (*models.Post, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	post, ok := t.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %d: %w", id, models.ErrNotFound)
	}
	return post.Clone(), nil
}

func (t *Tx) UpdatePost(post *models.Post, expectedVersion int64) error {
	if err := t.writeCheck(); err != nil {
		return err
	}
	current, ok := t.posts[post.ID]
	if !ok {
		return fmt.Errorf("post %d: %w", post.ID, models.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: post %d is at version %d, expected %d",
			models.ErrConflict, post.ID, current.Version, expectedVersion)
	}
	t.markRead(post.ID)
	t.posts[post.ID] = post.Clone()
	t.dirtyPosts[post.ID] = true
	return nil
}

func (t *Tx) DeletePost(id int64) error {
	if err := t.writeCheck(); err != nil {
		return err
	}
	if _, ok := t.posts[id]; !ok {
		return fmt.Errorf("post %d: %w", id, models.ErrNotFound)
	}
	t.markRead(id)
	delete(t.posts, id)
	t.dirtyPosts[id] = true
	return nil
}

// markRead records the revision a write is based on, once per post.
func (t *Tx) markRead(id int64) {
	if _, seen := t.readRevs[id]; seen || t.dirtyPosts[id] {
		return
	}
	t.readRevs[id] = t.baseRevs[id]
}

func (t *Tx) QueryPosts(filter query.Filter, page query.Page) ([]*models.Post, int, error) {
	if err := t.check(); err != nil {
		return nil, 0, err
	}
	all := make([]*models.Post, 0, len(t.posts))
	for _, p := range t.posts {
		all = append(all, p.Clone())
	}
	items, total := query.Apply(all, filter, page)
	return items, total, nil
}

func (t *Tx) CreateComment(comment *models.Comment) error {
	if err := t.writeCheck(); err != nil {
		return err
	}
	t.store.mutex.Lock()
	t.store.nextCommentID++
	comment.ID = t.store.nextCommentID
	t.store.mutex.Unlock()

	t.comments[comment.ID] = comment.Clone()
	t.dirtyComms[comment.ID] = true
	return nil
}

func (t *Tx) GetComment(id int64) (*models.Comment, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	c, ok := t.comments[id]
	if !ok {
		return nil, fmt.Errorf("comment %d: %w", id, models.ErrNotFound)
	}
	return c.Clone(), nil
}

func (t *Tx) UpdateComment(comment *models.Comment) error {
	if err := t.writeCheck(); err != nil {
		return err
	}
	if _, ok := t.comments[comment.ID]; !ok {
		return fmt.Errorf("comment %d: %w", comment.ID, models.ErrNotFound)
	}
	t.comments[comment.ID] = comment.Clone()
	t.dirtyComms[comment.ID] = true
	return nil
}

func (t *Tx) DeleteComment(id int64) error {
	if err := t.writeCheck(); err != nil {
		return err
	}
	if _, ok := t.comments[id]; !ok {
		return fmt.Errorf("comment %d: %w", id, models.ErrNotFound)
	}
	delete(t.comments, id)
	t.dirtyComms[id] = true
	return nil
}

func (t *Tx) ScanComments(postID int64, fn func(*models.Comment) bool) error {
	if err := t.check(); err != nil {
		return err
	}
	var list []*models.Comment
	for _, c := range t.comments {
		if c.PostID == postID {
			list = append(list, c)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	for _, c := range list {
		if err := t.check(); err != nil {
			return err
		}
		if !fn(c.Clone()) {
			return nil
		}
	}
	return nil
}

func (t *Tx) EnqueueEvent(event *models.Event) error {
	if err := t.writeCheck(); err != nil {
		return err
	}
	t.store.mutex.Lock()
	t.store.nextEventID++
	event.ID = t.store.nextEventID
	t.store.mutex.Unlock()

	cp := *event
	t.events = append(t.events, &cp)
	return nil
}
