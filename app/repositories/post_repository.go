package repositories

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"inkwell/app/models"
	"inkwell/app/query"
)

// CreatePost stores a new post and its tag index entries
func (t *badgerTx) CreatePost(post *models.Post) error {
	if err := t.check(); err != nil {
		return err
	}
	id, err := nextID(t.store.postSeq)
	if err != nil {
		return err
	}
	post.ID = id

	if err := t.writeTags(post.ID, nil, post.Tags); err != nil {
		return err
	}
	return t.setJSON(postKey(post.ID), post)
}

// GetPost retrieves a post by ID
func (t *badgerTx) GetPost(id int64) (*models.Post, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	var post models.Post
	if err := t.getJSON(postKey(id), &post); err != nil {
		if err == models.ErrNotFound {
			return nil, fmt.Errorf("post %d: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &post, nil
}

// UpdatePost replaces a post when its stored version still matches. The
// read of the current value registers the key with badger's conflict
// detection, so a concurrent writer that commits first fails this commit.
func (t *badgerTx) UpdatePost(post *models.Post, expectedVersion int64) error {
	current, err := t.GetPost(post.ID)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: post %d is at version %d, expected %d",
			models.ErrConflict, post.ID, current.Version, expectedVersion)
	}
	if err := t.writeTags(post.ID, current.Tags, post.Tags); err != nil {
		return err
	}
	return t.setJSON(postKey(post.ID), post)
}

// DeletePost removes a post and its tag index entries
func (t *badgerTx) DeletePost(id int64) error {
	current, err := t.GetPost(id)
	if err != nil {
		return err
	}
	if err := t.writeTags(id, current.Tags, nil); err != nil {
		return err
	}
	return storageError(t.txn.Delete(postKey(id)))
}

// QueryPosts loads candidate posts, through the tag index when the filter
// names a tag, and pages them with the shared query rules.
func (t *badgerTx) QueryPosts(filter query.Filter, page query.Page) ([]*models.Post, int, error) {
	var candidates []*models.Post
	var err error
	if filter.Tag != "" {
		candidates, err = t.postsByTag(filter.Tag)
	} else {
		candidates, err = t.allPosts()
	}
	if err != nil {
		return nil, 0, err
	}
	items, total := query.Apply(candidates, filter, page)
	return items, total, nil
}

func (t *badgerTx) allPosts() ([]*models.Post, error) {
	var posts []*models.Post
	it := t.txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	prefix := []byte(PostKeyPrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := t.check(); err != nil {
			return nil, err
		}
		var post models.Post
		err := it.Item().Value(func(val []byte) error {
			return unmarshalEntity(val, &post)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal post: %v", err)
		}
		posts = append(posts, &post)
	}
	return posts, nil
}

func (t *badgerTx) postsByTag(tag string) ([]*models.Post, error) {
	var ids []int64
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	prefix := tagPrefix(tag)

	it := t.txn.NewIterator(opts)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var id int64
		if _, err := fmt.Sscanf(string(it.Item().Key()[len(prefix):]), "%d", &id); err == nil {
			ids = append(ids, id)
		}
	}
	it.Close()

	posts := make([]*models.Post, 0, len(ids))
	for _, id := range ids {
		post, err := t.GetPost(id)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// writeTags moves the tag index of a post from old to updated.
func (t *badgerTx) writeTags(postID int64, old, updated []string) error {
	keep := make(map[string]bool, len(updated))
	for _, tag := range updated {
		keep[tag] = true
	}
	for _, tag := range old {
		if keep[tag] {
			delete(keep, tag)
			continue
		}
		if err := t.txn.Delete(tagKey(tag, postID)); err != nil {
			return storageError(err)
		}
	}
	for tag := range keep {
		if err := t.txn.Set(tagKey(tag, postID), nil); err != nil {
			return storageError(err)
		}
	}
	return nil
}
