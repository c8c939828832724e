package repositories

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"inkwell/app/models"
)

// CreateComment stores a comment under its post and indexes it by id
func (t *badgerTx) CreateComment(comment *models.Comment) error {
	if err := t.check(); err != nil {
		return err
	}
	id, err := nextID(t.store.commentSeq)
	if err != nil {
		return err
	}
	comment.ID = id

	key := commentKey(comment)
	if err := t.txn.Set(commentIndexKey(id), key); err != nil {
		return storageError(err)
	}
	return t.setJSON(key, comment)
}

// lookupCommentKey resolves a comment id to its primary key.
func (t *badgerTx) lookupCommentKey(id int64) ([]byte, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	item, err := t.txn.Get(commentIndexKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("comment %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, storageError(err)
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return nil, storageError(err)
	}
	return key, nil
}

// GetComment retrieves a comment by ID
func (t *badgerTx) GetComment(id int64) (*models.Comment, error) {
	key, err := t.lookupCommentKey(id)
	if err != nil {
		return nil, err
	}
	var comment models.Comment
	if err := t.getJSON(key, &comment); err != nil {
		if err == models.ErrNotFound {
			return nil, fmt.Errorf("comment %d: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &comment, nil
}

// UpdateComment replaces an existing comment
func (t *badgerTx) UpdateComment(comment *models.Comment) error {
	key, err := t.lookupCommentKey(comment.ID)
	if err != nil {
		return err
	}
	// Reading the stored value registers it for conflict detection.
	if _, err := t.txn.Get(key); err != nil {
		return storageError(err)
	}
	return t.setJSON(key, comment)
}

// DeleteComment removes a comment and its id index entry
func (t *badgerTx) DeleteComment(id int64) error {
	key, err := t.lookupCommentKey(id)
	if err != nil {
		return err
	}
	if err := t.txn.Delete(key); err != nil {
		return storageError(err)
	}
	return storageError(t.txn.Delete(commentIndexKey(id)))
}

// ScanComments iterates the comment keys of a post. Keys embed the creation
// time and id, so iteration order is the listing order.
func (t *badgerTx) ScanComments(postID int64, fn func(*models.Comment) bool) error {
	it := t.txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	prefix := commentPrefix(postID)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := t.check(); err != nil {
			return err
		}
		var comment models.Comment
		err := it.Item().Value(func(val []byte) error {
			return unmarshalEntity(val, &comment)
		})
		if err != nil {
			return fmt.Errorf("failed to unmarshal comment: %v", err)
		}
		if !fn(&comment) {
			return nil
		}
	}
	return nil
}
