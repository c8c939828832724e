package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"inkwell/app/models"
)

const (
	// Key prefixes for different entity types
	PostKeyPrefix         = "post:"
	TagKeyPrefix          = "tag:"
	CommentKeyPrefix      = "comment:"
	CommentIndexKeyPrefix = "commentidx:"
	OutboxKeyPrefix       = "outbox:"

	// Sequence keys for auto-incrementing IDs
	PostSeqKey    = "seq:post"
	CommentSeqKey = "seq:comment"
	EventSeqKey   = "seq:event"

	seqBandwidth = 100
)

// Numeric key parts are zero padded so badger's byte order matches numeric
// order.
func postKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", PostKeyPrefix, id))
}

func tagKey(tag string, postID int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", TagKeyPrefix, tag, postID))
}

func tagPrefix(tag string) []byte {
	return []byte(TagKeyPrefix + tag + ":")
}

// Comments of a post sort by creation time then id within the post prefix.
func commentKey(c *models.Comment) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d:%020d", CommentKeyPrefix, c.PostID, c.CreatedAt.UnixNano(), c.ID))
}

func commentPrefix(postID int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:", CommentKeyPrefix, postID))
}

func commentIndexKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", CommentIndexKeyPrefix, id))
}

func outboxKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", OutboxKeyPrefix, id))
}

// nextID draws from a leased badger sequence. Sequences live outside the
// transaction, so ids are unique but a rolled back write leaves a gap.
func nextID(seq *badger.Sequence) (int64, error) {
	n, err := seq.Next()
	if err != nil {
		return 0, storageError(err)
	}
	return int64(n) + 1, nil
}

// marshalEntity marshals an entity to JSON
func marshalEntity(entity interface{}) ([]byte, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity: %v", err)
	}
	return data, nil
}

// unmarshalEntity unmarshals JSON data into an entity
func unmarshalEntity(data []byte, entity interface{}) error {
	if err := json.Unmarshal(data, entity); err != nil {
		return fmt.Errorf("failed to unmarshal entity: %v", err)
	}
	return nil
}

// storageError maps driver errors onto the core error kinds.
func storageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrConflict),
		errors.Is(err, models.ErrTimeout), errors.Is(err, models.ErrStorage):
		return err
	case errors.Is(err, badger.ErrKeyNotFound):
		return models.ErrNotFound
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: concurrent write detected", models.ErrConflict)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", models.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrStorage, err)
}
