package repositories

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"inkwell/app/models"
)

// BadgerStore implements Store on an embedded badger database. Badger's
// serializable transactions provide conflict detection: when two writers
// read and then write the same key, the second commit fails.
type BadgerStore struct {
	db         *badger.DB
	ownsDB     bool
	postSeq    *badger.Sequence
	commentSeq *badger.Sequence
	eventSeq   *badger.Sequence
}

// OpenBadgerStore opens the database at path. An empty path opens an
// in-memory database.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithNumVersionsToKeep(1)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	store, err := NewBadgerStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.ownsDB = true
	return store, nil
}

// NewBadgerStore wraps an open database. The caller keeps ownership of db.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	s := &BadgerStore{db: db}
	var err error
	if s.postSeq, err = db.GetSequence([]byte(PostSeqKey), seqBandwidth); err != nil {
		return nil, fmt.Errorf("post sequence: %w", err)
	}
	if s.commentSeq, err = db.GetSequence([]byte(CommentSeqKey), seqBandwidth); err != nil {
		s.releaseSequences()
		return nil, fmt.Errorf("comment sequence: %w", err)
	}
	if s.eventSeq, err = db.GetSequence([]byte(EventSeqKey), seqBandwidth); err != nil {
		s.releaseSequences()
		return nil, fmt.Errorf("event sequence: %w", err)
	}
	return s, nil
}

// DB exposes the underlying database for backup and restore.
func (s *BadgerStore) DB() *badger.DB {
	return s.db
}

func (s *BadgerStore) Close() error {
	s.releaseSequences()
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func (s *BadgerStore) releaseSequences() {
	for _, seq := range []*badger.Sequence{s.postSeq, s.commentSeq, s.eventSeq} {
		if seq != nil {
			_ = seq.Release()
		}
	}
}

// Begin opens a badger transaction bound to ctx.
func (s *BadgerStore) Begin(ctx context.Context, writable bool) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError(err)
	}
	return &badgerTx{
		ctx:      ctx,
		store:    s,
		txn:      s.db.NewTransaction(writable),
		writable: writable,
	}, nil
}

// PendingEvents returns up to limit unsent events, oldest first.
func (s *BadgerStore) PendingEvents(ctx context.Context, limit int) ([]*models.Event, error) {
	var events []*models.Event
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(OutboxKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(events) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var event models.Event
			if err := it.Item().Value(func(val []byte) error {
				return unmarshalEntity(val, &event)
			}); err != nil {
				return err
			}
			events = append(events, &event)
		}
		return nil
	})
	if err != nil {
		return nil, storageError(err)
	}
	return events, nil
}

// MarkEventsSent drops delivered events from the outbox.
func (s *BadgerStore) MarkEventsSent(ctx context.Context, ids []int64) error {
	if err := ctx.Err(); err != nil {
		return storageError(err)
	}
	return storageError(s.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := txn.Delete(outboxKey(id)); err != nil {
				return err
			}
		}
		return nil
	}))
}

type badgerTx struct {
	ctx      context.Context
	store    *BadgerStore
	txn      *badger.Txn
	writable bool
	done     bool
}

func (t *badgerTx) Commit() error {
	if t.done {
		return fmt.Errorf("%w: transaction already finished", models.ErrStorage)
	}
	t.done = true
	if err := t.ctx.Err(); err != nil {
		t.txn.Discard()
		return storageError(err)
	}
	if !t.writable {
		t.txn.Discard()
		return nil
	}
	return storageError(t.txn.Commit())
}

func (t *badgerTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.txn.Discard()
	return nil
}

// check fails fast once the caller's deadline has passed.
func (t *badgerTx) check() error {
	if err := t.ctx.Err(); err != nil {
		return storageError(err)
	}
	return nil
}

func (t *badgerTx) getJSON(key []byte, entity interface{}) error {
	item, err := t.txn.Get(key)
	if err != nil {
		return storageError(err)
	}
	return item.Value(func(val []byte) error {
		return unmarshalEntity(val, entity)
	})
}

func (t *badgerTx) setJSON(key []byte, entity interface{}) error {
	data, err := marshalEntity(entity)
	if err != nil {
		return err
	}
	return storageError(t.txn.Set(key, data))
}

// EnqueueEvent writes the event under the outbox prefix in this transaction.
func (t *badgerTx) EnqueueEvent(event *models.Event) error {
	if err := t.check(); err != nil {
		return err
	}
	id, err := nextID(t.store.eventSeq)
	if err != nil {
		return err
	}
	event.ID = id
	return t.setJSON(outboxKey(id), event)
}
