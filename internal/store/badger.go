package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const idSequenceKey = "seq:message"

// BadgerStore persists messages in BadgerDB. Keys are formatted as
// "msg:{lo}:{hi}:{timestamp_padded}:{id}" where lo/hi are the participant
// ids in ascending order, so that:
//  1. one prefix scan covers a conversation regardless of direction, and
//  2. the zero-padded nanosecond timestamp makes lexicographical order
//     chronological, with the zero-padded id breaking timestamp ties.
type BadgerStore struct {
	db     *badger.DB
	seq    *badger.Sequence
	closed atomic.Bool
	logger *slog.Logger
}

func NewBadgerStore(path string, logger *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening message store at %q: %w", path, err)
	}
	seq, err := db.GetSequence([]byte(idSequenceKey), 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening message id sequence: %w", err)
	}
	return &BadgerStore{
		db:     db,
		seq:    seq,
		logger: logger.With(slog.String("component", "store_badger")),
	}, nil
}

var _ Store = (*BadgerStore)(nil)

func (s *BadgerStore) Append(ctx context.Context, sender, receiver int64, content string) (Record, error) {
	if s.closed.Load() {
		return Record{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	next, err := s.seq.Next()
	if err != nil {
		return Record{}, fmt.Errorf("allocating message id: %w", err)
	}
	record := Record{
		ID:        int64(next) + 1, // ids are 1-based
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		Timestamp: time.Now().UTC(),
		IsRead:    false,
	}

	value, err := json.Marshal(record)
	if err != nil {
		return Record{}, err
	}
	key := messageKey(sender, receiver, record.Timestamp, record.ID)

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return Record{}, fmt.Errorf("persisting message: %w", err)
	}

	s.logger.Debug("Message persisted",
		slog.Int64("id", record.ID),
		slog.Int64("sender", sender),
		slog.Int64("receiver", receiver),
	)
	return record, nil
}

func (s *BadgerStore) QueryBetween(ctx context.Context, a, b int64) ([]Record, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := conversationPrefix(a, b)
	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var record Record
				if err := json.Unmarshal(value, &record); err != nil {
					return fmt.Errorf("decoding stored message: %w", err)
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.seq.Release(); err != nil {
		s.logger.Warn("Failed to release message id sequence", slog.Any("error", err))
	}
	return s.db.Close()
}

func messageKey(sender, receiver int64, at time.Time, id int64) []byte {
	return append(conversationPrefix(sender, receiver),
		[]byte(fmt.Sprintf("%019d:%019d", at.UnixNano(), id))...)
}

func conversationPrefix(a, b int64) []byte {
	if b < a {
		a, b = b, a
	}
	return []byte(fmt.Sprintf("msg:%d:%d:", a, b))
}
