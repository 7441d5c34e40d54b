// Package store is the durable, append-only log of private messages.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned once the store has shut down. It is the only store
// failure treated as fatal by callers; anything else is a transient write
// failure the user can retry by resending.
var ErrClosed = errors.New("message store is closed")

// Fatal reports whether a store error is unrecoverable for the calling
// session.
func Fatal(err error) bool {
	return errors.Is(err, ErrClosed)
}

// Record is a persisted private message. Its JSON form is also the
// pairwise outbound wire frame, so the tags mirror the public API shape.
type Record struct {
	ID        int64     `json:"id"`
	Sender    int64     `json:"sender"`
	Receiver  int64     `json:"receiver"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
}

type Store interface {
	// Append persists a new message and returns the stored record with its
	// assigned id and timestamp. The read flag starts false.
	Append(ctx context.Context, sender, receiver int64, content string) (Record, error)

	// QueryBetween returns every message exchanged between two users in
	// ascending timestamp order. The argument order does not matter.
	QueryBetween(ctx context.Context, a, b int64) ([]Record, error)

	Close() error
}
