package store

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore(t.TempDir(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func Test_Append_Assigns_Ids_And_Timestamps(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Append(ctx, 7, 9, "hi")
	req.NoError(err)
	second, err := s.Append(ctx, 9, 7, "hello back")
	req.NoError(err)

	req.Equal(int64(1), first.ID)
	req.Equal(int64(2), second.ID)
	req.False(first.IsRead)
	req.Equal("hi", first.Content)
	req.Equal(int64(7), first.Sender)
	req.Equal(int64(9), first.Receiver)
	req.False(second.Timestamp.Before(first.Timestamp))
}

func Test_QueryBetween_Is_Ordered_And_Symmetric(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	contents := []string{"one", "two", "three"}
	for i, c := range contents {
		sender, receiver := int64(7), int64(9)
		if i%2 == 1 {
			sender, receiver = receiver, sender
		}
		_, err := s.Append(ctx, sender, receiver, c)
		req.NoError(err)
	}
	// Traffic in an unrelated conversation must not leak into the scan.
	_, err := s.Append(ctx, 7, 90, "other conversation")
	req.NoError(err)

	forward, err := s.QueryBetween(ctx, 7, 9)
	req.NoError(err)
	reverse, err := s.QueryBetween(ctx, 9, 7)
	req.NoError(err)

	req.Len(forward, len(contents))
	req.Equal(forward, reverse)
	for i, record := range forward {
		req.Equal(contents[i], record.Content)
		if i > 0 {
			req.False(record.Timestamp.Before(forward[i-1].Timestamp))
		}
	}
}

func Test_QueryBetween_Empty_Conversation(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	records, err := s.QueryBetween(context.Background(), 1, 2)
	req.NoError(err)
	req.Empty(records)
}

func Test_Append_Many_Preserves_Order(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	const n = 100
	for i := 0; i < n; i++ {
		_, err := s.Append(ctx, 7, 9, fmt.Sprintf("message %03d", i))
		req.NoError(err)
	}

	records, err := s.QueryBetween(ctx, 7, 9)
	req.NoError(err)
	req.Len(records, n)
	for i, record := range records {
		req.Equal(fmt.Sprintf("message %03d", i), record.Content)
		req.Equal(int64(i+1), record.ID)
	}
}

func Test_Closed_Store_Fails_Fast(t *testing.T) {
	req := require.New(t)
	s, err := NewBadgerStore(t.TempDir(), slog.Default())
	req.NoError(err)
	req.NoError(s.Close())

	_, err = s.Append(context.Background(), 7, 9, "too late")
	req.ErrorIs(err, ErrClosed)
	req.True(Fatal(err))

	_, err = s.QueryBetween(context.Background(), 7, 9)
	req.ErrorIs(err, ErrClosed)

	// Closing twice is harmless.
	req.NoError(s.Close())
}

func Test_Fatal_Classification(t *testing.T) {
	req := require.New(t)
	req.True(Fatal(fmt.Errorf("append failed: %w", ErrClosed)))
	req.False(Fatal(fmt.Errorf("disk hiccup")))
	req.False(Fatal(nil))
}
