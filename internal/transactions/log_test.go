package transactions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type failingStore struct{ err error }

func (s failingStore) Put(context.Context, Record) error { return s.err }
func (s failingStore) Close(context.Context) error       { return nil }

func TestLogAppendGeneratesID(t *testing.T) {
	store := NewMemoryStore()
	log := NewLog(store, 0)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	log.now = func() time.Time { return fixed }

	id, err := log.Append(context.Background(), AppendInput{
		Artist:       "drake",
		CacheEnabled: true,
		Source:       "genius",
		TracksCount:  10,
	})
	require.NoError(t, err)
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	require.Equal(t, uuid.Version(4), parsed.Version())

	records := store.Records(fixed)
	require.Len(t, records, 1)
	got := records[0]
	require.Equal(t, id, got.TransactionID)
	require.Equal(t, "drake", got.ArtistName)
	require.True(t, got.CacheEnabled)
	require.Equal(t, "genius", got.Source)
	require.Equal(t, 10, got.TracksCount)
	require.Equal(t, fixed, got.CreatedAt)
	require.Equal(t, fixed.Add(8*24*time.Hour).Truncate(time.Second), got.ExpiresAt)
}

func TestLogAppendKeepsSuppliedID(t *testing.T) {
	store := NewMemoryStore()
	log := NewLog(store, time.Hour)

	id, err := log.Append(context.Background(), AppendInput{Artist: "adele", TransactionID: "tx-1"})
	require.NoError(t, err)
	require.Equal(t, "tx-1", id)

	_, err = log.Append(context.Background(), AppendInput{Artist: "adele", TransactionID: "tx-1"})
	require.ErrorIs(t, err, ErrDuplicate)
	require.Len(t, store.Records(time.Now()), 1, "duplicate append must not overwrite")
}

func TestLogAppendPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("boom")
	log := NewLog(failingStore{err: boom}, 0)

	id, err := log.Append(context.Background(), AppendInput{Artist: "adele"})
	require.ErrorIs(t, err, boom)
	require.Empty(t, id)

	var nilLog *Log
	_, err = nilLog.Append(context.Background(), AppendInput{})
	require.Error(t, err)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(ctx, Record{TransactionID: "old", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.Put(ctx, Record{TransactionID: "edge", ExpiresAt: now}))
	require.NoError(t, store.Put(ctx, Record{TransactionID: "fresh", ExpiresAt: now.Add(time.Hour)}))

	require.Len(t, store.Records(now), 1)

	removed, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)
	require.Equal(t, "fresh", store.Records(now)[0].TransactionID)

	// An expired id is free again once purged.
	require.NoError(t, store.Put(ctx, Record{TransactionID: "old", ExpiresAt: now.Add(time.Hour)}))
}

func TestSweeperRemovesExpired(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(context.Background(), Record{TransactionID: "a", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, store.Put(context.Background(), Record{TransactionID: "b", ExpiresAt: now.Add(time.Minute)}))

	sweeper := NewSweeper(store, time.Millisecond, nil)
	sweeper.now = func() time.Time { return now }
	require.Equal(t, int64(1), sweeper.Sweep(context.Background()))
	require.Equal(t, int64(0), sweeper.Sweep(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("sweeper did not stop after cancellation")
	}
}
