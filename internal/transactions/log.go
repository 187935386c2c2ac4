// Package transactions keeps the append-only audit trail of top-track
// fulfillments. Records are written once and expire after a fixed window;
// nothing updates or deletes an individual record.
package transactions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a record is retained.
const DefaultTTL = 8 * 24 * time.Hour

// ErrDuplicate is returned when a record with the same transaction id already
// exists. Stores never overwrite records.
var ErrDuplicate = errors.New("transactions: duplicate transaction id")

// Record is one fulfillment event.
type Record struct {
	TransactionID string    `json:"transaction_id"`
	ArtistName    string    `json:"artist_name"`
	CacheEnabled  bool      `json:"cache_enabled"`
	Source        string    `json:"source"`
	TracksCount   int       `json:"tracks_count"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Store persists a record in one durable write.
type Store interface {
	Put(ctx context.Context, record Record) error
	Close(ctx context.Context) error
}

// Expirer is implemented by stores without native TTL support. DeleteExpired
// drops every record whose expiry is at or before now.
type Expirer interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AppendInput describes a fulfillment to record. TransactionID is optional.
type AppendInput struct {
	Artist        string
	CacheEnabled  bool
	Source        string
	TracksCount   int
	TransactionID string
}

// Log stamps ids and timestamps onto records before handing them to a Store.
type Log struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	newID func() string
}

// NewLog wraps store. A ttl <= 0 selects DefaultTTL.
func NewLog(store Store, ttl time.Duration) *Log {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Log{
		store: store,
		ttl:   ttl,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Append records one fulfillment and returns its transaction id. A fresh
// UUIDv4 is generated when in.TransactionID is empty.
func (l *Log) Append(ctx context.Context, in AppendInput) (string, error) {
	if l == nil || l.store == nil {
		return "", errors.New("transactions: store not configured")
	}
	id := strings.TrimSpace(in.TransactionID)
	if id == "" {
		id = l.newID()
	}
	created := l.now()
	record := Record{
		TransactionID: id,
		ArtistName:    in.Artist,
		CacheEnabled:  in.CacheEnabled,
		Source:        in.Source,
		TracksCount:   in.TracksCount,
		CreatedAt:     created,
		// Stores keep whole epoch seconds.
		ExpiresAt: created.Add(l.ttl).Truncate(time.Second),
	}
	if err := l.store.Put(ctx, record); err != nil {
		return "", fmt.Errorf("transactions: append %s: %w", id, err)
	}
	return id, nil
}

// Close releases the underlying store.
func (l *Log) Close(ctx context.Context) error {
	if l == nil || l.store == nil {
		return nil
	}
	return l.store.Close(ctx)
}

// Store exposes the backing store, for example to run a Sweeper against it.
func (l *Log) Store() Store {
	return l.store
}
