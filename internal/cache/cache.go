// Package cache stores computed top-track payloads per artist with a fixed
// time-to-live. There is no eviction beyond expiry.
package cache

import (
	"context"
	"time"

	"github.com/l0p7/toptracks/internal/catalog"
)

// DefaultTTL applies when Set is called without an explicit ttl.
const DefaultTTL = 7 * 24 * time.Hour

const keyPrefix = "artist:"

// Entry is the payload cached for one artist.
type Entry struct {
	TransactionID string          `json:"transaction_id"`
	Artist        string          `json:"artist"`
	Tracks        []catalog.Track `json:"tracks"`
}

// Store is implemented by every cache backend. Implementations must be safe
// for concurrent use.
type Store interface {
	// Get returns the unexpired entry stored under key.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Set replaces any value under key in one operation. A ttl <= 0 selects
	// the backend default.
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close(ctx context.Context) error
}

// KeyForArtist namespaces the normalized artist name. The prefix contains a
// separator that NormalizeArtist never strips, so distinct artists never
// collide.
func KeyForArtist(artist string) string {
	return keyPrefix + catalog.NormalizeArtist(artist)
}

func cloneEntry(in Entry) Entry {
	return Entry{
		TransactionID: in.TransactionID,
		Artist:        in.Artist,
		Tracks:        catalog.CloneTracks(in.Tracks),
	}
}
