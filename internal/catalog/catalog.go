// Package catalog holds the track model shared by the upstream client, the
// artist cache and the request handler.
package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Source identifies the upstream provider recorded on every transaction.
const Source = "genius"

// DefaultTrackLimit caps how many tracks a fulfillment returns.
const DefaultTrackLimit = 10

// Track is a normalized song entry. PageViews is nil when the provider did not
// report popularity stats.
type Track struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	FullTitle string `json:"full_title"`
	PageViews *int64 `json:"stats_pageviews"`
}

// NormalizeArtist canonicalizes an artist name so every spelling that differs
// only by case, Unicode composition or whitespace maps to the same value.
// Applying it twice yields the same result as applying it once.
func NormalizeArtist(name string) string {
	// cases.Caser is stateful; build one per call.
	folded := norm.NFC.String(cases.Fold().String(norm.NFC.String(name)))
	return strings.Join(strings.Fields(folded), " ")
}

// CloneTracks returns a deep copy so callers never share PageViews pointers.
func CloneTracks(in []Track) []Track {
	if in == nil {
		return nil
	}
	out := make([]Track, len(in))
	for i, t := range in {
		out[i] = t
		if t.PageViews != nil {
			v := *t.PageViews
			out[i].PageViews = &v
		}
	}
	return out
}
