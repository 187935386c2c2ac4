package genius

import (
	"math"

	"github.com/l0p7/toptracks/internal/catalog"
	"github.com/tidwall/gjson"
)

// The provider may omit any field. Everything that guards against that lives
// here so the client and the handler only ever see catalog.Track values.

// selectArtistID picks the artist id from search hits.
func selectArtistID(hits []gjson.Result, name string) (int64, bool) {
	want := catalog.NormalizeArtist(name)
	for _, hit := range hits {
		primary := hit.Get("result.primary_artist")
		id, ok := positiveInt(primary.Get("id"))
		if !ok {
			continue
		}
		if catalog.NormalizeArtist(primary.Get("name").String()) == want {
			return id, true
		}
	}
	for _, hit := range hits {
		if id, ok := positiveInt(hit.Get("result.primary_artist.id")); ok {
			return id, true
		}
	}
	return 0, false
}

// songsPage returns the raw songs of one page and whether another page may
// follow. An explicit null next_page or an empty page ends pagination.
func songsPage(body []byte) ([]gjson.Result, bool) {
	songs := gjson.GetBytes(body, "response.songs").Array()
	if len(songs) == 0 {
		return nil, false
	}
	next := gjson.GetBytes(body, "response.next_page")
	if next.Exists() && next.Type == gjson.Null {
		return songs, false
	}
	return songs, true
}

// normalizeSong converts one raw song object into a Track. Songs without an
// integer id are rejected; absent strings become empty and absent pageviews
// stay nil.
func normalizeSong(raw gjson.Result) (catalog.Track, bool) {
	if !raw.IsObject() {
		return catalog.Track{}, false
	}
	id, ok := positiveInt(raw.Get("id"))
	if !ok {
		return catalog.Track{}, false
	}
	track := catalog.Track{
		ID:        id,
		Title:     raw.Get("title").String(),
		URL:       raw.Get("url").String(),
		FullTitle: raw.Get("full_title").String(),
	}
	if views, ok := integer(raw.Get("stats.pageviews")); ok {
		track.PageViews = &views
	}
	return track, true
}

func positiveInt(v gjson.Result) (int64, bool) {
	n, ok := integer(v)
	if !ok || n <= 0 {
		return 0, false
	}
	return n, true
}

func integer(v gjson.Result) (int64, bool) {
	if v.Type != gjson.Number || v.Num != math.Trunc(v.Num) {
		return 0, false
	}
	return v.Int(), true
}
