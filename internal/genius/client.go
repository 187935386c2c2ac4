package genius

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/l0p7/toptracks/internal/catalog"
	"github.com/tidwall/gjson"
)

const (
	userAgent = "toptracks/1.0"

	songsPerPage = 20
	maxSongPages = 3
)

// ErrUpstream marks every failure that originates at the provider: non-2xx
// statuses, transport errors and undecodable bodies.
var ErrUpstream = errors.New("genius: upstream error")

// StatusError reports a non-success HTTP status returned by the provider.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("genius: %s returned status %d", e.Endpoint, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrUpstream }

// Client issues authenticated requests against the Genius API. It keeps no
// state between calls and is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Genius client. It returns ErrMissingToken when the
// configuration carries no access token.
func NewClient(cfg Config) (*Client, error) {
	cfg, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: httpClient,
	}, nil
}

// ResolveArtistID searches for name and returns the provider's artist id.
// A hit whose primary artist matches name exactly (after normalization) wins;
// otherwise the first hit carrying any artist id is used. The boolean is false
// when no hit carries an id.
func (c *Client) ResolveArtistID(ctx context.Context, name string) (int64, bool, error) {
	body, err := c.get(ctx, "/search", url.Values{"q": {name}})
	if err != nil {
		return 0, false, fmt.Errorf("searching artist: %w", err)
	}
	id, ok := selectArtistID(gjson.GetBytes(body, "response.hits").Array(), name)
	return id, ok, nil
}

// FetchTopTracks lists an artist's songs sorted by popularity, 20 per page,
// until limit tracks are collected or three pages have been read. Fewer than
// limit tracks is not an error.
func (c *Client) FetchTopTracks(ctx context.Context, artistID int64, limit int) ([]catalog.Track, error) {
	if limit <= 0 {
		limit = catalog.DefaultTrackLimit
	}
	path := "/artists/" + strconv.FormatInt(artistID, 10) + "/songs"

	tracks := make([]catalog.Track, 0, limit)
	for page := 1; page <= maxSongPages && len(tracks) < limit; page++ {
		body, err := c.get(ctx, path, url.Values{
			"per_page": {strconv.Itoa(songsPerPage)},
			"page":     {strconv.Itoa(page)},
			"sort":     {"popularity"},
		})
		if err != nil {
			return nil, fmt.Errorf("fetching songs page %d: %w", page, err)
		}

		songs, more := songsPage(body)
		for _, raw := range songs {
			track, ok := normalizeSong(raw)
			if !ok {
				continue
			}
			tracks = append(tracks, track)
			if len(tracks) >= limit {
				break
			}
		}
		if !more {
			break
		}
	}
	return tracks, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: executing request: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Endpoint: path, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %w", ErrUpstream, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s returned invalid JSON", ErrUpstream, path)
	}
	return body, nil
}
