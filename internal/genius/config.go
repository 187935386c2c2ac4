// Package genius is a client for the Genius API that resolves artists and
// lists their most popular songs.
package genius

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the public Genius API root.
const DefaultBaseURL = "https://api.genius.com"

const defaultTimeout = 20 * time.Second

// ErrMissingToken is returned when no API access token is configured.
var ErrMissingToken = errors.New("genius: api token required")

// Config holds Genius API settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

func (c Config) normalized() (Config, error) {
	c.Token = strings.TrimSpace(c.Token)
	if c.Token == "" {
		return Config{}, ErrMissingToken
	}
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c, nil
}
