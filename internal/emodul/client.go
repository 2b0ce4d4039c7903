// Package emodul is a client for the emodul.eu cloud API used by TECH
// Verano HVAC controllers. It owns the vendor session, a cookie store, the
// language-string table and a time-bounded cache of module zones and tiles.
package emodul

import (
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the vendor API root. Paths are appended verbatim.
	DefaultBaseURL = "https://emodul.eu/"

	// DefaultUpdateInterval bounds how long cached module data is served.
	DefaultUpdateInterval = 30 * time.Second

	defaultTimeout = 10 * time.Second
)

// Client talks to the emodul.eu API. A single Client is meant to be shared
// by the poller and the command handlers of one account.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
	observer   Observer
	now        func() time.Time

	cookies *CookieStore
	session *session

	langMu   sync.RWMutex
	language LanguageStrings

	updateMu       sync.Mutex
	updateInterval time.Duration
	lastUpdate     time.Time
	cachedModule   string
	zones          map[int]ZoneRecord
	tiles          map[int]Tile
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL. The value must end with a slash.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUpdateInterval sets the cache staleness interval.
func WithUpdateInterval(d time.Duration) Option {
	return func(c *Client) { c.updateInterval = d }
}

// WithClock replaces time.Now for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithObserver registers an Observer for refreshes and commands.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithSession pre-seeds the client with credentials from an earlier login.
// Both values must be non-empty for the client to start authenticated.
func WithSession(userID, token string) Option {
	return func(c *Client) { c.session.seed(userID, token) }
}

// NewClient creates a Client. Without options it talks to DefaultBaseURL,
// unauthenticated, with a 30 second cache interval.
func NewClient(logger *logrus.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:        DefaultBaseURL,
		logger:         logger,
		observer:       nopObserver{},
		now:            time.Now,
		cookies:        NewCookieStore(),
		session:        &session{},
		language:       LanguageStrings{},
		updateInterval: DefaultUpdateInterval,
		zones:          map[int]ZoneRecord{},
		tiles:          map[int]Tile{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	c.logger.WithFields(logrus.Fields{
		"base_url":        c.baseURL,
		"update_interval": c.updateInterval,
		"authenticated":   c.session.snapshot().Authenticated,
	}).Debug("emodul client created")
	return c
}

// Cookies exposes the session cookie store.
func (c *Client) Cookies() *CookieStore { return c.cookies }

// Session returns a snapshot of the current session state.
func (c *Client) Session() SessionState { return c.session.snapshot() }

// Authenticated reports whether a bearer session is established.
func (c *Client) Authenticated() bool { return c.session.snapshot().Authenticated }

// UserID returns the vendor user id, empty when unauthenticated.
func (c *Client) UserID() string { return c.session.snapshot().UserID }

// Token returns the bearer token, empty when unauthenticated.
func (c *Client) Token() string { return c.session.snapshot().Token }

// SelectedModuleIndex returns the module index reported by the login leg.
func (c *Client) SelectedModuleIndex() int { return c.session.snapshot().SelectedModuleIndex }
