package emodul_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/jkaberg/verano-hass/internal/emodul"
	"github.com/jkaberg/verano-hass/internal/emodul/mock"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingObserver struct {
	mu        sync.Mutex
	refreshes []error
	commands  map[string][]error
	strings   []int
}

func (o *recordingObserver) RefreshCompleted(_ string, err error) {
	o.mu.Lock()
	o.refreshes = append(o.refreshes, err)
	o.mu.Unlock()
}

func (o *recordingObserver) CommandCompleted(command string, err error) {
	o.mu.Lock()
	if o.commands == nil {
		o.commands = map[string][]error{}
	}
	o.commands[command] = append(o.commands[command], err)
	o.mu.Unlock()
}

func (o *recordingObserver) LanguageStringsLoaded(n int) {
	o.mu.Lock()
	o.strings = append(o.strings, n)
	o.mu.Unlock()
}

// startServer returns a running mock and a client pointed at it.
func startServer(t *testing.T, opts ...emodul.Option) (*mock.Server, *emodul.Client) {
	t.Helper()
	srv := mock.Start()
	t.Cleanup(srv.Close)
	opts = append([]emodul.Option{emodul.WithBaseURL(srv.BaseURL())}, opts...)
	return srv, emodul.NewClient(quietLogger(), opts...)
}

// startAuthenticated is startServer plus a completed login.
func startAuthenticated(t *testing.T, opts ...emodul.Option) (*mock.Server, *emodul.Client) {
	t.Helper()
	srv, c := startServer(t, opts...)
	ok, err := c.Authenticate(context.Background(), mock.Username, mock.Password)
	require.NoError(t, err)
	require.True(t, ok)
	return srv, c
}
