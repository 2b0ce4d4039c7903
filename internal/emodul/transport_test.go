package emodul_test

import (
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkaberg/verano-hass/internal/emodul"
	"github.com/jkaberg/verano-hass/internal/emodul/mock"
)

func TestProtocolErrorKeepsStatusAndBody(t *testing.T) {
	srv, c := startServer(t)
	srv.Fail("api/v1/i18n/en", http.StatusServiceUnavailable, "maintenance")

	_, err := c.RefreshLanguageStrings(context.Background())
	require.Error(t, err)

	var perr *emodul.ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
	assert.Equal(t, "maintenance", perr.Body)
	assert.False(t, errors.Is(err, emodul.ErrUnauthorized))
}

func TestProtocolError401MatchesUnauthorized(t *testing.T) {
	srv, c := startAuthenticated(t)
	srv.Fail("frontend/is_authenticated", http.StatusUnauthorized, "expired")

	_, err := c.IsAuthenticated(context.Background())
	assert.True(t, errors.Is(err, emodul.ErrUnauthorized))
}

func TestDecodeErrorOnInvalidJSON(t *testing.T) {
	srv, c := startServer(t)
	srv.RespondRaw("api/v1/i18n/en", "<html>not json</html>")

	_, err := c.RefreshLanguageStrings(context.Background())
	var derr *emodul.DecodeError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "api/v1/i18n/en", derr.Path)
}

func TestCookiesAreStoredWithFixedAttributes(t *testing.T) {
	srv, c := startAuthenticated(t)

	ck, ok := c.Cookies().Get("session")
	require.True(t, ok)
	assert.Equal(t, mock.SessionCookie, ck.Value)
	assert.Equal(t, emodul.CookieDomain, ck.Domain)
	assert.True(t, ck.Secure)
	assert.True(t, ck.HttpOnly)

	// the token leg runs after login and must carry the session cookie
	reqs := srv.RequestsTo("api/v1/authentication")
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Header.Get("Cookie"), "session="+mock.SessionCookie)
}

func TestCookiesMergedFromFailedResponses(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "lb", Value: "node-3", Path: "/", Domain: "example.org"})
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := emodul.NewClient(quietLogger(), emodul.WithBaseURL(ts.URL+"/"))
	_, err := c.RefreshLanguageStrings(context.Background())

	var perr *emodul.ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)

	ck, ok := c.Cookies().Get("lb")
	require.True(t, ok)
	assert.Equal(t, "node-3", ck.Value)
	assert.Equal(t, emodul.CookieDomain, ck.Domain)
}

func TestGzipResponsesAreInflated(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(`{"data":{"7":"Pump"}}`))
		_ = gz.Close()
	}))
	defer ts.Close()

	c := emodul.NewClient(quietLogger(), emodul.WithBaseURL(ts.URL+"/"))
	table, err := c.RefreshLanguageStrings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, emodul.LanguageStrings{"7": "Pump"}, table)
}

func TestRequestPathIsConcatenatedVerbatim(t *testing.T) {
	var seen string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Path
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer ts.Close()

	c := emodul.NewClient(quietLogger(), emodul.WithBaseURL(ts.URL+"/prefix/"))
	_, err := c.RefreshLanguageStrings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/prefix/api/v1/i18n/en", seen)
}
