package emodul

import (
	"net/http"
	"sort"
	"sync"
)

// CookieDomain is stamped on every stored cookie regardless of what the
// server sent.
const CookieDomain = "emodul.eu"

// CookieStore holds the vendor session cookies, keyed by name. All cookies
// are kept as secure, http-only cookies for CookieDomain.
type CookieStore struct {
	mu      sync.RWMutex
	cookies map[string]*http.Cookie
}

// NewCookieStore returns an empty store.
func NewCookieStore() *CookieStore {
	return &CookieStore{cookies: make(map[string]*http.Cookie)}
}

// Merge stores the given cookies, replacing same-named entries and
// overriding their attributes. It returns how many cookies were stored.
func (s *CookieStore) Merge(cookies []*http.Cookie) int {
	if len(cookies) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ck := range cookies {
		if ck == nil || ck.Name == "" {
			continue
		}
		s.cookies[ck.Name] = &http.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Path:     ck.Path,
			Expires:  ck.Expires,
			MaxAge:   ck.MaxAge,
			Domain:   CookieDomain,
			Secure:   true,
			HttpOnly: true,
		}
		n++
	}
	return n
}

// Get returns a copy of the named cookie.
func (s *CookieStore) Get(name string) (*http.Cookie, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ck, ok := s.cookies[name]
	if !ok {
		return nil, false
	}
	cp := *ck
	return &cp, true
}

// apply attaches the stored cookies to an outgoing request in name order.
func (s *CookieStore) apply(req *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.cookies))
	for name := range s.cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ck := s.cookies[name]
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	s.mu.RUnlock()
}
