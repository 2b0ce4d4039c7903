package emodul

import "sync"

// SessionState is a point-in-time copy of the vendor session.
// UserID and Token are non-empty exactly when Authenticated is true.
type SessionState struct {
	Authenticated       bool
	UserID              string
	Token               string
	SelectedModuleIndex int
	SelectedModuleHash  string
}

// session is owned by the Client; all mutation goes through its methods.
// Concurrent logins are not coordinated, the last writer wins.
type session struct {
	mu    sync.RWMutex
	state SessionState
}

func (s *session) snapshot() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *session) seed(userID, token string) {
	if userID == "" || token == "" {
		return
	}
	s.mu.Lock()
	s.state.Authenticated = true
	s.state.UserID = userID
	s.state.Token = token
	s.mu.Unlock()
}

func (s *session) selectModule(index int, hash string) {
	s.mu.Lock()
	s.state.SelectedModuleIndex = index
	s.state.SelectedModuleHash = hash
	s.mu.Unlock()
}

func (s *session) establish(userID, token string) {
	s.mu.Lock()
	s.state.Authenticated = true
	s.state.UserID = userID
	s.state.Token = token
	s.mu.Unlock()
}

func (s *session) reset() {
	s.mu.Lock()
	s.state.Authenticated = false
	s.state.UserID = ""
	s.state.Token = ""
	s.mu.Unlock()
}
