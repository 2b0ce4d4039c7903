// Package mock provides an in-process emodul.eu API for tests.
package mock

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

const (
	// Username and Password are the only accepted credentials.
	Username = "verano"
	Password = "1example"

	// UserID and Token are issued by a successful login.
	UserID = "4242"
	Token  = "mock-bearer-token"

	// ModuleUDID is the udid of the single mock module.
	ModuleUDID = "a1b2c3d4"

	// SessionCookie is set by the login endpoint.
	SessionCookie = "mock-session"
)

// Strings is the default language table.
var Strings = map[string]string{
	"100": "Current temperature",
	"101": "Set temp.",
	"102": "Fan 0-10 V (F)",
	"103": "Mode",
	"104": "Automatic mode",
	"105": "Heating",
	"106": "Operation",
	"107": "Controller",
	"108": "Software version",
	"109": "Working",
	"110": "Status",
}

// ModuleJSON is the default module payload: five decodable tiles, one tile
// of an unknown kind and two zones of which one is unregistered.
const ModuleJSON = `{
  "zones": {"elements": [
    {"zone": {"id": 1, "index": 0, "currentTemperature": 215, "setTemperature": 220, "zoneState": "zoneOn", "visibility": true},
     "description": {"id": 1, "name": "Living room"},
     "mode": {"id": 11, "mode": "constantTemp", "setTemperature": 220}},
    {"zone": {"id": 2, "index": 1, "zoneState": "zoneUnregistered"},
     "description": {"id": 2, "name": "Spare"},
     "mode": {"id": 12, "mode": "off"}}
  ]},
  "tiles": [
    {"id": 53, "type": 6, "params": {"description": "", "widget1": {"txtId": 106, "value": 105, "unit": 18}, "widget2": {"txtId": 0, "value": 1, "unit": 0}}},
    {"id": 58, "type": 6, "params": {"widget1": {"txtId": 100, "value": 215, "unit": 7}, "widget2": {"txtId": 101, "value": 220, "unit": 7}}},
    {"id": 62, "type": 6, "params": {"widget1": {"txtId": 102, "value": 40, "unit": 8}}},
    {"id": 63, "type": 6, "params": {"widget1": {"txtId": 103, "value": 104, "unit": 18}}},
    {"id": 70, "type": 40, "params": {"headerId": 110, "statusId": 109}},
    {"id": 80, "type": 50, "params": {"txtId": 108, "controllerName": "Verano VER-24", "version": "1.0.14"}},
    {"id": 90, "type": 31, "params": {"txtId": 107}}
  ]
}`

// Request is a request recorded by the Server.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

type failure struct {
	status int
	body   string
}

// Server is a running mock instance.
type Server struct {
	srv *httptest.Server

	mu         sync.Mutex
	requests   []Request
	failures   map[string]failure
	moduleJSON string
	strings    map[string]string
	rawBodies  map[string]string
	rejectAuth bool
}

// Start starts a mock server listening on localhost.
func Start() *Server {
	s := &Server{
		failures:   make(map[string]failure),
		rawBodies:  make(map[string]string),
		moduleJSON: ModuleJSON,
		strings:    Strings,
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Close shuts the server down.
func (s *Server) Close() { s.srv.Close() }

// BaseURL returns the URL to pass to emodul.WithBaseURL.
func (s *Server) BaseURL() string { return s.srv.URL + "/" }

// Fail makes every request to path answer with status and body.
func (s *Server) Fail(path string, status int, body string) {
	s.mu.Lock()
	s.failures["/"+path] = failure{status: status, body: body}
	s.mu.Unlock()
}

// Recover removes a failure set by Fail.
func (s *Server) Recover(path string) {
	s.mu.Lock()
	delete(s.failures, "/"+path)
	s.mu.Unlock()
}

// RespondRaw makes path answer 200 with the given body verbatim.
func (s *Server) RespondRaw(path, body string) {
	s.mu.Lock()
	s.rawBodies["/"+path] = body
	s.mu.Unlock()
}

// SetModuleJSON replaces the module payload.
func (s *Server) SetModuleJSON(raw string) {
	s.mu.Lock()
	s.moduleJSON = raw
	s.mu.Unlock()
}

// SetStrings replaces the language table.
func (s *Server) SetStrings(table map[string]string) {
	s.mu.Lock()
	s.strings = table
	s.mu.Unlock()
}

// RejectAuthentication makes the login leg answer authenticated:false.
func (s *Server) RejectAuthentication(reject bool) {
	s.mu.Lock()
	s.rejectAuth = reject
	s.mu.Unlock()
}

// Requests returns all recorded requests.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestsTo returns the recorded requests for path.
func (s *Server) RequestsTo(path string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Path == "/"+path {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many requests hit path.
func (s *Server) Count(path string) int { return len(s.RequestsTo(path)) }

// ModulePath is the path of the mock module data endpoint.
func ModulePath() string { return "api/v1/users/" + UserID + "/modules/" + ModuleUDID }

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
	})
	fail, failed := s.failures[r.URL.Path]
	raw, hasRaw := s.rawBodies[r.URL.Path]
	moduleJSON := s.moduleJSON
	table := s.strings
	rejectAuth := s.rejectAuth
	s.mu.Unlock()

	if failed {
		w.WriteHeader(fail.status)
		_, _ = io.WriteString(w, fail.body)
		return
	}
	if hasRaw {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, raw)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodPost && path == "frontend/login":
		if rejectAuth || !validCredentials(body) {
			writeJSON(w, map[string]any{"authenticated": false})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: SessionCookie, Path: "/"})
		writeJSON(w, map[string]any{
			"authenticated":       true,
			"selectedModuleHash":  "hash-" + ModuleUDID,
			"selectedModuleIndex": 0,
		})
	case r.Method == http.MethodPost && path == "api/v1/authentication":
		if !validCredentials(body) {
			writeJSON(w, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, map[string]any{"authenticated": true, "user_id": 4242, "token": Token})
	case r.Method == http.MethodGet && path == "api/v1/i18n/en":
		writeJSON(w, map[string]any{"data": table})
	case !bearer(r):
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"unauthorized"}`)
	case r.Method == http.MethodGet && path == "frontend/is_authenticated":
		writeJSON(w, map[string]any{"authenticated": true})
	case r.Method == http.MethodGet && path == "api/v1/users/"+UserID+"/modules":
		writeJSON(w, []map[string]any{{"id": 7, "udid": ModuleUDID, "version": "1.0.14", "name": "Verano"}})
	case r.Method == http.MethodGet && path == ModulePath():
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, moduleJSON)
	case r.Method == http.MethodPost && path == "frontend/send_control_data":
		writeJSON(w, map[string]any{"status": "success"})
	case r.Method == http.MethodPost && path == ModulePath()+"/zones":
		writeJSON(w, map[string]any{"status": "success"})
	default:
		http.NotFound(w, r)
	}
}

func validCredentials(body []byte) bool {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(body, &creds); err != nil {
		return false
	}
	return creds.Username == Username && creds.Password == Password
}

func bearer(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+Token
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
