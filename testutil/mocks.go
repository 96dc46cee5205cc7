// Package testutil provides shared test doubles, chiefly a mock Twitter API
// server with per-path handlers.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockTwitterServer is a test server answering Twitter REST v1.1 paths.
type MockTwitterServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockTwitterServer creates a mock API server. Unhandled paths 404.
func NewMockTwitterServer(t *testing.T) *MockTwitterServer {
	t.Helper()
	m := &MockTwitterServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// JSON installs a handler answering path with the encoded body.
func (m *MockTwitterServer) JSON(path string, body any) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

// MockVerifyCredentials answers account/verify_credentials.json.
func (m *MockTwitterServer) MockVerifyCredentials(id uint64, screenName, name string) {
	m.JSON("/account/verify_credentials.json", map[string]any{
		"id": id, "screen_name": screenName, "name": name,
	})
}

// MockFollowerIDs answers followers/ids.json per requested cursor.
// pages maps the incoming cursor to its id batch and next cursor.
func (m *MockTwitterServer) MockFollowerIDs(pages map[string]struct {
	IDs  []uint64
	Next int64
}) {
	m.Handlers["/followers/ids.json"] = func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Query().Get("cursor")]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ids": page.IDs, "next_cursor": page.Next, "previous_cursor": 0,
		})
	}
}

// MockLookupUsers answers users/lookup.json with the given users.
func (m *MockTwitterServer) MockLookupUsers(users []map[string]any) {
	m.JSON("/users/lookup.json", users)
}

// MockError answers path with a Twitter-style error body.
func (m *MockTwitterServer) MockError(path string, status, code int, message string) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"code": code, "message": message}},
		})
	}
}
