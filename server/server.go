// Package server exposes the operational HTTP surface: liveness and
// readiness probes, a JSON status snapshot, and Prometheus metrics.
package server

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/simbabque/twirc/chat"
	"github.com/simbabque/twirc/gateway"
)

// Gateway is the slice of the session the status endpoints read.
type Gateway interface {
	StreamState() gateway.ConnState
	RosterSizes() (friends, followers int)
}

// Channel reports the relay's tracked members.
type Channel interface {
	Participants() []chat.Participant
}

type Handlers struct {
	db   *sql.DB
	gw   Gateway
	room Channel
}

// NewMux returns the HTTP handler with all ops routes. db and room may be
// nil when the corresponding collaborator is not configured.
func NewMux(db *sql.DB, gw Gateway, room Channel) http.Handler {
	h := &Handlers{db: db, gw: gw, room: room}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", h.HandleHealthz)
	mux.HandleFunc("/readyz", h.HandleReadyz)
	mux.HandleFunc("/status", h.HandleStatus)
	return mux
}

// HandleHealthz answers liveness probes. With a database configured, a
// failed ping reports unhealthy.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the streaming connection is established.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	state := h.gw.StreamState()
	w.Header().Set("Content-Type", "application/json")
	if state != gateway.StateConnected {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "not_ready",
			"stream": state.String(),
		})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

type statusResponse struct {
	Stream       string             `json:"stream"`
	Friends      int                `json:"friends"`
	Followers    int                `json:"followers"`
	Participants []chat.Participant `json:"participants,omitempty"`
}

// HandleStatus returns a JSON snapshot of the session.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	friends, followers := h.gw.RosterSizes()
	resp := statusResponse{
		Stream:    h.gw.StreamState().String(),
		Friends:   friends,
		Followers: followers,
	}
	if h.room != nil {
		resp.Participants = h.room.Participants()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
