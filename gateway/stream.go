package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/simbabque/twirc/telemetry"
	"github.com/simbabque/twirc/twitterapi"
)

// ConnState is the streaming-connection lifecycle state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateBackingOff
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackingOff:
		return "backing off"
	default:
		return "unknown"
	}
}

// StreamErrorClass splits stream failures into recoverable (reconnect with
// backoff) and fatal rate violations (full gateway shutdown).
type StreamErrorClass int

const (
	StreamRecoverable StreamErrorClass = iota
	StreamFatalRate
)

func (c StreamErrorClass) String() string {
	switch c {
	case StreamRecoverable:
		return "recoverable"
	case StreamFatalRate:
		return "fatal-rate"
	default:
		return "unknown"
	}
}

// ClassifyStreamError spots the "slow down" rate violation the streaming API
// sends before cutting abusive reconnectors off. Everything else is
// recoverable.
func ClassifyStreamError(err error) StreamErrorClass {
	if err == nil {
		return StreamRecoverable
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "420") ||
		strings.Contains(lower, "slow down") ||
		strings.Contains(lower, "enhance your calm") ||
		strings.Contains(lower, "easy there") {
		return StreamFatalRate
	}
	return StreamRecoverable
}

// SupervisorConfig wires a Supervisor's collaborators and event sinks.
// Post must execute functions on the session event loop; every transport
// callback goes through it.
type SupervisorConfig struct {
	Opener     StreamOpener
	Post       func(func())
	Notice     func(text string)
	OnTweet    func(*twitterapi.Status)
	OnDM       func(*twitterapi.DirectMessage)
	OnFriends  func(ids []uint64)
	OnDeletion func(statusID uint64)
	Shutdown   func(reason string)

	// AfterFunc is the timer factory, replaceable in tests.
	AfterFunc func(time.Duration, func()) *time.Timer
}

// Supervisor owns one logical streaming connection: it opens it, classifies
// what arrives, and schedules reconnects with exponential backoff when it
// dies. At most one reconnect timer is outstanding at any time.
type Supervisor struct {
	cfg    SupervisorConfig
	ctx    context.Context
	cancel context.CancelFunc

	state   atomic.Int32
	delay   int // seconds, doubles per retry
	timer   *time.Timer
	enabled bool
	conn    io.Closer
	connID  string
}

func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = time.AfterFunc
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{cfg: cfg, ctx: ctx, cancel: cancel}
}

// State is safe to read from any goroutine (status endpoint).
func (sv *Supervisor) State() ConnState {
	return ConnState(sv.state.Load())
}

func (sv *Supervisor) setState(s ConnState) {
	sv.state.Store(int32(s))
	telemetry.SetStreamState(int(s))
}

// BackoffDelay reports the current backoff delay in seconds.
func (sv *Supervisor) BackoffDelay() int {
	return sv.delay
}

// Start enables the supervisor and begins the first connection attempt.
// Loop-confined.
func (sv *Supervisor) Start() {
	sv.enabled = true
	sv.connect()
}

func (sv *Supervisor) connect() {
	if !sv.enabled {
		return
	}
	sv.setState(StateConnecting)
	id := uuid.NewString()[:8]
	sv.connID = id
	telemetry.CountStreamConnect()
	slog.Info("opening stream", slog.String("conn", id))
	go func() {
		conn, err := sv.cfg.Opener.Open(sv.ctx, sv)
		sv.cfg.Post(func() {
			if err != nil {
				sv.handleError(err)
				return
			}
			sv.conn = conn
		})
	}()
}

// Connected implements twitterapi.StreamEvents.
func (sv *Supervisor) Connected() {
	sv.cfg.Post(func() {
		if !sv.enabled {
			return
		}
		sv.setState(StateConnected)
		sv.delay = 0
		slog.Info("stream established", slog.String("conn", sv.connID))
	})
}

// Payload implements twitterapi.StreamEvents.
func (sv *Supervisor) Payload(raw json.RawMessage) {
	sv.cfg.Post(func() { sv.route(raw) })
}

// FriendsSnapshot implements twitterapi.StreamEvents.
func (sv *Supervisor) FriendsSnapshot(ids []uint64) {
	sv.cfg.Post(func() {
		slog.Info("friends snapshot", slog.Int("count", len(ids)))
		sv.cfg.OnFriends(ids)
	})
}

// Deletion implements twitterapi.StreamEvents.
func (sv *Supervisor) Deletion(statusID uint64) {
	sv.cfg.Post(func() {
		sv.cfg.Notice(fmt.Sprintf("status %d was deleted", statusID))
		if sv.cfg.OnDeletion != nil {
			sv.cfg.OnDeletion(statusID)
		}
	})
}

// Keepalive implements twitterapi.StreamEvents.
func (sv *Supervisor) Keepalive() {
	slog.Debug("stream keepalive")
}

// EndOfStream implements twitterapi.StreamEvents. A clean server-side close
// is retried immediately, without backoff.
func (sv *Supervisor) EndOfStream() {
	sv.cfg.Post(func() {
		sv.cfg.Notice("stream ended by server, reconnecting")
		sv.closeConn()
		sv.setState(StateDisconnected)
		if sv.enabled {
			sv.connect()
		}
	})
}

// StreamError implements twitterapi.StreamEvents.
func (sv *Supervisor) StreamError(err error) {
	sv.cfg.Post(func() { sv.handleError(err) })
}

// handleError runs on the loop. Fatal rate violations shut the whole gateway
// down, immediately and unconditionally; anything else schedules exactly one
// reconnect at the current backoff delay.
func (sv *Supervisor) handleError(err error) {
	sv.cfg.Notice("stream error: " + err.Error())
	sv.closeConn()
	if ClassifyStreamError(err) == StreamFatalRate {
		slog.Error("stream rate violation, shutting down", slog.Any("err", err))
		sv.cfg.Shutdown("stream rate violation: " + err.Error())
		return
	}
	if !sv.enabled {
		return
	}
	sv.scheduleReconnect()
}

// scheduleReconnect arms the singleton reconnect timer, invalidating any
// previous one. When it fires the delay doubles before the next attempt.
func (sv *Supervisor) scheduleReconnect() {
	if sv.timer != nil {
		sv.timer.Stop()
	}
	sv.setState(StateBackingOff)
	telemetry.CountStreamReconnect()
	d := time.Duration(sv.delay) * time.Second
	slog.Info("reconnect scheduled", slog.Duration("delay", d))
	sv.timer = sv.cfg.AfterFunc(d, func() {
		sv.cfg.Post(func() {
			sv.timer = nil
			sv.delay = nextDelay(sv.delay)
			sv.connect()
		})
	})
}

func nextDelay(d int) int {
	if d == 0 {
		return 1
	}
	return d * 2
}

// route classifies an untyped event record by field presence, in strict
// precedence order: sender, text, direct_message, limit, scrub_geo.
func (sv *Supervisor) route(raw json.RawMessage) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		slog.Warn("undecodable stream payload", slog.String("payload", string(raw)))
		return
	}
	switch {
	case fields["sender"] != nil:
		telemetry.CountStreamEvent("direct_message")
		var dm twitterapi.DirectMessage
		if err := json.Unmarshal(raw, &dm); err != nil {
			slog.Warn("bad legacy dm payload", slog.Any("err", err))
			return
		}
		sv.cfg.OnDM(&dm)
	case fields["text"] != nil:
		telemetry.CountStreamEvent("tweet")
		var st twitterapi.Status
		if err := json.Unmarshal(raw, &st); err != nil {
			slog.Warn("bad tweet payload", slog.Any("err", err))
			return
		}
		sv.cfg.OnTweet(&st)
	case fields["direct_message"] != nil:
		telemetry.CountStreamEvent("direct_message")
		var dm twitterapi.DirectMessage
		if err := json.Unmarshal(fields["direct_message"], &dm); err != nil {
			slog.Warn("bad dm payload", slog.Any("err", err))
			return
		}
		sv.cfg.OnDM(&dm)
	case fields["limit"] != nil:
		telemetry.CountStreamEvent("limit")
		var lim struct {
			Track int64 `json:"track"`
		}
		_ = json.Unmarshal(fields["limit"], &lim)
		sv.cfg.Notice(fmt.Sprintf("stream rate limited, %d statuses not delivered", lim.Track))
	case fields["scrub_geo"] != nil:
		telemetry.CountStreamEvent("scrub_geo")
		slog.Info("geo scrub notice", slog.String("payload", string(raw)))
	default:
		telemetry.CountStreamEvent("unknown")
		sv.cfg.Notice("unrecognized stream event, see log")
		slog.Warn("unrecognized stream event", slog.String("payload", string(raw)))
	}
}

// Close is terminal and idempotent: it cancels the reconnect timer, closes
// the transport, and disables further attempts.
func (sv *Supervisor) Close() {
	sv.enabled = false
	if sv.timer != nil {
		sv.timer.Stop()
		sv.timer = nil
	}
	sv.closeConn()
	sv.cancel()
	sv.setState(StateDisconnected)
}

func (sv *Supervisor) closeConn() {
	if sv.conn != nil {
		if err := sv.conn.Close(); err != nil {
			slog.Debug("stream close", slog.Any("err", err))
		}
		sv.conn = nil
	}
}
