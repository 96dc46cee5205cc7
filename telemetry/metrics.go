// Package telemetry provides Prometheus metrics and optional OTLP tracing for
// the gateway.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	StreamConnects    prometheus.Counter
	StreamReconnects  prometheus.Counter
	StreamEvents      *prometheus.CounterVec
	CommandsHandled   *prometheus.CounterVec
	APIFailures       prometheus.Counter
	ChatLinesInbound  prometheus.Counter
	NoticesDelivered  prometheus.Counter

	// Gauges
	StreamStateGauge prometheus.Gauge
	FriendCacheSize  prometheus.Gauge
	FollowerSetSize  prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		StreamConnects = promauto.NewCounter(prometheus.CounterOpts{Name: "twirc_stream_connects_total", Help: "Streaming connection attempts"})
		StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "twirc_stream_reconnects_total", Help: "Reconnects scheduled after stream errors"})
		StreamEvents = promauto.NewCounterVec(prometheus.CounterOpts{Name: "twirc_stream_events_total", Help: "Classified stream events"}, []string{"kind"})
		CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "twirc_commands_total", Help: "Chat commands dispatched"}, []string{"command"})
		APIFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "twirc_api_failures_total", Help: "Failed REST API calls"})
		ChatLinesInbound = promauto.NewCounter(prometheus.CounterOpts{Name: "twirc_chat_lines_total", Help: "Inbound chat lines offered to the router"})
		NoticesDelivered = promauto.NewCounter(prometheus.CounterOpts{Name: "twirc_notices_total", Help: "Notices sent to the channel"})
		StreamStateGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "twirc_stream_state", Help: "Stream state: 0=disconnected 1=connecting 2=connected 3=backing-off"})
		FriendCacheSize = promauto.NewGauge(prometheus.GaugeOpts{Name: "twirc_friend_cache_size", Help: "Profiles in the friend cache"})
		FollowerSetSize = promauto.NewGauge(prometheus.GaugeOpts{Name: "twirc_follower_set_size", Help: "Identities in the follower set"})
	})
}

// CountStreamConnect records one streaming connection attempt.
func CountStreamConnect() {
	if StreamConnects != nil {
		StreamConnects.Inc()
	}
}

// CountStreamReconnect records one scheduled reconnect.
func CountStreamReconnect() {
	if StreamReconnects != nil {
		StreamReconnects.Inc()
	}
}

// CountStreamEvent records one classified stream event.
func CountStreamEvent(kind string) {
	if StreamEvents != nil {
		StreamEvents.WithLabelValues(kind).Inc()
	}
}

// CountCommand records one dispatched chat command.
func CountCommand(command string) {
	if CommandsHandled != nil {
		CommandsHandled.WithLabelValues(command).Inc()
	}
}

// SetStreamState updates the connection-state gauge.
func SetStreamState(state int) {
	if StreamStateGauge != nil {
		StreamStateGauge.Set(float64(state))
	}
}

// SetRosterSizes updates the friend-cache and follower-set gauges.
func SetRosterSizes(friends, followers int) {
	if FriendCacheSize != nil {
		FriendCacheSize.Set(float64(friends))
	}
	if FollowerSetSize != nil {
		FollowerSetSize.Set(float64(followers))
	}
}

// CountChatLine records one inbound chat line offered to the router.
func CountChatLine() {
	if ChatLinesInbound != nil {
		ChatLinesInbound.Inc()
	}
}

// CountNotice records one notice delivered to the channel.
func CountNotice() {
	if NoticesDelivered != nil {
		NoticesDelivered.Inc()
	}
}

// CountAPIFailure records one failed REST call.
func CountAPIFailure() {
	if APIFailures != nil {
		APIFailures.Inc()
	}
}
