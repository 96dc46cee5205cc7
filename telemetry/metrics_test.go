package telemetry

import "testing"

func TestInitIdempotent(t *testing.T) {
	Init()
	Init() // second call must not re-register (promauto panics on duplicates)

	if StreamConnects == nil || StreamEvents == nil || CommandsHandled == nil {
		t.Fatal("counters not initialized")
	}
	if StreamStateGauge == nil || FriendCacheSize == nil {
		t.Fatal("gauges not initialized")
	}
}

func TestHelpersTolerateUninitialized(t *testing.T) {
	// Helper funcs are called from packages that may run in tests without
	// Init; they must not panic on nil metrics.
	CountStreamEvent("tweet")
	CountCommand("post")
	SetStreamState(1)
	SetRosterSizes(2, 3)
	CountAPIFailure()
}
