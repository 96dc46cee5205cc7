package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/simbabque/twirc/twitterapi"
)

func emptyFollowerPage() func(context.Context, int64) (*twitterapi.FollowerIDsPage, error) {
	return func(context.Context, int64) (*twitterapi.FollowerIDsPage, error) {
		return &twitterapi.FollowerIDsPage{NextCursor: 0}, nil
	}
}

func TestResolveFriendsBatching(t *testing.T) {
	var batchSizes []int
	api := &fakeAPI{
		lookupFn: func(_ context.Context, ids []uint64) ([]twitterapi.User, error) {
			batchSizes = append(batchSizes, len(ids))
			users := make([]twitterapi.User, len(ids))
			for i, id := range ids {
				users[i] = twitterapi.User{ID: id, ScreenName: "u"}
			}
			return users, nil
		},
		followerIDsFn: emptyFollowerPage(),
	}
	var joined int
	r := NewRoster(RosterConfig{
		API:         api,
		FriendTTL:   7 * 24 * time.Hour,
		FollowerTTL: 24 * time.Hour,
		OnFriend:    func(*UserProfile) { joined++ },
	})

	ids := make([]uint64, 250)
	for i := range ids {
		ids[i] = uint64(i + 1)
	}
	r.ResolveFriends(context.Background(), ids, nil)

	if len(batchSizes) != 3 || batchSizes[0] != 100 || batchSizes[1] != 100 || batchSizes[2] != 50 {
		t.Errorf("batch sizes = %v, want [100 100 50]", batchSizes)
	}
	if joined != 250 {
		t.Errorf("friend-joined events = %d, want 250", joined)
	}
}

func TestResolveFriendsFreshFromCache(t *testing.T) {
	now := time.Now()
	lookups := 0
	api := &fakeAPI{
		lookupFn: func(_ context.Context, ids []uint64) ([]twitterapi.User, error) {
			lookups++
			users := make([]twitterapi.User, len(ids))
			for i, id := range ids {
				users[i] = twitterapi.User{ID: id}
			}
			return users, nil
		},
		followerIDsFn: emptyFollowerPage(),
	}
	var joined []uint64
	r := NewRoster(RosterConfig{
		API:         api,
		FriendTTL:   7 * 24 * time.Hour,
		FollowerTTL: 24 * time.Hour,
		OnFriend:    func(p *UserProfile) { joined = append(joined, p.ID) },
		Now:         func() time.Time { return now },
	})
	r.Restore([]*UserProfile{
		{ID: 1, Nick: "fresh", FetchedAt: now.Add(-time.Hour)},
		{ID: 2, Nick: "stale", FetchedAt: now.Add(-8 * 24 * time.Hour)},
	}, nil, now)

	r.ResolveFriends(context.Background(), []uint64{1, 2, 3}, nil)

	if lookups != 1 {
		t.Errorf("lookup calls = %d, want 1 (stale+unknown batched together)", lookups)
	}
	if len(joined) != 3 {
		t.Errorf("friend-joined events = %d, want 3", len(joined))
	}
	if joined[0] != 1 {
		t.Errorf("fresh id should be emitted first, got order %v", joined)
	}
}

func TestResolveFriendsEmptyStillRefreshesFollowers(t *testing.T) {
	pages := 0
	api := &fakeAPI{
		followerIDsFn: func(context.Context, int64) (*twitterapi.FollowerIDsPage, error) {
			pages++
			return &twitterapi.FollowerIDsPage{IDs: []uint64{5}, NextCursor: 0}, nil
		},
	}
	r := NewRoster(RosterConfig{API: api, FriendTTL: time.Hour, FollowerTTL: time.Hour})
	r.ResolveFriends(context.Background(), nil, nil)
	if pages != 1 {
		t.Errorf("follower pages fetched = %d, want 1", pages)
	}
	if !r.IsFollower(5) {
		t.Error("follower set should be replaced")
	}
}

func TestRefreshFollowersCursorWalk(t *testing.T) {
	var cursors []int64
	next := []int64{5, 9, 0}
	api := &fakeAPI{
		followerIDsFn: func(_ context.Context, cursor int64) (*twitterapi.FollowerIDsPage, error) {
			cursors = append(cursors, cursor)
			i := len(cursors) - 1
			return &twitterapi.FollowerIDsPage{IDs: []uint64{uint64(100 + i)}, NextCursor: next[i]}, nil
		},
	}
	r := NewRoster(RosterConfig{API: api, FriendTTL: time.Hour, FollowerTTL: time.Hour})
	r.RefreshFollowers(context.Background(), nil)

	if len(cursors) != 3 {
		t.Fatalf("page requests = %d, want 3", len(cursors))
	}
	if cursors[0] != -1 || cursors[1] != 5 || cursors[2] != 9 {
		t.Errorf("cursor sequence = %v, want [-1 5 9]", cursors)
	}
	for _, id := range []uint64{100, 101, 102} {
		if !r.IsFollower(id) {
			t.Errorf("id %d missing from follower set", id)
		}
	}
}

func TestRefreshFollowersPartialOnPageFailure(t *testing.T) {
	call := 0
	api := &fakeAPI{
		followerIDsFn: func(_ context.Context, cursor int64) (*twitterapi.FollowerIDsPage, error) {
			call++
			if call == 2 {
				return nil, errors.New("boom")
			}
			return &twitterapi.FollowerIDsPage{IDs: []uint64{uint64(call)}, NextCursor: 7}, nil
		},
	}
	r := NewRoster(RosterConfig{API: api, FriendTTL: time.Hour, FollowerTTL: time.Hour})
	r.RefreshFollowers(context.Background(), nil)

	if call != 2 {
		t.Errorf("page requests = %d, want 2 (walk stops on failure)", call)
	}
	if !r.IsFollower(1) {
		t.Error("ids accumulated before the failure must be kept")
	}
	if r.FollowersStale() {
		t.Error("refresh timestamp should be stamped even after a partial walk")
	}
}

func TestRefreshFollowersVoiceRecompute(t *testing.T) {
	api := &fakeAPI{
		followerIDsFn: func(context.Context, int64) (*twitterapi.FollowerIDsPage, error) {
			return &twitterapi.FollowerIDsPage{IDs: []uint64{1}, NextCursor: 0}, nil
		},
	}
	voiced := make(map[string]bool)
	r := NewRoster(RosterConfig{
		API:         api,
		FriendTTL:   time.Hour,
		FollowerTTL: time.Hour,
		OnVoice:     func(p *UserProfile, v bool) { voiced[p.Nick] = v },
	})
	dir := NewDirectory()
	dir.Add(&UserProfile{ID: 1, Nick: "mutual"})
	dir.Add(&UserProfile{ID: 2, Nick: "oneway"})

	r.RefreshFollowers(context.Background(), dir)

	if v, ok := voiced["mutual"]; !ok || !v {
		t.Errorf("mutual should be voiced, got %v (present %v)", v, ok)
	}
	if v, ok := voiced["oneway"]; !ok || v {
		t.Errorf("oneway should be devoiced, got %v (present %v)", v, ok)
	}
}

func TestFollowersStale(t *testing.T) {
	now := time.Now()
	r := NewRoster(RosterConfig{
		API:         &fakeAPI{},
		FriendTTL:   time.Hour,
		FollowerTTL: 24 * time.Hour,
		Now:         func() time.Time { return now },
	})
	if !r.FollowersStale() {
		t.Error("never-refreshed set should be stale")
	}
	r.Restore(nil, nil, now.Add(-hours(23)))
	if r.FollowersStale() {
		t.Error("23h-old set should be fresh with a 24h window")
	}
	r.Restore(nil, nil, now.Add(-hours(25)))
	if !r.FollowersStale() {
		t.Error("25h-old set should be stale")
	}
}

func hours(h int) time.Duration { return time.Duration(h) * time.Hour }
