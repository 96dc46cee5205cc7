package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/simbabque/twirc/telemetry"
	"github.com/simbabque/twirc/twitterapi"
)

// Roster resolves friend identity lists into profiles and keeps the follower
// set current. Cached profiles older than friendTTL are re-resolved; the
// follower set as a whole is refreshed after followerTTL.
type Roster struct {
	api         API
	friendTTL   time.Duration
	followerTTL time.Duration
	now         func() time.Time

	// onFriend is the friend-joined event: profile resolved and ready to
	// appear in the channel.
	onFriend func(*UserProfile)
	// onVoice is the mode-change instruction emitted after a follower
	// refresh for every directory profile whose voice state may have moved.
	onVoice func(p *UserProfile, voiced bool)
	// onSynced fires after a completed follower refresh (persistence hook).
	onSynced func()

	mu        sync.Mutex
	cache     map[uint64]*UserProfile
	followers map[uint64]struct{}
	refreshed time.Time
}

// RosterConfig carries the knobs and event sinks for a Roster.
type RosterConfig struct {
	API         API
	FriendTTL   time.Duration
	FollowerTTL time.Duration
	OnFriend    func(*UserProfile)
	OnVoice     func(p *UserProfile, voiced bool)
	OnSynced    func()
	Now         func() time.Time
}

func NewRoster(rc RosterConfig) *Roster {
	r := &Roster{
		api:         rc.API,
		friendTTL:   rc.FriendTTL,
		followerTTL: rc.FollowerTTL,
		onFriend:    rc.OnFriend,
		onVoice:     rc.OnVoice,
		onSynced:    rc.OnSynced,
		now:         rc.Now,
		cache:       make(map[uint64]*UserProfile),
		followers:   make(map[uint64]struct{}),
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.onFriend == nil {
		r.onFriend = func(*UserProfile) {}
	}
	if r.onVoice == nil {
		r.onVoice = func(*UserProfile, bool) {}
	}
	if r.onSynced == nil {
		r.onSynced = func() {}
	}
	return r
}

// ResolveFriends turns a friend-id snapshot into friend-joined events. Fresh
// cache entries are emitted immediately; the rest are bulk-looked-up in
// batches. A full follower refresh always follows, even for an empty list.
func (r *Roster) ResolveFriends(ctx context.Context, ids []uint64, dir *Directory) {
	ctx, span := telemetry.StartSpan(ctx, "roster.resolve_friends")
	defer span.End()

	now := r.now()
	var stale []uint64
	r.mu.Lock()
	fresh := make([]*UserProfile, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.cache[id]; ok && now.Sub(p.FetchedAt) < r.friendTTL {
			fresh = append(fresh, p)
		} else {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, p := range fresh {
		r.onFriend(p)
	}

	for start := 0; start < len(stale); start += twitterapi.MaxLookupBatch {
		end := start + twitterapi.MaxLookupBatch
		if end > len(stale) {
			end = len(stale)
		}
		users, err := r.api.LookupUsers(ctx, stale[start:end])
		if err != nil {
			slog.Error("friend lookup batch failed", slog.Int("size", end-start), slog.Any("err", err))
			continue
		}
		for _, u := range users {
			p := NewProfile(u, r.now())
			r.mu.Lock()
			r.cache[p.ID] = p
			r.mu.Unlock()
			r.onFriend(p)
		}
	}

	r.RefreshFollowers(ctx, dir)
}

// RefreshFollowers walks the cursored follower-id listing and atomically
// replaces the follower set with the result. A failed page stops the walk but
// keeps what was accumulated. Afterwards every directory profile gets a
// mode-change instruction reflecting its membership.
func (r *Roster) RefreshFollowers(ctx context.Context, dir *Directory) {
	ctx, span := telemetry.StartSpan(ctx, "roster.refresh_followers")
	defer span.End()

	acc := make(map[uint64]struct{})
	cursor := int64(-1)
	for cursor != 0 {
		page, err := r.api.FollowerIDs(ctx, cursor)
		if err != nil {
			slog.Error("follower page failed, keeping partial set", slog.Any("err", err))
			break
		}
		for _, id := range page.IDs {
			acc[id] = struct{}{}
		}
		cursor = page.NextCursor
	}

	r.mu.Lock()
	r.followers = acc
	r.refreshed = r.now()
	r.mu.Unlock()
	slog.Info("follower set refreshed", slog.Int("count", len(acc)))

	if dir != nil {
		for _, p := range dir.All() {
			_, voiced := acc[p.ID]
			r.onVoice(p, voiced)
		}
	}
	r.onSynced()
}

// IsFollower reports follower-set membership.
func (r *Roster) IsFollower(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.followers[id]
	return ok
}

// FollowersStale reports whether the follower set has outlived its window.
func (r *Roster) FollowersStale() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now().Sub(r.refreshed) >= r.followerTTL
}

// CachedFriend returns the cached profile for an id, nil if unknown.
func (r *Roster) CachedFriend(id uint64) *UserProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache[id]
}

// Snapshot returns the persistable roster state.
func (r *Roster) Snapshot() (friends []*UserProfile, followers []uint64, refreshed time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	friends = make([]*UserProfile, 0, len(r.cache))
	for _, p := range r.cache {
		friends = append(friends, p)
	}
	followers = make([]uint64, 0, len(r.followers))
	for id := range r.followers {
		followers = append(followers, id)
	}
	return friends, followers, r.refreshed
}

// Restore seeds the roster from persisted state. Entries keep their original
// freshness stamps, so anything stale gets re-resolved on the next snapshot.
func (r *Roster) Restore(friends []*UserProfile, followers []uint64, refreshed time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range friends {
		r.cache[p.ID] = p
	}
	for _, id := range followers {
		r.followers[id] = struct{}{}
	}
	r.refreshed = refreshed
}

// Forget drops an identity from the friend cache (explicit unfollow).
func (r *Roster) Forget(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, id)
}

// Sizes reports cache and follower-set sizes for the status endpoint.
func (r *Roster) Sizes() (friends, followers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache), len(r.followers)
}
