package gateway

import (
	"strings"
	"sync"
	"time"

	"github.com/simbabque/twirc/twitterapi"
)

// UserProfile is the gateway's view of a known account. Profiles are created
// on first sighting (friend join, DM sender, lookup) and removed only on
// explicit unfollow/part/quit handling.
type UserProfile struct {
	ID        uint64
	Nick      string
	Name      string
	FetchedAt time.Time
}

// NewProfile builds a profile from a REST user, stamped with now.
func NewProfile(u twitterapi.User, now time.Time) *UserProfile {
	return &UserProfile{ID: u.ID, Nick: u.ScreenName, Name: u.Name, FetchedAt: now}
}

// Directory is the bidirectional nickname/identity registry. A profile is
// present in both mappings or in neither; Add and Remove always act on both,
// keyed from the same profile instance. Nick lookups are case-insensitive.
type Directory struct {
	mu     sync.RWMutex
	byNick map[string]*UserProfile
	byID   map[uint64]*UserProfile
}

func NewDirectory() *Directory {
	return &Directory{
		byNick: make(map[string]*UserProfile),
		byID:   make(map[uint64]*UserProfile),
	}
}

// Add inserts the profile into both mappings, replacing any prior entry that
// used the same nick or id.
func (d *Directory) Add(p *UserProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.byID[p.ID]; ok {
		delete(d.byNick, strings.ToLower(prev.Nick))
	}
	d.byNick[strings.ToLower(p.Nick)] = p
	d.byID[p.ID] = p
}

// Remove deletes the profile from both mappings. Both keys come from the
// profile itself, never re-derived from the other mapping.
func (d *Directory) Remove(p *UserProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byNick, strings.ToLower(p.Nick))
	delete(d.byID, p.ID)
}

// FindByNick returns the profile for a nick, nil if unknown.
func (d *Directory) FindByNick(nick string) *UserProfile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byNick[strings.ToLower(nick)]
}

// FindByID returns the profile for an identity, nil if unknown.
func (d *Directory) FindByID(id uint64) *UserProfile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byID[id]
}

// All returns a snapshot of every registered profile.
func (d *Directory) All() []*UserProfile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*UserProfile, 0, len(d.byID))
	for _, p := range d.byID {
		out = append(out, p)
	}
	return out
}

// Len reports the number of registered profiles.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

// idWidth is wide enough for the full unsigned 64-bit range.
const idWidth = 19

// CompareIDs orders two numeric identities arriving as decimal strings.
// Both sides are zero-left-padded to a fixed width and compared
// lexicographically, so "100" sorts after "99" and "00099" equals "99".
func CompareIDs(a, b string) int {
	return strings.Compare(padID(a), padID(b))
}

func padID(s string) string {
	if len(s) >= idWidth {
		return s
	}
	return strings.Repeat("0", idWidth-len(s)) + s
}
