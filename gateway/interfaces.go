package gateway

import (
	"context"
	"io"
	"time"

	"github.com/simbabque/twirc/twitterapi"
)

// ChatRoom is the chat collaborator. Every method must return quickly; the
// gateway calls them from its event loop and never waits for delivery.
type ChatRoom interface {
	// JoinAsBot enters the channel under the gateway's own nick.
	JoinAsBot(nick, channel string) error
	// AddParticipant makes a followed account visible as a channel member.
	AddParticipant(nick, displayName string)
	// RemoveParticipant drops an account from the channel member list.
	RemoveParticipant(nick string)
	// SetTopic updates the channel topic.
	SetTopic(channel, topic string)
	// SendMessage delivers a message to a channel or nick.
	SendMessage(target, text string)
	// SendNotice delivers a notice to a channel or nick.
	SendNotice(target, text string)
	// ChangeMode grants or revokes voice for a participant.
	ChangeMode(target string, voice bool)
	// PartParticipant removes a participant from a channel.
	PartParticipant(target, channel string)
}

// API is the REST collaborator. *twitterapi.Client satisfies it; tests use
// hand-written fakes. Every call may fail independently.
type API interface {
	VerifyCredentials(ctx context.Context) (*twitterapi.User, error)
	LookupUsers(ctx context.Context, ids []uint64) ([]twitterapi.User, error)
	FollowerIDs(ctx context.Context, cursor int64) (*twitterapi.FollowerIDsPage, error)
	UserTimeline(ctx context.Context, screenName string, count int) ([]twitterapi.Status, error)
	UpdateStatus(ctx context.Context, text string, inReplyTo uint64) (*twitterapi.Status, error)
	SendDirectMessage(ctx context.Context, screenName, text string) (*twitterapi.DirectMessage, error)
	CreateFriendship(ctx context.Context, id uint64) (*twitterapi.User, error)
	DestroyFriendship(ctx context.Context, id uint64) (*twitterapi.User, error)
	CreateBlock(ctx context.Context, id uint64) (*twitterapi.User, error)
	DestroyBlock(ctx context.Context, id uint64) (*twitterapi.User, error)
	ShowUser(ctx context.Context, idOrName string) (*twitterapi.User, error)
	SetNotifications(ctx context.Context, id uint64, on bool) error
	CreateFavorite(ctx context.Context, statusID uint64) error
	Retweet(ctx context.Context, statusID uint64) (*twitterapi.Status, error)
	ReportSpam(ctx context.Context, screenName string) (*twitterapi.User, error)
	RateLimitStatus(ctx context.Context) (*twitterapi.RateLimitStatus, error)
}

// StreamOpener starts one streaming connection delivering callbacks to ev.
// *twitterapi.StreamClient satisfies it.
type StreamOpener interface {
	Open(ctx context.Context, ev twitterapi.StreamEvents) (io.Closer, error)
}

// StateStore persists the roster and its refresh timestamp across restarts.
// The gateway loads once at startup and saves after each roster resolution
// and at shutdown.
type StateStore interface {
	SaveRoster(ctx context.Context, friends []*UserProfile, followers []uint64, refreshed time.Time) error
	LoadRoster(ctx context.Context) (friends []*UserProfile, followers []uint64, refreshed time.Time, err error)
}
