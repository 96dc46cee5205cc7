package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/simbabque/twirc/twitterapi"
)

// fakeAPI implements API with overridable function fields. Unset calls fail
// loudly so tests only exercise what they stub.
type fakeAPI struct {
	verifyFn       func(ctx context.Context) (*twitterapi.User, error)
	lookupFn       func(ctx context.Context, ids []uint64) ([]twitterapi.User, error)
	followerIDsFn  func(ctx context.Context, cursor int64) (*twitterapi.FollowerIDsPage, error)
	timelineFn     func(ctx context.Context, screenName string, count int) ([]twitterapi.Status, error)
	updateFn       func(ctx context.Context, text string, inReplyTo uint64) (*twitterapi.Status, error)
	dmFn           func(ctx context.Context, screenName, text string) (*twitterapi.DirectMessage, error)
	friendshipFn   func(ctx context.Context, id uint64) (*twitterapi.User, error)
	unfriendFn     func(ctx context.Context, id uint64) (*twitterapi.User, error)
	blockFn        func(ctx context.Context, id uint64) (*twitterapi.User, error)
	unblockFn      func(ctx context.Context, id uint64) (*twitterapi.User, error)
	showUserFn     func(ctx context.Context, idOrName string) (*twitterapi.User, error)
	notifyFn       func(ctx context.Context, id uint64, on bool) error
	favoriteFn     func(ctx context.Context, statusID uint64) error
	retweetFn      func(ctx context.Context, statusID uint64) (*twitterapi.Status, error)
	reportSpamFn   func(ctx context.Context, screenName string) (*twitterapi.User, error)
	rateLimitFn    func(ctx context.Context) (*twitterapi.RateLimitStatus, error)
}

var errNotStubbed = errors.New("fakeAPI: call not stubbed")

func (f *fakeAPI) VerifyCredentials(ctx context.Context) (*twitterapi.User, error) {
	if f.verifyFn == nil {
		return nil, errNotStubbed
	}
	return f.verifyFn(ctx)
}

func (f *fakeAPI) LookupUsers(ctx context.Context, ids []uint64) ([]twitterapi.User, error) {
	if f.lookupFn == nil {
		return nil, errNotStubbed
	}
	return f.lookupFn(ctx, ids)
}

func (f *fakeAPI) FollowerIDs(ctx context.Context, cursor int64) (*twitterapi.FollowerIDsPage, error) {
	if f.followerIDsFn == nil {
		return nil, errNotStubbed
	}
	return f.followerIDsFn(ctx, cursor)
}

func (f *fakeAPI) UserTimeline(ctx context.Context, screenName string, count int) ([]twitterapi.Status, error) {
	if f.timelineFn == nil {
		return nil, errNotStubbed
	}
	return f.timelineFn(ctx, screenName, count)
}

func (f *fakeAPI) UpdateStatus(ctx context.Context, text string, inReplyTo uint64) (*twitterapi.Status, error) {
	if f.updateFn == nil {
		return nil, errNotStubbed
	}
	return f.updateFn(ctx, text, inReplyTo)
}

func (f *fakeAPI) SendDirectMessage(ctx context.Context, screenName, text string) (*twitterapi.DirectMessage, error) {
	if f.dmFn == nil {
		return nil, errNotStubbed
	}
	return f.dmFn(ctx, screenName, text)
}

func (f *fakeAPI) CreateFriendship(ctx context.Context, id uint64) (*twitterapi.User, error) {
	if f.friendshipFn == nil {
		return nil, errNotStubbed
	}
	return f.friendshipFn(ctx, id)
}

func (f *fakeAPI) DestroyFriendship(ctx context.Context, id uint64) (*twitterapi.User, error) {
	if f.unfriendFn == nil {
		return nil, errNotStubbed
	}
	return f.unfriendFn(ctx, id)
}

func (f *fakeAPI) CreateBlock(ctx context.Context, id uint64) (*twitterapi.User, error) {
	if f.blockFn == nil {
		return nil, errNotStubbed
	}
	return f.blockFn(ctx, id)
}

func (f *fakeAPI) DestroyBlock(ctx context.Context, id uint64) (*twitterapi.User, error) {
	if f.unblockFn == nil {
		return nil, errNotStubbed
	}
	return f.unblockFn(ctx, id)
}

func (f *fakeAPI) ShowUser(ctx context.Context, idOrName string) (*twitterapi.User, error) {
	if f.showUserFn == nil {
		return nil, errNotStubbed
	}
	return f.showUserFn(ctx, idOrName)
}

func (f *fakeAPI) SetNotifications(ctx context.Context, id uint64, on bool) error {
	if f.notifyFn == nil {
		return errNotStubbed
	}
	return f.notifyFn(ctx, id, on)
}

func (f *fakeAPI) CreateFavorite(ctx context.Context, statusID uint64) error {
	if f.favoriteFn == nil {
		return errNotStubbed
	}
	return f.favoriteFn(ctx, statusID)
}

func (f *fakeAPI) Retweet(ctx context.Context, statusID uint64) (*twitterapi.Status, error) {
	if f.retweetFn == nil {
		return nil, errNotStubbed
	}
	return f.retweetFn(ctx, statusID)
}

func (f *fakeAPI) ReportSpam(ctx context.Context, screenName string) (*twitterapi.User, error) {
	if f.reportSpamFn == nil {
		return nil, errNotStubbed
	}
	return f.reportSpamFn(ctx, screenName)
}

func (f *fakeAPI) RateLimitStatus(ctx context.Context) (*twitterapi.RateLimitStatus, error) {
	if f.rateLimitFn == nil {
		return nil, errNotStubbed
	}
	return f.rateLimitFn(ctx)
}

// fakeChat records ChatRoom calls.
type fakeChat struct {
	mu       sync.Mutex
	notices  []string
	messages []string
	added    []string
	removed  []string
	modes    map[string]bool
	topics   []string
}

func newFakeChat() *fakeChat {
	return &fakeChat{modes: make(map[string]bool)}
}

func (f *fakeChat) JoinAsBot(nick, channel string) error { return nil }

func (f *fakeChat) AddParticipant(nick, displayName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, nick)
}

func (f *fakeChat) RemoveParticipant(nick string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, nick)
}

func (f *fakeChat) SetTopic(channel, topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
}

func (f *fakeChat) SendMessage(target, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
}

func (f *fakeChat) SendNotice(target, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, text)
}

func (f *fakeChat) ChangeMode(target string, voice bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes[target] = voice
}

func (f *fakeChat) PartParticipant(target, channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, target)
}

func (f *fakeChat) allNotices() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notices...)
}

func (f *fakeChat) allMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}
