// Package gateway implements the event translation and session-state engine:
// it supervises the streaming connection, routes chat commands, keeps the
// friend/follower roster in sync, and renders statuses for the channel.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/simbabque/twirc/config"
	"github.com/simbabque/twirc/telemetry"
	"github.com/simbabque/twirc/twitterapi"
)

// Options wires a Session's collaborators. Store and Plugins are optional.
type Options struct {
	Config  *config.Config
	Chat    ChatRoom
	API     API
	Opener  StreamOpener
	Store   StateStore
	Plugins []Plugin
	Channel string
}

// Session is the single-owner gateway: one account, one channel, one event
// loop. All session state is mutated on the loop goroutine; collaborator
// results re-enter through Do.
type Session struct {
	cfg     *config.Config
	chat    ChatRoom
	api     API
	store   StateStore
	channel string

	dir    *Directory
	roster *Roster
	sel    *Selector
	router *Router
	stream *Supervisor
	owner  *UserProfile

	loop         chan func()
	done         chan struct{}
	shutdownOnce sync.Once
}

func New(opts Options) *Session {
	s := &Session{
		cfg:     opts.Config,
		chat:    opts.Chat,
		api:     opts.API,
		store:   opts.Store,
		channel: opts.Channel,
		dir:     NewDirectory(),
		sel:     NewSelector(),
		loop:    make(chan func(), 256),
		done:    make(chan struct{}),
	}
	if s.channel == "" {
		s.channel = "#twitter"
	}

	s.roster = NewRoster(RosterConfig{
		API:         opts.API,
		FriendTTL:   opts.Config.FriendTTL,
		FollowerTTL: opts.Config.FollowerTTL,
		OnFriend:    s.friendJoined,
		OnVoice:     func(p *UserProfile, voiced bool) { s.chat.ChangeMode(p.Nick, voiced) },
		OnSynced:    s.persist,
	})

	s.router = NewRouter(s.dir, s.sel, s.notice)
	for _, p := range opts.Plugins {
		s.router.AddPlugin(p)
	}

	s.stream = NewSupervisor(SupervisorConfig{
		Opener:    opts.Opener,
		Post:      s.Do,
		Notice:    s.notice,
		OnTweet:   s.tweetArrived,
		OnDM:      s.dmArrived,
		OnFriends: func(ids []uint64) { go s.roster.ResolveFriends(context.Background(), ids, s.dir) },
		Shutdown:  func(reason string) { s.Shutdown(reason) },
	})

	s.registerCommands()
	s.registerSelectionHandlers()
	return s
}

// Do schedules fn on the event loop. After shutdown events are dropped; a
// late API result that nobody can act on is logged at debug and discarded.
func (s *Session) Do(fn func()) {
	select {
	case <-s.done:
		slog.Debug("event dropped after shutdown")
		return
	default:
	}
	select {
	case <-s.done:
		slog.Debug("event dropped after shutdown")
	case s.loop <- fn:
	}
}

// Run verifies the credentials, restores persisted state, joins the channel,
// starts the stream, and then drives the event loop until shutdown.
func (s *Session) Run(ctx context.Context) error {
	u, err := s.api.VerifyCredentials(ctx)
	if err != nil {
		return fmt.Errorf("verify credentials: %w", err)
	}
	s.owner = NewProfile(*u, time.Now())
	s.router.SetOwnerNick(u.ScreenName)
	slog.Info("identity verified", slog.String("nick", u.ScreenName), slog.Uint64("id", u.ID))

	if s.store != nil {
		friends, followers, refreshed, err := s.store.LoadRoster(ctx)
		if err != nil {
			slog.Warn("state restore failed, starting cold", slog.Any("err", err))
		} else {
			s.roster.Restore(friends, followers, refreshed)
			slog.Info("state restored", slog.Int("friends", len(friends)), slog.Int("followers", len(followers)))
		}
	}

	if err := s.chat.JoinAsBot(s.cfg.ChatNick, s.channel); err != nil {
		return fmt.Errorf("join channel: %w", err)
	}

	s.Do(s.stream.Start)

	ticker := time.NewTicker(s.cfg.RosterInterval)
	defer ticker.Stop()
	for {
		select {
		case fn := <-s.loop:
			fn()
		case <-ticker.C:
			if s.roster.FollowersStale() {
				slog.Info("follower set stale, refreshing")
				go s.roster.RefreshFollowers(context.Background(), s.dir)
			}
			telemetry.SetRosterSizes(s.roster.Sizes())
		case <-ctx.Done():
			s.Shutdown("signal received")
			return nil
		case <-s.done:
			return nil
		}
	}
}

// Shutdown is terminal and idempotent. In-flight API calls are not cancelled;
// their results are discarded by Do once done is closed.
func (s *Session) Shutdown(reason string) {
	s.shutdownOnce.Do(func() {
		slog.Info("shutting down", slog.String("reason", reason))
		s.stream.Close()
		if s.store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			friends, followers, refreshed := s.roster.Snapshot()
			if err := s.store.SaveRoster(ctx, friends, followers, refreshed); err != nil {
				// Persistence failure never blocks the remaining steps.
				slog.Error("state save failed at shutdown", slog.Any("err", err))
			}
			cancel()
		}
		s.chat.PartParticipant(s.cfg.ChatNick, s.channel)
		close(s.done)
	})
}

// Done is closed once the session has fully shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// HandleChatLine is the entry point for the chat collaborator's
// public-message events. Safe to call from any goroutine.
func (s *Session) HandleChatLine(speaker, text string) {
	s.Do(func() { s.router.HandleLine(speaker, text) })
}

// HandlePrivateMessage turns a private message from the owner into a direct
// message to the target nick.
func (s *Session) HandlePrivateMessage(targetNick, speaker, text string) {
	s.Do(func() {
		if s.owner == nil || !strings.EqualFold(speaker, s.owner.Nick) {
			return
		}
		if !s.validateLength(text) {
			return
		}
		nick := targetNick
		s.goAPI("dm", func(ctx context.Context) (string, error) {
			if _, err := s.api.SendDirectMessage(ctx, nick, text); err != nil {
				return "", err
			}
			return "dm sent to @" + nick, nil
		})
	})
}

// HandleJoin handles a participant joining the channel: a known follower
// gets voice re-asserted so the flag survives chat-side reconnects.
func (s *Session) HandleJoin(nick string) {
	s.Do(func() {
		p := s.dir.FindByNick(nick)
		if p != nil && s.roster.IsFollower(p.ID) {
			s.chat.ChangeMode(p.Nick, true)
		}
	})
}

// HandlePart handles a participant leaving the channel: the profile is
// dropped from the directory (quit is handled identically).
func (s *Session) HandlePart(nick string) {
	s.Do(func() {
		if p := s.dir.FindByNick(nick); p != nil {
			s.dir.Remove(p)
		}
	})
}

// StreamState exposes the connection state for the status endpoint.
func (s *Session) StreamState() ConnState {
	return s.stream.State()
}

// RosterSizes exposes roster sizes for the status endpoint.
func (s *Session) RosterSizes() (friends, followers int) {
	return s.roster.Sizes()
}

func (s *Session) notice(text string) {
	telemetry.CountNotice()
	s.chat.SendNotice(s.channel, text)
}

func (s *Session) say(text string) {
	s.chat.SendMessage(s.channel, text)
}

// friendJoined consumes the roster's friend-joined event: register, surface
// in the channel, and voice immediately when the friend is a known follower.
func (s *Session) friendJoined(p *UserProfile) {
	s.dir.Add(p)
	s.chat.AddParticipant(p.Nick, p.Name)
	if s.roster.IsFollower(p.ID) {
		s.chat.ChangeMode(p.Nick, true)
	}
}

// persist writes the roster after each completed resolution.
func (s *Session) persist() {
	telemetry.SetRosterSizes(s.roster.Sizes())
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	friends, followers, refreshed := s.roster.Snapshot()
	if err := s.store.SaveRoster(ctx, friends, followers, refreshed); err != nil {
		slog.Error("state save failed", slog.Any("err", err))
	}
}

func (s *Session) tweetArrived(st *twitterapi.Status) {
	s.say("<" + st.User.ScreenName + "> " + FormatStatus(st))
}

// dmArrived registers the sender on first sighting and delivers the DM as a
// private message to the owner.
func (s *Session) dmArrived(dm *twitterapi.DirectMessage) {
	if dm.Sender.ID != 0 && s.dir.FindByID(dm.Sender.ID) == nil {
		s.dir.Add(NewProfile(dm.Sender, time.Now()))
	}
	target := s.channel
	if s.owner != nil {
		target = s.owner.Nick
	}
	s.chat.SendMessage(target, "DM from @"+dm.Sender.ScreenName+": "+FormatDirectMessage(dm))
}
