// Package chat relays the gateway's channel onto Twitch chat via IRC. The
// relay cannot make other accounts appear as real channel members, so the
// participant list and voice modes are tracked locally and exposed for the
// status endpoint, while messages and notices go out as regular chat lines.
package chat

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// Config carries the IRC credentials and the channel to relay.
type Config struct {
	Nick       string
	OAuthToken string
	Channel    string
}

// Participant is one tracked channel member.
type Participant struct {
	Nick        string
	DisplayName string
	Voiced      bool
}

// Relay implements the gateway's chat surface over a Twitch IRC connection.
type Relay struct {
	client  *twitch.Client
	nick    string
	channel string

	// send is swapped out in tests.
	send func(channel, text string)

	mu           sync.Mutex
	participants map[string]*Participant

	// OnChatLine receives every channel message not sent by the relay
	// itself. Set before Run.
	OnChatLine func(speaker, text string)
	// OnWhisper receives whispers addressed to the relay's nick.
	OnWhisper func(speaker, text string)
	// OnJoin and OnPart receive chat-side membership changes.
	OnJoin func(nick string)
	OnPart func(nick string)
}

func NewRelay(cfg Config) *Relay {
	client := twitch.NewClient(cfg.Nick, cfg.OAuthToken)
	r := &Relay{
		client:       client,
		nick:         cfg.Nick,
		channel:      cfg.Channel,
		participants: make(map[string]*Participant),
	}
	r.send = client.Say

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		if strings.EqualFold(msg.User.Name, r.nick) {
			return
		}
		if r.OnChatLine != nil {
			r.OnChatLine(msg.User.DisplayName, msg.Message)
		}
	})
	client.OnWhisperMessage(func(msg twitch.WhisperMessage) {
		if r.OnWhisper != nil {
			r.OnWhisper(msg.User.DisplayName, msg.Message)
		}
	})
	client.OnUserJoinMessage(func(msg twitch.UserJoinMessage) {
		if r.OnJoin != nil && !strings.EqualFold(msg.User, r.nick) {
			r.OnJoin(msg.User)
		}
	})
	client.OnUserPartMessage(func(msg twitch.UserPartMessage) {
		if r.OnPart != nil && !strings.EqualFold(msg.User, r.nick) {
			r.OnPart(msg.User)
		}
	})
	return r
}

// Run connects and blocks until the connection drops or ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := r.client.Disconnect(); err != nil {
			slog.Debug("chat disconnect", slog.Any("err", err))
		}
		close(done)
	}()

	err := r.client.Connect()
	select {
	case <-done:
		return nil
	default:
	}
	return err
}

func (r *Relay) JoinAsBot(nick, channel string) error {
	r.client.Join(strings.TrimPrefix(channel, "#"))
	slog.Info("joined channel", slog.String("nick", nick), slog.String("channel", channel))
	return nil
}

func (r *Relay) AddParticipant(nick, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[strings.ToLower(nick)] = &Participant{Nick: nick, DisplayName: displayName}
}

func (r *Relay) RemoveParticipant(nick string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, strings.ToLower(nick))
}

func (r *Relay) SetTopic(channel, topic string) {
	r.SendNotice(channel, "topic: "+topic)
}

// SendMessage delivers text to the channel. A nick target is rendered as a
// directed channel line since Twitch IRC has no true private delivery here.
func (r *Relay) SendMessage(target, text string) {
	if !strings.HasPrefix(target, "#") {
		text = target + ": " + text
	}
	r.send(strings.TrimPrefix(r.channel, "#"), text)
}

func (r *Relay) SendNotice(target, text string) {
	r.SendMessage(target, "-!- "+text)
}

func (r *Relay) ChangeMode(target string, voice bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[strings.ToLower(target)]; ok {
		p.Voiced = voice
	}
}

func (r *Relay) PartParticipant(target, channel string) {
	r.mu.Lock()
	delete(r.participants, strings.ToLower(target))
	r.mu.Unlock()
	if strings.EqualFold(target, r.nick) {
		r.client.Depart(strings.TrimPrefix(channel, "#"))
	}
}

// Participants returns the tracked members sorted by nick.
func (r *Relay) Participants() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nick < out[j].Nick })
	return out
}
