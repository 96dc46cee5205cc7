package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/simbabque/twirc/telemetry"
	"github.com/simbabque/twirc/twitterapi"
)

// overCapacityLabel is the fixed placeholder shown when the API degrades to
// its over-capacity response.
const overCapacityLabel = "[twitter is over capacity]"

const defaultPickCount = 3

// goAPI runs an API-bound closure off the loop and re-enters the loop with
// the outcome. fn's returned string, if non-empty, becomes a channel notice.
func (s *Session) goAPI(label string, fn func(ctx context.Context) (string, error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		msg, err := fn(ctx)
		s.Do(func() {
			if err != nil {
				telemetry.CountAPIFailure()
				if twitterapi.IsUnavailable(err) {
					s.notice(label + ": " + overCapacityLabel)
					return
				}
				s.notice(label + ": " + err.Error())
				return
			}
			if msg != "" {
				s.notice(msg)
			}
		})
	}()
}

// resolveUser turns a command token (numeric id, @nick, nick, or email) into
// a full user, preferring the directory over a REST round trip.
func (s *Session) resolveUser(ctx context.Context, token string) (*twitterapi.User, error) {
	if id, err := strconv.ParseUint(token, 10, 64); err == nil {
		if p := s.dir.FindByID(id); p != nil {
			return &twitterapi.User{ID: p.ID, ScreenName: p.Nick, Name: p.Name}, nil
		}
	} else {
		nick := strings.TrimPrefix(token, "@")
		if p := s.dir.FindByNick(nick); p != nil {
			return &twitterapi.User{ID: p.ID, ScreenName: p.Nick, Name: p.Name}, nil
		}
		token = nick
	}
	return s.api.ShowUser(ctx, token)
}

func (s *Session) validateLength(text string) bool {
	if strings.TrimSpace(text) == "" {
		s.notice("nothing to send")
		return false
	}
	if n := utf8.RuneCountInString(text); n > s.cfg.MaxMessageChars {
		s.notice(fmt.Sprintf("message is %d characters, the limit is %d", n, s.cfg.MaxMessageChars))
		return false
	}
	return true
}

func (s *Session) registerCommands() {
	s.router.Register("post", s.cmdPost)
	s.router.Register("follow", s.cmdFollow)
	s.router.Register("unfollow", s.cmdUnfollow)
	s.router.Register("block", s.cmdBlock)
	s.router.Register("unblock", s.cmdUnblock)
	s.router.Register("whois", s.cmdWhois)
	s.router.Register("notify", s.cmdNotify)
	s.router.Register("favorite", s.cmdFavorite)
	s.router.Register("retweet", s.cmdRetweet)
	s.router.Register("rt", s.cmdRetweet)
	s.router.Register("reply", s.cmdReply)
	s.router.Register("report_spam", s.cmdReportSpam)
	s.router.Register("rate_limit_status", s.cmdRateLimit)
	s.router.Register("help", s.cmdHelp)
}

func (s *Session) registerSelectionHandlers() {
	s.sel.Register("favorite", func(id uint64, _ map[string]string) {
		s.goAPI("favorite", func(ctx context.Context) (string, error) {
			if err := s.api.CreateFavorite(ctx, id); err != nil {
				return "", err
			}
			return fmt.Sprintf("favorited status %d", id), nil
		})
	})
	s.sel.Register("retweet", func(id uint64, _ map[string]string) {
		s.goAPI("retweet", func(ctx context.Context) (string, error) {
			if _, err := s.api.Retweet(ctx, id); err != nil {
				return "", err
			}
			return fmt.Sprintf("retweeted status %d", id), nil
		})
	})
	s.sel.Register("reply", func(id uint64, sctx map[string]string) {
		nick, message := sctx["nick"], sctx["message"]
		s.goAPI("reply", func(ctx context.Context) (string, error) {
			if _, err := s.api.UpdateStatus(ctx, "@"+nick+" "+message, id); err != nil {
				return "", err
			}
			return "replied to @" + nick, nil
		})
	})
}

func (s *Session) cmdPost(args string) {
	if !s.validateLength(args) {
		return
	}
	s.goAPI("post", func(ctx context.Context) (string, error) {
		st, err := s.api.UpdateStatus(ctx, args, 0)
		if err != nil {
			return "", err
		}
		// The channel topic mirrors the owner's latest status.
		s.Do(func() { s.chat.SetTopic(s.channel, st.Text) })
		return fmt.Sprintf("posted status %d", st.ID), nil
	})
}

func (s *Session) cmdFollow(args string) {
	token := firstToken(args)
	if token == "" {
		s.notice("usage: follow <id or nick>")
		return
	}
	s.goAPI("follow", func(ctx context.Context) (string, error) {
		u, err := s.resolveUser(ctx, token)
		if err != nil {
			return "", err
		}
		followed, err := s.api.CreateFriendship(ctx, u.ID)
		if err != nil {
			return "", err
		}
		s.Do(func() { s.friendJoined(NewProfile(*followed, time.Now())) })
		return "now following @" + followed.ScreenName, nil
	})
}

func (s *Session) cmdUnfollow(args string) {
	token := firstToken(args)
	if token == "" {
		s.notice("usage: unfollow <id or nick>")
		return
	}
	s.goAPI("unfollow", func(ctx context.Context) (string, error) {
		u, err := s.resolveUser(ctx, token)
		if err != nil {
			return "", err
		}
		unfollowed, err := s.api.DestroyFriendship(ctx, u.ID)
		if err != nil {
			return "", err
		}
		s.Do(func() {
			s.roster.Forget(unfollowed.ID)
			if p := s.dir.FindByID(unfollowed.ID); p != nil {
				s.dir.Remove(p)
				s.chat.RemoveParticipant(p.Nick)
			}
		})
		return "unfollowed @" + unfollowed.ScreenName, nil
	})
}

func (s *Session) cmdBlock(args string) {
	s.blockAction(args, "block", s.api.CreateBlock)
}

func (s *Session) cmdUnblock(args string) {
	s.blockAction(args, "unblock", s.api.DestroyBlock)
}

func (s *Session) blockAction(args, label string, act func(context.Context, uint64) (*twitterapi.User, error)) {
	token := firstToken(args)
	if token == "" {
		s.notice("usage: " + label + " <id or nick>")
		return
	}
	s.goAPI(label, func(ctx context.Context) (string, error) {
		u, err := s.resolveUser(ctx, token)
		if err != nil {
			return "", err
		}
		acted, err := act(ctx, u.ID)
		if err != nil {
			return "", err
		}
		return label + "ed @" + acted.ScreenName, nil
	})
}

func (s *Session) cmdWhois(args string) {
	token := firstToken(args)
	if token == "" {
		s.notice("usage: whois <id, nick, or email>")
		return
	}
	s.goAPI("whois", func(ctx context.Context) (string, error) {
		u, err := s.resolveUser(ctx, token)
		if err != nil {
			return "", err
		}
		detail := fmt.Sprintf("@%s is %s (id %d)", u.ScreenName, u.Name, u.ID)
		if u.Protected {
			detail += ", protected"
		}
		return detail, nil
	})
}

func (s *Session) cmdNotify(args string) {
	fields := strings.Fields(args)
	if len(fields) < 2 || (fields[0] != "on" && fields[0] != "off") {
		s.notice("usage: notify on|off <id or nick> ...")
		return
	}
	on := fields[0] == "on"
	for _, token := range fields[1:] {
		token := token
		s.goAPI("notify", func(ctx context.Context) (string, error) {
			u, err := s.resolveUser(ctx, token)
			if err != nil {
				return "", err
			}
			if err := s.api.SetNotifications(ctx, u.ID, on); err != nil {
				return "", err
			}
			return fmt.Sprintf("notifications %s for @%s", fields[0], u.ScreenName), nil
		})
	}
}

func (s *Session) cmdFavorite(args string) {
	s.pickFromTimeline("favorite", args)
}

func (s *Session) cmdRetweet(args string) {
	s.pickFromTimeline("retweet", args)
}

// pickFromTimeline fetches the target's recent statuses and opens a numbered
// selection completed by the tagged handler.
func (s *Session) pickFromTimeline(tag, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		s.notice("usage: " + tag + " <nick> [count]")
		return
	}
	nick := strings.TrimPrefix(fields[0], "@")
	count := defaultPickCount
	if len(fields) > 1 {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 || n > 20 {
			s.notice("count must be a number between 1 and 20")
			return
		}
		count = n
	}
	s.goAPI(tag, func(ctx context.Context) (string, error) {
		statuses, err := s.api.UserTimeline(ctx, nick, count)
		if err != nil {
			return "", err
		}
		s.Do(func() { s.openSelection(tag, nick, statuses, nil) })
		return "", nil
	})
}

// openSelection lists candidates in the channel and installs the pending
// selection. Runs on the loop.
func (s *Session) openSelection(tag, nick string, statuses []twitterapi.Status, sctx map[string]string) {
	if len(statuses) == 0 {
		s.notice("no recent statuses from @" + nick)
		return
	}
	ids := make([]uint64, len(statuses))
	for i := range statuses {
		ids[i] = statuses[i].ID
		s.say(fmt.Sprintf("[%d] %s", i+1, FormatStatus(&statuses[i])))
	}
	s.sel.Open(tag, ids, sctx)
	s.notice(fmt.Sprintf("%s which? reply 1-%d", tag, len(ids)))
}

func (s *Session) cmdReply(args string) {
	fields := strings.SplitN(args, " ", 2)
	if len(fields) < 2 || strings.TrimSpace(fields[1]) == "" {
		s.notice("usage: reply <nick> [-count] <message>")
		return
	}
	nick := strings.TrimPrefix(fields[0], "@")
	rest := strings.TrimSpace(fields[1])

	count := 1
	if strings.HasPrefix(rest, "-") {
		flagAndMsg := strings.SplitN(rest, " ", 2)
		n, err := strconv.Atoi(strings.TrimPrefix(flagAndMsg[0], "-"))
		if err != nil || n < 1 || n > 20 || len(flagAndMsg) < 2 {
			s.notice("usage: reply <nick> [-count] <message>")
			return
		}
		count = n
		rest = strings.TrimSpace(flagAndMsg[1])
	}
	if !s.validateLength("@" + nick + " " + rest) {
		return
	}

	message := rest
	s.goAPI("reply", func(ctx context.Context) (string, error) {
		statuses, err := s.api.UserTimeline(ctx, nick, count)
		if err != nil {
			return "", err
		}
		s.Do(func() {
			if len(statuses) == 0 {
				s.notice("no recent statuses from @" + nick)
				return
			}
			if count == 1 {
				// Unambiguous: reply straight to the most recent status.
				target := statuses[0].ID
				s.goAPI("reply", func(ctx context.Context) (string, error) {
					if _, err := s.api.UpdateStatus(ctx, "@"+nick+" "+message, target); err != nil {
						return "", err
					}
					return "replied to @" + nick, nil
				})
				return
			}
			s.openSelection("reply", nick, statuses, map[string]string{"nick": nick, "message": message})
		})
		return "", nil
	})
}

func (s *Session) cmdReportSpam(args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		s.notice("usage: report_spam <id or nick> ...")
		return
	}
	for _, token := range fields {
		token := token
		s.goAPI("report_spam", func(ctx context.Context) (string, error) {
			u, err := s.resolveUser(ctx, token)
			if err != nil {
				return "", err
			}
			if _, err := s.api.ReportSpam(ctx, u.ScreenName); err != nil {
				return "", err
			}
			return "reported @" + u.ScreenName + " for spam", nil
		})
	}
}

func (s *Session) cmdRateLimit(string) {
	s.goAPI("rate_limit_status", func(ctx context.Context) (string, error) {
		rl, err := s.api.RateLimitStatus(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d of %d API calls left, reset at %s", rl.RemainingHits, rl.HourlyLimit, rl.ResetTime), nil
	})
}

func (s *Session) cmdHelp(string) {
	s.notice("commands: " + strings.Join(s.router.Commands(), ", "))
}

func firstToken(args string) string {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
