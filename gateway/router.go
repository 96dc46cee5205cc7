package gateway

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/simbabque/twirc/telemetry"
)

// Plugin hooks into the inbound line pipeline. Both hooks are optional in
// spirit: embed BasePlugin to get no-op defaults and override what you need.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string
	// PreFilter sees every line before command parsing and may rewrite it
	// in place. Returning true consumes the line.
	PreFilter(line *string) bool
	// HandleCommand is offered each parsed command. Returning true claims it.
	HandleCommand(cmd, args string) bool
}

// BasePlugin is the explicit empty implementation; plugins embed it instead
// of the router probing for capabilities at runtime.
type BasePlugin struct{}

func (BasePlugin) PreFilter(*string) bool            { return false }
func (BasePlugin) HandleCommand(string, string) bool { return false }

// CommandFunc is a built-in command handler. args is the remainder of the
// line after the command token.
type CommandFunc func(args string)

var bareWord = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Router is the inbound chat-line pipeline: selection interception first,
// then plugin pre-filters, the nick-prefix rewrite, and command dispatch.
// Only lines from the owning identity's nick are considered at all.
type Router struct {
	ownerNick string
	dir       *Directory
	sel       *Selector
	notice    func(text string)

	plugins  []Plugin
	commands map[string]CommandFunc
	order    []string
}

func NewRouter(dir *Directory, sel *Selector, notice func(string)) *Router {
	return &Router{
		dir:      dir,
		sel:      sel,
		notice:   notice,
		commands: make(map[string]CommandFunc),
	}
}

// SetOwnerNick sets the nick whose lines the router accepts.
func (r *Router) SetOwnerNick(nick string) {
	r.ownerNick = nick
}

// Register installs a built-in command handler. Registration happens once at
// startup; later registrations for the same token replace the earlier one.
func (r *Router) Register(cmd string, fn CommandFunc) {
	cmd = strings.ToLower(cmd)
	if _, dup := r.commands[cmd]; !dup {
		r.order = append(r.order, cmd)
	}
	r.commands[cmd] = fn
}

// AddPlugin appends a plugin; hooks run in registration order.
func (r *Router) AddPlugin(p Plugin) {
	r.plugins = append(r.plugins, p)
}

// Commands lists registered command tokens in registration order.
func (r *Router) Commands() []string {
	return append([]string(nil), r.order...)
}

// HandleLine runs one inbound line through the pipeline. Loop-confined.
func (r *Router) HandleLine(speaker, text string) {
	if !strings.EqualFold(speaker, r.ownerNick) {
		return
	}
	telemetry.CountChatLine()

	// 1. A live selection gets first shot at the raw text. If it doesn't
	// take it, the dialog is treated as abandoned.
	if r.sel.Active() {
		if r.sel.Handle(text) {
			return
		}
		r.sel.Clear()
	}

	// 2. Plugin pre-filters, which may rewrite the line.
	for _, p := range r.plugins {
		if p.PreFilter(&text) {
			slog.Debug("line consumed by plugin", slog.String("plugin", p.Name()))
			return
		}
	}

	// 3. "somenick: hi there" becomes "post @somenick hi there" when the
	// nick is known.
	if idx := strings.Index(text, ":"); idx > 0 {
		if p := r.dir.FindByNick(text[:idx]); p != nil {
			text = "post @" + p.Nick + " " + strings.TrimSpace(text[idx+1:])
		}
	}

	// 4. Command token must be a bare word.
	parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
	cmd := parts[0]
	args := ""
	if len(parts) == 2 {
		args = strings.TrimSpace(parts[1])
	}
	if !bareWord.MatchString(cmd) {
		r.notice("that's not a command")
		return
	}

	// 5. Plugin command hooks, first claim wins.
	for _, p := range r.plugins {
		if p.HandleCommand(cmd, args) {
			slog.Debug("command claimed by plugin", slog.String("plugin", p.Name()), slog.String("command", cmd))
			return
		}
	}

	// 6. Built-in handlers.
	if fn, ok := r.commands[strings.ToLower(cmd)]; ok {
		telemetry.CountCommand(strings.ToLower(cmd))
		fn(args)
		return
	}

	// 7. Nobody wanted it.
	r.notice("unrecognized command: " + cmd)
}
