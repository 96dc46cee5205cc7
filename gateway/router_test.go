package gateway

import (
	"strings"
	"testing"
)

type recordingPlugin struct {
	BasePlugin
	name       string
	preFilter  func(line *string) bool
	command    func(cmd, args string) bool
	sawLines   []string
	sawCmds    []string
}

func (p *recordingPlugin) Name() string { return p.name }

func (p *recordingPlugin) PreFilter(line *string) bool {
	p.sawLines = append(p.sawLines, *line)
	if p.preFilter != nil {
		return p.preFilter(line)
	}
	return false
}

func (p *recordingPlugin) HandleCommand(cmd, args string) bool {
	p.sawCmds = append(p.sawCmds, cmd)
	if p.command != nil {
		return p.command(cmd, args)
	}
	return false
}

func newTestRouter() (*Router, *Selector, *Directory, *[]string) {
	dir := NewDirectory()
	sel := NewSelector()
	notices := &[]string{}
	r := NewRouter(dir, sel, func(s string) { *notices = append(*notices, s) })
	r.SetOwnerNick("owner")
	return r, sel, dir, notices
}

func TestRouterIgnoresStrangers(t *testing.T) {
	r, _, _, notices := newTestRouter()
	dispatched := false
	r.Register("post", func(string) { dispatched = true })

	r.HandleLine("somebody_else", "post hello")
	if dispatched || len(*notices) != 0 {
		t.Error("lines from non-owner nicks must be ignored entirely")
	}
	r.HandleLine("OWNER", "post hello")
	if !dispatched {
		t.Error("owner nick match must be case-insensitive")
	}
}

func TestRouterSelectionInterception(t *testing.T) {
	r, sel, _, _ := newTestRouter()
	var picked uint64
	sel.Register("favorite", func(id uint64, _ map[string]string) { picked = id })
	sel.Open("favorite", []uint64{10, 20}, nil)

	r.HandleLine("owner", "2")
	if picked != 20 {
		t.Errorf("picked = %d, want 20", picked)
	}
	if sel.Active() {
		t.Error("selection should be consumed")
	}
}

func TestRouterAbandonedSelectionFallsThrough(t *testing.T) {
	r, sel, _, _ := newTestRouter()
	sel.Register("favorite", func(uint64, map[string]string) {})
	sel.Open("favorite", []uint64{10}, nil)

	dispatched := ""
	r.Register("post", func(args string) { dispatched = args })

	// Not a valid pick: selection is discarded and the same text continues
	// down the pipeline.
	r.HandleLine("owner", "post never mind")
	if sel.Active() {
		t.Error("unhandled input must abandon the selection")
	}
	if dispatched != "never mind" {
		t.Errorf("line should continue to command dispatch, got %q", dispatched)
	}
}

func TestRouterPluginPreFilterConsumes(t *testing.T) {
	r, _, _, _ := newTestRouter()
	first := &recordingPlugin{name: "first", preFilter: func(*string) bool { return true }}
	second := &recordingPlugin{name: "second"}
	r.AddPlugin(first)
	r.AddPlugin(second)
	r.Register("post", func(string) { t.Fatal("consumed line must not reach dispatch") })

	r.HandleLine("owner", "post hello")
	if len(second.sawLines) != 0 {
		t.Error("later plugins must not see a consumed line")
	}
}

func TestRouterPluginRewrite(t *testing.T) {
	r, _, _, _ := newTestRouter()
	rw := &recordingPlugin{name: "rw", preFilter: func(line *string) bool {
		*line = strings.Replace(*line, "psot", "post", 1)
		return false
	}}
	r.AddPlugin(rw)
	got := ""
	r.Register("post", func(args string) { got = args })

	r.HandleLine("owner", "psot fixed typo")
	if got != "fixed typo" {
		t.Errorf("rewritten line should dispatch, got %q", got)
	}
}

func TestRouterNickPrefixRewrite(t *testing.T) {
	r, _, dir, _ := newTestRouter()
	dir.Add(&UserProfile{ID: 1, Nick: "Alice"})
	got := ""
	r.Register("post", func(args string) { got = args })

	r.HandleLine("owner", "alice: hello there")
	if got != "@Alice hello there" {
		t.Errorf("args = %q, want %q", got, "@Alice hello there")
	}

	got = ""
	r.HandleLine("owner", "stranger: hello")
	if got != "" {
		t.Error("unknown nick prefix must not rewrite")
	}
}

func TestRouterNotACommand(t *testing.T) {
	r, _, _, notices := newTestRouter()
	r.HandleLine("owner", "?? what")
	if len(*notices) != 1 || !strings.Contains((*notices)[0], "not a command") {
		t.Errorf("notices = %v, want a not-a-command notice", *notices)
	}
}

func TestRouterPluginCommandClaim(t *testing.T) {
	r, _, _, _ := newTestRouter()
	claimer := &recordingPlugin{name: "claimer", command: func(cmd, _ string) bool { return cmd == "weather" }}
	r.AddPlugin(claimer)
	r.Register("weather", func(string) { t.Fatal("plugin claim must shadow built-in") })

	r.HandleLine("owner", "weather london")
	if len(claimer.sawCmds) != 1 {
		t.Errorf("plugin saw %v", claimer.sawCmds)
	}
}

func TestRouterUnrecognizedCommand(t *testing.T) {
	r, _, _, notices := newTestRouter()
	r.HandleLine("owner", "frobnicate now")
	if len(*notices) != 1 || !strings.Contains((*notices)[0], "unrecognized") {
		t.Errorf("notices = %v", *notices)
	}
}

func TestRouterCommandsOrder(t *testing.T) {
	r, _, _, _ := newTestRouter()
	for _, c := range []string{"post", "follow", "help"} {
		r.Register(c, func(string) {})
	}
	got := r.Commands()
	if len(got) != 3 || got[0] != "post" || got[2] != "help" {
		t.Errorf("Commands() = %v", got)
	}
}
