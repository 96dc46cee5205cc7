package chat

import (
	"testing"
)

func newTestRelay() (*Relay, *[]string) {
	r := NewRelay(Config{Nick: "twirc", OAuthToken: "oauth:x", Channel: "#twitter"})
	var sent []string
	r.send = func(channel, text string) {
		sent = append(sent, channel+"|"+text)
	}
	return r, &sent
}

func TestParticipantTracking(t *testing.T) {
	r, _ := newTestRelay()

	r.AddParticipant("Alice", "Alice L")
	r.AddParticipant("bob", "Bob")
	r.ChangeMode("ALICE", true)

	got := r.Participants()
	if len(got) != 2 {
		t.Fatalf("participants = %v", got)
	}
	if got[0].Nick != "Alice" || !got[0].Voiced {
		t.Errorf("got[0] = %+v, want voiced Alice", got[0])
	}
	if got[1].Nick != "bob" || got[1].Voiced {
		t.Errorf("got[1] = %+v, want unvoiced bob", got[1])
	}

	r.RemoveParticipant("alice")
	if len(r.Participants()) != 1 {
		t.Errorf("participants after remove = %v", r.Participants())
	}
}

func TestSendMessageTargets(t *testing.T) {
	r, sent := newTestRelay()

	r.SendMessage("#twitter", "hello")
	r.SendMessage("alice", "psst")
	r.SendNotice("#twitter", "heads up")

	want := []string{
		"twitter|hello",
		"twitter|alice: psst",
		"twitter|-!- heads up",
	}
	if len(*sent) != len(want) {
		t.Fatalf("sent = %v", *sent)
	}
	for i := range want {
		if (*sent)[i] != want[i] {
			t.Errorf("sent[%d] = %q, want %q", i, (*sent)[i], want[i])
		}
	}
}

func TestChangeModeUnknownNickIsNoop(t *testing.T) {
	r, _ := newTestRelay()

	r.ChangeMode("ghost", true)

	if len(r.Participants()) != 0 {
		t.Errorf("participants = %v, want none", r.Participants())
	}
}
