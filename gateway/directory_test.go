package gateway

import (
	"testing"
	"time"
)

func TestDirectoryAddRemove(t *testing.T) {
	d := NewDirectory()
	p := &UserProfile{ID: 42, Nick: "Alice", Name: "Alice A.", FetchedAt: time.Now()}
	d.Add(p)

	if got := d.FindByNick("alice"); got != p {
		t.Errorf("FindByNick(alice) = %v, want same instance", got)
	}
	if got := d.FindByNick("ALICE"); got != p {
		t.Errorf("nick lookup should be case-insensitive")
	}
	if got := d.FindByID(42); got != p {
		t.Errorf("FindByID(42) = %v, want same instance", got)
	}
	if d.Len() != 1 {
		t.Errorf("Len = %d, want 1", d.Len())
	}

	d.Remove(p)
	if d.FindByNick("alice") != nil || d.FindByID(42) != nil {
		t.Error("both lookups should be absent after Remove")
	}
	if d.Len() != 0 {
		t.Errorf("Len = %d, want 0", d.Len())
	}
}

func TestDirectoryReplaceOnNickChange(t *testing.T) {
	d := NewDirectory()
	d.Add(&UserProfile{ID: 7, Nick: "oldnick"})
	renamed := &UserProfile{ID: 7, Nick: "newnick"}
	d.Add(renamed)

	if d.FindByNick("oldnick") != nil {
		t.Error("stale nick mapping left behind after re-add with new nick")
	}
	if got := d.FindByNick("newnick"); got != renamed {
		t.Errorf("FindByNick(newnick) = %v, want renamed profile", got)
	}
	if d.Len() != 1 {
		t.Errorf("Len = %d, want 1", d.Len())
	}
}

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int // sign only
	}{
		{"longer is larger", "100", "99", 1},
		{"padding equality", "00099", "99", 0},
		{"equal", "123", "123", 0},
		{"smaller", "99", "100", -1},
		{"full width", "18446744073709551615", "9", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompareIDs(tt.a, tt.b)
			switch {
			case tt.want > 0 && got <= 0,
				tt.want < 0 && got >= 0,
				tt.want == 0 && got != 0:
				t.Errorf("CompareIDs(%q, %q) = %d, want sign %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
