package access

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"kinobot/internal/transport"
	"kinobot/pkg/logx"
)

func TestNormalizeChannel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"@kino_uz", "@kino_uz"},
		{"kino_uz", "@kino_uz"},
		{"kino_uz,", "@kino_uz"},
		{"https://t.me/kino_uz", "@kino_uz"},
		{"https://t.me/kino_uz/", "@kino_uz"},
		{"t.me/kino_uz", "@kino_uz"},
		{"-1001234567890", "-1001234567890"},
		{"  ", ""},
		{",", ""},
	}
	for _, tc := range cases {
		got, err := NormalizeChannel(tc.in)
		if err != nil {
			t.Fatalf("NormalizeChannel(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeChannel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseChannelsRejectsWholeCommand(t *testing.T) {
	t.Parallel()

	_, err := ParseChannels([]string{"@good_one", "bad channel!"})
	var ce *ChannelError
	if !errors.As(err, &ce) {
		t.Fatalf("ParseChannels error = %v, want *ChannelError", err)
	}

	got, err := ParseChannels([]string{"@a_chan,@b_chan", "c_chan"})
	if err != nil {
		t.Fatalf("ParseChannels error = %v", err)
	}
	want := []string{"@a_chan", "@b_chan", "@c_chan"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseChannels = %v, want %v", got, want)
	}
}

func TestForceJoinAddIsIdempotent(t *testing.T) {
	t.Parallel()

	f := NewForceJoin(Config{})
	added, present := f.Add("@one")
	if !reflect.DeepEqual(added, []string{"@one"}) || len(present) != 0 {
		t.Fatalf("first Add = (%v, %v)", added, present)
	}
	added, present = f.Add("@one")
	if len(added) != 0 || !reflect.DeepEqual(present, []string{"@one"}) {
		t.Fatalf("second Add = (%v, %v), want already present", added, present)
	}
	snap := f.Snapshot()
	if !snap.Active || !reflect.DeepEqual(snap.Channels, []string{"@one"}) {
		t.Fatalf("Snapshot = %+v", snap)
	}
}

func TestForceJoinRemoveDeactivatesWhenEmpty(t *testing.T) {
	t.Parallel()

	f := NewForceJoin(Config{Active: true, Channels: []string{"@a", "@b", "@a"}})
	if got := f.Snapshot().Channels; !reflect.DeepEqual(got, []string{"@a", "@b"}) {
		t.Fatalf("restored channels = %v", got)
	}

	removed, notFound := f.Remove("@a", "@zz")
	if !reflect.DeepEqual(removed, []string{"@a"}) || !reflect.DeepEqual(notFound, []string{"@zz"}) {
		t.Fatalf("Remove = (%v, %v)", removed, notFound)
	}
	if !f.Snapshot().Active {
		t.Fatalf("policy should stay active with channels left")
	}

	f.Remove("@b")
	if snap := f.Snapshot(); snap.Active || len(snap.Channels) != 0 {
		t.Fatalf("Snapshot after removing all = %+v, want inactive and empty", snap)
	}

	f.Add("@c")
	f.Clear()
	if snap := f.Snapshot(); snap.Active || len(snap.Channels) != 0 {
		t.Fatalf("Snapshot after Clear = %+v", snap)
	}
}

func TestNewForceJoinEmptyIsInactive(t *testing.T) {
	t.Parallel()

	if NewForceJoin(Config{Active: true}).Snapshot().Active {
		t.Fatalf("empty policy must not be active")
	}
}

type fakeOracle struct {
	status map[string]transport.MemberStatus
	err    map[string]error
	calls  int
}

func (o *fakeOracle) ChatMember(ctx context.Context, channel string, userID int64) (transport.MemberStatus, error) {
	o.calls++
	if err := o.err[channel]; err != nil {
		return "", err
	}
	return o.status[channel], nil
}

func TestGateAllowsWhenNotEnforced(t *testing.T) {
	t.Parallel()

	o := &fakeOracle{err: map[string]error{"@a": errors.New("down")}}
	g := NewGate(o, logx.Nop())
	for _, cfg := range []Config{
		{Active: false, Channels: []string{"@a"}},
		{Active: true},
	} {
		if d := g.Check(context.Background(), 1, cfg); !d.Allowed {
			t.Fatalf("Check(%+v) = %+v, want allowed", cfg, d)
		}
	}
	if o.calls != 0 {
		t.Fatalf("oracle calls = %d, want 0", o.calls)
	}
}

func TestGateFailsClosed(t *testing.T) {
	t.Parallel()

	o := &fakeOracle{
		status: map[string]transport.MemberStatus{
			"@member": transport.MemberMember,
			"@admin":  transport.MemberAdministrator,
			"@owner":  transport.MemberCreator,
			"@left":   transport.MemberLeft,
		},
		err: map[string]error{"@broken": errors.New("chat not found")},
	}
	g := NewGate(o, logx.Nop())
	cfg := Config{Active: true, Channels: []string{"@member", "@left", "@admin", "@broken", "@owner"}}

	d := g.Check(context.Background(), 42, cfg)
	if d.Allowed {
		t.Fatalf("Check allowed, want blocked")
	}
	if want := []string{"@left", "@broken"}; !reflect.DeepEqual(d.Missing, want) {
		t.Fatalf("Missing = %v, want %v", d.Missing, want)
	}

	d = g.Check(context.Background(), 42, Config{Active: true, Channels: []string{"@member", "@owner"}})
	if !d.Allowed || len(d.Missing) != 0 {
		t.Fatalf("Check = %+v, want allowed", d)
	}
}
