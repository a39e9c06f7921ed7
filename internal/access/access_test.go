package access

import (
	"net"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"vlhub/hub/internal/directory"
)

func rateLimiterAlwaysDeny() *rate.Limiter {
	return rate.NewLimiter(0, 0)
}

func TestMatchNickBan(t *testing.T) {
	bans := []*Ban{NewNickBan("baduser", "spam", "op1", time.Time{})}
	c := Candidate{Nick: "BadUser", IP: net.ParseIP("1.2.3.4")}
	got := Match(bans, c, time.Now())
	if got == nil {
		t.Fatal("expected a match")
	}
	if got.Reason != "spam" {
		t.Errorf("Reason = %q, want spam", got.Reason)
	}
}

func TestMatchIPBanExactAddress(t *testing.T) {
	bans := []*Ban{NewIPBan(net.ParseIP("5.6.7.8"), "abuse", "op1", time.Time{})}
	c := Candidate{Nick: "whoever", IP: net.ParseIP("5.6.7.8")}
	if Match(bans, c, time.Now()) == nil {
		t.Fatal("expected IP match")
	}
	c2 := Candidate{Nick: "whoever", IP: net.ParseIP("9.9.9.9")}
	if Match(bans, c2, time.Now()) != nil {
		t.Fatal("expected no match for different IP")
	}
}

func TestMatchRangeBan(t *testing.T) {
	bans := []*Ban{NewRangeBan(net.ParseIP("10.0.0.0"), net.ParseIP("10.0.0.255"), "netban", "op1", time.Time{})}
	in := Candidate{IP: net.ParseIP("10.0.0.42")}
	out := Candidate{IP: net.ParseIP("10.0.1.42")}
	if Match(bans, in, time.Now()) == nil {
		t.Error("expected range match for in-range address")
	}
	if Match(bans, out, time.Now()) != nil {
		t.Error("expected no match for out-of-range address")
	}
}

func TestMatchSkipsExpired(t *testing.T) {
	b := NewNickBan("gone", "old", "op1", time.Now().Add(-time.Hour))
	c := Candidate{Nick: "gone"}
	if Match([]*Ban{b}, c, time.Now()) != nil {
		t.Error("expected expired ban to be skipped")
	}
}

func TestMatchPicksLatestDateLimit(t *testing.T) {
	earlier := &Ban{Kind: MatchNick, Nick: "x", Reason: "first", DateLimit: time.Now().Add(time.Hour).Unix()}
	later := &Ban{Kind: MatchNick, Nick: "x", Reason: "second", DateLimit: time.Now().Add(2 * time.Hour).Unix()}
	got := Match([]*Ban{earlier, later}, Candidate{Nick: "x"}, time.Now())
	if got == nil || got.Reason != "second" {
		t.Fatalf("expected the row with the latest DateLimit to win, got %+v", got)
	}
}

func TestMatchBumpsLastHit(t *testing.T) {
	b := NewNickBan("x", "r", "op1", time.Time{})
	if b.LastHit != 0 {
		t.Fatal("precondition: LastHit should start zero")
	}
	now := time.Now()
	Match([]*Ban{b}, Candidate{Nick: "x"}, now)
	if b.LastHit != now.Unix() {
		t.Errorf("LastHit = %d, want %d", b.LastHit, now.Unix())
	}
}

func TestShortBansNickAndIP(t *testing.T) {
	sb := NewShortBans()
	now := time.Now()
	sb.BanNick("spammer", ShortBanFlood, "flooding", now.Add(time.Minute))
	if _, _, ok := sb.CheckNick("SPAMMER", now); !ok {
		t.Error("expected case-insensitive nick ban hit")
	}
	if _, _, ok := sb.CheckNick("innocent", now); ok {
		t.Error("expected no hit for unrelated nick")
	}

	sb.BanIP(0x01020304, ShortBanClone, "cloning", now.Add(time.Minute))
	if _, _, ok := sb.CheckIP(0x01020304, now); !ok {
		t.Error("expected IP ban hit")
	}
}

func TestShortBansSweepRemovesExpired(t *testing.T) {
	sb := NewShortBans()
	past := time.Now().Add(-time.Minute)
	sb.BanNick("gone", ShortBanReconnect, "left", past)
	sb.Sweep(time.Now())
	if _, _, ok := sb.CheckNick("gone", time.Now()); ok {
		t.Error("expected swept ban to no longer hit (redundant with expiry check, but Sweep should have removed it)")
	}
	sb.mu.Lock()
	_, stillPresent := sb.byNick["gone"]
	sb.mu.Unlock()
	if stillPresent {
		t.Error("expected Sweep to delete the expired row from the map")
	}
}

func TestPenaltyRowRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	r := directory.Rights{Chat: now.Add(time.Hour), Kick: now.Add(2 * time.Hour)}
	row := FromRights("nick1", "op1", r)
	got := row.ToRights()
	if !got.Chat.Equal(r.Chat) {
		t.Errorf("Chat = %v, want %v", got.Chat, r.Chat)
	}
	if !got.Kick.Equal(r.Kick) {
		t.Errorf("Kick = %v, want %v", got.Kick, r.Kick)
	}
	if !got.Search.IsZero() {
		t.Errorf("Search should round-trip as zero, got %v", got.Search)
	}
}

func TestGuardAllowsUnderThreshold(t *testing.T) {
	g := NewGuard(map[FloodKind]Policy{
		FloodChat: {Threshold: 5, Window: time.Second, LockoutCool: time.Second},
	})
	now := time.Now()
	for i := 0; i < 5; i++ {
		if v := g.Allow("alice", FloodChat, now); v == VerdictBlock {
			t.Fatalf("unexpected block on attempt %d", i)
		}
	}
}

func TestGuardBlocksOverPerUserThreshold(t *testing.T) {
	g := NewGuard(map[FloodKind]Policy{
		FloodChat: {Threshold: 2, Window: time.Second, LockoutCool: time.Second},
	})
	now := time.Now()
	g.Allow("alice", FloodChat, now)
	g.Allow("alice", FloodChat, now)
	if v := g.Allow("alice", FloodChat, now); v != VerdictBlock {
		t.Errorf("expected VerdictBlock on 3rd rapid message, got %v", v)
	}
}

func TestGuardResetUserClearsState(t *testing.T) {
	g := NewGuard(map[FloodKind]Policy{
		FloodChat: {Threshold: 1, Window: time.Second, LockoutCool: time.Second},
	})
	now := time.Now()
	g.Allow("alice", FloodChat, now)
	g.Allow("alice", FloodChat, now) // exhausts the bucket
	g.ResetUser("alice")
	g.mu.Lock()
	_, stillTracked := g.perUser["alice"]
	g.mu.Unlock()
	if stillTracked {
		t.Error("expected ResetUser to drop per-user limiter state")
	}
}

func TestGuardHubWideLockBlocksAllUsers(t *testing.T) {
	g := NewGuard(map[FloodKind]Policy{
		FloodSearch: {Threshold: 100, Window: time.Second, LockoutCool: time.Minute},
	})
	g.hubWide[FloodSearch] = rateLimiterAlwaysDeny()
	now := time.Now()
	if v := g.Allow("alice", FloodSearch, now); v != VerdictBlock {
		t.Fatalf("expected hub-wide exhaustion to block, got %v", v)
	}
	if !g.Locked(FloodSearch, now) {
		t.Error("expected hub to be marked proto-flood-locked")
	}
	if v := g.Allow("bob", FloodSearch, now); v != VerdictBlock {
		t.Error("expected lock to also block a different user")
	}
}

func TestCloneDetection(t *testing.T) {
	ct := NewCloneTable()
	ct.Register("alice", "Using DC++ v0.868 on Windows 11 workstation")
	nick, isClone := ct.Check("Using DC++ v0.868 on Windows 11 workstation")
	if !isClone || nick != "alice" {
		t.Fatalf("expected clone match against alice, got nick=%q isClone=%v", nick, isClone)
	}
	if _, isClone := ct.Check("Completely different description text"); isClone {
		t.Error("expected no clone match for unrelated description")
	}
}

func TestCloneDetectionIgnoresBlankDescriptions(t *testing.T) {
	ct := NewCloneTable()
	ct.Register("bot1", "")
	ct.Register("bot2", "")
	if _, isClone := ct.Check(""); isClone {
		t.Error("blank descriptions must never fingerprint as clones")
	}
}

func TestCloneTableForget(t *testing.T) {
	ct := NewCloneTable()
	ct.Register("alice", "same desc text here for match")
	ct.Forget("alice")
	if _, isClone := ct.Check("same desc text here for match"); isClone {
		t.Error("expected Forget to remove the fingerprint")
	}
}
