package directory

import (
	"errors"
	"net"
	"testing"
)

type fakeSender struct {
	sent   [][]byte
	zpipe  bool
	failOn error
}

func (f *fakeSender) Send(frame []byte, _ bool) error {
	if f.failOn != nil {
		return f.failOn
	}
	f.sent = append(f.sent, append([]byte(nil), frame...))
	return nil
}
func (f *fakeSender) SupportsZPipe() bool { return f.zpipe }

func newTestUser(nick string, class Class) (*User, *fakeSender) {
	s := &fakeSender{}
	return &User{Nick: nick, Class: class, Conn: s, IP: net.ParseIP("127.0.0.1"), InList: true}, s
}

func TestAddRemoveGetByNick(t *testing.T) {
	d := New(8)
	u, _ := newTestUser("Alice", ClassGuest)
	if !d.Add(u) {
		t.Fatal("expected Add to succeed")
	}
	if d.Add(u) {
		t.Fatal("expected duplicate Add to fail")
	}

	got, ok := d.GetByNick("alice") // case-insensitive
	if !ok || got != u {
		t.Fatalf("GetByNick case-insensitive lookup failed: ok=%v got=%v", ok, got)
	}

	if !d.Remove("ALICE") {
		t.Fatal("expected Remove to succeed")
	}
	if d.Remove("alice") {
		t.Fatal("expected second Remove to fail")
	}
	if _, ok := d.GetByNick("alice"); ok {
		t.Fatal("expected lookup to fail after removal")
	}
}

func TestCountAndSnapshot(t *testing.T) {
	d := New(4)
	names := []string{"a", "b", "c"}
	for _, n := range names {
		u, _ := newTestUser(n, ClassGuest)
		d.Add(u)
	}
	if d.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", d.Count())
	}
	if len(d.Snapshot()) != 3 {
		t.Fatalf("Snapshot len = %d, want 3", len(d.Snapshot()))
	}
}

func TestNickListContainsAllInListUsers(t *testing.T) {
	d := New(4)
	u1, _ := newTestUser("alice", ClassGuest)
	u2, _ := newTestUser("bob", ClassGuest)
	d.Add(u1)
	d.Add(u2)

	nl := string(d.NickList())
	if !contains(nl, "alice$$") || !contains(nl, "bob$$") {
		t.Errorf("NickList() = %q, missing expected entries", nl)
	}
}

func TestNickListExcludesNotInList(t *testing.T) {
	d := New(4)
	u1, _ := newTestUser("alice", ClassGuest)
	u1.InList = false
	d.Add(u1)

	nl := string(d.NickList())
	if contains(nl, "alice") {
		t.Errorf("NickList() should not include pending user: %q", nl)
	}
}

func TestSendToAllRespectsClassRange(t *testing.T) {
	d := New(4)
	guest, guestSender := newTestUser("guest", ClassGuest)
	op, opSender := newTestUser("op", ClassOperator)
	d.Add(guest)
	d.Add(op)

	d.SendToAllInRange([]byte("opchat only"), true, ClassRange{Min: ClassOperator, Max: ClassMaster})

	if len(guestSender.sent) != 0 {
		t.Errorf("guest should not have received opchat broadcast")
	}
	if len(opSender.sent) != 1 {
		t.Errorf("op should have received exactly one frame, got %d", len(opSender.sent))
	}
}

func TestSendToAllSkipsBots(t *testing.T) {
	d := New(4)
	bot := &User{Nick: "hubbot", Class: ClassAdmin, Conn: nil, InList: true}
	d.Add(bot)
	// Should not panic on nil Conn.
	d.SendToAll([]byte("hello"), true)
}

func TestOperatorsSubsetOfDirectory(t *testing.T) {
	d := New(4)
	guest, _ := newTestUser("guest", ClassGuest)
	op, _ := newTestUser("op", ClassOperator)
	d.Add(guest)
	d.Add(op)

	ops := d.Operators()
	if len(ops) != 1 || ops[0].Nick != "op" {
		t.Fatalf("Operators() = %v, want [op]", ops)
	}
}

func TestActivePassivePartition(t *testing.T) {
	d := New(4)
	a, _ := newTestUser("act", ClassGuest)
	p, _ := newTestUser("pas", ClassGuest)
	p.Passive = true
	d.Add(a)
	d.Add(p)

	active := d.Active()
	passive := d.Passive()
	if len(active) != 1 || active[0].Nick != "act" {
		t.Fatalf("Active() = %v", active)
	}
	if len(passive) != 1 || passive[0].Nick != "pas" {
		t.Fatalf("Passive() = %v", passive)
	}
}

func TestSendZOnFallsBackBelowThreshold(t *testing.T) {
	d := New(4)
	u, sender := newTestUser("alice", ClassGuest)
	sender.zpipe = true
	d.Add(u)

	d.SendZOn([]byte("small payload"), true)
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(sender.sent))
	}
	if string(sender.sent[0]) != "small payload" {
		t.Errorf("expected raw payload below threshold, got %q", sender.sent[0])
	}
}

func TestSendZOnCompressesAboveThresholdForZPipeClients(t *testing.T) {
	d := New(4)
	zUser, zSender := newTestUser("zp", ClassGuest)
	zSender.zpipe = true
	plain, plainSender := newTestUser("pl", ClassGuest)
	d.Add(zUser)
	d.Add(plain)

	big := make([]byte, zpipeThreshold+100)
	for i := range big {
		big[i] = byte('a' + i%26)
	}

	d.SendZOn(big, true)

	if len(zSender.sent) != 1 || !hasPrefix(zSender.sent[0], "$ZOn|") {
		t.Errorf("ZPipe client should receive $ZOn envelope, got %q", zSender.sent)
	}
	if len(plainSender.sent) != 1 || string(plainSender.sent[0]) != string(big) {
		t.Errorf("non-ZPipe client should receive raw payload")
	}
}

func TestSendErrorsAreIsolatedPerRecipient(t *testing.T) {
	d := New(4)
	ok, _ := newTestUser("ok", ClassGuest)
	bad, badSender := newTestUser("bad", ClassGuest)
	badSender.failOn = errors.New("write failed")
	d.Add(ok)
	d.Add(bad)

	// Must not panic even though one recipient's Send errors.
	d.SendToAll([]byte("hi"), true)
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func hasPrefix(b []byte, prefix string) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == prefix
}
