package access

import (
	"net"
	"sync"
	"time"
)

// ShortBanKind is the sub-kind of an in-memory short ban (spec §4.5).
type ShortBanKind int

const (
	ShortBanPassword ShortBanKind = iota
	ShortBanReconnect
	ShortBanFlood
	ShortBanClone
)

type shortBan struct {
	until  time.Time
	reason string
	kind   ShortBanKind
}

// ShortBans holds in-memory, short-lived bans keyed by nick-hash and by
// 32-bit IP, independent of the durable SQLite banlist. Swept on each
// scheduler slow-tick (spec §4.5: "Expired entries are swept each tick").
type ShortBans struct {
	mu      sync.Mutex
	byNick  map[string]shortBan
	byIPKey map[uint32]shortBan
}

// NewShortBans returns an empty short-ban table.
func NewShortBans() *ShortBans {
	return &ShortBans{
		byNick:  make(map[string]shortBan),
		byIPKey: make(map[uint32]shortBan),
	}
}

// BanNick adds/overwrites a nick-keyed short ban.
func (s *ShortBans) BanNick(nick string, kind ShortBanKind, reason string, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byNick[lowerKey(nick)] = shortBan{until: until, reason: reason, kind: kind}
}

// BanIP adds/overwrites an IP-keyed short ban.
func (s *ShortBans) BanIP(ipv4 uint32, kind ShortBanKind, reason string, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byIPKey[ipv4] = shortBan{until: until, reason: reason, kind: kind}
}

// BanIPAddr is BanIP for callers outside this package that only hold a
// net.IP (e.g. the flood guard's sustained-abuse escalation, spec §4.6).
// Reports false for a non-IPv4 address, which this table can't key.
func (s *ShortBans) BanIPAddr(ip net.IP, kind ShortBanKind, reason string, until time.Time) bool {
	v, ok := ipToUint32(ip)
	if !ok {
		return false
	}
	s.BanIP(v, kind, reason, until)
	return true
}

// CheckIPAddr is CheckIP for callers that only hold a net.IP.
func (s *ShortBans) CheckIPAddr(ip net.IP, now time.Time) (reason string, kind ShortBanKind, banned bool) {
	v, ok := ipToUint32(ip)
	if !ok {
		return "", 0, false
	}
	return s.CheckIP(v, now)
}

// CheckNick reports whether nick is currently short-banned.
func (s *ShortBans) CheckNick(nick string, now time.Time) (reason string, kind ShortBanKind, banned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byNick[lowerKey(nick)]
	if !ok || now.After(b.until) {
		return "", 0, false
	}
	return b.reason, b.kind, true
}

// CheckIP reports whether ipv4 is currently short-banned.
func (s *ShortBans) CheckIP(ipv4 uint32, now time.Time) (reason string, kind ShortBanKind, banned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byIPKey[ipv4]
	if !ok || now.After(b.until) {
		return "", 0, false
	}
	return b.reason, b.kind, true
}

// Sweep removes every entry whose deadline has passed.
func (s *ShortBans) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, b := range s.byNick {
		if now.After(b.until) {
			delete(s.byNick, k)
		}
	}
	for k, b := range s.byIPKey {
		if now.After(b.until) {
			delete(s.byIPKey, k)
		}
	}
}

func lowerKey(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
