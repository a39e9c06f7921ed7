// Package access implements the ban/penalty engine (spec §4.5) and the
// flood/clone guard (spec §4.6).
//
// Ban matcher semantics are grounded directly on
// original_source/src/cbanlist.cpp's AddTestCondition/eBF_* matcher kinds;
// storage is generalized from the teacher's room.go ban callbacks
// (SetOnBan/SetOnUnban, wired to SQLite via internal/store) into a
// dedicated in-memory matcher plus a persistence port so access doesn't
// import database/sql directly.
package access

import (
	"encoding/binary"
	"net"
	"strconv"
	"strings"
	"time"
)

// MatcherKind is one of the ten ban row shapes spec §4.5 defines.
type MatcherKind int

const (
	MatchNick MatcherKind = iota
	MatchIP
	MatchNickIP
	MatchRange
	MatchHost1
	MatchHost2
	MatchHost3
	MatchHostR1
	MatchShare
	MatchPrefix
)

// sentinel nick/ip values used by MatchIP/MatchNick/MatchRange/MatchHostN/
// MatchShare/MatchPrefix rows to indicate "this column isn't meaningful
// for this row" (cbanlist.cpp's ip/nick sentinel convention).
const (
	sentinelIPBan     = "_ipban_"
	sentinelNickBan   = "_nickban_"
	sentinelRangeBan  = "_rangeban_"
	sentinelHostNBan  = "_hostNban_"
	sentinelShareBan  = "_shareban_"
	sentinelPrefixBan = "_prefixban_"
)

// Ban is one row of the persistent banlist table (spec §6.3).
type Ban struct {
	IP        string
	Nick      string
	Kind      MatcherKind
	Host      string
	RangeFrom uint32
	RangeTo   uint32
	DateStart int64
	DateLimit int64 // 0 means permanent
	LastHit   int64
	OpNick    string
	Reason    string
	NoteOp    string
	NoteUsr   string
	ShareSize string
}

// Candidate is the connection-side information a ban lookup is performed
// against.
type Candidate struct {
	Nick  string
	IP    net.IP
	Host  string // reverse-resolved hostname, if available
	Share int64
}

// Match scans bans for the best (latest date_limit) row whose matcher kind
// is satisfiable against c and whose criteria actually match. Rows with a
// non-zero expired DateLimit are skipped (spec §8: "when now > date_limit,
// either the row is deleted or its subsequent match attempts skip it" —
// this package takes the "skip" branch; Sweep below takes "deleted").
func Match(bans []*Ban, c Candidate, now time.Time) *Ban {
	var best *Ban
	for _, b := range bans {
		if b.DateLimit != 0 && now.Unix() > b.DateLimit {
			continue
		}
		if !matches(b, c) {
			continue
		}
		if best == nil || b.DateLimit > best.DateLimit {
			best = b
		}
	}
	if best != nil {
		best.LastHit = now.Unix()
	}
	return best
}

func matches(b *Ban, c Candidate) bool {
	switch b.Kind {
	case MatchNick:
		return strings.EqualFold(b.Nick, c.Nick)
	case MatchIP:
		return c.IP != nil && b.IP == c.IP.String()
	case MatchNickIP:
		return strings.EqualFold(b.Nick, c.Nick) || (c.IP != nil && b.IP == c.IP.String())
	case MatchRange:
		if c.IP == nil {
			return false
		}
		v, ok := ipToUint32(c.IP)
		return ok && v >= b.RangeFrom && v <= b.RangeTo
	case MatchHost1:
		return hostSuffixMatches(c.Host, b.Nick, 1)
	case MatchHost2:
		return hostSuffixMatches(c.Host, b.Nick, 2)
	case MatchHost3:
		return hostSuffixMatches(c.Host, b.Nick, 3)
	case MatchHostR1:
		return hostPrefixLabelMatches(c.Host, b.Nick)
	case MatchShare:
		return b.Nick == strconv.FormatInt(c.Share, 10)
	case MatchPrefix:
		return strings.HasPrefix(strings.ToLower(c.Nick), strings.ToLower(b.IP))
	default:
		return false
	}
}

// hostSuffixMatches checks whether host ends with the last n dot-separated
// labels of suffix (e.g. suffix=".example.com", n=2 against "a.example.com").
func hostSuffixMatches(host, suffix string, n int) bool {
	if host == "" || suffix == "" {
		return false
	}
	labels := strings.Split(suffix, ".")
	if len(labels) < n {
		return false
	}
	want := strings.Join(labels[len(labels)-n:], ".")
	return strings.HasSuffix(strings.ToLower(host), strings.ToLower(want))
}

// hostPrefixLabelMatches checks whether host's leading label equals prefix.
func hostPrefixLabelMatches(host, prefix string) bool {
	if host == "" {
		return false
	}
	labels := strings.Split(host, ".")
	return strings.EqualFold(labels[0], prefix)
}

func ipToUint32(ip net.IP) (uint32, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return 0, false
	}
	return binary.BigEndian.Uint32(v4), true
}

// NewNickBan constructs a MatchNick row. The row's IP column isn't
// meaningful for a nick-only ban, so it carries the nick-ban sentinel
// (spec §4.5/§6.3's storage contract: an IP-less row is marked
// "_nickban_" in the IP column, not the other way around).
func NewNickBan(nick, reason, op string, until time.Time) *Ban {
	return &Ban{Kind: MatchNick, Nick: nick, IP: sentinelNickBan, Reason: reason, OpNick: op, DateLimit: untilUnix(until)}
}

// NewIPBan constructs a MatchIP row. The row's Nick column isn't
// meaningful for an IP-only ban, so it carries the IP-ban sentinel.
func NewIPBan(ip net.IP, reason, op string, until time.Time) *Ban {
	return &Ban{Kind: MatchIP, IP: ip.String(), Nick: sentinelIPBan, Reason: reason, OpNick: op, DateLimit: untilUnix(until)}
}

// NewRangeBan constructs a MatchRange row.
func NewRangeBan(from, to net.IP, reason, op string, until time.Time) *Ban {
	fv, _ := ipToUint32(from)
	tv, _ := ipToUint32(to)
	return &Ban{Kind: MatchRange, Nick: sentinelRangeBan, RangeFrom: fv, RangeTo: tv, Reason: reason, OpNick: op, DateLimit: untilUnix(until)}
}

func untilUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
