package protocol

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrTagMissing is returned when a MyINFO description carries no <tag> at
// all (spec §4.7: close with TAG_NONE).
var ErrTagMissing = errors.New("protocol: myinfo tag missing")

// ErrTagInvalid is returned when a <tag> is present but does not match the
// fixed grammar (spec §4.7: close with TAG_INVALID).
var ErrTagInvalid = errors.New("protocol: myinfo tag invalid")

// tagPattern matches "<ClientID V:version,M:mode,H:a/b/c,S:slots[,rest]>".
// Kept on stdlib regexp: none of the pack's dependencies (echo, sqlite,
// go-humanize, uuid, strftime, x/time, x/text) provide a PCRE-style
// matcher, and the teacher repo never parses a tag grammar of its own — see
// DESIGN.md for the stdlib justification.
var tagPattern = regexp.MustCompile(`^<([^ <>]+) V:([0-9]+(?:\.[0-9]+)?),M:([AP5]),H:([0-9]+)/([0-9]+)/([0-9]+),S:([0-9]+)(?:,(.+))?>$`)

// Tag is the parsed <tag> suffix of a MyINFO description.
type Tag struct {
	ClientID string
	Version  string
	Mode     byte // 'A' active, 'P' passive, '5' socks
	HubsReg  int
	HubsOp   int
	HubsOth  int
	Slots    int

	// Upload limiter, at most one of these is set (raw, unnormalised —
	// handlers convert using the conn_types table's min_limit policy).
	LimitKbps     float64 // L: / B:
	LimitFracNum  int     // F:num
	LimitFracSlot int     // F:den (per-slot denominator)
	HasLimit      bool
	HasFracLimit  bool
}

// ParseTag extracts and validates a MyINFO <tag>. raw is the full desc+tag
// span (the protocol.Message "INFO" chunk); ParseTag locates the trailing
// "<...>" itself so callers don't need to re-split.
func ParseTag(raw []byte) (Tag, error) {
	s := string(raw)
	open := strings.LastIndexByte(s, '<')
	if open < 0 || !strings.HasSuffix(s, ">") {
		return Tag{}, ErrTagMissing
	}
	tagStr := s[open:]

	m := tagPattern.FindStringSubmatch(tagStr)
	if m == nil {
		return Tag{}, ErrTagInvalid
	}

	t := Tag{
		ClientID: m[1],
		Version:  m[2],
		Mode:     m[3][0],
	}
	var err error
	if t.HubsReg, err = strconv.Atoi(m[4]); err != nil {
		return Tag{}, ErrTagInvalid
	}
	if t.HubsOp, err = strconv.Atoi(m[5]); err != nil {
		return Tag{}, ErrTagInvalid
	}
	if t.HubsOth, err = strconv.Atoi(m[6]); err != nil {
		return Tag{}, ErrTagInvalid
	}
	if t.Slots, err = strconv.Atoi(m[7]); err != nil {
		return Tag{}, ErrTagInvalid
	}

	if rest := m[8]; rest != "" {
		for _, field := range strings.Split(rest, ",") {
			switch {
			case strings.HasPrefix(field, "L:"):
				if v, err := strconv.ParseFloat(field[2:], 64); err == nil {
					t.LimitKbps, t.HasLimit = v, true
				}
			case strings.HasPrefix(field, "B:"):
				if v, err := strconv.ParseFloat(field[2:], 64); err == nil {
					t.LimitKbps, t.HasLimit = v, true
				}
			case strings.HasPrefix(field, "F:"):
				parts := strings.SplitN(field[2:], "/", 2)
				if len(parts) == 2 {
					num, err1 := strconv.Atoi(parts[0])
					den, err2 := strconv.Atoi(parts[1])
					if err1 == nil && err2 == nil && den > 0 {
						t.LimitFracNum, t.LimitFracSlot, t.HasFracLimit = num, den, true
					}
				}
			}
		}
	}

	return t, nil
}

// HubCountPolicy selects how HubTotal sums the three hub counters: "reg" counts
// registered users, "op" counts operators, "other" counts everyone else
// (anonymous/guest hub listings). Policy selects which subset contributes
// to the configured hub-count ceiling (spec §4.7 "configured summation
// policy").
type HubCountPolicy int

const (
	HubCountAll HubCountPolicy = iota
	HubCountRegOnly
	HubCountRegAndOp
)

// HubTotal applies policy to t's three hub counters.
func (t Tag) HubTotal(policy HubCountPolicy) int {
	switch policy {
	case HubCountRegOnly:
		return t.HubsReg
	case HubCountRegAndOp:
		return t.HubsReg + t.HubsOp
	default:
		return t.HubsReg + t.HubsOp + t.HubsOth
	}
}

// PerSlotLimitKbps normalises L:/B:/F: into a per-slot kbps figure so
// handlers can compare against conn_types.tag_min_ls_ratio uniformly.
func (t Tag) PerSlotLimitKbps() (kbps float64, ok bool) {
	if t.HasLimit {
		if t.Slots <= 0 {
			return 0, false
		}
		return t.LimitKbps / float64(t.Slots), true
	}
	if t.HasFracLimit && t.LimitFracSlot > 0 {
		return float64(t.LimitFracNum) / float64(t.LimitFracSlot), true
	}
	return 0, false
}
