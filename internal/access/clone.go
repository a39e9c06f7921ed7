package access

import (
	"crypto/sha1"
	"encoding/hex"
	"sync"
)

// descFragmentLen is the number of leading bytes of a MyINFO description
// hashed for clone comparison. Short enough to tolerate minor description
// edits between a bot's reconnects, long enough to avoid false positives
// between unrelated users with short descriptions.
const descFragmentLen = 24

// DescFingerprint hashes the leading descFragmentLen bytes of a MyINFO
// description string (spec §4.6: "fragments of the MyINFO description
// string... are hashed"). Descriptions shorter than the fragment length are
// hashed whole; an empty description never fingerprints (returns "").
func DescFingerprint(desc string) string {
	if desc == "" {
		return ""
	}
	frag := desc
	if len(frag) > descFragmentLen {
		frag = frag[:descFragmentLen]
	}
	sum := sha1.Sum([]byte(frag))
	return hex.EncodeToString(sum[:])
}

// CloneTable tracks the description fingerprint of every currently online
// user, keyed by lower-cased nick, so a login handler can ask "does any
// other online user already carry this fingerprint". One instance is
// shared across every per-connection goroutine (via Hub.Clones), so its
// maps need the same mutex discipline as Directory/Guard/ShortBans.
type CloneTable struct {
	mu     sync.Mutex
	byNick map[string]string // lower nick -> fingerprint
	byFP   map[string]string // fingerprint -> lower nick holding it
}

// NewCloneTable returns an empty table.
func NewCloneTable() *CloneTable {
	return &CloneTable{byNick: make(map[string]string), byFP: make(map[string]string)}
}

// Check reports the nick of an already-online user whose description
// fingerprint matches desc's, if any. An empty fingerprint (blank
// description) never matches, so bots with no description never trip
// clone detection against each other.
func (c *CloneTable) Check(desc string) (matchedNick string, isClone bool) {
	fp := DescFingerprint(desc)
	if fp == "" {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	nick, ok := c.byFP[fp]
	return nick, ok
}

// Register records nick's fingerprint as online, overwriting any previous
// fingerprint nick held (e.g. after a MyINFO update).
func (c *CloneTable) Register(nick, desc string) {
	low := lowerKey(nick)
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.byNick[low]; ok {
		delete(c.byFP, old)
	}
	fp := DescFingerprint(desc)
	c.byNick[low] = fp
	if fp != "" {
		c.byFP[fp] = low
	}
}

// Forget drops nick's fingerprint, called on disconnect.
func (c *CloneTable) Forget(nick string) {
	low := lowerKey(nick)
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.byNick[low]; ok {
		delete(c.byFP, old)
		delete(c.byNick, low)
	}
}
