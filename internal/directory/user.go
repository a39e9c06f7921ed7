// Package directory implements the hub's user directory: a nick-hash table
// with derived nicklist/infolist/iplist caches, secondary collections
// (op/bot/active/passive/mainchat/opchat), and the broadcast engine.
//
// Grounded on spec.md §4.3/§4.8, adapted from the teacher's room.go
// (Room.clients map + nicklist-equivalent caches + Broadcast's
// snapshot-then-release-lock pattern) generalized from a WebTransport
// voice room onto an NMDC nick-hash directory.
package directory

import (
	"net"
	"strings"
	"time"
)

// Class mirrors Verlihub's user class ladder.
type Class int

const (
	ClassBanned    Class = -1
	ClassGuest     Class = 0
	ClassReg       Class = 1
	ClassVIP       Class = 2
	ClassOperator  Class = 3
	ClassCheetah   Class = 4
	ClassAdmin     Class = 5
	ClassSysop     Class = 10
	ClassMaster    Class = 10
)

// Feature is a bitmask of $Supports tokens (spec §4.2).
type Feature uint32

const (
	FeatOpPlus Feature = 1 << iota
	FeatNoHello
	FeatNoGetINFO
	FeatDHT0
	FeatQuickList
	FeatBotINFO
	FeatZPipe
	FeatChatOnly
	FeatMCTo
	FeatUserCommand
	FeatBotList
	FeatHubTopic
	FeatUserIP2
	FeatTTHSearch
	FeatFeed
	FeatTTHS
	FeatIN
	FeatBanMsg
	FeatTLS
)

var featureNames = map[string]Feature{
	"OpPlus":       FeatOpPlus,
	"NoHello":      FeatNoHello,
	"NoGetINFO":    FeatNoGetINFO,
	"DHT0":         FeatDHT0,
	"QuickList":    FeatQuickList,
	"BotINFO":      FeatBotINFO,
	"ZPipe":        FeatZPipe,
	"ChatOnly":     FeatChatOnly,
	"MCTo":         FeatMCTo,
	"UserCommand":  FeatUserCommand,
	"BotList":      FeatBotList,
	"HubTopic":     FeatHubTopic,
	"UserIP2":      FeatUserIP2,
	"TTHSearch":    FeatTTHSearch,
	"Feed":         FeatFeed,
	"TTHS":         FeatTTHS,
	"IN":           FeatIN,
	"BanMsg":       FeatBanMsg,
	"TLS":          FeatTLS,
}

// ParseFeatures parses a space-separated $Supports token list.
func ParseFeatures(tokens string) Feature {
	var f Feature
	for _, tok := range strings.Fields(tokens) {
		if bit, ok := featureNames[tok]; ok {
			f |= bit
		}
	}
	return f
}

// Sender is implemented by a connection bound to a User; the directory
// never touches net.Conn directly so it stays testable without sockets.
type Sender interface {
	// Send queues frame (delimiter-terminated already) for the connection;
	// flush requests an immediate write instead of coalescing.
	Send(frame []byte, flush bool) error
	// SupportsZPipe reports whether the connection advertised ZPipe.
	SupportsZPipe() bool
}

// User is one directory entry: either a real connection-bound client or a
// robot (Conn == nil).
type User struct {
	Nick  string
	Class Class
	Conn  Sender // nil for robots

	IP       net.IP
	Features Feature

	Passive  bool
	LanFlag  bool
	ShareSz  int64
	Desc     string
	Tag      string
	Speed    string
	Mail     string

	InList    bool
	LoginTime time.Time

	// Rights, loaded from temp_rights at login (spec §4.5), consulted by
	// Can(right, now).
	Rights Rights
}

// Rights mirrors the eight temp_rights deadline fields.
type Rights struct {
	Chat, Search, CTM, PM, Kick, Share0, Reg, OpChat time.Time
}

// Can reports whether the right is currently un-suspended: a zero deadline
// means never restricted; a non-zero deadline in the future means blocked
// until it elapses.
func (r Rights) Can(right string, now time.Time) bool {
	var deadline time.Time
	switch right {
	case "chat":
		deadline = r.Chat
	case "search":
		deadline = r.Search
	case "ctm":
		deadline = r.CTM
	case "pm":
		deadline = r.PM
	case "kick":
		deadline = r.Kick
	case "share0":
		deadline = r.Share0
	case "reg":
		deadline = r.Reg
	case "opchat":
		deadline = r.OpChat
	default:
		return true
	}
	return deadline.IsZero() || now.After(deadline)
}

// canSend reports whether the user has a live connection to write to.
func (u *User) canSend() bool { return u != nil && u.Conn != nil }

// lowerNick is the directory hash key: nicks are matched case-insensitively.
func lowerNick(nick string) string { return strings.ToLower(nick) }

// nickHash64 folds a lower-cased nick into 64 bits (FNV-1a), per spec
// §4.3's "lower-cases the nick and folds into 64 bits".
func nickHash64(nick string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(nick); i++ {
		h ^= uint64(nick[i] | 0x20) // cheap ASCII lower-case fold
		h *= prime64
	}
	return h
}
