// Package protocol implements the NMDC wire format: frame splitting, the
// fixed command table, escape/unescape, the Lock2Key handshake transform,
// and MyINFO tag grammar.
//
// Grounded on spec.md §4.1/§4.7/§6.1 and original_source/src/cdcproto.h
// (the Lock2Key/UnEscapeChars/ParseSpeed method set of cDCProto), adapted
// onto the lazy chunk-cache and command-table pattern the teacher uses in
// internal/protocol/message.go and internal/ws/handler.go for its own
// (JSON) message kind.
package protocol

import "bytes"

// FrameDelim terminates every NMDC frame on the wire.
const FrameDelim = '|'

// SplitFrames splits a byte buffer on FrameDelim, returning complete frames
// (delimiter stripped) and the remaining unterminated tail. Frames are
// returned as subslices of buf — callers that retain a Message across the
// next read must copy it first (see Message.Freeze).
func SplitFrames(buf []byte) (frames [][]byte, rest []byte) {
	for {
		i := bytes.IndexByte(buf, FrameDelim)
		if i < 0 {
			return frames, buf
		}
		frames = append(frames, buf[:i])
		buf = buf[i+1:]
	}
}

// Kind enumerates the fixed, ordered NMDC command table (spec §4.1).
type Kind int

const (
	KindUnknown Kind = iota
	KindChat         // <nick> msg  (no leading '$')
	KindConnectToMe
	KindRevConnectToMe
	KindSR
	KindSearchHub // "$Search Hub:" must be tested before KindSearch
	KindSearch
	KindSA
	KindSP
	KindMyINFO
	KindExtJSON
	KindKey
	KindSupports
	KindValidateNick
	KindVersion
	KindGetNickList
	KindMyHubURL
	KindMyPass
	KindTo
	KindBotINFO
	KindGetINFO
	KindUserIP
	KindKick
	KindOpForceMove
	KindMultiConnectToMe
	KindMultiSearch
	KindMCTo
	KindQuit
	KindBan
	KindTempBan
	KindUnBan
	KindGetBanList
	KindWhoIP
	KindGetTopic
	KindSetTopic
	KindMyIP
	KindMyNick
	KindLock
)

// cmdEntry is one row of the fixed command table. Order matters: the first
// matching prefix wins (e.g. "$Search Hub:" before "$Search").
type cmdEntry struct {
	prefix string
	kind   Kind
}

// commandTable is the ordered (prefix, kind) table driving Parse. Kept as a
// slice, not a map, because lookup is prefix-match, not exact-match, and
// order is semantically load-bearing.
var commandTable = []cmdEntry{
	{"$Search Hub:", KindSearchHub},
	{"$Search ", KindSearch},
	{"$ConnectToMe ", KindConnectToMe},
	{"$RevConnectToMe ", KindRevConnectToMe},
	{"$MultiConnectToMe ", KindMultiConnectToMe},
	{"$MultiSearch ", KindMultiSearch},
	{"$SR ", KindSR},
	{"$SA ", KindSA},
	{"$SP ", KindSP},
	{"$MyINFO ", KindMyINFO},
	{"$ExtJSON ", KindExtJSON},
	{"$Key ", KindKey},
	{"$Supports ", KindSupports},
	{"$ValidateNick ", KindValidateNick},
	{"$Version ", KindVersion},
	{"$GetNickList", KindGetNickList},
	{"$MyHubURL", KindMyHubURL},
	{"$MyPass ", KindMyPass},
	{"$To: ", KindTo},
	{"$BotINFO ", KindBotINFO},
	{"$GetINFO ", KindGetINFO},
	{"$UserIP", KindUserIP},
	{"$Kick ", KindKick},
	{"$OpForceMove ", KindOpForceMove},
	{"$MCTo: ", KindMCTo},
	{"$Quit ", KindQuit},
	{"$Ban ", KindBan},
	{"$TempBan ", KindTempBan},
	{"$UnBan ", KindUnBan},
	{"$GetBanList", KindGetBanList},
	{"$WhoIP ", KindWhoIP},
	{"$GetTopic", KindGetTopic},
	{"$SetTopic ", KindSetTopic},
	{"$MyIP ", KindMyIP},
	{"$MyNick ", KindMyNick},
	{"$Lock ", KindLock},
}

// classify returns the Kind for a raw frame (delimiter already stripped).
// Frames beginning with '<' are always chat; everything else is matched
// against commandTable in order, falling back to KindUnknown.
func classify(frame []byte) Kind {
	if len(frame) == 0 {
		return KindUnknown
	}
	if frame[0] == '<' {
		return KindChat
	}
	if frame[0] != '$' {
		return KindUnknown
	}
	for _, e := range commandTable {
		if bytes.HasPrefix(frame, []byte(e.prefix)) {
			return e.kind
		}
	}
	return KindUnknown
}
