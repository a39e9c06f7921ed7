package conn

import "time"

// State is one stage of the connection state machine (spec §4.2).
type State int

const (
	StateAccepted State = iota
	StateLockSent
	StateNickValidated
	StatePasswordPending
	StateRegKnown
	StateMyInfoPending
	StateInList
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "Accepted"
	case StateLockSent:
		return "LockSent"
	case StateNickValidated:
		return "NickValidated"
	case StatePasswordPending:
		return "PasswordPending"
	case StateRegKnown:
		return "RegKnown"
	case StateMyInfoPending:
		return "MyInfoPending"
	case StateInList:
		return "InList"
	case StateClosing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// Timeouts holds the independent per-transition deadlines spec §4.2 names.
// Each is measured from connection accept, not from the previous
// transition, which matches the teacher's single "handshake" deadline
// pattern generalized to NMDC's multi-stage handshake.
type Timeouts struct {
	AcceptedToLockSent        time.Duration
	LockSentToNickValidated   time.Duration
	NickValidatedToMyInfo     time.Duration
	MyInfoPendingToInList     time.Duration
}

// DefaultTimeouts mirrors Verlihub's conventional defaults (seconds).
var DefaultTimeouts = Timeouts{
	AcceptedToLockSent:      10 * time.Second,
	LockSentToNickValidated: 20 * time.Second,
	NickValidatedToMyInfo:   30 * time.Second,
	MyInfoPendingToInList:   15 * time.Second,
}

// deadlineFor returns the absolute deadline for leaving state s, given the
// connection's accept time and the configured timeouts. Returns false if s
// has no such deadline (InList/Closing are not handshake states).
func deadlineFor(s State, since time.Time, t Timeouts) (time.Time, bool) {
	switch s {
	case StateAccepted:
		return since.Add(t.AcceptedToLockSent), true
	case StateLockSent:
		return since.Add(t.LockSentToNickValidated), true
	case StateNickValidated, StatePasswordPending, StateRegKnown:
		return since.Add(t.NickValidatedToMyInfo), true
	case StateMyInfoPending:
		return since.Add(t.MyInfoPendingToInList), true
	default:
		return time.Time{}, false
	}
}
