package access

import (
	"time"

	"vlhub/hub/internal/directory"
)

// PenaltyRow mirrors the temp_rights table (spec §6.3): one row of eight
// deadline columns, loaded into the live User's Rights at login and kept in
// sync by operator `!setright` / `+rights` commands (spec §4.5).
type PenaltyRow struct {
	Nick    string
	Op      string
	Since   int64
	StChat  int64
	StSearch int64
	StCTM   int64
	StPM    int64
	StKick  int64
	StShare0 int64
	StReg   int64
	StOpChat int64
}

// ToRights converts the row's unix-second deadlines into directory.Rights.
func (p PenaltyRow) ToRights() directory.Rights {
	return directory.Rights{
		Chat:   unixOrZero(p.StChat),
		Search: unixOrZero(p.StSearch),
		CTM:    unixOrZero(p.StCTM),
		PM:     unixOrZero(p.StPM),
		Kick:   unixOrZero(p.StKick),
		Share0: unixOrZero(p.StShare0),
		Reg:    unixOrZero(p.StReg),
		OpChat: unixOrZero(p.StOpChat),
	}
}

// permanentDeadline stands in for temp_rights' sentinel value 1 ("value 1 =
// permanent flag", spec §3): a deadline so far in the future that
// Rights.Can's now.After(deadline) never trips, as opposed to time.Unix(1,
// 0) which is 1970 and reads as already-expired.
var permanentDeadline = time.Date(9999, time.January, 1, 0, 0, 0, 0, time.UTC)

func unixOrZero(v int64) time.Time {
	switch {
	case v == 1:
		return permanentDeadline
	case v <= 0:
		return time.Time{}
	default:
		return time.Unix(v, 0)
	}
}

// FromRights converts live Rights back into deadline columns, for
// persisting an operator's `!setright` mutation.
func FromRights(nick, op string, r directory.Rights) PenaltyRow {
	return PenaltyRow{
		Nick:     nick,
		Op:       op,
		Since:    time.Now().Unix(),
		StChat:   toUnix(r.Chat),
		StSearch: toUnix(r.Search),
		StCTM:    toUnix(r.CTM),
		StPM:     toUnix(r.PM),
		StKick:   toUnix(r.Kick),
		StShare0: toUnix(r.Share0),
		StReg:    toUnix(r.Reg),
		StOpChat: toUnix(r.OpChat),
	}
}

func toUnix(t time.Time) int64 {
	switch {
	case t.IsZero():
		return 0
	case t.Equal(permanentDeadline):
		return 1
	default:
		return t.Unix()
	}
}
