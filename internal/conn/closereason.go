package conn

// CloseReason selects the redirect URL an operator configures per-reason
// (spec §6.2). Values are part of the wire/storage contract: they are
// looked up directly against custom_redirects.flag, so the ordering below
// must never change.
type CloseReason int

const (
	ReasonDefault CloseReason = iota
	ReasonInvalidUser
	ReasonKicked
	ReasonForceMove
	ReasonQuit
	ReasonHubLoad
	ReasonTimeout
	ReasonToAnyAction
	ReasonUserLimit
	ReasonShareLimit
	ReasonTagNone
	ReasonTagInvalid
	ReasonPassword
	ReasonLoginErr
	ReasonSyntax
	ReasonInvalidKey
	ReasonReconnect
	ReasonClone
	ReasonSelf
	ReasonBadNick
	ReasonNoRedir
	ReasonPlugin
)

var reasonNames = map[CloseReason]string{
	ReasonDefault:     "DEFAULT",
	ReasonInvalidUser: "INVALID_USER",
	ReasonKicked:      "KICKED",
	ReasonForceMove:   "FORCEMOVE",
	ReasonQuit:        "QUIT",
	ReasonHubLoad:     "HUB_LOAD",
	ReasonTimeout:     "TIMEOUT",
	ReasonToAnyAction: "TO_ANYACTION",
	ReasonUserLimit:   "USERLIMIT",
	ReasonShareLimit:  "SHARE_LIMIT",
	ReasonTagNone:     "TAG_NONE",
	ReasonTagInvalid:  "TAG_INVALID",
	ReasonPassword:    "PASSWORD",
	ReasonLoginErr:    "LOGIN_ERR",
	ReasonSyntax:      "SYNTAX",
	ReasonInvalidKey:  "INVALID_KEY",
	ReasonReconnect:   "RECONNECT",
	ReasonClone:       "CLONE",
	ReasonSelf:        "SELF",
	ReasonBadNick:     "BADNICK",
	ReasonNoRedir:     "NOREDIR",
	ReasonPlugin:      "PLUGIN",
}

func (r CloseReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}
