package conn

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"vlhub/hub/internal/access"
	"vlhub/hub/internal/directory"
	"vlhub/hub/internal/plugin"
	"vlhub/hub/internal/protocol"
	"vlhub/hub/internal/store"
)

// Config is the hub configuration the connection state machine and
// protocol handlers consult directly. main builds it once at startup from
// DefaultConfig and command-line flags; it is not read from SetupList and
// is not reloaded while the hub runs.
type Config struct {
	HubName         string
	HubVersion      string
	Topic           string
	MinNick, MaxNick int
	BadNickChars    string // BAD_NICK_CHARS_OWN, appended to the fixed NMDC set
	RequiredPrefix  string // empty disables class-based required prefix
	MaxChatLines    int
	MaxChatBytes    int
	MaxFrameBytes   int
	TriggerChars    string // command-trigger characters, e.g. "+!/"
	Charset         protocol.Charset
	TLSProxyIP      net.IP // spec §4.4 MyIP: only accepted from this address
	RequireTLSForCTM bool
	HubCountPolicy  protocol.HubCountPolicy
	MaxHubCount     int
	Timeouts        Timeouts
}

// DefaultConfig is a usable out-of-the-box configuration.
func DefaultConfig() Config {
	return Config{
		HubName:        "VerliHub",
		HubVersion:     "1.0",
		MinNick:        1,
		MaxNick:        64,
		MaxChatLines:   1,
		MaxChatBytes:   512,
		MaxFrameBytes:  65 * 1024,
		TriggerChars:   "+!",
		Charset:        protocol.CharsetCP1252,
		HubCountPolicy: protocol.HubCountAll,
		MaxHubCount:    3,
		Timeouts:       DefaultTimeouts,
	}
}

// Hub is the shared state every Connection dispatches against: the live
// user directory, the ban/penalty/flood/clone engines, persistence, and
// configuration. One Hub per listening process, mirroring the teacher's
// single *Room shared across all *Client goroutines.
type Hub struct {
	Config Config

	Directory *directory.Directory
	Guard     *access.Guard
	Short     *access.ShortBans
	Clones    *access.CloneTable
	Store     *store.Store
	Plugins   *plugin.Registry

	mu         sync.RWMutex
	bans       []*access.Ban
	shareTotal int64
	unknownCtr int64

	Security *directory.User // hub-security robot, sends policy PMs

	// OnChat, if set, is invoked with every broadcast mainchat line
	// (nick, text already unescaped). Used to feed an operator-facing
	// chat log without this package needing to know anything about log
	// files or rotation.
	OnChat func(nick, text string)
}

// NewHub wires a Hub from its dependencies. cfg is copied by value into
// Hub.Config, so the caller's copy and the Hub's do not alias.
func NewHub(cfg Config, st *store.Store) *Hub {
	return &Hub{
		Config:    cfg,
		Directory: directory.New(256),
		Guard:     access.NewGuard(access.DefaultPolicies),
		Short:     access.NewShortBans(),
		Clones:    access.NewCloneTable(),
		Store:     st,
		Plugins:   plugin.NewRegistry(),
	}
}

// LoadBans refreshes the in-memory ban cache from storage. Called at
// startup and from the scheduler's periodic reload tick.
func (h *Hub) LoadBans(ctx context.Context) error {
	bans, err := h.Store.ListBans(ctx)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.bans = bans
	h.mu.Unlock()
	return nil
}

// CheckBan runs the candidate against the cached ban table (spec §4.5).
func (h *Hub) CheckBan(c access.Candidate) *access.Ban {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return access.Match(h.bans, c, time.Now())
}

// AddShare maintains the running hub-wide share total (spec §8 invariant:
// "Share total = Σ over InList users of their share"); callers pass a
// negative delta to remove a share.
func (h *Hub) AddShare(delta int64) {
	h.mu.Lock()
	h.shareTotal += delta
	h.mu.Unlock()
}

func (h *Hub) ShareTotal() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.shareTotal
}

// CountUnknown bumps the hub-wide unknown-frame meter and returns the new
// total (spec §4.4 Unknown handler).
func (h *Hub) CountUnknown() int64 {
	h.mu.Lock()
	h.unknownCtr++
	n := h.unknownCtr
	h.mu.Unlock()
	return n
}

// NewLock generates a fresh Lock challenge for a newly accepted connection.
func (h *Hub) NewLock() (string, error) {
	return protocol.GenerateLock(32)
}

// Audit appends an operator/system action to the durable audit trail,
// logging (not failing the caller) on storage error — spec §7 class 3
// storage errors must not block the action they're auditing.
func (h *Hub) Audit(ctx context.Context, actor, action, target, detail string) {
	if h.Store == nil {
		return
	}
	if err := h.Store.AppendAudit(ctx, actor, action, target, detail); err != nil {
		slog.Warn("audit log write failed", "error", err, "actor", actor, "action", action)
	}
}
