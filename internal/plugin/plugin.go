// Package plugin implements the hub's embedded-script hook contract
// (spec §6.5): named event callbacks, invoked in registration order,
// any one of which can "consume" an event to stop further propagation
// (mirroring Verlihub's real plugin ABI, where a callback returning
// non-zero short-circuits the remaining plugins). A plugin that keeps
// failing is disabled for a cool-off window so one broken script can't
// degrade every connection's handler path.
//
// Grounded on the teacher's room.go callback-registry pattern
// (SetOnBan/SetOnRename/etc: named func fields invoked from room logic)
// generalized from single-slot callbacks into ordered, multi-plugin,
// consumable event registries.
package plugin

import (
	"log/slog"
	"sync"
	"time"
)

// Event names the hook points spec §6.5 defines.
type Event string

const (
	EventUserLogin     Event = "user_login"
	EventUserLogout    Event = "user_logout"
	EventUserCommand   Event = "user_command"
	EventChatMessage   Event = "chat_message"
	EventPrivateMsg    Event = "private_message"
	EventSearch        Event = "search"
	EventConnectToMe   Event = "connect_to_me"
	EventKick          Event = "kick"
	EventBan           Event = "ban"
	EventUnban         Event = "unban"
	EventMyINFO        Event = "myinfo"
	EventBeforeUserPart Event = "before_user_part"
	EventHubLoad       Event = "hub_load"
	EventHubUnload     Event = "hub_unload"
	EventTimer         Event = "timer"
	EventScriptError   Event = "script_error"
)

// Callback runs against an opaque event payload (the concrete shape is
// per-Event and owned by the caller, not this package — plugin has no
// business knowing conn/directory types). Returning consumed=true stops
// later callbacks for the same Invoke call from running.
type Callback func(payload any) (consumed bool, err error)

// failureWindow is how long a plugin stays disabled after tripping
// maxConsecutiveFailures.
const (
	maxConsecutiveFailures = 5
	failureWindow          = 60 * time.Second
)

type registration struct {
	name     string
	cb       Callback
	failures int
	disabledUntil time.Time
}

// Registry holds every plugin's event subscriptions.
type Registry struct {
	mu    sync.Mutex
	hooks map[Event][]*registration
}

// NewRegistry returns an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[Event][]*registration)}
}

// Register subscribes a named plugin's callback to ev. Order of
// registration is the order of invocation (spec §6.5: "plugins run in
// registration order").
func (r *Registry) Register(ev Event, name string, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[ev] = append(r.hooks[ev], &registration{name: name, cb: cb})
}

// Unregister removes every hook a named plugin registered for ev.
func (r *Registry) Unregister(ev Event, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hooks := r.hooks[ev]
	out := hooks[:0]
	for _, h := range hooks {
		if h.name != name {
			out = append(out, h)
		}
	}
	r.hooks[ev] = out
}

// Invoke runs every live (not disabled) callback registered for ev, in
// order, stopping early if one consumes the event. Returns whether the
// event was consumed.
func (r *Registry) Invoke(ev Event, payload any, now time.Time) bool {
	r.mu.Lock()
	hooks := append([]*registration(nil), r.hooks[ev]...)
	r.mu.Unlock()

	for _, h := range hooks {
		r.mu.Lock()
		disabled := !h.disabledUntil.IsZero() && now.Before(h.disabledUntil)
		r.mu.Unlock()
		if disabled {
			continue
		}

		consumed, err := h.cb(payload)
		if err != nil {
			r.recordFailure(h, now)
			slog.Warn("plugin hook failed", "plugin", h.name, "event", ev, "error", err)
			continue
		}
		r.recordSuccess(h)
		if consumed {
			return true
		}
	}
	return false
}

func (r *Registry) recordFailure(h *registration, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.failures++
	if h.failures >= maxConsecutiveFailures {
		h.disabledUntil = now.Add(failureWindow)
		slog.Warn("plugin disabled after repeated failures", "plugin", h.name, "until", h.disabledUntil)
	}
}

func (r *Registry) recordSuccess(h *registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.failures = 0
}
