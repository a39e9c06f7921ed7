package directory

// Secondary collections are computed views, never independently mutated
// sets — this keeps spec §8's invariant "∀ secondary collection S: S ⊆
// directory" true by construction instead of by careful bookkeeping.
// Operators/Active/Passive live on directory.go alongside the maps they
// view.

// Bots returns every directory entry with no live connection (Conn == nil).
func (d *Directory) Bots() []*User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*User
	for _, u := range d.byLow {
		if u.Conn == nil {
			out = append(out, u)
		}
	}
	return out
}

// MainChatSubscribers returns InList users eligible to receive mainchat
// (everyone that isn't ChatOnly-excluded or explicitly muted is handled by
// the caller; this just enumerates InList sendable users).
func (d *Directory) MainChatSubscribers() []*User {
	return d.filterInList(func(u *User) bool { return u.canSend() })
}

// OpChatSubscribers returns InList operators — the audience for operator
// audit broadcasts (spec §7: "All operator audit goes to the opchat room").
func (d *Directory) OpChatSubscribers() []*User {
	return d.Operators()
}

func (d *Directory) filterInList(pred func(*User) bool) []*User {
	var out []*User
	for _, u := range d.Snapshot() {
		if u.InList && pred(u) {
			out = append(out, u)
		}
	}
	return out
}
