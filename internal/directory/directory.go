package directory

import (
	"bytes"
	"compress/zlib"
	"sync"
)

// Directory is the hub's single user table: one nick-hash map guarded by a
// mutex, plus three derived caches rebuilt lazily on a dirty flag. Modeled
// on the teacher's room.go Room.clients map + snapshot-then-release-lock
// Broadcast, generalized from a uint16 client-id keyspace to a nick-hash
// keyspace.
type Directory struct {
	mu    sync.RWMutex
	byKey map[uint64]*User // nick-hash -> user; collisions chain via nick compare below
	byLow map[string]*User // lower(nick) -> user, resolves hash collisions exactly

	dirty    bool
	nicklist []byte // cached "$NickList <nick>$$<nick>$$...|" frame, fully framed
	infolist []byte // cached concatenation of every InList user's raw tag string; full $MyINFO frames are not assembled here
	iplist   []byte // cached "$UserIP <nick> <ip>$$...|" frame, fully framed

	zNicklist []byte // zlib-compressed nicklist, rebuilt alongside nicklist
}

// New returns an empty directory with capacity hints sized to a power of
// two, as spec §4.3 requires of the backing table.
func New(initialCapacity int) *Directory {
	cap := 16
	for cap < initialCapacity {
		cap <<= 1
	}
	return &Directory{
		byKey: make(map[uint64]*User, cap),
		byLow: make(map[string]*User, cap),
		dirty: true,
	}
}

// Add inserts u, keyed by its current Nick. Returns false if the nick is
// already present.
func (d *Directory) Add(u *User) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := lowerNick(u.Nick)
	if _, exists := d.byLow[key]; exists {
		return false
	}
	d.byLow[key] = u
	d.byKey[nickHash64(key)] = u
	d.dirty = true
	return true
}

// Remove deletes the user with the given nick. Returns false if absent.
func (d *Directory) Remove(nick string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := lowerNick(nick)
	if _, exists := d.byLow[key]; !exists {
		return false
	}
	delete(d.byLow, key)
	delete(d.byKey, nickHash64(key))
	d.dirty = true
	return true
}

// GetByNick is an O(1) case-insensitive lookup.
func (d *Directory) GetByNick(nick string) (*User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byLow[lowerNick(nick)]
	return u, ok
}

// Count returns the number of directory entries.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byLow)
}

// Snapshot returns a stable slice copy of every current user, safe to range
// over after the lock is released (mirrors room.go's Clients() pattern).
func (d *Directory) Snapshot() []*User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*User, 0, len(d.byLow))
	for _, u := range d.byLow {
		out = append(out, u)
	}
	return out
}

// markDirty invalidates the derived caches without rebuilding them (spec
// §4.3: "mutation sets the flag without rebuilding").
func (d *Directory) markDirty() {
	d.mu.Lock()
	d.dirty = true
	d.mu.Unlock()
}

// MarkDirty is the exported hook handlers call after mutating a User's
// InList-visible fields in place (e.g. MyINFO update) without removing and
// re-adding it.
func (d *Directory) MarkDirty() { d.markDirty() }

// rebuildLocked recomputes nicklist/infolist/iplist. Caller must hold d.mu
// for writing.
func (d *Directory) rebuildLocked() {
	var nb, ib, ipb bytes.Buffer
	for _, u := range d.byLow {
		if !u.InList {
			continue
		}
		nb.WriteString(u.Nick)
		nb.WriteString("$$")
		ipb.WriteString(u.Nick)
		ipb.WriteByte(' ')
		if u.IP != nil {
			ipb.WriteString(u.IP.String())
		}
		ipb.WriteString("$$")
		ib.WriteString(u.Tag) // tag only; nothing replaces it with a full MyINFO frame
	}
	d.nicklist = append([]byte("$NickList "), append(nb.Bytes(), '|')...)
	d.infolist = ib.Bytes()
	d.iplist = append([]byte("$UserIP "), append(ipb.Bytes(), '|')...)

	var zbuf bytes.Buffer
	zw := zlib.NewWriter(&zbuf)
	_, _ = zw.Write(d.nicklist)
	_ = zw.Close()
	d.zNicklist = zbuf.Bytes()

	d.dirty = false
}

// ensureFresh rebuilds the caches if dirty. Caller must not hold d.mu.
func (d *Directory) ensureFresh() {
	d.mu.Lock()
	if d.dirty {
		d.rebuildLocked()
	}
	d.mu.Unlock()
}

// NickList returns the cached, already wire-framed "$NickList
// <nick>$$<nick>$$...|" frame, ready to hand straight to Send.
func (d *Directory) NickList() []byte {
	d.ensureFresh()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]byte(nil), d.nicklist...)
}

// NickListCompressed returns a zlib-compressed copy of the full $NickList
// frame. The caller is responsible for the "$ZOn|" envelope prefix (spec
// §4.8), matching the convention SendZOn uses for other broadcasts.
func (d *Directory) NickListCompressed() []byte {
	d.ensureFresh()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]byte(nil), d.zNicklist...)
}

// IPList returns the cached, already wire-framed "$UserIP <nick>
// <ip>$$...|" frame.
func (d *Directory) IPList() []byte {
	d.ensureFresh()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]byte(nil), d.iplist...)
}

// SendToAll delivers frame to every InList user's connection, mirroring the
// teacher's Room.Broadcast snapshot-then-release-lock pattern so a slow
// Sender can't hold the directory lock.
func (d *Directory) SendToAll(frame []byte, flush bool) {
	for _, u := range d.Snapshot() {
		if u.InList && u.canSend() {
			_ = u.Conn.Send(frame, flush)
		}
	}
}

// SendToAllWithFeature delivers frame only to InList users advertising feat.
func (d *Directory) SendToAllWithFeature(frame []byte, flush bool, feat Feature) {
	for _, u := range d.Snapshot() {
		if u.InList && u.canSend() && u.Features&feat != 0 {
			_ = u.Conn.Send(frame, flush)
		}
	}
}

// SendToAllWithoutFeature delivers frame only to InList users NOT
// advertising feat (e.g. full $Search fan-out excluding TTHS-only clients).
func (d *Directory) SendToAllWithoutFeature(frame []byte, flush bool, feat Feature) {
	for _, u := range d.Snapshot() {
		if u.InList && u.canSend() && u.Features&feat == 0 {
			_ = u.Conn.Send(frame, flush)
		}
	}
}

// ClassRange is an inclusive [Min, Max] band of user classes, used to scope
// a broadcast to e.g. operators-and-above (opchat, spec §4.5's "opchat"
// right).
type ClassRange struct {
	Min, Max Class
}

// SendToAllInRange delivers frame to every InList user whose Class falls
// within r.
func (d *Directory) SendToAllInRange(frame []byte, flush bool, r ClassRange) {
	for _, u := range d.Snapshot() {
		if u.InList && u.canSend() && u.Class >= r.Min && u.Class <= r.Max {
			_ = u.Conn.Send(frame, flush)
		}
	}
}

// Operators returns every InList user at ClassOperator or above.
func (d *Directory) Operators() []*User {
	out := make([]*User, 0)
	for _, u := range d.Snapshot() {
		if u.InList && u.Class >= ClassOperator {
			out = append(out, u)
		}
	}
	return out
}

// Active returns every InList user in active (non-passive) connect mode.
func (d *Directory) Active() []*User {
	out := make([]*User, 0)
	for _, u := range d.Snapshot() {
		if u.InList && !u.Passive {
			out = append(out, u)
		}
	}
	return out
}

// Passive returns every InList user in passive connect mode.
func (d *Directory) Passive() []*User {
	out := make([]*User, 0)
	for _, u := range d.Snapshot() {
		if u.InList && u.Passive {
			out = append(out, u)
		}
	}
	return out
}

// zpipeThreshold is the minimum payload size, in bytes, below which ZPipe
// compression isn't worth the round trip — matches the conventional NMDC
// hub default for compressing the full user/nick list on login.
const zpipeThreshold = 10 * 1024

// SendZOn delivers payload to every InList user, compressing it behind a
// "$ZOn|" envelope for recipients that advertise ZPipe once it crosses
// zpipeThreshold, and sending it raw to everyone otherwise (spec §4.8).
func (d *Directory) SendZOn(payload []byte, flush bool) {
	if len(payload) < zpipeThreshold {
		d.SendToAll(payload, flush)
		return
	}

	var zbuf bytes.Buffer
	zw := zlib.NewWriter(&zbuf)
	_, _ = zw.Write(payload)
	_ = zw.Close()
	envelope := append([]byte("$ZOn|"), zbuf.Bytes()...)

	for _, u := range d.Snapshot() {
		if !u.InList || !u.canSend() {
			continue
		}
		if u.Conn.SupportsZPipe() {
			_ = u.Conn.Send(envelope, flush)
		} else {
			_ = u.Conn.Send(payload, flush)
		}
	}
}
