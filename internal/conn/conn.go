package conn

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"vlhub/hub/internal/access"
	"vlhub/hub/internal/directory"
	"vlhub/hub/internal/plugin"
	"vlhub/hub/internal/protocol"
)

// Connection is one accepted TCP (or TLS) socket carrying the NMDC
// handshake and, once InList, ordinary protocol traffic. Modeled on the
// teacher's per-connection goroutine (client.go's handleClient): one
// reader loop and a mutex-guarded writer; closing tears down the socket.
type Connection struct {
	hub  *Hub
	conn net.Conn
	r    *bufio.Reader

	mu      sync.Mutex
	state   State
	acceptedAt time.Time
	user    *directory.User

	lock string
	features protocol.Feature

	ip net.IP

	// floodBlocks counts consecutive VerdictBlock results per flood kind,
	// read and written only by this connection's own Serve goroutine (spec
	// §4.6 sustained-flood escalation). Reset whenever the guard allows or
	// warns again.
	floodBlocks map[access.FloodKind]int

	writeMu sync.Mutex
	closed  bool
}

// New wraps an accepted socket. The caller must call Serve to run the
// connection's lifecycle.
func New(hub *Hub, c net.Conn) *Connection {
	ip, _, _ := net.SplitHostPort(c.RemoteAddr().String())
	return &Connection{
		hub:        hub,
		conn:       c,
		r:          bufio.NewReaderSize(c, 4096),
		state:      StateAccepted,
		acceptedAt: time.Now(),
		ip:         net.ParseIP(ip),
	}
}

// State returns the connection's current state machine stage.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Send implements directory.Sender: writes a raw frame to the socket. The
// flush parameter is honored by always writing immediately — this
// connection type has no batching out-buffer (spec §4.8's coalescing is a
// hub-level concern handled by the broadcast engine batching frames before
// calling Send, not by Connection itself).
func (c *Connection) Send(frame []byte, flush bool) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	_, err := c.conn.Write(frame)
	return err
}

// SupportsZPipe implements directory.Sender.
func (c *Connection) SupportsZPipe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.features&directory.FeatZPipe != 0
}

// Serve runs the connection until it closes, by itself or by deadline.
// Grounded on client.go's handleClient: send the opening handshake frame,
// then loop reading '|'-delimited frames and dispatching them.
func (c *Connection) Serve(ctx context.Context) {
	defer c.teardown()

	lock, err := c.hub.NewLock()
	if err != nil {
		slog.Error("lock generation failed", "error", err)
		return
	}
	c.lock = lock

	if ban := c.hub.CheckBan(c.candidate()); ban != nil {
		c.closeWith(ReasonInvalidUser)
		return
	}
	if _, _, banned := c.hub.Short.CheckIPAddr(c.ip, time.Now()); banned {
		c.closeWith(ReasonReconnect)
		return
	}

	hello := "$Lock " + lock + " Pk=" + c.hub.Config.HubName + c.hub.Config.HubVersion + "|" +
		"$Supports NoHello NoGetINFO UserIP2 TLS|"
	if err := c.Send([]byte(hello), true); err != nil {
		return
	}
	c.setState(StateLockSent)

	for {
		if c.pastDeadline() {
			c.closeWith(ReasonTimeout)
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		frame, err := c.r.ReadBytes(protocol.FrameDelim)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue // poll the handshake deadline again
			}
			if !errors.Is(err, io.EOF) {
				slog.Debug("connection read error", "error", err)
			}
			return
		}
		if len(frame) > c.hub.Config.MaxFrameBytes {
			c.closeWith(ReasonSyntax)
			return
		}
		if len(frame) == 1 {
			continue // bare '|' ping, not counted as unknown (spec §8 boundary behavior)
		}

		msg := protocol.Parse(frame[:len(frame)-1])
		if !c.dispatch(msg) {
			return
		}
	}
}

func (c *Connection) pastDeadline() bool {
	s := c.State()
	deadline, ok := deadlineFor(s, c.acceptedAt, c.hub.Config.Timeouts)
	return ok && time.Now().After(deadline)
}

// candidate builds the ban-lookup key from whatever is known about the
// connection so far: just the IP before a nick is bound, nick+IP+share
// once a User exists.
func (c *Connection) candidate() access.Candidate {
	c.mu.Lock()
	u := c.user
	c.mu.Unlock()
	if u == nil {
		return access.Candidate{IP: c.ip}
	}
	return access.Candidate{Nick: u.Nick, IP: c.ip, Share: u.ShareSz}
}

// closeWith closes the socket, having already sent any wire-visible
// consequence the caller's handler is responsible for (e.g. $BadPass).
// The reason only governs bookkeeping/redirect lookup at this layer.
func (c *Connection) closeWith(reason CloseReason) {
	c.mu.Lock()
	c.state = StateClosing
	c.mu.Unlock()
	slog.Debug("closing connection", "reason", reason, "remote", c.conn.RemoteAddr())
	_ = c.conn.Close()
}

func (c *Connection) teardown() {
	c.writeMu.Lock()
	c.closed = true
	c.writeMu.Unlock()
	_ = c.conn.Close()

	c.mu.Lock()
	u := c.user
	c.mu.Unlock()
	if u == nil {
		return
	}
	c.hub.Directory.Remove(u.Nick)
	c.hub.Guard.ResetUser(u.Nick)
	c.hub.Clones.Forget(u.Nick)
	if u.InList {
		c.hub.AddShare(-u.ShareSz)
		c.hub.Directory.SendToAll([]byte("$Quit "+u.Nick+"|"), true)
		c.hub.Plugins.Invoke(plugin.EventUserLogout, pluginPayload{Nick: u.Nick}, time.Now())
	}
}
