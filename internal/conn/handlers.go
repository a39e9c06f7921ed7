package conn

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"vlhub/hub/internal/access"
	"vlhub/hub/internal/directory"
	"vlhub/hub/internal/plugin"
	"vlhub/hub/internal/protocol"
	"vlhub/hub/internal/store"
)

// pluginPayload is the opaque event payload handed to plugin.Registry.Invoke
// for ordinary protocol dispatch (spec §4.4 step 4, §6.5). plugin has no
// knowledge of protocol.Message, so callbacks read it structurally.
type pluginPayload struct {
	Nick    string
	Message *protocol.Message
}

// pluginEventFor maps a dispatched message kind onto the before-hook event a
// plugin can consume, for the handful of kinds spec §6.5 names explicitly.
// Kinds with no entry run their handler unconditionally.
func pluginEventFor(k protocol.Kind) (plugin.Event, bool) {
	switch k {
	case protocol.KindChat:
		return plugin.EventChatMessage, true
	case protocol.KindTo, protocol.KindMCTo:
		return plugin.EventPrivateMsg, true
	case protocol.KindSearch, protocol.KindSearchHub, protocol.KindSA, protocol.KindSP:
		return plugin.EventSearch, true
	case protocol.KindConnectToMe, protocol.KindRevConnectToMe:
		return plugin.EventConnectToMe, true
	case protocol.KindKick, protocol.KindOpForceMove:
		return plugin.EventKick, true
	case protocol.KindBan, protocol.KindTempBan:
		return plugin.EventBan, true
	case protocol.KindUnBan:
		return plugin.EventUnban, true
	case protocol.KindMyINFO:
		return plugin.EventMyINFO, true
	default:
		return "", false
	}
}

// dispatch routes one parsed message through the generic per-handler
// contract (spec §4.4): syntax guard already applied by the caller
// (frame-length cap), here we apply authorization, then call the
// kind-specific effect. Returns false when the connection should stop
// serving (it closed itself).
func (c *Connection) dispatch(msg *protocol.Message) bool {
	state := c.State()

	if state != StateInList && requiresInList(msg.Kind) {
		c.closeWith(ReasonSyntax)
		return false
	}

	if ev, ok := pluginEventFor(msg.Kind); ok {
		c.mu.Lock()
		u := c.user
		c.mu.Unlock()
		nick := ""
		if u != nil {
			nick = u.Nick
		}
		if c.hub.Plugins.Invoke(ev, pluginPayload{Nick: nick, Message: msg}, time.Now()) {
			return true // a plugin consumed the event; skip our own effect
		}
	}

	switch msg.Kind {
	case protocol.KindKey:
		return c.handleKey(msg)
	case protocol.KindValidateNick:
		return c.handleValidateNick(msg)
	case protocol.KindMyPass:
		return c.handleMyPass(msg)
	case protocol.KindVersion:
		return true // recorded only; no reply required
	case protocol.KindSupports:
		return c.handleSupports(msg)
	case protocol.KindMyINFO:
		return c.handleMyINFO(msg)
	case protocol.KindChat:
		return c.handleChat(msg)
	case protocol.KindTo:
		return c.handleTo(msg)
	case protocol.KindMCTo:
		return c.handleMCTo(msg)
	case protocol.KindSearch, protocol.KindSearchHub:
		return c.handleSearch(msg)
	case protocol.KindSA, protocol.KindSP:
		return c.handleShortSearch(msg)
	case protocol.KindSR:
		return c.handleSR(msg)
	case protocol.KindConnectToMe, protocol.KindRevConnectToMe:
		return c.handleCTM(msg)
	case protocol.KindGetNickList:
		return c.handleGetNickList(msg)
	case protocol.KindKick, protocol.KindOpForceMove:
		return c.handleKickOrForceMove(msg)
	case protocol.KindBan, protocol.KindTempBan:
		return c.handleBan(msg)
	case protocol.KindUnBan:
		return c.handleUnban(msg)
	case protocol.KindGetBanList:
		return c.handleGetBanList(msg)
	case protocol.KindWhoIP:
		return c.handleWhoIP(msg)
	case protocol.KindMyIP:
		return c.handleMyIP(msg)
	case protocol.KindQuit:
		c.closeWith(ReasonQuit)
		return false
	default:
		n := c.hub.CountUnknown()
		const unknownCloseThreshold = 50
		if n > 0 && n%unknownCloseThreshold == 0 {
			c.closeWith(ReasonSyntax)
			return false
		}
		return true
	}
}

func requiresInList(k protocol.Kind) bool {
	switch k {
	case protocol.KindKey, protocol.KindValidateNick, protocol.KindMyPass,
		protocol.KindVersion, protocol.KindSupports, protocol.KindMyINFO,
		protocol.KindMyIP, protocol.KindQuit, protocol.KindUnknown:
		return false
	default:
		return true
	}
}

func (c *Connection) requireClass(min directory.Class) bool {
	c.mu.Lock()
	u := c.user
	c.mu.Unlock()
	return u != nil && u.Class >= min
}

// --- handshake ---

func (c *Connection) handleKey(msg *protocol.Message) bool {
	if c.State() != StateLockSent {
		c.closeWith(ReasonSyntax)
		return false
	}
	key := string(msg.Chunk("KEY"))
	want := protocol.Lock2Key([]byte(c.lock))
	if key != string(want) {
		c.closeWith(ReasonInvalidKey)
		return false
	}
	return true
}

func (c *Connection) handleValidateNick(msg *protocol.Message) bool {
	nick := msg.ChunkString("NICK")
	if nick == "" {
		nick = strings.TrimSpace(strings.TrimPrefix(string(msg.Raw()), "$ValidateNick"))
	}
	if len(nick) < c.hub.Config.MinNick || len(nick) > c.hub.Config.MaxNick {
		c.Send([]byte("$BadNick 1 length|"), true)
		c.closeWith(ReasonBadNick)
		return false
	}
	if strings.ContainsAny(nick, " $|") || strings.ContainsAny(nick, c.hub.Config.BadNickChars) {
		c.Send([]byte("$BadNick 2 chars|"), true)
		c.closeWith(ReasonBadNick)
		return false
	}
	if _, exists := c.hub.Directory.GetByNick(nick); exists {
		c.Send([]byte("$ValidateDenide "+nick+"|"), true)
		c.closeWith(ReasonInvalidUser)
		return false
	}
	if ban := c.hub.CheckBan(access.Candidate{Nick: nick, IP: c.ip}); ban != nil {
		c.closeWith(ReasonInvalidUser)
		return false
	}
	if reason, _, banned := c.hub.Short.CheckNick(nick, time.Now()); banned {
		_ = reason
		c.closeWith(ReasonReconnect)
		return false
	}

	u := &directory.User{Nick: nick, Class: directory.ClassGuest, Conn: c, IP: c.ip, LoginTime: time.Now()}
	c.mu.Lock()
	c.user = u
	c.mu.Unlock()

	if reg, err := c.hub.Store.RegistrationByNick(context.Background(), nick); err == nil {
		u.Class = directory.Class(reg.Class)
		if row, err := c.hub.Store.PenaltyRowByNick(context.Background(), nick); err == nil {
			u.Rights = row.ToRights()
		}
		c.Send([]byte("$GetPass|"), true)
		c.setState(StatePasswordPending)
		return true
	}

	c.Send([]byte("$Hello "+nick+"|"), true)
	c.setState(StateRegKnown)
	return true
}

func (c *Connection) handleMyPass(msg *protocol.Message) bool {
	if c.State() != StatePasswordPending {
		c.closeWith(ReasonSyntax)
		return false
	}
	c.mu.Lock()
	u := c.user
	c.mu.Unlock()

	pass := strings.TrimSpace(strings.TrimPrefix(string(msg.Raw()), "$MyPass"))
	reg, err := c.hub.Store.RegistrationByNick(context.Background(), u.Nick)
	if err != nil || !passwordMatches(reg, pass) {
		c.hub.Short.BanNick(u.Nick, access.ShortBanPassword, "bad password", time.Now().Add(10*time.Minute))
		c.Send([]byte("$BadPass|"), true)
		c.closeWith(ReasonPassword)
		return false
	}
	if u.Class >= directory.ClassOperator {
		c.Send([]byte("$LogedIn "+u.Nick+"|"), true)
	}
	_ = c.hub.Store.RecordLogin(context.Background(), u.Nick)
	c.setState(StateRegKnown)
	return true
}

// passwordMatches is a placeholder hash comparator; the real hash scheme
// (pwd_type) is operator-configured and out of this package's scope to
// pick for them.
func passwordMatches(reg store.Registration, pass string) bool {
	return reg.Pwd == pass
}

func (c *Connection) handleSupports(msg *protocol.Message) bool {
	tokens := strings.TrimSpace(strings.TrimPrefix(string(msg.Raw()), "$Supports"))
	f := directory.ParseFeatures(tokens)
	c.mu.Lock()
	c.features = f
	c.mu.Unlock()
	return true
}

// --- MyINFO / login completion ---

func (c *Connection) handleMyINFO(msg *protocol.Message) bool {
	c.mu.Lock()
	u := c.user
	c.mu.Unlock()
	if u == nil {
		c.closeWith(ReasonSyntax)
		return false
	}

	desc := msg.ChunkString("DESC")
	tagRaw := msg.ChunkString("TAG")
	tag, err := protocol.ParseTag([]byte(tagRaw))
	if err != nil {
		if err == protocol.ErrTagMissing {
			c.closeWith(ReasonTagNone)
		} else {
			c.closeWith(ReasonTagInvalid)
		}
		return false
	}
	if tag.HubTotal(c.hub.Config.HubCountPolicy) > c.hub.Config.MaxHubCount {
		c.closeWith(ReasonTagInvalid)
		return false
	}
	if !c.tagSatisfiesPolicy(tag) {
		c.closeWith(ReasonTagInvalid)
		return false
	}

	shareStr := msg.ChunkString("SIZE")
	share, _ := strconv.ParseInt(strings.TrimSpace(shareStr), 10, 64)

	wasFirst := !u.InList
	u.Desc, u.Tag, u.Mail = desc, tagRaw, msg.ChunkString("MAIL")
	u.Speed = msg.ChunkString("SPEED")
	u.Passive = tag.Mode == 'P'
	u.LanFlag = c.ip != nil && isPrivateIP(c.ip)

	c.hub.AddShare(share - u.ShareSz)
	u.ShareSz = share

	if wasFirst {
		if nick, isClone := c.hub.Clones.Check(desc); isClone {
			_ = nick
			c.closeWith(ReasonClone)
			return false
		}
		c.hub.Clones.Register(u.Nick, desc)
		u.InList = true
		c.hub.Directory.Add(u)
		c.sendLoginBatch()
		c.setState(StateInList)
		c.hub.Plugins.Invoke(plugin.EventUserLogin, pluginPayload{Nick: u.Nick}, time.Now())
	}

	c.hub.Directory.SendToAll(framed(msg), true)
	return true
}

// tagSatisfiesPolicy consults the conn_types and client_list tables (spec
// §4.7): slots must fall in [tag_min_slots, tag_max_slots], the declared
// upload limiter must meet tag_min_limit, the per-slot limiter must meet
// tag_min_ls_ratio, and the client id must not be banned or outside
// [min_version, max_version] in client_list. A table with no matching row
// for this tag is unrestricted on that axis — only operator-configured
// bounds are enforced.
func (c *Connection) tagSatisfiesPolicy(tag protocol.Tag) bool {
	if c.hub.Store == nil {
		return true
	}
	ctx := context.Background()

	if ct, err := c.hub.Store.ConnTypeByIdentifier(ctx, tag.ClientID); err == nil {
		if ct.TagMinSlots > 0 && tag.Slots < ct.TagMinSlots {
			return false
		}
		if ct.TagMaxSlots > 0 && tag.Slots > ct.TagMaxSlots {
			return false
		}
		if ct.TagMinLimit > 0 && tag.HasLimit && tag.LimitKbps < ct.TagMinLimit {
			return false
		}
		if ct.TagMinLSRatio > 0 {
			if perSlot, ok := tag.PerSlotLimitKbps(); ok && perSlot < ct.TagMinLSRatio {
				return false
			}
		}
	}

	if cl, err := c.hub.Store.ClientListEntryByTagID(ctx, tag.ClientID); err == nil {
		if cl.Ban {
			return false
		}
		if cl.MaxVersion > 0 {
			if version, err := strconv.ParseFloat(tag.Version, 64); err == nil {
				if version < cl.MinVersion || version > cl.MaxVersion {
					return false
				}
			}
		}
	}

	return true
}

func (c *Connection) sendLoginBatch() {
	c.Send(c.hub.Directory.NickList(), true)
	c.Send([]byte("$HubName "+c.hub.Config.HubName+" - "+c.hub.Config.Topic+"|"), true)
}

// --- mainchat / PM ---

func (c *Connection) handleChat(msg *protocol.Message) bool {
	c.mu.Lock()
	u := c.user
	c.mu.Unlock()
	if u == nil {
		return true
	}
	if !u.Rights.Can("chat", time.Now()) {
		return true // silently dropped, per spec §4.5 penalty semantics
	}
	if ok, open := c.floodGate(u, access.FloodChat); !ok {
		return open
	}

	text := msg.ChunkString("MSG")
	if len(text) > c.hub.Config.MaxChatBytes {
		c.closeWith(ReasonSyntax)
		return false
	}
	if strings.IndexByte(c.hub.Config.TriggerChars, firstByteOr(text, 0)) >= 0 {
		c.dispatchTrigger(u, text)
		return true
	}
	c.hub.Directory.SendToAll(append(protocol.Escape([]byte("<"+u.Nick+"> "+text), false), protocol.FrameDelim), true)
	if c.hub.OnChat != nil {
		c.hub.OnChat(u.Nick, string(protocol.Unescape([]byte(text))))
	}
	return true
}

// floodCloseAfterBlocks is how many consecutive VerdictBlock results (spec
// §8 scenario 5's "sustained flood") trigger a close+short-ban instead of a
// silent drop.
const floodCloseAfterBlocks = 10

// floodBanDuration is the short-ban lifetime seeded on sustained flood
// (spec §8 scenario 5: "until=now+600").
const floodBanDuration = 10 * time.Minute

// floodGate consumes the guard's verdict for kind (spec §4.6): a warning
// sends the user a one-time security PM and lets the message through; a
// block drops the message silently, but floodCloseAfterBlocks consecutive
// blocks escalate to closing the connection with SYNTAX and seeding an IP
// short-ban so a bare reconnect doesn't just restart the clock. ok reports
// whether the caller should perform its normal effect; open reports
// whether the connection is still alive (false means the caller must
// return false immediately).
func (c *Connection) floodGate(u *directory.User, kind access.FloodKind) (ok, open bool) {
	switch c.hub.Guard.Allow(u.Nick, kind, time.Now()) {
	case access.VerdictWarn:
		c.resetFloodStreak(kind)
		c.sendSecurityPM(u.Nick, "You are sending messages too quickly; continued flooding will disconnect you.")
		return true, true
	case access.VerdictBlock:
		if c.bumpFloodStreak(kind) >= floodCloseAfterBlocks {
			c.hub.Short.BanIPAddr(c.ip, access.ShortBanFlood, "sustained flood", time.Now().Add(floodBanDuration))
			c.closeWith(ReasonSyntax)
			return false, false
		}
		return false, true
	default:
		c.resetFloodStreak(kind)
		return true, true
	}
}

func (c *Connection) bumpFloodStreak(kind access.FloodKind) int {
	if c.floodBlocks == nil {
		c.floodBlocks = make(map[access.FloodKind]int)
	}
	c.floodBlocks[kind]++
	return c.floodBlocks[kind]
}

func (c *Connection) resetFloodStreak(kind access.FloodKind) {
	delete(c.floodBlocks, kind)
}

// sendSecurityPM delivers a hub-originated $To: warning straight to this
// connection, attributed to the security robot's nick if one is
// configured, else the hub's own name.
func (c *Connection) sendSecurityPM(toNick, text string) {
	from := c.hub.Config.HubName
	if c.hub.Security != nil && c.hub.Security.Nick != "" {
		from = c.hub.Security.Nick
	}
	frame := "$To: " + toNick + " From: " + from + " $<" + from + "> "
	c.Send(append([]byte(frame), append(protocol.Escape([]byte(text), false), protocol.FrameDelim)...), true)
}

func firstByteOr(s string, def byte) byte {
	if len(s) == 0 {
		return def
	}
	return s[0]
}

// dispatchTrigger is the hook point for the console command dispatcher
// (spec §6.4); the dispatcher itself lives in the hub's command table
// (outside this package's scope) — here we only decline to broadcast.
func (c *Connection) dispatchTrigger(u *directory.User, text string) {
	_ = u
	_ = text
}

func (c *Connection) handleTo(msg *protocol.Message) bool {
	c.mu.Lock()
	u := c.user
	c.mu.Unlock()
	if u == nil || !u.Rights.Can("pm", time.Now()) {
		return true
	}
	from := msg.ChunkString("FROM")
	if from != u.Nick {
		c.closeWith(ReasonSyntax)
		return false
	}
	if ok, open := c.floodGate(u, access.FloodPM); !ok {
		return open
	}
	to := msg.ChunkString("TO")
	target, ok := c.hub.Directory.GetByNick(to)
	if !ok || !canSendUser(target) {
		return true
	}
	target.Conn.Send(framed(msg), true)
	return true
}

func (c *Connection) handleMCTo(msg *protocol.Message) bool {
	c.mu.Lock()
	u := c.user
	c.mu.Unlock()
	if u == nil || !u.Rights.Can("pm", time.Now()) {
		return true
	}
	to := msg.ChunkString("TO")
	target, ok := c.hub.Directory.GetByNick(to)
	if !ok || !canSendUser(target) {
		return true
	}
	target.Conn.Send(framed(msg), true)
	return true
}

// --- search ---

func (c *Connection) handleSearch(msg *protocol.Message) bool {
	c.mu.Lock()
	u := c.user
	c.mu.Unlock()
	if u == nil || !u.Rights.Can("search", time.Now()) {
		return true
	}
	if ok, open := c.floodGate(u, access.FloodSearch); !ok {
		return open
	}
	raw := framed(msg)
	if u.LanFlag {
		c.sendToLanPeers(raw)
		return true
	}
	c.hub.Directory.SendToAllWithoutFeature(raw, true, directory.FeatTTHS)
	return true
}

// sendToLanPeers fans a lan-originated $Search out only to other InList
// users whose own connection is also on a private-range IP (spec §4.4: the
// lan flag restricts the recipient set by IP range, not by a feature bit).
func (c *Connection) sendToLanPeers(frame []byte) {
	for _, peer := range c.hub.Directory.Snapshot() {
		if peer.InList && canSendUser(peer) && peer.IP != nil && isPrivateIP(peer.IP) {
			_ = peer.Conn.Send(frame, true)
		}
	}
}

func (c *Connection) handleShortSearch(msg *protocol.Message) bool {
	c.mu.Lock()
	u := c.user
	c.mu.Unlock()
	if u == nil || !u.Rights.Can("search", time.Now()) {
		return true
	}
	if ok, open := c.floodGate(u, access.FloodSearch); !ok {
		return open
	}
	c.hub.Directory.SendToAllWithFeature(framed(msg), true, directory.FeatTTHS)
	return true
}

func (c *Connection) handleSR(msg *protocol.Message) bool {
	to := msg.ChunkString("TO")
	target, ok := c.hub.Directory.GetByNick(to)
	if !ok || !canSendUser(target) {
		return true
	}
	target.Conn.Send(framed(msg), true)
	return true
}

// --- peer rendezvous ---

func (c *Connection) handleCTM(msg *protocol.Message) bool {
	c.mu.Lock()
	u := c.user
	c.mu.Unlock()
	if u == nil || !u.Rights.Can("ctm", time.Now()) {
		return true
	}
	if c.hub.Config.RequireTLSForCTM && u.Features&directory.FeatTLS == 0 {
		return true // silently discarded per spec §4.9
	}
	if ok, open := c.floodGate(u, access.FloodCTM); !ok {
		return open
	}
	nick := msg.ChunkString("NICK")
	if nick == "" {
		nick = msg.ChunkString("TO")
	}
	target, ok := c.hub.Directory.GetByNick(nick)
	if !ok || !canSendUser(target) {
		return true
	}
	if c.hub.Config.RequireTLSForCTM && target.Features&directory.FeatTLS == 0 {
		return true
	}
	target.Conn.Send(framed(msg), true)
	return true
}

// --- list / admin ---

func (c *Connection) handleGetNickList(msg *protocol.Message) bool {
	c.mu.Lock()
	feat := c.features
	c.mu.Unlock()
	if feat&directory.FeatNoGetINFO != 0 {
		return true
	}
	if feat&directory.FeatZPipe != 0 {
		envelope := append([]byte("$ZOn|"), c.hub.Directory.NickListCompressed()...)
		c.Send(envelope, true)
		return true
	}
	c.Send(c.hub.Directory.NickList(), true)
	return true
}

func (c *Connection) handleKickOrForceMove(msg *protocol.Message) bool {
	if !c.requireClass(directory.ClassOperator) {
		return true
	}
	c.mu.Lock()
	op := c.user
	c.mu.Unlock()

	nick := msg.ChunkString("NICK")
	target, ok := c.hub.Directory.GetByNick(nick)
	if !ok || target.Class >= op.Class {
		return true
	}
	_ = c.hub.Store.InsertKick(context.Background(), nick, "", "", "", msg.ChunkString("MSG"), op.Nick, msg.Kind != protocol.KindOpForceMove)
	if msg.Kind == protocol.KindOpForceMove {
		addr := msg.ChunkString("ADDR")
		if target.Conn != nil {
			target.Conn.Send([]byte("$ForceMove "+addr+"|"), true)
		}
	}
	if target.Conn != nil {
		if cc, ok := target.Conn.(*Connection); ok {
			cc.closeWith(ReasonKicked)
		}
	}
	c.hub.Audit(context.Background(), op.Nick, "kick", nick, msg.ChunkString("MSG"))
	return true
}

func (c *Connection) handleBan(msg *protocol.Message) bool {
	if !c.requireClass(directory.ClassOperator) {
		return true
	}
	c.mu.Lock()
	op := c.user
	c.mu.Unlock()
	nick := msg.ChunkString("NICK")
	if nick == "" {
		return true
	}
	ban := access.NewNickBan(nick, msg.ChunkString("MSG"), op.Nick, time.Time{})
	_ = c.hub.Store.InsertBan(context.Background(), ban)
	_ = c.hub.LoadBans(context.Background())
	c.hub.Audit(context.Background(), op.Nick, "ban", nick, ban.Reason)
	return true
}

func (c *Connection) handleUnban(msg *protocol.Message) bool {
	if !c.requireClass(directory.ClassOperator) {
		return true
	}
	c.mu.Lock()
	op := c.user
	c.mu.Unlock()
	nick := msg.ChunkString("NICK")
	_ = c.hub.Store.Unban(context.Background(), access.NewNickBan(nick, "", "", time.Time{}).IP, nick, op.Nick, "")
	_ = c.hub.LoadBans(context.Background())
	c.hub.Audit(context.Background(), op.Nick, "unban", nick, "")
	return true
}

func (c *Connection) handleGetBanList(msg *protocol.Message) bool {
	if !c.requireClass(directory.ClassOperator) {
		return true
	}
	bans, err := c.hub.Store.ListBans(context.Background())
	if err != nil {
		return true
	}
	var b strings.Builder
	for _, ban := range bans {
		b.WriteString(ban.Nick)
		b.WriteString("\n")
	}
	c.Send([]byte("$GetBanList "+b.String()+"|"), true)
	return true
}

func (c *Connection) handleWhoIP(msg *protocol.Message) bool {
	if !c.requireClass(directory.ClassOperator) {
		return true
	}
	nick := msg.ChunkString("NICK")
	target, ok := c.hub.Directory.GetByNick(nick)
	if !ok {
		return true
	}
	ip := ""
	if target.IP != nil {
		ip = target.IP.String()
	}
	c.Send([]byte("$WhoIP "+nick+" "+ip+"|"), true)
	return true
}

func (c *Connection) handleMyIP(msg *protocol.Message) bool {
	if c.hub.Config.TLSProxyIP == nil || c.ip == nil || !c.ip.Equal(c.hub.Config.TLSProxyIP) {
		return true
	}
	ip := net.ParseIP(msg.ChunkString("IP"))
	if ip == nil {
		return true
	}
	c.mu.Lock()
	c.ip = ip
	if c.user != nil {
		c.user.IP = ip
	}
	c.mu.Unlock()
	return true
}

// framed appends the NMDC frame delimiter to a relayed message's wire
// bytes. protocol.Message.Serialize (and Raw) deliberately omit the
// delimiter, since Parse strips it before a frame is ever wrapped in a
// Message — every handler relaying a message back out has to restore it.
func framed(msg *protocol.Message) []byte {
	body := msg.Serialize()
	out := make([]byte, len(body)+1)
	copy(out, body)
	out[len(body)] = protocol.FrameDelim
	return out
}

// canSendUser reports whether u has a live connection to write to; a local
// stand-in for directory.User's unexported canSend, which this package can't
// reach directly.
func canSendUser(u *directory.User) bool { return u != nil && u.Conn != nil }

// isPrivateIP reports whether ip falls in an RFC 1918, link-local or
// loopback range,
// used to set the lan flag (spec §4.2 "compute lan flag from private-range
// IP").
func isPrivateIP(ip net.IP) bool {
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "169.254.0.0/16", "127.0.0.0/8"} {
		_, block, err := net.ParseCIDR(cidr)
		if err == nil && block.Contains(ip) {
			return true
		}
	}
	return false
}
