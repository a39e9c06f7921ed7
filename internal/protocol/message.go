package protocol

import "bytes"

// span is an offset pair into Message.raw. Chunks are views, never copies,
// until SetChunk overrides them (spec §4.1's "chunks reference offsets into
// the original frame... until a chunk is mutated").
type span struct{ start, end int }

// Message is a parsed NMDC frame. The parser instance is built once per
// frame by Parse and is not reused across frames (unlike the teacher's
// pooled parser, one allocation per frame is cheap enough here and keeps
// Message safe to retain past the read that produced it once Freeze is
// called).
type Message struct {
	Kind Kind
	raw  []byte

	parsed    bool
	chunks    map[string]span
	overrides map[string][]byte
	dirty     map[string]bool
}

// Parse classifies and wraps a single delimiter-stripped frame. Chunk
// extraction is deferred until Chunk is first called.
func Parse(frame []byte) *Message {
	return &Message{Kind: classify(frame), raw: frame}
}

// Freeze copies the backing frame so the Message remains valid after the
// caller's read buffer is reused. Call before retaining a Message across a
// network read (e.g. queuing a chat line for later console dispatch).
func (m *Message) Freeze() {
	cp := make([]byte, len(m.raw))
	copy(cp, m.raw)
	m.raw = cp
}

// Raw returns the original, unmodified frame bytes (no trailing delimiter).
func (m *Message) Raw() []byte { return m.raw }

// Modified reports whether any chunk has been overridden since Parse.
func (m *Message) Modified() bool { return len(m.dirty) > 0 }

// Chunk returns the named field, preferring an override if SetChunk was
// called. Returns nil if the kind has no such chunk or the frame doesn't
// match the expected shape.
func (m *Message) Chunk(name string) []byte {
	if v, ok := m.overrides[name]; ok {
		return v
	}
	if !m.parsed {
		m.extractChunks()
		m.parsed = true
	}
	if s, ok := m.chunks[name]; ok {
		return m.raw[s.start:s.end]
	}
	return nil
}

// ChunkString is Chunk as a string.
func (m *Message) ChunkString(name string) string {
	return string(m.Chunk(name))
}

// SetChunk overrides a named chunk, marking the message modified. Serialize
// rebuilds the wire frame from current chunk values for the kinds that
// support reassembly (see serialize.go); unsupported kinds keep emitting
// Raw() even when dirty, which is a known limitation, not a silent bug.
func (m *Message) SetChunk(name string, value []byte) {
	if m.overrides == nil {
		m.overrides = make(map[string][]byte)
	}
	if m.dirty == nil {
		m.dirty = make(map[string]bool)
	}
	m.overrides[name] = value
	m.dirty[name] = true
}

// register records a chunk span found during extraction. Only called from
// extractChunks, before m.parsed is set, so it never clobbers an override.
func (m *Message) register(name string, start, end int) {
	if m.chunks == nil {
		m.chunks = make(map[string]span)
	}
	if start < 0 || end < start || end > len(m.raw) {
		return
	}
	m.chunks[name] = span{start, end}
}

// extractChunks runs the declarative split for m.Kind. Each case is a
// sequential scan over m.raw, registering named sub-slices; this is the
// "chunk schema" of spec §4.1 expressed directly instead of as a table of
// split descriptors, since Go's slice-of-structs table gave no benefit over
// the straight-line scans below (each kind's grammar is irregular enough
// that a single generic walker would need one case per kind anyway).
func (m *Message) extractChunks() {
	switch m.Kind {
	case KindMyINFO:
		m.extractMyINFO()
	case KindChat:
		m.extractChat()
	case KindTo:
		m.extractTo()
	case KindMCTo:
		m.extractMCTo()
	case KindSearch, KindSearchHub:
		m.extractSearch()
	case KindSA:
		m.extractSA()
	case KindSP:
		m.extractSP()
	case KindSR:
		m.extractSR()
	case KindConnectToMe:
		m.extractConnectToMe()
	case KindRevConnectToMe:
		m.extractRevConnectToMe()
	case KindValidateNick:
		m.extractAfterPrefix("$ValidateNick ", "NICK")
	case KindKey:
		m.extractAfterPrefix("$Key ", "KEY")
	case KindMyPass:
		m.extractAfterPrefix("$MyPass ", "PASS")
	case KindVersion:
		m.extractAfterPrefix("$Version ", "VERSION")
	case KindSupports:
		m.extractAfterPrefix("$Supports ", "FEATURES")
	case KindKick:
		m.extractAfterPrefix("$Kick ", "NICK")
	case KindOpForceMove:
		m.extractOpForceMove()
	case KindSetTopic:
		m.extractAfterPrefix("$SetTopic ", "TOPIC")
	case KindMyIP:
		m.extractMyIP()
	case KindMyNick:
		m.extractAfterPrefix("$MyNick ", "NICK")
	case KindLock:
		m.extractLock()
	}
}

// extractAfterPrefix registers everything after a literal prefix as name.
func (m *Message) extractAfterPrefix(prefix, name string) {
	if !bytes.HasPrefix(m.raw, []byte(prefix)) {
		return
	}
	m.register(name, len(prefix), len(m.raw))
}

// extractChat splits "<nick> msg" into NICK and MSG.
func (m *Message) extractChat() {
	if len(m.raw) == 0 || m.raw[0] != '<' {
		return
	}
	close := bytes.IndexByte(m.raw, '>')
	if close < 0 {
		return
	}
	m.register("NICK", 1, close)
	start := close + 1
	if start < len(m.raw) && m.raw[start] == ' ' {
		start++
	}
	m.register("MSG", start, len(m.raw))
}

// extractTo splits "$To: <to> From: <from> $<<from>> msg".
func (m *Message) extractTo() {
	const prefix = "$To: "
	if !bytes.HasPrefix(m.raw, []byte(prefix)) {
		return
	}
	rest := m.raw[len(prefix):]
	offset := len(prefix)

	toEnd := bytes.Index(rest, []byte(" From: "))
	if toEnd < 0 {
		return
	}
	m.register("TO", offset, offset+toEnd)

	rest2 := rest[toEnd+len(" From: "):]
	offset2 := offset + toEnd + len(" From: ")

	fromEnd := bytes.IndexByte(rest2, ' ')
	if fromEnd < 0 {
		return
	}
	m.register("FROM", offset2, offset2+fromEnd)

	rest3 := rest2[fromEnd+1:]
	offset3 := offset2 + fromEnd + 1
	if len(rest3) == 0 || rest3[0] != '$' {
		return
	}
	rbEnd := bytes.IndexByte(rest3, '>')
	if rbEnd < 0 {
		return
	}
	msgStart := rbEnd + 1
	if msgStart < len(rest3) && rest3[msgStart] == ' ' {
		msgStart++
	}
	m.register("MSG", offset3+msgStart, len(m.raw))
}

// extractMCTo splits "$MCTo: <to> $<from> msg".
func (m *Message) extractMCTo() {
	const prefix = "$MCTo: "
	if !bytes.HasPrefix(m.raw, []byte(prefix)) {
		return
	}
	rest := m.raw[len(prefix):]
	offset := len(prefix)

	toEnd := bytes.IndexByte(rest, ' ')
	if toEnd < 0 {
		return
	}
	m.register("TO", offset, offset+toEnd)

	rest2 := rest[toEnd+1:]
	offset2 := offset + toEnd + 1
	if len(rest2) == 0 || rest2[0] != '$' {
		return
	}
	fromEnd := bytes.IndexByte(rest2, ' ')
	if fromEnd < 0 {
		return
	}
	m.register("FROM", offset2+1, offset2+fromEnd)
	msgStart := fromEnd + 1
	m.register("MSG", offset2+msgStart, len(m.raw))
}

// extractSearch splits "$Search Hub:<nick> <limits>?<pattern>" or
// "$Search <ip>:<port> <limits>?<pattern>".
func (m *Message) extractSearch() {
	var prefix string
	switch m.Kind {
	case KindSearchHub:
		prefix = "$Search Hub:"
	default:
		prefix = "$Search "
	}
	if !bytes.HasPrefix(m.raw, []byte(prefix)) {
		return
	}
	rest := m.raw[len(prefix):]
	offset := len(prefix)
	sep := bytes.IndexByte(rest, ' ')
	if sep < 0 {
		return
	}
	m.register("TARGET", offset, offset+sep)
	m.register("PATTERN", offset+sep+1, len(m.raw))
}

// extractSA splits "$SA <tth> <ip>:<port>".
func (m *Message) extractSA() {
	const prefix = "$SA "
	rest := m.raw[len(prefix):]
	offset := len(prefix)
	sep := bytes.IndexByte(rest, ' ')
	if sep < 0 {
		return
	}
	m.register("TTH", offset, offset+sep)
	m.register("ADDR", offset+sep+1, len(m.raw))
}

// extractSP splits "$SP <tth> <nick>".
func (m *Message) extractSP() {
	const prefix = "$SP "
	rest := m.raw[len(prefix):]
	offset := len(prefix)
	sep := bytes.IndexByte(rest, ' ')
	if sep < 0 {
		return
	}
	m.register("TTH", offset, offset+sep)
	m.register("NICK", offset+sep+1, len(m.raw))
}

// extractSR splits "$SR <from> <path>\x05<size> <free>/<total>\x05<hub> (<hubip>)\x05<to>".
// Only the leading FROM and trailing TO chunks are registered; everything
// else is routed verbatim by internal/conn (SR is "route, never parse the
// body" per spec §4.4).
func (m *Message) extractSR() {
	const prefix = "$SR "
	rest := m.raw[len(prefix):]
	offset := len(prefix)
	sep := bytes.IndexByte(rest, ' ')
	if sep < 0 {
		return
	}
	m.register("FROM", offset, offset+sep)

	lastSep := bytes.LastIndexByte(m.raw, 0x05)
	if lastSep < 0 {
		return
	}
	m.register("TO", lastSep+1, len(m.raw))
}

// extractConnectToMe splits "$ConnectToMe <nick> <ip>:<port>".
func (m *Message) extractConnectToMe() {
	const prefix = "$ConnectToMe "
	rest := m.raw[len(prefix):]
	offset := len(prefix)
	sep := bytes.IndexByte(rest, ' ')
	if sep < 0 {
		return
	}
	m.register("NICK", offset, offset+sep)
	m.register("ADDR", offset+sep+1, len(m.raw))
}

// extractRevConnectToMe splits "$RevConnectToMe <from> <to>".
func (m *Message) extractRevConnectToMe() {
	const prefix = "$RevConnectToMe "
	rest := m.raw[len(prefix):]
	offset := len(prefix)
	sep := bytes.IndexByte(rest, ' ')
	if sep < 0 {
		return
	}
	m.register("FROM", offset, offset+sep)
	m.register("TO", offset+sep+1, len(m.raw))
}

// extractOpForceMove splits "$OpForceMove $Who:<nick>$Where:<addr>$Msg:<msg>".
func (m *Message) extractOpForceMove() {
	const prefix = "$OpForceMove $Who:"
	if !bytes.HasPrefix(m.raw, []byte(prefix)) {
		return
	}
	rest := m.raw[len(prefix):]
	offset := len(prefix)

	whereIdx := bytes.Index(rest, []byte("$Where:"))
	if whereIdx < 0 {
		return
	}
	m.register("NICK", offset, offset+whereIdx)

	rest2 := rest[whereIdx+len("$Where:"):]
	offset2 := offset + whereIdx + len("$Where:")
	msgIdx := bytes.Index(rest2, []byte("$Msg:"))
	if msgIdx < 0 {
		m.register("ADDR", offset2, len(m.raw))
		return
	}
	m.register("ADDR", offset2, offset2+msgIdx)
	m.register("MSG", offset2+msgIdx+len("$Msg:"), len(m.raw))
}

// extractMyIP splits "$MyIP <ip> <tlsver>".
func (m *Message) extractMyIP() {
	const prefix = "$MyIP "
	rest := m.raw[len(prefix):]
	offset := len(prefix)
	sep := bytes.IndexByte(rest, ' ')
	if sep < 0 {
		m.register("IP", offset, len(m.raw))
		return
	}
	m.register("IP", offset, offset+sep)
	m.register("TLSVER", offset+sep+1, len(m.raw))
}

// extractLock splits "$Lock <lock> Pk=<pk>".
func (m *Message) extractLock() {
	const prefix = "$Lock "
	rest := m.raw[len(prefix):]
	offset := len(prefix)
	sep := bytes.IndexByte(rest, ' ')
	if sep < 0 {
		m.register("LOCK", offset, len(m.raw))
		return
	}
	m.register("LOCK", offset, offset+sep)
	pkRest := rest[sep+1:]
	if bytes.HasPrefix(pkRest, []byte("Pk=")) {
		m.register("PK", offset+sep+1+3, len(m.raw))
	}
}
