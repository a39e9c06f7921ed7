package protocol

import "bytes"

// extractMyINFO splits:
//
//	$MyINFO $ALL <nick> <desc><tag>$ $<speed><flag>$<mail>$<share>$
//
// into the named chunks spec §4.1 calls out: ALL (aka DEST — the
// $ALL-or-target-nick marker token, kept for both historical dialects),
// NICK, INFO (desc+tag undivided), DESC (desc with the <tag> suffix
// stripped), SPEED, MAIL, SIZE. FLAG is the single connection-flag byte
// following speed, exposed separately since handlers branch on it often
// enough to want it unparsed-out.
func (m *Message) extractMyINFO() {
	const prefix = "$MyINFO "
	if !bytes.HasPrefix(m.raw, []byte(prefix)) {
		return
	}
	rest := m.raw[len(prefix):]
	offset := len(prefix)

	allEnd := bytes.IndexByte(rest, ' ')
	if allEnd < 0 {
		return
	}
	m.register("ALL", offset, offset+allEnd)
	m.register("DEST", offset, offset+allEnd)

	rest2 := rest[allEnd+1:]
	offset2 := offset + allEnd + 1
	nickEnd := bytes.IndexByte(rest2, ' ')
	if nickEnd < 0 {
		return
	}
	m.register("NICK", offset2, offset2+nickEnd)

	rest3 := rest2[nickEnd+1:]
	offset3 := offset2 + nickEnd + 1

	infoEnd := bytes.Index(rest3, []byte("$ $"))
	if infoEnd < 0 {
		return
	}
	m.register("INFO", offset3, offset3+infoEnd)
	m.registerDesc(offset3, offset3+infoEnd)

	rest4 := rest3[infoEnd+len("$ $"):]
	offset4 := offset3 + infoEnd + len("$ $")

	speedEnd := bytes.IndexByte(rest4, '$')
	if speedEnd < 0 || speedEnd == 0 {
		return
	}
	// Last byte of the speed+flag run is the connection-mode flag.
	m.register("SPEED", offset4, offset4+speedEnd-1)
	m.register("FLAG", offset4+speedEnd-1, offset4+speedEnd)

	rest5 := rest4[speedEnd+1:]
	offset5 := offset4 + speedEnd + 1
	mailEnd := bytes.IndexByte(rest5, '$')
	if mailEnd < 0 {
		return
	}
	m.register("MAIL", offset5, offset5+mailEnd)

	rest6 := rest5[mailEnd+1:]
	offset6 := offset5 + mailEnd + 1
	shareEnd := bytes.IndexByte(rest6, '$')
	if shareEnd < 0 {
		shareEnd = len(rest6)
	}
	m.register("SIZE", offset6, offset6+shareEnd)
}

// registerDesc splits the combined INFO span into DESC (free text) by
// stripping a trailing "<...>" tag, if present.
func (m *Message) registerDesc(start, end int) {
	seg := m.raw[start:end]
	if len(seg) == 0 || seg[len(seg)-1] != '>' {
		m.register("DESC", start, end)
		return
	}
	open := bytes.LastIndexByte(seg, '<')
	if open < 0 {
		m.register("DESC", start, end)
		return
	}
	m.register("DESC", start, start+open)
	m.register("TAG", start+open, end)
}
