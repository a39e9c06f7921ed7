package protocol

import (
	"bytes"
	"strconv"

	"github.com/dustin/go-humanize"
)

// Serialize returns the wire frame (without the trailing delimiter). If no
// chunk was overridden, the original bytes are returned unchanged; if a
// supported kind was mutated, the frame is rebuilt from current chunk
// values (spec §4.1: "outgoing frame... serialised from chunks").
func (m *Message) Serialize() []byte {
	if !m.Modified() {
		return m.Raw()
	}
	switch m.Kind {
	case KindChat:
		return bytes.Join([][]byte{[]byte("<" + m.ChunkString("NICK") + "> "), m.Chunk("MSG")}, nil)
	case KindTo:
		return []byte("$To: " + m.ChunkString("TO") + " From: " + m.ChunkString("FROM") +
			" $<" + m.ChunkString("FROM") + "> " + m.ChunkString("MSG"))
	case KindMCTo:
		return []byte("$MCTo: " + m.ChunkString("TO") + " $" + m.ChunkString("FROM") + " " + m.ChunkString("MSG"))
	case KindMyINFO:
		return m.serializeMyINFO()
	default:
		return m.Raw()
	}
}

func (m *Message) serializeMyINFO() []byte {
	desc := m.ChunkString("DESC")
	tag := m.ChunkString("TAG")
	speed := m.ChunkString("SPEED")
	flag := m.ChunkString("FLAG")
	if flag == "" {
		flag = "\x01"
	}
	return []byte("$MyINFO " + m.ChunkString("ALL") + " " + m.ChunkString("NICK") + " " +
		desc + tag + "$ $" + speed + flag + "$" + m.ChunkString("MAIL") + "$" + m.ChunkString("SIZE") + "$")
}

// BuildMyINFO assembles a full $MyINFO frame from components (without the
// trailing delimiter). A zero flag is sent as 0x01. The package's and
// internal/conn's tests use it to build client frames.
func BuildMyINFO(nick, desc, tag string, speedKbps int, flag byte, mail string, shareBytes int64) string {
	if flag == 0 {
		flag = 0x01
	}
	return "$MyINFO $ALL " + nick + " " + desc + tag + "$ $" + strconv.Itoa(speedKbps) + string(flag) +
		"$" + mail + "$" + strconv.FormatInt(shareBytes, 10) + "$"
}

// DescribeShare renders a byte count in human-readable form (via
// go-humanize) — never for the wire, which always carries the raw decimal
// byte count. Nothing in the hub calls it.
func DescribeShare(bytes int64) string {
	return humanize.Bytes(uint64(bytes))
}
