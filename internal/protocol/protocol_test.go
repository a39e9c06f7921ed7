package protocol

import (
	"bytes"
	"testing"
)

func TestSplitFrames(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantCount int
		wantRest  string
	}{
		{"single frame", "$Lock abc|", 1, ""},
		{"two frames", "$Lock abc|$Key def|", 2, ""},
		{"trailing partial", "$Lock abc|$Ke", 1, "$Ke"},
		{"empty input", "", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, rest := SplitFrames([]byte(tt.in))
			if len(frames) != tt.wantCount {
				t.Fatalf("frame count: got %d, want %d", len(frames), tt.wantCount)
			}
			if string(rest) != tt.wantRest {
				t.Errorf("rest: got %q, want %q", rest, tt.wantRest)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		frame string
		want  Kind
	}{
		{"<alice> hello", KindChat},
		{"$Search Hub:alice F?T?0?9?TTH:AAAA", KindSearchHub},
		{"$Search 1.2.3.4:412 F?T?0?9?TTH:AAAA", KindSearch},
		{"$MyINFO $ALL alice desc$ $100\x01$mail$100$", KindMyINFO},
		{"$Key abc", KindKey},
		{"", KindUnknown},
		{"garbage", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			m := Parse([]byte(tt.frame))
			if m.Kind != tt.want {
				t.Errorf("classify(%q) = %v, want %v", tt.frame, m.Kind, tt.want)
			}
		})
	}
}

func TestMessageChatChunks(t *testing.T) {
	m := Parse([]byte("<alice> +userinfo"))
	if got := m.ChunkString("NICK"); got != "alice" {
		t.Errorf("NICK = %q, want alice", got)
	}
	if got := m.ChunkString("MSG"); got != "+userinfo" {
		t.Errorf("MSG = %q, want +userinfo", got)
	}
}

func TestMessageToChunks(t *testing.T) {
	m := Parse([]byte("$To: bob From: alice $<alice> hi there"))
	if got := m.ChunkString("TO"); got != "bob" {
		t.Errorf("TO = %q, want bob", got)
	}
	if got := m.ChunkString("FROM"); got != "alice" {
		t.Errorf("FROM = %q, want alice", got)
	}
	if got := m.ChunkString("MSG"); got != "hi there" {
		t.Errorf("MSG = %q, want %q", got, "hi there")
	}
}

func TestMessageMyINFOChunks(t *testing.T) {
	frame := "$MyINFO $ALL alice desc<++ V:0.871,M:A,H:1/0/0,S:1>$ $100\x01$alice@x$1073741824$"
	m := Parse([]byte(frame))
	if got := m.ChunkString("NICK"); got != "alice" {
		t.Errorf("NICK = %q", got)
	}
	if got := m.ChunkString("DESC"); got != "desc" {
		t.Errorf("DESC = %q, want desc", got)
	}
	if got := m.ChunkString("TAG"); got != "<++ V:0.871,M:A,H:1/0/0,S:1>" {
		t.Errorf("TAG = %q", got)
	}
	if got := m.ChunkString("SPEED"); got != "100" {
		t.Errorf("SPEED = %q, want 100", got)
	}
	if got := m.ChunkString("MAIL"); got != "alice@x" {
		t.Errorf("MAIL = %q", got)
	}
	if got := m.ChunkString("SIZE"); got != "1073741824" {
		t.Errorf("SIZE = %q", got)
	}

	tag, err := ParseTag(m.Chunk("INFO"))
	if err != nil {
		t.Fatalf("ParseTag: %v", err)
	}
	if tag.ClientID != "++" {
		t.Errorf("ClientID = %q, want ++", tag.ClientID)
	}
	if tag.Mode != 'A' {
		t.Errorf("Mode = %q, want A", tag.Mode)
	}
	if tag.Slots != 1 {
		t.Errorf("Slots = %d, want 1", tag.Slots)
	}
}

func TestParseTagMissing(t *testing.T) {
	if _, err := ParseTag([]byte("just a description, no tag")); err != ErrTagMissing {
		t.Errorf("err = %v, want ErrTagMissing", err)
	}
}

func TestParseTagInvalid(t *testing.T) {
	if _, err := ParseTag([]byte("desc<not a valid tag>")); err != ErrTagInvalid {
		t.Errorf("err = %v, want ErrTagInvalid", err)
	}
}

func TestMessageSetChunkRoundTrip(t *testing.T) {
	m := Parse([]byte("<alice> hello"))
	if m.Modified() {
		t.Fatal("fresh message should not be modified")
	}
	m.SetChunk("MSG", []byte("hello, edited"))
	if !m.Modified() {
		t.Fatal("expected Modified() after SetChunk")
	}
	got := string(m.Serialize())
	want := "<alice> hello, edited"
	if got != want {
		t.Errorf("Serialize() = %q, want %q", got, want)
	}
}

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	for _, dcn := range []bool{false, true} {
		for _, s := range []string{
			"plain text",
			"has a $ dollar",
			"has a | pipe",
			"has ctl \x05 five",
			"$|\x05 all three",
			"",
		} {
			esc := Escape([]byte(s), dcn)
			got := string(Unescape(esc))
			if got != s {
				t.Errorf("dcn=%v round-trip(%q) = %q", dcn, s, got)
			}
		}
	}
}

func TestUnescapeAcceptsBothForms(t *testing.T) {
	numeric := Unescape([]byte("a&#36;b&#124;c&#5;d"))
	dcn := Unescape([]byte("a/%DCN036%/b/%DCN124%/c/%DCN005%/d"))
	if string(numeric) != string(dcn) {
		t.Errorf("forms diverge: %q vs %q", numeric, dcn)
	}
	if string(numeric) != "a$b|c\x05d" {
		t.Errorf("got %q", numeric)
	}
}

func TestLock2KeyDeterministic(t *testing.T) {
	lock := []byte("EXTENDEDPROTOCOLABCDEFGH")
	k1 := Lock2Key(lock)
	k2 := Lock2Key(lock)
	if !bytes.Equal(k1, k2) {
		t.Error("Lock2Key is not deterministic")
	}
	if len(k1) == 0 {
		t.Fatal("expected non-empty key")
	}
}

func TestLock2KeyRoundTrip(t *testing.T) {
	locks := []string{
		"EXTENDEDPROTOCOLABCDEFGH",
		"AB",
		"SHORTLOCKXY",
	}
	for _, lock := range locks {
		key := Lock2Key([]byte(lock))
		back := Key2Lock(key)
		if string(back) != lock {
			t.Errorf("Key2Lock(Lock2Key(%q)) = %q", lock, back)
		}
	}
}

func TestGenerateLockIsUsable(t *testing.T) {
	lock, err := GenerateLock(30)
	if err != nil {
		t.Fatalf("GenerateLock: %v", err)
	}
	if len(lock) < 18 {
		t.Fatalf("lock too short: %q", lock)
	}
	for _, b := range []byte(lock) {
		if b == ' ' || b == '$' || b == '|' {
			t.Fatalf("lock contains reserved byte: %q", lock)
		}
	}
	key := Lock2Key([]byte(lock))
	if len(key) == 0 {
		t.Fatal("expected derivable key")
	}
}

func TestBuildMyINFO(t *testing.T) {
	frame := BuildMyINFO("alice", "desc", "<++ V:1.0,M:A,H:1/0/0,S:1>", 100, 0x01, "a@b", 12345)
	m := Parse([]byte(frame))
	if m.Kind != KindMyINFO {
		t.Fatalf("BuildMyINFO produced kind %v", m.Kind)
	}
	if got := m.ChunkString("NICK"); got != "alice" {
		t.Errorf("NICK = %q", got)
	}
	if got := m.ChunkString("SIZE"); got != "12345" {
		t.Errorf("SIZE = %q", got)
	}
}
