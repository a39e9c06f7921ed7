package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"vlhub/hub/internal/access"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hub.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestBanInsertListUnban(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	b := access.NewNickBan("mallory", "spam", "op1", time.Time{})
	if err := st.InsertBan(ctx, b); err != nil {
		t.Fatalf("InsertBan() error = %v", err)
	}

	bans, err := st.ListBans(ctx)
	if err != nil {
		t.Fatalf("ListBans() error = %v", err)
	}
	if len(bans) != 1 || bans[0].Nick != "mallory" {
		t.Fatalf("ListBans() = %+v, want one row for mallory", bans)
	}

	if err := st.Unban(ctx, b.IP, b.Nick, "op2", "appeal granted"); err != nil {
		t.Fatalf("Unban() error = %v", err)
	}

	bans, err = st.ListBans(ctx)
	if err != nil {
		t.Fatalf("ListBans() after unban error = %v", err)
	}
	if len(bans) != 0 {
		t.Fatalf("expected banlist empty after unban, got %+v", bans)
	}

	var unbanRows int
	if err := st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM unbanlist WHERE nick = ?`, "mallory").Scan(&unbanRows); err != nil {
		t.Fatalf("count unbanlist rows: %v", err)
	}
	if unbanRows != 1 {
		t.Errorf("unbanlist rows = %d, want 1", unbanRows)
	}
}

func TestUnbanNonexistentReturnsErrNotFound(t *testing.T) {
	st := openTestStore(t)
	err := st.Unban(context.Background(), "1.2.3.4", "nobody", "op1", "reason")
	if err != ErrNotFound {
		t.Fatalf("Unban() error = %v, want ErrNotFound", err)
	}
}

func TestKickInsert(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	if err := st.InsertKick(ctx, "troll", "1.2.3.4", "host.example", "0", "abuse", "op1", false); err != nil {
		t.Fatalf("InsertKick() error = %v", err)
	}
	var count int
	if err := st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kicklist WHERE nick = ?`, "troll").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("kicklist rows = %d, want 1", count)
	}
}

func TestPenaltyRowRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	row := access.PenaltyRow{Nick: "alice", Op: "op1", Since: time.Now().Unix(), StChat: time.Now().Add(time.Hour).Unix()}
	if err := st.UpsertPenaltyRow(ctx, row); err != nil {
		t.Fatalf("UpsertPenaltyRow() error = %v", err)
	}
	got, err := st.PenaltyRowByNick(ctx, "alice")
	if err != nil {
		t.Fatalf("PenaltyRowByNick() error = %v", err)
	}
	if got.StChat != row.StChat {
		t.Errorf("StChat = %d, want %d", got.StChat, row.StChat)
	}
}

func TestPenaltyRowByNickNotFound(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.PenaltyRowByNick(context.Background(), "ghost"); err != ErrNotFound {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestConfigSetAndGet(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	if err := st.SetConfig(ctx, "hub.conf", "hub_name", "TestHub"); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	if err := st.SetConfig(ctx, "hub.conf", "max_users", "500"); err != nil {
		t.Fatal(err)
	}
	cfg, err := st.GetConfig(ctx, "hub.conf")
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if cfg["hub_name"] != "TestHub" || cfg["max_users"] != "500" {
		t.Errorf("GetConfig() = %v", cfg)
	}

	// Overwrite is an upsert, not an additional row.
	if err := st.SetConfig(ctx, "hub.conf", "hub_name", "RenamedHub"); err != nil {
		t.Fatal(err)
	}
	cfg, _ = st.GetConfig(ctx, "hub.conf")
	if cfg["hub_name"] != "RenamedHub" || len(cfg) != 2 {
		t.Errorf("GetConfig() after overwrite = %v", cfg)
	}
}

func TestConnTypeCRUD(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	ct := ConnType{Identifier: "cable", Description: "Cable", TagMinSlots: 1, TagMaxSlots: 10, TagMinLimit: 64}
	if err := st.UpsertConnType(ctx, ct); err != nil {
		t.Fatalf("UpsertConnType() error = %v", err)
	}
	list, err := st.ListConnTypes(ctx)
	if err != nil {
		t.Fatalf("ListConnTypes() error = %v", err)
	}
	if len(list) != 1 || list[0].Identifier != "cable" {
		t.Fatalf("ListConnTypes() = %+v", list)
	}
	if err := st.DeleteConnType(ctx, "cable"); err != nil {
		t.Fatalf("DeleteConnType() error = %v", err)
	}
	if err := st.DeleteConnType(ctx, "cable"); err != ErrNotFound {
		t.Fatalf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestCustomRedirectLookupByFlag(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	r := CustomRedirect{Address: "dchub://redirect.example", Flag: 16, Enable: true} // 16 = RECONNECT per spec §6.2 ordering
	if err := st.UpsertCustomRedirect(ctx, r); err != nil {
		t.Fatalf("UpsertCustomRedirect() error = %v", err)
	}
	got, err := st.RedirectForReason(ctx, 16)
	if err != nil {
		t.Fatalf("RedirectForReason() error = %v", err)
	}
	if got.Address != r.Address {
		t.Errorf("Address = %q, want %q", got.Address, r.Address)
	}
}

func TestRegistrationCaseInsensitiveLookup(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	reg := Registration{Nick: "Alice", Pwd: "hash", Class: 1, Enabled: true}
	if err := st.UpsertRegistration(ctx, reg); err != nil {
		t.Fatalf("UpsertRegistration() error = %v", err)
	}
	got, err := st.RegistrationByNick(ctx, "ALICE")
	if err != nil {
		t.Fatalf("RegistrationByNick() error = %v", err)
	}
	if got.Nick != "Alice" {
		t.Errorf("Nick = %q, want Alice", got.Nick)
	}

	if err := st.RecordLogin(ctx, "alice"); err != nil {
		t.Fatalf("RecordLogin() error = %v", err)
	}
	got, _ = st.RegistrationByNick(ctx, "alice")
	if got.LoginCount != 1 {
		t.Errorf("LoginCount = %d, want 1", got.LoginCount)
	}
}

func TestAuditLogAppend(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	if err := st.AppendAudit(ctx, "op1", "ban", "mallory", "spam"); err != nil {
		t.Fatalf("AppendAudit() error = %v", err)
	}
	var count int
	if err := st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log WHERE actor = 'op1'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("audit_log rows = %d, want 1", count)
	}
}

func TestMotdDocUpsertAndFetch(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	doc := MotdDoc{Slug: "rules", Title: "Hub Rules", Body: "Be nice."}
	if err := st.UpsertMotdDoc(ctx, doc); err != nil {
		t.Fatalf("UpsertMotdDoc() error = %v", err)
	}
	got, err := st.MotdDocBySlug(ctx, "rules")
	if err != nil {
		t.Fatalf("MotdDocBySlug() error = %v", err)
	}
	if got.Body != "Be nice." {
		t.Errorf("Body = %q", got.Body)
	}
}

func TestMotdDocNotFound(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.MotdDocBySlug(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestArchiveKicksOlderThan(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	if _, err := st.db.ExecContext(ctx, `INSERT INTO kicklist (nick, time, op) VALUES (?, ?, ?)`, "oldkick", old.Unix(), "op1"); err != nil {
		t.Fatal(err)
	}
	if err := st.InsertKick(ctx, "freshkick", "", "", "", "", "op1", false); err != nil {
		t.Fatal(err)
	}

	n, err := st.ArchiveKicksOlderThan(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ArchiveKicksOlderThan() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("archived rows = %d, want 1", n)
	}

	var remaining int
	if err := st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kicklist`).Scan(&remaining); err != nil {
		t.Fatal(err)
	}
	if remaining != 1 {
		t.Errorf("kicklist remaining = %d, want 1 (freshkick)", remaining)
	}
}
