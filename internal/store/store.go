// Package store persists hub state in SQLite: the ban/unban history,
// kick log, penalty rights, operator-configurable tables (conn types,
// client list, custom redirects), registrations, and the ambient
// audit log / MOTD documents (spec §6.3).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
	_ "modernc.org/sqlite"

	"vlhub/hub/internal/access"
)

// ErrNotFound is returned when a lookup by primary key finds no row.
var ErrNotFound = errors.New("store: row not found")

// Store persists hub state in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database, enables WAL mode and a busy
// timeout so operator CLI reads don't collide with the hub's writers, and
// runs migrations.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: serialize writers, WAL still lets readers in

	st := &Store{db: db}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("sqlite store opened", "path", path)
	return st, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Backup writes a consistent snapshot of the database to outPath using
// SQLite's own VACUUM INTO, which copies live data without blocking
// concurrent readers the way a raw file copy against a WAL database would.
func (s *Store) Backup(ctx context.Context, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	_, err := s.db.ExecContext(ctx, "VACUUM INTO ?", outPath)
	if err != nil {
		return fmt.Errorf("vacuum into %s: %w", outPath, err)
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS banlist (
	ip VARCHAR(15) NOT NULL,
	nick VARCHAR(128) NOT NULL,
	ban_type TINYINT NOT NULL,
	host VARCHAR(255) NOT NULL DEFAULT '',
	range_fr BIGINT NOT NULL DEFAULT 0,
	range_to BIGINT NOT NULL DEFAULT 0,
	date_start INT NOT NULL,
	date_limit INT NOT NULL DEFAULT 0,
	last_hit INT NOT NULL DEFAULT 0,
	nick_op VARCHAR(128) NOT NULL,
	reason VARCHAR(255) NOT NULL DEFAULT '',
	note_op VARCHAR(255) NOT NULL DEFAULT '',
	note_usr VARCHAR(255) NOT NULL DEFAULT '',
	share_size VARCHAR(18) NOT NULL DEFAULT '',
	PRIMARY KEY(ip, nick)
);

CREATE TABLE IF NOT EXISTS unbanlist (
	ip VARCHAR(15) NOT NULL,
	nick VARCHAR(128) NOT NULL,
	ban_type TINYINT NOT NULL,
	host VARCHAR(255) NOT NULL DEFAULT '',
	range_fr BIGINT NOT NULL DEFAULT 0,
	range_to BIGINT NOT NULL DEFAULT 0,
	date_start INT NOT NULL,
	date_limit INT NOT NULL DEFAULT 0,
	last_hit INT NOT NULL DEFAULT 0,
	nick_op VARCHAR(128) NOT NULL,
	reason VARCHAR(255) NOT NULL DEFAULT '',
	note_op VARCHAR(255) NOT NULL DEFAULT '',
	note_usr VARCHAR(255) NOT NULL DEFAULT '',
	share_size VARCHAR(18) NOT NULL DEFAULT '',
	date_unban INT NOT NULL,
	unban_op VARCHAR(128) NOT NULL,
	unban_reason VARCHAR(255) NOT NULL DEFAULT '',
	PRIMARY KEY(ip, nick, date_unban)
);

CREATE TABLE IF NOT EXISTS kicklist (
	nick VARCHAR(128) NOT NULL,
	time INT NOT NULL,
	ip VARCHAR(15) NOT NULL DEFAULT '',
	host VARCHAR(255) NOT NULL DEFAULT '',
	share_size VARCHAR(15) NOT NULL DEFAULT '',
	reason VARCHAR(255) NOT NULL DEFAULT '',
	op VARCHAR(128) NOT NULL,
	is_drop TINYINT NOT NULL DEFAULT 0,
	PRIMARY KEY(nick, time)
);

CREATE TABLE IF NOT EXISTS temp_rights (
	nick VARCHAR(128) PRIMARY KEY,
	op VARCHAR(128) NOT NULL,
	since INT NOT NULL,
	st_chat INT NOT NULL DEFAULT 0,
	st_search INT NOT NULL DEFAULT 0,
	st_ctm INT NOT NULL DEFAULT 0,
	st_pm INT NOT NULL DEFAULT 0,
	st_kick INT NOT NULL DEFAULT 0,
	st_share0 INT NOT NULL DEFAULT 0,
	st_reg INT NOT NULL DEFAULT 0,
	st_opchat INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS SetupList (
	file VARCHAR(30) NOT NULL,
	var VARCHAR(50) NOT NULL,
	val TEXT NOT NULL DEFAULT '',
	PRIMARY KEY(file, var)
);

CREATE TABLE IF NOT EXISTS conn_types (
	identifier VARCHAR(16) PRIMARY KEY,
	description VARCHAR(64) NOT NULL DEFAULT '',
	tag_min_slots INT NOT NULL DEFAULT 0,
	tag_max_slots INT NOT NULL DEFAULT 0,
	tag_min_limit DOUBLE NOT NULL DEFAULT 0,
	tag_min_ls_ratio DOUBLE NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS client_list (
	name VARCHAR(125) PRIMARY KEY,
	tag_id VARCHAR(125) NOT NULL DEFAULT '',
	min_version DECIMAL(8,5) NOT NULL DEFAULT 0,
	max_version DECIMAL(8,5) NOT NULL DEFAULT 0,
	min_ver_use DECIMAL(8,5) NOT NULL DEFAULT 0,
	ban TINYINT NOT NULL DEFAULT 0,
	enable TINYINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS custom_redirects (
	address VARCHAR(125) PRIMARY KEY,
	flag SMALLINT NOT NULL DEFAULT 0,
	start TINYINT NOT NULL DEFAULT 0,
	stop TINYINT NOT NULL DEFAULT 255,
	country VARCHAR(50) NOT NULL DEFAULT '',
	secure TINYINT NOT NULL DEFAULT 0,
	share INT NOT NULL DEFAULT 0,
	enable TINYINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS registered_users (
	nick VARCHAR(128) PRIMARY KEY,
	pwd VARCHAR(255) NOT NULL,
	pwd_type TINYINT NOT NULL DEFAULT 0,
	class TINYINT NOT NULL DEFAULT 1,
	enabled TINYINT NOT NULL DEFAULT 1,
	flags INT NOT NULL DEFAULT 0,
	notes VARCHAR(255) NOT NULL DEFAULT '',
	created_at INT NOT NULL,
	last_login INT NOT NULL DEFAULT 0,
	login_count INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INT NOT NULL,
	actor VARCHAR(128) NOT NULL,
	action VARCHAR(64) NOT NULL,
	target VARCHAR(128) NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log(ts);

CREATE TABLE IF NOT EXISTS motd_docs (
	slug VARCHAR(64) PRIMARY KEY,
	title VARCHAR(255) NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	updated_at INT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run sqlite migrations: %w", err)
	}
	slog.Debug("sqlite migrations applied")
	return nil
}

// kicklistArchiveTable names the weekly rollover table a scheduled job
// copies aged kicklist rows into (spec doesn't mandate a retention scheme;
// operators routinely want old kicks out of the hot table without losing
// history, so the scheduler archives by ISO week). go-strftime was already
// an indirect dependency of modernc.org/sqlite (it backs sqlite's
// strftime() SQL function); this is its one direct call site.
func kicklistArchiveTable(t time.Time) string {
	return "kicklist_" + strftime.Format("%G_W%V", t)
}

// ArchiveKicksOlderThan copies kicklist rows older than cutoff into a
// weekly-named archive table and deletes them from the hot table. main.go
// calls it from the scheduler's slow tick.
func (s *Store) ArchiveKicksOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	table := kicklistArchiveTable(cutoff)
	createArchive := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		nick VARCHAR(128) NOT NULL, time INT NOT NULL, ip VARCHAR(15) NOT NULL DEFAULT '',
		host VARCHAR(255) NOT NULL DEFAULT '', share_size VARCHAR(15) NOT NULL DEFAULT '',
		reason VARCHAR(255) NOT NULL DEFAULT '', op VARCHAR(128) NOT NULL, is_drop TINYINT NOT NULL DEFAULT 0,
		PRIMARY KEY(nick, time))`, table)
	if _, err := s.db.ExecContext(ctx, createArchive); err != nil {
		return 0, fmt.Errorf("create kicklist archive table: %w", err)
	}
	copyStmt := fmt.Sprintf(`INSERT OR IGNORE INTO %q SELECT * FROM kicklist WHERE time < ?`, table)
	if _, err := s.db.ExecContext(ctx, copyStmt, cutoff.Unix()); err != nil {
		return 0, fmt.Errorf("archive kicklist rows: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM kicklist WHERE time < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune archived kicklist rows: %w", err)
	}
	n, _ := result.RowsAffected()
	slog.Debug("kicklist archived", "table", table, "rows", n)
	return n, nil
}

// --- bans ---

// InsertBan upserts a banlist row.
func (s *Store) InsertBan(ctx context.Context, b *access.Ban) error {
	const q = `
INSERT INTO banlist (ip, nick, ban_type, host, range_fr, range_to, date_start, date_limit, last_hit, nick_op, reason, note_op, note_usr, share_size)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(ip, nick) DO UPDATE SET
	ban_type=excluded.ban_type, host=excluded.host, range_fr=excluded.range_fr, range_to=excluded.range_to,
	date_limit=excluded.date_limit, nick_op=excluded.nick_op, reason=excluded.reason,
	note_op=excluded.note_op, note_usr=excluded.note_usr, share_size=excluded.share_size
`
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, q, b.IP, b.Nick, int(b.Kind), b.Host, b.RangeFrom, b.RangeTo, now, b.DateLimit, b.LastHit, b.OpNick, b.Reason, b.NoteOp, b.NoteUsr, b.ShareSize)
	if err != nil {
		return fmt.Errorf("insert ban: %w", err)
	}
	return nil
}

// Unban deletes the banlist row for (ip, nick) and records it in
// unbanlist, preserving spec §8's "Ban(n); Unban(n)" law: no visible row
// remains in banlist, exactly one appears in unban history.
func (s *Store) Unban(ctx context.Context, ip, nick, unbanOp, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unban transaction: %w", err)
	}
	defer tx.Rollback()

	const moveQ = `
INSERT INTO unbanlist (ip, nick, ban_type, host, range_fr, range_to, date_start, date_limit, last_hit, nick_op, reason, note_op, note_usr, share_size, date_unban, unban_op, unban_reason)
SELECT ip, nick, ban_type, host, range_fr, range_to, date_start, date_limit, last_hit, nick_op, reason, note_op, note_usr, share_size, ?, ?, ?
FROM banlist WHERE ip = ? AND nick = ?
`
	res, err := tx.ExecContext(ctx, moveQ, time.Now().Unix(), unbanOp, reason, ip, nick)
	if err != nil {
		return fmt.Errorf("archive unban row: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM banlist WHERE ip = ? AND nick = ?`, ip, nick); err != nil {
		return fmt.Errorf("delete ban row: %w", err)
	}
	return tx.Commit()
}

// ListBans returns every currently active banlist row.
func (s *Store) ListBans(ctx context.Context) ([]*access.Ban, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ip, nick, ban_type, host, range_fr, range_to, date_start, date_limit, last_hit, nick_op, reason, note_op, note_usr, share_size FROM banlist`)
	if err != nil {
		return nil, fmt.Errorf("query banlist: %w", err)
	}
	defer rows.Close()

	var out []*access.Ban
	for rows.Next() {
		b := &access.Ban{}
		var kind int
		if err := rows.Scan(&b.IP, &b.Nick, &kind, &b.Host, &b.RangeFrom, &b.RangeTo, &b.DateStart, &b.DateLimit, &b.LastHit, &b.OpNick, &b.Reason, &b.NoteOp, &b.NoteUsr, &b.ShareSize); err != nil {
			return nil, fmt.Errorf("scan ban row: %w", err)
		}
		b.Kind = access.MatcherKind(kind)
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- kicks ---

// InsertKick appends a kicklist row.
func (s *Store) InsertKick(ctx context.Context, nick, ip, host, shareSize, reason, op string, isDrop bool) error {
	const q = `INSERT INTO kicklist (nick, time, ip, host, share_size, reason, op, is_drop) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, nick, time.Now().Unix(), ip, host, shareSize, reason, op, boolToInt(isDrop))
	if err != nil {
		return fmt.Errorf("insert kick: %w", err)
	}
	return nil
}

// --- temp rights (penalty rows) ---

// UpsertPenaltyRow writes a penalty row back to storage after an operator
// `!setright` mutation.
func (s *Store) UpsertPenaltyRow(ctx context.Context, r access.PenaltyRow) error {
	const q = `
INSERT INTO temp_rights (nick, op, since, st_chat, st_search, st_ctm, st_pm, st_kick, st_share0, st_reg, st_opchat)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(nick) DO UPDATE SET
	op=excluded.op, since=excluded.since, st_chat=excluded.st_chat, st_search=excluded.st_search,
	st_ctm=excluded.st_ctm, st_pm=excluded.st_pm, st_kick=excluded.st_kick, st_share0=excluded.st_share0,
	st_reg=excluded.st_reg, st_opchat=excluded.st_opchat
`
	_, err := s.db.ExecContext(ctx, q, r.Nick, r.Op, r.Since, r.StChat, r.StSearch, r.StCTM, r.StPM, r.StKick, r.StShare0, r.StReg, r.StOpChat)
	if err != nil {
		return fmt.Errorf("upsert penalty row: %w", err)
	}
	return nil
}

// PenaltyRowByNick loads the penalty row for nick, if any.
func (s *Store) PenaltyRowByNick(ctx context.Context, nick string) (access.PenaltyRow, error) {
	const q = `SELECT nick, op, since, st_chat, st_search, st_ctm, st_pm, st_kick, st_share0, st_reg, st_opchat FROM temp_rights WHERE nick = ?`
	var r access.PenaltyRow
	err := s.db.QueryRowContext(ctx, q, nick).Scan(&r.Nick, &r.Op, &r.Since, &r.StChat, &r.StSearch, &r.StCTM, &r.StPM, &r.StKick, &r.StShare0, &r.StReg, &r.StOpChat)
	if errors.Is(err, sql.ErrNoRows) {
		return access.PenaltyRow{}, ErrNotFound
	}
	if err != nil {
		return access.PenaltyRow{}, fmt.Errorf("load penalty row: %w", err)
	}
	return r, nil
}

// --- config (SetupList) ---

// GetConfig returns all var/val pairs for the named config file section.
func (s *Store) GetConfig(ctx context.Context, file string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT var, val FROM SetupList WHERE file = ?`, file)
	if err != nil {
		return nil, fmt.Errorf("query config: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan config row: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SetConfig upserts one config variable.
func (s *Store) SetConfig(ctx context.Context, file, key, val string) error {
	const q = `INSERT INTO SetupList (file, var, val) VALUES (?, ?, ?) ON CONFLICT(file, var) DO UPDATE SET val = excluded.val`
	_, err := s.db.ExecContext(ctx, q, file, key, val)
	if err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	return nil
}

// --- conn_types / client_list / custom_redirects: thin CRUD used by the
// operator command surface (spec §6.4) ---

// ConnType is one row of conn_types.
type ConnType struct {
	Identifier    string
	Description   string
	TagMinSlots   int
	TagMaxSlots   int
	TagMinLimit   float64
	TagMinLSRatio float64
}

func (s *Store) UpsertConnType(ctx context.Context, c ConnType) error {
	const q = `
INSERT INTO conn_types (identifier, description, tag_min_slots, tag_max_slots, tag_min_limit, tag_min_ls_ratio)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(identifier) DO UPDATE SET description=excluded.description, tag_min_slots=excluded.tag_min_slots,
	tag_max_slots=excluded.tag_max_slots, tag_min_limit=excluded.tag_min_limit, tag_min_ls_ratio=excluded.tag_min_ls_ratio
`
	_, err := s.db.ExecContext(ctx, q, c.Identifier, c.Description, c.TagMinSlots, c.TagMaxSlots, c.TagMinLimit, c.TagMinLSRatio)
	return err
}

func (s *Store) DeleteConnType(ctx context.Context, identifier string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conn_types WHERE identifier = ?`, identifier)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ConnTypeByIdentifier looks up the single conn_types row for a parsed
// MyINFO tag's client id. ErrNotFound means no policy is configured for
// that client id (handlers treat this as "unrestricted").
func (s *Store) ConnTypeByIdentifier(ctx context.Context, identifier string) (ConnType, error) {
	const q = `SELECT identifier, description, tag_min_slots, tag_max_slots, tag_min_limit, tag_min_ls_ratio FROM conn_types WHERE identifier = ?`
	var c ConnType
	err := s.db.QueryRowContext(ctx, q, identifier).Scan(&c.Identifier, &c.Description, &c.TagMinSlots, &c.TagMaxSlots, &c.TagMinLimit, &c.TagMinLSRatio)
	if errors.Is(err, sql.ErrNoRows) {
		return ConnType{}, ErrNotFound
	}
	if err != nil {
		return ConnType{}, err
	}
	return c, nil
}

func (s *Store) ListConnTypes(ctx context.Context) ([]ConnType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT identifier, description, tag_min_slots, tag_max_slots, tag_min_limit, tag_min_ls_ratio FROM conn_types`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ConnType
	for rows.Next() {
		var c ConnType
		if err := rows.Scan(&c.Identifier, &c.Description, &c.TagMinSlots, &c.TagMaxSlots, &c.TagMinLimit, &c.TagMinLSRatio); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClientListEntry is one row of client_list: per-client-tag policy
// consulted by MyINFO tag validation (spec §4.7) — a banned client id, or
// one whose version falls outside [MinVersion, MaxVersion], closes the
// connection with TAG_INVALID.
type ClientListEntry struct {
	Name       string
	TagID      string
	MinVersion float64
	MaxVersion float64
	MinVerUse  float64
	Ban        bool
	Enable     bool
}

func (s *Store) UpsertClientListEntry(ctx context.Context, c ClientListEntry) error {
	const q = `
INSERT INTO client_list (name, tag_id, min_version, max_version, min_ver_use, ban, enable)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET tag_id=excluded.tag_id, min_version=excluded.min_version,
	max_version=excluded.max_version, min_ver_use=excluded.min_ver_use, ban=excluded.ban, enable=excluded.enable
`
	_, err := s.db.ExecContext(ctx, q, c.Name, c.TagID, c.MinVersion, c.MaxVersion, c.MinVerUse, boolToInt(c.Ban), boolToInt(c.Enable))
	return err
}

func (s *Store) DeleteClientListEntry(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM client_list WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListClientListEntries(ctx context.Context) ([]ClientListEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, tag_id, min_version, max_version, min_ver_use, ban, enable FROM client_list`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ClientListEntry
	for rows.Next() {
		var c ClientListEntry
		var ban, enable int
		if err := rows.Scan(&c.Name, &c.TagID, &c.MinVersion, &c.MaxVersion, &c.MinVerUse, &ban, &enable); err != nil {
			return nil, err
		}
		c.Ban, c.Enable = ban != 0, enable != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClientListEntryByTagID looks up the enabled policy row whose tag_id
// matches a parsed MyINFO tag's client id. ErrNotFound means no policy is
// configured for that client id (handlers treat this as "unrestricted").
func (s *Store) ClientListEntryByTagID(ctx context.Context, tagID string) (ClientListEntry, error) {
	const q = `SELECT name, tag_id, min_version, max_version, min_ver_use, ban, enable FROM client_list WHERE tag_id = ? AND enable = 1`
	var c ClientListEntry
	var ban, enable int
	err := s.db.QueryRowContext(ctx, q, tagID).Scan(&c.Name, &c.TagID, &c.MinVersion, &c.MaxVersion, &c.MinVerUse, &ban, &enable)
	if errors.Is(err, sql.ErrNoRows) {
		return ClientListEntry{}, ErrNotFound
	}
	if err != nil {
		return ClientListEntry{}, err
	}
	c.Ban, c.Enable = ban != 0, enable != 0
	return c, nil
}

// CustomRedirect is one row of custom_redirects, keyed by the close-reason
// enum's integer value (spec §6.2) stored in flag.
type CustomRedirect struct {
	Address string
	Flag    int
	Start   int
	Stop    int
	Country string
	Secure  bool
	Share   int64
	Enable  bool
}

func (s *Store) UpsertCustomRedirect(ctx context.Context, r CustomRedirect) error {
	const q = `
INSERT INTO custom_redirects (address, flag, start, stop, country, secure, share, enable)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(address) DO UPDATE SET flag=excluded.flag, start=excluded.start, stop=excluded.stop,
	country=excluded.country, secure=excluded.secure, share=excluded.share, enable=excluded.enable
`
	_, err := s.db.ExecContext(ctx, q, r.Address, r.Flag, r.Start, r.Stop, r.Country, boolToInt(r.Secure), r.Share, boolToInt(r.Enable))
	return err
}

func (s *Store) RedirectForReason(ctx context.Context, reasonFlag int) (CustomRedirect, error) {
	const q = `SELECT address, flag, start, stop, country, secure, share, enable FROM custom_redirects WHERE flag = ? AND enable = 1 LIMIT 1`
	var r CustomRedirect
	var secure, enable int
	err := s.db.QueryRowContext(ctx, q, reasonFlag).Scan(&r.Address, &r.Flag, &r.Start, &r.Stop, &r.Country, &secure, &r.Share, &enable)
	if errors.Is(err, sql.ErrNoRows) {
		return CustomRedirect{}, ErrNotFound
	}
	if err != nil {
		return CustomRedirect{}, err
	}
	r.Secure, r.Enable = secure != 0, enable != 0
	return r, nil
}

// --- registrations ---

// Registration is a row of the registered_users table.
type Registration struct {
	Nick       string
	Pwd        string
	PwdType    int
	Class      int
	Enabled    bool
	Flags      int
	Notes      string
	CreatedAt  time.Time
	LastLogin  time.Time
	LoginCount int
}

func (s *Store) UpsertRegistration(ctx context.Context, r Registration) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO registered_users (nick, pwd, pwd_type, class, enabled, flags, notes, created_at, last_login, login_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(nick) DO UPDATE SET pwd=excluded.pwd, pwd_type=excluded.pwd_type, class=excluded.class,
	enabled=excluded.enabled, flags=excluded.flags, notes=excluded.notes
`
	_, err := s.db.ExecContext(ctx, q, r.Nick, r.Pwd, r.PwdType, r.Class, boolToInt(r.Enabled), r.Flags, r.Notes, r.CreatedAt.Unix(), r.LastLogin.Unix(), r.LoginCount)
	return err
}

func (s *Store) RegistrationByNick(ctx context.Context, nick string) (Registration, error) {
	const q = `SELECT nick, pwd, pwd_type, class, enabled, flags, notes, created_at, last_login, login_count FROM registered_users WHERE nick = ? COLLATE NOCASE`
	var r Registration
	var enabled int
	var created, last int64
	err := s.db.QueryRowContext(ctx, q, nick).Scan(&r.Nick, &r.Pwd, &r.PwdType, &r.Class, &enabled, &r.Flags, &r.Notes, &created, &last, &r.LoginCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Registration{}, ErrNotFound
	}
	if err != nil {
		return Registration{}, err
	}
	r.Enabled = enabled != 0
	r.CreatedAt, r.LastLogin = time.Unix(created, 0), time.Unix(last, 0)
	return r, nil
}

func (s *Store) RecordLogin(ctx context.Context, nick string) error {
	const q = `UPDATE registered_users SET last_login = ?, login_count = login_count + 1 WHERE nick = ? COLLATE NOCASE`
	_, err := s.db.ExecContext(ctx, q, time.Now().Unix(), nick)
	return err
}

func (s *Store) DeleteRegistration(ctx context.Context, nick string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM registered_users WHERE nick = ? COLLATE NOCASE`, nick)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- audit log ---

// AppendAudit records one operator/system action (spec §7 class 4: all
// operator audit goes to opchat; this is the durable trail behind it).
func (s *Store) AppendAudit(ctx context.Context, actor, action, target, detail string) error {
	const q = `INSERT INTO audit_log (ts, actor, action, target, detail) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, time.Now().Unix(), actor, action, target, detail)
	return err
}

// --- MOTD documents ---

// MotdDoc is one named hub document (rules, MOTD, welcome banner).
type MotdDoc struct {
	Slug      string
	Title     string
	Body      string
	UpdatedAt time.Time
}

func (s *Store) UpsertMotdDoc(ctx context.Context, d MotdDoc) error {
	const q = `
INSERT INTO motd_docs (slug, title, body, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(slug) DO UPDATE SET title=excluded.title, body=excluded.body, updated_at=excluded.updated_at
`
	_, err := s.db.ExecContext(ctx, q, d.Slug, d.Title, d.Body, time.Now().Unix())
	return err
}

func (s *Store) MotdDocBySlug(ctx context.Context, slug string) (MotdDoc, error) {
	const q = `SELECT slug, title, body, updated_at FROM motd_docs WHERE slug = ?`
	var d MotdDoc
	var updated int64
	err := s.db.QueryRowContext(ctx, q, slug).Scan(&d.Slug, &d.Title, &d.Body, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return MotdDoc{}, ErrNotFound
	}
	if err != nil {
		return MotdDoc{}, err
	}
	d.UpdatedAt = time.Unix(updated, 0)
	return d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
