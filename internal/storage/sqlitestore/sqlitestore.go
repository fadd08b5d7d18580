// Package sqlitestore is the persistent variant of the per-backend
// storage engine: the same inode/directory/content/xattr model as
// fsengine, plus the auxiliary key-value/key-list log, durable across
// restarts via modernc.org/sqlite. WAL journal mode and a busy_timeout
// keep concurrent readers from tripping over a writer holding the
// database briefly.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"tribfs"
	"tribfs/internal/oplog"
)

const rootIno uint64 = 1

// Store implements both tribfs.ServerFileSystem and tribfs.Storage over a
// single SQLite database file.
type Store struct {
	db *sql.DB
}

// Open creates or reopens the database at path, applying the schema if
// this is a fresh file.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS inodes (
			ino INTEGER PRIMARY KEY, kind INTEGER NOT NULL, mode INTEGER NOT NULL,
			uid INTEGER NOT NULL, gid INTEGER NOT NULL, size INTEGER NOT NULL,
			nlink INTEGER NOT NULL, atime INTEGER NOT NULL, mtime INTEGER NOT NULL,
			ctime INTEGER NOT NULL, open_handles INTEGER NOT NULL, data BLOB
		)`,
		`CREATE TABLE IF NOT EXISTS dirents (
			parent INTEGER NOT NULL, name TEXT NOT NULL, ino INTEGER NOT NULL, kind INTEGER NOT NULL,
			PRIMARY KEY (parent, name)
		)`,
		`CREATE TABLE IF NOT EXISTS xattrs (
			ino INTEGER NOT NULL, name TEXT NOT NULL, value BLOB NOT NULL,
			PRIMARY KEY (ino, name)
		)`,
		`CREATE TABLE IF NOT EXISTS string_log (
			key TEXT NOT NULL, clock INTEGER NOT NULL, val TEXT NOT NULL, kind INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS list_log (
			key TEXT NOT NULL, clock INTEGER NOT NULL, val TEXT NOT NULL, kind INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS string_log_dedup ON string_log(key, clock, val, kind)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS list_log_dedup ON list_log(key, clock, val, kind)`,
		`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value INTEGER NOT NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// metaNext atomically increments and returns a counter stored in meta,
// starting from start if the row does not exist yet.
func (s *Store) metaNext(tx *sql.Tx, key string, start uint64) (uint64, error) {
	var cur uint64
	err := tx.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&cur)
	switch {
	case err == sql.ErrNoRows:
		cur = start
	case err != nil:
		return 0, err
	}
	next := cur + 1
	if _, err := tx.Exec(`INSERT INTO meta(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, next); err != nil {
		return 0, err
	}
	return cur, nil
}

func notFound(ino uint64) error {
	return tribfs.New(tribfs.ErrFileDoesNotExist, "no inode %d", ino)
}

// Init lazily creates the root directory row, owned by the first caller
// to mount.
func (s *Store) Init(ctx context.Context, req tribfs.FileRequest) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM inodes WHERE ino = ?`, rootIno).Scan(&exists)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}
	now := time.Now().UnixNano()
	_, err = s.db.ExecContext(ctx, `INSERT INTO inodes
		(ino, kind, mode, uid, gid, size, nlink, atime, mtime, ctime, open_handles, data)
		VALUES (?, ?, ?, ?, ?, 0, 2, ?, ?, ?, 0, x'')`,
		rootIno, tribfs.KindDirectory, 0o755, req.UID, req.GID, now, now, now)
	return err
}

func scanAttr(row interface {
	Scan(dest ...any) error
}) (tribfs.Attr, error) {
	var (
		a                     tribfs.Attr
		kind                  uint8
		atime, mtime, ctime   int64
	)
	if err := row.Scan(&a.Ino, &kind, &a.Mode, &a.UID, &a.GID, &a.Size, &a.Nlink, &atime, &mtime, &ctime, &a.OpenHandle); err != nil {
		return tribfs.Attr{}, err
	}
	a.Kind = tribfs.InodeKind(kind)
	a.Atime = time.Unix(0, atime)
	a.Mtime = time.Unix(0, mtime)
	a.Ctime = time.Unix(0, ctime)
	return a, nil
}

const attrColumns = `ino, kind, mode, uid, gid, size, nlink, atime, mtime, ctime, open_handles`

func (s *Store) Lookup(ctx context.Context, _ tribfs.FileRequest, parent uint64, name string) (tribfs.Attr, error) {
	var ino uint64
	err := s.db.QueryRowContext(ctx, `SELECT ino FROM dirents WHERE parent = ? AND name = ?`, parent, name).Scan(&ino)
	if err == sql.ErrNoRows {
		return tribfs.Attr{}, tribfs.New(tribfs.ErrFileDoesNotExist, "no entry %q in directory %d", name, parent)
	}
	if err != nil {
		return tribfs.Attr{}, err
	}
	return s.GetAttr(ctx, tribfs.FileRequest{}, ino)
}

func (s *Store) GetAttr(ctx context.Context, _ tribfs.FileRequest, ino uint64) (tribfs.Attr, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attrColumns+` FROM inodes WHERE ino = ?`, ino)
	a, err := scanAttr(row)
	if err == sql.ErrNoRows {
		return tribfs.Attr{}, notFound(ino)
	}
	return a, err
}

func (s *Store) SetAttr(ctx context.Context, _ tribfs.FileRequest, ino uint64, attr tribfs.Attr, valid tribfs.AttrValid) (tribfs.Attr, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tribfs.Attr{}, err
	}
	defer tx.Rollback()

	cur, err := scanAttr(tx.QueryRowContext(ctx, `SELECT `+attrColumns+` FROM inodes WHERE ino = ?`, ino))
	if err == sql.ErrNoRows {
		return tribfs.Attr{}, notFound(ino)
	}
	if err != nil {
		return tribfs.Attr{}, err
	}

	if valid&tribfs.AttrMode != 0 {
		cur.Mode = attr.Mode
	}
	if valid&tribfs.AttrUID != 0 {
		cur.UID = attr.UID
	}
	if valid&tribfs.AttrGID != 0 {
		cur.GID = attr.GID
	}
	if valid&tribfs.AttrSize != 0 {
		cur.Size = attr.Size
		if _, err := tx.ExecContext(ctx, `UPDATE inodes SET data = substr(data, 1, ?) WHERE ino = ?`, attr.Size, ino); err != nil {
			return tribfs.Attr{}, err
		}
	}
	if valid&tribfs.AttrAtime != 0 {
		cur.Atime = attr.Atime
	}
	if valid&tribfs.AttrMtime != 0 {
		cur.Mtime = attr.Mtime
	}
	cur.Ctime = time.Now()

	if _, err := tx.ExecContext(ctx, `UPDATE inodes SET mode=?, uid=?, gid=?, size=?, atime=?, mtime=?, ctime=? WHERE ino=?`,
		cur.Mode, cur.UID, cur.GID, cur.Size, cur.Atime.UnixNano(), cur.Mtime.UnixNano(), cur.Ctime.UnixNano(), ino); err != nil {
		return tribfs.Attr{}, err
	}
	return cur, tx.Commit()
}

func (s *Store) Read(ctx context.Context, _ tribfs.FileRequest, ino, _ uint64, offset int64, size uint32) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM inodes WHERE ino = ?`, ino).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, notFound(ino)
	}
	if err != nil {
		return nil, err
	}
	if offset < 0 || uint64(offset) >= uint64(len(data)) {
		return nil, nil
	}
	end := uint64(offset) + uint64(size)
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	return data[offset:end], nil
}

func (s *Store) Write(ctx context.Context, _ tribfs.FileRequest, ino, _ uint64, offset int64, data []byte, _ *uint64) (uint32, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var existing []byte
	if err := tx.QueryRowContext(ctx, `SELECT data FROM inodes WHERE ino = ?`, ino).Scan(&existing); err != nil {
		if err == sql.ErrNoRows {
			return 0, notFound(ino)
		}
		return 0, err
	}
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(existing)) {
		grown := make([]byte, end)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:], data)
	size := uint64(len(existing))
	if _, err := tx.ExecContext(ctx, `UPDATE inodes SET data=?, size=MAX(size, ?), mtime=? WHERE ino=?`,
		existing, size, time.Now().UnixNano(), ino); err != nil {
		return 0, err
	}
	return uint32(len(data)), tx.Commit()
}

func (s *Store) Create(ctx context.Context, req tribfs.FileRequest, parent uint64, name string, mode uint32) (tribfs.Attr, uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tribfs.Attr{}, 0, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM dirents WHERE parent=? AND name=?`, parent, name).Scan(&exists); err == nil {
		return tribfs.Attr{}, 0, tribfs.New(tribfs.ErrPathTaken, "entry %q already exists in directory %d", name, parent)
	} else if err != sql.ErrNoRows {
		return tribfs.Attr{}, 0, err
	}

	ino, err := s.metaNext(tx, "next_ino", rootIno+1)
	if err != nil {
		return tribfs.Attr{}, 0, err
	}
	now := time.Now().UnixNano()
	if _, err := tx.ExecContext(ctx, `INSERT INTO inodes
		(ino, kind, mode, uid, gid, size, nlink, atime, mtime, ctime, open_handles, data)
		VALUES (?, ?, ?, ?, ?, 0, 1, ?, ?, ?, 1, x'')`,
		ino, tribfs.KindRegular, mode, req.UID, req.GID, now, now, now); err != nil {
		return tribfs.Attr{}, 0, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO dirents(parent, name, ino, kind) VALUES (?, ?, ?, ?)`,
		parent, name, ino, tribfs.KindRegular); err != nil {
		return tribfs.Attr{}, 0, err
	}
	handle, err := s.metaNext(tx, "next_handle", 0)
	if err != nil {
		return tribfs.Attr{}, 0, err
	}
	if err := tx.Commit(); err != nil {
		return tribfs.Attr{}, 0, err
	}
	attr, err := s.GetAttr(ctx, req, ino)
	return attr, handle, err
}

func (s *Store) Unlink(ctx context.Context, _ tribfs.FileRequest, parent uint64, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var ino uint64
	if err := tx.QueryRowContext(ctx, `SELECT ino FROM dirents WHERE parent=? AND name=?`, parent, name).Scan(&ino); err != nil {
		if err == sql.ErrNoRows {
			return tribfs.New(tribfs.ErrFileDoesNotExist, "no entry %q in directory %d", name, parent)
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dirents WHERE parent=? AND name=?`, parent, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE inodes SET nlink = nlink - 1 WHERE ino = ?`, ino); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM inodes WHERE ino = ? AND nlink <= 0 AND open_handles <= 0`, ino); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Rename(ctx context.Context, _ tribfs.FileRequest, oldParent uint64, oldName string, newParent uint64, newName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var ino uint64
	var kind uint8
	if err := tx.QueryRowContext(ctx, `SELECT ino, kind FROM dirents WHERE parent=? AND name=?`, oldParent, oldName).Scan(&ino, &kind); err != nil {
		if err == sql.ErrNoRows {
			return tribfs.New(tribfs.ErrFileDoesNotExist, "no entry %q in directory %d", oldName, oldParent)
		}
		return err
	}

	var displacedIno uint64
	if err := tx.QueryRowContext(ctx, `SELECT ino FROM dirents WHERE parent=? AND name=?`, newParent, newName).Scan(&displacedIno); err == nil {
		if _, err := tx.ExecContext(ctx, `UPDATE inodes SET nlink = nlink - 1 WHERE ino = ?`, displacedIno); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM inodes WHERE ino = ? AND nlink <= 0 AND open_handles <= 0`, displacedIno); err != nil {
			return err
		}
	} else if err != sql.ErrNoRows {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM dirents WHERE parent=? AND name=?`, oldParent, oldName); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO dirents(parent, name, ino, kind) VALUES (?, ?, ?, ?)`,
		newParent, newName, ino, kind); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Mkdir(ctx context.Context, req tribfs.FileRequest, parent uint64, name string, mode uint32) (tribfs.Attr, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tribfs.Attr{}, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM dirents WHERE parent=? AND name=?`, parent, name).Scan(&exists); err == nil {
		return tribfs.Attr{}, tribfs.New(tribfs.ErrPathTaken, "entry %q already exists in directory %d", name, parent)
	} else if err != sql.ErrNoRows {
		return tribfs.Attr{}, err
	}

	ino, err := s.metaNext(tx, "next_ino", rootIno+1)
	if err != nil {
		return tribfs.Attr{}, err
	}
	now := time.Now().UnixNano()
	if _, err := tx.ExecContext(ctx, `INSERT INTO inodes
		(ino, kind, mode, uid, gid, size, nlink, atime, mtime, ctime, open_handles, data)
		VALUES (?, ?, ?, ?, ?, 0, 2, ?, ?, ?, 0, x'')`,
		ino, tribfs.KindDirectory, mode, req.UID, req.GID, now, now, now); err != nil {
		return tribfs.Attr{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO dirents(parent, name, ino, kind) VALUES (?, ?, ?, ?)`,
		parent, name, ino, tribfs.KindDirectory); err != nil {
		return tribfs.Attr{}, err
	}
	if err := tx.Commit(); err != nil {
		return tribfs.Attr{}, err
	}
	return s.GetAttr(ctx, req, ino)
}

func (s *Store) Open(ctx context.Context, req tribfs.FileRequest, ino uint64, _ uint32) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `UPDATE inodes SET open_handles = open_handles + 1 WHERE ino = ?`, ino)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, notFound(ino)
	}
	handle, err := s.metaNext(tx, "next_handle", 0)
	if err != nil {
		return 0, err
	}
	return handle, tx.Commit()
}

func (s *Store) Release(ctx context.Context, _ tribfs.FileRequest, ino, _ uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `UPDATE inodes SET open_handles = MAX(open_handles - 1, 0) WHERE ino = ?`, ino); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM inodes WHERE ino = ? AND nlink <= 0 AND open_handles <= 0`, ino); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) OpenDir(ctx context.Context, req tribfs.FileRequest, ino uint64) (uint64, error) {
	return s.Open(ctx, req, ino, 0)
}

func (s *Store) ReadDir(ctx context.Context, _ tribfs.FileRequest, ino, _ uint64, offset int64) (tribfs.DirEntry, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, ino, kind FROM dirents WHERE parent = ? ORDER BY name`, ino)
	if err != nil {
		return tribfs.DirEntry{}, false, err
	}
	defer rows.Close()

	var names []tribfs.DirEntry
	for rows.Next() {
		var e tribfs.DirEntry
		var kind uint8
		if err := rows.Scan(&e.Name, &e.Ino, &kind); err != nil {
			return tribfs.DirEntry{}, false, err
		}
		e.Kind = tribfs.InodeKind(kind)
		names = append(names, e)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Name < names[j].Name })
	if offset < 0 || int(offset) >= len(names) {
		return tribfs.DirEntry{}, false, nil
	}
	return names[offset], true, nil
}

func (s *Store) ReleaseDir(ctx context.Context, req tribfs.FileRequest, ino, handle uint64) error {
	return s.Release(ctx, req, ino, handle)
}

func (s *Store) Access(ctx context.Context, req tribfs.FileRequest, ino uint64, mask uint32) error {
	attr, err := s.GetAttr(ctx, req, ino)
	if err != nil {
		return err
	}
	if req.UID == 0 {
		return nil
	}
	var bits uint32
	switch {
	case req.UID == attr.UID:
		bits = (attr.Mode >> 6) & 0o7
	case req.GID == attr.GID:
		bits = (attr.Mode >> 3) & 0o7
	default:
		bits = attr.Mode & 0o7
	}
	if bits&mask != mask {
		return tribfs.New(tribfs.ErrPermission, "mode %o does not grant mask %o to uid %d on inode %d", attr.Mode, mask, req.UID, ino)
	}
	return nil
}

func (s *Store) SetXattr(ctx context.Context, _ tribfs.FileRequest, ino uint64, name string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO xattrs(ino, name, value) VALUES (?, ?, ?)
		ON CONFLICT(ino, name) DO UPDATE SET value = excluded.value`, ino, name, value)
	return err
}

func (s *Store) GetXattr(ctx context.Context, _ tribfs.FileRequest, ino uint64, name string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM xattrs WHERE ino = ? AND name = ?`, ino, name).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, tribfs.New(tribfs.ErrFileDoesNotExist, "no xattr %q on inode %d", name, ino)
	}
	return value, err
}

func (s *Store) ListXattr(ctx context.Context, _ tribfs.FileRequest, ino uint64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM xattrs WHERE ino = ? ORDER BY name`, ino)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// --- auxiliary key-value / key-list store, same log-and-replay model as
// memstore, persisted in string_log/list_log instead of an in-process map.

// nextClock bumps the persisted clock to at least atLeast, then past it by
// one, and returns the pre-increment value. Every call advances the
// clock — there is no atLeast == 0 special case — mirroring memstore.
func (s *Store) nextClock(ctx context.Context, atLeast uint64) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	var cur uint64
	err = tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'clock'`).Scan(&cur)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	ret := cur
	if atLeast > ret {
		ret = atLeast
	}
	next := ret
	if next < ^uint64(0) {
		next++
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES ('clock', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, next); err != nil {
		return 0, err
	}
	return ret, tx.Commit()
}

func (s *Store) Clock(ctx context.Context, atLeast uint64) (uint64, error) {
	return s.nextClock(ctx, atLeast)
}

func (s *Store) loadRecords(ctx context.Context, table, key string) ([]oplog.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT clock, val, kind FROM `+table+` WHERE key = ?`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []oplog.Record
	for rows.Next() {
		var r oplog.Record
		var kind uint8
		if err := rows.Scan(&r.Clock, &r.Val, &kind); err != nil {
			return nil, err
		}
		r.Kind = oplog.Kind(kind)
		out = append(out, r)
	}
	return out, nil
}

// appendRecord inserts r, relying on the table's (key, clock, val, kind)
// unique index to silently no-op an identical retried record.
func (s *Store) appendRecord(ctx context.Context, table, key string, r oplog.Record) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO `+table+`(key, clock, val, kind) VALUES (?, ?, ?, ?)`, key, r.Clock, r.Val, uint8(r.Kind))
	return err
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	records, err := s.loadRecords(ctx, "string_log", key)
	if err != nil {
		return "", false, err
	}
	return oplog.ReplayString(records)
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	clock, err := s.nextClock(ctx, 0)
	if err != nil {
		return err
	}
	return s.SetAt(ctx, key, value, clock)
}

// SetAt is Set's externally-clocked form, used by the replication router
// to stamp primary and backup with an identical record for one write.
func (s *Store) SetAt(ctx context.Context, key, value string, clock uint64) error {
	return s.appendRecord(ctx, "string_log", key, oplog.Record{Clock: clock, Val: value, Kind: oplog.StringSet})
}

func (s *Store) Keys(ctx context.Context, p tribfs.Pattern) (tribfs.List, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT key FROM string_log`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out tribfs.List
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		if p.Matches(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ListGet(ctx context.Context, key string) (tribfs.List, error) {
	records, err := s.loadRecords(ctx, "list_log", key)
	if err != nil {
		return nil, err
	}
	out, err := oplog.ReplayList(records)
	return tribfs.List(out), err
}

func (s *Store) ListAppend(ctx context.Context, key, value string) error {
	clock, err := s.nextClock(ctx, 0)
	if err != nil {
		return err
	}
	return s.ListAppendAt(ctx, key, value, clock)
}

// ListAppendAt is ListAppend's externally-clocked form; see SetAt.
func (s *Store) ListAppendAt(ctx context.Context, key, value string, clock uint64) error {
	return s.appendRecord(ctx, "list_log", key, oplog.Record{Clock: clock, Val: value, Kind: oplog.ListAppend})
}

func (s *Store) ListRemove(ctx context.Context, key, value string) error {
	clock, err := s.nextClock(ctx, 0)
	if err != nil {
		return err
	}
	return s.ListRemoveAt(ctx, key, value, clock)
}

// ListRemoveAt is ListRemove's externally-clocked form; see SetAt.
func (s *Store) ListRemoveAt(ctx context.Context, key, value string, clock uint64) error {
	return s.appendRecord(ctx, "list_log", key, oplog.Record{Clock: clock, Val: value, Kind: oplog.ListRemove})
}

func (s *Store) ListKeys(ctx context.Context, p tribfs.Pattern) (tribfs.List, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT key FROM list_log`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out tribfs.List
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		vals, err := s.ListGet(ctx, k)
		if err != nil {
			return nil, err
		}
		if len(vals) == 0 {
			continue
		}
		if p.Matches(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}
