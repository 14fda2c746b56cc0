// Package store keeps sheet-shaped tables in SQLite: each table has a header
// row at row 1 and data rows addressed by their 1-based physical position.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/example/repairdesk/api-go/internal/model"
)

// HeaderRow is the physical row holding column names.
const HeaderRow = 1

type SQLite struct {
	db *sql.DB

	mu     sync.Mutex
	tables map[string]*Table
}

func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// One connection keeps pragmas in effect and serializes physical writes.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS sheets (
  name TEXT PRIMARY KEY,
  header_rev INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS sheet_rows (
  sheet TEXT NOT NULL,
  row_num INTEGER NOT NULL,
  cells TEXT NOT NULL,
  PRIMARY KEY (sheet, row_num)
);
`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return &SQLite{db: db, tables: make(map[string]*Table)}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// CreateTable creates name with the given header row unless it already
// exists. It reports whether the table was created.
func (s *SQLite) CreateTable(ctx context.Context, name string, headers []string) (bool, error) {
	cells, err := encodeCells(headers)
	if err != nil {
		return false, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO sheets (name, header_rev) VALUES (?, 1)`, name)
	if err != nil {
		return false, fmt.Errorf("store: create %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sheet_rows (sheet, row_num, cells) VALUES (?, ?, ?)`,
		name, HeaderRow, cells,
	); err != nil {
		return false, fmt.Errorf("store: write header of %q: %w", name, err)
	}
	return true, tx.Commit()
}

// HasTable reports whether a table named name exists.
func (s *SQLite) HasTable(ctx context.Context, name string) (bool, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx, `SELECT header_rev FROM sheets WHERE name = ?`, name).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnsureTable creates name with headers when it is missing. An existing table
// keeps its columns in place; any of headers it lacks are appended to its
// header row and returned.
func (s *SQLite) EnsureTable(ctx context.Context, name string, headers []string) (bool, []string, error) {
	exists, err := s.HasTable(ctx, name)
	if err != nil {
		return false, nil, err
	}
	if !exists {
		created, err := s.CreateTable(ctx, name, headers)
		return created, nil, err
	}

	t := s.Table(name)
	current, err := t.Header(ctx)
	if err != nil {
		return false, nil, err
	}
	have := make(map[string]bool, len(current))
	for _, h := range current {
		have[h] = true
	}
	var added []string
	for _, h := range headers {
		if !have[h] {
			added = append(added, h)
			have[h] = true
		}
	}
	if len(added) == 0 {
		return false, nil, nil
	}
	if err := t.SetHeader(ctx, append(current, added...)); err != nil {
		return false, nil, err
	}
	return false, added, nil
}

// Table returns the handle for name. Handles are shared per store so the
// resolved schema is reused across calls. The table need not exist yet;
// operations on an absent table fail with model.ErrStoreNotFound.
func (s *SQLite) Table(name string) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[name]; ok {
		return t
	}
	t := &Table{store: s, name: name}
	s.tables[name] = t
	return t
}

func (s *SQLite) headerRev(ctx context.Context, q queryer, name string) (int64, error) {
	var rev int64
	err := q.QueryRowContext(ctx, `SELECT header_rev FROM sheets WHERE name = ?`, name).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", model.ErrStoreNotFound, name)
	}
	if err != nil {
		return 0, err
	}
	return rev, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func encodeCells(cells []string) (string, error) {
	if cells == nil {
		cells = []string{}
	}
	raw, err := json.Marshal(cells)
	if err != nil {
		return "", fmt.Errorf("store: encode row: %w", err)
	}
	return string(raw), nil
}

func decodeCells(raw string) ([]string, error) {
	var cells []string
	if err := json.Unmarshal([]byte(raw), &cells); err != nil {
		return nil, fmt.Errorf("store: decode row: %w", err)
	}
	return cells, nil
}
