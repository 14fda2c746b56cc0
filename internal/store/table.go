package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/example/repairdesk/api-go/internal/model"
)

// Schema maps column names to physical positions for one header revision.
type Schema struct {
	rev     int64
	headers []string
	index   map[string]int
}

func newSchema(rev int64, headers []string) *Schema {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		if h == "" {
			continue
		}
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	return &Schema{rev: rev, headers: headers, index: index}
}

// Index returns the 0-based position of col, or -1 when the header row has no
// such column.
func (s *Schema) Index(col string) int {
	if i, ok := s.index[col]; ok {
		return i
	}
	return -1
}

func (s *Schema) Has(col string) bool { return s.Index(col) >= 0 }

func (s *Schema) Headers() []string {
	out := make([]string, len(s.headers))
	copy(out, s.headers)
	return out
}

// Row is one data row. Index is the physical row number.
type Row struct {
	Index  int
	Cells  []string
	schema *Schema
}

// Get returns the cell under col, or "" when the column or cell is missing.
func (r Row) Get(col string) string {
	if r.schema == nil {
		return ""
	}
	i := r.schema.Index(col)
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// Values maps every named header to its cell.
func (r Row) Values() map[string]string {
	if r.schema == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(r.schema.headers))
	for col := range r.schema.index {
		out[col] = r.Get(col)
	}
	return out
}

type Table struct {
	store *SQLite
	name  string

	mu     sync.Mutex
	schema *Schema
}

func (t *Table) Name() string { return t.name }

// Schema returns the column layout, re-reading the header row only when its
// revision changed since the last call.
func (t *Table) Schema(ctx context.Context) (*Schema, error) {
	rev, err := t.store.headerRev(ctx, t.store.db, t.name)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.schema != nil && t.schema.rev == rev {
		return t.schema, nil
	}

	var raw string
	err = t.store.db.QueryRowContext(ctx,
		`SELECT cells FROM sheet_rows WHERE sheet = ? AND row_num = ?`, t.name, HeaderRow,
	).Scan(&raw)
	var headers []string
	switch {
	case errors.Is(err, sql.ErrNoRows):
		headers = []string{}
	case err != nil:
		return nil, err
	default:
		if headers, err = decodeCells(raw); err != nil {
			return nil, err
		}
	}
	t.schema = newSchema(rev, headers)
	return t.schema, nil
}

// Header returns the column names in physical order.
func (t *Table) Header(ctx context.Context) ([]string, error) {
	schema, err := t.Schema(ctx)
	if err != nil {
		return nil, err
	}
	return schema.Headers(), nil
}

// SetHeader replaces the header row.
func (t *Table) SetHeader(ctx context.Context, headers []string) error {
	if _, err := t.store.headerRev(ctx, t.store.db, t.name); err != nil {
		return err
	}
	cells, err := encodeCells(headers)
	if err != nil {
		return err
	}
	tx, err := t.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sheet_rows (sheet, row_num, cells) VALUES (?, ?, ?)
         ON CONFLICT (sheet, row_num) DO UPDATE SET cells = excluded.cells`,
		t.name, HeaderRow, cells,
	); err != nil {
		return fmt.Errorf("store: write header of %q: %w", t.name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sheets SET header_rev = header_rev + 1 WHERE name = ?`, t.name,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// ReadAll returns every data row in physical order. A table holding only its
// header row yields an empty slice.
func (t *Table) ReadAll(ctx context.Context) ([]Row, error) {
	schema, err := t.Schema(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := t.store.db.QueryContext(ctx,
		`SELECT row_num, cells FROM sheet_rows WHERE sheet = ? AND row_num > ? ORDER BY row_num ASC`,
		t.name, HeaderRow,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var (
			num int
			raw string
		)
		if err := rows.Scan(&num, &raw); err != nil {
			return nil, err
		}
		cells, err := decodeCells(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, Row{Index: num, Cells: cells, schema: schema})
	}
	return out, rows.Err()
}

// ReadRow returns the data row at index. Indexes at or above the header row
// and past the last row fail with model.ErrInvalidRowIndex.
func (t *Table) ReadRow(ctx context.Context, index int) (Row, error) {
	schema, err := t.Schema(ctx)
	if err != nil {
		return Row{}, err
	}
	if index <= HeaderRow {
		return Row{}, fmt.Errorf("%w: %d", model.ErrInvalidRowIndex, index)
	}
	var raw string
	err = t.store.db.QueryRowContext(ctx,
		`SELECT cells FROM sheet_rows WHERE sheet = ? AND row_num = ?`, t.name, index,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, fmt.Errorf("%w: %d", model.ErrInvalidRowIndex, index)
	}
	if err != nil {
		return Row{}, err
	}
	cells, err := decodeCells(raw)
	if err != nil {
		return Row{}, err
	}
	return Row{Index: index, Cells: cells, schema: schema}, nil
}

// RowCount returns the number of the last row, header included.
func (t *Table) RowCount(ctx context.Context) (int, error) {
	if _, err := t.store.headerRev(ctx, t.store.db, t.name); err != nil {
		return 0, err
	}
	var last int
	err := t.store.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(row_num), 0) FROM sheet_rows WHERE sheet = ?`, t.name,
	).Scan(&last)
	return last, err
}

// Append writes values as a new last row and returns its index. Keys that do
// not name a column are dropped.
func (t *Table) Append(ctx context.Context, values map[string]string) (int, error) {
	indexes, err := t.AppendRows(ctx, []map[string]string{values})
	if err != nil {
		return 0, err
	}
	return indexes[0], nil
}

// AppendRows writes rows after the last row in one transaction.
func (t *Table) AppendRows(ctx context.Context, rows []map[string]string) ([]int, error) {
	schema, err := t.Schema(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	tx, err := t.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var last int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(row_num), 0) FROM sheet_rows WHERE sheet = ?`, t.name,
	).Scan(&last); err != nil {
		return nil, err
	}
	if last < HeaderRow {
		last = HeaderRow
	}

	indexes := make([]int, 0, len(rows))
	for _, values := range rows {
		cells := make([]string, len(schema.headers))
		for col, v := range values {
			if i := schema.Index(col); i >= 0 {
				cells[i] = v
			}
		}
		raw, err := encodeCells(cells)
		if err != nil {
			return nil, err
		}
		last++
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sheet_rows (sheet, row_num, cells) VALUES (?, ?, ?)`, t.name, last, raw,
		); err != nil {
			return nil, fmt.Errorf("store: append to %q: %w", t.name, err)
		}
		indexes = append(indexes, last)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return indexes, nil
}

// WriteField sets one cell. A column missing from the header is skipped
// without error.
func (t *Table) WriteField(ctx context.Context, index int, col, value string) error {
	return t.WriteFields(ctx, index, map[string]string{col: value})
}

// WriteFields sets several cells of one row in a single transaction.
func (t *Table) WriteFields(ctx context.Context, index int, values map[string]string) error {
	schema, err := t.Schema(ctx)
	if err != nil {
		return err
	}
	if index <= HeaderRow {
		return fmt.Errorf("%w: %d", model.ErrInvalidRowIndex, index)
	}

	tx, err := t.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT cells FROM sheet_rows WHERE sheet = ? AND row_num = ?`, t.name, index,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", model.ErrInvalidRowIndex, index)
	}
	if err != nil {
		return err
	}
	cells, err := decodeCells(raw)
	if err != nil {
		return err
	}

	changed := false
	for col, v := range values {
		i := schema.Index(col)
		if i < 0 {
			continue
		}
		for len(cells) <= i {
			cells = append(cells, "")
		}
		cells[i] = v
		changed = true
	}
	if !changed {
		return nil
	}

	if raw, err = encodeCells(cells); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sheet_rows SET cells = ? WHERE sheet = ? AND row_num = ?`, raw, t.name, index,
	); err != nil {
		return fmt.Errorf("store: write row %d of %q: %w", index, t.name, err)
	}
	return tx.Commit()
}

// ClearRows deletes every row from index onward. The header row is never
// cleared. It returns the number of rows removed.
func (t *Table) ClearRows(ctx context.Context, from int) (int, error) {
	if _, err := t.store.headerRev(ctx, t.store.db, t.name); err != nil {
		return 0, err
	}
	if from <= HeaderRow {
		from = HeaderRow + 1
	}
	res, err := t.store.db.ExecContext(ctx,
		`DELETE FROM sheet_rows WHERE sheet = ? AND row_num >= ?`, t.name, from,
	)
	if err != nil {
		return 0, fmt.Errorf("store: clear %q: %w", t.name, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
