package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/repairdesk/api-go/internal/model"
	"github.com/example/repairdesk/api-go/internal/store"
)

func newTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "sheets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTable(t *testing.T, s *store.SQLite, name string, headers ...string) *store.Table {
	t.Helper()
	created, err := s.CreateTable(context.Background(), name, headers)
	require.NoError(t, err)
	require.True(t, created)
	return s.Table(name)
}

func TestCreateTable_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	newTable(t, s, "Log", "A", "B")

	created, err := s.CreateTable(ctx, "Log", []string{"X"})
	require.NoError(t, err)
	assert.False(t, created)

	header, err := s.Table("Log").Header(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, header)
}

func TestReadAll_MissingTable(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Table("Nope").ReadAll(context.Background())
	assert.ErrorIs(t, err, model.ErrStoreNotFound)
}

func TestReadAll_HeaderOnlyIsEmpty(t *testing.T) {
	s := newTestStore(t)
	tbl := newTable(t, s, "Log", "A")

	rows, err := tbl.ReadAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestAppend_AssignsSequentialRowsAndDropsUnknownColumns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tbl := newTable(t, s, "Log", "Name", "Email")

	first, err := tbl.Append(ctx, map[string]string{"Name": "Ada", "Bogus": "x"})
	require.NoError(t, err)
	second, err := tbl.Append(ctx, map[string]string{"Email": "b@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, first)
	assert.Equal(t, 3, second)

	rows, err := tbl.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Index)
	assert.Equal(t, "Ada", rows[0].Get("Name"))
	assert.Equal(t, "", rows[0].Get("Bogus"))
	assert.Equal(t, map[string]string{"Name": "", "Email": "b@example.com"}, rows[1].Values())

	count, err := tbl.RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestWriteFields_SkipsMissingColumns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tbl := newTable(t, s, "Log", "Name", "Notes")
	idx, err := tbl.Append(ctx, map[string]string{"Name": "Ada"})
	require.NoError(t, err)

	require.NoError(t, tbl.WriteFields(ctx, idx, map[string]string{"Notes": "hello", "Ghost": "boo"}))
	require.NoError(t, tbl.WriteField(ctx, idx, "Ghost", "still nothing"))

	row, err := tbl.ReadRow(ctx, idx)
	require.NoError(t, err)
	assert.Equal(t, "Ada", row.Get("Name"))
	assert.Equal(t, "hello", row.Get("Notes"))
}

func TestRowIndexBounds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tbl := newTable(t, s, "Log", "Name")
	_, err := tbl.Append(ctx, map[string]string{"Name": "Ada"})
	require.NoError(t, err)

	for _, idx := range []int{0, 1, 3, 9999} {
		_, err := tbl.ReadRow(ctx, idx)
		assert.ErrorIs(t, err, model.ErrInvalidRowIndex, "row %d", idx)
		assert.ErrorIs(t, tbl.WriteField(ctx, idx, "Name", "x"), model.ErrInvalidRowIndex, "row %d", idx)
	}
}

func TestClearRows_KeepsHeader(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tbl := newTable(t, s, "Schedule", "Title")
	_, err := tbl.AppendRows(ctx, []map[string]string{{"Title": "a"}, {"Title": "b"}, {"Title": "c"}})
	require.NoError(t, err)

	n, err := tbl.ClearRows(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, err := tbl.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
	header, err := tbl.Header(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Title"}, header)

	idx, err := tbl.Append(ctx, map[string]string{"Title": "d"})
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
}

func TestSchema_ReresolvedAfterHeaderChange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tbl := newTable(t, s, "Log", "Name", "Status")
	idx, err := tbl.Append(ctx, map[string]string{"Name": "Ada", "Status": "open"})
	require.NoError(t, err)

	before, err := tbl.Schema(ctx)
	require.NoError(t, err)
	again, err := tbl.Schema(ctx)
	require.NoError(t, err)
	assert.Same(t, before, again)

	require.NoError(t, tbl.SetHeader(ctx, []string{"Status", "Name"}))
	after, err := tbl.Schema(ctx)
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	assert.Equal(t, 0, after.Index("Status"))
	assert.Equal(t, -1, after.Index("Missing"))

	row, err := tbl.ReadRow(ctx, idx)
	require.NoError(t, err)
	assert.Equal(t, "Ada", row.Get("Status"), "cells keep their physical position")
}

func TestTable_HandlesAreShared(t *testing.T) {
	s := newTestStore(t)
	assert.Same(t, s.Table("Log"), s.Table("Log"))

	ok, err := s.HasTable(context.Background(), "Log")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureTable_CreatesThenAddsMissingColumns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, added, err := s.EnsureTable(ctx, "Log", []string{"Name", "Status"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, added)

	tbl := s.Table("Log")
	idx, err := tbl.Append(ctx, map[string]string{"Name": "Ada", "Status": "open"})
	require.NoError(t, err)

	created, added, err = s.EnsureTable(ctx, "Log", []string{"Name", "Notes", "Status"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, []string{"Notes"}, added)

	header, err := tbl.Header(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Status", "Notes"}, header)

	require.NoError(t, tbl.WriteField(ctx, idx, "Notes", "fan noise"))
	row, err := tbl.ReadRow(ctx, idx)
	require.NoError(t, err)
	assert.Equal(t, "open", row.Get("Status"))
	assert.Equal(t, "fan noise", row.Get("Notes"))

	_, added, err = s.EnsureTable(ctx, "Log", []string{"Name"})
	require.NoError(t, err)
	assert.Empty(t, added)
}
