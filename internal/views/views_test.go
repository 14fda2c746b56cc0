package views_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/repairdesk/api-go/internal/jobs"
	"github.com/example/repairdesk/api-go/internal/model"
	"github.com/example/repairdesk/api-go/internal/store"
	"github.com/example/repairdesk/api-go/internal/views"
)

var testConfig = views.Config{
	MasterLogSheet: "Master Job Log",
	ScheduleSheet:  "Onsite Schedule",
	CheckinSheet:   "Check-In Form Responses",
	IntakeSheet:    "Intake Form Responses",
}

func newStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "sheets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	_, err = s.CreateTable(context.Background(), testConfig.MasterLogSheet, jobs.Headers)
	require.NoError(t, err)
	return s
}

func newRepo(s *store.SQLite) *jobs.Repository {
	return jobs.NewRepository(s.Table(testConfig.MasterLogSheet), jobs.Config{Location: time.UTC}, nil, nil)
}

func zeroCounts() map[string]int {
	out := map[string]int{}
	for _, s := range model.ActiveStatuses {
		out[string(s)] = 0
	}
	return out
}

func TestStatusCounts_EmptyTable(t *testing.T) {
	p := views.NewProjector(newStore(t), testConfig)
	counts, err := p.StatusCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, zeroCounts(), counts)
}

func TestStatusCounts_DefaultStatusBucket(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := views.NewProjector(s, testConfig)
	repo := newRepo(s)

	before, err := p.StatusCounts(ctx)
	require.NoError(t, err)

	_, err = repo.Create(ctx, model.JobInput{JobID: "WO-1001"})
	require.NoError(t, err)

	after, err := p.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, before[string(model.StatusCheckedIn)]+1, after[string(model.StatusCheckedIn)])
}

func TestStatusCounts_SkipsCompletedAndUnknown(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := views.NewProjector(s, testConfig)
	repo := newRepo(s)

	for _, status := range []string{string(model.StatusAwaitingParts), string(model.StatusAwaitingParts), "", "Lost"} {
		_, err := repo.Create(ctx, model.JobInput{CurrentStatus: status})
		require.NoError(t, err)
	}
	done, err := repo.Create(ctx, model.JobInput{CurrentStatus: string(model.StatusAwaitingParts)})
	require.NoError(t, err)
	_, err = repo.MarkCompleted(ctx, done.RowIndex, "")
	require.NoError(t, err)

	counts, err := p.StatusCounts(ctx)
	require.NoError(t, err)
	want := zeroCounts()
	want[string(model.StatusAwaitingParts)] = 2
	want[string(model.StatusCheckedIn)] = 1
	assert.Equal(t, want, counts)
}

func TestStatusCounts_MissingStatusColumn(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	table := s.Table(testConfig.MasterLogSheet)
	_, err := table.Append(ctx, map[string]string{jobs.ColJobID: "WO-1"})
	require.NoError(t, err)
	require.NoError(t, table.SetHeader(ctx, []string{jobs.ColJobID}))

	_, err = views.NewProjector(s, testConfig).StatusCounts(ctx)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestTable_NormalizesHeadersAndKeepsValues(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.CreateTable(ctx, testConfig.ScheduleSheet, []string{"Event Date", "Time Start/End", "Location/Address"})
	require.NoError(t, err)
	_, err = s.Table(testConfig.ScheduleSheet).Append(ctx, map[string]string{
		"Event Date":     "2026-10-20T09:00:00-07:00",
		"Time Start/End": "09:00 AM - 10:00 AM",
	})
	require.NoError(t, err)

	rows, err := views.NewProjector(s, testConfig).Schedule(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]string{
		"Event_Date":       "2026-10-20T09:00:00-07:00",
		"Time_Start_End":   "09:00 AM - 10:00 AM",
		"Location_Address": "",
	}, rows[0])
}

func TestTable_MissingSheet(t *testing.T) {
	_, err := views.NewProjector(newStore(t), testConfig).Schedule(context.Background())
	assert.ErrorIs(t, err, model.ErrStoreNotFound)
}

func TestFormEntries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := views.NewProjector(s, testConfig)

	_, err := s.CreateTable(ctx, testConfig.CheckinSheet, []string{"Timestamp", "Client Name"})
	require.NoError(t, err)
	_, err = s.Table(testConfig.CheckinSheet).Append(ctx, map[string]string{"Client Name": "Ada"})
	require.NoError(t, err)

	all, err := p.FormEntries(ctx, views.FormAll)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "checkin", all[0][views.SourceKey])
	assert.Equal(t, "Ada", all[0]["Client_Name"])

	_, err = p.FormEntries(ctx, views.FormIntake)
	assert.ErrorIs(t, err, model.ErrStoreNotFound)

	_, err = p.FormEntries(ctx, "survey")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "System_Make_Model", views.NormalizeHeader("System Make/Model"))
	assert.Equal(t, "Job_ID", views.NormalizeHeader("Job ID"))
}
