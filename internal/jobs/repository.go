// Package jobs is the repository over the master job log table. It owns the
// rule that a job carries a completion date exactly when its status is
// Completed, and it triggers notifications after successful mutations.
package jobs

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/example/repairdesk/api-go/internal/dates"
	"github.com/example/repairdesk/api-go/internal/model"
	"github.com/example/repairdesk/api-go/internal/notify"
	"github.com/example/repairdesk/api-go/internal/store"
)

// Column names of the master job log.
const (
	ColJobID           = "Job ID"
	ColDateIn          = "Date In"
	ColServiceType     = "Service Type"
	ColClientName      = "Client Name"
	ColClientEmail     = "Client Email"
	ColClientPhone     = "Client Phone"
	ColSystemMakeModel = "System Make/Model"
	ColDueDate         = "Due Date"
	ColStatus          = "Status"
	ColTechnician      = "Technician"
	ColInitialRequest  = "Initial Request"
	ColJobNotes        = "Job Notes"
	ColFinalResolution = "Final Resolution"
	ColDateCompleted   = "Date Completed"
)

// Headers is the header row written when the master log is set up.
var Headers = []string{
	ColJobID, ColDateIn, ColServiceType, ColClientName, ColClientEmail, ColClientPhone,
	ColSystemMakeModel, ColDueDate, ColStatus, ColTechnician, ColInitialRequest,
	ColJobNotes, ColFinalResolution, ColDateCompleted,
}

// StatusAll selects every non-completed job in ByStatus.
const StatusAll = "all"

// Notifier is told about created and changed jobs.
type Notifier interface {
	JobCreated(ctx context.Context, job model.Job) bool
	JobUpdated(ctx context.Context, job model.Job, change model.ChangeEvent) bool
}

// Events receives a copy of every successful mutation.
type Events interface {
	Publish(kind string, data any)
}

// Event kinds published by the repository.
const (
	EventJobCreated   = "job_created"
	EventJobUpdated   = "job_updated"
	EventJobCompleted = "job_completed"
)

// EventData is the payload published with each event kind.
type EventData struct {
	RowIndex int                `json:"rowIndex"`
	JobID    string             `json:"jobId"`
	Status   model.JobStatus    `json:"status"`
	Change   *model.ChangeEvent `json:"change,omitempty"`
}

type Config struct {
	// Technician is written into new rows.
	Technician string
	// RequireJobID rejects intake payloads without a job id.
	RequireJobID bool
	Location     *time.Location
	Now          func() time.Time
	Logger       *log.Logger
}

type Repository struct {
	table    *store.Table
	cfg      Config
	notifier Notifier
	events   Events

	// mu serializes mutations so Update's read-diff-write is not interleaved.
	mu sync.Mutex
}

// NewRepository binds a repository to table. notifier and events may be nil.
func NewRepository(table *store.Table, cfg Config, notifier Notifier, events Events) *Repository {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return &Repository{table: table, cfg: cfg, notifier: notifier, events: events}
}

// Create appends a job built from in. Status defaults to the first active
// status, Date In is stamped with the current time.
func (r *Repository) Create(ctx context.Context, in model.JobInput) (model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobID := strings.TrimSpace(in.JobID)
	if jobID == "" && r.cfg.RequireJobID {
		return model.Job{}, fmt.Errorf("%w: jobId is required", model.ErrInvalidInput)
	}
	now := r.cfg.Now()
	due, err := dates.Parse(in.DueDate, r.cfg.Location, now)
	if err != nil {
		return model.Job{}, fmt.Errorf("%w: dueDate: %v", model.ErrInvalidInput, err)
	}
	if jobID != "" {
		existing, err := r.findByJobID(ctx, jobID)
		if err != nil {
			return model.Job{}, err
		}
		if existing > 0 {
			return model.Job{}, fmt.Errorf("%w: job %s already exists at row %d", model.ErrInvalidInput, jobID, existing)
		}
	}

	status := strings.TrimSpace(in.CurrentStatus)
	if status == "" {
		status = string(model.StatusCheckedIn)
	}
	values := map[string]string{
		ColJobID:           jobID,
		ColDateIn:          dates.Stamp(now),
		ColServiceType:     in.ServiceType,
		ColClientName:      in.ClientName,
		ColClientEmail:     strings.TrimSpace(in.ClientEmail),
		ColClientPhone:     in.ClientPhone,
		ColSystemMakeModel: in.SystemMake,
		ColDueDate:         dates.Day(due, r.cfg.Location),
		ColStatus:          status,
		ColTechnician:      r.cfg.Technician,
		ColInitialRequest:  in.InitialRequest,
	}
	if model.JobStatus(status) == model.StatusCompleted {
		values[ColDateCompleted] = dates.Stamp(now)
	}

	index, err := r.table.Append(ctx, values)
	if err != nil {
		return model.Job{}, fmt.Errorf("append job: %w", err)
	}
	job, err := r.getByRow(ctx, index)
	if err != nil {
		return model.Job{}, err
	}
	r.cfg.Logger.Printf("created job %q at row %d", job.JobID, job.RowIndex)

	if r.notifier != nil {
		r.notifier.JobCreated(ctx, job)
	}
	r.publish(EventJobCreated, job, nil)
	return job, nil
}

// All returns every job in append order.
func (r *Repository) All(ctx context.Context) ([]model.Job, error) {
	rows, err := r.table.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Job, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.decode(row))
	}
	return out, nil
}

// ByRow returns the job stored at the physical row index.
func (r *Repository) ByRow(ctx context.Context, index int) (model.Job, error) {
	return r.getByRow(ctx, index)
}

// ByStatus returns the non-completed jobs whose status equals status, or all
// non-completed jobs for StatusAll. Completed jobs never appear.
//
// Statuses are not validated on write, so a job with a blank or unknown
// status is listed under StatusAll but under no active status.
func (r *Repository) ByStatus(ctx context.Context, status string) ([]model.Job, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Job, 0, len(all))
	for _, job := range all {
		if job.Completed() {
			continue
		}
		if status == StatusAll || string(job.Status) == status {
			out = append(out, job)
		}
	}
	return out, nil
}

// Update overwrites the fields set in patch and reports which tracked fields
// changed. A status moved onto Completed stamps the completion date, a status
// moved off Completed clears it.
func (r *Repository) Update(ctx context.Context, index int, patch model.JobPatch) (model.Job, model.ChangeEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before, err := r.getByRow(ctx, index)
	if err != nil {
		return model.Job{}, model.ChangeEvent{}, err
	}

	values := map[string]string{}
	set := func(col string, v *string) {
		if v != nil {
			values[col] = *v
		}
	}
	set(ColClientName, patch.ClientName)
	set(ColClientPhone, patch.ClientPhone)
	set(ColServiceType, patch.ServiceType)
	set(ColSystemMakeModel, patch.SystemMakeModel)
	set(ColInitialRequest, patch.InitialRequest)
	set(ColJobNotes, patch.JobNotes)
	if patch.ClientEmail != nil {
		values[ColClientEmail] = strings.TrimSpace(*patch.ClientEmail)
	}
	if patch.DueDate != nil {
		due, err := dates.Parse(*patch.DueDate, r.cfg.Location, r.cfg.Now())
		if err != nil {
			return model.Job{}, model.ChangeEvent{}, fmt.Errorf("%w: Due_Date: %v", model.ErrInvalidInput, err)
		}
		values[ColDueDate] = dates.Day(due, r.cfg.Location)
	}
	if patch.Status != nil {
		status := model.JobStatus(*patch.Status)
		values[ColStatus] = string(status)
		switch {
		case status == model.StatusCompleted && !before.Completed():
			values[ColDateCompleted] = dates.Stamp(r.cfg.Now())
		case status != model.StatusCompleted && before.Completed():
			values[ColDateCompleted] = ""
		}
	}

	if len(values) > 0 {
		if err := r.table.WriteFields(ctx, index, values); err != nil {
			return model.Job{}, model.ChangeEvent{}, fmt.Errorf("update row %d: %w", index, err)
		}
	}
	after, err := r.getByRow(ctx, index)
	if err != nil {
		return model.Job{}, model.ChangeEvent{}, err
	}

	change := notify.Diff(before, after)
	r.cfg.Logger.Printf("updated job %q at row %d (status changed=%t, notes changed=%t)",
		after.JobID, index, change.StatusChanged, change.NotesChanged)
	if change.Any() && r.notifier != nil {
		r.notifier.JobUpdated(ctx, after, change)
	}
	r.publish(EventJobUpdated, after, &change)
	return after, change, nil
}

// MarkCompleted sets the status to Completed and stamps the completion date,
// overwriting any earlier stamp. A non-empty resolution replaces the final
// resolution; otherwise the existing one is kept. No email is sent.
func (r *Repository) MarkCompleted(ctx context.Context, index int, resolution string) (model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.getByRow(ctx, index); err != nil {
		return model.Job{}, err
	}
	values := map[string]string{
		ColStatus:        string(model.StatusCompleted),
		ColDateCompleted: dates.Stamp(r.cfg.Now()),
	}
	if resolution != "" {
		values[ColFinalResolution] = resolution
	}
	if err := r.table.WriteFields(ctx, index, values); err != nil {
		return model.Job{}, fmt.Errorf("complete row %d: %w", index, err)
	}
	job, err := r.getByRow(ctx, index)
	if err != nil {
		return model.Job{}, err
	}
	r.cfg.Logger.Printf("completed job %q at row %d", job.JobID, index)
	r.publish(EventJobCompleted, job, nil)
	return job, nil
}

func (r *Repository) getByRow(ctx context.Context, index int) (model.Job, error) {
	row, err := r.table.ReadRow(ctx, index)
	if err != nil {
		return model.Job{}, err
	}
	return r.decode(row), nil
}

func (r *Repository) findByJobID(ctx context.Context, jobID string) (int, error) {
	rows, err := r.table.ReadAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		if strings.TrimSpace(row.Get(ColJobID)) == jobID {
			return row.Index, nil
		}
	}
	return 0, nil
}

func (r *Repository) decode(row store.Row) model.Job {
	loc := r.cfg.Location
	return model.Job{
		RowIndex:        row.Index,
		JobID:           row.Get(ColJobID),
		DateIn:          dates.ParseStored(row.Get(ColDateIn), loc),
		ServiceType:     row.Get(ColServiceType),
		ClientName:      row.Get(ColClientName),
		ClientEmail:     row.Get(ColClientEmail),
		ClientPhone:     row.Get(ColClientPhone),
		SystemMakeModel: row.Get(ColSystemMakeModel),
		DueDate:         dates.ParseStored(row.Get(ColDueDate), loc),
		Status:          model.JobStatus(row.Get(ColStatus)),
		Technician:      row.Get(ColTechnician),
		InitialRequest:  row.Get(ColInitialRequest),
		JobNotes:        row.Get(ColJobNotes),
		FinalResolution: row.Get(ColFinalResolution),
		DateCompleted:   dates.ParseStored(row.Get(ColDateCompleted), loc),
	}
}

func (r *Repository) publish(kind string, job model.Job, change *model.ChangeEvent) {
	if r.events == nil {
		return
	}
	r.events.Publish(kind, EventData{
		RowIndex: job.RowIndex,
		JobID:    job.JobID,
		Status:   job.Status,
		Change:   change,
	})
}
