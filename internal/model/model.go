package model

import (
	"errors"
	"time"
)

type JobStatus string

const (
	StatusCheckedIn        JobStatus = "1. Checked In: Diagnostics"
	StatusAwaitingApproval JobStatus = "2. Awaiting Customer Approval"
	StatusAwaitingParts    JobStatus = "3. Awaiting Parts (Vendor Side)"
	StatusInProgress       JobStatus = "4. In Progress: Repair/Install"
	StatusReadyForPickup   JobStatus = "5. Ready for Pickup/Delivery"
	StatusCompleted        JobStatus = "Completed"
)

// ActiveStatuses lists the non-terminal statuses in lifecycle order.
var ActiveStatuses = []JobStatus{
	StatusCheckedIn,
	StatusAwaitingApproval,
	StatusAwaitingParts,
	StatusInProgress,
	StatusReadyForPickup,
}

// Active reports whether s is one of the five non-terminal statuses.
func (s JobStatus) Active() bool {
	for _, active := range ActiveStatuses {
		if s == active {
			return true
		}
	}
	return false
}

var (
	ErrStoreNotFound              = errors.New("sheet not found")
	ErrInvalidRowIndex            = errors.New("invalid row index")
	ErrInvalidInput               = errors.New("invalid input")
	ErrNotificationDeliveryFailed = errors.New("notification delivery failed")
)

// Job is one row of the master job log.
//
// - RowIndex is the physical 1-based row; row 1 is the header, so the first job is row 2.
// - DueDate and DateCompleted are zero when unset.
type Job struct {
	RowIndex        int
	JobID           string
	DateIn          time.Time
	ServiceType     string
	ClientName      string
	ClientEmail     string
	ClientPhone     string
	SystemMakeModel string
	DueDate         time.Time
	Status          JobStatus
	Technician      string
	InitialRequest  string
	JobNotes        string
	FinalResolution string
	DateCompleted   time.Time
}

// Completed reports whether the job carries a completion timestamp.
func (j Job) Completed() bool { return !j.DateCompleted.IsZero() }

// JobInput is the intake payload used to create a job.
type JobInput struct {
	JobID          string `json:"jobId"`
	ServiceType    string `json:"serviceType"`
	ClientName     string `json:"clientName"`
	ClientEmail    string `json:"clientEmail"`
	ClientPhone    string `json:"clientPhone"`
	SystemMake     string `json:"systemMake"`
	DueDate        string `json:"dueDate"`
	CurrentStatus  string `json:"currentStatus"`
	InitialRequest string `json:"initialRequest"`
}

// JobPatch is used for partial updates. Nil fields are left untouched.
type JobPatch struct {
	ClientName      *string
	ClientEmail     *string
	ClientPhone     *string
	ServiceType     *string
	DueDate         *string
	Status          *string
	SystemMakeModel *string
	InitialRequest  *string
	JobNotes        *string
}

// ChangeEvent is the diff between a job before and after an update.
type ChangeEvent struct {
	StatusChanged bool `json:"statusChanged"`
	NotesChanged  bool `json:"notesChanged"`
}

// Any reports whether at least one tracked field changed.
func (c ChangeEvent) Any() bool { return c.StatusChanged || c.NotesChanged }

// ScheduleEntry is one onsite calendar event inside the lookahead window.
type ScheduleEntry struct {
	EventDate time.Time
	TimeRange string
	JobID     string
	Title     string
	Location  string
	Notes     string
}
