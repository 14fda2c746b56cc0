// Package schedule mirrors an external calendar into the onsite schedule
// table. Each sync replaces the table contents wholesale.
package schedule

import (
	"context"
	"fmt"
	"io"
	"log"
	"regexp"
	"sync"
	"time"

	"github.com/example/repairdesk/api-go/internal/dates"
	"github.com/example/repairdesk/api-go/internal/model"
	"github.com/example/repairdesk/api-go/internal/store"
)

// Column names of the schedule table. The event title is kept under
// "Client Name".
const (
	ColEventDate = "Event Date"
	ColTimeRange = "Time Start/End"
	ColJobID     = "Job ID"
	ColTitle     = "Client Name"
	ColLocation  = "Location/Address"
	ColNotes     = "Event Notes"
)

var Headers = []string{ColEventDate, ColTimeRange, ColJobID, ColTitle, ColLocation, ColNotes}

// EventSynced is published after every completed sync.
const EventSynced = "schedule_synced"

var jobIDPattern = regexp.MustCompile(`WO-\d{4}`)

// Events receives sync results.
type Events interface {
	Publish(kind string, data any)
}

type Config struct {
	Calendar      string
	LookaheadDays int
	Location      *time.Location
	Now           func() time.Time
	Logger        *log.Logger
}

// Result describes one sync run.
type Result struct {
	Calendar string    `json:"calendar"`
	Found    bool      `json:"found"`
	Events   int       `json:"events"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	SyncedAt time.Time `json:"syncedAt"`
}

type Synchronizer struct {
	table    *store.Table
	resolver Resolver
	cfg      Config
	events   Events

	mu sync.Mutex
}

func NewSynchronizer(table *store.Table, resolver Resolver, cfg Config, events Events) *Synchronizer {
	if cfg.LookaheadDays <= 0 {
		cfg.LookaheadDays = 14
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return &Synchronizer{table: table, resolver: resolver, cfg: cfg, events: events}
}

// Window returns [today 00:00:00, today+LookaheadDays 23:59:59.999] in the
// configured location.
func (s *Synchronizer) Window() (time.Time, time.Time) {
	now := s.cfg.Now().In(s.cfg.Location)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location)
	last := from.AddDate(0, 0, s.cfg.LookaheadDays)
	to := time.Date(last.Year(), last.Month(), last.Day(), 23, 59, 59, int(999*time.Millisecond), s.cfg.Location)
	return from, to
}

// Sync fetches the calendar and rewrites the schedule table. An unknown
// calendar is logged and leaves the table untouched.
func (s *Synchronizer) Sync(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, to := s.Window()
	res := Result{Calendar: s.cfg.Calendar, From: from, To: to}

	feed, ok := s.resolver.Calendar(s.cfg.Calendar)
	if !ok {
		s.cfg.Logger.Printf("calendar not found: %s", s.cfg.Calendar)
		return res, nil
	}
	res.Found = true

	events, err := feed.Events(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("fetch calendar %q: %w", s.cfg.Calendar, err)
	}
	entries := Entries(events, from, to, s.cfg.Location)

	if _, err := s.table.ClearRows(ctx, store.HeaderRow+1); err != nil {
		return res, fmt.Errorf("clear schedule: %w", err)
	}
	rows := make([]map[string]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, map[string]string{
			ColEventDate: dates.Stamp(e.EventDate),
			ColTimeRange: e.TimeRange,
			ColJobID:     e.JobID,
			ColTitle:     e.Title,
			ColLocation:  e.Location,
			ColNotes:     e.Notes,
		})
	}
	if _, err := s.table.AppendRows(ctx, rows); err != nil {
		return res, fmt.Errorf("write schedule: %w", err)
	}

	res.Events = len(entries)
	res.SyncedAt = s.cfg.Now()
	s.cfg.Logger.Printf("synced %d events", res.Events)
	if s.events != nil {
		s.events.Publish(EventSynced, res)
	}
	return res, nil
}

// Entries keeps the timed events starting inside [from, to] and converts them
// to schedule rows.
func Entries(events []Event, from, to time.Time, loc *time.Location) []model.ScheduleEntry {
	out := make([]model.ScheduleEntry, 0, len(events))
	for _, ev := range events {
		if ev.AllDay || ev.Start.Before(from) || ev.Start.After(to) {
			continue
		}
		out = append(out, model.ScheduleEntry{
			EventDate: dates.In(ev.Start, loc),
			TimeRange: dates.TimeRange(ev.Start, ev.End, loc),
			JobID:     ExtractJobID(ev.Title, ev.Description),
			Title:     ev.Title,
			Location:  ev.Location,
			Notes:     ev.Description,
		})
	}
	return out
}

// ExtractJobID returns the first work-order id ("WO-" and four digits) in
// title, else in description, else "".
func ExtractJobID(title, description string) string {
	if m := jobIDPattern.FindString(title); m != "" {
		return m
	}
	return jobIDPattern.FindString(description)
}
