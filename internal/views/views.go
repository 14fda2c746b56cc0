// Package views computes read-side projections over the stored tables. Every
// call re-reads the tables it needs; nothing is cached between calls.
package views

import (
	"context"
	"fmt"
	"regexp"

	"github.com/example/repairdesk/api-go/internal/jobs"
	"github.com/example/repairdesk/api-go/internal/model"
	"github.com/example/repairdesk/api-go/internal/store"
)

// Form types accepted by FormEntries.
const (
	FormCheckin = "checkin"
	FormIntake  = "intake"
	FormAll     = "all"
)

// SourceKey tags each form row with the form it came from.
const SourceKey = "_source"

type Config struct {
	MasterLogSheet string
	ScheduleSheet  string
	CheckinSheet   string
	IntakeSheet    string
}

type Projector struct {
	store *store.SQLite
	cfg   Config
}

func NewProjector(s *store.SQLite, cfg Config) *Projector {
	return &Projector{store: s, cfg: cfg}
}

// StatusCounts counts non-completed jobs per active status. Every active
// status is present in the result, blank or unknown statuses are not counted.
func (p *Projector) StatusCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(model.ActiveStatuses))
	for _, s := range model.ActiveStatuses {
		counts[string(s)] = 0
	}

	table := p.store.Table(p.cfg.MasterLogSheet)
	rows, err := table.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return counts, nil
	}
	schema, err := table.Schema(ctx)
	if err != nil {
		return nil, err
	}
	if !schema.Has(jobs.ColStatus) {
		return nil, fmt.Errorf("%w: Status column not found in sheet", model.ErrInvalidInput)
	}

	for _, row := range rows {
		if row.Get(jobs.ColDateCompleted) != "" {
			continue
		}
		status := row.Get(jobs.ColStatus)
		if _, ok := counts[status]; ok {
			counts[status]++
		}
	}
	return counts, nil
}

// Schedule projects the schedule table.
func (p *Projector) Schedule(ctx context.Context) ([]map[string]string, error) {
	return p.Table(ctx, p.cfg.ScheduleSheet)
}

var headerSeparators = regexp.MustCompile(`[\s/]`)

// NormalizeHeader replaces whitespace and slashes with underscores, so
// "Time Start/End" becomes "Time_Start_End".
func NormalizeHeader(h string) string {
	return headerSeparators.ReplaceAllString(h, "_")
}

// Table returns one map per data row keyed by normalized header. Cell values
// are passed through unchanged.
func (p *Projector) Table(ctx context.Context, name string) ([]map[string]string, error) {
	table := p.store.Table(name)
	rows, err := table.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]string, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	headers, err := table.Header(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(headers))
	for i, h := range headers {
		keys[i] = NormalizeHeader(h)
	}
	for _, row := range rows {
		m := make(map[string]string, len(keys))
		for i, key := range keys {
			if i < len(row.Cells) {
				m[key] = row.Cells[i]
			} else {
				m[key] = ""
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// FormEntries returns raw form-response rows tagged with their source. For
// FormAll, form tables that do not exist are skipped.
func (p *Projector) FormEntries(ctx context.Context, formType string) ([]map[string]string, error) {
	type source struct {
		tag   string
		sheet string
	}
	var sources []source
	switch formType {
	case FormCheckin:
		sources = []source{{FormCheckin, p.cfg.CheckinSheet}}
	case FormIntake:
		sources = []source{{FormIntake, p.cfg.IntakeSheet}}
	case FormAll, "":
		sources = []source{{FormCheckin, p.cfg.CheckinSheet}, {FormIntake, p.cfg.IntakeSheet}}
	default:
		return nil, fmt.Errorf("%w: unknown formType %q", model.ErrInvalidInput, formType)
	}

	out := []map[string]string{}
	for _, src := range sources {
		if len(sources) > 1 {
			ok, err := p.store.HasTable(ctx, src.sheet)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		rows, err := p.Table(ctx, src.sheet)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			row[SourceKey] = src.tag
			out = append(out, row)
		}
	}
	return out, nil
}
