package schedule

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

// Event is one calendar entry as read from a feed.
type Event struct {
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
}

// Feed lists the events of one calendar.
type Feed interface {
	Events(ctx context.Context, from, to time.Time) ([]Event, error)
}

// Resolver finds a calendar by its display name.
type Resolver interface {
	Calendar(name string) (Feed, bool)
}

// ICSResolver serves calendars from iCalendar sources keyed by name. A source
// is an http(s) URL or a local file path.
type ICSResolver struct {
	Sources map[string]string
	Client  *http.Client
}

func (r ICSResolver) Calendar(name string) (Feed, bool) {
	src, ok := r.Sources[name]
	if !ok || strings.TrimSpace(src) == "" {
		return nil, false
	}
	return ICSFeed{Source: src, Client: r.Client}, true
}

// ICSFeed reads a single iCalendar document on every call.
type ICSFeed struct {
	Source string
	Client *http.Client
}

// Events returns the events whose start lies in [from, to], ordered by start.
func (f ICSFeed) Events(ctx context.Context, from, to time.Time) ([]Event, error) {
	body, err := f.open(ctx)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	cal, err := ics.ParseCalendar(body)
	if err != nil {
		return nil, fmt.Errorf("schedule: parse %s: %w", f.Source, err)
	}

	overrides := map[string][]time.Time{}
	for _, ev := range cal.Events() {
		if p := ev.GetProperty(ics.ComponentPropertyRecurrenceId); p != nil {
			uid := propValue(ev, ics.ComponentPropertyUniqueId)
			overrides[uid] = append(overrides[uid], propTimes(p, time.UTC)...)
		}
	}

	var out []Event
	for _, ev := range cal.Events() {
		event, ok := convert(ev)
		if !ok {
			continue
		}
		starts := []time.Time{event.Start}
		rule := ev.GetProperty(ics.ComponentPropertyRrule)
		if rule != nil && ev.GetProperty(ics.ComponentPropertyRecurrenceId) == nil {
			uid := propValue(ev, ics.ComponentPropertyUniqueId)
			if expanded, err := occurrences(ev, event.Start, rule.Value, overrides[uid], from, to); err == nil {
				starts = expanded
			}
		}
		length := event.End.Sub(event.Start)
		for _, start := range starts {
			if start.Before(from) || start.After(to) {
				continue
			}
			occ := event
			occ.Start, occ.End = start, start.Add(length)
			out = append(out, occ)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (f ICSFeed) open(ctx context.Context) (io.ReadCloser, error) {
	if strings.HasPrefix(f.Source, "http://") || strings.HasPrefix(f.Source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Source, nil)
		if err != nil {
			return nil, err
		}
		client := f.Client
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("schedule: fetch %s: %w", f.Source, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("schedule: fetch %s: %s", f.Source, resp.Status)
		}
		return resp.Body, nil
	}
	file, err := os.Open(strings.TrimPrefix(f.Source, "file://"))
	if err != nil {
		return nil, fmt.Errorf("schedule: open %s: %w", f.Source, err)
	}
	return file, nil
}

func convert(ev *ics.VEvent) (Event, bool) {
	event := Event{
		Title:       propValue(ev, ics.ComponentPropertySummary),
		Description: propValue(ev, ics.ComponentPropertyDescription),
		Location:    propValue(ev, ics.ComponentPropertyLocation),
		AllDay:      isAllDay(ev),
	}
	if event.AllDay {
		start, err := ev.GetAllDayStartAt()
		if err != nil {
			return Event{}, false
		}
		event.Start, event.End = start, start
		return event, true
	}
	start, err := ev.GetStartAt()
	if err != nil {
		return Event{}, false
	}
	end, err := ev.GetEndAt()
	if err != nil {
		end = start
	}
	event.Start, event.End = start, end
	return event, true
}

func isAllDay(ev *ics.VEvent) bool {
	prop := ev.GetProperty(ics.ComponentPropertyDtStart)
	if prop == nil {
		return false
	}
	for _, v := range prop.ICalParameters["VALUE"] {
		if strings.EqualFold(v, "DATE") {
			return true
		}
	}
	return len(strings.TrimSpace(prop.Value)) == len("20060102")
}

func propValue(ev *ics.VEvent, p ics.ComponentProperty) string {
	prop := ev.GetProperty(p)
	if prop == nil {
		return ""
	}
	return prop.Value
}

// occurrences expands an RRULE from start and returns the starts inside
// [from, to]. EXDATEs and instances moved by a RECURRENCE-ID override are
// left out. An unparseable rule is an error, and the caller then keeps the
// single master instance.
func occurrences(ev *ics.VEvent, start time.Time, rule string, moved []time.Time, from, to time.Time) ([]time.Time, error) {
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, err
	}
	set := &rrule.Set{}
	set.RRule(r)
	for i := range ev.Properties {
		p := &ev.Properties[i]
		if p.IANAToken != string(ics.ComponentPropertyExdate) {
			continue
		}
		for _, t := range propTimes(p, start.Location()) {
			set.ExDate(t)
		}
	}
	for _, t := range moved {
		set.ExDate(t)
	}
	return set.Between(from, to, true), nil
}

var timeLayouts = []struct {
	layout string
	utc    bool
}{
	{"20060102T150405Z", true},
	{"20060102T150405", false},
	{"20060102", false},
}

// propTimes reads a comma separated date or date-time list. Floating values
// use the TZID parameter when present, else loc.
func propTimes(p *ics.IANAProperty, loc *time.Location) []time.Time {
	if tzid := p.ICalParameters["TZID"]; len(tzid) > 0 {
		if l, err := time.LoadLocation(tzid[0]); err == nil {
			loc = l
		}
	}
	var out []time.Time
	for _, raw := range strings.Split(p.Value, ",") {
		raw = strings.TrimSpace(raw)
		for _, l := range timeLayouts {
			in := loc
			if l.utc {
				in = time.UTC
			}
			if t, err := time.ParseInLocation(l.layout, raw, in); err == nil {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
