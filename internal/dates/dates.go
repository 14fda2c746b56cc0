// Package dates converts between the stored cell form of dates and the
// display forms used on the wire.
package dates

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

const (
	ListLayout  = "01/02/2006"
	InputLayout = "2006-01-02"
	clockLayout = "03:04 PM"
)

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	InputLayout,
	ListLayout,
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// Parse reads a date as typed by a person or produced by a browser date
// input. Fixed layouts are tried first, then natural-language phrases such as
// "next friday" relative to now. Empty input returns the zero time.
func Parse(raw string, loc *time.Location, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	r, err := parser.Parse(raw, now.In(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("parse date %q: unrecognized format", raw)
	}
	return r.Time, nil
}

// ParseStored reads a cell written by Stamp or Day. Unreadable cells give the
// zero time.
func ParseStored(cell string, loc *time.Location) time.Time {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return time.Time{}
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, cell, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Stamp is the stored form of a timestamp.
func Stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// Day is the stored form of a calendar date.
func Day(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return In(t, loc).Format(InputLayout)
}

// List formats t as MM/DD/YYYY, or "" when t is zero.
func List(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return In(t, loc).Format(ListLayout)
}

// Input formats t as YYYY-MM-DD, or "" when t is zero.
func Input(t time.Time, loc *time.Location) string {
	return Day(t, loc)
}

// TimeRange renders "hh:mm AM - hh:mm PM".
func TimeRange(start, end time.Time, loc *time.Location) string {
	return In(start, loc).Format(clockLayout) + " - " + In(end, loc).Format(clockLayout)
}

func In(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t
	}
	return t.In(loc)
}
