package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Calendar answers business-day questions for one municipality.
//
// Dates are civil dates: every value returned by this package is midnight UTC
// of the calendar day it represents, so day arithmetic never crosses a DST edge.
// The configured Location is only used to decide what "today" is.
type Calendar struct {
	loc       *time.Location
	overrides map[string]struct{}
	now       func() time.Time
}

type Config struct {
	// Location used to resolve "today". Defaults to America/Sao_Paulo, then UTC.
	Location *time.Location
	// Holidays are extra non-business days (municipal holidays, ponto facultativo).
	Holidays []time.Time
	// Now is the wall clock. Defaults to time.Now.
	Now func() time.Time
}

const dayKeyLayout = "2006-01-02"

var ErrInvalidDate = errors.New("calendar: invalid date")

func New(cfg Config) *Calendar {
	loc := cfg.Location
	if loc == nil {
		if l, err := time.LoadLocation("America/Sao_Paulo"); err == nil {
			loc = l
		} else {
			loc = time.UTC
		}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	c := &Calendar{loc: loc, overrides: make(map[string]struct{}, len(cfg.Holidays)), now: now}
	for _, h := range cfg.Holidays {
		c.overrides[Truncate(h).Format(dayKeyLayout)] = struct{}{}
	}
	return c
}

// Today returns the current civil date in the calendar's location.
func (c *Calendar) Today() time.Time {
	t := c.now().In(c.loc)
	return Date(t.Year(), t.Month(), t.Day())
}

// Now returns the raw wall clock (used for timestamps).
func (c *Calendar) Now() time.Time { return c.now() }

func (c *Calendar) Location() *time.Location { return c.loc }

// IsHoliday reports whether d is a national holiday or a configured override.
func (c *Calendar) IsHoliday(d time.Time) bool {
	d = Truncate(d)
	if _, ok := c.overrides[d.Format(dayKeyLayout)]; ok {
		return true
	}
	return isNationalHoliday(d)
}

func (c *Calendar) IsBusinessDay(d time.Time) bool {
	d = Truncate(d)
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.IsHoliday(d)
}

// AddBusinessDays advances d by exactly n business days. The start day itself
// is never counted. n <= 0 returns d unchanged.
func (c *Calendar) AddBusinessDays(d time.Time, n int) time.Time {
	d = Truncate(d)
	for added := 0; added < n; {
		d = d.AddDate(0, 0, 1)
		if c.IsBusinessDay(d) {
			added++
		}
	}
	return d
}

// Date builds a civil date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the clock part of t, keeping the calendar day as written.
func Truncate(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// DaysBetween returns the number of calendar days from a to b (negative when b is before a).
func DaysBetween(a, b time.Time) int {
	return int(Truncate(b).Sub(Truncate(a)).Hours() / 24)
}

// Format renders a civil date as YYYY-MM-DD.
func Format(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dayKeyLayout)
}

var dateLayouts = []string{
	dayKeyLayout,
	"02/01/2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ParseDate accepts ISO dates, Brazilian dd/mm/yyyy and RFC3339 timestamps.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Truncate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
