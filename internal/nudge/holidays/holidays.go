// Package holidays loads the seasonal calendar behind the nudge holiday boost
// and works out which of last year's holiday windows match the current date.
package holidays

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default_holidays.yaml
var defaultCalendar []byte

// Holiday is one calendar entry. Either Day or Weekday+Week is set.
type Holiday struct {
	Name    string `yaml:"name"`
	Month   int    `yaml:"month"`
	Day     int    `yaml:"day,omitempty"`
	Weekday string `yaml:"weekday,omitempty"`
	// Week is the 1-based occurrence of Weekday in the month; -1 means last.
	Week int `yaml:"week,omitempty"`
}

// Calendar is a set of holidays plus the default buffer around each.
type Calendar struct {
	BufferDays int       `yaml:"bufferDays"`
	Holidays   []Holiday `yaml:"holidays"`
}

// Window is an inclusive range of calendar days.
type Window struct {
	Name  string
	Start time.Time
	End   time.Time
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Default returns the embedded calendar.
func Default() (*Calendar, error) {
	return Parse(defaultCalendar)
}

// Load reads a calendar file, or the embedded default when path is empty.
func Load(path string) (*Calendar, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read holiday calendar: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML calendar.
func Parse(data []byte) (*Calendar, error) {
	var cal Calendar
	if err := yaml.Unmarshal(data, &cal); err != nil {
		return nil, fmt.Errorf("decode holiday calendar: %w", err)
	}
	if cal.BufferDays < 0 {
		return nil, fmt.Errorf("holiday calendar: bufferDays must not be negative")
	}
	for _, h := range cal.Holidays {
		if _, err := h.DateIn(2000); err != nil {
			return nil, err
		}
	}
	return &cal, nil
}

// DateIn returns the holiday's date in year.
func (h Holiday) DateIn(year int) (time.Time, error) {
	if h.Month < 1 || h.Month > 12 {
		return time.Time{}, fmt.Errorf("holiday %q: invalid month %d", h.Name, h.Month)
	}
	month := time.Month(h.Month)

	if h.Weekday == "" {
		d := time.Date(year, month, h.Day, 0, 0, 0, 0, time.UTC)
		if h.Day < 1 || d.Month() != month {
			return time.Time{}, fmt.Errorf("holiday %q: invalid day %d", h.Name, h.Day)
		}
		return d, nil
	}

	wd, ok := weekdays[strings.ToLower(h.Weekday)]
	if !ok {
		return time.Time{}, fmt.Errorf("holiday %q: unknown weekday %q", h.Name, h.Weekday)
	}

	switch {
	case h.Week == -1:
		last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
		offset := (int(last.Weekday()) - int(wd) + 7) % 7
		return last.AddDate(0, 0, -offset), nil
	case h.Week >= 1 && h.Week <= 5:
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		offset := (int(wd) - int(first.Weekday()) + 7) % 7
		d := first.AddDate(0, 0, offset+7*(h.Week-1))
		if d.Month() != month {
			return time.Time{}, fmt.Errorf("holiday %q: no week %d %s in month %d", h.Name, h.Week, h.Weekday, h.Month)
		}
		return d, nil
	default:
		return time.Time{}, fmt.Errorf("holiday %q: invalid week %d", h.Name, h.Week)
	}
}

// LastYearWindows returns, for every holiday whose buffered window contains
// asOf, the same holiday's buffered window one year earlier. A negative
// buffer uses the calendar's own BufferDays.
func (c *Calendar) LastYearWindows(asOf time.Time, buffer int) []Window {
	if buffer < 0 {
		buffer = c.BufferDays
	}
	today := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	var out []Window
	for _, h := range c.Holidays {
		// Windows can straddle New Year, so neighbouring years are checked too.
		for year := today.Year() - 1; year <= today.Year()+1; year++ {
			d, err := h.DateIn(year)
			if err != nil {
				break
			}
			if today.Before(d.AddDate(0, 0, -buffer)) || today.After(d.AddDate(0, 0, buffer)) {
				continue
			}
			prior, err := h.DateIn(year - 1)
			if err != nil {
				break
			}
			out = append(out, Window{
				Name:  h.Name,
				Start: prior.AddDate(0, 0, -buffer),
				End:   prior.AddDate(0, 0, buffer),
			})
		}
	}
	return out
}
