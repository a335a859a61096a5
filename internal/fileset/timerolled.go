package fileset

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Interval is the rolling period of a time-rolled set. The zero value is
// Hour.
type Interval int

const (
	Hour Interval = iota
	HalfHour
	Minute
	Day
	Month
	Year
)

var intervalLayouts = map[Interval]string{
	Year:     "2006",
	Month:    "200601",
	Day:      "20060102",
	Hour:     "2006010215",
	HalfHour: "200601021504",
	Minute:   "200601021504",
}

// ParseInterval parses year, month, day, hour, halfhour or minute.
func ParseInterval(s string) (Interval, bool) {
	switch strings.ToLower(s) {
	case "year":
		return Year, true
	case "month":
		return Month, true
	case "day":
		return Day, true
	case "", "hour":
		return Hour, true
	case "halfhour", "half-hour", "half_hour":
		return HalfHour, true
	case "minute":
		return Minute, true
	}
	return Hour, false
}

// TimeRolled is a set of files named after the period they cover.
type TimeRolled struct {
	base
	interval Interval
}

// NewTimeRolled returns a time-rolled set rolling hourly.
func NewTimeRolled(basePath string) *TimeRolled {
	return NewTimeRolledInterval(basePath, Hour)
}

// NewTimeRolledInterval returns a time-rolled set with an explicit interval.
// The interval only affects Format; Candidates accepts every token width.
func NewTimeRolledInterval(basePath string, interval Interval) *TimeRolled {
	if _, ok := intervalLayouts[interval]; !ok {
		interval = Hour
	}
	return &TimeRolled{base: newBase(basePath), interval: interval}
}

// Format returns the path the writer should append to at t.
func (s *TimeRolled) Format(t time.Time) string {
	switch s.interval {
	case HalfHour:
		t = t.Truncate(30 * time.Minute)
	case Minute:
		t = t.Truncate(time.Minute)
	}
	token := t.Format(intervalLayouts[s.interval])
	return filepath.Join(s.dir, s.prefix+"-"+token+CurrentExt)
}

type timeRolledFile struct {
	name   string
	token  string
	legacy bool
}

// Candidates returns legacy files before current ones, each group ordered
// by token.
func (s *TimeRolled) Candidates() ([]string, error) {
	names, err := s.names()
	if err != nil {
		return nil, err
	}

	var files []timeRolledFile
	for _, name := range names {
		if f, ok := s.parse(name); ok {
			files = append(files, f)
		}
	}

	sort.Slice(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.legacy != b.legacy {
			return a.legacy
		}
		if a.token != b.token {
			return a.token < b.token
		}
		return a.name < b.name
	})

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = filepath.Join(s.dir, f.name)
	}
	return out, nil
}

func (s *TimeRolled) parse(name string) (timeRolledFile, bool) {
	rest, ok := strings.CutPrefix(name, s.prefix+"-")
	if !ok {
		return timeRolledFile{}, false
	}

	var legacy bool
	switch {
	case strings.HasSuffix(rest, CurrentExt):
		rest = strings.TrimSuffix(rest, CurrentExt)
	case strings.HasSuffix(rest, LegacyExt):
		rest = strings.TrimSuffix(rest, LegacyExt)
		legacy = true
	default:
		return timeRolledFile{}, false
	}

	switch len(rest) {
	case 4, 6, 8, 10, 12:
	default:
		return timeRolledFile{}, false
	}
	if !isDigits(rest) {
		return timeRolledFile{}, false
	}
	return timeRolledFile{name: name, token: rest, legacy: legacy}, true
}
