package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the discriminant of a Recurrence.
type Kind string

const (
	KindOnce   Kind = "once"
	KindHourly Kind = "hourly"
	KindDaily  Kind = "daily"
	KindWeekly Kind = "weekly"
)

// Recurrence describes how a reminder's next trigger is computed.
//
// Only the fields relevant to Kind are meaningful:
//   - once, hourly: none
//   - daily: Hour, Minute
//   - weekly: Weekday, Hour, Minute
type Recurrence struct {
	Kind    Kind         `json:"kind"`
	Weekday time.Weekday `json:"weekday,omitempty"`
	Hour    int          `json:"hour,omitempty"`
	Minute  int          `json:"minute,omitempty"`
}

func Once() Recurrence   { return Recurrence{Kind: KindOnce} }
func Hourly() Recurrence { return Recurrence{Kind: KindHourly} }

func DailyAt(hour, minute int) Recurrence {
	return Recurrence{Kind: KindDaily, Hour: hour, Minute: minute}
}

func WeeklyAt(wd time.Weekday, hour, minute int) Recurrence {
	return Recurrence{Kind: KindWeekly, Weekday: wd, Hour: hour, Minute: minute}
}

// Known reports whether the kind belongs to the closed set.
func (r Recurrence) Known() bool {
	switch r.Kind {
	case KindOnce, KindHourly, KindDaily, KindWeekly:
		return true
	default:
		return false
	}
}

// Repeats reports whether firing reschedules the reminder instead of deactivating it.
func (r Recurrence) Repeats() bool { return r.Kind != KindOnce }

// Next returns the next trigger strictly after now, in now's location.
//
// Kinds outside the closed set (and once, which is deactivated rather than
// rescheduled) advance by exactly one calendar day.
func (r Recurrence) Next(now time.Time) time.Time {
	y, mo, d := now.Date()
	loc := now.Location()

	switch r.Kind {
	case KindHourly:
		return time.Date(y, mo, d, now.Hour()+1, 0, 0, 0, loc)

	case KindDaily:
		t := time.Date(y, mo, d, r.Hour, r.Minute, 0, 0, loc)
		if !t.After(now) {
			t = time.Date(y, mo, d+1, r.Hour, r.Minute, 0, 0, loc)
		}
		return t

	case KindWeekly:
		delta := (int(r.Weekday) - int(now.Weekday()) + 7) % 7
		t := time.Date(y, mo, d+delta, r.Hour, r.Minute, 0, 0, loc)
		if !t.After(now) {
			t = time.Date(y, mo, d+delta+7, r.Hour, r.Minute, 0, 0, loc)
		}
		return t

	default:
		return now.AddDate(0, 0, 1)
	}
}

// Normalize zeroes fields that the kind does not use.
func (r Recurrence) Normalize() Recurrence {
	switch r.Kind {
	case KindOnce, KindHourly:
		return Recurrence{Kind: r.Kind}
	case KindDaily:
		return Recurrence{Kind: r.Kind, Hour: r.Hour, Minute: r.Minute}
	default:
		return r
	}
}

func (r Recurrence) Validate() error {
	if !r.Known() {
		return fmt.Errorf("%w: unknown recurrence kind %q", ErrInvalid, r.Kind)
	}
	if r.Kind == KindDaily || r.Kind == KindWeekly {
		if r.Hour < 0 || r.Hour > 23 {
			return fmt.Errorf("%w: recurrence hour %d out of range 0..23", ErrInvalid, r.Hour)
		}
		if r.Minute < 0 || r.Minute > 59 {
			return fmt.Errorf("%w: recurrence minute %d out of range 0..59", ErrInvalid, r.Minute)
		}
	}
	if r.Kind == KindWeekly && (r.Weekday < time.Sunday || r.Weekday > time.Saturday) {
		return fmt.Errorf("%w: recurrence weekday %d out of range 0..6", ErrInvalid, r.Weekday)
	}
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseWeekday accepts a three-letter or full English day name, any case.
func ParseWeekday(raw string) (time.Weekday, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if wd, ok := weekdayNames[s]; ok {
		return wd, nil
	}
	if wd, ok := weekdayNames[s[:min(3, len(s))]]; ok && s == strings.ToLower(wd.String()) {
		return wd, nil
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalid, raw)
}

func weekdayShort(wd time.Weekday) string {
	return strings.ToLower(wd.String()[:3])
}

// String renders the recurrence in the form accepted by ParseRecurrence,
// e.g. "hourly", "daily@09:00", "weekly@mon 09:00".
func (r Recurrence) String() string {
	switch r.Kind {
	case KindDaily:
		return fmt.Sprintf("daily@%02d:%02d", r.Hour, r.Minute)
	case KindWeekly:
		if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
			return fmt.Sprintf("weekly@%d %02d:%02d", r.Weekday, r.Hour, r.Minute)
		}
		return fmt.Sprintf("weekly@%s %02d:%02d", weekdayShort(r.Weekday), r.Hour, r.Minute)
	default:
		return string(r.Kind)
	}
}

// ParseRecurrence parses the String form of a Recurrence.
//
// Accepted:
//   - "once", "hourly"
//   - "daily@HH:MM"
//   - "weekly@<sun|mon|...|sat> HH:MM" (full weekday names are accepted too)
func ParseRecurrence(raw string) (Recurrence, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return Recurrence{}, fmt.Errorf("%w: recurrence required", ErrInvalid)
	}
	kind, arg, _ := strings.Cut(s, "@")
	kind = strings.TrimSpace(kind)
	arg = strings.TrimSpace(arg)

	var r Recurrence
	switch Kind(kind) {
	case KindOnce, KindHourly:
		if arg != "" {
			return Recurrence{}, fmt.Errorf("%w: %s takes no time argument", ErrInvalid, kind)
		}
		r = Recurrence{Kind: Kind(kind)}
	case KindDaily:
		h, m, err := parseClock(arg)
		if err != nil {
			return Recurrence{}, err
		}
		r = DailyAt(h, m)
	case KindWeekly:
		day, clock, ok := strings.Cut(arg, " ")
		if !ok {
			return Recurrence{}, fmt.Errorf("%w: weekly recurrence needs \"<weekday> HH:MM\"", ErrInvalid)
		}
		wd, err := ParseWeekday(day)
		if err != nil {
			return Recurrence{}, err
		}
		h, m, err := parseClock(clock)
		if err != nil {
			return Recurrence{}, err
		}
		r = WeeklyAt(wd, h, m)
	default:
		return Recurrence{}, fmt.Errorf("%w: unknown recurrence kind %q", ErrInvalid, kind)
	}
	return r, r.Validate()
}

func parseClock(v string) (int, int, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: invalid time %q (want HH:MM)", ErrInvalid, v)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid hour in %q", ErrInvalid, v)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || len(ms) != 2 {
		return 0, 0, fmt.Errorf("%w: invalid minute in %q", ErrInvalid, v)
	}
	return h, m, nil
}
