package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// TickKind is the normalized kind of a tick setting.
type TickKind int

const (
	TickCron TickKind = iota
	TickInterval
)

// ParsedTick is a parsed scheduler.tick value.
//
// Supported forms:
//   - Cron: "* * * * *", "*/5 * * * *", "0 * * * * *" (seconds), "@hourly", "@every 30s"
//   - Interval duration: "30s", "2m"
//   - Interval HH:MM: "00:05" (5 minutes)
//
// Optional prefixes "cron:" and "every:" force the kind.
type ParsedTick struct {
	Kind   TickKind
	Cron   string
	Every  time.Duration
	Source string // "default" | "cron" | "duration" | "hhmm"
}

// CronSpec renders the tick for cron.AddFunc.
func (p ParsedTick) CronSpec() string {
	if p.Kind == TickInterval {
		return "@every " + p.Every.String()
	}
	return p.Cron
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// cronParser accepts 5-field specs, 6-field specs with seconds, and descriptors.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseTick parses and validates a tick setting. Empty means DefaultTick.
func ParseTick(raw string) (ParsedTick, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedTick{Kind: TickCron, Cron: DefaultTick, Source: "default"}, nil
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]))
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return parseCron(s)
	}

	if p, err := parseInterval(s); err == nil {
		return p, nil
	}
	return ParsedTick{}, fmt.Errorf(
		"invalid tick %q (use cron like '* * * * *', HH:MM like '00:05', or duration like '30s')", raw)
}

func parseCron(expr string) (ParsedTick, error) {
	if expr == "" {
		return ParsedTick{}, fmt.Errorf("cron expression required")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return ParsedTick{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return ParsedTick{Kind: TickCron, Cron: expr, Source: "cron"}, nil
}

func parseInterval(v string) (ParsedTick, error) {
	if v == "" {
		return ParsedTick{}, fmt.Errorf("interval required")
	}
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return ParsedTick{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return ParsedTick{}, fmt.Errorf("interval must be > 0")
		}
		return ParsedTick{Kind: TickInterval, Every: d, Source: "hhmm"}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return ParsedTick{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '30s')", v)
	}
	if d < time.Second {
		return ParsedTick{}, fmt.Errorf("interval must be >= 1s")
	}
	return ParsedTick{Kind: TickInterval, Every: d, Source: "duration"}, nil
}
