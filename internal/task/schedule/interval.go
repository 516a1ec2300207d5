package schedule

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Interval is a parsed job period.
//
// Supported forms:
//   - Go duration: "20m", "4h", "1h30m"
//   - HH:MM: "00:20" (20 minutes), "02:30" (2 hours 30 minutes)
//   - bare seconds: "2", "0.5"
//   - "@every 20m" (robfig/cron descriptor)
//
// Optional prefixes "interval:" and "every:" force interval parsing.
// Calendar cron expressions ("*/5 * * * *", "@hourly") are rejected: a job
// fires relative to its previous dispatch, not on a wall clock.
type Interval struct {
	Every  time.Duration
	Source string // "duration" | "hhmm" | "seconds" | "cron-every"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

func ParseInterval(raw string) (Interval, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Interval{}, fmt.Errorf("interval required")
	}

	low := strings.ToLower(s)
	for _, p := range []string{"interval:", "every:"} {
		if strings.HasPrefix(low, p) {
			return parsePlain(strings.TrimSpace(s[len(p):]))
		}
	}
	if strings.HasPrefix(low, "cron:") {
		return Interval{}, fmt.Errorf("invalid interval %q: calendar schedules are not supported", raw)
	}

	if strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t") {
		return parseCronEvery(s)
	}
	return parsePlain(s)
}

// parseCronEvery accepts only "@every <duration>"; anything else that cron
// understands is a calendar schedule.
func parseCronEvery(s string) (Interval, error) {
	sched, err := cron.ParseStandard(s)
	if err != nil {
		return Interval{}, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	every, ok := sched.(cron.ConstantDelaySchedule)
	if !ok {
		return Interval{}, fmt.Errorf("invalid interval %q: calendar schedules are not supported; use a fixed interval like '20m'", s)
	}
	return Interval{Every: every.Delay, Source: "cron-every"}, nil
}

func parsePlain(v string) (Interval, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Interval{}, fmt.Errorf("interval required")
	}
	if reHHMM.MatchString(v) {
		d, err := parseHHMMDuration(v)
		if err != nil {
			return Interval{}, err
		}
		return Interval{Every: d, Source: "hhmm"}, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs > math.MaxInt64/1e9 {
			return Interval{}, fmt.Errorf("interval %q out of range", v)
		}
		d := time.Duration(secs * float64(time.Second))
		if d <= 0 {
			return Interval{}, fmt.Errorf("interval must be > 0")
		}
		return Interval{Every: d, Source: "seconds"}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Interval{}, fmt.Errorf("invalid interval %q (use HH:MM like '00:20', seconds like '2', or duration like '20m')", v)
	}
	if d <= 0 {
		return Interval{}, fmt.Errorf("interval must be > 0")
	}
	return Interval{Every: d, Source: "duration"}, nil
}

func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}
