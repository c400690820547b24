package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// [d.]hh:mm:ss[.fffffff] or hh:mm
var reTimeSpan = regexp.MustCompile(`^(?:(\d+)\.)?(\d{1,2}):(\d{2})(?::(\d{2})(?:\.(\d{1,7}))?)?$`)

// ParseDuration parses a duration setting. Accepted forms:
//   - TimeSpan style: "00:05:00", "1.02:00:00", "00:00:00.250", "00:50" (hh:mm)
//   - Go duration: "5m", "1h30m", "250ms"
//   - Cron descriptor: "@every 5m"
//
// Negative values are rejected. An empty string parses to zero.
func ParseDuration(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}

	if strings.HasPrefix(s, "@") {
		sched, err := cron.ParseStandard(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		every, ok := sched.(cron.ConstantDelaySchedule)
		if !ok {
			return 0, fmt.Errorf("invalid duration %q: only @every descriptors are intervals", raw)
		}
		return every.Delay, nil
	}

	if m := reTimeSpan.FindStringSubmatch(s); m != nil {
		return parseTimeSpan(raw, m)
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use hh:mm:ss, Go duration like '5m', or '@every 5m')", raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: must be >= 0", raw)
	}
	return d, nil
}

func parseTimeSpan(raw string, m []string) (time.Duration, error) {
	atoi := func(v string) int {
		if v == "" {
			return 0
		}
		n, _ := strconv.Atoi(v)
		return n
	}
	days, hours, mins, secs := atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4])
	if hours > 23 || mins > 59 || secs > 59 {
		return 0, fmt.Errorf("invalid duration %q: component out of range", raw)
	}
	d := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(secs)*time.Second
	if frac := m[5]; frac != "" {
		// Fraction has up to 7 digits (100ns ticks); right-pad to nanoseconds.
		ns, _ := strconv.Atoi((frac + "000000000")[:9])
		d += time.Duration(ns)
	}
	return d, nil
}

// ParseDurationField is ParseDuration with the config path in the error.
func ParseDurationField(path, raw string) (time.Duration, error) {
	d, err := ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
