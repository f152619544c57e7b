package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SpecKind is either a cron expression or a fixed interval.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a schedule string resolved to a cron expression or an interval.
//
// Accepted forms:
//   - cron: "0 3 * * *", "@hourly", "@every 55m", or anything prefixed "cron:"
//   - interval: "55m", "2h30m", or HH:MM ("02:30" is every 2h30m), optionally prefixed "every:"/"interval:"
type ParsedSpec struct {
	Kind  SpecKind
	Cron  string
	Every time.Duration
}

// String renders the spec the way it is handed to cron.
func (p ParsedSpec) String() string {
	if p.Kind == SpecInterval {
		return "@every " + p.Every.String()
	}
	return p.Cron
}

var errEmptySchedule = errors.New("schedule required")

// ParseSchedule classifies raw. Cron expressions are only checked for presence here;
// Service.Add validates them against the cron parser.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, errEmptySchedule
	}
	prefix, rest, hasPrefix := strings.Cut(s, ":")
	if hasPrefix {
		rest = strings.TrimSpace(rest)
		switch strings.ToLower(prefix) {
		case "cron":
			if rest == "" {
				return ParsedSpec{}, fmt.Errorf("cron: %w", errEmptySchedule)
			}
			return ParsedSpec{Kind: SpecCron, Cron: rest}, nil
		case "every", "interval":
			return intervalSpec(rest)
		}
	}
	if strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t") {
		return ParsedSpec{Kind: SpecCron, Cron: s}, nil
	}
	ps, err := intervalSpec(s)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or duration like '55m'): %w", raw, err)
	}
	return ps, nil
}

func intervalSpec(v string) (ParsedSpec, error) {
	d, err := parseInterval(v)
	if err != nil {
		return ParsedSpec{}, err
	}
	if d <= 0 {
		return ParsedSpec{}, fmt.Errorf("interval %q must be > 0", v)
	}
	return ParsedSpec{Kind: SpecInterval, Every: d}, nil
}

// parseInterval reads a Go duration or an HH:MM span.
func parseInterval(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, errors.New("interval required")
	}
	hh, mm, isClock := strings.Cut(v, ":")
	if !isClock {
		return time.ParseDuration(v)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || len(mm) != 2 || h < 0 || m < 0 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	if m > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
