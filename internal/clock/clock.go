package clock

import (
	"fmt"
	"time"
)

// Clock supplies the current time in the canonical civil timezone.
// Every wall-clock comparison in the check-in path goes through it, so
// client clocks are never trusted and tests can pin time.
type Clock interface {
	Now() time.Time
}

// Zone wraps the single IANA location all scheduling inputs are authored in.
// Dates, cutoffs and stored check-in times are computed against this zone;
// mixing it with UTC instants without conversion is the bug this exists to prevent.
type Zone struct {
	loc *time.Location
}

// LoadZone resolves an IANA zone name, e.g. "Asia/Bangkok".
func LoadZone(name string) (Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return Zone{loc: loc}, nil
}

// Now returns the current time converted into the canonical zone.
func (z Zone) Now() time.Time {
	return time.Now().In(z.loc)
}

// Date formats an instant as the civil date it falls on in the zone.
func (z Zone) Date(t time.Time) string {
	return t.In(z.loc).Format("2006-01-02")
}

// Cutoff computes a session's late-cutoff instant: the session date at the
// classroom's scheduled start time, pushed out by the grace period.
// An empty start time means the session has no cutoff.
func (z Zone) Cutoff(date, startTime string, graceMinutes int) (*time.Time, error) {
	if startTime == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+startTime, z.loc)
	if err != nil {
		return nil, fmt.Errorf("parse cutoff %q %q: %w", date, startTime, err)
	}
	t = t.Add(time.Duration(graceMinutes) * time.Minute)
	return &t, nil
}

// Fixed is a Clock frozen at a single instant, for tests.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }
