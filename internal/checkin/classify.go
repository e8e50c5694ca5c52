package checkin

import "time"

// Status of a recorded check-in. Absence is never stored; it is the missing
// row for a session date, derived at read time.
type Status string

const (
	StatusPresent Status = "Present"
	StatusLate    Status = "Late"
)

// Classify maps a redemption instant against the session's late cutoff.
// A nil cutoff means the session has none configured, so every redemption is
// on time. The cutoff instant itself still counts as on time.
func Classify(now time.Time, cutoff *time.Time) Status {
	if cutoff == nil || !now.After(*cutoff) {
		return StatusPresent
	}
	return StatusLate
}
