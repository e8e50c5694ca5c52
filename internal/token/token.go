package token

import "time"

// Token is a single-use, short-lived attendance credential. It is minted for
// one classroom session, displayed as a QR code, and redeemed at most once.
// The session's late-cutoff metadata is copied in at issuance and never
// changes afterwards.
type Token struct {
	Token        string
	ClassroomID  int64
	TermID       int64
	CreatedAt    time.Time
	Used         bool
	GraceMinutes int
	LateCutoffAt *time.Time // nil when the session has no scheduled start
}

// Status is the read-only poll result for a displayed token.
type Status struct {
	Exists bool `json:"exists"`
	Used   bool `json:"is_used"`
}
