package checkin

import "errors"

// Request-scoped outcomes of the check-in path. All are recoverable and
// terminal for the request; none indicates a system fault.
var (
	// ErrTokenInvalid covers unknown, expired and already-consumed tokens
	// observed at validation time.
	ErrTokenInvalid = errors.New("token invalid or expired")

	// ErrTokenAlreadyUsed means the redemption race was lost: another
	// confirm flipped the used flag first.
	ErrTokenAlreadyUsed = errors.New("token already used")

	// ErrNotEnrolled means the student is not a member of the token's
	// classroom. A legitimate business outcome, not a failure.
	ErrNotEnrolled = errors.New("student not enrolled in classroom")

	// ErrAlreadyCheckedIn means the student already has an attendance row
	// for this classroom and day. The token is left untouched.
	ErrAlreadyCheckedIn = errors.New("already checked in today")
)
