package token

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/clock"
	"rollcall/internal/metrics"
	"rollcall/internal/roster"
)

// Store is the persistence the issuer needs.
type Store interface {
	Insert(ctx context.Context, t Token) error
	ActiveForClassroom(ctx context.Context, classroomID int64, notBefore time.Time) (*Token, error)
}

// ClassroomSource resolves the classroom a token is minted for.
type ClassroomSource interface {
	Classroom(ctx context.Context, id int64) (*roster.Classroom, error)
}

// Issuer mints or reuses short-lived attendance tokens for classroom sessions.
type Issuer struct {
	store      Store
	classrooms ClassroomSource
	clk        clock.Clock
	zone       clock.Zone
	ttl        time.Duration
}

// NewIssuer creates an issuer. ttl bounds how long a displayed token stays
// scannable; it is unrelated to the session's late cutoff.
func NewIssuer(store Store, classrooms ClassroomSource, clk clock.Clock, zone clock.Zone, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 20 * time.Second
	}
	return &Issuer{store: store, classrooms: classrooms, clk: clk, zone: zone, ttl: ttl}
}

// TTL returns the token validity window.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue returns a live token for the classroom's session on date (today when
// empty). Unless forceNew is set, an unused unexpired token is returned
// unchanged, so a display polling every few seconds does not mint a flood.
func (i *Issuer) Issue(ctx context.Context, classroomID int64, date string, graceMinutes int, forceNew bool) (*Token, error) {
	now := i.clk.Now()
	if !forceNew {
		t, err := i.store.ActiveForClassroom(ctx, classroomID, now.Add(-i.ttl))
		if err != nil {
			return nil, fmt.Errorf("find active token: %w", err)
		}
		if t != nil {
			return t, nil
		}
	}
	return i.mint(ctx, classroomID, date, graceMinutes, now)
}

// IssueForSession starts a new session with fresh date and grace metadata,
// always minting a new token regardless of any live polling token.
func (i *Issuer) IssueForSession(ctx context.Context, classroomID int64, date string, graceMinutes int) (*Token, error) {
	return i.mint(ctx, classroomID, date, graceMinutes, i.clk.Now())
}

func (i *Issuer) mint(ctx context.Context, classroomID int64, date string, graceMinutes int, now time.Time) (*Token, error) {
	c, err := i.classrooms.Classroom(ctx, classroomID)
	if err != nil {
		return nil, err
	}
	if date == "" {
		date = i.zone.Date(now)
	}
	cutoff, err := i.zone.Cutoff(date, c.StartTime, graceMinutes)
	if err != nil {
		return nil, err
	}

	t := Token{
		Token:        uuid.NewString(),
		ClassroomID:  classroomID,
		TermID:       c.TermID,
		CreatedAt:    now,
		GraceMinutes: graceMinutes,
		LateCutoffAt: cutoff,
	}
	if err := i.store.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("insert token: %w", err)
	}
	metrics.TokensIssued.Inc()
	return &t, nil
}
