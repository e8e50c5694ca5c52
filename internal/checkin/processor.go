package checkin

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"rollcall/internal/clock"
	"rollcall/internal/metrics"
	"rollcall/internal/token"
)

// Tokens reads issued attendance tokens.
type Tokens interface {
	Get(ctx context.Context, tok string) (*token.Token, error)
}

// Enrollments answers classroom membership questions.
type Enrollments interface {
	IsEnrolled(ctx context.Context, classroomID, studentID int64) (bool, error)
}

// Ledger is the attendance persistence the processor drives.
type Ledger interface {
	Exists(ctx context.Context, studentID, classroomID, termID int64, date string) (bool, error)
	Redeem(ctx context.Context, tok string, rec Record) error
}

// Processor validates and redeems attendance tokens. Each call is independent;
// all mutual exclusion lives in the storage layer's conditional update, so any
// number of Confirm calls may run in parallel across any number of processes.
type Processor struct {
	tokens Tokens
	roster Enrollments
	ledger Ledger
	clk    clock.Clock
	zone   clock.Zone
	ttl    time.Duration
}

// NewProcessor wires the check-in path.
func NewProcessor(tokens Tokens, roster Enrollments, ledger Ledger, clk clock.Clock, zone clock.Zone, ttl time.Duration) *Processor {
	if ttl <= 0 {
		ttl = 20 * time.Second
	}
	return &Processor{tokens: tokens, roster: roster, ledger: ledger, clk: clk, zone: zone, ttl: ttl}
}

// ExtractToken pulls the credential out of raw scanned text: a bare token, a
// URL with a token query parameter, or a URL ending in the token.
func ExtractToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if t := u.Query().Get("token"); t != "" {
		return t
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 0 && parts[len(parts)-1] != "" {
		return parts[len(parts)-1]
	}
	return raw
}

// Scan validates raw scanned text without consuming anything and returns the
// token the student should confirm against. The separate confirm step keeps
// redemption an explicit student action; opening the link (or a crawler
// previewing it) must not burn the token.
func (p *Processor) Scan(ctx context.Context, raw string) (*token.Token, error) {
	tok := ExtractToken(raw)
	if tok == "" {
		return nil, ErrTokenInvalid
	}
	t, err := p.tokens.Get(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	now := p.clk.Now()
	if t == nil || t.Used || now.Sub(t.CreatedAt) >= p.ttl {
		return nil, ErrTokenInvalid
	}
	return t, nil
}

// Result reports a successful confirmation.
type Result struct {
	Status      Status
	ClassroomID int64
	Date        string
}

// Confirm redeems a token for a student, exactly once. The validity timestamp
// is taken once up front and used throughout, so a token that was live at
// validation completes even if its TTL lapses mid-request.
func (p *Processor) Confirm(ctx context.Context, rawToken string, studentID int64) (Result, error) {
	now := p.clk.Now()

	t, err := p.tokens.Get(ctx, ExtractToken(rawToken))
	if err != nil {
		metrics.Confirms.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("load token: %w", err)
	}
	if t == nil || t.Used || now.Sub(t.CreatedAt) >= p.ttl {
		metrics.Confirms.WithLabelValues("token_invalid").Inc()
		return Result{}, ErrTokenInvalid
	}

	enrolled, err := p.roster.IsEnrolled(ctx, t.ClassroomID, studentID)
	if err != nil {
		metrics.Confirms.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		metrics.Confirms.WithLabelValues("not_enrolled").Inc()
		return Result{}, ErrNotEnrolled
	}

	// Duplicate check before the token mutation: a same-day repeat must not
	// consume a token other students can still use.
	date := p.zone.Date(now)
	dup, err := p.ledger.Exists(ctx, studentID, t.ClassroomID, t.TermID, date)
	if err != nil {
		metrics.Confirms.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("check duplicate: %w", err)
	}
	if dup {
		metrics.Confirms.WithLabelValues("duplicate").Inc()
		return Result{}, ErrAlreadyCheckedIn
	}

	status := Classify(now, t.LateCutoffAt)
	rec := Record{
		StudentID:   studentID,
		ClassroomID: t.ClassroomID,
		TermID:      t.TermID,
		Date:        date,
		Time:        now,
		Status:      status,
	}
	if err := p.ledger.Redeem(ctx, t.Token, rec); err != nil {
		if errors.Is(err, ErrTokenAlreadyUsed) {
			metrics.Confirms.WithLabelValues("token_used").Inc()
		} else {
			metrics.Confirms.WithLabelValues("error").Inc()
		}
		return Result{}, err
	}

	metrics.Confirms.WithLabelValues(strings.ToLower(string(status))).Inc()
	return Result{Status: status, ClassroomID: t.ClassroomID, Date: date}, nil
}
