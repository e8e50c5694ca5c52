package token

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository persists attendance tokens in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a freshly minted token.
func (r *Repository) Insert(ctx context.Context, t Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_tokens (token, classroom_id, term_id, created_at, is_used, grace_minutes, late_cutoff_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6)
	`, t.Token, t.ClassroomID, t.TermID, t.CreatedAt, t.GraceMinutes, t.LateCutoffAt)
	return err
}

// Get returns a token by its credential value, or nil when unknown.
func (r *Repository) Get(ctx context.Context, tok string) (*Token, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT token, classroom_id, term_id, created_at, is_used, grace_minutes, late_cutoff_at
		FROM attendance_tokens WHERE token = $1
	`, tok)
	var t Token
	if err := row.Scan(&t.Token, &t.ClassroomID, &t.TermID, &t.CreatedAt, &t.Used, &t.GraceMinutes, &t.LateCutoffAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// ActiveForClassroom returns the newest unused token minted after notBefore,
// or nil when the classroom has no live token. Used for idempotent polling.
func (r *Repository) ActiveForClassroom(ctx context.Context, classroomID int64, notBefore time.Time) (*Token, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT token, classroom_id, term_id, created_at, is_used, grace_minutes, late_cutoff_at
		FROM attendance_tokens
		WHERE classroom_id = $1 AND is_used = FALSE AND created_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`, classroomID, notBefore)
	var t Token
	if err := row.Scan(&t.Token, &t.ClassroomID, &t.TermID, &t.CreatedAt, &t.Used, &t.GraceMinutes, &t.LateCutoffAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// StatusFor reports whether a token exists for the classroom and whether it
// has been redeemed. Read-only; drives the teacher display's poll.
func (r *Repository) StatusFor(ctx context.Context, classroomID int64, tok string) (Status, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT is_used FROM attendance_tokens WHERE token = $1 AND classroom_id = $2
	`, tok, classroomID)
	var used bool
	if err := row.Scan(&used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Status{}, nil
		}
		return Status{}, err
	}
	return Status{Exists: true, Used: used}, nil
}

// DeleteStale removes tokens in a terminal state: already redeemed, or minted
// before olderThan (the TTL horizon). A concurrent confirm can never still
// redeem such a row, so the sweep is race-free with the check-in path.
func (r *Repository) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM attendance_tokens WHERE is_used = TRUE OR created_at < $1
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
