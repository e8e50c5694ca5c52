package checkin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Record is one committed attendance row. At most one exists per
// (student, classroom, term, date).
type Record struct {
	StudentID   int64
	ClassroomID int64
	TermID      int64
	Date        string
	Time        time.Time
	Status      Status
}

// Repository persists attendance rows and owns the transactional redeem.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Exists reports whether the student already has a row for the session day.
func (r *Repository) Exists(ctx context.Context, studentID, classroomID, termID int64, date string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM attendance
		WHERE student_id = $1 AND classroom_id = $2 AND term_id = $3 AND date = $4
	`, studentID, classroomID, termID, date)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Redeem flips the token's used flag and writes the attendance row in one
// transaction. The flag transition is a conditional update checked by
// affected-row count, so of any number of concurrent redemptions exactly one
// commits; the rest get ErrTokenAlreadyUsed. Committing both effects together
// means a burned token always has a matching attendance row.
func (r *Repository) Redeem(ctx context.Context, tok string, rec Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin redeem: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE attendance_tokens SET is_used = TRUE WHERE token = $1 AND is_used = FALSE
	`, tok)
	if err != nil {
		return fmt.Errorf("mark token used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenAlreadyUsed
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance (student_id, classroom_id, term_id, date, time, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, classroom_id, term_id, date)
		DO UPDATE SET time = EXCLUDED.time, status = EXCLUDED.status
	`, rec.StudentID, rec.ClassroomID, rec.TermID, rec.Date, rec.Time, string(rec.Status))
	if err != nil {
		return fmt.Errorf("write attendance: %w", err)
	}

	return tx.Commit()
}

// SheetEntry is one roster line of the per-day attendance sheet.
type SheetEntry struct {
	StudentID   int64  `json:"student_id"`
	FullName    string `json:"full_name"`
	Status      string `json:"status"`
	CheckinTime string `json:"checkin_time,omitempty"`
}

// Sheet lists every enrolled student with their status for one date; students
// without a row come back Absent. Absence is a set difference computed here,
// never a stored row.
func (r *Repository) Sheet(ctx context.Context, classroomID int64, date string) ([]SheetEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id,
		       s.first_name || ' ' || s.surname,
		       COALESCE(a.status, 'Absent'),
		       COALESCE(TO_CHAR(a.time, 'HH24:MI'), '')
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		LEFT JOIN attendance a
		  ON a.student_id = s.id
		 AND a.classroom_id = e.classroom_id
		 AND a.date = $2
		WHERE e.classroom_id = $1
		ORDER BY s.first_name
	`, classroomID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SheetEntry
	for rows.Next() {
		var e SheetEntry
		if err := rows.Scan(&e.StudentID, &e.FullName, &e.Status, &e.CheckinTime); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
