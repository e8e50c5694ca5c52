package score

import (
	"context"
	"database/sql"
	"errors"
)

// Tally is the raw per-student row count pair from storage.
type Tally struct {
	StudentID int64
	FullName  string
	Ontime    int
	Late      int
}

// Repository reads committed attendance rows from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SessionCount counts distinct dates with at least one attendance row.
func (r *Repository) SessionCount(ctx context.Context, classroomID, termID int64) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT date) FROM attendance
		WHERE classroom_id = $1 AND term_id = $2
	`, classroomID, termID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Tallies returns Present/Late counts for every enrolled student, including
// students with no rows at all.
func (r *Repository) Tallies(ctx context.Context, classroomID, termID int64) ([]Tally, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id,
		       s.first_name || ' ' || s.surname,
		       COUNT(*) FILTER (WHERE a.status = 'Present'),
		       COUNT(*) FILTER (WHERE a.status = 'Late')
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		LEFT JOIN attendance a
		  ON a.student_id = s.id
		 AND a.classroom_id = e.classroom_id
		 AND a.term_id = $2
		WHERE e.classroom_id = $1
		GROUP BY s.id, s.first_name, s.surname
		ORDER BY s.id
	`, classroomID, termID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tallies []Tally
	for rows.Next() {
		var t Tally
		if err := rows.Scan(&t.StudentID, &t.FullName, &t.Ontime, &t.Late); err != nil {
			return nil, err
		}
		tallies = append(tallies, t)
	}
	return tallies, rows.Err()
}

// TallyFor returns one enrolled student's counts, or nil when the student is
// not a member of the classroom.
func (r *Repository) TallyFor(ctx context.Context, classroomID, termID, studentID int64) (*Tally, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT s.id,
		       s.first_name || ' ' || s.surname,
		       COUNT(*) FILTER (WHERE a.status = 'Present'),
		       COUNT(*) FILTER (WHERE a.status = 'Late')
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		LEFT JOIN attendance a
		  ON a.student_id = s.id
		 AND a.classroom_id = e.classroom_id
		 AND a.term_id = $2
		WHERE e.classroom_id = $1 AND s.id = $3
		GROUP BY s.id, s.first_name, s.surname
	`, classroomID, termID, studentID)
	var t Tally
	if err := row.Scan(&t.StudentID, &t.FullName, &t.Ontime, &t.Late); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}
