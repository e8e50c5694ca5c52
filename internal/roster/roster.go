package roster

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a referenced classroom or user does not exist.
var ErrNotFound = errors.New("not found")

// Classroom carries the scheduling inputs the check-in core reads.
type Classroom struct {
	ID                   int64
	Name                 string
	TermID               int64
	StartTime            string // "15:04" in the canonical zone, empty when unscheduled
	MinAttendancePercent int
}

// Student is a roster entry.
type Student struct {
	ID        int64
	FirstName string
	Surname   string
}

// User is an authenticated principal resolved at login.
type User struct {
	ID           int64
	Role         string // "teacher" or "student"
	PasswordHash string
}

// Repository reads the roster tables. The core never writes them; account and
// classroom management live outside this service.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Classroom loads one classroom's scheduling metadata.
func (r *Repository) Classroom(ctx context.Context, id int64) (*Classroom, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, term_id, COALESCE(start_time, ''), min_attendance_percent
		FROM classrooms WHERE id = $1
	`, id)
	var c Classroom
	if err := row.Scan(&c.ID, &c.Name, &c.TermID, &c.StartTime, &c.MinAttendancePercent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// IsEnrolled reports whether the student is a member of the classroom.
func (r *Repository) IsEnrolled(ctx context.Context, classroomID, studentID int64) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM enrollments WHERE classroom_id = $1 AND student_id = $2
	`, classroomID, studentID)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Students lists the classroom's members ordered by id.
func (r *Repository) Students(ctx context.Context, classroomID int64) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.first_name, s.surname
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		WHERE e.classroom_id = $1
		ORDER BY s.id
	`, classroomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.FirstName, &s.Surname); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// Lookup resolves a login username to a principal. Accounts live in two
// tables; teachers are tried first, then students.
func (r *Repository) Lookup(ctx context.Context, username string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, password_hash FROM teachers WHERE username = $1
	`, username)
	var u User
	if err := row.Scan(&u.ID, &u.PasswordHash); err == nil {
		u.Role = "teacher"
		return &u, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	row = r.db.QueryRowContext(ctx, `
		SELECT id, password_hash FROM students WHERE username = $1
	`, username)
	if err := row.Scan(&u.ID, &u.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = "student"
	return &u, nil
}
