package score

import (
	"context"
	"math"

	"rollcall/internal/roster"
)

// Stats is the per-student attendance summary.
type Stats struct {
	StudentID       int64  `json:"student_id"`
	FullName        string `json:"full_name,omitempty"`
	Ontime          int    `json:"ontime"`
	Late            int    `json:"late"`
	AbsentEffective int    `json:"absent_effective"`
	Percent         int    `json:"percent"`
	IsPass          bool   `json:"is_pass"`
}

// Report is a classroom's full scoreboard.
type Report struct {
	ClassroomID          int64   `json:"classroom_id"`
	TotalSessions        int     `json:"total_sessions"`
	MinAttendancePercent int     `json:"min_attendance_percent"`
	Students             []Stats `json:"students"`
}

// Compute applies the late-penalty scoring rule. Every three late arrivals
// convert to one extra absence; a student passes only when both the percent
// threshold and the absolute absence limit hold. Percent rounds half up, and
// a tie at the threshold passes.
func Compute(totalSessions, ontime, late, minPercent int) Stats {
	penalty := late / 3
	absent := totalSessions - ontime - late
	if absent < 0 {
		absent = 0
	}
	absentEff := absent + penalty
	presentEff := totalSessions - absentEff
	if presentEff < 0 {
		presentEff = 0
	}
	percent := 0
	if totalSessions > 0 {
		percent = int(math.Round(float64(presentEff) / float64(totalSessions) * 100))
	}
	return Stats{
		Ontime:          ontime,
		Late:            late,
		AbsentEffective: absentEff,
		Percent:         percent,
		IsPass:          percent >= minPercent && absentEff < 3,
	}
}

// Source reads committed attendance tallies.
type Source interface {
	SessionCount(ctx context.Context, classroomID, termID int64) (int, error)
	Tallies(ctx context.Context, classroomID, termID int64) ([]Tally, error)
	TallyFor(ctx context.Context, classroomID, termID, studentID int64) (*Tally, error)
}

// Classrooms resolves classroom scoring parameters.
type Classrooms interface {
	Classroom(ctx context.Context, id int64) (*roster.Classroom, error)
}

// Aggregator derives attendance statistics from committed rows. A session
// counts toward totalSessions only if at least one student checked in on that
// date; sessions nobody attended are invisible here.
type Aggregator struct {
	src        Source
	classrooms Classrooms
	cache      *Cache // optional
}

// NewAggregator creates an aggregator. cache may be nil.
func NewAggregator(src Source, classrooms Classrooms, cache *Cache) *Aggregator {
	return &Aggregator{src: src, classrooms: classrooms, cache: cache}
}

// Classroom scores every enrolled student.
func (a *Aggregator) Classroom(ctx context.Context, classroomID int64) (*Report, error) {
	if rep, ok := a.cache.Get(ctx, classroomID); ok {
		return rep, nil
	}

	c, err := a.classrooms.Classroom(ctx, classroomID)
	if err != nil {
		return nil, err
	}
	total, err := a.src.SessionCount(ctx, classroomID, c.TermID)
	if err != nil {
		return nil, err
	}
	tallies, err := a.src.Tallies(ctx, classroomID, c.TermID)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		ClassroomID:          classroomID,
		TotalSessions:        total,
		MinAttendancePercent: c.MinAttendancePercent,
		Students:             make([]Stats, 0, len(tallies)),
	}
	for _, t := range tallies {
		s := Compute(total, t.Ontime, t.Late, c.MinAttendancePercent)
		s.StudentID = t.StudentID
		s.FullName = t.FullName
		rep.Students = append(rep.Students, s)
	}

	a.cache.Set(ctx, rep)
	return rep, nil
}

// Student scores a single enrolled student.
func (a *Aggregator) Student(ctx context.Context, classroomID, studentID int64) (*Stats, error) {
	c, err := a.classrooms.Classroom(ctx, classroomID)
	if err != nil {
		return nil, err
	}
	total, err := a.src.SessionCount(ctx, classroomID, c.TermID)
	if err != nil {
		return nil, err
	}
	t, err := a.src.TallyFor(ctx, classroomID, c.TermID, studentID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, roster.ErrNotFound
	}
	s := Compute(total, t.Ontime, t.Late, c.MinAttendancePercent)
	s.StudentID = t.StudentID
	s.FullName = t.FullName
	return &s, nil
}
