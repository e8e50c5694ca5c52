package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"rollcall/internal/clock"
	"rollcall/internal/roster"
)

type memStore struct {
	tokens []Token
}

func (s *memStore) Insert(ctx context.Context, t Token) error {
	s.tokens = append(s.tokens, t)
	return nil
}

func (s *memStore) ActiveForClassroom(ctx context.Context, classroomID int64, notBefore time.Time) (*Token, error) {
	var newest *Token
	for i := range s.tokens {
		t := &s.tokens[i]
		if t.ClassroomID != classroomID || t.Used || !t.CreatedAt.After(notBefore) {
			continue
		}
		if newest == nil || t.CreatedAt.After(newest.CreatedAt) {
			newest = t
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

type memClassrooms struct {
	m map[int64]*roster.Classroom
}

func (c *memClassrooms) Classroom(ctx context.Context, id int64) (*roster.Classroom, error) {
	if cl, ok := c.m[id]; ok {
		return cl, nil
	}
	return nil, roster.ErrNotFound
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestIssuer(t *testing.T, store *memStore, clk *testClock) *Issuer {
	t.Helper()
	zone, err := clock.LoadZone("Asia/Bangkok")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	classrooms := &memClassrooms{m: map[int64]*roster.Classroom{
		7: {ID: 7, Name: "Physics", TermID: 2, StartTime: "09:00", MinAttendancePercent: 80},
		8: {ID: 8, Name: "Club", TermID: 2, StartTime: "", MinAttendancePercent: 50},
	}}
	return NewIssuer(store, classrooms, clk, zone, 20*time.Second)
}

func TestIssueIdempotentPolling(t *testing.T) {
	store := &memStore{}
	clk := &testClock{now: time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(t, store, clk)
	ctx := context.Background()

	first, err := issuer.Issue(ctx, 7, "", 0, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Polling inside the TTL returns the same token unchanged.
	clk.now = clk.now.Add(5 * time.Second)
	again, err := issuer.Issue(ctx, 7, "", 0, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if again.Token != first.Token {
		t.Errorf("poll minted a new token %q, want reuse of %q", again.Token, first.Token)
	}
	if len(store.tokens) != 1 {
		t.Errorf("%d tokens persisted, want 1", len(store.tokens))
	}

	// After the TTL a fresh token is minted.
	clk.now = clk.now.Add(20 * time.Second)
	fresh, err := issuer.Issue(ctx, 7, "", 0, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if fresh.Token == first.Token {
		t.Error("expired token was reused")
	}
}

func TestIssueForceNew(t *testing.T) {
	store := &memStore{}
	clk := &testClock{now: time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(t, store, clk)
	ctx := context.Background()

	first, _ := issuer.Issue(ctx, 7, "", 0, false)
	forced, err := issuer.Issue(ctx, 7, "", 0, true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if forced.Token == first.Token {
		t.Error("forceNew returned the existing token")
	}
}

func TestIssueComputesCutoff(t *testing.T) {
	store := &memStore{}
	clk := &testClock{now: time.Date(2025, 6, 2, 1, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(t, store, clk)

	tok, err := issuer.Issue(context.Background(), 7, "2025-06-02", 15, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok.LateCutoffAt == nil {
		t.Fatal("expected a cutoff")
	}
	// 09:00 Bangkok + 15min grace = 02:15 UTC.
	want := time.Date(2025, 6, 2, 2, 15, 0, 0, time.UTC)
	if !tok.LateCutoffAt.Equal(want) {
		t.Errorf("cutoff = %v, want %v", tok.LateCutoffAt, want)
	}
	if tok.TermID != 2 {
		t.Errorf("term = %d, want 2", tok.TermID)
	}
}

func TestIssueNoScheduledStart(t *testing.T) {
	store := &memStore{}
	clk := &testClock{now: time.Date(2025, 6, 2, 1, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(t, store, clk)

	tok, err := issuer.Issue(context.Background(), 8, "", 0, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok.LateCutoffAt != nil {
		t.Errorf("cutoff = %v, want nil for an unscheduled classroom", tok.LateCutoffAt)
	}
}

func TestIssueForSessionAlwaysMints(t *testing.T) {
	store := &memStore{}
	clk := &testClock{now: time.Date(2025, 6, 2, 1, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(t, store, clk)
	ctx := context.Background()

	polling, _ := issuer.Issue(ctx, 7, "", 0, false)
	session, err := issuer.IssueForSession(ctx, 7, "2025-06-03", 10)
	if err != nil {
		t.Fatalf("issue for session: %v", err)
	}
	if session.Token == polling.Token {
		t.Error("session reused the polling token")
	}
	if session.GraceMinutes != 10 {
		t.Errorf("grace = %d, want 10", session.GraceMinutes)
	}
}

func TestIssueUnknownClassroom(t *testing.T) {
	store := &memStore{}
	clk := &testClock{now: time.Now()}
	issuer := newTestIssuer(t, store, clk)

	if _, err := issuer.Issue(context.Background(), 999, "", 0, false); !errors.Is(err, roster.ErrNotFound) {
		t.Fatalf("err = %v, want roster.ErrNotFound", err)
	}
}
