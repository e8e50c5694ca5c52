package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"rollcall/internal/clock"
	"rollcall/internal/token"
)

// fakeStore backs the processor in tests. It implements Tokens and Ledger
// over maps, with the same conditional used-flag transition the Postgres
// repository performs.
type fakeStore struct {
	mu      sync.Mutex
	tokens  map[string]*token.Token
	rows    map[string]Record
	barrier *sync.WaitGroup // optional: aligns concurrent Redeem calls
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tokens: make(map[string]*token.Token),
		rows:   make(map[string]Record),
	}
}

func (s *fakeStore) Get(ctx context.Context, tok string) (*token.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tok]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func rowKey(studentID, classroomID, termID int64, date string) string {
	return fmt.Sprintf("%d|%d|%d|%s", studentID, classroomID, termID, date)
}

func (s *fakeStore) Exists(ctx context.Context, studentID, classroomID, termID int64, date string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[rowKey(studentID, classroomID, termID, date)]
	return ok, nil
}

func (s *fakeStore) Redeem(ctx context.Context, tok string, rec Record) error {
	if s.barrier != nil {
		s.barrier.Done()
		s.barrier.Wait()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tok]
	if !ok || t.Used {
		return ErrTokenAlreadyUsed
	}
	t.Used = true
	s.rows[rowKey(rec.StudentID, rec.ClassroomID, rec.TermID, rec.Date)] = rec
	return nil
}

type fakeRoster struct {
	enrolled map[int64]bool // studentID -> member
}

func (r *fakeRoster) IsEnrolled(ctx context.Context, classroomID, studentID int64) (bool, error) {
	return r.enrolled[studentID], nil
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func testZone(t *testing.T) clock.Zone {
	t.Helper()
	z, err := clock.LoadZone("Asia/Bangkok")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	return z
}

func newTestProcessor(t *testing.T, store *fakeStore, roster *fakeRoster, now time.Time) *Processor {
	t.Helper()
	return NewProcessor(store, roster, store, &testClock{now: now}, testZone(t), 20*time.Second)
}

func liveToken(now time.Time) *token.Token {
	return &token.Token{
		Token:       "tok-1",
		ClassroomID: 7,
		TermID:      1,
		CreatedAt:   now.Add(-2 * time.Second),
	}
}

func TestConfirmRecordsPresence(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.tokens["tok-1"] = liveToken(now)
	roster := &fakeRoster{enrolled: map[int64]bool{42: true}}
	p := newTestProcessor(t, store, roster, now)

	res, err := p.Confirm(context.Background(), "tok-1", 42)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Status != StatusPresent {
		t.Errorf("status = %v, want Present", res.Status)
	}
	if res.ClassroomID != 7 {
		t.Errorf("classroom = %d, want 7", res.ClassroomID)
	}
	if !store.tokens["tok-1"].Used {
		t.Error("token not marked used")
	}
	rec, ok := store.rows[rowKey(42, 7, 1, res.Date)]
	if !ok {
		t.Fatal("attendance row not written")
	}
	if !rec.Time.Equal(now) {
		t.Errorf("recorded time = %v, want %v", rec.Time, now)
	}
}

func TestConfirmLatePastCutoff(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	cutoff := now.Add(-time.Minute)
	store := newFakeStore()
	tok := liveToken(now)
	tok.LateCutoffAt = &cutoff
	store.tokens["tok-1"] = tok
	p := newTestProcessor(t, store, &fakeRoster{enrolled: map[int64]bool{42: true}}, now)

	res, err := p.Confirm(context.Background(), "tok-1", 42)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Status != StatusLate {
		t.Errorf("status = %v, want Late", res.Status)
	}
}

func TestConfirmExactlyOnce(t *testing.T) {
	const n = 50
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.tokens["tok-1"] = liveToken(now)

	roster := &fakeRoster{enrolled: make(map[int64]bool)}
	for i := int64(1); i <= n; i++ {
		roster.enrolled[i] = true
	}
	p := newTestProcessor(t, store, roster, now)

	// Hold every goroutine at the redeem step until all have validated, so
	// each one observes the token unused before the race is decided.
	var barrier sync.WaitGroup
	barrier.Add(n)
	store.barrier = &barrier

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Confirm(context.Background(), "tok-1", int64(i+1))
		}(i)
	}
	wg.Wait()

	var ok, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrTokenAlreadyUsed):
			lost++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("%d confirms succeeded, want exactly 1", ok)
	}
	if lost != n-1 {
		t.Errorf("%d confirms lost the race, want %d", lost, n-1)
	}
	if got := len(store.rows); got != 1 {
		t.Errorf("%d attendance rows written, want 1", got)
	}
}

func TestConfirmDuplicateDayLeavesTokenUnused(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.tokens["tok-1"] = liveToken(now)
	roster := &fakeRoster{enrolled: map[int64]bool{42: true}}
	p := newTestProcessor(t, store, roster, now)

	if _, err := p.Confirm(context.Background(), "tok-1", 42); err != nil {
		t.Fatalf("first confirm: %v", err)
	}

	// A fresh token for the same classroom; the repeat attempt must fail
	// without consuming it.
	second := liveToken(now)
	second.Token = "tok-2"
	store.tokens["tok-2"] = second

	_, err := p.Confirm(context.Background(), "tok-2", 42)
	if !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("err = %v, want ErrAlreadyCheckedIn", err)
	}
	if store.tokens["tok-2"].Used {
		t.Error("second token was consumed by a duplicate attempt")
	}
}

func TestConfirmNotEnrolled(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.tokens["tok-1"] = liveToken(now)
	p := newTestProcessor(t, store, &fakeRoster{enrolled: map[int64]bool{}}, now)

	_, err := p.Confirm(context.Background(), "tok-1", 99)
	if !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("err = %v, want ErrNotEnrolled", err)
	}
	if store.tokens["tok-1"].Used {
		t.Error("token mutated by a non-member attempt")
	}
}

func TestConfirmExpiredToken(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	tok := liveToken(now)
	tok.CreatedAt = now.Add(-21 * time.Second)
	store.tokens["tok-1"] = tok
	p := newTestProcessor(t, store, &fakeRoster{enrolled: map[int64]bool{42: true}}, now)

	if _, err := p.Confirm(context.Background(), "tok-1", 42); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestConfirmUnknownToken(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	p := newTestProcessor(t, newFakeStore(), &fakeRoster{enrolled: map[int64]bool{42: true}}, now)

	if _, err := p.Confirm(context.Background(), "no-such-token", 42); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestScan(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.tokens["tok-1"] = liveToken(now)
	p := newTestProcessor(t, store, &fakeRoster{}, now)

	got, err := p.Scan(context.Background(), "https://rollcall.example/attendance/confirm/tok-1")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got.Token != "tok-1" {
		t.Errorf("token = %q, want tok-1", got.Token)
	}
	if store.tokens["tok-1"].Used {
		t.Error("scan mutated the token")
	}

	store.tokens["tok-1"].Used = true
	if _, err := p.Scan(context.Background(), "tok-1"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("scan of used token: err = %v, want ErrTokenInvalid", err)
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"abc-123", "abc-123"},
		{"  abc-123\n", "abc-123"},
		{"https://rollcall.example/attendance/confirm/abc-123", "abc-123"},
		{"https://rollcall.example/scan?token=abc-123", "abc-123"},
		{"http://host/a/b/c/abc-123", "abc-123"},
	}
	for _, tt := range tests {
		if got := ExtractToken(tt.raw); got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
