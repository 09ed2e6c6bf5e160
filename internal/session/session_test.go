package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"focusbot/internal/triage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func TestUpdateCommitsAndIsolates(t *testing.T) {
	t.Parallel()
	clk := newClock()
	st := NewStore(time.Hour, WithClock(clk.Now))
	key := Key{ChatID: 1}

	got, err := st.Update(key, func(s *Session) error {
		s.SetTasks("raw", []triage.Task{{Title: "a", EstimatedMinutes: 5}})
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.ID == "" || got.Key != key || len(got.Tasks) != 1 {
		t.Fatalf("session = %+v", got)
	}

	// mutating a returned copy must not leak into the store
	got.Tasks[0].Title = "mutated"
	again, ok := st.Get(key)
	if !ok || again.Tasks[0].Title != "a" {
		t.Fatalf("stored session = %+v", again)
	}
	if again.ID != got.ID {
		t.Fatalf("ID changed: %s -> %s", got.ID, again.ID)
	}
}

func TestUpdateErrorDoesNotCommit(t *testing.T) {
	t.Parallel()
	st := NewStore(time.Hour)
	key := Key{ChatID: 1, ThreadID: 3}
	_, _ = st.Update(key, func(s *Session) error {
		s.Budget = 25
		return nil
	})
	boom := errors.New("boom")
	got, err := st.Update(key, func(s *Session) error {
		s.Budget = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if got.Budget != 25 {
		t.Fatalf("returned budget = %d, want committed 25", got.Budget)
	}
	if cur, _ := st.Get(key); cur.Budget != 25 {
		t.Fatalf("stored budget = %d", cur.Budget)
	}
}

func TestTTLAndPrune(t *testing.T) {
	t.Parallel()
	clk := newClock()
	st := NewStore(time.Hour, WithClock(clk.Now))
	a, b := Key{ChatID: 1}, Key{ChatID: 2}
	first, _ := st.Update(a, func(*Session) error { return nil })
	clk.Advance(40 * time.Minute)
	_, _ = st.Update(b, func(*Session) error { return nil })
	clk.Advance(30 * time.Minute)

	if _, ok := st.Get(a); ok {
		t.Fatal("expired session still visible")
	}
	if _, ok := st.Get(b); !ok {
		t.Fatal("live session missing")
	}
	if n := st.Prune(clk.Now()); n != 1 {
		t.Fatalf("Prune = %d, want 1", n)
	}
	if st.Len() != 1 {
		t.Fatalf("Len = %d, want 1", st.Len())
	}

	fresh, _ := st.Update(a, func(*Session) error { return nil })
	if fresh.ID == first.ID {
		t.Fatal("expired session was reused")
	}
}

func TestReset(t *testing.T) {
	t.Parallel()
	st := NewStore(0)
	key := Key{ChatID: 5}
	if st.Reset(key) {
		t.Fatal("Reset on empty store reported true")
	}
	_, _ = st.Update(key, func(*Session) error { return nil })
	if !st.Reset(key) {
		t.Fatal("Reset on live session reported false")
	}
	if _, ok := st.Get(key); ok {
		t.Fatal("session still present after Reset")
	}
}

func TestSetTasksClearsDerivedState(t *testing.T) {
	t.Parallel()
	s := &Session{
		Ranked:    []triage.Task{{Title: "x"}},
		Plan:      []triage.Block{{StartMinute: 0, EndMinute: 5}},
		PlannedAt: time.Now(),
	}
	s.SetTasks("y", []triage.Task{{Title: "y"}})
	if s.Ranked != nil || s.Plan != nil || !s.PlannedAt.IsZero() {
		t.Fatalf("derived state kept: %+v", s)
	}
	s.SetRanked([]triage.Task{{Title: "y"}})
	if len(s.Current()) != 1 || s.Current()[0].Title != "y" {
		t.Fatalf("Current = %+v", s.Current())
	}
}

func TestMarkDone(t *testing.T) {
	t.Parallel()
	s := &Session{}
	if _, err := s.MarkDone(1); !errors.Is(err, ErrNoTasks) {
		t.Fatalf("err = %v, want ErrNoTasks", err)
	}
	s.SetTasks("", []triage.Task{{Title: "a"}, {Title: "b"}})
	s.SetRanked([]triage.Task{{Title: "b"}, {Title: "a"}})

	done, err := s.MarkDone(1)
	if err != nil || done.Title != "b" {
		t.Fatalf("MarkDone(1) = %+v, %v", done, err)
	}
	if !s.Ranked[0].Completed || !s.Tasks[1].Completed || s.Tasks[0].Completed {
		t.Fatalf("completion flags = %+v / %+v", s.Ranked, s.Tasks)
	}
	if open := s.Open(); len(open) != 1 || open[0].Title != "a" {
		t.Fatalf("Open = %+v", open)
	}
	for _, n := range []int{0, 3} {
		if _, err := s.MarkDone(n); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("MarkDone(%d) err = %v", n, err)
		}
	}
}

func TestKeyString(t *testing.T) {
	t.Parallel()
	if got := (Key{ChatID: -100}).String(); got != "-100" {
		t.Fatalf("Key.String = %q", got)
	}
	if got := (Key{ChatID: 7, ThreadID: 2}).String(); got != "7/2" {
		t.Fatalf("Key.String = %q", got)
	}
}
