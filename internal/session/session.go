// Package session keeps per-chat planning state in memory.
//
// A Session is passed explicitly into every tool call; nothing about a
// user's tasks lives in package-level state. Sessions expire after a TTL of
// inactivity and are never written to disk.
package session

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"focusbot/internal/triage"
)

var (
	ErrNoTasks    = errors.New("no tasks in session")
	ErrOutOfRange = errors.New("task number out of range")
)

// Key identifies a conversation: a chat, or a forum topic inside one.
type Key struct {
	ChatID   int64
	ThreadID int
}

func (k Key) String() string {
	if k.ThreadID == 0 {
		return fmt.Sprintf("%d", k.ChatID)
	}
	return fmt.Sprintf("%d/%d", k.ChatID, k.ThreadID)
}

type Session struct {
	ID  string
	Key Key

	// Budget is the minutes requested for the current plan.
	Budget int
	// Raw is the text the tasks were extracted from.
	Raw string

	Tasks     []triage.Task  // extract output
	Ranked    []triage.Task  // rank output
	Plan      []triage.Block // pack output
	PlannedAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func newSession(key Key, now time.Time) *Session {
	return &Session{ID: uuid.NewString(), Key: key, CreatedAt: now, UpdatedAt: now}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Tasks = slices.Clone(s.Tasks)
	cp.Ranked = slices.Clone(s.Ranked)
	cp.Plan = slices.Clone(s.Plan)
	return &cp
}

// Current returns the ranked list when there is one, the extracted list
// otherwise.
func (s *Session) Current() []triage.Task {
	if len(s.Ranked) > 0 {
		return s.Ranked
	}
	return s.Tasks
}

// SetTasks replaces the extracted tasks and drops everything derived from
// the previous list.
func (s *Session) SetTasks(raw string, tasks []triage.Task) {
	s.Raw = raw
	s.Tasks = tasks
	s.Ranked = nil
	s.Plan = nil
	s.PlannedAt = time.Time{}
}

// SetRanked stores a ranking. The existing plan no longer matches it.
func (s *Session) SetRanked(ranked []triage.Task) {
	s.Ranked = ranked
	s.Plan = nil
	s.PlannedAt = time.Time{}
}

func (s *Session) SetPlan(blocks []triage.Block, budget int, at time.Time) {
	s.Plan = blocks
	s.Budget = budget
	s.PlannedAt = at
}

// MarkDone flags the n-th (1-based) task of Current as completed and
// returns it. The same title in the extracted list is flagged too.
func (s *Session) MarkDone(n int) (triage.Task, error) {
	cur := s.Current()
	if len(cur) == 0 {
		return triage.Task{}, ErrNoTasks
	}
	if n < 1 || n > len(cur) {
		return triage.Task{}, fmt.Errorf("%w: %d (have %d)", ErrOutOfRange, n, len(cur))
	}
	cur[n-1].Completed = true
	done := cur[n-1]
	if len(s.Ranked) > 0 {
		for i := range s.Tasks {
			if s.Tasks[i].Title == done.Title && !s.Tasks[i].Completed {
				s.Tasks[i].Completed = true
				break
			}
		}
	}
	return done, nil
}

// Open returns the not-yet-completed tasks of Current.
func (s *Session) Open() []triage.Task {
	var out []triage.Task
	for _, t := range s.Current() {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out
}
