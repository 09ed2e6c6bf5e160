package triage

import "strings"

// DefaultMinutes is the estimate assigned when a task line names no duration.
const DefaultMinutes = 10

// Task is one user task. The JSON names are the contract with tool callers.
type Task struct {
	Title            string  `json:"title"`
	EstimatedMinutes int     `json:"estimated_minutes"`
	Deadline         string  `json:"deadline,omitempty"`
	PriorityScore    float64 `json:"priority_score"`
	Completed        bool    `json:"completed"`
}

// Minutes returns the estimate, falling back to DefaultMinutes when unset.
func (t Task) Minutes() int {
	if t.EstimatedMinutes <= 0 {
		return DefaultMinutes
	}
	return t.EstimatedMinutes
}

// normalized returns a copy with a trimmed title and a positive estimate.
// idx is only used for error context.
func (t Task) normalized(idx int) (Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return t, malformedf(idx, "title is required")
	}
	t.EstimatedMinutes = t.Minutes()
	t.Deadline = strings.TrimSpace(t.Deadline)
	return t, nil
}

type BlockKind string

const (
	BlockTask    BlockKind = "task"
	BlockPartial BlockKind = "partial"
	BlockWrapUp  BlockKind = "wrapup"
)

// Block is one contiguous allocation in a plan, in minutes from session start.
type Block struct {
	StartMinute int       `json:"start_minute"`
	EndMinute   int       `json:"end_minute"`
	TaskTitle   string    `json:"task_title"`
	Kind        BlockKind `json:"kind"`
}

// Minutes is the block length.
func (b Block) Minutes() int { return b.EndMinute - b.StartMinute }
