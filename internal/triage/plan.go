package triage

import "strings"

// Result is the output of a full Extract -> Rank -> Pack run.
type Result struct {
	Tasks  []Task  `json:"tasks"`
	Blocks []Block `json:"blocks"`
	Budget int     `json:"budget_minutes"`
}

// Plan runs the whole pipeline on raw text.
func Plan(raw string, budget int) (Result, error) {
	ranked, err := Rank(Extract(raw))
	if err != nil {
		return Result{}, err
	}
	blocks, err := Pack(ranked, budget)
	if err != nil {
		return Result{}, err
	}
	return Result{Tasks: ranked, Blocks: blocks, Budget: budget}, nil
}

// Summary aggregates a plan for display.
type Summary struct {
	TaskBlocks     int `json:"task_blocks"`
	FocusMinutes   int `json:"focus_minutes"`
	PartialMinutes int `json:"partial_minutes"`
	WrapUpMinutes  int `json:"wrapup_minutes"`
}

func Summarize(blocks []Block) Summary {
	var s Summary
	for _, b := range blocks {
		switch b.Kind {
		case BlockWrapUp:
			s.WrapUpMinutes += b.Minutes()
		case BlockPartial:
			s.TaskBlocks++
			s.PartialMinutes += b.Minutes()
		default:
			s.TaskBlocks++
			s.FocusMinutes += b.Minutes()
		}
	}
	return s
}

// Unscheduled returns ranked tasks that got no block at all, in rank order.
// A task counts as scheduled when a full or partial block carries its title.
func Unscheduled(ranked []Task, blocks []Block) []Task {
	seen := make(map[string]int, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case BlockTask:
			seen[b.TaskTitle]++
		case BlockPartial:
			seen[strings.TrimSuffix(b.TaskTitle, PartialSuffix)]++
		}
	}
	var out []Task
	for _, t := range ranked {
		if seen[t.Title] > 0 {
			seen[t.Title]--
			continue
		}
		out = append(out, t)
	}
	return out
}
