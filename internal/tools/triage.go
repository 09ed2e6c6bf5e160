package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"focusbot/internal/session"
	"focusbot/internal/triage"
)

const (
	ToolExtract = "extract_tasks"
	ToolRank    = "rank_tasks"
	ToolPack    = "pack_schedule"
)

var taskSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":             map[string]any{"type": "string"},
		"estimated_minutes": map[string]any{"type": "integer"},
		"deadline":          map[string]any{"type": "string"},
		"priority_score":    map[string]any{"type": "number"},
		"completed":         map[string]any{"type": "boolean"},
	},
	"required": []string{"title"},
}

type extractArgs struct {
	RawText string `json:"raw_text"`
}

type rankArgs struct {
	Tasks []triage.Task `json:"tasks"`
}

type packArgs struct {
	Tasks            []triage.Task `json:"tasks"`
	AvailableMinutes *int          `json:"available_minutes"`
}

// RegisterTriage adds extract_tasks, rank_tasks and pack_schedule. budget
// supplies available_minutes when a pack call omits it.
func RegisterTriage(r *Registry, budget func() int) error {
	if budget == nil {
		budget = func() int { return 25 }
	}
	tools := []Tool{
		{
			Name:        ToolExtract,
			Description: "Parse free-form text into a list of tasks with title, estimated minutes and optional deadline.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"raw_text": map[string]any{"type": "string", "description": "Task list as typed by the user, one task per line."},
				},
				"required": []string{"raw_text"},
			},
			Handler: extractTasks,
		},
		{
			Name:        ToolRank,
			Description: "Score tasks by deadline urgency, duration and title keywords and return them highest priority first.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tasks": map[string]any{"type": "array", "items": taskSchema, "description": "Tasks to rank. Defaults to the last extracted tasks."},
				},
			},
			Handler: rankTasks,
		},
		{
			Name:        ToolPack,
			Description: "Fit ranked tasks into a time budget and return consecutive focus blocks ending with a wrap-up block.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tasks":             map[string]any{"type": "array", "items": taskSchema, "description": "Ranked tasks. Defaults to the session's open (not completed) tasks."},
					"available_minutes": map[string]any{"type": "integer", "description": "Session length in minutes."},
				},
			},
			Handler: packSchedule(budget),
		},
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func extractTasks(_ context.Context, sess *session.Session, raw json.RawMessage) (any, error) {
	var a extractArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	tasks := triage.Extract(a.RawText)
	if sess != nil {
		sess.SetTasks(a.RawText, tasks)
	}
	return tasks, nil
}

func rankTasks(_ context.Context, sess *session.Session, raw json.RawMessage) (any, error) {
	var a rankArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	tasks := a.Tasks
	if tasks == nil && sess != nil {
		tasks = sess.Tasks
	}
	ranked, err := triage.Rank(tasks)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		sess.SetRanked(ranked)
	}
	return ranked, nil
}

func packSchedule(budget func() int) Handler {
	return func(_ context.Context, sess *session.Session, raw json.RawMessage) (any, error) {
		var a packArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		tasks := a.Tasks
		if tasks == nil && sess != nil {
			tasks = sess.Open()
		}
		minutes := budget()
		if a.AvailableMinutes != nil {
			minutes = *a.AvailableMinutes
		}
		blocks, err := triage.Pack(tasks, minutes)
		if err != nil {
			return nil, fmt.Errorf("pack %d minutes: %w", minutes, err)
		}
		if sess != nil {
			sess.SetPlan(blocks, minutes, time.Now())
		}
		return blocks, nil
	}
}
