package triage

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBudget is returned by Pack when the budget is not positive.
	ErrInvalidBudget = errors.New("invalid budget")
	// ErrMalformedTask is returned by Rank and Pack for records without a title.
	ErrMalformedTask = errors.New("malformed task record")
)

// TaskError reports which record of a batch was rejected.
type TaskError struct {
	Kind  error
	Index int
	Msg   string
}

func (e *TaskError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return fmt.Sprintf("%s (task %d)", e.Kind.Error(), e.Index)
	}
	return fmt.Sprintf("%s (task %d): %s", e.Kind.Error(), e.Index, e.Msg)
}

func (e *TaskError) Unwrap() error { return e.Kind }

func malformedf(idx int, format string, args ...any) error {
	return &TaskError{Kind: ErrMalformedTask, Index: idx, Msg: fmt.Sprintf(format, args...)}
}
