// Package tools exposes planning operations as named function calls with
// JSON-schema declarations, so a conversational agent (or the /tool command)
// can drive them with JSON arguments.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"focusbot/internal/session"
)

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrBadArgs     = errors.New("bad tool arguments")
)

// Handler runs one tool call. sess may be nil when the caller has no
// conversation; handlers that keep state must cope with that.
type Handler func(ctx context.Context, sess *session.Session, args json.RawMessage) (any, error)

// Schema is a function declaration as agent frameworks expect it.
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// Result is the JSON-serialisable outcome of Execute.
type Result struct {
	OK     bool            `json:"ok"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`

	Err error `json:"-"`
}

// Registry keeps tools in registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

func (r *Registry) Register(t Tool) error {
	if t.Name == "" || t.Handler == nil {
		return fmt.Errorf("invalid tool %q", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; ok {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Schemas returns the declarations in registration order.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Schema{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return out
}

// Execute runs the named tool. Failures never escape as panics or errors:
// they come back as a Result with OK false, Error set and Err wrapping the
// cause.
func (r *Registry) Execute(ctx context.Context, name string, sess *session.Session, args json.RawMessage) (res Result) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return failed(fmt.Errorf("%w: %s", ErrUnknownTool, name))
	}
	if err := ctx.Err(); err != nil {
		return failed(err)
	}
	defer func() {
		if p := recover(); p != nil {
			res = failed(fmt.Errorf("tool %s panicked: %v", name, p))
		}
	}()

	out, err := t.Handler(ctx, sess, args)
	if err != nil {
		return failed(err)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return failed(fmt.Errorf("encode %s output: %w", name, err))
	}
	return Result{OK: true, Output: b}
}

func failed(err error) Result {
	return Result{OK: false, Error: err.Error(), Err: err}
}

// decodeArgs strictly decodes a JSON object into dst. Empty input counts as
// "{}".
func decodeArgs(args json.RawMessage, dst any) error {
	args = bytes.TrimSpace(args)
	if len(args) == 0 || bytes.Equal(args, []byte("null")) {
		args = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrBadArgs)
	}
	return nil
}
