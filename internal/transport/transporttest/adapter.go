// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"sync"

	kit "focusbot/internal/transport"
)

// Sent is one message recorded by Adapter.
type Sent struct {
	To   kit.ChatTarget
	Text string
	Opt  kit.SendOptions
}

// Adapter records outgoing messages and lets tests inject updates.
type Adapter struct {
	mu     sync.Mutex
	sent   []Sent
	menu   []kit.BotCommand
	out    chan<- kit.Update
	nextID int

	// Notify, when non-nil, receives a value after every SendText.
	Notify chan struct{}
}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Start(_ context.Context, out chan<- kit.Update) error {
	a.mu.Lock()
	a.out = out
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Stop(context.Context) error {
	a.mu.Lock()
	a.out = nil
	a.mu.Unlock()
	return nil
}

// Push delivers an update as if it came from the platform.
func (a *Adapter) Push(up kit.Update) {
	a.mu.Lock()
	out := a.out
	a.mu.Unlock()
	if out != nil {
		out <- up
	}
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	var o kit.SendOptions
	if opt != nil {
		o = *opt
	}
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.sent = append(a.sent, Sent{To: to, Text: text, Opt: o})
	notify := a.Notify
	a.mu.Unlock()
	if notify != nil {
		select {
		case notify <- struct{}{}:
		default:
		}
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: id}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	_, err := a.SendText(ctx, kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}, text, opt)
	return err
}

func (a *Adapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	a.mu.Lock()
	a.menu = append([]kit.BotCommand(nil), cmds...)
	a.mu.Unlock()
	return nil
}

// Sent returns a copy of every message sent so far.
func (a *Adapter) Sent() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Sent(nil), a.sent...)
}

// Last returns the most recent message, or false when nothing was sent.
func (a *Adapter) Last() (Sent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sent) == 0 {
		return Sent{}, false
	}
	return a.sent[len(a.sent)-1], true
}

func (a *Adapter) Menu() []kit.BotCommand {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]kit.BotCommand(nil), a.menu...)
}

func (a *Adapter) Reset() {
	a.mu.Lock()
	a.sent = nil
	a.mu.Unlock()
}
