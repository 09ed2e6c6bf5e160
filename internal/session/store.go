package session

import (
	"context"
	"sync"
	"time"

	logx "focusbot/pkg/logx"
)

const DefaultTTL = 12 * time.Hour

// Store is a mutex-guarded map of sessions. Callers only ever see copies;
// changes go through Update.
type Store struct {
	mu  sync.Mutex
	m   map[Key]*Session
	ttl time.Duration
	now func() time.Time
	log logx.Logger
}

type Option func(*Store)

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithLogger(log logx.Logger) Option { return func(s *Store) { s.log = log } }

func NewStore(ttl time.Duration, opts ...Option) *Store {
	s := &Store{m: map[Key]*Session{}, now: time.Now, log: logx.Nop()}
	for _, o := range opts {
		o(s)
	}
	s.SetTTL(ttl)
	return s
}

// SetTTL changes the inactivity timeout. Non-positive values restore
// DefaultTTL.
func (s *Store) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
}

func (s *Store) expiredLocked(sess *Session, now time.Time) bool {
	return now.Sub(sess.UpdatedAt) > s.ttl
}

// Get returns a copy of the live session for key.
func (s *Store) Get(key Key) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[key]
	if !ok || s.expiredLocked(sess, s.now()) {
		return nil, false
	}
	return sess.Clone(), true
}

// Update runs fn on a copy of the session for key, creating a fresh one when
// none is live. The copy replaces the stored session only when fn returns
// nil; the committed state is returned either way.
//
// fn runs without the store lock held. Concurrent updates of the same key
// are last-commit-wins.
func (s *Store) Update(key Key, fn func(sess *Session) error) (*Session, error) {
	s.mu.Lock()
	now := s.now()
	cur, ok := s.m[key]
	if !ok || s.expiredLocked(cur, now) {
		cur = newSession(key, now)
	}
	work := cur.Clone()
	s.mu.Unlock()

	if err := fn(work); err != nil {
		return cur.Clone(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	work.Key = key
	work.UpdatedAt = s.now()
	s.m[key] = work
	return work.Clone(), nil
}

// Reset forgets the session for key and reports whether one was live.
func (s *Store) Reset(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[key]
	delete(s.m, key)
	return ok && !s.expiredLocked(sess, s.now())
}

// Prune drops sessions idle for longer than the TTL.
func (s *Store) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, sess := range s.m {
		if s.expiredLocked(sess, now) {
			delete(s.m, k)
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Run prunes every interval until ctx is done.
func (s *Store) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Prune(s.now()); n > 0 {
				s.log.Debug("sessions pruned", logx.Int("count", n), logx.Int("live", s.Len()))
			}
		}
	}
}
