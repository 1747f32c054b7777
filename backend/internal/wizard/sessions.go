package wizard

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Sessions keeps one wizard per account. A single operator drives each
// account's turnover, so a second Open returns the running session.
type Sessions struct {
	mu      sync.Mutex
	engine  Engine
	log     *zap.SugaredLogger
	wizards map[string]*Wizard
}

func NewSessions(engine Engine, log *zap.SugaredLogger) *Sessions {
	return &Sessions{
		engine:  engine,
		log:     log,
		wizards: make(map[string]*Wizard),
	}
}

// Open returns the account's live session or starts a prepared one. Cancelled
// and finished sessions are replaced.
func (s *Sessions) Open(ctx context.Context, account string) (*Wizard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.wizards[account]; ok && w.live() {
		return w, nil
	}

	w := New(account, s.engine, s.log)
	if err := w.Prepare(ctx); err != nil {
		return nil, err
	}
	s.wizards[account] = w
	return w, nil
}

// Get returns the account's current session, if any
func (s *Sessions) Get(account string) (*Wizard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wizards[account]
	return w, ok
}

// Close cancels and forgets the account's session
func (s *Sessions) Close(account string) {
	s.mu.Lock()
	w, ok := s.wizards[account]
	delete(s.wizards, account)
	s.mu.Unlock()

	if ok {
		w.Cancel()
	}
}

// live reports whether the wizard can still be driven
func (w *Wizard) live() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.cancelled && w.step != StepCompletion
}
