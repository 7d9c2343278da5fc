package roles

import (
	"context"
	"sync"
	"time"
)

// DefaultConfirmWindow is how long a pending action waits for its
// confirmation before being discarded.
const DefaultConfirmWindow = 15 * time.Second

// CommitFunc applies a confirmed action.
type CommitFunc func(ctx context.Context) error

type pendingKey struct {
	actor  string
	action string
}

type pendingAction struct {
	commit CommitFunc
	timer  *time.Timer
}

// PendingActions holds time-bounded two-phase actions keyed by
// (actor, action). An offer is honored by the first matching
// confirmation before expiry; after that, or after the window passes,
// confirmations find nothing and no state changes.
type PendingActions struct {
	window time.Duration

	mu      sync.Mutex
	pending map[pendingKey]*pendingAction
}

// NewPendingActions builds a registry with the given confirmation
// window.
func NewPendingActions(window time.Duration) *PendingActions {
	if window <= 0 {
		window = DefaultConfirmWindow
	}
	return &PendingActions{
		window:  window,
		pending: make(map[pendingKey]*pendingAction),
	}
}

// Window returns the confirmation window.
func (p *PendingActions) Window() time.Duration {
	return p.window
}

// Offer registers commit to run if the actor confirms the action within
// the window. A fresh offer for the same key replaces the old one.
func (p *PendingActions) Offer(actor, action string, commit CommitFunc) {
	key := pendingKey{actor: actor, action: action}

	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.pending[key]; ok {
		old.timer.Stop()
	}

	p.pending[key] = &pendingAction{
		commit: commit,
		timer: time.AfterFunc(p.window, func() {
			p.expire(key)
		}),
	}
}

// Confirm runs the pending commit for (actor, action) if one is still
// outstanding. It reports whether an offer was found; the error is the
// commit's result.
func (p *PendingActions) Confirm(ctx context.Context, actor, action string) (bool, error) {
	key := pendingKey{actor: actor, action: action}

	p.mu.Lock()
	act, ok := p.pending[key]
	if ok {
		act.timer.Stop()
		delete(p.pending, key)
	}
	p.mu.Unlock()

	if !ok {
		return false, nil
	}

	return true, act.commit(ctx)
}

// Discard drops a pending action without running it.
func (p *PendingActions) Discard(actor, action string) {
	key := pendingKey{actor: actor, action: action}

	p.mu.Lock()
	defer p.mu.Unlock()

	if act, ok := p.pending[key]; ok {
		act.timer.Stop()
		delete(p.pending, key)
	}
}

func (p *PendingActions) expire(key pendingKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, key)
}
