package gate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/muselab-d2x/releasegate/internal/errors"
)

// tokenState tracks one token's holder and the channel waiters block on.
type tokenState struct {
	holder *Lease
	waitCh chan struct{} // closed when the holder releases
}

// MemoryGate implements Gate for concurrent runs within one process. The
// waiter wake-up is a broadcast; which waiter wins the token next is
// unspecified.
type MemoryGate struct {
	mu      sync.Mutex
	maxHold time.Duration // 0 disables force-release
	tokens  map[string]*tokenState
}

// MemoryOption configures a MemoryGate.
type MemoryOption func(*MemoryGate)

// WithMaxHold enables the supervisory timeout: a lease held longer than d is
// reclaimable by the next acquirer.
func WithMaxHold(d time.Duration) MemoryOption {
	return func(g *MemoryGate) { g.maxHold = d }
}

// NewMemoryGate creates an in-process gate.
func NewMemoryGate(opts ...MemoryOption) *MemoryGate {
	g := &MemoryGate{
		tokens: map[string]*tokenState{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *MemoryGate) state(token string) *tokenState {
	st, ok := g.tokens[token]
	if !ok {
		st = &tokenState{}
		g.tokens[token] = st
	}
	return st
}

// Acquire blocks until the token is free or ctx is done.
func (g *MemoryGate) Acquire(ctx context.Context, token string) (*Lease, error) {
	for {
		g.mu.Lock()
		st := g.state(token)

		if st.holder != nil && g.maxHold > 0 && time.Since(st.holder.AcquiredAt) > g.maxHold {
			// Displace the stuck holder; its eventual Release reports LeaseTimeout.
			st.holder.displaced = true
			st.holder = nil
			g.wake(st)
		}

		if st.holder == nil {
			lease := &Lease{ID: uuid.NewString(), Token: token, AcquiredAt: time.Now()}
			st.holder = lease
			g.mu.Unlock()
			return lease, nil
		}

		if st.waitCh == nil {
			st.waitCh = make(chan struct{})
		}
		wait := st.waitCh

		var timer *time.Timer
		var expiry <-chan time.Time
		if g.maxHold > 0 {
			remaining := time.Until(st.holder.AcquiredAt.Add(g.maxHold))
			if remaining < 0 {
				remaining = 0
			}
			timer = time.NewTimer(remaining)
			expiry = timer.C
		}
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil, errors.Cancelled(ctx.Err())
		case <-wait:
		case <-expiry:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Release hands the token back and wakes all waiters.
func (g *MemoryGate) Release(lease *Lease) error {
	if lease == nil {
		return errors.InvalidLease("")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if lease.displaced {
		// First release after displacement reports the lost exclusivity;
		// any further release is plain misuse. No state outlives the lease.
		lease.displaced = false
		return errors.LeaseTimeout(lease.Token)
	}

	st, ok := g.tokens[lease.Token]
	if !ok || st.holder == nil || st.holder.ID != lease.ID {
		return errors.InvalidLease(lease.Token)
	}

	st.holder = nil
	g.wake(st)
	return nil
}

// wake must be called with the lock held.
func (g *MemoryGate) wake(st *tokenState) {
	if st.waitCh != nil {
		close(st.waitCh)
		st.waitCh = nil
	}
}

// Held reports whether a lease is currently outstanding for token.
func (g *MemoryGate) Held(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.tokens[token]
	return ok && st.holder != nil
}
