// Package gate provides named mutual exclusion for release operations that
// mutate shared external state. At most one lease per token is outstanding at
// any instant; acquisition blocks, release is scoped, and a lease held past
// the configured maximum duration is reclaimed so stuck runs cannot starve
// the token forever.
package gate

import (
	"context"
	"time"
)

// TokenRelease is the fixed token name serializing Release Flow Verification
// runs system-wide.
const TokenRelease = "release"

// Lease is proof of holding a token. It is returned by Acquire and must be
// handed back to Release exactly once.
type Lease struct {
	ID         string
	Token      string
	AcquiredAt time.Time

	// displaced is set by the issuing gate when the lease is reclaimed past
	// the maximum hold, guarded by that gate's mutex.
	displaced bool
}

// Gate is a named mutual-exclusion primitive.
type Gate interface {
	// Acquire blocks until no other lease for token is held, the context is
	// cancelled, or a stuck holder is displaced. Queuing order is unspecified.
	Acquire(ctx context.Context, token string) (*Lease, error)
	// Release hands a lease back. Releasing twice fails with InvalidLease; a
	// lease that was force-released after exceeding the maximum hold fails
	// with LeaseTimeout.
	Release(lease *Lease) error
}

// WithLease runs fn while holding token, guaranteeing release on every exit
// path including panics and cancellation. A LeaseTimeout on release marks the
// protected work failed even when fn itself succeeded, since its exclusivity
// guarantee was lost mid-flight.
func WithLease(ctx context.Context, g Gate, token string, fn func(ctx context.Context) error) error {
	lease, err := g.Acquire(ctx, token)
	if err != nil {
		return err
	}

	var released bool
	defer func() {
		if !released {
			_ = g.Release(lease)
		}
	}()

	fnErr := fn(ctx)

	released = true
	if relErr := g.Release(lease); relErr != nil && fnErr == nil {
		return relErr
	}
	return fnErr
}
