package gate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/muselab-d2x/releasegate/internal/errors"
)

const (
	defaultPollInterval = 100 * time.Millisecond

	// tombstoneRetention is the minimum age at which displacement records of
	// holders that never released are pruned.
	tombstoneRetention = 24 * time.Hour
)

// SQLiteGate implements Gate across processes by recording leases in a SQLite
// database. Acquisition polls; the token is the single piece of shared state
// pipeline invocations coordinate on, so contention is low and polling is
// acceptable.
type SQLiteGate struct {
	db           *sql.DB
	maxHold      time.Duration
	pollInterval time.Duration
}

// SQLiteOption configures a SQLiteGate.
type SQLiteOption func(*SQLiteGate)

// WithSQLiteMaxHold enables displacement of leases held longer than d.
func WithSQLiteMaxHold(d time.Duration) SQLiteOption {
	return func(g *SQLiteGate) { g.maxHold = d }
}

// WithPollInterval overrides the acquisition poll interval.
func WithPollInterval(d time.Duration) SQLiteOption {
	return func(g *SQLiteGate) {
		if d > 0 {
			g.pollInterval = d
		}
	}
}

// NewSQLiteGate opens (creating if needed) the lease database at path.
func NewSQLiteGate(path string, opts ...SQLiteOption) (*SQLiteGate, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.InternalError("opening lease database", err)
	}
	// Lease operations are short single-row writes; one connection avoids
	// SQLITE_BUSY churn between goroutines of the same process.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS leases (
			token       TEXT PRIMARY KEY,
			lease_id    TEXT NOT NULL,
			acquired_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS displaced_leases (
			lease_id     TEXT PRIMARY KEY,
			token        TEXT NOT NULL,
			displaced_at INTEGER NOT NULL
		)`); err != nil {
		db.Close()
		return nil, errors.InternalError("initializing lease schema", err)
	}

	g := &SQLiteGate{db: db, pollInterval: defaultPollInterval}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Close releases the underlying database handle.
func (g *SQLiteGate) Close() error { return g.db.Close() }

// Acquire polls until the token row can be claimed or ctx is done.
func (g *SQLiteGate) Acquire(ctx context.Context, token string) (*Lease, error) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		lease, err := g.tryAcquire(ctx, token)
		if err != nil {
			return nil, err
		}
		if lease != nil {
			return lease, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Cancelled(ctx.Err())
		case <-ticker.C:
		}
	}
}

func (g *SQLiteGate) tryAcquire(ctx context.Context, token string) (*Lease, error) {
	now := time.Now()
	leaseID := uuid.NewString()

	res, err := g.db.ExecContext(ctx, `
		INSERT INTO leases (token, lease_id, acquired_at) VALUES (?, ?, ?)
		ON CONFLICT(token) DO NOTHING`,
		token, leaseID, now.UnixMilli())
	if err != nil {
		return nil, errors.InternalError("claiming lease", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return &Lease{ID: leaseID, Token: token, AcquiredAt: now}, nil
	}

	if g.maxHold <= 0 {
		return nil, nil
	}

	// Displace a holder past the maximum hold, leaving a tombstone so its
	// release reports LeaseTimeout rather than InvalidLease.
	cutoff := now.Add(-g.maxHold).UnixMilli()
	res, err = g.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO displaced_leases (lease_id, token, displaced_at)
		SELECT lease_id, token, ? FROM leases WHERE token = ? AND acquired_at < ?`,
		now.UnixMilli(), token, cutoff)
	if err != nil {
		return nil, errors.InternalError("recording displaced lease", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, nil
	}

	res, err = g.db.ExecContext(ctx, `
		UPDATE leases SET lease_id = ?, acquired_at = ?
		WHERE token = ? AND acquired_at < ?`,
		leaseID, now.UnixMilli(), token, cutoff)
	if err != nil {
		return nil, errors.InternalError("displacing expired lease", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		g.pruneTombstones(ctx, now)
		return &Lease{ID: leaseID, Token: token, AcquiredAt: now}, nil
	}
	return nil, nil
}

// pruneTombstones drops displacement records old enough that their holders
// are certainly gone, keeping the table bounded when crashed holders never
// come back to release.
func (g *SQLiteGate) pruneTombstones(ctx context.Context, now time.Time) {
	retention := tombstoneRetention
	if g.maxHold > retention {
		retention = g.maxHold
	}
	_, _ = g.db.ExecContext(ctx, `DELETE FROM displaced_leases WHERE displaced_at < ?`,
		now.Add(-retention).UnixMilli())
}

// Release deletes the lease row. A row already gone means either a double
// release (InvalidLease) or a displacement after the maximum hold
// (LeaseTimeout), distinguished by the displacement tombstone.
func (g *SQLiteGate) Release(lease *Lease) error {
	if lease == nil {
		return errors.InvalidLease("")
	}

	res, err := g.db.Exec(`DELETE FROM leases WHERE token = ? AND lease_id = ?`,
		lease.Token, lease.ID)
	if err != nil {
		return errors.InternalError("releasing lease", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	res, err = g.db.Exec(`DELETE FROM displaced_leases WHERE lease_id = ?`, lease.ID)
	if err != nil {
		return errors.InternalError("releasing lease", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return errors.LeaseTimeout(lease.Token)
	}
	return errors.InvalidLease(lease.Token)
}

// Held reports whether any lease is outstanding for token.
func (g *SQLiteGate) Held(token string) (bool, error) {
	var count int
	if err := g.db.QueryRow(`SELECT COUNT(*) FROM leases WHERE token = ?`, token).Scan(&count); err != nil {
		return false, fmt.Errorf("querying lease: %w", err)
	}
	return count > 0, nil
}
