// Package uow hands out request-scoped units of work over the process-wide
// engine. A relational unit owns one pooled connection for its whole life and
// opens one transaction on it at the first write; a document unit wraps the
// shared database handle.
// Every unit must be closed, and closing always gives the connection back.
package uow

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/fusion/internal/engine"
	"github.com/mesh-intelligence/fusion/pkg/types"
)

// Provider creates units of work for one engine. It is safe for concurrent
// use by any number of request goroutines.
type Provider struct {
	engine *engine.Engine
	now    func() time.Time
	log    zerolog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithClock replaces the clock used to stamp document timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the provider logger. Defaults to the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// NewProvider returns a provider bound to e.
func NewProvider(e *engine.Engine, opts ...Option) *Provider {
	p := &Provider{engine: e, now: time.Now, log: e.Logger()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Engine returns the engine the provider draws from.
func (p *Provider) Engine() *engine.Engine { return p.engine }

// Acquire returns a fresh unit of work. The caller must Close it.
//
// For the relational kinds Acquire borrows a connection, waiting at most the
// pool timeout. A borrow that times out while ctx is still live fails with
// types.ErrPoolExhausted.
func (p *Provider) Acquire(ctx context.Context) (types.UnitOfWork, error) {
	if p.engine.Kind().Relational() {
		return p.acquireRelational(ctx)
	}
	mdb := p.engine.Mongo()
	if mdb == nil {
		return nil, fmt.Errorf("%w: %w", types.ErrUnavailable, engine.ErrClosed)
	}
	return newDocumentUnit(mdb.Collection(engine.UsersCollection), p.now), nil
}

// Within runs fn inside a unit of work. The unit is committed when fn returns
// nil and rolled back when fn returns an error or panics. The unit is always
// released; a panic is re-raised after release.
func (p *Provider) Within(ctx context.Context, fn func(types.UnitOfWork) error) (err error) {
	unit, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = unit.Close()
			panic(r)
		}
		if cerr := unit.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := fn(unit); err != nil {
		return err
	}
	return unit.Commit()
}

// maxBorrowAttempts bounds how many dead pooled connections one Acquire will
// discard before giving up.
const maxBorrowAttempts = 2

func (p *Provider) acquireRelational(ctx context.Context) (types.UnitOfWork, error) {
	db := p.engine.SQL()
	pool := p.engine.Pool()

	var lastErr error
	for attempt := 0; attempt < maxBorrowAttempts; attempt++ {
		conn, err := borrow(ctx, db, pool.Timeout)
		if err != nil {
			return nil, err
		}

		if pool.PrePing {
			if err := conn.PingContext(ctx); err != nil {
				discard(conn)
				if ctx.Err() != nil {
					return nil, fmt.Errorf("ping connection: %w", ctx.Err())
				}
				p.log.Warn().Err(err).Int("attempt", attempt+1).Msg("discarding dead pooled connection")
				lastErr = err
				continue
			}
		}

		return newRelationalUnit(p.engine.Kind(), conn, p.log, p.engine.Debug()), nil
	}
	return nil, fmt.Errorf("%w: no live connection: %w", types.ErrUnavailable, lastErr)
}

// borrow takes a connection from the pool, waiting at most timeout.
func borrow(ctx context.Context, db *sqlx.DB, timeout time.Duration) (*sqlx.Conn, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: %w", types.ErrUnavailable, engine.ErrClosed)
	}

	bctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := db.Connx(bctx)
	switch {
	case err == nil:
		return conn, nil
	case ctx.Err() != nil:
		return nil, fmt.Errorf("borrow connection: %w", ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return nil, types.ErrPoolExhausted
	default:
		return nil, fmt.Errorf("%w: borrow connection: %w", types.ErrUnavailable, err)
	}
}

// discard closes the physical connection behind conn instead of returning it
// to the pool.
func discard(conn *sqlx.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying unit.
func NewContext(ctx context.Context, unit types.UnitOfWork) context.Context {
	return context.WithValue(ctx, ctxKey{}, unit)
}

// FromContext returns the unit stored by NewContext.
func FromContext(ctx context.Context) (types.UnitOfWork, bool) {
	unit, ok := ctx.Value(ctxKey{}).(types.UnitOfWork)
	return unit, ok
}
