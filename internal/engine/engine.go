// Package engine turns a backend selection and its connection parameters into
// the single live database handle the process uses for its lifetime: a pooled
// SQL engine for SQLite, PostgreSQL and MySQL, or a MongoDB client bound to one
// database.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mesh-intelligence/fusion/pkg/types"
)

// StatusConnected is the probe result for a reachable backend.
const StatusConnected = "connected"

// UsersCollection is the table and collection name of user records.
const UsersCollection = "users"

const (
	probeTimeout = 5 * time.Second
	closeTimeout = 10 * time.Second
)

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("engine is closed")

// Engine is the process-wide database handle. Exactly one of sql or mdb is set,
// according to kind, and that never changes after Open returns.
type Engine struct {
	kind types.BackendKind
	cfg  types.Config
	pool types.PoolConfig
	log  zerolog.Logger

	sql    *sqlx.DB
	client *mongo.Client
	mdb    *mongo.Database

	mu     sync.RWMutex
	closed bool
}

// Kind reports the backend this engine was opened for.
func (e *Engine) Kind() types.BackendKind { return e.kind }

// Pool returns the effective pool bounds. Meaningless for MongoDB.
func (e *Engine) Pool() types.PoolConfig { return e.pool }

// Logger returns the engine logger.
func (e *Engine) Logger() zerolog.Logger { return e.log }

// Debug reports whether statement logging was requested.
func (e *Engine) Debug() bool { return e.cfg.Debug }

// SQL returns the pooled relational handle, or nil for MongoDB and after
// Close.
func (e *Engine) SQL() *sqlx.DB {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil
	}
	return e.sql
}

// Mongo returns the bound MongoDB database, or nil for the relational kinds
// and after Close.
func (e *Engine) Mongo() *mongo.Database {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil
	}
	return e.mdb
}

// Stats returns relational pool statistics. MongoDB engines report zeros.
func (e *Engine) Stats() sql.DBStats {
	if e.sql == nil {
		return sql.DBStats{}
	}
	return e.sql.Stats()
}

// Ping performs one round trip to the backend.
func (e *Engine) Ping(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}

	switch {
	case e.sql != nil:
		var one int
		return e.sql.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	case e.mdb != nil:
		return e.mdb.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
	default:
		return ErrClosed
	}
}

// Probe reports connectivity as "connected" or "error: <detail>". It never
// fails and never panics, so health endpoints can call it unconditionally.
func (e *Engine) Probe(ctx context.Context) (status string) {
	defer func() {
		if r := recover(); r != nil {
			status = fmt.Sprintf("error: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := e.Ping(ctx); err != nil {
		return "error: " + err.Error()
	}
	return StatusConnected
}

// Close releases the pool or disconnects the client. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.sql != nil {
		if err := e.sql.Close(); err != nil {
			return fmt.Errorf("close %s pool: %w", e.kind, err)
		}
	}
	if e.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := e.client.Disconnect(ctx); err != nil {
			return fmt.Errorf("disconnect mongodb: %w", err)
		}
	}
	e.log.Info().Str("backend", string(e.kind)).Msg("database engine closed")
	return nil
}
