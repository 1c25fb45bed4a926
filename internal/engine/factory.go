package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/fusion/pkg/types"
)

// Driver names registered with database/sql.
const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
	driverMySQL    = "mysql"
)

// DefaultConnectTimeout bounds the startup connectivity check.
const DefaultConnectTimeout = 10 * time.Second

func init() {
	// sqlx does not know the modernc driver name; it takes '?' placeholders.
	sqlx.BindDriver(driverSQLite, sqlx.QUESTION)
}

// Option configures Open.
type Option func(*openSettings)

type openSettings struct {
	log            zerolog.Logger
	connectTimeout time.Duration
}

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *openSettings) { o.log = l }
}

// WithConnectTimeout bounds the startup ping.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *openSettings) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// Open validates cfg, connects to the selected backend and verifies it with
// one round trip. On any failure nothing is left open and the returned engine
// is nil. Configuration problems wrap types.ErrConfig; an unreachable backend
// wraps types.ErrConnect.
func Open(ctx context.Context, cfg types.Config, opts ...Option) (*Engine, error) {
	o := openSettings{log: zerolog.Nop(), connectTimeout: DefaultConnectTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		kind: cfg.Backend,
		cfg:  cfg,
		pool: normalizePool(cfg.Pool),
		log:  o.log.With().Str("backend", string(cfg.Backend)).Logger(),
	}

	ctx, cancel := context.WithTimeout(ctx, o.connectTimeout)
	defer cancel()

	var err error
	switch cfg.Backend {
	case types.BackendSQLite:
		err = e.openSQLite(ctx)
	case types.BackendPostgres:
		err = e.openPool(ctx, driverPostgres, PostgresDSN(cfg.Params))
	case types.BackendMySQL:
		err = e.openPool(ctx, driverMySQL, MySQLDSN(cfg.Params))
	case types.BackendMongo:
		err = e.openMongo(ctx, o.connectTimeout)
	default:
		// Validate rejects unknown kinds; kept so a new constant cannot slip
		// through unhandled.
		err = fmt.Errorf("%w: %q", types.ErrBackendUnknown, string(cfg.Backend))
	}
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("target", e.target()).
		Int("pool_size", e.pool.Size).
		Int("pool_max_open", e.pool.MaxOpen()).
		Msg("database engine opened")
	return e, nil
}

// normalizePool fills a zero pool configuration with the defaults.
func normalizePool(p types.PoolConfig) types.PoolConfig {
	if p == (types.PoolConfig{}) {
		return types.DefaultPoolConfig()
	}
	if p.Size == 0 {
		p.Size = types.DefaultPoolSize
	}
	if p.Timeout == 0 {
		p.Timeout = types.DefaultPoolTimeout
	}
	return p
}

func (e *Engine) openSQLite(ctx context.Context) error {
	path := e.cfg.Params.Path
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create sqlite directory: %w", types.ErrConnect, err)
		}
	}
	return e.openPool(ctx, driverSQLite, SQLiteDSN(path))
}

// openPool opens a pooled relational handle and verifies it with a ping.
func (e *Engine) openPool(ctx context.Context, driver, dsn string) error {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", types.ErrConnect, e.kind, err)
	}
	db.SetMaxIdleConns(e.pool.Size)
	db.SetMaxOpenConns(e.pool.MaxOpen())

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: %s: %w", types.ErrConnect, e.kind, err)
	}
	e.sql = db
	return nil
}

func (e *Engine) openMongo(ctx context.Context, timeout time.Duration) error {
	opts := options.Client().
		ApplyURI(MongoURI(e.cfg.Params)).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", types.ErrConnect, e.kind, err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		dctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = client.Disconnect(dctx)
		return fmt.Errorf("%w: %s: %w", types.ErrConnect, e.kind, err)
	}
	e.client = client
	e.mdb = client.Database(e.cfg.Params.Database)
	return nil
}

// target describes the connection for logs without credentials.
func (e *Engine) target() string {
	p := e.cfg.Params
	switch e.kind {
	case types.BackendSQLite:
		return p.Path
	case types.BackendPostgres:
		return hostPort(p.Host, p.Port, DefaultPostgresPort) + "/" + p.Database
	case types.BackendMySQL:
		return hostPort(p.Host, p.Port, DefaultMySQLPort) + "/" + p.Database
	case types.BackendMongo:
		return hostPort(p.Host, p.Port, DefaultMongoPort) + "/" + p.Database
	}
	return ""
}
