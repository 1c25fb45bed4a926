package engine

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mesh-intelligence/fusion/pkg/types"
)

// Users table DDL per dialect. Email and username compare exactly, case and
// trailing spaces included, in every dialect; MySQL needs a NO PAD binary
// collation for that.
const (
	sqliteUsersDDL = `CREATE TABLE IF NOT EXISTS users (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    email           TEXT NOT NULL UNIQUE,
    username        TEXT NOT NULL UNIQUE,
    hashed_password TEXT NOT NULL,
    full_name       TEXT,
    is_active       BOOLEAN NOT NULL DEFAULT 1,
    is_superuser    BOOLEAN NOT NULL DEFAULT 0,
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	postgresUsersDDL = `CREATE TABLE IF NOT EXISTS users (
    id              SERIAL PRIMARY KEY,
    email           VARCHAR(255) NOT NULL UNIQUE,
    username        VARCHAR(255) NOT NULL UNIQUE,
    hashed_password VARCHAR(255) NOT NULL,
    full_name       VARCHAR(255),
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    is_superuser    BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	mysqlUsersDDL = `CREATE TABLE IF NOT EXISTS users (
    id              INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    email           VARCHAR(255) COLLATE utf8mb4_0900_bin NOT NULL,
    username        VARCHAR(255) COLLATE utf8mb4_0900_bin NOT NULL,
    hashed_password VARCHAR(255) NOT NULL,
    full_name       VARCHAR(255),
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    is_superuser    BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
    updated_at      DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
    UNIQUE KEY uq_users_email (email),
    UNIQUE KEY uq_users_username (username)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_0900_bin`
)

// UsersDDL returns the CREATE TABLE statement for a relational kind.
func UsersDDL(kind types.BackendKind) (string, error) {
	switch kind {
	case types.BackendSQLite:
		return sqliteUsersDDL, nil
	case types.BackendPostgres:
		return postgresUsersDDL, nil
	case types.BackendMySQL:
		return mysqlUsersDDL, nil
	}
	return "", fmt.Errorf("%w: no table schema for %q", types.ErrConfig, string(kind))
}

// Migrate creates the users table, or the unique indexes of the users
// collection. It is safe to run on every start.
func (e *Engine) Migrate(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}

	if e.mdb != nil {
		return e.migrateMongo(ctx)
	}

	ddl, err := UsersDDL(e.kind)
	if err != nil {
		return err
	}
	if _, err := e.sql.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	e.log.Debug().Msg("users table ready")
	return nil
}

func (e *Engine) migrateMongo(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: string(types.FieldEmail), Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uq_users_email"),
		},
		{
			Keys:    bson.D{{Key: string(types.FieldUsername), Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uq_users_username"),
		},
	}
	if _, err := e.mdb.Collection(UsersCollection).Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create users indexes: %w", err)
	}
	e.log.Debug().Msg("users indexes ready")
	return nil
}
