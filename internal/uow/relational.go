package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/fusion/internal/engine"
	"github.com/mesh-intelligence/fusion/pkg/types"
)

const userColumns = "id, email, username, hashed_password, full_name, is_active, is_superuser, created_at, updated_at"

const insertUserSQL = `INSERT INTO users (email, username, hashed_password, full_name, is_active, is_superuser) VALUES (?, ?, ?, ?, ?, ?)`

// noLimit stands in for "all rows"; every dialect accepts it in LIMIT.
const noLimit = math.MaxInt32

// relationalUnit is a unit of work over one borrowed connection. Reads run on
// the connection in autocommit mode until the first write, which begins the
// transaction; every later statement runs inside it. A read never pins a
// snapshot that a later write would have to upgrade.
type relationalUnit struct {
	lifecycle

	kind  types.BackendKind
	conn  *sqlx.Conn
	tx    *sqlx.Tx
	log   zerolog.Logger
	debug bool
}

// runner is the statement surface shared by *sqlx.Conn and *sqlx.Tx.
type runner interface {
	Rebind(query string) string
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

var (
	_ types.UnitOfWork    = (*relationalUnit)(nil)
	_ types.RelationalOps = (*relationalUnit)(nil)
)

func newRelationalUnit(kind types.BackendKind, conn *sqlx.Conn, log zerolog.Logger, debug bool) *relationalUnit {
	return &relationalUnit{kind: kind, conn: conn, log: log, debug: debug}
}

func (u *relationalUnit) Kind() types.BackendKind { return u.kind }

func (u *relationalUnit) Relational() (types.RelationalOps, bool) { return u, true }

func (u *relationalUnit) Document() (types.DocumentOps, bool) { return nil, false }

// Commit commits the transaction. A unit that never wrote has nothing to
// commit.
func (u *relationalUnit) Commit() error {
	if err := u.beginCommit(); err != nil {
		return err
	}
	if u.tx == nil {
		return nil
	}
	if err := u.tx.Commit(); err != nil {
		return storageError("commit", err)
	}
	return nil
}

// Close rolls back an uncommitted transaction and returns the connection to
// the pool. The connection is released even when the rollback fails or the
// request context is already cancelled.
func (u *relationalUnit) Close() error {
	first, committed := u.beginClose()
	if !first {
		return nil
	}

	var rbErr error
	if !committed && u.tx != nil {
		if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			rbErr = fmt.Errorf("rollback: %w", err)
		}
	}
	if err := u.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return errors.Join(rbErr, fmt.Errorf("release connection: %w", err))
	}
	return rbErr
}

func (u *relationalUnit) FindByField(ctx context.Context, field types.UserField, value string) (*types.User, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidField, string(field))
	}
	return u.selectOne(ctx, "WHERE "+string(field)+" = ? LIMIT 1", value)
}

func (u *relationalUnit) FindByEither(ctx context.Context, email, username string) (*types.User, error) {
	return u.selectOne(ctx, "WHERE email = ? OR username = ? ORDER BY id LIMIT 1", email, username)
}

func (u *relationalUnit) Insert(ctx context.Context, user *types.User) (types.UserID, error) {
	if err := u.active(); err != nil {
		return types.UserID{}, err
	}
	if err := user.Validate(); err != nil {
		return types.UserID{}, err
	}

	args := []any{
		user.Email,
		user.Username,
		user.HashedPassword,
		sql.NullString{String: user.FullName, Valid: user.FullName != ""},
		user.IsActive,
		user.IsSuperuser,
	}

	if err := u.begin(ctx); err != nil {
		return types.UserID{}, err
	}

	var id int64
	if u.kind == types.BackendPostgres {
		q := u.tx.Rebind(insertUserSQL + " RETURNING id")
		u.trace(q)
		if err := u.tx.QueryRowxContext(ctx, q, args...).Scan(&id); err != nil {
			return types.UserID{}, insertError(err)
		}
	} else {
		q := u.tx.Rebind(insertUserSQL)
		u.trace(q)
		res, err := u.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return types.UserID{}, insertError(err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return types.UserID{}, fmt.Errorf("insert user: %w", err)
		}
	}

	// Timestamps and flag defaults come from the server; read them back.
	stored, err := u.selectOne(ctx, "WHERE id = ?", id)
	if err != nil {
		return types.UserID{}, fmt.Errorf("reload user %d: %w", id, err)
	}
	if stored == nil {
		return types.UserID{}, fmt.Errorf("reload user %d: row not visible", id)
	}
	*user = *stored
	return user.ID, nil
}

func (u *relationalUnit) List(ctx context.Context, skip, limit int) ([]types.User, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = noLimit
	}
	return u.query(ctx, "ORDER BY id LIMIT ? OFFSET ?", limit, skip)
}

func (u *relationalUnit) Count(ctx context.Context, field types.UserField, value string) (int64, error) {
	if err := u.active(); err != nil {
		return 0, err
	}
	if !field.Valid() {
		return 0, fmt.Errorf("%w: %q", types.ErrInvalidField, string(field))
	}
	r := u.runner()
	q := r.Rebind("SELECT COUNT(*) FROM users WHERE " + string(field) + " = ?")
	u.trace(q)
	var n int64
	if err := r.GetContext(ctx, &n, q, value); err != nil {
		return 0, storageError("count users", err)
	}
	return n, nil
}

// SelectUsers runs a free-form predicate over the users table, ordered by id.
// An empty predicate selects every row.
func (u *relationalUnit) SelectUsers(ctx context.Context, where string, args ...any) ([]types.User, error) {
	tail := "ORDER BY id"
	if strings.TrimSpace(where) != "" {
		tail = "WHERE " + where + " " + tail
	}
	return u.query(ctx, tail, args...)
}

func (u *relationalUnit) selectOne(ctx context.Context, tail string, args ...any) (*types.User, error) {
	users, err := u.query(ctx, tail, args...)
	if err != nil || len(users) == 0 {
		return nil, err
	}
	return &users[0], nil
}

// query selects users with the given clause after "FROM users".
func (u *relationalUnit) query(ctx context.Context, tail string, args ...any) ([]types.User, error) {
	if err := u.active(); err != nil {
		return nil, err
	}
	r := u.runner()
	q := r.Rebind("SELECT " + userColumns + " FROM users " + tail)
	u.trace(q)

	var rows []userRow
	if err := r.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, storageError("select users", err)
	}
	users := make([]types.User, len(rows))
	for i := range rows {
		users[i] = rows[i].user()
	}
	return users, nil
}

// runner returns the open transaction, or the bare connection before the
// first write.
func (u *relationalUnit) runner() runner {
	if u.tx != nil {
		return u.tx
	}
	return u.conn
}

// begin opens the unit's transaction unless it is already open. On SQLite
// the transaction begins IMMEDIATE, so a concurrent writer waits here on the
// busy timeout.
func (u *relationalUnit) begin(ctx context.Context) error {
	if u.tx != nil {
		return nil
	}
	tx, err := u.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", types.ErrUnavailable, err)
	}
	u.tx = tx
	return nil
}

func (u *relationalUnit) trace(q string) {
	if u.debug {
		u.log.Debug().Str("sql", q).Msg("statement")
	}
}

func insertError(err error) error {
	if engine.IsDuplicate(err) {
		return fmt.Errorf("%w: %w", types.ErrDuplicateUser, err)
	}
	return storageError("insert user", err)
}

// storageError wraps err for op. Lock conflicts between concurrent units are
// transient and wrap types.ErrUnavailable.
func storageError(op string, err error) error {
	if engine.IsContention(err) {
		return fmt.Errorf("%w: %s: %w", types.ErrUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// userRow is the scan target for one users row.
type userRow struct {
	ID             int64          `db:"id"`
	Email          string         `db:"email"`
	Username       string         `db:"username"`
	HashedPassword string         `db:"hashed_password"`
	FullName       sql.NullString `db:"full_name"`
	IsActive       bool           `db:"is_active"`
	IsSuperuser    bool           `db:"is_superuser"`
	CreatedAt      dbTime         `db:"created_at"`
	UpdatedAt      dbTime         `db:"updated_at"`
}

func (r userRow) user() types.User {
	return types.User{
		ID:             types.SeqID(r.ID),
		Email:          r.Email,
		Username:       r.Username,
		HashedPassword: r.HashedPassword,
		FullName:       r.FullName.String,
		IsActive:       r.IsActive,
		IsSuperuser:    r.IsSuperuser,
		CreatedAt:      time.Time(r.CreatedAt),
		UpdatedAt:      time.Time(r.UpdatedAt),
	}
}

// dbTime scans timestamps in UTC whether the driver yields time.Time or the
// text form SQLite stores for CURRENT_TIMESTAMP.
type dbTime time.Time

var dbTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = dbTime{}
		return nil
	case time.Time:
		*t = dbTime(v.UTC())
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	}
	return fmt.Errorf("scan timestamp: unsupported type %T", src)
}

func (t *dbTime) parse(s string) error {
	for _, layout := range dbTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = dbTime(parsed.UTC())
			return nil
		}
	}
	return fmt.Errorf("scan timestamp: unrecognized format %q", s)
}
