package engine

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	pqUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	sqliteUniqueCode     = sqlite3.SQLITE_CONSTRAINT_UNIQUE
	sqlitePrimaryKeyCode = sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
)

// IsDuplicate reports whether err is a unique constraint violation raised by
// any of the supported engines.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqliteUniqueCode || code == sqlitePrimaryKeyCode
	}

	return mongo.IsDuplicateKeyError(err)
}
