package engine

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	mysqlLockWaitTimeout   = 1205
	mysqlDeadlock          = 1213
)

// IsContention reports whether err is a lock conflict between concurrent
// transactions: SQLite SQLITE_BUSY or SQLITE_LOCKED (any extended code), a
// PostgreSQL serialization failure or deadlock, or a MySQL lock wait timeout
// or deadlock. Such a statement may succeed when retried later.
func IsContention(err error) bool {
	if err == nil {
		return false
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlLockWaitTimeout || myErr.Number == mysqlDeadlock
	}
	return false
}
