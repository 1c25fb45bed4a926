package engine

import (
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/mesh-intelligence/fusion/pkg/types"
)

// Default ports applied when the configured port is zero.
const (
	DefaultPostgresPort = 5432
	DefaultMySQLPort    = 3306
	DefaultMongoPort    = 27017
)

// sqliteBusyTimeoutMS bounds how long a writer waits on a locked database file.
const sqliteBusyTimeoutMS = 5000

// SQLiteDSN returns the modernc.org/sqlite data source for a database file.
// WAL and a busy timeout let every request goroutine share the same file.
// Transactions begin IMMEDIATE so a second writer waits on the busy timeout
// instead of failing on a stale read snapshot. The path is percent-escaped
// because SQLite parses the whole string as a file: URI.
func SQLiteDSN(path string) string {
	return "file:" + (&url.URL{Path: path}).EscapedPath() +
		"?_pragma=busy_timeout(" + strconv.Itoa(sqliteBusyTimeoutMS) + ")" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_txlock=immediate"
}

// PostgresDSN returns a lib/pq connection URL.
func PostgresDSN(p types.ConnectionParams) string {
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     hostPort(p.Host, p.Port, DefaultPostgresPort),
		Path:     "/" + p.Database,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	return u.String()
}

// MySQLDSN returns a go-sql-driver/mysql data source. Times are parsed into
// time.Time in UTC.
func MySQLDSN(p types.ConnectionParams) string {
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = hostPort(p.Host, p.Port, DefaultMySQLPort)
	cfg.DBName = p.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// MongoURI returns a MongoDB connection string bound to p.Database. The
// credential segment is present only when both user and password are set.
func MongoURI(p types.ConnectionParams) string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   hostPort(p.Host, p.Port, DefaultMongoPort),
		Path:   "/" + p.Database,
	}
	if p.User != "" && p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u.String()
}

func hostPort(host string, port, def int) string {
	if port == 0 {
		port = def
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
