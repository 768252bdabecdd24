package grant

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// LockMode is a row-locking clause requested by the query builder.
type LockMode string

const (
	LockForUpdate LockMode = "FOR UPDATE"
	LockForShare  LockMode = "FOR SHARE"
)

// IsolationLevel names a transaction isolation level independent of database/sql's
// driver-specific sql.IsolationLevel constants, so adapters can reject levels they
// don't actually support before a driver error surfaces.
type IsolationLevel string

const (
	IsolationReadUncommitted IsolationLevel = "READ UNCOMMITTED"
	IsolationReadCommitted   IsolationLevel = "READ COMMITTED"
	IsolationRepeatableRead  IsolationLevel = "REPEATABLE READ"
	IsolationSerializable    IsolationLevel = "SERIALIZABLE"
)

// Dialect is the Adapter Interface: every dialect-specific capability the rest of
// the package needs in order to stay dialect-agnostic. Quoting, placeholder style,
// and capability probes all live here; nothing else in the package should special-
// case a driver name.
type Dialect interface {
	// Name returns the driver name as registered with database/sql.
	Name() string

	// Quote renders an identifier (table or column name) with the dialect's
	// delimiter.
	Quote(ident string) string

	// Placeholders returns n placeholder strings in the style this dialect expects,
	// starting at the given 1-based offset (used when an insert/update is itself
	// embedded in a larger statement, e.g. a CTE).
	Placeholders(start, n int) []string

	// ReturningClause renders a RETURNING clause for the given columns, or the
	// empty string if the dialect has no RETURNING support (the caller falls back
	// to LastInsertId).
	ReturningClause(columns ...string) string

	// SupportsReturning reports whether ReturningClause produces anything usable.
	SupportsReturning() bool

	// SupportsLockMode reports whether the dialect can render the given row lock.
	SupportsLockMode(mode LockMode) bool

	// LockClause renders the SQL fragment for a supported lock mode.
	LockClause(mode LockMode) string

	// SupportsIsolationLevel reports whether BEGIN can be issued at this level.
	SupportsIsolationLevel(level IsolationLevel) bool

	// SupportsSavepoints reports whether nested transactions can use SAVEPOINT.
	SupportsSavepoints() bool

	// SupportsOnConflict reports whether the dialect has an upsert clause
	// (ON CONFLICT / ON DUPLICATE KEY UPDATE / INSERT OR REPLACE).
	SupportsOnConflict() bool
}

type postgresDialect struct{}
type mysqlDialect struct{}
type sqliteDialect struct{}

// Postgres is the PostgreSQL Adapter Interface implementation, backed by pgx's
// database/sql driver ("pgx").
var Postgres Dialect = postgresDialect{}

// MySQL is the MySQL Adapter Interface implementation, backed by go-sql-driver
// ("mysql").
var MySQL Dialect = mysqlDialect{}

// SQLite is the SQLite Adapter Interface implementation, backed by mattn/go-sqlite3
// ("sqlite3").
var SQLite Dialect = sqliteDialect{}

// DialectByDriver resolves a Dialect from the database/sql driver name used to
// open the connection, so callers that only have a DSN/driver pair at hand (the
// common establish_connection path) don't need to name the dialect separately.
func DialectByDriver(driverName string) (Dialect, error) {
	switch driverName {
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized driver %q", ErrNoAdapter, driverName)
	}
}

func (postgresDialect) Name() string { return "pgx" }

func (postgresDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (postgresDialect) Placeholders(start, n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = "$" + strconv.Itoa(start+i)
	}
	return out
}

func (postgresDialect) ReturningClause(columns ...string) string {
	if len(columns) == 0 {
		return ""
	}
	return "RETURNING " + strings.Join(columns, ", ")
}

func (postgresDialect) SupportsReturning() bool { return true }

func (postgresDialect) SupportsLockMode(mode LockMode) bool {
	return mode == LockForUpdate || mode == LockForShare
}

func (postgresDialect) LockClause(mode LockMode) string { return string(mode) }

func (postgresDialect) SupportsIsolationLevel(level IsolationLevel) bool {
	switch level {
	case IsolationReadCommitted, IsolationRepeatableRead, IsolationSerializable:
		return true
	default:
		return false
	}
}

func (postgresDialect) SupportsSavepoints() bool { return true }
func (postgresDialect) SupportsOnConflict() bool { return true }

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (mysqlDialect) Placeholders(start, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "?"
	}
	return out
}

// ReturningClause is unsupported on MySQL; callers fall back to LastInsertId.
func (mysqlDialect) ReturningClause(columns ...string) string { return "" }
func (mysqlDialect) SupportsReturning() bool                  { return false }

func (mysqlDialect) SupportsLockMode(mode LockMode) bool {
	return mode == LockForUpdate || mode == LockForShare
}

func (mysqlDialect) LockClause(mode LockMode) string {
	if mode == LockForShare {
		return "LOCK IN SHARE MODE"
	}
	return string(mode)
}

func (mysqlDialect) SupportsIsolationLevel(level IsolationLevel) bool {
	switch level {
	case IsolationReadUncommitted, IsolationReadCommitted, IsolationRepeatableRead, IsolationSerializable:
		return true
	default:
		return false
	}
}

func (mysqlDialect) SupportsSavepoints() bool { return true }
func (mysqlDialect) SupportsOnConflict() bool { return true }

func (sqliteDialect) Name() string { return "sqlite3" }

func (sqliteDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (sqliteDialect) Placeholders(start, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "?"
	}
	return out
}

func (sqliteDialect) ReturningClause(columns ...string) string {
	if len(columns) == 0 {
		return ""
	}
	return "RETURNING " + strings.Join(columns, ", ")
}

func (sqliteDialect) SupportsReturning() bool { return true }

func (sqliteDialect) SupportsLockMode(mode LockMode) bool { return false }
func (sqliteDialect) LockClause(mode LockMode) string     { return "" }

func (sqliteDialect) SupportsIsolationLevel(level IsolationLevel) bool {
	return level == IsolationSerializable || level == IsolationReadUncommitted
}

func (sqliteDialect) SupportsSavepoints() bool { return true }
func (sqliteDialect) SupportsOnConflict() bool { return true }
