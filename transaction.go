package grant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Tx wraps sql.Tx with savepoint nesting and a commit-hook queue. A Tx
// returned to a nested Transaction call (one already inside an outer
// transaction) shares its parent's *sql.Tx and commit queue but tracks its
// own savepoint depth, so SAVEPOINT/RELEASE only wrap the nested portion.
type Tx struct {
	Tx      *sql.Tx
	ctx     context.Context
	dialect Dialect

	depth    int // 0 = outermost transaction, >0 = nested via savepoint
	savepoint string
	commits  *CommitQueue // shared across the whole nesting; only the outermost flushes it
}

// ErrRollbackFailed is returned when transaction rollback fails
var ErrRollbackFailed = errors.New("grant: rollback failed")

// Transaction executes a function within a transaction.
func Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	// Use GlobalDB
	if GlobalDB == nil {
		return sql.ErrConnDone
	}

	return transaction(ctx, GlobalDB, Postgres, fn)
}

// Transaction executes a function within a transaction using the model's database connection.
func (m *Model[T]) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	if m.tx != nil {
		// Already inside a transaction: nest via savepoint instead of
		// opening a second top-level BEGIN.
		commits := m.commitQueue
		if commits == nil {
			commits = &CommitQueue{}
		}
		return withSavepoint(ctx, &Tx{Tx: m.tx, ctx: ctx, commits: commits}, fn)
	}
	return transaction(ctx, m.db, Postgres, fn)
}

// transaction is a helper to execute a function within a transaction. On
// success it flushes the commit queue's after_commit callbacks; on error or
// panic it rolls back and flushes after_rollback instead.
func transaction(ctx context.Context, db *sql.DB, dialect Dialect, fn func(tx *Tx) error) (err error) {
	if db == nil {
		return sql.ErrConnDone
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	zTx := &Tx{Tx: tx, ctx: ctx, dialect: dialect, commits: &CommitQueue{}}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			_ = zTx.commits.FlushRollback(ctx, nil)
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
			}
			_ = zTx.commits.FlushRollback(ctx, nil)
		} else {
			if commitErr := tx.Commit(); commitErr != nil {
				err = commitErr
				return
			}
			err = zTx.commits.FlushCommit(ctx, nil)
		}
	}()

	err = fn(zTx)
	return err
}

// IsolationTransaction behaves like Transaction but requests the given
// isolation level, rejecting levels the dialect can't express before
// issuing BEGIN.
func IsolationTransaction(ctx context.Context, dialect Dialect, level IsolationLevel, fn func(tx *Tx) error) error {
	if GlobalDB == nil {
		return sql.ErrConnDone
	}
	if !dialect.SupportsIsolationLevel(level) {
		return fmt.Errorf("grant: dialect %s does not support isolation level %s", dialect.Name(), level)
	}

	tx, err := GlobalDB.BeginTx(ctx, &sql.TxOptions{Isolation: isolationToDriver(level)})
	if err != nil {
		return err
	}
	zTx := &Tx{Tx: tx, ctx: ctx, dialect: dialect, commits: &CommitQueue{}}
	return finishTransaction(ctx, tx, zTx, fn)
}

func finishTransaction(ctx context.Context, tx *sql.Tx, zTx *Tx, fn func(tx *Tx) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			_ = zTx.commits.FlushRollback(ctx, nil)
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
			}
			_ = zTx.commits.FlushRollback(ctx, nil)
		} else {
			if commitErr := tx.Commit(); commitErr != nil {
				err = commitErr
				return
			}
			err = zTx.commits.FlushCommit(ctx, nil)
		}
	}()
	err = fn(zTx)
	return err
}

func isolationToDriver(level IsolationLevel) sql.IsolationLevel {
	switch level {
	case IsolationReadUncommitted:
		return sql.LevelReadUncommitted
	case IsolationReadCommitted:
		return sql.LevelReadCommitted
	case IsolationRepeatableRead:
		return sql.LevelRepeatableRead
	case IsolationSerializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// withSavepoint runs fn nested one level deeper than tx, issuing
// SAVEPOINT/RELEASE SAVEPOINT (or ROLLBACK TO SAVEPOINT on failure) instead
// of a second BEGIN/COMMIT, so nested transaction blocks compose safely.
func withSavepoint(ctx context.Context, tx *Tx, fn func(tx *Tx) error) (err error) {
	name := fmt.Sprintf("sp_%d", tx.depth+1)
	if _, err = tx.Tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return err
	}

	nested := &Tx{Tx: tx.Tx, ctx: ctx, dialect: tx.dialect, depth: tx.depth + 1, savepoint: name, commits: tx.commits}

	defer func() {
		if p := recover(); p != nil {
			_, _ = tx.Tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
			panic(p)
		} else if err != nil {
			if _, rbErr := tx.Tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
				err = fmt.Errorf("%w (rollback to savepoint also failed: %v)", err, rbErr)
			}
		} else {
			_, err = tx.Tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
		}
	}()

	err = fn(nested)
	return err
}

// WithTx sets the transaction for the model. Any after_commit/after_rollback
// hooks registered on the model's Callbacks now queue onto tx's CommitQueue
// instead of running immediately, so they fire only once the outermost
// transaction enclosing tx actually resolves.
func (m *Model[T]) WithTx(tx *Tx) *Model[T] {
	m.tx = tx.Tx
	m.ctx = tx.ctx
	m.commitQueue = tx.commits
	return m
}

// QueueAfterCommit registers fn to run once the outermost transaction
// enclosing tx commits; discarded if it rolls back instead.
func (tx *Tx) QueueAfterCommit(fn AfterCallback) {
	tx.commits.QueueCommit(fn)
}

// QueueAfterRollback registers fn to run if the transaction enclosing tx
// rolls back.
func (tx *Tx) QueueAfterRollback(fn AfterCallback) {
	tx.commits.QueueRollback(fn)
}

// OptimisticUpdate issues an UPDATE gated on lockColumn matching
// currentVersion, the SQL form of an optimistic lock_version check, and
// returns ErrStaleObject if the row was modified concurrently (zero rows
// affected). setClause must already increment lockColumn itself (e.g.
// "name = ?, lock_version = lock_version + 1").
func (tx *Tx) OptimisticUpdate(ctx context.Context, table, setClause, pkColumn string, pkValue any, lockColumn string, currentVersion int64, args ...any) error {
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ? AND %s = ?", table, setClause, pkColumn, lockColumn)
	allArgs := append(append([]any{}, args...), pkValue, currentVersion)

	res, err := tx.Tx.ExecContext(ctx, rebindDialect(dialectOrDefault(tx.dialect), query), allArgs...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleObject
	}
	return nil
}

func dialectOrDefault(d Dialect) Dialect {
	if d == nil {
		return Postgres
	}
	return d
}
