package opsledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Tx is a unit of work bound to one checked-out connection. It is owned by
// the function running inside Transaction and must not be shared with
// concurrent callers or used after that function returns.
type Tx struct {
	db *DB
	tx *sql.Tx
}

// TxOptions configures transaction behavior
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// DefaultTxOptions returns default transaction options
func DefaultTxOptions() TxOptions {
	return TxOptions{Isolation: sql.LevelDefault}
}

// SerializableTxOptions returns options for serializable transactions
func SerializableTxOptions() TxOptions {
	return TxOptions{Isolation: sql.LevelSerializable}
}

// TxFunc is a function executed within a transaction
type TxFunc func(ctx context.Context, tx *Tx) error

type txCtxKey struct{}

// inTransaction reports whether ctx was handed out by Transaction.
func inTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txCtxKey{}).(*Tx)
	return ok
}

// Transaction runs fn inside BEGIN/COMMIT on a single connection.
//
// If fn returns an error or panics, the transaction is rolled back and the
// original error is returned unchanged (a panic is re-raised). A failed
// rollback is logged, never returned. The connection goes back to the pool
// exactly once on every path. Calling Transaction with a context passed to
// fn returns ErrNestedTransaction.
func (db *DB) Transaction(ctx context.Context, fn TxFunc) error {
	return db.TransactionWithOptions(ctx, DefaultTxOptions(), fn)
}

// TransactionWithOptions executes fn within a transaction with custom options
func (db *DB) TransactionWithOptions(ctx context.Context, opts TxOptions, fn TxFunc) error {
	if inTransaction(ctx) {
		return ErrNestedTransaction
	}

	conn, err := db.sql.Conn(ctx)
	if err != nil {
		return &TransactionError{Stage: "acquire", Cause: classify(err, "Transaction.Acquire", "")}
	}
	defer conn.Close()

	start := time.Now()
	sqlTx, err := conn.BeginTx(ctx, &sql.TxOptions{
		Isolation: opts.Isolation,
		ReadOnly:  opts.ReadOnly,
	})
	if err != nil {
		err = classify(err, "Transaction.Begin", "BEGIN")
		db.observe(ctx, "Transaction.Begin", "BEGIN", start, err)
		return &TransactionError{Stage: "begin", Cause: err}
	}
	db.observe(ctx, "Transaction.Begin", "BEGIN", start, nil)

	tx := &Tx{db: db, tx: sqlTx}
	txCtx := context.WithValue(ctx, txCtxKey{}, tx)

	defer func() {
		if p := recover(); p != nil {
			tx.rollback(ctx, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	if err := fn(txCtx, tx); err != nil {
		tx.rollback(ctx, err)
		return err
	}

	start = time.Now()
	if err := sqlTx.Commit(); err != nil {
		err = classify(err, "Transaction.Commit", "COMMIT")
		db.observe(ctx, "Transaction.Commit", "COMMIT", start, err)
		return &TransactionError{Stage: "commit", Cause: err}
	}
	db.observe(ctx, "Transaction.Commit", "COMMIT", start, nil)
	return nil
}

// RunInTransaction runs fn in a transaction and returns its result. See
// DB.Transaction for the commit, rollback and release rules.
func RunInTransaction[T any](ctx context.Context, db *DB, fn func(ctx context.Context, tx *Tx) (T, error)) (T, error) {
	var out T
	err := db.Transaction(ctx, func(ctx context.Context, tx *Tx) error {
		v, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// rollback aborts the transaction. Its failure is logged with the error that
// caused the rollback and otherwise suppressed.
func (tx *Tx) rollback(ctx context.Context, cause error) {
	start := time.Now()
	err := tx.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		err = nil
	}
	tx.db.observe(ctx, "Transaction.Rollback", "ROLLBACK", start, err)

	if err != nil {
		tx.db.logger.Error("transaction rollback failed",
			zap.Error(err),
			zap.NamedError("cause", cause),
		)
	}
}

func (tx *Tx) query(ctx context.Context, op string, stmt Statement, scan scanFunc) error {
	return tx.db.run(ctx, "Tx."+op, tx.tx, stmt, scan)
}

func (tx *Tx) bunDB() *bun.DB {
	return tx.db.bun
}

// Exec runs stmt on the transaction's connection.
func (tx *Tx) Exec(ctx context.Context, stmt Statement) (*Result, error) {
	return execute(ctx, tx, "Exec", stmt)
}

// QueryOne returns the first row, or a nil row and nil error when there is none.
func (tx *Tx) QueryOne(ctx context.Context, stmt Statement) (Row, error) {
	return queryOne(ctx, tx, stmt)
}

// QueryMany returns all rows.
func (tx *Tx) QueryMany(ctx context.Context, stmt Statement) ([]Row, error) {
	return queryMany(ctx, tx, stmt)
}

// DB returns the pool the transaction was started from.
func (tx *Tx) DB() *DB {
	return tx.db
}
