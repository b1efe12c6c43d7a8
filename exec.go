package opsledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"

	"github.com/fernandezvara/opsledger/hooks"
)

// Row is one result row keyed by column name. []byte values are returned as strings.
type Row = map[string]any

// Result is the normalized outcome of a statement. RowCount is the number of
// rows the statement returned.
type Result struct {
	RowCount int64
	Rows     []Row
}

// Querier runs statements. *DB runs each call on its own pooled connection;
// *Tx runs every call on the transaction's connection.
type Querier interface {
	Exec(ctx context.Context, stmt Statement) (*Result, error)
	QueryOne(ctx context.Context, stmt Statement) (Row, error)
	QueryMany(ctx context.Context, stmt Statement) ([]Row, error)

	query(ctx context.Context, op string, stmt Statement, scan scanFunc) error
	bunDB() *bun.DB
}

var (
	_ Querier = (*DB)(nil)
	_ Querier = (*Tx)(nil)
)

// scanFunc consumes rows and reports how many it read. It must close rows.
type scanFunc func(rows *sql.Rows) (int64, error)

// queryer is satisfied by *sql.Conn and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// run executes stmt on conn, classifies failures and reports the execution to
// the hooks.
func (db *DB) run(ctx context.Context, op string, conn queryer, stmt Statement, scan scanFunc) error {
	event := &hooks.QueryEvent{Op: op, Query: stmt.Text, StartTime: time.Now()}
	for _, h := range db.hooks {
		ctx = h.BeforeQuery(ctx, event)
	}

	rows, err := conn.QueryContext(ctx, stmt.Text, stmt.Args...)
	if err == nil {
		event.Rows, err = scan(rows)
	}
	err = classify(err, op, stmt.Text)
	event.Err = err

	for i := len(db.hooks) - 1; i >= 0; i-- {
		db.hooks[i].AfterQuery(ctx, event)
	}
	return err
}

// observe reports a statement that was not run through run (BEGIN, COMMIT,
// ROLLBACK) to the hooks.
func (db *DB) observe(ctx context.Context, op, text string, start time.Time, err error) {
	event := &hooks.QueryEvent{Op: op, Query: text, StartTime: start, Err: err}
	for _, h := range db.hooks {
		ctx = h.BeforeQuery(ctx, event)
	}
	for i := len(db.hooks) - 1; i >= 0; i-- {
		db.hooks[i].AfterQuery(ctx, event)
	}
}

func (db *DB) query(ctx context.Context, op string, stmt Statement, scan scanFunc) error {
	conn, err := db.sql.Conn(ctx)
	if err != nil {
		err = classify(err, op+".Acquire", stmt.Text)
		db.observe(ctx, op, stmt.Text, time.Now(), err)
		return err
	}
	defer conn.Close()

	return db.run(ctx, op, conn, stmt, scan)
}

func (db *DB) bunDB() *bun.DB {
	return db.bun
}

// Exec runs stmt on a pooled connection and returns every row it produced.
// The connection is returned to the pool on every path.
func (db *DB) Exec(ctx context.Context, stmt Statement) (*Result, error) {
	return execute(ctx, db, "Exec", stmt)
}

// QueryOne returns the first row, or a nil row and nil error when there is none.
func (db *DB) QueryOne(ctx context.Context, stmt Statement) (Row, error) {
	return queryOne(ctx, db, stmt)
}

// QueryMany returns all rows.
func (db *DB) QueryMany(ctx context.Context, stmt Statement) ([]Row, error) {
	return queryMany(ctx, db, stmt)
}

func execute(ctx context.Context, q Querier, op string, stmt Statement) (*Result, error) {
	var rows []Row
	err := q.query(ctx, op, stmt, func(r *sql.Rows) (int64, error) {
		var err error
		rows, err = scanRows(r)
		return int64(len(rows)), err
	})
	if err != nil {
		return nil, err
	}
	return &Result{RowCount: int64(len(rows)), Rows: rows}, nil
}

func queryOne(ctx context.Context, q Querier, stmt Statement) (Row, error) {
	res, err := execute(ctx, q, "QueryOne", stmt)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	return res.Rows[0], nil
}

func queryMany(ctx context.Context, q Querier, stmt Statement) ([]Row, error) {
	res, err := execute(ctx, q, "QueryMany", stmt)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// scanRows reads every row into a Row map and closes rows.
func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// QueryAll runs stmt and scans every row into T, a struct whose fields carry
// bun column tags (`bun:"material_id"`).
func QueryAll[T any](ctx context.Context, q Querier, stmt Statement) ([]T, error) {
	out := make([]T, 0)
	err := q.query(ctx, "QueryAll", stmt, func(rows *sql.Rows) (int64, error) {
		defer rows.Close()
		if err := q.bunDB().ScanRows(ctx, rows, &out); err != nil {
			return 0, err
		}
		return int64(len(out)), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QueryFirst is QueryAll returning the first row, or nil when there is none.
func QueryFirst[T any](ctx context.Context, q Querier, stmt Statement) (*T, error) {
	all, err := QueryAll[T](ctx, q, stmt)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return &all[0], nil
}
