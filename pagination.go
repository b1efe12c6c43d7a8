package opsledger

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultPageSize is the default number of items per page.
const DefaultPageSize = 20

// MaxPageSize is the maximum allowed page size.
const MaxPageSize = 100

// PageQuery is a data query and its count query sharing the same arguments.
// Query must not carry its own LIMIT or OFFSET.
type PageQuery struct {
	Query      string
	CountQuery string
	Args       []any
}

// Pagination is the metadata of one page.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// Page is one page of results.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Offset returns the row offset of page for the given page size.
func Offset(page, limit int) int {
	return (page - 1) * limit
}

// TotalPages returns ceil(total/limit). limit must be positive.
func TotalPages(total int64, limit int) int {
	return int((total + int64(limit) - 1) / int64(limit))
}

// ValidatePage checks page >= 1 and 1 <= limit <= MaxPageSize.
func ValidatePage(page, limit int) error {
	var issues Issues
	if page < 1 {
		issues.Add("page", "must be at least 1")
	}
	if limit < 1 || limit > MaxPageSize {
		issues.Add("limit", "must be between 1 and %d", MaxPageSize)
	}
	return issues.Err()
}

// Paginate returns one page of rows.
//
// The data query (with LIMIT/OFFSET placeholders appended after q.Args) and
// the count query run concurrently on separate connections, so they do not
// share a snapshot. A count query that returns no row yields Total 0.
func Paginate(ctx context.Context, db *DB, q PageQuery, page, limit int) (*Page[Row], error) {
	return paginate(ctx, db, q, page, limit, func(ctx context.Context, stmt Statement) ([]Row, error) {
		return db.QueryMany(ctx, stmt)
	})
}

// PaginateInto is Paginate scanning the data rows into T (see QueryAll).
func PaginateInto[T any](ctx context.Context, db *DB, q PageQuery, page, limit int) (*Page[T], error) {
	return paginate(ctx, db, q, page, limit, func(ctx context.Context, stmt Statement) ([]T, error) {
		return QueryAll[T](ctx, db, stmt)
	})
}

func paginate[T any](ctx context.Context, db *DB, q PageQuery, page, limit int, fetch func(context.Context, Statement) ([]T, error)) (*Page[T], error) {
	if err := ValidatePage(page, limit); err != nil {
		return nil, err
	}

	offset := Offset(page, limit)
	n := len(q.Args)
	dataArgs := make([]any, 0, n+2)
	dataArgs = append(dataArgs, q.Args...)
	dataArgs = append(dataArgs, limit, offset)
	dataStmt := Statement{
		Text: fmt.Sprintf("%s LIMIT %s OFFSET %s", q.Query, Placeholder(n+1), Placeholder(n+2)),
		Args: dataArgs,
	}
	countStmt := Statement{Text: q.CountQuery, Args: q.Args}

	var (
		data  []T
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data, err = fetch(gctx, dataStmt)
		return err
	})
	g.Go(func() error {
		row, err := db.QueryOne(gctx, countStmt)
		if err != nil {
			return err
		}
		total, err = countValue(row)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Page[T]{
		Data: data,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: TotalPages(total, limit),
		},
	}, nil
}

// countValue reads the "count" column, or the only column of row. A nil row
// counts as 0.
func countValue(row Row) (int64, error) {
	if row == nil {
		return 0, nil
	}
	v, ok := row["count"]
	if !ok {
		if len(row) != 1 {
			return 0, fmt.Errorf("opsledger: count query must return a single count column, got %d columns", len(row))
		}
		for _, only := range row {
			v = only
		}
	}
	if v == nil {
		return 0, nil
	}
	n, err := Int64(v)
	if err != nil {
		return 0, fmt.Errorf("opsledger: invalid count value: %w", err)
	}
	return n, nil
}
