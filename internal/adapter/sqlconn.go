package adapter

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/habeanf/dbschema/internal/schema"
)

// SQLConn runs catalog queries over a database/sql handle.
type SQLConn struct {
	db *sql.DB
}

// NewSQLConn wraps db. Closing the SQLConn closes db.
func NewSQLConn(db *sql.DB) *SQLConn {
	return &SQLConn{db: db}
}

// DB returns the underlying handle.
func (c *SQLConn) DB() *sql.DB { return c.db }

// Query runs query and returns every row keyed by column name. Text
// columns delivered as []byte are converted to string.
func (c *SQLConn) Query(ctx context.Context, query string, args ...any) ([]schema.Record, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Cancelled(ctx, err)
		}
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var out []schema.Record
	values := make([]any, len(cols))
	scanDest := make([]any, len(cols))
	for i := range scanDest {
		scanDest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scanDest...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rec := make(schema.Record, len(cols))
		for i, name := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[name] = string(b)
			} else {
				rec[name] = values[i]
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, Cancelled(ctx, err)
		}
		return nil, err
	}
	return out, nil
}

func (c *SQLConn) Close() error {
	return c.db.Close()
}
