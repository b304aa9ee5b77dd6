package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/habeanf/dbschema/internal/adapter"
	"github.com/habeanf/dbschema/internal/schema"
)

// Conn runs catalog queries over a pgx pool.
type Conn struct {
	pool *pgxpool.Pool
}

// NewConn wraps pool. Closing the Conn closes pool.
func NewConn(pool *pgxpool.Pool) *Conn {
	return &Conn{pool: pool}
}

func (c *Conn) Query(ctx context.Context, query string, args ...any) ([]schema.Record, error) {
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, queryError(ctx, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, queryError(ctx, err)
	}

	out := make([]schema.Record, len(maps))
	for i, m := range maps {
		rec := make(schema.Record, len(m))
		for k, v := range m {
			rec[k] = normalizeValue(v)
		}
		out[i] = rec
	}
	return out, nil
}

func (c *Conn) Close() error {
	c.pool.Close()
	return nil
}

func queryError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return adapter.Cancelled(ctx, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("postgres %s: %w", pgErr.Code, err)
	}
	return err
}

// normalizeValue converts pgx-specific values into the plain Go types
// schema.Record understands.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case uint32:
		return int64(val)
	case [16]byte:
		// UUID
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case pgtype.Numeric:
		dv, err := val.Value()
		if err != nil || dv == nil {
			return nil
		}
		return dv
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	}
	return v
}
