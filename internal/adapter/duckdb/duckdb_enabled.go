//go:build duckdb

package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/habeanf/dbschema/internal/adapter"
	"github.com/habeanf/dbschema/internal/schema"
)

func init() {
	adapter.Register(adapter.DuckDB, func() (adapter.Backend, error) {
		return &Backend{}, nil
	})
}

// Connect opens the file named by the "dsn", "file" or "database" param.
// An empty name opens an in-memory database.
func (b *Backend) Connect(ctx context.Context, params adapter.ConnParams) (schema.Conn, error) {
	dsn := strings.TrimPrefix(params.Get("dsn", "file", "database"), "duckdb://")
	if dsn == ":memory:" {
		dsn = ""
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb: ping: %w", err)
	}
	return adapter.NewSQLConn(db), nil
}
