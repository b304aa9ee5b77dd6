package adapter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/habeanf/dbschema/internal/schema"
)

var (
	ErrUnknownBackend     = fmt.Errorf("%w: unknown backend", schema.ErrDBSchema)
	ErrBackendUnavailable = fmt.Errorf("%w: backend unavailable", schema.ErrDBSchema)
	ErrCancelled          = fmt.Errorf("%w: query cancelled", schema.ErrDBSchema)
)

// Backend identifiers accepted by Open.
const (
	MySQL      = "mysql"
	PostgreSQL = "postgresql"
	SQLite     = "sqlite3"
	DuckDB     = "duckdb"
)

// Backend is a schema.Backend that also knows how to reach its engine.
type Backend interface {
	schema.Backend
	Name() string
	Connect(ctx context.Context, params ConnParams) (schema.Conn, error)
}

// ConnParams are the driver-specific connection parameters. Every backend
// accepts "dsn"; the remaining keys ("host", "port", "user", "password",
// "database", "file", "sslmode", ...) are used when no dsn is given.
type ConnParams map[string]string

// Get returns the first non-empty value among keys.
func (p ConnParams) Get(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(p[k]); v != "" {
			return v
		}
	}
	return ""
}

// Options configures Open.
type Options struct {
	// Name labels the root entity. It defaults to the database or file
	// named in Params, then to the backend identifier.
	Name string

	// Conn is an already open connection. Mutually exclusive with non-empty
	// Params.
	Conn schema.Conn
	// Params are handed to Backend.Connect on first use.
	Params ConnParams

	LogQueries bool
	Logger     *zap.Logger
	Hooks      []schema.QueryHook
}

// Open builds a Database for the named backend using the default registry
// and performs the initial load.
func Open(ctx context.Context, name string, opts Options) (*schema.Database, error) {
	return Default.Open(ctx, name, opts)
}

// Open builds a Database for the named backend and performs the initial
// load. The connection is established lazily when only Params are given,
// which in practice means during the initial load.
func (r *Registry) Open(ctx context.Context, name string, opts Options) (*schema.Database, error) {
	backend, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if opts.Conn != nil && len(opts.Params) > 0 {
		return nil, schema.ErrConnectionConflict
	}

	dbOpts := []schema.Option{
		schema.WithLogger(opts.Logger),
		schema.WithQueryLogging(opts.LogQueries),
	}
	for _, h := range opts.Hooks {
		dbOpts = append(dbOpts, schema.WithQueryHook(h))
	}
	db := schema.NewDatabase(rootName(name, opts), backend, dbOpts...)

	var connect schema.Connector
	if opts.Conn == nil && len(opts.Params) > 0 {
		params := opts.Params
		connect = func(ctx context.Context) (schema.Conn, error) {
			return backend.Connect(ctx, params)
		}
	}
	if err := db.SetConnection(opts.Conn, connect); err != nil {
		return nil, err
	}

	db.Logger().Debug("initializing catalog", zap.String("backend", name))
	if err := backend.Initialize(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Cancelled reports a query interrupted by ctx. The result matches
// ErrCancelled, the context error and the driver error.
func Cancelled(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, ctx.Err()) {
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
	return fmt.Errorf("%w: %w: %w", ErrCancelled, ctx.Err(), err)
}

// MarkStale marks kinds dirty unless they are part of the refresh in
// progress. Backends call it when a reload added relations, so the details
// of the new relations are fetched on next access.
func MarkStale(db *schema.Database, refreshing schema.KindSet, kinds ...schema.Kind) {
	for _, k := range kinds {
		if !refreshing.Has(k) {
			db.SetDirty(k, true)
		}
	}
}

func rootName(backend string, opts Options) string {
	if opts.Name != "" {
		return opts.Name
	}
	if v := opts.Params.Get("database", "dbname"); v != "" {
		return v
	}
	if v := opts.Params.Get("file"); v != "" {
		return filepath.Base(v)
	}
	return backend
}
