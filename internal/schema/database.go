package schema

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Database is the root of the catalog tree. It owns the oid index, the set
// of kinds still waiting for their first fetch and the connection used to
// reach the catalog. A Database is not safe for concurrent use.
type Database struct {
	Node

	backend Backend
	index   map[OID]Entity
	dirty   KindSet

	conn    Conn
	connect Connector

	session    string
	logger     *zap.Logger
	logQueries bool
	hooks      []QueryHook
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(db *Database) {
		if l != nil {
			db.logger = l
		}
	}
}

// WithQueryLogging logs every statement and its parameters at info level.
func WithQueryLogging(enabled bool) Option {
	return func(db *Database) { db.logQueries = enabled }
}

// WithQueryHook registers h to observe every query.
func WithQueryHook(h QueryHook) Option {
	return func(db *Database) {
		if h != nil {
			db.hooks = append(db.hooks, h)
		}
	}
}

// NewDatabase returns an empty root. Every kind in the backend's structure
// starts dirty. backend may be nil for a tree that is built by hand.
func NewDatabase(name string, backend Backend, opts ...Option) *Database {
	db := &Database{
		backend: backend,
		index:   make(map[OID]Entity),
		dirty:   KindSet{},
		session: uuid.NewString(),
		logger:  zap.NewNop(),
	}
	db.setup(db, KindDatabase, name, "", OID{})
	db.Node.db = db
	if backend != nil {
		for k := range backend.Structure().Kinds() {
			db.dirty.Add(k)
		}
	}
	for _, opt := range opts {
		opt(db)
	}
	db.logger = db.logger.With(zap.String("session", db.session))
	return db
}

// Backend returns the backend feeding the tree.
func (db *Database) Backend() Backend { return db.backend }

// Session returns the random identifier attached to this instance's logs.
func (db *Database) Session() string { return db.session }

// Logger returns the database logger for use by backends.
func (db *Database) Logger() *zap.Logger { return db.logger }

func (db *Database) register(e Entity) {
	if e.OID().IsZero() {
		return
	}
	db.index[e.OID()] = e
}

// FindByOID returns the entity registered under oid, or nil.
func (db *Database) FindByOID(oid OID) Entity {
	return db.index[oid]
}

// SetDirty marks or unmarks kind as needing a fetch.
func (db *Database) SetDirty(kind Kind, dirty bool) {
	if dirty {
		db.dirty.Add(kind)
	} else {
		db.dirty.Remove(kind)
	}
}

// IsDirty reports whether kind still needs a fetch.
func (db *Database) IsDirty(kind Kind) bool { return db.dirty.Has(kind) }

// DirtyKinds returns a copy of the dirty set.
func (db *Database) DirtyKinds() KindSet {
	out := make(KindSet, len(db.dirty))
	for k := range db.dirty {
		out.Add(k)
	}
	return out
}

// Refresh asks the backend for those of kinds that are still dirty. Clean
// kinds are never fetched again. The pending kinds are marked clean before
// the backend runs, so a backend that looks up entities of the same kinds
// does not recurse, and a failed fetch is not retried.
func (db *Database) Refresh(ctx context.Context, kinds ...Kind) error {
	pending := KindSet{}
	for _, k := range kinds {
		if db.dirty.Has(k) {
			pending.Add(k)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	for k := range pending {
		db.dirty.Remove(k)
	}
	if db.backend == nil {
		return nil
	}
	db.logger.Debug("refreshing kinds", zap.Stringer("kinds", pending))
	return db.backend.RefreshKinds(ctx, db, pending)
}

// RefreshAll refreshes every kind that is still dirty.
func (db *Database) RefreshAll(ctx context.Context) error {
	return db.Refresh(ctx, db.dirty.Slice()...)
}

// SetConnection configures how the catalog is reached: an open conn, or a
// connector called on first use. Giving both is an error.
func (db *Database) SetConnection(conn Conn, connect Connector) error {
	if conn != nil && connect != nil {
		return ErrConnectionConflict
	}
	db.conn = conn
	db.connect = connect
	return nil
}

// Conn returns the connection, establishing it on first use.
func (db *Database) Conn(ctx context.Context) (Conn, error) {
	if db.conn != nil {
		return db.conn, nil
	}
	if db.connect == nil {
		return nil, ErrNoConnection
	}
	conn, err := db.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	db.conn = conn
	return conn, nil
}

// Close closes the connection if one was established.
func (db *Database) Close() error {
	if db.conn == nil {
		return nil
	}
	err := db.conn.Close()
	db.conn = nil
	return err
}

// RunQuery runs a catalog query and returns its rows keyed by column name.
func (db *Database) RunQuery(ctx context.Context, query string, args ...any) ([]Record, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := conn.Query(ctx, query, args...)
	elapsed := time.Since(start)

	if db.logQueries {
		db.logger.Info("SQL", zap.String("query", query), zap.Any("params", args), zap.Duration("elapsed", elapsed))
	}
	for _, h := range db.hooks {
		h(QueryEvent{
			Session:  db.session,
			Query:    query,
			Args:     args,
			Duration: elapsed,
			Rows:     len(rows),
			Err:      err,
		})
	}
	if err != nil {
		return nil, &OperationError{Op: "query", Query: query, Err: err}
	}
	return rows, nil
}

// ServerInfo returns the backend's version string.
func (db *Database) ServerInfo(ctx context.Context) (string, error) {
	if db.backend == nil {
		return "", nil
	}
	return db.backend.ServerInfo(ctx, db)
}

// DefaultNamespace returns the namespace the server considers current, or
// nil when the engine has no namespaces.
func (db *Database) DefaultNamespace(ctx context.Context) (*Namespace, error) {
	if db.backend == nil {
		return nil, nil
	}
	return db.backend.DefaultNamespace(ctx, db)
}

// Namespaces yields every namespace.
func (db *Database) Namespaces(ctx context.Context) (iter.Seq[*Namespace], error) {
	if err := db.Refresh(ctx, KindNamespace); err != nil {
		return nil, err
	}
	return FindAs[*Namespace](db, OfKind(KindNamespace)), nil
}

// Tables yields the tables of the default namespace.
func (db *Database) Tables(ctx context.Context) (iter.Seq[*Table], error) {
	return fromDefaultNamespace[*Table](ctx, db, KindTable)
}

// Views yields the views of the default namespace.
func (db *Database) Views(ctx context.Context) (iter.Seq[*View], error) {
	return fromDefaultNamespace[*View](ctx, db, KindView)
}

func fromDefaultNamespace[T Entity](ctx context.Context, db *Database, kind Kind) (iter.Seq[T], error) {
	if err := db.Refresh(ctx, kind); err != nil {
		return nil, err
	}
	ns, err := db.DefaultNamespace(ctx)
	if err != nil {
		return nil, err
	}
	var from Entity = db
	if ns != nil {
		from = ns
	}
	return FindAs[T](from, OfKind(kind)), nil
}
