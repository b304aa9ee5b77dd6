package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/habeanf/dbschema/internal/adapter"
	"github.com/habeanf/dbschema/internal/schema"
)

const fixture = `
CREATE TABLE table1 (id INTEGER PRIMARY KEY, val1 TEXT NOT NULL, val2 INTEGER DEFAULT 42);
CREATE TABLE table2 (id INTEGER PRIMARY KEY, t1_id INTEGER REFERENCES table1(id));
CREATE UNIQUE INDEX table2_t1_id_idx ON table2 (t1_id);
CREATE VIEW view1 AS SELECT id, val2 FROM table1;
`

func TestBackend_Name(t *testing.T) {
	b := &Backend{}
	if got := b.Name(); got != "sqlite3" {
		t.Errorf("Name() = %q, want %q", got, "sqlite3")
	}
}

func TestBackend_Registration(t *testing.T) {
	b, err := adapter.Default.Resolve(adapter.SQLite)
	if err != nil {
		t.Fatalf("Resolve(%q) error: %v", adapter.SQLite, err)
	}
	if b.Name() != "sqlite3" {
		t.Errorf("registered backend Name() = %q, want %q", b.Name(), "sqlite3")
	}
}

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"sqlite:// prefix stripped", "sqlite:///path/to/file.db", "/path/to/file.db"},
		{"file: prefix stripped", "file:test.db", "test.db"},
		{"memory unchanged", ":memory:", ":memory:"},
		{"relative path unchanged", "relative/path.db", "relative/path.db"},
		{"empty string", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeDSN(tt.dsn); got != tt.want {
				t.Errorf("normalizeDSN(%q) = %q, want %q", tt.dsn, got, tt.want)
			}
		})
	}
}

func TestConnect_NoFile(t *testing.T) {
	b := &Backend{}
	if _, err := b.Connect(context.Background(), adapter.ConnParams{}); err == nil {
		t.Fatal("Connect() with no file: expected error")
	}
}

func TestOpen_Catalog(t *testing.T) {
	ctx := context.Background()
	db := openFixture(t)

	info, err := db.ServerInfo(ctx)
	if err != nil {
		t.Fatalf("ServerInfo() error: %v", err)
	}
	if !strings.HasPrefix(info, "SQLite 3") {
		t.Errorf("ServerInfo() = %q, want SQLite prefix", info)
	}

	ns, err := db.DefaultNamespace(ctx)
	if err != nil || ns != nil {
		t.Errorf("DefaultNamespace() = %v, %v; want nil, nil", ns, err)
	}

	tables, err := db.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables() error: %v", err)
	}
	if got := names(schema.Sorted(tables)); !slices.Equal(got, []string{"table1", "table2"}) {
		t.Errorf("Tables() = %v, want [table1 table2]", got)
	}

	views, err := db.Views(ctx)
	if err != nil {
		t.Fatalf("Views() error: %v", err)
	}
	if got := names(schema.Sorted(views)); !slices.Equal(got, []string{"view1"}) {
		t.Errorf("Views() = %v, want [view1]", got)
	}

	v := db.FindExact(schema.OfKind(schema.KindView), schema.Named("view1")).(*schema.View)
	if v.CreateStatement == "" {
		t.Error("view1 CreateStatement is empty")
	}
}

func TestColumns(t *testing.T) {
	ctx := context.Background()
	db := openFixture(t)

	t1 := db.FindExact(schema.OfKind(schema.KindTable), schema.Named("table1")).(*schema.Table)
	seq, err := t1.Columns(ctx)
	if err != nil {
		t.Fatalf("Columns() error: %v", err)
	}
	cols := schema.Sorted(seq)
	if got := names(cols); !slices.Equal(got, []string{"id", "val1", "val2"}) {
		t.Fatalf("Columns() = %v, want [id val1 val2]", got)
	}

	byName := map[string]*schema.Column{}
	for _, c := range cols {
		byName[c.Name()] = c
	}
	if !byName["id"].PrimaryKey {
		t.Error("id.PrimaryKey = false, want true")
	}
	if byName["val1"].Nullable {
		t.Error("val1.Nullable = true, want false")
	}
	if got := byName["val2"].Default; got != "42" {
		t.Errorf("val2.Default = %q, want %q", got, "42")
	}
	if got := byName["val1"].Position; got != 2 {
		t.Errorf("val1.Position = %d, want 2", got)
	}
	if got := byName["id"].OID().String(); got != "table1.0" {
		t.Errorf("id.OID() = %q, want %q", got, "table1.0")
	}

	v := db.FindExact(schema.OfKind(schema.KindView), schema.Named("view1")).(*schema.View)
	vseq, err := v.Columns(ctx)
	if err != nil {
		t.Fatalf("view Columns() error: %v", err)
	}
	if got := names(schema.Sorted(vseq)); !slices.Equal(got, []string{"id", "val2"}) {
		t.Errorf("view Columns() = %v, want [id val2]", got)
	}
}

func TestForeignKeys(t *testing.T) {
	ctx := context.Background()
	db := openFixture(t)

	t1 := db.FindExact(schema.OfKind(schema.KindTable), schema.Named("table1")).(*schema.Table)
	t2 := db.FindExact(schema.OfKind(schema.KindTable), schema.Named("table2")).(*schema.Table)

	seq, err := t2.ForeignKeys(ctx)
	if err != nil {
		t.Fatalf("ForeignKeys() error: %v", err)
	}
	fks := schema.Collect(seq)
	if len(fks) != 1 {
		t.Fatalf("ForeignKeys() returned %d, want 1", len(fks))
	}
	if fks[0].ForeignTable() != t1 {
		t.Errorf("ForeignTable() = %v, want %v", fks[0].ForeignTable(), t1)
	}
	if !slices.Equal(fks[0].Columns, []string{"t1_id"}) || !slices.Equal(fks[0].RefColumns, []string{"id"}) {
		t.Errorf("FK columns = %v -> %v, want [t1_id] -> [id]", fks[0].Columns, fks[0].RefColumns)
	}

	rseq, err := t1.ReverseForeignKeys(ctx)
	if err != nil {
		t.Fatalf("ReverseForeignKeys() error: %v", err)
	}
	reverse := schema.Collect(rseq)
	if len(reverse) != 1 || reverse[0].Parent().Name() != "table2" {
		t.Errorf("ReverseForeignKeys() = %v, want one FK on table2", reverse)
	}
}

func TestIndexes(t *testing.T) {
	ctx := context.Background()
	db := openFixture(t)

	t2 := db.FindExact(schema.OfKind(schema.KindTable), schema.Named("table2")).(*schema.Table)
	seq, err := t2.Indexes(ctx)
	if err != nil {
		t.Fatalf("Indexes() error: %v", err)
	}
	idx := schema.Collect(seq)
	if len(idx) != 1 {
		t.Fatalf("Indexes() returned %d, want 1", len(idx))
	}
	if idx[0].Name() != "table2_t1_id_idx" || !idx[0].Unique {
		t.Errorf("index = %s unique=%v, want table2_t1_id_idx unique", idx[0].Name(), idx[0].Unique)
	}
	if !slices.Equal(idx[0].Columns, []string{"t1_id"}) {
		t.Errorf("index Columns = %v, want [t1_id]", idx[0].Columns)
	}
}

func TestRefresh_QueriesOnce(t *testing.T) {
	ctx := context.Background()
	var queries int
	db := openFixture(t, func(schema.QueryEvent) { queries++ })

	t1 := db.FindExact(schema.Named("table1")).(*schema.Table)
	if _, err := t1.Columns(ctx); err != nil {
		t.Fatal(err)
	}
	after := queries
	if _, err := t1.Columns(ctx); err != nil {
		t.Fatal(err)
	}
	if queries != after {
		t.Errorf("second Columns() issued %d queries, want 0", queries-after)
	}
}

func TestRefresh_PicksUpNewRelations(t *testing.T) {
	ctx := context.Background()
	db := openFixture(t)

	t1 := db.FindExact(schema.OfKind(schema.KindTable), schema.Named("table1")).(*schema.Table)
	if _, err := t1.Columns(ctx); err != nil {
		t.Fatalf("Columns() error: %v", err)
	}

	execDDL(t, db, `CREATE TABLE table3 (id INTEGER PRIMARY KEY, t1_id INTEGER REFERENCES table1(id));
CREATE VIEW view2 AS SELECT id FROM table3;`)

	db.SetDirty(schema.KindTable, true)
	tables, err := db.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables() error: %v", err)
	}
	if got := names(schema.Sorted(tables)); !slices.Equal(got, []string{"table1", "table2", "table3"}) {
		t.Errorf("Tables() = %v, want [table1 table2 table3]", got)
	}
	if db.IsDirty(schema.KindTable) {
		t.Error("KindTable still dirty after Tables()")
	}
	if got := db.FindExact(schema.OfKind(schema.KindTable), schema.Named("table1")); got != t1 {
		t.Errorf("table1 = %p after reload, want the original %p", got, t1)
	}
	if got := db.FindByOID(schema.StringOID("table1")); got != t1 {
		t.Errorf("FindByOID(table1) = %v, want the original entity", got)
	}

	views, err := db.Views(ctx)
	if err != nil {
		t.Fatalf("Views() error: %v", err)
	}
	if got := names(schema.Sorted(views)); !slices.Equal(got, []string{"view1", "view2"}) {
		t.Errorf("Views() = %v, want [view1 view2]", got)
	}

	// Columns were loaded before table3 existed; the reload marks them stale.
	t3 := db.FindExact(schema.OfKind(schema.KindTable), schema.Named("table3")).(*schema.Table)
	cols, err := t3.Columns(ctx)
	if err != nil {
		t.Fatalf("table3 Columns() error: %v", err)
	}
	if got := names(schema.Sorted(cols)); !slices.Equal(got, []string{"id", "t1_id"}) {
		t.Errorf("table3 Columns() = %v, want [id t1_id]", got)
	}
	cols, err = t1.Columns(ctx)
	if err != nil {
		t.Fatalf("table1 Columns() error: %v", err)
	}
	if got := names(schema.Sorted(cols)); !slices.Equal(got, []string{"id", "val1", "val2"}) {
		t.Errorf("table1 Columns() = %v, want [id val1 val2]", got)
	}

	fks, err := t1.ReverseForeignKeys(ctx)
	if err != nil {
		t.Fatalf("ReverseForeignKeys() error: %v", err)
	}
	if got := len(schema.Collect(fks)); got != 2 {
		t.Errorf("ReverseForeignKeys() returned %d, want 2", got)
	}
}

func TestRefresh_UnchangedCatalogKeepsDetailsClean(t *testing.T) {
	ctx := context.Background()
	db := openFixture(t)

	t1 := db.FindExact(schema.OfKind(schema.KindTable), schema.Named("table1")).(*schema.Table)
	if _, err := t1.Columns(ctx); err != nil {
		t.Fatal(err)
	}
	db.SetDirty(schema.KindTable, true)
	if _, err := db.Tables(ctx); err != nil {
		t.Fatal(err)
	}
	if db.IsDirty(schema.KindColumn) {
		t.Error("KindColumn marked dirty although no relation was added")
	}
}

func TestForeignKeys_TargetCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	db := openDDL(t, `
CREATE TABLE Parent (id INTEGER PRIMARY KEY);
CREATE TABLE child (id INTEGER PRIMARY KEY, parent_id INTEGER REFERENCES PARENT(id));
`)

	parent := db.FindExact(schema.OfKind(schema.KindTable), schema.Named("Parent")).(*schema.Table)
	child := db.FindExact(schema.OfKind(schema.KindTable), schema.Named("child")).(*schema.Table)

	seq, err := child.ForeignKeys(ctx)
	if err != nil {
		t.Fatalf("ForeignKeys() error: %v", err)
	}
	fks := schema.Collect(seq)
	if len(fks) != 1 {
		t.Fatalf("ForeignKeys() returned %d, want 1", len(fks))
	}
	if fks[0].ForeignTable() != parent {
		t.Errorf("ForeignTable() = %v, want %v", fks[0].ForeignTable(), parent)
	}

	rseq, err := parent.ReverseForeignKeys(ctx)
	if err != nil {
		t.Fatalf("ReverseForeignKeys() error: %v", err)
	}
	if got := len(schema.Collect(rseq)); got != 1 {
		t.Errorf("ReverseForeignKeys() returned %d, want 1", got)
	}
}

func TestOpen_FromFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := raw.ExecContext(ctx, fixture); err != nil {
		t.Fatal(err)
	}
	raw.Close()

	db, err := adapter.Open(ctx, adapter.SQLite, adapter.Options{
		Params: adapter.ConnParams{"file": "sqlite://" + path},
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if db.Name() != "test.db" {
		t.Errorf("Name() = %q, want %q", db.Name(), "test.db")
	}
	if db.FindExact(schema.Named("table2")) == nil {
		t.Error("table2 not loaded")
	}
}

func TestOpen_BrokenFile(t *testing.T) {
	ctx := context.Background()
	_, err := adapter.Open(ctx, adapter.SQLite, adapter.Options{
		Params: adapter.ConnParams{"dsn": filepath.Join(t.TempDir(), "missing", "x.db")},
	})
	if err == nil {
		t.Fatal("Open() on unreachable path: expected error")
	}
	if !errors.Is(err, schema.ErrConnect) {
		t.Errorf("Open() error = %v, want ErrConnect", err)
	}
}

// openFixture opens an in-memory database holding the test fixture.
func openFixture(t *testing.T, hooks ...schema.QueryHook) *schema.Database {
	t.Helper()
	return openDDL(t, fixture, hooks...)
}

// openDDL opens an in-memory database after running ddl.
func openDDL(t *testing.T, ddl string, hooks ...schema.QueryHook) *schema.Database {
	t.Helper()
	ctx := context.Background()

	raw, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error: %v", err)
	}
	raw.SetMaxOpenConns(1)
	if _, err := raw.ExecContext(ctx, ddl); err != nil {
		raw.Close()
		t.Fatalf("fixture: %v", err)
	}

	db, err := adapter.Open(ctx, adapter.SQLite, adapter.Options{
		Name:  "memory",
		Conn:  adapter.NewSQLConn(raw),
		Hooks: hooks,
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// execDDL runs ddl on the connection behind db.
func execDDL(t *testing.T, db *schema.Database, ddl string) {
	t.Helper()
	conn, err := db.Conn(context.Background())
	if err != nil {
		t.Fatalf("Conn() error: %v", err)
	}
	if _, err := conn.(*adapter.SQLConn).DB().Exec(ddl); err != nil {
		t.Fatalf("exec %q: %v", ddl, err)
	}
}

func names[T schema.Entity](entities []T) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Name()
	}
	return out
}
