package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/habeanf/dbschema/internal/adapter"
	"github.com/habeanf/dbschema/internal/schema"

	_ "modernc.org/sqlite"
)

func init() {
	adapter.Register(adapter.SQLite, func() (adapter.Backend, error) {
		return &Backend{}, nil
	})
}

// Backend implements adapter.Backend for SQLite databases. SQLite has no
// namespaces: tables and views hang directly below the database.
type Backend struct{}

func (b *Backend) Name() string { return adapter.SQLite }

func (b *Backend) Structure() schema.Structure {
	return schema.Structure{
		{Kind: schema.KindTable, Children: schema.Structure{
			{Kind: schema.KindColumn},
			{Kind: schema.KindForeignKey},
			{Kind: schema.KindIndex},
		}},
		{Kind: schema.KindView, Children: schema.Structure{
			{Kind: schema.KindColumn},
		}},
	}
}

// Connect opens the file named by the "dsn", "file" or "database" param.
func (b *Backend) Connect(ctx context.Context, params adapter.ConnParams) (schema.Conn, error) {
	dsn := normalizeDSN(params.Get("dsn", "file", "database"))
	if dsn == "" {
		return nil, errors.New("sqlite: no database file given")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// A second pooled connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite enable foreign keys: %w", err)
	}
	return adapter.NewSQLConn(db), nil
}

// normalizeDSN strips common SQLite URI prefixes.
func normalizeDSN(dsn string) string {
	if strings.HasPrefix(dsn, "sqlite://") {
		return strings.TrimPrefix(dsn, "sqlite://")
	}
	if strings.HasPrefix(dsn, "file:") {
		return strings.TrimPrefix(dsn, "file:")
	}
	return dsn
}

type rowKind int

const (
	rowOther rowKind = iota
	rowTable
	rowView
)

func masterRowKind(typ string) rowKind {
	switch typ {
	case "table":
		return rowTable
	case "view":
		return rowView
	}
	return rowOther
}

const masterQuery = `SELECT type, name, tbl_name, sql FROM sqlite_master
WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
ORDER BY name`

// Initialize loads every table and view from sqlite_master.
func (b *Backend) Initialize(ctx context.Context, db *schema.Database) error {
	if _, err := loadRelations(ctx, db); err != nil {
		return err
	}
	db.SetDirty(schema.KindTable, false)
	db.SetDirty(schema.KindView, false)
	return nil
}

// relationOID keys tables and views by lower-cased name: SQLite matches
// identifiers case-insensitively, foreign key targets included.
func relationOID(name string) schema.OID {
	return schema.StringOID(strings.ToLower(name))
}

// loadRelations merges the tables and views of sqlite_master into db and
// reports how many were not known yet.
func loadRelations(ctx context.Context, db *schema.Database) (int, error) {
	rows, err := db.RunQuery(ctx, masterQuery)
	if err != nil {
		return 0, fmt.Errorf("sqlite tables: %w", err)
	}
	added := 0
	for _, row := range rows {
		name := row.String("name")
		attrs := schema.Attrs{OID: relationOID(name)}

		var e schema.Entity
		switch masterRowKind(row.String("type")) {
		case rowTable:
			e = schema.NewTable(name, schema.TableConfig{Attrs: attrs, CreateStatement: row.String("sql")})
		case rowView:
			e = schema.NewView(name, schema.ViewConfig{Attrs: attrs, CreateStatement: row.String("sql")})
		default:
			continue
		}
		_, isNew, err := schema.Merge(db, e)
		if err != nil {
			return 0, err
		}
		if isNew {
			added++
		}
	}
	return added, nil
}

func (b *Backend) RefreshKinds(ctx context.Context, db *schema.Database, kinds schema.KindSet) error {
	if kinds.Has(schema.KindTable) || kinds.Has(schema.KindView) {
		added, err := loadRelations(ctx, db)
		if err != nil {
			return err
		}
		if added > 0 {
			adapter.MarkStale(db, kinds, schema.KindColumn, schema.KindForeignKey, schema.KindIndex)
		}
	}
	if kinds.Has(schema.KindColumn) {
		if err := refreshColumns(ctx, db); err != nil {
			return err
		}
	}
	if kinds.Has(schema.KindForeignKey) {
		if err := refreshForeignKeys(ctx, db); err != nil {
			return err
		}
	}
	if kinds.Has(schema.KindIndex) {
		if err := refreshIndexes(ctx, db); err != nil {
			return err
		}
	}
	return nil
}

// PRAGMA statements do not accept bound parameters, hence the quoting.

func refreshColumns(ctx context.Context, db *schema.Database) error {
	for _, rel := range schema.Collect(db.Find(schema.OfKind(schema.KindRelation))) {
		rows, err := db.RunQuery(ctx, fmt.Sprintf("PRAGMA table_info(%q)", rel.Name()))
		if err != nil {
			return fmt.Errorf("sqlite columns: %w", err)
		}
		for _, row := range rows {
			cid := row.Int64("cid")
			col := schema.NewColumn(row.String("name"), schema.ColumnConfig{
				Attrs:      schema.Attrs{OID: schema.OIDf("%s.%d", rel.OID(), cid)},
				DataType:   row.String("type"),
				Nullable:   row.Int64("notnull") == 0,
				Default:    row.String("dflt_value"),
				PrimaryKey: row.Int64("pk") > 0,
				Position:   int(cid) + 1,
			})
			if _, _, err := schema.Merge(rel, col); err != nil {
				return err
			}
		}
	}
	return nil
}

func refreshForeignKeys(ctx context.Context, db *schema.Database) error {
	for _, t := range schema.Sorted(schema.FindAs[*schema.Table](db, schema.OfKind(schema.KindTable))) {
		rows, err := db.RunQuery(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", t.Name()))
		if err != nil {
			return fmt.Errorf("sqlite foreign_key_list: %w", err)
		}

		// Group by id since a single FK can span multiple columns.
		type fkEntry struct {
			refTable   string
			columns    []string
			refColumns []string
		}
		fkMap := make(map[int64]*fkEntry)
		var fkOrder []int64
		for _, row := range rows {
			id := row.Int64("id")
			entry, ok := fkMap[id]
			if !ok {
				entry = &fkEntry{refTable: row.String("table")}
				fkMap[id] = entry
				fkOrder = append(fkOrder, id)
			}
			entry.columns = append(entry.columns, row.String("from"))
			entry.refColumns = append(entry.refColumns, row.String("to"))
		}

		for _, id := range fkOrder {
			entry := fkMap[id]
			name := fmt.Sprintf("%s.%s", t.Name(), strings.Join(entry.columns, ","))
			ref, _ := db.FindByOID(relationOID(entry.refTable)).(*schema.Table)
			fk := schema.NewForeignKey(name, schema.ForeignKeyConfig{
				Attrs:        schema.Attrs{OID: schema.StringOID(name)},
				ForeignTable: ref,
				Columns:      entry.columns,
				RefColumns:   entry.refColumns,
			})
			if _, _, err := schema.Merge(t, fk); err != nil {
				return err
			}
		}
	}
	return nil
}

func refreshIndexes(ctx context.Context, db *schema.Database) error {
	for _, t := range schema.Sorted(schema.FindAs[*schema.Table](db, schema.OfKind(schema.KindTable))) {
		list, err := db.RunQuery(ctx, fmt.Sprintf("PRAGMA index_list(%q)", t.Name()))
		if err != nil {
			return fmt.Errorf("sqlite index_list: %w", err)
		}
		for _, entry := range list {
			name := entry.String("name")
			info, err := db.RunQuery(ctx, fmt.Sprintf("PRAGMA index_info(%q)", name))
			if err != nil {
				return fmt.Errorf("sqlite index_info: %w", err)
			}
			var cols []string
			for _, row := range info {
				cols = append(cols, row.String("name"))
			}
			ix := schema.NewIndex(name, schema.IndexConfig{
				Attrs:   schema.Attrs{OID: schema.OIDf("index:%s", name)},
				Columns: cols,
				Unique:  entry.Int64("unique") == 1,
				Primary: entry.String("origin") == "pk",
			})
			if _, _, err := schema.Merge(t, ix); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Backend) ServerInfo(ctx context.Context, db *schema.Database) (string, error) {
	rows, err := db.RunQuery(ctx, "SELECT sqlite_version() AS version")
	if err != nil {
		return "", fmt.Errorf("sqlite version: %w", err)
	}
	if len(rows) == 0 {
		return "SQLite", nil
	}
	return "SQLite " + rows[0].String("version"), nil
}

// DefaultNamespace returns nil: SQLite has no namespaces.
func (b *Backend) DefaultNamespace(context.Context, *schema.Database) (*schema.Namespace, error) {
	return nil, nil
}
