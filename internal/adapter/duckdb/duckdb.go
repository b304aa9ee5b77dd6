// Package duckdb inspects DuckDB catalogs. The driver needs cgo, so the
// backend is only usable in binaries built with the duckdb tag; otherwise
// the registered factory reports it as unavailable.
package duckdb

import (
	"context"
	"fmt"

	"github.com/habeanf/dbschema/internal/adapter"
	"github.com/habeanf/dbschema/internal/schema"
)

// Backend implements the catalog side of adapter.Backend for DuckDB.
type Backend struct{}

func (b *Backend) Name() string { return adapter.DuckDB }

func (b *Backend) Structure() schema.Structure {
	return schema.Structure{
		{Kind: schema.KindNamespace, Children: schema.Structure{
			{Kind: schema.KindTable, Children: schema.Structure{
				{Kind: schema.KindColumn},
				{Kind: schema.KindForeignKey},
				{Kind: schema.KindIndex},
			}},
			{Kind: schema.KindView, Children: schema.Structure{
				{Kind: schema.KindColumn},
			}},
		}},
	}
}

type rowKind int

const (
	rowSchema rowKind = iota + 1
	rowTable
	rowView
)

func objRowKind(objtype string) rowKind {
	switch objtype {
	case "schema":
		return rowSchema
	case "table":
		return rowTable
	case "view":
		return rowView
	}
	return 0
}

const initialQuery = `
SELECT 'schema' AS objtype, oid AS oid, schema_name AS name, NULL::BIGINT AS parent,
       comment AS description, NULL AS sql, 0 AS pos
FROM duckdb_schemas()
WHERE database_name = current_database() AND NOT internal
UNION ALL
SELECT 'table', table_oid, table_name, schema_oid, comment, sql, 1
FROM duckdb_tables()
WHERE database_name = current_database() AND NOT internal
UNION ALL
SELECT 'view', view_oid, view_name, schema_oid, comment, sql, 1
FROM duckdb_views()
WHERE database_name = current_database() AND NOT internal
ORDER BY pos`

// Initialize loads schemas, tables and views.
func (b *Backend) Initialize(ctx context.Context, db *schema.Database) error {
	if _, err := loadCatalog(ctx, db); err != nil {
		return err
	}
	db.SetDirty(schema.KindNamespace, false)
	db.SetDirty(schema.KindTable, false)
	db.SetDirty(schema.KindView, false)
	return nil
}

// loadCatalog merges schemas, tables and views into db and reports how
// many relations were not known yet.
func loadCatalog(ctx context.Context, db *schema.Database) (int, error) {
	rows, err := db.RunQuery(ctx, initialQuery)
	if err != nil {
		return 0, fmt.Errorf("duckdb catalog: %w", err)
	}
	added := 0
	for _, row := range rows {
		name := row.String("name")
		attrs := schema.Attrs{Description: row.String("description"), OID: row.OID("oid")}

		var child schema.Entity
		switch objRowKind(row.String("objtype")) {
		case rowSchema:
			if _, _, err := schema.Merge(db, schema.NewNamespace(name, attrs)); err != nil {
				return 0, err
			}
			continue
		case rowTable:
			child = schema.NewTable(name, schema.TableConfig{Attrs: attrs, CreateStatement: row.String("sql")})
		case rowView:
			child = schema.NewView(name, schema.ViewConfig{Attrs: attrs, CreateStatement: row.String("sql")})
		default:
			continue
		}
		parent := db.FindByOID(row.OID("parent"))
		if parent == nil {
			continue
		}
		_, isNew, err := schema.Merge(parent, child)
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
	if kinds.Has(schema.KindNamespace) || kinds.Has(schema.KindTable) || kinds.Has(schema.KindView) {
		added, err := loadCatalog(ctx, db)
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

const columnsQuery = `
SELECT c.table_oid, c.column_name, c.column_index, c.data_type, c.column_default,
       c.is_nullable, c.comment,
       EXISTS (
           SELECT 1 FROM duckdb_constraints() k
           WHERE k.table_oid = c.table_oid AND k.constraint_type = 'PRIMARY KEY'
             AND list_contains(k.constraint_column_names, c.column_name)
       ) AS primary_key
FROM duckdb_columns() c
WHERE c.database_name = current_database() AND NOT c.internal
ORDER BY c.table_oid, c.column_index`

func refreshColumns(ctx context.Context, db *schema.Database) error {
	rows, err := db.RunQuery(ctx, columnsQuery)
	if err != nil {
		return fmt.Errorf("duckdb columns: %w", err)
	}
	for _, row := range rows {
		rel := db.FindByOID(row.OID("table_oid"))
		if rel == nil {
			continue
		}
		name := row.String("column_name")
		col := schema.NewColumn(name, schema.ColumnConfig{
			Attrs: schema.Attrs{
				Description: row.String("comment"),
				OID:         schema.OIDf("%s-%s", rel.OID(), name),
			},
			DataType:   row.String("data_type"),
			Nullable:   row.Bool("is_nullable"),
			Default:    row.String("column_default"),
			PrimaryKey: row.Bool("primary_key"),
			Position:   int(row.Int64("column_index")),
		})
		if _, _, err := schema.Merge(rel, col); err != nil {
			return err
		}
	}
	return nil
}

const foreignKeysQuery = `
SELECT table_oid, constraint_index, constraint_name,
       constraint_column_names, referenced_table, referenced_column_names
FROM duckdb_constraints()
WHERE database_name = current_database() AND constraint_type = 'FOREIGN KEY'`

func refreshForeignKeys(ctx context.Context, db *schema.Database) error {
	rows, err := db.RunQuery(ctx, foreignKeysQuery)
	if err != nil {
		return fmt.Errorf("duckdb foreign keys: %w", err)
	}
	for _, row := range rows {
		table, ok := db.FindByOID(row.OID("table_oid")).(*schema.Table)
		if !ok {
			continue
		}
		var ref *schema.Table
		if ns := table.Parent(); ns != nil {
			ref, _ = ns.FindExact(schema.OfKind(schema.KindTable), schema.Named(row.String("referenced_table")), schema.Recurse(false)).(*schema.Table)
		}
		name := row.String("constraint_name")
		if name == "" {
			name = fmt.Sprintf("%s_%d_fkey", table.Name(), row.Int64("constraint_index"))
		}
		fk := schema.NewForeignKey(name, schema.ForeignKeyConfig{
			Attrs:        schema.Attrs{OID: schema.OIDf("fk:%s:%d", table.OID(), row.Int64("constraint_index"))},
			ForeignTable: ref,
			Columns:      row.Strings("constraint_column_names"),
			RefColumns:   row.Strings("referenced_column_names"),
		})
		if _, _, err := schema.Merge(table, fk); err != nil {
			return err
		}
	}
	return nil
}

const indexesQuery = `
SELECT index_oid, index_name, table_oid, is_unique, is_primary, expressions
FROM duckdb_indexes()
WHERE database_name = current_database()`

func refreshIndexes(ctx context.Context, db *schema.Database) error {
	rows, err := db.RunQuery(ctx, indexesQuery)
	if err != nil {
		return fmt.Errorf("duckdb indexes: %w", err)
	}
	for _, row := range rows {
		table, ok := db.FindByOID(row.OID("table_oid")).(*schema.Table)
		if !ok {
			continue
		}
		ix := schema.NewIndex(row.String("index_name"), schema.IndexConfig{
			Attrs:   schema.Attrs{OID: schema.OIDf("index:%s", row.OID("index_oid"))},
			Columns: row.Strings("expressions"),
			Unique:  row.Bool("is_unique"),
			Primary: row.Bool("is_primary"),
		})
		if _, _, err := schema.Merge(table, ix); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) ServerInfo(ctx context.Context, db *schema.Database) (string, error) {
	rows, err := db.RunQuery(ctx, "SELECT version() AS version")
	if err != nil {
		return "", fmt.Errorf("duckdb version: %w", err)
	}
	if len(rows) == 0 {
		return "DuckDB", nil
	}
	return "DuckDB " + rows[0].String("version"), nil
}

// DefaultNamespace returns the schema named by current_schema().
func (b *Backend) DefaultNamespace(ctx context.Context, db *schema.Database) (*schema.Namespace, error) {
	rows, err := db.RunQuery(ctx, "SELECT current_schema() AS current_schema")
	if err != nil {
		return nil, fmt.Errorf("duckdb current_schema: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ns, _ := db.FindExact(schema.OfKind(schema.KindNamespace), schema.Named(rows[0].String("current_schema"))).(*schema.Namespace)
	return ns, nil
}
