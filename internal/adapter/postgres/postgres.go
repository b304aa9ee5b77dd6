package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/habeanf/dbschema/internal/adapter"
	"github.com/habeanf/dbschema/internal/schema"
)

const defaultPort = "5432"

func init() {
	adapter.Register(adapter.PostgreSQL, func() (adapter.Backend, error) {
		return &Backend{}, nil
	})
}

// Backend implements adapter.Backend for PostgreSQL.
type Backend struct{}

func (b *Backend) Name() string { return adapter.PostgreSQL }

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

func (b *Backend) Connect(ctx context.Context, params adapter.ConnParams) (schema.Conn, error) {
	cfg, err := pgxpool.ParseConfig(buildDSN(params))
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	// Catalog inspection is sequential; one connection is enough.
	cfg.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return NewConn(pool), nil
}

// buildDSN returns params["dsn"] or assembles a postgres:// URL from the
// individual parameters.
func buildDSN(params adapter.ConnParams) string {
	if dsn := params.Get("dsn"); dsn != "" {
		return dsn
	}
	u := url.URL{Scheme: "postgres"}
	host := params.Get("host")
	if host == "" {
		host = "localhost"
	}
	port := params.Get("port")
	if port == "" {
		port = defaultPort
	}
	u.Host = host + ":" + port
	if user := params.Get("user"); user != "" {
		if pw := params.Get("password"); pw != "" {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	if db := params.Get("database", "dbname"); db != "" {
		u.Path = "/" + db
	}
	q := url.Values{}
	if ssl := params.Get("sslmode"); ssl != "" {
		q.Set("sslmode", ssl)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type rowKind int

const (
	rowNamespace rowKind = iota + 1
	rowTable
	rowView
)

func objRowKind(objtype string) rowKind {
	switch objtype {
	case "namespace":
		return rowNamespace
	case "table":
		return rowTable
	case "view":
		return rowView
	}
	return 0
}

const initialQuery = `
SELECT 'namespace' AS objtype,
       nsp.oid::int8 AS nspoid,
       nsp.nspname::text AS nspname,
       NULL::int8 AS reloid,
       NULL::text AS relname,
       dsc.description,
       NULL::text AS definition
FROM pg_namespace nsp
LEFT JOIN pg_description dsc ON dsc.objoid = nsp.oid AND dsc.objsubid = 0
UNION ALL
SELECT CASE WHEN rel.relkind IN ('r', 'p') THEN 'table' ELSE 'view' END,
       nsp.oid::int8,
       nsp.nspname::text,
       rel.oid::int8,
       rel.relname::text,
       dsc.description,
       CASE WHEN rel.relkind IN ('v', 'm') THEN pg_get_viewdef(rel.oid) END
FROM pg_class rel
JOIN pg_namespace nsp ON nsp.oid = rel.relnamespace
LEFT JOIN pg_description dsc ON dsc.objoid = rel.oid AND dsc.objsubid = 0
WHERE rel.relkind IN ('r', 'p', 'v', 'm')`

// Initialize loads every namespace, table and view in one query.
func (b *Backend) Initialize(ctx context.Context, db *schema.Database) error {
	if _, err := loadCatalog(ctx, db); err != nil {
		return err
	}
	db.SetDirty(schema.KindNamespace, false)
	db.SetDirty(schema.KindTable, false)
	db.SetDirty(schema.KindView, false)
	return nil
}

// loadCatalog merges namespaces, tables and views into db and reports how
// many relations were not known yet.
func loadCatalog(ctx context.Context, db *schema.Database) (int, error) {
	rows, err := db.RunQuery(ctx, initialQuery)
	if err != nil {
		return 0, fmt.Errorf("postgres catalog: %w", err)
	}

	namespaces := make(map[schema.OID]schema.Entity)
	for _, row := range rows {
		if objRowKind(row.String("objtype")) != rowNamespace {
			continue
		}
		ns, _, err := schema.Merge(db, schema.NewNamespace(row.String("nspname"), schema.Attrs{
			Description: row.String("description"),
			OID:         row.OID("nspoid"),
		}))
		if err != nil {
			return 0, err
		}
		namespaces[row.OID("nspoid")] = ns
	}

	added := 0
	for _, row := range rows {
		ns := namespaces[row.OID("nspoid")]
		if ns == nil {
			continue
		}
		name := row.String("relname")
		attrs := schema.Attrs{Description: row.String("description"), OID: row.OID("reloid")}

		var e schema.Entity
		switch objRowKind(row.String("objtype")) {
		case rowTable:
			e = schema.NewTable(name, schema.TableConfig{Attrs: attrs})
		case rowView:
			var stmt string
			if def := strings.TrimSpace(row.String("definition")); def != "" {
				stmt = fmt.Sprintf("CREATE VIEW %s.%s AS\n%s", ns.Name(), name, def)
			}
			e = schema.NewView(name, schema.ViewConfig{Attrs: attrs, CreateStatement: stmt})
		default:
			continue
		}
		_, isNew, err := schema.Merge(ns, e)
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
SELECT att.attrelid::int8 AS attrelid,
       att.attnum,
       att.attname::text AS attname,
       format_type(att.atttypid, att.atttypmod) AS data_type,
       NOT att.attnotnull AS nullable,
       pg_get_expr(def.adbin, def.adrelid) AS default_value,
       EXISTS (
           SELECT 1 FROM pg_index pk
           WHERE pk.indrelid = att.attrelid AND pk.indisprimary AND att.attnum = ANY(pk.indkey)
       ) AS primary_key,
       dsc.description
FROM pg_attribute att
JOIN pg_class rel ON rel.oid = att.attrelid AND rel.relkind IN ('r', 'p', 'v', 'm')
LEFT JOIN pg_attrdef def ON def.adrelid = att.attrelid AND def.adnum = att.attnum
LEFT JOIN pg_description dsc ON dsc.objoid = att.attrelid AND dsc.objsubid = att.attnum
WHERE att.attnum >= 1 AND NOT att.attisdropped
ORDER BY att.attrelid, att.attnum`

func refreshColumns(ctx context.Context, db *schema.Database) error {
	rows, err := db.RunQuery(ctx, columnsQuery)
	if err != nil {
		return fmt.Errorf("postgres columns: %w", err)
	}
	for _, row := range rows {
		rel := db.FindByOID(row.OID("attrelid"))
		if rel == nil {
			db.Logger().Debug("column of unknown relation", zap.Stringer("oid", row.OID("attrelid")))
			continue
		}
		name := row.String("attname")
		col := schema.NewColumn(name, schema.ColumnConfig{
			Attrs: schema.Attrs{
				Description: row.String("description"),
				OID:         schema.OIDf("%s-%s", rel.OID(), name),
			},
			DataType:   row.String("data_type"),
			Nullable:   row.Bool("nullable"),
			Default:    row.String("default_value"),
			PrimaryKey: row.Bool("primary_key"),
			Position:   int(row.Int64("attnum")),
		})
		if _, _, err := schema.Merge(rel, col); err != nil {
			return err
		}
	}
	return nil
}

const foreignKeysQuery = `
SELECT con.oid::int8 AS oid,
       con.conname::text AS conname,
       con.conrelid::int8 AS conrelid,
       con.confrelid::int8 AS confrelid,
       ARRAY(
           SELECT att.attname::text
           FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, n)
           JOIN pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = k.attnum
           ORDER BY k.n
       ) AS columns,
       ARRAY(
           SELECT att.attname::text
           FROM unnest(con.confkey) WITH ORDINALITY AS k(attnum, n)
           JOIN pg_attribute att ON att.attrelid = con.confrelid AND att.attnum = k.attnum
           ORDER BY k.n
       ) AS ref_columns,
       dsc.description
FROM pg_constraint con
LEFT JOIN pg_description dsc ON dsc.objoid = con.oid
WHERE con.contype = 'f'`

func refreshForeignKeys(ctx context.Context, db *schema.Database) error {
	rows, err := db.RunQuery(ctx, foreignKeysQuery)
	if err != nil {
		return fmt.Errorf("postgres foreign keys: %w", err)
	}
	for _, row := range rows {
		table := db.FindByOID(row.OID("conrelid"))
		if table == nil {
			continue
		}
		ref, _ := db.FindByOID(row.OID("confrelid")).(*schema.Table)
		fk := schema.NewForeignKey(row.String("conname"), schema.ForeignKeyConfig{
			Attrs: schema.Attrs{
				Description: row.String("description"),
				OID:         row.OID("oid"),
			},
			ForeignTable: ref,
			Columns:      row.Strings("columns"),
			RefColumns:   row.Strings("ref_columns"),
		})
		if _, _, err := schema.Merge(table, fk); err != nil {
			return err
		}
	}
	return nil
}

const indexesQuery = `
SELECT i.oid::int8 AS oid,
       i.relname::text AS index_name,
       ix.indrelid::int8 AS table_oid,
       array_agg(a.attname::text ORDER BY k.n) AS columns,
       ix.indisunique AS is_unique,
       ix.indisprimary AS is_primary
FROM pg_index ix
JOIN pg_class i ON i.oid = ix.indexrelid
JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, n) ON true
JOIN pg_attribute a ON a.attrelid = ix.indrelid AND a.attnum = k.attnum
GROUP BY i.oid, i.relname, ix.indrelid, ix.indisunique, ix.indisprimary`

func refreshIndexes(ctx context.Context, db *schema.Database) error {
	rows, err := db.RunQuery(ctx, indexesQuery)
	if err != nil {
		return fmt.Errorf("postgres indexes: %w", err)
	}
	for _, row := range rows {
		table, ok := db.FindByOID(row.OID("table_oid")).(*schema.Table)
		if !ok {
			continue
		}
		ix := schema.NewIndex(row.String("index_name"), schema.IndexConfig{
			Attrs:   schema.Attrs{OID: row.OID("oid")},
			Columns: row.Strings("columns"),
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
		return "", fmt.Errorf("postgres version: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].String("version"), nil
}

// DefaultNamespace returns the first namespace on the search_path that
// exists. "$user" resolves to the current user.
func (b *Backend) DefaultNamespace(ctx context.Context, db *schema.Database) (*schema.Namespace, error) {
	rows, err := db.RunQuery(ctx, "SHOW search_path")
	if err != nil {
		return nil, fmt.Errorf("postgres search_path: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	for _, path := range splitSearchPath(rows[0].String("search_path")) {
		if path == "$user" {
			user, err := db.RunQuery(ctx, "SELECT current_user")
			if err != nil {
				return nil, fmt.Errorf("postgres current_user: %w", err)
			}
			if len(user) == 0 {
				continue
			}
			path = user[0].String("current_user")
		}
		if ns, ok := db.FindExact(schema.OfKind(schema.KindNamespace), schema.Named(path)).(*schema.Namespace); ok {
			return ns, nil
		}
	}
	return nil, nil
}

// splitSearchPath splits a search_path setting and removes identifier
// quoting.
func splitSearchPath(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if len(part) >= 2 && part[0] == '"' && part[len(part)-1] == '"' {
			part = strings.ReplaceAll(part[1:len(part)-1], `""`, `"`)
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
