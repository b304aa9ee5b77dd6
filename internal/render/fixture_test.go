package render

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/habeanf/dbschema/internal/schema"
)

// shopFixture builds a small hand-made catalog:
//
//	shop
//	  public
//	    users (id, email, note) + users_email_key
//	    orders (id, user_id) + orders_user_fk -> users
//	    active_users (view)
func shopFixture(t *testing.T) *schema.Database {
	t.Helper()
	db := schema.NewDatabase("shop", nil)
	ns := schema.NewNamespace("public", schema.Attrs{OID: schema.StringOID("public")})
	require.NoError(t, db.AddChild(ns))

	users := schema.NewTable("users", schema.TableConfig{
		CreateStatement: "CREATE TABLE users (id integer PRIMARY KEY, email text NOT NULL, note text)",
	})
	orders := schema.NewTable("orders", schema.TableConfig{})
	view := schema.NewView("active_users", schema.ViewConfig{})
	require.NoError(t, ns.AddChild(users))
	require.NoError(t, ns.AddChild(orders))
	require.NoError(t, ns.AddChild(view))

	// Added out of order on purpose; Position decides display order.
	require.NoError(t, users.AddChild(schema.NewColumn("note", schema.ColumnConfig{DataType: "text", Nullable: true, Position: 3})))
	require.NoError(t, users.AddChild(schema.NewColumn("id", schema.ColumnConfig{DataType: "integer", PrimaryKey: true, Position: 1})))
	require.NoError(t, users.AddChild(schema.NewColumn("email", schema.ColumnConfig{DataType: "text", Position: 2})))
	require.NoError(t, users.AddChild(schema.NewIndex("users_email_key", schema.IndexConfig{Columns: []string{"email"}, Unique: true})))

	require.NoError(t, orders.AddChild(schema.NewColumn("id", schema.ColumnConfig{DataType: "integer", PrimaryKey: true, Position: 1})))
	require.NoError(t, orders.AddChild(schema.NewColumn("user_id", schema.ColumnConfig{DataType: "integer", Default: "0", Position: 2})))
	require.NoError(t, orders.AddChild(schema.NewForeignKey("orders_user_fk", schema.ForeignKeyConfig{
		ForeignTable: users, Columns: []string{"user_id"}, RefColumns: []string{"id"},
	})))

	require.NoError(t, view.AddChild(schema.NewColumn("id", schema.ColumnConfig{DataType: "integer", Nullable: true, Position: 1})))
	return db
}

func table(t *testing.T, db *schema.Database, name string) *schema.Table {
	t.Helper()
	e := db.FindExact(schema.OfKind(schema.KindTable), schema.Named(name))
	require.NotNil(t, e, "table %s", name)
	return e.(*schema.Table)
}

func names(entities []schema.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Name()
	}
	return out
}
