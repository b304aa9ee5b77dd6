package render

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habeanf/dbschema/internal/schema"
)

func TestExpand(t *testing.T) {
	ctx := context.Background()
	db := shopFixture(t)
	public := db.FindExact(schema.OfKind(schema.KindNamespace)).(*schema.Namespace)
	view := db.FindExact(schema.OfKind(schema.KindView)).(*schema.View)

	tests := []struct {
		name string
		e    schema.Entity
		want []string
	}{
		{"database lists namespaces", db, []string{"public"}},
		{"namespace lists tables then views", public, []string{"orders", "users", "active_users"}},
		{"table lists columns by position then indexes", table(t, db, "users"), []string{"id", "email", "note", "users_email_key"}},
		{"table lists foreign keys", table(t, db, "orders"), []string{"id", "user_id", "orders_user_fk"}},
		{"view lists columns", view, []string{"id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(ctx, tt.e)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, names(got)); diff != "" {
				t.Errorf("Expand() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExpand_Leaf(t *testing.T) {
	db := shopFixture(t)
	col := db.FindExact(schema.OfKind(schema.KindColumn), schema.Named("email"))
	require.NotNil(t, col)

	got, err := Expand(context.Background(), col)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExpand_NoNamespaces(t *testing.T) {
	db := schema.NewDatabase("main.db", nil)
	require.NoError(t, db.AddChild(schema.NewView("v", schema.ViewConfig{})))
	require.NoError(t, db.AddChild(schema.NewTable("b", schema.TableConfig{})))
	require.NoError(t, db.AddChild(schema.NewTable("a", schema.TableConfig{})))

	got, err := Expand(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "v"}, names(got))
}

func TestExpand_Detached(t *testing.T) {
	_, err := Expand(context.Background(), schema.NewNamespace("loose", schema.Attrs{}))
	assert.ErrorIs(t, err, schema.ErrDetached)
}

func TestPath(t *testing.T) {
	db := shopFixture(t)
	users := table(t, db, "users")
	id := users.FindExact(schema.Named("id"))

	assert.Equal(t, "", Path(db))
	assert.Equal(t, "public.users", Path(users))
	assert.Equal(t, "public.users.id", Path(id))
}

func TestLabel(t *testing.T) {
	db := shopFixture(t)
	users := table(t, db, "users")
	orders := table(t, db, "orders")

	tests := []struct {
		name string
		e    schema.Entity
		want string
	}{
		{"table", users, "users"},
		{"view", db.FindExact(schema.OfKind(schema.KindView)), "active_users (view)"},
		{"primary key column", users.FindExact(schema.Named("id")), "id integer PK NOT NULL"},
		{"nullable column", users.FindExact(schema.Named("note")), "note text"},
		{"column with default", orders.FindExact(schema.Named("user_id")), "user_id integer NOT NULL DEFAULT 0"},
		{"foreign key", orders.FindExact(schema.OfKind(schema.KindForeignKey)), "orders_user_fk (user_id) -> public.users(id)"},
		{"unique index", users.FindExact(schema.OfKind(schema.KindIndex)), "users_email_key (email) unique"},
		{"dangling foreign key", schema.NewForeignKey("fk", schema.ForeignKeyConfig{Columns: []string{"a"}, RefColumns: []string{"b"}}), "fk (a) -> ?(b)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.e)
			assert.Equal(t, tt.want, Label(tt.e))
		})
	}
}
