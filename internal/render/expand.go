// Package render turns a catalog tree into text: labels for single
// entities, printed trees, fuzzy search results and highlighted SQL.
package render

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/habeanf/dbschema/internal/schema"
)

// Expand loads and returns the displayable children of e in display order.
// Namespaces come first, then tables before views, then columns by
// position, foreign keys and indexes. Only the kinds needed for e are
// refreshed.
func Expand(ctx context.Context, e schema.Entity) ([]schema.Entity, error) {
	switch v := e.(type) {
	case *schema.Database:
		namespaces, err := v.Namespaces(ctx)
		if err != nil {
			return nil, err
		}
		if ns := schema.Sorted(namespaces); len(ns) > 0 {
			return entities(ns), nil
		}
		return relations(ctx, v)
	case *schema.Namespace:
		return relations(ctx, v)
	case *schema.Table:
		cols, err := v.Columns(ctx)
		if err != nil {
			return nil, err
		}
		fks, err := v.ForeignKeys(ctx)
		if err != nil {
			return nil, err
		}
		idx, err := v.Indexes(ctx)
		if err != nil {
			return nil, err
		}
		out := entities(byPosition(schema.Collect(cols)))
		out = append(out, entities(schema.Sorted(fks))...)
		return append(out, entities(schema.Sorted(idx))...), nil
	case *schema.View:
		cols, err := v.Columns(ctx)
		if err != nil {
			return nil, err
		}
		return entities(byPosition(schema.Collect(cols))), nil
	}
	return nil, nil
}

// relations returns the tables then the views directly under parent.
func relations(ctx context.Context, parent schema.Entity) ([]schema.Entity, error) {
	db := parent.Database()
	if db == nil {
		return nil, schema.ErrDetached
	}
	if err := db.Refresh(ctx, schema.KindTable, schema.KindView); err != nil {
		return nil, err
	}
	tables := schema.Sorted(schema.FindAs[*schema.Table](parent, schema.OfKind(schema.KindTable), schema.Recurse(false)))
	views := schema.Sorted(schema.FindAs[*schema.View](parent, schema.OfKind(schema.KindView), schema.Recurse(false)))
	return append(entities(tables), entities(views)...), nil
}

func byPosition(cols []*schema.Column) []*schema.Column {
	slices.SortFunc(cols, func(a, b *schema.Column) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return strings.Compare(a.Name(), b.Name())
	})
	return cols
}

func entities[T schema.Entity](in []T) []schema.Entity {
	out := make([]schema.Entity, len(in))
	for i, e := range in {
		out[i] = e
	}
	return out
}

// Path returns the dotted name of e below its database, e.g.
// "public.users.id".
func Path(e schema.Entity) string {
	var parts []string
	for cur := e; cur != nil && cur.Kind() != schema.KindDatabase; cur = cur.Parent() {
		parts = append(parts, cur.Name())
	}
	slices.Reverse(parts)
	return strings.Join(parts, ".")
}

// Label returns a one-line plain-text description of e.
func Label(e schema.Entity) string {
	switch v := e.(type) {
	case *schema.Column:
		var b strings.Builder
		b.WriteString(v.Name())
		if v.DataType != "" {
			b.WriteString(" " + v.DataType)
		}
		if v.PrimaryKey {
			b.WriteString(" PK")
		}
		if !v.Nullable {
			b.WriteString(" NOT NULL")
		}
		if v.Default != "" {
			b.WriteString(" DEFAULT " + v.Default)
		}
		return b.String()
	case *schema.ForeignKey:
		target := "?"
		if ft := v.ForeignTable(); ft != nil {
			target = Path(ft)
		}
		return fmt.Sprintf("%s (%s) -> %s(%s)", v.Name(),
			strings.Join(v.Columns, ", "), target, strings.Join(v.RefColumns, ", "))
	case *schema.Index:
		label := fmt.Sprintf("%s (%s)", v.Name(), strings.Join(v.Columns, ", "))
		if v.Primary {
			label += " primary"
		} else if v.Unique {
			label += " unique"
		}
		return label
	case *schema.View:
		return v.Name() + " (view)"
	}
	return e.Name()
}
