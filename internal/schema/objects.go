package schema

import (
	"context"
	"iter"
)

// Attrs holds the attributes every variant accepts.
type Attrs struct {
	Description string
	OID         OID
}

// Namespace is a schema inside the database ("public", "main", ...).
type Namespace struct {
	Node
}

// NewNamespace returns a detached namespace.
func NewNamespace(name string, a Attrs) *Namespace {
	ns := &Namespace{}
	ns.setup(ns, KindNamespace, name, a.Description, a.OID)
	return ns
}

// IsDefault reports whether ns is the server's current namespace.
func (ns *Namespace) IsDefault(ctx context.Context) (bool, error) {
	if ns.db == nil {
		return false, ErrDetached
	}
	def, err := ns.db.DefaultNamespace(ctx)
	if err != nil || def == nil {
		return false, err
	}
	return Equal(def, ns), nil
}

// TableConfig configures NewTable.
type TableConfig struct {
	Attrs
	CreateStatement string
}

// Table is a base table.
type Table struct {
	Node
	CreateStatement string
}

// NewTable returns a detached table.
func NewTable(name string, cfg TableConfig) *Table {
	t := &Table{CreateStatement: cfg.CreateStatement}
	t.setup(t, KindTable, name, cfg.Description, cfg.OID)
	return t
}

func (t *Table) Attr(key string) (any, bool) {
	if key == "create_statement" {
		return t.CreateStatement, true
	}
	return t.Node.Attr(key)
}

// Columns yields the columns of t.
func (t *Table) Columns(ctx context.Context) (iter.Seq[*Column], error) {
	return childrenOf[*Column](ctx, &t.Node, KindColumn)
}

// ForeignKeys yields the foreign keys declared on t.
func (t *Table) ForeignKeys(ctx context.Context) (iter.Seq[*ForeignKey], error) {
	return childrenOf[*ForeignKey](ctx, &t.Node, KindForeignKey)
}

// ReverseForeignKeys yields the foreign keys, anywhere in the database,
// that reference t.
func (t *Table) ReverseForeignKeys(ctx context.Context) (iter.Seq[*ForeignKey], error) {
	if t.db == nil {
		return nil, ErrDetached
	}
	if err := t.db.Refresh(ctx, KindForeignKey); err != nil {
		return nil, err
	}
	return FindAs[*ForeignKey](t.db, OfKind(KindForeignKey), Where("foreign_table", Entity(t))), nil
}

// Indexes yields the indexes defined on t.
func (t *Table) Indexes(ctx context.Context) (iter.Seq[*Index], error) {
	return childrenOf[*Index](ctx, &t.Node, KindIndex)
}

// ViewConfig configures NewView.
type ViewConfig struct {
	Attrs
	CreateStatement string
}

// View is a view.
type View struct {
	Node
	CreateStatement string
}

// NewView returns a detached view.
func NewView(name string, cfg ViewConfig) *View {
	v := &View{CreateStatement: cfg.CreateStatement}
	v.setup(v, KindView, name, cfg.Description, cfg.OID)
	return v
}

func (v *View) Attr(key string) (any, bool) {
	if key == "create_statement" {
		return v.CreateStatement, true
	}
	return v.Node.Attr(key)
}

// Columns yields the columns of v.
func (v *View) Columns(ctx context.Context) (iter.Seq[*Column], error) {
	return childrenOf[*Column](ctx, &v.Node, KindColumn)
}

// ColumnConfig configures NewColumn.
type ColumnConfig struct {
	Attrs
	DataType   string
	Nullable   bool
	Default    string
	PrimaryKey bool
	Position   int
}

// Column is a column of a table or view.
type Column struct {
	Node
	DataType   string
	Nullable   bool
	Default    string
	PrimaryKey bool
	Position   int
}

// NewColumn returns a detached column.
func NewColumn(name string, cfg ColumnConfig) *Column {
	c := &Column{
		DataType:   cfg.DataType,
		Nullable:   cfg.Nullable,
		Default:    cfg.Default,
		PrimaryKey: cfg.PrimaryKey,
		Position:   cfg.Position,
	}
	c.setup(c, KindColumn, name, cfg.Description, cfg.OID)
	return c
}

func (c *Column) Attr(key string) (any, bool) {
	switch key {
	case "data_type":
		return c.DataType, true
	case "nullable":
		return c.Nullable, true
	case "default":
		return c.Default, true
	case "primary_key":
		return c.PrimaryKey, true
	case "position":
		return c.Position, true
	}
	return c.Node.Attr(key)
}

// ForeignKeyConfig configures NewForeignKey.
type ForeignKeyConfig struct {
	Attrs
	ForeignTable *Table
	Columns      []string
	RefColumns   []string
}

// ForeignKey is a foreign key constraint of a table.
type ForeignKey struct {
	Node
	foreignTable *Table
	Columns      []string
	RefColumns   []string
}

// NewForeignKey returns a detached foreign key. The referenced table may
// be nil when it has not been loaded.
func NewForeignKey(name string, cfg ForeignKeyConfig) *ForeignKey {
	fk := &ForeignKey{
		foreignTable: cfg.ForeignTable,
		Columns:      cfg.Columns,
		RefColumns:   cfg.RefColumns,
	}
	fk.setup(fk, KindForeignKey, name, cfg.Description, cfg.OID)
	return fk
}

// ForeignTable returns the referenced table, or nil.
func (fk *ForeignKey) ForeignTable() *Table { return fk.foreignTable }

func (fk *ForeignKey) Attr(key string) (any, bool) {
	switch key {
	case "foreign_table":
		if fk.foreignTable == nil {
			return nil, true
		}
		return Entity(fk.foreignTable), true
	case "columns":
		return fk.Columns, true
	case "ref_columns":
		return fk.RefColumns, true
	}
	return fk.Node.Attr(key)
}

// IndexConfig configures NewIndex.
type IndexConfig struct {
	Attrs
	Columns []string
	Unique  bool
	Primary bool
}

// Index is an index on a table.
type Index struct {
	Node
	Columns []string
	Unique  bool
	Primary bool
}

// NewIndex returns a detached index.
func NewIndex(name string, cfg IndexConfig) *Index {
	ix := &Index{Columns: cfg.Columns, Unique: cfg.Unique, Primary: cfg.Primary}
	ix.setup(ix, KindIndex, name, cfg.Description, cfg.OID)
	return ix
}

func (ix *Index) Attr(key string) (any, bool) {
	switch key {
	case "columns":
		return ix.Columns, true
	case "unique":
		return ix.Unique, true
	case "primary":
		return ix.Primary, true
	}
	return ix.Node.Attr(key)
}

func childrenOf[T Entity](ctx context.Context, n *Node, kind Kind) (iter.Seq[T], error) {
	if n.db == nil {
		return nil, ErrDetached
	}
	if err := n.db.Refresh(ctx, kind); err != nil {
		return nil, err
	}
	return FindAs[T](n.self, OfKind(kind)), nil
}
