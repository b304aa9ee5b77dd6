package schema

import (
	"context"
	"errors"
)

// fakeBackend builds a small catalog in memory and counts refresh calls.
type fakeBackend struct {
	structure Structure
	refreshes map[Kind]int
	calls     int
	failWith  error
	defaultNS string

	// onRefresh runs inside RefreshKinds before the tree is populated.
	onRefresh func(db *Database)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		structure: Structure{
			{Kind: KindNamespace, Children: Structure{
				{Kind: KindTable, Children: Structure{
					{Kind: KindColumn},
					{Kind: KindForeignKey},
				}},
				{Kind: KindView, Children: Structure{
					{Kind: KindColumn},
				}},
			}},
		},
		refreshes: make(map[Kind]int),
		defaultNS: "public",
	}
}

func (b *fakeBackend) Structure() Structure { return b.structure }

func (b *fakeBackend) Initialize(_ context.Context, db *Database) error {
	ns := NewNamespace("public", Attrs{OID: IntOID(1)})
	if err := db.AddChild(ns); err != nil {
		return err
	}
	other := NewNamespace("other", Attrs{OID: IntOID(2)})
	if err := db.AddChild(other); err != nil {
		return err
	}
	for _, t := range []*Table{
		NewTable("table1", TableConfig{Attrs: Attrs{OID: IntOID(10)}}),
		NewTable("table2", TableConfig{Attrs: Attrs{OID: IntOID(11)}}),
	} {
		if err := ns.AddChild(t); err != nil {
			return err
		}
	}
	if err := other.AddChild(NewTable("elsewhere", TableConfig{Attrs: Attrs{OID: IntOID(12)}})); err != nil {
		return err
	}
	if err := ns.AddChild(NewView("view1", ViewConfig{Attrs: Attrs{OID: IntOID(20)}})); err != nil {
		return err
	}
	db.SetDirty(KindNamespace, false)
	db.SetDirty(KindTable, false)
	db.SetDirty(KindView, false)
	return nil
}

func (b *fakeBackend) RefreshKinds(_ context.Context, db *Database, kinds KindSet) error {
	b.calls++
	for k := range kinds {
		b.refreshes[k]++
	}
	if b.onRefresh != nil {
		b.onRefresh(db)
	}
	if b.failWith != nil {
		return b.failWith
	}
	if kinds.Has(KindColumn) {
		columns := map[OID][]string{
			IntOID(10): {"id", "val1", "val2"},
			IntOID(11): {"id", "t1_id"},
			IntOID(20): {"id", "val2"},
		}
		for oid, names := range columns {
			rel := db.FindByOID(oid)
			for i, name := range names {
				col := NewColumn(name, ColumnConfig{
					Attrs:    Attrs{OID: OIDf("%s-%s", oid, name)},
					Position: i + 1,
				})
				if err := rel.AddChild(col); err != nil {
					return err
				}
			}
		}
	}
	if kinds.Has(KindForeignKey) {
		t1, _ := db.FindByOID(IntOID(10)).(*Table)
		t2 := db.FindByOID(IntOID(11))
		fk := NewForeignKey("table2_t1_id_fkey", ForeignKeyConfig{
			Attrs:        Attrs{OID: IntOID(30)},
			ForeignTable: t1,
			Columns:      []string{"t1_id"},
			RefColumns:   []string{"id"},
		})
		if err := t2.AddChild(fk); err != nil {
			return err
		}
	}
	return nil
}

func (b *fakeBackend) ServerInfo(context.Context, *Database) (string, error) {
	return "Fake 1.0", nil
}

func (b *fakeBackend) DefaultNamespace(_ context.Context, db *Database) (*Namespace, error) {
	if b.defaultNS == "" {
		return nil, nil
	}
	ns, _ := db.FindExact(OfKind(KindNamespace), Named(b.defaultNS)).(*Namespace)
	return ns, nil
}

// openFake returns an initialized database over a fresh fake backend.
func openFake(t interface {
	Helper()
	Fatalf(string, ...any)
}) (*Database, *fakeBackend) {
	t.Helper()
	b := newFakeBackend()
	db := NewDatabase("fake", b)
	if err := b.Initialize(context.Background(), db); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	return db, b
}

// fakeConn is a Conn returning canned rows.
type fakeConn struct {
	rows   []Record
	err    error
	closed bool
	seen   []string
}

func (c *fakeConn) Query(_ context.Context, query string, _ ...any) ([]Record, error) {
	c.seen = append(c.seen, query)
	if c.err != nil {
		return nil, c.err
	}
	return c.rows, nil
}

func (c *fakeConn) Close() error {
	if c.closed {
		return errors.New("already closed")
	}
	c.closed = true
	return nil
}
