package schema

import (
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Entity is a node of the catalog tree.
type Entity interface {
	Kind() Kind
	Name() string
	Description() string
	OID() OID
	Parent() Entity
	Database() *Database
	Children() iter.Seq[Entity]
	ChildKinds() KindSet
	AddChild(child Entity) error
	Child(kind Kind, name string) Entity
	Find(opts ...FindOption) iter.Seq[Entity]
	FindExact(opts ...FindOption) Entity
	Attr(key string) (any, bool)
	String() string

	node() *Node
}

// childKey identifies a child within its parent's children set. The parent
// is implied by the set itself.
type childKey struct {
	kind Kind
	name string
}

// Node holds the state shared by every entity variant. It is embedded by
// the concrete types and never used on its own.
type Node struct {
	self        Entity
	kind        Kind
	name        string
	description string
	oid         OID

	parent   Entity
	db       *Database
	children map[childKey]Entity
}

func (n *Node) setup(self Entity, kind Kind, name, description string, oid OID) {
	n.self = self
	n.kind = kind
	n.name = name
	n.description = description
	n.oid = oid
	n.children = make(map[childKey]Entity)
}

func (n *Node) node() *Node { return n }

func (n *Node) Kind() Kind          { return n.kind }
func (n *Node) Name() string        { return n.name }
func (n *Node) Description() string { return n.description }
func (n *Node) OID() OID            { return n.oid }
func (n *Node) Parent() Entity      { return n.parent }

// Database returns the root the entity is attached to, or nil.
func (n *Node) Database() *Database { return n.db }

// Children yields the direct children in no particular order.
func (n *Node) Children() iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		for _, c := range n.children {
			if !yield(c) {
				return
			}
		}
	}
}

// ChildKinds returns the distinct kinds among the direct children.
func (n *Node) ChildKinds() KindSet {
	kinds := KindSet{}
	for _, c := range n.children {
		kinds.Add(c.Kind())
	}
	return kinds
}

// AddChild attaches child below n. If an equal entity (same kind and name)
// is already a child the set is left untouched, but child still has its
// parent assigned and is registered in the oid index, replacing whatever
// was stored under its oid.
func (n *Node) AddChild(child Entity) error {
	if n.db == nil {
		return fmt.Errorf("add %s to %s: %w", child, n.self, ErrDetached)
	}
	if child.Kind() == KindDatabase {
		return fmt.Errorf("add %s to %s: %w", child, n.self, ErrCycle)
	}
	for p := Entity(n.self); p != nil; p = p.Parent() {
		if p == child {
			return fmt.Errorf("add %s to %s: %w", child, n.self, ErrCycle)
		}
	}

	c := child.node()
	c.parent = n.self
	c.db = n.db

	key := childKey{kind: c.kind, name: c.name}
	if _, ok := n.children[key]; !ok {
		n.children[key] = child
	}
	n.db.register(child)
	return nil
}

// Child returns the direct child with the given kind and name, or nil.
func (n *Node) Child(kind Kind, name string) Entity {
	return n.children[childKey{kind: kind, name: name}]
}

// Merge attaches child below parent unless an equal entity is already
// there. It returns the entity held by the tree and whether child was
// added. An existing entity keeps its attributes and its oid
// registration, so reloading a kind never leaves the index pointing at
// entities outside the tree.
func Merge(parent, child Entity) (Entity, bool, error) {
	if cur := parent.Child(child.Kind(), child.Name()); cur != nil {
		return cur, false, nil
	}
	if err := parent.AddChild(child); err != nil {
		return nil, false, err
	}
	return child, true, nil
}

// Attr returns the attribute named key. The base attributes are "name",
// "description", "oid" and "parent"; variants add their own.
func (n *Node) Attr(key string) (any, bool) {
	switch key {
	case "name":
		return n.name, true
	case "description":
		return n.description, true
	case "oid":
		return n.oid, true
	case "parent":
		return n.parent, true
	}
	return nil, false
}

func (n *Node) String() string {
	parent := "??"
	if n.parent != nil && n.parent.Name() != "" {
		parent = n.parent.Name()
	}
	name := n.name
	if name == "" {
		name = "??"
	}
	return fmt.Sprintf("<%s:%s.%s>", kindLabel(n.kind), parent, name)
}

func kindLabel(k Kind) string {
	var b strings.Builder
	for _, w := range strings.Fields(k.String()) {
		b.WriteString(strings.ToUpper(w[:1]) + w[1:])
	}
	return b.String()
}

// Walk visits e and its descendants depth first, children in name order.
// Returning false from fn skips the subtree below the visited entity.
func Walk(e Entity, fn func(e Entity, depth int) bool) {
	walk(e, 0, fn)
}

func walk(e Entity, depth int, fn func(Entity, int) bool) {
	if !fn(e, depth) {
		return
	}
	for _, c := range Sorted(e.Children()) {
		walk(c, depth+1, fn)
	}
}

// Equal reports whether a and b denote the same catalog object: same kind,
// same name and equal parents.
func Equal(a, b Entity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a == b {
		return true
	}
	if a.Kind() != b.Kind() || a.Name() != b.Name() {
		return false
	}
	return Equal(a.Parent(), b.Parent())
}

// Less orders entities by name alone.
func Less(a, b Entity) bool { return a.Name() < b.Name() }

// SortByName sorts entities in place by name.
func SortByName[T Entity](entities []T) {
	slices.SortStableFunc(entities, func(a, b T) int {
		return strings.Compare(a.Name(), b.Name())
	})
}

// Collect materializes seq.
func Collect[T Entity](seq iter.Seq[T]) []T {
	var out []T
	for e := range seq {
		out = append(out, e)
	}
	return out
}

// Sorted materializes seq in name order.
func Sorted[T Entity](seq iter.Seq[T]) []T {
	out := Collect(seq)
	SortByName(out)
	return out
}
