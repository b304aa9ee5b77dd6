package schema

import (
	"iter"
	"reflect"
)

// FindOption narrows a Find query.
type FindOption func(*query)

type query struct {
	kind      *Kind
	name      *string
	parent    Entity
	hasParent bool
	recurse   bool
	attrs     []attrFilter
}

type attrFilter struct {
	key   string
	value any
}

// OfKind keeps entities whose kind satisfies k (see Kind.Is).
func OfKind(k Kind) FindOption {
	return func(q *query) { q.kind = &k }
}

// Named keeps entities called name.
func Named(name string) FindOption {
	return func(q *query) { q.name = &name }
}

// ChildOf keeps entities whose parent equals parent.
func ChildOf(parent Entity) FindOption {
	return func(q *query) {
		q.parent = parent
		q.hasParent = true
	}
}

// Recurse controls descent into grandchildren. The default is true.
func Recurse(recurse bool) FindOption {
	return func(q *query) { q.recurse = recurse }
}

// Where keeps entities exposing attribute key with a value equal to value.
// Entities without the attribute never match.
func Where(key string, value any) FindOption {
	return func(q *query) { q.attrs = append(q.attrs, attrFilter{key: key, value: value}) }
}

func newQuery(opts []FindOption) *query {
	q := &query{recurse: true}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *query) match(e Entity) bool {
	if q.kind != nil && !e.Kind().Is(*q.kind) {
		return false
	}
	if q.name != nil && e.Name() != *q.name {
		return false
	}
	if q.hasParent && !Equal(e.Parent(), q.parent) {
		return false
	}
	for _, f := range q.attrs {
		got, ok := e.Attr(f.key)
		if !ok || !attrEqual(got, f.value) {
			return false
		}
	}
	return true
}

func attrEqual(got, want any) bool {
	ge, gok := got.(Entity)
	we, wok := want.(Entity)
	if gok || wok {
		return gok && wok && Equal(ge, we)
	}
	return reflect.DeepEqual(got, want)
}

// Find yields the descendants of n matching every option. Each child is
// tested before its own subtree is searched. The sequence re-reads the tree
// every time it is ranged over and must not be consumed while the tree is
// being modified.
func (n *Node) Find(opts ...FindOption) iter.Seq[Entity] {
	q := newQuery(opts)
	return func(yield func(Entity) bool) {
		n.search(q, yield)
	}
}

func (n *Node) search(q *query, yield func(Entity) bool) bool {
	for _, child := range n.children {
		if q.match(child) && !yield(child) {
			return false
		}
		if q.recurse && !child.node().search(q, yield) {
			return false
		}
	}
	return true
}

// FindExact returns the single entity matching opts, or nil when there is
// no match or more than one.
func (n *Node) FindExact(opts ...FindOption) Entity {
	var found Entity
	count := 0
	for e := range n.Find(opts...) {
		found = e
		count++
		if count > 1 {
			return nil
		}
	}
	if count != 1 {
		return nil
	}
	return found
}

// FindAs is Find restricted to entities of concrete type T.
func FindAs[T Entity](from Entity, opts ...FindOption) iter.Seq[T] {
	return func(yield func(T) bool) {
		for e := range from.Find(opts...) {
			if t, ok := e.(T); ok && !yield(t) {
				return
			}
		}
	}
}
