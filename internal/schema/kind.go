package schema

import (
	"fmt"
	"slices"
	"strings"
)

// Kind identifies the variant of an Entity.
type Kind int

const (
	KindDatabase Kind = iota
	KindNamespace
	KindTable
	KindView
	KindColumn
	KindForeignKey
	KindIndex

	// KindRelation is abstract: it never appears on an entity, but as a
	// filter it matches both tables and views.
	KindRelation
)

var kindNames = map[Kind]string{
	KindDatabase:   "database",
	KindNamespace:  "namespace",
	KindTable:      "table",
	KindView:       "view",
	KindColumn:     "column",
	KindForeignKey: "foreign key",
	KindIndex:      "index",
	KindRelation:   "relation",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Is reports whether an entity of kind k satisfies a filter for target.
func (k Kind) Is(target Kind) bool {
	if target == KindRelation {
		return k == KindTable || k == KindView || k == KindRelation
	}
	return k == target
}

// ParseKind returns the Kind named s. Matching is case-insensitive and
// accepts "fk" and "foreign_key" for foreign keys.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "fk", "foreign_key", "foreignkey":
		return KindForeignKey, nil
	case "schema":
		return KindNamespace, nil
	}
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}

// KindSet is a set of kinds.
type KindSet map[Kind]struct{}

// NewKindSet returns a set holding kinds.
func NewKindSet(kinds ...Kind) KindSet {
	s := make(KindSet, len(kinds))
	for _, k := range kinds {
		s[k] = struct{}{}
	}
	return s
}

func (s KindSet) Has(k Kind) bool {
	_, ok := s[k]
	return ok
}

func (s KindSet) Add(k Kind) { s[k] = struct{}{} }

func (s KindSet) Remove(k Kind) { delete(s, k) }

// Slice returns the members in ascending order.
func (s KindSet) Slice() []Kind {
	out := make([]Kind, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (s KindSet) String() string {
	parts := make([]string, 0, len(s))
	for _, k := range s.Slice() {
		parts = append(parts, k.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Structure describes which kinds a backend nests under which. It seeds
// the dirty set of a new Database and is not enforced on AddChild.
type Structure []StructureNode

// StructureNode is one level of a Structure.
type StructureNode struct {
	Kind     Kind
	Children Structure
}

// Kinds flattens the structure into the set of kinds it mentions.
func (s Structure) Kinds() KindSet {
	set := KindSet{}
	s.collect(set)
	return set
}

func (s Structure) collect(set KindSet) {
	for _, n := range s {
		set.Add(n.Kind)
		n.Children.collect(set)
	}
}
