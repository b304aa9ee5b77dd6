package render

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/habeanf/dbschema/internal/schema"
	"github.com/habeanf/dbschema/internal/theme"
)

// DefaultSearchKinds are searched when Search is given no kinds.
var DefaultSearchKinds = []schema.Kind{
	schema.KindNamespace, schema.KindTable, schema.KindView, schema.KindColumn,
}

// Match is one fuzzy search hit.
type Match struct {
	Entity         schema.Entity
	Path           string
	Score          int
	MatchedIndexes []int
}

// candidates implements fuzzy.Source over entity paths.
type candidates []schema.Entity

func (c candidates) String(i int) string { return Path(c[i]) }
func (c candidates) Len() int            { return len(c) }

// Search fuzzy-matches pattern against the dotted path of every entity of
// the given kinds, best match first. The kinds are refreshed before
// matching.
func Search(ctx context.Context, db *schema.Database, pattern string, kinds ...schema.Kind) ([]Match, error) {
	if len(kinds) == 0 {
		kinds = DefaultSearchKinds
	}
	if err := db.Refresh(ctx, kinds...); err != nil {
		return nil, err
	}

	var pool candidates
	for e := range db.Find() {
		if slices.ContainsFunc(kinds, e.Kind().Is) {
			pool = append(pool, e)
		}
	}
	slices.SortFunc(pool, func(a, b schema.Entity) int {
		if c := strings.Compare(Path(a), Path(b)); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind(), b.Kind())
	})

	found := fuzzy.FindFrom(pattern, pool)
	out := make([]Match, len(found))
	for i, m := range found {
		out[i] = Match{
			Entity:         pool[m.Index],
			Path:           m.Str,
			Score:          m.Score,
			MatchedIndexes: m.MatchedIndexes,
		}
	}
	return out, nil
}

// HighlightMatch renders m.Path with the matched characters emphasized.
func HighlightMatch(m Match, th *theme.Theme) string {
	if th == nil || len(m.MatchedIndexes) == 0 {
		return m.Path
	}
	hit := make(map[int]bool, len(m.MatchedIndexes))
	for _, i := range m.MatchedIndexes {
		hit[i] = true
	}
	var b strings.Builder
	for i, r := range m.Path {
		if hit[i] {
			b.WriteString(th.Match.Render(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
