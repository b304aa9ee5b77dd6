package render

import (
	"context"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/habeanf/dbschema/internal/schema"
	"github.com/habeanf/dbschema/internal/theme"
)

// TreeOptions configures Tree.
type TreeOptions struct {
	// Depth limits how many levels below the root are printed. Zero
	// means no limit.
	Depth int
	// Theme styles the output. Nil prints plain text.
	Theme *theme.Theme
}

// Tree renders root and its descendants, loading each level on demand.
func Tree(ctx context.Context, root schema.Entity, opts TreeOptions) (string, error) {
	p := printer{ctx: ctx, opts: opts}
	node, err := p.build(root, 0)
	if err != nil {
		return "", err
	}
	if t, ok := node.(*tree.Tree); ok {
		return t.String(), nil
	}
	return node.(string), nil
}

type printer struct {
	ctx  context.Context
	opts TreeOptions
}

func (p printer) style(e schema.Entity) lipgloss.Style {
	th := p.opts.Theme
	if th == nil {
		return lipgloss.NewStyle()
	}
	if c, ok := e.(*schema.Column); ok && c.PrimaryKey {
		return th.PrimaryKey
	}
	return th.ForKind(e.Kind())
}

// build returns the rendered label of a leaf, or a subtree.
func (p printer) build(e schema.Entity, depth int) (any, error) {
	label := p.style(e).Render(Label(e))
	if p.opts.Depth > 0 && depth >= p.opts.Depth {
		return label, nil
	}
	kids, err := Expand(p.ctx, e)
	if err != nil {
		return nil, err
	}
	if len(kids) == 0 {
		return label, nil
	}

	t := tree.Root(label)
	if p.opts.Theme != nil {
		t = t.EnumeratorStyle(p.opts.Theme.Enumerator)
	}
	for _, kid := range kids {
		child, err := p.build(kid, depth+1)
		if err != nil {
			return nil, err
		}
		t = t.Child(child)
	}
	return t, nil
}
