// Package theme provides the styles used to render schema trees, both in
// printed output and in the interactive browser. Every visual element
// references a lipgloss.Style held in a Theme so that the look can be
// swapped with a single config value.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/habeanf/dbschema/internal/schema"
)

// Theme holds lipgloss.Style values for every element dbschema renders.
type Theme struct {
	Name string

	// Chroma style used to highlight CREATE statements.
	ChromaStyle string

	// Tree nodes
	Database   lipgloss.Style
	Namespace  lipgloss.Style
	Table      lipgloss.Style
	View       lipgloss.Style
	Column     lipgloss.Style
	ColumnType lipgloss.Style
	PrimaryKey lipgloss.Style
	ForeignKey lipgloss.Style
	Index      lipgloss.Style
	Enumerator lipgloss.Style

	// Browser chrome
	Border   lipgloss.Style
	Title    lipgloss.Style
	Selected lipgloss.Style
	Match    lipgloss.Style
	Label    lipgloss.Style
	Help     lipgloss.Style

	// General
	ErrorText   lipgloss.Style
	SuccessText lipgloss.Style
	MutedText   lipgloss.Style
}

// ForKind returns the node style for entities of kind k.
func (t *Theme) ForKind(k schema.Kind) lipgloss.Style {
	switch k {
	case schema.KindDatabase:
		return t.Database
	case schema.KindNamespace:
		return t.Namespace
	case schema.KindTable:
		return t.Table
	case schema.KindView:
		return t.View
	case schema.KindColumn:
		return t.Column
	case schema.KindForeignKey:
		return t.ForeignKey
	case schema.KindIndex:
		return t.Index
	}
	return t.MutedText
}

// palette is the handful of colors a theme is derived from.
type palette struct {
	border, title, database, namespace string
	table, view, text, muted           string
	key, fk, index                     string
	selFg, selBg, match                string
	errorFg, successFg                 string
}

func build(name, chroma string, p palette) *Theme {
	fg := func(c string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}
	return &Theme{
		Name:        name,
		ChromaStyle: chroma,

		Database:   fg(p.database).Bold(true),
		Namespace:  fg(p.namespace),
		Table:      fg(p.table),
		View:       fg(p.view),
		Column:     fg(p.text),
		ColumnType: fg(p.muted).Italic(true),
		PrimaryKey: fg(p.key).Bold(true),
		ForeignKey: fg(p.fk),
		Index:      fg(p.index),
		Enumerator: fg(p.muted).MarginRight(1),

		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(p.border)),
		Title: fg(p.title).Bold(true).PaddingLeft(1),
		Selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(p.selFg)).
			Background(lipgloss.Color(p.selBg)),
		Match: fg(p.match).Bold(true).Underline(true),
		Label: fg(p.title).Bold(true),
		Help:  fg(p.muted),

		ErrorText:   fg(p.errorFg).Bold(true),
		SuccessText: fg(p.successFg),
		MutedText:   fg(p.muted),
	}
}

func newDefaultTheme() *Theme {
	return build("default", "github-dark", palette{
		border: "#3C3C3C", title: "#569CD6", database: "#DCDCAA", namespace: "#9CDCFE",
		table: "#4EC9B0", view: "#C586C0", text: "#D4D4D4", muted: "#808080",
		key: "#DCDCAA", fk: "#CE9178", index: "#B5CEA8",
		selFg: "#FFFFFF", selBg: "#264F78", match: "#F44747",
		errorFg: "#F44747", successFg: "#6A9955",
	})
}

func newLightTheme() *Theme {
	return build("light", "github", palette{
		border: "#D4D4D4", title: "#0451A5", database: "#795E26", namespace: "#001080",
		table: "#267F99", view: "#AF00DB", text: "#1E1E1E", muted: "#A0A0A0",
		key: "#795E26", fk: "#A31515", index: "#098658",
		selFg: "#FFFFFF", selBg: "#0060C0", match: "#CD3131",
		errorFg: "#CD3131", successFg: "#008000",
	})
}

func newMonokaiTheme() *Theme {
	return build("monokai", "monokai", palette{
		border: "#49483E", title: "#F92672", database: "#E6DB74", namespace: "#66D9EF",
		table: "#A6E22E", view: "#AE81FF", text: "#F8F8F2", muted: "#75715E",
		key: "#E6DB74", fk: "#FD971F", index: "#AE81FF",
		selFg: "#F8F8F2", selBg: "#49483E", match: "#F92672",
		errorFg: "#F92672", successFg: "#A6E22E",
	})
}

// Themes maps theme names to their Theme definitions.
var Themes = map[string]*Theme{
	"default": newDefaultTheme(),
	"light":   newLightTheme(),
	"monokai": newMonokaiTheme(),
}

// Default returns the default dark theme.
func Default() *Theme {
	return Themes["default"]
}

// Get returns the theme identified by name. If no theme with that name exists
// it falls back to the default theme.
func Get(name string) *Theme {
	if t, ok := Themes[name]; ok {
		return t
	}
	return Default()
}
