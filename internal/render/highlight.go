package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/habeanf/dbschema/internal/theme"
)

// sqlLexer prefers the PostgreSQL dialect, which covers the DDL every
// backend returns.
var sqlLexer = func() chroma.Lexer {
	l := lexers.Get("PostgreSQL")
	if l == nil {
		l = lexers.Get("SQL")
	}
	if l == nil {
		l = lexers.Fallback
	}
	return chroma.Coalesce(l)
}()

// SQL highlights a statement using the chroma style named by th. Newlines
// are preserved. A nil theme returns sql unchanged.
func SQL(sql string, th *theme.Theme) string {
	if th == nil {
		return sql
	}
	it, err := sqlLexer.Tokenise(nil, sql)
	if err != nil {
		return sql
	}
	palette := styles.Get(th.ChromaStyle)

	var b strings.Builder
	b.Grow(len(sql) * 2)
	for _, tok := range it.Tokens() {
		if tok.Value == "" {
			continue
		}
		style, ok := styleFor(palette.Get(tok.Type))
		if !ok {
			b.WriteString(tok.Value)
			continue
		}
		// Style each line separately so newlines are emitted as-is.
		lines := strings.Split(tok.Value, "\n")
		for i, line := range lines {
			if line != "" {
				b.WriteString(style.Render(line))
			}
			if i < len(lines)-1 {
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

// styleFor converts a chroma style entry to lipgloss. ok is false when the
// entry sets nothing worth rendering.
func styleFor(e chroma.StyleEntry) (lipgloss.Style, bool) {
	if !e.Colour.IsSet() && e.Bold != chroma.Yes && e.Italic != chroma.Yes {
		return lipgloss.Style{}, false
	}
	s := lipgloss.NewStyle()
	if e.Colour.IsSet() {
		s = s.Foreground(lipgloss.Color(e.Colour.String()))
	}
	if e.Bold == chroma.Yes {
		s = s.Bold(true)
	}
	if e.Italic == chroma.Yes {
		s = s.Italic(true)
	}
	return s, true
}
