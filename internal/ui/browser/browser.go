// Package browser is an interactive tree view over a catalog. Levels are
// loaded from the database the first time they are expanded.
package browser

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/habeanf/dbschema/internal/render"
	"github.com/habeanf/dbschema/internal/schema"
	"github.com/habeanf/dbschema/internal/theme"
)

// useSimpleIcons returns true when running inside Neovim's terminal emulator,
// which has emoji width rendering issues in libvterm.
var useSimpleIcons = os.Getenv("NVIM") != ""

// node is one visible row of the tree.
type node struct {
	entity   schema.Entity
	depth    int
	expanded bool
	loaded   bool
	children []*node
}

func (n *node) container() bool {
	switch n.entity.Kind() {
	case schema.KindDatabase, schema.KindNamespace, schema.KindTable, schema.KindView:
		return true
	}
	return false
}

// expandable is true until a load proves the node empty.
func (n *node) expandable() bool {
	return n.container() && (!n.loaded || len(n.children) > 0)
}

func (n *node) setChildren(kids []schema.Entity) {
	n.children = make([]*node, len(kids))
	for i, e := range kids {
		n.children[i] = &node{entity: e, depth: n.depth + 1}
	}
	n.loaded = true
}

func (n *node) child(e schema.Entity) *node {
	for _, c := range n.children {
		if schema.Equal(c.entity, e) {
			return c
		}
	}
	return nil
}

type loadedMsg struct {
	target   *node
	children []schema.Entity
	err      error
}

type searchMsg struct {
	matches []render.Match
	err     error
}

type level struct {
	entity   schema.Entity
	children []schema.Entity
}

type revealMsg struct {
	target schema.Entity
	levels []level
	err    error
}

// Model is the catalog browser.
type Model struct {
	ctx     context.Context
	db      *schema.Database
	theme   *theme.Theme
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	input   textinput.Model

	root   *node
	flat   []*node
	cursor int
	offset int
	width  int
	height int

	// busy is set while a command is reading from the database. The
	// catalog is not safe for concurrent use, so at most one runs.
	busy       bool
	searching  bool
	matches    []render.Match
	matchIdx   int
	showDetail bool
	status     string
	err        error
}

// New creates a browser rooted at db. The first level loads on Init.
func New(ctx context.Context, db *schema.Database, th *theme.Theme) Model {
	if th == nil {
		th = theme.Default()
	}
	s := spinner.New()
	s.Spinner = spinner.Dot

	in := textinput.New()
	in.Prompt = "/ "
	in.Placeholder = "fuzzy search"
	in.CharLimit = 128

	root := &node{entity: db, expanded: true}
	m := Model{
		ctx:     ctx,
		db:      db,
		theme:   th,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		spinner: s,
		input:   in,
		root:    root,
		busy:    true,
	}
	m.flatten()
	return m
}

// Init starts the spinner and loads the root level.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load(m.root))
}

func (m Model) load(n *node) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		kids, err := render.Expand(ctx, n.entity)
		return loadedMsg{target: n, children: kids, err: err}
	}
}

func (m Model) search(pattern string) tea.Cmd {
	ctx, db := m.ctx, m.db
	return func() tea.Msg {
		matches, err := render.Search(ctx, db, pattern)
		return searchMsg{matches: matches, err: err}
	}
}

// reveal loads every ancestor level of target so it can be selected.
func (m Model) reveal(target schema.Entity) tea.Cmd {
	var chain []schema.Entity
	for cur := target.Parent(); cur != nil; cur = cur.Parent() {
		chain = append(chain, cur)
	}
	slices.Reverse(chain)
	ctx := m.ctx
	return func() tea.Msg {
		msg := revealMsg{target: target}
		for _, e := range chain {
			kids, err := render.Expand(ctx, e)
			if err != nil {
				msg.err = err
				return msg
			}
			msg.levels = append(msg.levels, level{entity: e, children: kids})
		}
		return msg
	}
}

// Update handles browser messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.ensureVisible()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadedMsg:
		m.busy = false
		if msg.err != nil {
			m.fail("load "+msg.target.entity.Name(), msg.err)
			return m, nil
		}
		msg.target.setChildren(msg.children)
		msg.target.expanded = true
		m.status = fmt.Sprintf("%s: %d item(s)", render.Label(msg.target.entity), len(msg.children))
		m.err = nil
		m.flatten()
		return m, nil

	case searchMsg:
		m.busy = false
		if msg.err != nil {
			m.fail("search", msg.err)
			return m, nil
		}
		m.matches = msg.matches
		m.matchIdx = 0
		m.err = nil
		m.status = fmt.Sprintf("%d match(es)", len(msg.matches))
		return m, nil

	case revealMsg:
		m.busy = false
		if msg.err != nil {
			m.fail("reveal "+msg.target.Name(), msg.err)
			return m, nil
		}
		m.applyReveal(msg)
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearchInput(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m *Model) fail(op string, err error) {
	m.err = fmt.Errorf("%s: %w", op, err)
	m.status = ""
	m.db.Logger().Debug("browser operation failed", zap.String("op", op), zap.Error(err))
}

func (m Model) updateSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.searching = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		m.searching = false
		m.input.Blur()
		pattern := strings.TrimSpace(m.input.Value())
		if pattern == "" || m.busy {
			return m, nil
		}
		m.busy = true
		return m, m.search(pattern)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	if len(m.matches) > 0 {
		return m.updateMatches(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
			m.ensureVisible()
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.flat)-1 {
			m.cursor++
			m.ensureVisible()
		}
	case key.Matches(msg, m.keys.Top):
		m.cursor = 0
		m.offset = 0
	case key.Matches(msg, m.keys.Bottom):
		m.cursor = max(len(m.flat)-1, 0)
		m.ensureVisible()
	case key.Matches(msg, m.keys.Expand):
		return m, m.toggle()
	case key.Matches(msg, m.keys.Collapse):
		m.collapse()
	case key.Matches(msg, m.keys.Detail):
		m.showDetail = !m.showDetail
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		m.input.SetValue("")
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Refresh):
		return m, m.refresh()
	}
	return m, nil
}

func (m Model) updateMatches(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.matches = nil
		m.status = ""
	case key.Matches(msg, m.keys.Up):
		if m.matchIdx > 0 {
			m.matchIdx--
		}
	case key.Matches(msg, m.keys.Down):
		if m.matchIdx < len(m.matches)-1 {
			m.matchIdx++
		}
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Expand):
		if m.busy {
			return m, nil
		}
		target := m.matches[m.matchIdx].Entity
		m.matches = nil
		m.busy = true
		return m, m.reveal(target)
	}
	return m, nil
}

func (m *Model) toggle() tea.Cmd {
	if m.cursor >= len(m.flat) {
		return nil
	}
	n := m.flat[m.cursor]
	if !n.expandable() {
		return nil
	}
	if !n.loaded {
		if m.busy {
			return nil
		}
		m.busy = true
		return m.load(n)
	}
	n.expanded = !n.expanded
	m.flatten()
	return nil
}

func (m *Model) collapse() {
	if m.cursor >= len(m.flat) {
		return
	}
	n := m.flat[m.cursor]
	if n.expanded && n != m.root {
		n.expanded = false
		m.flatten()
		return
	}
	// Jump to the parent row.
	for i := m.cursor - 1; i >= 0; i-- {
		if m.flat[i].depth < n.depth {
			m.cursor = i
			m.ensureVisible()
			return
		}
	}
}

// refresh marks every kind dirty and reloads the tree from the root.
// Entities already loaded are kept and new ones are added. Dropped objects
// stay until the catalog is reopened.
func (m *Model) refresh() tea.Cmd {
	if m.busy {
		return nil
	}
	if b := m.db.Backend(); b != nil {
		for k := range b.Structure().Kinds() {
			m.db.SetDirty(k, true)
		}
	}
	m.root = &node{entity: m.db, expanded: true}
	m.cursor, m.offset = 0, 0
	m.flatten()
	m.busy = true
	m.status = "refreshing"
	return m.load(m.root)
}

func (m *Model) applyReveal(msg revealMsg) {
	n := m.root
	for i, lv := range msg.levels {
		if i > 0 {
			n = n.child(lv.entity)
			if n == nil {
				break
			}
		}
		if !n.loaded {
			n.setChildren(lv.children)
		}
		n.expanded = true
	}
	m.flatten()
	for i, row := range m.flat {
		if schema.Equal(row.entity, msg.target) {
			m.cursor = i
			break
		}
	}
	m.ensureVisible()
	m.status = render.Path(msg.target)
}

func (m *Model) flatten() {
	m.flat = nil
	m.flattenNode(m.root)
	if m.cursor >= len(m.flat) {
		m.cursor = len(m.flat) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) flattenNode(n *node) {
	m.flat = append(m.flat, n)
	if n.expanded {
		for _, c := range n.children {
			m.flattenNode(c)
		}
	}
}

// treeHeight is the number of rows available to the tree.
func (m Model) treeHeight() int {
	return max(m.height-6, 1)
}

func (m *Model) ensureVisible() {
	h := m.treeHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
}

// Selected returns the entity under the cursor.
func (m Model) Selected() schema.Entity {
	if m.cursor >= len(m.flat) {
		return nil
	}
	return m.flat[m.cursor].entity
}

// View renders the browser.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	th := m.theme
	innerW := max(m.width-2, 1)

	var b strings.Builder
	b.WriteString(th.Title.Render(fmt.Sprintf("dbschema · %s", m.db.Name())))
	b.WriteByte('\n')

	var body string
	if len(m.matches) > 0 {
		body = m.renderMatches(innerW)
	} else {
		body = m.renderTree(innerW)
	}
	b.WriteString(th.Border.Width(innerW).Render(body))
	b.WriteByte('\n')

	if m.showDetail && len(m.matches) == 0 {
		if d := m.detail(); d != "" {
			b.WriteString(d)
			b.WriteByte('\n')
		}
	}

	switch {
	case m.searching:
		b.WriteString(m.input.View())
	case m.busy:
		b.WriteString(m.spinner.View() + " " + th.MutedText.Render("loading"))
	case m.err != nil:
		b.WriteString(th.ErrorText.Render(m.err.Error()))
	default:
		b.WriteString(th.MutedText.Render(m.status))
	}
	b.WriteByte('\n')
	b.WriteString(th.Help.Render(m.help.View(m.keys)))
	return b.String()
}

func (m Model) renderTree(width int) string {
	end := min(m.offset+m.treeHeight(), len(m.flat))
	lines := make([]string, 0, end-m.offset)
	for i := m.offset; i < end; i++ {
		lines = append(lines, m.renderNode(m.flat[i], i == m.cursor, width))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderNode(n *node, selected bool, width int) string {
	th := m.theme
	indent := strings.Repeat("  ", n.depth)

	expand := "  "
	if n.expandable() {
		if n.expanded && n.loaded {
			expand = "▼ "
		} else {
			expand = "▶ "
		}
	}

	line := truncate(indent+expand+icon(n.entity.Kind())+render.Label(n.entity), width)
	if selected {
		return th.Selected.Render(line)
	}
	if c, ok := n.entity.(*schema.Column); ok && c.PrimaryKey {
		return th.PrimaryKey.Render(line)
	}
	return th.ForKind(n.entity.Kind()).Render(line)
}

func (m Model) renderMatches(width int) string {
	th := m.theme
	h := m.treeHeight()
	start := 0
	if m.matchIdx >= h {
		start = m.matchIdx - h + 1
	}
	end := min(start+h, len(m.matches))
	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		mt := m.matches[i]
		kind := th.MutedText.Render(fmt.Sprintf("%-10s", mt.Entity.Kind()))
		if i == m.matchIdx {
			lines = append(lines, th.Selected.Render(truncate(fmt.Sprintf("%-10s %s", mt.Entity.Kind(), mt.Path), width)))
			continue
		}
		lines = append(lines, kind+" "+render.HighlightMatch(mt, th))
	}
	return strings.Join(lines, "\n")
}

// detail describes the selected entity: the highlighted CREATE statement
// for relations, the label otherwise.
func (m Model) detail() string {
	e := m.Selected()
	if e == nil {
		return ""
	}
	th := m.theme
	var stmt string
	switch v := e.(type) {
	case *schema.Table:
		stmt = v.CreateStatement
	case *schema.View:
		stmt = v.CreateStatement
	}
	head := th.Label.Render(e.Kind().String()) + " " + render.Path(e)
	if e.Description() != "" {
		head += "\n" + th.MutedText.Render(e.Description())
	}
	if stmt == "" {
		return head + "\n" + render.Label(e)
	}
	return head + "\n" + render.SQL(stmt, th)
}

func icon(k schema.Kind) string {
	if useSimpleIcons {
		switch k {
		case schema.KindDatabase:
			return "■ "
		case schema.KindNamespace:
			return "▪ "
		case schema.KindTable:
			return "◆ "
		case schema.KindView:
			return "◇ "
		case schema.KindForeignKey:
			return "→ "
		case schema.KindIndex:
			return "# "
		}
		return "  "
	}
	switch k {
	case schema.KindDatabase:
		return "🗄 "
	case schema.KindNamespace:
		return "📁 "
	case schema.KindTable:
		return "📊 "
	case schema.KindView:
		return "📄 "
	case schema.KindForeignKey:
		return "🔗 "
	case schema.KindIndex:
		return "🔖 "
	}
	return "  "
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
