package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/habeanf/dbschema/internal/adapter"
	"github.com/habeanf/dbschema/internal/render"
	"github.com/habeanf/dbschema/internal/schema"
	"github.com/habeanf/dbschema/internal/theme"
	"github.com/habeanf/dbschema/internal/ui/browser"
)

func (c *cli) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show server version and default namespace",
		Args:  cobra.NoArgs,
		RunE: c.withDB(func(cmd *cobra.Command, db *schema.Database, args []string) error {
			ctx := cmd.Context()
			server, err := db.ServerInfo(ctx)
			if err != nil {
				return err
			}
			ns, err := db.DefaultNamespace(ctx)
			if err != nil {
				return err
			}
			def := "-"
			if ns != nil {
				def = ns.Name()
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "database:  %s\n", db.Name())
			fmt.Fprintf(out, "backend:   %s\n", backendName(db))
			fmt.Fprintf(out, "server:    %s\n", server)
			fmt.Fprintf(out, "namespace: %s\n", def)
			fmt.Fprintf(out, "session:   %s\n", db.Session())
			return nil
		}),
	}
}

func backendName(db *schema.Database) string {
	if b, ok := db.Backend().(adapter.Backend); ok {
		return b.Name()
	}
	return "-"
}

func (c *cli) tablesCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the default namespace",
		Args:  cobra.NoArgs,
		RunE: c.withDB(func(cmd *cobra.Command, db *schema.Database, args []string) error {
			return c.listRelations(cmd, db, schema.KindTable, all)
		}),
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "List tables of every namespace")
	return cmd
}

func (c *cli) viewsCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "views",
		Short: "List the views of the default namespace",
		Args:  cobra.NoArgs,
		RunE: c.withDB(func(cmd *cobra.Command, db *schema.Database, args []string) error {
			return c.listRelations(cmd, db, schema.KindView, all)
		}),
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "List views of every namespace")
	return cmd
}

func (c *cli) listRelations(cmd *cobra.Command, db *schema.Database, kind schema.Kind, all bool) error {
	ctx := cmd.Context()
	var found []schema.Entity
	if all {
		if err := db.Refresh(ctx, kind); err != nil {
			return err
		}
		for e := range db.Find(schema.OfKind(kind)) {
			found = append(found, e)
		}
	} else {
		var err error
		found, err = defaultRelations(ctx, db, kind)
		if err != nil {
			return err
		}
	}
	names := make([]string, len(found))
	for i, e := range found {
		names[i] = e.Name()
		if all {
			names[i] = render.Path(e)
		}
	}
	slices.Sort(names)
	out := cmd.OutOrStdout()
	for _, n := range names {
		fmt.Fprintln(out, n)
	}
	return nil
}

func defaultRelations(ctx context.Context, db *schema.Database, kind schema.Kind) ([]schema.Entity, error) {
	var out []schema.Entity
	if kind == schema.KindTable {
		seq, err := db.Tables(ctx)
		if err != nil {
			return nil, err
		}
		for t := range seq {
			out = append(out, t)
		}
		return out, nil
	}
	seq, err := db.Views(ctx)
	if err != nil {
		return nil, err
	}
	for v := range seq {
		out = append(out, v)
	}
	return out, nil
}

// findRelation resolves "name" or "namespace.name" to a table or view.
// Unqualified names are looked up in the default namespace first, then
// anywhere as long as the match is unique.
func findRelation(ctx context.Context, db *schema.Database, name string) (schema.Entity, error) {
	if err := db.Refresh(ctx, schema.KindNamespace, schema.KindTable, schema.KindView); err != nil {
		return nil, err
	}

	// A dotted name is tried as namespace.relation first; relation names
	// may contain dots themselves.
	if nsName, rel, ok := strings.Cut(name, "."); ok {
		if ns := db.FindExact(schema.OfKind(schema.KindNamespace), schema.Named(nsName)); ns != nil {
			if e := ns.FindExact(schema.OfKind(schema.KindRelation), schema.Named(rel), schema.Recurse(false)); e != nil {
				return e, nil
			}
		}
	}

	def, err := db.DefaultNamespace(ctx)
	if err != nil {
		return nil, err
	}
	var from schema.Entity = db
	if def != nil {
		from = def
	}
	if e := from.FindExact(schema.OfKind(schema.KindRelation), schema.Named(name), schema.Recurse(false)); e != nil {
		return e, nil
	}
	if e := db.FindExact(schema.OfKind(schema.KindRelation), schema.Named(name)); e != nil {
		return e, nil
	}
	return nil, fmt.Errorf("relation %q not found", name)
}

func findTable(ctx context.Context, db *schema.Database, name string) (*schema.Table, error) {
	e, err := findRelation(ctx, db, name)
	if err != nil {
		return nil, err
	}
	t, ok := e.(*schema.Table)
	if !ok {
		return nil, fmt.Errorf("%s is a %s, not a table", render.Path(e), e.Kind())
	}
	return t, nil
}

// printTable writes rows under headers as a bordered table.
func (c *cli) printTable(out io.Writer, headers []string, rows [][]string) {
	t := table.New().Headers(headers...).Rows(rows...)
	if th := c.theme(); th != nil {
		t = t.Border(lipgloss.RoundedBorder()).
			BorderStyle(th.MutedText).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return th.Label.Padding(0, 1)
				}
				return lipgloss.NewStyle().Padding(0, 1)
			})
	} else {
		t = t.Border(lipgloss.NormalBorder()).
			StyleFunc(func(row, col int) lipgloss.Style { return lipgloss.NewStyle().Padding(0, 1) })
	}
	fmt.Fprintln(out, t.String())
}

func (c *cli) columnsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "columns <table|view>",
		Short: "List the columns of a table or view",
		Args:  cobra.ExactArgs(1),
		RunE: c.withDB(func(cmd *cobra.Command, db *schema.Database, args []string) error {
			ctx := cmd.Context()
			rel, err := findRelation(ctx, db, args[0])
			if err != nil {
				return err
			}
			kids, err := render.Expand(ctx, rel)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, e := range kids {
				col, ok := e.(*schema.Column)
				if !ok {
					continue
				}
				rows = append(rows, []string{
					fmt.Sprint(col.Position),
					col.Name(),
					col.DataType,
					yesNo(col.Nullable),
					col.Default,
					yesNo(col.PrimaryKey),
				})
			}
			c.printTable(cmd.OutOrStdout(), []string{"#", "NAME", "TYPE", "NULL", "DEFAULT", "PK"}, rows)
			return nil
		}),
	}
}

func (c *cli) fksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fks <table>",
		Short: "List foreign keys declared on and referencing a table",
		Args:  cobra.ExactArgs(1),
		RunE: c.withDB(func(cmd *cobra.Command, db *schema.Database, args []string) error {
			ctx := cmd.Context()
			t, err := findTable(ctx, db, args[0])
			if err != nil {
				return err
			}
			fwd, err := t.ForeignKeys(ctx)
			if err != nil {
				return err
			}
			rev, err := t.ReverseForeignKeys(ctx)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, fk := range schema.Sorted(fwd) {
				rows = append(rows, fkRow("out", fk))
			}
			for _, fk := range schema.Sorted(rev) {
				rows = append(rows, fkRow("in", fk))
			}
			c.printTable(cmd.OutOrStdout(), []string{"DIR", "NAME", "FROM", "TO"}, rows)
			return nil
		}),
	}
}

func fkRow(dir string, fk *schema.ForeignKey) []string {
	from := render.Path(fk.Parent()) + "(" + strings.Join(fk.Columns, ", ") + ")"
	to := "?"
	if ft := fk.ForeignTable(); ft != nil {
		to = render.Path(ft)
	}
	to += "(" + strings.Join(fk.RefColumns, ", ") + ")"
	return []string{dir, fk.Name(), from, to}
}

func (c *cli) indexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes <table>",
		Short: "List the indexes of a table",
		Args:  cobra.ExactArgs(1),
		RunE: c.withDB(func(cmd *cobra.Command, db *schema.Database, args []string) error {
			ctx := cmd.Context()
			t, err := findTable(ctx, db, args[0])
			if err != nil {
				return err
			}
			seq, err := t.Indexes(ctx)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, ix := range schema.Sorted(seq) {
				rows = append(rows, []string{ix.Name(), strings.Join(ix.Columns, ", "), yesNo(ix.Unique), yesNo(ix.Primary)})
			}
			c.printTable(cmd.OutOrStdout(), []string{"NAME", "COLUMNS", "UNIQUE", "PRIMARY"}, rows)
			return nil
		}),
	}
}

func (c *cli) treeCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "tree [table|view]",
		Short: "Print the catalog, or one relation, as a tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: c.withDB(func(cmd *cobra.Command, db *schema.Database, args []string) error {
			ctx := cmd.Context()
			var root schema.Entity = db
			if len(args) == 1 {
				rel, err := findRelation(ctx, db, args[0])
				if err != nil {
					return err
				}
				root = rel
			} else if err := db.RefreshAll(ctx); err != nil {
				return err
			}
			out, err := render.Tree(ctx, root, render.TreeOptions{Depth: depth, Theme: c.theme()})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		}),
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "Levels to print below the root (0 = all)")
	return cmd
}

func (c *cli) searchCmd() *cobra.Command {
	var kinds []string
	var limit int
	cmd := &cobra.Command{
		Use:   "search <pattern>",
		Short: "Fuzzy-search entity names",
		Args:  cobra.ExactArgs(1),
		RunE: c.withDB(func(cmd *cobra.Command, db *schema.Database, args []string) error {
			var filter []schema.Kind
			for _, k := range kinds {
				kind, err := schema.ParseKind(k)
				if err != nil {
					return err
				}
				filter = append(filter, kind)
			}
			matches, err := render.Search(cmd.Context(), db, args[0], filter...)
			if err != nil {
				return err
			}
			if limit > 0 && len(matches) > limit {
				matches = matches[:limit]
			}
			th := c.theme()
			out := cmd.OutOrStdout()
			for _, m := range matches {
				fmt.Fprintf(out, "%-12s %s\n", m.Entity.Kind(), render.HighlightMatch(m, th))
			}
			return nil
		}),
	}
	cmd.Flags().StringSliceVarP(&kinds, "kind", "k", nil, "Restrict to kinds (namespace, table, view, column, fk, index)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum results (0 = all)")
	return cmd
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <table|view>",
		Short: "Print the definition of a table or view",
		Args:  cobra.ExactArgs(1),
		RunE: c.withDB(func(cmd *cobra.Command, db *schema.Database, args []string) error {
			rel, err := findRelation(cmd.Context(), db, args[0])
			if err != nil {
				return err
			}
			var stmt string
			switch v := rel.(type) {
			case *schema.Table:
				stmt = v.CreateStatement
			case *schema.View:
				stmt = v.CreateStatement
			}
			if stmt == "" {
				return fmt.Errorf("no definition available for %s", render.Path(rel))
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.SQL(stmt, c.theme()))
			return nil
		}),
	}
}

func (c *cli) browseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Explore the catalog interactively",
		Args:  cobra.NoArgs,
		RunE: c.withDB(func(cmd *cobra.Command, db *schema.Database, args []string) error {
			th := c.theme()
			if th == nil {
				th = theme.Default()
			}
			p := tea.NewProgram(browser.New(cmd.Context(), db, th), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("error running browser: %w", err)
			}
			return nil
		}),
	}
}

func backendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List backend identifiers and whether each is usable",
		Args:  cobra.NoArgs,
		// Needs neither config nor logger.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, name := range adapter.Default.Names() {
				status := "available"
				if _, err := adapter.Default.Resolve(name); err != nil {
					status = "unavailable: " + err.Error()
				}
				fmt.Fprintf(out, "%-12s %s\n", name, status)
			}
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print version information",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dbschema %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
