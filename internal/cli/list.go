package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"list-manager/internal/model"
	"list-manager/internal/view"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	doneStyle   = cellStyle.Faint(true)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

const maxCellWidth = 40

func newListCmd(app *App) *cobra.Command {
	var (
		filters []string
		search  string
		sortKey string
		desc    bool
		compact bool
		fullIDs bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show records as a table",
		Example: strings.TrimSpace(`
  listmanager list --filter status=pending,in_progress --search bank
  listmanager list --sort priority --desc
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer ws.Close()

			sess := ws.sess
			for _, expr := range filters {
				f, err := view.ParseFilter(expr)
				if err != nil {
					return err
				}
				if err := sess.SetFilter(f); err != nil {
					return err
				}
			}
			sess.SetSearch(search)
			if sortKey != "" {
				if err := sess.SetSort(sortKey, desc); err != nil {
					return err
				}
			}

			res := sess.View()
			out := cmd.OutOrStdout()
			switch {
			case res.NoData():
				fmt.Fprintln(out, "The list is empty.")
			case res.NoMatches():
				fmt.Fprintln(out, "Nothing matches the current filters.")
			default:
				fmt.Fprintln(out, renderTable(sess.Schema(), res.Items, compact, fullIDs))
				fmt.Fprintf(out, "%d of %d\n", len(res.Items), res.Total)
			}
			return ws.finish(cmd)
		},
	}
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Filter field=value1,value2 (repeatable, combined with AND)")
	cmd.Flags().StringVar(&search, "search", "", "Case-insensitive text search over searchable fields")
	cmd.Flags().StringVar(&sortKey, "sort", "", "Sort key: a field name, createdAt or updatedAt")
	cmd.Flags().BoolVar(&desc, "desc", false, "Sort descending")
	cmd.Flags().BoolVar(&compact, "compact", false, "Show only the title and status columns")
	cmd.Flags().BoolVar(&fullIDs, "full-ids", false, "Print full record ids")
	return cmd
}

// renderTable lays records out as a bordered table in schema field order.
func renderTable(schema *model.Schema, items model.Collection, compact, fullIDs bool) string {
	cols := schema.Fields
	if compact {
		cols = []model.FieldDef{schema.TitleField()}
		if status := schema.Status(); status.Name != "" {
			cols = append(cols, status)
		}
	}

	headers := make([]string, 0, len(cols)+1)
	headers = append(headers, "ID")
	for _, f := range cols {
		headers = append(headers, f.DisplayName())
	}

	rows := make([][]string, 0, len(items))
	done := make(map[int]bool)
	for i, rec := range items {
		id := rec.ID
		if !fullIDs && len(id) > 8 {
			id = id[:8]
		}
		row := make([]string, 0, len(cols)+1)
		row = append(row, id)
		for _, f := range cols {
			row = append(row, truncate(formatField(f, rec.Fields[f.Name]), maxCellWidth))
		}
		rows = append(rows, row)
		done[i] = schema.IsDone(rec.Text(schema.StatusField))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case done[row]:
				return doneStyle
			default:
				return cellStyle
			}
		})
	return t.Render()
}

// formatField renders a value, marking enum values the schema does not declare.
func formatField(f model.FieldDef, v any) string {
	text := model.FormatValue(f, v)
	if f.Kind == model.KindEnum && text != "" && !f.Allows(text) {
		return "? " + text
	}
	return text
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
