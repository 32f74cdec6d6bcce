package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"list-manager/internal/model"
)

func newSchemasCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas [name]",
		Short: "List built-in schemas or describe one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, name := range model.BuiltinSchemaNames() {
					s, err := model.LoadSchema(name)
					if err != nil {
						return err
					}
					marker := " "
					if name == app.Schema {
						marker = "*"
					}
					fmt.Fprintf(out, "%s %-12s %s (%d fields)\n", marker, name, s.Title, len(s.Fields))
				}
				return nil
			}

			s, err := model.LoadSchema(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %s\n", s.Name, s.Title)
			fmt.Fprintln(out, describeSchema(s))
			return nil
		},
	}
}

func describeSchema(s *model.Schema) string {
	rows := make([][]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		var notes []string
		if f.Required {
			notes = append(notes, "required")
		}
		if f.Name == s.StatusField {
			notes = append(notes, "status")
		}
		if f.Name == s.DueField {
			notes = append(notes, "due")
		}
		if f.Default != "" {
			notes = append(notes, "default "+f.Default)
		}
		rows = append(rows, []string{f.Name, string(f.Kind), strings.Join(f.Values, ", "), strings.Join(notes, ", ")})
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("Field", "Kind", "Values", "Notes").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Render()
}
