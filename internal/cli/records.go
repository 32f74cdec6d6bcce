package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"list-manager/internal/form"
)

func newAddCmd(app *App) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a record",
		Example: strings.TrimSpace(`
  listmanager add --set title="Call bank" --set dueDate=2026-05-01 --set tags=home,money
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer ws.Close()

			d := form.ToDraft(ws.sess.Schema(), nil)
			if err := applySets(d, sets); err != nil {
				return err
			}
			fields, err := ws.sess.FieldsFromDraft(d)
			if err != nil {
				return err
			}
			rec, err := ws.sess.Create(cmd.Context(), fields)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.ID)
			return ws.finish(cmd)
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Field assignment field=value (repeatable)")
	return cmd
}

func newEditCmd(app *App) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a record (a unique id prefix is enough)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(sets) == 0 {
				return fmt.Errorf("nothing to change: pass at least one --set")
			}
			ws, err := openWorkspace(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer ws.Close()

			id, err := ws.sess.Resolve(args[0])
			if err != nil {
				return err
			}
			rec, _ := ws.sess.Get(id)
			d := form.ToDraft(ws.sess.Schema(), &rec)
			if err := applySets(d, sets); err != nil {
				return err
			}
			fields, err := ws.sess.FieldsFromDraft(d)
			if err != nil {
				return err
			}
			if _, err := ws.sess.Update(cmd.Context(), id, fields); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return ws.finish(cmd)
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Field assignment field=value (repeatable); field= clears")
	return cmd
}

func newToggleCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id> [field]",
		Short: "Advance the status (or the given enum) or flip a bool field",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer ws.Close()

			id, err := ws.sess.Resolve(args[0])
			if err != nil {
				return err
			}
			field := ""
			if len(args) > 1 {
				field = args[1]
			}
			rec, err := ws.sess.Toggle(cmd.Context(), id, field)
			if err != nil {
				return err
			}
			if field == "" {
				field = ws.sess.Schema().StatusField
			}
			def, _ := ws.sess.Schema().Field(field)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s=%s\n", id, field, formatField(def, rec.Fields[field]))
			return ws.finish(cmd)
		},
	}
}

func newRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a record",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer ws.Close()

			id, err := ws.sess.Resolve(args[0])
			if err != nil {
				return err
			}
			ws.sess.Remove(cmd.Context(), id)
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return ws.finish(cmd)
		},
	}
}
