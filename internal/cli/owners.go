package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"list-manager/internal/store"
)

func newOwnersCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "owners",
		Short: "List owners that have a stored list for the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openLists(app)
			if err != nil {
				return err
			}
			defer ws.Close()

			prefix := store.RecordsKey(ws.lists.Schema().Name, "")
			keys, err := ws.slots.Keys(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimPrefix(key, prefix))
			}
			return nil
		},
	}
}

func newClearCmd(app *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the owner's whole list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete the %s list of %s without --yes", app.Schema, app.Owner)
			}
			ws, err := openLists(app)
			if err != nil {
				return err
			}
			defer ws.Close()

			if err := ws.lists.Clear(cmd.Context(), app.Owner); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", app.Owner)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}
