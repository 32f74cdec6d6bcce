package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"list-manager/internal/service"
)

func newExportCmd(app *App) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the whole list as JSON or CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer ws.Close()

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			if err := ws.sess.Export(w, format); err != nil {
				return err
			}
			return ws.finish(cmd)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", service.FormatJSON, "Output format (json|csv)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func newImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Replace the whole list with records from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}

			ws, err := openWorkspace(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer ws.Close()

			n, err := ws.sess.Import(cmd.Context(), r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records\n", n)
			return ws.finish(cmd)
		},
	}
}
