package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"list-manager/internal/config"
	"list-manager/internal/form"
	"list-manager/internal/model"
	"list-manager/internal/mutate"
	"list-manager/internal/repository"
	"list-manager/internal/service"
	"list-manager/internal/store"
)

// App holds the persistent flags shared by every command.
type App struct {
	Schema  string
	DB      string
	Owner   string
	Verbose bool
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "listmanager",
		Short:        "Schema-driven list manager: Telegram bot and terminal CLI",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Run the Telegram bot
  TELEGRAM_TOKEN=... listmanager bot

  # Script the same list from a terminal
  listmanager add --set title="Buy milk" --set priority=high
  listmanager list --filter status=pending --sort dueDate
  listmanager --schema leads export --format csv
`),
	}

	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if !app.Verbose && cmd.Name() != "bot" {
			log.SetOutput(io.Discard)
		}
	}

	cmd.PersistentFlags().StringVar(&app.Schema, "schema", envOr("APP_SCHEMA", "todo"), "Built-in schema name or path to a YAML schema")
	cmd.PersistentFlags().StringVar(&app.DB, "db", envOr("DATABASE_URL", "list_manager.db"), "SQLite database path")
	cmd.PersistentFlags().StringVar(&app.Owner, "owner", envOr("LIST_OWNER", "cli"), "List owner (Telegram users are tg<id>)")
	cmd.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "Log domain events to stderr")

	cmd.AddCommand(newBotCmd(app))
	cmd.AddCommand(newListCmd(app))
	cmd.AddCommand(newAddCmd(app))
	cmd.AddCommand(newEditCmd(app))
	cmd.AddCommand(newToggleCmd(app))
	cmd.AddCommand(newRemoveCmd(app))
	cmd.AddCommand(newExportCmd(app))
	cmd.AddCommand(newImportCmd(app))
	cmd.AddCommand(newSchemasCmd(app))
	cmd.AddCommand(newOwnersCmd(app))
	cmd.AddCommand(newClearCmd(app))

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		return 1
	}
	return 0
}

// workspace is an opened database plus the owner's session.
type workspace struct {
	db    *gorm.DB
	slots *repository.SlotRepository
	lists *service.ListService
	sess  *service.Session
}

// openLists opens the database without loading any list.
func openLists(app *App) (*workspace, error) {
	schema, err := model.LoadSchema(app.Schema)
	if err != nil {
		return nil, err
	}
	quota, err := config.SlotQuota()
	if err != nil {
		return nil, err
	}
	db, err := repository.NewDB(app.DB)
	if err != nil {
		return nil, err
	}
	slots := repository.NewSlotRepository(db, quota)
	lists := service.NewListService(store.New(slots, schema), mutate.New(schema), nil)
	return &workspace{db: db, slots: slots, lists: lists}, nil
}

func openWorkspace(ctx context.Context, app *App) (*workspace, error) {
	ws, err := openLists(app)
	if err != nil {
		return nil, err
	}
	ws.sess = ws.lists.Open(ctx, app.Owner)
	return ws, nil
}

func (w *workspace) Close() {
	if sqlDB, err := w.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// finish prints pending notices to stderr. Persistence notices fail the command
// since the change did not reach the database.
func (w *workspace) finish(cmd *cobra.Command) error {
	var failed bool
	for _, n := range w.sess.Notices() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", n.Text)
		if n.Kind == service.NoticePersistence {
			failed = true
		}
	}
	if failed {
		return errors.New("changes were not saved")
	}
	return nil
}

// applySets overlays field=value assignments onto a draft.
func applySets(d form.Draft, sets []string) error {
	for _, s := range sets {
		name, value, ok := strings.Cut(s, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("expected field=value, got %q", s)
		}
		d[name] = strings.TrimSpace(value)
	}
	return nil
}

func envOr(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}
