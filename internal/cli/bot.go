package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"list-manager/internal/backup"
	"list-manager/internal/bot"
	"list-manager/internal/config"
	"list-manager/internal/metrics"
	"list-manager/internal/model"
	"list-manager/internal/mutate"
	"list-manager/internal/repository"
	"list-manager/internal/service"
	"list-manager/internal/store"
	"list-manager/internal/suggest"
)

func newBotCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot with scheduled reports and backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("schema") {
				cfg.Schema = app.Schema
			}
			if cmd.Flags().Changed("db") {
				cfg.DatabaseURL = app.DB
			}
			if err := cfg.RequireTelegram(); err != nil {
				return err
			}
			return runBot(cmd.Context(), cfg)
		},
	}
}

func runBot(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	schema, err := model.LoadSchema(cfg.Schema)
	if err != nil {
		return err
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	m := metrics.New()
	userRepo := repository.NewUserRepository(db)
	slotRepo := repository.NewSlotRepository(db, cfg.SlotQuota)

	lists := service.NewListService(store.New(slotRepo, schema), mutate.New(schema), m)
	reminderSvc := service.NewReminderService(lists)
	suggestSvc := service.NewSuggestService(
		suggest.NewService(suggest.NewHTTPClient(cfg.SuggestURL, cfg.SuggestAPIKey, cfg.SuggestModel)), m)

	telegramBot, err := bot.New(cfg.TelegramToken, userRepo, lists, reminderSvc, suggestSvc)
	if err != nil {
		return err
	}

	scheduler := service.NewSchedulerService(ctx, time.Local)
	jobs := make(map[string]cron.EntryID)
	if cfg.ReportInterval > 0 {
		id, err := scheduler.ScheduleInterval("reports", cfg.ReportInterval, func(jobCtx context.Context) {
			if err := telegramBot.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("report: %v", err)
			}
		})
		if err != nil {
			return err
		}
		jobs["reports"] = id
	}
	if cfg.BackupAt != "" {
		sink, err := backup.Open(ctx, cfg.Backup)
		if err != nil {
			return err
		}
		backupSvc := service.NewBackupService(lists, userRepo, sink, m)
		id, err := scheduler.ScheduleDaily("backup", cfg.BackupAt, func(jobCtx context.Context) {
			if _, err := backupSvc.Run(jobCtx, time.Now()); err != nil {
				log.Printf("backup: %v", err)
			}
		})
		if err != nil {
			return err
		}
		jobs["backup via "+sink.Driver()] = id
	}
	scheduler.Start()
	defer scheduler.Stop()
	for name, id := range jobs {
		log.Printf("[info] job %s scheduled, next run at %s", name, scheduler.Next(id).Format(time.RFC3339))
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(m), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Printf("[info] metrics listening on %s", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Printf("List manager bot started (schema %s).", schema.Name)
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Println("Shutdown complete.")
	return nil
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
