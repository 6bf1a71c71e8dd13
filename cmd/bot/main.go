package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"lesson_planner_bot/internal/app"
	"lesson_planner_bot/internal/infra/api"
	"lesson_planner_bot/internal/infra/config"
	idb "lesson_planner_bot/internal/infra/database"
	"lesson_planner_bot/internal/infra/logger"
	"lesson_planner_bot/internal/infra/metrics"
	"lesson_planner_bot/internal/infra/scheduler"
	"lesson_planner_bot/internal/infra/telegram"
)

func main() {
	fmt.Println("Lesson Planner Bot starting...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"api_base":    cfg.APIBaseURL,
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	if err := idb.EnsureSchema(ctx, db); err != nil {
		mainLogger.WithError(err).Fatal("Could not prepare database schema")
	}
	mainLogger.Info("Database connection established successfully")

	// Initialize Repositories and stores
	base := logrus.NewEntry(logger.Log)
	clock := clockwork.NewRealClock()
	sessionRepo := idb.NewPostgresSessionRepository(db)
	workspaceRepo := idb.NewPostgresWorkspaceRepository(db)
	sessions := app.NewSessionStore(sessionRepo, clock, base)
	workspaces := app.NewWorkspaceRegistry(workspaceRepo, clock, base)

	// Initialize services
	gateway := app.NewGateway(api.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.APITimeout,
	}, sessions, base)
	accounts := app.NewAccountService(gateway, sessions, workspaces, clock, base)
	planner := app.NewPlannerService(gateway, accounts, workspaces, clock, app.PlannerConfig{
		AskRatePerMinute: cfg.AskRatePerMinute,
	}, base)

	// Initialize SessionScheduler
	sessionScheduler := scheduler.NewSessionScheduler(accounts, scheduler.Config{
		CronSpecRefresh: cfg.CronSpecSessionRefresh,
		CronSpecPurge:   cfg.CronSpecSessionPurge,
		RefreshWindow:   cfg.SessionRefreshWindow,
		Retention:       cfg.SessionRetention,
	}, base)
	if err := sessionScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	// Initialize Telegram Bot
	botLogger := logger.Component("telebot")
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := botLogger.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID).WithField("chat_id", c.Chat().ID)
			}
			entry.Error("Unhandled bot error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create Telegram bot")
	}
	client := telegram.NewTelebotAdapter(bot)
	gateway.OnSessionExpired(telegram.SessionExpiredNotifier(client, logger.Component("notifier")))

	// Register Handlers
	handlers := telegram.NewHandlers(ctx, accounts, planner, client, clock, cfg.StreamEditInterval, base)
	telegram.RegisterBotCommands(bot, handlers, botLogger)
	mainLogger.Info("Bot command handlers registered")

	if cfg.MetricsAddr != "" {
		go metrics.Serve(ctx, cfg.MetricsAddr, logger.Component("metrics"))
	}

	mainLogger.Info("Application setup complete. Bot and Scheduler are starting...")

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	go bot.Start()

	<-ctx.Done() // Block until a signal is received

	mainLogger.Info("Shutting down application...")
	bot.Stop()
	sessionScheduler.Stop()
	mainLogger.Info("Application shut down gracefully")
}
