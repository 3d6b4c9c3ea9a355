package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ananyabot/ananya/internal/api"
	"github.com/ananyabot/ananya/internal/auth"
	"github.com/ananyabot/ananya/internal/config"
	"github.com/ananyabot/ananya/internal/core"
	"github.com/ananyabot/ananya/internal/metrics"
	"github.com/ananyabot/ananya/internal/store"
	"github.com/ananyabot/ananya/internal/telegram"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:          "ananya",
		Short:        "Ananya Telegram bot",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")
	root.PersistentFlags().String("db", "", "SQLite database path")
	_ = v.BindPFlag("LOG_LEVEL", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("DATABASE_URL", root.PersistentFlags().Lookup("db"))

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Telegram webhook and the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	serveCmd.Flags().String("port", "", "HTTP listen port")
	_ = v.BindPFlag("HTTP_PORT", serveCmd.Flags().Lookup("port"))

	webhookCmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}
	webhookCmd.AddCommand(
		&cobra.Command{
			Use:   "set",
			Short: "Register PUBLIC_URL/webhook with Telegram and publish the command menus",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(v)
				if err != nil {
					return err
				}
				webhookURL, err := telegram.WebhookURL(cfg.PublicURL)
				if err != nil {
					return err
				}
				bot, err := telegram.NewBot(cfg.TelegramBotToken, telegram.Options{})
				if err != nil {
					return err
				}
				secret := telegram.WebhookSecret(cfg.WebhookSecret, cfg.TelegramBotToken)
				if err := bot.SetWebhook(cmd.Context(), webhookURL, secret, cfg.AdminUserID); err != nil {
					return err
				}
				slog.Info("webhook registered", "url", webhookURL)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the Telegram webhook and drop pending updates",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(v)
				if err != nil {
					return err
				}
				bot, err := telegram.NewBot(cfg.TelegramBotToken, telegram.Options{})
				if err != nil {
					return err
				}
				if err := bot.DeleteWebhook(cmd.Context()); err != nil {
					return err
				}
				slog.Info("webhook deleted")
				return nil
			},
		},
	)

	root.AddCommand(serveCmd, webhookCmd)
	return root
}

// loadConfig reads the configuration and installs the process logger.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.LoadConfig(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	if cfg.LogLevel == "DEBUG" {
		slog.Debug("service starting in DEBUG mode")
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	m := metrics.New()

	// Initialize model clients
	llmService, err := core.NewLLMService(ctx, core.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiAPIBase,
	}, m)
	if err != nil {
		return err
	}
	defer llmService.Close()

	speechService := core.NewSpeechService(core.SpeechConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiTTSModel,
		BaseURL: cfg.GeminiAPIBase,
	})

	availability := core.NewAvailabilitySwitch(dbStore)
	personalities := core.NewPersonalityRegistry(dbStore)

	// The bot connects on the first webhook call, so a missing or bad token
	// degrades to 500 answers instead of a failed start.
	provider := telegram.NewProvider(func() (*telegram.App, error) {
		return telegram.BuildApp(telegram.AppDeps{
			Token: cfg.TelegramBotToken,
			Gate: core.GateConfig{
				AdminID:         cfg.AdminUserID,
				ChannelUsername: cfg.ChannelUsername,
				GroupUsername:   cfg.GroupUsername,
			},
			BroadcastDelay: cfg.BroadcastDelay,
			Availability:   availability,
			Users:          core.NewUserDirectory(dbStore, cfg.AdminUserID),
			Personalities:  personalities,
			History:        core.NewHistoryStore(dbStore),
			LLM:            llmService,
			Speech:         speechService,
			Metrics:        m,
		})
	})

	passwordHash, err := auth.PasswordHash(cfg.DashboardPassword)
	if err != nil {
		return fmt.Errorf("failed to hash dashboard password: %w", err)
	}
	if passwordHash == "" || cfg.JWTSecret == "" {
		slog.Warn("DASHBOARD_PASSWORD or JWT_SECRET is not set; admin API login is disabled")
	}

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(api.Deps{
		App: func() (api.BotApp, error) {
			app, err := provider.Get()
			if err != nil {
				return nil, err
			}
			return app, nil
		},
		Availability:  availability,
		Personalities: personalities,
		Stats:         dbStore,
		Users:         dbStore,
		DB:            dbStore,
		Metrics:       m,
		PasswordHash:  passwordHash,
		JWTSecret:     cfg.JWTSecret,
		PublicURL:     cfg.PublicURL,
		AdminID:       cfg.AdminUserID,
		Workers:       int64(cfg.WebhookWorkers),
		WebhookSecret: telegram.WebhookSecret(cfg.WebhookSecret, cfg.TelegramBotToken),
	})
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // the webhook handler lifts this for its own requests
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("server exiting gracefully")
	return nil
}
