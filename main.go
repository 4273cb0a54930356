package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pdbot/internal/api"
	"pdbot/internal/config"
	"pdbot/internal/conversation"
	"pdbot/internal/dedup"
	"pdbot/internal/logging"
	"pdbot/internal/metrics"
	"pdbot/internal/models"
	"pdbot/internal/notifier"
	"pdbot/internal/redis"
	"pdbot/internal/service/ai"
	"pdbot/internal/service/bot"
	"pdbot/internal/service/fetcher"
	"pdbot/internal/service/pincode"
	"pdbot/internal/service/records"
	"pdbot/internal/storage"
	"pdbot/internal/worker"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 15 * time.Second
	// minimum timeout for outbound sends, which may carry whole files
	sendTimeout = 5 * time.Minute
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "pdbot",
		Short:        "WhatsApp and Telegram webhook bot",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("config", "", "Config file path (default $PDBOT_CONFIG or config.json).")
	cmd.AddCommand(newServeCmd(), newSetWebhookCmd())
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("PDBOT_CONFIG")
	}
	return config.Load(path)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.BasicConfig.LogLevel, cfg.BasicConfig.DevLog)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	dbType := os.Getenv("PDBOT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	logger.Info("opening database", zap.String("driver", dbType))
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	b := cfg.BasicConfig
	var rdb *redis.Client
	if b.SessionBackend == config.SessionBackendRedis || b.DedupBackend == config.SessionBackendRedis {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			return fmt.Errorf("create redis client: %w", err)
		}
		defer rdb.Close()
	}

	collector := metrics.New()
	httpClient := &http.Client{Timeout: max(b.HTTPClientTimeout(), sendTimeout)}

	registry := notifier.NewRegistry(collector)
	if cfg.UltraMsgEnabled() {
		registry.Register(models.PlatformWhatsApp, notifier.NewUltraMsg(cfg.UltraMsg.BaseURL, cfg.UltraMsg.InstanceID, cfg.UltraMsg.Token, httpClient, logger))
	} else {
		logger.Warn("ultramsg not configured, whatsapp replies disabled")
	}
	if cfg.TelegramEnabled() {
		tg, err := newTelegramBot(cfg, httpClient)
		if err != nil {
			return fmt.Errorf("init telegram bot: %w", err)
		}
		registry.Register(models.PlatformTelegram, notifier.NewTelegram(tg))
	} else {
		logger.Warn("telegram not configured, telegram replies disabled")
	}

	store := records.NewStore(db, dbType)
	allocator := pincode.NewAllocator(store,
		pincode.WithLength(b.CodeLength),
		pincode.WithMaxAttempts(b.CodeMaxAttempts),
		pincode.WithWidenAfter(b.CodeWidenAfter),
	)

	fetch, err := fetcher.New(nil, b.TempDir, b.HTTPClientTimeout(), logger)
	if err != nil {
		return fmt.Errorf("init fetcher: %w", err)
	}
	fetch.StartTempCleaner(ctx, fetcher.DefaultTempCleanupInterval, fetcher.DefaultTempFileTTL)

	var sessions conversation.SessionStore
	if b.SessionBackend == config.SessionBackendRedis {
		sessions = conversation.NewRedisStore(rdb, b.SessionIdle())
	} else {
		mem := conversation.NewMemoryStore(b.SessionIdle(), logger)
		mem.StartSweeper(ctx, conversation.DefaultSweepInterval)
		sessions = mem
	}

	var deduper dedup.Deduper
	if b.DedupBackend == config.SessionBackendRedis {
		deduper = dedup.NewRedis(rdb, b.Dedup())
	} else {
		mem := dedup.NewMemory(b.Dedup(), dedup.DefaultPerSender, logger)
		mem.StartCleaner(ctx, time.Minute)
		deduper = mem
	}

	deps := conversation.Deps{
		Store:     sessions,
		Notifiers: registry,
		Minter:    allocator,
		Records:   store,
		Fetcher:   fetch,
		Video:     fetcher.NewYouTube(fetch),
		Observer:  collector,
		Logger:    logger,
	}
	shared := conversation.NewSharedFiles(store, registry, fetch, b.MaxFileBytes, logger)
	aiService, err := ai.NewService(ctx, cfg, shared, logger)
	switch {
	case err == nil:
		deps.AI = aiService
	case errors.Is(err, ai.ErrNotConfigured):
		logger.Warn("ai provider not configured, ask flow disabled")
	default:
		return fmt.Errorf("init ai service: %w", err)
	}
	engine, err := conversation.New(deps, b.MaxFileBytes)
	if err != nil {
		return err
	}

	botService := bot.NewService(deduper, engine, registry, bot.NewKeywords(cfg.Replies), logger,
		bot.WithMarker(cfg.Marker),
		bot.WithObserver(collector),
	)

	dispatcher := worker.NewDispatcher(b.Workers, b.Workers, b.QueueSize, 0, logger)
	defer dispatcher.Stop()

	if !b.DevLog {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(botService, dispatcher, collector, b.WebhookPath, b.WebhookSecret, logger)
	srv := &http.Server{
		Addr:              b.ServerAddress,
		Handler:           api.NewRouter(handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("webhook_path", b.WebhookPath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	return nil
}

func newTelegramBot(cfg *config.Config, client *http.Client) (*tgbotapi.BotAPI, error) {
	endpoint := cfg.Telegram.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return tgbotapi.NewBotAPIWithClient(cfg.Telegram.BotToken, endpoint, client)
}

func newSetWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-webhook",
		Short: "Register the Telegram webhook URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.TelegramEnabled() {
				return errors.New("telegram bot_token is not configured")
			}
			target, _ := cmd.Flags().GetString("url")
			if target == "" {
				target = cfg.Telegram.WebhookURL
			}
			if target == "" {
				return errors.New("--url is required")
			}
			target, err = webhookURL(target, cfg.BasicConfig.WebhookSecret)
			if err != nil {
				return err
			}

			tg, err := newTelegramBot(cfg, &http.Client{Timeout: cfg.BasicConfig.HTTPClientTimeout()})
			if err != nil {
				return err
			}
			wh, err := tgbotapi.NewWebhook(target)
			if err != nil {
				return fmt.Errorf("build webhook: %w", err)
			}
			if _, err := tg.Request(wh); err != nil {
				return fmt.Errorf("set webhook: %w", err)
			}
			info, err := tg.GetWebhookInfo()
			if err != nil {
				return fmt.Errorf("get webhook info: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "webhook set: pending=%d last_error=%q\n", info.PendingUpdateCount, info.LastErrorMessage)
			return nil
		},
	}
	cmd.Flags().String("url", "", "Public URL of the /telegram/webhook endpoint.")
	return cmd
}

// webhookURL appends the shared secret as a query parameter.
func webhookURL(raw, secret string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid webhook url %q", raw)
	}
	if secret != "" {
		q := u.Query()
		q.Set("secret", secret)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
