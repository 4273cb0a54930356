package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"pdbot/internal/logging"
	"pdbot/internal/metrics"
	"pdbot/internal/models"
	"pdbot/internal/service/bot"
	"pdbot/internal/worker"
)

const TelegramWebhookPath = "/telegram/webhook"

// MessageHandler runs the inbound pipeline for one message.
type MessageHandler interface {
	Handle(ctx context.Context, msg models.InboundMessage) (bot.Result, error)
}

// Executor serializes work per sender.
type Executor interface {
	Submit(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Handler wires webhook routes to the bot service.
type Handler struct {
	bot         MessageHandler
	executor    Executor
	metrics     *metrics.Collector
	webhookPath string
	secret      string
	logger      *zap.Logger
}

// NewHandler constructs a Handler instance. collector may be nil.
func NewHandler(b MessageHandler, executor Executor, collector *metrics.Collector, webhookPath, secret string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		bot:         b,
		executor:    executor,
		metrics:     collector,
		webhookPath: webhookPath,
		secret:      secret,
		logger:      logger.Named("api"),
	}
}

// NewRouter builds the gin engine with logging, recovery and JSON errors
// for unknown routes and methods.
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(logging.GinLogger(logger), gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}))
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.home)
	router.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	wa := router.Group(h.webhookPath)
	wa.GET("", h.live)
	wa.POST("", h.countRequests(models.PlatformWhatsApp), requireSecret(h.secret), h.whatsAppWebhook)

	tg := router.Group(TelegramWebhookPath)
	tg.GET("", h.live)
	tg.POST("", h.countRequests(models.PlatformTelegram), requireSecret(h.secret), h.telegramWebhook)
}

func (h *Handler) home(c *gin.Context) {
	c.String(http.StatusOK, "🚀 Bot is running!")
}

func (h *Handler) live(c *gin.Context) {
	c.String(http.StatusOK, "Webhook is live")
}

func (h *Handler) whatsAppWebhook(c *gin.Context) {
	var payload ultraMsgPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidPayload.Error()})
		return
	}
	msg, err := payload.inbound()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dispatch(c, msg)
}

func (h *Handler) telegramWebhook(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidPayload.Error()})
		return
	}
	msg, ok := telegramInbound(update)
	if !ok {
		c.String(http.StatusOK, "ignored")
		return
	}
	h.dispatch(c, msg)
}

// dispatch runs the message on the sender's queue and waits for the result.
func (h *Handler) dispatch(c *gin.Context, msg models.InboundMessage) {
	if msg.FromMe {
		c.String(http.StatusOK, "ok")
		return
	}
	err := h.executor.Submit(c.Request.Context(), msg.SenderKey(), func(ctx context.Context) error {
		result, err := h.bot.Handle(ctx, msg)
		if err == nil {
			h.logger.Debug("message handled", zap.String("sender", msg.SenderKey()), zap.String("result", string(result)))
		}
		return err
	})
	switch {
	case err == nil:
		c.String(http.StatusOK, "ok")
	case errors.Is(err, worker.ErrDispatcherBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
	case errors.Is(err, worker.ErrDispatcherStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
	default:
		h.logger.Error("handle message", zap.String("sender", msg.SenderKey()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
