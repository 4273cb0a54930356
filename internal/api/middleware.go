package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pdbot/internal/models"
)

// TelegramSecretHeader is set by Telegram when the webhook was registered
// with a secret token.
const TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// requireSecret rejects webhook calls that do not present the shared secret
// as ?secret= or in the Telegram header. An empty secret disables the check.
func requireSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		presented := c.Query("secret")
		if presented == "" {
			presented = c.GetHeader(TelegramSecretHeader)
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid webhook secret"})
			return
		}
		c.Next()
	}
}

// countRequests records the final status of every webhook call.
func (h *Handler) countRequests(platform models.Platform) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		h.metrics.WebhookRequest(string(platform), strconv.Itoa(c.Writer.Status()))
	}
}
