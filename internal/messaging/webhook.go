package messaging

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/dispatch-core/pkg/logger"
	"github.com/richxcame/dispatch-core/pkg/models"
	"github.com/richxcame/dispatch-core/pkg/response"
	"go.uber.org/zap"
)

// Handler exposes the webhook surface the delivery provider requires: a verification GET
// and a signed status-callback POST.
type Handler struct {
	repo          *Repository
	appSecret     string
	verifyToken   string
}

// NewHandler builds a webhook Handler. appSecret signs the POST body;
// verifyToken answers the GET challenge a provider issues when the
// webhook URL is first registered.
func NewHandler(repo *Repository, appSecret, verifyToken string) *Handler {
	return &Handler{repo: repo, appSecret: appSecret, verifyToken: verifyToken}
}

// RegisterRoutes wires the webhook endpoints. No auth middleware: the
// provider calling this endpoint can't carry our session tokens, so the
// HMAC signature on the POST body is the only gate.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/whatsapp/webhook", h.HandleVerify)
	router.POST("/whatsapp/webhook", h.HandleStatusCallback)
}

// HandleVerify answers the provider's webhook-registration challenge.
func (h *Handler) HandleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || token != h.verifyToken {
		c.Status(http.StatusForbidden)
		return
	}
	c.String(http.StatusOK, challenge)
}

// HandleStatusCallback verifies the HMAC-SHA256 signature against the raw
// body, ACKs within the 5s budget, then advances delivery status off the
// request path.
func (h *Handler) HandleStatusCallback(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	sig := c.GetHeader("x-hub-signature-256")
	if !verifySignature(h.appSecret, body, sig) {
		logger.WarnContext(c.Request.Context(), "rejected webhook with invalid signature")
		c.Status(http.StatusForbidden)
		return
	}

	var payload statusCallback
	if err := json.Unmarshal(body, &payload); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid payload")
		return
	}

	// ACK immediately; status advancement happens after the response is
	// written so the provider never waits on our database.
	c.JSON(http.StatusOK, gin.H{"received": true})

	go h.applyStatus(context.WithoutCancel(c.Request.Context()), payload)
}

type statusCallback struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

var callbackStatus = map[string]models.DeliveryStatus{
	"sent":      models.DeliverySent,
	"delivered": models.DeliveryDelivered,
	"read":      models.DeliveryRead,
	"failed":    models.DeliveryFailed,
	"undelivered": models.DeliveryFailed,
}

func (h *Handler) applyStatus(ctx context.Context, payload statusCallback) {
	status, ok := callbackStatus[strings.ToLower(payload.Status)]
	if !ok || payload.MessageID == "" {
		logger.WarnContext(ctx, "ignoring webhook callback with unrecognized status",
			zap.String("status", payload.Status))
		return
	}

	deadline, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := h.repo.SetStatusByMessageID(deadline, payload.MessageID, status)
	if err != nil {
		logger.ErrorContext(ctx, "failed to advance delivery status from webhook", zap.Error(err))
		return
	}
	if rows == 0 {
		logger.WarnContext(ctx, "webhook callback matched no notification",
			zap.String("message_id", payload.MessageID))
	}
}

// verifySignature compares an HMAC-SHA256 digest of body against the
// "sha256=<hex>" header value using constant-time comparison.
func verifySignature(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	expectedHex := strings.TrimPrefix(header, prefix)
	expected, err := hex.DecodeString(expectedHex)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	computed := mac.Sum(nil)

	return hmac.Equal(computed, expected)
}
