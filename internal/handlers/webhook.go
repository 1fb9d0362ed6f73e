package handlers

import (
	"errors"
	"net/http"

	"notary-payments/internal/logger"
	"notary-payments/internal/services"
	"notary-payments/internal/utils"

	"github.com/gin-gonic/gin"
)

const webhookSignatureHeader = "X-Razorpay-Signature"

type WebhookHandler struct {
	paymentService *services.PaymentService
	log            *logger.Logger
}

func NewWebhookHandler(paymentService *services.PaymentService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		paymentService: paymentService,
		log:            log,
	}
}

// HandleWebhook handles gateway webhook deliveries. The signature covers the
// raw body, so it is read before any decoding.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Failed to read request body"))
		return
	}

	err = h.paymentService.HandleWebhook(c.Request.Context(), body, c.GetHeader(webhookSignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidWebhookSignature):
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid signature"))
		case errors.Is(err, services.ErrInvalidWebhookPayload):
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload"))
		default:
			h.log.Error("WEBHOOK", "Webhook processing failed: "+err.Error())
			c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Webhook processing failed"))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
