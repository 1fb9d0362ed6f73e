package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"notary-payments/internal/logger"
	"notary-payments/internal/models"
	"notary-payments/internal/services"
	"notary-payments/internal/utils"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
	log            *logger.Logger
}

func NewPaymentHandler(paymentService *services.PaymentService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		log:            log,
	}
}

// CreateOrder handles POST /api/payments/create-order. On success the body is
// the gateway's order object as-is.
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "amount" {
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid amount"))
			return
		}
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload"))
		return
	}

	order, err := h.paymentService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid amount"))
		case errors.Is(err, services.ErrDuplicateReceipt):
			c.JSON(http.StatusConflict, utils.ErrorResponse("An order for this receipt is already being created"))
		case errors.Is(err, services.ErrReceiptConflict):
			c.JSON(http.StatusConflict, utils.ErrorResponse("Receipt already used for a different amount"))
		case errors.Is(err, services.ErrGatewayTimeout):
			c.JSON(http.StatusGatewayTimeout, utils.ErrorResponse("Payment gateway timed out"))
		default:
			c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to create order"))
		}
		return
	}

	c.JSON(http.StatusOK, order)
}

// VerifyPayment handles POST /api/payments/verify. A signature mismatch is a
// 200 with verified=false. A verified payment is then settled; a settlement
// problem is logged and does not change the response.
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	var req models.VerifyPaymentRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload"))
		return
	}

	result, err := h.paymentService.VerifyPayment(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingPaymentDetails):
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("Missing payment details"))
		default:
			c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Payment verification failed"))
		}
		return
	}

	if result.Verified {
		if _, err := h.paymentService.SettlePayment(c.Request.Context(), result.OrderID, result.PaymentID, services.SourceVerify); err != nil {
			if errors.Is(err, services.ErrOrderNotFound) {
				h.log.Warn("PAYMENT", fmt.Sprintf("Verified payment %s for unrecorded order %s", result.PaymentID, result.OrderID))
			} else {
				h.log.Error("PAYMENT", fmt.Sprintf("Verified payment %s but settlement failed: %v", result.PaymentID, err))
			}
		}
	}

	c.JSON(http.StatusOK, result)
}

func (h *PaymentHandler) GetOrder(c *gin.Context) {
	orderID := c.Param("id")
	if orderID == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Order ID is required"))
		return
	}

	order, err := h.paymentService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, utils.ErrorResponse("Order not found"))
			return
		}
		h.log.Error("PAYMENT", fmt.Sprintf("Failed to load order %s: %v", orderID, err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to retrieve order"))
		return
	}

	c.JSON(http.StatusOK, order)
}

// ListOrders handles GET /api/payments/orders?receipt=&limit=&offset=.
func (h *PaymentHandler) ListOrders(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid limit"))
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid offset"))
		return
	}

	orders, err := h.paymentService.ListOrders(c.Request.Context(), c.Query("receipt"), limit, offset)
	if err != nil {
		h.log.Error("PAYMENT", fmt.Sprintf("Failed to list orders: %v", err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to list orders"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}
