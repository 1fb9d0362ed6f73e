package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"notary-payments/internal/config"
	"notary-payments/internal/logger"
	"notary-payments/internal/models"
	"notary-payments/internal/signature"

	"github.com/razorpay/razorpay-go"
)

var (
	ErrRazorpayClientInitFailed = errors.New("failed to initialize Razorpay client")
	ErrRazorpayAPIError         = errors.New("razorpay API error")
)

// OrderAPI is the slice of the Razorpay SDK order resource we call.
type OrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayService wraps the Razorpay SDK. It is built once at startup and
// shared by every request; it holds no per-request state.
type RazorpayService struct {
	orders OrderAPI
	cfg    config.RazorpayConfig
	log    *logger.Logger
}

func NewRazorpayService(cfg config.RazorpayConfig, log *logger.Logger) (*RazorpayService, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		log.Error("RAZORPAY", "RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET must be set")
		return nil, ErrRazorpayClientInitFailed
	}

	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	if client == nil {
		log.Error("RAZORPAY", "Failed to initialize Razorpay client")
		return nil, ErrRazorpayClientInitFailed
	}

	// The SDK ships a fixed 10s HTTP timeout; RAZORPAY_TIMEOUT replaces it.
	client.Order.Request.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	log.Info("RAZORPAY", "Razorpay client initialized for key "+cfg.KeyID)
	return newRazorpayService(client.Order, cfg, log), nil
}

func newRazorpayService(orders OrderAPI, cfg config.RazorpayConfig, log *logger.Logger) *RazorpayService {
	return &RazorpayService{orders: orders, cfg: cfg, log: log}
}

// CreateOrder issues one order-creation call under the configured timeout.
// A deadline hit, ours or the HTTP client's, surfaces as
// context.DeadlineExceeded. The SDK call itself cannot be cancelled and
// finishes in the background.
func (s *RazorpayService) CreateOrder(ctx context.Context, data map[string]interface{}) (models.OrderDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	type result struct {
		order map[string]interface{}
		err   error
	}
	done := make(chan result, 1)

	go func() {
		order, err := s.orders.Create(data, nil)
		done <- result{order: order, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if isTimeout(res.err) {
				s.log.Error("RAZORPAY", fmt.Sprintf("Order creation timed out after %s: %v", s.cfg.Timeout, res.err))
				return nil, fmt.Errorf("razorpay order create: %w: %w", context.DeadlineExceeded, res.err)
			}
			s.log.Error("RAZORPAY", fmt.Sprintf("Order creation rejected: %v", res.err))
			return nil, fmt.Errorf("%w: %w", ErrRazorpayAPIError, res.err)
		}
		return models.OrderDescriptor(res.order), nil
	case <-ctx.Done():
		s.log.Error("RAZORPAY", fmt.Sprintf("Order creation aborted after %s: %v", s.cfg.Timeout, ctx.Err()))
		return nil, fmt.Errorf("razorpay order create: %w", ctx.Err())
	}
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header against the
// raw request body. It returns false when no webhook secret is configured.
func (s *RazorpayService) VerifyWebhookSignature(body []byte, sig string) bool {
	if s.cfg.WebhookSecret == "" || sig == "" {
		return false
	}
	return signature.VerifyBody(s.cfg.WebhookSecret, body, sig)
}

func (s *RazorpayService) WebhookConfigured() bool {
	return s.cfg.WebhookSecret != ""
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
