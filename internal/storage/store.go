package storage

import (
	"context"
	"errors"

	"notary-payments/internal/models"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrOrderExists   = errors.New("order already exists")
)

// Store persists local records of gateway orders.
type Store interface {
	SaveOrder(ctx context.Context, order *models.PaymentOrder) error
	GetOrder(ctx context.Context, orderID string) (*models.PaymentOrder, error)
	UpdateOrder(ctx context.Context, order *models.PaymentOrder) error
	ListOrders(ctx context.Context, receipt string, limit, offset int) ([]*models.PaymentOrder, error)
	HealthCheck(ctx context.Context) error
	Close() error
}
