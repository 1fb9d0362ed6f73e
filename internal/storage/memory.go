package storage

import (
	"context"
	"sort"
	"sync"

	"notary-payments/internal/models"
)

type InMemoryStore struct {
	orders map[string]*models.PaymentOrder
	mutex  sync.RWMutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		orders: make(map[string]*models.PaymentOrder),
	}
}

func (s *InMemoryStore) SaveOrder(ctx context.Context, order *models.PaymentOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.orders[order.OrderID]; exists {
		return ErrOrderExists
	}
	s.orders[order.OrderID] = order.Clone()
	return nil
}

func (s *InMemoryStore) GetOrder(ctx context.Context, orderID string) (*models.PaymentOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	order, exists := s.orders[orderID]
	if !exists {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (s *InMemoryStore) UpdateOrder(ctx context.Context, order *models.PaymentOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.orders[order.OrderID]; !exists {
		return ErrOrderNotFound
	}
	s.orders[order.OrderID] = order.Clone()
	return nil
}

// ListOrders returns newest first. An empty receipt matches every order.
func (s *InMemoryStore) ListOrders(ctx context.Context, receipt string, limit, offset int) ([]*models.PaymentOrder, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var matched []*models.PaymentOrder
	for _, order := range s.orders {
		if receipt == "" || order.Receipt == receipt {
			matched = append(matched, order)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].OrderID < matched[j].OrderID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return []*models.PaymentOrder{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	orders := make([]*models.PaymentOrder, 0, len(matched))
	for _, order := range matched {
		orders = append(orders, order.Clone())
	}
	return orders, nil
}

func (s *InMemoryStore) HealthCheck(ctx context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }
