// Package service реализует бизнес-логику корзины и оформления заказов.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/basket-service/internal/cache"
	"github.com/mmeshcher/basket-service/internal/model"
	"github.com/mmeshcher/basket-service/internal/repository"
)

// Ledger описывает долговременное хранилище пользователей и заказов.
type Ledger interface {
	Close() error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	CreateOrder(ctx context.Context, userID int64, items []model.LineItem) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetOrder(ctx context.Context, userID, orderID int64) (*model.Order, error)
}

// BasketStore описывает кеш корзин с ограниченным временем жизни.
type BasketStore interface {
	List(ctx context.Context, userID int64) ([]model.LineItem, error)
	Exists(ctx context.Context, userID int64, productID string) (bool, error)
	Put(ctx context.Context, userID int64, item model.LineItem) error
	Remove(ctx context.Context, userID int64, productID string) (bool, error)
	Touch(ctx context.Context, userID int64) error
	Clear(ctx context.Context, userID int64) error
}

// Service содержит бизнес-логику корзины и оформления заказов.
type Service struct {
	ledger  Ledger
	baskets BasketStore
	logger  *zap.Logger
	locks   *userLocks

	clearRetries uint64
	clearBackoff time.Duration
}

// NewService создаёт сервис поверх хранилища заказов и кеша корзин.
// clearRetries задаёт число повторов очистки корзины после оформления заказа.
func NewService(ledger Ledger, baskets BasketStore, logger *zap.Logger, clearRetries uint64) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		ledger:       ledger,
		baskets:      baskets,
		logger:       logger,
		locks:        newUserLocks(),
		clearRetries: clearRetries,
		clearBackoff: 50 * time.Millisecond,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.ledger != nil {
		return s.ledger.Close()
	}
	return nil
}

func (s *Service) getUser(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.ledger.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Service) listItems(ctx context.Context, userID int64) ([]model.LineItem, error) {
	items, err := s.baskets.List(ctx, userID)
	if err != nil {
		if errors.Is(err, cache.ErrCorruptItem) {
			return nil, fmt.Errorf("%w: %w", ErrCorruptBasket, err)
		}
		return nil, fmt.Errorf("list basket: %w", err)
	}
	return items, nil
}
