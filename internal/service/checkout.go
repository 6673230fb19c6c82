package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/basket-service/internal/model"
	"github.com/mmeshcher/basket-service/internal/repository"
)

const clearTimeout = 5 * time.Second

// PlaceOrder оформляет заказ из корзины пользователя: сохраняет заказ,
// списывает его сумму с баланса и очищает корзину.
func (s *Service) PlaceOrder(ctx context.Context, userID int64) (*model.Order, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	items, err := s.listItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyBasket
	}

	if total := model.TotalCost(items); total.GreaterThan(user.Balance) {
		return nil, fmt.Errorf("%w: basket costs %s, balance is %s", ErrInsufficientBalance, total, user.Balance)
	}

	order, err := s.ledger.CreateOrder(ctx, userID, items)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInsufficientBalance):
			return nil, ErrInsufficientBalance
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.clearAfterCheckout(ctx, userID, order.ID)

	return order, nil
}

// clearAfterCheckout очищает корзину после фиксации заказа. Если все попытки
// неудачны, заказ остаётся оформленным, а корзину удалит истечение TTL.
func (s *Service) clearAfterCheckout(ctx context.Context, userID, orderID int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), clearTimeout)
	defer cancel()

	backoff := retry.WithMaxRetries(s.clearRetries, retry.NewConstant(s.clearBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.baskets.Clear(ctx, userID); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("clear basket after checkout failed",
			zap.Error(err),
			zap.Int64("userID", userID),
			zap.Int64("orderID", orderID),
		)
	}
}

// GetCompletedOrders возвращает заказы пользователя, начиная с самого нового.
func (s *Service) GetCompletedOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	if _, err := s.getUser(ctx, userID); err != nil {
		return nil, err
	}

	orders, err := s.ledger.GetOrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders, nil
}

// GetOrder возвращает заказ пользователя по идентификатору.
func (s *Service) GetOrder(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	if _, err := s.getUser(ctx, userID); err != nil {
		return nil, err
	}

	order, err := s.ledger.GetOrder(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}
