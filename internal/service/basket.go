package service

import (
	"context"
	"fmt"

	"github.com/mmeshcher/basket-service/internal/model"
)

// GetBasket возвращает корзину пользователя. Непустая корзина продлевает своё время жизни.
func (s *Service) GetBasket(ctx context.Context, userID int64) (*model.Basket, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.basketView(ctx, user)
}

func (s *Service) basketView(ctx context.Context, user *model.User) (*model.Basket, error) {
	items, err := s.listItems(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if len(items) > 0 {
		if err := s.baskets.Touch(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("refresh basket ttl: %w", err)
		}
	}

	return model.NewBasket(items, user.Balance), nil
}

// ClearBasket удаляет корзину пользователя целиком.
func (s *Service) ClearBasket(ctx context.Context, userID int64) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	if err := s.baskets.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear basket: %w", err)
	}
	return nil
}

// AddItem добавляет новый товар в корзину.
// Проверки выполняются в порядке: номер товара, пользователь, дубликат, баланс, вместимость.
func (s *Service) AddItem(ctx context.Context, userID int64, productID string, item model.LineItem) (*model.Basket, error) {
	if productID != item.ProductID {
		return nil, ErrProductIDMismatch
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	exists, err := s.baskets.Exists(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("check basket item: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrItemAlreadyInBasket, productID)
	}

	items, err := s.listItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Баланс сравнивается со стоимостью корзины вместе с новой позицией.
	required := model.TotalCost(items).Add(item.Cost())
	if required.GreaterThan(user.Balance) {
		return nil, fmt.Errorf("%w: required %s, available %s", ErrInsufficientBalance, required, user.Balance)
	}

	if len(items) >= model.MaxBasketItems {
		return nil, ErrBasketFull
	}

	if err := s.baskets.Put(ctx, userID, item); err != nil {
		return nil, fmt.Errorf("store basket item: %w", err)
	}

	return s.basketView(ctx, user)
}

// RemoveItem удаляет товар из корзины.
func (s *Service) RemoveItem(ctx context.Context, userID int64, productID string) (*model.Basket, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	removed, err := s.baskets.Remove(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("remove basket item: %w", err)
	}
	if !removed {
		return nil, fmt.Errorf("%w: %s", ErrItemNotInBasket, productID)
	}

	return s.basketView(ctx, user)
}

// ChangeItemCount заменяет позицию корзины целиком: количество, цену и название.
// Лимит количества и баланс проверяются по всей корзине с учётом новой позиции.
func (s *Service) ChangeItemCount(ctx context.Context, userID int64, productID string, item model.LineItem) (*model.Basket, error) {
	if productID != item.ProductID {
		return nil, ErrProductIDMismatch
	}

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

	found := false
	totalCount := 0
	for i := range items {
		if items[i].ProductID == productID {
			items[i] = item
			found = true
		}
		totalCount += items[i].Count
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrItemNotInBasket, productID)
	}

	if totalCount > model.MaxBasketItems {
		return nil, fmt.Errorf("%w: requested %d", ErrItemLimitExceeded, totalCount)
	}

	if total := model.TotalCost(items); total.GreaterThan(user.Balance) {
		return nil, fmt.Errorf("%w: required %s, available %s", ErrPaymentRequired, total, user.Balance)
	}

	if err := s.baskets.Put(ctx, userID, item); err != nil {
		return nil, fmt.Errorf("store basket item: %w", err)
	}

	return s.basketView(ctx, user)
}
