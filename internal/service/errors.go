package service

import "errors"

// Ошибки бизнес-правил корзины и оформления заказа.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrProductIDMismatch   = errors.New("product id in path and body do not match")
	ErrItemAlreadyInBasket = errors.New("product already in basket, change its count instead")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBasketFull          = errors.New("basket must not contain more than 10 different products")
	ErrItemNotInBasket     = errors.New("product not in basket")
	ErrItemLimitExceeded   = errors.New("basket must not contain more than 10 items")
	ErrPaymentRequired     = errors.New("insufficient balance for basket")
	ErrEmptyBasket         = errors.New("basket is empty")
	ErrOrderNotFound       = errors.New("order not found")
	// ErrCorruptBasket означает, что содержимое корзины в кеше не удалось прочитать.
	ErrCorruptBasket = errors.New("corrupt basket state")
)
