// Package model содержит доменные сущности сервиса корзины.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxBasketItems — максимальное число различных товаров в корзине.
const MaxBasketItems = 10

// User представляет учётную запись пользователя с предоплаченным балансом.
type User struct {
	ID      int64
	Name    string
	Balance decimal.Decimal
}

// LineItem описывает позицию корзины или снимок позиции заказа.
type LineItem struct {
	ProductID   string          `json:"productId" validate:"productid"`
	ProductName string          `json:"productName" validate:"notblank,max=255"`
	Count       int             `json:"count" validate:"min=1"`
	Price       decimal.Decimal `json:"price" validate:"decmin=10,decmax=100,decscale=2"`
}

// Cost возвращает стоимость позиции: цена за единицу, умноженная на количество.
func (i LineItem) Cost() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Count)))
}

// Basket — представление корзины пользователя. Итог всегда вычисляется по позициям.
type Basket struct {
	Items            []LineItem
	Total            decimal.Decimal
	RemainingBalance decimal.Decimal
}

// NewBasket собирает корзину из позиций и текущего баланса пользователя.
func NewBasket(items []LineItem, balance decimal.Decimal) *Basket {
	if items == nil {
		items = []LineItem{}
	}
	return &Basket{
		Items:            items,
		Total:            TotalCost(items),
		RemainingBalance: balance,
	}
}

// IsEmpty сообщает, что в корзине нет позиций.
func (b *Basket) IsEmpty() bool {
	return len(b.Items) == 0
}

// TotalCost суммирует стоимость позиций.
func TotalCost(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Cost())
	}
	return total
}

// Order описывает оформленный заказ со снимком позиций корзины.
type Order struct {
	ID        int64
	UserID    int64
	Total     decimal.Decimal
	OrderDate time.Time
	Items     []LineItem
}
