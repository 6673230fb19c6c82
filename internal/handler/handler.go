// Package handler содержит HTTP-обработчики API сервиса корзины.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/basket-service/internal/middleware"
	"github.com/mmeshcher/basket-service/internal/model"
	"github.com/mmeshcher/basket-service/internal/service"
	"github.com/mmeshcher/basket-service/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	GetBasket(ctx context.Context, userID int64) (*model.Basket, error)
	ClearBasket(ctx context.Context, userID int64) error
	AddItem(ctx context.Context, userID int64, productID string, item model.LineItem) (*model.Basket, error)
	RemoveItem(ctx context.Context, userID int64, productID string) (*model.Basket, error)
	ChangeItemCount(ctx context.Context, userID int64, productID string, item model.LineItem) (*model.Basket, error)
	PlaceOrder(ctx context.Context, userID int64) (*model.Order, error)
	GetCompletedOrders(ctx context.Context, userID int64) ([]model.Order, error)
	GetOrder(ctx context.Context, userID, orderID int64) (*model.Order, error)
}

// Handler реализует HTTP-обработчики API сервиса корзины.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type itemResponse struct {
	ProductID   string      `json:"productId"`
	ProductName string      `json:"productName"`
	Count       int         `json:"count"`
	Price       json.Number `json:"price"`
}

type basketResponse struct {
	Items            []itemResponse `json:"items"`
	Total            json.Number    `json:"total"`
	RemainingBalance json.Number    `json:"remainingBalance"`
}

type orderResponse struct {
	ID        int64          `json:"id"`
	Total     json.Number    `json:"total"`
	OrderDate string         `json:"orderDate"`
	Items     []itemResponse `json:"items"`
}

func money(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func toItems(items []model.LineItem) []itemResponse {
	resp := make([]itemResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, itemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Count:       it.Count,
			Price:       money(it.Price),
		})
	}
	return resp
}

func toBasket(b *model.Basket) basketResponse {
	return basketResponse{
		Items:            toItems(b.Items),
		Total:            money(b.Total),
		RemainingBalance: money(b.RemainingBalance),
	}
}

func toOrder(o *model.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		Total:     money(o.Total),
		OrderDate: o.OrderDate.UTC().Format(time.RFC3339),
		Items:     toItems(o.Items),
	}
}

// GetBasket возвращает корзину текущего пользователя.
func (h *Handler) GetBasket(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	basket, err := h.service.GetBasket(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toBasket(basket))
}

// ClearBasket очищает корзину текущего пользователя.
func (h *Handler) ClearBasket(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.ClearBasket(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Checkout оформляет заказ из содержимого корзины.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	order, err := h.service.PlaceOrder(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/orders/"+strconv.FormatInt(order.ID, 10))
	h.writeJSON(w, http.StatusCreated, toOrder(order))
}

// AddItem добавляет товар в корзину текущего пользователя.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	item, ok := h.decodeItem(w, r)
	if !ok {
		return
	}

	basket, err := h.service.AddItem(r.Context(), userID, chi.URLParam(r, "productId"), item)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toBasket(basket))
}

// RemoveItem удаляет товар из корзины текущего пользователя.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	basket, err := h.service.RemoveItem(r.Context(), userID, chi.URLParam(r, "productId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toBasket(basket))
}

// ChangeItemCount заменяет позицию корзины текущего пользователя.
func (h *Handler) ChangeItemCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	item, ok := h.decodeItem(w, r)
	if !ok {
		return
	}

	basket, err := h.service.ChangeItemCount(r.Context(), userID, chi.URLParam(r, "productId"), item)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toBasket(basket))
}

// GetOrders возвращает оформленные заказы текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.GetCompletedOrders(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrder(&orders[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает один заказ текущего пользователя.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderId"), 10, 64)
	if err != nil || orderID <= 0 {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	order, err := h.service.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toOrder(order))
}

// decodeItem читает позицию из тела запроса и проверяет её поля.
// При ошибке ответ уже записан.
func (h *Handler) decodeItem(w http.ResponseWriter, r *http.Request) (model.LineItem, bool) {
	defer r.Body.Close()

	var item model.LineItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return model.LineItem{}, false
	}

	if err := validation.ValidateLineItem(item); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			http.Error(w, verr.Message, http.StatusBadRequest)
			return model.LineItem{}, false
		}
		h.logger.Error("validate item error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return model.LineItem{}, false
	}

	return item, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrProductIDMismatch),
		errors.Is(err, service.ErrInsufficientBalance),
		errors.Is(err, service.ErrItemLimitExceeded),
		errors.Is(err, service.ErrEmptyBasket):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrPaymentRequired):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrItemNotInBasket),
		errors.Is(err, service.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrItemAlreadyInBasket),
		errors.Is(err, service.ErrBasketFull):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("requestID", middleware.GetRequestIDFromContext(r.Context())),
		)
		http.Error(w, http.StatusText(status), status)
		return
	}
	http.Error(w, err.Error(), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("encode response error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
