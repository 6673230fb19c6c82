package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/basket-service/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса корзины.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.RequestID)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Route("/basket", func(r chi.Router) {
			r.Get("/", h.GetBasket)
			r.Delete("/", h.ClearBasket)
			r.Post("/", h.Checkout)

			r.Post("/{productId}", h.AddItem)
			r.Delete("/{productId}", h.RemoveItem)
			r.Patch("/{productId}", h.ChangeItemCount)
		})

		r.Get("/orders", h.GetOrders)
		r.Get("/orders/{orderId}", h.GetOrder)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
