// Package middleware содержит HTTP middleware для сервиса корзины.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

type contextKey string

const userIDKey contextKey = "userID"

// UserIDHeader — заголовок, в котором клиент передаёт идентификатор пользователя.
const UserIDHeader = "X-User-Id"

// AuthMiddleware извлекает идентификатор пользователя из заголовка запроса.
type AuthMiddleware struct {
	logger *zap.Logger
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware.
func NewAuthMiddleware(logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{logger: logger}
}

// Middleware проверяет заголовок X-User-Id и добавляет идентификатор пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if raw == "" {
			a.logger.Warn("user id header was not provided", zap.String("path", r.URL.Path))
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			a.logger.Warn("malformed user id header", zap.String("value", raw))
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// WithUserID возвращает контекст с идентификатором пользователя.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}
