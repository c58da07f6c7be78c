package auth

import (
	"context"
	"net/http"
	"strings"
)

// HeaderUserID заголовок, в котором шлюз передает идентификатор пользователя
const HeaderUserID = "X-User-ID"

type contextKey struct{}

// Middleware кладет идентификатор пользователя из заголовка в контекст запроса.
// Аутентификацию выполняет шлюз перед сервисом.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID != "" {
			r = r.WithContext(WithUser(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserID возвращает пользователя запроса или nil для анонимного вызова
func UserID(ctx context.Context) *string {
	userID, ok := ctx.Value(contextKey{}).(string)
	if !ok {
		return nil
	}
	return &userID
}
