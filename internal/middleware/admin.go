package middleware

import (
	"crypto/hmac"
	"net/http"
)

const adminKeyHeader = "X-Admin-Key"

// AdminMiddleware ограничивает доступ к административным маршрутам по общему ключу.
type AdminMiddleware struct {
	key []byte
}

// NewAdminMiddleware создаёт новый экземпляр AdminMiddleware с указанным ключом.
func NewAdminMiddleware(key string) *AdminMiddleware {
	return &AdminMiddleware{key: []byte(key)}
}

// Middleware сверяет ключ из заголовка X-Admin-Key с настроенным.
// При пустом настроенном ключе административные маршруты закрыты полностью.
func (a *AdminMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(adminKeyHeader)
		if len(a.key) == 0 || !hmac.Equal([]byte(got), a.key) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
