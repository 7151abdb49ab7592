package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/argon2"

	"wgwarden/internal/models"
)

// hashToken — argon2id от токена, чтобы сравнивать дайджесты
// фиксированной длины, а не сами строки.
func hashToken(token string) []byte {
	return argon2.IDKey([]byte(token), []byte("wgwarden-bridge"), 1, 64*1024, 1, 32)
}

// BearerAuth: Authorization: Bearer <bridge token>. Пустой токен в
// конфиге пройти валидацию не может, поэтому ветки "без авторизации"
// здесь нет.
func BearerAuth(token string) mux.MiddlewareFunc {
	want := hashToken(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const p = "Bearer "
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, p) {
				models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token", nil)
				return
			}
			got := hashToken(strings.TrimPrefix(auth, p))
			if subtle.ConstantTimeCompare(want, got) != 1 {
				models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "bad bearer token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
