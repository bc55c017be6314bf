package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

// Middleware resolves the bearer access token to an active user before next
// runs. The user is available through UserFromContext.
func Middleware(service *Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		scheme, tokenStr, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		tokenStr = strings.TrimSpace(tokenStr)
		if tokenStr == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "invalid authorization token")
			return
		}

		user, err := service.CurrentUser(r.Context(), tokenStr)
		if err != nil {
			writeServiceError(w, "authenticate", err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	})
}

func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(contextKey{}).(User)
	return user, ok
}
