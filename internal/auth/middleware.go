package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/ignite/mailcraft/internal/pkg/httputil"
)

type ctxKey struct{}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
}

// WithPrincipal stores p on ctx. Tests use it to skip token handling.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// Middleware rejects requests without a valid bearer token with 401.
func (t *Tokens) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			httputil.Unauthorized(w, "missing bearer token")
			return
		}
		claims, err := t.Parse(strings.TrimSpace(raw))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		ctx := WithPrincipal(r.Context(), Principal{UserID: claims.Subject, Email: claims.Email})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
