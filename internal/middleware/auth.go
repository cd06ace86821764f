package middleware

import (
	"log"
	"net/http"

	"github.com/Vasu1712/scenyx-narrator/internal/auth"
)

// TokenVerifier turns a raw bearer token into an identity.
type TokenVerifier interface {
	Verify(raw string) (auth.Identity, error)
}

// Authenticate attaches the caller's identity to the request context when
// the request carries a valid token. Requests without one pass through
// anonymous; handlers decide what anonymous callers may do.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := auth.TokenFromRequest(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := verifier.Verify(raw)
			if err != nil {
				log.Printf("[Auth] Rejected token for %s %s: %v", r.Method, r.URL.Path, err)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}
