package token

import (
	"context"
	"net/http"

	"chatdir/internal/pkg/logx"
	"chatdir/internal/pkg/req"
)

// Define Context Key for storing the Identity struct, preventing key collisions with other packages.
type contextKey string

// ContextIdentityKey is the key used to store the extracted Identity in the request Context.
const ContextIdentityKey contextKey = "bearer_identity"

// Identity is the caller asserted by a bearer token.
type Identity struct {
	// UserID is the subject the token designates. The record may no longer exist.
	UserID string

	// Token is the raw bearer token as presented.
	Token string
}

// IdentityExtractorMiddleware extracts the bearer token from the Authorization header and,
// when the issuer accepts it, injects the Identity into the Context. It never rejects the
// request itself: a missing or invalid token leaves the caller anonymous.
func IdentityExtractorMiddleware(issuer Issuer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := req.BearerToken(r)
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}

			subject, err := issuer.Subject(tokenString)
			if err != nil {
				logx.Warn("Invalid bearer token provided, treating as anonymous", "error", err.Error())
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextIdentityKey, &Identity{UserID: subject, Token: tokenString})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext safely extracts the Identity from the request Context.
// A nil return means the caller is anonymous.
func IdentityFromContext(r *http.Request) *Identity {
	identity, ok := r.Context().Value(ContextIdentityKey).(*Identity)
	if !ok {
		return nil
	}
	return identity
}
