package httpx

import (
	"context"
	"net/http"
	"strings"
)

// Headers the gateway sets after verifying the caller's token. Upstream
// services trust them and nothing else.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderRequestID = "X-Request-ID"
)

type Identity struct {
	UserID string
	Email  string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, false
	}
	return id, true
}

// RequireIdentity rejects requests that did not come through the gateway.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			RespondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
			return
		}
		id := Identity{UserID: userID, Email: strings.TrimSpace(r.Header.Get(HeaderUserEmail))}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}
