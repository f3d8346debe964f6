package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fjod/homeservices/pkg/httpx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by customer tokens. The subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret []byte, issuer string) *Authenticator {
	return &Authenticator{secret: secret, issuer: issuer}
}

var errMissingToken = errors.New("missing bearer token")

// Verify parses a raw token and returns the identity it carries.
func (a *Authenticator) Verify(raw string) (httpx.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return httpx.Identity{}, err
	}
	if claims.Subject == "" {
		return httpx.Identity{}, errors.New("token has no subject")
	}
	return httpx.Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// Required rejects requests without a valid token and forwards the
// verified identity as headers.
func (a *Authenticator) Required(next http.Handler) http.Handler {
	return a.handler(next, true)
}

// Optional forwards the identity when a valid token is present and lets
// anonymous requests through. An invalid token is still rejected.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return a.handler(next, false)
}

func (a *Authenticator) handler(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// only the gateway may set these
		r.Header.Del(httpx.HeaderUserID)
		r.Header.Del(httpx.HeaderUserEmail)

		raw, err := bearerToken(r)
		if errors.Is(err, errMissingToken) && !required {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			httpx.RespondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		id, err := a.Verify(raw)
		if err != nil {
			httpx.RespondErrorDetails(w, http.StatusUnauthorized, "unauthorized", "invalid token", err.Error())
			return
		}

		r.Header.Set(httpx.HeaderUserID, id.UserID)
		if id.Email != "" {
			r.Header.Set(httpx.HeaderUserEmail, id.Email)
		}
		next.ServeHTTP(w, r.WithContext(httpx.WithIdentity(r.Context(), id)))
	})
}

func bearerToken(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", errMissingToken
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("authorization header must be a bearer token")
	}
	return strings.TrimSpace(token), nil
}

// RequestIDMiddleware makes sure every request carries an X-Request-ID
// and echoes it back to the client.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(httpx.HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set(httpx.HeaderRequestID, requestID)
		}
		w.Header().Set(httpx.HeaderRequestID, requestID)
		next.ServeHTTP(w, r)
	})
}
