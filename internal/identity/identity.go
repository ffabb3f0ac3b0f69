// Package identity provides JWT cookie authentication primitives.
package identity

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// AuthCookieName is the HttpOnly cookie carrying the signed token.
	AuthCookieName = "auth_token"
	tokenLifetime  = 24 * time.Hour
)

type contextKey int

const (
	userIDKey contextKey = iota
	nameKey
)

// Claims is the JWT payload for an authenticated user. The user ID is
// carried in the registered subject claim.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies auth tokens and manages the auth cookie.
type Authenticator struct {
	secret []byte
	secure bool
}

// NewAuthenticator creates an authenticator. secure controls the cookie's
// Secure attribute and should be true outside development.
func NewAuthenticator(secret string, secure bool) *Authenticator {
	return &Authenticator{secret: []byte(secret), secure: secure}
}

// SignToken issues a signed token for the user, valid for 24 hours.
func (a *Authenticator) SignToken(userID, name string) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// VerifyToken validates a token and returns the user ID and name.
func (a *Authenticator) VerifyToken(tokenString string) (userID, name string, err error) {
	var claims Claims
	_, err = jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", "", fmt.Errorf("verify token: %w", err)
	}
	if claims.Subject == "" {
		return "", "", fmt.Errorf("verify token: missing subject")
	}
	return claims.Subject, claims.Name, nil
}

// SetAuthCookie attaches the token as an HttpOnly cookie.
func (a *Authenticator) SetAuthCookie(w http.ResponseWriter, token string) {
	sameSite := http.SameSiteLaxMode
	if a.secure {
		sameSite = http.SameSiteStrictMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(tokenLifetime.Seconds()),
		Expires:  time.Now().Add(tokenLifetime),
		HttpOnly: true,
		SameSite: sameSite,
		Secure:   a.secure,
	})
}

// ClearAuthCookie expires the auth cookie.
func (a *Authenticator) ClearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// Middleware injects the authenticated user into the request context when a
// valid auth cookie is present. Requests without one pass through
// unauthenticated; protected handlers enforce access via RequireAuth.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(AuthCookieName)
			if err != nil || c.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, name, err := a.VerifyToken(c.Value)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, nameKey, name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects unauthenticated requests with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFromContext(r.Context()) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"Unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// NameFromContext extracts the user's display name from the request context.
func NameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(nameKey).(string); ok {
		return v
	}
	return ""
}

// IPFromRequest returns the client IP, honoring X-Forwarded-For.
func IPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
