package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xstejsk/bp-backup/booking"
)

// Claims carried by an access token. The subject is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens issued by the identity
// provider.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for userID. Used by tests and local tooling.
func (a *Authenticator) Issue(userID string, role booking.Role, ttl time.Duration) (string, error) {
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(a.now()),
			ExpiresAt: jwt.NewNumericDate(a.now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates a token and returns the caller it identifies.
func (a *Authenticator) Parse(token string) (booking.Caller, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return booking.Guest, err
	}
	if !t.Valid || claims.Subject == "" {
		return booking.Guest, errors.New("invalid token")
	}
	return booking.Caller{UserID: claims.Subject, Role: booking.ParseRole(claims.Role)}, nil
}

// Middleware puts the caller into the request context. Requests without a
// bearer token act as guests; a bad token is 401. A nil Authenticator
// treats every request as a guest.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := booking.Guest
		header := r.Header.Get("Authorization")
		if a != nil && header != "" {
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, "Expected a bearer token", nil)
				return
			}
			var err error
			if caller, err = a.Parse(token); err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token", err)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), caller)))
	})
}

type callerKey struct{}

func withCaller(ctx context.Context, c booking.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// callerFrom returns the request's caller, or a guest.
func callerFrom(ctx context.Context) booking.Caller {
	if c, ok := ctx.Value(callerKey{}).(booking.Caller); ok {
		return c
	}
	return booking.Guest
}
