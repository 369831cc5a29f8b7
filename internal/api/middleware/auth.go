package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	requestIDKey  contextKey = "requestID"
	identityKey   contextKey = "identity"
	requestLogKey contextKey = "requestLog"
)

// ErrInvalidToken is returned by ParseToken for any unusable bearer token.
var ErrInvalidToken = errors.New("invalid token")

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id set by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestLog carries what inner middleware learns about the caller back out
// to Logger.
type requestLog struct {
	identity domain.Identity
}

// WithIdentity stores identity in ctx and reports it to an enclosing Logger.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	if rl, ok := ctx.Value(requestLogKey).(*requestLog); ok {
		rl.identity = identity
	}
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the caller's identity, Anonymous when unset.
func IdentityFromContext(ctx context.Context) domain.Identity {
	if identity, ok := ctx.Value(identityKey).(domain.Identity); ok {
		return identity
	}
	return domain.Anonymous()
}

// Auth resolves the caller from an optional "Authorization: Bearer <jwt>"
// header. Requests without the header are anonymous; a header that does not
// verify against secret is rejected with 401. An empty secret disables
// verification and every request is anonymous.
func Auth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || len(secret) == 0 {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), domain.Anonymous())))
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				WriteError(w, http.StatusUnauthorized, "Authorization header must be a bearer token")
				return
			}

			identity, err := ParseToken(secret, strings.TrimSpace(token))
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// ParseToken verifies an HS256 token and returns the identity named by its subject.
func ParseToken(secret []byte, tokenString string) (domain.Identity, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Anonymous(), errors.Join(ErrInvalidToken, err)
	}

	identity, err := domain.ParseUserID(claims.Subject)
	if err != nil {
		return domain.Anonymous(), errors.Join(ErrInvalidToken, err)
	}
	if !identity.IsAuthenticated() {
		return domain.Anonymous(), ErrInvalidToken
	}
	return identity, nil
}

// IssueToken signs an HS256 token for uid valid for ttl.
func IssueToken(secret []byte, uid string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(secret)
}
