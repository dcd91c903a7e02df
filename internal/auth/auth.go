package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxKeyBuyer ctxKey = "negotiator.buyer"

// BuyerFromContext returns the authenticated buyer subject, if any.
func BuyerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyBuyer).(string); ok {
		return v
	}
	return ""
}

// Verifier validates bearer tokens on the write endpoints. Tokens are HS256
// JWTs signed with a shared secret. A debug-token bypass exists for local
// development only.
type Verifier struct {
	secret          []byte
	allowDebugToken bool
	debugToken      string
}

func NewVerifier(secret string, allowDebugToken bool, debugToken string) *Verifier {
	return &Verifier{
		secret:          []byte(secret),
		allowDebugToken: allowDebugToken,
		debugToken:      debugToken,
	}
}

// Middleware rejects requests lacking a valid bearer token (or, in dev, the
// debug token) with 401.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v.allowDebugToken {
			if token := r.Header.Get("X-Debug-Token"); token != "" && token == v.debugToken {
				next.ServeHTTP(w, r)
				return
			}
		}
		subject, err := v.verifyBearer(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyBuyer, subject)))
	})
}

func (v *Verifier) verifyBearer(r *http.Request) (string, error) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return "", fmt.Errorf("missing bearer token")
	}
	raw := strings.TrimSpace(authz[len("bearer "):])

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}
	sub, _ := claims.GetSubject()
	return sub, nil
}

// IssueToken mints a short-lived HS256 token for a buyer; used by tests and
// dev tooling.
func (v *Verifier) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return token.SignedString(v.secret)
}
