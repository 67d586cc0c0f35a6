package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const (
	ownerKey contextKey = "owner"
	tokenKey contextKey = "token"
)

// anonymousOwner owns conversations when bearer verification is disabled.
const anonymousOwner = "anonymous"

// Principal is the authenticated caller: Owner keys the persisted conversation and Token
// is forwarded to the classifier unchanged.
type Principal struct {
	Owner string
	Token string
}

// PrincipalFrom returns the caller attached by BearerAuth.
func PrincipalFrom(ctx context.Context) Principal {
	owner, _ := ctx.Value(ownerKey).(string)
	token, _ := ctx.Value(tokenKey).(string)
	if owner == "" {
		owner = anonymousOwner
	}
	return Principal{Owner: owner, Token: token}
}

// BearerAuth verifies HS256 bearer tokens and uses the subject claim as the owner. With an
// empty secret every request is accepted as the anonymous owner and any presented token is
// still forwarded. Browsers cannot set headers on websocket upgrades, so an access_token
// query parameter is accepted as well.
func BearerAuth(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err != nil {
				if secret == "" {
					next.ServeHTTP(w, r)
					return
				}
				logger.Debug("auth rejected", zap.Error(err))
				respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), tokenKey, raw)
			if secret == "" {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				logger.Debug("auth rejected", zap.Error(err))
				switch {
				case errors.Is(err, jwt.ErrTokenExpired):
					respondError(w, http.StatusUnauthorized, "token_expired", "token has expired")
				case errors.Is(err, jwt.ErrTokenMalformed):
					respondError(w, http.StatusUnauthorized, "token_malformed", "malformed token")
				default:
					respondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				}
				return
			}
			if strings.TrimSpace(claims.Subject) == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "token has no subject")
				return
			}

			ctx = context.WithValue(ctx, ownerKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

var errNoCredential = errors.New("authorization header required")

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		if q := strings.TrimSpace(r.URL.Query().Get("access_token")); q != "" {
			return q, nil
		}
		return "", errNoCredential
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("malformed authorization header (expected: Bearer <token>)")
	}
	return strings.TrimSpace(token), nil
}
