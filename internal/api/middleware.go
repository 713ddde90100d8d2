/**
 * @description
 * Bearer-token authentication for the operator API. Tokens are HS256 JWTs
 * signed with OPS_JWT_SECRET and must carry `role: ops` and an expiry.
 */

package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// OpsContextKey is a custom type for the context key to avoid collisions.
type OpsContextKey string

const (
	opsSubjectKey OpsContextKey = "opsSubject"
	opsRole                     = "ops"
)

// OpsAuthMiddleware validates operator tokens.
func OpsAuthMiddleware(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims := jwt.MapClaims{}
			token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return key, nil
			})
			if err != nil || !token.Valid {
				logger.Warn("operator token rejected", slog.Any("error", err))
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			if role, _ := claims["role"].(string); role != opsRole {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			subject, _ := claims.GetSubject()
			ctx := context.WithValue(r.Context(), opsSubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OpsSubjectFromContext returns the authenticated operator, if any.
func OpsSubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(opsSubjectKey).(string)
	return subject
}
