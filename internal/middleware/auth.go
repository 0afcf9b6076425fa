package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

// UserIDKey is the request-context key carrying the authenticated user id.
const UserIDKey = "userID"

var blacklistClient *redis.Client

// InitAuthMiddleware wires the Redis client used for the token blacklist.
// A nil client disables blacklist checks.
func InitAuthMiddleware(client *redis.Client) {
	blacklistClient = client
}

// AuthMiddleware validates the bearer token and injects the user id into
// the request context. The services trust this completely; they never
// re-derive identity by other means.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		token := parts[1]

		if isBlacklisted(r.Context(), token) {
			http.Error(w, "Token has been revoked", http.StatusUnauthorized)
			return
		}

		userID, err := ValidateToken(token)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isBlacklisted(ctx context.Context, token string) bool {
	if blacklistClient == nil {
		return false
	}
	key := fmt.Sprintf("blacklist:%s", token)
	exists, err := blacklistClient.Exists(ctx, key).Result()
	if err != nil {
		log.Printf("[AUTH] Blacklist lookup failed: %v", err)
		return false
	}
	return exists > 0
}

// ValidateToken checks an access token's signature and expiry and returns
// the user id it encodes.
func ValidateToken(tokenString string) (int, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(viper.GetString("jwt.secret_key")), nil
	})
	if err != nil || !token.Valid {
		return 0, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("invalid token claims")
	}

	switch id := claims["user_id"].(type) {
	case float64:
		return int(id), nil
	default:
		return 0, fmt.Errorf("invalid user_id claim")
	}
}
