package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

// UserRefKey carries the caller's external user reference through the
// request context.
const UserRefKey contextKey = "userRef"

// AuthMiddleware authenticates the UI layer's service token and resolves
// the end user it is acting for.
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

		userRef, err := validateToken(parts[1])
		if err != nil || userRef == "" {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserRefKey, userRef)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminMiddleware guards operational endpoints (sweep trigger, balance
// adjustments) behind a bcrypt-hashed admin token.
func AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		if token == "" {
			http.Error(w, "Admin token required", http.StatusUnauthorized)
			return
		}

		hash := viper.GetString("admin.token_hash")
		if hash == "" {
			http.Error(w, "Admin access not configured", http.StatusForbidden)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
			http.Error(w, "Invalid admin token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// UserRef extracts the authenticated external user reference.
func UserRef(ctx context.Context) string {
	if ref, ok := ctx.Value(UserRefKey).(string); ok {
		return ref
	}
	return ""
}

func validateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(viper.GetString("jwt.secret_key")), nil
	})

	if err != nil || !token.Valid {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", err
	}

	userRef := claims["user_ref"]
	return fmt.Sprintf("%v", userRef), nil
}
