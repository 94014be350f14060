package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/viper"

	"github.com/hashline-labs/walletd/internal/logger"
)

var jwtKey []byte

func (s *API) CORSMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allowedOrigin := viper.GetString("allowed_origin")
		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func (s *API) JWTMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized: Authorization header missing", http.StatusUnauthorized)
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "Unauthorized: Invalid token format", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return GetJWTKey(), nil
		})

		if err != nil {
			if validationErr, ok := err.(*jwt.ValidationError); ok {
				if validationErr.Errors&jwt.ValidationErrorExpired != 0 {
					http.Error(w, "Token expired", http.StatusUnauthorized)
					return
				}
			}
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}

		if !token.Valid {
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), contextKey("subject"), claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// LoggingMiddleware records each request to the log file
func (s *API) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info(r.Method, " ", r.URL.Path, " ", time.Since(start))
	}
}

// ErrorMiddleware wraps the handler and catches any panics, returning them as 500 errors
func (s *API) ErrorMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic occurred: ", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	}
}

// ApplyMiddleware applies a list of middleware to a handler
func ApplyMiddleware(h http.HandlerFunc, middleware ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	for _, m := range middleware {
		h = m(h)
	}
	return h
}

func GenerateJWTKey() ([]byte, error) {
	key := make([]byte, 32) // 256 bits
	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT key: %v", err)
	}
	return key, nil
}

func SaveJWTKey(key []byte) error {
	encodedKey := base64.StdEncoding.EncodeToString(key)
	keyPath := filepath.Join(viper.GetString("jwt_keys_dir"), "jwt_key")

	err := os.WriteFile(keyPath, []byte(encodedKey), 0600)
	if err != nil {
		return fmt.Errorf("failed to save JWT key: %v", err)
	}
	return nil
}

func LoadJWTKey() ([]byte, error) {
	keyPath := filepath.Join(viper.GetString("jwt_keys_dir"), "jwt_key")

	encodedKey, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT key: %v", err)
	}

	key, err := base64.StdEncoding.DecodeString(string(encodedKey))
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWT key: %v", err)
	}
	return key, nil
}

func GetJWTKey() []byte {
	return jwtKey
}

// SetJWTKey overrides the in-memory key; used by tests
func SetJWTKey(key []byte) {
	jwtKey = key
}

// EnsureJWTKey loads the signing key, generating and saving a fresh one
// when none exists yet.
func EnsureJWTKey() error {
	keysDir := viper.GetString("jwt_keys_dir")
	if _, dirErr := os.Stat(keysDir); os.IsNotExist(dirErr) {
		if err := os.MkdirAll(keysDir, 0700); err != nil {
			return fmt.Errorf("failed to create directory for JWT key: %v", err)
		}
	}

	key, err := LoadJWTKey()
	if err == nil {
		jwtKey = key
		return nil
	}
	log.Printf("No existing JWT key, generating a new one")

	newKey, genErr := GenerateJWTKey()
	if genErr != nil {
		return fmt.Errorf("failed to generate new JWT key: %v", genErr)
	}
	if saveErr := SaveJWTKey(newKey); saveErr != nil {
		return fmt.Errorf("failed to save new JWT key: %v", saveErr)
	}

	jwtKey = newKey
	return nil
}
