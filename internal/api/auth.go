package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/viper"
	"golang.org/x/crypto/scrypt"
)

const tokenLifetime = 24 * time.Hour

// HashAPIKey derives an scrypt hash for storage in the config file,
// formatted as salt:hash in hex.
func HashAPIKey(apiKey string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %v", err)
	}

	hash, err := scrypt.Key([]byte(apiKey), salt, 32768, 8, 1, 32)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %v", err)
	}

	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(hash), nil
}

// VerifyAPIKey checks a presented key against the stored salt:hash value
func VerifyAPIKey(apiKey, stored string) bool {
	parts := strings.SplitN(stored, ":", 2)
	if len(parts) != 2 {
		return false
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}

	hash, err := scrypt.Key([]byte(apiKey), salt, 32768, 8, 1, 32)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(hash, expected) == 1
}

// IssueToken signs a JWT for an authenticated dashboard client
func IssueToken(now time.Time) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "dashboard",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(GetJWTKey())
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %v", err)
	}
	return signed, nil
}

// Authenticate validates the presented API key against configuration
func Authenticate(apiKey string) bool {
	stored := viper.GetString("wallet_api_key")
	if stored == "" {
		return false
	}
	return VerifyAPIKey(apiKey, stored)
}
