package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

type JwtCustomClaim struct {
	ID   int    `json:"id"`
	Role string `json:"role"`
	jwt.StandardClaims
}

var jwtSecret = []byte(getJwtSecret())

func getJwtSecret() string {
	secret := os.Getenv("API_SECRET")
	if secret == "" {
		return "LineCheck-Secret"
	}
	return secret
}

func getTokenLifespan() int {
	token_lifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || token_lifespan <= 0 {
		return 72
	}
	return token_lifespan
}

func JwtGenerate(userID int, role string) (string, error) {
	token_lifespan := getTokenLifespan()

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{
		ID:   userID,
		Role: role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour * time.Duration(token_lifespan)).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	})

	token, err := t.SignedString(jwtSecret)
	if err != nil {
		return "", err
	}

	return token, nil
}

func JwtValidate(token string) (*jwt.Token, error) {
	return jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return jwtSecret, nil
	})
}

/* Magic-link tokens */

// magicTokenBytes is the raw entropy per link token (43 chars once base64url encoded).
const magicTokenBytes = 32

// NewMagicToken returns a fresh opaque link token and its storable digest.
// Only the digest may be persisted; the plaintext goes out in the link URL once.
func NewMagicToken() (token string, digest string, err error) {
	buf := make([]byte, magicTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, HashMagicToken(token), nil
}

// HashMagicToken derives the persisted digest for a presented link token.
// Deterministic on purpose: the assignment row is looked up by this value.
func HashMagicToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MagicTokenDigestEqual compares two digests in constant time.
func MagicTokenDigestEqual(a string, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
