package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers malformed, tampered, and expired session tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// NewOpaque returns a fresh random token and its storage digest. The
// plaintext is handed to the client exactly once; only the digest is
// persisted, so a database dump never yields usable tokens.
func NewOpaque() (plaintext, digest string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("read random bytes: %w", err)
	}
	plaintext = hex.EncodeToString(buf)
	return plaintext, Digest(plaintext), nil
}

// Digest derives the storage digest for an opaque token. Deterministic, so a
// caller-supplied token can be matched against the stored value.
func Digest(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

type sessionClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// Codec signs and verifies session tokens.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

func NewCodec(secret []byte, ttl time.Duration) *Codec {
	return &Codec{secret: secret, ttl: ttl}
}

// IssueSession produces a signed token embedding the user ID and issue time.
func (c *Codec) IssueSession(userID string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		UserID: userID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// VerifySession validates signature and expiry, returning the embedded user
// ID and issue time. Any failure maps to ErrInvalidToken.
func (c *Codec) VerifySession(tokenString string) (string, time.Time, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", time.Time{}, ErrInvalidToken
	}
	if claims.UserID == "" || claims.IssuedAt == nil {
		return "", time.Time{}, ErrInvalidToken
	}
	return claims.UserID, claims.IssuedAt.Time, nil
}
