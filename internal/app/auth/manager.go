// Package auth issues and verifies the HS256 session tokens used by the API.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredentials is returned on a failed login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidToken is returned when a token fails verification.
var ErrInvalidToken = errors.New("invalid token")

// User is a configured API user. PasswordHash is the hex SHA-256 of the
// password.
type User struct {
	ID           string
	Handle       string
	PasswordHash string
	Role         string
}

// Identity is the verified subject of a token.
type Identity struct {
	UserID string
	Handle string
	Role   string
}

type claims struct {
	Handle string `json:"handle"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues and verifies session tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	users  map[string]User
}

// NewManager creates a token manager. The secret must be non-empty.
func NewManager(secret string, ttl time.Duration, users []User) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	byHandle := make(map[string]User, len(users))
	for _, u := range users {
		if u.Handle == "" || u.PasswordHash == "" {
			return nil, fmt.Errorf("auth user needs handle and password hash")
		}
		byHandle[strings.ToLower(u.Handle)] = u
	}
	return &Manager{secret: []byte(secret), ttl: ttl, users: byHandle}, nil
}

// HashPassword returns the hex SHA-256 digest used in User.PasswordHash.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Login checks credentials and returns a signed token.
func (m *Manager) Login(handle, password string) (string, error) {
	user, ok := m.users[strings.ToLower(strings.TrimSpace(handle))]
	if !ok {
		// Burn the comparison anyway to keep timing uniform.
		subtle.ConstantTimeCompare([]byte(HashPassword(password)), []byte(HashPassword("")))
		return "", ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(HashPassword(password)), []byte(user.PasswordHash)) != 1 {
		return "", ErrInvalidCredentials
	}

	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Handle: user.Handle,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	return token.SignedString(m.secret)
}

// Verify parses a token and returns the identity it carries.
func (m *Manager) Verify(tokenString string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	c, ok := parsed.Claims.(*claims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: c.Subject, Handle: c.Handle, Role: c.Role}, nil
}
