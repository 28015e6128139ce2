package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lte-gateway/enodebd/internal/config"
	"github.com/lte-gateway/enodebd/pkg/crypto"
)

const issuer = "enodebd"

// ErrInvalidCredentials is returned when a login does not match the operator account
var ErrInvalidCredentials = errors.New("invalid credentials")

// JWTManager issues and checks operator tokens
type JWTManager struct {
	config *config.JWTConfig
	admin  config.AdminConfig
	now    func() time.Time
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(cfg *config.JWTConfig, admin config.AdminConfig) *JWTManager {
	return &JWTManager{
		config: cfg,
		admin:  admin,
		now:    time.Now,
	}
}

// Claims represents JWT claims
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Login checks the operator credentials and returns an access token
func (m *JWTManager) Login(username, password string) (string, time.Time, error) {
	if m.admin.PasswordHash == "" || username != m.admin.Username {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if !crypto.VerifyPassword(password, m.admin.PasswordHash) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return m.GenerateToken(username)
}

// GenerateToken generates an access token for a user
func (m *JWTManager) GenerateToken(username string) (string, time.Time, error) {
	now := m.now()
	expires := now.Add(m.config.AccessTokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			ID:        uuid.New().String(),
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expires, nil
}

// ValidateToken validates a token
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.Secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
