package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dan9191/portfolio-analytics/internal/config"
)

// ErrInvalidCredentials is returned for any failed login or token check
var ErrInvalidCredentials = errors.New("invalid credentials")

const tokenTTL = 24 * time.Hour

// Authenticator checks the operator's password and issues HS256 tokens
type Authenticator struct {
	username     string
	passwordHash []byte
	secret       []byte
	now          func() time.Time
}

// NewAuthenticator builds an authenticator from the operator credentials in cfg
func NewAuthenticator(cfg *config.Config) *Authenticator {
	return &Authenticator{
		username:     cfg.OperatorUsername,
		passwordHash: []byte(cfg.OperatorPasswordHash),
		secret:       []byte(cfg.JWTSecret),
		now:          time.Now,
	}
}

// Login authenticates the operator and returns a JWT token
func (a *Authenticator) Login(username, password string) (string, error) {
	if len(a.passwordHash) == 0 || username != a.username {
		return "", ErrInvalidCredentials
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	// Generate JWT
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	})
	tokenString, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// Verify parses a token and returns its subject
func (a *Authenticator) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return "", ErrInvalidCredentials
	}
	if claims.Subject == "" {
		return "", ErrInvalidCredentials
	}
	return claims.Subject, nil
}

// HashPassword produces the bcrypt hash expected in OPERATOR_PASSWORD_HASH
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}
