package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// TokenService signs and verifies the compact bearer tokens
type TokenService interface {
	Generate(user *User) (string, error)
	Validate(tokenString string) (AuthClaims, error)
	TTL() time.Duration
}

// PasswordAuthenticator computes and verifies password hashes
type PasswordAuthenticator interface {
	Hash(password string) (string, error)
	Compare(password, hash string) error
}

// Mailer is the email delivery collaborator. It is fire-and-forget from the
// auth core's perspective: a failed send never corrupts auth state.
type Mailer interface {
	SendOneTimeCode(ctx context.Context, address, code, purpose string) error
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() string
	GetBcryptCost() int
	GetListenAddr() string
	GetDatabaseDSN() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
