package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims represents the structured identity claims carried in a token
type AuthClaims interface {
	Subject() string
	UserID() string
	GetUsername() string
	GetGender() Gender
	Role() string
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims. The JSON field
// names are the wire format: userId, username, gender, role, plus the
// registered iat/exp in epoch seconds.
type JWTClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"userId"`
	Username string `json:"username"`
	Gender   Gender `json:"gender,omitempty"`
	UserRole string `json:"role"`
}

// Verify interface compliance
var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the account id, falling back to the subject claim
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// GetUsername returns the username claim
func (c *JWTClaims) GetUsername() string {
	return c.Username
}

// GetGender returns the optional gender claim
func (c *JWTClaims) GetGender() Gender {
	return c.Gender
}

// Role returns the account role
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// HasRole checks if the claims carry a specific role
func (c *JWTClaims) HasRole(role string) bool {
	return c.UserRole == role
}

// IsAtLeast checks if the role is at least the minimum required role
func (c *JWTClaims) IsAtLeast(minRole string) bool {
	return UserRole(c.UserRole).IsAtLeast(UserRole(minRole))
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
