package auth

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the lifecycle state of an account
type UserStatus = string

const (
	// UserStatusActive can authenticate and hold valid tokens
	UserStatusActive UserStatus = "active"
	// UserStatusInactive has registered but not verified their email
	UserStatusInactive UserStatus = "inactive"
	// UserStatusSuspended is blocked by an administrator
	UserStatusSuspended UserStatus = "suspended"
	// UserStatusDeleted is the terminal soft-delete state; the record remains
	UserStatusDeleted UserStatus = "deleted"
)

// Gender is an optional profile attribute carried into token claims
type Gender = string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// User is the account model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role          UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	DisplayName   string     `bun:"display_name" json:"display_name,omitempty"`
	Gender        Gender     `bun:"gender" json:"gender,omitempty"`
	Phone         string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash  string     `bun:"password_hash" json:"-"`
	Status        UserStatus `bun:"status,notnull" json:"status,omitempty"`
	EmailVerified bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	LoginCount    int        `bun:"login_count" json:"login_count,omitempty"`
	LastLoginAt   *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	LastLoginHost string     `bun:"last_login_host" json:"last_login_host,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus defaults a zero status to active
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

// PublicIdentity returns the redacted view of the account that is safe to
// return to callers. It never carries the password hash.
func (u *User) PublicIdentity() *PublicIdentity {
	return &PublicIdentity{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		Gender:        u.Gender,
		Role:          string(u.Role),
		EmailVerified: u.EmailVerified,
	}
}

// PublicIdentity is the redacted account view embedded in auth responses
type PublicIdentity struct {
	ID            uuid.UUID `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Gender        Gender    `json:"gender,omitempty"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"is_email_verified"`
}

// statusTransitions is the allowed lifecycle graph. Deleted is terminal.
var statusTransitions = map[UserStatus]map[UserStatus]struct{}{
	UserStatusInactive: {
		UserStatusActive:  {},
		UserStatusDeleted: {},
	},
	UserStatusActive: {
		UserStatusSuspended: {},
		UserStatusDeleted:   {},
	},
	UserStatusSuspended: {
		UserStatusActive:  {},
		UserStatusDeleted: {},
	},
	UserStatusDeleted: {},
}

// CanTransition reports whether a status change is allowed by the lifecycle
// graph.
func CanTransition(from, to UserStatus) bool {
	targets, ok := statusTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// statusAuthError maps a non-active status to its auth rejection.
func statusAuthError(status UserStatus) error {
	switch status {
	case UserStatusActive:
		return nil
	default:
		return goerrors.New(ErrAccountDisabled.Message, ErrAccountDisabled.Category).
			WithTextCode(ErrAccountDisabled.TextCode).
			WithCode(ErrAccountDisabled.Code).
			WithMetadata(map[string]any{"status": status})
	}
}
