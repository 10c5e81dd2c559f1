package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var updatePasswordHashSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var softDeleteSQL = `UPDATE "users" AS "usr"
SET
	"status" = ?,
	"deleted_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var verifyEmailSQL = `UPDATE "users" AS "usr"
SET
	"is_email_verified" = TRUE,
	"status" = CASE WHEN "usr"."status" = ? THEN ? ELSE "usr"."status" END,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// Users is the credential store contract consumed by the auth core.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Register(ctx context.Context, user *User) (*User, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error
	TrackSuccessfulLogin(ctx context.Context, user *User, remoteAddr string) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	VerifyEmail(ctx context.Context, id uuid.UUID) error
}

type users struct {
	repo repository.Repository[*User]
	db   *bun.DB
}

var _ Users = (*users)(nil)

// NewUsersRepository builds the bun-backed credential store.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &users{
		repo: repo,
		db:   db,
	}
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.getByColumn(ctx, "id", id.String())
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.getByColumn(ctx, "username", username)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.getByColumn(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

// GetByIdentifier resolves a login identifier that can be a user id, an
// email, or a username, probing the most specific column first.
func (a *users) GetByIdentifier(ctx context.Context, identifier string) (*User, error) {
	for _, opt := range resolveUserIdentifier(identifier) {
		record, err := a.getByColumn(ctx, opt.column, opt.value)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}
		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *users) getByColumn(ctx context.Context, column, value string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if isEmptyResult(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{column: value})
		}
		return nil, err
	}

	return record, nil
}

// UsernameExists checks across all accounts, soft-deleted included:
// uniqueness is not scoped to live rows.
func (a *users) UsernameExists(ctx context.Context, username string) (bool, error) {
	return a.db.NewSelect().
		Model((*User)(nil)).
		WhereAllWithDeleted().
		Where("?TableAlias.username = ?", username).
		Exists(ctx)
}

// EmailExists checks across all accounts, soft-deleted included.
func (a *users) EmailExists(ctx context.Context, email string) (bool, error) {
	return a.db.NewSelect().
		Model((*User)(nil)).
		WhereAllWithDeleted().
		Where("?TableAlias.email = ?", strings.ToLower(strings.TrimSpace(email))).
		Exists(ctx)
}

// Register inserts a new account. The username/email unique constraints on
// the table are the real duplicate guarantee; the service's existence checks
// only produce friendlier errors.
func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	prepareUserDefaults(user)
	return a.repo.CreateTx(ctx, a.db, user)
}

func (a *users) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	res, err := a.repo.RawTx(ctx, a.db, updatePasswordHashSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

// TrackSuccessfulLogin records the login timestamp and originating address
// and increments the login counter.
func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User, remoteAddr string) error {
	lastLoginAt := time.Now()
	_, err := a.db.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"last_login_at" = ?,
			"last_login_host" = ?,
			"login_count" = "login_count" + 1
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, lastLoginAt, remoteAddr, user.ID).Exec(ctx)

	return err
}

// SoftDelete marks the account deleted and stamps deleted_at. The record is
// retained; deleted is terminal.
func (a *users) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res, err := a.repo.RawTx(ctx, a.db, softDeleteSQL, UserStatusDeleted, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

// VerifyEmail flips the verified flag and promotes an inactive account to
// active so it can log in.
func (a *users) VerifyEmail(ctx context.Context, id uuid.UUID) error {
	res, err := a.repo.RawTx(ctx, a.db, verifyEmailSQL, UserStatusInactive, UserStatusActive, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleUser
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

func isEmptyResult(err error) bool {
	if err == nil {
		return false
	}
	return repository.IsRecordNotFound(err) || strings.Contains(err.Error(), "no rows in result set")
}

type identifierOption struct {
	column string
	value  string
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  strings.ToLower(trimmed),
		})
	}

	options = append(options, identifierOption{
		column: "username",
		value:  trimmed,
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
