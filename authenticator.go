package auth

import (
	"context"
	"net/mail"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 50
	passwordMinLen = 6
	passwordMaxLen = 100
)

// dummyBcryptHash keeps the "no such account" path as expensive as the
// "wrong password" path so response time does not leak account existence.
// It is not a real credential and never matches any password.
const dummyBcryptHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// RegisterUserMessage is the registration input
type RegisterUserMessage struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
	Gender      Gender `json:"gender,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// AuthResponse pairs a freshly minted token with the redacted identity view
type AuthResponse struct {
	Token string          `json:"token"`
	User  *PublicIdentity `json:"user"`
}

// Auther orchestrates registration, login, token verification and refresh,
// and password change. It is the only component with business rules; the
// hasher, token service, and store are collaborators.
type Auther struct {
	repo   RepositoryManager
	hasher PasswordAuthenticator
	tokens TokenService
	mailer Mailer
	logger Logger
}

// NewAuthenticator returns a new Auther
func NewAuthenticator(repo RepositoryManager, tokens TokenService) *Auther {
	return &Auther{
		repo:   repo,
		tokens: tokens,
		hasher: NewPasswordHasher(DefaultBcryptCost),
		mailer: NewLogMailer(nil),
		logger: defLogger{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithHasher overrides the password hasher, e.g. to tune the bcrypt cost.
func (s *Auther) WithHasher(hasher PasswordAuthenticator) *Auther {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

// WithMailer configures the email delivery collaborator.
func (s *Auther) WithMailer(mailer Mailer) *Auther {
	if mailer != nil {
		s.mailer = mailer
	}
	return s
}

// Tokens returns the TokenService instance used by this Auther
func (s *Auther) Tokens() TokenService {
	return s.tokens
}

// Register validates the input, checks username and email availability,
// hashes the password, inserts the account, and issues a token. The two
// existence checks and the insert are separate store calls; the table's
// unique constraints are what actually guarantees uniqueness under
// concurrent registration (see the repository docs).
func (s *Auther) Register(ctx context.Context, msg RegisterUserMessage) (*AuthResponse, error) {
	if err := validateRegisterInput(msg); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(msg.Username)
	email := strings.ToLower(strings.TrimSpace(msg.Email))

	usernameTaken, err := s.repo.Users().UsernameExists(ctx, username)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check username availability")
	}
	if usernameTaken {
		return nil, ErrUsernameTaken
	}

	emailTaken, err := s.repo.Users().EmailExists(ctx, email)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
	}
	if emailTaken {
		return nil, ErrEmailTaken
	}

	hash, err := s.hasher.Hash(msg.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user := &User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayNameOrDefault(msg.DisplayName, username),
		Gender:       msg.Gender,
		Phone:        strings.TrimSpace(msg.Phone),
		Role:         RoleUser,
		Status:       UserStatusActive,
	}

	user, err = s.repo.Users().Register(ctx, user)
	if err != nil {
		if isUniqueViolation(err) {
			// lost the check-then-insert race: the unique constraint fired
			return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user").
				WithCode(goerrors.CodeConflict)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create user")
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return nil, err
	}

	s.sendVerificationCode(ctx, user.Email)

	return &AuthResponse{
		Token: token,
		User:  user.PublicIdentity(),
	}, nil
}

// Login resolves the identifier as username-or-email and verifies the
// password. Missing accounts and wrong passwords collapse into one generic
// rejection; only a disabled account gets a distinct message.
func (s *Auther) Login(ctx context.Context, identifier, password, remoteAddr string) (*AuthResponse, error) {
	if strings.TrimSpace(identifier) == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.Users().GetByIdentifier(ctx, strings.TrimSpace(identifier))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// burn a comparison anyway so timing stays flat
			_ = s.hasher.Compare(password, dummyBcryptHash)
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during login")
	}

	user.EnsureStatus()
	if err := statusAuthError(user.Status); err != nil {
		return nil, err
	}

	if err := s.hasher.Compare(password, user.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.repo.Users().TrackSuccessfulLogin(ctx, user, remoteAddr); err != nil {
		s.logger.Error("failed to track successful login: %v", err)
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		Token: token,
		User:  user.PublicIdentity(),
	}, nil
}

// VerifyToken validates the token cryptographically, then re-reads the
// referenced account: a token for a missing, suspended, or deleted account
// is rejected even while unexpired. The store read per verification is the
// price of revocation-on-status-change.
func (s *Auther) VerifyToken(ctx context.Context, tokenString string) (AuthClaims, error) {
	claims, _, err := s.verifyLiveToken(ctx, tokenString)
	return claims, err
}

// RefreshToken fully verifies the old token, liveness re-check included,
// then issues a fresh one from the current account state so role or
// identity changes since the old mint are picked up. The account read from
// the liveness check is reused for the re-issue.
func (s *Auther) RefreshToken(ctx context.Context, tokenString string) (string, error) {
	_, user, err := s.verifyLiveToken(ctx, tokenString)
	if err != nil {
		return "", err
	}

	return s.tokens.Generate(user)
}

// verifyLiveToken validates the token and re-reads its account once,
// returning both the claims and the current account state.
func (s *Auther) verifyLiveToken(ctx context.Context, tokenString string) (AuthClaims, *User, error) {
	claims, err := s.tokens.Validate(tokenString)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.lookupClaimsUser(ctx, claims)
	if err != nil {
		return nil, nil, err
	}

	user.EnsureStatus()
	if user.Status != UserStatusActive {
		return nil, nil, ErrIdentityRevoked
	}

	return claims, user, nil
}

// ChangePassword verifies the old password and persists a new hash.
func (s *Auther) ChangePassword(ctx context.Context, id uuid.UUID, oldPassword, newPassword string) error {
	user, err := s.repo.Users().GetByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrIdentityNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during password change")
	}

	if err := s.hasher.Compare(oldPassword, user.PasswordHash); err != nil {
		return ErrPasswordMismatch
	}

	if len(newPassword) < passwordMinLen {
		return ValidationError("new password must be at least 6 characters long")
	}
	if len(newPassword) > passwordMaxLen {
		return ValidationError("new password must not exceed 100 characters")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
	}

	return s.repo.Users().UpdatePasswordHash(ctx, user.ID, hash)
}

// Me returns the redacted identity for an authenticated account id.
func (s *Auther) Me(ctx context.Context, id uuid.UUID) (*PublicIdentity, error) {
	user, err := s.repo.Users().GetByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user")
	}

	return user.PublicIdentity(), nil
}

func (s *Auther) lookupClaimsUser(ctx context.Context, claims AuthClaims) (*User, error) {
	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, ErrTokenMalformed
	}

	user, err := s.repo.Users().GetByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityRevoked
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during verification")
	}

	return user, nil
}

// sendVerificationCode fires the one-time code delivery without blocking
// registration; a mailer failure never corrupts auth state.
func (s *Auther) sendVerificationCode(ctx context.Context, address string) {
	code, err := OneTimeCode()
	if err != nil {
		s.logger.Error("failed to generate verification code: %v", err)
		return
	}

	go func(ctx context.Context) {
		if err := s.mailer.SendOneTimeCode(ctx, address, code, PurposeEmailVerification); err != nil {
			s.logger.Error("failed to deliver verification code: %v", err)
		}
	}(context.WithoutCancel(ctx))
}

func validateRegisterInput(msg RegisterUserMessage) error {
	username := strings.TrimSpace(msg.Username)
	if username == "" {
		return ValidationError("username cannot be empty")
	}
	if len(username) < usernameMinLen {
		return ValidationError("username must be at least 3 characters long")
	}
	if len(username) > usernameMaxLen {
		return ValidationError("username must not exceed 50 characters")
	}

	if _, err := mail.ParseAddress(strings.TrimSpace(msg.Email)); err != nil {
		return ValidationError("please enter a valid email address")
	}

	if len(msg.Password) < passwordMinLen {
		return ValidationError("password must be at least 6 characters long")
	}
	if len(msg.Password) > passwordMaxLen {
		return ValidationError("password must not exceed 100 characters")
	}

	switch msg.Gender {
	case "", GenderMale, GenderFemale, GenderOther:
	default:
		return ValidationError("invalid value for gender field")
	}

	if phone := strings.TrimSpace(msg.Phone); phone != "" {
		parsed, err := phonenumbers.Parse(phone, "")
		if err != nil || !phonenumbers.IsValidNumber(parsed) {
			return ValidationError("please enter a valid phone number in international format")
		}
	}

	return nil
}

// isUniqueViolation recognizes a duplicate-key insert failure across the
// drivers bun speaks (sqlite "UNIQUE constraint failed", postgres
// "duplicate key value violates unique constraint").
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Category == goerrors.CategoryConflict {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func displayNameOrDefault(displayName, username string) string {
	if trimmed := strings.TrimSpace(displayName); trimmed != "" {
		return trimmed
	}
	return username
}
