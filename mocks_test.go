package auth_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/wordnest/go-auth"
)

// memoryUsers is an in-memory credential store. Uniqueness is enforced
// atomically under the store mutex, the same guarantee a unique constraint
// gives the real store.
type memoryUsers struct {
	mu          sync.Mutex
	byID        map[uuid.UUID]*auth.User
	getByIDHits int

	// registerErr, when set, fails every insert; simulates a store outage
	registerErr error
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{
		byID: make(map[uuid.UUID]*auth.User),
	}
}

var _ auth.Users = (*memoryUsers)(nil)

func notFound(key, value string) error {
	return repository.NewRecordNotFound().
		WithMetadata(map[string]any{key: value})
}

func cloneUser(u *auth.User) *auth.User {
	clone := *u
	return &clone
}

func (s *memoryUsers) GetByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.getByIDHits++

	user, ok := s.byID[id]
	if !ok || user.DeletedAt != nil {
		return nil, notFound("id", id.String())
	}
	return cloneUser(user), nil
}

func (s *memoryUsers) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.byID {
		if user.Username == username && user.DeletedAt == nil {
			return cloneUser(user), nil
		}
	}
	return nil, notFound("username", username)
}

func (s *memoryUsers) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.byID {
		if user.Email == email && user.DeletedAt == nil {
			return cloneUser(user), nil
		}
	}
	return nil, notFound("email", email)
}

func (s *memoryUsers) GetByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	if id, err := uuid.Parse(identifier); err == nil {
		if user, err := s.GetByID(ctx, id); err == nil {
			return user, nil
		}
	}
	if user, err := s.GetByEmail(ctx, identifier); err == nil {
		return user, nil
	}
	if user, err := s.GetByUsername(ctx, identifier); err == nil {
		return user, nil
	}
	return nil, notFound("identifier", identifier)
}

func (s *memoryUsers) UsernameExists(ctx context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usernameExistsLocked(username), nil
}

func (s *memoryUsers) EmailExists(ctx context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emailExistsLocked(strings.ToLower(strings.TrimSpace(email))), nil
}

// existence spans soft-deleted rows: names are never recycled
func (s *memoryUsers) usernameExistsLocked(username string) bool {
	for _, user := range s.byID {
		if user.Username == username {
			return true
		}
	}
	return false
}

func (s *memoryUsers) emailExistsLocked(email string) bool {
	for _, user := range s.byID {
		if user.Email == email {
			return true
		}
	}
	return false
}

func (s *memoryUsers) Register(ctx context.Context, user *auth.User) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registerErr != nil {
		return nil, s.registerErr
	}

	if s.usernameExistsLocked(user.Username) {
		return nil, goerrors.New("users.username unique constraint violated", goerrors.CategoryConflict)
	}
	if s.emailExistsLocked(user.Email) {
		return nil, goerrors.New("users.email unique constraint violated", goerrors.CategoryConflict)
	}

	record := cloneUser(user)
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Role == "" {
		record.Role = auth.RoleUser
	}
	record.EnsureStatus()
	now := time.Now()
	record.CreatedAt = &now
	record.UpdatedAt = &now

	s.byID[record.ID] = record
	return cloneUser(record), nil
}

func (s *memoryUsers) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok || user.DeletedAt != nil {
		return notFound("id", id.String())
	}

	user.PasswordHash = passwordHash
	now := time.Now()
	user.UpdatedAt = &now
	return nil
}

func (s *memoryUsers) TrackSuccessfulLogin(ctx context.Context, user *auth.User, remoteAddr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[user.ID]
	if !ok {
		return notFound("id", user.ID.String())
	}

	now := time.Now()
	stored.LastLoginAt = &now
	stored.LastLoginHost = remoteAddr
	stored.LoginCount++
	return nil
}

func (s *memoryUsers) SoftDelete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok || user.DeletedAt != nil {
		return notFound("id", id.String())
	}

	now := time.Now()
	user.Status = auth.UserStatusDeleted
	user.DeletedAt = &now
	return nil
}

func (s *memoryUsers) VerifyEmail(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok || user.DeletedAt != nil {
		return notFound("id", id.String())
	}

	user.EmailVerified = true
	if user.Status == auth.UserStatusInactive {
		user.Status = auth.UserStatusActive
	}
	return nil
}

// setStatus mutates an account's status directly, bypassing the service, to
// simulate administrative suspension.
func (s *memoryUsers) setStatus(id uuid.UUID, status auth.UserStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.byID[id]; ok {
		user.Status = status
	}
}

func (s *memoryUsers) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getByIDHits
}

func (s *memoryUsers) delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

// memoryRepoManager satisfies auth.RepositoryManager around memoryUsers.
type memoryRepoManager struct {
	users *memoryUsers
}

var _ auth.RepositoryManager = (*memoryRepoManager)(nil)

func newMemoryRepoManager() *memoryRepoManager {
	return &memoryRepoManager{users: newMemoryUsers()}
}

func (m *memoryRepoManager) Users() auth.Users { return m.users }
func (m *memoryRepoManager) Validate() error   { return nil }
func (m *memoryRepoManager) MustValidate()     {}

func (m *memoryRepoManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

// recordingMailer captures one-time code deliveries.
type recordingMailer struct {
	mu    sync.Mutex
	sends []mailerSend
}

type mailerSend struct {
	address string
	code    string
	purpose string
}

var _ auth.Mailer = (*recordingMailer)(nil)

func (m *recordingMailer) SendOneTimeCode(_ context.Context, address, code, purpose string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, mailerSend{address: address, code: code, purpose: purpose})
	return nil
}

func (m *recordingMailer) sent() []mailerSend {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mailerSend, len(m.sends))
	copy(out, m.sends)
	return out
}
