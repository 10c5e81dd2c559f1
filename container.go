package auth

import (
	"sync"

	"github.com/uptrace/bun"
)

// Container wires the auth components together from a Config and a database
// handle. Initialization runs exactly once; later Init calls return the
// first outcome.
type Container struct {
	config Config
	db     *bun.DB
	logger Logger
	mailer Mailer

	once    sync.Once
	initErr error

	repo   RepositoryManager
	tokens TokenService
	auther *Auther
}

// ContainerOption customizes a Container before Init runs.
type ContainerOption func(*Container)

// WithContainerLogger sets the logger used by every component the container
// builds.
func WithContainerLogger(logger Logger) ContainerOption {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContainerMailer sets the email delivery collaborator.
func WithContainerMailer(mailer Mailer) ContainerOption {
	return func(c *Container) {
		if mailer != nil {
			c.mailer = mailer
		}
	}
}

// NewContainer returns an uninitialized container. Call Init before using
// the accessors.
func NewContainer(config Config, db *bun.DB, opts ...ContainerOption) *Container {
	c := &Container{
		config: config,
		db:     db,
		logger: defLogger{},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.mailer == nil {
		c.mailer = NewLogMailer(c.logger)
	}

	return c
}

// Init builds the repository manager, token service, and authenticator.
// It is safe to call from multiple goroutines; only the first call does
// work.
func (c *Container) Init() error {
	c.once.Do(func() {
		c.initErr = c.build()
	})
	return c.initErr
}

func (c *Container) build() error {
	if c.config == nil {
		return ConfigurationError("container requires a config")
	}
	if c.db == nil {
		return ConfigurationError("container requires a database")
	}

	tokens, err := NewTokenService(
		[]byte(c.config.GetSigningKey()),
		c.config.GetTokenExpiration(),
		c.logger,
	)
	if err != nil {
		return err
	}

	repo := NewRepositoryManager(c.db)
	if err := repo.Validate(); err != nil {
		return ConfigurationError(err.Error())
	}

	c.tokens = tokens
	c.repo = repo
	c.auther = NewAuthenticator(repo, tokens).
		WithLogger(c.logger).
		WithHasher(NewPasswordHasher(c.config.GetBcryptCost())).
		WithMailer(c.mailer)

	return nil
}

// Repo returns the repository manager. Panics if Init has not succeeded.
func (c *Container) Repo() RepositoryManager {
	c.mustInit()
	return c.repo
}

// Tokens returns the token service. Panics if Init has not succeeded.
func (c *Container) Tokens() TokenService {
	c.mustInit()
	return c.tokens
}

// Auther returns the authenticator. Panics if Init has not succeeded.
func (c *Container) Auther() *Auther {
	c.mustInit()
	return c.auther
}

// Logger returns the container's logger. Available before Init.
func (c *Container) Logger() Logger {
	return c.logger
}

func (c *Container) mustInit() {
	if err := c.Init(); err != nil {
		panic(err)
	}
}
