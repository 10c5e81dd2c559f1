// Package authware provides fiber middleware that gates requests on bearer
// tokens. It mirrors the small claim and validator interfaces it needs
// instead of importing the auth package, which keeps the dependency arrow
// pointing one way.
package authware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

var (
	// ErrTokenMissing rejects requests that carry no bearer token at all.
	ErrTokenMissing = goerrors.New("token must be provided", goerrors.CategoryAuth).
		WithTextCode("TOKEN_MISSING").
		WithCode(goerrors.CodeUnauthorized)

	// ErrInsufficientRole rejects authenticated requests whose role does not
	// satisfy the route's requirement.
	ErrInsufficientRole = goerrors.New("insufficient role", goerrors.CategoryAuthz).
		WithTextCode("INSUFFICIENT_ROLE").
		WithCode(goerrors.CodeForbidden)
)

// AuthClaims mirrors the claim surface the middleware needs. The auth
// package's JWT claims satisfy it structurally.
type AuthClaims interface {
	UserID() string
	Role() string
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
}

// Validator checks a raw token and returns its claims. Typically an adapter
// over the auth package's token service.
type Validator func(tokenString string) (AuthClaims, error)

// Config configures the middleware.
type Config struct {
	// Validator is required.
	Validator Validator

	// ContextKey is the fiber locals key the claims are stored under.
	// Defaults to "user".
	ContextKey string

	// Filter skips the middleware for matching requests.
	Filter func(*fiber.Ctx) bool

	// ErrorHandler renders rejections. The default writes the error's HTTP
	// code and message as JSON.
	ErrorHandler func(*fiber.Ctx, error) error

	// ContextEnricher propagates claims into the request's standard context
	// after successful validation.
	ContextEnricher func(ctx context.Context, claims AuthClaims) context.Context
}

func (cfg Config) withDefaults() Config {
	if cfg.Validator == nil {
		panic("authware: Validator is required")
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
	return cfg
}

func defaultErrorHandler(c *fiber.Ctx, err error) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		code := rich.Code
		if code == 0 {
			code = fiber.StatusUnauthorized
		}
		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"error":   rich.Message,
		})
	}

	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   "invalid or expired token",
	})
}

// TokenFromHeader pulls the raw token out of an Authorization header value.
// The Bearer prefix is optional and case-insensitive. A prefix followed by
// nothing but whitespace yields "": that is a missing token, not a token
// whose value is "Bearer".
func TokenFromHeader(header string) string {
	h := strings.TrimLeft(header, " \t")

	const scheme = "Bearer"
	if len(h) > len(scheme) && strings.EqualFold(h[:len(scheme)], scheme) {
		if c := h[len(scheme)]; c == ' ' || c == '\t' {
			return strings.TrimSpace(h[len(scheme):])
		}
	}

	return strings.TrimSpace(h)
}

// New returns middleware that requires a valid token. Requests without one
// are rejected with 401 before any role check can run.
func New(config Config) fiber.Handler {
	cfg := config.withDefaults()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		if _, err := authenticate(c, cfg); err != nil {
			return cfg.ErrorHandler(c, err)
		}

		return c.Next()
	}
}

// Optional returns middleware that attaches claims when a valid token is
// present and lets the request through anonymously otherwise. An invalid
// token is treated the same as no token.
func Optional(config Config) fiber.Handler {
	cfg := config.withDefaults()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw := TokenFromHeader(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			return c.Next()
		}

		claims, err := cfg.Validator(raw)
		if err != nil {
			return c.Next()
		}

		c.Locals(cfg.ContextKey, claims)

		if cfg.ContextEnricher != nil {
			c.SetUserContext(cfg.ContextEnricher(c.UserContext(), claims))
		}

		return c.Next()
	}
}

// RequireRoles returns middleware that requires a valid token AND one of the
// given roles. Authentication failures always surface as 401; only an
// authenticated caller with the wrong role sees 403.
func RequireRoles(config Config, roles ...string) fiber.Handler {
	cfg := config.withDefaults()

	return func(c *fiber.Ctx) error {
		claims, err := authenticate(c, cfg)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		for _, role := range roles {
			if claims.HasRole(role) {
				return c.Next()
			}
		}

		return cfg.ErrorHandler(c, ErrInsufficientRole)
	}
}

// RequireMinRole returns middleware like RequireRoles but gates on the role
// hierarchy instead of an exact set.
func RequireMinRole(config Config, minRole string) fiber.Handler {
	cfg := config.withDefaults()

	return func(c *fiber.Ctx) error {
		claims, err := authenticate(c, cfg)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		if !claims.IsAtLeast(minRole) {
			return cfg.ErrorHandler(c, ErrInsufficientRole)
		}

		return c.Next()
	}
}

// authenticate runs the shared required-token step: extract, validate,
// attach. Role checks happen only after it succeeds.
func authenticate(c *fiber.Ctx, cfg Config) (AuthClaims, error) {
	raw := TokenFromHeader(c.Get(fiber.HeaderAuthorization))
	if raw == "" {
		return nil, ErrTokenMissing
	}

	claims, err := cfg.Validator(raw)
	if err != nil {
		return nil, err
	}

	c.Locals(cfg.ContextKey, claims)

	if cfg.ContextEnricher != nil {
		c.SetUserContext(cfg.ContextEnricher(c.UserContext(), claims))
	}

	return claims, nil
}

// ClaimsFrom reads previously attached claims from fiber locals.
func ClaimsFrom(c *fiber.Ctx, contextKey string) (AuthClaims, bool) {
	if contextKey == "" {
		contextKey = "user"
	}
	claims, ok := c.Locals(contextKey).(AuthClaims)
	return claims, ok
}
