package auth

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"

	"github.com/wordnest/go-auth/middleware/authware"
)

// RegisterRequest is the /auth/register payload.
type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Gender      string `json:"gender"`
	Phone       string `json:"phone"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(usernameMinLen, usernameMaxLen)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(passwordMinLen, passwordMaxLen)),
		validation.Field(&r.Gender, validation.In("", GenderMale, GenderFemale, GenderOther)),
	)
}

// LoginRequest is the /auth/login payload. The username field accepts a
// username or an email.
type LoginRequest struct {
	Identifier string `json:"username"`
	Password   string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// ChangePasswordRequest is the /auth/change-password payload.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(passwordMinLen, passwordMaxLen)),
	)
}

// VerifyTokenRequest is the /auth/verify-token payload.
type VerifyTokenRequest struct {
	Token string `json:"token"`
}

func (r VerifyTokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

// AuthController exposes the auth service over HTTP.
type AuthController struct {
	auther *Auther
	logger Logger
}

// NewAuthController returns a controller over the given authenticator.
func NewAuthController(auther *Auther) *AuthController {
	return &AuthController{
		auther: auther,
		logger: defLogger{},
	}
}

func (ctrl *AuthController) WithLogger(logger Logger) *AuthController {
	if logger != nil {
		ctrl.logger = logger
	}
	return ctrl
}

// MiddlewareConfig builds the authware configuration backed by this
// controller's token service. Route gating is purely cryptographic; the
// store re-check happens in refresh and verify-token.
func (ctrl *AuthController) MiddlewareConfig() authware.Config {
	return authware.Config{
		Validator: func(raw string) (authware.AuthClaims, error) {
			return ctrl.auther.Tokens().Validate(raw)
		},
		ContextEnricher: func(ctx context.Context, claims authware.AuthClaims) context.Context {
			if ac, ok := claims.(AuthClaims); ok {
				return WithClaimsContext(ctx, ac)
			}
			return ctx
		},
	}
}

// RegisterAuthRoutes mounts the /auth endpoints.
func RegisterAuthRoutes(router fiber.Router, ctrl *AuthController) {
	cfg := ctrl.MiddlewareConfig()
	required := authware.New(cfg)

	group := router.Group("/auth")
	group.Post("/register", ctrl.Register)
	group.Post("/login", ctrl.Login)
	group.Post("/refresh", required, ctrl.Refresh)
	group.Post("/verify-token", ctrl.VerifyToken)
	group.Post("/logout", required, ctrl.Logout)
	group.Get("/me", required, ctrl.Me)
	group.Post("/change-password", required, ctrl.ChangePassword)
}

// RegisterAdminRoutes mounts account administration endpoints behind an
// admin role gate.
func RegisterAdminRoutes(router fiber.Router, ctrl *AuthController) {
	cfg := ctrl.MiddlewareConfig()
	adminOnly := authware.RequireRoles(cfg, string(RoleAdmin), string(RoleSuperAdmin))

	group := router.Group("/admin")
	group.Delete("/users/:id", adminOnly, ctrl.DeleteUser)
}

// Register handles POST /auth/register.
func (ctrl *AuthController) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return ctrl.respondError(c, ValidationError("invalid request body"))
	}

	if err := req.Validate(); err != nil {
		return ctrl.respondError(c, ValidationError(err.Error()))
	}

	res, err := ctrl.auther.Register(c.UserContext(), RegisterUserMessage{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Gender:      req.Gender,
		Phone:       req.Phone,
	})
	if err != nil {
		// duplicates report as bad requests on this route, like any other
		// rejected registration input
		if IsConflict(err) {
			var rich *goerrors.Error
			goerrors.As(err, &rich)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   rich.Message,
			})
		}
		return ctrl.respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "registration successful",
		"data":    res,
	})
}

// Login handles POST /auth/login.
func (ctrl *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return ctrl.respondError(c, ValidationError("invalid request body"))
	}

	if err := req.Validate(); err != nil {
		return ctrl.respondError(c, ValidationError(err.Error()))
	}

	res, err := ctrl.auther.Login(c.UserContext(), req.Identifier, req.Password, c.IP())
	if err != nil {
		return ctrl.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "login successful",
		"data":    res,
	})
}

// Refresh handles POST /auth/refresh. The presented token must still be
// valid and its account still active.
func (ctrl *AuthController) Refresh(c *fiber.Ctx) error {
	raw := authware.TokenFromHeader(c.Get(fiber.HeaderAuthorization))

	token, err := ctrl.auther.RefreshToken(c.UserContext(), raw)
	if err != nil {
		return ctrl.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "token refreshed",
		"data":    fiber.Map{"token": token},
	})
}

// VerifyToken handles POST /auth/verify-token. Unlike the route middleware,
// it re-reads the account so a disabled account reports invalid.
func (ctrl *AuthController) VerifyToken(c *fiber.Ctx) error {
	var req VerifyTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return ctrl.respondError(c, ValidationError("invalid request body"))
	}

	if err := req.Validate(); err != nil {
		return ctrl.respondError(c, ValidationError(err.Error()))
	}

	claims, err := ctrl.auther.VerifyToken(c.UserContext(), req.Token)
	if err != nil {
		return ctrl.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "token is valid",
		"data": fiber.Map{
			"user_id":    claims.UserID(),
			"username":   claims.GetUsername(),
			"role":       claims.Role(),
			"expires_at": claims.Expires(),
		},
	})
}

// Logout handles POST /auth/logout. Tokens are stateless, so this only
// acknowledges; clients discard the token.
func (ctrl *AuthController) Logout(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"message": "logged out",
	})
}

// Me handles GET /auth/me.
func (ctrl *AuthController) Me(c *fiber.Ctx) error {
	id, err := ctrl.callerID(c)
	if err != nil {
		return ctrl.respondError(c, err)
	}

	identity, err := ctrl.auther.Me(c.UserContext(), id)
	if err != nil {
		return ctrl.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    identity,
	})
}

// ChangePassword handles POST /auth/change-password for the authenticated
// account.
func (ctrl *AuthController) ChangePassword(c *fiber.Ctx) error {
	var req ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return ctrl.respondError(c, ValidationError("invalid request body"))
	}

	if err := req.Validate(); err != nil {
		return ctrl.respondError(c, ValidationError(err.Error()))
	}

	id, err := ctrl.callerID(c)
	if err != nil {
		return ctrl.respondError(c, err)
	}

	if err := ctrl.auther.ChangePassword(c.UserContext(), id, req.OldPassword, req.NewPassword); err != nil {
		return ctrl.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "password changed",
	})
}

// DeleteUser handles DELETE /admin/users/:id with a soft delete.
func (ctrl *AuthController) DeleteUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ctrl.respondError(c, ValidationError("invalid user id"))
	}

	if err := ctrl.auther.repo.Users().SoftDelete(c.UserContext(), id); err != nil {
		if repository.IsRecordNotFound(err) {
			return ctrl.respondError(c, ErrIdentityNotFound)
		}
		return ctrl.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "user deleted",
	})
}

func (ctrl *AuthController) callerID(c *fiber.Ctx) (uuid.UUID, error) {
	claims, ok := authware.ClaimsFrom(c, "user")
	if !ok {
		return uuid.Nil, ErrTokenMissing
	}

	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return uuid.Nil, ErrTokenMalformed
	}

	return id, nil
}

// respondError maps service errors to HTTP responses. Internal failures are
// logged with detail but reported generically.
func (ctrl *AuthController) respondError(c *fiber.Ctx, err error) error {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		ctrl.logger.Error("unhandled error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "internal server error",
		})
	}

	status := rich.Code
	if status == 0 {
		status = statusFromCategory(rich.Category)
	}

	message := rich.Message
	if rich.Category == goerrors.CategoryInternal {
		ctrl.logger.Error("internal error: %v", err)
		message = "internal server error"
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

func statusFromCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
