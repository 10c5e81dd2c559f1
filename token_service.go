package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenServiceImpl implements the TokenService interface. The expiry
// duration is parsed once at construction; issuance only does arithmetic.
type TokenServiceImpl struct {
	signingKey []byte
	ttl        time.Duration
	logger     Logger
	now        func() time.Time
}

// NewTokenService creates a new TokenService instance. The expiresIn string
// follows the `<digits><unit>` grammar (d, h, m, s); a malformed value or an
// empty signing key is a fatal configuration error.
func NewTokenService(signingKey []byte, expiresIn string, logger Logger) (*TokenServiceImpl, error) {
	if len(signingKey) == 0 {
		return nil, ConfigurationError("token signing key must not be empty")
	}

	ttl, err := ParseExpiry(expiresIn)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = defLogger{}
	}

	return &TokenServiceImpl{
		signingKey: signingKey,
		ttl:        ttl,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// WithClock overrides the clock used for iat/exp. Useful in tests.
func (ts *TokenServiceImpl) WithClock(now func() time.Time) *TokenServiceImpl {
	if now != nil {
		ts.now = now
	}
	return ts
}

// TTL returns the configured token lifetime.
func (ts *TokenServiceImpl) TTL() time.Duration {
	return ts.ttl
}

// Generate creates a signed token from the current account state
func (ts *TokenServiceImpl) Generate(user *User) (string, error) {
	if user == nil {
		return "", goerrors.New("user must not be nil", goerrors.CategoryInternal)
	}

	now := ts.now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
		UID:      user.ID.String(),
		Username: user.Username,
		Gender:   user.Gender,
		UserRole: string(user.Role),
	}

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims.
// An expired token is rejected as ErrTokenExpired, distinct from the
// malformed/invalid-signature rejection. Clock skew is not compensated.
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	})

	if err != nil {
		// a bad signature outranks an expired claim: only a correctly
		// signed token may be reported as expired
		if goerrors.Is(err, jwt.ErrTokenExpired) && !goerrors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrTokenExpired
		}
		return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithCode(ErrTokenMalformed.Code)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService validate could not decode claims")
	return nil, ErrTokenMalformed
}
