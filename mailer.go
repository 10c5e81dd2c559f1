package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

// PurposeEmailVerification is the one-time-code purpose sent on registration
const PurposeEmailVerification = "email-verification"

// LogMailer is the default Mailer: it logs instead of delivering. Deployments
// swap in a real transport via WithMailer.
type LogMailer struct {
	logger Logger
}

// NewLogMailer returns a Mailer that only logs the would-be delivery.
func NewLogMailer(logger Logger) *LogMailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &LogMailer{logger: logger}
}

// SendOneTimeCode logs the code delivery. The code itself is not logged.
func (m *LogMailer) SendOneTimeCode(_ context.Context, address, _ string, purpose string) error {
	m.logger.Info("one-time code issued for %s (%s)", address, purpose)
	return nil
}

var _ Mailer = (*LogMailer)(nil)

// OneTimeCode generates a 6-digit numeric code from the system entropy pool.
func OneTimeCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
