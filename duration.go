package auth

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// expiryPattern is the accepted token lifetime grammar: digits followed by a
// single unit letter (d, h, m, or s).
var expiryPattern = regexp.MustCompile(`^(\d+)([dhms])$`)

// ParseExpiry converts a duration string like "7d", "12h", "30m", or "45s"
// into a time.Duration. It is called once at startup; a malformed value is a
// configuration error, never a per-request one.
func ParseExpiry(expiresIn string) (time.Duration, error) {
	match := expiryPattern.FindStringSubmatch(expiresIn)
	if match == nil {
		return 0, ConfigurationError(fmt.Sprintf("invalid token expiration format: %q", expiresIn))
	}

	value, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, ConfigurationError(fmt.Sprintf("invalid token expiration value: %q", expiresIn))
	}

	var unit time.Duration
	switch match[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}

	d := time.Duration(value) * unit
	if d <= 0 {
		return 0, ConfigurationError(fmt.Sprintf("token expiration must be positive, got %q", expiresIn))
	}

	return d, nil
}
