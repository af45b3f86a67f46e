// Package phone validates and normalizes Philippine mobile numbers.
package phone

import (
	"regexp"
	"strings"

	"github.com/bantai/bantai-service/internal/domain"
)

var pattern = regexp.MustCompile(`^(?:09|\+639|639)(\d{9})$`)

// Valid accepts 09XXXXXXXXX, 639XXXXXXXXX and +639XXXXXXXXX only.
func Valid(raw string) bool {
	return pattern.MatchString(strings.TrimSpace(raw))
}

// Normalize returns the E.164 form (+639XXXXXXXXX) so the same handset maps to
// one key whichever format the caller used.
func Normalize(raw string) (string, error) {
	m := pattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", domain.NewValidationError("phoneNumber", "must be a Philippine mobile number (09XXXXXXXXX or +639XXXXXXXXX)")
	}
	return "+639" + m[1], nil
}

// Local returns the 09XXXXXXXXX form some carriers expect.
func Local(raw string) (string, error) {
	normalized, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	return "0" + normalized[3:], nil
}
