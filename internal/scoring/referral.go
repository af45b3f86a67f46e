package scoring

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/bantai/bantai-service/internal/domain"
)

const (
	referralCodeLength = 8
	codeAlphabet       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateReferralCode returns an 8-character code. With a known level the
// first three characters are the level prefix (LOW, MOD, HIG).
//
// Codes are random, not unique by construction: with five random characters
// per prefix (36^5 ~ 6.0e7) the chance of any collision passes 1% at roughly
// 1,100 codes per level. Storage enforces uniqueness and callers retry.
func GenerateReferralCode(level domain.RiskLevel) (string, error) {
	prefix := ""
	if level.Valid() {
		prefix = strings.ToUpper(string(level))[:3]
	}

	suffix, err := RandomCode(referralCodeLength - len(prefix))
	if err != nil {
		return "", err
	}

	return prefix + suffix, nil
}

// RandomCode draws n characters uniformly from A-Z0-9 using crypto/rand.
func RandomCode(n int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))

	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random code: %w", err)
		}
		b.WriteByte(codeAlphabet[idx.Int64()])
	}

	return b.String(), nil
}
