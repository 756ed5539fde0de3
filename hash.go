package warden

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	goerrors "github.com/goliatone/go-errors"
)

// VerificationCodeLength is the number of digits in a one-time code.
const VerificationCodeLength = 6

const apiKeyBytes = 32

// Hash is the deterministic one-way transform applied to every secret before
// it is stored or compared. The wire contract already carries a client-side
// digest, so the value at rest is always hash(hash(password)) and a store
// leak alone never yields a replayable login value.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey returns a fresh high-entropy key. The plaintext is shown to
// the tenant owner exactly once; only Hash(key) is ever persisted.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read entropy for API key")
	}
	return hex.EncodeToString(buf), nil
}

// GenerateVerificationCode returns a numeric one-time code of the given
// length, each digit drawn from a cryptographically secure source.
func GenerateVerificationCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read entropy for verification code")
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
