package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"medicare_service/internal/models"
)

const (
	codeMin = 100000
	codeMax = 999999
)

// Store holds at most one live challenge per key.
// Implementations must make Verify atomic per key: of two concurrent
// verifications with the right code only one may succeed.
type Store interface {
	// Save replaces any challenge stored under key and resets its attempts.
	Save(ctx context.Context, key, code string, ttl time.Duration) error
	// Verify consumes the challenge when code matches. A mismatch leaves it
	// live until the store's attempt limit is reached.
	Verify(ctx context.Context, key, code string) (bool, error)
	// Discard removes the challenge only if it still holds code.
	Discard(ctx context.Context, key, code string) error
}

// Generate returns a uniformly random code in [100000, 999999].
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", fmt.Errorf("otp.Generate: %w", err)
	}

	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}

// Key scopes a challenge to the account role so a patient and a doctor
// registered under the same address never share a code.
func Key(role models.Role, email string) string {
	return string(role) + ":" + email
}
