package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

// Length is the required secret size in bytes. Both chain integrations
// validate the same SHA-256 commitment, so the preimage length is fixed.
const Length = 32

var ErrInvalidSecretLength = errors.New("secret must be exactly 32 bytes")

// Hashlock is the SHA-256 commitment to a swap secret.
type Hashlock [32]byte

func (h Hashlock) String() string {
	return hex.EncodeToString(h[:])
}

func HashlockFromHex(s string) (Hashlock, error) {
	var h Hashlock
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("failed to decode hashlock hex: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("hashlock must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Pair couples a secret with its hashlock. The secret stays with the
// coordinator until reveal; only the hashlock crosses process boundaries.
type Pair struct {
	Secret   []byte
	Hashlock Hashlock
}

// Generate produces a fresh secret from the OS CSPRNG and its commitment.
func Generate() (Pair, error) {
	s := make([]byte, Length)
	if _, err := rand.Read(s); err != nil {
		return Pair{}, fmt.Errorf("failed to read random secret: %w", err)
	}
	return Pair{Secret: s, Hashlock: Hash(s)}, nil
}

// Hash computes the hashlock for a secret.
func Hash(s []byte) Hashlock {
	return sha256.Sum256(s)
}

// Verify reports whether s is the preimage of lock. The comparison is
// constant-time so verification latency leaks nothing about the preimage.
func Verify(s []byte, lock Hashlock) (bool, error) {
	if len(s) != Length {
		return false, ErrInvalidSecretLength
	}
	got := Hash(s)
	return subtle.ConstantTimeCompare(got[:], lock[:]) == 1, nil
}
