package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultSecretLength is the length of secrets printed by `groupchat keygen`.
const DefaultSecretLength = 50

const secretAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*(-_=+)"

// GenerateSecret returns a random signing secret of length characters.
func GenerateSecret(length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("secret length must be positive, got %d", length)
	}

	size := big.NewInt(int64(len(secretAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		out[i] = secretAlphabet[n.Int64()]
	}
	return string(out), nil
}
