package util

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// codeAlphabet excludes ambiguous characters (I, O, 0, 1) for codes that
// are entered by hand at the point of sale.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateCode returns a random uppercase code of the requested length.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("util: invalid code length %d", length)
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}

// GenerateToken returns a unique opaque token suitable for QR encoding.
func GenerateToken() string {
	return uuid.NewString()
}

// MaskSecret obscures a credential for logging, showing only the first and
// last few characters.
func MaskSecret(secret string) string {
	if len(secret) > 8 {
		return secret[:4] + "..." + secret[len(secret)-4:]
	} else if len(secret) > 4 {
		return secret[:2] + "..." + secret[len(secret)-2:]
	} else if len(secret) > 2 {
		return secret[:1] + "..." + secret[len(secret)-1:]
	}
	return secret
}
