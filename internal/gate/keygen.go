package gate

import (
	"crypto/rand"
	"fmt"
)

// keyAlphabet omits I, 1, O and 0 so keys survive being read over the phone.
const keyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewAccessKey generates a short access key of the form XXX-XXX.
func NewAccessKey() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate access key: %w", err)
	}
	out := make([]byte, 6)
	for i, b := range buf {
		out[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return fmt.Sprintf("%s-%s", out[:3], out[3:]), nil
}
