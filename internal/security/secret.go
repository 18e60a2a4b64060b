package security

import (
	"errors"
	"os"
	"strings"
)

// ErrMissingSecret is returned when the signing secret is empty.
var ErrMissingSecret = errors.New("jwt secret not configured")

const filePrefix = "file:"

// LoadSecret returns the signing secret. s is either the inline secret or "file:<path>",
// in which case the file content is read and surrounding whitespace trimmed.
func LoadSecret(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrMissingSecret
	}
	if !strings.HasPrefix(s, filePrefix) {
		return []byte(s), nil
	}
	b, err := os.ReadFile(strings.TrimPrefix(s, filePrefix))
	if err != nil {
		return nil, err
	}
	b = []byte(strings.TrimSpace(string(b)))
	if len(b) == 0 {
		return nil, ErrMissingSecret
	}
	return b, nil
}
