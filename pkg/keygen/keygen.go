package keygen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// alphabet is the URL-safe base62 character set used for generated keys.
const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// MaxKeyLength is the hard limit on key length, shared by generated keys
// and custom aliases.
const MaxKeyLength = 10

var (
	ErrAliasEmpty    = errors.New("alias is empty")
	ErrAliasTooLong  = fmt.Errorf("alias exceeds %d characters", MaxKeyLength)
	ErrAliasCharset  = errors.New("alias may only contain letters, digits, '-' and '_'")
	ErrInvalidLength = errors.New("key length must be between 1 and 10")
)

// Generator produces random short keys of a fixed length.
//
// Generation is optimistic: uniqueness is not checked here, the store's
// unique constraint on the key column arbitrates collisions and the caller
// retries with a fresh candidate.
type Generator struct {
	length int
}

// New creates a Generator for keys of the given length.
func New(length int) (*Generator, error) {
	if length < 1 || length > MaxKeyLength {
		return nil, ErrInvalidLength
	}
	return &Generator{length: length}, nil
}

// Generate returns a new random base62 key.
func (g *Generator) Generate() (string, error) {
	buf := make([]byte, g.length)
	max := big.NewInt(int64(len(alphabet)))

	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}

	return string(buf), nil
}

// Length returns the configured key length.
func (g *Generator) Length() int {
	return g.length
}

// ValidateAlias checks a caller-supplied custom alias against the length and
// charset constraints. Availability is not checked here; the insert path
// reports a conflict if the alias is already claimed.
func ValidateAlias(alias string) error {
	if alias == "" {
		return ErrAliasEmpty
	}
	// Charset first: once it passes, every character is one byte, so the
	// byte-length bound below is also the character count.
	for i := 0; i < len(alias); i++ {
		c := alias[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return ErrAliasCharset
		}
	}
	if len(alias) > MaxKeyLength {
		return ErrAliasTooLong
	}
	return nil
}
