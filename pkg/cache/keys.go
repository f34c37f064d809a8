package cache

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxKeyLength is the longest key any layer accepts.
const MaxKeyLength = 250

// ValidateKey checks that a key is non-empty, at most MaxKeyLength bytes,
// free of control characters and whitespace.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key too long (max %d characters)", ErrInvalidKey, MaxKeyLength)
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: key contains control character", ErrInvalidKey)
		}
		if unicode.IsSpace(r) {
			return fmt.Errorf("%w: key contains whitespace", ErrInvalidKey)
		}
	}

	return nil
}

// KeyPattern builds namespaced keys such as "smartwallet:history:u-1".
type KeyPattern struct {
	prefix    string
	separator string
}

// NewKeyPattern creates a new key pattern with the given prefix and separator.
func NewKeyPattern(prefix, separator string) *KeyPattern {
	if separator == "" {
		separator = ":"
	}
	return &KeyPattern{
		prefix:    prefix,
		separator: separator,
	}
}

// Build joins the prefix and parts with the separator. Whitespace inside a
// part is replaced by '_' so user-supplied values always yield a valid key.
func (kp *KeyPattern) Build(parts ...string) string {
	var b strings.Builder
	b.WriteString(kp.prefix)
	for _, part := range parts {
		if b.Len() > 0 {
			b.WriteString(kp.separator)
		}
		b.WriteString(strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) || unicode.IsControl(r) {
				return '_'
			}
			return r
		}, part))
	}
	return b.String()
}

// Prefix returns the pattern prefix.
func (kp *KeyPattern) Prefix() string {
	return kp.prefix
}
