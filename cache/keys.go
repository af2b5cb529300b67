// cache/keys.go
package cache

import (
	"fmt"
	"strings"
	"unicode/utf16"

	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	"github.com/dev-mohitbeniwal/semble/model"
)

const maxKeyPartLength = 50

// GenerateKey joins parts into a cache key. Each part is sanitized to
// [a-zA-Z0-9_-] and truncated to 50 characters first. An empty strategy
// means hierarchical.
func GenerateKey(parts []string, strategy model.KeyStrategy) (string, error) {
	sanitized := make([]string, len(parts))
	for i, p := range parts {
		sanitized[i] = sanitizeKeyPart(p)
	}

	switch strategy {
	case model.KeyStrategySimple:
		return strings.Join(sanitized, "_"), nil
	case model.KeyStrategyHierarchical, "":
		return strings.Join(sanitized, ":"), nil
	case model.KeyStrategyHashed:
		return fmt.Sprintf("hash_%d", hashKey(strings.Join(sanitized, "|"))), nil
	default:
		allowed := make([]string, len(model.KeyStrategies))
		for i, s := range model.KeyStrategies {
			allowed[i] = string(s)
		}
		return "", semble_errors.NewValidationError(semble_errors.CodeInvalidStrategy,
			fmt.Sprintf("invalid cache key strategy %q, must be one of: %s", strategy, strings.Join(allowed, ", ")))
	}
}

// GenerateKey is the method form of the package-level GenerateKey.
func (c *CacheService[T]) GenerateKey(parts []string, strategy model.KeyStrategy) (string, error) {
	return GenerateKey(parts, strategy)
}

// sanitizeKeyPart works on UTF-16 code units so a character outside the BMP
// becomes two underscores, matching keys produced by other Semble clients.
func sanitizeKeyPart(part string) string {
	units := utf16.Encode([]rune(part))
	var b strings.Builder
	for i, u := range units {
		if i == maxKeyPartLength {
			break
		}
		if isKeyChar(u) {
			b.WriteRune(rune(u))
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isKeyChar(u uint16) bool {
	return (u >= 'a' && u <= 'z') ||
		(u >= 'A' && u <= 'Z') ||
		(u >= '0' && u <= '9') ||
		u == '_' || u == '-'
}

// hashKey is the 32-bit rolling hash h = h*31 + c over UTF-16 code units,
// returned as its absolute value.
func hashKey(s string) int64 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(u)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return abs
}
