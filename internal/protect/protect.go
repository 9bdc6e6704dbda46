// Package protect derives obfuscated names for bookmarklet source files.
//
// Scripts are served at /file?filename=<hash> rather than under their real
// names, so an observer of the URL cannot read source paths off it. The hash
// is salted and stretched: the cost of brute-forcing the original filename
// from an observed hash scales with the stretch count, at a tunable latency
// cost per generation install.
package protect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashFunc derives the protected name for a filename. Implementations must be
// deterministic: the hash embedded in index page URLs at render time has to
// match the lookup performed when the browser later requests /file.
type HashFunc func(filename string) (string, error)

// Hash digests filename, then re-digests digest||salt exactly stretchCount
// times, and returns the final digest as lowercase hex. stretchCount must be
// at least 1.
func Hash(filename, salt string, stretchCount int) (string, error) {
	if stretchCount < 1 {
		return "", fmt.Errorf("stretch count must be >= 1, got %d", stretchCount)
	}

	sum := sha256.Sum256([]byte(filename))
	digest := sum[:]
	saltBytes := []byte(salt)

	buf := make([]byte, 0, len(digest)+len(saltBytes))
	for i := 0; i < stretchCount; i++ {
		buf = append(buf[:0], digest...)
		buf = append(buf, saltBytes...)
		sum = sha256.Sum256(buf)
		digest = sum[:]
	}

	return hex.EncodeToString(digest), nil
}

// Hasher binds a salt and stretch count into a HashFunc.
func Hasher(salt string, stretchCount int) HashFunc {
	return func(filename string) (string, error) {
		return Hash(filename, salt, stretchCount)
	}
}
