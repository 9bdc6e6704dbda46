//go:build property

package protect

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestHashProperties validates the determinism and sensitivity guarantees the
// delivery server relies on for URL/lookup agreement.
func TestHashProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1357)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("hashing the same inputs twice yields the same digest", prop.ForAll(
		func(filename, salt string, stretch int) bool {
			if stretch < 1 || stretch > 64 {
				return true
			}
			first, err1 := Hash(filename, salt, stretch)
			second, err2 := Hash(filename, salt, stretch)
			return err1 == nil && err2 == nil && first == second
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.IntRange(1, 64),
	))

	properties.Property("digest is always 64 lowercase hex characters", prop.ForAll(
		func(filename, salt string, stretch int) bool {
			if stretch < 1 || stretch > 64 {
				return true
			}
			digest, err := Hash(filename, salt, stretch)
			if err != nil || len(digest) != 64 {
				return false
			}
			for _, c := range digest {
				if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
					return false
				}
			}
			return true
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.IntRange(1, 64),
	))

	properties.Property("distinct filenames yield distinct digests", prop.ForAll(
		func(a, b, salt string, stretch int) bool {
			if stretch < 1 || stretch > 32 || a == b {
				return true
			}
			digestA, err1 := Hash(a, salt, stretch)
			digestB, err2 := Hash(b, salt, stretch)
			return err1 == nil && err2 == nil && digestA != digestB
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
		gen.IntRange(1, 32),
	))

	properties.Property("adjacent stretch counts yield distinct digests", prop.ForAll(
		func(filename, salt string, stretch int) bool {
			if stretch < 1 || stretch > 32 {
				return true
			}
			base, err1 := Hash(filename, salt, stretch)
			next, err2 := Hash(filename, salt, stretch+1)
			return err1 == nil && err2 == nil && base != next
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.IntRange(1, 32),
	))

	properties.TestingRun(t)
}
