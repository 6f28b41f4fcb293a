// Package accesscode generates and validates center access codes ("DDD-DDD").
package accesscode

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
)

var pattern = regexp.MustCompile(`^\d{3}-\d{3}$`)

// Generator produces a new access code. Registries take one so tests can
// supply deterministic codes.
type Generator func() string

// Generate returns two independent groups, each uniform in 100..999,
// joined by "-". Codes are not globally unique; callers that care retry.
func Generate() string {
	return fmt.Sprintf("%d-%d", 100+rand.IntN(900), 100+rand.IntN(900))
}

// Valid reports whether code has the DDD-DDD shape.
func Valid(code string) bool {
	return pattern.MatchString(code)
}

// Normalize trims whitespace around a user-entered code.
func Normalize(code string) string {
	return strings.TrimSpace(code)
}

// Sequence returns a Generator that yields codes in order and then repeats
// the last one. Used by tests.
func Sequence(codes ...string) Generator {
	i := 0
	return func() string {
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c
	}
}
