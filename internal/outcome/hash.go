package outcome

import (
	"fmt"

	"github.com/ppiankov/patchguard/internal/model"
)

// RollingHash is the 32-bit h = h*31 + c hash over the bytes of s.
func RollingHash(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}

// EventSeed hashes the inputs that identify a validation for event IDs.
func EventSeed(diff, scenario, intent string) uint32 {
	return RollingHash(diff + "|" + scenario + "|" + intent)
}

// EventID renders evt-<hex>-<kind>.
func EventID(seed uint32, kind model.OutcomeKind) string {
	return fmt.Sprintf("evt-%08x-%s", seed, kind)
}
