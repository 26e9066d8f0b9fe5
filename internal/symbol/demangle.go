package symbol

import (
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// Demangle recovers a readable signature from an Itanium-ABI mangled name.
// Names that do not look mangled are returned untouched, as are names the
// demangler rejects.
func Demangle(name string) string {
	// Mach-O symbols carry one extra leading underscore on top of the
	// Itanium "_Z" prefix; strip only that one.
	candidate := name
	if strings.HasPrefix(candidate, "__Z") {
		candidate = candidate[1:]
	}
	if !strings.HasPrefix(candidate, "_Z") {
		return name
	}
	out, err := demangle.ToString(candidate)
	if err != nil {
		return name
	}
	return out
}
