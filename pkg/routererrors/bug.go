package routererrors

import (
	"fmt"
	"os"
	"strings"
)

func isInTests() bool {
	for _, arg := range os.Args {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}

// IsInTests returns true if the current binary is a go test binary.
func IsInTests() bool {
	return isInTests()
}

// MustPanic panics with the formatted message.
func MustPanic(format string, args ...any) {
	panic(fmt.Sprintf(format, args...))
}

// MustBugf returns an error representing a bug in the router, such as a
// broken cache lattice invariant. Will panic if run under testing.
func MustBugf(format string, args ...any) error {
	if isInTests() {
		panic(fmt.Sprintf(format, args...))
	}

	return fmt.Errorf("BUG: "+format, args...)
}
