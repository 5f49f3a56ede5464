package testutil

import "go.uber.org/goleak"

// GoLeakIgnores returns the background goroutines of the caches and pools
// that may still be winding down when a test ends.
func GoLeakIgnores() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreAnyFunction("github.com/Yiling-J/theine-go/internal.(*Store[...]).maintenance"),
		goleak.IgnoreAnyFunction("github.com/Yiling-J/theine-go/internal.(*Store[...]).maintenance.func1"),
		goleak.IgnoreAnyFunction("github.com/maypok86/otter/v2.(*cache[...]).periodicCleanUp"),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	}
}
