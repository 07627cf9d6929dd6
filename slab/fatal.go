package slab

import (
	"fmt"

	"github.com/joshuapare/slabkit/internal/logger"
)

// fatal reports an unrecoverable allocator failure. An allocator that cannot
// map memory has no way to satisfy its callers, so it does not return.
func fatal(err error) {
	logger.Error("slab: fatal", "err", err)
	panic(err)
}

// invariant panics with a description of a broken internal invariant.
// Call sites guard it with debugChecks so release builds compile it out.
func invariant(format string, args ...any) {
	panic(fmt.Sprintf("slab: invariant violated: "+format, args...))
}
