//go:build !slabdebug

package slab

// debugChecks enables invariant assertions on the hot paths.
// Build with -tags slabdebug to turn them on.
const debugChecks = false
