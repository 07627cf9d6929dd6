//go:build slabdebug

package slab

const debugChecks = true
