// Package types defines shared primitives used across the flowgrid engine:
// structured errors with unified codes and the recoverability policy that
// separates node-local failures from run-aborting faults.
package types
