package engine

import "errors"

// Failure taxonomy for one rule's evaluation/dispatch. Per-rule failures are
// logged and isolated; only a failed rule fetch aborts a whole cycle.
var (
	// ErrDeviceUnresolvable marks a rule whose device is missing or has no
	// broker identity. The rule is skipped, not failed.
	ErrDeviceUnresolvable = errors.New("device unresolvable")

	// ErrChannelUnavailable marks a publish that could not reach the broker.
	// The rule stays eligible for retry next cycle.
	ErrChannelUnavailable = errors.New("command channel unavailable")

	// ErrStoreUnavailable marks a failed read from or write to the backing
	// store.
	ErrStoreUnavailable = errors.New("store unavailable")
)
