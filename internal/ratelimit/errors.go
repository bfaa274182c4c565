package ratelimit

import "errors"

var (
	// ErrInvalidPolicy is returned when a policy is constructed with a
	// configuration that could never admit requests correctly.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")

	// ErrUnknownPolicy is returned when a registry lookup names a policy
	// that does not exist.
	ErrUnknownPolicy = errors.New("unknown rate limit policy")
)
