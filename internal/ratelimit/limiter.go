// Package ratelimit provides in-process admission control for HTTP requests
// using fixed request windows. A shared WindowStore holds per-key counters,
// each Policy derives namespaced keys and turns counts into verdicts, and a
// Registry exposes the named policies used by the route layer.
//
// State is local to one process. Running several instances multiplies the
// effective quota by the number of instances.
package ratelimit

import (
	"strings"
	"time"
)

// unknownClient is used as the caller identity when a request carries no
// forwarded-for chain and no peer address.
const unknownClient = "unknown"

// Clock returns the current time. Tests inject a manual clock to move
// windows forward without sleeping.
type Clock func() time.Time

// Attributes are the caller-identifying parts of a request that policies
// derive keys from.
type Attributes struct {
	IP   string
	Path string
}

func (a Attributes) normalize() Attributes {
	a.IP = strings.TrimSpace(a.IP)
	if a.IP == "" {
		a.IP = unknownClient
	}
	return a
}

// Verdict is the outcome of one admission check.
type Verdict struct {
	Admitted  bool
	Policy    string
	Limit     int       // Quota per window
	Remaining int       // Requests left in the current window, never negative
	ResetAt   time.Time // End of the current window; zero when limiting is disabled

	// Set only when the request is denied.
	RetryAfter        time.Duration
	RetryAfterSeconds int
	Message           string
}

// Checker decides whether a request may proceed. Implementations must be
// safe for concurrent use.
type Checker interface {
	// Name identifies the policy in logs, metrics and stats.
	Name() string

	// Check records the request and returns the verdict for it.
	Check(attrs Attributes) Verdict
}
