package ratelimit

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultMessage is returned to denied callers when a policy sets none.
const DefaultMessage = "Too many requests, please try again later"

// KeyFunc derives the store key for a request. The prefix namespaces the
// key so that policies sharing a store never count each other's requests.
type KeyFunc func(prefix string, attrs Attributes) string

// KeyByIP keys requests by caller address alone.
func KeyByIP(prefix string, attrs Attributes) string {
	return prefix + attrs.IP
}

// KeyByIPAndPath keys requests by caller address and target path, giving
// each route its own quota.
func KeyByIPAndPath(prefix string, attrs Attributes) string {
	return prefix + attrs.IP + ":" + attrs.Path
}

// PolicyConfig describes one admission rule.
type PolicyConfig struct {
	Name        string
	Prefix      string // Key namespace, e.g. "auth:"
	Window      time.Duration
	MaxRequests int
	KeyFunc     KeyFunc // Defaults to KeyByIP
	Message     string  // Defaults to DefaultMessage
}

// PolicyInfo describes a policy for stats output.
type PolicyInfo struct {
	Name          string `json:"name"`
	Prefix        string `json:"prefix"`
	WindowSeconds int64  `json:"window_seconds"`
	MaxRequests   int    `json:"max_requests"`
}

// Policy applies a PolicyConfig to a shared WindowStore. A Policy must be
// created once and reused: a policy built per request would always see a
// fresh count.
type Policy struct {
	store    *WindowStore
	name     string
	prefix   string
	window   time.Duration
	max      int
	keyFunc  KeyFunc
	message  string
	disabled bool
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithDisabled makes every check admit without touching the store. It is
// meant for automated test environments.
func WithDisabled(disabled bool) PolicyOption {
	return func(p *Policy) {
		p.disabled = disabled
	}
}

// NewPolicy validates cfg and binds it to store.
func NewPolicy(store *WindowStore, cfg PolicyConfig, opts ...PolicyOption) (*Policy, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidPolicy)
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidPolicy)
	}
	if cfg.Prefix == "" {
		return nil, fmt.Errorf("%w: policy %q: key prefix is required", ErrInvalidPolicy, cfg.Name)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("%w: policy %q: window must be positive, got %s", ErrInvalidPolicy, cfg.Name, cfg.Window)
	}
	if cfg.MaxRequests <= 0 {
		return nil, fmt.Errorf("%w: policy %q: max requests must be positive, got %d", ErrInvalidPolicy, cfg.Name, cfg.MaxRequests)
	}

	p := &Policy{
		store:   store,
		name:    cfg.Name,
		prefix:  cfg.Prefix,
		window:  cfg.Window,
		max:     cfg.MaxRequests,
		keyFunc: cfg.KeyFunc,
		message: cfg.Message,
	}
	if p.keyFunc == nil {
		p.keyFunc = KeyByIP
	}
	if p.message == "" {
		p.message = DefaultMessage
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the policy name.
func (p *Policy) Name() string {
	return p.name
}

// Key returns the store key the policy uses for attrs.
func (p *Policy) Key(attrs Attributes) string {
	return p.keyFunc(p.prefix, attrs.normalize())
}

// Info describes the policy configuration.
func (p *Policy) Info() PolicyInfo {
	return PolicyInfo{
		Name:          p.name,
		Prefix:        p.prefix,
		WindowSeconds: int64(p.window / time.Second),
		MaxRequests:   p.max,
	}
}

// Check counts the request and admits it while the window's count is at or
// below the quota. The request that pushes the count past the quota is
// still recorded, so a blocked caller is released one window after the
// first request of that window, not after the last.
func (p *Policy) Check(attrs Attributes) Verdict {
	if p.disabled {
		return Verdict{Admitted: true, Policy: p.name, Limit: p.max, Remaining: p.max}
	}

	count, resetAt := p.store.Touch(p.Key(attrs), p.window)

	v := Verdict{
		Admitted:  count <= p.max,
		Policy:    p.name,
		Limit:     p.max,
		Remaining: max(0, p.max-count),
		ResetAt:   resetAt,
	}
	if !v.Admitted {
		v.RetryAfter = resetAt.Sub(p.store.Now())
		v.RetryAfterSeconds = retryAfterSeconds(v.RetryAfter)
		v.Message = p.message
	}
	return v
}

// retryAfterSeconds rounds up to whole seconds and never returns less than
// one, so clients are not told to retry immediately.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
