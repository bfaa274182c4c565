package ratelimit

import (
	"fmt"
	"sort"
	"time"
)

// Names of the preconfigured policies.
const (
	PolicyAuth   = "auth"
	PolicySignup = "signup"
	PolicyAPI    = "api"
)

// PolicySettings are the tunable parts of a named policy.
type PolicySettings struct {
	Window      time.Duration
	MaxRequests int
}

// RegistryConfig holds the settings for every named policy. Disabled is
// resolved once at startup; the registry never re-reads it.
type RegistryConfig struct {
	Disabled     bool
	Auth         PolicySettings
	Signup       PolicySettings
	API          PolicySettings
	APIKeyByPath bool // Give each API route its own quota per caller
}

// DefaultRegistryConfig returns the stock limits: 10 sign-in attempts per
// 5 minutes, 20 signups per hour and 100 API calls per minute, each per IP.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Auth:   PolicySettings{Window: 5 * time.Minute, MaxRequests: 10},
		Signup: PolicySettings{Window: time.Hour, MaxRequests: 20},
		API:    PolicySettings{Window: time.Minute, MaxRequests: 100},
	}
}

// RegistryStats is the monitoring snapshot served to dashboards.
type RegistryStats struct {
	Disabled bool         `json:"disabled"`
	Store    Stats        `json:"store"`
	Policies []PolicyInfo `json:"policies"`
}

// Registry owns the named policies. All of them share one WindowStore and
// are kept apart by their key prefixes.
type Registry struct {
	store    *WindowStore
	disabled bool
	policies map[string]*Policy
}

// NewRegistry builds the auth, signup and API policies on store.
func NewRegistry(store *WindowStore, cfg RegistryConfig) (*Registry, error) {
	apiKeys := KeyByIP
	if cfg.APIKeyByPath {
		apiKeys = KeyByIPAndPath
	}

	configs := []PolicyConfig{
		{
			Name:        PolicyAuth,
			Prefix:      "auth:",
			Window:      cfg.Auth.Window,
			MaxRequests: cfg.Auth.MaxRequests,
			Message:     "Too many authentication attempts, please try again later",
		},
		{
			Name:        PolicySignup,
			Prefix:      "signup:",
			Window:      cfg.Signup.Window,
			MaxRequests: cfg.Signup.MaxRequests,
			Message:     "Too many accounts created from this address, please try again later",
		},
		{
			Name:        PolicyAPI,
			Prefix:      "api:",
			Window:      cfg.API.Window,
			MaxRequests: cfg.API.MaxRequests,
			KeyFunc:     apiKeys,
			Message:     DefaultMessage,
		},
	}

	r := &Registry{
		store:    store,
		disabled: cfg.Disabled,
		policies: make(map[string]*Policy, len(configs)),
	}
	for _, pc := range configs {
		p, err := NewPolicy(store, pc, WithDisabled(cfg.Disabled))
		if err != nil {
			return nil, fmt.Errorf("failed to build %s policy: %w", pc.Name, err)
		}
		r.policies[pc.Name] = p
	}
	return r, nil
}

// Auth returns the sign-in attempt policy.
func (r *Registry) Auth() *Policy { return r.policies[PolicyAuth] }

// Signup returns the account creation policy.
func (r *Registry) Signup() *Policy { return r.policies[PolicySignup] }

// API returns the generic API policy.
func (r *Registry) API() *Policy { return r.policies[PolicyAPI] }

// Policy looks up a policy by name.
func (r *Registry) Policy(name string) (*Policy, error) {
	p, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	return p, nil
}

// Check runs the named policy against attrs.
func (r *Registry) Check(name string, attrs Attributes) (Verdict, error) {
	p, err := r.Policy(name)
	if err != nil {
		return Verdict{}, err
	}
	return p.Check(attrs), nil
}

// Reset clears the named policy's window for attrs, unblocking that caller.
// It reports whether a window existed.
func (r *Registry) Reset(name string, attrs Attributes) (bool, error) {
	p, err := r.Policy(name)
	if err != nil {
		return false, err
	}
	return r.store.Reset(p.Key(attrs)), nil
}

// Names lists the registered policy names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Disabled reports whether rate limiting is switched off.
func (r *Registry) Disabled() bool {
	return r.disabled
}

// Stats returns a snapshot of the store and the policy configuration.
func (r *Registry) Stats() RegistryStats {
	names := r.Names()
	infos := make([]PolicyInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, r.policies[name].Info())
	}
	return RegistryStats{
		Disabled: r.disabled,
		Store:    r.store.Stats(),
		Policies: infos,
	}
}
