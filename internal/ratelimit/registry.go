package ratelimit

import (
	"fmt"
	"sort"
	"time"
)

// Well-known limiter names configured per endpoint and key dimension.
const (
	SigninIP    = "signin_ip"
	SigninEmail = "signin_email"
	OTPVerify   = "otp_verify"
	TokenVerify = "token_verify"
)

// Limit configures one named limiter.
type Limit struct {
	Capacity       int
	RefillInterval time.Duration
}

// Registry owns the named limiters of a process. It is constructed explicitly and injected
// where needed so tests get isolated instances. The set of limiters is fixed at construction.
type Registry struct {
	limiters map[string]*TokenBucket
}

// NewRegistry builds one TokenBucket per entry in limits. Options apply to every limiter.
func NewRegistry(limits map[string]Limit, opts ...Option) (*Registry, error) {
	r := &Registry{limiters: make(map[string]*TokenBucket, len(limits))}
	for name, limit := range limits {
		bucketOpts := append([]Option{WithName(name)}, opts...)
		tb, err := NewTokenBucket(limit.Capacity, limit.RefillInterval, bucketOpts...)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: limiter %q: %w", name, err)
		}
		r.limiters[name] = tb
	}
	return r, nil
}

// Get returns the named limiter or nil when it is not configured.
func (r *Registry) Get(name string) *TokenBucket {
	if r == nil {
		return nil
	}
	return r.limiters[name]
}

// Names lists configured limiters in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.limiters))
	for name := range r.limiters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cleanup runs Cleanup on every limiter and returns the total number of buckets removed.
func (r *Registry) Cleanup() int {
	if r == nil {
		return 0
	}

	removed := 0
	for _, tb := range r.limiters {
		removed += tb.Cleanup()
	}
	return removed
}
