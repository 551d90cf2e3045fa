package app

import (
	"github.com/charlesng35/clubhouse/internal/auth"
	"github.com/charlesng35/clubhouse/internal/ratelimit"
)

// SessionServiceConfig converts AuthConfig into SessionService parameters.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	ttl := c.Session.TTL
	if ttl <= 0 {
		ttl = auth.DefaultSessionTTL
	}

	window := c.Session.RenewWindow
	if window <= 0 {
		window = auth.DefaultRenewWindow
	}

	length := c.Session.TokenBytes
	if length <= 0 {
		length = auth.DefaultSessionTokenBytes
	}

	return auth.SessionConfig{
		TTL:         ttl,
		RenewWindow: window,
		TokenBytes:  length,
	}
}

// OTPServiceConfig converts AuthConfig into OTPService parameters.
func (c AuthConfig) OTPServiceConfig() auth.OTPConfig {
	ttl := c.OTP.TTL
	if ttl <= 0 {
		ttl = auth.DefaultOTPTTL
	}

	digits := c.OTP.Digits
	if digits <= 0 {
		digits = auth.DefaultOTPDigits
	}

	return auth.OTPConfig{TTL: ttl, Digits: digits}
}

// Limits converts RateLimitConfig into the named limits the registry is built from.
func (c RateLimitConfig) Limits() map[string]ratelimit.Limit {
	return map[string]ratelimit.Limit{
		ratelimit.SigninIP:    c.SigninIP.limit(),
		ratelimit.SigninEmail: c.SigninEmail.limit(),
		ratelimit.OTPVerify:   c.OTPVerify.limit(),
		ratelimit.TokenVerify: c.TokenVerify.limit(),
	}
}

// RateLimitRegistry builds the process limiter registry.
func (c RateLimitConfig) RateLimitRegistry(opts ...ratelimit.Option) (*ratelimit.Registry, error) {
	return ratelimit.NewRegistry(c.Limits(), opts...)
}

func (l LimitSettings) limit() ratelimit.Limit {
	return ratelimit.Limit{Capacity: l.Capacity, RefillInterval: l.RefillInterval}
}
