package ratelimit

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuildsNamedLimiters(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg, err := NewRegistry(map[string]Limit{
		SigninIP:    {Capacity: 2, RefillInterval: time.Second},
		SigninEmail: {Capacity: 1, RefillInterval: time.Minute},
	}, WithClock(clock))
	require.NoError(t, err)

	require.Equal(t, []string{SigninEmail, SigninIP}, reg.Names())
	require.Nil(t, reg.Get(OTPVerify))

	ip := reg.Get(SigninIP)
	require.NotNil(t, ip)
	require.Equal(t, SigninIP, ip.Name())
	require.Equal(t, 2, ip.Capacity())

	require.True(t, ip.Consume("198.51.100.7", 1))
	require.True(t, reg.Get(SigninEmail).Consume("198.51.100.7", 1), "limiters keep independent state")

	clock.Advance(time.Minute)
	require.Equal(t, 2, reg.Cleanup())
}

func TestRegistryRejectsInvalidLimit(t *testing.T) {
	_, err := NewRegistry(map[string]Limit{OTPVerify: {Capacity: 0, RefillInterval: time.Second}})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNilRegistryIsSafe(t *testing.T) {
	var reg *Registry
	require.Nil(t, reg.Get(SigninIP))
	require.Zero(t, reg.Cleanup())
}
