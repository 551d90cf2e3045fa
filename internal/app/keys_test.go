package app

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeKeyEncodings(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(250 - i)
	}

	inputs := map[string]string{"hex": hex.EncodeToString(raw)}
	for name, enc := range map[string]*base64.Encoding{
		"std":     base64.StdEncoding,
		"raw-std": base64.RawStdEncoding,
		"url":     base64.URLEncoding,
		"raw-url": base64.RawURLEncoding,
	} {
		inputs[name] = enc.EncodeToString(raw)
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			decoded, err := DecodeKey(input)
			require.NoError(t, err)
			require.Equal(t, raw, decoded)
		})
	}
}

func TestDecodeKeyFallsBackToRawBytes(t *testing.T) {
	decoded, err := DecodeKey("  this-is-a-raw-32-byte-key!!!  ")
	require.NoError(t, err)
	require.Equal(t, []byte("this-is-a-raw-32-byte-key!!!"), decoded)

	_, err = DecodeKey(" ")
	require.Error(t, err)
}

func TestCookieKeyRequires32Bytes(t *testing.T) {
	_, err := SecurityConfig{CookieSecret: "abcd"}.CookieKey()
	require.ErrorContains(t, err, CookieSecretSetting)

	_, err = SecurityConfig{}.CookieKey()
	require.Error(t, err)

	key, err := SecurityConfig{CookieSecret: base64.StdEncoding.EncodeToString(make([]byte, 32))}.CookieKey()
	require.NoError(t, err)
	require.Len(t, key, 32)
}

func TestApplyRuntimeDefaultsGeneratesCookieSecret(t *testing.T) {
	cfg := &Config{}

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Equal(t, map[string]bool{CookieSecretSetting: true}, generated)
	require.Equal(t, "/signin", cfg.Server.SigninPath)

	key, err := cfg.Security.CookieKey()
	require.NoError(t, err)
	require.Len(t, key, 32)

	again := &Config{}
	_, err = ApplyRuntimeDefaults(again)
	require.NoError(t, err)
	require.NotEqual(t, cfg.Security.CookieSecret, again.Security.CookieSecret)
}

func TestApplyRuntimeDefaultsPreservesConfiguredValues(t *testing.T) {
	cfg := &Config{}
	cfg.Security.CookieSecret = strings.Repeat("ab", 32)
	cfg.Server.SigninPath = "/login"

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Empty(t, generated)
	require.Equal(t, strings.Repeat("ab", 32), cfg.Security.CookieSecret)
	require.Equal(t, "/login", cfg.Server.SigninPath)

	_, err = ApplyRuntimeDefaults(nil)
	require.Error(t, err)
}
