package app

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// CookieSecretSetting is the configuration key of the cookie sealing secret.
const CookieSecretSetting = "security.cookie_secret"

const cookieSecretBytes = 32

var keyEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// DecodeKey turns a configured secret into raw bytes. Hex wins over base64 because
// generated secrets are hex; a value that is neither is used verbatim.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, errors.New("key value is empty")
	}
	if decoded, err := hex.DecodeString(v); err == nil {
		return decoded, nil
	}
	for _, enc := range keyEncodings {
		if decoded, err := enc.DecodeString(v); err == nil {
			return decoded, nil
		}
	}
	return []byte(v), nil
}

// CookieKey returns the 32-byte key used to seal cookie values.
func (c SecurityConfig) CookieKey() ([]byte, error) {
	key, err := DecodeKey(c.CookieSecret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CookieSecretSetting, err)
	}
	if len(key) != cookieSecretBytes {
		return nil, fmt.Errorf("%s: expected %d bytes, got %d", CookieSecretSetting, cookieSecretBytes, len(key))
	}
	return key, nil
}

// ApplyRuntimeDefaults fills settings a bare deployment would otherwise lack. Missing
// secrets are generated; the returned set names them (never their values) so the caller
// can log and persist them.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	generated := map[string]bool{}
	if strings.TrimSpace(cfg.Security.CookieSecret) == "" {
		buf := make([]byte, cookieSecretBytes)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate %s: %w", CookieSecretSetting, err)
		}
		cfg.Security.CookieSecret = hex.EncodeToString(buf)
		generated[CookieSecretSetting] = true
	}

	if strings.TrimSpace(cfg.Server.SigninPath) == "" {
		cfg.Server.SigninPath = "/signin"
	}
	return generated, nil
}
