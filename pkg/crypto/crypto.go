package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"golang.org/x/crypto/chacha20poly1305"
)

const codeSecretBytes = 20

// ErrSealedValueInvalid indicates a sealed value could not be authenticated.
var ErrSealedValueInvalid = errors.New("crypto: sealed value invalid")

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("crypto: token length must be positive (got %d)", length)
	}
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// HashToken derives the one-way storage identifier for a raw bearer token.
func HashToken(raw string) string {
	digest := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(digest[:])
}

// ConstantTimeEqual reports whether a and b are equal without leaking timing information
// about where they differ.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// GenerateNumericCode returns a decimal code of the requested length. Each code is an HOTP
// value computed over a freshly generated secret, so codes are uniformly unpredictable.
func GenerateNumericCode(digits int) (string, error) {
	if digits != int(otp.DigitsSix) && digits != int(otp.DigitsEight) {
		return "", fmt.Errorf("crypto: unsupported code length %d", digits)
	}

	secret := make([]byte, codeSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret)

	code, err := hotp.GenerateCodeCustom(encoded, 0, hotp.ValidateOpts{
		Digits:    otp.Digits(digits),
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("crypto: generate code: %w", err)
	}
	return code, nil
}

// Seal encrypts and authenticates plaintext with XChaCha20-Poly1305 and returns a URL-safe string.
func Seal(plaintext, key []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Any decoding or authentication failure yields ErrSealedValueInvalid.
func Open(sealed string, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, ErrSealedValueInvalid
	}
	if len(data) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrSealedValueInvalid
	}

	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrSealedValueInvalid
	}
	return plaintext, nil
}
