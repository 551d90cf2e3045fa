package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("expected url-safe token, got %q: %v", token, err)
	}
	if len(raw) != 32 {
		t.Fatalf("expected 32 random bytes, got %d", len(raw))
	}

	other, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if other == token {
		t.Fatal("expected distinct tokens")
	}

	if _, err := GenerateToken(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestHashTokenIsDeterministic(t *testing.T) {
	a := HashToken("token-value")
	b := HashToken("token-value")
	if a != b {
		t.Fatal("expected identical hashes for identical input")
	}
	if a == "token-value" {
		t.Fatal("hash must not equal the raw token")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256 digest, got length %d", len(a))
	}
	if HashToken("other") == a {
		t.Fatal("expected distinct hashes for distinct input")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual("12345678", "12345678") {
		t.Fatal("expected equal codes to match")
	}
	if ConstantTimeEqual("12345678", "12345670") {
		t.Fatal("expected different codes to mismatch")
	}
	if ConstantTimeEqual("1234", "12345678") {
		t.Fatal("expected different lengths to mismatch")
	}
}

func TestGenerateNumericCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		code, err := GenerateNumericCode(8)
		if err != nil {
			t.Fatalf("code error: %v", err)
		}
		if len(code) != 8 {
			t.Fatalf("expected 8 digits, got %q", code)
		}
		if strings.Trim(code, "0123456789") != "" {
			t.Fatalf("expected only digits, got %q", code)
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 2 {
		t.Fatal("expected codes to vary")
	}

	if _, err := GenerateNumericCode(5); err == nil {
		t.Fatal("expected unsupported length to fail")
	}
}

func TestSealOpen(t *testing.T) {
	key := bytes.Repeat([]byte{0x1}, 32)
	plaintext := []byte("member@example.com")

	sealed, err := Seal(plaintext, key)
	if err != nil {
		t.Fatalf("seal error: %v", err)
	}
	if strings.Contains(sealed, "member") {
		t.Fatal("sealed value leaks plaintext")
	}

	opened, err := Open(sealed, key)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	if !bytes.Equal(plaintext, opened) {
		t.Fatalf("expected opened plaintext to match original, got %s", opened)
	}

	tampered := []byte(sealed)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}
	if _, err := Open(string(tampered), key); !errors.Is(err, ErrSealedValueInvalid) {
		t.Fatalf("expected tampered value to be rejected, got %v", err)
	}

	otherKey := bytes.Repeat([]byte{0x2}, 32)
	if _, err := Open(sealed, otherKey); !errors.Is(err, ErrSealedValueInvalid) {
		t.Fatalf("expected wrong key to be rejected, got %v", err)
	}

	if _, err := Open("%%%", key); !errors.Is(err, ErrSealedValueInvalid) {
		t.Fatalf("expected malformed value to be rejected, got %v", err)
	}
}
