package security

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charlesng35/clubhouse/pkg/crypto"
)

// Cookie names used by the sign-in flow.
const (
	SessionCookie      = "session"
	PendingEmailCookie = "pending_email"
	OTPIDCookie        = "otp_id"
	ReturnToCookie     = "return_to"
)

// PendingCookieTTL bounds the lifetime of the sign-in helper cookies.
const PendingCookieTTL = time.Hour

var ErrInvalidCookieKey = errors.New("security: cookie key must be 32 bytes")

// CookieManager reads and writes the authentication cookies.
type CookieManager struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
	key      []byte
}

// NewCookieManager constructs a manager. The key seals the pending_email cookie.
func NewCookieManager(domain string, secure bool, key []byte) (*CookieManager, error) {
	if len(key) != 32 {
		return nil, ErrInvalidCookieKey
	}
	return &CookieManager{
		Domain:   strings.TrimSpace(domain),
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		key:      append([]byte(nil), key...),
	}, nil
}

// SetSession writes the session cookie so that it expires with the session row. now is the
// clock reading expiresAt was computed from.
func (m *CookieManager) SetSession(w http.ResponseWriter, raw string, expiresAt, now time.Time) {
	m.set(w, SessionCookie, raw, expiresAt, now, true)
}

// ClearSession removes the session cookie.
func (m *CookieManager) ClearSession(w http.ResponseWriter) {
	m.clear(w, SessionCookie, true)
}

// SessionToken returns the raw session token presented by the client.
func (m *CookieManager) SessionToken(r *http.Request) string {
	return GetCookie(r, SessionCookie)
}

// SetPending stores the OTP reference and the sealed email that the code was sent to.
func (m *CookieManager) SetPending(w http.ResponseWriter, otpID, email string, now time.Time) error {
	sealed, err := crypto.Seal([]byte(email), m.key)
	if err != nil {
		return err
	}
	expires := now.Add(PendingCookieTTL)
	m.set(w, OTPIDCookie, otpID, expires, now, false)
	m.set(w, PendingEmailCookie, sealed, expires, now, true)
	return nil
}

// Pending returns the OTP id and email recorded by SetPending. ok is false when
// either cookie is missing or the sealed email fails authentication.
func (m *CookieManager) Pending(r *http.Request) (otpID, email string, ok bool) {
	otpID = GetCookie(r, OTPIDCookie)
	sealed := GetCookie(r, PendingEmailCookie)
	if otpID == "" || sealed == "" {
		return "", "", false
	}
	plain, err := crypto.Open(sealed, m.key)
	if err != nil || len(plain) == 0 {
		return "", "", false
	}
	return otpID, string(plain), true
}

// PendingEmail returns only the sealed email, ignoring the OTP reference.
func (m *CookieManager) PendingEmail(r *http.Request) (string, bool) {
	sealed := GetCookie(r, PendingEmailCookie)
	if sealed == "" {
		return "", false
	}
	plain, err := crypto.Open(sealed, m.key)
	if err != nil || len(plain) == 0 {
		return "", false
	}
	return string(plain), true
}

// ClearPending removes both pending sign-in cookies.
func (m *CookieManager) ClearPending(w http.ResponseWriter) {
	m.clear(w, OTPIDCookie, false)
	m.clear(w, PendingEmailCookie, true)
}

// SetReturnTo remembers where to send the member after sign-in. Unsafe paths are ignored.
func (m *CookieManager) SetReturnTo(w http.ResponseWriter, path string, now time.Time) {
	safe, ok := SafeReturnPath(path)
	if !ok {
		return
	}
	m.set(w, ReturnToCookie, url.QueryEscape(safe), now.Add(PendingCookieTTL), now, false)
}

// ReturnTo yields the stored redirect target, or "/" when none is usable.
func (m *CookieManager) ReturnTo(r *http.Request) string {
	raw := GetCookie(r, ReturnToCookie)
	if raw == "" {
		return "/"
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return "/"
	}
	safe, ok := SafeReturnPath(decoded)
	if !ok {
		return "/"
	}
	return safe
}

// ClearReturnTo removes the redirect cookie.
func (m *CookieManager) ClearReturnTo(w http.ResponseWriter) {
	m.clear(w, ReturnToCookie, false)
}

// SafeReturnPath accepts only same-origin absolute paths.
func SafeReturnPath(path string) (string, bool) {
	path = strings.TrimSpace(path)
	if path == "" || !strings.HasPrefix(path, "/") {
		return "", false
	}
	if strings.HasPrefix(path, "//") || strings.HasPrefix(path, "/\\") || strings.ContainsAny(path, "\r\n") {
		return "", false
	}
	parsed, err := url.Parse(path)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" {
		return "", false
	}
	return path, true
}

// GetCookie returns the named cookie value or an empty string.
func GetCookie(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (m *CookieManager) set(w http.ResponseWriter, name, value string, expires, now time.Time, scoped bool) {
	maxAge := int(expires.Sub(now).Seconds())
	if maxAge <= 0 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   m.domainFor(scoped),
		Expires:  expires.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: m.SameSite,
	})
}

func (m *CookieManager) clear(w http.ResponseWriter, name string, scoped bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   m.domainFor(scoped),
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: m.SameSite,
	})
}

func (m *CookieManager) domainFor(scoped bool) string {
	if !scoped {
		return ""
	}
	return m.Domain
}
