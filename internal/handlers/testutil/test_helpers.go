package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/clubhouse/internal/api"
	"github.com/charlesng35/clubhouse/internal/app"
	iauth "github.com/charlesng35/clubhouse/internal/auth"
	sharedtestutil "github.com/charlesng35/clubhouse/internal/database/testutil"
	"github.com/charlesng35/clubhouse/internal/membership"
	"github.com/charlesng35/clubhouse/internal/models"
	"github.com/charlesng35/clubhouse/internal/ratelimit"
	"github.com/charlesng35/clubhouse/internal/security"
	"github.com/charlesng35/clubhouse/internal/services"
	"github.com/charlesng35/clubhouse/pkg/mail"
	"github.com/charlesng35/clubhouse/pkg/response"
)

// Epoch is the fixed start time of every test environment clock.
var Epoch = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

var codePattern = regexp.MustCompile(`\b\d{6,8}\b`)

// RecordingMailer keeps every message instead of delivering it.
type RecordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	Err      error
}

func (m *RecordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (m *RecordingMailer) Messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

// LastCode extracts the code from the latest message sent to address.
func (m *RecordingMailer) LastCode(t *testing.T, address string) string {
	t.Helper()
	msgs := m.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		for _, to := range msgs[i].To {
			if strings.EqualFold(to, address) {
				code := codePattern.FindString(msgs[i].Body)
				require.NotEmpty(t, code, msgs[i].Body)
				return code
			}
		}
	}
	t.Fatalf("no message sent to %s", address)
	return ""
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	Clock    clockwork.FakeClock
	Mailer   *RecordingMailer
	Config   *app.Config
	Sessions *iauth.SessionService
	OTPs     *iauth.OTPService
	QR       *iauth.OpaqueTokenStore
	Share    *iauth.OpaqueTokenStore
	Members  *services.MemberService
	Meetings *services.MeetingService

	jar map[string]*http.Cookie
}

// EnvOption tweaks the configuration before the router is built.
type EnvOption func(*app.Config)

// WithLimit overrides one rate limit.
func WithLimit(name string, capacity int, refill time.Duration) EnvOption {
	return func(cfg *app.Config) {
		settings := app.LimitSettings{Capacity: capacity, RefillInterval: refill}
		switch name {
		case ratelimit.SigninIP:
			cfg.RateLimits.SigninIP = settings
		case ratelimit.SigninEmail:
			cfg.RateLimits.SigninEmail = settings
		case ratelimit.OTPVerify:
			cfg.RateLimits.OTPVerify = settings
		case ratelimit.TokenVerify:
			cfg.RateLimits.TokenVerify = settings
		}
	}
}

func defaultConfig() *app.Config {
	generous := app.LimitSettings{Capacity: 1000, RefillInterval: time.Millisecond}
	return &app.Config{
		Server: app.ServerConfig{
			Environment: "development",
			SigninPath:  "/signin",
			BaseURL:     "https://club.example.com",
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Auth: app.AuthConfig{
			Session: app.SessionSettings{TTL: iauth.DefaultSessionTTL, RenewWindow: iauth.DefaultRenewWindow},
			OTP:     app.OTPSettings{TTL: iauth.DefaultOTPTTL, Digits: iauth.DefaultOTPDigits},
		},
		RateLimits: app.RateLimitConfig{
			SigninIP:    generous,
			SigninEmail: generous,
			OTPVerify:   generous,
			TokenVerify: generous,
		},
		Security: app.SecurityConfig{CookieSecret: strings.Repeat("5a", 32)},
		Email:    app.EmailConfig{From: "club@example.com"},
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	clock := clockwork.NewFakeClockAt(Epoch)

	sessionCfg := cfg.Auth.SessionServiceConfig()
	sessionCfg.Clock = clock.Now
	sessions, err := iauth.NewSessionService(db, sessionCfg)
	require.NoError(t, err)

	otpCfg := cfg.Auth.OTPServiceConfig()
	otpCfg.Clock = clock.Now
	otps, err := iauth.NewOTPService(db, otpCfg)
	require.NoError(t, err)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	members, err := services.NewMemberService(db, audit)
	require.NoError(t, err)
	meetings, err := services.NewMeetingService(db, audit)
	require.NoError(t, err)

	limiters, err := cfg.RateLimits.RateLimitRegistry(ratelimit.WithClock(clock))
	require.NoError(t, err)

	key, err := cfg.Security.CookieKey()
	require.NoError(t, err)
	cookies, err := security.NewCookieManager("", false, key)
	require.NoError(t, err)

	mailer := &RecordingMailer{}
	env := &Env{
		T:        t,
		DB:       db,
		Clock:    clock,
		Mailer:   mailer,
		Config:   cfg,
		Sessions: sessions,
		OTPs:     otps,
		QR:       iauth.NewQRTokenStore(db),
		Share:    iauth.NewShareTokenStore(db),
		Members:  members,
		Meetings: meetings,
		jar:      make(map[string]*http.Cookie),
	}

	router, err := api.NewRouter(api.Deps{
		DB:          db,
		Config:      cfg,
		Sessions:    sessions,
		OTPs:        otps,
		QRTokens:    env.QR,
		ShareTokens: env.Share,
		Members:     members,
		Meetings:    meetings,
		Audit:       audit,
		Limiters:    limiters,
		Cookies:     cookies,
		Mailer:      mailer,
	})
	require.NoError(t, err)
	env.Router = router

	return env
}

// CreateMember inserts a member with the given status.
func (e *Env) CreateMember(email string, status membership.Status, admin bool) *models.User {
	e.T.Helper()
	user := &models.User{Email: email, Status: status, IsAdmin: admin}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// SignInAs issues a session for user directly and stores its cookie in the jar.
func (e *Env) SignInAs(user *models.User) {
	e.T.Helper()
	raw, _, err := e.Sessions.CreateSession(context.Background(), user.ID, iauth.SessionMetadata{})
	require.NoError(e.T, err)
	e.jar[security.SessionCookie] = &http.Cookie{Name: security.SessionCookie, Value: raw}
}

// ClearCookies empties the cookie jar.
func (e *Env) ClearCookies() {
	e.jar = make(map[string]*http.Cookie)
}

// Cookie returns the jar's current value for name.
func (e *Env) Cookie(name string) string {
	if c, ok := e.jar[name]; ok {
		return c.Value
	}
	return ""
}

// SetCookie stores a raw cookie value in the jar.
func (e *Env) SetCookie(name, value string) {
	e.jar[name] = &http.Cookie{Name: name, Value: value}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, encoding body as JSON and
// replaying the cookie jar. Cookies set or cleared by the response update the jar.
func (e *Env) Request(method, path string, body any) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.RequestWithHeaders(method, path, body, nil)
}

// RequestWithHeaders is Request with extra request headers.
func (e *Env) RequestWithHeaders(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)
	req.RemoteAddr = "203.0.113.10:40000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range e.jar {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(e.jar, c.Name)
			continue
		}
		e.jar[c.Name] = c
	}
	return w
}
