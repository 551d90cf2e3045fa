package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/clubhouse/internal/app"
	iauth "github.com/charlesng35/clubhouse/internal/auth"
	"github.com/charlesng35/clubhouse/internal/database/testutil"
	"github.com/charlesng35/clubhouse/internal/ratelimit"
	"github.com/charlesng35/clubhouse/internal/security"
	"github.com/charlesng35/clubhouse/internal/services"
	"github.com/charlesng35/clubhouse/pkg/mail"
)

func newTestDeps(t *testing.T, cfg *app.Config) Deps {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	sessions, err := iauth.NewSessionService(db, iauth.SessionConfig{})
	require.NoError(t, err)
	otps, err := iauth.NewOTPService(db, iauth.OTPConfig{})
	require.NoError(t, err)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	members, err := services.NewMemberService(db, audit)
	require.NoError(t, err)
	meetings, err := services.NewMeetingService(db, audit)
	require.NoError(t, err)
	limiters, err := cfg.RateLimits.RateLimitRegistry()
	require.NoError(t, err)
	cookies, err := security.NewCookieManager("", false, bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	return Deps{
		DB:          db,
		Config:      cfg,
		Sessions:    sessions,
		OTPs:        otps,
		QRTokens:    iauth.NewQRTokenStore(db),
		ShareTokens: iauth.NewShareTokenStore(db),
		Members:     members,
		Meetings:    meetings,
		Audit:       audit,
		Limiters:    limiters,
		Cookies:     cookies,
		Mailer:      &mail.LogMailer{},
	}
}

func testConfig() *app.Config {
	limit := app.LimitSettings{Capacity: 10, RefillInterval: time.Second}
	return &app.Config{
		Server: app.ServerConfig{Environment: "development", SigninPath: "/signin"},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		RateLimits: app.RateLimitConfig{SigninIP: limit, SigninEmail: limit, OTPVerify: limit, TokenVerify: limit},
	}
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	router, err := NewRouter(newTestDeps(t, testConfig()))
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, get(router, "/health").Code)

	for _, path := range []string{"/api/auth/me", "/api/me/qr/token", "/api/admin/members", "/api/admin/audit"} {
		require.Equal(t, http.StatusUnauthorized, get(router, path).Code, path)
	}

	w := get(router, "/definitely/missing")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router, err := NewRouter(newTestDeps(t, testConfig()))
	require.NoError(t, err)

	// one request so the HTTP collectors have samples
	get(router, "/health")

	w := get(router, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "clubhouse_api_latency_seconds"))
}

func TestRouter_DisabledMonitoring(t *testing.T) {
	cfg := testConfig()
	cfg.Monitoring = app.MonitoringConfig{}
	router, err := NewRouter(newTestDeps(t, cfg))
	require.NoError(t, err)

	require.Equal(t, http.StatusNotFound, get(router, "/health").Code)
	require.Equal(t, http.StatusNotFound, get(router, "/metrics").Code)
}

func TestRouter_RequiresDependencies(t *testing.T) {
	deps := newTestDeps(t, testConfig())
	deps.Cookies = nil
	_, err := NewRouter(deps)
	require.Error(t, err)

	_, err = NewRouter(Deps{})
	require.Error(t, err)
}

func TestRouter_RateLimitsUseConfiguredBuckets(t *testing.T) {
	deps := newTestDeps(t, testConfig())
	require.NotNil(t, deps.Limiters.Get(ratelimit.SigninIP))
	require.NotNil(t, deps.Limiters.Get(ratelimit.TokenVerify))
}

func TestRouter_HealthReportsDatabaseOutage(t *testing.T) {
	deps := newTestDeps(t, testConfig())
	router, err := NewRouter(deps)
	require.NoError(t, err)

	w := get(router, "/health/ready")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"component":"database"`)

	sqlDB, err := deps.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	require.Equal(t, http.StatusServiceUnavailable, get(router, "/health").Code)
}
