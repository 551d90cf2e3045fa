package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/clubhouse/internal/app"
	iauth "github.com/charlesng35/clubhouse/internal/auth"
	"github.com/charlesng35/clubhouse/internal/handlers"
	"github.com/charlesng35/clubhouse/internal/middleware"
	"github.com/charlesng35/clubhouse/internal/monitoring"
	"github.com/charlesng35/clubhouse/internal/monitoring/checks"
	"github.com/charlesng35/clubhouse/internal/ratelimit"
	"github.com/charlesng35/clubhouse/internal/security"
	"github.com/charlesng35/clubhouse/internal/services"
	"github.com/charlesng35/clubhouse/pkg/mail"
)

// Deps carries the constructed stores and services the router mounts.
type Deps struct {
	DB          *gorm.DB
	Config      *app.Config
	Sessions    *iauth.SessionService
	OTPs        *iauth.OTPService
	QRTokens    *iauth.OpaqueTokenStore
	ShareTokens *iauth.OpaqueTokenStore
	Members     *services.MemberService
	Meetings    *services.MeetingService
	Audit       *services.AuditService
	Limiters    *ratelimit.Registry
	Cookies     *security.CookieManager
	Mailer      mail.Mailer
	// Health is optional; without it readiness only pings the database.
	Health *monitoring.HealthManager
}

func (d Deps) validate() error {
	switch {
	case d.DB == nil:
		return errors.New("database handle must be provided")
	case d.Config == nil:
		return errors.New("config must be provided")
	case d.Sessions == nil || d.OTPs == nil:
		return errors.New("session and otp stores must be provided")
	case d.QRTokens == nil || d.ShareTokens == nil:
		return errors.New("opaque token stores must be provided")
	case d.Members == nil || d.Meetings == nil || d.Audit == nil:
		return errors.New("member, meeting and audit services must be provided")
	case d.Cookies == nil:
		return errors.New("cookie manager must be provided")
	case d.Mailer == nil:
		return errors.New("mailer must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders(!cfg.Server.IsDevelopment()))
	r.Use(middleware.Session(deps.Sessions, deps.Cookies))
	r.Use(middleware.AuditActor())

	health := deps.Health
	if health == nil {
		health = monitoring.NewHealthManager()
		health.RegisterReadiness(checks.Database(deps.DB, 0))
	}
	registerHealthRoutes(r, cfg, health)
	registerMetricsRoutes(r, cfg)

	authHandler, err := handlers.NewAuthHandler(handlers.AuthDeps{
		Sessions: deps.Sessions,
		OTPs:     deps.OTPs,
		Members:  deps.Members,
		Cookies:  deps.Cookies,
		Limiters: deps.Limiters,
		Mailer:   deps.Mailer,
		MailFrom: cfg.Email.From,
		Clock:    deps.Sessions.Now,
	})
	if err != nil {
		return nil, err
	}

	requireSession := middleware.RequireSession(deps.Cookies, cfg.Server.SigninPath, deps.Sessions.Now)

	registerAuthRoutes(r, authHandler, deps.Limiters, requireSession)

	api := r.Group("/api")
	api.Use(requireSession)

	if err := registerProfileRoutes(api, authHandler, deps); err != nil {
		return nil, err
	}

	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin())

	meetingHandler, err := handlers.NewMeetingHandler(deps.Meetings, deps.ShareTokens, deps.Limiters, cfg.Server.BaseURL)
	if err != nil {
		return nil, err
	}
	if err := registerMemberRoutes(admin, deps); err != nil {
		return nil, err
	}
	registerMeetingRoutes(api, admin, meetingHandler)
	if err := registerAuditRoutes(admin, deps); err != nil {
		return nil, err
	}

	// Browser pages behind the session gate redirect to sign-in instead of returning 401.
	r.GET("/meetings/shared/:token", requireSession, func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/api/shared/meetings/"+c.Param("token"))
	})

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
