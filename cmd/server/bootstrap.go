package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/clubhouse/internal/api"
	"github.com/charlesng35/clubhouse/internal/app"
	"github.com/charlesng35/clubhouse/internal/app/maintenance"
	iauth "github.com/charlesng35/clubhouse/internal/auth"
	"github.com/charlesng35/clubhouse/internal/database"
	"github.com/charlesng35/clubhouse/internal/monitoring"
	"github.com/charlesng35/clubhouse/internal/monitoring/checks"
	"github.com/charlesng35/clubhouse/internal/security"
	"github.com/charlesng35/clubhouse/internal/services"
	"github.com/charlesng35/clubhouse/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Sessions *iauth.SessionService
	OTPs     *iauth.OTPService
	Audit    *services.AuditService
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime opens the database, builds the stores and services, starts maintenance
// and assembles the HTTP router. generated lists the secrets ApplyRuntimeDefaults produced.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, generated map[string]bool, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" && !cfg.Server.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	var err error
	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if err := resolveCookieSecret(ctx, stack.DB, cfg, generated[app.CookieSecretSetting]); err != nil {
		return nil, err
	}
	key, err := cfg.Security.CookieKey()
	if err != nil {
		return nil, err
	}
	cookies, err := security.NewCookieManager(cfg.Security.CookieDomain, !cfg.Server.IsDevelopment(), key)
	if err != nil {
		return nil, fmt.Errorf("initialise cookie manager: %w", err)
	}

	stack.Sessions, err = iauth.NewSessionService(stack.DB, cfg.Auth.SessionServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}
	if active, err := stack.Sessions.SyncActiveSessions(ctx); err != nil {
		log.Warn("count active sessions failed", zap.Error(err))
	} else {
		log.Debug("active sessions counted", zap.Int64("active", active))
	}

	stack.OTPs, err = iauth.NewOTPService(stack.DB, cfg.Auth.OTPServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise otp service: %w", err)
	}

	stack.Audit, err = services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	members, err := services.NewMemberService(stack.DB, stack.Audit)
	if err != nil {
		return nil, fmt.Errorf("initialise member service: %w", err)
	}

	meetings, err := services.NewMeetingService(stack.DB, stack.Audit)
	if err != nil {
		return nil, fmt.Errorf("initialise meeting service: %w", err)
	}

	limiters, err := cfg.RateLimits.RateLimitRegistry()
	if err != nil {
		return nil, fmt.Errorf("initialise rate limits: %w", err)
	}

	tracker := monitoring.NewJobTracker()
	health := monitoring.NewHealthManager()
	health.RegisterLiveness(checks.Maintenance(tracker, 0, nil))
	health.RegisterReadiness(checks.Database(stack.DB, 0))

	stack.Cleaner = maintenance.NewCleaner(stack.Sessions, stack.OTPs, stack.Audit, limiters,
		maintenance.WithTracker(tracker),
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
		maintenance.WithOTPSchedule(cfg.Maintenance.OTPSchedule),
		maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
		maintenance.WithRateLimitSchedule(cfg.Maintenance.RateLimitSchedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Deps{
		DB:          stack.DB,
		Config:      cfg,
		Sessions:    stack.Sessions,
		OTPs:        stack.OTPs,
		QRTokens:    iauth.NewQRTokenStore(stack.DB),
		ShareTokens: iauth.NewShareTokenStore(stack.DB),
		Members:     members,
		Meetings:    meetings,
		Audit:       stack.Audit,
		Limiters:    limiters,
		Cookies:     cookies,
		Mailer:      cfg.Email.LogMailer(logger.WithModule("mail")),
		Health:      health,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// resolveCookieSecret keeps generated cookie secrets stable across restarts by persisting
// the first one in system settings. Configured secrets replace whatever is stored.
func resolveCookieSecret(ctx context.Context, db *gorm.DB, cfg *app.Config, generated bool) error {
	secret, err := database.ResolveCookieSecret(ctx, db, cfg.Security.CookieSecret, !generated)
	if err != nil {
		return fmt.Errorf("resolve cookie secret: %w", err)
	}
	cfg.Security.CookieSecret = secret
	return nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		<-stopCtx.Done()
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
		s.Cleaner = nil
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
		s.DB = nil
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db, database.SeedOptions{AdminEmails: cfg.Auth.AdminEmails}); err != nil {
		closeDatabase(db, zap.NewNop())
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
