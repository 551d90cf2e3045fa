package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/clubhouse/internal/auditctx"
	"github.com/charlesng35/clubhouse/internal/models"
	"github.com/charlesng35/clubhouse/pkg/logger"
)

const (
	AuditResultSuccess = "success"
	AuditResultFailure = "failure"
)

// AuditEntry is one event to append to the audit log. UserID is the member the event is
// about; whoever triggered it comes from the request actor on the context.
type AuditEntry struct {
	UserID    *string
	Action    string
	Resource  string
	Result    string
	IPAddress string
	UserAgent string
	Metadata  map[string]any
}

// AuditFilters narrows List. Zero values match everything.
type AuditFilters struct {
	UserID   string
	Action   string
	Result   string
	Resource string
	Since    *time.Time
	Until    *time.Time
}

type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditService appends to and reads the audit log.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, now: time.Now}, nil
}

// Log persists entry. Request details missing from the entry are taken from the actor on
// ctx, and an actor other than the subject is kept as actor_id metadata.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)
	if actor, ok := auditctx.FromContext(ctx); ok {
		entry = entry.attributedTo(actor)
	}

	record, err := entry.record(s.now())
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(record).Error
}

func (e AuditEntry) attributedTo(actor auditctx.Actor) AuditEntry {
	if e.IPAddress == "" {
		e.IPAddress = actor.IPAddress
	}
	if e.UserAgent == "" {
		e.UserAgent = actor.UserAgent
	}
	if actor.UserID == "" || (e.UserID != nil && *e.UserID == actor.UserID) {
		return e
	}

	metadata := maps.Clone(e.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	if _, set := metadata["actor_id"]; !set {
		metadata["actor_id"] = actor.UserID
	}
	e.Metadata = metadata
	return e
}

func (e AuditEntry) record(at time.Time) (*models.AuditLog, error) {
	action := strings.TrimSpace(e.Action)
	result := strings.TrimSpace(e.Result)
	switch {
	case action == "":
		return nil, errors.New("audit service: action is required")
	case result == "":
		return nil, errors.New("audit service: result is required")
	}

	record := &models.AuditLog{
		Action:    action,
		Resource:  strings.TrimSpace(e.Resource),
		Result:    result,
		IPAddress: strings.TrimSpace(e.IPAddress),
		UserAgent: strings.TrimSpace(e.UserAgent),
		CreatedAt: at.UTC(),
	}
	if e.UserID != nil {
		record.UserID = stringPtr(*e.UserID)
	}
	if len(e.Metadata) > 0 {
		encoded, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		record.Metadata = datatypes.JSON(encoded)
	}
	return record, nil
}

// List returns one page of matching entries, newest first, plus the total match count.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	page, perPage := PageBounds(opts.Page, opts.PageSize)
	query := s.db.WithContext(ensureContext(ctx)).Model(&models.AuditLog{}).Scopes(opts.Filters.scope)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storeError("audit service: count logs", err)
	}

	var logs []models.AuditLog
	err := query.Order("created_at DESC").Offset((page - 1) * perPage).Limit(perPage).Find(&logs).Error
	if err != nil {
		return nil, 0, storeError("audit service: list logs", err)
	}
	return logs, total, nil
}

func (f AuditFilters) scope(db *gorm.DB) *gorm.DB {
	for column, value := range map[string]string{
		"user_id":  f.UserID,
		"action":   f.Action,
		"result":   f.Result,
		"resource": f.Resource,
	} {
		if value != "" {
			db = db.Where(column+" = ?", value)
		}
	}
	if f.Since != nil {
		db = db.Where("created_at >= ?", f.Since.UTC())
	}
	if f.Until != nil {
		db = db.Where("created_at <= ?", f.Until.UTC())
	}
	return db
}

// CleanupOlderThan deletes entries older than retentionDays and reports how many went.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)

	res := s.db.WithContext(ensureContext(ctx)).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if res.Error != nil {
		return 0, storeError("audit service: cleanup logs", res.Error)
	}
	return res.RowsAffected, nil
}

// recordAudit writes entry when audit is configured. A failed write is logged and never
// fails the operation being audited.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if err := audit.Log(ctx, entry); err != nil {
		logger.WithModule("audit").Warn("failed to record audit entry",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}
