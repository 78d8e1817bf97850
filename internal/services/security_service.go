package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/McGuireTechnology/truledgr-auth/internal/repositories"
	"github.com/McGuireTechnology/truledgr-auth/pkg/logger"
)

// SecurityEventStore is the persistence surface the recorder needs.
type SecurityEventStore interface {
	Insert(ctx context.Context, event *models.SecurityEvent) error
	List(ctx context.Context, filter repositories.EventFilter) ([]*models.SecurityEvent, error)
	CountsSince(ctx context.Context, since time.Time) ([]models.EventCount, error)
}

// SecurityService records and serves the append-only audit trail. Recording
// is best-effort: a storage failure is logged and swallowed so the calling
// authentication flow is never blocked by audit unavailability.
type SecurityService struct {
	store  SecurityEventStore
	audit  *logger.AuditLogger
	logger *slog.Logger
}

func NewSecurityService(store SecurityEventStore, audit *logger.AuditLogger, log *slog.Logger) *SecurityService {
	return &SecurityService{store: store, audit: audit, logger: log}
}

// Record persists a security event and mirrors it to the structured log
// stream. It never returns an error.
func (s *SecurityService) Record(ctx context.Context, event *models.SecurityEvent) {
	if event.Severity == "" {
		event.Severity = models.SeverityLow
	}

	if err := s.store.Insert(ctx, event); err != nil {
		s.logger.Error("failed to record security event",
			slog.String("event_type", event.EventType),
			slog.String("error", err.Error()),
		)
	}

	if s.audit != nil {
		var userID string
		if event.ActorID != nil {
			userID = *event.ActorID
		}
		s.audit.LogEvent(logger.AuditEvent{
			EventType: event.EventType,
			Severity:  event.Severity,
			UserID:    userID,
			IPAddress: event.IPAddress,
			UserAgent: event.UserAgent,
			Success:   event.EventType != models.EventLoginFailure && event.EventType != models.EventSuspiciousActivity,
		})
	}
}

// ListEvents returns events matching the filter, newest first.
func (s *SecurityService) ListEvents(ctx context.Context, filter repositories.EventFilter) ([]*models.SecurityEvent, error) {
	if filter.EventType != "" && !models.ValidEventType(filter.EventType) {
		return nil, models.ErrBadRequest
	}
	return s.store.List(ctx, filter)
}

// Metrics aggregates counts per event type and severity over a trailing window.
func (s *SecurityService) Metrics(ctx context.Context, window time.Duration) ([]models.EventCount, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return s.store.CountsSince(ctx, time.Now().Add(-window))
}
