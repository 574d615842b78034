/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_signage/internal/events"
	"github.com/friendsincode/heimdall_signage/internal/models"
)

// Service handles audit logging by subscribing to events and storing
// audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Start subscribes to relevant events and logs them as audit entries.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("audit service starting")

	contentCreated := s.bus.Subscribe(events.EventContentCreated)
	contentUpdated := s.bus.Subscribe(events.EventContentUpdated)
	contentDeleted := s.bus.Subscribe(events.EventContentDeleted)
	contentOverridden := s.bus.Subscribe(events.EventContentOverridden)
	contentRestored := s.bus.Subscribe(events.EventContentRestored)
	sweepCompleted := s.bus.Subscribe(events.EventSweepCompleted)
	userSignup := s.bus.Subscribe(events.EventAuditSignup)
	userLogin := s.bus.Subscribe(events.EventAuditLogin)
	sweepTrigger := s.bus.Subscribe(events.EventAuditSweepTrigger)

	defer func() {
		s.bus.Unsubscribe(events.EventContentCreated, contentCreated)
		s.bus.Unsubscribe(events.EventContentUpdated, contentUpdated)
		s.bus.Unsubscribe(events.EventContentDeleted, contentDeleted)
		s.bus.Unsubscribe(events.EventContentOverridden, contentOverridden)
		s.bus.Unsubscribe(events.EventContentRestored, contentRestored)
		s.bus.Unsubscribe(events.EventSweepCompleted, sweepCompleted)
		s.bus.Unsubscribe(events.EventAuditSignup, userSignup)
		s.bus.Unsubscribe(events.EventAuditLogin, userLogin)
		s.bus.Unsubscribe(events.EventAuditSweepTrigger, sweepTrigger)
	}()

	s.logger.Info().Msg("audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return

		case payload := <-contentCreated:
			s.logAuditEntry(ctx, "content.create", payload)

		case payload := <-contentUpdated:
			s.logAuditEntry(ctx, "content.update", payload)

		case payload := <-contentDeleted:
			s.logAuditEntry(ctx, "content.delete", payload)

		case payload := <-contentOverridden:
			s.logAuditEntry(ctx, "content.override", payload)

		case payload := <-contentRestored:
			s.logAuditEntry(ctx, "content.restore", payload)

		case payload := <-sweepCompleted:
			s.logAuditEntry(ctx, "sweep.complete", payload)

		case payload := <-userSignup:
			s.logAuditEntry(ctx, "user.signup", payload)

		case payload := <-userLogin:
			s.logAuditEntry(ctx, "user.login", payload)

		case payload := <-sweepTrigger:
			s.logAuditEntry(ctx, "sweep.trigger", payload)
		}
	}
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, action string, payload events.Payload) {
	entry := &models.AuditLog{
		ID:     uuid.NewString(),
		Action: action,
		Detail: make(map[string]any),
	}

	if actorID, ok := payload["actor_id"].(string); ok {
		entry.ActorID = actorID
	}
	if itemID, ok := payload["item_id"].(string); ok {
		entry.ItemID = itemID
	}
	if deviceID, ok := payload["device_id"].(string); ok {
		entry.DeviceID = deviceID
	}

	for k, v := range payload {
		switch k {
		case "actor_id", "item_id", "device_id":
			// Already extracted
		default:
			entry.Detail[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", action).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly (for non-event-bus actions).
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Detail == nil {
		entry.Detail = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", entry.Action).
		Str("id", entry.ID).
		Msg("audit entry logged")

	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	ActorID   *string
	ItemID    *string
	DeviceID  *string
	Action    *string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Query retrieves audit logs with filters, most recent first.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.ActorID != nil {
		query = query.Where("actor_id = ?", *filters.ActorID)
	}
	if filters.ItemID != nil {
		query = query.Where("item_id = ?", *filters.ItemID)
	}
	if filters.DeviceID != nil {
		query = query.Where("device_id = ?", *filters.DeviceID)
	}
	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.StartTime != nil {
		query = query.Where("created_at >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("created_at <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
