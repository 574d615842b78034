/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduling decides what each display device should show. It
// validates candidate content, resolves overrides between competing
// items, answers "what should device D show now", and runs the sweep
// that expires windows and restores suppressed content.
package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/heimdall_signage/internal/catalog"
	"github.com/friendsincode/heimdall_signage/internal/clock"
	"github.com/friendsincode/heimdall_signage/internal/devices"
	"github.com/friendsincode/heimdall_signage/internal/events"
	"github.com/friendsincode/heimdall_signage/internal/models"
	"github.com/friendsincode/heimdall_signage/internal/telemetry"
)

// WindowCandidate is a proposed display window.
type WindowCandidate struct {
	StartsAt time.Time
	EndsAt   time.Time
}

// Candidate is a proposed content item, validated before any state is
// touched. An empty window list makes the item immediate.
type Candidate struct {
	Title         string
	Description   string
	Kind          models.ContentKind
	ImageURLs     []string
	VideoURLs     []string
	Body          string
	TargetDevices []string
	Windows       []WindowCandidate
	Active        bool
}

// Service is the scheduling engine.
type Service struct {
	store    catalog.Catalog
	clk      clock.Clock
	registry *devices.Registry
	bus      *events.Bus
	logger   zerolog.Logger

	// Serializes mutating passes so a sweep tick and a create cannot
	// interleave on the same item's state.
	mu sync.Mutex
}

// New constructs the scheduling engine.
func New(store catalog.Catalog, clk clock.Clock, registry *devices.Registry, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		clk:      clk,
		registry: registry,
		bus:      bus,
		logger:   logger.With().Str("component", "scheduling").Logger(),
	}
}

// CreateItem validates the candidate, resolves overrides against
// existing content, and persists the new item.
func (s *Service) CreateItem(ctx context.Context, cand Candidate) (string, error) {
	if err := s.validate(cand, s.clk.Now()); err != nil {
		return "", err
	}

	item := buildItem(cand)

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.store.WithTx(ctx, func(tx catalog.Catalog) error {
		if err := s.resolveOverrides(ctx, tx, item); err != nil {
			return err
		}
		if err := tx.SaveItem(ctx, item); err != nil {
			return err
		}
		for i := range item.Windows {
			if err := tx.SaveWindow(ctx, &item.Windows[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Info().
		Str("item", item.ID).
		Str("title", item.Title).
		Bool("immediate", item.Immediate).
		Int("windows", len(item.Windows)).
		Msg("content item created")
	s.publish(events.EventContentCreated, item)

	return item.ID, nil
}

// UpdateItem re-validates the candidate and replaces the stored item
// wholesale: old windows are detached and discarded, not merged, and
// the immediate flag is re-derived from the new window set.
func (s *Service) UpdateItem(ctx context.Context, id string, cand Candidate) (*models.ContentItem, error) {
	if err := s.validate(cand, s.clk.Now()); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *models.ContentItem
	err := s.store.WithTx(ctx, func(tx catalog.Catalog) error {
		existing, err := tx.FindItemByID(ctx, id)
		if err != nil {
			return err
		}

		existing.Title = cand.Title
		existing.Description = cand.Description
		existing.Kind = cand.Kind
		existing.ImageURLs = models.StringList(cand.ImageURLs)
		existing.VideoURLs = models.StringList(cand.VideoURLs)
		existing.Body = cand.Body
		existing.TargetDevices = models.StringList(cand.TargetDevices)
		existing.Active = cand.Active
		existing.Windows = buildWindows(existing.ID, cand.Windows)
		existing.RecomputeImmediate()

		if err := s.resolveOverrides(ctx, tx, existing); err != nil {
			return err
		}
		if err := tx.ReplaceWindows(ctx, existing.ID, existing.Windows); err != nil {
			return err
		}
		if err := tx.SaveItem(ctx, existing); err != nil {
			return err
		}
		updated = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("item", updated.ID).Msg("content item updated")
	s.publish(events.EventContentUpdated, updated)

	return updated, nil
}

// DeleteItem removes the item; deletion cascades to its windows.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.store.WithTx(ctx, func(tx catalog.Catalog) error {
		return tx.DeleteItemByID(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("item", id).Msg("content item deleted")
	s.bus.Publish(events.EventContentDeleted, events.Payload{"item_id": id})
	s.bus.Publish(events.EventDisplayInvalidated, events.Payload{"item_id": id})
	return nil
}

// GetItem loads one item with its windows.
func (s *Service) GetItem(ctx context.Context, id string) (*models.ContentItem, error) {
	return s.store.FindItemByID(ctx, id)
}

// ListItems returns every item with its windows.
func (s *Service) ListItems(ctx context.Context) ([]models.ContentItem, error) {
	return s.store.FindAllItems(ctx)
}

// ResolveForDevice returns the single item the device should display at
// now, or nil when nothing is eligible. Scheduled content always
// outranks immediate content: the active flag alone is not sufficient,
// window classification is authoritative.
func (s *Service) ResolveForDevice(ctx context.Context, deviceID string, now time.Time) (*models.ContentItem, error) {
	windows, err := s.store.FindWindowsActiveByDeviceAt(ctx, deviceID, now)
	if err != nil {
		return nil, err
	}

	// Earliest-starting window wins; ties break on item ID via the
	// catalog's ordering.
	for _, w := range windows {
		item, err := s.store.FindItemByID(ctx, w.ContentItemID)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if item.Active {
			return item, nil
		}
	}

	immediates, err := s.store.FindImmediateActiveByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if len(immediates) > 0 {
		// Catalog orders by item ID, so the pick is deterministic.
		item := immediates[0]
		return &item, nil
	}

	return nil, nil
}

// UpcomingForDevice returns items with upcoming windows on the device,
// earliest start first.
func (s *Service) UpcomingForDevice(ctx context.Context, deviceID string, now time.Time) ([]models.ContentItem, error) {
	windows, err := s.store.FindUpcomingWindowsByDevice(ctx, deviceID, now)
	if err != nil {
		return nil, err
	}
	return s.collectOwners(ctx, windows)
}

// CurrentlyActive returns every item that is eligible for display
// somewhere right now: items with an open window plus active immediate
// items.
func (s *Service) CurrentlyActive(ctx context.Context, now time.Time) ([]models.ContentItem, error) {
	windows, err := s.store.FindWindowsActiveAt(ctx, now)
	if err != nil {
		return nil, err
	}
	scheduled, err := s.collectOwners(ctx, windows)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(scheduled))
	for _, item := range scheduled {
		seen[item.ID] = struct{}{}
	}

	all, err := s.store.FindAllItems(ctx)
	if err != nil {
		return nil, err
	}
	for _, item := range all {
		if item.Immediate && item.Active {
			if _, dup := seen[item.ID]; !dup {
				scheduled = append(scheduled, item)
			}
		}
	}
	return scheduled, nil
}

// Upcoming returns items with upcoming windows on any device.
func (s *Service) Upcoming(ctx context.Context, now time.Time) ([]models.ContentItem, error) {
	windows, err := s.store.FindUpcomingWindows(ctx, now)
	if err != nil {
		return nil, err
	}
	return s.collectOwners(ctx, windows)
}

// resolveOverrides decides which previously active content must yield
// to item. Deactivation is monotonic within one pass: nothing is
// reactivated here, only by the sweep.
func (s *Service) resolveOverrides(ctx context.Context, tx catalog.Catalog, item *models.ContentItem) error {
	for _, deviceID := range item.TargetDevices {
		if err := s.resolveDeviceOverrides(ctx, tx, deviceID, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) resolveDeviceOverrides(ctx context.Context, tx catalog.Catalog, deviceID string, item *models.ContentItem) error {
	existing, err := tx.FindImmediateActiveByDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	for i := range existing {
		e := &existing[i]
		if e.ID == item.ID {
			continue
		}

		if item.Immediate {
			// Immediate replaces immediate permanently; no sweep will
			// bring the old item back.
			e.Active = false
			if err := tx.SaveItem(ctx, e); err != nil {
				return err
			}
			telemetry.OverridesTotal.WithLabelValues("immediate").Inc()
			s.logger.Info().Str("device", deviceID).Str("suppressed", e.ID).Str("by", item.ID).Msg("immediate content overridden permanently")
			s.bus.Publish(events.EventContentOverridden, events.Payload{
				"device_id": deviceID, "item_id": e.ID, "by": item.ID, "permanent": true,
			})
			continue
		}

		// Scheduled content suppresses the immediate item only for the
		// duration of its windows; record the id on every window so the
		// sweep can restore it.
		for w := range item.Windows {
			item.Windows[w].SuppressedItemIDs = append(item.Windows[w].SuppressedItemIDs, e.ID)
		}
		e.Active = false
		if err := tx.SaveItem(ctx, e); err != nil {
			return err
		}
		telemetry.OverridesTotal.WithLabelValues("scheduled").Inc()
		s.logger.Info().Str("device", deviceID).Str("suppressed", e.ID).Str("by", item.ID).Msg("immediate content suppressed until window expiry")
		s.bus.Publish(events.EventContentOverridden, events.Payload{
			"device_id": deviceID, "item_id": e.ID, "by": item.ID, "permanent": false,
		})
	}

	if item.Immediate {
		return nil
	}

	// Scheduled-vs-scheduled: any window overlapping one of ours on
	// this device is disabled outright, whole-window, and its owner is
	// recorded for restoration. Suppressed ids are intentionally not
	// de-duplicated across our windows; restoration is idempotent.
	for w := range item.Windows {
		win := &item.Windows[w]
		overlapping, err := tx.FindOverlappingWindowsByDevice(ctx, deviceID, win.StartsAt, win.EndsAt)
		if err != nil {
			return err
		}
		for i := range overlapping {
			ow := &overlapping[i]
			if ow.ContentItemID == item.ID {
				// Self-collision guard for updates.
				continue
			}
			ow.Active = false
			if err := tx.SaveWindow(ctx, ow); err != nil {
				return err
			}
			win.SuppressedItemIDs = append(win.SuppressedItemIDs, ow.ContentItemID)
			telemetry.OverridesTotal.WithLabelValues("scheduled").Inc()
			s.logger.Info().Str("device", deviceID).Str("window", ow.ID).Str("suppressed", ow.ContentItemID).Str("by", item.ID).Msg("overlapping window disabled")
			s.bus.Publish(events.EventContentOverridden, events.Payload{
				"device_id": deviceID, "item_id": ow.ContentItemID, "window_id": ow.ID, "by": item.ID, "permanent": false,
			})
		}
	}

	return nil
}

func (s *Service) collectOwners(ctx context.Context, windows []models.Window) ([]models.ContentItem, error) {
	var items []models.ContentItem
	seen := make(map[string]struct{}, len(windows))
	for _, w := range windows {
		if _, dup := seen[w.ContentItemID]; dup {
			continue
		}
		seen[w.ContentItemID] = struct{}{}
		item, err := s.store.FindItemByID(ctx, w.ContentItemID)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

func (s *Service) publish(eventType events.EventType, item *models.ContentItem) {
	s.bus.Publish(eventType, events.Payload{
		"item_id": item.ID,
		"title":   item.Title,
		"devices": []string(item.TargetDevices),
	})
	s.bus.Publish(events.EventDisplayInvalidated, events.Payload{"item_id": item.ID})
}

func buildItem(cand Candidate) *models.ContentItem {
	item := &models.ContentItem{
		ID:            uuid.NewString(),
		Title:         cand.Title,
		Description:   cand.Description,
		Kind:          cand.Kind,
		ImageURLs:     models.StringList(cand.ImageURLs),
		VideoURLs:     models.StringList(cand.VideoURLs),
		Body:          cand.Body,
		TargetDevices: models.StringList(cand.TargetDevices),
		Active:        cand.Active,
	}
	item.Windows = buildWindows(item.ID, cand.Windows)
	item.RecomputeImmediate()
	return item
}

func buildWindows(itemID string, cands []WindowCandidate) []models.Window {
	windows := make([]models.Window, 0, len(cands))
	for _, wc := range cands {
		windows = append(windows, models.Window{
			ID:            uuid.NewString(),
			ContentItemID: itemID,
			StartsAt:      wc.StartsAt,
			EndsAt:        wc.EndsAt,
			Active:        true,
		})
	}
	return windows
}
