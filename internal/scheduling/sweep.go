/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import (
	"context"
	"time"

	"github.com/friendsincode/heimdall_signage/internal/catalog"
	"github.com/friendsincode/heimdall_signage/internal/events"
	"github.com/friendsincode/heimdall_signage/internal/telemetry"
)

// SweepReport summarizes one maintenance pass.
type SweepReport struct {
	ExpiredWindows   int `json:"expired_windows"`
	RestoredItems    int `json:"restored_items"`
	MissingItems     int `json:"missing_items"`
	DeactivatedItems int `json:"deactivated_items"`
}

// RunSweep runs one maintenance pass at the given instant. Each expired
// window is settled in its own transaction: suppressed items are
// restored and the window is deactivated as one unit, so a crash
// mid-sweep never loses a restoration. A second sweep over the same
// state is a no-op.
func (s *Service) RunSweep(ctx context.Context, now time.Time) (SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report SweepReport

	expired, err := s.store.FindExpiredWindows(ctx, now)
	if err != nil {
		return report, err
	}

	for i := range expired {
		w := expired[i]
		err := s.store.WithTx(ctx, func(tx catalog.Catalog) error {
			for _, itemID := range w.SuppressedItemIDs {
				item, err := tx.FindItemByID(ctx, itemID)
				if err == ErrNotFound {
					report.MissingItems++
					s.logger.Warn().Str("window", w.ID).Str("item", itemID).Msg("suppressed item vanished before restore")
					continue
				}
				if err != nil {
					return err
				}
				if item.Active {
					// Already restored by an earlier window this pass.
					continue
				}
				item.Active = true
				if err := tx.SaveItem(ctx, item); err != nil {
					return err
				}
				report.RestoredItems++
				telemetry.ItemsRestoredTotal.Inc()
				s.logger.Info().Str("window", w.ID).Str("item", itemID).Msg("suppressed item restored")
				s.bus.Publish(events.EventContentRestored, events.Payload{
					"window_id": w.ID, "item_id": itemID,
				})
			}
			w.Active = false
			return tx.SaveWindow(ctx, &w)
		})
		if err != nil {
			return report, err
		}
		report.ExpiredWindows++
		telemetry.WindowsExpiredTotal.Inc()
	}

	// Stale-item pass: a scheduled item whose windows have all expired
	// or been disabled has nothing left to show and goes inactive.
	deactivated, err := s.deactivateStaleItems(ctx, now)
	if err != nil {
		return report, err
	}
	report.DeactivatedItems = deactivated

	if report.ExpiredWindows > 0 || report.RestoredItems > 0 || report.DeactivatedItems > 0 {
		s.logger.Info().
			Int("expired_windows", report.ExpiredWindows).
			Int("restored", report.RestoredItems).
			Int("missing", report.MissingItems).
			Int("deactivated", report.DeactivatedItems).
			Msg("sweep completed")
		s.bus.Publish(events.EventSweepCompleted, events.Payload{
			"expired_windows": report.ExpiredWindows,
			"restored":        report.RestoredItems,
			"missing":         report.MissingItems,
			"deactivated":     report.DeactivatedItems,
		})
		s.bus.Publish(events.EventDisplayInvalidated, events.Payload{"reason": "sweep"})
	}

	return report, nil
}

func (s *Service) deactivateStaleItems(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := s.store.WithTx(ctx, func(tx catalog.Catalog) error {
		items, err := tx.FindActiveScheduledItems(ctx)
		if err != nil {
			return err
		}
		for i := range items {
			item := &items[i]
			alive := false
			for w := range item.Windows {
				win := &item.Windows[w]
				if win.Active && !win.Expired(now) {
					alive = true
					break
				}
			}
			if alive {
				continue
			}
			item.Active = false
			if err := tx.SaveItem(ctx, item); err != nil {
				return err
			}
			count++
			telemetry.ItemsDeactivatedTotal.Inc()
			s.logger.Info().Str("item", item.ID).Msg("scheduled item out of windows, deactivated")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
