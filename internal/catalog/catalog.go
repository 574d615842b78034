/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog is the durable store for content items and their
// display windows. The scheduling engine is its only writer.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_signage/internal/models"
)

// ErrNotFound indicates the referenced record is absent from the catalog.
var ErrNotFound = errors.New("catalog: not found")

// StorageError wraps an underlying database failure. The engine performs
// no retries itself; retry policy belongs to the transport layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("catalog: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Catalog is the narrow repository contract the scheduling engine
// depends on.
type Catalog interface {
	WithTx(ctx context.Context, fn func(Catalog) error) error

	FindItemByID(ctx context.Context, id string) (*models.ContentItem, error)
	FindAllItems(ctx context.Context) ([]models.ContentItem, error)
	FindActiveScheduledItems(ctx context.Context) ([]models.ContentItem, error)
	FindImmediateActiveByDevice(ctx context.Context, deviceID string) ([]models.ContentItem, error)

	FindWindowsActiveAt(ctx context.Context, t time.Time) ([]models.Window, error)
	FindWindowsActiveByDeviceAt(ctx context.Context, deviceID string, t time.Time) ([]models.Window, error)
	FindUpcomingWindows(ctx context.Context, t time.Time) ([]models.Window, error)
	FindUpcomingWindowsByDevice(ctx context.Context, deviceID string, t time.Time) ([]models.Window, error)
	FindOverlappingWindowsByDevice(ctx context.Context, deviceID string, start, end time.Time) ([]models.Window, error)
	FindExpiredWindows(ctx context.Context, t time.Time) ([]models.Window, error)

	SaveItem(ctx context.Context, item *models.ContentItem) error
	SaveWindow(ctx context.Context, window *models.Window) error
	ReplaceWindows(ctx context.Context, itemID string, windows []models.Window) error
	DeleteItemByID(ctx context.Context, id string) error
}

// Store is the GORM-backed catalog.
type Store struct {
	db *gorm.DB
}

// New creates a catalog store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ Catalog = (*Store)(nil)

// WithTx runs fn against a transactional view of the store. All engine
// mutation passes (create, update, delete, sweep) run inside one of
// these so concurrent passes cannot interleave on an item's state.
func (s *Store) WithTx(ctx context.Context, fn func(Catalog) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// FindItemByID loads an item with its windows.
func (s *Store) FindItemByID(ctx context.Context, id string) (*models.ContentItem, error) {
	var item models.ContentItem
	err := s.db.WithContext(ctx).Preload("Windows").First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("find item", err)
	}
	return &item, nil
}

// FindAllItems returns every item with its windows, newest first.
func (s *Store) FindAllItems(ctx context.Context) ([]models.ContentItem, error) {
	var items []models.ContentItem
	err := s.db.WithContext(ctx).Preload("Windows").Order("created_at DESC").Find(&items).Error
	if err != nil {
		return nil, storageErr("find all items", err)
	}
	return items, nil
}

// FindActiveScheduledItems returns active, non-immediate items with
// their windows. Used by the sweep's stale-item pass.
func (s *Store) FindActiveScheduledItems(ctx context.Context) ([]models.ContentItem, error) {
	var items []models.ContentItem
	err := s.db.WithContext(ctx).Preload("Windows").
		Where("active = ? AND immediate = ?", true, false).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, storageErr("find active scheduled items", err)
	}
	return items, nil
}

// FindImmediateActiveByDevice returns active immediate items targeting
// the device, ordered by item ID for deterministic tie-breaks.
//
// Device membership lives in a JSON column, so candidates are fetched
// on the indexed flags and filtered here. Item counts are small.
func (s *Store) FindImmediateActiveByDevice(ctx context.Context, deviceID string) ([]models.ContentItem, error) {
	var candidates []models.ContentItem
	err := s.db.WithContext(ctx).
		Where("immediate = ? AND active = ?", true, true).
		Order("id").
		Find(&candidates).Error
	if err != nil {
		return nil, storageErr("find immediate by device", err)
	}

	items := candidates[:0]
	for _, item := range candidates {
		if item.Targets(deviceID) {
			items = append(items, item)
		}
	}
	return items, nil
}

// FindWindowsActiveAt returns active windows open at t, earliest start
// first.
func (s *Store) FindWindowsActiveAt(ctx context.Context, t time.Time) ([]models.Window, error) {
	var windows []models.Window
	err := s.db.WithContext(ctx).
		Where("active = ? AND starts_at < ? AND ends_at > ?", true, t, t).
		Order("starts_at, content_item_id").
		Find(&windows).Error
	if err != nil {
		return nil, storageErr("find windows active at", err)
	}
	return windows, nil
}

// FindWindowsActiveByDeviceAt returns active windows open at t whose
// owning item targets the device, earliest start first.
func (s *Store) FindWindowsActiveByDeviceAt(ctx context.Context, deviceID string, t time.Time) ([]models.Window, error) {
	windows, err := s.FindWindowsActiveAt(ctx, t)
	if err != nil {
		return nil, err
	}
	return s.filterWindowsByDevice(ctx, windows, deviceID)
}

// FindUpcomingWindows returns active windows that start strictly after t.
func (s *Store) FindUpcomingWindows(ctx context.Context, t time.Time) ([]models.Window, error) {
	var windows []models.Window
	err := s.db.WithContext(ctx).
		Where("active = ? AND starts_at > ?", true, t).
		Order("starts_at, content_item_id").
		Find(&windows).Error
	if err != nil {
		return nil, storageErr("find upcoming windows", err)
	}
	return windows, nil
}

// FindUpcomingWindowsByDevice returns upcoming windows for one device.
func (s *Store) FindUpcomingWindowsByDevice(ctx context.Context, deviceID string, t time.Time) ([]models.Window, error) {
	windows, err := s.FindUpcomingWindows(ctx, t)
	if err != nil {
		return nil, err
	}
	return s.filterWindowsByDevice(ctx, windows, deviceID)
}

// FindOverlappingWindowsByDevice returns active windows on the device
// that overlap the (start, end) range. Open-interval test: a window
// touching only at a boundary does not overlap.
func (s *Store) FindOverlappingWindowsByDevice(ctx context.Context, deviceID string, start, end time.Time) ([]models.Window, error) {
	var windows []models.Window
	err := s.db.WithContext(ctx).
		Where("active = ? AND starts_at < ? AND ends_at > ?", true, end, start).
		Order("starts_at, content_item_id").
		Find(&windows).Error
	if err != nil {
		return nil, storageErr("find overlapping windows", err)
	}
	return s.filterWindowsByDevice(ctx, windows, deviceID)
}

// FindExpiredWindows returns windows still flagged active whose end is
// strictly before t.
func (s *Store) FindExpiredWindows(ctx context.Context, t time.Time) ([]models.Window, error) {
	var windows []models.Window
	err := s.db.WithContext(ctx).
		Where("active = ? AND ends_at < ?", true, t).
		Order("ends_at, id").
		Find(&windows).Error
	if err != nil {
		return nil, storageErr("find expired windows", err)
	}
	return windows, nil
}

// SaveItem persists item fields. Windows are saved separately so the
// engine controls exactly which window rows change.
func (s *Store) SaveItem(ctx context.Context, item *models.ContentItem) error {
	if err := s.db.WithContext(ctx).Omit("Windows").Save(item).Error; err != nil {
		return storageErr("save item", err)
	}
	return nil
}

// SaveWindow persists a window row.
func (s *Store) SaveWindow(ctx context.Context, window *models.Window) error {
	if err := s.db.WithContext(ctx).Save(window).Error; err != nil {
		return storageErr("save window", err)
	}
	return nil
}

// ReplaceWindows detaches and discards all windows owned by the item
// and installs the given set in their place.
func (s *Store) ReplaceWindows(ctx context.Context, itemID string, windows []models.Window) error {
	tx := s.db.WithContext(ctx)
	if err := tx.Where("content_item_id = ?", itemID).Delete(&models.Window{}).Error; err != nil {
		return storageErr("clear windows", err)
	}
	for i := range windows {
		windows[i].ContentItemID = itemID
		if err := tx.Create(&windows[i]).Error; err != nil {
			return storageErr("create window", err)
		}
	}
	return nil
}

// DeleteItemByID removes the item and cascades to its windows.
func (s *Store) DeleteItemByID(ctx context.Context, id string) error {
	tx := s.db.WithContext(ctx)
	result := tx.Delete(&models.ContentItem{}, "id = ?", id)
	if result.Error != nil {
		return storageErr("delete item", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	// Explicit cascade: not every backend enforces the FK constraint.
	if err := tx.Where("content_item_id = ?", id).Delete(&models.Window{}).Error; err != nil {
		return storageErr("delete windows", err)
	}
	return nil
}

// filterWindowsByDevice keeps windows whose owning item targets the
// device. Owners are batch-loaded to avoid per-window queries.
func (s *Store) filterWindowsByDevice(ctx context.Context, windows []models.Window, deviceID string) ([]models.Window, error) {
	if len(windows) == 0 {
		return windows, nil
	}

	ids := make([]string, 0, len(windows))
	seen := make(map[string]struct{}, len(windows))
	for _, w := range windows {
		if _, ok := seen[w.ContentItemID]; !ok {
			seen[w.ContentItemID] = struct{}{}
			ids = append(ids, w.ContentItemID)
		}
	}

	var owners []models.ContentItem
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&owners).Error; err != nil {
		return nil, storageErr("load window owners", err)
	}

	targeting := make(map[string]bool, len(owners))
	for i := range owners {
		targeting[owners[i].ID] = owners[i].Targets(deviceID)
	}

	filtered := windows[:0]
	for _, w := range windows {
		if targeting[w.ContentItemID] {
			filtered = append(filtered, w)
		}
	}
	return filtered, nil
}
