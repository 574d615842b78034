/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package migration imports content from the legacy Spring-based
// notification backend so an existing deployment can switch over
// without re-entering its catalog.
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_signage/internal/models"
)

// Options controls the import run.
type Options struct {
	// DryRun analyzes the legacy database without writing anything.
	DryRun bool
}

// Stats summarizes an import run.
type Stats struct {
	Items          int
	Windows        int
	SkippedItems   int
	SuppressedRefs int
}

// legacy TV enum names map onto device registry keys.
var legacyTVKeys = map[string]string{
	"TV1": "tv1",
	"TV2": "tv2",
	"TV3": "tv3",
	"TV4": "tv4",
}

// legacy content type names map onto content kinds.
var legacyKinds = map[string]models.ContentKind{
	"SINGLE_IMAGE": models.KindImageSingle,
	"DOUBLE_IMAGE": models.KindImageDual,
	"QUAD_IMAGE":   models.KindImageQuad,
	"VIDEO":        models.KindVideo,
	"EMBED":        models.KindEmbed,
	"TEXT":         models.KindText,
}

// Importer copies the legacy content tables into the catalog.
type Importer struct {
	db      *gorm.DB
	logger  zerolog.Logger
	options Options
	stats   Stats

	// Legacy numeric IDs to the UUIDs assigned on import. Needed to
	// rewrite suppressed-ID references.
	idMap map[int64]string
}

// NewImporter creates a legacy importer writing into db.
func NewImporter(db *gorm.DB, logger zerolog.Logger, options Options) *Importer {
	return &Importer{
		db:      db,
		logger:  logger.With().Str("component", "legacy_importer").Logger(),
		options: options,
		idMap:   make(map[int64]string),
	}
}

// Import reads the legacy PostgreSQL database at dsn and copies its
// content items and schedule windows into the catalog.
func (i *Importer) Import(ctx context.Context, dsn string) (*Stats, error) {
	i.logger.Info().
		Str("dsn", maskDSN(dsn)).
		Bool("dry_run", i.options.DryRun).
		Msg("starting legacy import")

	legacyDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to legacy db: %w", err)
	}
	defer legacyDB.Close()

	if err := legacyDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping legacy db: %w", err)
	}

	items, err := i.readItems(ctx, legacyDB)
	if err != nil {
		return nil, fmt.Errorf("read legacy content: %w", err)
	}

	if err := i.readWindows(ctx, legacyDB, items); err != nil {
		return nil, fmt.Errorf("read legacy schedules: %w", err)
	}

	if i.options.DryRun {
		i.logger.Info().
			Int("items", i.stats.Items).
			Int("windows", i.stats.Windows).
			Int("skipped", i.stats.SkippedItems).
			Msg("dry run complete, nothing written")
		return &i.stats, nil
	}

	err = i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			if err := tx.Omit("Windows").Create(item).Error; err != nil {
				return fmt.Errorf("create item %s: %w", item.ID, err)
			}
			for w := range item.Windows {
				if err := tx.Create(&item.Windows[w]).Error; err != nil {
					return fmt.Errorf("create window %s: %w", item.Windows[w].ID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	i.logger.Info().
		Int("items", i.stats.Items).
		Int("windows", i.stats.Windows).
		Int("skipped", i.stats.SkippedItems).
		Int("suppressed_refs", i.stats.SuppressedRefs).
		Msg("legacy import complete")

	return &i.stats, nil
}

func (i *Importer) readItems(ctx context.Context, legacyDB *sql.DB) ([]*models.ContentItem, error) {
	rows, err := legacyDB.QueryContext(ctx, `
		SELECT id, title, COALESCE(description, ''), type, COALESCE(body, ''), active, immediate
		FROM content
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.ContentItem
	for rows.Next() {
		var (
			legacyID          int64
			title, desc       string
			kindName, body    string
			active, immediate bool
		)
		if err := rows.Scan(&legacyID, &title, &desc, &kindName, &body, &active, &immediate); err != nil {
			return nil, err
		}

		kind, ok := legacyKinds[strings.ToUpper(kindName)]
		if !ok {
			i.stats.SkippedItems++
			i.logger.Warn().Int64("legacy_id", legacyID).Str("type", kindName).Msg("unknown legacy content type, skipping")
			continue
		}

		item := &models.ContentItem{
			ID:          uuid.NewString(),
			Title:       title,
			Description: desc,
			Kind:        kind,
			Body:        body,
			Active:      active,
			Immediate:   immediate,
		}

		item.ImageURLs, err = i.readStringColumn(ctx, legacyDB,
			`SELECT image_url FROM content_image_urls WHERE content_id = $1 ORDER BY position`, legacyID)
		if err != nil {
			return nil, err
		}
		item.VideoURLs, err = i.readStringColumn(ctx, legacyDB,
			`SELECT video_url FROM content_video_urls WHERE content_id = $1 ORDER BY position`, legacyID)
		if err != nil {
			return nil, err
		}

		tvs, err := i.readStringColumn(ctx, legacyDB,
			`SELECT tv FROM content_tvs WHERE content_id = $1`, legacyID)
		if err != nil {
			return nil, err
		}
		for _, tv := range tvs {
			if key, ok := legacyTVKeys[strings.ToUpper(tv)]; ok {
				item.TargetDevices = append(item.TargetDevices, key)
			} else {
				i.logger.Warn().Int64("legacy_id", legacyID).Str("tv", tv).Msg("unknown legacy TV name, dropping target")
			}
		}

		i.idMap[legacyID] = item.ID
		items = append(items, item)
		i.stats.Items++
	}
	return items, rows.Err()
}

func (i *Importer) readWindows(ctx context.Context, legacyDB *sql.DB, items []*models.ContentItem) error {
	byLegacyID := make(map[string]*models.ContentItem, len(items))
	for legacyID, newID := range i.idMap {
		for _, item := range items {
			if item.ID == newID {
				byLegacyID[fmt.Sprint(legacyID)] = item
			}
		}
	}

	rows, err := legacyDB.QueryContext(ctx, `
		SELECT content_id, start_date, end_date, active, COALESCE(suppressed_content_ids, '')
		FROM content_time_schedule
		ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			legacyContentID int64
			window          models.Window
			suppressedCSV   string
		)
		if err := rows.Scan(&legacyContentID, &window.StartsAt, &window.EndsAt, &window.Active, &suppressedCSV); err != nil {
			return err
		}

		owner, ok := byLegacyID[fmt.Sprint(legacyContentID)]
		if !ok {
			i.logger.Warn().Int64("legacy_content_id", legacyContentID).Msg("schedule references missing content, skipping")
			continue
		}

		window.ID = uuid.NewString()
		window.ContentItemID = owner.ID
		window.SuppressedItemIDs = i.mapSuppressedIDs(suppressedCSV)

		owner.Windows = append(owner.Windows, window)
		i.stats.Windows++
	}
	return rows.Err()
}

// mapSuppressedIDs splits the legacy comma-delimited blob and rewrites
// each numeric reference to its imported UUID. References to content
// that no longer exists are dropped.
func (i *Importer) mapSuppressedIDs(csv string) models.StringList {
	var out models.StringList
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var legacyID int64
		if _, err := fmt.Sscanf(part, "%d", &legacyID); err != nil {
			i.logger.Warn().Str("ref", part).Msg("malformed suppressed-ID reference, dropping")
			continue
		}
		newID, ok := i.idMap[legacyID]
		if !ok {
			i.logger.Warn().Int64("legacy_id", legacyID).Msg("suppressed-ID references missing content, dropping")
			continue
		}
		out = append(out, newID)
		i.stats.SuppressedRefs++
	}
	return out
}

func (i *Importer) readStringColumn(ctx context.Context, legacyDB *sql.DB, query string, legacyID int64) (models.StringList, error) {
	rows, err := legacyDB.QueryContext(ctx, query, legacyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out models.StringList
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

func maskDSN(dsn string) string {
	if at := strings.LastIndex(dsn, "@"); at > 0 {
		if scheme := strings.Index(dsn, "://"); scheme > 0 {
			return dsn[:scheme+3] + "***" + dsn[at:]
		}
	}
	return dsn
}
