/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/heimdall_signage/internal/cache"
	"github.com/friendsincode/heimdall_signage/internal/models"
)

// displayResponse is what a polling TV renders. For image kinds the
// full URL list ships every time; the TV owns the rotation.
type displayResponse struct {
	DeviceID   string    `json:"device_id"`
	ItemID     string    `json:"item_id,omitempty"`
	Title      string    `json:"title,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	ImageURLs  []string  `json:"image_urls,omitempty"`
	VideoURLs  []string  `json:"video_urls,omitempty"`
	Body       string    `json:"body,omitempty"`
	Empty      bool      `json:"empty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

func (a *API) handleDisplay(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if !a.registry.Known(deviceID) {
		writeError(w, http.StatusNotFound, "unknown_device")
		return
	}

	if cached, ok := a.cache.GetDisplay(r.Context(), deviceID); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if cached.Empty {
			_ = json.NewEncoder(w).Encode(displayResponse{
				DeviceID: deviceID, Empty: true, ResolvedAt: cached.Resolved,
			})
		} else {
			_, _ = w.Write(cached.Payload)
		}
		return
	}

	now := a.clk.Now()
	item, err := a.engine.ResolveForDevice(r.Context(), deviceID, now)
	if err != nil {
		a.logger.Error().Err(err).Str("device", deviceID).Msg("display resolution failed")
		writeError(w, http.StatusInternalServerError, "resolution_failed")
		return
	}

	resp := buildDisplayResponse(deviceID, item, now)
	a.cacheDisplay(r, deviceID, resp)
	writeJSON(w, http.StatusOK, resp)
}

func buildDisplayResponse(deviceID string, item *models.ContentItem, now time.Time) displayResponse {
	if item == nil {
		return displayResponse{DeviceID: deviceID, Empty: true, ResolvedAt: now}
	}
	return displayResponse{
		DeviceID:   deviceID,
		ItemID:     item.ID,
		Title:      item.Title,
		Kind:       string(item.Kind),
		ImageURLs:  item.ImageURLs,
		VideoURLs:  item.VideoURLs,
		Body:       item.Body,
		ResolvedAt: now,
	}
}

func (a *API) cacheDisplay(r *http.Request, deviceID string, resp displayResponse) {
	entry := &cache.CachedDisplay{Empty: resp.Empty, Resolved: resp.ResolvedAt}
	if !resp.Empty {
		payload, err := json.Marshal(resp)
		if err != nil {
			return
		}
		entry.Payload = payload
	}
	if err := a.cache.SetDisplay(r.Context(), deviceID, entry); err != nil {
		a.logger.Debug().Err(err).Str("device", deviceID).Msg("display cache store failed")
	}
}
