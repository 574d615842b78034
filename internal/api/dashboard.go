/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleDashboardSummary gives the overview counts the dashboard's
// landing view renders.
func (a *API) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	now := a.clk.Now()

	all, err := a.engine.ListItems(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("dashboard summary query failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	active, err := a.engine.CurrentlyActive(r.Context(), now)
	if err != nil {
		a.logger.Error().Err(err).Msg("dashboard summary query failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	upcoming, err := a.engine.Upcoming(r.Context(), now)
	if err != nil {
		a.logger.Error().Err(err).Msg("dashboard summary query failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	immediate := 0
	for i := range all {
		if all[i].Immediate && all[i].Active {
			immediate++
		}
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"total_items":   len(all),
		"active_now":    len(active),
		"upcoming":      len(upcoming),
		"immediate":     immediate,
		"known_devices": len(a.registry.All()),
	})
}

func (a *API) handleDashboardActive(w http.ResponseWriter, r *http.Request) {
	now := a.clk.Now()
	items, err := a.engine.CurrentlyActive(r.Context(), now)
	if err != nil {
		a.logger.Error().Err(err).Msg("dashboard active query failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	resp := make([]contentResponse, 0, len(items))
	for i := range items {
		resp = append(resp, contentToResponse(&items[i], now))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDashboardUpcoming(w http.ResponseWriter, r *http.Request) {
	now := a.clk.Now()
	items, err := a.engine.Upcoming(r.Context(), now)
	if err != nil {
		a.logger.Error().Err(err).Msg("dashboard upcoming query failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	resp := make([]contentResponse, 0, len(items))
	for i := range items {
		resp = append(resp, contentToResponse(&items[i], now))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDashboardDevice reports what one device is showing now and what
// it will show next.
func (a *API) handleDashboardDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if !a.registry.Known(deviceID) {
		writeError(w, http.StatusNotFound, "unknown_device")
		return
	}

	now := a.clk.Now()
	current, err := a.engine.ResolveForDevice(r.Context(), deviceID, now)
	if err != nil {
		a.logger.Error().Err(err).Str("device", deviceID).Msg("device resolution failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	upcoming, err := a.engine.UpcomingForDevice(r.Context(), deviceID, now)
	if err != nil {
		a.logger.Error().Err(err).Str("device", deviceID).Msg("device upcoming query failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	resp := struct {
		DeviceID string            `json:"device_id"`
		Current  *contentResponse  `json:"current"`
		Upcoming []contentResponse `json:"upcoming"`
	}{
		DeviceID: deviceID,
		Upcoming: make([]contentResponse, 0, len(upcoming)),
	}
	if current != nil {
		cr := contentToResponse(current, now)
		resp.Current = &cr
	}
	for i := range upcoming {
		resp.Upcoming = append(resp.Upcoming, contentToResponse(&upcoming[i], now))
	}
	writeJSON(w, http.StatusOK, resp)
}
