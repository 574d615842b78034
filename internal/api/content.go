/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/heimdall_signage/internal/models"
	"github.com/friendsincode/heimdall_signage/internal/scheduling"
)

type windowRequest struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type contentRequest struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Kind          string          `json:"kind"`
	ImageURLs     []string        `json:"image_urls"`
	VideoURLs     []string        `json:"video_urls"`
	Body          string          `json:"body"`
	TargetDevices []string        `json:"target_devices"`
	Windows       []windowRequest `json:"windows"`
	Active        *bool           `json:"active"`
}

func (req *contentRequest) candidate() scheduling.Candidate {
	cand := scheduling.Candidate{
		Title:         req.Title,
		Description:   req.Description,
		Kind:          models.ContentKind(req.Kind),
		ImageURLs:     req.ImageURLs,
		VideoURLs:     req.VideoURLs,
		Body:          req.Body,
		TargetDevices: req.TargetDevices,
		Active:        true,
	}
	if req.Active != nil {
		cand.Active = *req.Active
	}
	for _, w := range req.Windows {
		cand.Windows = append(cand.Windows, scheduling.WindowCandidate{
			StartsAt: w.StartsAt,
			EndsAt:   w.EndsAt,
		})
	}
	return cand
}

type windowResponse struct {
	ID                string    `json:"id"`
	StartsAt          time.Time `json:"starts_at"`
	EndsAt            time.Time `json:"ends_at"`
	Active            bool      `json:"active"`
	State             string    `json:"state"`
	SuppressedItemIDs []string  `json:"suppressed_item_ids,omitempty"`
}

type contentResponse struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	Description   string           `json:"description,omitempty"`
	Kind          string           `json:"kind"`
	ImageURLs     []string         `json:"image_urls,omitempty"`
	VideoURLs     []string         `json:"video_urls,omitempty"`
	Body          string           `json:"body,omitempty"`
	TargetDevices []string         `json:"target_devices"`
	Active        bool             `json:"active"`
	Immediate     bool             `json:"immediate"`
	Windows       []windowResponse `json:"windows"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func contentToResponse(item *models.ContentItem, now time.Time) contentResponse {
	resp := contentResponse{
		ID:            item.ID,
		Title:         item.Title,
		Description:   item.Description,
		Kind:          string(item.Kind),
		ImageURLs:     item.ImageURLs,
		VideoURLs:     item.VideoURLs,
		Body:          item.Body,
		TargetDevices: item.TargetDevices,
		Active:        item.Active,
		Immediate:     item.Immediate,
		Windows:       make([]windowResponse, 0, len(item.Windows)),
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
	}
	for i := range item.Windows {
		w := &item.Windows[i]
		resp.Windows = append(resp.Windows, windowResponse{
			ID:                w.ID,
			StartsAt:          w.StartsAt,
			EndsAt:            w.EndsAt,
			Active:            w.Active,
			State:             string(w.Classify(now)),
			SuppressedItemIDs: w.SuppressedItemIDs,
		})
	}
	return resp
}

func (a *API) handleContentList(w http.ResponseWriter, r *http.Request) {
	items, err := a.engine.ListItems(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list content failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	now := a.clk.Now()
	resp := make([]contentResponse, 0, len(items))
	for i := range items {
		resp = append(resp, contentToResponse(&items[i], now))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleContentCreate(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	id, err := a.engine.CreateItem(r.Context(), req.candidate())
	if err != nil {
		a.writeEngineError(w, err, "create content")
		return
	}

	item, err := a.engine.GetItem(r.Context(), id)
	if err != nil {
		a.logger.Error().Err(err).Str("item", id).Msg("reload created item failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusCreated, contentToResponse(item, a.clk.Now()))
}

func (a *API) handleContentGet(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	item, err := a.engine.GetItem(r.Context(), itemID)
	if err != nil {
		a.writeEngineError(w, err, "get content")
		return
	}
	writeJSON(w, http.StatusOK, contentToResponse(item, a.clk.Now()))
}

func (a *API) handleContentUpdate(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	item, err := a.engine.UpdateItem(r.Context(), itemID, req.candidate())
	if err != nil {
		a.writeEngineError(w, err, "update content")
		return
	}
	writeJSON(w, http.StatusOK, contentToResponse(item, a.clk.Now()))
}

func (a *API) handleContentDelete(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	if err := a.engine.DeleteItem(r.Context(), itemID); err != nil {
		a.writeEngineError(w, err, "delete content")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) writeEngineError(w http.ResponseWriter, err error, op string) {
	var ve *scheduling.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "validation_failed",
			"reason": ve.Reason,
		})
	case errors.Is(err, scheduling.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	default:
		a.logger.Error().Err(err).Str("op", op).Msg("engine operation failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}
