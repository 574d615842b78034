/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import (
	"time"

	"github.com/friendsincode/heimdall_signage/internal/models"
)

// validate checks a candidate against structural rules. It touches no
// state: a rejected candidate leaves the catalog unchanged.
func (s *Service) validate(cand Candidate, now time.Time) error {
	if cand.Title == "" {
		return validationErr("title must not be empty")
	}

	if len(cand.TargetDevices) == 0 {
		return validationErr("at least one target device is required")
	}
	for _, id := range cand.TargetDevices {
		if !s.registry.Known(id) {
			return validationErr("unknown device %q", id)
		}
	}

	if cand.Kind == "" {
		return validationErr("content kind is required")
	}
	if !cand.Kind.Valid() {
		return validationErr("unknown content kind %q", cand.Kind)
	}

	if err := validatePayload(cand); err != nil {
		return err
	}

	for i, w := range cand.Windows {
		if w.StartsAt.IsZero() || w.EndsAt.IsZero() {
			return validationErr("window %d: start and end are required", i)
		}
		if !w.StartsAt.Before(w.EndsAt) {
			return validationErr("window %d: start must be before end", i)
		}
		if w.EndsAt.Before(now) {
			return validationErr("window %d: end is in the past", i)
		}
	}

	return nil
}

// validatePayload enforces the cardinality each content kind demands.
func validatePayload(cand Candidate) error {
	switch cand.Kind {
	case models.KindImageSingle:
		if len(cand.ImageURLs) < 1 {
			return validationErr("%s requires at least 1 image", cand.Kind)
		}
	case models.KindImageDual:
		if len(cand.ImageURLs) < 2 {
			return validationErr("%s requires at least 2 images", cand.Kind)
		}
	case models.KindImageQuad:
		if len(cand.ImageURLs) < 4 {
			return validationErr("%s requires at least 4 images", cand.Kind)
		}
	case models.KindVideo:
		if len(cand.VideoURLs) != 1 {
			return validationErr("%s requires exactly 1 video", cand.Kind)
		}
	case models.KindEmbed, models.KindText:
		if cand.Body == "" {
			return validationErr("%s requires a non-empty body", cand.Kind)
		}
	}
	return nil
}
