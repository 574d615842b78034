/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sweeper drives the periodic expiry/restore pass of the
// scheduling engine.
package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/heimdall_signage/internal/clock"
	"github.com/friendsincode/heimdall_signage/internal/scheduling"
	"github.com/friendsincode/heimdall_signage/internal/telemetry"
)

// Sweeper runs the engine's sweep on a fixed interval.
type Sweeper struct {
	engine   *scheduling.Service
	clk      clock.Clock
	interval time.Duration
	logger   zerolog.Logger
}

// New constructs a sweeper.
func New(engine *scheduling.Service, clk clock.Clock, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		engine:   engine,
		clk:      clk,
		interval: interval,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// Run ticks until ctx is cancelled. One pass runs immediately so a
// restarted process settles overdue windows without waiting a full
// interval.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("sweep loop started")

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweep loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	telemetry.SweepTicksTotal.Inc()

	report, err := s.engine.RunSweep(ctx, s.clk.Now())
	if err != nil {
		telemetry.SweepErrorsTotal.Inc()
		s.logger.Error().Err(err).Msg("sweep pass failed")
		return
	}

	if report.ExpiredWindows > 0 || report.RestoredItems > 0 || report.DeactivatedItems > 0 {
		s.logger.Debug().
			Int("expired_windows", report.ExpiredWindows).
			Int("restored", report.RestoredItems).
			Int("deactivated", report.DeactivatedItems).
			Msg("sweep pass finished")
	}
}
