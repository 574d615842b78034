/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/heimdall_signage/internal/leadership"
)

// LeaderAwareSweeper wraps a sweeper and only runs it while this
// instance holds the leader lease.
type LeaderAwareSweeper struct {
	sweeper  *Sweeper
	election *leadership.Election
	logger   zerolog.Logger

	ctx            context.Context
	cancelFunc     context.CancelFunc
	sweeperRunning bool
}

// NewLeaderAware creates a leader-aware sweeper wrapper.
func NewLeaderAware(sweeper *Sweeper, election *leadership.Election, logger zerolog.Logger) *LeaderAwareSweeper {
	return &LeaderAwareSweeper{
		sweeper:  sweeper,
		election: election,
		logger:   logger.With().Str("component", "leader_aware_sweeper").Logger(),
	}
}

// Start begins monitoring leadership status and manages the sweep loop
// lifecycle.
func (las *LeaderAwareSweeper) Start(ctx context.Context) error {
	las.ctx = ctx

	las.logger.Info().Msg("starting leader-aware sweeper")

	if err := las.election.Start(ctx); err != nil {
		return err
	}

	go las.monitorLeadership()

	return nil
}

// Stop stops the sweep loop and releases leadership.
func (las *LeaderAwareSweeper) Stop() error {
	las.logger.Info().Msg("stopping leader-aware sweeper")

	if las.sweeperRunning && las.cancelFunc != nil {
		las.cancelFunc()
		las.sweeperRunning = false
	}

	return las.election.Stop()
}

func (las *LeaderAwareSweeper) monitorLeadership() {
	leaderCh := las.election.LeaderCh()

	if las.election.IsLeader() {
		las.startSweeper()
	}

	for {
		select {
		case <-las.ctx.Done():
			return
		case isLeader := <-leaderCh:
			if isLeader {
				las.logger.Info().Msg("became leader, starting sweeper")
				las.startSweeper()
			} else {
				las.logger.Warn().Msg("lost leadership, stopping sweeper")
				las.stopSweeper()
			}
		}
	}
}

func (las *LeaderAwareSweeper) startSweeper() {
	if las.sweeperRunning {
		las.logger.Warn().Msg("sweeper already running")
		return
	}

	ctx, cancel := context.WithCancel(las.ctx)
	las.cancelFunc = cancel
	las.sweeperRunning = true

	go func() {
		las.logger.Info().Msg("sweeper started")
		if err := las.sweeper.Run(ctx); err != nil && err != context.Canceled {
			las.logger.Error().Err(err).Msg("sweeper error")
		}
		las.sweeperRunning = false
		las.logger.Info().Msg("sweeper stopped")
	}()
}

func (las *LeaderAwareSweeper) stopSweeper() {
	if !las.sweeperRunning {
		return
	}

	if las.cancelFunc != nil {
		las.cancelFunc()
		las.cancelFunc = nil
	}

	// Give the loop a moment to observe cancellation.
	time.Sleep(100 * time.Millisecond)
	las.sweeperRunning = false
}

// IsLeader reports whether this instance is the leader.
func (las *LeaderAwareSweeper) IsLeader() bool {
	return las.election.IsLeader()
}
