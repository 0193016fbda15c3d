// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dashif-labs/ssaigw/internal/config"
	"github.com/dashif-labs/ssaigw/internal/coordinator"
)

// handleScheduledTick is the scheduler.TickHandler wired into every
// ChannelScheduler at startup. It turns a tick into a Coordinator Start
// call with the channel's default_ad_duration_s, unguarded by the
// SCTE-35 dedup set since a scheduled tick mints its own unique event
// id by construction (spec.md section 4.6).
func (s *Server) handleScheduledTick(ctx context.Context, ch *config.Channel, now time.Time) {
	co, err := s.Registry.Get(ch.ChannelID)
	if err != nil {
		slog.Warn("scheduler: coordinator lookup failed", "channel_id", ch.ChannelID, "error", err)
		return
	}

	decisionCtx, cancel := context.WithTimeout(ctx, time.Duration(ch.VastTimeoutMs)*time.Millisecond)
	defer cancel()

	eventID := fmt.Sprintf("scheduled-%d", now.UnixNano())
	params := coordinator.StartParams{
		EventID:      eventID,
		Source:       config.SourceScheduled,
		DurationS:    ch.DefaultAdDurationS,
		Now:          now,
		RequireDedup: false,
		TierGuard:    true,
	}

	_, started, err := co.Start(decisionCtx, ch, params, s.Decisions.Decide)
	if err != nil {
		slog.Warn("scheduler: start failed", "channel_id", ch.ChannelID, "event_id", eventID, "error", err)
		return
	}
	if started {
		slog.Info("scheduler: ad break started", "channel_id", ch.ChannelID, "event_id", eventID, "duration_s", ch.DefaultAdDurationS)
	}
}
