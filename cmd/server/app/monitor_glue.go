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
	"github.com/dashif-labs/ssaigw/pkg/scte35"
)

// handleMonitorCue is the monitor.CueHandler wired into every
// ChannelPoller at startup. It turns a decoded splice insert into a
// Coordinator Start call, applying the channel's tier guard and the
// dedup/auto-insert gates spec.md section 4.9 describes.
func (s *Server) handleMonitorCue(ctx context.Context, channelID string, cue scte35.Cue, pdt time.Time) {
	ch, err := s.ChannelCache.Get(ctx, channelID)
	if err != nil {
		slog.Warn("scte35 monitor: channel lookup failed", "channel_id", channelID, "error", err)
		return
	}
	if !ch.Scte35Enabled || !ch.Scte35AutoInsert {
		return
	}
	if !cue.OutOfNetworkIndicator {
		// A cue-in closes a break through the ordinary expiry path, not a Start.
		return
	}

	tierGuard := ch.Tier == 0 || cue.Tier == 0 || int(cue.Tier) <= ch.Tier

	durationS := ch.DefaultAdDurationS
	if cue.HasDuration && cue.DurationS > 0 {
		durationS = cue.DurationS
	}

	co, err := s.Registry.Get(channelID)
	if err != nil {
		slog.Warn("scte35 monitor: coordinator lookup failed", "channel_id", channelID, "error", err)
		return
	}

	decisionCtx, cancel := context.WithTimeout(ctx, time.Duration(ch.VastTimeoutMs)*time.Millisecond)
	defer cancel()

	params := coordinator.StartParams{
		EventID:   fmt.Sprintf("scte35-%d", cue.EventID),
		Source:    config.SourceScte35,
		DurationS: durationS,
		Now:       time.Now(),
		Scte35: &config.Scte35Ref{
			PDT:        pdt,
			SignalType: string(cue.CommandType),
			EventID:    cue.EventID,
		},
		RequireDedup: true,
		TierGuard:    tierGuard,
	}

	_, started, err := co.Start(decisionCtx, ch, params, s.Decisions.Decide)
	if err != nil {
		slog.Warn("scte35 monitor: start failed", "channel_id", channelID, "event_id", cue.EventID, "error", err)
		return
	}
	if started {
		slog.Info("scte35 monitor: ad break started", "channel_id", channelID, "event_id", cue.EventID, "duration_s", durationS)
	}
}
