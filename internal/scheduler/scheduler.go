// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package scheduler implements the Scheduled trigger: a per-channel
// fixed-interval tick that starts an ad break the same way an SCTE-35
// cue or a manual `/cue start` would, independent of any upstream
// signal (spec.md section 1, "three independent triggers"; section
// 4.6, Idle -> Active | Scheduled tick).
package scheduler

import (
	"context"
	"time"

	"github.com/dashif-labs/ssaigw/internal/config"
)

// TickHandler starts a scheduled ad break for ch at tick time now.
type TickHandler func(ctx context.Context, ch *config.Channel, now time.Time)

const defaultInterval = time.Minute

// ChannelScheduler is a suture.Service: Serve fires OnTick every
// schedule_interval_s until ctx is canceled.
type ChannelScheduler struct {
	Channel *config.Channel
	OnTick  TickHandler
}

// NewChannelScheduler builds a ChannelScheduler for ch.
func NewChannelScheduler(ch *config.Channel, onTick TickHandler) *ChannelScheduler {
	return &ChannelScheduler{
		Channel: ch,
		OnTick:  onTick,
	}
}

// Serve implements suture.Service. It never returns nil: suture treats
// a nil return as "stop permanently", which this service never wants.
func (c *ChannelScheduler) Serve(ctx context.Context) error {
	interval := time.Duration(c.Channel.ScheduleIntervalS) * time.Second
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if c.OnTick != nil {
				c.OnTick(ctx, c.Channel, now)
			}
		}
	}
}
