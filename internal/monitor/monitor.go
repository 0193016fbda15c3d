// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package monitor implements the SCTE-35 Monitor: a per-channel
// background poller that samples a channel's origin manifest, decodes
// any SCTE-35 cues it carries, and forwards them to the Channel
// Coordinator. Deduplication is entirely the Coordinator's
// responsibility (spec.md section 4.8).
package monitor

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dashif-labs/ssaigw/internal/config"
	"github.com/dashif-labs/ssaigw/pkg/hls"
	"github.com/dashif-labs/ssaigw/pkg/scte35"
)

// CueHandler forwards a decoded cue, and the PDT of the segment it was
// attached to, to the Channel Coordinator.
type CueHandler func(ctx context.Context, channelID string, cue scte35.Cue, pdt time.Time)

// ChannelPoller is a suture.Service: Serve polls a single channel's
// media playlist until ctx is canceled.
type ChannelPoller struct {
	Channel    *config.Channel
	HTTPClient *http.Client
	OnCue      CueHandler
}

// NewChannelPoller builds a ChannelPoller for ch.
func NewChannelPoller(ch *config.Channel, onCue CueHandler) *ChannelPoller {
	return &ChannelPoller{
		Channel:    ch,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		OnCue:      onCue,
	}
}

// Serve implements suture.Service. It never returns nil: suture treats a
// nil return as "stop permanently", which a transient origin outage
// should not trigger.
func (p *ChannelPoller) Serve(ctx context.Context) error {
	interval := p.pollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *ChannelPoller) pollInterval() time.Duration {
	// max(manifest_cache_max_age_s, Td/2) per spec.md section 4.8, with Td
	// fixed at an assumed 6s target duration; fetched manifests do not
	// change it.
	const assumedTargetDuration = 6
	floor := time.Duration(p.Channel.ManifestCacheMaxAgeS) * time.Second
	half := assumedTargetDuration / 2 * time.Second
	if half > floor {
		return half
	}
	return floor
}

func (p *ChannelPoller) pollOnce(ctx context.Context) {
	if !p.Channel.Scte35Enabled {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, p.Channel.OriginURL, nil)
	if err != nil {
		slog.Warn("scte35 monitor: build request", "channel_id", p.Channel.ChannelID, "error", err)
		return
	}
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		slog.Warn("scte35 monitor: fetch origin", "channel_id", p.Channel.ChannelID, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		slog.Warn("scte35 monitor: origin returned error", "channel_id", p.Channel.ChannelID, "status", resp.StatusCode)
		return
	}

	playlist, err := hls.ParseMediaPlaylist(resp.Body)
	if err != nil {
		slog.Warn("scte35 monitor: parse origin manifest", "channel_id", p.Channel.ChannelID, "error", err)
		return
	}

	for _, seg := range playlist.Segments {
		p.handleSegment(ctx, seg)
	}
}

func (p *ChannelPoller) handleSegment(ctx context.Context, seg *hls.Segment) {
	pdt := seg.ProgramDateTime

	if cue, ok := hls.OATCLSCue(seg); ok {
		p.decodeBase64AndForward(ctx, cue, pdt)
	}
	for _, dr := range seg.SCTE35DateRanges {
		if dr.SCTE35Out != "" {
			p.decodeHexAndForward(ctx, dr.SCTE35Out, pdt)
		}
		if dr.SCTE35Cmd != "" {
			p.decodeHexAndForward(ctx, dr.SCTE35Cmd, pdt)
		}
		if dr.SCTE35In != "" {
			p.decodeHexAndForward(ctx, dr.SCTE35In, pdt)
		}
	}
}

// decodeBase64AndForward decodes the base64 binary section #EXT-OATCLS-SCTE35
// carries.
func (p *ChannelPoller) decodeBase64AndForward(ctx context.Context, payload string, pdt time.Time) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		slog.Warn("scte35 monitor: malformed base64 payload", "channel_id", p.Channel.ChannelID, "error", err)
		return
	}
	p.forwardCue(ctx, raw, pdt)
}

// decodeHexAndForward decodes the hex binary section the SCTE35-OUT,
// SCTE35-IN and SCTE35-CMD attributes of an #EXT-X-DATERANGE carry, an
// optional "0x" prefix per spec.md section 6.
func (p *ChannelPoller) decodeHexAndForward(ctx context.Context, payload string, pdt time.Time) {
	payload = strings.TrimPrefix(strings.TrimPrefix(payload, "0x"), "0X")
	raw, err := hex.DecodeString(payload)
	if err != nil {
		slog.Warn("scte35 monitor: malformed hex payload", "channel_id", p.Channel.ChannelID, "error", err)
		return
	}
	p.forwardCue(ctx, raw, pdt)
}

func (p *ChannelPoller) forwardCue(ctx context.Context, raw []byte, pdt time.Time) {
	cue, err := scte35.Decode(raw)
	if err != nil {
		slog.Warn("scte35 monitor: decode cue", "channel_id", p.Channel.ChannelID, "error", err)
		return
	}
	if cue.Tier != 0 && p.Channel.Tier != 0 && cue.Tier > uint16(p.Channel.Tier) {
		return
	}
	if p.OnCue != nil {
		p.OnCue(ctx, p.Channel.ChannelID, cue, pdt)
	}
}
