// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package decision implements the Ad-Decision Engine's waterfall:
// VAST ad server, then a stored ad pod, then a slate, then an empty
// decision that tells the Transformer to pass the break through
// untouched (spec.md section 4.5).
package decision

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dashif-labs/ssaigw/internal/config"
	"github.com/dashif-labs/ssaigw/pkg/vast"
)

// PodStore resolves a previously-decided ad pod by ID, used for
// channels that schedule ads ahead of time rather than calling out to a
// VAST server on every break.
type PodStore interface {
	GetPod(ctx context.Context, channelID, podID string) (*config.AdDecision, bool)
}

// memoGraceS is added to a break's duration when computing the ad
// decision memo's TTL, so a late-retried Start for the same event still
// finds the memo a few seconds past the break's natural end (spec.md
// section 4.5/6).
const memoGraceS = 60

// Engine runs the waterfall for whichever channel each Decide call names;
// one Engine is shared by every channel.
type Engine struct {
	VastClient *vast.Client
	Pods       PodStore
	// Memo is the redis client backing the ad-decision memo (key
	// "adbreak:{channel_id}:{event_id}"); nil disables memoization.
	Memo *redis.Client
}

// NewEngine builds an Engine.
func NewEngine(vastClient *vast.Client, pods PodStore) *Engine {
	return &Engine{VastClient: vastClient, Pods: pods}
}

func memoKey(channelID, eventID string) string {
	return "adbreak:" + channelID + ":" + eventID
}

// Decide runs the waterfall for a break of durationS seconds on a
// channel, returning the first decision that resolves: VAST, then a
// stored pod, then slate, then an empty decision. ctx should already
// carry the channel's vast_timeout_ms deadline.
//
// The result is memoized under "adbreak:{channel_id}:{event_id}" for
// duration_s+60s, so a retried Start for the same event (a Coordinator
// restart racing a still-in-flight decision, or a duplicate trigger)
// replays the same decision rather than re-running the waterfall —
// which matters most for VAST, where a second ad-server call can
// return a different ad entirely (spec.md section 4.5/6).
func (e *Engine) Decide(ctx context.Context, ch *config.Channel, eventID string, durationS float64) *config.AdDecision {
	key := memoKey(ch.ChannelID, eventID)
	if e.Memo != nil {
		if d, ok := e.readMemo(ctx, key); ok {
			return d
		}
	}

	d := e.decideWaterfall(ctx, ch, eventID, durationS)

	if e.Memo != nil {
		e.writeMemo(key, d, durationS)
	}
	return d
}

func (e *Engine) decideWaterfall(ctx context.Context, ch *config.Channel, eventID string, durationS float64) *config.AdDecision {
	if ch.VastURL != "" && e.VastClient != nil {
		if d, ok := e.decideFromVAST(ctx, ch, durationS); ok {
			return d
		}
	}

	if e.Pods != nil {
		if d, ok := e.Pods.GetPod(ctx, ch.ChannelID, eventID); ok && d.HasVariantsFor(ch.BitrateLadder) {
			return d
		}
	}

	if ch.SlateID != "" {
		return e.slateDecision(ch, durationS)
	}

	return &config.AdDecision{}
}

func (e *Engine) readMemo(ctx context.Context, key string) (*config.AdDecision, bool) {
	mctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	raw, err := e.Memo.Get(mctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("decision: memo lookup failed", "key", key, "error", err)
		}
		return nil, false
	}
	var d config.AdDecision
	if err := json.Unmarshal(raw, &d); err != nil {
		slog.Warn("decision: memo decode failed", "key", key, "error", err)
		return nil, false
	}
	return &d, true
}

func (e *Engine) writeMemo(key string, d *config.AdDecision, durationS float64) {
	raw, err := json.Marshal(d)
	if err != nil {
		return
	}
	ttl := time.Duration(durationS)*time.Second + memoGraceS*time.Second
	go func() {
		wctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		if err := e.Memo.Set(wctx, key, raw, ttl).Err(); err != nil {
			slog.Warn("decision: memo write failed", "key", key, "error", err)
		}
	}()
}

func (e *Engine) decideFromVAST(ctx context.Context, ch *config.Channel, durationS float64) (*config.AdDecision, bool) {
	inline, err := e.VastClient.ResolveInline(ctx, ch.VastURL)
	if err != nil {
		vast.LogFetchFailure(ch.VastURL, err)
		return nil, false
	}

	variants := make(map[int]string, len(ch.BitrateLadder))
	for _, br := range ch.BitrateLadder {
		mf, ok := vast.SelectMediaFile(inline, br)
		if !ok {
			slog.Warn("vast ad has no usable media file", "channel_id", ch.ChannelID, "bitrate_kbps", br)
			return nil, false
		}
		variants[br] = mf.URI
	}

	item := config.AdItem{
		AdID:      inline.AdTitle,
		DurationS: durationS,
		Variants:  variants,
	}
	d := &config.AdDecision{PodID: "vast-" + inline.AdTitle, Items: []config.AdItem{item}}
	if !d.HasVariantsFor(ch.BitrateLadder) {
		return nil, false
	}
	return d, true
}

// slateDecision builds a decision pointing every bitrate at the
// channel's slate asset, used when neither VAST nor a stored pod
// resolved.
func (e *Engine) slateDecision(ch *config.Channel, durationS float64) *config.AdDecision {
	variants := make(map[int]string, len(ch.BitrateLadder))
	for _, br := range ch.BitrateLadder {
		variants[br] = ch.SlateID
	}
	return &config.AdDecision{
		PodID: "slate-" + ch.SlateID,
		Items: []config.AdItem{{AdID: ch.SlateID, DurationS: durationS, Variants: variants}},
	}
}
