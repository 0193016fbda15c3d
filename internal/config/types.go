// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package config holds the gateway's domain types: Channel, AdBreakState,
// AdDecision, and the SCTE-35 Cue shape the rest of the system passes
// around. Struct-tag validation lives alongside these types.
package config

import "time"

// ChannelMode controls whether a channel's breaks are signaled to the
// player (SGAI), spliced server-side into the manifest (SSAI), or, in
// auto mode, chosen per viewer request (User-Agent or ?force=) and then
// pinned for the rest of the break by the Channel Coordinator.
type ChannelMode string

const (
	ModeAuto     ChannelMode = "auto"
	ModeSGAIOnly ChannelMode = "sgai_only"
	ModeSSAIOnly ChannelMode = "ssai_only"
)

// Channel is the durable configuration for one (organization_slug,
// channel_slug) pair. Any mutation must invalidate the channel's
// Channel-Config Cache entry.
type Channel struct {
	ChannelID       string      `json:"channel_id" validate:"required"`
	OrgSlug         string      `json:"org_slug" validate:"required"`
	ChannelSlug     string      `json:"channel_slug" validate:"required"`
	OriginURL       string      `json:"origin_url" validate:"required,url"`
	Mode            ChannelMode `json:"mode" validate:"required,oneof=auto sgai_only ssai_only"`
	Scte35Enabled   bool        `json:"scte35_enabled"`
	Scte35AutoInsert bool       `json:"scte35_auto_insert"`
	Tier            int         `json:"tier" validate:"gte=0,lte=5"`
	BitrateLadder   []int       `json:"bitrate_ladder" validate:"required,min=1,max=6,dive,gt=0"`
	DefaultAdDurationS  float64 `json:"default_ad_duration_s" validate:"gt=0,lte=600"`
	VastURL         string      `json:"vast_url,omitempty" validate:"omitempty,url"`
	VastTimeoutMs   int         `json:"vast_timeout_ms" validate:"gte=0"`
	SegmentCacheMaxAgeS  int    `json:"segment_cache_max_age_s" validate:"gte=1,lte=300"`
	ManifestCacheMaxAgeS int    `json:"manifest_cache_max_age_s" validate:"gte=1,lte=30"`
	SlateID         string      `json:"slate_id,omitempty"`
	AdPodBaseURL    string      `json:"ad_pod_base_url,omitempty" validate:"omitempty,url"`
	SignHost        string      `json:"sign_host,omitempty"`
	// TimeBasedAutoInsert enables the Scheduled trigger: a fixed-interval
	// tick that starts a break the same way an SCTE-35 cue or a manual
	// `/cue start` would, independent of any upstream signal (spec.md
	// section 1, "three independent triggers").
	TimeBasedAutoInsert bool `json:"time_based_auto_insert"`
	ScheduleIntervalS   int  `json:"schedule_interval_s,omitempty" validate:"gte=0"`
}

// AdBreakSource identifies what triggered an ad break.
type AdBreakSource string

const (
	SourceScte35    AdBreakSource = "scte35"
	SourceManual    AdBreakSource = "manual"
	SourceScheduled AdBreakSource = "scheduled"
)

// Scte35Ref is the cue metadata attached to an AdBreakState when the
// break was triggered by an SCTE-35 signal.
type Scte35Ref struct {
	PDT        time.Time `json:"pdt"`
	SignalType string    `json:"signal_type"`
	EventID    uint32    `json:"event_id"`
}

// AdBreakState is the Channel Coordinator's per-channel active break, of
// which there is at most one at any instant.
type AdBreakState struct {
	ChannelID string        `json:"channel_id" validate:"required"`
	EventID   string        `json:"event_id" validate:"required"`
	Source    AdBreakSource `json:"source" validate:"required,oneof=scte35 manual scheduled"`
	StartTime time.Time     `json:"start_time" validate:"required"`
	EndTime   time.Time     `json:"end_time" validate:"required"`
	DurationS float64       `json:"duration_s" validate:"gt=0,lte=600"`
	Decision  *AdDecision   `json:"decision" validate:"required"`
	CreatedAt time.Time     `json:"created_at"`
	Scte35    *Scte35Ref    `json:"scte35,omitempty"`
	Version   uint64        `json:"version"`
}

// AdItem is one ad creative scheduled into a break, with a playlist URL
// per bitrate in the channel's ladder.
type AdItem struct {
	AdID      string           `json:"ad_id" validate:"required"`
	DurationS float64          `json:"duration_s" validate:"gt=0"`
	Variants  map[int]string   `json:"variants" validate:"required,min=1"`
}

// AdDecision is the waterfall's output: either a resolved ad pod, a
// slate fallback, or (if Items is empty) an instruction to pass the
// break through untouched.
type AdDecision struct {
	PodID string   `json:"pod_id"`
	Items []AdItem `json:"items"`
}

// HasVariantsFor reports whether every AdItem in the decision has a
// playlist for each bitrate in ladder. The Transformer falls back to
// slate/empty when this is false.
func (d *AdDecision) HasVariantsFor(ladder []int) bool {
	for _, item := range d.Items {
		for _, br := range ladder {
			if _, ok := item.Variants[br]; !ok {
				return false
			}
		}
	}
	return true
}
