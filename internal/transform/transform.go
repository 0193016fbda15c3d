// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package transform rewrites parsed HLS media playlists for an active
// ad break: either signaling it to the player with an interstitial
// DATERANGE (SGAI) or splicing ad segments directly into the manifest
// (SSAI), per spec.md section 4.2.
package transform

import (
	"fmt"
	"time"

	"github.com/dashif-labs/ssaigw/pkg/apperr"
	"github.com/dashif-labs/ssaigw/pkg/hls"
)

// AdSegment is one ad-pod segment to splice into an SSAI break.
type AdSegment struct {
	URI       string
	DurationS float64
}

// InsertInterstitial performs the SGAI transform: it inserts a single
// EXT-X-DATERANGE signaling the break, carried on the Custom tag map of
// the first PDT-tagged segment at or after startISO minus the
// playlist's target duration (falling back to the first segment if none
// qualifies). The insertion is idempotent: if a DATERANGE with this
// podID has already been attached, the playlist is returned unchanged.
func InsertInterstitial(p *hls.MediaPlaylist, podID string, start time.Time, durationS float64, interstitialURI string) *hls.MediaPlaylist {
	for _, seg := range p.Segments {
		if hls.HasInterstitial(seg, podID) {
			return p
		}
	}

	out := clonePlaylist(p)

	threshold := start.Add(-time.Duration(p.TargetDuration) * time.Second)
	var target *hls.Segment
	for _, seg := range out.Segments {
		if seg != nil && !seg.ProgramDateTime.IsZero() && !seg.ProgramDateTime.Before(threshold) {
			target = seg
			break
		}
	}
	if target == nil && len(out.Segments) > 0 {
		target = out.Segments[0]
	}
	if target == nil {
		return out
	}

	hls.AttachInterstitial(target, podID, start, durationS, interstitialURI)
	return out
}

// SpliceAdBreak performs the SSAI transform: it replaces the content
// segments covering an ad break (spanning from the first segment whose
// PDT is >= contentStart) with the ad pod's segments, bracketed by
// EXT-X-DISCONTINUITY tags, and restamps the first following content
// segment's PDT to the break's end.
//
// It returns apperr with KindPdtMissing if contentStart is not found
// anywhere in the playlist window.
func SpliceAdBreak(p *hls.MediaPlaylist, contentStart time.Time, ads []AdSegment) (*hls.MediaPlaylist, error) {
	startIdx := -1
	for i, seg := range p.Segments {
		if seg != nil && !seg.ProgramDateTime.IsZero() && !seg.ProgramDateTime.Before(contentStart) {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return nil, apperr.New(apperr.KindPdtMissing, "splice-in PDT not found in playlist window")
	}

	var podDuration float64
	for _, a := range ads {
		podDuration += a.DurationS
	}

	cumulative := 0.0
	endIdx := startIdx
	for i := startIdx; i < len(p.Segments); i++ {
		cumulative += p.Segments[i].Duration
		endIdx = i
		if cumulative >= podDuration {
			break
		}
	}

	kept := clonedSegments(p.Segments[:startIdx])
	for k, a := range ads {
		kept = append(kept, &hls.Segment{
			SeqId:           p.Segments[startIdx].SeqId + uint64(k),
			URI:             a.URI,
			Duration:        a.DurationS,
			ProgramDateTime: contentStart.Add(time.Duration(accumulated(ads[:k]) * float64(time.Second))),
			Discontinuity:   k == 0,
		})
	}

	if endIdx+1 < len(p.Segments) {
		tail := clonedSegments(p.Segments[endIdx+1:])
		tail[0].Discontinuity = true
		tail[0].ProgramDateTime = contentStart.Add(time.Duration(podDuration * float64(time.Second)))
		kept = append(kept, tail...)
	}

	out, err := hls.NewMediaPlaylist(len(kept))
	if err != nil {
		return nil, err
	}
	copyHeader(out, p)
	for _, seg := range kept {
		if err := out.AppendSegment(seg); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func accumulated(ads []AdSegment) float64 {
	var total float64
	for _, a := range ads {
		total += a.DurationS
	}
	return total
}

// SelectVariant picks ai's playlist URL for bitrate b, falling back to
// the next-higher then next-lower bitrate in the ladder. It fails with
// KindNoMatchingVariant when variants is empty, or when neither b nor
// any ladder bitrate has an entry in variants.
func SelectVariant(variants map[int]string, ladder []int, b int) (string, error) {
	if len(variants) == 0 {
		return "", apperr.New(apperr.KindNoMatchingVariant, "ad item has no variants")
	}
	if uri, ok := variants[b]; ok {
		return uri, nil
	}
	for _, candidate := range ladder {
		if candidate > b {
			if uri, ok := variants[candidate]; ok {
				return uri, nil
			}
		}
	}
	for i := len(ladder) - 1; i >= 0; i-- {
		if ladder[i] < b {
			if uri, ok := variants[ladder[i]]; ok {
				return uri, nil
			}
		}
	}
	return "", apperr.New(apperr.KindNoMatchingVariant, fmt.Sprintf("no variant near bitrate %d", b))
}

func copyHeader(out, p *hls.MediaPlaylist) {
	out.TargetDuration = p.TargetDuration
	out.SeqNo = p.SeqNo
	out.DiscontinuitySeq = p.DiscontinuitySeq
	out.Closed = p.Closed
	out.MediaType = p.MediaType
	out.Key = p.Key
	out.Map = p.Map
	out.DateRanges = p.DateRanges
}

func clonePlaylist(p *hls.MediaPlaylist) *hls.MediaPlaylist {
	out, err := hls.NewMediaPlaylist(len(p.Segments))
	if err != nil {
		// capacity sized to the source playlist's own segment count can
		// never overflow; a failure here means the library rejected the
		// winsize/capacity pair itself.
		panic(err)
	}
	copyHeader(out, p)
	for _, seg := range clonedSegments(p.Segments) {
		if err := out.AppendSegment(seg); err != nil {
			panic(err)
		}
	}
	return out
}

func clonedSegments(segs []*hls.Segment) []*hls.Segment {
	out := make([]*hls.Segment, 0, len(segs))
	for _, s := range segs {
		if s == nil {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out
}
