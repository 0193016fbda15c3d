// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package hls adapts github.com/mogiioin/hls-m3u8 to this gateway's
// domain: it exposes that library's playlist, segment and date-range
// types under local names, and adds the two extensions the gateway
// needs on top of them — a positioned EXT-X-DATERANGE custom tag for
// SGAI interstitial insertion, and a dynamic CustomDecoder registration
// so tags the library doesn't recognize natively still round-trip
// verbatim instead of being silently dropped.
package hls

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	m3u8 "github.com/mogiioin/hls-m3u8/m3u8"
)

// MediaPlaylist, MasterPlaylist, Segment, DateRange, Variant and
// Attribute are the library's own types, named locally so callers
// depend on package hls rather than reaching past it into the
// third-party module directly.
type (
	MediaPlaylist  = m3u8.MediaPlaylist
	MasterPlaylist = m3u8.MasterPlaylist
	Segment        = m3u8.MediaSegment
	DateRange      = m3u8.DateRange
	Variant        = m3u8.Variant
	Attribute      = m3u8.Attribute
)

// ErrMalformedManifest wraps any decode failure the library reports,
// including a missing leading #EXTM3U tag (spec.md section 4.1).
var ErrMalformedManifest = errors.New("malformed hls manifest")

// NewMediaPlaylist builds an empty, non-sliding media playlist with
// exactly count room for segments. The Manifest Transformer always
// knows its final segment count up front (content kept, plus spliced ad
// segments), so there is never a need for the library's
// capacity-doubling growth path used during decode.
func NewMediaPlaylist(count int) (*MediaPlaylist, error) {
	return m3u8.NewMediaPlaylist(0, uint(count))
}

// InterstitialCustomTagKey is the prefix of the Segment.Custom map key an
// SGAI interstitial DATERANGE is stored under; the full key is
// InterstitialCustomTagKey + ":" + podID.
const InterstitialCustomTagKey = "ssaigw-interstitial"

// interstitialDateRange is a CustomTag that emits a single
// EXT-X-DATERANGE line for an SGAI interstitial. It is attached
// directly to the Segment.Custom map of the segment the interstitial
// follows, which the library writes immediately before that segment's
// EXTINF (m3u8/writer.go, "Add Custom Segment Tags here") — unlike
// MediaPlaylist.DateRanges, which the library only ever emits after
// EXT-X-ENDLIST and so cannot express a DATERANGE positioned at a
// specific point in the segment list.
type interstitialDateRange struct {
	podID     string
	class     string
	startDate time.Time
	durationS float64
	assetURI  string
	restrict  string
	cue       string
}

// NewInterstitialDateRange builds the CustomTag for an SGAI break: an
// EXT-X-DATERANGE with CLASS=com.apple.hls.interstitial carrying the
// pod's asset URI, restriction flags and cue timing (spec.md section
// 4.2, "EXT-X-DATERANGE interstitial").
func NewInterstitialDateRange(podID string, start time.Time, durationS float64, assetURI string) m3u8.CustomTag {
	return &interstitialDateRange{
		podID:     podID,
		class:     "com.apple.hls.interstitial",
		startDate: start.UTC(),
		durationS: durationS,
		assetURI:  assetURI,
		restrict:  "SKIP,JUMP",
		cue:       "PRE,ONCE",
	}
}

func (t *interstitialDateRange) TagName() string {
	return "#EXT-X-DATERANGE:ID=\"" + t.podID + "\""
}

// AttachInterstitial sets seg's interstitial DATERANGE custom tag,
// creating seg.Custom if this is the segment's first custom tag.
func AttachInterstitial(seg *Segment, podID string, start time.Time, durationS float64, assetURI string) {
	if seg.Custom == nil {
		seg.Custom = make(m3u8.CustomMap)
	}
	seg.Custom[InterstitialCustomTagKey+":"+podID] = NewInterstitialDateRange(podID, start, durationS, assetURI)
}

// HasInterstitial reports whether seg already carries an interstitial
// DATERANGE for podID.
func HasInterstitial(seg *Segment, podID string) bool {
	if seg == nil || seg.Custom == nil {
		return false
	}
	_, ok := seg.Custom[InterstitialCustomTagKey+":"+podID]
	return ok
}

// OATCLSCue returns seg's base64 SCTE-35 cue payload if it carries the
// non-standard #EXT-OATCLS-SCTE35 tag (pkg/hls doesn't otherwise expose
// m3u8.SCTE to callers, keeping the syntax-variant check in one place).
func OATCLSCue(seg *Segment) (string, bool) {
	if seg.SCTE == nil || seg.SCTE.Syntax != m3u8.SCTE35_OATCLS || seg.SCTE.Cue == "" {
		return "", false
	}
	return seg.SCTE.Cue, true
}

func (t *interstitialDateRange) String() string { return t.Encode().String() }

// Encode writes the DATERANGE attribute list in the same key order the
// library's own (unexported) writeDateRange uses, so the output is
// indistinguishable from one the library wrote itself.
func (t *interstitialDateRange) Encode() *bytes.Buffer {
	var b bytes.Buffer
	b.WriteString("#EXT-X-DATERANGE:")
	first := true
	write := func(s string) {
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(s)
	}
	write(fmt.Sprintf("ID=%q", t.podID))
	write(fmt.Sprintf("CLASS=%q", t.class))
	write(fmt.Sprintf("START-DATE=%q", t.startDate.Format(time.RFC3339Nano)))
	write("DURATION=" + fmt.Sprintf("%.3f", t.durationS))
	write(fmt.Sprintf("X-ASSET-URI=%q", t.assetURI))
	write(fmt.Sprintf("X-RESTRICT=%q", t.restrict))
	write(fmt.Sprintf("CUE=%q", t.cue))
	b.WriteByte('\n')
	return &b
}
