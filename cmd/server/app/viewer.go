// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/dashif-labs/ssaigw/internal/config"
	"github.com/dashif-labs/ssaigw/internal/coordinator"
	"github.com/dashif-labs/ssaigw/pkg/apperr"
	"github.com/dashif-labs/ssaigw/internal/transform"
	"github.com/dashif-labs/ssaigw/pkg/hls"
)

const mediaPlaylistContentType = "application/vnd.apple.mpegurl"

var reBitrate = regexp.MustCompile(`(\d+)k`)

// resolveChannel looks up the channel named by the request's {org}/
// {channel} path params through the Channel-Config Cache.
func (s *Server) resolveChannel(r *http.Request) (*config.Channel, error) {
	org := chi.URLParam(r, "org")
	channel := chi.URLParam(r, "channel")
	return s.ChannelCache.GetBySlug(r.Context(), org, channel)
}

// masterHandlerFunc implements GET /{org}/{channel}/master.m3u8: fetch
// the origin multivariant playlist and rewrite each variant URI to route
// through this service (spec.md section 4.7).
func (s *Server) masterHandlerFunc(w http.ResponseWriter, r *http.Request) {
	ch, err := s.resolveChannel(r)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	body, err := s.fetchOrigin(r.Context(), ch.OriginURL)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	defer body.Close()

	playlist, err := hls.ParseMasterPlaylist(body)
	if err != nil {
		apperr.WriteHTTP(w, apperr.Wrap(apperr.KindMalformedManifest, "parse master playlist", err))
		return
	}

	org := chi.URLParam(r, "org")
	channel := chi.URLParam(r, "channel")
	for i, v := range playlist.Variants {
		playlist.Variants[i].URI = fmt.Sprintf("/%s/%s/%s", org, channel, path.Base(v.URI))
	}

	w.Header().Set("Content-Type", mediaPlaylistContentType)
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", ch.ManifestCacheMaxAgeS))
	fmt.Fprint(w, playlist.String())
}

// variantHandlerFunc implements GET /{org}/{channel}/{variant}: the
// Coordinator read and the origin fetch are independent suspension
// points and run concurrently; the Manifest Transformer runs once both
// are in hand (spec.md section 9, "cooperative pipeline").
func (s *Server) variantHandlerFunc(w http.ResponseWriter, r *http.Request) {
	ch, err := s.resolveChannel(r)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	co, err := s.Registry.Get(ch.ChannelID)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	variant := chi.URLParam(r, "variant")
	originURL, err := variantOriginURL(ch.OriginURL, variant)
	if err != nil {
		apperr.WriteHTTP(w, apperr.Wrap(apperr.KindOriginUnavailable, "resolve variant origin url", err))
		return
	}

	// The Coordinator read and the origin fetch depend on nothing but ch,
	// so they run concurrently rather than one after the other (spec.md
	// section 9, "cooperative pipeline").
	var snap coordinator.Snapshot
	var playlist *hls.MediaPlaylist
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		snap, err = co.Read(gctx)
		return err
	})
	g.Go(func() error {
		body, err := s.fetchOrigin(gctx, originURL)
		if err != nil {
			return err
		}
		defer body.Close()
		playlist, err = hls.ParseMediaPlaylist(body)
		if err != nil {
			return apperr.Wrap(apperr.KindMalformedManifest, "parse media playlist", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	if snap.Active == nil {
		w.Header().Set("Content-Type", mediaPlaylistContentType)
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", ch.SegmentCacheMaxAgeS))
		fmt.Fprint(w, playlist.String())
		return
	}

	override, hasOverride := forceMode(r)
	out, err := s.applyBreak(r.Context(), co, ch, snap, playlist, variant, r.UserAgent(), override, hasOverride)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	w.Header().Set("Content-Type", mediaPlaylistContentType)
	w.Header().Set("Cache-Control", "no-store")
	fmt.Fprint(w, out.String())
}

// applyBreak runs the Manifest Transformer against the active break,
// picking SSAI or SGAI per the channel's mode and the request's pinned
// or newly-chosen serving mode (spec.md section 4.6, "Serving mode
// selection").
func (s *Server) applyBreak(ctx context.Context, co *coordinator.Coordinator, ch *config.Channel, snap coordinator.Snapshot, playlist *hls.MediaPlaylist, variant, userAgent string, override coordinator.ServingMode, hasOverride bool) (*hls.MediaPlaylist, error) {
	brk := snap.Active

	switch ch.Mode {
	case config.ModeSSAIOnly:
		out, err := s.spliceSSAI(ch, playlist, brk, variant)
		if apperr.Is(err, apperr.KindPdtMissing) {
			// Never downgrade to SGAI under ssai_only: serve the origin
			// manifest unmodified instead (spec.md section 4.6).
			return playlist, nil
		}
		return out, err
	case config.ModeSGAIOnly:
		return s.insertSGAI(ch, playlist, brk), nil
	default:
		return s.applyAuto(ctx, co, ch, playlist, brk, variant, userAgent, snap.Mode, override, hasOverride)
	}
}

func (s *Server) applyAuto(ctx context.Context, co *coordinator.Coordinator, ch *config.Channel, playlist *hls.MediaPlaylist, brk *config.AdBreakState, variant, userAgent string, pinned, override coordinator.ServingMode, hasOverride bool) (*hls.MediaPlaylist, error) {
	mode := pinned
	if mode == "" {
		if hasOverride {
			mode = override
		} else {
			mode = coordinator.ModeSGAI
			if !isAppleUserAgent(userAgent) {
				mode = coordinator.ModeSSAI
			}
		}
	}

	if mode == coordinator.ModeSSAI {
		out, err := s.spliceSSAI(ch, playlist, brk, variant)
		if err == nil {
			_ = co.PinMode(ctx, brk.EventID, coordinator.ModeSSAI)
			return out, nil
		}
		if !apperr.Is(err, apperr.KindPdtMissing) {
			return nil, err
		}
		// First serve failed with PdtMissing: pin the other mode and retry.
		_ = co.PinMode(ctx, brk.EventID, coordinator.ModeSGAI)
		return s.insertSGAI(ch, playlist, brk), nil
	}

	_ = co.PinMode(ctx, brk.EventID, coordinator.ModeSGAI)
	return s.insertSGAI(ch, playlist, brk), nil
}

func (s *Server) spliceSSAI(ch *config.Channel, playlist *hls.MediaPlaylist, brk *config.AdBreakState, variant string) (*hls.MediaPlaylist, error) {
	bitrate, ok := parseBitrate(variant, ch.BitrateLadder)
	if !ok {
		return nil, apperr.New(apperr.KindNoMatchingVariant, "could not determine variant bitrate")
	}

	decision := brk.Decision
	if decision == nil || len(decision.Items) == 0 || !decision.HasVariantsFor(ch.BitrateLadder) {
		return playlist, nil
	}

	ads := make([]transform.AdSegment, 0, len(decision.Items))
	for _, item := range decision.Items {
		uri, err := transform.SelectVariant(item.Variants, ch.BitrateLadder, bitrate)
		if err != nil {
			return nil, err
		}
		ads = append(ads, transform.AdSegment{URI: uri, DurationS: item.DurationS})
	}

	return transform.SpliceAdBreak(playlist, brk.StartTime, ads)
}

func (s *Server) insertSGAI(ch *config.Channel, playlist *hls.MediaPlaylist, brk *config.AdBreakState) *hls.MediaPlaylist {
	decision := brk.Decision
	if decision == nil || len(decision.Items) == 0 {
		return playlist
	}
	interstitialURI := strings.TrimRight(ch.AdPodBaseURL, "/") + "/" + decision.PodID + "/master.m3u8"
	return transform.InsertInterstitial(playlist, decision.PodID, brk.StartTime, brk.DurationS, interstitialURI)
}

// fetchOrigin performs a bounded origin manifest fetch, the only
// suspension point on the read path besides the Coordinator snapshot
// and the (already-resolved) decision (spec.md section 5).
func (s *Server) fetchOrigin(ctx context.Context, originURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, originURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindOriginUnavailable, "build origin request", err)
	}
	resp, err := s.OriginClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindOriginUnavailable, "fetch origin manifest", err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, apperr.New(apperr.KindOriginUnavailable, fmt.Sprintf("origin returned %d", resp.StatusCode))
	}
	return resp.Body, nil
}

// variantOriginURL resolves the origin media-playlist URL for variant,
// which lives alongside the channel's multivariant manifest.
func variantOriginURL(originURL, variant string) (string, error) {
	u, err := url.Parse(originURL)
	if err != nil {
		return "", err
	}
	u.Path = path.Join(path.Dir(u.Path), variant)
	return u.String(), nil
}

// parseBitrate extracts the kbps bitrate this variant filename names
// (e.g. "v_1600k.m3u8" -> 1600), falling back to the channel's lowest
// ladder entry if the filename carries no recognizable bitrate.
func parseBitrate(variant string, ladder []int) (int, bool) {
	m := reBitrate.FindStringSubmatch(variant)
	if m == nil {
		if len(ladder) == 0 {
			return 0, false
		}
		return ladder[0], true
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// isAppleUserAgent reports whether ua identifies an Apple-family HLS
// client, which prefers SGAI in auto mode (spec.md section 4.2).
func isAppleUserAgent(ua string) bool {
	for _, marker := range []string{"AppleCoreMedia", "AppleTV", "tvOS", "iPhone", "iPad", "CFNetwork"} {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}

// forceMode reads the "?force=sgai|ssai" override from a request, per
// spec.md section 4.2's "client hint" clause.
func forceMode(r *http.Request) (coordinator.ServingMode, bool) {
	switch r.URL.Query().Get("force") {
	case "sgai":
		return coordinator.ModeSGAI, true
	case "ssai":
		return coordinator.ModeSSAI, true
	default:
		return "", false
	}
}
