// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/dashif-labs/ssaigw/internal/config"
	"github.com/dashif-labs/ssaigw/internal/coordinator"
	"github.com/dashif-labs/ssaigw/pkg/apperr"
)

// CueType is the action a Cue Control API request triggers.
type CueType string

const (
	CueStart CueType = "start"
	CueStop  CueType = "stop"
)

// CueBody is the body of a POST /cue request (spec.md section 4.8).
type CueBody struct {
	Channel  string  `json:"channel" doc:"Channel ID to act on" example:"sports1"`
	Type     CueType `json:"type" enum:"start,stop" doc:"Whether to open or close a break"`
	Duration *float64 `json:"duration,omitempty" doc:"Break duration in seconds; defaults to the channel's default_ad_duration_s"`
	PodID    string  `json:"pod_id,omitempty" doc:"Pre-bound ad pod to use instead of running the VAST waterfall"`
	PodURL   string  `json:"pod_url,omitempty" doc:"VAST ad tag to resolve for this break instead of the channel's configured vast_url"`
}

// CueRequest is the huma input envelope for POST /cue.
type CueRequest struct {
	Body CueBody `json:"body"`
}

// CueResponse is the huma output envelope for POST /cue.
type CueResponse struct {
	Body struct {
		OK    bool                 `json:"ok"`
		State *config.AdBreakState `json:"state,omitempty"`
		Error string               `json:"error,omitempty"`
	}
}

// cueHdlr authenticates and dispatches a POST /cue request to the
// Channel Coordinator's write path, per spec.md section 4.8.
func cueHdlr(s *Server) func(ctx context.Context, req *CueRequest) (*CueResponse, error) {
	return func(ctx context.Context, req *CueRequest) (*CueResponse, error) {
		ch, err := s.Channels.Get(ctx, req.Body.Channel)
		if err != nil {
			return nil, huma.Error404NotFound("channel not found")
		}

		r, _ := ctx.Value(httpRequestContextKey{}).(*http.Request)
		if _, err := s.authenticateRequest(r, ch); err != nil {
			return nil, huma.Error401Unauthorized("unauthorized")
		}

		co, err := s.Registry.Get(ch.ChannelID)
		if err != nil {
			return nil, huma.Error503ServiceUnavailable("coordinator unavailable")
		}

		resp := &CueResponse{}
		switch req.Body.Type {
		case CueStop:
			ok, err := co.Stop(ctx)
			if err != nil {
				return cueFailure(err)
			}
			resp.Body.OK = ok
			return resp, nil
		case CueStart:
			durationS := ch.DefaultAdDurationS
			if req.Body.Duration != nil {
				durationS = *req.Body.Duration
			}
			state, started, err := co.Start(ctx, ch, coordinator.StartParams{
				EventID:      manualEventID(req.Body.Channel),
				Source:       config.SourceManual,
				DurationS:    durationS,
				Now:          time.Now(),
				RequireDedup: false,
				TierGuard:    true,
			}, cueDecider(s, req.Body.PodID, req.Body.PodURL))
			if err != nil {
				return cueFailure(err)
			}
			resp.Body.OK = started
			resp.Body.State = state
			return resp, nil
		default:
			return nil, huma.Error400BadRequest("type must be start or stop")
		}
	}
}

// cueDecider wraps the Ad-Decision Engine's waterfall to honor an
// explicit pod_id or pod_url carried on a manual cue, falling back to
// the channel's configured waterfall otherwise.
func cueDecider(s *Server, podID, podURL string) coordinator.Decider {
	return func(ctx context.Context, ch *config.Channel, eventID string, durationS float64) *config.AdDecision {
		if podID != "" && s.Decisions.Pods != nil {
			if d, ok := s.Decisions.Pods.GetPod(ctx, ch.ChannelID, podID); ok {
				return d
			}
		}
		if podURL != "" {
			override := *ch
			override.VastURL = podURL
			return s.Decisions.Decide(ctx, &override, eventID, durationS)
		}
		return s.Decisions.Decide(ctx, ch, eventID, durationS)
	}
}

func cueFailure(err error) (*CueResponse, error) {
	if apperr.Is(err, apperr.KindLockTimeout) {
		return nil, huma.Error503ServiceUnavailable("channel busy, retry")
	}
	resp := &CueResponse{}
	resp.Body.OK = false
	resp.Body.Error = err.Error()
	return resp, nil
}

// manualEventID mints a unique event id for a manually-triggered break;
// RequireDedup is false for manual cues so a fresh id per call is enough
// to avoid colliding with a still-active break's id.
func manualEventID(channel string) string {
	return "manual-" + channel + "-" + time.Now().UTC().Format("20060102T150405.000000000")
}

// httpRequestContextKey retrieves the originating *http.Request from
// context, set by withHTTPRequest so huma handlers can reach
// Server.authenticateRequest's signed-URL fallback.
type httpRequestContextKey struct{}

// withHTTPRequest stashes the raw request on ctx before huma's adapter
// invokes the operation handler.
func withHTTPRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), httpRequestContextKey{}, r)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// mountCueAPI registers the Cue Control API under /cue using huma, mirroring
// the CMAF-ingest control API's registration idiom.
func mountCueAPI(s *Server, r chi.Router) {
	r.Use(withHTTPRequest)
	config := huma.DefaultConfig("SSAI Gateway Cue Control API", "1.0.0")
	config.Info.Description = "Starts and stops ad breaks on a channel, writing through the Channel Coordinator."

	api := humachi.New(r, config)

	huma.Register(api, huma.Operation{
		OperationID: "post-cue",
		Method:      http.MethodPost,
		Path:        "/cue",
		Summary:     "Start or stop an ad break",
		Tags:        []string{"Cue"},
		Errors:      []int{400, 401, 404, 503},
	}, cueHdlr(s))
}
