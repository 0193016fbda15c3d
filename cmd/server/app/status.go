// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/dashif-labs/ssaigw/internal/config"
	"github.com/dashif-labs/ssaigw/internal/coordinator"
)

// StatusInput carries the {channel} path parameter for GET /status/{channel}.
type StatusInput struct {
	Channel string `path:"channel" doc:"Channel ID"`
}

// StatusResponse is an operator-facing snapshot of a channel's
// Coordinator state (spec.md section 6).
type StatusResponse struct {
	Body struct {
		ChannelID string                  `json:"channel_id"`
		Mode      config.ChannelMode      `json:"mode"`
		Active    bool                    `json:"active"`
		Break     *config.AdBreakState    `json:"break,omitempty"`
		ServingMode coordinator.ServingMode `json:"serving_mode,omitempty"`
	}
}

func statusHdlr(s *Server) func(ctx context.Context, input *StatusInput) (*StatusResponse, error) {
	return func(ctx context.Context, input *StatusInput) (*StatusResponse, error) {
		ch, err := s.Channels.Get(ctx, input.Channel)
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
		snap, err := co.Read(ctx)
		if err != nil {
			return nil, huma.Error503ServiceUnavailable("coordinator read failed")
		}

		resp := &StatusResponse{}
		resp.Body.ChannelID = ch.ChannelID
		resp.Body.Mode = ch.Mode
		resp.Body.Active = snap.Active != nil
		resp.Body.Break = snap.Active
		resp.Body.ServingMode = snap.Mode
		return resp, nil
	}
}

// mountStatusAPI registers GET /status/{channel} using huma, on the same
// router group as the Cue Control API.
func mountStatusAPI(s *Server, r chi.Router) {
	config := huma.DefaultConfig("SSAI Gateway Status API", "1.0.0")
	api := humachi.New(r, config)

	huma.Register(api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/status/{channel}",
		Summary:     "Get a channel's Coordinator state snapshot",
		Tags:        []string{"Status"},
		Errors:      []int{401, 404, 503},
	}, statusHdlr(s))
}
