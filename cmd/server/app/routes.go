// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dashif-labs/ssaigw/pkg/logging"
)

// Routes defines dispatches for all routes.
func (s *Server) Routes(ctx context.Context) error {
	for _, route := range logging.LogRoutes {
		s.Router.MethodFunc(route.Method, route.Path, route.Handler)
	}
	s.Router.MethodFunc(http.MethodGet, "/healthz", s.healthzHandlerFunc)

	// Viewer surface: unauthenticated reads of the rewritten manifests,
	// open to cross-origin players.
	s.Router.Group(func(r chi.Router) {
		r.Use(viewerCORS())
		r.MethodFunc(http.MethodGet, "/{org}/{channel}/master.m3u8", s.masterHandlerFunc)
		r.MethodFunc(http.MethodGet, "/{org}/{channel}/{variant}", s.variantHandlerFunc)
	})

	// Control plane: bearer-authenticated Cue Control API and status snapshot.
	s.Router.Group(func(r chi.Router) {
		mountCueAPI(s, r)
		mountStatusAPI(s, r)
	})

	return nil
}
