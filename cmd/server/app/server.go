// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dashif-labs/ssaigw/internal/coordinator"
	"github.com/dashif-labs/ssaigw/internal/decision"
	"github.com/dashif-labs/ssaigw/internal/monitor"
	"github.com/dashif-labs/ssaigw/internal/scheduler"
	"github.com/dashif-labs/ssaigw/internal/store"
)

// Server holds every wired dependency the Request Router, Cue Control
// API, and status endpoint need: the Channel repository/cache, the
// Channel Coordinator registry, the Ad-Decision Engine, the SCTE-35
// Monitor and Scheduled-trigger supervision trees, and the shared
// origin-fetch HTTP client (spec.md sections 4.6-4.9).
type Server struct {
	Router *chi.Mux
	Cfg    *ServerConfig

	Channels   store.ChannelStore
	ChannelCache *store.ChannelCache
	States     store.StateStore
	Registry   *coordinator.Registry
	Decisions  *decision.Engine
	Monitor    *monitor.Supervisor
	Scheduler  *scheduler.Supervisor

	OriginClient *http.Client
	reqLimiter   *IPRequestLimiter
}

func (s *Server) healthzHandlerFunc(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]bool{"ok": true}, http.StatusOK)
}

// jsonResponse marshals message and writes a response with code.
//
// Don't add any more content after this since Content-Length is set.
func (s *Server) jsonResponse(w http.ResponseWriter, message any, code int) {
	raw, err := json.Marshal(message)
	if err != nil {
		http.Error(w, fmt.Sprintf("{\"message\": %q}", err.Error()), http.StatusInternalServerError)
		slog.Error(err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
	w.WriteHeader(code)
	if _, err := w.Write(raw); err != nil {
		slog.Error("could not write HTTP response", "err", err)
	}
}
