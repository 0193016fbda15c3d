// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/dashif-labs/ssaigw/internal"
	"github.com/dashif-labs/ssaigw/internal/coordinator"
	"github.com/dashif-labs/ssaigw/internal/decision"
	"github.com/dashif-labs/ssaigw/internal/monitor"
	"github.com/dashif-labs/ssaigw/internal/scheduler"
	"github.com/dashif-labs/ssaigw/internal/store"
	"github.com/dashif-labs/ssaigw/pkg/logging"
	"github.com/dashif-labs/ssaigw/pkg/vast"
)

const channelCacheL1Size = 1024

// SetupServer wires the Channel repository, durable state store,
// Channel-Config Cache, Ad-Decision Engine, Coordinator registry, and
// SCTE-35 Monitor supervision tree, then mounts the HTTP routes on top
// of them.
func SetupServer(ctx context.Context, cfg *ServerConfig) (*Server, error) {
	logger := slog.Default()

	channels, err := store.OpenSQLiteChannelStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open channel store: %w", err)
	}

	states, err := store.OpenBadgerStateStore(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	cache, err := store.NewChannelCache(channelCacheL1Size, redisClient,
		time.Duration(cfg.ConfigTTLS)*time.Second, channels)
	if err != nil {
		return nil, fmt.Errorf("build channel cache: %w", err)
	}

	vastClient := vast.NewClient(time.Duration(cfg.DecisionTimeoutMS)*time.Millisecond, cfg.VastMaxWrapperDepth)
	decisions := decision.NewEngine(vastClient, channels)
	decisions.Memo = redisClient

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.SlogMiddleWare(logger))
	r.Use(middleware.Recoverer)
	r.Use(NewPrometheusMiddleware())
	r.Use(addVersionHeader)
	if cfg.TimeoutS > 0 {
		r.Use(middleware.Timeout(time.Duration(cfg.TimeoutS) * time.Second))
	}
	r.Mount("/metrics", promhttp.Handler())
	r.Mount("/debug", middleware.Profiler())

	var reqLimiter *IPRequestLimiter
	if cfg.MaxRequests > 0 {
		reqLimiter, err = NewIPRequestLimiter(cfg.MaxRequests, time.Duration(cfg.ReqLimitInt)*time.Second,
			time.Now(), cfg.WhiteListBlocks, cfg.ReqLimitLog)
		if err != nil {
			return nil, fmt.Errorf("new ip limiter: %w", err)
		}
		r.Use(NewLimiterMiddleware("SSAIGW-Requests", reqLimiter))
	}

	server := &Server{
		Router:       r,
		Cfg:          cfg,
		Channels:     channels,
		ChannelCache: cache,
		States:       states,
		Registry:     coordinator.NewRegistry(states),
		Decisions:    decisions,
		Monitor:      monitor.NewSupervisor(),
		Scheduler:    scheduler.NewSupervisor(),
		OriginClient: &http.Client{Timeout: time.Duration(cfg.OriginFetchTimeoutMS) * time.Millisecond},
		reqLimiter:   reqLimiter,
	}

	if err := server.Routes(ctx); err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}

	if err := server.startMonitors(ctx); err != nil {
		return nil, fmt.Errorf("start scte35 monitors: %w", err)
	}

	if err := server.startSchedulers(ctx); err != nil {
		return nil, fmt.Errorf("start scheduled triggers: %w", err)
	}

	logger.Info("ssaigw starting", "version", internal.GetVersion(), "port", cfg.Port)
	return server, nil
}

// startMonitors registers a ChannelPoller for every known channel with
// SCTE-35 enabled and runs the supervision tree in the background until
// ctx is canceled (spec.md section 4.9).
func (s *Server) startMonitors(ctx context.Context) error {
	orgs, err := s.Channels.ListAll(ctx)
	if err != nil {
		// A failure to list channels at boot is not fatal: log it and
		// continue with an empty monitor set.
		slog.Warn("scte35 monitor: could not list channels at startup", "error", err)
		orgs = nil
	}
	for _, ch := range orgs {
		if !ch.Scte35Enabled {
			continue
		}
		s.Monitor.Watch(ch, s.handleMonitorCue)
	}
	go func() {
		if err := s.Monitor.Serve(ctx); err != nil && ctx.Err() == nil {
			slog.Error("scte35 monitor supervision tree stopped", "error", err)
		}
	}()
	return nil
}

// startSchedulers registers a ChannelScheduler for every known channel
// with time_based_auto_insert enabled and runs the supervision tree in
// the background until ctx is canceled (spec.md section 1, "three
// independent triggers").
func (s *Server) startSchedulers(ctx context.Context) error {
	orgs, err := s.Channels.ListAll(ctx)
	if err != nil {
		slog.Warn("scheduler: could not list channels at startup", "error", err)
		orgs = nil
	}
	for _, ch := range orgs {
		if !ch.TimeBasedAutoInsert {
			continue
		}
		s.Scheduler.Watch(ch, s.handleScheduledTick)
	}
	go func() {
		if err := s.Scheduler.Serve(ctx); err != nil && ctx.Err() == nil {
			slog.Error("scheduler supervision tree stopped", "error", err)
		}
	}()
	return nil
}
