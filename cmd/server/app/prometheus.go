// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	defaultBuckets = []float64{5, 10, 20, 50, 100, 200, 500, 1000}
	prometheusMW   prometheusMiddleware
)

const (
	masterReqsName    = "master_playlist_requests_total"
	masterLatencyName = "master_playlist_request_duration_milliseconds"
	variantReqsName   = "variant_playlist_requests_total"
	variantLatencyName = "variant_playlist_request_duration_milliseconds"
	service           = "ssaigw"
)

// prometheusMiddleware exposes request counters/latency histograms for
// the viewer surface's two manifest route shapes, partitioned by status.
type prometheusMiddleware struct {
	masterReqs    *prometheus.CounterVec
	masterLatency *prometheus.HistogramVec
	variantReqs   *prometheus.CounterVec
	variantLatency *prometheus.HistogramVec
}

func init() {
	prometheusMW.masterReqs = newCounter(masterReqsName,
		"Number of master playlist requests processed, partitioned by status code.", service)
	prometheusMW.masterLatency = newHistogram(masterLatencyName,
		"Master playlist response latency.", service, defaultBuckets)
	prometheusMW.variantReqs = newCounter(variantReqsName,
		"Number of variant playlist requests processed, partitioned by status code.", service)
	prometheusMW.variantLatency = newHistogram(variantLatencyName,
		"Variant playlist response latency.", service, defaultBuckets)
}

// NewPrometheusMiddleware returns a new prometheus Middleware handler.
func NewPrometheusMiddleware() func(next http.Handler) http.Handler {
	return prometheusMW.handler
}

func (mw prometheusMiddleware) handler(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := strconv.Itoa(ww.Status())
		latencyMS := float64(time.Since(start).Nanoseconds()) * 1e-6

		switch {
		case strings.HasSuffix(path, "master.m3u8"):
			mw.masterReqs.WithLabelValues(status).Inc()
			mw.masterLatency.WithLabelValues(status).Observe(latencyMS)
		case strings.HasSuffix(path, ".m3u8"):
			mw.variantReqs.WithLabelValues(status).Inc()
			mw.variantLatency.WithLabelValues(status).Observe(latencyMS)
		}
	}
	return http.HandlerFunc(fn)
}

func newCounter(counterName, help, serviceName string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        counterName,
			Help:        help,
			ConstLabels: prometheus.Labels{"service": serviceName},
		},
		[]string{"code"},
	)
	prometheus.MustRegister(cv)
	return cv
}

func newHistogram(histogramName, help, serviceName string, buckets []float64) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        histogramName,
		Help:        help,
		ConstLabels: prometheus.Labels{"service": serviceName},
		Buckets:     buckets,
	},
		[]string{"code"},
	)
	prometheus.MustRegister(h)
	return h
}
