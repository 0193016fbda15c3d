// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/dashif-labs/ssaigw/internal"
)

// viewerCORS allows any origin to read manifests: HLS players routinely
// run in a different origin than the gateway, and no viewer credentials
// are exchanged over this surface (spec.md section 4.7, "viewer requests
// are not authenticated").
func viewerCORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

func addVersionHeader(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SSAIGW-Version", internal.GetVersion())
		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}
