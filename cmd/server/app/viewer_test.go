// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dashif-labs/ssaigw/internal/coordinator"
)

func TestParseBitrate(t *testing.T) {
	b, ok := parseBitrate("v_1600k.m3u8", []int{400, 1600, 3000})
	assert.True(t, ok)
	assert.Equal(t, 1600, b)

	b, ok = parseBitrate("audio.m3u8", []int{400, 1600})
	assert.True(t, ok)
	assert.Equal(t, 400, b) // falls back to the lowest ladder entry

	_, ok = parseBitrate("audio.m3u8", nil)
	assert.False(t, ok)
}

func TestIsAppleUserAgent(t *testing.T) {
	assert.True(t, isAppleUserAgent("AppleCoreMedia/1.0.0.21A326 (AppleTV14,1/18.0)"))
	assert.True(t, isAppleUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)"))
	assert.False(t, isAppleUserAgent("Mozilla/5.0 (Linux; Android 14)"))
}

func TestVariantOriginURL(t *testing.T) {
	got, err := variantOriginURL("https://origin.example.com/sports1/master.m3u8", "v_1600k.m3u8")
	assert.NoError(t, err)
	assert.Equal(t, "https://origin.example.com/sports1/v_1600k.m3u8", got)
}

func TestForceMode(t *testing.T) {
	r := httptest.NewRequest("GET", "/o/ch/v.m3u8?force=sgai", nil)
	mode, ok := forceMode(r)
	assert.True(t, ok)
	assert.Equal(t, coordinator.ModeSGAI, mode)

	r = httptest.NewRequest("GET", "/o/ch/v.m3u8", nil)
	_, ok = forceMode(r)
	assert.False(t, ok)
}
