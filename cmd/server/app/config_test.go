// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	osArgs := []string{"/path/ssaigw"}
	cfg, err := LoadConfig(osArgs)
	assert.NoError(t, err)
	assert.Equal(t, DefaultConfig, *cfg)
}

func TestCommandLine(t *testing.T) {
	osArgs := []string{"/path/ssaigw", "--loglevel", "debug", "--port", "9000"}
	cfg, err := LoadConfig(osArgs)
	assert.NoError(t, err)
	c := DefaultConfig
	c.LogLevel = "debug"
	c.Port = 9000
	assert.Equal(t, c, *cfg)
}

func TestEnv(t *testing.T) {
	osArgs := []string{"/path/ssaigw", "--loglevel", "debug"}
	t.Setenv("SSAIGW_LOGLEVEL", "warn")
	cfg, err := LoadConfig(osArgs)
	assert.NoError(t, err)
	c := DefaultConfig
	c.LogLevel = "warn"
	assert.Equal(t, c, *cfg)
}

func TestSpecEnvNamesOverrideEverything(t *testing.T) {
	osArgs := []string{"/path/ssaigw", "--decisiontimeoutms", "3000"}
	t.Setenv("ORIGIN_FETCH_TIMEOUT_MS", "7500")
	t.Setenv("DECISION_TIMEOUT_MS", "4000")
	t.Setenv("CONFIG_TTL_S", "30")
	t.Setenv("DEV_ALLOW_NO_AUTH", "true")
	cfg, err := LoadConfig(osArgs)
	assert.NoError(t, err)
	assert.Equal(t, 7500, cfg.OriginFetchTimeoutMS)
	assert.Equal(t, 4000, cfg.DecisionTimeoutMS)
	assert.Equal(t, 30, cfg.ConfigTTLS)
	assert.True(t, cfg.DevAllowNoAuth)
}

func TestCheckTLSParamsRejectsMismatch(t *testing.T) {
	assert.NoError(t, checkTLSParams("", ""))
	assert.NoError(t, checkTLSParams("cert.pem", "key.pem"))
	assert.Error(t, checkTLSParams("cert.pem", ""))
	assert.Error(t, checkTLSParams("", "key.pem"))
}
