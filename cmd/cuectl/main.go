// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Command cuectl is the operator CLI for the Cue Control API and the
// status endpoint: a thin HTTP client with the exit codes spec.md
// section 6 assigns to operator tooling (0 success, 1 auth error, 2 not
// found, 3 backend unavailable).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"
)

const (
	exitOK              = 0
	exitAuthError       = 1
	exitNotFound        = 2
	exitBackendUnavailable = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f := pflag.NewFlagSet("cuectl", pflag.ContinueOnError)
	server := f.String("server", "http://127.0.0.1:8888", "ssaigw base URL")
	token := f.String("token", os.Getenv("SSAIGW_TOKEN"), "bearer token for the control plane")
	channel := f.String("channel", "", "channel id")
	duration := f.Float64("duration", 0, "break duration in seconds (start only)")
	podID := f.String("pod-id", "", "pre-bound ad pod id (start only)")
	podURL := f.String("pod-url", "", "VAST ad tag override (start only)")
	if err := f.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitBackendUnavailable
	}
	if f.NArg() < 1 || *channel == "" {
		fmt.Fprintln(os.Stderr, "usage: cuectl [start|stop|status] --channel=<id> [flags]")
		return exitBackendUnavailable
	}

	client := &http.Client{Timeout: 5 * time.Second}
	switch f.Arg(0) {
	case "start", "stop":
		return doCue(client, *server, *token, *channel, f.Arg(0), *duration, *podID, *podURL)
	case "status":
		return doStatus(client, *server, *token, *channel)
	default:
		fmt.Fprintln(os.Stderr, "unknown subcommand:", f.Arg(0))
		return exitBackendUnavailable
	}
}

type cueRequestBody struct {
	Channel  string   `json:"channel"`
	Type     string   `json:"type"`
	Duration *float64 `json:"duration,omitempty"`
	PodID    string   `json:"pod_id,omitempty"`
	PodURL   string   `json:"pod_url,omitempty"`
}

func doCue(client *http.Client, server, token, channel, kind string, duration float64, podID, podURL string) int {
	body := cueRequestBody{Channel: channel, Type: kind, PodID: podID, PodURL: podURL}
	if duration > 0 {
		body.Duration = &duration
	}
	raw, err := json.Marshal(body)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitBackendUnavailable
	}

	req, err := http.NewRequest(http.MethodPost, server+"/cue", bytes.NewReader(raw))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitBackendUnavailable
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return doRequest(client, req)
}

func doStatus(client *http.Client, server, token, channel string) int {
	req, err := http.NewRequest(http.MethodGet, server+"/status/"+channel, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitBackendUnavailable
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return doRequest(client, req)
}

func doRequest(client *http.Client, req *http.Request) int {
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "backend unavailable:", err)
		return exitBackendUnavailable
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		os.Stdout.Write(raw)
		fmt.Println()
		return exitOK
	case http.StatusUnauthorized, http.StatusForbidden:
		fmt.Fprintln(os.Stderr, string(raw))
		return exitAuthError
	case http.StatusNotFound:
		fmt.Fprintln(os.Stderr, string(raw))
		return exitNotFound
	default:
		fmt.Fprintln(os.Stderr, string(raw))
		return exitBackendUnavailable
	}
}
