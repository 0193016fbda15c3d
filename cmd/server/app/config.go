// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"

	"github.com/dashif-labs/ssaigw/pkg/logging"
	"github.com/spf13/pflag"
)

const (
	defaultReqIntervalS        = 24 * 3600
	defaultOriginFetchTimeoutMS = 5000
	defaultDecisionTimeoutMS    = 2000
	defaultConfigTTLS           = 60
	defaultVastMaxWrapperDepth  = 5
)

// ServerConfig is the gateway process's configuration: the ambient HTTP
// server knobs every service in this lineage carries, plus the gateway's
// own backend addresses and suspension-point timeouts (spec.md section 6).
type ServerConfig struct {
	LogFormat   string `json:"logformat"`
	LogLevel    string `json:"loglevel"`
	ReqLimitLog string `json:"reqlimitlog"`
	ReqLimitInt int    `json:"reqlimitint"` // in seconds
	Port        int    `json:"port"`
	TimeoutS    int    `json:"timeouts"`
	MaxRequests int    `json:"maxrequests"`
	// WhiteListBlocks is a comma-separated list of CIDR blocks that are not rate limited.
	WhiteListBlocks string `json:"whitelistblocks"`
	// CertPath/KeyPath, if both set, serve HTTPS with a static certificate.
	CertPath string `json:"-"`
	KeyPath  string `json:"-"`
	// Host is loaded and kept in the config but not read by request handling;
	// signed-URL verification covers only the request path and expires.
	Host string `json:"host"`

	// DBPath is the sqlite file backing the Channel repository (":memory:" for tests).
	DBPath string `json:"dbpath"`
	// StateDir is the badger directory backing the Coordinator's durable state.
	StateDir string `json:"statedir"`
	// RedisAddr is the shared KV tier backing the Channel-Config Cache and decision memoization.
	RedisAddr string `json:"redisaddr"`

	// OriginFetchTimeoutMS bounds every origin manifest fetch (spec.md section 5).
	OriginFetchTimeoutMS int `json:"originfetchtimeoutms"`
	// DecisionTimeoutMS bounds the Ad-Decision Engine's waterfall per break.
	DecisionTimeoutMS int `json:"decisiontimeoutms"`
	// ConfigTTLS is the Channel-Config Cache's KV TTL.
	ConfigTTLS int `json:"configttls"`
	// VastMaxWrapperDepth bounds VAST Wrapper-chasing when a channel doesn't override it.
	VastMaxWrapperDepth int `json:"vastmaxwrapperdepth"`
	// DevAllowNoAuth disables bearer/signed-URL auth on the control surface. Development only.
	DevAllowNoAuth bool `json:"devallownoauth"`
	// AuthSigningKey verifies bearer JWTs on /cue and /status; empty disables JWT auth
	// (signed-URL auth via a channel's sign_host still applies).
	AuthSigningKey string `json:"-"`
}

var DefaultConfig = ServerConfig{
	LogFormat:            "text",
	LogLevel:             "INFO",
	Port:                 8888,
	TimeoutS:             60,
	MaxRequests:          0,
	ReqLimitInt:          defaultReqIntervalS,
	WhiteListBlocks:      "",
	DBPath:               "./ssaigw.db",
	StateDir:             "./ssaigw-state",
	RedisAddr:            "127.0.0.1:6379",
	OriginFetchTimeoutMS: defaultOriginFetchTimeoutMS,
	DecisionTimeoutMS:    defaultDecisionTimeoutMS,
	ConfigTTLS:           defaultConfigTTLS,
	VastMaxWrapperDepth:  defaultVastMaxWrapperDepth,
}

// LoadConfig loads defaults, an optional config file, command line flags,
// and finally environment variables, in that order of increasing
// precedence. The four variables named in spec.md section 6
// (ORIGIN_FETCH_TIMEOUT_MS, DECISION_TIMEOUT_MS, CONFIG_TTL_S,
// DEV_ALLOW_NO_AUTH) are read by their literal names rather than through
// the process's normal env prefix, since the spec mandates those exact
// names.
func LoadConfig(args []string) (*ServerConfig, error) {
	k := koanf.New(".")
	defaults := DefaultConfig
	if err := k.Load(structs.Provider(defaults, "json"), nil); err != nil {
		return nil, err
	}

	f := pflag.NewFlagSet("ssaigw", pflag.ContinueOnError)
	f.Usage = func() {
		parts := strings.Split(args[0], "/")
		name := parts[len(parts)-1]
		fmt.Fprintf(os.Stderr, "Run as %s [options]:\n", name)
		f.PrintDefaults()
	}
	cfgFile := f.String("cfg", "", "path to a JSON config file")
	f.Int("port", k.Int("port"), "HTTP port")
	lf := strings.Join(logging.LogFormats, ", ")
	f.String("logformat", k.String("logformat"), fmt.Sprintf("log format [%s]", lf))
	ll := strings.Join(logging.LogLevels, ", ")
	f.String("loglevel", k.String("loglevel"), fmt.Sprintf("log level [%s]", ll))
	f.String("whitelistblocks", k.String("whitelistblocks"), "comma-separated list of CIDR blocks that are not rate limited")
	f.Int("timeouts", k.Int("timeouts"), "timeout for all requests (seconds)")
	f.Int("maxrequests", k.Int("maxrequests"), "max nr of requests per IP address per interval")
	f.String("reqlimitlog", k.String("reqlimitlog"), "path to request limit log file (only written if maxrequests > 0)")
	f.Int("reqlimitint", k.Int("reqlimitint"), "interval for request limit in seconds (only used if maxrequests > 0)")
	f.String("certpath", k.String("certpath"), "path to TLS certificate file (for HTTPS)")
	f.String("keypath", k.String("keypath"), "path to TLS private key file (for HTTPS)")
	f.String("host", k.String("host"), "public host name (stored in config; not used by signed-URL verification)")
	f.String("dbpath", k.String("dbpath"), "path to the sqlite channel repository")
	f.String("statedir", k.String("statedir"), "directory for the badger durable state store")
	f.String("redisaddr", k.String("redisaddr"), "address of the redis instance backing the config/decision KV")
	f.Int("originfetchtimeoutms", k.Int("originfetchtimeoutms"), "origin manifest fetch timeout (ms)")
	f.Int("decisiontimeoutms", k.Int("decisiontimeoutms"), "ad-decision waterfall timeout (ms)")
	f.Int("configttls", k.Int("configttls"), "channel-config cache KV TTL (seconds)")
	f.Int("vastmaxwrapperdepth", k.Int("vastmaxwrapperdepth"), "max VAST wrapper-chase depth")
	f.Bool("devallownoauth", k.Bool("devallownoauth"), "disable control-plane auth (development only)")
	if err := f.Parse(args[1:]); err != nil {
		return nil, fmt.Errorf("command line parse: %w", err)
	}

	if *cfgFile != "" {
		cf := file.Provider(*cfgFile)
		if err := k.Load(cf, json.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("parsing cli: %w", err)
	}

	if err := k.Load(env.Provider("SSAIGW_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "SSAIGW_")), "_", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg ServerConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if err := checkTLSParams(cfg.CertPath, cfg.KeyPath); err != nil {
		return nil, err
	}

	applySpecEnvNames(&cfg)
	cfg.AuthSigningKey = os.Getenv("SSAIGW_AUTH_SIGNING_KEY")

	return &cfg, nil
}

// applySpecEnvNames applies the literal environment variable names
// spec.md section 6 requires, overriding whatever koanf resolved from
// flags/config-file/the SSAIGW_ prefix.
func applySpecEnvNames(cfg *ServerConfig) {
	if v, ok := os.LookupEnv("ORIGIN_FETCH_TIMEOUT_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OriginFetchTimeoutMS = n
		}
	}
	if v, ok := os.LookupEnv("DECISION_TIMEOUT_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DecisionTimeoutMS = n
		}
	}
	if v, ok := os.LookupEnv("CONFIG_TTL_S"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ConfigTTLS = n
		}
	}
	if v, ok := os.LookupEnv("DEV_ALLOW_NO_AUTH"); ok {
		cfg.DevAllowNoAuth = v == "1" || strings.EqualFold(v, "true")
	}
}

func checkTLSParams(certPath, keyPath string) error {
	switch {
	case certPath == "" && keyPath == "":
		return nil // HTTP
	case certPath != "" && keyPath != "":
		return nil // HTTPS
	default:
		return fmt.Errorf("certpath and keypath must both be empty or set")
	}
}
