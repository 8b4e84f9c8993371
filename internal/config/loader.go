// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/jessicalh/rptr/internal/log"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	configPath string
	version    string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a loader that reads configPath (if non-empty) and the
// process environment.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version, lookupEnv: os.LookupEnv}
}

// Load parses the YAML file (if any), resolves it onto the compiled
// defaults, then applies RPTR_* environment overrides, and validates
// the result.
func (l *Loader) Load() (AppConfig, error) {
	logger := log.WithComponent("config")

	var fc FileConfig
	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return AppConfig{}, err
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return AppConfig{}, err
		}
		logger.Info().Str("event", "config.file_loaded").Str("path", l.configPath).Msg("loaded configuration file")
	}

	cfg, err := Resolve(l.version, fc)
	if err != nil {
		return AppConfig{}, err
	}

	l.applyEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// applyEnv overrides cfg in place from RPTR_* environment variables, the
// final and highest-precedence layer.
func (l *Loader) applyEnv(cfg *AppConfig) {
	if v, ok := l.lookupEnv("RPTR_LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := l.lookupEnv("RPTR_LISTEN_ADDR"); ok && v != "" {
		cfg.ListenAddr = v
	}
	if v, ok := l.lookupEnv("RPTR_RANDOM_PATH"); ok && v != "" {
		cfg.RandomPath = v
	}
	if v, ok := l.lookupEnv("RPTR_ENCODER_WIDTH"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Width = n
		}
	}
	if v, ok := l.lookupEnv("RPTR_ENCODER_HEIGHT"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Height = n
		}
	}
	if v, ok := l.lookupEnv("RPTR_ENCODER_BITRATE_BPS"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AverageBitrateBps = n
		}
	}
	if v, ok := l.lookupEnv("RPTR_ENCODER_KEYFRAME_INTERVAL"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.KeyframeInterval = n
		}
	}
	if v, ok := l.lookupEnv("RPTR_SEGMENT_WINDOW_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WindowSize = n
		}
	}
	if v, ok := l.lookupEnv("RPTR_LOGSINK_ADDR"); ok && v != "" {
		cfg.LogSinkAddr = v
	}
	if v, ok := l.lookupEnv("RPTR_METRICS_ENABLED"); ok {
		cfg.MetricsEnabled = strings.EqualFold(v, "true") || v == "1"
	}
}
