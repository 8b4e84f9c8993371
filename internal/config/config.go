// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for rptr.
package config

import (
	"fmt"
	"time"
)

// FileConfig represents the on-disk YAML configuration structure.
type FileConfig struct {
	DataDir  string `yaml:"dataDir,omitempty"`
	LogLevel string `yaml:"logLevel,omitempty"`

	Server   ServerConfig   `yaml:"server,omitempty"`
	Encoder  EncoderConfig  `yaml:"encoder,omitempty"`
	Segment  SegmentConfig  `yaml:"segment,omitempty"`
	LogSink  LogSinkConfig  `yaml:"logSink,omitempty"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty"`
}

// ServerConfig holds HTTP origin server settings.
type ServerConfig struct {
	ListenAddr  string `yaml:"listenAddr,omitempty"`
	IdleTimeout string `yaml:"idleTimeout,omitempty"` // e.g. "30s"
	// RandomPath overrides the generated capability path; used only for
	// deterministic tests. Left empty in production.
	RandomPath string `yaml:"randomPath,omitempty"`
}

// EncoderConfig holds H.264 encoder tuning knobs. Holder (reload.go)
// re-reads them when the config file changes, but the running encoder
// takes its settings once at construction and does not pick up reloaded
// values.
type EncoderConfig struct {
	Width             int     `yaml:"width,omitempty"`
	Height            int     `yaml:"height,omitempty"`
	FrameRate         float64 `yaml:"frameRate,omitempty"`
	AverageBitrateBps int     `yaml:"averageBitrateBps,omitempty"`
	KeyframeInterval  int     `yaml:"keyframeInterval,omitempty"` // frames
}

// SegmentConfig holds assembler/playlist tuning.
type SegmentConfig struct {
	TargetSegmentSeconds float64 `yaml:"targetSegmentSeconds,omitempty"`
	MinSegmentSeconds    float64 `yaml:"minSegmentSeconds,omitempty"`
	WindowSize           int     `yaml:"windowSize,omitempty"`
}

// LogSinkConfig holds the UDP log forwarding listener settings.
type LogSinkConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Addr    string `yaml:"addr,omitempty"` // e.g. "0.0.0.0:9999"
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// AppConfig is the fully resolved, runtime-ready configuration: every
// optional/pointer field from FileConfig has been defaulted and every
// duration string parsed.
type AppConfig struct {
	Version  string
	LogLevel string
	DataDir  string

	ListenAddr  string
	IdleTimeout time.Duration
	RandomPath  string

	Width             int
	Height            int
	FrameRate         float64
	AverageBitrateBps int
	KeyframeInterval  int

	TargetSegmentSeconds float64
	MinSegmentSeconds    float64
	WindowSize           int

	LogSinkEnabled bool
	LogSinkAddr    string

	MetricsEnabled bool
}

// Defaults returns the compiled-in baseline configuration, matching the
// values named throughout spec.md (target_segment_seconds=1.0,
// MIN_SEGMENT_SECONDS=0.5, window_size=10).
func Defaults(version string) AppConfig {
	return AppConfig{
		Version:  version,
		LogLevel: "info",
		DataDir:  "/tmp/rptr",

		ListenAddr:  ":8080",
		IdleTimeout: 30 * time.Second,

		Width:             1280,
		Height:            720,
		FrameRate:         30,
		AverageBitrateBps: 2_000_000,
		KeyframeInterval:  30,

		TargetSegmentSeconds: 1.0,
		MinSegmentSeconds:    0.5,
		WindowSize:           10,

		LogSinkEnabled: true,
		LogSinkAddr:    ":9999",

		MetricsEnabled: true,
	}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Resolve merges a parsed FileConfig onto the compiled defaults. Environment
// overrides are applied afterwards by Loader.Load, preserving the
// ENV > File > Defaults precedence the rest of the ambient stack uses.
func Resolve(version string, fc FileConfig) (AppConfig, error) {
	cfg := Defaults(version)

	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}

	if fc.Server.ListenAddr != "" {
		cfg.ListenAddr = fc.Server.ListenAddr
	}
	if fc.Server.IdleTimeout != "" {
		d, err := time.ParseDuration(fc.Server.IdleTimeout)
		if err != nil {
			return AppConfig{}, fmt.Errorf("config: invalid server.idleTimeout %q: %w", fc.Server.IdleTimeout, err)
		}
		cfg.IdleTimeout = d
	}
	cfg.RandomPath = fc.Server.RandomPath

	if fc.Encoder.Width > 0 {
		cfg.Width = fc.Encoder.Width
	}
	if fc.Encoder.Height > 0 {
		cfg.Height = fc.Encoder.Height
	}
	if fc.Encoder.FrameRate > 0 {
		cfg.FrameRate = fc.Encoder.FrameRate
	}
	if fc.Encoder.AverageBitrateBps > 0 {
		cfg.AverageBitrateBps = fc.Encoder.AverageBitrateBps
	}
	if fc.Encoder.KeyframeInterval > 0 {
		cfg.KeyframeInterval = fc.Encoder.KeyframeInterval
	}

	if fc.Segment.TargetSegmentSeconds > 0 {
		cfg.TargetSegmentSeconds = fc.Segment.TargetSegmentSeconds
	}
	if fc.Segment.MinSegmentSeconds > 0 {
		cfg.MinSegmentSeconds = fc.Segment.MinSegmentSeconds
	}
	if fc.Segment.WindowSize > 0 {
		cfg.WindowSize = fc.Segment.WindowSize
	}

	cfg.LogSinkEnabled = boolOr(fc.LogSink.Enabled, cfg.LogSinkEnabled)
	if fc.LogSink.Addr != "" {
		cfg.LogSinkAddr = fc.LogSink.Addr
	}

	cfg.MetricsEnabled = boolOr(fc.Metrics.Enabled, cfg.MetricsEnabled)

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate enforces the invariants spec.md assumes the controller can rely
// on: positive dimensions, a minimum segment floor no longer than the
// target segment duration, and a window with room for at least one segment.
func Validate(cfg AppConfig) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("config: width/height must be positive, got %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FrameRate <= 0 {
		return fmt.Errorf("config: frameRate must be positive, got %f", cfg.FrameRate)
	}
	if cfg.KeyframeInterval <= 0 {
		return fmt.Errorf("config: keyframeInterval must be positive, got %d", cfg.KeyframeInterval)
	}
	if cfg.TargetSegmentSeconds <= 0 {
		return fmt.Errorf("config: targetSegmentSeconds must be positive, got %f", cfg.TargetSegmentSeconds)
	}
	if cfg.MinSegmentSeconds <= 0 || cfg.MinSegmentSeconds > cfg.TargetSegmentSeconds {
		return fmt.Errorf("config: minSegmentSeconds (%f) must be in (0, targetSegmentSeconds=%f]", cfg.MinSegmentSeconds, cfg.TargetSegmentSeconds)
	}
	if cfg.WindowSize < 1 {
		return fmt.Errorf("config: windowSize must be >= 1, got %d", cfg.WindowSize)
	}
	return nil
}

// TargetDuration is the playlist EXT-X-TARGETDURATION value: the ceiling of
// the target segment duration, per spec.md §4.G.
func (c AppConfig) TargetDuration() int {
	td := int(c.TargetSegmentSeconds)
	if float64(td) < c.TargetSegmentSeconds {
		td++
	}
	return td
}
