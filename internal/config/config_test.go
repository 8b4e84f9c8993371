// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults("test")
	require.NoError(t, Validate(cfg))
	assert.Equal(t, 10, cfg.WindowSize)
	assert.Equal(t, 1.0, cfg.TargetSegmentSeconds)
	assert.Equal(t, 0.5, cfg.MinSegmentSeconds)
}

func TestResolveOverridesDefaults(t *testing.T) {
	fc := FileConfig{
		Encoder: EncoderConfig{Width: 1920, Height: 1080, FrameRate: 24, KeyframeInterval: 48},
		Segment: SegmentConfig{WindowSize: 6, TargetSegmentSeconds: 2},
		Server:  ServerConfig{ListenAddr: ":9090", IdleTimeout: "15s"},
	}
	cfg, err := Resolve("test", fc)
	require.NoError(t, err)
	assert.Equal(t, 1920, cfg.Width)
	assert.Equal(t, 1080, cfg.Height)
	assert.Equal(t, 24.0, cfg.FrameRate)
	assert.Equal(t, 48, cfg.KeyframeInterval)
	assert.Equal(t, 6, cfg.WindowSize)
	assert.Equal(t, 2.0, cfg.TargetSegmentSeconds)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 15*time.Second, cfg.IdleTimeout)
}

func TestResolveInvalidIdleTimeout(t *testing.T) {
	fc := FileConfig{Server: ServerConfig{IdleTimeout: "not-a-duration"}}
	_, err := Resolve("test", fc)
	assert.Error(t, err)
}

func TestValidateRejectsBadDimensions(t *testing.T) {
	cfg := Defaults("test")
	cfg.Width = 0
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsMinExceedingTarget(t *testing.T) {
	cfg := Defaults("test")
	cfg.MinSegmentSeconds = cfg.TargetSegmentSeconds + 1
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsEmptyWindow(t *testing.T) {
	cfg := Defaults("test")
	cfg.WindowSize = 0
	assert.Error(t, Validate(cfg))
}

func TestTargetDurationCeils(t *testing.T) {
	cfg := Defaults("test")
	cfg.TargetSegmentSeconds = 1.0
	assert.Equal(t, 1, cfg.TargetDuration())

	cfg.TargetSegmentSeconds = 1.5
	assert.Equal(t, 2, cfg.TargetDuration())

	cfg.TargetSegmentSeconds = 2.0
	assert.Equal(t, 2, cfg.TargetDuration())
}
