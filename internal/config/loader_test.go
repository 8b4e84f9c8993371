// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderLoadsFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "encoder:\n  width: 640\n  height: 360\n  frameRate: 15\n  keyframeInterval: 15\nsegment:\n  windowSize: 4\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	loader := NewLoader(path, "test-version")
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 360, cfg.Height)
	assert.Equal(t, 4, cfg.WindowSize)
	assert.Equal(t, "test-version", cfg.Version)
}

func TestLoaderEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("encoder:\n  width: 640\n  height: 360\n"), 0o600))

	loader := NewLoader(path, "test")
	loader.lookupEnv = func(key string) (string, bool) {
		if key == "RPTR_ENCODER_WIDTH" {
			return "1280", true
		}
		return "", false
	}
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 1280, cfg.Width)
	assert.Equal(t, 360, cfg.Height)
}

func TestLoaderMissingFileErrors(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"), "test")
	_, err := loader.Load()
	assert.Error(t, err)
}

func TestLoaderNoPathUsesDefaults(t *testing.T) {
	loader := NewLoader("", "test")
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults("test").Width, cfg.Width)
}
