// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jessicalh/rptr/internal/config"
	"github.com/jessicalh/rptr/internal/log"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "rptrd",
	Short:   "Self-hosted live H.264/HLS broadcasting daemon",
	Version: version,
	Long: `rptrd encodes camera frames to H.264, muxes them into fragmented MP4
segments, and serves them as a live HLS stream from an unguessable URL.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// resolveConfigPath returns the explicit --config path if set, else the
// auto-discovered $RPTR_DATA/config.yaml if that file exists.
func resolveConfigPath() string {
	if strings.TrimSpace(configPath) != "" {
		return configPath
	}
	dataDir := os.Getenv("RPTR_DATA")
	if dataDir == "" {
		dataDir = "/tmp/rptr"
	}
	auto := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(auto); err == nil {
		return auto
	}
	return ""
}

// loadConfig wires the Loader with ENV > File > Defaults precedence and
// configures the global logger from the result.
func loadConfig() (config.AppConfig, *config.Loader, error) {
	path := resolveConfigPath()
	loader := config.NewLoader(path, version)
	cfg, err := loader.Load()
	if err != nil {
		return config.AppConfig{}, nil, fmt.Errorf("rptrd: load config: %w", err)
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Service: "rptr", Version: version})
	return cfg, loader, nil
}
