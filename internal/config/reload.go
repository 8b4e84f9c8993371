// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/jessicalh/rptr/internal/log"
	"github.com/rs/zerolog"
)

// Holder holds configuration with atomic, lock-free reloading. Readers
// call Get(); the watcher goroutine is the sole writer, matching the
// single-writer-before-readers discipline spec.md §5 requires for shared
// mutable state. The running encoder and assembler do not call Get(); they
// keep the configuration they were constructed with.
type Holder struct {
	snapshot atomic.Pointer[AppConfig]
	loader   *Loader
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
}

// NewHolder creates a Holder seeded with initial.
func NewHolder(initial AppConfig, loader *Loader) *Holder {
	h := &Holder{loader: loader, logger: log.WithComponent("config")}
	h.snapshot.Store(&initial)
	return h
}

// Get returns the current configuration snapshot.
func (h *Holder) Get() AppConfig {
	p := h.snapshot.Load()
	if p == nil {
		return AppConfig{}
	}
	return *p
}

// WatchFile starts an fsnotify watch on the directory containing configPath
// and reloads on any write/create event targeting that file. It is a
// no-op if configPath is empty (environment/defaults-only configuration
// has nothing to watch).
func (h *Holder) WatchFile(configPath string) error {
	if configPath == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	h.watcher = w

	dir := filepath.Dir(configPath)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}

	go h.watchLoop(configPath)
	return nil
}

func (h *Holder) watchLoop(configPath string) {
	target := filepath.Clean(configPath)
	for {
		select {
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			h.reload()
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Warn().Err(err).Str("event", "config.watch_error").Msg("config watcher error")
		}
	}
}

func (h *Holder) reload() {
	cfg, err := h.loader.Load()
	if err != nil {
		h.logger.Warn().Err(err).Str("event", "config.reload_failed").Msg("config reload failed, keeping previous snapshot")
		return
	}
	h.snapshot.Store(&cfg)
	h.logger.Info().Str("event", "config.reloaded").
		Int("width", cfg.Width).Int("height", cfg.Height).
		Float64("frame_rate", cfg.FrameRate).
		Int("keyframe_interval", cfg.KeyframeInterval).
		Float64("target_segment_seconds", cfg.TargetSegmentSeconds).
		Int("window_size", cfg.WindowSize).
		Msg("configuration reloaded")
}

// Close stops the file watcher, if any.
func (h *Holder) Close() error {
	if h.watcher == nil {
		return nil
	}
	return h.watcher.Close()
}
