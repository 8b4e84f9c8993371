// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"time"

	"github.com/jessicalh/rptr/internal/frame"
)

// syntheticSource is a dev-mode stand-in for the camera/capture
// collaborator spec.md §1 leaves unspecified ("supporting glue, specified
// only as the interface the core consumes"). It pushes an opaque,
// monotonically increasing frame counter at a fixed rate so the pipeline
// can run end to end without real capture hardware.
type syntheticSource struct {
	frameRate float64
}

func (s *syntheticSource) Subscribe(sink func(frame.Raw)) func() {
	done := make(chan struct{})
	go func() {
		interval := time.Duration(float64(time.Second) / s.frameRate)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var n int64
		for {
			select {
			case <-ticker.C:
				sink(frame.Raw{
					Pixels:           n,
					PresentationTime: frame.Rational{Value: n, Scale: int64(s.frameRate)},
					Duration:         frame.Rational{Value: 1, Scale: int64(s.frameRate)},
				})
				n++
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
