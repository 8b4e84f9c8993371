// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package h264

import "github.com/jessicalh/rptr/internal/frame"

// Sample is one encoded access unit as a list of Annex-B NAL units with
// their start codes stripped, as produced by a Backend. The Encoder wrapper converts this
// into AVCC length-prefixed form and applies the VUI patch to any SPS NAL.
type Sample struct {
	NALUnits  [][]byte // each entry excludes the start code, includes the NAL header byte
	Keyframe  bool
	PTS       frame.Rational
	Duration  frame.Rational
}

// BackendConfig describes the encoding session parameters a Backend must
// honor. It is a subset of AppConfig's encoder fields, kept separate so the
// backend boundary does not depend on the config package.
type BackendConfig struct {
	Width             int
	Height            int
	FrameRate         float64
	AverageBitrateBps int
	KeyframeInterval  int
}

// Backend is strictly an orchestration boundary: Configure, Encode,
// ForceKeyframe, Flush, Close. Implementations (VideoToolbox, NVENC,
// libx264, a software fallback) handle the "how"; the Encoder wrapper never
// reaches past this interface.
type Backend interface {
	// Configure initializes the encoding session. The Encoder calls it
	// once, from NewEncoder, before the first Encode.
	Configure(cfg BackendConfig) error

	// Encode submits one raw frame and returns zero or more samples
	// (an encoder may buffer for B-frame reordering; this pipeline
	// requests zero-latency IPPP encoding, so implementations are
	// expected to return exactly one sample per call, but callers must
	// not assume it).
	Encode(raw frame.Raw) ([]Sample, error)

	// ForceKeyframe requests that the next Encode call produce a
	// keyframe, regardless of the configured keyframe interval.
	ForceKeyframe()

	// Flush drains any buffered samples. Called before Close and at
	// stream teardown.
	Flush() ([]Sample, error)

	// Close releases the encoding session.
	Close() error
}
