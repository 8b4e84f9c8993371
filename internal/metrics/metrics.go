// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics exposes Prometheus instrumentation for the streaming
// pipeline, wired the way the teacher's internal/metrics package wires its
// counters and histograms: promauto construction, *_total counter-vecs
// labeled by outcome, and latency histograms with hand-picked buckets.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesIngested counts raw frames delivered by the frame source.
	FramesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rptr_frames_ingested_total",
		Help: "Total number of raw frames delivered by the frame source.",
	})

	// FramesDropped counts frames dropped because the encoder's input
	// queue was full (spec.md §5, Frame-in context).
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rptr_frames_dropped_total",
		Help: "Total number of raw frames dropped due to encoder back-pressure.",
	})

	// EncodedFrames counts frames successfully encoded, by keyframe-ness.
	EncodedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rptr_encoded_frames_total",
		Help: "Total number of frames emitted by the encoder wrapper.",
	}, []string{"kind"}) // "keyframe" | "interframe"

	// EncoderErrors counts terminal encoder-session errors by kind.
	EncoderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rptr_encoder_errors_total",
		Help: "Total number of terminal encoder errors by kind.",
	}, []string{"kind"}) // "encoder_setup" | "frame_encode"

	// SegmentsFinalized counts segments handed to the playlist window.
	SegmentsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rptr_segments_finalized_total",
		Help: "Total number of media segments finalized and published.",
	})

	// SegmentDuration observes the duration of each finalized segment,
	// measured from its sample timestamps.
	SegmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rptr_segment_duration_seconds",
		Help:    "Measured duration of finalized media segments.",
		Buckets: []float64{0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5},
	})

	// MuxBuildErrors counts segments dropped due to a bad sample list
	// (spec.md §7, MuxBuild).
	MuxBuildErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rptr_mux_build_errors_total",
		Help: "Total number of segments dropped because the sample list failed muxer validation.",
	})

	// ParameterSetChanges counts SPS/PPS generation changes, each of
	// which forces a new init segment (spec.md §3).
	ParameterSetChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rptr_parameter_set_changes_total",
		Help: "Total number of parameter-set generation changes (forces new init segment).",
	})

	// HTTPRequestsTotal counts origin server responses by route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rptr_http_requests_total",
		Help: "Total number of HTTP responses by route and status class.",
	}, []string{"route", "status"})

	// PathMismatchTotal counts 410 responses from a stale random path.
	PathMismatchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rptr_path_mismatch_total",
		Help: "Total number of requests rejected with 410 due to a stale random path.",
	})

	// WindowEvictions counts segments evicted from the playlist window.
	WindowEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rptr_window_evictions_total",
		Help: "Total number of segments evicted from the rolling playlist window.",
	})

	// LogSinkMessages counts forwarded log lines by source tag.
	LogSinkMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rptr_logsink_messages_total",
		Help: "Total number of log lines forwarded through the log sink by source tag.",
	}, []string{"source"})
)
