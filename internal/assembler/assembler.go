// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package assembler groups encoded frames into fragmented-MP4 segments on
// keyframe boundaries and publishes them to the playlist window. It is the
// single-consumer "encoder-out context" described by the pipeline's
// concurrency model: all mutation happens on its own goroutine, fed by a
// channel, so no external lock is needed around its buffer.
package assembler

import (
	"time"

	"github.com/jessicalh/rptr/internal/fmp4"
	"github.com/jessicalh/rptr/internal/h264"
	"github.com/jessicalh/rptr/internal/metrics"
	"github.com/jessicalh/rptr/internal/playlist"
	"github.com/rs/zerolog"
)

// DefaultMinSegmentSeconds guards against degenerate one-frame segments
// when keyframes cluster; a keyframe arriving sooner than this after the
// current segment's first frame does not cut.
const DefaultMinSegmentSeconds = 0.5

// InitPublisher receives freshly built init-segment bytes whenever the
// muxer's track configuration changes (a new parameter-set generation).
type InitPublisher interface {
	PublishInit(bytes []byte)
}

// Assembler owns the current segment buffer and the muxer it finalizes
// through. It must only be driven by its own goroutine (Run); EncodedFrame,
// ParameterSets and Error are safe to call concurrently because they only
// hand events across channels.
type Assembler struct {
	muxer   *fmp4.Muxer
	track   fmp4.TrackConfig
	window  *playlist.Window
	initPub InitPublisher
	log     zerolog.Logger

	targetSegmentSeconds float64
	minSegmentSeconds    float64

	input     chan h264.Frame
	paramSets chan paramSetEvent
	done      chan struct{}
	stopped   chan struct{}

	buffer         []fmp4.EncodedSample
	sequenceNumber uint32
}

type paramSetEvent struct {
	sps, pps []byte
}

// New returns an Assembler bound to muxer/window/initPub. Run must be
// called to start processing.
func New(muxer *fmp4.Muxer, window *playlist.Window, initPub InitPublisher, targetSegmentSeconds float64, logger zerolog.Logger) *Assembler {
	return &Assembler{
		muxer:                muxer,
		window:               window,
		initPub:              initPub,
		log:                  logger,
		targetSegmentSeconds: targetSegmentSeconds,
		minSegmentSeconds:    DefaultMinSegmentSeconds,
		input:                make(chan h264.Frame, 32),
		paramSets:            make(chan paramSetEvent, 1),
		done:                 make(chan struct{}),
		stopped:              make(chan struct{}),
	}
}

// SetTrack registers the single video track the assembler publishes
// through; must be called before Run.
func (a *Assembler) SetTrack(track fmp4.TrackConfig) {
	a.track = track
}

// SetMinSegmentSeconds overrides DefaultMinSegmentSeconds; must be called
// before Run.
func (a *Assembler) SetMinSegmentSeconds(seconds float64) {
	a.minSegmentSeconds = seconds
}

// EncodedFrame implements h264.Sink's frame delivery by forwarding onto the
// assembler's serial queue; never blocks the encoder-out goroutine for
// long, since the channel is generously buffered and Run drains promptly.
func (a *Assembler) EncodedFrame(f h264.Frame) {
	select {
	case a.input <- f:
	case <-a.done:
	}
}

// ParameterSets implements h264.Sink: on a new generation, flush the
// current buffer as a segment (if non-empty) and regenerate the init
// segment.
//
// This does not emit a live EXT-X-DISCONTINUITY tag for players already
// mid-playlist when the generation changes; the spec leaves that as an
// open question and the rolling window's short horizon makes the gap
// brief in practice.
func (a *Assembler) ParameterSets(sps, pps []byte) {
	select {
	case a.paramSets <- paramSetEvent{sps: sps, pps: pps}:
	case <-a.done:
	}
}

// Error implements h264.Sink; encoder errors are logged here. The
// assembler keeps serving the last published playlist rather than tearing
// anything down itself.
func (a *Assembler) Error(kind h264.ErrorKind, err error) {
	a.log.Error().Str("kind", kind.String()).Err(err).Msg("encoder.session_failed")
}

// Run drives the assembler's serial queue until Stop is called.
func (a *Assembler) Run() {
	defer close(a.stopped)
	for {
		select {
		case f := <-a.input:
			a.handleFrame(f)
		case ev := <-a.paramSets:
			a.handleParameterSets(ev)
		case <-a.done:
			return
		}
	}
}

// Stop signals Run to exit, flushing a final segment first if the current
// buffer already spans at least minSegmentSeconds.
func (a *Assembler) Stop() {
	close(a.done)
	<-a.stopped
	if len(a.buffer) > 0 && a.segmentSpan() >= a.minSegmentSeconds {
		a.finalize()
	}
	a.window.End()
}

func (a *Assembler) handleParameterSets(ev paramSetEvent) {
	if len(a.buffer) > 0 {
		a.finalize()
	}
	a.track.SPS = ev.sps
	a.track.PPS = ev.pps
	a.muxer.SetParameterSets(a.track.TrackID, ev.sps, ev.pps)
	a.muxer.Reset()
	if a.initPub != nil {
		a.initPub.PublishInit(a.muxer.BuildInitSegment())
	}
}

func (a *Assembler) handleFrame(f h264.Frame) {
	if f.Keyframe && len(a.buffer) > 0 && f.PTS.Seconds()-a.buffer[0].PTS.Seconds() >= a.minSegmentSeconds {
		a.finalize()
	}
	a.buffer = append(a.buffer, fmp4.EncodedSample{
		Data:     f.Data,
		Keyframe: f.Keyframe,
		PTS:      f.PTS,
		Duration: f.Duration,
	})
}

// segmentSpan returns the elapsed seconds between the buffer's first
// sample and the most recently appended one.
func (a *Assembler) segmentSpan() float64 {
	if len(a.buffer) == 0 {
		return 0
	}
	first := a.buffer[0].PTS
	last := a.buffer[len(a.buffer)-1].PTS
	return last.Seconds() - first.Seconds()
}

func (a *Assembler) finalize() {
	samples := a.buffer
	a.buffer = nil

	segBytes, err := a.muxer.BuildMediaSegment(a.track, samples, a.sequenceNumber)
	if err != nil {
		metrics.MuxBuildErrors.Inc()
		a.log.Warn().Err(err).Msg("assembler.mux_build_failed")
		return
	}

	first, last := samples[0], samples[len(samples)-1]
	duration := (last.PTS.Seconds() - first.PTS.Seconds()) + last.Duration.Seconds()
	filename := segmentFilename(a.sequenceNumber)

	if duration > a.targetSegmentSeconds*2 {
		a.log.Warn().
			Float64("duration", duration).
			Float64("target", a.targetSegmentSeconds).
			Msg("assembler.segment_exceeds_target_duration")
	}

	a.window.Append(playlist.Segment{
		Filename: filename,
		Duration: duration,
		Bytes:    segBytes,
	})
	metrics.SegmentsFinalized.Inc()
	metrics.SegmentDuration.Observe(duration)
	a.sequenceNumber++
}

func segmentFilename(sequenceNumber uint32) string {
	return "segment_" + itoa(sequenceNumber) + ".m4s"
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// CadenceTimer fires every targetSegmentSeconds and requests a keyframe, so
// the assembler cuts a new segment on a steady wall-clock cadence even
// under a scene with no natural re-keying. It is a free function rather
// than a method because it talks to the encoder, not the assembler state.
func CadenceTimer(done <-chan struct{}, targetSegmentSeconds float64, forceKeyframe func()) {
	ticker := time.NewTicker(time.Duration(targetSegmentSeconds * float64(time.Second)))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			forceKeyframe()
		case <-done:
			return
		}
	}
}
