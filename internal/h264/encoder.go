// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package h264

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jessicalh/rptr/internal/frame"
	"github.com/jessicalh/rptr/internal/metrics"
)

// ErrorKind classifies a terminal Encoder error.
type ErrorKind int

const (
	// EncoderSetup is fatal to the current session; surface to the
	// operator, restart only on explicit command.
	EncoderSetup ErrorKind = iota
	// FrameEncode is fatal to the current session; same handling as
	// EncoderSetup.
	FrameEncode
)

func (k ErrorKind) String() string {
	switch k {
	case EncoderSetup:
		return "encoder_setup"
	case FrameEncode:
		return "frame_encode"
	default:
		return "unknown"
	}
}

// Frame is one AVCC-formatted encoded access unit, in decode order (which,
// with B-frames disabled, equals presentation order).
type Frame struct {
	Data     []byte // length-prefixed NAL units, 4-byte big-endian lengths
	Keyframe bool
	PTS      frame.Rational
	Duration frame.Rational
}

// Sink receives the Encoder's output events. ParameterSets is emitted once
// per parameter-set generation, before or together with the first keyframe
// referencing it. EncodedFrame and Error are mutually exclusive per
// session: after Error the session is invalidated and no further
// EncodedFrame calls follow until a new Encoder is constructed.
type Sink interface {
	ParameterSets(sps, pps []byte)
	EncodedFrame(f Frame)
	Error(kind ErrorKind, err error)
}

// EncoderConfig configures an Encoder session.
type EncoderConfig struct {
	Width             int
	Height            int
	FrameRate         float64
	AverageBitrateBps int
	KeyframeInterval  int // frames
	QueueDepth        int // Frame-in input queue depth; 0 uses a sane default
}

// Encoder wraps a Backend with the ParameterSets/EncodedFrame/Error event
// contract, AVCC formatting, and the VUI SPS patch. It owns a single
// goroutine (the "encoder-out context") that is the sole caller into the
// Backend; Push is safe to call from the camera callback concurrently with
// that goroutine's operation.
type Encoder struct {
	backend Backend
	sink    Sink
	cfg     EncoderConfig

	input    chan frame.Raw
	forceKey chan struct{}
	flushReq chan chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	invalidated atomic.Bool

	mu         sync.Mutex
	curSPS     []byte
	curPPS     []byte
}

// NewEncoder configures backend and starts the encoder-out goroutine.
// Errors during Configure are reported via EncoderSetup and also returned
// directly, since no session exists yet to invalidate.
func NewEncoder(backend Backend, sink Sink, cfg EncoderConfig) (*Encoder, error) {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 8
	}
	if err := backend.Configure(BackendConfig{
		Width:             cfg.Width,
		Height:            cfg.Height,
		FrameRate:         cfg.FrameRate,
		AverageBitrateBps: cfg.AverageBitrateBps,
		KeyframeInterval:  cfg.KeyframeInterval,
	}); err != nil {
		sink.Error(EncoderSetup, err)
		return nil, fmt.Errorf("h264: backend configure: %w", err)
	}

	e := &Encoder{
		backend:  backend,
		sink:     sink,
		cfg:      cfg,
		input:    make(chan frame.Raw, cfg.QueueDepth),
		forceKey: make(chan struct{}, 1),
		flushReq: make(chan chan struct{}),
		done:     make(chan struct{}),
	}
	e.wg.Add(1)
	go e.loop()
	return e, nil
}

// Push delivers a raw frame. It never blocks: if the input queue is full
// the frame is dropped and counted, matching the Frame-in context contract
// (spec: synchronous, may not block).
func (e *Encoder) Push(raw frame.Raw) {
	if e.invalidated.Load() {
		return
	}
	metrics.FramesIngested.Inc()
	select {
	case e.input <- raw:
	default:
		metrics.FramesDropped.Inc()
	}
}

// ForceKeyframe requests a keyframe at the next input frame.
func (e *Encoder) ForceKeyframe() {
	select {
	case e.forceKey <- struct{}{}:
	default:
	}
}

// Flush drains pending frames and blocks until the sink has observed them.
func (e *Encoder) Flush() {
	if e.invalidated.Load() {
		return
	}
	reply := make(chan struct{})
	select {
	case e.flushReq <- reply:
		<-reply
	case <-e.done:
	}
}

// Close stops the encoder-out goroutine and releases the backend.
func (e *Encoder) Close() error {
	close(e.done)
	e.wg.Wait()
	return e.backend.Close()
}

func (e *Encoder) loop() {
	defer e.wg.Done()
	for {
		select {
		case raw := <-e.input:
			e.drainForceKey()
			e.encodeOne(raw)
			if e.invalidated.Load() {
				return
			}
		case reply := <-e.flushReq:
			e.flushNow()
			close(reply)
			if e.invalidated.Load() {
				return
			}
		case <-e.done:
			return
		}
	}
}

func (e *Encoder) drainForceKey() {
	select {
	case <-e.forceKey:
		e.backend.ForceKeyframe()
	default:
	}
}

func (e *Encoder) flushNow() {
	samples, err := e.backend.Flush()
	if err != nil {
		e.fail(FrameEncode, err)
		return
	}
	for _, s := range samples {
		e.emit(s)
	}
}

func (e *Encoder) encodeOne(raw frame.Raw) {
	samples, err := e.backend.Encode(raw)
	if err != nil {
		e.fail(FrameEncode, err)
		return
	}
	for _, s := range samples {
		e.emit(s)
	}
}

func (e *Encoder) fail(kind ErrorKind, err error) {
	metrics.EncoderErrors.WithLabelValues(kind.String()).Inc()
	e.invalidated.Store(true)
	e.sink.Error(kind, err)
}

// emit splits a backend Sample into parameter sets and slice data,
// patches the SPS, reports a ParameterSets event on generation change, and
// always emits a self-contained EncodedFrame (SPS+PPS prepended ahead of
// the IDR slice on every keyframe, per spec).
func (e *Encoder) emit(s Sample) {
	var sps, pps []byte
	var slices [][]byte
	for _, nal := range s.NALUnits {
		if len(nal) == 0 {
			continue
		}
		switch nal[0] & 0x1F {
		case NALTypeSPS:
			sps = PatchSPS(nal, e.cfg.FrameRate)
		case NALTypePPS:
			pps = nal
		default:
			slices = append(slices, nal)
		}
	}

	if s.Keyframe {
		e.mu.Lock()
		changed := sps != nil && pps != nil && (!bytes.Equal(sps, e.curSPS) || !bytes.Equal(pps, e.curPPS))
		if sps != nil && pps != nil {
			e.curSPS, e.curPPS = sps, pps
		}
		curSPS, curPPS := e.curSPS, e.curPPS
		e.mu.Unlock()

		if changed {
			metrics.ParameterSetChanges.Inc()
			e.sink.ParameterSets(curSPS, curPPS)
		}

		nals := make([][]byte, 0, len(slices)+2)
		nals = append(nals, curSPS, curPPS)
		nals = append(nals, slices...)
		e.emitFrame(nals, true, s.PTS, s.Duration)
		metrics.EncodedFrames.WithLabelValues("keyframe").Inc()
		return
	}

	e.emitFrame(slices, false, s.PTS, s.Duration)
	metrics.EncodedFrames.WithLabelValues("interframe").Inc()
}

func (e *Encoder) emitFrame(nals [][]byte, keyframe bool, pts, dur frame.Rational) {
	e.sink.EncodedFrame(Frame{
		Data:     toAVCC(nals),
		Keyframe: keyframe,
		PTS:      pts,
		Duration: dur,
	})
}

// toAVCC concatenates NAL units with 4-byte big-endian length prefixes.
func toAVCC(nals [][]byte) []byte {
	size := 0
	for _, n := range nals {
		size += 4 + len(n)
	}
	out := make([]byte, 0, size)
	var lenBuf [4]byte
	for _, n := range nals {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(n)))
		out = append(out, lenBuf[:]...)
		out = append(out, n...)
	}
	return out
}
