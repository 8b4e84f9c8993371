// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fmp4

import (
	"errors"
	"sync"

	"github.com/jessicalh/rptr/internal/frame"
)

// MediaKind is the track-type abstraction the muxer carries; only Video is
// exercised in this pipeline (audio is out of scope, but the shape is kept
// so a future audio track can be added without reshaping the muxer).
type MediaKind int

const (
	Video MediaKind = iota
	Audio
)

// TrackConfig describes one track added to the muxer before the first init
// segment is produced. The muxer holds these by value.
type TrackConfig struct {
	TrackID   uint32
	Kind      MediaKind
	Width     uint16
	Height    uint16
	Timescale uint32
	SPS       []byte
	PPS       []byte

	SampleRate uint32
	Channels   uint16
	AudioConfig []byte
}

// EncodedSample is one muxer input sample: an AVCC payload plus timing.
type EncodedSample struct {
	Data     []byte
	Keyframe bool
	PTS      frame.Rational
	Duration frame.Rational
}

// ErrEmptySampleList is returned by BuildMediaSegment when given no samples.
var ErrEmptySampleList = errors.New("fmp4: empty sample list")

// ErrNonMonotonePTS is returned when sample PTS values are not
// non-decreasing; B-frames are disabled so decode order equals
// presentation order and this can never legitimately happen.
var ErrNonMonotonePTS = errors.New("fmp4: non-monotone sample timestamps")

const movieTimescale = 90000

// Muxer holds track configuration, the next track ID, and the stream start
// anchor, and emits init and media segments per track.
type Muxer struct {
	mu     sync.Mutex
	tracks []TrackConfig
	nextID uint32

	haveAnchor bool
	anchor     int64 // stream start PTS, in movieTimescale units
}

// New returns a Muxer with no tracks.
func New() *Muxer {
	return &Muxer{nextID: 1}
}

// AddTrack registers a track and assigns it a track ID if unset.
func (m *Muxer) AddTrack(cfg TrackConfig) TrackConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.TrackID == 0 {
		cfg.TrackID = m.nextID
	}
	if cfg.TrackID >= m.nextID {
		m.nextID = cfg.TrackID + 1
	}
	m.tracks = append(m.tracks, cfg)
	return cfg
}

// SetParameterSets updates the registered track's SPS/PPS in place so the
// next BuildInitSegment call emits an avcC box carrying the live parameter
// sets instead of whatever was passed to AddTrack. Returns false if no
// track with the given ID is registered.
func (m *Muxer) SetParameterSets(trackID uint32, sps, pps []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tracks {
		if m.tracks[i].TrackID == trackID {
			m.tracks[i].SPS = sps
			m.tracks[i].PPS = pps
			return true
		}
	}
	return false
}

// Reset clears the stream start anchor; the next BuildMediaSegment call
// establishes a new one. Used when a stream restarts or parameter sets
// change and a fresh init segment is produced.
func (m *Muxer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.haveAnchor = false
	m.anchor = 0
}

// BuildInitSegment produces ftyp || moov for the registered tracks.
func (m *Muxer) BuildInitSegment() []byte {
	m.mu.Lock()
	tracks := append([]TrackConfig{}, m.tracks...)
	m.mu.Unlock()

	out := make([]byte, 0, 1024)
	out = append(out, buildFtyp()...)
	out = append(out, buildMoov(tracks)...)
	return out
}

// BuildMediaSegment produces moof || mdat for one track's samples. On the
// first call for a stream it establishes the stream start anchor from the
// first sample's PTS. Returns ErrEmptySampleList or ErrNonMonotonePTS
// without mutating muxer state; callers drop the segment and count the
// failure (MuxBuild).
func (m *Muxer) BuildMediaSegment(track TrackConfig, samples []EncodedSample, sequenceNumber uint32) ([]byte, error) {
	if len(samples) == 0 {
		return nil, ErrEmptySampleList
	}
	for i := 1; i < len(samples); i++ {
		if toTimescale(samples[i].PTS, movieTimescale) < toTimescale(samples[i-1].PTS, movieTimescale) {
			return nil, ErrNonMonotonePTS
		}
	}

	m.mu.Lock()
	if !m.haveAnchor {
		m.anchor = toTimescale(samples[0].PTS, movieTimescale)
		m.haveAnchor = true
	}
	anchor := m.anchor
	m.mu.Unlock()

	baseMediaDecodeTime := toTimescale(samples[0].PTS, movieTimescale) - anchor
	if baseMediaDecodeTime < 0 {
		baseMediaDecodeTime = 0
	}

	moof, mdatPayloadLen := buildMoof(track.TrackID, sequenceNumber, uint64(baseMediaDecodeTime), samples)
	mdat := Box("mdat", concatSampleData(samples, mdatPayloadLen))

	out := make([]byte, 0, len(moof)+len(mdat))
	out = append(out, moof...)
	out = append(out, mdat...)
	return out, nil
}

func concatSampleData(samples []EncodedSample, total int) []byte {
	out := make([]byte, 0, total)
	for _, s := range samples {
		out = append(out, s.Data...)
	}
	return out
}

// toTimescale converts a rational timestamp to integer ticks at the given
// timescale, rounding toward zero.
func toTimescale(r frame.Rational, timescale int64) int64 {
	scale := r.Scale
	if scale == 0 {
		scale = 1
	}
	return r.Value * timescale / scale
}
