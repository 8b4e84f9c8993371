// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fmp4

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jessicalh/rptr/internal/frame"
)

// topLevelBoxes walks a byte sequence as a sequence of {size, type, payload}
// boxes and fails the test if the sizes don't sum to len(data).
func topLevelBoxes(t *testing.T, data []byte) []string {
	t.Helper()
	var types []string
	offset := 0
	for offset < len(data) {
		require.GreaterOrEqual(t, len(data)-offset, 8, "truncated box header")
		size := binary.BigEndian.Uint32(data[offset : offset+4])
		boxType := string(data[offset+4 : offset+8])
		require.GreaterOrEqual(t, int(size), 8)
		require.LessOrEqual(t, offset+int(size), len(data))
		types = append(types, boxType)
		offset += int(size)
	}
	assert.Equal(t, len(data), offset, "box sizes must sum to the segment length")
	return types
}

func testTrack() TrackConfig {
	return TrackConfig{
		TrackID:   1,
		Kind:      Video,
		Width:     1280,
		Height:    720,
		Timescale: movieTimescale,
		SPS:       []byte{0x67, 100, 0, 31},
		PPS:       []byte{0x68, 0xCE, 0x3C, 0x80},
	}
}

func TestInitSegmentBoxesParse(t *testing.T) {
	m := New()
	track := m.AddTrack(testTrack())
	init := m.BuildInitSegment()

	types := topLevelBoxes(t, init)
	assert.Equal(t, []string{"ftyp", "moov"}, types)
	_ = track
}

func samplesAt(startPTS int64, scale int64, count int, frameDur int64, keyframeEvery int) []EncodedSample {
	samples := make([]EncodedSample, count)
	for i := 0; i < count; i++ {
		samples[i] = EncodedSample{
			Data:     []byte{byte(i), byte(i), byte(i)},
			Keyframe: i%keyframeEvery == 0,
			PTS:      frame.Rational{Value: startPTS + int64(i)*frameDur, Scale: scale},
			Duration: frame.Rational{Value: frameDur, Scale: scale},
		}
	}
	return samples
}

func TestMediaSegmentBoxesParseAndMoofPrecedesMdat(t *testing.T) {
	m := New()
	track := m.AddTrack(testTrack())
	samples := samplesAt(0, 15, 15, 1, 15)

	seg, err := m.BuildMediaSegment(track, samples, 1)
	require.NoError(t, err)

	types := topLevelBoxes(t, seg)
	assert.Equal(t, []string{"moof", "mdat"}, types)
}

func TestMediaSegmentFirstAnchorProducesZeroTfdt(t *testing.T) {
	m := New()
	track := m.AddTrack(testTrack())
	// first frame at PTS 12.345s @ 15fps, 1 keyframe + 14 P-frames
	samples := samplesAt(int64(12.345*15), 15, 15, 1, 15)

	seg, err := m.BuildMediaSegment(track, samples, 1)
	require.NoError(t, err)

	tfdt, sampleCount := parseTfdtAndSampleCount(t, seg)
	assert.Equal(t, uint64(0), tfdt)
	assert.Equal(t, uint32(15), sampleCount)
}

func TestMediaSegmentTfdtMonotoneAcrossSegments(t *testing.T) {
	m := New()
	track := m.AddTrack(testTrack())

	first := samplesAt(0, 15, 15, 1, 15)
	seg1, err := m.BuildMediaSegment(track, first, 1)
	require.NoError(t, err)
	tfdt1, _ := parseTfdtAndSampleCount(t, seg1)

	second := samplesAt(15, 15, 15, 1, 15)
	seg2, err := m.BuildMediaSegment(track, second, 2)
	require.NoError(t, err)
	tfdt2, _ := parseTfdtAndSampleCount(t, seg2)

	assert.GreaterOrEqual(t, tfdt2, tfdt1)
}

func TestTrunDataOffsetPointsAtMdatPayload(t *testing.T) {
	m := New()
	track := m.AddTrack(testTrack())
	samples := samplesAt(0, 15, 15, 1, 15)

	seg, err := m.BuildMediaSegment(track, samples, 1)
	require.NoError(t, err)

	moofSize := binary.BigEndian.Uint32(seg[0:4])
	dataOffset := parseTrunDataOffset(t, seg)
	assert.Equal(t, moofSize+8, dataOffset)
	assert.Equal(t, "mdat", string(seg[moofSize+4:moofSize+8]))
}

func parseTrunDataOffset(t *testing.T, seg []byte) uint32 {
	t.Helper()
	moofSize := binary.BigEndian.Uint32(seg[0:4])
	moof := seg[8:moofSize]
	offset := 0
	for offset < len(moof) {
		size := int(binary.BigEndian.Uint32(moof[offset : offset+4]))
		boxType := string(moof[offset+4 : offset+8])
		if boxType == "traf" {
			traf := moof[offset+8 : offset+size]
			trafOffset := 0
			for trafOffset < len(traf) {
				tSize := int(binary.BigEndian.Uint32(traf[trafOffset : trafOffset+4]))
				tType := string(traf[trafOffset+4 : trafOffset+8])
				if tType == "trun" {
					payload := traf[trafOffset+8 : trafOffset+tSize]
					return binary.BigEndian.Uint32(payload[8:12])
				}
				trafOffset += tSize
			}
		}
		offset += size
	}
	t.Fatal("trun not found")
	return 0
}

func TestBuildMediaSegmentRejectsEmptySampleList(t *testing.T) {
	m := New()
	track := m.AddTrack(testTrack())
	_, err := m.BuildMediaSegment(track, nil, 1)
	assert.ErrorIs(t, err, ErrEmptySampleList)
}

func TestBuildMediaSegmentRejectsNonMonotonePTS(t *testing.T) {
	m := New()
	track := m.AddTrack(testTrack())
	samples := []EncodedSample{
		{Data: []byte{1}, PTS: frame.Rational{Value: 5, Scale: 15}, Duration: frame.Rational{Value: 1, Scale: 15}},
		{Data: []byte{2}, PTS: frame.Rational{Value: 2, Scale: 15}, Duration: frame.Rational{Value: 1, Scale: 15}},
	}
	_, err := m.BuildMediaSegment(track, samples, 1)
	assert.ErrorIs(t, err, ErrNonMonotonePTS)
}

func TestResetClearsAnchor(t *testing.T) {
	m := New()
	track := m.AddTrack(testTrack())

	first := samplesAt(100, 15, 2, 1, 15)
	_, err := m.BuildMediaSegment(track, first, 1)
	require.NoError(t, err)

	m.Reset()

	second := samplesAt(500, 15, 2, 1, 15)
	seg, err := m.BuildMediaSegment(track, second, 1)
	require.NoError(t, err)
	tfdt, _ := parseTfdtAndSampleCount(t, seg)
	assert.Equal(t, uint64(0), tfdt, "a reset anchor makes the next segment's first sample the new zero point")
}

// parseTfdtAndSampleCount walks moof/traf/tfdt and moof/traf/trun by
// scanning for their box headers; sufficient for a single-track segment
// with no nested nesting ambiguity.
func parseTfdtAndSampleCount(t *testing.T, seg []byte) (uint64, uint32) {
	t.Helper()
	moofSize := binary.BigEndian.Uint32(seg[0:4])
	moof := seg[8:moofSize]

	offset := 0
	var tfdt uint64
	var sampleCount uint32
	for offset < len(moof) {
		size := int(binary.BigEndian.Uint32(moof[offset : offset+4]))
		boxType := string(moof[offset+4 : offset+8])
		if boxType == "traf" {
			traf := moof[offset+8 : offset+size]
			tfdt, sampleCount = parseTrafFields(t, traf)
		}
		offset += size
	}
	return tfdt, sampleCount
}

func parseTrafFields(t *testing.T, traf []byte) (uint64, uint32) {
	t.Helper()
	offset := 0
	var tfdt uint64
	var sampleCount uint32
	for offset < len(traf) {
		size := int(binary.BigEndian.Uint32(traf[offset : offset+4]))
		boxType := string(traf[offset+4 : offset+8])
		payload := traf[offset+8 : offset+size]
		switch boxType {
		case "tfdt":
			tfdt = binary.BigEndian.Uint64(payload[4:12])
		case "trun":
			sampleCount = binary.BigEndian.Uint32(payload[4:8])
		}
		offset += size
	}
	return tfdt, sampleCount
}
