// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package assembler

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jessicalh/rptr/internal/fmp4"
	"github.com/jessicalh/rptr/internal/frame"
	"github.com/jessicalh/rptr/internal/h264"
	"github.com/jessicalh/rptr/internal/playlist"
)

type recordingInitPublisher struct {
	count int
	last  []byte
}

func (p *recordingInitPublisher) PublishInit(b []byte) {
	p.count++
	p.last = b
}

func pts(seconds float64) frame.Rational {
	return frame.Rational{Value: int64(seconds * 90000), Scale: 90000}
}

func newTestAssembler(t *testing.T, targetSeconds float64) (*Assembler, *playlist.Window, *recordingInitPublisher) {
	t.Helper()
	muxer := fmp4.New()
	window := playlist.NewWindow("abc12345", targetSeconds, 10)
	initPub := &recordingInitPublisher{}
	a := New(muxer, window, initPub, targetSeconds, zerolog.Nop())
	a.SetTrack(muxer.AddTrack(fmp4.TrackConfig{
		Kind:      fmp4.Video,
		Width:     1280,
		Height:    720,
		Timescale: 90000,
		SPS:       []byte{0x67, 0x42, 0x00, 0x1f},
		PPS:       []byte{0x68, 0xce, 0x3c, 0x80},
	}))
	return a, window, initPub
}

func frameAt(seconds float64, keyframe bool, dur float64) h264.Frame {
	return h264.Frame{
		Data:     []byte{0, 0, 0, 4, 0x65, 0xAA, 0xBB, 0xCC},
		Keyframe: keyframe,
		PTS:      pts(seconds),
		Duration: pts(dur),
	}
}

func TestAssemblerCutsSegmentOnKeyframeAfterMinSpan(t *testing.T) {
	a, window, _ := newTestAssembler(t, 1.0)
	go a.Run()
	defer a.Stop()

	a.EncodedFrame(frameAt(0.0, true, 1.0/30))
	a.EncodedFrame(frameAt(1.0/30, false, 1.0/30))
	a.EncodedFrame(frameAt(0.6, true, 1.0/30)) // past MinSegmentSeconds (0.5s)

	waitForSegments(t, window, 1)
	assert.Equal(t, []string{"segment_0.m4s"}, window.Filenames())
}

func TestAssemblerDoesNotCutBeforeMinSegmentSeconds(t *testing.T) {
	a, window, _ := newTestAssembler(t, 1.0)
	go a.Run()
	defer a.Stop()

	a.EncodedFrame(frameAt(0.0, true, 1.0/30))
	a.EncodedFrame(frameAt(0.1, true, 1.0/30)) // too soon to cut

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, window.Filenames())
}

func TestAssemblerSequenceNumbersAdvance(t *testing.T) {
	a, window, _ := newTestAssembler(t, 1.0)
	go a.Run()
	defer a.Stop()

	a.EncodedFrame(frameAt(0.0, true, 1.0/30))
	a.EncodedFrame(frameAt(0.6, true, 1.0/30))
	a.EncodedFrame(frameAt(1.3, true, 1.0/30))

	waitForSegments(t, window, 2)
	assert.Equal(t, []string{"segment_0.m4s", "segment_1.m4s"}, window.Filenames())
}

func TestAssemblerParameterSetsFlushesAndRepublishesInit(t *testing.T) {
	a, window, initPub := newTestAssembler(t, 1.0)
	go a.Run()
	defer a.Stop()

	a.EncodedFrame(frameAt(0.0, true, 1.0/30))
	a.EncodedFrame(frameAt(0.6, true, 1.0/30))
	waitForSegments(t, window, 1)

	newSPS := []byte{0x67, 0x42, 0x00, 0x20}
	newPPS := []byte{0x68, 0xce, 0x3c, 0x90}
	a.ParameterSets(newSPS, newPPS)

	require.Eventually(t, func() bool { return initPub.count == 1 }, time.Second, 5*time.Millisecond)
	assert.NotEmpty(t, initPub.last)
	assert.True(t, bytes.Contains(initPub.last, newSPS), "published init segment's avcC must carry the live SPS")
	assert.True(t, bytes.Contains(initPub.last, newPPS), "published init segment's avcC must carry the live PPS")
}

func TestAssemblerStopFlushesTrailingSegmentIfLongEnough(t *testing.T) {
	a, window, _ := newTestAssembler(t, 1.0)
	go a.Run()

	a.EncodedFrame(frameAt(0.0, true, 1.0/30))
	a.EncodedFrame(frameAt(0.6, false, 1.0/30))
	time.Sleep(20 * time.Millisecond)

	a.Stop()
	assert.Equal(t, []string{"segment_0.m4s"}, window.Filenames())
	assert.True(t, window.Ended())
}

func waitForSegments(t *testing.T, w *playlist.Window, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(w.Filenames()) >= n }, time.Second, 5*time.Millisecond)
}
