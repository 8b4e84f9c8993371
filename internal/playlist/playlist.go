// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playlist maintains the rolling HLS media playlist window and
// renders both the media and master playlist text on every request; per
// spec the text is never cached.
package playlist

import (
	"container/list"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/jessicalh/rptr/internal/metrics"
)

// Segment is one published media segment.
type Segment struct {
	Filename string
	Duration float64 // seconds
	Bytes    []byte
}

// Window is a mutex-guarded rolling deque of segments. Its lock is held
// only long enough to append, evict, or clone state; HTTP writes of
// segment bytes happen outside the lock (spec §5).
type Window struct {
	mu sync.Mutex

	targetSegmentSeconds float64
	windowSize           int
	randomPath           string

	segments         *list.List // of Segment
	mediaSequenceBase uint64
	ended            bool
}

// NewWindow returns an empty Window for the given random path.
func NewWindow(randomPath string, targetSegmentSeconds float64, windowSize int) *Window {
	return &Window{
		targetSegmentSeconds: targetSegmentSeconds,
		windowSize:           windowSize,
		randomPath:           randomPath,
		segments:             list.New(),
	}
}

// Append adds a finalized segment to the window, evicting from the front
// until the window size is respected.
func (w *Window) Append(seg Segment) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.segments.PushBack(seg)
	for w.segments.Len() > w.windowSize {
		w.mediaSequenceBase++
		w.segments.Remove(w.segments.Front())
		metrics.WindowEvictions.Inc()
	}
}

// End marks the stream as finished; subsequent playlist text carries
// EXT-X-ENDLIST.
func (w *Window) End() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ended = true
}

// Has reports whether filename is currently in the window — used by the
// origin server to distinguish a 404 (evicted/unknown) from a hit.
func (w *Window) Has(filename string) (Segment, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for e := w.segments.Front(); e != nil; e = e.Next() {
		seg := e.Value.(Segment)
		if seg.Filename == filename {
			return seg, true
		}
	}
	return Segment{}, false
}

// TargetDuration is ceil(targetSegmentSeconds), the EXT-X-TARGETDURATION
// value; every segment's measured duration must not exceed it.
func (w *Window) TargetDuration() int {
	return int(math.Ceil(w.targetSegmentSeconds))
}

// MediaPlaylist renders the current media playlist text.
func (w *Window) MediaPlaylist() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:6\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", w.TargetDuration())
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", w.mediaSequenceBase)
	b.WriteString("#EXT-X-INDEPENDENT-SEGMENTS\n")
	fmt.Fprintf(&b, "#EXT-X-MAP:URI=\"/stream/%s/init.mp4\"\n", w.randomPath)

	for e := w.segments.Front(); e != nil; e = e.Next() {
		seg := e.Value.(Segment)
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", seg.Duration)
		fmt.Fprintf(&b, "/stream/%s/segments/%s\n", w.randomPath, seg.Filename)
	}

	if w.ended {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	return b.String()
}

// MasterPlaylistParams configures the one EXT-X-STREAM-INF entry in the
// master playlist.
type MasterPlaylistParams struct {
	Codecs     string // e.g. "avc1.640020"
	Bandwidth  int
	Width      int
	Height     int
	FrameRate  float64
}

// MasterPlaylist renders the master playlist text.
func (w *Window) MasterPlaylist(params MasterPlaylistParams) string {
	w.mu.Lock()
	randomPath := w.randomPath
	w.mu.Unlock()

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:6\n")
	fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d,FRAME-RATE=%.3f,CODECS=\"%s\"\n",
		params.Bandwidth, params.Width, params.Height, params.FrameRate, params.Codecs)
	fmt.Fprintf(&b, "/stream/%s/playlist.m3u8\n", randomPath)
	return b.String()
}

// Ended reports whether End has been called.
func (w *Window) Ended() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ended
}

// Filenames returns the current window's segment filenames in order,
// useful for tests asserting the playlist/window consistency invariant.
func (w *Window) Filenames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, w.segments.Len())
	for e := w.segments.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(Segment).Filename)
	}
	return out
}
