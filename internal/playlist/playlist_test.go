// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package playlist

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetDurationCeils(t *testing.T) {
	w := NewWindow("abc12345", 1.0, 10)
	assert.Equal(t, 1, w.TargetDuration())

	w2 := NewWindow("abc12345", 1.5, 10)
	assert.Equal(t, 2, w2.TargetDuration())
}

func TestAppendEvictsAndAdvancesSequence(t *testing.T) {
	w := NewWindow("abc12345", 1.0, 2)
	w.Append(Segment{Filename: "seg1.m4s", Duration: 1})
	w.Append(Segment{Filename: "seg2.m4s", Duration: 1})
	w.Append(Segment{Filename: "seg3.m4s", Duration: 1})

	assert.Equal(t, []string{"seg2.m4s", "seg3.m4s"}, w.Filenames())

	text := w.MediaPlaylist()
	assert.Contains(t, text, "#EXT-X-MEDIA-SEQUENCE:1\n")
}

func TestEvictedSegmentIsNotFound(t *testing.T) {
	w := NewWindow("abc12345", 1.0, 1)
	w.Append(Segment{Filename: "seg1.m4s", Duration: 1})
	w.Append(Segment{Filename: "seg2.m4s", Duration: 1})

	_, ok := w.Has("seg1.m4s")
	assert.False(t, ok)
	_, ok = w.Has("seg2.m4s")
	assert.True(t, ok)
}

func TestMediaPlaylistURIsMatchWindow(t *testing.T) {
	w := NewWindow("pathXYZ9", 1.0, 10)
	w.Append(Segment{Filename: "seg1.m4s", Duration: 0.967})
	w.Append(Segment{Filename: "seg2.m4s", Duration: 1.033})

	text := w.MediaPlaylist()
	for _, name := range w.Filenames() {
		assert.Contains(t, text, "/stream/pathXYZ9/segments/"+name)
	}
	assert.True(t, strings.HasPrefix(text, "#EXTM3U\n"))
	assert.NotContains(t, text, "#EXT-X-ENDLIST")
}

func TestMediaPlaylistEndlistAfterEnd(t *testing.T) {
	w := NewWindow("abc12345", 1.0, 10)
	w.Append(Segment{Filename: "seg1.m4s", Duration: 1})
	w.End()
	assert.Contains(t, w.MediaPlaylist(), "#EXT-X-ENDLIST")
}

func TestMediaPlaylistExactTextForTwoSegments(t *testing.T) {
	w := NewWindow("pathXYZ9", 1.0, 10)
	w.Append(Segment{Filename: "seg1.m4s", Duration: 1})
	w.Append(Segment{Filename: "seg2.m4s", Duration: 1})

	want := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-VERSION:6",
		"#EXT-X-TARGETDURATION:1",
		"#EXT-X-MEDIA-SEQUENCE:0",
		"#EXT-X-INDEPENDENT-SEGMENTS",
		`#EXT-X-MAP:URI="/stream/pathXYZ9/init.mp4"`,
		"#EXTINF:1.000,",
		"/stream/pathXYZ9/segments/seg1.m4s",
		"#EXTINF:1.000,",
		"/stream/pathXYZ9/segments/seg2.m4s",
		"",
	}, "\n")

	if diff := cmp.Diff(want, w.MediaPlaylist()); diff != "" {
		t.Errorf("media playlist text mismatch (-want +got):\n%s", diff)
	}
}

func TestMasterPlaylistDeclaresCodecsAndStreamInf(t *testing.T) {
	w := NewWindow("abc12345", 1.0, 10)
	text := w.MasterPlaylist(MasterPlaylistParams{
		Codecs: "avc1.640020", Bandwidth: 2_000_000, Width: 1280, Height: 720, FrameRate: 30,
	})
	require.Contains(t, text, `CODECS="avc1.640020"`)
	assert.Contains(t, text, "RESOLUTION=1280x720")
	assert.Contains(t, text, "/stream/abc12345/playlist.m3u8")
}
