// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package origin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/jessicalh/rptr/internal/playlist"
)

type fixedInitSource struct{ data []byte }

func (f fixedInitSource) InitSegment() []byte { return f.data }

func newTestServer(t *testing.T, randomPath string) (*Server, *playlist.Window) {
	t.Helper()
	window := playlist.NewWindow(randomPath, 1.0, 10)
	s := New(Config{
		RandomPath: randomPath,
		Window:     window,
		InitSrc:    fixedInitSource{data: []byte("init-bytes")},
		MasterParams: playlist.MasterPlaylistParams{
			Codecs: "avc1.640020", Bandwidth: 2_000_000, Width: 1280, Height: 720, FrameRate: 30,
		},
		Logger: zerolog.Nop(),
	})
	return s, window
}

func TestRootRedirectsToViewPath(t *testing.T) {
	s, _ := newTestServer(t, "abc12345")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/view/abc12345", rec.Header().Get("Location"))
}

func TestViewPageServes200ForMatchingPath(t *testing.T) {
	s, _ := newTestServer(t, "abc12345")
	req := httptest.NewRequest(http.MethodGet, "/view/abc12345", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<html")
}

func TestViewPageReturns410ForStalePath(t *testing.T) {
	s, _ := newTestServer(t, "abc12345")
	req := httptest.NewRequest(http.MethodGet, "/view/wrongpath", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestMediaSegmentReturns404WhenNotInWindow(t *testing.T) {
	s, _ := newTestServer(t, "abc12345")
	req := httptest.NewRequest(http.MethodGet, "/stream/abc12345/segments/segment_1.m4s", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMediaSegmentReturns200WhenInWindow(t *testing.T) {
	s, window := newTestServer(t, "abc12345")
	window.Append(playlist.Segment{Filename: "segment_1.m4s", Duration: 1, Bytes: []byte("segbytes")})

	req := httptest.NewRequest(http.MethodGet, "/stream/abc12345/segments/segment_1.m4s", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "segbytes", rec.Body.String())
}

func TestMediaSegmentReturns410ForStalePathEvenIfFilenameMatches(t *testing.T) {
	s, window := newTestServer(t, "abc12345")
	window.Append(playlist.Segment{Filename: "segment_1.m4s", Duration: 1, Bytes: []byte("segbytes")})

	req := httptest.NewRequest(http.MethodGet, "/stream/other/segments/segment_1.m4s", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestMediaPlaylistHasNoCacheAndCorrectContentType(t *testing.T) {
	s, window := newTestServer(t, "abc12345")
	window.Append(playlist.Segment{Filename: "segment_1.m4s", Duration: 1})

	req := httptest.NewRequest(http.MethodGet, "/stream/abc12345/playlist.m3u8", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
}

func TestMasterPlaylistDeclaresCodecs(t *testing.T) {
	s, _ := newTestServer(t, "abc12345")
	req := httptest.NewRequest(http.MethodGet, "/stream/abc12345/master.m3u8", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), `CODECS="avc1.640020"`)
}

func TestInitSegmentServes200(t *testing.T) {
	s, _ := newTestServer(t, "abc12345")
	req := httptest.NewRequest(http.MethodGet, "/stream/abc12345/init.mp4", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "init-bytes", rec.Body.String())
}

func TestOptionsRequestReturnsCORSHeaders(t *testing.T) {
	s, _ := newTestServer(t, "abc12345")
	req := httptest.NewRequest(http.MethodOptions, "/stream/abc12345/master.m3u8", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestForwardLogAccepts200(t *testing.T) {
	s, _ := newTestServer(t, "abc12345")
	req := httptest.NewRequest(http.MethodPost, "/forward-log", strings.NewReader("JS|hello"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeactivateCausesSubsequentRequestsToReturn410(t *testing.T) {
	s, window := newTestServer(t, "abc12345")
	window.Append(playlist.Segment{Filename: "segment_1.m4s", Duration: 1, Bytes: []byte("x")})
	s.Deactivate()

	req := httptest.NewRequest(http.MethodGet, "/stream/abc12345/segments/segment_1.m4s", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestDebugValidateReturns404WhenNoValidatorWired(t *testing.T) {
	s, _ := newTestServer(t, "abc12345")
	req := httptest.NewRequest(http.MethodGet, "/debug/validate/report", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
