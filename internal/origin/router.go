// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package origin implements the HTTP origin server: the player page, the
// master/media HLS playlists, init and media segment delivery, the debug
// validation surface, and client log forwarding.
package origin

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	internallog "github.com/jessicalh/rptr/internal/log"
	"github.com/jessicalh/rptr/internal/logsink"
	"github.com/jessicalh/rptr/internal/metrics"
	"github.com/jessicalh/rptr/internal/origin/player"
	"github.com/jessicalh/rptr/internal/playlist"
)

// InitSegmentSource exposes the atomically-published init segment bytes,
// swapped on every parameter-set generation change (spec §5).
type InitSegmentSource interface {
	InitSegment() []byte
}

// Validator re-checks the currently published init and most recent media
// segment and renders a plain-text diagnostic report. Implemented by
// internal/validate; kept as an interface here so the HTTP layer does not
// import the box parser. The /debug/validate route is always registered
// and answers 404 when Config.Validator is nil.
type Validator interface {
	Validate(initSegment []byte, latestMediaSegment []byte) string
}

// Server wires the rptr HTTP surface onto a chi router. The random path is
// immutable after construction (spec §5); rotating it requires a new
// Server.
type Server struct {
	router *chi.Mux

	randomPath string
	window     *playlist.Window
	initSrc    InitSegmentSource
	logSink    *logsink.Listener
	validator  Validator
	log        zerolog.Logger

	masterParams playlist.MasterPlaylistParams

	active atomic.Bool
}

// Config configures a new Server.
type Config struct {
	RandomPath   string
	Window       *playlist.Window
	InitSrc      InitSegmentSource
	LogSink      *logsink.Listener
	Validator    Validator
	MasterParams playlist.MasterPlaylistParams
	Logger       zerolog.Logger
}

// New builds a Server with routes registered and marks it active. Call
// Deactivate when the random path is superseded so stale requests get 410
// instead of a stale 200.
func New(cfg Config) *Server {
	s := &Server{
		randomPath:   cfg.RandomPath,
		window:       cfg.Window,
		initSrc:      cfg.InitSrc,
		logSink:      cfg.LogSink,
		validator:    cfg.Validator,
		log:          cfg.Logger.With().Str("component", "origin").Logger(),
		masterParams: cfg.MasterParams,
	}
	s.active.Store(true)
	s.router = s.buildRouter()
	return s
}

// Deactivate marks the server's random path as stale; subsequent requests
// against it return 410 regardless of window state (spec §4.H, S5).
func (s *Server) Deactivate() {
	s.active.Store(false)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(corsHeaders)
	r.Use(internallog.Middleware())
	r.Use(httprate.LimitByIP(200, time.Minute))

	r.Get("/", s.handleRootRedirect)
	r.Get("/view", s.handleRootRedirect)
	r.Get("/view/{randomPath}", s.handleViewPage)

	r.Get("/css/*", s.handleStaticAsset)
	r.Get("/js/*", s.handleStaticAsset)
	r.Get("/images/*", s.handleStaticAsset)

	r.Get("/stream/{randomPath}/master.m3u8", s.handleMasterPlaylist)
	r.Get("/stream/{randomPath}/playlist.m3u8", s.handleMediaPlaylist)
	r.Get("/stream/{randomPath}/init.mp4", s.handleInitSegment)
	r.Get("/stream/{randomPath}/segments/{name}", s.handleMediaSegment)

	r.Get("/debug/validate/*", s.handleDebugValidate)
	r.Post("/forward-log", s.handleForwardLog)

	return r
}

func corsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// pathMatches reports whether requestPath equals the server's active
// random path; returns false unconditionally once Deactivate has run.
func (s *Server) pathMatches(requestPath string) bool {
	return s.active.Load() && requestPath == s.randomPath
}

func (s *Server) handleRootRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/view/"+s.randomPath, http.StatusFound)
	metrics.HTTPRequestsTotal.WithLabelValues("root_redirect", "302").Inc()
}

func (s *Server) handleViewPage(w http.ResponseWriter, r *http.Request) {
	requested := chi.URLParam(r, "randomPath")
	if !s.pathMatches(requested) {
		s.writePathMismatch(w, "view")
		return
	}
	html := player.Render(player.Params{
		AppTitle:      "rptr",
		PageTitle:     "Live",
		StreamURL:     "/stream/" + s.randomPath + "/master.m3u8",
		ServerPort:    r.Host,
		InitialStatus: "connecting",
	})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
	metrics.HTTPRequestsTotal.WithLabelValues("view", "200").Inc()
}

func (s *Server) handleStaticAsset(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := player.Asset(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		metrics.HTTPRequestsTotal.WithLabelValues("static", "404").Inc()
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	metrics.HTTPRequestsTotal.WithLabelValues("static", "200").Inc()
}

func (s *Server) handleMasterPlaylist(w http.ResponseWriter, r *http.Request) {
	requested := chi.URLParam(r, "randomPath")
	if !s.pathMatches(requested) {
		s.writePathMismatch(w, "master_playlist")
		return
	}
	s.writePlaylistText(w, s.window.MasterPlaylist(s.masterParams))
	metrics.HTTPRequestsTotal.WithLabelValues("master_playlist", "200").Inc()
}

func (s *Server) handleMediaPlaylist(w http.ResponseWriter, r *http.Request) {
	requested := chi.URLParam(r, "randomPath")
	if !s.pathMatches(requested) {
		s.writePathMismatch(w, "media_playlist")
		return
	}
	s.writePlaylistText(w, s.window.MediaPlaylist())
	metrics.HTTPRequestsTotal.WithLabelValues("media_playlist", "200").Inc()
}

func (s *Server) handleInitSegment(w http.ResponseWriter, r *http.Request) {
	requested := chi.URLParam(r, "randomPath")
	if !s.pathMatches(requested) {
		s.writePathMismatch(w, "init_segment")
		return
	}
	data := s.initSrc.InitSegment()
	if data == nil {
		http.NotFound(w, r)
		metrics.HTTPRequestsTotal.WithLabelValues("init_segment", "404").Inc()
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	metrics.HTTPRequestsTotal.WithLabelValues("init_segment", "200").Inc()
}

func (s *Server) handleMediaSegment(w http.ResponseWriter, r *http.Request) {
	requested := chi.URLParam(r, "randomPath")
	if !s.pathMatches(requested) {
		s.writePathMismatch(w, "media_segment")
		return
	}
	name := chi.URLParam(r, "name")
	seg, ok := s.window.Has(name)
	if !ok {
		http.NotFound(w, r)
		metrics.HTTPRequestsTotal.WithLabelValues("media_segment", "404").Inc()
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(seg.Bytes)
	metrics.HTTPRequestsTotal.WithLabelValues("media_segment", "200").Inc()
}

// handleDebugValidate re-parses the currently published init segment and
// most recent media segment through the validator and reports the result
// as plain text. The route has no build tag; it answers 404 when no
// Validator is wired.
func (s *Server) handleDebugValidate(w http.ResponseWriter, r *http.Request) {
	if s.validator == nil {
		http.NotFound(w, r)
		metrics.HTTPRequestsTotal.WithLabelValues("debug_validate", "404").Inc()
		return
	}
	var latest []byte
	if names := s.window.Filenames(); len(names) > 0 {
		if seg, ok := s.window.Has(names[len(names)-1]); ok {
			latest = seg.Bytes
		}
	}
	report := s.validator.Validate(s.initSrc.InitSegment(), latest)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report))
	metrics.HTTPRequestsTotal.WithLabelValues("debug_validate", "200").Inc()
}

func (s *Server) handleForwardLog(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	buf := make([]byte, logsink.MaxDatagramBytes)
	n, _ := r.Body.Read(buf)
	if s.logSink != nil && n > 0 {
		s.logSink.Forward(string(buf[:n]))
	}
	w.WriteHeader(http.StatusOK)
	metrics.HTTPRequestsTotal.WithLabelValues("forward_log", "200").Inc()
}

func (s *Server) writePlaylistText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

func (s *Server) writePathMismatch(w http.ResponseWriter, route string) {
	http.Error(w, "path mismatch: reload to obtain a new stream URL", http.StatusGone)
	metrics.PathMismatchTotal.Inc()
	metrics.HTTPRequestsTotal.WithLabelValues(route, "410").Inc()
}
