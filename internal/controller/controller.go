// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package controller owns the encoder, assembler, muxer, playlist window
// and HTTP server for one stream instance, and wires them together the
// way spec.md §9 requires: typed messages between components, no
// back-pointers, no cyclic ownership.
package controller

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jessicalh/rptr/internal/assembler"
	"github.com/jessicalh/rptr/internal/config"
	"github.com/jessicalh/rptr/internal/fmp4"
	"github.com/jessicalh/rptr/internal/frame"
	"github.com/jessicalh/rptr/internal/h264"
	"github.com/jessicalh/rptr/internal/logsink"
	"github.com/jessicalh/rptr/internal/origin"
	"github.com/jessicalh/rptr/internal/playlist"
	"github.com/jessicalh/rptr/internal/randompath"
	"github.com/jessicalh/rptr/internal/validate"
)

// initSegmentHolder publishes init-segment bytes via an atomic pointer
// swap (spec §5: "produced once per parameter-set generation; published
// by an atomic pointer swap").
type initSegmentHolder struct {
	ptr atomic.Pointer[[]byte]
}

func (h *initSegmentHolder) PublishInit(b []byte) {
	h.ptr.Store(&b)
}

func (h *initSegmentHolder) InitSegment() []byte {
	p := h.ptr.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Controller owns one stream instance end to end.
type Controller struct {
	cfg        config.AppConfig
	log        zerolog.Logger
	randomPath string

	muxer       *fmp4.Muxer
	window      *playlist.Window
	initHolder  *initSegmentHolder
	assembler   *assembler.Assembler
	encoder     *h264.Encoder
	logSink     *logsink.Listener
	originSrv   *origin.Server
	httpServer  *http.Server

	source frame.Source
	unsubscribe func()

	cadenceDone chan struct{}
}

// New wires one stream instance from cfg. backend is the H.264 encoder
// backend (a SoftwareBackend in dev/test, a platform backend in
// production); source is the camera/capture collaborator.
func New(cfg config.AppConfig, backend h264.Backend, source frame.Source, logger zerolog.Logger) (*Controller, error) {
	randomPath := cfg.RandomPath
	if randomPath == "" {
		p, err := randompath.Generate()
		if err != nil {
			return nil, err
		}
		randomPath = p
	}

	muxer := fmp4.New()
	window := playlist.NewWindow(randomPath, cfg.TargetSegmentSeconds, cfg.WindowSize)
	initHolder := &initSegmentHolder{}

	asm := assembler.New(muxer, window, initHolder, cfg.TargetSegmentSeconds, logger)
	asm.SetMinSegmentSeconds(cfg.MinSegmentSeconds)

	track := muxer.AddTrack(fmp4.TrackConfig{
		Kind:      fmp4.Video,
		Width:     uint16(cfg.Width),
		Height:    uint16(cfg.Height),
		Timescale: 90000,
	})
	asm.SetTrack(track)

	encoder, err := h264.NewEncoder(backend, asm, h264.EncoderConfig{
		Width:             cfg.Width,
		Height:            cfg.Height,
		FrameRate:         cfg.FrameRate,
		AverageBitrateBps: cfg.AverageBitrateBps,
		KeyframeInterval:  cfg.KeyframeInterval,
	})
	if err != nil {
		return nil, err
	}

	var sink *logsink.Listener
	if cfg.LogSinkEnabled {
		sink = logsink.New(cfg.LogSinkAddr, logger)
	}

	srv := origin.New(origin.Config{
		RandomPath: randomPath,
		Window:     window,
		InitSrc:    initHolder,
		LogSink:    sink,
		Validator:  validate.Validate{},
		MasterParams: playlist.MasterPlaylistParams{
			Codecs:    "avc1.640020",
			Bandwidth: cfg.AverageBitrateBps,
			Width:     cfg.Width,
			Height:    cfg.Height,
			FrameRate: cfg.FrameRate,
		},
		Logger: logger,
	})

	c := &Controller{
		cfg:        cfg,
		log:        logger.With().Str("component", "controller").Logger(),
		randomPath: randomPath,
		muxer:      muxer,
		window:     window,
		initHolder: initHolder,
		assembler:  asm,
		encoder:    encoder,
		logSink:    sink,
		originSrv:  srv,
		source:     source,
		httpServer: &http.Server{
			Addr:        cfg.ListenAddr,
			Handler:     srv,
			IdleTimeout: cfg.IdleTimeout,
		},
		cadenceDone: make(chan struct{}),
	}
	return c, nil
}

// RandomPath returns the stream's capability path.
func (c *Controller) RandomPath() string {
	return c.randomPath
}

// Run starts the assembler goroutine, the cadence timer, the frame
// source subscription, the log sink listener, and the HTTP server, and
// blocks until ctx is canceled or a component fails fatally.
func (c *Controller) Run(ctx context.Context) error {
	go c.assembler.Run()

	go assembler.CadenceTimer(c.cadenceDone, c.cfg.TargetSegmentSeconds, c.encoder.ForceKeyframe)

	c.unsubscribe = c.source.Subscribe(c.encoder.Push)

	g, gctx := errgroup.WithContext(ctx)

	if c.logSink != nil {
		g.Go(func() error { return c.logSink.Run(gctx) })
	}

	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- c.httpServer.ListenAndServe() }()
		select {
		case <-gctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return c.httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		}
	})

	err := g.Wait()
	c.stopStreaming()
	return err
}

// stoppedPlaylistGracePeriod is how long a fully stopped stream keeps
// serving its final #EXT-X-ENDLIST playlist before the server starts
// returning 410 for it (spec.md §5).
const stoppedPlaylistGracePeriod = 30 * time.Second

// stopStreaming implements the spec's stop_streaming(): unsubscribe from
// the frame source, close the encoder (which flushes and releases the
// backend), and stop the assembler, which flushes a final segment if it
// already spans a keyframe-led run at least MinSegmentSeconds long and
// marks the playlist window ended. The origin server keeps serving the
// final #EXT-X-ENDLIST playlist for stoppedPlaylistGracePeriod before
// switching to 410, per spec.md §5.
func (c *Controller) stopStreaming() {
	close(c.cadenceDone)
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if err := c.encoder.Close(); err != nil {
		c.log.Warn().Err(err).Msg("controller.encoder_close_failed")
	}
	c.assembler.Stop()
	time.AfterFunc(stoppedPlaylistGracePeriod, c.originSrv.Deactivate)
}
