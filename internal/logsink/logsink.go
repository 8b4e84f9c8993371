// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package logsink runs the UDP listener that client players (browser JS,
// iOS, and ad-hoc debug commands) forward their own log lines to, so a
// single operator log stream carries both server and client-side events.
package logsink

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jessicalh/rptr/internal/metrics"
)

// maxMessagesPerSecond caps how many client log lines are forwarded to the
// structured logger per second; a misbehaving or malicious client
// forwarding a tight loop of messages must not be able to flood the
// operator's log stream.
const maxMessagesPerSecond = 200

// MaxDatagramBytes truncates any single forwarded line; clients are
// untrusted input.
const MaxDatagramBytes = 4000

// DefaultAddr is the UDP listen address when configuration leaves it
// unset.
const DefaultAddr = ":9999"

// Sink is implemented by Listener; the server-side POST /forward-log
// handler calls Forward on the same Listener, so both transports feed the
// same logging path.
type Sink interface {
	Forward(line string)
}

// Listener receives newline-delimited, pipe-tagged log datagrams
// ("JS|message", "iOS|message", "CMD|NEW_SESSION") and re-emits them
// through the structured logger, one entry per line with the source tag
// as a field.
type Listener struct {
	addr    string
	log     zerolog.Logger
	limiter *rate.Limiter

	mu   sync.Mutex
	conn *net.UDPConn
}

// New returns a Listener bound to addr (not yet listening).
func New(addr string, logger zerolog.Logger) *Listener {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Listener{
		addr:    addr,
		log:     logger.With().Str("component", "logsink").Logger(),
		limiter: rate.NewLimiter(rate.Limit(maxMessagesPerSecond), maxMessagesPerSecond),
	}
}

// Run opens the UDP socket and forwards datagrams until ctx is canceled or
// a non-transient read error occurs.
func (l *Listener) Run(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", l.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, MaxDatagramBytes+1)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			l.log.Warn().Err(err).Msg("logsink.read_failed")
			continue
		}
		l.Forward(string(buf[:n]))
	}
}

// Forward parses one line of the form "<SOURCE>|<message>" and logs it
// with the source as a field. Unparseable lines are logged verbatim under
// source "unknown" rather than dropped.
func (l *Listener) Forward(line string) {
	if !l.limiter.Allow() {
		return
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) > MaxDatagramBytes {
		line = line[:MaxDatagramBytes]
	}

	source, message, ok := strings.Cut(line, "|")
	if !ok {
		source, message = "unknown", line
	}

	metrics.LogSinkMessages.WithLabelValues(source).Inc()
	l.log.Info().Str("source", source).Str("event", "client.log").Msg(message)
}

// Close closes the underlying socket if Run has been called.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}
