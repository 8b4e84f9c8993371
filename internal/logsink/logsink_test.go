// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package logsink

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestListener(buf *bytes.Buffer) *Listener {
	logger := zerolog.New(buf)
	return New("", logger)
}

func TestForwardParsesSourceTag(t *testing.T) {
	var buf bytes.Buffer
	l := newTestListener(&buf)
	l.Forward("JS|player started")

	out := buf.String()
	assert.Contains(t, out, `"source":"JS"`)
	assert.Contains(t, out, "player started")
}

func TestForwardHandlesUntaggedLine(t *testing.T) {
	var buf bytes.Buffer
	l := newTestListener(&buf)
	l.Forward("no pipe here")

	assert.Contains(t, buf.String(), `"source":"unknown"`)
}

func TestForwardTruncatesOversizedLines(t *testing.T) {
	var buf bytes.Buffer
	l := newTestListener(&buf)
	huge := "CMD|" + strings.Repeat("x", MaxDatagramBytes+500)
	l.Forward(huge)

	assert.LessOrEqual(t, buf.Len(), MaxDatagramBytes+200)
}

func TestForwardStripsTrailingNewline(t *testing.T) {
	var buf bytes.Buffer
	l := newTestListener(&buf)
	l.Forward("iOS|hello\r\n")

	assert.Contains(t, buf.String(), `"hello"`)
}
