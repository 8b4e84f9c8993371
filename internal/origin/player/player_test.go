// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderSubstitutesAllPlaceholders(t *testing.T) {
	html := Render(Params{
		AppTitle:      "rptr",
		PageTitle:     "Live",
		StreamURL:     "/stream/abc12345/master.m3u8",
		ServerPort:    "example:8080",
		InitialStatus: "connecting",
	})
	assert.Contains(t, html, "rptr")
	assert.Contains(t, html, "/stream/abc12345/master.m3u8")
	assert.Contains(t, html, "example:8080")
	assert.Contains(t, html, "connecting")
	assert.NotContains(t, html, "{{")
}

func TestAssetServesCSSWithContentType(t *testing.T) {
	data, ct, ok := Asset("/css/player.css")
	assert.True(t, ok)
	assert.Equal(t, "text/css; charset=utf-8", ct)
	assert.True(t, strings.Contains(string(data), "body"))
}

func TestAssetMissingReturnsNotOK(t *testing.T) {
	_, _, ok := Asset("/css/does-not-exist.css")
	assert.False(t, ok)
}

func TestAssetRejectsPathTraversal(t *testing.T) {
	_, _, ok := Asset("/css/../../../../etc/passwd")
	assert.False(t, ok)
}
