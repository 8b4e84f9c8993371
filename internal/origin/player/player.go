// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package player embeds the static HTML/CSS/JS player bundle served under
// /view, /css, /js and /images, and renders the HTML template's
// placeholders on every request (spec.md §6).
package player

import (
	"embed"
	"path"
	"strings"
)

//go:embed assets/index.html
var indexTemplate string

//go:embed assets/css assets/js assets/images
var staticAssets embed.FS

// Params are the per-request template substitutions.
type Params struct {
	AppTitle      string
	PageTitle     string
	StreamURL     string
	ServerPort    string
	InitialStatus string
}

var replacer = func(p Params) *strings.Replacer {
	return strings.NewReplacer(
		"{{APP_TITLE}}", p.AppTitle,
		"{{PAGE_TITLE}}", p.PageTitle,
		"{{STREAM_URL}}", p.StreamURL,
		"{{SERVER_PORT}}", p.ServerPort,
		"{{INITIAL_STATUS}}", p.InitialStatus,
	)
}

// Render substitutes params into the player HTML template.
func Render(p Params) string {
	return replacer(p).Replace(indexTemplate)
}

var contentTypeByExt = map[string]string{
	".css": "text/css; charset=utf-8",
	".js":  "application/javascript; charset=utf-8",
	".png": "image/png",
	".jpg": "image/jpeg",
	".svg": "image/svg+xml",
	".ico": "image/x-icon",
}

// Asset returns the bytes and content type for a /css, /js, or /images
// request path, or ok=false if no such asset is embedded.
func Asset(urlPath string) (data []byte, contentType string, ok bool) {
	clean := strings.TrimPrefix(path.Clean(urlPath), "/")
	b, err := staticAssets.ReadFile("assets/" + clean)
	if err != nil {
		return nil, "", false
	}
	ct, known := contentTypeByExt[strings.ToLower(path.Ext(clean))]
	if !known {
		ct = "application/octet-stream"
	}
	return b, ct, true
}
