// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package randompath generates the unguessable URL segment every stream is
// published under. Knowledge of the path is the only access control the
// origin server performs.
package randompath

import (
	"crypto/rand"
	"fmt"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Length is the number of characters in a generated path.
const Length = 8

// Generate returns an 8-character alphanumeric token drawn from a
// cryptographically strong source.
func Generate() (string, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("randompath: %w", err)
	}
	out := make([]byte, Length)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}

// MustGenerate panics on failure; intended for startup paths where a
// broken entropy source is already unrecoverable.
func MustGenerate() string {
	p, err := Generate()
	if err != nil {
		panic(err)
	}
	return p
}
