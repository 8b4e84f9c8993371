// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package randompath

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validPath = regexp.MustCompile(`^[A-Za-z0-9]{8}$`)

func TestGenerateProducesValidShape(t *testing.T) {
	p, err := Generate()
	require.NoError(t, err)
	assert.True(t, validPath.MatchString(p), "got %q", p)
}

func TestGenerateIsNotConstant(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		p, err := Generate()
		require.NoError(t, err)
		seen[p] = true
	}
	assert.Greater(t, len(seen), 1, "50 draws should not collide onto a single value")
}
