package registry

import (
	"testing"

	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/stretchr/testify/require"
)

func TestSchemaLookup(t *testing.T) {
	r := New()
	require.Nil(t, r.Schema("no-such-model"))

	s := r.Schema("sd-turbo-v2")
	require.NotNil(t, s)
	require.True(t, s.SupportsMode(consts.ModeImages))
	require.False(t, s.SupportsMode(consts.ModeVideo))

	// second lookup is served from cache
	require.Equal(t, s, r.Schema("sd-turbo-v2"))
}

func TestEstimateCost(t *testing.T) {
	r := New()
	s := r.Schema("sd-turbo-v2")
	require.InDelta(t, 0.04, r.EstimateCost(s, nil), 1e-9)
	require.InDelta(t, 0.12, r.EstimateCost(s, map[string]any{"n": 3}), 1e-9)
	require.InDelta(t, 0.04, r.EstimateCost(s, map[string]any{"n": "three"}), 1e-9)
}

func TestRequiredFor(t *testing.T) {
	r := New()
	s := r.Schema("motion-1")
	require.True(t, s.Params["duration_s"].RequiredFor(consts.ModeVideo))
	require.False(t, s.Params["fps"].RequiredFor(consts.ModeVideo))
}
