package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciq/pipeline-engine/pkg/types"
)

func twoByTwo() *types.Matrix {
	return &types.Matrix{
		Axes: map[string][]any{
			"dep":    {"pinned", "latest"},
			"python": {"3.10", "3.11"},
		},
		AxisOrder: []string{"dep", "python"},
	}
}

func TestExpandTwoByTwo(t *testing.T) {
	legs, err := Expand(twoByTwo())
	require.NoError(t, err)
	require.Len(t, legs, 4)

	names := make([]string, len(legs))
	for i, leg := range legs {
		names[i] = leg.Name()
	}

	// Deterministic order: first axis slowest, last axis fastest.
	assert.Equal(t, []string{
		"dep=pinned, python=3.10",
		"dep=pinned, python=3.11",
		"dep=latest, python=3.10",
		"dep=latest, python=3.11",
	}, names)
}

func TestExpandNilMatrix(t *testing.T) {
	legs, err := Expand(nil)
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Empty(t, legs[0].Values)
	assert.Equal(t, "", legs[0].Name())
}

func TestExpandExclude(t *testing.T) {
	m := twoByTwo()
	m.Exclude = []map[string]any{
		{"dep": "latest", "python": "3.10"},
	}

	legs, err := Expand(m)
	require.NoError(t, err)
	require.Len(t, legs, 3)

	for _, leg := range legs {
		assert.NotEqual(t, "dep=latest, python=3.10", leg.Name())
	}
}

func TestExpandExcludePartialKey(t *testing.T) {
	m := twoByTwo()
	m.Exclude = []map[string]any{
		{"dep": "latest"},
	}

	legs, err := Expand(m)
	require.NoError(t, err)
	// A partial rule removes every leg it matches.
	require.Len(t, legs, 2)
	for _, leg := range legs {
		assert.Equal(t, "pinned", leg.Values["dep"])
	}
}

func TestExpandIncludeNewLeg(t *testing.T) {
	m := twoByTwo()
	m.Include = []map[string]any{
		{"dep": "nightly", "python": "3.12"},
	}

	legs, err := Expand(m)
	require.NoError(t, err)
	require.Len(t, legs, 5)
	assert.Equal(t, "dep=nightly, python=3.12", legs[4].Name())
}

func TestExpandIncludeExtendsMatchingLegs(t *testing.T) {
	m := twoByTwo()
	m.Include = []map[string]any{
		{"dep": "pinned", "experimental": false},
	}

	legs, err := Expand(m)
	require.NoError(t, err)
	require.Len(t, legs, 4)

	for _, leg := range legs {
		if leg.Values["dep"] == "pinned" {
			assert.Equal(t, false, leg.Values["experimental"])
		} else {
			assert.NotContains(t, leg.Values, "experimental")
		}
	}
}

func TestExpandMixedValueTypes(t *testing.T) {
	m := &types.Matrix{
		Axes: map[string][]any{
			"version": {1, 2.5, "tip"},
		},
		AxisOrder: []string{"version"},
	}

	legs, err := Expand(m)
	require.NoError(t, err)
	require.Len(t, legs, 3)
	assert.Equal(t, "version=1", legs[0].Name())
	assert.Equal(t, "version=2.5", legs[1].Name())
	assert.Equal(t, "version=tip", legs[2].Name())
}
