package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	h, w, err := parseSize("224x192")
	require.NoError(t, err)
	assert.Equal(t, 224, h)
	assert.Equal(t, 192, w)

	h, w, err = parseSize("")
	require.NoError(t, err)
	assert.Zero(t, h)
	assert.Zero(t, w)

	for _, bad := range []string{"224", "0x10", "ax1", "10x-1"} {
		_, _, err := parseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseFloats(t *testing.T) {
	got, err := parseFloats("0.485, 0.456,0.406")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.485, 0.456, 0.406}, got, 1e-6)

	got, err = parseFloats("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseFloats("1,x")
	assert.Error(t, err)
}

func TestParseSoftmax(t *testing.T) {
	got, err := parseSoftmax("auto")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseSoftmax("true")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, *got)

	_, err = parseSoftmax("sometimes")
	assert.Error(t, err)
}
