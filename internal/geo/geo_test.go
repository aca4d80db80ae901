package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowed_WithinRadius(t *testing.T) {
	g := NewGate([]string{"37.7749,-122.4194"}, 0.2)

	assert.True(t, g.Allowed(37.7749, -122.4194), "exact match")
	// Roughly 100m north of the allowed point.
	assert.True(t, g.Allowed(37.7758, -122.4194))
	// Roughly 2km away.
	assert.False(t, g.Allowed(37.7929, -122.4194))
}

func TestAllowed_AnyOfMultiplePoints(t *testing.T) {
	g := NewGate([]string{"37.7749,-122.4194", "34.0522,-118.2437"}, 0.2)

	assert.True(t, g.Allowed(34.0522, -118.2437))
	assert.False(t, g.Allowed(40.7128, -74.0060))
}

func TestAllowed_EmptyListDisablesGate(t *testing.T) {
	g := NewGate(nil, 0.2)

	assert.False(t, g.Enabled())
	assert.True(t, g.Allowed(0, 0))
	assert.True(t, g.Allowed(40.7128, -74.0060))
}

func TestNewGate_SkipsMalformedPairs(t *testing.T) {
	g := NewGate([]string{"not-a-pair", "37.7749,-122.4194", "91.0,abc"}, 0.2)

	assert.True(t, g.Enabled())
	assert.Len(t, g.allowed, 1)
	assert.True(t, g.Allowed(37.7749, -122.4194))
}

func TestParsePair_Whitespace(t *testing.T) {
	p, err := parsePair(" 37.7749 , -122.4194 ")
	assert.NoError(t, err)
	assert.InDelta(t, 37.7749, p.Lat, 1e-9)
	assert.InDelta(t, -122.4194, p.Lon, 1e-9)
}
