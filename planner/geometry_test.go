package planner

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john/tcpspp/config"
)

func TestCircleVerticesCountAndRadius(t *testing.T) {
	pts := CircleVertices(0, 0, 5, 8)
	require.Len(t, pts, 8)
	for _, p := range pts {
		assert.InDelta(t, 5.0, math.Hypot(p.X, p.Y), 1e-9)
	}
}

func TestCircleVerticesRejectsTooFewFaces(t *testing.T) {
	pts := CircleVertices(0, 0, 5, 2)
	assert.Len(t, pts, 3)
}

func TestCircleVerticesRotatedShiftsStartingVertex(t *testing.T) {
	base := CircleVertices(1, 2, 5, 6)
	rotated := CircleVerticesRotated(1, 2, 5, 6, 2)

	assert.Equal(t, base[2], rotated[0])
	assert.Equal(t, base[0], rotated[4])
}

func TestCircleVerticesRotatedNoShiftWhenLayerAligns(t *testing.T) {
	base := CircleVertices(0, 0, 3, 6)
	rotated := CircleVerticesRotated(0, 0, 3, 6, 6)
	assert.Equal(t, base, rotated)
}

func TestGenerateBandRadiiAssignsContiguousNonOverlappingSlots(t *testing.T) {
	cfg := &config.Config{
		PrimeTowerR:    10,
		BandWidth:      2,
		BandBrimWidth:  1,
		NozzleDiameter: []float64{0.4, 0.6},
	}
	band, brim := generateBandRadii(cfg, []int{0, 1})

	require.Len(t, band[0], 2)
	require.Len(t, band[1], 2)
	require.Len(t, brim[0], 1)
	require.Len(t, brim[1], 1)

	// Every band ring must exceed the tower radius, and each tool's
	// slot must continue strictly outward from the previous tool's.
	assert.Greater(t, band[0][0], cfg.PrimeTowerR)
	assert.Greater(t, band[0][1], band[0][0])
	assert.Greater(t, band[1][0], band[0][1])
	assert.Greater(t, band[1][1], band[1][0])

	// Brim rings continue outward from wherever the bands left off.
	assert.Greater(t, brim[0][0], band[1][1])
	assert.Greater(t, brim[1][0], brim[0][0])
}
