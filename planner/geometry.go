package planner

import (
	"math"

	"github.com/john/tcpspp/config"
)

// Point is a 2D coordinate in the printer's XY plane.
type Point struct {
	X, Y float64
}

// CircleVertices returns numFaces points evenly spaced around a circle
// of the given radius centred at (cx, cy). The prime tower's pillar
// bands and brim are regular polygons approximating a circle this way.
func CircleVertices(cx, cy, radius float64, numFaces int) []Point {
	if numFaces < 3 {
		numFaces = 3
	}
	pts := make([]Point, numFaces)
	for i := 0; i < numFaces; i++ {
		theta := 2 * math.Pi * float64(i) / float64(numFaces)
		pts[i] = Point{X: cx + radius*math.Cos(theta), Y: cy + radius*math.Sin(theta)}
	}
	return pts
}

// CircleVerticesRotated is CircleVertices with its starting vertex
// rotated by layerNum mod numFaces, so the seam of consecutive bands
// travels around the tower instead of stacking up into a visible ridge.
func CircleVerticesRotated(cx, cy, radius float64, numFaces, layerNum int) []Point {
	pts := CircleVertices(cx, cy, radius, numFaces)
	shift := layerNum % numFaces
	if shift == 0 {
		return pts
	}
	out := make([]Point, numFaces)
	for i := range pts {
		out[i] = pts[(i+shift)%numFaces]
	}
	return out
}

// generateBandRadii walks outward from cfg.PrimeTowerR, assigning each
// tool in toolOrder a contiguous band of width band rings and, for
// layer 0 only, an additional brim extending further out. Radii are
// computed once for the whole print: every enabled tool keeps the same
// ring slot at every layer it prints a band.
func generateBandRadii(cfg *config.Config, toolOrder []int) (band, brim map[int][]float64) {
	band = map[int][]float64{}
	brim = map[int][]float64{}

	r := cfg.PrimeTowerR
	for _, tool := range toolOrder {
		radii := make([]float64, 0, cfg.BandWidth)
		for i := 0; i < cfg.BandWidth; i++ {
			r += nozzleRadius(cfg, tool)
			radii = append(radii, r)
			r += nozzleRadius(cfg, tool)
		}
		band[tool] = radii
	}

	// Brim rings continue outward from wherever the band rings left off,
	// so each tool's slot stays a contiguous wedge of the tower radius
	// instead of every tool's brim overlapping at the same rings.
	for _, tool := range toolOrder {
		radii := make([]float64, 0, cfg.BandBrimWidth)
		for i := 0; i < cfg.BandBrimWidth; i++ {
			r += nozzleRadius(cfg, tool)
			radii = append(radii, r)
			r += nozzleRadius(cfg, tool)
		}
		brim[tool] = radii
	}

	return band, brim
}

func nozzleRadius(cfg *config.Config, tool int) float64 {
	return cfg.NozzleDiameterOf(tool) / 2.0
}
