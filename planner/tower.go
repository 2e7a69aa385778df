package planner

import (
	"sort"

	"github.com/john/tcpspp/config"
	"github.com/john/tcpspp/gcode"
)

// PrimeTower plans and injects the purge/prime structure printed
// alongside the part on every tool change.
type PrimeTower struct {
	cfg *config.Config
}

// NewPrimeTower builds a PrimeTower bound to cfg.
func NewPrimeTower(cfg *config.Config) *PrimeTower {
	return &PrimeTower{cfg: cfg}
}

// Plan analyses and (optionally) merges the layer structure of seq, then
// splices a band (or, on layer 0, a band plus brim) for every tool that
// prints, idles or is de-primed in each layer. It returns the resulting
// layer list; the thermal and fan planners build their own independent
// tool-activation walk rather than reusing it (see DESIGN.md), so
// OptimizeLayers folding layers together here does not affect them.
func (pt *PrimeTower) Plan(seq *gcode.List) ([]*LayerInfo, error) {
	layers, err := AnalyzeLayers(pt.cfg, seq)
	if err != nil {
		return nil, err
	}
	layers = OptimizeLayers(pt.cfg, layers)

	toolOrder := pt.toolOrder(layers)
	bandR, brimR := generateBandRadii(pt.cfg, toolOrder)

	for _, l := range layers {
		if err := pt.planLayer(seq, l, bandR, brimR); err != nil {
			return nil, err
		}
	}

	return layers, nil
}

// toolOrder lists every tool id in the order it first appears across the
// whole print, fixing each tool's permanent band/brim radius slot.
func (pt *PrimeTower) toolOrder(layers []*LayerInfo) []int {
	var order []int
	seen := map[int]bool{}
	for _, l := range layers {
		for _, tc := range l.ToolsSequence {
			id := tc.ToolID()
			if !seen[id] {
				seen[id] = true
				order = append(order, id)
			}
		}
	}
	return order
}

// planLayer injects the bands for one layer, choosing each tool's
// injection point by the layer's position and tool-change shape.
func (pt *PrimeTower) planLayer(seq *gcode.List, l *LayerInfo, bandR, brimR map[int][]float64) error {
	if len(l.ActiveTools) == 1 && len(l.IdleTools) == 0 {
		return nil
	}
	if len(l.ToolsSequence) == 0 {
		return nil
	}

	idleTools := setKeys(l.IdleTools)
	sort.Ints(idleTools)

	radiiFor := func(tool int) []float64 {
		radii := append([]float64{}, bandR[tool]...)
		if l.LayerNum == 0 {
			radii = append(radii, brimR[tool]...)
		}
		return radii
	}

	printBand := func(tool int, anchor gcode.Token, withIdle bool) {
		post := anchor.PostState()
		radii := radiiFor(tool)
		if len(radii) == 0 {
			return
		}
		x, y := bandTargetXY(pt.cfg, pt.cfg.PrimeTowerX, pt.cfg.PrimeTowerY, radii, l.LayerNum)
		at := moveIn(seq, anchor, pt.cfg, tool, post, x, y, l.LayerZ)
		at = emitBand(seq, at, pt.cfg, tool, l.Height, pt.cfg.PrimeTowerX, pt.cfg.PrimeTowerY, radii, l.LayerNum)

		if withIdle {
			for _, idle := range idleTools {
				idleRadii := radiiFor(idle)
				if len(idleRadii) == 0 {
					continue
				}
				ix, iy := bandTargetXY(pt.cfg, pt.cfg.PrimeTowerX, pt.cfg.PrimeTowerY, idleRadii, l.LayerNum)
				travel := gcode.NewGCode("G1", map[string]string{"X": fmtF(ix), "Y": fmtF(iy), "F": fmtF(pt.cfg.PrimeTowerMoveSpeed * 60)}, "")
				at = insertAfterReturn(seq, at, travel)
				at = emitBand(seq, at, pt.cfg, idle, l.Height, pt.cfg.PrimeTowerX, pt.cfg.PrimeTowerY, idleRadii, l.LayerNum)
			}
		}

		moveOut(seq, at, pt.cfg, tool, l.LayerZ, post)
	}

	first := l.ToolsSequence[0]

	if l.LayerNum == 0 {
		printBand(first.ToolID(), l.Start, true)
		for _, tc := range l.ToolsSequence[1:] {
			if tc.BlockStart == nil {
				return plannerErrf("prime-tower", "layer #%d: tool change to T%d has no TOOL_BLOCK_START marker", l.LayerNum, tc.ToolID())
			}
			printBand(tc.ToolID(), tc.BlockStart, false)
		}
		return nil
	}

	if len(l.ToolsSequence) == 1 {
		printBand(first.ToolID(), l.End, true)
		return nil
	}

	if first.BlockEnd == nil {
		return plannerErrf("prime-tower", "layer #%d: tool T%d's block has no TOOL_BLOCK_END marker", l.LayerNum, first.ToolID())
	}
	printBand(first.ToolID(), first.BlockEnd, true)
	for _, tc := range l.ToolsSequence[1:] {
		if tc.BlockStart == nil {
			return plannerErrf("prime-tower", "layer #%d: tool change to T%d has no TOOL_BLOCK_START marker", l.LayerNum, tc.ToolID())
		}
		printBand(tc.ToolID(), tc.BlockStart, false)
	}
	return nil
}
