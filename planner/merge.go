package planner

import "github.com/john/tcpspp/config"

// OptimizeLayers squashes consecutive compatible layers: fewer, taller
// prime-tower layers mean fewer tool parks and less wasted filament. It
// returns a new slice; the input is left untouched.
//
// Every layer stays in the output, including ones the tower no longer
// needs to inject into: the thermal and fan planners key off their own
// per-tool activation walk, not this merged list.
func OptimizeLayers(cfg *config.Config, layers []*LayerInfo) []*LayerInfo {
	if len(layers) == 0 {
		return nil
	}
	if !cfg.OptimizeLayers {
		out := make([]*LayerInfo, len(layers))
		copy(out, layers)
		return out
	}

	out := make([]*LayerInfo, 0, len(layers))
	first := *layers[0]
	out = append(out, &first)

	for _, n := range layers[1:] {
		p := out[len(out)-1]

		if canMerge(cfg, p, n) {
			mergeInto(p, n)
			continue
		}

		cp := *n
		cp.LayerNum = len(out)
		out = append(out, &cp)
	}

	return out
}

// canMerge checks the four merge eligibility conditions.
func canMerge(cfg *config.Config, p, n *LayerInfo) bool {
	// 1) only one tower column is growing in P - nothing to squash into.
	if len(p.ActiveTools) <= 1 {
		return false
	}
	if len(p.ToolsSequence) == 0 || len(n.ToolsSequence) == 0 {
		return false
	}

	// 2) no tool change at the layer boundary.
	pLast := p.ToolsSequence[len(p.ToolsSequence)-1].ToolID()
	nFirst := n.ToolsSequence[0].ToolID()
	if pLast != nFirst {
		return false
	}

	// 3) the other tools used in N are disjoint from the other tools used in P.
	pOthers := map[int]bool{}
	for _, tc := range p.ToolsSequence[:len(p.ToolsSequence)-1] {
		pOthers[tc.ToolID()] = true
	}
	for _, tc := range n.ToolsSequence[1:] {
		if pOthers[tc.ToolID()] {
			return false
		}
	}

	// 4) merged height fits the intersected range of the new active toolset.
	merged := mergedActiveTools(p, n)
	minH, maxH := cfg.ToolsetLayerHeightRange(setKeys(merged))
	sumHeight := p.Height + n.Height
	return sumHeight >= minH && sumHeight <= maxH
}

func mergedActiveTools(p, n *LayerInfo) map[int]bool {
	out := map[int]bool{}
	for t := range p.ActiveTools {
		out[t] = true
	}
	for _, tc := range n.ToolsSequence[1:] {
		out[tc.ToolID()] = true
	}
	return out
}

// mergeInto absorbs n's tool-change sequence, its tools-sequence minus
// the first element (the tool carried over from p), layer_z,
// layer_height and layer_end into p.
func mergeInto(p, n *LayerInfo) {
	p.ToolChangeSeq = append(p.ToolChangeSeq, n.ToolChangeSeq...)
	p.ToolsSequence = append(p.ToolsSequence, n.ToolsSequence[1:]...)
	p.ActiveTools = mergedActiveTools(p, n)
	p.LayerZ = n.LayerZ
	p.Height += n.Height
	p.End = n.End
	p.MergedCount += n.MergedCount + 1

	idle := map[int]bool{}
	for t := range p.IdleTools {
		if !p.ActiveTools[t] {
			idle[t] = true
		}
	}
	for t := range n.IdleTools {
		if !p.ActiveTools[t] {
			idle[t] = true
		}
	}
	p.IdleTools = idle

	disabled := map[int]bool{}
	for t := range n.DisabledTools {
		if !p.ActiveTools[t] {
			disabled[t] = true
		}
	}
	p.DisabledTools = disabled
}
