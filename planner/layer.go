package planner

import (
	"github.com/john/tcpspp/config"
	"github.com/john/tcpspp/gcode"
)

// AnalyzeLayers walks an already-analysed token sequence (Analyzer.Analyze
// must have run first so the AFTER_LAYER_CHANGE tokens carry a post-state)
// and builds one LayerInfo per AFTER_LAYER_CHANGE/BEFORE_LAYER_CHANGE pair,
// binding each tool change to its TOOL_BLOCK_START/TOOL_BLOCK_END markers.
func AnalyzeLayers(cfg *config.Config, seq *gcode.List) ([]*LayerInfo, error) {
	var layers []*LayerInfo
	var cur *LayerInfo
	var currentTool *ToolChangeInfo
	var preLayerChanges []*ToolChangeInfo // tool changes seen before the first AFTER_LAYER_CHANGE
	prevLayerZ := 0.0
	prevLayerNum := -1

	for tok := seq.Head(); tok != nil; tok = tok.Next() {
		switch t := tok.(type) {
		case *gcode.Params:
			switch t.Label {
			case "AFTER_LAYER_CHANGE":
				layerNum, layerZ := t.Int(0), t.Float(1)
				if layerNum <= prevLayerNum {
					return nil, plannerErrf("prime-tower", "AFTER_LAYER_CHANGE layer numbers must be strictly increasing: #%d after #%d", layerNum, prevLayerNum)
				}
				if layerZ < prevLayerZ {
					return nil, plannerErrf("prime-tower", "AFTER_LAYER_CHANGE layer z must not decrease: %.4f after %.4f", layerZ, prevLayerZ)
				}
				prevLayerNum = layerNum
				cur = &LayerInfo{
					LayerNum: layerNum,
					LayerZ:   layerZ,
					Height:   layerZ - prevLayerZ,
					Start:    t,
				}
				cur.ResetStatus()
				// The first tool change usually sits in the start gcode,
				// ahead of the first layer marker; it belongs to layer 0.
				if len(layers) == 0 {
					cur.ToolChangeSeq = append(cur.ToolChangeSeq, preLayerChanges...)
				}
				if currentTool != nil {
					cur.ToolsSequence = append(cur.ToolsSequence, currentTool)
				}
				layers = append(layers, cur)
				prevLayerZ = layerZ

			case "BEFORE_LAYER_CHANGE":
				if cur == nil {
					continue
				}
				cur.End = t

				toolset := toolSeqIDs(cur.ToolsSequence)
				_, maxH := cfg.ToolsetLayerHeightRange(toolset)
				if cur.Height > maxH {
					return nil, plannerErrf("prime-tower", "layer #%d height %.4f exceeds the max layer height %.4f for toolset %v", cur.LayerNum, cur.Height, maxH, toolset)
				}

			case "TOOL_BLOCK_START":
				if currentTool == nil {
					continue
				}
				toolID := t.Int(0)
				if toolID != -1 {
					if toolID != currentTool.ToolID() {
						return nil, plannerErrf("prime-tower", "TOOL_BLOCK_START T%d doesn't match the last active tool T%d", toolID, currentTool.ToolID())
					}
					currentTool.BlockStart = t
				}

			case "TOOL_BLOCK_END":
				if currentTool == nil {
					continue
				}
				toolID := t.Int(0)
				if toolID != -1 {
					if toolID != currentTool.ToolID() {
						return nil, plannerErrf("prime-tower", "TOOL_BLOCK_END T%d doesn't match the last active tool T%d", toolID, currentTool.ToolID())
					}
					currentTool.BlockEnd = t
				}
			}

		case *gcode.ToolChange:
			if t.NextTool < 0 {
				continue
			}
			tc := &ToolChangeInfo{PrevTool: t.PrevTool, NextTool: t.NextTool, Token: t}
			currentTool = tc
			if cur == nil {
				preLayerChanges = append(preLayerChanges, tc)
				continue
			}
			cur.ToolChangeSeq = append(cur.ToolChangeSeq, tc)
			cur.ToolsSequence = append(cur.ToolsSequence, tc)
		}
	}

	analyzeToolStatus(layers, cfg.NumTools)
	return layers, nil
}

// analyzeToolStatus fills ActiveTools forward (a tool is active the
// layer it's changed to and every layer until the next change) and then
// IdleTools/DisabledTools backward from the last layer: a tool is idle
// while it still prints somewhere later, disabled once it never will.
func analyzeToolStatus(layers []*LayerInfo, numTools int) {
	enabled := map[int]bool{}
	for _, l := range layers {
		for _, tc := range l.ToolsSequence {
			l.ActiveTools[tc.ToolID()] = true
		}
		for t := range l.ActiveTools {
			enabled[t] = true
		}
	}

	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		if i == len(layers)-1 {
			l.IdleTools = map[int]bool{}
			l.DisabledTools = map[int]bool{}
			for t := range enabled {
				if !l.ActiveTools[t] {
					l.DisabledTools[t] = true
				}
			}
			continue
		}
		next := layers[i+1]
		idle := map[int]bool{}
		for t := range next.IdleTools {
			if !l.ActiveTools[t] {
				idle[t] = true
			}
		}
		for t := range next.ActiveTools {
			if !l.ActiveTools[t] {
				idle[t] = true
			}
		}
		disabled := map[int]bool{}
		for t := range next.DisabledTools {
			if !l.ActiveTools[t] {
				disabled[t] = true
			}
		}
		l.IdleTools = idle
		l.DisabledTools = disabled
	}
}
