package planner

import (
	"fmt"

	"github.com/john/tcpspp/gcode"
)

// ToolChangeInfo records one T-code's position within a layer together
// with the TOOL_BLOCK_START/TOOL_BLOCK_END markers bracketing that
// tool's print block.
type ToolChangeInfo struct {
	PrevTool int
	NextTool int
	Token    *gcode.ToolChange

	BlockStart *gcode.Params
	BlockEnd   *gcode.Params
}

// ToolID is the tool this block belongs to: the tool being changed to.
func (t *ToolChangeInfo) ToolID() int { return t.NextTool }

// LayerInfo is the per-layer classification the prime tower keys off.
// The thermal and fan planners do not use it; they walk the stream's
// tool-change tokens directly.
type LayerInfo struct {
	LayerNum    int
	LayerZ      float64
	Height      float64
	MergedCount int // number of extra original layers folded into this one by OptimizeLayers

	Start *gcode.Params // AFTER_LAYER_CHANGE marker opening this layer
	End   *gcode.Params // BEFORE_LAYER_CHANGE marker closing this layer

	ToolChangeSeq []*ToolChangeInfo // T-codes issued during this layer, in order
	ToolsSequence []*ToolChangeInfo // ToolChangeSeq, prefixed by the tool inherited from the previous layer (if any)

	ActiveTools   map[int]bool // extrudes during this layer
	IdleTools     map[int]bool // not printing this layer, still needed in a later one
	DisabledTools map[int]bool // used earlier in the print, not used in this layer or any later one
}

// ResetStatus clears the per-layer tool classification, leaving the
// structural fields (LayerNum, Start/End, ToolChangeSeq) untouched.
func (l *LayerInfo) ResetStatus() {
	l.ActiveTools = map[int]bool{}
	l.IdleTools = map[int]bool{}
	l.DisabledTools = map[int]bool{}
}

func (l *LayerInfo) String() string {
	return fmt.Sprintf("layer %d (z=%.3f h=%.3f, merged=%d): active=%v idle=%v disabled=%v",
		l.LayerNum, l.LayerZ, l.Height, l.MergedCount, setKeys(l.ActiveTools), setKeys(l.IdleTools), setKeys(l.DisabledTools))
}

func setKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// toolSeqIDs returns the tool ids of seq in order, used by AnalyzeLayers'
// layer-height check.
func toolSeqIDs(seq []*ToolChangeInfo) []int {
	out := make([]int, len(seq))
	for i, tc := range seq {
		out[i] = tc.ToolID()
	}
	return out
}
