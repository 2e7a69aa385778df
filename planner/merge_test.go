package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john/tcpspp/config"
)

func tc(tool int) *ToolChangeInfo { return &ToolChangeInfo{PrevTool: -1, NextTool: tool} }

func rangeConfig(min, max float64, numTools int) *config.Config {
	mins := make([]float64, numTools)
	maxs := make([]float64, numTools)
	for i := range mins {
		mins[i] = min
		maxs[i] = max
	}
	return &config.Config{NumTools: numTools, MinLayerHeight: mins, MaxLayerHeight: maxs, OptimizeLayers: true}
}

func TestOptimizeLayersMergesEligiblePair(t *testing.T) {
	cfg := rangeConfig(0, 1, 2)

	p := &LayerInfo{LayerNum: 0, Height: 0.2, LayerZ: 0.2,
		ActiveTools:   map[int]bool{0: true, 1: true},
		IdleTools:     map[int]bool{},
		DisabledTools: map[int]bool{},
		ToolsSequence: []*ToolChangeInfo{tc(0), tc(1)},
	}
	n := &LayerInfo{LayerNum: 1, Height: 0.2, LayerZ: 0.4,
		ActiveTools:   map[int]bool{1: true},
		IdleTools:     map[int]bool{},
		DisabledTools: map[int]bool{},
		ToolsSequence: []*ToolChangeInfo{tc(1)},
	}

	out := OptimizeLayers(cfg, []*LayerInfo{p, n})

	require.Len(t, out, 1)
	assert.InDelta(t, 0.4, out[0].Height, 1e-9)
	assert.InDelta(t, 0.4, out[0].LayerZ, 1e-9)
	assert.Equal(t, 1, out[0].MergedCount)
	// n's ToolsSequence held only the tool carried over from p (no new
	// tool change inside n), so merging drops that duplicate entry.
	assert.Len(t, out[0].ToolsSequence, 2)
}

func TestOptimizeLayersDoesNotMergeAcrossToolChangeBoundary(t *testing.T) {
	cfg := rangeConfig(0, 1, 2)

	p := &LayerInfo{Height: 0.2, ActiveTools: map[int]bool{0: true, 1: true},
		ToolsSequence: []*ToolChangeInfo{tc(0), tc(1)}}
	n := &LayerInfo{Height: 0.2, ActiveTools: map[int]bool{0: true},
		ToolsSequence: []*ToolChangeInfo{tc(0)}}

	out := OptimizeLayers(cfg, []*LayerInfo{p, n})
	require.Len(t, out, 2)
}

func TestOptimizeLayersRefusesSingleActiveToolLayer(t *testing.T) {
	cfg := rangeConfig(0, 1, 2)

	p := &LayerInfo{Height: 0.2, ActiveTools: map[int]bool{0: true},
		ToolsSequence: []*ToolChangeInfo{tc(0)}}
	n := &LayerInfo{Height: 0.2, ActiveTools: map[int]bool{0: true},
		ToolsSequence: []*ToolChangeInfo{tc(0)}}

	out := OptimizeLayers(cfg, []*LayerInfo{p, n})
	require.Len(t, out, 2, "a layer with only one active tool has nothing to squash into")
}

func TestOptimizeLayersRefusesOverlappingOtherTools(t *testing.T) {
	cfg := rangeConfig(0, 1, 3)

	p := &LayerInfo{Height: 0.2, ActiveTools: map[int]bool{0: true, 1: true},
		ToolsSequence: []*ToolChangeInfo{tc(0), tc(1)}}
	n := &LayerInfo{Height: 0.2, ActiveTools: map[int]bool{1: true, 0: true},
		ToolsSequence: []*ToolChangeInfo{tc(1), tc(0)}}

	out := OptimizeLayers(cfg, []*LayerInfo{p, n})
	require.Len(t, out, 2, "tool 0 reappearing in both layers' non-boundary slots should block the merge")
}

func TestOptimizeLayersRefusesWhenMergedHeightExceedsRange(t *testing.T) {
	cfg := rangeConfig(0, 0.3, 2)

	p := &LayerInfo{Height: 0.2, ActiveTools: map[int]bool{0: true, 1: true},
		ToolsSequence: []*ToolChangeInfo{tc(0), tc(1)}}
	n := &LayerInfo{Height: 0.2, ActiveTools: map[int]bool{1: true},
		ToolsSequence: []*ToolChangeInfo{tc(1)}}

	out := OptimizeLayers(cfg, []*LayerInfo{p, n})
	require.Len(t, out, 2, "0.4 combined height exceeds the 0.3 ceiling")
}

func TestOptimizeLayersNoOpWhenDisabled(t *testing.T) {
	cfg := rangeConfig(0, 1, 2)
	cfg.OptimizeLayers = false

	p := &LayerInfo{Height: 0.2, ActiveTools: map[int]bool{0: true, 1: true},
		ToolsSequence: []*ToolChangeInfo{tc(0), tc(1)}}
	n := &LayerInfo{Height: 0.2, ActiveTools: map[int]bool{1: true},
		ToolsSequence: []*ToolChangeInfo{tc(1)}}

	out := OptimizeLayers(cfg, []*LayerInfo{p, n})
	require.Len(t, out, 2)
}
