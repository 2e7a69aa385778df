package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john/tcpspp/config"
	"github.com/john/tcpspp/gcode"
)

func towerTestConfig() *config.Config {
	return &config.Config{
		NumTools:             2,
		MinLayerHeight:       []float64{0, 0},
		MaxLayerHeight:       []float64{1, 1},
		ExtruderSpeed:        []float64{50, 50},
		MotorSpeedXY:         200,
		MotorSpeedZ:          10,
		RetractionFirmware:   true,
		RelativeEDistances:   true,
		NozzleDiameter:       []float64{0.4, 0.4},
		FilamentDiameter:     []float64{1.75, 1.75},
		ExtrusionMultiplier:  []float64{1, 1},
		PrimeTowerX:          100,
		PrimeTowerY:          100,
		PrimeTowerR:          10,
		BandWidth:            1,
		BandNumFaces:         4,
		BandBrimWidth:        1,
		PrimeTowerMoveSpeed:  200,
		PrimeTowerPrintSpeed: 30,
	}
}

func buildTowerSeq(t *testing.T, cfg *config.Config, src string) *gcode.List {
	t.Helper()
	seq, err := gcode.Parse([]byte(src))
	require.NoError(t, err)
	a := gcode.NewAnalyzer(cfg)
	require.NoError(t, a.Analyze(seq))
	return seq
}

// findMarker returns the n-th (0-based) Params token with the given
// label and first value.
func findMarker(seq *gcode.List, label string, value, n int) gcode.Token {
	count := 0
	for tok := seq.Head(); tok != nil; tok = tok.Next() {
		if p, ok := tok.(*gcode.Params); ok && p.Label == label && p.Int(0) == value {
			if count == n {
				return tok
			}
			count++
		}
	}
	return nil
}

// countExtrusionMovesBetween counts G1 tokens carrying an E parameter
// strictly between from and to.
func countExtrusionMovesBetween(from, to gcode.Token) int {
	n := 0
	for tok := from.Next(); tok != nil && tok != to; tok = tok.Next() {
		if g, ok := tok.(*gcode.GCode); ok && g.Mnemonic == "G1" && g.Has("E") {
			n++
		}
	}
	return n
}

func TestPrimeTowerSkipsSingleToolPrint(t *testing.T) {
	src := `T0
;;AFTER_LAYER_CHANGE:0,0.2
;;TOOL_BLOCK_START:0
G1 X1 Y1 E1 F1200
;;TOOL_BLOCK_END:0
;;BEFORE_LAYER_CHANGE:1,0.4
;;AFTER_LAYER_CHANGE:1,0.4
;;TOOL_BLOCK_START:0
G1 X2 Y2 E1 F1200
;;TOOL_BLOCK_END:0
;;BEFORE_LAYER_CHANGE:2,0.6
`
	cfg := towerTestConfig()
	seq := buildTowerSeq(t, cfg, src)
	before := seq.Len()

	layers, err := NewPrimeTower(cfg).Plan(seq)
	require.NoError(t, err)

	require.Len(t, layers, 2)
	assert.Equal(t, before, seq.Len(), "one active tool and no idle tools means nothing to splice")
}

const twoToolLayerZeroGCode = `T0
;;AFTER_LAYER_CHANGE:0,0.2
;;TOOL_BLOCK_START:0
G1 X1 Y1 E1 F1200
;;TOOL_BLOCK_END:0
T1
;;TOOL_BLOCK_START:1
G1 X2 Y2 E1 F1200
;;TOOL_BLOCK_END:1
;;BEFORE_LAYER_CHANGE:1,0.4
`

func TestPrimeTowerLayerZeroInjectsAtLayerStartAndBlockStart(t *testing.T) {
	cfg := towerTestConfig()
	seq := buildTowerSeq(t, cfg, twoToolLayerZeroGCode)

	_, err := NewPrimeTower(cfg).Plan(seq)
	require.NoError(t, err)

	// First tool's band (plus brim on layer 0: 2 rings of 4 faces = 8
	// extrusion segments) lands between the layer-start marker and the
	// first tool block.
	start := findMarker(seq, "AFTER_LAYER_CHANGE", 0, 0)
	blockStart0 := findMarker(seq, "TOOL_BLOCK_START", 0, 0)
	require.NotNil(t, start)
	require.NotNil(t, blockStart0)
	assert.Equal(t, 8, countExtrusionMovesBetween(start, blockStart0))

	// Second tool's band lands inside its own block, after its
	// TOOL_BLOCK_START: the pre-existing print move plus 8 band segments.
	blockStart1 := findMarker(seq, "TOOL_BLOCK_START", 1, 0)
	blockEnd1 := findMarker(seq, "TOOL_BLOCK_END", 1, 0)
	require.NotNil(t, blockStart1)
	require.NotNil(t, blockEnd1)
	assert.Equal(t, 9, countExtrusionMovesBetween(blockStart1, blockEnd1))
}

func TestPrimeTowerIdleToolBandPrintedByActiveTool(t *testing.T) {
	// Layer 1 is printed entirely by T1; T0 idles (it returns in layer
	// 2), so T1 must print T0's band too, at the end of the layer.
	src := twoToolLayerZeroGCode + `;;AFTER_LAYER_CHANGE:1,0.4
;;TOOL_BLOCK_START:1
G1 X3 Y3 E1 F1200
;;TOOL_BLOCK_END:1
;;BEFORE_LAYER_CHANGE:2,0.6
;;AFTER_LAYER_CHANGE:2,0.6
T0
;;TOOL_BLOCK_START:0
G1 X4 Y4 E1 F1200
;;TOOL_BLOCK_END:0
;;BEFORE_LAYER_CHANGE:3,0.8
`
	cfg := towerTestConfig()
	seq := buildTowerSeq(t, cfg, src)

	layers, err := NewPrimeTower(cfg).Plan(seq)
	require.NoError(t, err)
	require.Len(t, layers, 3)
	assert.Equal(t, map[int]bool{0: true}, layers[1].IdleTools)

	// No tool change in layer 1: the single band is injected at
	// layer_end. Both T1's own band and T0's idle band (4 segments
	// each, no brim past layer 0) follow the closing marker.
	end := findMarker(seq, "BEFORE_LAYER_CHANGE", 2, 0)
	next := findMarker(seq, "AFTER_LAYER_CHANGE", 2, 0)
	require.NotNil(t, end)
	require.NotNil(t, next)
	assert.Equal(t, 8, countExtrusionMovesBetween(end, next))
}

// TestLayerZeroReappearingToolSkipsDeprime pins down the surprising
// branch for layer 0: the first tool always injects at layer_start,
// even when that same tool reappears later in the layer's sequence, so
// no de-prime band is ever placed at its first block_end.
func TestLayerZeroReappearingToolSkipsDeprime(t *testing.T) {
	src := `T0
;;AFTER_LAYER_CHANGE:0,0.2
;;TOOL_BLOCK_START:0
G1 X1 Y1 E1 F1200
;;TOOL_BLOCK_END:0
T1
;;TOOL_BLOCK_START:1
G1 X2 Y2 E1 F1200
;;TOOL_BLOCK_END:1
T0
;;TOOL_BLOCK_START:0
G1 X3 Y3 E1 F1200
;;TOOL_BLOCK_END:0
;;BEFORE_LAYER_CHANGE:1,0.4
`
	cfg := towerTestConfig()
	seq := buildTowerSeq(t, cfg, src)

	_, err := NewPrimeTower(cfg).Plan(seq)
	require.NoError(t, err)

	firstEnd := findMarker(seq, "TOOL_BLOCK_END", 0, 0)
	require.NotNil(t, firstEnd)
	_, isToolChange := firstEnd.Next().(*gcode.ToolChange)
	assert.True(t, isToolChange, "nothing may be spliced after the reappearing tool's first block end")
}

func TestPrimeTowerMissingBlockStartIsAnError(t *testing.T) {
	src := `T0
;;AFTER_LAYER_CHANGE:1,0.4
;;TOOL_BLOCK_START:0
G1 X1 Y1 E1 F1200
;;TOOL_BLOCK_END:0
T1
G1 X2 Y2 E1 F1200
;;BEFORE_LAYER_CHANGE:2,0.6
`
	cfg := towerTestConfig()
	seq := buildTowerSeq(t, cfg, src)

	_, err := NewPrimeTower(cfg).Plan(seq)
	require.Error(t, err)
	var perr *PlannerError
	require.ErrorAs(t, err, &perr)
}
