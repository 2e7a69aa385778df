package planner

import (
	"strconv"

	"github.com/john/tcpspp/config"
	"github.com/john/tcpspp/gcode"
)

// tempStabilizeSeconds is the tolerance window handed to the
// wait-for-temperature command: the controller is considered "at
// temperature" once it has held within range for this long.
const tempStabilizeSeconds = 1

// activation is one tool's mount-to-park window: the T-code that mounts
// it, the TOOL_BLOCK_END marker that parks it (nil if the tool is still
// active when the stream ends), and the layer it starts on.
type activation struct {
	toolChange *gcode.ToolChange
	blockEnd   *gcode.Params
	layerNum   int
}

// ThermalPlanner schedules nozzle and bed temperature commands around
// tool activations using a linear heating/cooling rate model.
//
// It walks the stream's tool-change tokens itself rather than taking
// the prime tower's merged layer list, so OptimizeLayers folding layers
// together has no effect on the temperature schedule: each tool's own
// activation timeline is what matters here, not which tower layer a
// change happened to land in.
type ThermalPlanner struct {
	cfg *config.Config
}

// NewThermalPlanner builds a ThermalPlanner bound to cfg.
func NewThermalPlanner(cfg *config.Config) *ThermalPlanner {
	return &ThermalPlanner{cfg: cfg}
}

// Plan injects the full temperature schedule directly into seq.
func (tp *ThermalPlanner) Plan(seq *gcode.List) error {
	perTool, order, err := tp.buildActivations(seq)
	if err != nil {
		return err
	}

	initMarker := findParamsLabel(seq, "TC_TEMP_INITIALIZE")
	if initMarker == nil {
		return plannerErrf("thermal", "TC_TEMP_INITIALIZE marker not found")
	}
	shutdownMarker := findParamsLabel(seq, "TC_TEMP_SHUTDOWN")
	if shutdownMarker == nil {
		return plannerErrf("thermal", "TC_TEMP_SHUTDOWN marker not found")
	}
	if len(order) == 0 {
		return nil
	}

	tools := map[int]struct{}{}
	for _, t := range order {
		tools[t] = struct{}{}
	}

	cursor := gcode.Token(initMarker)
	cursor = insertAfterReturn(seq, cursor, bedSetCmd(tp.cfg.BedTemp(0, tools)))
	cursor = insertAfterReturn(seq, cursor, bedWaitCmd(tp.cfg.BedTemp(0, tools)))

	for _, tool := range order {
		cursor = tp.injectPrologue(seq, cursor, initMarker, perTool[tool][0], tool)
	}

	if layer1 := tp.findBeforeLayerChange(seq, 1); layer1 != nil {
		at := gcode.Token(layer1)
		at = insertAfterReturn(seq, at, bedSetCmd(tp.cfg.BedTemp(1, tools)))
		insertAfterReturn(seq, at, bedWaitCmd(tp.cfg.BedTemp(1, tools)))
	}

	for _, tool := range order {
		acts := perTool[tool]
		for i := 1; i < len(acts); i++ {
			tp.injectBetween(seq, tool, acts[i-1], acts[i])
		}
	}

	tp.injectEpilogue(seq, perTool, order, shutdownMarker)
	return nil
}

// buildActivations walks the token stream's tool changes directly
// (independent of any layer grouping or merging) and groups them by
// tool in chronological order. A tool change with no TOOL_BLOCK
// markers around it is fine: the validator's synthetic T0 on a
// single-tool file has none, and only the park point needs a marker.
func (tp *ThermalPlanner) buildActivations(seq *gcode.List) (map[int][]*activation, []int, error) {
	perTool := map[int][]*activation{}
	var order []int
	var current *activation
	currentTool := -1

	for tok := seq.Head(); tok != nil; tok = tok.Next() {
		switch t := tok.(type) {
		case *gcode.ToolChange:
			if t.NextTool < 0 {
				continue
			}
			layer := 0
			if pre := t.PreState(); pre != nil {
				layer = pre.LayerNum
			}
			current = &activation{toolChange: t, layerNum: layer}
			currentTool = t.NextTool
			if _, ok := perTool[currentTool]; !ok {
				order = append(order, currentTool)
			}
			perTool[currentTool] = append(perTool[currentTool], current)

		case *gcode.Params:
			if t.Label != "TOOL_BLOCK_END" || current == nil {
				continue
			}
			toolID := t.Int(0)
			if toolID == -1 {
				continue
			}
			if toolID != currentTool {
				return nil, nil, plannerErrf("thermal", "TOOL_BLOCK_END T%d doesn't match the active tool T%d", toolID, currentTool)
			}
			current.blockEnd = t
		}
	}
	return perTool, order, nil
}

// injectPrologue schedules tool's first activation's heat-up against
// the initialize marker: a gradual ramp timed to land on temperature
// right as the tool activates if there's enough runway, otherwise an
// immediate full-temperature command.
func (tp *ThermalPlanner) injectPrologue(seq *gcode.List, cursor gcode.Token, marker *gcode.Params, first *activation, tool int) gcode.Token {
	target := tp.cfg.ActiveTemp(first.layerNum, tool)
	gap := runtimeBetween(marker, first.toolChange)
	delta := tp.cfg.IdleDelta
	hr := tp.cfg.HeatingRate

	if hr > 0 && delta/hr < gap {
		standby := target - delta
		if standby < 0 {
			standby = 0
		}
		cursor = insertAfterReturn(seq, cursor, setStandbyCmd(tool, standby))

		raisePoint := walkBackward(first.toolChange, delta/hr)
		insertAtOrBefore(seq, raisePoint, first.toolChange, setStandbyCmd(tool, target))
		seq.InsertBefore(first.toolChange, waitForTempCmd(tool))
		return cursor
	}

	cursor = insertAfterReturn(seq, cursor, setStandbyCmd(tool, target))
	seq.InsertBefore(first.toolChange, waitForTempCmd(tool))
	return cursor
}

// injectBetween schedules the cool-down/heat-up (or, if the idle window
// is too short, the immediate collapse) between two consecutive
// activations of the same tool.
func (tp *ThermalPlanner) injectBetween(seq *gcode.List, tool int, prev, next *activation) {
	if prev.blockEnd == nil {
		return
	}
	gap := runtimeBetween(prev.blockEnd, next.toolChange)

	tp_ := tp.cfg.ActiveTemp(prev.layerNum, tool)
	tn := tp.cfg.ActiveTemp(next.layerNum, tool)
	ti := (tp_+tn)/2 - tp.cfg.IdleDelta

	var tc, th float64
	if tp.cfg.CoolingRate > 0 {
		tc = (tp_ - ti) / tp.cfg.CoolingRate
	}
	if tp.cfg.HeatingRate > 0 {
		th = (tn - ti) / tp.cfg.HeatingRate
	}

	if tc+th <= gap {
		seq.InsertAfter(prev.blockEnd, setStandbyCmd(tool, ti))
		raisePoint := walkBackward(next.toolChange, th)
		insertAtOrBefore(seq, raisePoint, next.toolChange, setStandbyCmd(tool, tn))
		seq.InsertBefore(next.toolChange, waitForTempCmd(tool))
		return
	}

	// Window too short to dip to Ti and come back: collapse to a single
	// immediate ramp (or cool-down) straight to the next target. Equal
	// temperatures need nothing beyond the wait.
	if tp_ != tn {
		seq.InsertAfter(prev.blockEnd, setStandbyCmd(tool, tn))
	}
	seq.InsertBefore(next.toolChange, waitForTempCmd(tool))
}

// injectEpilogue parks every tool at its last block_end and powers
// everything down at the shutdown marker.
func (tp *ThermalPlanner) injectEpilogue(seq *gcode.List, perTool map[int][]*activation, order []int, shutdown *gcode.Params) {
	for _, tool := range order {
		acts := perTool[tool]
		last := acts[len(acts)-1]
		if last.blockEnd != nil {
			seq.InsertAfter(last.blockEnd, setStandbyCmd(tool, 0))
		}
	}

	cursor := gcode.Token(shutdown)
	for _, tool := range order {
		cursor = insertAfterReturn(seq, cursor, setStandbyCmd(tool, 0))
	}
	insertAfterReturn(seq, cursor, bedSetCmd(0))
}

func (tp *ThermalPlanner) findBeforeLayerChange(seq *gcode.List, layerNum int) *gcode.Params {
	for tok := seq.Head(); tok != nil; tok = tok.Next() {
		if p, ok := tok.(*gcode.Params); ok && p.Label == "BEFORE_LAYER_CHANGE" && p.Int(0) == layerNum {
			return p
		}
	}
	return nil
}

func findParamsLabel(seq *gcode.List, label string) *gcode.Params {
	for tok := seq.Head(); tok != nil; tok = tok.Next() {
		if p, ok := tok.(*gcode.Params); ok && p.Label == label {
			return p
		}
	}
	return nil
}

// runtimeBetween sums the runtime of every token strictly between from
// and to (exclusive of both ends), the wall-clock time that elapses
// crossing that span.
func runtimeBetween(from, to gcode.Token) float64 {
	total := 0.0
	for cur := from.Next(); cur != nil && cur != to; cur = cur.Next() {
		total += cur.Runtime()
	}
	return total
}

// insertAtOrBefore inserts tok immediately after point, or immediately
// before anchor if point is nil (walkBackward returns nil only for a
// zero or negative target when anchor is the head of the sequence).
func insertAtOrBefore(seq *gcode.List, point gcode.Token, anchor gcode.Token, tok gcode.Token) gcode.Token {
	if point == nil {
		seq.InsertBefore(anchor, tok)
		return tok
	}
	return insertAfterReturn(seq, point, tok)
}

// walkBackward returns the token at or before which cumulative runtime
// walking backward from anchor first reaches targetSeconds, so a
// command inserted right after it fires that many seconds before
// anchor. Stops at the head of the sequence if targetSeconds exceeds
// the available runway.
func walkBackward(anchor gcode.Token, targetSeconds float64) gcode.Token {
	if targetSeconds <= 0 {
		return anchor.Prev()
	}
	acc := 0.0
	cur := anchor
	for {
		prev := cur.Prev()
		if prev == nil {
			return cur
		}
		acc += prev.Runtime()
		if acc >= targetSeconds {
			return prev
		}
		cur = prev
	}
}

func setStandbyCmd(tool int, temp float64) *gcode.GCode {
	return gcode.NewGCode("G10", map[string]string{"P": itoa(tool), "R": fmtF(temp)}, "")
}

func waitForTempCmd(tool int) *gcode.GCode {
	return gcode.NewGCode("M116", map[string]string{"P": itoa(tool), "S": strconv.Itoa(tempStabilizeSeconds)}, "")
}

func bedSetCmd(temp float64) *gcode.GCode {
	return gcode.NewGCode("M140", map[string]string{"S": fmtF(temp)}, "")
}

func bedWaitCmd(temp float64) *gcode.GCode {
	return gcode.NewGCode("M190", map[string]string{"S": fmtF(temp)}, "")
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
