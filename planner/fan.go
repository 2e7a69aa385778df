package planner

import (
	"github.com/john/tcpspp/config"
	"github.com/john/tcpspp/gcode"
)

// FanPlanner schedules the part-cooling fan around tool changes: the
// fan is killed while a tool is being swapped (the wipe/purge on the
// outgoing nozzle doesn't want forced air on it) and restored once the
// incoming tool is past its configured warm-up window of layers.
type FanPlanner struct {
	cfg *config.Config
}

// NewFanPlanner builds a FanPlanner bound to cfg.
func NewFanPlanner(cfg *config.Config) *FanPlanner {
	return &FanPlanner{cfg: cfg}
}

// Plan walks every ToolChange token in seq directly; this pass doesn't
// need layer grouping, just each change's own post-state layer index.
func (fp *FanPlanner) Plan(seq *gcode.List) error {
	for tok := seq.Head(); tok != nil; tok = tok.Next() {
		tc, ok := tok.(*gcode.ToolChange)
		if !ok || tc.NextTool < 0 {
			continue
		}

		seq.InsertBefore(tc, fanCmd(0))

		layer := 0
		if post := tc.PostState(); post != nil {
			layer = post.LayerNum
		}
		if layer > fp.cfg.DisableFanFirstLayersOf(tc.NextTool) {
			// Fan speeds stay in the validator's normalised [0,1] range;
			// MaxFanSpeedOf is already rescaled at config load.
			seq.InsertAfter(tc, fanCmd(fp.cfg.MaxFanSpeedOf(tc.NextTool)))
		}
	}
	return nil
}

func fanCmd(speed float64) *gcode.GCode {
	return gcode.NewGCode("M106", map[string]string{"S": fmtF(speed)}, "")
}
