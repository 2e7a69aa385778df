package gcode

import (
	"math"

	"github.com/john/tcpspp/config"
)

// Small fixed runtimes for steps that don't warrant a configuration
// knob; only the tool-change time is externally configured.
const (
	runtimeDefault = 0.1
	runtimeG10     = 0.3
	runtimeG11     = 0.3
)

// Analyzer runs the forward shadow-interpreter pass over a token
// sequence, populating every token's pre/post state and runtime
// estimate and publishing the side-channel totals the statistics
// rewrite and the planners both depend on.
type Analyzer struct {
	cfg *config.Config

	TotalRuntime       float64
	TotalFilamentUsage map[int]float64
}

// NewAnalyzer builds an Analyzer bound to cfg.
func NewAnalyzer(cfg *config.Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze walks seq from head to tail, attaching pre/post MachineState
// and a runtime estimate to every token. Re-running it is the only way
// to refresh total runtime/filament numbers after a planner has spliced
// new tokens into the sequence. A violated state
// invariant (double retraction, unretract while not retracted, an E
// move with no tool selected) surfaces as a *StateError return rather
// than an unwound panic.
func (a *Analyzer) Analyze(seq *List) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if se, ok := r.(*StateError); ok {
				err = se
				return
			}
			panic(r)
		}
	}()

	state := NewMachineState(a.cfg.RelativeEDistances)
	stack := []*MachineState{state}
	a.TotalRuntime = 0
	a.TotalFilamentUsage = map[int]float64{}

	seqIdx := 0
	for tok := seq.Head(); tok != nil; tok = tok.Next() {
		pre := stack[len(stack)-1]
		post := pre.Clone()
		stack[len(stack)-1] = post

		tok.setSeq(seqIdx)
		seqIdx++
		tok.setPreState(pre)
		tok.setPostState(post)

		var runtime float64

		switch t := tok.(type) {
		case *ToolChange:
			if t.NextTool == -1 {
				post.ToolSelected = nil
			} else {
				post.ToolSelected = intptr(t.NextTool)
				if _, ok := post.ToolExtrusion[t.NextTool]; !ok {
					post.ToolExtrusion[t.NextTool] = 0.0
				}
			}
			runtime = a.cfg.ToolChangeRuntime

		case *GCode:
			runtime = a.stepGCode(t, pre, post, &stack)

		case *Params:
			if t.Label == "AFTER_LAYER_CHANGE" {
				post.LayerNum = t.Int(0)
			}
			runtime = 0

		default:
			runtime = runtimeDefault
		}

		tok.setRuntime(runtime)
		a.TotalRuntime += runtime
	}

	return nil
}

func (a *Analyzer) stepGCode(t *GCode, pre, post *MachineState, stack *[]*MachineState) float64 {
	switch t.Mnemonic {
	case "G10":
		if len(t.Params) == 0 {
			if !a.cfg.RetractionFirmware {
				panic(stateErrf("encountered G10 firmware-retract while firmware retraction is disabled"))
			}
			if pre.ToolSelected == nil {
				panic(stateErrf("G10 firmware-retract encountered with no tool selected"))
			}
			if pre.IsRetracted() {
				panic(stateErrf("double firmware retraction (G10)"))
			}
			post.MarkRetracted(nil)
			return runtimeG10
		}
		return runtimeDefault

	case "G11":
		if !a.cfg.RetractionFirmware {
			panic(stateErrf("encountered G11 firmware-unretract while firmware retraction is disabled"))
		}
		if pre.ToolSelected == nil {
			panic(stateErrf("G11 firmware-unretract encountered with no tool selected"))
		}
		if !pre.IsRetracted() {
			panic(stateErrf("firmware unretract (G11) while not retracted"))
		}
		post.MarkUnretracted()
		return runtimeG11

	case "G1":
		return a.stepG1(t, pre, post)

	case "G90":
		post.AxesRelative = false
		return runtimeDefault

	case "G91":
		post.AxesRelative = true
		return runtimeDefault

	case "M120":
		*stack = append(*stack, post.Clone())
		return 0

	case "M121":
		if len(*stack) > 1 {
			*stack = (*stack)[:len(*stack)-1]
		}
		return 0

	default:
		return runtimeDefault
	}
}

func (a *Analyzer) stepG1(t *GCode, pre, post *MachineState) float64 {
	var runtime float64

	if v, ok := t.Float("F"); ok {
		post.FeedRate = f64ptr(v)
	}
	if v, ok := t.Float("X"); ok {
		x0 := 0.0
		if pre.X != nil {
			x0 = *pre.X
		}
		x1 := v
		if pre.AxesRelative {
			x1 = x0 + v
		}
		post.X = f64ptr(x1)
		tm := math.Abs(x1-x0) * 120.0 / (moveSpeedXY(a.cfg, pre) + moveSpeedXY(a.cfg, post))
		if tm > runtime {
			runtime = tm
		}
	}
	if v, ok := t.Float("Y"); ok {
		y0 := 0.0
		if pre.Y != nil {
			y0 = *pre.Y
		}
		y1 := v
		if pre.AxesRelative {
			y1 = y0 + v
		}
		post.Y = f64ptr(y1)
		tm := math.Abs(y1-y0) * 120.0 / (moveSpeedXY(a.cfg, pre) + moveSpeedXY(a.cfg, post))
		if tm > runtime {
			runtime = tm
		}
	}
	if v, ok := t.Float("Z"); ok {
		z0 := 0.0
		if pre.Z != nil {
			z0 = *pre.Z
		}
		z1 := v
		if pre.AxesRelative {
			z1 = z0 + v
		}
		post.Z = f64ptr(z1)
		tm := math.Abs(z1-z0) * 60.0 / a.cfg.MoveSpeedZ()
		if tm > runtime {
			runtime = tm
		}
	}
	if v, ok := t.Float("E"); ok {
		if pre.ToolSelected == nil {
			panic(stateErrf("E move encountered with no tool selected"))
		}
		toolID := *pre.ToolSelected

		e0 := pre.ToolExtrusion[toolID]
		var e1 float64
		if pre.ERelative {
			e1 = e0 + v
			post.ToolExtrusion[toolID] = e1
			a.TotalFilamentUsage[toolID] += v
		} else {
			e1 = v
			post.ToolExtrusion[toolID] = e1
			a.TotalFilamentUsage[toolID] += v - e0
		}

		tm := math.Abs(e1-e0) * 120.0 / (extrudSpeed(a.cfg, pre) + extrudSpeed(a.cfg, post))
		if tm > runtime {
			runtime = tm
		}

		if !a.cfg.RetractionFirmware {
			if v < 0.0 {
				dist := v
				post.MarkRetracted(&dist)
			} else if v > 0.0 && pre.IsRetracted() {
				post.MarkUnretracted()
			}
		}
	}

	return runtime
}

func moveSpeedXY(cfg *config.Config, s *MachineState) float64 {
	if s.FeedRate != nil && *s.FeedRate < cfg.MoveSpeedXY() {
		return *s.FeedRate
	}
	return cfg.MoveSpeedXY()
}

func extrudSpeed(cfg *config.Config, s *MachineState) float64 {
	if s.ToolSelected == nil {
		return cfg.ExtruderSpeedOf(0)
	}
	limit := cfg.ExtruderSpeedOf(*s.ToolSelected)
	if s.FeedRate != nil && *s.FeedRate < limit {
		return *s.FeedRate
	}
	return limit
}
