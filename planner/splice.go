package planner

import (
	"math"
	"strconv"

	"github.com/john/tcpspp/config"
	"github.com/john/tcpspp/gcode"
)

// insertAfterReturn splices tok after anchor and returns tok, so callers
// can thread a running "current position in the sequence" cursor through
// a chain of insertions without repeating the anchor variable.
func insertAfterReturn(seq *gcode.List, anchor gcode.Token, tok gcode.Token) gcode.Token {
	seq.InsertAfter(anchor, tok)
	return tok
}

func fmtF(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// retractCmd builds the retract command for tool, either firmware G10
// or a manual G1 E move, depending on cfg.RetractionFirmware. Manual
// retraction assumes relative extrusion distances, matching the
// relative_E_distances mode the validator requires when firmware
// retraction is off (documented in DESIGN.md as a simplification:
// absolute-E printers are not supported by the generated band moves).
func retractCmd(cfg *config.Config, tool int) *gcode.GCode {
	if cfg.RetractionFirmware {
		return gcode.NewGCode("G10", nil, "")
	}
	length := cfg.RetractionLengthOf(tool)
	speed := cfg.RetractionSpeedOf(tool) * 60
	return gcode.NewGCode("G1", map[string]string{"E": fmtF(-length), "F": fmtF(speed)}, "")
}

func unretractCmd(cfg *config.Config, tool int) *gcode.GCode {
	if cfg.RetractionFirmware {
		return gcode.NewGCode("G11", nil, "")
	}
	length := cfg.RetractionLengthOf(tool)
	speed := cfg.RetractionSpeedOf(tool) * 60
	return gcode.NewGCode("G1", map[string]string{"E": fmtF(length), "F": fmtF(speed)}, "")
}

// moveIn splices a travel move from the current position (captured in
// post) to (targetX, targetY, targetZ), wrapping the XY leg in a
// retract/unretract pair unless post already shows the tool retracted.
// No Z-hop and no wipe pass on arrival (see DESIGN.md).
func moveIn(seq *gcode.List, anchor gcode.Token, cfg *config.Config, tool int, post *gcode.MachineState, targetX, targetY, targetZ float64) gcode.Token {
	at := anchor
	wasRetracted := post != nil && post.ToolSelected != nil && post.IsRetracted()

	curZ := targetZ
	if post != nil && post.Z != nil {
		curZ = *post.Z
	}
	raising := targetZ >= curZ

	speed := cfg.PrimeTowerMoveSpeed * 60
	zMove := gcode.NewGCode("G1", map[string]string{"Z": fmtF(targetZ), "F": fmtF(speed)}, "")
	xyMove := gcode.NewGCode("G1", map[string]string{"X": fmtF(targetX), "Y": fmtF(targetY), "F": fmtF(speed)}, "")

	if raising {
		at = insertAfterReturn(seq, at, zMove)
	}
	if !wasRetracted {
		at = insertAfterReturn(seq, at, retractCmd(cfg, tool))
	}
	at = insertAfterReturn(seq, at, xyMove)
	if !raising {
		at = insertAfterReturn(seq, at, zMove)
	}
	if !wasRetracted {
		at = insertAfterReturn(seq, at, unretractCmd(cfg, tool))
	}
	return at
}

// moveOut reverses moveIn, restoring X, Y, Z and feed-rate to post (the
// state captured before the band was spliced in).
func moveOut(seq *gcode.List, anchor gcode.Token, cfg *config.Config, tool int, currentZ float64, post *gcode.MachineState) gcode.Token {
	at := anchor
	wasRetracted := post != nil && post.ToolSelected != nil && post.IsRetracted()

	origX, origY, origZ := 0.0, 0.0, currentZ
	feed := cfg.PrimeTowerMoveSpeed * 60
	if post != nil {
		if post.X != nil {
			origX = *post.X
		}
		if post.Y != nil {
			origY = *post.Y
		}
		if post.Z != nil {
			origZ = *post.Z
		}
		if post.FeedRate != nil {
			feed = *post.FeedRate
		}
	}
	raising := origZ >= currentZ

	zMove := gcode.NewGCode("G1", map[string]string{"Z": fmtF(origZ), "F": fmtF(feed)}, "")
	xyMove := gcode.NewGCode("G1", map[string]string{"X": fmtF(origX), "Y": fmtF(origY), "F": fmtF(feed)}, "")

	if !wasRetracted {
		at = insertAfterReturn(seq, at, retractCmd(cfg, tool))
	}
	if raising {
		at = insertAfterReturn(seq, at, zMove)
	}
	at = insertAfterReturn(seq, at, xyMove)
	if !raising {
		at = insertAfterReturn(seq, at, zMove)
	}
	if !wasRetracted {
		at = insertAfterReturn(seq, at, unretractCmd(cfg, tool))
	}
	return at
}

// bandTargetXY returns the first vertex moveIn should travel to: the
// start of the innermost ring of radii, rotated the same way the ring
// itself will be rotated for this layer.
func bandTargetXY(cfg *config.Config, cx, cy float64, radii []float64, layerNum int) (x, y float64) {
	verts := CircleVerticesRotated(cx, cy, radii[0], cfg.BandNumFaces, layerNum)
	return verts[0].X, verts[0].Y
}

// emitBand splices the polygon rings of radii, one regular polygon per
// ring, travelling between rings and printing each ring's perimeter
// with extrusion computed from the nozzle cross-section formula.
func emitBand(seq *gcode.List, anchor gcode.Token, cfg *config.Config, tool int, layerHeight, cx, cy float64, radii []float64, layerNum int) gcode.Token {
	at := anchor
	printSpeed := cfg.PrimeTowerPrintSpeed * 60

	for ringIdx, r := range radii {
		verts := CircleVerticesRotated(cx, cy, r, cfg.BandNumFaces, layerNum)
		if len(verts) == 0 {
			continue
		}
		if ringIdx > 0 {
			travel := gcode.NewGCode("G1", map[string]string{"X": fmtF(verts[0].X), "Y": fmtF(verts[0].Y), "F": fmtF(cfg.PrimeTowerMoveSpeed * 60)}, "")
			at = insertAfterReturn(seq, at, travel)
		}
		for i := 1; i < len(verts); i++ {
			length := math.Hypot(verts[i].X-verts[i-1].X, verts[i].Y-verts[i-1].Y)
			e := cfg.CalculateE(tool, layerHeight, length)
			g := gcode.NewGCode("G1", map[string]string{"X": fmtF(verts[i].X), "Y": fmtF(verts[i].Y), "E": fmtF(e), "F": fmtF(printSpeed)}, "")
			at = insertAfterReturn(seq, at, g)
		}
		first, last := verts[0], verts[len(verts)-1]
		closeLen := math.Hypot(first.X-last.X, first.Y-last.Y)
		e := cfg.CalculateE(tool, layerHeight, closeLen)
		closeSeg := gcode.NewGCode("G1", map[string]string{"X": fmtF(first.X), "Y": fmtF(first.Y), "E": fmtF(e), "F": fmtF(printSpeed)}, "")
		at = insertAfterReturn(seq, at, closeSeg)
	}
	return at
}
