package gcode

// removableGCodes is the set the validator deletes outright: the
// planners re-emit temperature and linear-advance commands where they
// actually belong in the schedule.
var removableGCodes = map[string]bool{
	"M104": true,
	"M109": true,
	"M900": true,
	"M140": true,
	"M190": true,
}

// Validate runs the single forward fixer pass:
// it deletes slicer-emitted temperature/LA commands the planners will
// re-issue, rescales M106 fan speeds into [0,1], defaults a missing G10
// tool parameter to P0, and injects a synthetic T0 ahead of the first
// layer if the file never changes tool. It returns the warnings it
// logged (callers typically just log.Printf them) and is idempotent:
// running it again on its own output is a no-op.
func Validate(seq *List) []string {
	var warnings []string

	foundTool := false
	var firstBeforeLayerChange *Params

	for tok := seq.Head(); tok != nil; {
		next := tok.Next()

		switch t := tok.(type) {
		case *GCode:
			if removableGCodes[t.Mnemonic] {
				seq.Remove(t)
				tok = next
				continue
			}

			if t.Mnemonic == "M106" {
				if s, ok := t.Float("S"); ok && s > 1.0 {
					t.SetFloat("S", s/255.0)
					warnings = append(warnings, "M106 fan speed rescaled from 0..255 to 0..1")
				}
			}

			if t.Mnemonic == "G10" {
				_, hasS := t.Params["S"]
				_, hasR := t.Params["R"]
				_, hasP := t.Params["P"]
				if (hasS || hasR) && !hasP {
					t.SetInt("P", 0)
					warnings = append(warnings, "G10 token doesn't specify active tool, defaulting to P0")
				}
			}

		case *Params:
			if t.Label == "BEFORE_LAYER_CHANGE" && firstBeforeLayerChange == nil {
				firstBeforeLayerChange = t
			}

		case *ToolChange:
			if t.NextTool >= 0 {
				foundTool = true
			}
		}

		tok = next
	}

	if !foundTool && firstBeforeLayerChange != nil {
		warnings = append(warnings, "no tool-change instruction found in stream, injecting a default T0")
		seq.InsertBefore(firstBeforeLayerChange, NewToolChange(-1, 0))
	}

	return warnings
}
