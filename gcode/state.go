package gcode

// MachineState is the analyser's shadow-interpreter snapshot, cloned
// per token. Position fields are pointers so "absent" is distinguishable
// from "zero".
type MachineState struct {
	X, Y, Z        *float64
	LayerNum       int
	FeedRate       *float64
	ToolSelected   *int
	ToolExtrusion  map[int]float64
	ToolRetraction map[int]float64
	ERelative      bool
	AxesRelative   bool // set by G91/G90
}

// NewMachineState returns the initial state at the start of a stream.
func NewMachineState(eRelative bool) *MachineState {
	return &MachineState{
		ToolExtrusion:  map[int]float64{},
		ToolRetraction: map[int]float64{},
		ERelative:      eRelative,
	}
}

// Clone returns a deep-enough copy: the two per-tool maps are copied so
// mutating the clone never affects the original, everything else is a
// value copy.
func (s *MachineState) Clone() *MachineState {
	cp := *s
	cp.ToolExtrusion = make(map[int]float64, len(s.ToolExtrusion))
	for k, v := range s.ToolExtrusion {
		cp.ToolExtrusion[k] = v
	}
	cp.ToolRetraction = make(map[int]float64, len(s.ToolRetraction))
	for k, v := range s.ToolRetraction {
		cp.ToolRetraction[k] = v
	}
	return &cp
}

func f64ptr(v float64) *float64 { return &v }
func intptr(v int) *int         { return &v }

// IsRetracted reports whether the currently selected tool is retracted.
// Panics if no tool is selected (a StateError condition the analyser
// must catch before calling this).
func (s *MachineState) IsRetracted() bool {
	if s.ToolSelected == nil {
		panic("gcode: IsRetracted queried with no tool selected")
	}
	v, ok := s.ToolRetraction[*s.ToolSelected]
	if !ok {
		return false
	}
	return v < 0.0
}

// Retraction returns the current retraction displacement for the
// selected tool (0 if never retracted).
func (s *MachineState) Retraction() float64 {
	if s.ToolSelected == nil {
		panic("gcode: Retraction queried with no tool selected")
	}
	return s.ToolRetraction[*s.ToolSelected]
}

// MarkRetracted marks the selected tool retracted. A nil distance marks
// the firmware-retract sentinel (-1.0); a non-nil distance accumulates
// (slicer-driven partial retraction).
func (s *MachineState) MarkRetracted(distance *float64) {
	if s.ToolSelected == nil {
		panic("gcode: MarkRetracted with no tool selected")
	}
	if distance != nil {
		s.ToolRetraction[*s.ToolSelected] += *distance
	} else {
		s.ToolRetraction[*s.ToolSelected] = -1.0
	}
}

// MarkUnretracted clears the selected tool's retraction state.
func (s *MachineState) MarkUnretracted() {
	if s.ToolSelected == nil {
		panic("gcode: MarkUnretracted with no tool selected")
	}
	s.ToolRetraction[*s.ToolSelected] = 0.0
}

// Extrusion returns the selected tool's cumulative extrusion.
func (s *MachineState) Extrusion() float64 {
	if s.ToolSelected == nil {
		return 0.0
	}
	return s.ToolExtrusion[*s.ToolSelected]
}

// SetExtrusion sets the selected tool's cumulative extrusion.
func (s *MachineState) SetExtrusion(val float64) {
	if s.ToolSelected == nil {
		panic("gcode: SetExtrusion with no tool selected")
	}
	s.ToolExtrusion[*s.ToolSelected] = val
}
