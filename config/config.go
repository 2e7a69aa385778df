// Package config populates and validates the immutable configuration
// record every planner reads from. Values come primarily from
// SLIC3R_*-prefixed environment variables (as PrusaSlicer's post-processing
// script hook sets them), with an optional YAML sidecar file supplying
// fallbacks for anything the environment leaves unset.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigError reports a contradictory or unusable setting discovered
// during validation. An unset environment variable is not an error: it
// resolves to its fallback or default value (see Load).
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

func confErrf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// Config is the immutable record every planner reads from. Per-tool
// fields are slices indexed by tool id; NumTools is the length of the
// longest per-tool list loaded (at least 1). The slices are not padded
// or truncated to it: the per-tool accessors return the zero value for
// a tool past the end of a slice.
type Config struct {
	NumTools int

	Layer0Temp []float64
	LayerNTemp []float64

	DisableFanFirstLayers []int
	MaxFanSpeed           []float64 // normalized to [0,1] at load time

	NozzleDiameter      []float64
	FilamentDiameter    []float64
	ExtrusionMultiplier []float64

	MinLayerHeight []float64
	MaxLayerHeight []float64

	FilamentType    []string
	FilamentDensity []float64

	RetractionFirmware         bool
	RetractionLength           []float64
	RetractionSpeed            []float64
	RetractionZHop             []float64
	RetractionLengthToolchange []float64
	RelativeEDistances         bool
	WipeDistance               float64

	BedTempLayer0 []float64
	BedTempLayerN []float64

	CoreXY        bool
	MotorSpeedXY  float64
	MotorSpeedZ   float64
	ExtruderSpeed []float64

	PrimeTowerX, PrimeTowerY, PrimeTowerR float64
	BandWidth                             int
	BandNumFaces                          int
	BandBrimWidth                         int
	OptimizeLayers                        bool

	ToolChangeRuntime float64
	IdleDelta         float64
	HeatingRate       float64
	CoolingRate       float64

	PrimeTowerMoveSpeed  float64
	PrimeTowerPrintSpeed float64

	WipeTowerEnabled bool
}

// yamlOverlay mirrors Config's per-tool fields loosely, for an optional
// sidecar file used only to fill in values the environment left unset.
type yamlOverlay struct {
	Layer0Temp                 []float64 `yaml:"layer0_temp"`
	LayerNTemp                 []float64 `yaml:"layer_n_temp"`
	DisableFanFirstLayers      []int     `yaml:"disable_fan_first_layers"`
	MaxFanSpeed                []float64 `yaml:"max_fan_speed"`
	NozzleDiameter             []float64 `yaml:"nozzle_diameter"`
	FilamentDiameter           []float64 `yaml:"filament_diameter"`
	ExtrusionMultiplier        []float64 `yaml:"extrusion_multiplier"`
	MinLayerHeight             []float64 `yaml:"min_layer_height"`
	MaxLayerHeight             []float64 `yaml:"max_layer_height"`
	FilamentType               []string  `yaml:"filament_type"`
	FilamentDensity            []float64 `yaml:"filament_density"`
	RetractFirmware            *bool     `yaml:"retract_firmware"`
	RetractLength              []float64 `yaml:"retract_length"`
	RetractSpeed               []float64 `yaml:"retract_speed"`
	RetractZHop                []float64 `yaml:"retract_zhop"`
	RetractLengthToolchange    []float64 `yaml:"retract_length_toolchange"`
	RelativeEDistances         *bool     `yaml:"relative_e_distances"`
	WipeDistance               *float64  `yaml:"wipe_distance"`
	BedTempLayer0              []float64 `yaml:"bed_temp_layer0"`
	BedTempLayerN              []float64 `yaml:"bed_temp_layern"`
	CoreXY                     *bool     `yaml:"corexy"`
	MotorSpeedXY               *float64  `yaml:"motor_speed_xy"`
	MotorSpeedZ                *float64  `yaml:"motor_speed_z"`
	ExtruderSpeed              []float64 `yaml:"extruder_speed"`
	PrimeTowerX                *float64  `yaml:"prime_tower_x"`
	PrimeTowerY                *float64  `yaml:"prime_tower_y"`
	PrimeTowerR                *float64  `yaml:"prime_tower_r"`
	BandWidth                  *int      `yaml:"band_width"`
	BandNumFaces               *int      `yaml:"band_num_faces"`
	BandBrimWidth              *int      `yaml:"band_brim_width"`
	OptimizeLayers             *bool     `yaml:"optimize_layers"`
	ToolChangeRuntime          *float64  `yaml:"tool_change_runtime"`
	IdleDelta                  *float64  `yaml:"idle_delta"`
	HeatingRate                *float64  `yaml:"heating_rate"`
	CoolingRate                *float64  `yaml:"cooling_rate"`
	PrimeTowerMoveSpeed        *float64  `yaml:"prime_tower_move_speed"`
	PrimeTowerPrintSpeed       *float64  `yaml:"prime_tower_print_speed"`
	WipeTower                  *bool     `yaml:"wipe_tower"`
}

// env is a seam for tests to inject a fake environment without mutating
// the process's real one.
type env interface {
	Lookup(key string) (string, bool)
}

type osEnv struct{}

func (osEnv) Lookup(key string) (string, bool) { return os.LookupEnv(key) }

// Load builds a Config from SLIC3R_* environment variables, optionally
// falling back to defaultsPath (a YAML file) for anything unset. It does
// not validate; call Validate separately.
//
// A variable that is unset in the environment and absent from the
// defaults file resolves to its zero value rather than raising a
// ConfigError: the env+YAML overlay makes "unset" indistinguishable
// from "use the default," so there is nothing distinct to report here.
// Validate is what turns an unusable zero value into a ConfigError.
func Load(defaultsPath string) (*Config, error) {
	var overlay yamlOverlay
	if defaultsPath != "" {
		data, err := os.ReadFile(defaultsPath)
		if err == nil {
			if err := yaml.Unmarshal(data, &overlay); err != nil {
				return nil, fmt.Errorf("parsing defaults file %s: %w", defaultsPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading defaults file %s: %w", defaultsPath, err)
		}
	}
	return load(osEnv{}, overlay)
}

func load(e env, overlay yamlOverlay) (*Config, error) {
	cfg := &Config{}

	cfg.Layer0Temp = floatListOr(e, "SLIC3R_LAYER0_TEMP", overlay.Layer0Temp)
	cfg.LayerNTemp = floatListOr(e, "SLIC3R_LAYER_N_TEMP", overlay.LayerNTemp)
	cfg.DisableFanFirstLayers = intListOr(e, "SLIC3R_DISABLE_FAN_FIRST_LAYERS", overlay.DisableFanFirstLayers)
	cfg.MaxFanSpeed = floatListOr(e, "SLIC3R_MAX_FAN_SPEED", overlay.MaxFanSpeed)
	for i := range cfg.MaxFanSpeed {
		cfg.MaxFanSpeed[i] /= 255.0
	}
	cfg.NozzleDiameter = floatListOr(e, "SLIC3R_NOZZLE_DIAMETER", overlay.NozzleDiameter)
	cfg.FilamentDiameter = floatListOr(e, "SLIC3R_FILAMENT_DIAMETER", overlay.FilamentDiameter)
	cfg.ExtrusionMultiplier = floatListOr(e, "SLIC3R_EXTRUSION_MULTIPLIER", overlay.ExtrusionMultiplier)
	cfg.MinLayerHeight = floatListOr(e, "SLIC3R_MIN_LAYER_HEIGHT", overlay.MinLayerHeight)
	cfg.MaxLayerHeight = floatListOr(e, "SLIC3R_MAX_LAYER_HEIGHT", overlay.MaxLayerHeight)
	cfg.FilamentType = stringListOr(e, "SLIC3R_FILAMENT_TYPE", overlay.FilamentType)
	cfg.FilamentDensity = floatListOr(e, "SLIC3R_FILAMENT_DENSITY", overlay.FilamentDensity)

	cfg.RetractionFirmware = boolOr(e, "SLIC3R_RETRACT_FIRMWARE", overlay.RetractFirmware, false)
	cfg.RetractionLength = floatListOr(e, "SLIC3R_RETRACT_LENGTH", overlay.RetractLength)
	cfg.RetractionSpeed = floatListOr(e, "SLIC3R_RETRACT_SPEED", overlay.RetractSpeed)
	cfg.RetractionZHop = floatListOr(e, "SLIC3R_RETRACT_ZHOP", overlay.RetractZHop)
	cfg.RetractionLengthToolchange = floatListOr(e, "SLIC3R_RETRACT_LENGTH_TOOLCHANGE", overlay.RetractLengthToolchange)
	cfg.RelativeEDistances = boolOr(e, "SLIC3R_RELATIVE_E_DISTANCES", overlay.RelativeEDistances, false)
	cfg.WipeDistance = floatOr(e, "SLIC3R_WIPE_DISTANCE", overlay.WipeDistance, 0.0)

	cfg.BedTempLayer0 = floatListOr(e, "SLIC3R_BED_TEMP_LAYER0", overlay.BedTempLayer0)
	cfg.BedTempLayerN = floatListOr(e, "SLIC3R_BED_TEMP_LAYERN", overlay.BedTempLayerN)

	cfg.CoreXY = boolOr(e, "SLIC3R_COREXY", overlay.CoreXY, false)
	cfg.MotorSpeedXY = floatOr(e, "SLIC3R_MOTOR_SPEED_XY", overlay.MotorSpeedXY, 200.0)
	cfg.MotorSpeedZ = floatOr(e, "SLIC3R_MOTOR_SPEED_Z", overlay.MotorSpeedZ, 10.0)
	cfg.ExtruderSpeed = floatListOr(e, "SLIC3R_EXTRUDER_SPEED", overlay.ExtruderSpeed)

	cfg.PrimeTowerX = floatOr(e, "SLIC3R_PRIME_TOWER_X", overlay.PrimeTowerX, 0.0)
	cfg.PrimeTowerY = floatOr(e, "SLIC3R_PRIME_TOWER_Y", overlay.PrimeTowerY, 0.0)
	cfg.PrimeTowerR = floatOr(e, "SLIC3R_PRIME_TOWER_R", overlay.PrimeTowerR, 10.0)
	cfg.BandWidth = intOr(e, "SLIC3R_BAND_WIDTH", overlay.BandWidth, 2)
	cfg.BandNumFaces = intOr(e, "SLIC3R_BAND_NUM_FACES", overlay.BandNumFaces, 12)
	cfg.BandBrimWidth = intOr(e, "SLIC3R_BAND_BRIM_WIDTH", overlay.BandBrimWidth, 4)
	cfg.OptimizeLayers = boolOr(e, "SLIC3R_OPTIMIZE_LAYERS", overlay.OptimizeLayers, true)

	cfg.ToolChangeRuntime = floatOr(e, "SLIC3R_TOOL_CHANGE_RUNTIME", overlay.ToolChangeRuntime, 5.0)
	cfg.IdleDelta = floatOr(e, "SLIC3R_IDLE_DELTA", overlay.IdleDelta, 10.0)
	cfg.HeatingRate = floatOr(e, "SLIC3R_HEATING_RATE", overlay.HeatingRate, 2.0)
	cfg.CoolingRate = floatOr(e, "SLIC3R_COOLING_RATE", overlay.CoolingRate, 1.0)

	cfg.PrimeTowerMoveSpeed = floatOr(e, "SLIC3R_PRIME_TOWER_MOVE_SPEED", overlay.PrimeTowerMoveSpeed, 200.0)
	cfg.PrimeTowerPrintSpeed = floatOr(e, "SLIC3R_PRIME_TOWER_PRINT_SPEED", overlay.PrimeTowerPrintSpeed, 30.0)

	cfg.WipeTowerEnabled = boolOr(e, "SLIC3R_WIPE_TOWER", overlay.WipeTower, false)

	cfg.NumTools = maxLen(
		len(cfg.Layer0Temp), len(cfg.LayerNTemp), len(cfg.NozzleDiameter),
		len(cfg.FilamentDiameter), len(cfg.ExtrusionMultiplier),
		len(cfg.MinLayerHeight), len(cfg.MaxLayerHeight), len(cfg.FilamentType),
		len(cfg.RetractionLength), len(cfg.ExtruderSpeed),
	)
	if cfg.NumTools == 0 {
		cfg.NumTools = 1
	}

	return cfg, nil
}

// Validate enforces the contradictory-setting rules:
// firmware retraction off together with absolute E distances is
// invalid, and so is a wipe tower or non-zero per-tool-change
// retraction (this pipeline's own prime tower replaces both).
func (c *Config) Validate() error {
	if !c.RetractionFirmware && !c.RelativeEDistances {
		return confErrf("firmware retraction is disabled and relative E distances are disabled: one of the two must be enabled")
	}
	if c.WipeTowerEnabled {
		return confErrf("slicer wipe tower is enabled; this tool generates its own prime tower and the two are incompatible")
	}
	for i, v := range c.RetractionLengthToolchange {
		if v != 0 {
			return confErrf("tool %d has non-zero per-tool-change retraction (%.3f); this must be left at 0 and is handled by the prime tower move-in/out", i, v)
		}
	}
	if c.PrimeTowerR <= 0 {
		return confErrf("prime_tower_r must be positive")
	}
	if c.BandNumFaces < 3 {
		return confErrf("band_num_faces must be at least 3")
	}
	return nil
}

// floatAt returns the per-tool value at index i, or the zero value if the
// slice is shorter (slicer config may not enumerate every tool).
func floatAt(s []float64, i int) float64 {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

func intAt(s []int, i int) int {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

func stringAt(s []string, i int) string {
	if i < 0 || i >= len(s) {
		return ""
	}
	return s[i]
}

// Layer0TempOf returns tool i's layer-0 active temperature.
func (c *Config) Layer0TempOf(tool int) float64 { return floatAt(c.Layer0Temp, tool) }

// LayerNTempOf returns tool i's steady-state active temperature.
func (c *Config) LayerNTempOf(tool int) float64 { return floatAt(c.LayerNTemp, tool) }

// ActiveTemp returns the target active temperature for tool at the
// given layer: layer0Temp for layer 0, layerNTemp otherwise.
func (c *Config) ActiveTemp(layer, tool int) float64 {
	if layer == 0 {
		return c.Layer0TempOf(tool)
	}
	return c.LayerNTempOf(tool)
}

// BedTemp returns the bed temperature for the given layer class (0 or
// non-zero) and set of tools in use: the maximum across the set, since
// a bed shared by multiple materials must satisfy all of them.
func (c *Config) BedTemp(layer int, tools map[int]struct{}) float64 {
	src := c.BedTempLayerN
	if layer == 0 {
		src = c.BedTempLayer0
	}
	max := 0.0
	for tool := range tools {
		if v := floatAt(src, tool); v > max {
			max = v
		}
	}
	return max
}

// MinLayerHeightOf / MaxLayerHeightOf return a single tool's printable range.
func (c *Config) MinLayerHeightOf(tool int) float64 { return floatAt(c.MinLayerHeight, tool) }
func (c *Config) MaxLayerHeightOf(tool int) float64 { return floatAt(c.MaxLayerHeight, tool) }

// ToolsetLayerHeightRange returns the intersection of [min,max] layer
// height across every tool in tools: max-of-mins to min-of-maxes.
func (c *Config) ToolsetLayerHeightRange(tools []int) (min, max float64) {
	if len(tools) == 0 {
		return 0, 1e9
	}
	min, max = 0, 1e9
	for _, t := range tools {
		if v := c.MinLayerHeightOf(t); v > min {
			min = v
		}
		if v := c.MaxLayerHeightOf(t); v < max {
			max = v
		}
	}
	return min, max
}

// MoveSpeedXY returns the XY motor speed ceiling, scaled by sqrt(2) on
// CoreXY kinematics. An over-estimate is the safe direction here:
// under-estimating move time would start heating too late.
func (c *Config) MoveSpeedXY() float64 {
	if c.CoreXY {
		return c.MotorSpeedXY * 1.4142135623730951
	}
	return c.MotorSpeedXY
}

// MoveSpeedZ returns the Z motor speed ceiling.
func (c *Config) MoveSpeedZ() float64 { return c.MotorSpeedZ }

// ExtruderSpeedOf returns tool i's extruder motor speed.
func (c *Config) ExtruderSpeedOf(tool int) float64 { return floatAt(c.ExtruderSpeed, tool) }

// NozzleDiameterOf returns tool i's nozzle diameter.
func (c *Config) NozzleDiameterOf(tool int) float64 { return floatAt(c.NozzleDiameter, tool) }

// RetractionLengthOf returns tool i's standard retraction length.
func (c *Config) RetractionLengthOf(tool int) float64 { return floatAt(c.RetractionLength, tool) }

// RetractionSpeedOf returns tool i's retraction speed.
func (c *Config) RetractionSpeedOf(tool int) float64 { return floatAt(c.RetractionSpeed, tool) }

// DisableFanFirstLayersOf returns how many initial layers suppress the
// part cooling fan for tool i.
func (c *Config) DisableFanFirstLayersOf(tool int) int { return intAt(c.DisableFanFirstLayers, tool) }

// MaxFanSpeedOf returns tool i's fan speed ceiling, normalized to [0,1].
func (c *Config) MaxFanSpeedOf(tool int) float64 { return floatAt(c.MaxFanSpeed, tool) }

// FilamentTypeOf returns tool i's filament type name, used only in the
// output filename and the statistics rewrite.
func (c *Config) FilamentTypeOf(tool int) string { return stringAt(c.FilamentType, tool) }

// FilamentDiameterOf returns tool i's filament diameter, used in the
// extrusion-length calculation and the statistics rewrite's mm->cm3
// conversion.
func (c *Config) FilamentDiameterOf(tool int) float64 { return floatAt(c.FilamentDiameter, tool) }

// FilamentDensityOf returns tool i's filament density, used only in the
// statistics rewrite's cm3->g conversion.
func (c *Config) FilamentDensityOf(tool int) float64 { return floatAt(c.FilamentDensity, tool) }

// CalculateE computes the filament advance (mm) for a line of the given
// length printed at the given layer height for tool, from the
// nozzle-shaped line cross-section, rounded to 5 decimal places.
func (c *Config) CalculateE(tool int, layerHeight, length float64) float64 {
	d := floatAt(c.NozzleDiameter, tool)
	h := layerHeight
	area := (d-h)*h + 3.141592653589793*(h/2)*(h/2)
	filamentDiameter := floatAt(c.FilamentDiameter, tool)
	k := floatAt(c.ExtrusionMultiplier, tool)
	e := area * length * 4.0 / (3.141592653589793 * filamentDiameter * filamentDiameter) * k
	scale := 100000.0
	return float64(int(e*scale+0.5)) / scale
}

func maxLen(vals ...int) int {
	m := 0
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	sep := ","
	if strings.Contains(s, ";") {
		sep = ";"
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func floatListOr(e env, key string, fallback []float64) []float64 {
	if raw, ok := e.Lookup(key); ok && strings.TrimSpace(raw) != "" {
		parts := splitList(raw)
		out := make([]float64, len(parts))
		for i, p := range parts {
			v, _ := strconv.ParseFloat(p, 64)
			out[i] = v
		}
		return out
	}
	return fallback
}

func intListOr(e env, key string, fallback []int) []int {
	if raw, ok := e.Lookup(key); ok && strings.TrimSpace(raw) != "" {
		parts := splitList(raw)
		out := make([]int, len(parts))
		for i, p := range parts {
			v, _ := strconv.Atoi(p)
			out[i] = v
		}
		return out
	}
	return fallback
}

func stringListOr(e env, key string, fallback []string) []string {
	if raw, ok := e.Lookup(key); ok && strings.TrimSpace(raw) != "" {
		return splitList(raw)
	}
	return fallback
}

func boolOr(e env, key string, fallback *bool, def bool) bool {
	if raw, ok := e.Lookup(key); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err == nil {
			return v
		}
	}
	if fallback != nil {
		return *fallback
	}
	return def
}

func floatOr(e env, key string, fallback *float64, def float64) float64 {
	if raw, ok := e.Lookup(key); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err == nil {
			return v
		}
	}
	if fallback != nil {
		return *fallback
	}
	return def
}

func intOr(e env, key string, fallback *int, def int) int {
	if raw, ok := e.Lookup(key); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil {
			return v
		}
	}
	if fallback != nil {
		return *fallback
	}
	return def
}
