package gcode

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// TotalRuntimeStr renders the accumulated runtime as "XhYmZs", the
// shape the driver folds into the output filename.
func (a *Analyzer) TotalRuntimeStr() string {
	total := int(a.TotalRuntime + 0.5)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%dh%dm%ds", h, m, s)
}

// FilamentUsageSummary returns per-tool filament totals ordered by tool
// index, for the CLI report and the statistics comment rewrite.
func (a *Analyzer) FilamentUsageSummary() []struct {
	Tool   int
	Length float64
} {
	tools := make([]int, 0, len(a.TotalFilamentUsage))
	for t := range a.TotalFilamentUsage {
		tools = append(tools, t)
	}
	sort.Ints(tools)

	out := make([]struct {
		Tool   int
		Length float64
	}, 0, len(tools))
	for _, t := range tools {
		out = append(out, struct {
			Tool   int
			Length float64
		}{Tool: t, Length: a.TotalFilamentUsage[t]})
	}
	return out
}

// UpdateStatistics rewrites the slicer's own "filament used [mm]"/
// "[cm3]"/"[g]" and "estimated printing time" comments in place with
// the totals this Analyzer computed. PrusaSlicer always assumes T0 is
// present and printed first, so a 0.0 is prepended when this run never
// touched tool 0. Comments that don't match any marker are left
// untouched.
func (a *Analyzer) UpdateStatistics(seq *List) {
	usage := a.FilamentUsageSummary()
	mm, cm3, g := a.filamentUsageByUnit(usage)

	mmLine := "filament used [mm] = " + joinF(mm)
	cm3Line := "filament used [cm3] = " + joinF(cm3)
	gLine := "filament used [g] = " + joinF(g)
	runtimeLine := "estimated printing time (normal mode) = " + a.TotalRuntimeStr()

	for tok := seq.Head(); tok != nil; tok = tok.Next() {
		c, ok := tok.(*Comment)
		if !ok {
			continue
		}
		switch {
		case strings.Contains(c.Text, "filament used [mm]"):
			c.Text = mmLine
		case strings.Contains(c.Text, "filament used [cm3]"):
			c.Text = cm3Line
		case strings.Contains(c.Text, "filament used [g]"):
			c.Text = gLine
		case strings.Contains(c.Text, "estimated printing time"):
			c.Text = runtimeLine
		}
	}
}

// filamentUsageByUnit converts the per-tool mm usage into cm3 and g
// (volume from the configured filament diameter, weight from the
// configured filament density), with the T0-always-first walkaround.
func (a *Analyzer) filamentUsageByUnit(usage []struct {
	Tool   int
	Length float64
}) (mm, cm3, g []float64) {
	hasZero := false
	for _, u := range usage {
		if u.Tool == 0 {
			hasZero = true
			break
		}
	}
	if !hasZero {
		mm = append(mm, 0.0)
		cm3 = append(cm3, 0.0)
		g = append(g, 0.0)
	}
	for _, u := range usage {
		mm = append(mm, u.Length)
		r := a.cfg.FilamentDiameterOf(u.Tool) / 2.0
		v := u.Length * math.Pi * r * r * 0.001
		cm3 = append(cm3, v)
		g = append(g, v*a.cfg.FilamentDensityOf(u.Tool))
	}
	return mm, cm3, g
}

func joinF(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%.2f", v)
	}
	return strings.Join(parts, ",")
}
