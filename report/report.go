// Package report prints the end-of-run summary: the prime-tower layer
// table, the per-tool filament totals and the runtime estimate.
package report

import (
	"fmt"
	"sort"

	"github.com/pterm/pterm"

	"github.com/john/tcpspp/gcode"
	"github.com/john/tcpspp/planner"
)

// Layers renders one row per prime-tower layer: its z-height, the
// active/idle/disabled toolsets and how many original layers were
// folded into it.
func Layers(layers []*planner.LayerInfo) {
	pterm.DefaultSection.Println("Prime tower layout")

	data := pterm.TableData{{"layer", "z", "height", "active", "idle", "disabled", "merged"}}
	for _, l := range layers {
		data = append(data, []string{
			fmt.Sprintf("%d", l.LayerNum),
			fmt.Sprintf("%.3f", l.LayerZ),
			fmt.Sprintf("%.3f", l.Height),
			fmt.Sprintf("%v", toolList(l.ActiveTools)),
			fmt.Sprintf("%v", toolList(l.IdleTools)),
			fmt.Sprintf("%v", toolList(l.DisabledTools)),
			fmt.Sprintf("%d", l.MergedCount),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// Totals renders the filament-per-tool and runtime summary the driver
// also folds into the rewritten statistics comments.
func Totals(a *gcode.Analyzer) {
	pterm.DefaultSection.Println("Totals")

	data := pterm.TableData{{"tool", "filament (mm)"}}
	for _, u := range a.FilamentUsageSummary() {
		data = append(data, []string{fmt.Sprintf("T%d", u.Tool), fmt.Sprintf("%.2f", u.Length)})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()

	pterm.Info.Printf("Estimated runtime: %s\n", a.TotalRuntimeStr())
}

// Warning surfaces a non-fatal condition logged during the pipeline
// (default-tool injection, fan rescale, missing P on G10).
func Warning(format string, args ...interface{}) {
	pterm.Warning.Printf(format+"\n", args...)
}

func toolList(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Ints(out)
	return out
}
