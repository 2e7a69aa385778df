package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/john/tcpspp/config"
	"github.com/john/tcpspp/gcode"
	"github.com/john/tcpspp/planner"
	"github.com/john/tcpspp/report"
)

func main() {
	flag.Usage = func() {
		log.Printf("usage: tcpspp <input.gcode>")
	}
	defaultsPath := flag.String("defaults", "", "optional YAML file supplying fallbacks for unset SLIC3R_* variables")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	inputPath := flag.Arg(0)

	cfg, err := config.Load(*defaultsPath)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		log.Fatalf("reading %s: %v", inputPath, err)
	}

	log.Printf("tcpspp: parsing %s", inputPath)
	seq, err := gcode.Parse(data)
	if err != nil {
		log.Fatalf("parse error: %v", err)
	}

	log.Printf("tcpspp: validating")
	for _, w := range gcode.Validate(seq) {
		report.Warning("%s", w)
	}

	analyzer := gcode.NewAnalyzer(cfg)
	if err := analyzer.Analyze(seq); err != nil {
		log.Fatalf("state error: %v", err)
	}

	log.Printf("tcpspp: planning prime tower")
	tower := planner.NewPrimeTower(cfg)
	layers, err := tower.Plan(seq)
	if err != nil {
		log.Fatalf("prime-tower planner error: %v", err)
	}
	report.Layers(layers)

	// Re-run the analyser so the thermal and fan planners, and the
	// statistics rewrite, see runtimes/positions that account for the
	// prime-tower's spliced-in tokens.
	if err := analyzer.Analyze(seq); err != nil {
		log.Fatalf("state error: %v", err)
	}

	log.Printf("tcpspp: scheduling tool temperatures")
	thermal := planner.NewThermalPlanner(cfg)
	if err := thermal.Plan(seq); err != nil {
		log.Fatalf("thermal planner error: %v", err)
	}

	log.Printf("tcpspp: scheduling part cooling fan")
	fan := planner.NewFanPlanner(cfg)
	if err := fan.Plan(seq); err != nil {
		log.Fatalf("fan planner error: %v", err)
	}

	if err := analyzer.Analyze(seq); err != nil {
		log.Fatalf("state error: %v", err)
	}
	analyzer.UpdateStatistics(seq)
	report.Totals(analyzer)

	outputPath := outputPathFor(inputPath, layers, cfg, analyzer)
	log.Printf("tcpspp: writing %s", outputPath)
	if err := os.WriteFile(outputPath, gcode.Serialize(seq), 0644); err != nil {
		log.Fatalf("writing %s: %v", outputPath, err)
	}

	log.Printf("tcpspp: done")
}

// outputPathFor derives the output filename: the input path with its
// extension replaced by a suffix naming every tool active or idle in
// the first prime-tower layer (with its filament type) and the
// estimated print time.
func outputPathFor(inputPath string, layers []*planner.LayerInfo, cfg *config.Config, a *gcode.Analyzer) string {
	base := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))

	var suffix string
	if len(layers) > 0 {
		suffix = toolFilamentNames(layers[0], cfg)
	}

	out := base
	if suffix != "" {
		out += "_" + suffix
	}
	out += "_" + a.TotalRuntimeStr() + ".gcode"
	return out
}

func toolFilamentNames(l *planner.LayerInfo, cfg *config.Config) string {
	tools := map[int]bool{}
	for t := range l.ActiveTools {
		tools[t] = true
	}
	for t := range l.IdleTools {
		tools[t] = true
	}

	ids := make([]int, 0, len(tools))
	for t := range tools {
		ids = append(ids, t)
	}
	sort.Ints(ids)

	parts := make([]string, len(ids))
	for i, t := range ids {
		parts[i] = "T" + strconv.Itoa(t) + "-" + cfg.FilamentTypeOf(t)
	}
	return strings.Join(parts, "_")
}
