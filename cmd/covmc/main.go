// Command covmc runs the Monte Carlo covariance-matrix integrator: it loads
// a particle catalog and its supporting tables (correlation function,
// survey corrections, jackknife region weights — all prepared upstream by
// external collaborators, spec.md section 1), builds the grid/sampling
// resources, and drives ComputeIntegral to convergence for every
// multi-tracer combination, writing the resulting C2/C3/C4 tables to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rascalc-go/covmc/accumulator"
	"github.com/rascalc-go/covmc/affinity"
	"github.com/rascalc-go/covmc/config"
	"github.com/rascalc-go/covmc/corrfunc"
	"github.com/rascalc-go/covmc/integral"
	"github.com/rascalc-go/covmc/jackknife"
	"github.com/rascalc-go/covmc/particle"
	"github.com/rascalc-go/covmc/sampling"
	"github.com/rascalc-go/covmc/surveycorr"
	"github.com/rascalc-go/covmc/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use embedded defaults)")
	catalog1 := flag.String("catalog1", "", "Path to tracer-1 particle catalog (whitespace-delimited x y z w)")
	catalog2 := flag.String("catalog2", "", "Path to tracer-2 particle catalog (empty = single-tracer run)")
	xiTable := flag.String("xi-table", "", "Path to correlation-function table (whitespace-delimited r xi)")
	jkWeights := flag.String("jackknife-weights", "", "Path to region-major jackknife weight table (empty = jackknife disabled)")
	surveyCorr12 := flag.String("survey-corr", "", "Path to bin-major survey-correction table (Legendre/Power modes only)")
	outputDir := flag.String("output-dir", "", "Output directory override (empty = use config)")
	seed := flag.Int64("seed", 0, "RNG seed override (0 = use config, falling back to time-based)")
	maxLoops := flag.Int("max-loops", 0, "Outer loop count override (0 = use config)")
	variant := flag.String("variant", "", "Binning variant override: angular, legendre, power (empty = use config)")

	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *maxLoops > 0 {
		cfg.MonteCarlo.MaxLoops = *maxLoops
	}
	if *variant != "" {
		cfg.Output.Variant = *variant
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	rngSeed := cfg.Threading.Seed
	if *seed != 0 {
		rngSeed = *seed
	}
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	if cfg.Threading.PinAffinity {
		avail, err := affinity.Available()
		if err != nil {
			slog.Warn("could not query CPU affinity mask", "error", err)
		} else if avail < cfg.Threading.NThread {
			slog.Warn("fewer CPUs available than configured threads", "available", avail, "nthread", cfg.Threading.NThread)
		}
	}

	if *catalog1 == "" {
		slog.Error("missing required -catalog1 flag")
		os.Exit(1)
	}
	points1, err := loadCatalog(*catalog1, 1)
	if err != nil {
		slog.Error("loading catalog1", "error", err)
		os.Exit(1)
	}

	var points2 []particle.Particle
	multiTracer := *catalog2 != ""
	if multiTracer {
		points2, err = loadCatalog(*catalog2, 2)
		if err != nil {
			slog.Error("loading catalog2", "error", err)
			os.Exit(1)
		}
	}
	cfg.Tracers.MultiTracers = multiTracer

	dims, boxMin := gridDims(append(append([]particle.Particle{}, points1...), points2...), cfg.Binning.RMax)
	shifted1 := shiftToOrigin(points1, boxMin)
	grid1 := particle.New(shifted1, dims, cfg.Binning.RMax, cfg.Periodic)

	grids := map[int]*particle.Grid{1: grid1}
	if multiTracer {
		shifted2 := shiftToOrigin(points2, boxMin)
		grids[2] = particle.New(shifted2, dims, cfg.Binning.RMax, cfg.Periodic)
	}

	var rSamples, xiSamples []float64
	if *xiTable != "" {
		rSamples, xiSamples, err = loadXYTable(*xiTable)
		if err != nil {
			slog.Error("loading correlation function table", "error", err)
			os.Exit(1)
		}
	} else {
		rSamples, xiSamples = []float64{0, cfg.Binning.RMax}, []float64{1, 0}
	}
	cf, err := corrfunc.New(rSamples, xiSamples)
	if err != nil {
		slog.Error("building correlation function", "error", err)
		os.Exit(1)
	}

	corrFuncs := map[[2]int]*corrfunc.CorrelationFunction{
		{1, 1}: cf, {1, 2}: cf, {2, 1}: cf, {2, 2}: cf,
	}

	rd, err := sampling.New(cfg.MonteCarlo.DrawRadius, cfg.Binning.RMax, cf)
	if err != nil {
		slog.Error("building random draw tables", "error", err)
		os.Exit(1)
	}
	draws := map[[2]int]*sampling.RandomDraws{
		{1, 1}: rd, {1, 2}: rd, {2, 1}: rd, {2, 2}: rd,
	}

	res := integral.Resources{
		Grids:     grids,
		CorrFuncs: corrFuncs,
		Draws:     draws,
	}

	variantKind := accumulator.Angular
	switch config.Variant(cfg.Output.Variant) {
	case config.VariantLegendre:
		variantKind = accumulator.Legendre
	case config.VariantPower:
		variantKind = accumulator.Power
	}

	if variantKind != accumulator.Angular {
		if *surveyCorr12 == "" {
			slog.Error("survey correction table required for Legendre/Power variants (-survey-corr)")
			os.Exit(1)
		}
		sc, err := loadSurveyCorrection(*surveyCorr12, cfg.Binning.NBin, cfg.Binning.MBin)
		if err != nil {
			slog.Error("loading survey correction table", "error", err)
			os.Exit(1)
		}
		res.SurveyCorrs = map[[2]int]*surveycorr.SurveyCorrection{
			{1, 1}: sc, {1, 2}: sc, {2, 1}: sc, {2, 2}: sc,
		}
	}

	if cfg.Jackknife.Enabled {
		if *jkWeights == "" {
			slog.Error("jackknife weight table required when jackknife.enabled is set (-jackknife-weights)")
			os.Exit(1)
		}
		jw, nregions, err := loadJackknifeWeights(*jkWeights, cfg.Derived.NBins)
		if err != nil {
			slog.Error("loading jackknife weights", "error", err)
			os.Exit(1)
		}
		weights, err := jackknife.New(cfg.Derived.NBins, nregions, jw)
		if err != nil {
			slog.Error("building jackknife weights", "error", err)
			os.Exit(1)
		}
		res.JKWeights = map[[2]int]*jackknife.Weights{
			{1, 1}: weights, {1, 2}: weights, {2, 1}: weights, {2, 2}: weights,
		}
	}

	out, err := telemetry.NewOutputManager(cfg.Output.Dir)
	if err != nil {
		slog.Error("creating output manager", "error", err)
		os.Exit(1)
	}
	if out != nil {
		if err := out.WriteConfig(cfg); err != nil {
			slog.Error("writing config snapshot", "error", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	intCfg := integral.Config{
		Variant:       variantKind,
		NBin:          cfg.Binning.NBin,
		MBin:          cfg.Binning.MBin,
		RMin:          cfg.Binning.RMin,
		RMax:          cfg.Binning.RMax,
		KMin:          cfg.Power.KMin,
		KMax:          cfg.Power.KMax,
		CellSize:      cfg.Binning.RMax,
		DrawRadius:    cfg.MonteCarlo.DrawRadius,
		NLoop:         cfg.MonteCarlo.MaxLoops,
		N2:            cfg.MonteCarlo.N2,
		N3:            cfg.MonteCarlo.N3,
		N4:            cfg.MonteCarlo.N4,
		NThreads:      cfg.Threading.NThread,
		ConvergeAfter: cfg.MonteCarlo.ConvergeAfter,
		FrobeniusTol:  cfg.MonteCarlo.ConvergenceC4,
		Seed:          rngSeed,
		Jackknife:     cfg.Jackknife.Enabled,
		NRegions:      jackknifeRegionCount(res),
		OutputDir:     cfg.Output.Dir,
	}

	driver := integral.New(intCfg, res, logger)
	driver.Telemetry = out

	slog.Info("starting covariance integral",
		"variant", cfg.Output.Variant,
		"multi_tracer", multiTracer,
		"nthread", cfg.Threading.NThread,
		"seed", rngSeed,
	)

	results, err := driver.Run(context.Background())
	if err != nil {
		slog.Error("integral run failed", "error", err)
		os.Exit(1)
	}

	for label, acc := range results {
		cnt2, cnt3, cnt4 := acc.AcceptedCounts()
		slog.Info("combo complete", "combo", label, "cnt2", cnt2, "cnt3", cnt3, "cnt4", cnt4)
	}
}

func jackknifeRegionCount(res integral.Resources) int {
	for _, w := range res.JKWeights {
		return w.NRegions
	}
	return 0
}

// loadCatalog reads a whitespace-delimited "x y z [w]" particle catalog. One
// particle per line; a missing fourth column defaults its weight to 1.
// Input parsing of particle catalogs is an external collaborator's concern
// (spec.md section 1); this loader is the CLI's minimal bridge to it, not
// part of the integrator core.
func loadCatalog(path string, tracer uint8) ([]particle.Particle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	var out []particle.Particle
	for lineNo, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("catalog %s line %d: expected at least 3 columns, got %d", path, lineNo+1, len(fields))
		}
		var p particle.Particle
		p.Tracer = tracer
		p.Weight = 1
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("catalog %s line %d: parsing coordinate %d: %w", path, lineNo+1, i, err)
			}
			p.Pos[i] = v
		}
		if len(fields) >= 4 {
			w, err := strconv.ParseFloat(fields[3], 64)
			if err != nil {
				return nil, fmt.Errorf("catalog %s line %d: parsing weight: %w", path, lineNo+1, err)
			}
			p.Weight = w
		}
		out = append(out, p)
	}
	return out, nil
}

// loadXYTable reads a whitespace-delimited two-column table ("x y" per
// line), used both for the correlation-function table and any other
// two-column input.
func loadXYTable(path string) (xs, ys []float64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading table %s: %w", path, err)
	}
	for lineNo, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, nil, fmt.Errorf("table %s line %d: expected 2 columns, got %d", path, lineNo+1, len(fields))
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("table %s line %d: %w", path, lineNo+1, err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("table %s line %d: %w", path, lineNo+1, err)
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	return xs, ys, nil
}

// loadSurveyCorrection reads a flat, row-major (bin-major) whitespace table
// of nbin*mbin coefficients, one value per line.
func loadSurveyCorrection(path string, nbin, mbin int) (*surveycorr.SurveyCorrection, error) {
	flat, err := loadFlatTable(path)
	if err != nil {
		return nil, err
	}
	return surveycorr.New(nbin, mbin, flat)
}

// loadJackknifeWeights reads a flat, region-major whitespace table of
// nregions*nbins weights, one value per line, inferring nregions from the
// file length.
func loadJackknifeWeights(path string, nbins int) (weights []float64, nregions int, err error) {
	flat, err := loadFlatTable(path)
	if err != nil {
		return nil, 0, err
	}
	if len(flat)%nbins != 0 {
		return nil, 0, fmt.Errorf("jackknife weight table %s: length %d not a multiple of nbins %d", path, len(flat), nbins)
	}
	return flat, len(flat) / nbins, nil
}

func loadFlatTable(path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading table %s: %w", path, err)
	}
	var out []float64
	for _, field := range strings.Fields(string(data)) {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", path, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// gridDims derives a cubic-cell grid sized so every particle falls within
// bounds, returning the per-axis cell counts and the coordinate origin to
// shift catalogs by. Deriving grid geometry from catalog extent is the
// minimal bridge needed since partitioning geometry itself, not catalog
// parsing, is the integrator's concern (spec.md section 1).
func gridDims(points []particle.Particle, cellSize float64) (dims [3]int, boxMin [3]float64) {
	if len(points) == 0 {
		return [3]int{1, 1, 1}, [3]float64{}
	}
	boxMin = points[0].Pos
	boxMax := points[0].Pos
	for _, p := range points {
		for i := 0; i < 3; i++ {
			if p.Pos[i] < boxMin[i] {
				boxMin[i] = p.Pos[i]
			}
			if p.Pos[i] > boxMax[i] {
				boxMax[i] = p.Pos[i]
			}
		}
	}
	for i := 0; i < 3; i++ {
		span := boxMax[i] - boxMin[i]
		n := int(span/cellSize) + 1
		if n < 1 {
			n = 1
		}
		dims[i] = n
	}
	return dims, boxMin
}

func shiftToOrigin(points []particle.Particle, boxMin [3]float64) []particle.Particle {
	out := make([]particle.Particle, len(points))
	for i, p := range points {
		out[i] = p
		for k := 0; k < 3; k++ {
			out[i].Pos[k] -= boxMin[k]
		}
	}
	return out
}
