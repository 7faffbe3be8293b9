// Package integral implements ComputeIntegral: the thread-parallel Monte
// Carlo driver that repeatedly samples (i,j,k,l) particle chains, folds
// each accepted chain into a shared IntegralAccumulator through the
// second/third/fourth kernels, and iterates to convergence for every
// multi-tracer combination (spec.md section 4.4).
package integral

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rascalc-go/covmc/accumulator"
	"github.com/rascalc-go/covmc/jackknife"
	"github.com/rascalc-go/covmc/particle"
	"github.com/rascalc-go/covmc/telemetry"
)

// Config carries the run-time knobs for one ComputeIntegral invocation.
type Config struct {
	Variant accumulator.Variant

	NBin, MBin int
	RMin, RMax float64
	KMin, KMax float64 // Power mode only
	CellSize   float64 // not read by the Driver: RandomDraws arrive prebuilt in Resources
	DrawRadius int     // not read by the Driver, as for CellSize

	NLoop         int // maximum outer (convergence) loops
	N2, N3, N4    int // j/k/l draws per primary particle
	NThreads      int
	ConvergeAfter int     // consecutive loops under threshold before early exit
	FrobeniusTol  float64 // relative C4 Frobenius delta convergence threshold

	Seed int64

	Jackknife bool
	NRegions  int

	OutputDir string

	// UseXiProposal selects the |xi(r)|-weighted proposal for k and l draws
	// instead of the default 1/r^2 proposal (spec.md section 4.2).
	UseXiProposal bool
}

// Driver runs ComputeIntegral against a fixed Resources bundle.
type Driver struct {
	Cfg Config
	Res Resources
	Log *slog.Logger

	// Telemetry, if set, receives per-loop progress rows and each combo's
	// final acceptance-ratio report in addition to the slog output.
	Telemetry *telemetry.OutputManager
}

// New constructs a Driver, defaulting Log to slog.Default() when nil.
func New(cfg Config, res Resources, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{Cfg: cfg, Res: res, Log: logger}
}

// Run executes ComputeIntegral for every applicable multi-tracer
// combination and returns the converged (or loop-exhausted) accumulator for
// each, keyed by the combination's label.
func (d *Driver) Run(ctx context.Context) (map[string]*accumulator.Accumulator, error) {
	combos := SingleTracerCombos
	if d.Res.NTracers() > 1 {
		combos = Combos
	}

	results := make(map[string]*accumulator.Accumulator, len(combos))
	for _, combo := range combos {
		d.Log.Info("starting tracer combination", "combo", combo.Label)
		acc, err := d.runCombo(ctx, combo)
		if err != nil {
			return nil, fmt.Errorf("integral: combo %s: %w", combo.Label, err)
		}
		results[combo.Label] = acc

		if d.Cfg.OutputDir != "" {
			if err := acc.SaveIntegrals(d.Cfg.OutputDir, combo.Label); err != nil {
				return nil, fmt.Errorf("integral: saving combo %s: %w", combo.Label, err)
			}
			if d.Cfg.Jackknife {
				if err := acc.SaveJackknifeIntegrals(d.Cfg.OutputDir, combo.Label); err != nil {
					return nil, fmt.Errorf("integral: saving jackknife combo %s: %w", combo.Label, err)
				}
			}
		}
	}
	return results, nil
}

func (d *Driver) newAccumulator(combo Combo) (*accumulator.Accumulator, error) {
	cfg := accumulator.Config{
		Kind: d.Cfg.Variant,
		NBin: d.Cfg.NBin, MBin: d.Cfg.MBin,
		RMin: d.Cfg.RMin, RMax: d.Cfg.RMax,
		KMin: d.Cfg.KMin, KMax: d.Cfg.KMax,
	}
	if d.Cfg.Variant == accumulator.Legendre || d.Cfg.Variant == accumulator.Power {
		cfg.Survey12 = d.Res.surveyCorr(combo.I1, combo.I2)
		cfg.Survey23 = d.Res.surveyCorr(combo.I2, combo.I3)
		cfg.Survey34 = d.Res.surveyCorr(combo.I3, combo.I4)
	}
	if d.Cfg.Jackknife {
		cfg.Jackknife = true
		cfg.NRegions = d.Cfg.NRegions
		cfg.JK12 = d.Res.jkWeights(combo.I1, combo.I2)
	}
	return accumulator.New(cfg)
}

func (d *Driver) productWeights1234(combo Combo, nbins int) []float64 {
	jk12 := d.Res.jkWeights(combo.I1, combo.I2)
	jk34 := d.Res.jkWeights(combo.I3, combo.I4)
	if jk12 == nil || jk34 == nil {
		return make([]float64, nbins*nbins)
	}
	// Reuse the precomputed self-product when the (1,2) and (3,4) tracer
	// pairs coincide (spec.md section 4.4's reuse-or-recompute rule);
	// recompute the cross product otherwise.
	if combo.I1 == combo.I3 && combo.I2 == combo.I4 {
		return jk12.ProductWeights
	}
	return jackknife.Product(jk12, jk34)
}

// normalizeArgsFor builds the grid-norm portion of a NormalizeArgs for this
// combo's four tracer grids (spec.md section 4.3's n1,n2,n3,n4 parameters),
// leaving the attempted-sample totals for the caller to fill in.
func (d *Driver) normalizeArgsFor(combo Combo) accumulator.NormalizeArgs {
	return accumulator.NormalizeArgs{
		N1Norm: d.Res.grid(combo.I1).Norm,
		N2Norm: d.Res.grid(combo.I2).Norm,
		N3Norm: d.Res.grid(combo.I3).Norm,
		N4Norm: d.Res.grid(combo.I4).Norm,
	}
}

func (d *Driver) runCombo(ctx context.Context, combo Combo) (*accumulator.Accumulator, error) {
	start := time.Now()

	global, err := d.newAccumulator(combo)
	if err != nil {
		return nil, err
	}
	if d.Cfg.Jackknife {
		global.ProductWeights1234 = d.productWeights1234(combo, global.NBins)
	}

	grid1 := d.Res.grid(combo.I1)
	if grid1 == nil {
		return nil, fmt.Errorf("integral: no grid registered for tracer %d", combo.I1)
	}

	workers := make([]*worker, d.Cfg.NThreads)
	for t := range workers {
		acc, err := d.newAccumulator(combo)
		if err != nil {
			return nil, err
		}
		if d.Cfg.Jackknife {
			acc.ProductWeights1234 = global.ProductWeights1234
		}
		workers[t] = newWorker(d, combo, acc, grid1.MaxNP, int64(t))
	}

	var prevLoop *accumulator.Accumulator
	consecutiveConverged := 0

	var totPairs, totTriples, totQuads uint64

	for loop := 0; loop < d.Cfg.NLoop; loop++ {
		select {
		case <-ctx.Done():
			return global, ctx.Err()
		default:
		}

		d.dispatchLoop(grid1, workers)

		loopAcc, err := d.newAccumulator(combo)
		if err != nil {
			return nil, err
		}
		var loopPairs, loopTriples, loopQuads uint64
		for _, w := range workers {
			if err := loopAcc.SumInts(w.acc); err != nil {
				return nil, err
			}
			w.acc.Reset()
			loopPairs += w.loopPairs
			loopTriples += w.loopTriples
			loopQuads += w.loopQuads
			w.loopPairs, w.loopTriples, w.loopQuads = 0, 0, 0
		}
		totPairs += loopPairs
		totTriples += loopTriples
		totQuads += loopQuads

		normArgs := d.normalizeArgsFor(combo)
		normArgs.Pairs, normArgs.Triples, normArgs.Quads = float64(loopPairs), float64(loopTriples), float64(loopQuads)
		loopAcc.Normalize(normArgs)

		if err := global.SumInts(loopAcc); err != nil {
			return nil, err
		}

		delta := accumulator.FrobeniusDeltas{}
		if prevLoop != nil {
			delta, err = loopAcc.FrobeniusDifferenceSum(prevLoop)
			if err != nil {
				return nil, err
			}
		}
		prevLoop = loopAcc.Snapshot()

		cnt2, cnt3, cnt4 := loopAcc.AcceptedCounts()
		stats := telemetry.LoopStats{
			Combo: combo.Label, Loop: loop,
			Cnt2: cnt2, Cnt3: cnt3, Cnt4: cnt4,
			C4Delta: delta.C4, Elapsed: time.Since(start),
		}

		if loop > 0 && delta.C4 < d.Cfg.FrobeniusTol {
			consecutiveConverged++
		} else {
			consecutiveConverged = 0
		}
		stats.Converged = consecutiveConverged >= d.Cfg.ConvergeAfter

		telemetry.LogLoop(d.Log, stats)
		d.Log.Info("frobenius deltas", "combo", combo.Label, "loop", loop, "c2", delta.C2, "c3", delta.C3, "c4", delta.C4)
		if err := d.Telemetry.WriteLoopStats(stats); err != nil {
			return nil, err
		}

		if stats.Converged {
			d.Log.Info("converged", "combo", combo.Label, "loop", loop)
			break
		}
	}

	finalArgs := d.normalizeArgsFor(combo)
	finalArgs.Pairs, finalArgs.Triples, finalArgs.Quads = float64(totPairs), float64(totTriples), float64(totQuads)
	global.Normalize(finalArgs)

	d.emitFinalReport(combo, grid1, workers, global, totPairs, totTriples, totQuads, time.Since(start))

	return global, nil
}

// emitFinalReport gathers the run-accumulated cell-attempt/used-cell
// counters across every worker and logs/writes the combo's acceptance-ratio
// and throughput summary, mirroring compute_integral.h's end-of-run printf
// block (spec.md section 4.4's "Final report", section 8's Testable
// Property 1).
func (d *Driver) emitFinalReport(combo Combo, grid1 *particle.Grid, workers []*worker, global *accumulator.Accumulator, totPairs, totTriples, totQuads uint64, runtime time.Duration) {
	var cellAttempt2, cellAttempt3, cellAttempt4 uint64
	var usedCell2, usedCell3, usedCell4 uint64
	for _, w := range workers {
		cellAttempt2 += w.cellAttempt2
		cellAttempt3 += w.cellAttempt3
		cellAttempt4 += w.cellAttempt4
		usedCell2 += w.usedCell2
		usedCell3 += w.usedCell3
		usedCell4 += w.usedCell4
	}

	cnt2, cnt3, cnt4 := global.AcceptedCounts()

	// Legendre and Power accumulate mbin^2 sub-bins per radial pair, so the
	// particle-acceptance ratio is further divided by mbin^2 to recover a
	// per-pair-not-per-component rate (compute_integral.h:541).
	divisor := 1.0
	if d.Cfg.Variant == accumulator.Legendre || d.Cfg.Variant == accumulator.Power {
		divisor = float64(d.Cfg.MBin * d.Cfg.MBin)
	}

	meanPairsPerPrimary := 0.0
	if grid1.NP > 0 {
		meanPairsPerPrimary = float64(cnt2) / float64(grid1.NP)
	}

	report := telemetry.FinalReport{
		Combo: combo.Label,

		CellAttempt2: cellAttempt2, CellAttempt3: cellAttempt3, CellAttempt4: cellAttempt4,
		UsedCell2: usedCell2, UsedCell3: usedCell3, UsedCell4: usedCell4,

		Cnt2: cnt2, Cnt3: cnt3, Cnt4: cnt4,
		TotPairs: totPairs, TotTriples: totTriples, TotQuads: totQuads,

		ParticleAcceptanceDivisor: divisor,
		MeanPairsPerPrimary:       meanPairsPerPrimary,

		Runtime:  runtime,
		NThreads: d.Cfg.NThreads,
	}

	telemetry.LogFinalReport(d.Log, report)
	if err := d.Telemetry.WriteFinalReport(report); err != nil {
		d.Log.Warn("writing final report", "combo", combo.Label, "error", err)
	}
}

// dispatchLoop sweeps every filled primary cell exactly once this loop,
// splitting grid1.Filled into contiguous chunks across the persistent worker
// pool and waiting for all of them to finish. The parallelism axis is the
// set of cells within one outer loop, not a resampled draw count: every
// filled cell contributes exactly once per loop (spec.md section 4.4's
// pseudocode, "for n1 in [0, grid1.nf)"; section 5, "work distribution is
// over outer iterations n_loop").
func (d *Driver) dispatchLoop(grid1 *particle.Grid, workers []*worker) {
	nf := len(grid1.Filled)
	var wg sync.WaitGroup
	chunk := (nf + len(workers) - 1) / len(workers)
	for t, w := range workers {
		start := t * chunk
		end := start + chunk
		if end > nf {
			end = nf
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(w *worker, cells []int) {
			defer wg.Done()
			w.runDraws(grid1, cells)
		}(w, grid1.Filled[start:end])
	}
	wg.Wait()
}

// worker holds one pool slot's scratch state, created once per combo and run
// by a goroutine that dispatchLoop starts each loop: its own RNG, its own
// accumulator (reduced into the loop total each loop and reset), and
// reusable buffers sized to the primary grid's largest cell. cellAttempt/
// usedCell counters and loopPairs/loopTriples/loopQuads are reduction
// state read by the driver after dispatchLoop returns and workers are
// otherwise idle, so they need no extra synchronization.
type worker struct {
	driver *Driver
	combo  Combo
	acc    *accumulator.Accumulator
	rng    *rand.Rand

	primList []particle.Particle
	primIDs  []int
	wIJ      []float64
	binIJ    []int
	polyIJ   [][]float64
	wIJK     []float64
	binIK    []int
	polyIK   [][]float64

	// loopPairs/loopTriples/loopQuads are the attempted-sample totals for
	// the current loop only (reset by the driver after each reduction),
	// used as Normalize's denominators (spec.md section 4.3).
	loopPairs, loopTriples, loopQuads uint64

	// cellAttempt*/usedCell* accumulate across the whole run (never
	// reset), used only in the final acceptance-ratio report.
	cellAttempt2, cellAttempt3, cellAttempt4 uint64
	usedCell2, usedCell3, usedCell4          uint64
}

func newWorker(d *Driver, combo Combo, acc *accumulator.Accumulator, maxNP int, threadIdx int64) *worker {
	w := &worker{
		driver:   d,
		combo:    combo,
		acc:      acc,
		rng:      rand.New(rand.NewSource(d.Cfg.Seed * (threadIdx + 1))),
		primList: make([]particle.Particle, maxNP),
		primIDs:  make([]int, maxNP),
		wIJ:      make([]float64, maxNP),
		binIJ:    make([]int, maxNP),
		wIJK:     make([]float64, maxNP),
		binIK:    make([]int, maxNP),
	}
	if d.Cfg.Variant != accumulator.Angular {
		w.polyIJ = make([][]float64, maxNP)
		w.polyIK = make([][]float64, maxNP)
		for i := range w.polyIJ {
			w.polyIJ[i] = make([]float64, d.Cfg.MBin)
			w.polyIK[i] = make([]float64, d.Cfg.MBin)
		}
	}
	return w
}

// runDraws sweeps every cell in cells exactly once, each expanding into
// N2*N3*N4 nested j/k/l draws folded through the second/third/fourth
// kernels (spec.md section 4.4's nested loop structure).
func (w *worker) runDraws(grid1 *particle.Grid, cells []int) {
	cfg := w.driver.Cfg
	res := w.driver.Res

	grid2 := res.grid(w.combo.I2)
	grid3 := res.grid(w.combo.I3)
	grid4 := res.grid(w.combo.I4)
	cfIK := res.corrFunc(w.combo.I1, w.combo.I3)
	drawJ := res.draws(w.combo.I1, w.combo.I2)
	drawK := res.draws(w.combo.I1, w.combo.I3)
	drawL := res.draws(w.combo.I3, w.combo.I4)

	xiIK := make([]float64, len(w.primList))

	for _, cellID := range cells {
		cellCoord := grid1.CellIDFrom1D(cellID)
		pln := grid1.ParticleList(cellID, w.primList, w.primIDs)
		if pln == 0 {
			continue
		}

		// Attempted-sample totals are booked once per primary cell swept,
		// regardless of how many of its N2*N3*N4 draws are later accepted
		// into a bin (spec.md section 4.3, "totals of attempted samples
		// used as denominators").
		w.loopPairs += uint64(pln) * uint64(cfg.N2)
		w.loopTriples += uint64(pln) * uint64(cfg.N2) * uint64(cfg.N3)
		w.loopQuads += uint64(pln) * uint64(cfg.N2) * uint64(cfg.N3) * uint64(cfg.N4)

		for j := 0; j < cfg.N2; j++ {
			w.cellAttempt2++
			delta, pRatio := drawJ.RandomCubedraw(w.rng)
			shift := grid2.CellSep(delta)
			jCell := [3]int{cellCoord[0] + delta[0], cellCoord[1] + delta[1], cellCoord[2] + delta[2]}
			jp, _, n2, n21, n22, ok := grid2.DrawParticle(jCell, shift, w.rng)
			if !ok {
				continue
			}
			w.usedCell2++

			// Importance weight: proposal/uniform ratio divided by the
			// primary grid's total particle count and by the drawn
			// secondary cell's occupancy (spec.md section 4.4's
			// p2 := p2/(grid1.np*sln), p21 := p2/(grid1.np1*sln1) chain).
			p2 := pRatio / (float64(grid1.NP) * float64(n2))
			p21, p22 := 0.0, 0.0
			if n21 > 0 {
				p21 = pRatio / (float64(grid1.NP1) * float64(n21))
			}
			if n22 > 0 {
				p22 = pRatio / (float64(grid1.NP2) * float64(n22))
			}

			n2Accepted := w.acc.Second(w.primList[:pln], pln, jp, p2, p21, p22, w.wIJ, w.binIJ, w.polyIJ)
			if n2Accepted == 0 {
				continue
			}

			for k := 0; k < cfg.N3; k++ {
				w.cellAttempt3++
				var kDelta [3]int
				var kRatio float64
				if cfg.UseXiProposal {
					kDelta, kRatio = drawK.RandomXidraw(w.rng)
				} else {
					kDelta, kRatio = drawK.RandomCubedraw(w.rng)
				}
				kShift := grid3.CellSep(kDelta)
				kCell := [3]int{cellCoord[0] + kDelta[0], cellCoord[1] + kDelta[1], cellCoord[2] + kDelta[2]}
				kp, _, n3, ok := grid3.DrawParticleWithoutClass(kCell, kShift, w.rng)
				if !ok {
					continue
				}
				w.usedCell3++
				// Chain-multiplies the already primary-grid-normalized p2
				// (spec.md section 4.4: p3 *= p2/tln).
				p3 := kRatio * p2 / float64(n3)

				for i := 0; i < pln; i++ {
					if w.binIJ[i] == accumulator.SentinelBin || cfIK == nil {
						xiIK[i] = 0
						continue
					}
					sep := [3]float64{kp.Pos[0] - w.primList[i].Pos[0], kp.Pos[1] - w.primList[i].Pos[1], kp.Pos[2] - w.primList[i].Pos[2]}
					r := sepNorm(sep)
					xiIK[i] = cfIK.Eval(r)
				}

				n3Accepted := w.acc.Third(w.primList[:pln], w.binIJ, w.wIJ, w.polyIJ, pln, kp, xiIK, p3, w.wIJK, w.binIK, w.polyIK)
				if n3Accepted == 0 {
					continue
				}

				for l := 0; l < cfg.N4; l++ {
					w.cellAttempt4++
					var lDelta [3]int
					var lRatio float64
					if cfg.UseXiProposal {
						lDelta, lRatio = drawL.RandomXidraw(w.rng)
					} else {
						lDelta, lRatio = drawL.RandomCubedraw(w.rng)
					}
					lShift := grid4.CellSep(lDelta)
					lCell := [3]int{kCell[0] + lDelta[0], kCell[1] + lDelta[1], kCell[2] + lDelta[2]}
					lp, _, n4, ok := grid4.DrawParticleWithoutClass(lCell, lShift, w.rng)
					if !ok {
						continue
					}
					w.usedCell4++
					// Chain-multiplies the already chained p3 (spec.md
					// section 4.4: p4 *= p3/fln).
					p4 := lRatio * p3 / float64(n4)
					w.acc.Fourth(w.primList[:pln], w.binIJ, w.wIJK, w.polyIJ, pln, kp, lp, p4)
				}
			}
		}
	}
}

func sepNorm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
