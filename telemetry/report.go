package telemetry

import (
	"log/slog"
	"time"
)

// FinalReport summarizes one tracer combination's complete run: the
// cell-level attempt/success counts at each draw level, the accepted-versus-
// attempted particle counts, and throughput — mirroring compute_integral.h's
// end-of-run printf block (spec.md section 4.4's "Final report"; section 8's
// Testable Property 1, cell_attempt >= used_cell >= 0).
type FinalReport struct {
	Combo string

	CellAttempt2, CellAttempt3, CellAttempt4 uint64
	UsedCell2, UsedCell3, UsedCell4          uint64

	Cnt2, Cnt3, Cnt4                uint64
	TotPairs, TotTriples, TotQuads  uint64
	ParticleAcceptanceDivisor       float64 // mbin^2 for Legendre/Power, 1 otherwise
	MeanPairsPerPrimary             float64 // cnt2 / grid1.NP

	Runtime  time.Duration
	NThreads int
}

// CellAcceptance2/3/4 report used_cellN/cell_attemptN, the fraction of
// attempted draws at that level that landed in a valid grid cell.
func (r FinalReport) CellAcceptance2() float64 { return ratio(r.UsedCell2, r.CellAttempt2) }
func (r FinalReport) CellAcceptance3() float64 { return ratio(r.UsedCell3, r.CellAttempt3) }
func (r FinalReport) CellAcceptance4() float64 { return ratio(r.UsedCell4, r.CellAttempt4) }

// ParticleAcceptance2/3/4 report cnt_k/tot_k, divided by mbin^2 in
// Legendre/Power mode (compute_integral.h:541).
func (r FinalReport) ParticleAcceptance2() float64 {
	return ratio(r.Cnt2, r.TotPairs) / r.divisor()
}
func (r FinalReport) ParticleAcceptance3() float64 {
	return ratio(r.Cnt3, r.TotTriples) / r.divisor()
}
func (r FinalReport) ParticleAcceptance4() float64 {
	return ratio(r.Cnt4, r.TotQuads) / r.divisor()
}

// TrialSpeed reports attempted quads per core-second; AcceptanceSpeed
// reports accepted quads per core-second (compute_integral.h's tot_quads/
// runtime/nthread and cnt4/runtime/nthread lines).
func (r FinalReport) TrialSpeed() float64      { return r.speed(float64(r.TotQuads)) }
func (r FinalReport) AcceptanceSpeed() float64 { return r.speed(float64(r.Cnt4)) }

func (r FinalReport) divisor() float64 {
	if r.ParticleAcceptanceDivisor == 0 {
		return 1
	}
	return r.ParticleAcceptanceDivisor
}

func (r FinalReport) speed(n float64) float64 {
	secs := r.Runtime.Seconds()
	if secs <= 0 || r.NThreads <= 0 {
		return 0
	}
	return n / (secs * float64(r.NThreads))
}

func ratio(used, attempted uint64) float64 {
	if attempted == 0 {
		return 0
	}
	return float64(used) / float64(attempted)
}

// LogValue implements slog.LogValuer for structured logging.
func (r FinalReport) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("combo", r.Combo),
		slog.Uint64("cell_attempt2", r.CellAttempt2), slog.Uint64("used_cell2", r.UsedCell2),
		slog.Float64("cell_acceptance2", r.CellAcceptance2()),
		slog.Uint64("cell_attempt3", r.CellAttempt3), slog.Uint64("used_cell3", r.UsedCell3),
		slog.Float64("cell_acceptance3", r.CellAcceptance3()),
		slog.Uint64("cell_attempt4", r.CellAttempt4), slog.Uint64("used_cell4", r.UsedCell4),
		slog.Float64("cell_acceptance4", r.CellAcceptance4()),
		slog.Float64("particle_acceptance2", r.ParticleAcceptance2()),
		slog.Float64("particle_acceptance3", r.ParticleAcceptance3()),
		slog.Float64("particle_acceptance4", r.ParticleAcceptance4()),
		slog.Float64("mean_pairs_per_primary", r.MeanPairsPerPrimary),
		slog.Float64("trial_quads_per_core_sec", r.TrialSpeed()),
		slog.Float64("accepted_quads_per_core_sec", r.AcceptanceSpeed()),
		slog.Int64("runtime_ms", r.Runtime.Milliseconds()),
	)
}

// FinalReportCSV is a flat struct for CSV export of FinalReport via gocsv.
type FinalReportCSV struct {
	Combo string `csv:"combo"`

	CellAttempt2 uint64 `csv:"cell_attempt2"`
	UsedCell2    uint64 `csv:"used_cell2"`
	CellAttempt3 uint64 `csv:"cell_attempt3"`
	UsedCell3    uint64 `csv:"used_cell3"`
	CellAttempt4 uint64 `csv:"cell_attempt4"`
	UsedCell4    uint64 `csv:"used_cell4"`

	ParticleAcceptance2 float64 `csv:"particle_acceptance2"`
	ParticleAcceptance3 float64 `csv:"particle_acceptance3"`
	ParticleAcceptance4 float64 `csv:"particle_acceptance4"`

	MeanPairsPerPrimary     float64 `csv:"mean_pairs_per_primary"`
	TrialQuadsPerCoreSec    float64 `csv:"trial_quads_per_core_sec"`
	AcceptedQuadsPerCoreSec float64 `csv:"accepted_quads_per_core_sec"`
	RuntimeMs               int64   `csv:"runtime_ms"`
}

// ToCSV converts FinalReport to its flat CSV-friendly form.
func (r FinalReport) ToCSV() FinalReportCSV {
	return FinalReportCSV{
		Combo:                   r.Combo,
		CellAttempt2:            r.CellAttempt2,
		UsedCell2:               r.UsedCell2,
		CellAttempt3:            r.CellAttempt3,
		UsedCell3:               r.UsedCell3,
		CellAttempt4:            r.CellAttempt4,
		UsedCell4:               r.UsedCell4,
		ParticleAcceptance2:     r.ParticleAcceptance2(),
		ParticleAcceptance3:     r.ParticleAcceptance3(),
		ParticleAcceptance4:     r.ParticleAcceptance4(),
		MeanPairsPerPrimary:     r.MeanPairsPerPrimary,
		TrialQuadsPerCoreSec:    r.TrialSpeed(),
		AcceptedQuadsPerCoreSec: r.AcceptanceSpeed(),
		RuntimeMs:               r.Runtime.Milliseconds(),
	}
}

// LogFinalReport logs one combo's final report via slog at info level.
func LogFinalReport(logger *slog.Logger, r FinalReport) {
	logger.Info("combo final report", "report", r)
}
