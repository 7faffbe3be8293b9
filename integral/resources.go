package integral

import (
	"github.com/rascalc-go/covmc/corrfunc"
	"github.com/rascalc-go/covmc/jackknife"
	"github.com/rascalc-go/covmc/particle"
	"github.com/rascalc-go/covmc/sampling"
	"github.com/rascalc-go/covmc/surveycorr"
)

// pairKey normalizes a tracer pair so lookups don't care about draw order.
func pairKey(a, b int) [2]int {
	if a <= b {
		return [2]int{a, b}
	}
	return [2]int{b, a}
}

// Resources bundles the per-tracer and per-tracer-pair collaborators the
// driver selects between for each multi-tracer Combo (spec.md section 4.4):
// one particle grid per tracer, one correlation function and random-draw
// sampler per tracer pair, and (Legendre/Power, jackknife) one survey
// correction / jackknife weight table per tracer pair.
type Resources struct {
	Grids       map[int]*particle.Grid
	CorrFuncs   map[[2]int]*corrfunc.CorrelationFunction
	Draws       map[[2]int]*sampling.RandomDraws
	SurveyCorrs map[[2]int]*surveycorr.SurveyCorrection
	JKWeights   map[[2]int]*jackknife.Weights
}

func (r Resources) grid(tracer int) *particle.Grid { return r.Grids[tracer] }
func (r Resources) corrFunc(a, b int) *corrfunc.CorrelationFunction {
	return r.CorrFuncs[pairKey(a, b)]
}
func (r Resources) draws(a, b int) *sampling.RandomDraws { return r.Draws[pairKey(a, b)] }
func (r Resources) surveyCorr(a, b int) *surveycorr.SurveyCorrection {
	return r.SurveyCorrs[pairKey(a, b)]
}
func (r Resources) jkWeights(a, b int) *jackknife.Weights { return r.JKWeights[pairKey(a, b)] }

// NTracers returns the number of distinct tracers registered in Grids.
func (r Resources) NTracers() int { return len(r.Grids) }
