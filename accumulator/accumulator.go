// Package accumulator implements IntegralAccumulator: the per-bin partial
// sums for the 2-, 3-, and 4-point covariance contributions (C2, C3, C4),
// the second/third/fourth kernels that fold one j/k/l draw into those sums,
// and the reduction, normalization, convergence, and file-output machinery
// built on top of them. The binning scheme (Angular-mu, Legendre, Power) is
// a variant selected at construction, per spec.md section 4.3.
package accumulator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/rascalc-go/covmc/jackknife"
	"github.com/rascalc-go/covmc/surveycorr"
)

// Variant selects the accumulator's binning scheme.
type Variant int

const (
	Angular Variant = iota
	Legendre
	Power
)

func (v Variant) String() string {
	switch v {
	case Angular:
		return "angular"
	case Legendre:
		return "legendre"
	case Power:
		return "power"
	default:
		return "unknown"
	}
}

// SentinelBin is returned by bin lookups for separations outside the
// configured radial support; kernels must skip contributions carrying it.
const SentinelBin = -1

// LOSFunc returns the unit line-of-sight vector to use for a separation
// vector sep; spec.md section 4.3 leaves this "defined by the external
// API." The default is the plane-parallel approximation (fixed z axis).
type LOSFunc func(sep [3]float64) [3]float64

// PlaneParallelLOS returns the fixed-axis line-of-sight approximation
// commonly used for wide, distant surveys.
func PlaneParallelLOS(sep [3]float64) [3]float64 {
	return [3]float64{0, 0, 1}
}

// Accumulator holds the flat per-bin sums for C2/C3/C4 (and jackknife
// variants when enabled) for one binning variant. It is mutated only by its
// owning thread between reductions (spec.md section 3, "Invariants").
type Accumulator struct {
	Kind Variant

	NBin  int // radial bins
	MBin  int // angular / multipole / k-mode components
	NBins int // NBin * MBin, the flattened C2 row length and C3/C4 dimension

	RMin, RMax float64 // radial support; separations outside are dropped

	KMin, KMax float64 // Power mode: wavenumber range spanned by MBin components

	LOS LOSFunc

	C2 []float64
	C3 *mat.Dense
	C4 *mat.Dense

	Survey12, Survey23, Survey34 *surveycorr.SurveyCorrection // Legendre/Power only

	Jackknife bool
	JK12      *jackknife.Weights // Angular jackknife only
	NRegions  int

	C2Jack [][]float64 // [region][bin], present only when Jackknife
	C3Jack []*mat.Dense
	C4Jack *mat.Dense // aggregated over regions via product-weight tables (spec.md section 4.4)

	ProductWeights1234 []float64 // NBins*NBins, precomputed by the driver

	cnt2, cnt3, cnt4 uint64
}

// Config carries the construction-time parameters for New.
type Config struct {
	Kind       Variant
	NBin, MBin int
	RMin, RMax float64
	KMin, KMax float64 // Power mode only
	LOS        LOSFunc // nil defaults to PlaneParallelLOS

	Survey12, Survey23, Survey34 *surveycorr.SurveyCorrection // required for Legendre/Power

	Jackknife bool
	JK12      *jackknife.Weights // required when Jackknife
	NRegions  int
}

// New constructs an empty Accumulator for the given variant and shape.
func New(cfg Config) (*Accumulator, error) {
	if cfg.NBin <= 0 || cfg.MBin <= 0 {
		return nil, fmt.Errorf("accumulator: nbin and mbin must be positive, got %d, %d", cfg.NBin, cfg.MBin)
	}
	if cfg.RMax <= cfg.RMin {
		return nil, fmt.Errorf("accumulator: RMax must exceed RMin")
	}
	if cfg.Kind == Legendre || cfg.Kind == Power {
		if cfg.Survey12 == nil || cfg.Survey23 == nil || cfg.Survey34 == nil {
			return nil, fmt.Errorf("accumulator: %s variant requires all three survey corrections", cfg.Kind)
		}
	}
	if cfg.Jackknife && cfg.JK12 == nil {
		return nil, fmt.Errorf("accumulator: jackknife enabled but JK12 weights not supplied")
	}
	if cfg.Kind == Power && cfg.KMax <= cfg.KMin {
		return nil, fmt.Errorf("accumulator: power variant requires KMax > KMin")
	}

	los := cfg.LOS
	if los == nil {
		los = PlaneParallelLOS
	}

	nbins := cfg.NBin * cfg.MBin
	a := &Accumulator{
		Kind:      cfg.Kind,
		NBin:      cfg.NBin,
		MBin:      cfg.MBin,
		NBins:     nbins,
		RMin:      cfg.RMin,
		RMax:      cfg.RMax,
		KMin:      cfg.KMin,
		KMax:      cfg.KMax,
		LOS:       los,
		C2:        make([]float64, nbins),
		C3:        mat.NewDense(nbins, nbins, nil),
		C4:        mat.NewDense(nbins, nbins, nil),
		Survey12:  cfg.Survey12,
		Survey23:  cfg.Survey23,
		Survey34:  cfg.Survey34,
		Jackknife: cfg.Jackknife,
		JK12:      cfg.JK12,
		NRegions:  cfg.NRegions,
	}

	if cfg.Jackknife {
		a.C2Jack = make([][]float64, cfg.NRegions)
		for r := range a.C2Jack {
			a.C2Jack[r] = make([]float64, nbins)
		}
		a.C3Jack = make([]*mat.Dense, cfg.NRegions)
		for r := range a.C3Jack {
			a.C3Jack[r] = mat.NewDense(nbins, nbins, nil)
		}
		a.C4Jack = mat.NewDense(nbins, nbins, nil)
	}

	return a, nil
}

// AcceptedCounts returns the integer counts of accepted second/third/fourth
// contributions, cnt2/cnt3/cnt4 in spec.md section 3.
func (a *Accumulator) AcceptedCounts() (cnt2, cnt3, cnt4 uint64) {
	return a.cnt2, a.cnt3, a.cnt4
}

// binRadial returns the radial bin index for separation r, or SentinelBin
// if r falls outside [RMin, RMax).
func (a *Accumulator) binRadial(r float64) int {
	if r < a.RMin || r >= a.RMax {
		return SentinelBin
	}
	b := int((r - a.RMin) / (a.RMax - a.RMin) * float64(a.NBin))
	if b >= a.NBin {
		b = a.NBin - 1
	}
	return b
}

// binMu returns the mu-bin index for mu in [0,1); mu is assumed already
// folded to that range by the caller.
func (a *Accumulator) binMu(mu float64) int {
	b := int(mu * float64(a.MBin))
	if b >= a.MBin {
		b = a.MBin - 1
	}
	if b < 0 {
		b = 0
	}
	return b
}

// mu computes |sep . los| / |sep| for a pair separation, per spec.md
// section 4.3 ("mu-bin edge: mu = |r_hat . z_hat|").
func mu(sep [3]float64, r float64, los [3]float64) float64 {
	if r == 0 {
		return 0
	}
	dot := sep[0]*los[0] + sep[1]*los[1] + sep[2]*los[2]
	m := dot / r
	if m < 0 {
		m = -m
	}
	if m >= 1 {
		m = 1 - 1e-12
	}
	return m
}
