// Package corrfunc evaluates the galaxy two-point correlation function
// ξ(r) or ξ(r,µ) at arbitrary separations by table interpolation. Building
// the table from a tabulated input file is an external collaborator's job
// (spec.md section 1, "out of scope"); this package only interpolates a
// table already in memory.
package corrfunc

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// CorrelationFunction evaluates a correlation function table. When built
// with New it depends only on separation r; when built with NewAnisotropic
// it additionally depends on µ, via one interpolator per µ slice with
// nearest-slice lookup.
type CorrelationFunction struct {
	radial    *interp.PiecewiseLinear
	muSlices  []*interp.PiecewiseLinear
	muCenters []float64
}

// New builds an isotropic ξ(r) table. rvals must be strictly increasing.
func New(rvals, xivals []float64) (*CorrelationFunction, error) {
	if len(rvals) != len(xivals) {
		return nil, fmt.Errorf("corrfunc: rvals and xivals length mismatch: %d vs %d", len(rvals), len(xivals))
	}
	if len(rvals) < 2 {
		return nil, fmt.Errorf("corrfunc: need at least 2 table points, got %d", len(rvals))
	}
	if !sort.Float64sAreSorted(rvals) {
		return nil, fmt.Errorf("corrfunc: rvals must be strictly increasing")
	}

	pl := &interp.PiecewiseLinear{}
	if err := pl.Fit(rvals, xivals); err != nil {
		return nil, fmt.Errorf("corrfunc: fitting radial table: %w", err)
	}
	return &CorrelationFunction{radial: pl}, nil
}

// NewAnisotropic builds a ξ(r,µ) table from one ξ(r) slice per µ bin center.
// muCenters must be strictly increasing and cover [0,1).
func NewAnisotropic(rvals []float64, muCenters []float64, xiGrid [][]float64) (*CorrelationFunction, error) {
	if len(muCenters) != len(xiGrid) {
		return nil, fmt.Errorf("corrfunc: muCenters and xiGrid length mismatch: %d vs %d", len(muCenters), len(xiGrid))
	}
	if !sort.Float64sAreSorted(muCenters) {
		return nil, fmt.Errorf("corrfunc: muCenters must be strictly increasing")
	}

	cf := &CorrelationFunction{muCenters: muCenters}
	for i, xivals := range xiGrid {
		if len(xivals) != len(rvals) {
			return nil, fmt.Errorf("corrfunc: xiGrid[%d] length %d != len(rvals) %d", i, len(xivals), len(rvals))
		}
		pl := &interp.PiecewiseLinear{}
		if err := pl.Fit(rvals, xivals); err != nil {
			return nil, fmt.Errorf("corrfunc: fitting mu-slice %d: %w", i, err)
		}
		cf.muSlices = append(cf.muSlices, pl)
	}
	return cf, nil
}

// Eval returns ξ(r) for an isotropic table. Separations outside the table's
// support clamp to the nearest edge value (the importance-sampling weight
// applied by the accumulator, not this package, is responsible for treating
// out-of-support bins as dropped contributions per spec.md section 4.3).
func (cf *CorrelationFunction) Eval(r float64) float64 {
	return cf.radial.Predict(r)
}

// EvalMu returns ξ(r,µ) for an anisotropic table, selecting the nearest µ
// slice to the requested µ and interpolating that slice in r.
func (cf *CorrelationFunction) EvalMu(r, mu float64) float64 {
	if cf.radial != nil {
		return cf.radial.Predict(r)
	}
	idx := nearestIndex(cf.muCenters, mu)
	return cf.muSlices[idx].Predict(r)
}

func nearestIndex(xs []float64, x float64) int {
	i := sort.SearchFloat64s(xs, x)
	switch {
	case i == 0:
		return 0
	case i == len(xs):
		return len(xs) - 1
	default:
		if x-xs[i-1] <= xs[i]-x {
			return i - 1
		}
		return i
	}
}
