// Package surveycorr provides geometric window-function corrections for the
// Legendre and Power binning variants. Deriving these coefficients from
// survey geometry is an external collaborator's job (spec.md section 1);
// this package only stores and looks them up.
package surveycorr

import "fmt"

// SurveyCorrection holds one correction coefficient per (radial bin,
// multipole-or-k component) pair, flattened row-major by radial bin.
type SurveyCorrection struct {
	nbin       int
	ncomponent int
	coeffs     []float64
}

// New builds a SurveyCorrection from a flat, row-major (bin-major) table of
// nbin*ncomponent coefficients.
func New(nbin, ncomponent int, coeffs []float64) (*SurveyCorrection, error) {
	if nbin <= 0 || ncomponent <= 0 {
		return nil, fmt.Errorf("surveycorr: nbin and ncomponent must be positive, got %d, %d", nbin, ncomponent)
	}
	if len(coeffs) != nbin*ncomponent {
		return nil, fmt.Errorf("surveycorr: coeffs length %d != nbin*ncomponent %d", len(coeffs), nbin*ncomponent)
	}
	cp := make([]float64, len(coeffs))
	copy(cp, coeffs)
	return &SurveyCorrection{nbin: nbin, ncomponent: ncomponent, coeffs: cp}, nil
}

// Factor returns the correction coefficient for the given radial bin and
// multipole (Legendre) or k-mode (Power) component index.
func (s *SurveyCorrection) Factor(bin, component int) float64 {
	if bin < 0 || bin >= s.nbin || component < 0 || component >= s.ncomponent {
		return 0
	}
	return s.coeffs[bin*s.ncomponent+component]
}

// NComponent returns the number of multipole/k-mode components per bin.
func (s *SurveyCorrection) NComponent() int { return s.ncomponent }
