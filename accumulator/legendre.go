package accumulator

import "math"

// legendreEven fills dst[0:mbin] with P_{2n}(mu) for n = 0..mbin-1, the even
// multipoles used by the Legendre binning variant. dst is reused as scratch
// across calls (spec.md section 4.3, "poly_ij reused for both directions").
func legendreEven(mu float64, dst []float64) {
	mbin := len(dst)
	if mbin == 0 {
		return
	}
	// Standard recurrence P_0=1, P_1=x, (k+1)P_{k+1} = (2k+1)xP_k - kP_{k-1}.
	pPrev, pCur := 1.0, mu
	dst[0] = pPrev
	if mbin == 1 {
		return
	}
	degree := 1
	idx := 1
	for idx < mbin {
		for degree < 2*idx {
			k := float64(degree)
			pNext := ((2*k+1)*mu*pCur - k*pPrev) / (k + 1)
			pPrev, pCur = pCur, pNext
			degree++
		}
		dst[idx] = pCur
		idx++
	}
}

// powerBasis fills dst[0:mbin] with the spherical Bessel j0(k_m r) kernel
// used by the Power binning variant's direct-sum estimator, for mbin
// wavenumbers linearly spaced over [kmin, kmax].
func powerBasis(r, kmin, kmax float64, dst []float64) {
	mbin := len(dst)
	if mbin == 0 {
		return
	}
	step := 0.0
	if mbin > 1 {
		step = (kmax - kmin) / float64(mbin-1)
	}
	for m := 0; m < mbin; m++ {
		k := kmin + step*float64(m)
		x := k * r
		if math.Abs(x) < 1e-8 {
			dst[m] = 1
		} else {
			dst[m] = math.Sin(x) / x
		}
	}
}

// basis fills dst[0:MBin] with the per-component kernel value for the given
// separation, for variants that expand a single pair into MBin components
// (Legendre, Power). Angular mode does not use this; it bins mu directly.
func (a *Accumulator) basis(r, m float64, dst []float64) {
	switch a.Kind {
	case Legendre:
		legendreEven(m, dst)
	case Power:
		powerBasis(r, a.KMin, a.KMax, dst)
	}
}
