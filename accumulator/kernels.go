package accumulator

import (
	"math"

	"github.com/rascalc-go/covmc/particle"
)

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// pairProb selects the tracer-partitioned probability for j when the
// caller supplies one (Angular variant, multi-tracer cross terms), falling
// back to the unpartitioned p2.
func pairProb(p, p1, p2 float64, tracer uint8) float64 {
	switch tracer {
	case 1:
		if p1 > 0 {
			return p1
		}
	case 2:
		if p2 > 0 {
			return p2
		}
	}
	return p
}

// foldC2Jack distributes a C2 contribution across jackknife regions in
// proportion to JK12's per-(region,bin) weight, so that summing C2Jack
// across all regions reproduces the non-jackknife C2 exactly when those
// weights partition unity for every bin (spec.md section 8, S4).
func (a *Accumulator) foldC2Jack(bin int, contrib float64) {
	if !a.Jackknife || a.JK12 == nil {
		return
	}
	for region := 0; region < a.NRegions; region++ {
		a.C2Jack[region][bin] += contrib * a.JK12.Weight(region, bin)
	}
}

// Second folds one drawn partner particle j against every primary particle
// in primList[:pln] into C2, and stashes the per-primary weight and bin (and,
// for Legendre/Power, the per-component basis values) for reuse by Third.
// It returns the number of accepted (in-support) contributions.
func (a *Accumulator) Second(primList []particle.Particle, pln int, j particle.Particle, p2, p21, p22 float64, wIJ []float64, binIJ []int, polyIJ [][]float64) int {
	accepted := 0
	for i := 0; i < pln; i++ {
		sep := sub(j.Pos, primList[i].Pos)
		r := norm(sep)
		binR := a.binRadial(r)
		if binR == SentinelBin {
			binIJ[i] = SentinelBin
			wIJ[i] = 0
			continue
		}
		m := mu(sep, r, a.LOS(sep))
		prob := pairProb(p2, p21, p22, j.Tracer)
		weight := primList[i].Weight * j.Weight / prob

		switch a.Kind {
		case Angular:
			bin := binR*a.MBin + a.binMu(m)
			binIJ[i] = bin
			wIJ[i] = weight
			a.C2[bin] += weight
			a.foldC2Jack(bin, weight)
		case Legendre, Power:
			binIJ[i] = binR
			wIJ[i] = weight
			a.basis(r, m, polyIJ[i])
			for c := 0; c < a.MBin; c++ {
				factor := 1.0
				if a.Survey12 != nil {
					factor = a.Survey12.Factor(binR, c)
				}
				bin := binR*a.MBin + c
				contrib := weight * polyIJ[i][c] * factor
				a.C2[bin] += contrib
				a.foldC2Jack(bin, contrib)
			}
		}
		accepted++
	}
	a.cnt2 += uint64(accepted)
	return accepted
}

// Third folds one drawn third particle k (with precomputed correlation
// function values xiIK[i] = ξ(r_ik) for each accepted i) into C3, and
// stashes the running weight for reuse by Fourth. It returns the number of
// accepted contributions.
func (a *Accumulator) Third(primList []particle.Particle, binIJ []int, wIJ []float64, polyIJ [][]float64, pln int, k particle.Particle, xiIK []float64, p3 float64, wIJK []float64, binIK []int, polyIK [][]float64) int {
	accepted := 0
	for i := 0; i < pln; i++ {
		if binIJ[i] == SentinelBin {
			wIJK[i] = 0
			continue
		}
		sep := sub(k.Pos, primList[i].Pos)
		r := norm(sep)
		binR := a.binRadial(r)
		if binR == SentinelBin {
			wIJK[i] = 0
			if binIK != nil {
				binIK[i] = SentinelBin
			}
			continue
		}
		m := mu(sep, r, a.LOS(sep))
		weight := wIJ[i] * xiIK[i] * k.Weight / p3
		wIJK[i] = weight

		switch a.Kind {
		case Angular:
			bin := binR*a.MBin + a.binMu(m)
			if binIK != nil {
				binIK[i] = bin
			}
			a.C3.Set(binIJ[i], bin, a.C3.At(binIJ[i], bin)+weight)
		case Legendre, Power:
			if binIK != nil {
				binIK[i] = binR
			}
			a.basis(r, m, polyIK[i])
			for cij := 0; cij < a.MBin; cij++ {
				rowBin := binIJ[i]*a.MBin + cij
				for cik := 0; cik < a.MBin; cik++ {
					colBin := binR*a.MBin + cik
					factor := 1.0
					if a.Survey23 != nil {
						factor = a.Survey23.Factor(binR, cik)
					}
					contrib := weight * polyIJ[i][cij] * polyIK[i][cik] * factor
					a.C3.Set(rowBin, colBin, a.C3.At(rowBin, colBin)+contrib)
				}
			}
		}
		accepted++
	}
	a.cnt3 += uint64(accepted)
	return accepted
}

// Fourth folds one drawn fourth particle l (paired against the already-drawn
// k) into C4 and, when jackknife is enabled, into C4Jack via the
// precomputed aggregated product-weight table. It returns the number of
// accepted contributions.
func (a *Accumulator) Fourth(primList []particle.Particle, binIJ []int, wIJK []float64, polyIJ [][]float64, pln int, k, l particle.Particle, p4 float64) int {
	sepKL := sub(l.Pos, k.Pos)
	rKL := norm(sepKL)
	binKLRadial := a.binRadial(rKL)
	if binKLRadial == SentinelBin {
		return 0
	}
	muKL := mu(sepKL, rKL, a.LOS(sepKL))

	var polyKL []float64
	var binKL int
	switch a.Kind {
	case Angular:
		binKL = binKLRadial*a.MBin + a.binMu(muKL)
	case Legendre, Power:
		polyKL = make([]float64, a.MBin)
		a.basis(rKL, muKL, polyKL)
	}

	accepted := 0
	for i := 0; i < pln; i++ {
		if binIJ[i] == SentinelBin || wIJK[i] == 0 {
			continue
		}
		weight := wIJK[i] * l.Weight / p4

		switch a.Kind {
		case Angular:
			a.C4.Set(binIJ[i], binKL, a.C4.At(binIJ[i], binKL)+weight)
			if a.Jackknife {
				rowBin, colBin := binIJ[i], binKL
				pw := a.ProductWeights1234[rowBin*a.NBins+colBin]
				a.C4Jack.Set(rowBin, colBin, a.C4Jack.At(rowBin, colBin)+weight*pw)
			}
		case Legendre, Power:
			for cij := 0; cij < a.MBin; cij++ {
				rowBin := binIJ[i]*a.MBin + cij
				for ckl := 0; ckl < a.MBin; ckl++ {
					colBin := binKLRadial*a.MBin + ckl
					factor := 1.0
					if a.Survey34 != nil {
						factor = a.Survey34.Factor(binKLRadial, ckl)
					}
					contrib := weight * polyIJ[i][cij] * polyKL[ckl] * factor
					a.C4.Set(rowBin, colBin, a.C4.At(rowBin, colBin)+contrib)
					if a.Jackknife {
						pw := a.ProductWeights1234[rowBin*a.NBins+colBin]
						a.C4Jack.Set(rowBin, colBin, a.C4Jack.At(rowBin, colBin)+contrib*pw)
					}
				}
			}
		}
		accepted++
	}
	a.cnt4 += uint64(accepted)
	return accepted
}
