package accumulator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// SumInts adds other's partial sums into a, used to reduce a per-thread
// accumulator into the shared global one under the caller's mutex (spec.md
// section 5). a and other must share the same shape and variant.
func (a *Accumulator) SumInts(other *Accumulator) error {
	if other.Kind != a.Kind || other.NBins != a.NBins {
		return fmt.Errorf("accumulator: SumInts shape mismatch")
	}
	for i := range a.C2 {
		a.C2[i] += other.C2[i]
	}
	a.C3.Add(a.C3, other.C3)
	a.C4.Add(a.C4, other.C4)

	if a.Jackknife && other.Jackknife {
		for r := range a.C2Jack {
			for i := range a.C2Jack[r] {
				a.C2Jack[r][i] += other.C2Jack[r][i]
			}
			a.C3Jack[r].Add(a.C3Jack[r], other.C3Jack[r])
		}
		a.C4Jack.Add(a.C4Jack, other.C4Jack)
	}

	a.cnt2 += other.cnt2
	a.cnt3 += other.cnt3
	a.cnt4 += other.cnt4
	return nil
}

// Reset zeroes all partial sums and accepted counts, leaving shape and
// configuration untouched; used to start a fresh per-thread accumulator
// between outer loops (spec.md section 4.3).
func (a *Accumulator) Reset() {
	for i := range a.C2 {
		a.C2[i] = 0
	}
	a.C3.Zero()
	a.C4.Zero()
	if a.Jackknife {
		for r := range a.C2Jack {
			for i := range a.C2Jack[r] {
				a.C2Jack[r][i] = 0
			}
			a.C3Jack[r].Zero()
		}
		a.C4Jack.Zero()
	}
	a.cnt2, a.cnt3, a.cnt4 = 0, 0, 0
}

// NormalizeArgs carries the per-loop divisors applied by Normalize: the four
// tracer grids' total particle weights (n1, n2, n3, n4 in spec.md section
// 4.3's normalize(n1,n2,n3,n4,pairs,triples,quads[,power_norm])), the
// attempted-sample totals used as denominators (pairs/triples/quads, not
// accepted counts), and (Power mode only) an additional power-spectrum
// normalization factor applied to C4.
type NormalizeArgs struct {
	N1Norm, N2Norm, N3Norm, N4Norm float64 // grid1..grid4 total particle weights
	Pairs, Triples, Quads          float64 // attempted totals, e.g. sum of pln*N2 etc.
	PowerNorm                      float64 // Power mode only; ignored (treated as 1) otherwise
}

// Normalize divides every partial sum in place by its grid-norm and
// attempted-sample divisor (and, in Power mode, by PowerNorm on C4), turning
// running sums into per-loop mean estimates (spec.md section 4.3: "normalize
// divides C2 by n1*n2 grid norms and pairs, C3 by n1*n2*n3 and triples, C4 by
// n1*n2*n3*n4 and quads").
func (a *Accumulator) Normalize(args NormalizeArgs) {
	if args.Pairs > 0 && args.N1Norm > 0 && args.N2Norm > 0 {
		scale := 1 / (args.N1Norm * args.N2Norm * args.Pairs)
		for i := range a.C2 {
			a.C2[i] *= scale
		}
		if a.Jackknife {
			for r := range a.C2Jack {
				for i := range a.C2Jack[r] {
					a.C2Jack[r][i] *= scale
				}
			}
		}
	}
	if args.Triples > 0 && args.N1Norm > 0 && args.N2Norm > 0 && args.N3Norm > 0 {
		scale := 1 / (args.N1Norm * args.N2Norm * args.N3Norm * args.Triples)
		a.C3.Scale(scale, a.C3)
		if a.Jackknife {
			for r := range a.C3Jack {
				a.C3Jack[r].Scale(scale, a.C3Jack[r])
			}
		}
	}
	if args.Quads > 0 && args.N1Norm > 0 && args.N2Norm > 0 && args.N3Norm > 0 && args.N4Norm > 0 {
		scale := 1 / (args.N1Norm * args.N2Norm * args.N3Norm * args.N4Norm * args.Quads)
		if a.Kind == Power && args.PowerNorm != 0 {
			scale /= args.PowerNorm
		}
		a.C4.Scale(scale, a.C4)
		if a.Jackknife {
			a.C4Jack.Scale(scale, a.C4Jack)
		}
	}
}

// FrobeniusDeltas reports the relative Frobenius-norm difference between a
// and a previous snapshot prev, for each of C2/C3/C4, used as the
// convergence proxy (spec.md section 4.4: "gated only by the C4 delta").
type FrobeniusDeltas struct {
	C2, C3, C4 float64
}

// FrobeniusDifferenceSum computes the relative Frobenius-norm difference
// ||a - prev|| / ||a|| for C2 (as a vector norm) and C3/C4 (as Frobenius
// norms via gonum's mat.Norm(m, 2)), comparing the accumulator's current state
// against a prior snapshot to test convergence across successive loops.
func (a *Accumulator) FrobeniusDifferenceSum(prev *Accumulator) (FrobeniusDeltas, error) {
	if prev.NBins != a.NBins || prev.Kind != a.Kind {
		return FrobeniusDeltas{}, fmt.Errorf("accumulator: FrobeniusDifferenceSum shape mismatch")
	}

	var d FrobeniusDeltas

	c2Norm := vecNorm(a.C2)
	if c2Norm > 0 {
		diff := make([]float64, len(a.C2))
		for i := range diff {
			diff[i] = a.C2[i] - prev.C2[i]
		}
		d.C2 = vecNorm(diff) / c2Norm
	}

	c3Norm := mat.Norm(a.C3, 2)
	if c3Norm > 0 {
		var diff mat.Dense
		diff.Sub(a.C3, prev.C3)
		d.C3 = mat.Norm(&diff, 2) / c3Norm
	}

	c4Norm := mat.Norm(a.C4, 2)
	if c4Norm > 0 {
		var diff mat.Dense
		diff.Sub(a.C4, prev.C4)
		d.C4 = mat.Norm(&diff, 2) / c4Norm
	}

	return d, nil
}

// Snapshot returns a deep copy of a's partial sums, suitable as the prev
// argument to a later FrobeniusDifferenceSum call.
func (a *Accumulator) Snapshot() *Accumulator {
	cp := &Accumulator{Kind: a.Kind, NBin: a.NBin, MBin: a.MBin, NBins: a.NBins}
	cp.C2 = append([]float64(nil), a.C2...)
	cp.C3 = mat.DenseCopyOf(a.C3)
	cp.C4 = mat.DenseCopyOf(a.C4)
	return cp
}

func vecNorm(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}
