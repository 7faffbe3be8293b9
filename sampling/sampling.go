// Package sampling implements the biased cell-offset sampler used to draw
// partner, third, and fourth particles by importance sampling: a proposal
// proportional to 1/r² (typical of pair-count behavior) and a proposal
// proportional to |ξ(r)|. Both report the ratio of the proposal density to
// uniform sampling over the same support, which the caller divides into
// (i.e. multiplies by the reciprocal of) to form the importance weight.
package sampling

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/rascalc-go/covmc/corrfunc"
)

// RandomDraws samples an integer cell displacement within a cube of the
// given radius, under two discrete distributions built once at construction
// time over the same lattice of candidate displacements.
type RandomDraws struct {
	deltas [][3]int

	invSqWeights []float64
	invSqCDF     []float64
	invSqTotal   float64

	xiWeights []float64
	xiCDF     []float64
	xiTotal   float64
}

// New builds the two proposal tables over all integer displacements within
// [-radius, radius]^3, using cellSize to convert a lattice displacement to a
// physical separation and cf to evaluate |ξ(r)| at that separation. The
// zero displacement (same-cell offset) is included with a physical
// separation floored at cellSize/2 to keep 1/r² finite.
func New(radius int, cellSize float64, cf *corrfunc.CorrelationFunction) (*RandomDraws, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("sampling: radius must be positive, got %d", radius)
	}
	if cellSize <= 0 {
		return nil, fmt.Errorf("sampling: cellSize must be positive, got %v", cellSize)
	}

	rd := &RandomDraws{}
	minSep := cellSize / 2

	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			for dz := -radius; dz <= radius; dz++ {
				r := cellSize * math.Sqrt(float64(dx*dx+dy*dy+dz*dz))
				if r < minSep {
					r = minSep
				}
				rd.deltas = append(rd.deltas, [3]int{dx, dy, dz})
				rd.invSqWeights = append(rd.invSqWeights, 1/(r*r))
				xi := 0.0
				if cf != nil {
					xi = math.Abs(cf.Eval(r))
				}
				rd.xiWeights = append(rd.xiWeights, xi)
			}
		}
	}

	rd.invSqCDF = make([]float64, len(rd.invSqWeights))
	floats.CumSum(rd.invSqCDF, rd.invSqWeights)
	rd.invSqTotal = rd.invSqCDF[len(rd.invSqCDF)-1]
	if rd.invSqTotal <= 0 {
		return nil, fmt.Errorf("sampling: 1/r^2 proposal has zero total weight")
	}

	rd.xiCDF = make([]float64, len(rd.xiWeights))
	floats.CumSum(rd.xiCDF, rd.xiWeights)
	rd.xiTotal = rd.xiCDF[len(rd.xiCDF)-1]
	if rd.xiTotal <= 0 {
		return nil, fmt.Errorf("sampling: |xi(r)| proposal has zero total weight (correlation function is identically zero over the draw radius)")
	}

	return rd, nil
}

// RandomCubedraw draws a displacement with probability proportional to
// 1/r², returning the ratio of this proposal's density to uniform sampling
// over the same lattice. p is always strictly positive.
func (rd *RandomDraws) RandomCubedraw(rng *rand.Rand) (delta [3]int, p float64) {
	return rd.draw(rng, rd.invSqWeights, rd.invSqCDF, rd.invSqTotal)
}

// RandomXidraw draws a displacement with probability proportional to
// |ξ(r)|, returning the ratio of this proposal's density to uniform
// sampling over the same lattice. p is always strictly positive.
func (rd *RandomDraws) RandomXidraw(rng *rand.Rand) (delta [3]int, p float64) {
	return rd.draw(rng, rd.xiWeights, rd.xiCDF, rd.xiTotal)
}

func (rd *RandomDraws) draw(rng *rand.Rand, weights, cdf []float64, total float64) ([3]int, float64) {
	u := rng.Float64() * total
	idx := sort.SearchFloat64s(cdf, u)
	if idx >= len(cdf) {
		idx = len(cdf) - 1
	}
	n := float64(len(rd.deltas))
	p := n * weights[idx] / total
	return rd.deltas[idx], p
}
