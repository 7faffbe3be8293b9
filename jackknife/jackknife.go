// Package jackknife supplies per-(bin, region) weights for jackknife
// resampling and precomputes the bin-pair product-weight tables the
// four-point kernel folds into C4_jack. Deriving weights from the survey's
// jackknife regions is an external collaborator's job (spec.md section 1);
// this package stores the table and computes derived products.
package jackknife

import "fmt"

// Weights holds one weight per (region, bin) pair, flattened region-major,
// plus the self-product table (this JK against itself) used when the driver
// determines a bin-pair table can be reused rather than recomputed (spec.md
// section 4.4).
type Weights struct {
	NBins    int
	NRegions int

	flat           []float64 // region-major: flat[region*NBins+bin]
	ProductWeights []float64 // NBins*NBins, row-major: sum_regions w[reg,a]*w[reg,b]
}

// New builds a Weights table from a flat, region-major array of
// nregions*nbins weights, and precomputes its self-product table.
func New(nbins, nregions int, weights []float64) (*Weights, error) {
	if nbins <= 0 || nregions <= 0 {
		return nil, fmt.Errorf("jackknife: nbins and nregions must be positive, got %d, %d", nbins, nregions)
	}
	if len(weights) != nbins*nregions {
		return nil, fmt.Errorf("jackknife: weights length %d != nbins*nregions %d", len(weights), nbins*nregions)
	}
	flat := make([]float64, len(weights))
	copy(flat, weights)

	w := &Weights{NBins: nbins, NRegions: nregions, flat: flat}
	w.ProductWeights = Product(w, w)
	return w, nil
}

// Weight returns the weight of the given bin in the given region.
func (w *Weights) Weight(region, bin int) float64 {
	return w.flat[region*w.NBins+bin]
}

// Product computes the region-summed outer product table
// sum_regions a.Weight(reg,bin_a) * b.Weight(reg,bin_b), used by the driver
// to build product_weights12_34 / product_weights12_23 (spec.md section
// 4.4) when they cannot be reused from an existing table. a and b must
// share the same region count.
func Product(a, b *Weights) []float64 {
	nbins := a.NBins
	out := make([]float64, nbins*nbins)
	for reg := 0; reg < a.NRegions; reg++ {
		base := reg * nbins
		for ba := 0; ba < nbins; ba++ {
			wa := a.flat[base+ba]
			if wa == 0 {
				continue
			}
			rowOff := ba * nbins
			for bb := 0; bb < nbins; bb++ {
				out[rowOff+bb] += wa * b.flat[base+bb]
			}
		}
	}
	return out
}
