package accumulator

import (
	"math"
	"os"
	"testing"

	"github.com/rascalc-go/covmc/jackknife"
	"github.com/rascalc-go/covmc/particle"
	"github.com/rascalc-go/covmc/surveycorr"
)

func newAngular(t *testing.T, nbin, mbin int) *Accumulator {
	t.Helper()
	a, err := New(Config{Kind: Angular, NBin: nbin, MBin: mbin, RMin: 0, RMax: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNew_RejectsBadShape(t *testing.T) {
	if _, err := New(Config{Kind: Angular, NBin: 0, MBin: 1, RMin: 0, RMax: 1}); err == nil {
		t.Fatal("expected error for zero NBin")
	}
	if _, err := New(Config{Kind: Angular, NBin: 1, MBin: 1, RMin: 1, RMax: 1}); err == nil {
		t.Fatal("expected error for RMax <= RMin")
	}
}

func TestNew_RequiresSurveyCorrectionsForLegendre(t *testing.T) {
	if _, err := New(Config{Kind: Legendre, NBin: 2, MBin: 2, RMin: 0, RMax: 10}); err == nil {
		t.Fatal("expected error for missing survey corrections")
	}
}

func TestSecond_AcceptsInSupportPair(t *testing.T) {
	a := newAngular(t, 4, 4)
	prim := []particle.Particle{{Pos: [3]float64{0, 0, 0}, Weight: 1}}
	j := particle.Particle{Pos: [3]float64{10, 0, 0}, Weight: 1}

	wIJ := make([]float64, 1)
	binIJ := make([]int, 1)
	n := a.Second(prim, 1, j, 1.0, 0, 0, wIJ, binIJ, nil)

	if n != 1 {
		t.Fatalf("accepted = %d, want 1", n)
	}
	if binIJ[0] == SentinelBin {
		t.Fatal("expected a valid bin for an in-support separation")
	}
	sum := 0.0
	for _, v := range a.C2 {
		sum += v
	}
	if sum != wIJ[0] {
		t.Fatalf("C2 sum = %v, want %v", sum, wIJ[0])
	}
	cnt2, _, _ := a.AcceptedCounts()
	if cnt2 != 1 {
		t.Fatalf("cnt2 = %d, want 1", cnt2)
	}
}

func TestSecond_RejectsOutOfSupportPair(t *testing.T) {
	a := newAngular(t, 4, 4)
	prim := []particle.Particle{{Pos: [3]float64{0, 0, 0}, Weight: 1}}
	j := particle.Particle{Pos: [3]float64{1000, 0, 0}, Weight: 1}

	wIJ := make([]float64, 1)
	binIJ := make([]int, 1)
	n := a.Second(prim, 1, j, 1.0, 0, 0, wIJ, binIJ, nil)

	if n != 0 {
		t.Fatalf("accepted = %d, want 0", n)
	}
	if binIJ[0] != SentinelBin {
		t.Fatalf("binIJ[0] = %d, want SentinelBin", binIJ[0])
	}
}

func TestSumInts_ReduceMatchesManualAddition(t *testing.T) {
	a := newAngular(t, 4, 4)
	b := newAngular(t, 4, 4)

	prim := []particle.Particle{{Pos: [3]float64{0, 0, 0}, Weight: 1}}
	j := particle.Particle{Pos: [3]float64{5, 0, 0}, Weight: 2}
	wIJ := make([]float64, 1)
	binIJ := make([]int, 1)
	a.Second(prim, 1, j, 1.0, 0, 0, wIJ, binIJ, nil)
	b.Second(prim, 1, j, 1.0, 0, 0, wIJ, binIJ, nil)

	want := a.C2[binIJ[0]] + b.C2[binIJ[0]]
	if err := a.SumInts(b); err != nil {
		t.Fatalf("SumInts: %v", err)
	}
	if a.C2[binIJ[0]] != want {
		t.Fatalf("after SumInts C2[%d] = %v, want %v", binIJ[0], a.C2[binIJ[0]], want)
	}
	cnt2, _, _ := a.AcceptedCounts()
	if cnt2 != 2 {
		t.Fatalf("cnt2 after SumInts = %d, want 2", cnt2)
	}
}

func TestReset_ZeroesState(t *testing.T) {
	a := newAngular(t, 2, 2)
	prim := []particle.Particle{{Pos: [3]float64{0, 0, 0}, Weight: 1}}
	j := particle.Particle{Pos: [3]float64{5, 0, 0}, Weight: 2}
	wIJ := make([]float64, 1)
	binIJ := make([]int, 1)
	a.Second(prim, 1, j, 1.0, 0, 0, wIJ, binIJ, nil)

	a.Reset()
	for i, v := range a.C2 {
		if v != 0 {
			t.Fatalf("C2[%d] = %v after Reset, want 0", i, v)
		}
	}
	cnt2, cnt3, cnt4 := a.AcceptedCounts()
	if cnt2 != 0 || cnt3 != 0 || cnt4 != 0 {
		t.Fatalf("counts after Reset = %d,%d,%d, want 0,0,0", cnt2, cnt3, cnt4)
	}
}

func TestNormalize_DividesByGridNormsAndPairs(t *testing.T) {
	a := newAngular(t, 2, 2)
	a.C2[0] = 10
	a.Normalize(NormalizeArgs{N1Norm: 1, N2Norm: 1, Pairs: 5})
	if a.C2[0] != 2 {
		t.Fatalf("C2[0] = %v, want 2", a.C2[0])
	}
}

func TestFrobeniusDifferenceSum_ZeroForIdenticalSnapshots(t *testing.T) {
	a := newAngular(t, 3, 3)
	a.C2[0] = 5
	a.C3.Set(0, 0, 2)
	a.C4.Set(1, 1, 3)
	prev := a.Snapshot()

	d, err := a.FrobeniusDifferenceSum(prev)
	if err != nil {
		t.Fatalf("FrobeniusDifferenceSum: %v", err)
	}
	if d.C2 != 0 || d.C3 != 0 || d.C4 != 0 {
		t.Fatalf("deltas = %+v, want all zero", d)
	}
}

func TestFrobeniusDifferenceSum_NonzeroForChangedState(t *testing.T) {
	a := newAngular(t, 3, 3)
	a.C4.Set(0, 0, 10)
	prev := a.Snapshot()
	a.C4.Set(0, 0, 20)

	d, err := a.FrobeniusDifferenceSum(prev)
	if err != nil {
		t.Fatalf("FrobeniusDifferenceSum: %v", err)
	}
	if d.C4 <= 0 {
		t.Fatalf("C4 delta = %v, want > 0", d.C4)
	}
}

func TestJackknife_C2JackSumsToC2(t *testing.T) {
	nbin, mbin := 2, 2
	nbins := nbin * mbin
	nregions := 3

	// Construct weights that partition unity for every bin: region r owns
	// weight 1/nregions of every bin uniformly, so summing regions
	// reproduces the unweighted total exactly.
	flat := make([]float64, nregions*nbins)
	for r := 0; r < nregions; r++ {
		for b := 0; b < nbins; b++ {
			flat[r*nbins+b] = 1.0 / float64(nregions)
		}
	}
	jk, err := jackknife.New(nbins, nregions, flat)
	if err != nil {
		t.Fatalf("jackknife.New: %v", err)
	}

	a, err := New(Config{Kind: Angular, NBin: nbin, MBin: mbin, RMin: 0, RMax: 100, Jackknife: true, JK12: jk, NRegions: nregions})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	prim := []particle.Particle{
		{Pos: [3]float64{0, 0, 0}, Weight: 1},
		{Pos: [3]float64{2, 0, 0}, Weight: 1.5},
	}
	j := particle.Particle{Pos: [3]float64{10, 3, 0}, Weight: 2}
	wIJ := make([]float64, 2)
	binIJ := make([]int, 2)
	a.Second(prim, 2, j, 1.0, 0, 0, wIJ, binIJ, nil)

	for b := 0; b < nbins; b++ {
		sum := 0.0
		for r := 0; r < nregions; r++ {
			sum += a.C2Jack[r][b]
		}
		if math.Abs(sum-a.C2[b]) > 1e-9 {
			t.Fatalf("bin %d: sum over regions = %v, want %v", b, sum, a.C2[b])
		}
	}
}

func TestLegendreVariant_FoldsAllComponents(t *testing.T) {
	nbin, mbin := 2, 3
	coeffs := make([]float64, nbin*mbin)
	for i := range coeffs {
		coeffs[i] = 1
	}
	sc, err := surveycorr.New(nbin, mbin, coeffs)
	if err != nil {
		t.Fatalf("surveycorr.New: %v", err)
	}
	a, err := New(Config{Kind: Legendre, NBin: nbin, MBin: mbin, RMin: 0, RMax: 100, Survey12: sc, Survey23: sc, Survey34: sc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	prim := []particle.Particle{{Pos: [3]float64{0, 0, 0}, Weight: 1}}
	j := particle.Particle{Pos: [3]float64{10, 0, 0}, Weight: 1}
	wIJ := make([]float64, 1)
	binIJ := make([]int, 1)
	polyIJ := [][]float64{make([]float64, mbin)}

	n := a.Second(prim, 1, j, 1.0, 0, 0, wIJ, binIJ, polyIJ)
	if n != 1 {
		t.Fatalf("accepted = %d, want 1", n)
	}
	nonzero := 0
	for _, v := range a.C2 {
		if v != 0 {
			nonzero++
		}
	}
	if nonzero != mbin {
		t.Fatalf("nonzero C2 entries = %d, want %d (one per multipole component)", nonzero, mbin)
	}
}

func TestThirdAndFourth_AcceptedChainFoldsIntoC3AndC4(t *testing.T) {
	a := newAngular(t, 4, 4)
	prim := []particle.Particle{{Pos: [3]float64{0, 0, 0}, Weight: 1}}
	j := particle.Particle{Pos: [3]float64{10, 0, 0}, Weight: 1}
	k := particle.Particle{Pos: [3]float64{20, 0, 0}, Weight: 1}
	l := particle.Particle{Pos: [3]float64{30, 0, 0}, Weight: 1}

	wIJ := make([]float64, 1)
	binIJ := make([]int, 1)
	n2 := a.Second(prim, 1, j, 1.0, 0, 0, wIJ, binIJ, nil)
	if n2 != 1 {
		t.Fatalf("Second accepted = %d, want 1", n2)
	}

	xiIK := []float64{0.5}
	wIJK := make([]float64, 1)
	n3 := a.Third(prim, binIJ, wIJ, nil, 1, k, xiIK, 1.0, wIJK, nil, nil)
	if n3 != 1 {
		t.Fatalf("Third accepted = %d, want 1", n3)
	}
	c3Sum := 0.0
	for i := 0; i < a.NBins; i++ {
		for jj := 0; jj < a.NBins; jj++ {
			c3Sum += a.C3.At(i, jj)
		}
	}
	if c3Sum == 0 {
		t.Fatal("expected C3 to receive a nonzero contribution")
	}

	n4 := a.Fourth(prim, binIJ, wIJK, nil, 1, k, l, 1.0)
	if n4 != 1 {
		t.Fatalf("Fourth accepted = %d, want 1", n4)
	}
	c4Sum := 0.0
	for i := 0; i < a.NBins; i++ {
		for jj := 0; jj < a.NBins; jj++ {
			c4Sum += a.C4.At(i, jj)
		}
	}
	if c4Sum == 0 {
		t.Fatal("expected C4 to receive a nonzero contribution")
	}
}

func TestSaveIntegrals_WritesExpectedFiles(t *testing.T) {
	a := newAngular(t, 2, 2)
	a.C2[0] = 1
	dir := t.TempDir()
	if err := a.SaveIntegrals(dir, "tag"); err != nil {
		t.Fatalf("SaveIntegrals: %v", err)
	}
	for _, name := range []string{"c2_tag.txt", "c3_tag.txt", "c4_tag.txt", "counts.csv"} {
		path := dir + "/CovMatrices/" + name
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected file %s to exist: %v", path, err)
		}
	}
}
