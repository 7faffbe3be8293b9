package integral

import (
	"context"
	"testing"

	"github.com/rascalc-go/covmc/accumulator"
	"github.com/rascalc-go/covmc/corrfunc"
	"github.com/rascalc-go/covmc/particle"
	"github.com/rascalc-go/covmc/sampling"
)

func smallGrid(t *testing.T) *particle.Grid {
	t.Helper()
	var pts []particle.Particle
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			for z := 0; z < 4; z++ {
				pts = append(pts, particle.Particle{
					Pos:    [3]float64{float64(x) + 0.5, float64(y) + 0.5, float64(z) + 0.5},
					Weight: 1,
					Tracer: 1,
				})
			}
		}
	}
	return particle.New(pts, [3]int{4, 4, 4}, 1.0, true)
}

func TestDriver_RunSingleTracerSmokeTest(t *testing.T) {
	g := smallGrid(t)
	cf, err := corrfunc.New([]float64{0, 10}, []float64{1, 0.1})
	if err != nil {
		t.Fatalf("corrfunc.New: %v", err)
	}
	rd, err := sampling.New(2, 1.0, cf)
	if err != nil {
		t.Fatalf("sampling.New: %v", err)
	}

	res := Resources{
		Grids:     map[int]*particle.Grid{1: g},
		CorrFuncs: map[[2]int]*corrfunc.CorrelationFunction{{1, 1}: cf},
		Draws:     map[[2]int]*sampling.RandomDraws{{1, 1}: rd},
	}

	cfg := Config{
		Variant:       accumulator.Angular,
		NBin:          4,
		MBin:          2,
		RMin:          0,
		RMax:          4,
		NLoop:         2,
		N2:            2,
		N3:            2,
		N4:            2,
		NThreads:      2,
		ConvergeAfter: 10,
		FrobeniusTol:  1e-6,
		Seed:          7,
	}

	d := New(cfg, res, nil)
	results, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	acc, ok := results["11,11"]
	if !ok {
		t.Fatal("expected result for single-tracer combo 11,11")
	}
	if acc.NBins != cfg.NBin*cfg.MBin {
		t.Fatalf("NBins = %d, want %d", acc.NBins, cfg.NBin*cfg.MBin)
	}
}

func TestCombos_SingleTracerHasOneEntry(t *testing.T) {
	if len(SingleTracerCombos) != 1 {
		t.Fatalf("len(SingleTracerCombos) = %d, want 1", len(SingleTracerCombos))
	}
}

func TestCombos_MultiTracerHasSevenEntries(t *testing.T) {
	if len(Combos) != 7 {
		t.Fatalf("len(Combos) = %d, want 7", len(Combos))
	}
}
