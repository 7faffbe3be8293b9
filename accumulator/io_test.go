package accumulator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rascalc-go/covmc/surveycorr"
)

func TestSaveIntegrals_LegendreRoutesToCovMatrices(t *testing.T) {
	sc, err := surveycorr.New(2, 2, make([]float64, 4))
	if err != nil {
		t.Fatalf("surveycorr.New: %v", err)
	}
	a, err := New(Config{Kind: Legendre, NBin: 2, MBin: 2, RMin: 0, RMax: 10, Survey12: sc, Survey23: sc, Survey34: sc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dir := t.TempDir()
	if err := a.SaveIntegrals(dir, "11,11"); err != nil {
		t.Fatalf("SaveIntegrals: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "CovMatrices", "c2_11,11.txt")); err != nil {
		t.Fatalf("expected Legendre output under CovMatrices/: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "3PCFCovMatricesAll")); err == nil {
		t.Fatal("Legendre must not write to 3PCFCovMatricesAll/")
	}
}
