package surveycorr

import "testing"

func TestNew_RejectsBadShape(t *testing.T) {
	if _, err := New(2, 3, []float64{1, 2, 3}); err == nil {
		t.Fatal("expected error for coeffs length mismatch")
	}
	if _, err := New(0, 3, nil); err == nil {
		t.Fatal("expected error for zero nbin")
	}
}

func TestFactor_LooksUpRowMajor(t *testing.T) {
	sc, err := New(2, 3, []float64{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := sc.Factor(1, 2); got != 6 {
		t.Errorf("Factor(1,2) = %v, want 6", got)
	}
	if got := sc.Factor(0, 0); got != 1 {
		t.Errorf("Factor(0,0) = %v, want 1", got)
	}
}

func TestFactor_OutOfRangeReturnsZero(t *testing.T) {
	sc, _ := New(2, 3, []float64{1, 2, 3, 4, 5, 6})
	if got := sc.Factor(5, 5); got != 0 {
		t.Errorf("Factor out of range = %v, want 0", got)
	}
}
