package integral

import "testing"

func TestCombos_MatchesS3ScenarioOrder(t *testing.T) {
	want := []Combo{
		{Label: "11,11", I1: 1, I2: 1, I3: 1, I4: 1},
		{Label: "11,12", I1: 1, I2: 1, I3: 1, I4: 2},
		{Label: "11,22", I1: 1, I2: 1, I3: 2, I4: 2},
		{Label: "12,22", I1: 1, I2: 2, I3: 2, I4: 2},
		{Label: "22,22", I1: 2, I2: 2, I3: 2, I4: 2},
		{Label: "11,21", I1: 1, I2: 1, I3: 2, I4: 1},
		{Label: "12,12", I1: 1, I2: 2, I3: 1, I4: 2},
	}
	if len(Combos) != len(want) {
		t.Fatalf("len(Combos) = %d, want %d", len(Combos), len(want))
	}
	for i, c := range want {
		if Combos[i] != c {
			t.Errorf("Combos[%d] = %+v, want %+v", i, Combos[i], c)
		}
	}
}
