package telemetry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCollector_RecordsInOrder(t *testing.T) {
	c := NewCollector()
	c.Record(LoopStats{Combo: "11,11", Loop: 0})
	c.Record(LoopStats{Combo: "11,11", Loop: 1})
	got := c.Samples()
	if len(got) != 2 || got[0].Loop != 0 || got[1].Loop != 1 {
		t.Fatalf("Samples() = %+v, want loop 0 then loop 1", got)
	}
}

func TestOutputManager_WritesProgressCSV(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}
	defer om.Close()

	if err := om.WriteLoopStats(LoopStats{Combo: "11,11", Loop: 0, Cnt2: 10}); err != nil {
		t.Fatalf("WriteLoopStats: %v", err)
	}
	if err := om.WriteLoopStats(LoopStats{Combo: "11,11", Loop: 1, Cnt2: 20}); err != nil {
		t.Fatalf("WriteLoopStats: %v", err)
	}

	path := filepath.Join(dir, "progress.csv")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading progress.csv: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("progress.csv is empty")
	}
}

func TestNewOutputManager_DisabledForEmptyDir(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}
	if om != nil {
		t.Fatal("expected nil OutputManager for empty dir")
	}
	if err := om.WriteLoopStats(LoopStats{}); err != nil {
		t.Fatalf("WriteLoopStats on nil manager should be a no-op: %v", err)
	}
	if err := om.WriteFinalReport(FinalReport{}); err != nil {
		t.Fatalf("WriteFinalReport on nil manager should be a no-op: %v", err)
	}
}

func TestOutputManager_WritesFinalReportCSV(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}
	defer om.Close()

	if err := om.WriteFinalReport(FinalReport{Combo: "11,11", Cnt2: 10, TotPairs: 100}); err != nil {
		t.Fatalf("WriteFinalReport: %v", err)
	}
	if err := om.WriteFinalReport(FinalReport{Combo: "11,12", Cnt2: 20, TotPairs: 200}); err != nil {
		t.Fatalf("WriteFinalReport: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "final_report.csv"))
	if err != nil {
		t.Fatalf("reading final_report.csv: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("final_report.csv is empty")
	}
}
