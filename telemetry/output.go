package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/rascalc-go/covmc/config"
)

// OutputManager handles structured run output: the resolved configuration
// snapshot, a progress.csv trace of per-loop convergence stats, and a
// final_report.csv summary written once per tracer combination.
type OutputManager struct {
	dir           string
	progressFile  *os.File
	headerWritten bool

	reportFile         *os.File
	reportHeaderWritten bool
}

// NewOutputManager creates a new output manager and initializes the output
// directory. Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	progressPath := filepath.Join(dir, "progress.csv")
	f, err := os.Create(progressPath)
	if err != nil {
		return nil, fmt.Errorf("creating progress.csv: %w", err)
	}
	om.progressFile = f

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Parameters) error {
	if om == nil {
		return nil
	}
	configPath := filepath.Join(om.dir, "config.yaml")
	return cfg.WriteYAML(configPath)
}

// WriteLoopStats appends one loop's stats to progress.csv.
func (om *OutputManager) WriteLoopStats(stats LoopStats) error {
	if om == nil {
		return nil
	}

	records := []LoopStatsCSV{stats.ToCSV()}
	if !om.headerWritten {
		if err := gocsv.Marshal(records, om.progressFile); err != nil {
			return fmt.Errorf("writing progress: %w", err)
		}
		om.headerWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, om.progressFile); err != nil {
			return fmt.Errorf("writing progress: %w", err)
		}
	}
	return nil
}

// WriteFinalReport appends one combo's final acceptance-ratio/throughput
// report to final_report.csv, opening the file on first use.
func (om *OutputManager) WriteFinalReport(report FinalReport) error {
	if om == nil {
		return nil
	}
	if om.reportFile == nil {
		f, err := os.Create(filepath.Join(om.dir, "final_report.csv"))
		if err != nil {
			return fmt.Errorf("creating final_report.csv: %w", err)
		}
		om.reportFile = f
	}

	records := []FinalReportCSV{report.ToCSV()}
	if !om.reportHeaderWritten {
		if err := gocsv.Marshal(records, om.reportFile); err != nil {
			return fmt.Errorf("writing final report: %w", err)
		}
		om.reportHeaderWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, om.reportFile); err != nil {
			return fmt.Errorf("writing final report: %w", err)
		}
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	if om.reportFile != nil {
		if err := om.reportFile.Close(); err != nil {
			return err
		}
	}
	if om.progressFile == nil {
		return nil
	}
	return om.progressFile.Close()
}
