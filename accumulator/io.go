package accumulator

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// outputSubdir returns the variant-named output subdirectory for integral
// files, per spec.md section 6.
func (a *Accumulator) outputSubdir(jackknife bool) string {
	switch a.Kind {
	case Power:
		return "PowerCovMatrices"
	default:
		if jackknife {
			return "CovMatricesJack"
		}
		return "CovMatrices"
	}
}

// countsRecord is the gocsv-marshaled sidecar recording accepted-sample
// counts alongside each saved integral set.
type countsRecord struct {
	Tag     string `csv:"tag"`
	Cnt2    uint64 `csv:"cnt2"`
	Cnt3    uint64 `csv:"cnt3"`
	Cnt4    uint64 `csv:"cnt4"`
	NBin    int    `csv:"nbin"`
	MBin    int    `csv:"mbin"`
	Variant string `csv:"variant"`
}

func writeMatrixText(path string, n int, at func(i, j int) float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("accumulator: creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if j > 0 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprintf(w, "%.10e", at(i, j))
		}
		fmt.Fprint(w, "\n")
	}
	return w.Flush()
}

func writeVectorText(path string, v []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("accumulator: creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i, x := range v {
		if i > 0 {
			fmt.Fprint(w, " ")
		}
		fmt.Fprintf(w, "%.10e", x)
	}
	fmt.Fprint(w, "\n")
	return w.Flush()
}

// SaveIntegrals writes C2, C3, and C4 to plain whitespace-delimited text
// files named by tag (typically the multi-tracer combination label) under
// dir/<variant subdirectory>/, plus a counts.csv sidecar with the accepted
// sample counts. Matrix files match the original covariance-matrix output
// convention: one row per line, rather than gocsv's record-oriented format,
// since a matrix dump is not tabular data.
func (a *Accumulator) SaveIntegrals(dir, tag string) error {
	sub := filepath.Join(dir, a.outputSubdir(false))
	if err := os.MkdirAll(sub, 0755); err != nil {
		return fmt.Errorf("accumulator: creating %s: %w", sub, err)
	}

	if err := writeVectorText(filepath.Join(sub, fmt.Sprintf("c2_%s.txt", tag)), a.C2); err != nil {
		return err
	}
	if err := writeMatrixText(filepath.Join(sub, fmt.Sprintf("c3_%s.txt", tag)), a.NBins, a.C3.At); err != nil {
		return err
	}
	if err := writeMatrixText(filepath.Join(sub, fmt.Sprintf("c4_%s.txt", tag)), a.NBins, a.C4.At); err != nil {
		return err
	}

	return a.appendCounts(sub, tag)
}

// SaveJackknifeIntegrals writes the region-resolved C2_jack and C3_jack
// tables (one file per region each) and the aggregated C4_jack table under
// dir/CovMatricesJack/ (dir/PowerCovMatrices/ for Power).
func (a *Accumulator) SaveJackknifeIntegrals(dir, tag string) error {
	if !a.Jackknife {
		return fmt.Errorf("accumulator: SaveJackknifeIntegrals called on a non-jackknife accumulator")
	}
	sub := filepath.Join(dir, a.outputSubdir(true))
	if err := os.MkdirAll(sub, 0755); err != nil {
		return fmt.Errorf("accumulator: creating %s: %w", sub, err)
	}

	for region, vec := range a.C2Jack {
		name := fmt.Sprintf("c2_jack_%s_region%d.txt", tag, region)
		if err := writeVectorText(filepath.Join(sub, name), vec); err != nil {
			return err
		}
	}
	for region, m := range a.C3Jack {
		name := fmt.Sprintf("c3_jack_%s_region%d.txt", tag, region)
		if err := writeMatrixText(filepath.Join(sub, name), a.NBins, m.At); err != nil {
			return err
		}
	}
	return writeMatrixText(filepath.Join(sub, fmt.Sprintf("c4_jack_%s.txt", tag)), a.NBins, a.C4Jack.At)
}

func (a *Accumulator) appendCounts(sub, tag string) error {
	path := filepath.Join(sub, "counts.csv")
	rec := countsRecord{Tag: tag, Cnt2: a.cnt2, Cnt3: a.cnt3, Cnt4: a.cnt4, NBin: a.NBin, MBin: a.MBin, Variant: a.Kind.String()}

	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("accumulator: opening %s: %w", path, err)
	}
	defer f.Close()

	records := []countsRecord{rec}
	if os.IsNotExist(statErr) {
		return gocsv.Marshal(records, f)
	}
	return gocsv.MarshalWithoutHeaders(records, f)
}
