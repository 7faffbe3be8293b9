// Package config provides configuration loading and access for the covariance
// Monte Carlo integrator.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Variant selects the build-time binning scheme of the IntegralAccumulator.
type Variant string

const (
	VariantAngular  Variant = "angular"
	VariantLegendre Variant = "legendre"
	VariantPower    Variant = "power"
)

// Parameters holds all configuration recognized by the integrator, per
// spec.md section 6 ("External interfaces / Configuration").
type Parameters struct {
	Binning    BinningConfig    `yaml:"binning"`
	MonteCarlo MonteCarloConfig `yaml:"monte_carlo"`
	Threading  ThreadingConfig  `yaml:"threading"`
	Tracers    TracersConfig    `yaml:"tracers"`
	Output     OutputConfig     `yaml:"output"`
	Jackknife  JackknifeConfig  `yaml:"jackknife"`
	Power      PowerConfig      `yaml:"power"`
	Periodic   bool             `yaml:"periodic"`

	// Derived holds values computed once after loading.
	Derived DerivedConfig `yaml:"-"`
}

// BinningConfig holds the radial/angular bin counts and the radial support
// they span.
type BinningConfig struct {
	NBin int     `yaml:"nbin"` // number of radial bins
	MBin int     `yaml:"mbin"` // number of angular / Legendre / Fourier bins
	RMin float64 `yaml:"rmin"`
	RMax float64 `yaml:"rmax"`
}

// MonteCarloConfig holds Monte Carlo branching and iteration parameters.
type MonteCarloConfig struct {
	N2            int     `yaml:"n2"` // j-draws per primary particle
	N3            int     `yaml:"n3"` // k-draws per j-draw
	N4            int     `yaml:"n4"` // l-draws per k-draw
	MaxLoops      int     `yaml:"max_loops"`
	DrawRadius    int     `yaml:"draw_radius"`    // half-width of the cell-offset lattice sampled by RandomDraws
	ConvergenceC4 float64 `yaml:"convergence_c4"` // relative Frobenius delta threshold on C4 (spec.md 9: only C4 gates convergence)
	ConvergeAfter int     `yaml:"converge_after"` // consecutive converged reductions before early exit
}

// ThreadingConfig holds worker-pool parameters.
type ThreadingConfig struct {
	NThread     int  `yaml:"nthread"`
	PinAffinity bool `yaml:"pin_affinity"`
	Seed        int64 `yaml:"seed"` // 0 = time-based
}

// TracersConfig controls the multi-tracer iteration.
type TracersConfig struct {
	MultiTracers bool `yaml:"multi_tracers"`
}

// OutputConfig controls where and how results are written.
type OutputConfig struct {
	Dir     string `yaml:"dir"`
	Variant string `yaml:"variant"` // "angular", "legendre", "power"
}

// JackknifeConfig controls jackknife-weighted accumulation.
type JackknifeConfig struct {
	Enabled bool `yaml:"enabled"`
}

// PowerConfig holds Power-variant-specific parameters.
type PowerConfig struct {
	Norm float64 `yaml:"norm"` // power_norm: survey-window normalization factor
	KMin float64 `yaml:"kmin"`
	KMax float64 `yaml:"kmax"`
}

// DerivedConfig holds values computed once after Load, sized for hot-path
// reuse instead of being recomputed per cell.
type DerivedConfig struct {
	NBins  int // NBin * MBin: flat C2 row length
	NBins2 int // NBins * NBins: flat C3/C4 element count
}

func (c *Parameters) computeDerived() {
	c.Derived.NBins = c.Binning.NBin * c.Binning.MBin
	c.Derived.NBins2 = c.Derived.NBins * c.Derived.NBins
}

// Validate enforces the fatal-assertion conditions from spec.md section 7:
// configuration inconsistency is a fatal, caller-visible error, never a
// silent clamp.
func (c *Parameters) Validate() error {
	if c.Binning.NBin <= 0 {
		return fmt.Errorf("config: nbin must be positive, got %d", c.Binning.NBin)
	}
	if c.Binning.MBin <= 0 {
		return fmt.Errorf("config: mbin must be positive, got %d", c.Binning.MBin)
	}
	if c.Binning.RMax <= c.Binning.RMin {
		return fmt.Errorf("config: rmax (%v) must exceed rmin (%v)", c.Binning.RMax, c.Binning.RMin)
	}
	if c.MonteCarlo.N2 <= 0 || c.MonteCarlo.N3 <= 0 || c.MonteCarlo.N4 <= 0 {
		return fmt.Errorf("config: N2, N3, N4 must all be positive, got %d, %d, %d",
			c.MonteCarlo.N2, c.MonteCarlo.N3, c.MonteCarlo.N4)
	}
	if c.MonteCarlo.MaxLoops <= 0 {
		return fmt.Errorf("config: max_loops must be positive, got %d", c.MonteCarlo.MaxLoops)
	}
	if c.Threading.NThread <= 0 {
		return fmt.Errorf("config: nthread must be positive, got %d", c.Threading.NThread)
	}
	if avail := runtime.NumCPU(); c.Threading.NThread > avail {
		return fmt.Errorf("config: nthread (%d) exceeds available CPUs (%d)", c.Threading.NThread, avail)
	}
	switch Variant(c.Output.Variant) {
	case VariantAngular, VariantLegendre, VariantPower:
	default:
		return fmt.Errorf("config: unrecognized output variant %q", c.Output.Variant)
	}
	return nil
}

// global holds the loaded configuration.
var global *Parameters

// Init loads configuration from the given path, or uses embedded defaults if
// path is empty. Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Parameters {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Parameters, error) {
	cfg := &Parameters{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()
	return cfg, nil
}

// WriteYAML writes the configuration to a YAML file, e.g. as a run's
// provenance sidecar alongside its output.
func (c *Parameters) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
