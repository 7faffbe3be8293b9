package integral

// Combo names one of the four-point tracer combinations (I1,I2,I3,I4) that
// the multi-tracer covariance estimator cycles through, identifying which
// tracer's grid/correlation-function/jackknife-weight table supplies each
// of the chain's four draws (spec.md section 4.4).
type Combo struct {
	Label          string
	I1, I2, I3, I4 int
}

// Combos lists the seven multi-tracer combinations a two-tracer run cycles
// through, in the fixed order spec.md section 8's S3 scenario specifies
// (11-11, 11-12, 11-22, 12-22, 22-22, 11-21, 12-12). For a single-tracer run
// only the first entry is used.
var Combos = []Combo{
	{Label: "11,11", I1: 1, I2: 1, I3: 1, I4: 1},
	{Label: "11,12", I1: 1, I2: 1, I3: 1, I4: 2},
	{Label: "11,22", I1: 1, I2: 1, I3: 2, I4: 2},
	{Label: "12,22", I1: 1, I2: 2, I3: 2, I4: 2},
	{Label: "22,22", I1: 2, I2: 2, I3: 2, I4: 2},
	{Label: "11,21", I1: 1, I2: 1, I3: 2, I4: 1},
	{Label: "12,12", I1: 1, I2: 2, I3: 1, I4: 2},
}

// SingleTracerCombos is the one-entry combination list used when the run
// has only one tracer.
var SingleTracerCombos = []Combo{{Label: "11,11", I1: 1, I2: 1, I3: 1, I4: 1}}
