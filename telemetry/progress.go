package telemetry

import (
	"log/slog"
	"time"
)

// LoopStats records one outer-loop iteration's progress for one
// multi-tracer combination: accepted sample counts, the convergence proxy
// (the C4 relative Frobenius delta against the previous loop), and timing.
type LoopStats struct {
	Combo    string
	Loop     int
	Cnt2     uint64
	Cnt3     uint64
	Cnt4     uint64
	C4Delta  float64
	Elapsed  time.Duration
	Converged bool
}

// LogValue implements slog.LogValuer for structured logging.
func (s LoopStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("combo", s.Combo),
		slog.Int("loop", s.Loop),
		slog.Uint64("cnt2", s.Cnt2),
		slog.Uint64("cnt3", s.Cnt3),
		slog.Uint64("cnt4", s.Cnt4),
		slog.Float64("c4_delta", s.C4Delta),
		slog.Int64("elapsed_ms", s.Elapsed.Milliseconds()),
		slog.Bool("converged", s.Converged),
	)
}

// LoopStatsCSV is a flat struct for CSV export of LoopStats via gocsv.
type LoopStatsCSV struct {
	Combo      string  `csv:"combo"`
	Loop       int     `csv:"loop"`
	Cnt2       uint64  `csv:"cnt2"`
	Cnt3       uint64  `csv:"cnt3"`
	Cnt4       uint64  `csv:"cnt4"`
	C4Delta    float64 `csv:"c4_delta"`
	ElapsedMs  int64   `csv:"elapsed_ms"`
	Converged  bool    `csv:"converged"`
}

// ToCSV converts LoopStats to its flat CSV-friendly form.
func (s LoopStats) ToCSV() LoopStatsCSV {
	return LoopStatsCSV{
		Combo:     s.Combo,
		Loop:      s.Loop,
		Cnt2:      s.Cnt2,
		Cnt3:      s.Cnt3,
		Cnt4:      s.Cnt4,
		C4Delta:   s.C4Delta,
		ElapsedMs: s.Elapsed.Milliseconds(),
		Converged: s.Converged,
	}
}

// Collector accumulates LoopStats across a run for later CSV export,
// mirroring the rolling-window collector pattern but retaining every loop
// (runs are bounded by NLoop, not an open-ended tick stream).
type Collector struct {
	samples []LoopStats
}

// NewCollector creates an empty progress collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Record appends one loop's stats.
func (c *Collector) Record(s LoopStats) {
	c.samples = append(c.samples, s)
}

// Samples returns all recorded loop stats in recording order.
func (c *Collector) Samples() []LoopStats {
	return c.samples
}

// LogLoop logs one loop's stats via slog at info level.
func LogLoop(logger *slog.Logger, s LoopStats) {
	logger.Info("loop progress", "stats", s)
}
