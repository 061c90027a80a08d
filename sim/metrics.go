package sim

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirrors every counter BigNetSim accumulates and prints at the
// end of a run, exposed both as plain Go fields (read by Simulator.Run's
// returned Result) and as Prometheus counters so a long-lived process
// driving several simulations can scrape them.
type Metrics struct {
	TotalRevokes        int
	FailedRepairs       int
	SuccessfulRepairs   int
	LvlcRepairs         int
	RepairTryAggr       int
	PrimeSuccesses      int
	ParityFails         int
	EncountersBothNoPoI int
	TotalEncounters     int

	MsgSizesAll      int64
	MsgSizesRepair   int64
	MsgSizesUpdate   int64
	MsgSizesCAOut    int64
	MsgSizesCAOutLvlc int64
	UpdateCount      int
	AggrUpdateSize   int64
	PruneCount       int
	AggrPruneSize    int64

	reg    *prometheus.Registry
	pc     map[string]prometheus.Counter
	synced map[string]int // field values already pushed by Sync
}

// NewMetrics constructs a Metrics instance registered against its own
// private Prometheus registry (a Simulator is short-lived and
// disposable, so it owns its registry rather than polluting the
// process default one).
func NewMetrics() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry(), pc: make(map[string]prometheus.Counter), synced: make(map[string]int)}
	for _, name := range []string{
		"total_revokes", "failed_repairs", "successful_repairs", "lvlc_repairs",
		"prime_successes", "parity_fails", "encounters_both_no_poi", "total_encounters",
		"update_count", "prune_count",
	} {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smtrevoke",
			Subsystem: "sim",
			Name:      name,
			Help:      "smtrevoke simulation counter: " + name,
		})
		m.reg.MustRegister(c)
		m.pc[name] = c
	}
	return m
}

// Registry exposes the private Prometheus registry for a caller that
// wants to scrape or expose it (e.g. cmd/smtrevoke wiring a /metrics
// endpoint is out of scope per the no-real-networking Non-goal, but the
// registry is still a first-class value callers can inspect in tests).
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) bump(name string, n int) {
	delta := n - m.synced[name]
	if delta <= 0 {
		return
	}
	if c, ok := m.pc[name]; ok {
		c.Add(float64(delta))
		m.synced[name] = n
	}
}

// Sync pushes the current plain-field counts into the Prometheus
// counters, adding only what each field has grown by since the previous
// Sync. Prometheus counters are monotonic and the plain fields are
// simple accumulators too, so this is safe to call repeatedly as long
// as fields are never decremented (they never are in this package).
func (m *Metrics) Sync() {
	m.bump("total_revokes", m.TotalRevokes)
	m.bump("failed_repairs", m.FailedRepairs)
	m.bump("successful_repairs", m.SuccessfulRepairs)
	m.bump("lvlc_repairs", m.LvlcRepairs)
	m.bump("prime_successes", m.PrimeSuccesses)
	m.bump("parity_fails", m.ParityFails)
	m.bump("encounters_both_no_poi", m.EncountersBothNoPoI)
	m.bump("total_encounters", m.TotalEncounters)
	m.bump("update_count", m.UpdateCount)
	m.bump("prune_count", m.PruneCount)
}

// Result is the compact summary a simulation run returns, the Go
// analogue of BigNetSim.sim()'s final `result` list, as named fields
// instead of a positional tuple.
type Result struct {
	TotalRevocations          int
	TotalNeededRepairs        int
	AvgTry                    float64
	LvlcSharePercent          float64
	FailedRepairsPercent      float64
	AvgUpdateSizeBytes        float64
	NodesSentPerWeekBytes     float64
	NodesSentRepairSharePct   float64
	ParityFailsSharePercent   float64
	AvgPruneUpdateSizeBytes   float64
	TotalEncounters           int
	EncountersBothOutdatedPct float64
}

// Summarize computes Result from the accumulated counters, dividing by
// c's sizing fields exactly as the original's final print/result block
// does. Divisions guard against a zero denominator (an empty or
// degenerate run) by returning 0 for that field instead of panicking.
func (m *Metrics) Summarize(c *Config) Result {
	safeDiv := func(a, b float64) float64 {
		if b == 0 {
			return 0
		}
		return a / b
	}
	totalNeeded := m.SuccessfulRepairs + m.FailedRepairs
	msgsAll := safeDiv(float64(m.MsgSizesAll), float64(c.StartNoNodes))
	msgsRepair := safeDiv(float64(m.MsgSizesRepair), float64(c.StartNoNodes))
	return Result{
		TotalRevocations:          m.TotalRevokes,
		TotalNeededRepairs:        totalNeeded,
		AvgTry:                    safeDiv(float64(m.RepairTryAggr), float64(m.SuccessfulRepairs)),
		LvlcSharePercent:          safeDiv(float64(m.LvlcRepairs), float64(m.SuccessfulRepairs)) * 100,
		FailedRepairsPercent:      safeDiv(float64(m.FailedRepairs), float64(totalNeeded)) * 100,
		AvgUpdateSizeBytes:        safeDiv(float64(m.AggrUpdateSize), float64(m.UpdateCount)) / 1024,
		NodesSentPerWeekBytes:     safeDiv(msgsAll, float64(c.Epochs)) / 1024,
		NodesSentRepairSharePct:   safeDiv(msgsRepair, msgsAll) * 100,
		ParityFailsSharePercent:   safeDiv(float64(m.ParityFails), float64(m.ParityFails+m.PrimeSuccesses)) * 100,
		AvgPruneUpdateSizeBytes:   safeDiv(float64(m.AggrPruneSize), float64(m.PruneCount)) / 1024,
		TotalEncounters:           m.TotalEncounters,
		EncountersBothOutdatedPct: safeDiv(float64(m.EncountersBothNoPoI), float64(m.TotalEncounters)) * 100,
	}
}
