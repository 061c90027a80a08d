package eval

import (
	"context"
	"fmt"

	"github.com/revocd/smtrevoke/config"
	"github.com/revocd/smtrevoke/sim"
)

// NodeSweepParams configures NodeCountSweep: a base config plus the
// StartNoNodes values to run it at, one Simulator per value.
type NodeSweepParams struct {
	Base       config.Config
	NodeCounts []int
	Seed       int64
}

// NodeCountSweep builds one Job per node count in params.NodeCounts,
// each cloning params.Base with StartNoNodes overridden and recalculated,
// running a full Simulator to completion, and flattening the run's
// config and sim.Result into a CSV row — the Go analogue of
// sim_batch.py's per-config BigNetSim(c).sim() loop.
func NodeCountSweep(p NodeSweepParams) []Job {
	jobs := make([]Job, 0, len(p.NodeCounts))
	for i, n := range p.NodeCounts {
		n := n
		seed := p.Seed + int64(i)
		jobs = append(jobs, Job{
			Name: fmt.Sprintf("sim-node-sweep/nodes=%d", n),
			Run: func() (Result, error) {
				c := p.Base
				c.StartNoNodes = n
				c.Recalc()

				s, err := sim.NewSimulator(&c, sim.NewRandSampler(seed))
				if err != nil {
					return Result{}, err
				}
				out, err := s.Run(context.Background())
				if err != nil {
					return Result{}, err
				}
				return simResultRow(c, out), nil
			},
		})
	}
	return jobs
}

func simResultRow(c config.Config, out sim.Result) Result {
	var res Result
	res.addParam("no_nodes", c.StartNoNodes)
	res.addParam("cache_level", c.CacheLevel)
	res.addParam("max_repair_tries", c.MaxRepairTries)
	res.addParam("no_cacher_share_pct", c.NoCacherShare*100)
	res.addParam("no_missing_nodes_share_pct", c.NoMissingNodesShare*100)
	res.addParam("revoked_per_sub_share_pct", c.RevokedPerSubEpochPct*100)
	res.addParam("parity_length_bytes", c.ParityLengthBytes)

	res.addMetric("total_revocations", float64(out.TotalRevocations))
	res.addMetric("total_n_needed_repairs", float64(out.TotalNeededRepairs))
	res.addMetric("avg_try", out.AvgTry)
	res.addMetric("lvlc_share_pct", out.LvlcSharePercent)
	res.addMetric("failed_repairs_pct", out.FailedRepairsPercent)
	res.addMetric("avg_update_size_bytes", out.AvgUpdateSizeBytes)
	res.addMetric("nodes_sent_per_week_bytes", out.NodesSentPerWeekBytes)
	res.addMetric("nodes_sent_repair_share_pct", out.NodesSentRepairSharePct)
	res.addMetric("parity_fails_share_pct", out.ParityFailsSharePercent)
	res.addMetric("avg_prune_update_size_bytes", out.AvgPruneUpdateSizeBytes)
	res.addMetric("total_encounters", float64(out.TotalEncounters))
	res.addMetric("encounters_both_outdated_share_pct", out.EncountersBothOutdatedPct)
	return res
}
