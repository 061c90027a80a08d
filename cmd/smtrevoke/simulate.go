package main

import (
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/revocd/smtrevoke/ca"
	"github.com/revocd/smtrevoke/config"
	"github.com/revocd/smtrevoke/sim"
	"github.com/revocd/smtrevoke/storage"
)

func newSimulateCmd() *cobra.Command {
	var (
		configPath   string
		snapshotPath string
		useMmap      bool
		seed         int64
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one simulation to completion and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.LoadFile(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			var authority *ca.CA
			if snapshotPath != "" && storage.Exists(snapshotPath) {
				forest, err := storage.Load(snapshotPath, cfg.HashFunction, useMmap)
				if err != nil {
					return fmt.Errorf("simulate: loading snapshot: %w", err)
				}
				authority, err = ca.New(&cfg)
				if err != nil {
					return fmt.Errorf("simulate: new ca: %w", err)
				}
				if err := authority.SeedFromSnapshot(forest); err != nil {
					return fmt.Errorf("simulate: seeding ca from snapshot: %w", err)
				}
			}

			var (
				s   *sim.Simulator
				err error
			)
			if authority != nil {
				s, err = sim.NewSimulatorFromCA(&cfg, sim.NewRandSampler(seed), authority)
			} else {
				s, err = sim.NewSimulator(&cfg, sim.NewRandSampler(seed))
			}
			if err != nil {
				return fmt.Errorf("simulate: %w", err)
			}

			start := time.Now()
			result, err := s.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("simulate: run: %w", err)
			}
			glog.Infof("simulate: completed %d time steps in %s", cfg.TotalTimeSteps, time.Since(start))

			fmt.Printf("total_revocations=%d total_n_needed_repairs=%d avg_try=%.3f\n",
				result.TotalRevocations, result.TotalNeededRepairs, result.AvgTry)
			fmt.Printf("lvlc_share_pct=%.3f failed_repairs_pct=%.3f parity_fails_share_pct=%.3f\n",
				result.LvlcSharePercent, result.FailedRepairsPercent, result.ParityFailsSharePercent)
			fmt.Printf("avg_update_size_bytes=%.1f nodes_sent_per_week_bytes=%.1f nodes_sent_repair_share_pct=%.3f\n",
				result.AvgUpdateSizeBytes, result.NodesSentPerWeekBytes, result.NodesSentRepairSharePct)
			fmt.Printf("avg_prune_update_size_bytes=%.1f total_encounters=%d encounters_both_outdated_share_pct=%.3f\n",
				result.AvgPruneUpdateSizeBytes, result.TotalEncounters, result.EncountersBothOutdatedPct)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a JSON config file overriding defaults")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "path to a persisted CBOR SMT snapshot")
	cmd.Flags().BoolVar(&useMmap, "mmap", false, "memory-map the snapshot file instead of reading it fully into memory")
	cmd.Flags().Int64Var(&seed, "seed", 1, "PeerSampler RNG seed")
	return cmd
}
