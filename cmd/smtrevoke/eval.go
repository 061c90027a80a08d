package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/revocd/smtrevoke/config"
	"github.com/revocd/smtrevoke/eval"
)

func newEvalCmd() *cobra.Command {
	var (
		workers  int
		out      string
		depth    int
		treeSize int
		entropy  int
		seed     int64
		hashName string
	)
	cmd := &cobra.Command{
		Use:   "eval <case>",
		Short: "Run a named large-tree evaluation campaign and write its results as CSV",
		Long: fmt.Sprintf("Available cases: %s", strings.Join(eval.CaseNames(), ", ")),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hf, err := config.HashFuncByName(hashName)
			if err != nil {
				return err
			}
			jobs, err := eval.BuildCase(args[0], eval.CaseParams{
				HashFunc: hf, Depth: depth, TreeSize: treeSize, Entropy: entropy, Seed: seed,
			})
			if err != nil {
				return err
			}
			glog.V(1).Infof("eval: running %d parameter tuples for case %s", len(jobs), args[0])

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("eval: creating %s: %w", out, err)
			}
			defer f.Close()

			loggedJobs := make([]eval.Job, len(jobs))
			for i, j := range jobs {
				j := j
				loggedJobs[i] = eval.Job{Name: j.Name, Run: func() (eval.Result, error) {
					res, err := j.Run()
					if err == nil {
						glog.V(1).Infof("eval: completed %s", j.Name)
					}
					return res, err
				}}
			}

			return eval.RunCampaign(cmd.Context(), loggedJobs, workers, f)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 4, "maximum concurrent campaign jobs")
	cmd.Flags().StringVar(&out, "out", "eval.csv", "output CSV path")
	cmd.Flags().IntVar(&depth, "depth", 32, "SMT depth in bits")
	cmd.Flags().IntVar(&treeSize, "tree-size", 100000, "number of leaves to seed the evaluation tree with")
	cmd.Flags().IntVar(&entropy, "entropy", 10000, "number of trials per parameter tuple")
	cmd.Flags().Int64Var(&seed, "seed", 1, "base RNG seed; each parameter tuple offsets from it")
	cmd.Flags().StringVar(&hashName, "hash-function", "xxhash", "hash function: sha256, sha3-256, or xxhash (must match --depth: 256-bit hashes need --depth 256)")
	return cmd
}
