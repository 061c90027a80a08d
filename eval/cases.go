package eval

import (
	"fmt"

	"github.com/revocd/smtrevoke/hashops"
)

// CaseParams holds the campaign-independent knobs every named case
// grid is built from: the hash function and tree depth/size shared
// across every parameter tuple, and the RNG seed each job starts from
// (jobs run concurrently, so each gets its own seed to stay
// reproducible regardless of goroutine scheduling order).
type CaseParams struct {
	HashFunc hashops.Func
	Depth    int
	TreeSize int
	Entropy  int
	Seed     int64
}

// BuildCase constructs the Job list for one of the named campaigns,
// mirroring the parameter grids ops_big_tests_batch.py builds per
// case number. Case names are used instead of case numbers since
// they read better in a CLI and in DESIGN.md cross-references.
func BuildCase(name string, p CaseParams) ([]Job, error) {
	switch name {
	case "repair-random-nodes":
		return repairRandomNodesCase(p), nil
	case "repair-level-cache":
		return repairLevelCacheCase(p), nil
	case "construct-level-cache":
		return constructLevelCacheCase(p), nil
	case "repair-sub-cache":
		return repairSubCacheCase(p), nil
	case "repair-mixed-cache":
		return repairMixedCacheCase(p), nil
	default:
		return nil, fmt.Errorf("eval: unknown case %q", name)
	}
}

// CaseNames lists every case BuildCase accepts, in the order a CLI's
// help text or test table should enumerate them.
func CaseNames() []string {
	return []string{
		"repair-random-nodes",
		"repair-level-cache",
		"construct-level-cache",
		"repair-sub-cache",
		"repair-mixed-cache",
	}
}

func repairRandomNodesCase(p CaseParams) []Job {
	missed := []int{1, 2, 3, 5, 10, 20, 30, 50, 100, 200}
	jobs := make([]Job, 0, len(missed))
	for i, m := range missed {
		m := m
		seed := p.Seed + int64(i)
		jobs = append(jobs, Job{
			Name: fmt.Sprintf("repair-random-nodes/missed=%d", m),
			Run: func() (Result, error) {
				return RepairRandomNodes(RepairRandomNodesParams{
					HashFunc: p.HashFunc, Depth: p.Depth, TreeSize: p.TreeSize,
					MissedUpdates: m, OverloadAt: 100, Entropy: p.Entropy, Seed: seed,
				})
			},
		})
	}
	return jobs
}

func repairLevelCacheCase(p CaseParams) []Job {
	levels := []int{7, 8, 9, 10}
	missed := []int{1, 10, 50, 100, 500}
	jobs := make([]Job, 0, len(levels)*len(missed))
	i := 0
	for _, lvl := range levels {
		for _, m := range missed {
			lvl, m := lvl, m
			seed := p.Seed + int64(i)
			i++
			jobs = append(jobs, Job{
				Name: fmt.Sprintf("repair-level-cache/level=%d/missed=%d", lvl, m),
				Run: func() (Result, error) {
					return RepairLevelCache(RepairLevelCacheParams{
						HashFunc: p.HashFunc, Depth: p.Depth, TreeSize: p.TreeSize,
						CacheLevel: lvl, MissedUpdates: m, Entropy: p.Entropy, Seed: seed,
					})
				},
			})
		}
	}
	return jobs
}

func constructLevelCacheCase(p CaseParams) []Job {
	levels := []int{5, 6, 7, 8, 9, 10}
	jobs := make([]Job, 0, len(levels))
	for i, lvl := range levels {
		lvl := lvl
		seed := p.Seed + int64(i)
		jobs = append(jobs, Job{
			Name: fmt.Sprintf("construct-level-cache/level=%d", lvl),
			Run: func() (Result, error) {
				return ConstructRandomLevelCache(ConstructRandomLevelCacheParams{
					HashFunc: p.HashFunc, Depth: p.Depth, TreeSize: p.TreeSize,
					CacheLevel: lvl, OverloadAt: 1000, Entropy: p.Entropy, Seed: seed,
				})
			},
		})
	}
	return jobs
}

func repairSubCacheCase(p CaseParams) []Job {
	subDepths := []int{2, 3, 4, 5, 6}
	missed := []int{1, 10, 50, 100, 500}
	jobs := make([]Job, 0, len(subDepths)*len(missed))
	i := 0
	for _, sd := range subDepths {
		for _, m := range missed {
			sd, m := sd, m
			seed := p.Seed + int64(i)
			i++
			jobs = append(jobs, Job{
				Name: fmt.Sprintf("repair-sub-cache/sub_depth=%d/missed=%d", sd, m),
				Run: func() (Result, error) {
					return RepairSubCache(RepairSubCacheParams{
						HashFunc: p.HashFunc, Depth: p.Depth, TreeSize: p.TreeSize,
						SubDepth: sd, MissedUpdates: m, OverloadAt: 100, Entropy: p.Entropy, Seed: seed,
					})
				},
			})
		}
	}
	return jobs
}

// repairMixedCacheCase mirrors ops_big_tests_batch.py case 5's fixed
// tuple list (cache_level/sub_depth pairs sized for 100 and 1000
// missed updates) rather than a full cross-product grid.
func repairMixedCacheCase(p CaseParams) []Job {
	type tuple struct {
		cacheLevel, subDepth, missed int
	}
	tuples := []tuple{
		{9, 7, 100}, {9, 6, 100}, {8, 7, 100}, {8, 6, 100},
		{12, 10, 1000}, {12, 9, 1000}, {11, 10, 1000}, {11, 9, 1000},
	}
	jobs := make([]Job, 0, len(tuples))
	for i, tp := range tuples {
		tp := tp
		seed := p.Seed + int64(i)
		jobs = append(jobs, Job{
			Name: fmt.Sprintf("repair-mixed-cache/level=%d/sub_depth=%d/missed=%d", tp.cacheLevel, tp.subDepth, tp.missed),
			Run: func() (Result, error) {
				return RepairMixedCache(RepairMixedCacheParams{
					HashFunc: p.HashFunc, Depth: p.Depth, TreeSize: p.TreeSize,
					CacheLevel: tp.cacheLevel, SubDepth: tp.subDepth, MissedUpdates: tp.missed,
					OverloadAt: 100, Entropy: p.Entropy, Seed: seed,
				})
			},
		})
	}
	return jobs
}
