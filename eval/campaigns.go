// Package eval runs the large-tree repair/cache-construction campaigns
// used to characterize the repair ladder's convergence behaviour: how
// many encounters a stale node typically needs before a PoI repair,
// level-cache repair, or sub-cache repair converges on the tree's
// actual current root, as a function of how stale it has become.
//
// Each campaign builds a large sparse tree, repeatedly knocks a
// "target" leaf's proof out of date by a configurable number of
// missed updates, then simulates meeting random peers one at a time
// until the target's repaired proof matches the tree's current root
// (or a per-trial overload cutoff is hit), accumulating convergence
// statistics over many independent trials.
package eval

import (
	"fmt"
	"math/big"
	"math/rand"

	"github.com/revocd/smtrevoke/hashops"
	"github.com/revocd/smtrevoke/merkle"
)

// Result is one campaign run's parameters (recorded so a batch CSV can
// tell rows apart) plus its aggregate statistics, both kept as ordered
// string-keyed maps so the CSV writer can emit a header from whichever
// campaign produced the row without a campaign-specific schema.
type Result struct {
	Params  []KV
	Metrics []KV
}

// KV is one ordered key/value pair. Result keeps params/metrics as
// slices rather than maps so column order in the CSV output is stable
// and matches the order each campaign appends them in.
type KV struct {
	Key   string
	Value string
}

func (r *Result) addParam(k string, v interface{}) {
	r.Params = append(r.Params, KV{k, fmt.Sprint(v)})
}

func (r *Result) addMetric(k string, v float64) {
	r.Metrics = append(r.Metrics, KV{k, fmt.Sprintf("%.6f", v)})
}

// Header returns the CSV column names this Result would produce:
// every param key followed by every metric key.
func (r Result) Header() []string {
	h := make([]string, 0, len(r.Params)+len(r.Metrics))
	for _, kv := range r.Params {
		h = append(h, kv.Key)
	}
	for _, kv := range r.Metrics {
		h = append(h, kv.Key)
	}
	return h
}

// Row returns the CSV values in the same order as Header.
func (r Result) Row() []string {
	row := make([]string, 0, len(r.Params)+len(r.Metrics))
	for _, kv := range r.Params {
		row = append(row, kv.Value)
	}
	for _, kv := range r.Metrics {
		row = append(row, kv.Value)
	}
	return row
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// buildTree seeds a fresh TestSMT with n random leaves drawn from rng,
// returning the tree; callers keep drawing from the same rng afterwards.
func buildTree(hf hashops.Func, depth, n int, rng *rand.Rand) (*merkle.TestSMT, error) {
	smt, err := merkle.NewTestSMT(hf, depth)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		for {
			h := hf(fmt.Sprintf("%d.%f", i, rng.Float64()))
			if _, changed := smt.AddLeaf(h); changed {
				break
			}
		}
	}
	return smt, nil
}

// randomLeaf draws one of the tree's existing leaves at random.
func randomLeaf(smt *merkle.TestSMT, depth int, rng *rand.Rand) string {
	idx := rng.Intn(smt.LeafCount())
	pos, _ := smt.LeafAt(idx)
	return hashops.FromInt(pos, depth/8)
}

func missUpdates(smt *merkle.TestSMT, hf hashops.Func, count int, rng *rand.Rand) string {
	root := smt.RootHash()
	for i := 0; i < count; i++ {
		for {
			h := hf(fmt.Sprintf("miss.%f", rng.Float64()))
			if newRoot, changed := smt.AddLeaf(h); changed {
				root = newRoot
				break
			}
		}
	}
	return root
}

// RepairRandomNodesParams configures RepairRandomNodes.
type RepairRandomNodesParams struct {
	HashFunc       hashops.Func
	Depth          int
	TreeSize       int
	MissedUpdates  int
	OverloadAt     int
	Entropy        int
	Seed           int64
}

// RepairRandomNodes measures how many random-peer encounters a stale
// PoI typically needs to converge via plain PoI-with-PoI folding,
// grounded on bigtest_repair_rnd_nodes.
func RepairRandomNodes(p RepairRandomNodesParams) (Result, error) {
	rng := rand.New(rand.NewSource(p.Seed))
	smt, err := buildTree(p.HashFunc, p.Depth, p.TreeSize, rng)
	if err != nil {
		return Result{}, err
	}
	target := p.HashFunc("target")
	smt.AddLeaf(target)
	proof := smt.Path(target)

	var avg float64
	mini, maxi := p.OverloadAt+2, 0
	var firstTries, firstTen, overloads int

	for t := 0; t < p.Entropy; t++ {
		actualRoot := missUpdates(smt, p.HashFunc, p.MissedUpdates, rng)
		myPath := merkle.CloneLvlCache(proof.Path)
		myPBM := new(big.Int).Set(proof.PBM)
		converged := false
		for i := 0; i <= p.OverloadAt+1; i++ {
			if i > p.OverloadAt {
				proof = smt.Path(target)
				overloads++
				break
			}
			peer := randomLeaf(smt, p.Depth, rng)
			peerProof := smt.Path(peer)
			myPBM, myPath = merkle.UpdatePoIWithPoI(p.HashFunc, p.Depth, target, myPath, myPBM, peer, peerProof.Path, peerProof.PBM, false)
			if merkle.CalcPathRoot(p.HashFunc, p.Depth, target, myPath, myPBM, 0, false) == actualRoot {
				if i == 0 {
					firstTries++
				}
				if i < 10 {
					firstTen++
				}
				avg += float64(i + 1)
				if i < mini {
					mini = i
				}
				if i > maxi {
					maxi = i
				}
				converged = true
				break
			}
		}
		if converged {
			proof.Path, proof.PBM = myPath, myPBM
		}
	}

	var res Result
	res.addParam("depth", p.Depth)
	res.addParam("tree_size", p.TreeSize)
	res.addParam("missed_updates", p.MissedUpdates)
	res.addParam("overload_at", p.OverloadAt)
	res.addParam("entropy", p.Entropy)
	res.addMetric("avg_try", safeDiv(avg, float64(maxInt(1, p.Entropy-overloads))))
	res.addMetric("first_tries_pct", safeDiv(float64(firstTries), float64(p.Entropy))*100)
	res.addMetric("first_ten_pct", safeDiv(float64(firstTen), float64(p.Entropy))*100)
	res.addMetric("overloads_pct", safeDiv(float64(overloads), float64(p.Entropy))*100)
	return res, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// RepairLevelCacheParams configures RepairLevelCache.
type RepairLevelCacheParams struct {
	HashFunc      hashops.Func
	Depth         int
	TreeSize      int
	CacheLevel    int
	MissedUpdates int
	Entropy       int
	Seed          int64
}

// RepairLevelCache measures how often a peer's level-cache can, by
// itself, repair a stale PoI back to the tree's current root,
// grounded on bigtest_repair_lvl_cache.
func RepairLevelCache(p RepairLevelCacheParams) (Result, error) {
	rng := rand.New(rand.NewSource(p.Seed))
	smt, err := buildTree(p.HashFunc, p.Depth, p.TreeSize, rng)
	if err != nil {
		return Result{}, err
	}
	target := p.HashFunc("target")
	smt.AddLeaf(target)
	proof := smt.Path(target)

	var successes int
	for t := 0; t < p.Entropy; t++ {
		actualRoot := missUpdates(smt, p.HashFunc, p.MissedUpdates, rng)
		lvlCache := smt.ConstructLvlCache(p.CacheLevel)
		myPath := merkle.CloneLvlCache(proof.Path)
		merkle.UpdatePoIWithLvlCache(p.HashFunc, p.Depth, target, myPath, lvlCache, p.CacheLevel)
		if merkle.CalcPathRoot(p.HashFunc, p.Depth, target, myPath, proof.PBM, 0, false) == actualRoot {
			successes++
		}
		proof = smt.Path(target)
	}

	var res Result
	res.addParam("depth", p.Depth)
	res.addParam("tree_size", p.TreeSize)
	res.addParam("cache_level", p.CacheLevel)
	res.addParam("missed_updates", p.MissedUpdates)
	res.addParam("entropy", p.Entropy)
	res.addMetric("success_pct", safeDiv(float64(successes), float64(p.Entropy))*100)
	return res, nil
}

// ConstructRandomLevelCacheParams configures ConstructRandomLevelCache.
type ConstructRandomLevelCacheParams struct {
	HashFunc   hashops.Func
	Depth      int
	TreeSize   int
	CacheLevel int
	OverloadAt int
	Entropy    int
	Seed       int64
}

// ConstructRandomLevelCache measures how many random-peer encounters a
// cacher needs to fully populate an empty level-cache via repeated
// UpdateLvlCacheWithPoI calls, grounded on
// bigtest_construct_rnd_lvl_cache.
func ConstructRandomLevelCache(p ConstructRandomLevelCacheParams) (Result, error) {
	rng := rand.New(rand.NewSource(p.Seed))
	smt, err := buildTree(p.HashFunc, p.Depth, p.TreeSize, rng)
	if err != nil {
		return Result{}, err
	}
	targetSize := 1 << uint(p.CacheLevel)

	var avg float64
	mini, maxi := p.OverloadAt+2, 0
	var overloads int

	type threshold struct {
		frac float64
		sum  float64
		miss int
	}
	thresholds := []*threshold{{frac: 0.5}, {frac: 0.75}, {frac: 0.9}, {frac: 0.95}}

	for trial := 0; trial < p.Entropy; trial++ {
		lvlCache := make([]string, targetSize)
		hit := make([]bool, len(thresholds))
		for i := 0; i <= p.OverloadAt+1; i++ {
			if i > p.OverloadAt {
				overloads++
				for k, done := range hit {
					if !done {
						thresholds[k].miss++
					}
				}
				break
			}
			peer := randomLeaf(smt, p.Depth, rng)
			peerProof := smt.Path(peer)
			merkle.UpdateLvlCacheWithPoI(p.HashFunc, p.Depth, peer, peerProof.Path, peerProof.PBM, lvlCache, p.CacheLevel, false)
			filled := 0
			for _, v := range lvlCache {
				if v != "" {
					filled++
				}
			}
			for k := range thresholds {
				if !hit[k] && float64(filled) >= thresholds[k].frac*float64(targetSize) {
					thresholds[k].sum += float64(i + 1)
					hit[k] = true
				}
			}
			if filled == targetSize {
				avg += float64(i + 1)
				if i < mini {
					mini = i
				}
				if i > maxi {
					maxi = i
				}
				break
			}
		}
	}

	var res Result
	res.addParam("depth", p.Depth)
	res.addParam("tree_size", p.TreeSize)
	res.addParam("cache_level", p.CacheLevel)
	res.addParam("overload_at", p.OverloadAt)
	res.addParam("entropy", p.Entropy)
	res.addMetric("avg_try", safeDiv(avg, float64(maxInt(1, p.Entropy-overloads))))
	names := []string{"avg50", "avg75", "avg90", "avg95"}
	for k, th := range thresholds {
		res.addMetric(names[k], safeDiv(th.sum, float64(maxInt(1, p.Entropy-th.miss))))
	}
	res.addMetric("overloads_pct", safeDiv(float64(overloads), float64(p.Entropy))*100)
	return res, nil
}

// RepairSubCacheParams configures RepairSubCache.
type RepairSubCacheParams struct {
	HashFunc      hashops.Func
	Depth         int
	TreeSize      int
	SubDepth      int
	OverloadAt    int
	MissedUpdates int
	Entropy       int
	Seed          int64
}

// RepairSubCache measures convergence using a peer's subtree-cache
// rooted at the peer's own leaf neighbourhood, folded into the
// target's stale PoI via UpdatePoIWithSubCache, then falling back to
// plain PoI-with-PoI folding against the same peer. Where the original
// builds a fan of poi_depth independent sub-caches anchored at each
// sibling along the peer's path, this uses a single sub-cache anchored
// at the peer's own leaf (originLevel = Depth-SubDepth): a simplified
// stand-in for the same mechanism, since reproducing the original's
// per-sibling anchor-position arithmetic requires internal tree-walk
// state this package's exported SMT API does not expose.
func RepairSubCache(p RepairSubCacheParams) (Result, error) {
	rng := rand.New(rand.NewSource(p.Seed))
	smt, err := buildTree(p.HashFunc, p.Depth, p.TreeSize, rng)
	if err != nil {
		return Result{}, err
	}
	target := p.HashFunc("target")
	smt.AddLeaf(target)
	proof := smt.Path(target)

	var avg float64
	mini, maxi := p.OverloadAt+2, 0
	var firstTries, firstTen, overloads int

	for t := 0; t < p.Entropy; t++ {
		actualRoot := missUpdates(smt, p.HashFunc, p.MissedUpdates, rng)
		myPath := merkle.CloneLvlCache(proof.Path)
		myPBM := new(big.Int).Set(proof.PBM)
		converged := false
		for i := 0; i <= p.OverloadAt+1; i++ {
			if i > p.OverloadAt {
				proof = smt.Path(target)
				overloads++
				break
			}
			peerIdx := rng.Intn(smt.LeafCount())
			peerPos, _ := smt.LeafAt(peerIdx)
			peer := hashops.FromInt(peerPos, p.Depth/8)
			peerProof := smt.Path(peer)
			originLevel := p.Depth - p.SubDepth
			if originLevel < 0 {
				originLevel = 0
			}
			subCache := smt.ConstructSubCache(peerPos, originLevel, p.SubDepth)
			myPath, myPBM = merkle.UpdatePoIWithSubCache(p.HashFunc, p.Depth, target, myPath, myPBM, originLevel, subCache)
			myPBM, myPath = merkle.UpdatePoIWithPoI(p.HashFunc, p.Depth, target, myPath, myPBM, peer, peerProof.Path, peerProof.PBM, false)
			if merkle.CalcPathRoot(p.HashFunc, p.Depth, target, myPath, myPBM, 0, false) == actualRoot {
				if i == 0 {
					firstTries++
				}
				if i < 10 {
					firstTen++
				}
				avg += float64(i + 1)
				if i < mini {
					mini = i
				}
				if i > maxi {
					maxi = i
				}
				converged = true
				break
			}
		}
		if converged {
			proof.Path, proof.PBM = myPath, myPBM
		}
	}

	var res Result
	res.addParam("depth", p.Depth)
	res.addParam("tree_size", p.TreeSize)
	res.addParam("sub_depth", p.SubDepth)
	res.addParam("missed_updates", p.MissedUpdates)
	res.addParam("overload_at", p.OverloadAt)
	res.addParam("entropy", p.Entropy)
	res.addMetric("cache_size", float64(int(1)<<uint(p.SubDepth)))
	res.addMetric("avg_try", safeDiv(avg, float64(maxInt(1, p.Entropy-overloads))))
	res.addMetric("first_tries_pct", safeDiv(float64(firstTries), float64(p.Entropy))*100)
	res.addMetric("first_ten_pct", safeDiv(float64(firstTen), float64(p.Entropy))*100)
	res.addMetric("overloads_pct", safeDiv(float64(overloads), float64(p.Entropy))*100)
	return res, nil
}

// RepairMixedCacheParams configures RepairMixedCache.
type RepairMixedCacheParams struct {
	HashFunc      hashops.Func
	Depth         int
	TreeSize      int
	CacheLevel    int
	SubDepth      int
	MissedUpdates int
	OverloadAt    int
	Entropy       int
	Seed          int64
}

// RepairMixedCache measures convergence when a stale PoI is repaired
// against a peer cacher holding both a level-cache (for the top band
// down to CacheLevel) and, failing that, a sub-cache anchored near the
// peer's own leaf, tried in that order each round. The node package has
// no sub-cache repair, so this two-tier ladder exists only here;
// grounded on bigtest_repair_mix_cache.
func RepairMixedCache(p RepairMixedCacheParams) (Result, error) {
	rng := rand.New(rand.NewSource(p.Seed))
	smt, err := buildTree(p.HashFunc, p.Depth, p.TreeSize, rng)
	if err != nil {
		return Result{}, err
	}
	target := p.HashFunc("target")
	smt.AddLeaf(target)
	proof := smt.Path(target)

	var avg float64
	mini, maxi := p.OverloadAt+2, 0
	var firstTries, firstTen, overloads, lvlcOnly int

	for t := 0; t < p.Entropy; t++ {
		actualRoot := missUpdates(smt, p.HashFunc, p.MissedUpdates, rng)
		myPath := merkle.CloneLvlCache(proof.Path)
		myPBM := new(big.Int).Set(proof.PBM)
		converged := false
		for i := 0; i <= p.OverloadAt+1; i++ {
			if i > p.OverloadAt {
				proof = smt.Path(target)
				overloads++
				break
			}
			lvlCache := smt.ConstructLvlCache(p.CacheLevel)
			merkle.UpdatePoIWithLvlCache(p.HashFunc, p.Depth, target, myPath, lvlCache, p.CacheLevel)
			if merkle.CalcPathRoot(p.HashFunc, p.Depth, target, myPath, myPBM, 0, false) == actualRoot {
				lvlcOnly++
				avg += float64(i + 1)
				if i < mini {
					mini = i
				}
				if i > maxi {
					maxi = i
				}
				converged = true
				break
			}

			peerIdx := rng.Intn(smt.LeafCount())
			peerPos, _ := smt.LeafAt(peerIdx)
			peer := hashops.FromInt(peerPos, p.Depth/8)
			originLevel := p.Depth - p.SubDepth
			if originLevel < 0 {
				originLevel = 0
			}
			subCache := smt.ConstructSubCache(peerPos, originLevel, p.SubDepth)
			myPath, myPBM = merkle.UpdatePoIWithSubCache(p.HashFunc, p.Depth, target, myPath, myPBM, originLevel, subCache)
			if merkle.CalcPathRoot(p.HashFunc, p.Depth, target, myPath, myPBM, 0, false) == actualRoot {
				if i == 0 {
					firstTries++
				}
				if i < 10 {
					firstTen++
				}
				avg += float64(i + 1)
				if i < mini {
					mini = i
				}
				if i > maxi {
					maxi = i
				}
				converged = true
				break
			}
		}
		if converged {
			proof.Path, proof.PBM = myPath, myPBM
		}
	}

	var res Result
	res.addParam("depth", p.Depth)
	res.addParam("tree_size", p.TreeSize)
	res.addParam("cache_level", p.CacheLevel)
	res.addParam("sub_depth", p.SubDepth)
	res.addParam("missed_updates", p.MissedUpdates)
	res.addParam("overload_at", p.OverloadAt)
	res.addParam("entropy", p.Entropy)
	res.addMetric("avg_try", safeDiv(avg, float64(maxInt(1, p.Entropy-overloads))))
	res.addMetric("lvlc_only_pct", safeDiv(float64(lvlcOnly), float64(p.Entropy))*100)
	res.addMetric("first_tries_pct", safeDiv(float64(firstTries), float64(p.Entropy))*100)
	res.addMetric("first_ten_pct", safeDiv(float64(firstTen), float64(p.Entropy))*100)
	res.addMetric("overloads_pct", safeDiv(float64(overloads), float64(p.Entropy))*100)
	return res, nil
}
