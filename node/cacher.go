package node

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/golang/glog"

	"github.com/revocd/smtrevoke/ca"
	"github.com/revocd/smtrevoke/config"
	"github.com/revocd/smtrevoke/merkle"
	"github.com/revocd/smtrevoke/storage/cache"
)

// Cacher is a Node that additionally holds a level-cache per SMT
// partition, letting it repair a peer's PoI directly instead of
// waiting for a full peer-PoI exchange.
type Cacher struct {
	*Node

	CacheLevel   int
	LvlCaches    cache.LevelCacheSet
	OutdatedLvlC bool

	// OutdatedRoots flags which partitions' level-cache buckets are
	// known stale, a P-sized bitset like ca.CA.dirty rather than the
	// D-bit path bitmap merkle.Proof.PBM uses.
	OutdatedRoots *bitset.BitSet
	UpdateTryLvlc int
}

// NoteOutdatedPartition flags part as needing a level-cache refresh.
func (c *Cacher) NoteOutdatedPartition(part int) {
	if c.OutdatedRoots == nil {
		c.OutdatedRoots = &bitset.BitSet{}
	}
	c.OutdatedRoots.Set(uint(part))
}

// OutdatedPartitionCount reports how many partitions are currently
// flagged outdated.
func (c *Cacher) OutdatedPartitionCount() uint {
	if c.OutdatedRoots == nil {
		return 0
	}
	return c.OutdatedRoots.Count()
}

// OutdatedPartitionList returns the flagged partition indices in
// ascending order, the form ca.CA.GetSomeLvlCaches wants.
func (c *Cacher) OutdatedPartitionList() []int {
	if c.OutdatedRoots == nil {
		return nil
	}
	var out []int
	for i, e := c.OutdatedRoots.NextSet(0); e; i, e = c.OutdatedRoots.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// ClearOutdatedPartitions resets the outdated-partition tracking once a
// repair has refreshed every flagged bucket.
func (c *Cacher) ClearOutdatedPartitions() {
	if c.OutdatedRoots != nil {
		c.OutdatedRoots.ClearAll()
	}
}

// NewCacher wraps a freshly-constructed Node with a level-cache set.
func NewCacher(cacheLevel int, lvlCaches cache.LevelCacheSet, base *Node) *Cacher {
	return &Cacher{Node: base, CacheLevel: cacheLevel, LvlCaches: lvlCaches}
}

func (c *Cacher) String() string {
	return c.Node.String() + ", outdated_lvlc: " + boolStr(c.OutdatedLvlC)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// GetSomeLvlCaches returns this cacher's level-caches for exactly the
// listed partitions, the unit a stale peer requests during repair.
func (c *Cacher) GetSomeLvlCaches(parts []int) []ca.SomeLvlCache {
	out := make([]ca.SomeLvlCache, 0, len(parts))
	for _, p := range parts {
		lc, err := c.LvlCaches.Part(p)
		if err != nil {
			glog.Errorf("cacher: %v", err)
			continue
		}
		out = append(out, ca.SomeLvlCache{Part: p, Cache: merkle.CloneLvlCache(lc)})
	}
	return out
}

// UpdateSomeLvlCaches installs freshly-fetched level-caches for the
// given partitions and, when c.SanityChecks is set, verifies every
// partition's cache still reconstructs to the believed root. Returns
// true if a sanity-check mismatch was found.
func (c *Cacher) UpdateSomeLvlCaches(sanityChecks bool, some []ca.SomeLvlCache) bool {
	for _, s := range some {
		c.LvlCaches.SetPart(s.Part, s.Cache) //nolint:errcheck
	}
	if sanityChecks && !c.OutdatedPrime {
		ok, bad := c.LvlCaches.ConsistentWith(c.c.HashFunction, c.SMTRoots)
		if !ok {
			glog.Errorf("cacher: repair level caches failed, partition %d", bad)
			return true
		}
	}
	return false
}

// ProcessUpdate overrides Node.ProcessUpdate: a cacher first folds
// every update entry into its level-caches (regardless of partition),
// then checks whether a previously-outdated cache is now consistent,
// before delegating to the base node's own PoI update.
func (c *Cacher) ProcessUpdate(update []ca.Update) bool {
	for _, u := range update {
		lc, err := c.LvlCaches.Part(u.Part)
		if err != nil {
			continue
		}
		merkle.UpdateLvlCacheWithPoI(c.c.HashFunction, c.c.HashDepth, u.Hash, u.PoI.Path, u.PoI.PBM, lc, c.CacheLevel, u.Revoked)
	}

	if c.OutdatedLvlC && !c.OutdatedPrime {
		ok, _ := c.LvlCaches.ConsistentWith(c.c.HashFunction, c.SMTRoots)
		c.OutdatedLvlC = !ok
	}

	if c.c.SanityChecks && !c.OutdatedLvlC && !c.OutdatedPrime {
		if ok, bad := c.LvlCaches.ConsistentWith(c.c.HashFunction, c.SMTRoots); !ok {
			glog.Errorf("cacher: updating level caches failed, partition %d, node %s", bad, c)
		}
	}

	return c.Node.ProcessUpdate(update)
}

// SetPrimeIDWrongParts overrides Node's: any prime-root change marks
// the level-cache set outdated too, since a changed partition root
// means at least one cache bucket is now stale.
func (c *Cacher) SetPrimeIDWrongParts(prime ca.PrimeRoot) (wrongAggr, wrongMain []int) {
	if !c.PrimeRoot.Equal(prime) {
		c.OutdatedLvlC = true
	}
	return c.Node.SetPrimeIDWrongParts(prime)
}

// SetIDedSMTRoots overrides Node's: partitions whose root actually
// changed are recorded so a later cache repair knows exactly which
// buckets to refresh.
func (c *Cacher) SetIDedSMTRoots(roots []PartRoot) bool {
	c.OutdatedRoots = &bitset.BitSet{}
	for _, r := range roots {
		if r.Root != c.SMTRoots[r.Part] {
			c.OutdatedRoots.Set(uint(r.Part))
		}
	}
	return c.Node.SetIDedSMTRoots(roots)
}

// RepairLevelCacheWithPoI folds a helper's single PoI directly into
// this cacher's level-cache for the helper's partition, without
// requiring the helper to be a fellow cacher. This is the
// EnableLvlCacheViaPoI path: the original measured it as pure overhead
// for virtually no improvement over waiting for a peer cacher, so it
// stays off by default (config.Config.EnableLvlCacheViaPoI).
func (c *Cacher) RepairLevelCacheWithPoI(cfg *config.Config, helperPart int, helperCert string, helperPoI merkle.Proof, helperRevoked bool) {
	lc, err := c.LvlCaches.Part(helperPart)
	if err != nil {
		return
	}
	merkle.UpdateLvlCacheWithPoI(cfg.HashFunction, cfg.HashDepth, helperCert, helperPoI.Path, helperPoI.PBM, lc, c.CacheLevel, helperRevoked)
	ok, _ := c.LvlCaches.ConsistentWith(cfg.HashFunction, c.SMTRoots)
	c.OutdatedLvlC = !ok
}
