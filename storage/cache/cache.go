// Package cache wraps the merkle package's level-cache and
// subtree-cache primitives with the per-CA-partition bookkeeping that
// node.Cacher and sim.Simulator use: an array of caches (one per SMT
// partition), deep-copy handoffs, and the "is this cache internally
// consistent with what I believe the root to be" check a cacher runs
// after folding in an update.
package cache

import (
	"fmt"

	"github.com/revocd/smtrevoke/hashops"
	"github.com/revocd/smtrevoke/merkle"
)

// LevelCacheSet is one level-cache per SMT partition, all built at the
// same cache level.
type LevelCacheSet struct {
	Level  int
	ByPart [][]string
}

// NewLevelCacheSet wraps a slice of per-partition level-caches (as
// returned by ca.CA.GetLvlCaches) at the given cache level.
func NewLevelCacheSet(level int, byPart [][]string) LevelCacheSet {
	return LevelCacheSet{Level: level, ByPart: byPart}
}

// Clone returns a deep copy, since a LevelCacheSet is handed to a new
// node and must never alias the CA's or another node's copy.
func (s LevelCacheSet) Clone() LevelCacheSet {
	out := make([][]string, len(s.ByPart))
	for i, c := range s.ByPart {
		out[i] = merkle.CloneLvlCache(c)
	}
	return LevelCacheSet{Level: s.Level, ByPart: out}
}

// Part returns the level-cache for one partition, erroring if the
// partition index is out of range.
func (s LevelCacheSet) Part(part int) ([]string, error) {
	if part < 0 || part >= len(s.ByPart) {
		return nil, fmt.Errorf("cache: partition %d out of range (have %d)", part, len(s.ByPart))
	}
	return s.ByPart[part], nil
}

// SetPart installs a freshly-fetched level-cache for one partition (the
// unit exchanged during a peer-to-peer cache repair).
func (s LevelCacheSet) SetPart(part int, c []string) error {
	if part < 0 || part >= len(s.ByPart) {
		return fmt.Errorf("cache: partition %d out of range (have %d)", part, len(s.ByPart))
	}
	s.ByPart[part] = c
	return nil
}

// ConsistentWith reports whether every partition's level-cache
// reconstructs to the expected root in roots (roots[i] for partition
// i), the sanity check node.Cacher runs after folding in an update.
// The first inconsistent partition index is also returned for
// diagnostics (-1 if consistent).
func (s LevelCacheSet) ConsistentWith(hf hashops.Func, roots []string) (bool, int) {
	for i, c := range s.ByPart {
		if roots[i] != merkle.RootFromLvlCache(hf, c, s.Level) {
			return false, i
		}
	}
	return true, -1
}

// SubCacheSet is a subtree-cache per SMT partition, all rooted at the
// same (originLevel, cacheDepth) region.
type SubCacheSet struct {
	OriginLevel int
	CacheDepth  int
	ByPart      []map[merkle.SubCacheKey]string
}

// Clone returns a deep copy.
func (s SubCacheSet) Clone() SubCacheSet {
	out := make([]map[merkle.SubCacheKey]string, len(s.ByPart))
	for i, c := range s.ByPart {
		out[i] = merkle.CloneSubCache(c)
	}
	return SubCacheSet{OriginLevel: s.OriginLevel, CacheDepth: s.CacheDepth, ByPart: out}
}
