package merkle

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revocd/smtrevoke/hashops"
)

// buildTree inserts n leaves (hashLeaf(1..n)) into a fresh depth-D tree and
// returns it alongside the resulting root.
func buildTree(t *testing.T, n int) (*SMT, string) {
	t.Helper()
	s, err := NewSMT(hashops.XXHash32Hex, testDepth)
	require.NoError(t, err)
	var root string
	for i := 1; i <= n; i++ {
		root = s.AddLeaf(hashLeaf(i), false)
	}
	return s, root
}

func TestUpdatePoIWithPoIConvergesToNewRoot(t *testing.T) {
	s, _ := buildTree(t, 3)
	h1, h2 := hashLeaf(1), hashLeaf(2)
	p1 := s.Path(h1)

	newRoot := s.AddLeaf(hashLeaf(4), false)
	p2 := s.Path(h2)

	updatedPBM, updatedPath := UpdatePoIWithPoI(hashops.XXHash32Hex, testDepth, h1, p1.Path, p1.PBM, h2, p2.Path, p2.PBM, false)
	got := CalcPathRoot(hashops.XXHash32Hex, testDepth, h1, updatedPath, updatedPBM, 0, false)
	assert.Equal(t, newRoot, got)
}

func TestUpdatePoIWithPoIAfterRevocation(t *testing.T) {
	s, _ := buildTree(t, 4)
	h1, h2 := hashLeaf(1), hashLeaf(2)
	p1 := s.Path(h1)

	newRoot := s.AddLeaf(h2, true)
	p2 := s.Path(h2)

	updatedPBM, updatedPath := UpdatePoIWithPoI(hashops.XXHash32Hex, testDepth, h1, p1.Path, p1.PBM, h2, p2.Path, p2.PBM, true)
	got := CalcPathRoot(hashops.XXHash32Hex, testDepth, h1, updatedPath, updatedPBM, 0, false)
	assert.Equal(t, newRoot, got)
}

func TestUpdatePoIWithPoIIdenticalHashIsNoop(t *testing.T) {
	s, _ := buildTree(t, 3)
	h1 := hashLeaf(1)
	p1 := s.Path(h1)

	pbm, path := UpdatePoIWithPoI(hashops.XXHash32Hex, testDepth, h1, p1.Path, p1.PBM, h1, p1.Path, p1.PBM, false)
	assert.Equal(t, p1.PBM, pbm)
	assert.Equal(t, p1.Path, path)
}

func TestUpdatePoIWithLvlCacheConvergesToRoot(t *testing.T) {
	s, _ := buildTree(t, 12)
	h1 := hashLeaf(1)
	p1 := s.Path(h1)

	newRoot := s.AddLeaf(hashLeaf(50), false)
	lvl := 4
	cache := s.ConstructLvlCache(lvl)

	path := append([]string(nil), p1.Path...)
	UpdatePoIWithLvlCache(hashops.XXHash32Hex, testDepth, h1, path, cache, lvl)

	got := CalcPathRoot(hashops.XXHash32Hex, testDepth, h1, path, p1.PBM, 0, false)
	assert.Equal(t, newRoot, got)
}

func TestUpdateLvlCacheWithPoIWritesCorrectBucket(t *testing.T) {
	s, _ := buildTree(t, 12)
	lvl := 4
	cache := s.ConstructLvlCache(lvl)

	h := hashLeaf(1)
	p := s.Path(h)
	UpdateLvlCacheWithPoI(hashops.XXHash32Hex, testDepth, h, p.Path, p.PBM, cache, lvl, false)

	bucket := new(big.Int).Rsh(hashops.ToInt(h), uint(testDepth-lvl)).Int64()
	want := CalcPathRoot(hashops.XXHash32Hex, testDepth, h, p.Path, p.PBM, lvl, false)
	assert.Equal(t, want, cache[bucket])
}

func TestUpdatePoIWithSubCacheConvergesToRoot(t *testing.T) {
	s, _ := buildTree(t, 20)
	h1 := hashLeaf(1)
	p1 := s.Path(h1)

	newRoot := s.AddLeaf(hashLeaf(77), false)

	originLevel := 2
	cacheDepth := 6
	originPos := normalizePos(testDepth, hashops.ToInt(h1), originLevel)
	sub := s.ConstructSubCache(originPos, originLevel, cacheDepth)

	path, pbm := UpdatePoIWithSubCache(hashops.XXHash32Hex, testDepth, h1, append([]string(nil), p1.Path...), p1.PBM, originLevel, sub)
	got := CalcPathRoot(hashops.XXHash32Hex, testDepth, h1, path, pbm, 0, false)
	assert.Equal(t, newRoot, got)
}

func TestConstructSubCacheOnlyCoversRequestedRegion(t *testing.T) {
	s, _ := buildTree(t, 20)
	originLevel := 3
	cacheDepth := 4
	originPos := normalizePos(testDepth, hashops.ToInt(hashLeaf(1)), originLevel)
	sub := s.ConstructSubCache(originPos, originLevel, cacheDepth)
	for k := range sub {
		assert.Equal(t, originLevel+cacheDepth, k.Level)
	}
}
