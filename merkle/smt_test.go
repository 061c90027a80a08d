package merkle

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revocd/smtrevoke/hashops"
)

const testDepth = 32

func hashLeaf(n int) string {
	return hashops.XXHash32Hex(big.NewInt(int64(n)).Text(16))
}

func TestNewSMTRejectsNonPositiveDepth(t *testing.T) {
	_, err := NewSMT(hashops.XXHash32Hex, 0)
	require.ErrorIs(t, err, ErrInvalidDepth)
}

func TestEmptyTreeHasEmptyRoot(t *testing.T) {
	s, err := NewSMT(hashops.XXHash32Hex, testDepth)
	require.NoError(t, err)
	assert.Equal(t, "", s.RootHash())
}

func TestAddLeafChangesRoot(t *testing.T) {
	s, err := NewSMT(hashops.XXHash32Hex, testDepth)
	require.NoError(t, err)
	r0 := s.RootHash()
	r1 := s.AddLeaf(hashLeaf(1), false)
	assert.NotEqual(t, r0, r1)
	assert.Equal(t, r1, s.RootHash())
}

func TestAddLeafIsOrderIndependent(t *testing.T) {
	leaves := []string{hashLeaf(1), hashLeaf(2), hashLeaf(3), hashLeaf(4)}

	a, err := NewSMT(hashops.XXHash32Hex, testDepth)
	require.NoError(t, err)
	for _, l := range leaves {
		a.AddLeaf(l, false)
	}

	b, err := NewSMT(hashops.XXHash32Hex, testDepth)
	require.NoError(t, err)
	for i := len(leaves) - 1; i >= 0; i-- {
		b.AddLeaf(leaves[i], false)
	}

	assert.Equal(t, a.RootHash(), b.RootHash())
}

func TestRevokeRestoresEmptyRoot(t *testing.T) {
	s, err := NewSMT(hashops.XXHash32Hex, testDepth)
	require.NoError(t, err)
	h := hashLeaf(1)
	s.AddLeaf(h, false)
	require.NotEqual(t, "", s.RootHash())
	s.AddLeaf(h, true)
	assert.Equal(t, "", s.RootHash())
}

func TestAddLeafOverwritesSilently(t *testing.T) {
	s, err := NewSMT(hashops.XXHash32Hex, testDepth)
	require.NoError(t, err)
	h := hashLeaf(1)
	r1 := s.AddLeaf(h, false)
	r2 := s.AddLeaf(h, false)
	assert.Equal(t, r1, r2)
}

func TestPathVerifiesAgainstRoot(t *testing.T) {
	s, err := NewSMT(hashops.XXHash32Hex, testDepth)
	require.NoError(t, err)
	leaves := []string{hashLeaf(1), hashLeaf(2), hashLeaf(3)}
	var root string
	for _, l := range leaves {
		root = s.AddLeaf(l, false)
	}
	for _, l := range leaves {
		p := s.Path(l)
		got := CalcPathRoot(hashops.XXHash32Hex, testDepth, l, p.Path, p.PBM, 0, false)
		assert.Equal(t, root, got)
	}
}

func TestRevokedLeafPathVerifiesAsEmpty(t *testing.T) {
	s, err := NewSMT(hashops.XXHash32Hex, testDepth)
	require.NoError(t, err)
	other := hashLeaf(2)
	s.AddLeaf(other, false)
	h := hashLeaf(1)
	p := s.Path(h)
	root := s.RootHash()
	got := CalcPathRoot(hashops.XXHash32Hex, testDepth, h, p.Path, p.PBM, 0, true)
	assert.Equal(t, root, got)
}

func TestConstructLvlCacheMatchesPath(t *testing.T) {
	s, err := NewSMT(hashops.XXHash32Hex, testDepth)
	require.NoError(t, err)
	for i := 1; i <= 20; i++ {
		s.AddLeaf(hashLeaf(i), false)
	}
	lvl := 4
	cache := s.ConstructLvlCache(lvl)
	assert.Len(t, cache, 1<<uint(lvl))

	h := hashLeaf(1)
	p := s.Path(h)
	sub := CalcPathRoot(hashops.XXHash32Hex, testDepth, h, p.Path, p.PBM, lvl, false)
	bucket := new(big.Int).Rsh(hashops.ToInt(h), uint(testDepth-lvl)).Int64()
	assert.Equal(t, sub, cache[bucket])
}

func TestTestSMTRefusesDuplicateLeaf(t *testing.T) {
	s, err := NewTestSMT(hashops.XXHash32Hex, testDepth)
	require.NoError(t, err)
	h := hashLeaf(1)
	_, ok := s.AddLeaf(h)
	require.True(t, ok)
	_, ok2 := s.AddLeaf(h)
	assert.False(t, ok2)
	assert.Equal(t, 1, s.LeafCount())
}

func TestTestSMTLeafAtIsOrdered(t *testing.T) {
	s, err := NewTestSMT(hashops.XXHash32Hex, testDepth)
	require.NoError(t, err)
	for i := 1; i <= 10; i++ {
		s.AddLeaf(hashLeaf(i))
	}
	require.Equal(t, 10, s.LeafCount())
	var prev *big.Int
	for i := 0; i < s.LeafCount(); i++ {
		pos, ok := s.LeafAt(i)
		require.True(t, ok)
		if prev != nil {
			assert.Equal(t, -1, prev.Cmp(pos))
		}
		prev = pos
	}
	_, ok := s.LeafAt(s.LeafCount())
	assert.False(t, ok)
}

func TestProofCloneIsIndependent(t *testing.T) {
	s, err := NewSMT(hashops.XXHash32Hex, testDepth)
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		s.AddLeaf(hashLeaf(i), false)
	}
	p := s.Path(hashLeaf(1))
	c := p.Clone()
	if len(c.Path) > 0 {
		c.Path[0] = "tampered"
		assert.NotEqual(t, p.Path[0], c.Path[0])
	}
	origBit := p.PBM.Bit(0)
	c.PBM.SetBit(c.PBM, 0, 1-origBit)
	assert.Equal(t, origBit, p.PBM.Bit(0))
}
