package cache

import (
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/revocd/smtrevoke/hashops"
	"github.com/revocd/smtrevoke/merkle"
)

func buildPartitions(t *testing.T, n, leavesPer int) ([]*merkle.SMT, []string) {
	t.Helper()
	parts := make([]*merkle.SMT, n)
	roots := make([]string, n)
	for p := 0; p < n; p++ {
		s, err := merkle.NewSMT(hashops.XXHash32Hex, 32)
		require.NoError(t, err)
		for i := 0; i < leavesPer; i++ {
			roots[p] = s.AddLeaf(hashops.XXHash32Hex(string(rune('a'+p))+string(rune('0'+i))), false)
		}
		parts[p] = s
	}
	return parts, roots
}

func TestLevelCacheSetConsistentWithRoots(t *testing.T) {
	parts, roots := buildPartitions(t, 3, 10)
	level := 4
	byPart := make([][]string, len(parts))
	for i, s := range parts {
		byPart[i] = s.ConstructLvlCache(level)
	}
	set := NewLevelCacheSet(level, byPart)

	ok, bad := set.ConsistentWith(hashops.XXHash32Hex, roots)
	require.True(t, ok)
	require.Equal(t, -1, bad)
}

func TestLevelCacheSetDetectsStalePartition(t *testing.T) {
	parts, roots := buildPartitions(t, 3, 10)
	level := 4
	byPart := make([][]string, len(parts))
	for i, s := range parts {
		byPart[i] = s.ConstructLvlCache(level)
	}
	set := NewLevelCacheSet(level, byPart)

	parts[1].AddLeaf(hashops.XXHash32Hex("extra-leaf"), false)
	roots[1] = parts[1].RootHash()

	ok, bad := set.ConsistentWith(hashops.XXHash32Hex, roots)
	require.False(t, ok)
	require.Equal(t, 1, bad)
}

func TestLevelCacheSetCloneIsIndependent(t *testing.T) {
	parts, _ := buildPartitions(t, 2, 5)
	byPart := make([][]string, len(parts))
	for i, s := range parts {
		byPart[i] = s.ConstructLvlCache(3)
	}
	set := NewLevelCacheSet(3, byPart)
	clone := set.Clone()

	clone.ByPart[0][0] = "tampered"
	if diff := cmp.Diff(set.ByPart[0], clone.ByPart[0]); diff == "" {
		t.Fatal("expected clone mutation not to alias the original cache")
	}
}

func TestSubCacheSetCloneIsIndependent(t *testing.T) {
	parts, _ := buildPartitions(t, 2, 40)

	set := SubCacheSet{
		OriginLevel: 2,
		CacheDepth:  5,
		ByPart: []map[merkle.SubCacheKey]string{
			parts[0].ConstructSubCache(big.NewInt(0), 2, 5),
			parts[1].ConstructSubCache(big.NewInt(0), 2, 5),
		},
	}
	clone := set.Clone()
	for k := range clone.ByPart[0] {
		clone.ByPart[0][k] = "tampered"
		break
	}
	if diff := cmp.Diff(set.ByPart[0], clone.ByPart[0]); diff == "" {
		t.Fatal("expected clone mutation not to alias the original subtree cache")
	}
}
