package ca

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/revocd/smtrevoke/config"
	"github.com/revocd/smtrevoke/hashops"
	"github.com/revocd/smtrevoke/merkle"
)

func testConfig() *config.Config {
	c := config.Default()
	c.HashFunction = hashops.XXHash32Hex
	c.HashDepth = 32
	c.NoSMTParts = 12
	c.AggregatedParities = 4
	c.MainParities = 2
	c.ParityLengthBytes = 2
	c.StartNoNodes = 30
	c.PassiveNodes = 0
	c.Recalc()
	return &c
}

func TestNewRejectsBadPartition(t *testing.T) {
	c := testConfig()
	authority, err := New(c)
	require.NoError(t, err)
	_, err = authority.GetASMTRoot(c.NoSMTParts)
	require.ErrorIs(t, err, ErrUnknownPartition)
}

func TestInitializeProducesNonEmptyRoots(t *testing.T) {
	c := testConfig()
	authority, err := New(c)
	require.NoError(t, err)
	authority.Initialize()
	roots := authority.GetSMTRoots()
	nonEmpty := 0
	for _, r := range roots {
		if r != "" {
			nonEmpty++
		}
	}
	require.Greater(t, nonEmpty, 0)
}

func TestGetNodePoIVerifiesAgainstRoot(t *testing.T) {
	c := testConfig()
	authority, err := New(c)
	require.NoError(t, err)
	authority.Initialize()

	part := 5
	require.NoError(t, authority.AddNode(123456, part, false))
	poi, err := authority.GetNodePoI(123456, part)
	require.NoError(t, err)

	root, err := authority.GetASMTRoot(part)
	require.NoError(t, err)
	cert := c.HashFunction("123456")
	got := merkle.CalcPathRoot(c.HashFunction, c.HashDepth, cert, poi.Path, poi.PBM, 0, false)
	require.Equal(t, root, got)
}

func TestEpochTreeChangeRotatesPartitions(t *testing.T) {
	c := testConfig()
	authority, err := New(c)
	require.NoError(t, err)
	authority.Initialize()

	before := authority.GetSMTRoots()
	authority.EpochTreeChange()
	after := authority.GetSMTRoots()

	require.Equal(t, before[0], after[len(after)-1])
	for i := 0; i < len(before)-1; i++ {
		require.Equal(t, before[i+1], after[i])
	}
}

func TestReissueRevokeRoundTrip(t *testing.T) {
	c := testConfig()
	authority, err := New(c)
	require.NoError(t, err)
	authority.Initialize()

	part := 3
	require.NoError(t, authority.AddNode(999, part, false))
	n := &Node{ID: 999, SMTPart: part, Cert: c.HashFunction("999")}

	authority.RevokeNodes([]*Node{n})
	require.True(t, n.Revoked)
	root, err := authority.GetASMTRoot(part)
	require.NoError(t, err)
	poi, err := authority.GetNodePoI(999, part)
	require.NoError(t, err)
	got := merkle.CalcPathRoot(c.HashFunction, c.HashDepth, n.Cert, poi.Path, poi.PBM, 0, true)
	require.Equal(t, root, got)

	authority.ReissueNodes([]*Node{n})
	require.False(t, n.Revoked)
	require.Equal(t, c.NoSMTParts-1, n.SMTPart)
}

func TestGetParPartMatchesConfig(t *testing.T) {
	c := testConfig()
	authority, err := New(c)
	require.NoError(t, err)
	for p := 0; p < c.NoSMTParts; p++ {
		require.Equal(t, c.GetParPart(p), authority.GetParPart(p))
	}
}

func TestConstructUpdateCarriesRevokeFlag(t *testing.T) {
	c := testConfig()
	authority, err := New(c)
	require.NoError(t, err)
	authority.Initialize()

	part := 1
	require.NoError(t, authority.AddNode(42, part, false))
	n := &Node{ID: 42, SMTPart: part, Cert: c.HashFunction("42")}
	update := authority.ConstructUpdate([]*Node{n}, true)
	require.Len(t, update, 1)
	require.True(t, update[0].Revoked)
	require.Equal(t, part, update[0].Part)
}
