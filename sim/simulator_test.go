package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/revocd/smtrevoke/config"
	"github.com/revocd/smtrevoke/hashops"
	"github.com/revocd/smtrevoke/node"
)

func smallConfig() config.Config {
	c := config.Default()
	c.HashFunction = hashops.XXHash32Hex
	c.HashDepth = 32
	c.NoSMTParts = 12
	c.AggregatedParities = 4
	c.MainParities = 2
	c.ParityLengthBytes = 2
	c.PassiveNodes = 0
	c.StartNoNodes = 40
	c.NoCacherShare = 0.25
	c.CacheLevel = 4
	c.NoMissingNodesShare = 0.1
	c.EncountersPerNode = 3
	c.MaxRepairTries = 5
	c.TimeStepsPerSubEpoch = 3
	c.SubsPerEpoch = 2
	c.Epochs = 2
	c.RevokedPerSubEpochPct = 0.05
	c.Recalc()
	return c
}

func TestNewSimulatorSeedsConfiguredPopulation(t *testing.T) {
	c := smallConfig()
	s, err := NewSimulator(&c, NewRandSampler(1))
	require.NoError(t, err)
	require.Len(t, s.Actors(), c.StartNoNodes)

	cachers := 0
	for _, a := range s.Actors() {
		if _, ok := a.(*node.Cacher); ok {
			cachers++
		}
	}
	require.Equal(t, c.NoCacher, cachers)
}

func TestRunCompletesAndProducesSaneResult(t *testing.T) {
	c := smallConfig()
	s, err := NewSimulator(&c, NewRandSampler(42))
	require.NoError(t, err)

	result, err := s.Run(context.Background())
	require.NoError(t, err)

	require.GreaterOrEqual(t, result.TotalRevocations, 0)
	require.Equal(t, s.Metrics().TotalEncounters, result.TotalEncounters)
	require.GreaterOrEqual(t, result.TotalEncounters, 0)
}

func TestRunRespectsContextCancellation(t *testing.T) {
	c := smallConfig()
	c.TotalTimeSteps = 1000
	s, err := NewSimulator(&c, NewRandSampler(7))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Run(ctx)
	require.Error(t, err)
}
