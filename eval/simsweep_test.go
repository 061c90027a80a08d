package eval

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/revocd/smtrevoke/config"
	"github.com/revocd/smtrevoke/hashops"
)

func TestNodeCountSweepRunsEachConfigAndEmitsCSV(t *testing.T) {
	base := config.Default()
	base.HashFunction = hashops.XXHash32Hex
	base.HashDepth = 32
	base.NoSMTParts = 12
	base.AggregatedParities = 4
	base.MainParities = 2
	base.ParityLengthBytes = 2
	base.PassiveNodes = 0
	base.NoCacherShare = 0.25
	base.CacheLevel = 4
	base.NoMissingNodesShare = 0.1
	base.EncountersPerNode = 3
	base.MaxRepairTries = 5
	base.TimeStepsPerSubEpoch = 3
	base.SubsPerEpoch = 2
	base.Epochs = 1
	base.RevokedPerSubEpochPct = 0.05

	jobs := NodeCountSweep(NodeSweepParams{
		Base:       base,
		NodeCounts: []int{30, 40},
		Seed:       99,
	})
	require.Len(t, jobs, 2)

	var buf bytes.Buffer
	err := RunCampaign(context.Background(), jobs, 2, &buf)
	require.NoError(t, err)

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	require.Equal(t, 3, lines) // header + 2 rows
}
