package eval

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/revocd/smtrevoke/hashops"
)

var errBoom = errors.New("boom")

func TestRepairRandomNodesProducesBoundedStats(t *testing.T) {
	res, err := RepairRandomNodes(RepairRandomNodesParams{
		HashFunc: hashops.XXHash32Hex, Depth: 32, TreeSize: 200,
		MissedUpdates: 3, OverloadAt: 30, Entropy: 20, Seed: 1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Header())
	require.Equal(t, len(res.Header()), len(res.Row()))
}

func TestRepairLevelCacheProducesBoundedStats(t *testing.T) {
	res, err := RepairLevelCache(RepairLevelCacheParams{
		HashFunc: hashops.XXHash32Hex, Depth: 32, TreeSize: 200,
		CacheLevel: 4, MissedUpdates: 3, Entropy: 20, Seed: 2,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Header())
}

func TestConstructRandomLevelCacheProducesBoundedStats(t *testing.T) {
	res, err := ConstructRandomLevelCache(ConstructRandomLevelCacheParams{
		HashFunc: hashops.XXHash32Hex, Depth: 32, TreeSize: 200,
		CacheLevel: 3, OverloadAt: 100, Entropy: 20, Seed: 3,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Header())
}

func TestRepairSubCacheProducesBoundedStats(t *testing.T) {
	res, err := RepairSubCache(RepairSubCacheParams{
		HashFunc: hashops.XXHash32Hex, Depth: 32, TreeSize: 200,
		SubDepth: 3, MissedUpdates: 3, OverloadAt: 30, Entropy: 20, Seed: 4,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Header())
}

func TestRepairMixedCacheProducesBoundedStats(t *testing.T) {
	res, err := RepairMixedCache(RepairMixedCacheParams{
		HashFunc: hashops.XXHash32Hex, Depth: 32, TreeSize: 200,
		CacheLevel: 4, SubDepth: 3, MissedUpdates: 3, OverloadAt: 30, Entropy: 20, Seed: 5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Header())
}

func TestBuildCaseRejectsUnknownName(t *testing.T) {
	_, err := BuildCase("not-a-case", CaseParams{HashFunc: hashops.XXHash32Hex, Depth: 32, TreeSize: 10, Entropy: 1})
	require.Error(t, err)
}

func TestRunCampaignWritesCSVWithHeaderAndRows(t *testing.T) {
	jobs, err := BuildCase("repair-random-nodes", CaseParams{
		HashFunc: hashops.XXHash32Hex, Depth: 32, TreeSize: 100, Entropy: 5, Seed: 10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, jobs)

	var buf bytes.Buffer
	err = RunCampaign(context.Background(), jobs[:3], 2, &buf)
	require.NoError(t, err)

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	require.Equal(t, 4, lines) // header + 3 rows
}

func TestRunCampaignAggregatesJobErrors(t *testing.T) {
	jobs := []Job{
		{Name: "ok", Run: func() (Result, error) {
			var r Result
			r.addParam("x", 1)
			r.addMetric("y", 1.0)
			return r, nil
		}},
		{Name: "bad", Run: func() (Result, error) {
			return Result{}, errBoom
		}},
	}
	var buf bytes.Buffer
	err := RunCampaign(context.Background(), jobs, 2, &buf)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad")
}
