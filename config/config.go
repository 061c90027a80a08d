// Package config holds the simulation/CA parameter set shared by the
// ca, node, sim, and eval packages. It lives below all of them so that
// none of those packages need to import one another just to see a
// field like NoSMTParts or CacheLevel; sim.Config is a type alias onto
// Config, matching the name the rest of this module's documentation
// uses.
package config

import (
	"math"

	"github.com/revocd/smtrevoke/hashops"
)

// Config is the full parameter set for one simulation or CA setup,
// grouped the way the original's SimConfig is: SMT vars, simulation
// vars, time vars, message-size vars.
type Config struct {
	// SanityChecks enables expensive cross-checks (re-deriving roots and
	// comparing against the CA's authoritative state) useful while
	// debugging a change to the repair ladder; disable for throughput.
	SanityChecks bool

	// --- SMT vars ---
	HashFunction       hashops.Func
	HashDepth          int // bits
	NoSMTParts         int
	ParityLengthBytes  int
	MainParities       int
	AggregatedParities int // how many SMT roots are aggregated per parity lane
	NoAggrParities     int
	NoParities         int
	PrimeCounterSize   int // bytes, UNIX timestamp width

	// --- simulation vars ---
	SMTSetupFile         string
	PassiveNodes         int
	StartNoNodes         int
	NewIssuesPerEpochPct float64
	NewIssuesPerEpoch    int
	NoCacherShare        float64
	NoCacher             int
	CacheLevel           int
	NoMissingNodesShare  float64
	NoMissingNodes       int
	EncountersPerNode    int
	MaxRepairTries       int

	// EnableLvlCacheViaPoI turns on the direct level-cache-via-PoI
	// repair path (node.Cacher.RepairLevelCacheWithPoI). Off by
	// default: the original measured it as pure overhead with
	// virtually no improvement over waiting for a peer cacher.
	EnableLvlCacheViaPoI bool

	// --- time vars: time_step = 1 hour; sub_epoch = 1 day; epoch = 1 week ---
	TimeStepsPerSubEpoch  int
	SubsPerEpoch          int
	Epochs                int
	TotalTimeSteps        int
	RevokedPerSubEpochPct float64
	RevokedPerSubEpoch    int

	// --- msg partial sizes ---
	HashBytes             int
	SigSize               int
	MsgSizePrimeRoot      int
	MsgSizePoI            int
	MsgSizeLvlCache       int
	MsgSizeCompleteLvlCache int
}

// Default returns the parameter set the original ships as its
// out-of-the-box SimConfig, with HashFunction populated (the Python
// original resolves hash_function lazily; Go needs a concrete Func).
// HashDepth must match HashFunction's output width: normalizePos only
// clears the low depth-level bits and keeps the rest, so a hash wider
// than HashDepth leaves every leaf position with distinct high bits and
// no two leaves ever share an internal node. The original's own default
// SimConfig pairs hash_depth=32 with its 32-bit "miniminhash" testing
// hash, not with the 256-bit production one, so Default follows suit
// with XXHash32Hex; use SHA256Hex with HashDepth 256 for the
// production-width tree instead.
func Default() Config {
	c := Config{
		HashFunction:          hashops.XXHash32Hex,
		HashDepth:             32,
		NoSMTParts:            52,
		ParityLengthBytes:     2,
		MainParities:          2,
		AggregatedParities:    10,
		PrimeCounterSize:      4,
		SMTSetupFile:          "100kMini.bns",
		PassiveNodes:          100000,
		StartNoNodes:          1000,
		NewIssuesPerEpochPct:  0.01,
		NoCacherShare:         0.1,
		CacheLevel:            7,
		NoMissingNodesShare:   0.3,
		EncountersPerNode:     5,
		MaxRepairTries:        30,
		TimeStepsPerSubEpoch:  24,
		SubsPerEpoch:          7,
		Epochs:                4,
		RevokedPerSubEpochPct: 0.001,
		HashBytes:             32,
		SigSize:               64,
	}
	c.Recalc()
	return c
}

// Recalc recomputes every derived field from the independent ones,
// mirroring recalc_fields(). Call it after changing any of StartNoNodes,
// NoSMTParts, CacheLevel, or the *Share/*Pct fields.
func (c *Config) Recalc() {
	c.NoAggrParities = (c.NoSMTParts - c.MainParities) / c.AggregatedParities
	c.NoParities = c.NoAggrParities + c.MainParities
	c.NewIssuesPerEpoch = ceilShare(c.StartNoNodes, c.NewIssuesPerEpochPct)
	c.NoCacher = ceilShare(c.StartNoNodes, c.NoCacherShare)
	c.NoMissingNodes = ceilShare(c.StartNoNodes, c.NoMissingNodesShare)
	c.TotalTimeSteps = c.Epochs * c.SubsPerEpoch * c.TimeStepsPerSubEpoch
	c.RevokedPerSubEpoch = ceilShare(c.StartNoNodes, c.RevokedPerSubEpochPct)
	c.MsgSizePrimeRoot = c.HashBytes + (c.ParityLengthBytes * c.NoParities) + c.PrimeCounterSize
	c.MsgSizePoI = int(math.Ceil(math.Log2(float64(c.PassiveNodes+c.StartNoNodes))+1))*c.HashBytes + 1
	c.MsgSizeLvlCache = (1 << uint(c.CacheLevel)) * c.HashBytes
	c.MsgSizeCompleteLvlCache = c.NoSMTParts * c.MsgSizeLvlCache
}

func ceilShare(n int, share float64) int {
	return int(math.Ceil(float64(n) * share))
}

// GetParPart converts an SMT partition index to the parity lane index
// (aggregated or main) that covers it, mirroring
// sim_config.py:get_par_part. Used by diagnostics and tests to
// cross-check CA.PrimeRoot construction against
// Node.SetPrimeIDWrongParts.
func (c *Config) GetParPart(part int) int {
	if part >= c.AggregatedParities*c.NoAggrParities {
		return c.NoParities - (c.NoSMTParts - part)
	}
	return part / c.AggregatedParities
}
