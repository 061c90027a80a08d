package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/revocd/smtrevoke/hashops"
)

// FileConfig is the JSON-serializable subset of Config a CLI flag
// file populates: every independent field of Config, with HashFunction,
// which isn't serializable, named instead (HashFunctionName) and
// resolved through HashFuncByName. Derived fields are not part of it;
// LoadFile recomputes them with Recalc.
type FileConfig struct {
	SanityChecks bool `json:"sanity_checks"`

	HashFunctionName   string `json:"hash_function"`
	HashDepth          int    `json:"hash_depth"`
	NoSMTParts         int    `json:"no_smt_parts"`
	ParityLengthBytes  int    `json:"parity_length_bytes"`
	MainParities       int    `json:"main_parities"`
	AggregatedParities int    `json:"aggregated_parities"`
	PrimeCounterSize   int    `json:"prime_counter_size"`

	SMTSetupFile         string  `json:"smt_setup_file"`
	PassiveNodes         int     `json:"passive_nodes"`
	StartNoNodes         int     `json:"start_no_nodes"`
	NewIssuesPerEpochPct float64 `json:"new_issues_per_epoch_pct"`
	NoCacherShare        float64 `json:"no_cacher_share"`
	CacheLevel           int     `json:"cache_level"`
	NoMissingNodesShare  float64 `json:"no_missing_nodes_share"`
	EncountersPerNode    int     `json:"encounters_per_node"`
	MaxRepairTries       int     `json:"max_repair_tries"`
	EnableLvlCacheViaPoI bool    `json:"enable_lvl_cache_via_poi"`

	TimeStepsPerSubEpoch  int     `json:"time_steps_per_sub_epoch"`
	SubsPerEpoch          int     `json:"subs_per_epoch"`
	Epochs                int     `json:"epochs"`
	RevokedPerSubEpochPct float64 `json:"revoked_per_sub_epoch_pct"`

	HashBytes int `json:"hash_bytes"`
	SigSize   int `json:"sig_size"`
}

// HashFuncByName resolves the small set of hashops.Func instances this
// module wires by name, the names a FileConfig or --hash-function
// flag may use.
func HashFuncByName(name string) (hashops.Func, error) {
	switch name {
	case "", "sha256":
		return hashops.SHA256Hex, nil
	case "sha3-256":
		return hashops.SHA3256Hex, nil
	case "xxhash":
		return hashops.XXHash32Hex, nil
	default:
		return nil, fmt.Errorf("config: unknown hash function %q", name)
	}
}

// LoadFile reads a JSON FileConfig from path and applies it on top of
// Default(), so a file only needs to set the fields it wants to
// override.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var fc FileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	c := Default()
	if fc.HashFunctionName != "" {
		hf, err := HashFuncByName(fc.HashFunctionName)
		if err != nil {
			return Config{}, err
		}
		c.HashFunction = hf
	}
	c.SanityChecks = fc.SanityChecks
	if fc.HashDepth != 0 {
		c.HashDepth = fc.HashDepth
	}
	if fc.NoSMTParts != 0 {
		c.NoSMTParts = fc.NoSMTParts
	}
	if fc.ParityLengthBytes != 0 {
		c.ParityLengthBytes = fc.ParityLengthBytes
	}
	if fc.MainParities != 0 {
		c.MainParities = fc.MainParities
	}
	if fc.AggregatedParities != 0 {
		c.AggregatedParities = fc.AggregatedParities
	}
	if fc.PrimeCounterSize != 0 {
		c.PrimeCounterSize = fc.PrimeCounterSize
	}
	if fc.SMTSetupFile != "" {
		c.SMTSetupFile = fc.SMTSetupFile
	}
	if fc.PassiveNodes != 0 {
		c.PassiveNodes = fc.PassiveNodes
	}
	if fc.StartNoNodes != 0 {
		c.StartNoNodes = fc.StartNoNodes
	}
	if fc.NewIssuesPerEpochPct != 0 {
		c.NewIssuesPerEpochPct = fc.NewIssuesPerEpochPct
	}
	if fc.NoCacherShare != 0 {
		c.NoCacherShare = fc.NoCacherShare
	}
	if fc.CacheLevel != 0 {
		c.CacheLevel = fc.CacheLevel
	}
	if fc.NoMissingNodesShare != 0 {
		c.NoMissingNodesShare = fc.NoMissingNodesShare
	}
	if fc.EncountersPerNode != 0 {
		c.EncountersPerNode = fc.EncountersPerNode
	}
	if fc.MaxRepairTries != 0 {
		c.MaxRepairTries = fc.MaxRepairTries
	}
	c.EnableLvlCacheViaPoI = fc.EnableLvlCacheViaPoI
	if fc.TimeStepsPerSubEpoch != 0 {
		c.TimeStepsPerSubEpoch = fc.TimeStepsPerSubEpoch
	}
	if fc.SubsPerEpoch != 0 {
		c.SubsPerEpoch = fc.SubsPerEpoch
	}
	if fc.Epochs != 0 {
		c.Epochs = fc.Epochs
	}
	if fc.RevokedPerSubEpochPct != 0 {
		c.RevokedPerSubEpochPct = fc.RevokedPerSubEpochPct
	}
	if fc.HashBytes != 0 {
		c.HashBytes = fc.HashBytes
	}
	if fc.SigSize != 0 {
		c.SigSize = fc.SigSize
	}
	c.Recalc()
	return c, nil
}
