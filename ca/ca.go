// Package ca implements the partitioned certificate authority: a fixed
// number of sparse Merkle tree partitions (one per rotation slot) plus
// the aggregated "prime root" that lets a relying party check the
// freshness of all partitions with one short value instead of fetching
// every subroot.
package ca

import (
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/golang/glog"

	"github.com/revocd/smtrevoke/config"
	"github.com/revocd/smtrevoke/hashops"
	"github.com/revocd/smtrevoke/merkle"
)

// ErrUnknownPartition is returned when a partition index is out of
// range for the CA's configured partition count.
var ErrUnknownPartition = errors.New("ca: unknown smt partition")

// PrimeRoot is the CA's aggregated freshness anchor: the hash of every
// partition's root concatenated in order, plus two parity bands over
// the partitions' own roots (aggregated runs of G partitions, and the
// raw last-M-partition suffixes) that let a stale node identify which
// specific partitions changed without re-fetching the prime hash's full
// preimage.
type PrimeRoot struct {
	Hash          string
	AggrParities  []string
	MainParities  []string
}

// Equal reports whether two prime roots carry the same hash and parity
// bands.
func (p PrimeRoot) Equal(o PrimeRoot) bool {
	if p.Hash != o.Hash || len(p.AggrParities) != len(o.AggrParities) || len(p.MainParities) != len(o.MainParities) {
		return false
	}
	for i := range p.AggrParities {
		if p.AggrParities[i] != o.AggrParities[i] {
			return false
		}
	}
	for i := range p.MainParities {
		if p.MainParities[i] != o.MainParities[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the prime root, since PrimeRoot values
// are handed to nodes by value and must never alias the CA's own copy.
func (p PrimeRoot) Clone() PrimeRoot {
	return PrimeRoot{
		Hash:         p.Hash,
		AggrParities: append([]string(nil), p.AggrParities...),
		MainParities: append([]string(nil), p.MainParities...),
	}
}

// Node is a CA-side record of a tracked end-entity: which partition it
// currently lives in, and its certificate hash. It mirrors just enough
// of node.Node for CA.ReissueNodes/RevokeNodes/ConstructUpdate to do
// their job without importing the node package (which itself imports
// ca).
type Node struct {
	ID      int
	SMTPart int
	Cert    string
	Revoked bool
}

// Update is one entry of a batch the CA hands to the simulator for
// distribution to affected nodes: the partition, a leaf's certificate
// hash, its proof of inclusion, and whether this entry is a revocation.
type Update struct {
	Part    int
	Hash    string
	PoI     merkle.Proof
	Revoked bool
}

// CA holds the partitioned SMT forest and the derived prime root.
type CA struct {
	c     *config.Config
	smts  []*merkle.SMT
	prime PrimeRoot

	// dirty flags every partition touched by AddNode since the last
	// DrainDirtyPartitions call, the bitset sim.Simulator cross-checks
	// sendUpdate's affected-partition accounting against (spec.md §6's
	// "implementers may track dirty partitions however they choose";
	// this module chooses a P-sized bitset rather than reusing the
	// path-level *big.Int bitmap, which is sized for tree depth D, not
	// partition count P).
	dirty *bitset.BitSet
}

// New constructs a CA with c.NoSMTParts empty partitions of depth
// c.HashDepth, hashed with c.HashFunction.
func New(c *config.Config) (*CA, error) {
	smts := make([]*merkle.SMT, c.NoSMTParts)
	for i := range smts {
		s, err := merkle.NewSMT(c.HashFunction, c.HashDepth)
		if err != nil {
			return nil, fmt.Errorf("ca: partition %d: %w", i, err)
		}
		smts[i] = s
	}
	ca := &CA{c: c, smts: smts, dirty: bitset.New(uint(c.NoSMTParts))}
	ca.calcPrimeRoot()
	return ca, nil
}

// DirtyPartitions returns the indices of every partition touched by
// AddNode since the last DrainDirtyPartitions call.
func (ca *CA) DirtyPartitions() []int {
	var out []int
	for i, e := ca.dirty.NextSet(0); e; i, e = ca.dirty.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// DrainDirtyPartitions returns DirtyPartitions and clears the tracking
// bitset, ready for the next batch of mutations.
func (ca *CA) DrainDirtyPartitions() []int {
	out := ca.DirtyPartitions()
	ca.dirty.ClearAll()
	return out
}

// Initialize seeds the CA with c.PassiveNodes background leaves
// round-robined across partitions (standing in for the original's
// pickled snapshot of "stuff in the SMT but not actively used") plus
// c.StartNoNodes actively-tracked leaves, then derives the prime root.
// Passive leaves are synthesized here rather than loaded from a
// snapshot file; see storage.Load for the snapshot path used by
// cmd/smtrevoke.
func (ca *CA) Initialize() {
	for i := 0; i < ca.c.PassiveNodes; i++ {
		cert := ca.c.HashFunction(fmt.Sprintf("%d", 10000000000+i))
		part := i % ca.c.NoSMTParts
		ca.smts[part].AddLeaf(cert, false)
	}
	for i := 0; i < ca.c.StartNoNodes; i++ {
		cert := ca.c.HashFunction(fmt.Sprintf("%d", i))
		part := i % ca.c.NoSMTParts
		ca.smts[part].AddLeaf(cert, false)
	}
	ca.calcPrimeRoot()
}

// SeedFromSnapshot replaces the CA's partitions with pre-built trees
// (e.g. loaded via storage.Load) before adding the active leaves,
// mirroring the original's "load from file" branch of initialize().
func (ca *CA) SeedFromSnapshot(smts []*merkle.SMT) error {
	if len(smts) != ca.c.NoSMTParts {
		return fmt.Errorf("ca: snapshot has %d partitions, want %d", len(smts), ca.c.NoSMTParts)
	}
	ca.smts = smts
	for i := 0; i < ca.c.StartNoNodes; i++ {
		cert := ca.c.HashFunction(fmt.Sprintf("%d", i))
		part := i % ca.c.NoSMTParts
		ca.smts[part].AddLeaf(cert, false)
	}
	ca.calcPrimeRoot()
	return nil
}

func (ca *CA) partition(part int) (*merkle.SMT, error) {
	if part < 0 || part >= len(ca.smts) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPartition, part)
	}
	return ca.smts[part], nil
}

// calcPrimeRoot recomputes and stores the prime root from the current
// partition roots, mirroring calc_prime_root().
func (ca *CA) calcPrimeRoot() {
	allRoots := ""
	aggr := make([]string, ca.c.NoAggrParities)
	main := make([]string, ca.c.MainParities)
	aggrPart := 0
	mainPart := 0
	mainCutoff := ca.c.NoSMTParts - ca.c.MainParities
	for i, s := range ca.smts {
		allRoots += s.RootHash()
		lane := hashops.ParitySuffix(s.RootHash(), ca.c.ParityLengthBytes)
		if i < mainCutoff {
			aggr[aggrPart] = hashops.XORParity(aggr[aggrPart], lane, ca.c.ParityLengthBytes)
			if (i+1)%ca.c.AggregatedParities == 0 {
				aggrPart++
			}
		} else {
			main[mainPart] = lane
			mainPart++
		}
	}
	ca.prime = PrimeRoot{
		Hash:         ca.c.HashFunction(allRoots),
		AggrParities: aggr,
		MainParities: main,
	}
}

// GetSMTRoots returns the current root hash of every partition, in
// partition order.
func (ca *CA) GetSMTRoots() []string {
	roots := make([]string, len(ca.smts))
	for i, s := range ca.smts {
		roots[i] = s.RootHash()
	}
	return roots
}

// GetPrime returns the CA's current prime root.
func (ca *CA) GetPrime() PrimeRoot { return ca.prime }

// GetASMTRoot returns the root hash of a single partition.
func (ca *CA) GetASMTRoot(part int) (string, error) {
	s, err := ca.partition(part)
	if err != nil {
		return "", err
	}
	return s.RootHash(), nil
}

// GetNodePoI returns the proof of inclusion for nodeID's certificate in
// the given partition. When c.SanityChecks is set, it logs an error for
// any empty sibling hash surfaced in the path (which would indicate a
// corrupted or mis-addressed proof).
func (ca *CA) GetNodePoI(nodeID, part int) (merkle.Proof, error) {
	s, err := ca.partition(part)
	if err != nil {
		return merkle.Proof{}, err
	}
	cert := ca.c.HashFunction(fmt.Sprintf("%d", nodeID))
	p := s.Path(cert)
	if ca.c.SanityChecks {
		for _, h := range p.Path {
			if h == "" {
				glog.Errorf("ca: empty hash in poi of node %d, poi: %v", nodeID, p.Path)
			}
		}
	}
	return p.Clone(), nil
}

// AddNode inserts (or, if revoke is true, removes) nodeID's certificate
// in the given partition and recomputes the prime root.
func (ca *CA) AddNode(nodeID, part int, revoke bool) error {
	s, err := ca.partition(part)
	if err != nil {
		return err
	}
	cert := ca.c.HashFunction(fmt.Sprintf("%d", nodeID))
	s.AddLeaf(cert, revoke)
	ca.dirty.Set(uint(part))
	ca.calcPrimeRoot()
	return nil
}

// GetLvlCaches returns the level-cache (array of every hash at
// cacheLevel) for every partition, in partition order.
func (ca *CA) GetLvlCaches(cacheLevel int) [][]string {
	out := make([][]string, len(ca.smts))
	for i, s := range ca.smts {
		out[i] = s.ConstructLvlCache(cacheLevel)
	}
	return out
}

// SomeLvlCache pairs a partition index with its level-cache, the unit
// exchanged when only specific partitions' caches need repair.
type SomeLvlCache struct {
	Part  int
	Cache []string
}

// GetSomeLvlCaches returns the level-caches (at the CA's configured
// cache level) for exactly the listed partitions.
func (ca *CA) GetSomeLvlCaches(parts []int) []SomeLvlCache {
	caches := ca.GetLvlCaches(ca.c.CacheLevel)
	out := make([]SomeLvlCache, len(parts))
	for i, p := range parts {
		out[i] = SomeLvlCache{Part: p, Cache: merkle.CloneLvlCache(caches[p])}
	}
	return out
}

// ReissueNodes moves each node into the newest partition (NoSMTParts-1)
// and clears its revoked flag, mirroring reissue_nodes. A node sampled
// for revocation in the same sub-epoch it was reissued must be excluded
// by the caller first (sim's "reissue skips just-revoked" guard).
func (ca *CA) ReissueNodes(nodes []*Node) {
	for _, n := range nodes {
		n.SMTPart = ca.c.NoSMTParts - 1
		n.Revoked = false
		ca.AddNode(n.ID, n.SMTPart, false) //nolint:errcheck // n.SMTPart is always in range
	}
	glog.V(1).Infof("ca: re-issued %d nodes", len(nodes))
}

// RevokeNodes marks each node revoked and removes its leaf from its
// current partition, mirroring revoke_nodes.
func (ca *CA) RevokeNodes(nodes []*Node) {
	for _, n := range nodes {
		n.Revoked = true
		ca.AddNode(n.ID, n.SMTPart, true) //nolint:errcheck
	}
	glog.V(1).Infof("ca: revoked %d nodes", len(nodes))
}

// ConstructUpdate builds the batch of (part, hash, poi, revoked) tuples
// the simulator distributes after a reissue/revoke round, mirroring
// construct_update.
func (ca *CA) ConstructUpdate(nodes []*Node, revoke bool) []Update {
	out := make([]Update, 0, len(nodes))
	for _, n := range nodes {
		poi, err := ca.GetNodePoI(n.ID, n.SMTPart)
		if err != nil {
			glog.Errorf("ca: construct update for node %d: %v", n.ID, err)
			continue
		}
		out = append(out, Update{Part: n.SMTPart, Hash: n.Cert, PoI: poi, Revoked: revoke})
	}
	return out
}

// UniqueHashCount returns the count of distinct sibling hashes across
// every PoI in the batch, the quantity sim.Metrics uses to estimate
// per-update wire size without double-counting shared subroots.
func UniqueHashCount(update []Update) int {
	seen := make(map[string]struct{})
	for _, u := range update {
		for _, h := range u.PoI.Path {
			seen[h] = struct{}{}
		}
	}
	return len(seen)
}

// EpochTreeChange rotates every partition down by one slot (every
// partition moves to index i-1; partition 0, the oldest, wraps around to
// the last index as the newest, keeping its leaves) and recomputes the
// prime root, mirroring epoch_tree_change.
func (ca *CA) EpochTreeChange() {
	oldest := ca.smts[0]
	copy(ca.smts, ca.smts[1:])
	ca.smts[len(ca.smts)-1] = oldest
	ca.calcPrimeRoot()
}

// GetParPart exposes the config's partition-to-parity-lane mapping for
// callers that only hold a *CA.
func (ca *CA) GetParPart(part int) int { return ca.c.GetParPart(part) }
