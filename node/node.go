// Package node implements the end-entity's view of the system: the
// proof of inclusion it holds for its own certificate, the partition
// roots and prime root it believes are current, and the repair
// operations it runs against peers encountered during simulation.
package node

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/revocd/smtrevoke/ca"
	"github.com/revocd/smtrevoke/config"
	"github.com/revocd/smtrevoke/hashops"
	"github.com/revocd/smtrevoke/merkle"
)

// Node tracks one end-entity's local, possibly-stale view of the CA.
type Node struct {
	c *config.Config

	ID      int
	Cert    string
	SMTPart int
	PoI     merkle.Proof

	SMTRoots  []string
	PrimeRoot ca.PrimeRoot

	Revoked        bool
	OutdatedPoI    bool
	OutdatedPrime  bool
	LvlCacheTried  bool
	UpdateTry      int

	// Debug trail, populated only when c.SanityChecks is set.
	PreviousPoI           merkle.Proof
	PreviousUpdateHash    string
	PreviousUpdatePoI     merkle.Proof
	PreviousUpdateRevoked bool
}

// New constructs a node tracking nodeID's certificate, currently held
// in smtPart with the given proof, SMT roots, and prime root (all
// passed by value / already deep-copied by the caller, per the
// no-aliasing-across-actors handoff rule).
func New(id, smtPart int, poi merkle.Proof, smtRoots []string, prime ca.PrimeRoot, c *config.Config) *Node {
	return &Node{
		c:         c,
		ID:        id,
		Cert:      c.HashFunction(fmt.Sprintf("%d", id)),
		SMTPart:   smtPart,
		PoI:       poi,
		SMTRoots:  smtRoots,
		PrimeRoot: prime,
	}
}

// Accessor/mutator methods below exist so sim.Actor can treat a mix of
// *Node and *Cacher values polymorphically through an interface; Cacher
// inherits them all by embedding *Node and only needs to override the
// handful that actually change cacher behavior (see cacher.go).

func (n *Node) GetID() int                 { return n.ID }
func (n *Node) GetSMTPart() int            { return n.SMTPart }
func (n *Node) GetCert() string            { return n.Cert }
func (n *Node) GetPoI() merkle.Proof       { return n.PoI }
func (n *Node) SetPoI(p merkle.Proof)      { n.PoI = p }
func (n *Node) GetRevoked() bool           { return n.Revoked }
func (n *Node) GetOutdatedPrime() bool     { return n.OutdatedPrime }
func (n *Node) SetOutdatedPrimeFlag(v bool) { n.OutdatedPrime = v }
func (n *Node) GetOutdatedPoI() bool       { return n.OutdatedPoI }
func (n *Node) SetOutdatedPoIFlag(v bool)  { n.OutdatedPoI = v }
func (n *Node) GetLvlCacheTried() bool     { return n.LvlCacheTried }
func (n *Node) SetLvlCacheTriedFlag(v bool) { n.LvlCacheTried = v }
func (n *Node) GetUpdateTry() int          { return n.UpdateTry }
func (n *Node) IncUpdateTry()              { n.UpdateTry++ }
func (n *Node) ResetUpdateTry()            { n.UpdateTry = 0 }
func (n *Node) SetSMTPart(part int)        { n.SMTPart = part }
func (n *Node) SetRevokedFlag(v bool)      { n.Revoked = v }
func (n *Node) GetSMTRootsSnapshot() []string { return n.SMTRoots }
func (n *Node) SetSMTRootsSnapshot(r []string) { n.SMTRoots = r }
func (n *Node) GetPrimeRootSnapshot() ca.PrimeRoot { return n.PrimeRoot }
func (n *Node) SetPrimeRootSnapshot(p ca.PrimeRoot) { n.PrimeRoot = p }

func (n *Node) String() string {
	return fmt.Sprintf("id: %d, smt_part: %d, revoked: %v, outdated_prime: %v, outdated_poi: %v, "+
		"lvl_cache_tried: %v, update_try: %d, cert: %s",
		n.ID, n.SMTPart, n.Revoked, n.OutdatedPrime, n.OutdatedPoI, n.LvlCacheTried, n.UpdateTry, n.Cert)
}

// SetPrimeIDWrongParts compares prime against the node's current belief
// and, if different, adopts it and returns the indices of aggregated
// and main parity lanes that changed. An unchanged prime root returns
// two empty slices and leaves the node's state untouched.
func (n *Node) SetPrimeIDWrongParts(prime ca.PrimeRoot) (wrongAggr, wrongMain []int) {
	if n.PrimeRoot.Equal(prime) {
		return nil, nil
	}
	for i := range n.PrimeRoot.AggrParities {
		if i < len(prime.AggrParities) && n.PrimeRoot.AggrParities[i] != prime.AggrParities[i] {
			wrongAggr = append(wrongAggr, i)
		}
	}
	for i := range n.PrimeRoot.MainParities {
		if i < len(prime.MainParities) && n.PrimeRoot.MainParities[i] != prime.MainParities[i] {
			wrongMain = append(wrongMain, i)
		}
	}
	n.PrimeRoot = prime.Clone()
	n.OutdatedPrime = false
	return wrongAggr, wrongMain
}

// PartRoot pairs a partition index with its believed root hash, the
// unit exchanged when resyncing a subset of partitions.
type PartRoot struct {
	Part int
	Root string
}

// GetIDedSMTRoots returns this node's current beliefs for exactly the
// partitions covered by the given wrong parity lanes, deep-copied for
// handoff to whichever peer requested them.
func (n *Node) GetIDedSMTRoots(wrongAggr, wrongMain []int) []PartRoot {
	var out []PartRoot
	for _, p := range wrongAggr {
		for i := 0; i < n.c.AggregatedParities; i++ {
			part := p*n.c.AggregatedParities + i
			out = append(out, PartRoot{Part: part, Root: n.SMTRoots[part]})
		}
	}
	for _, p := range wrongMain {
		part := n.c.AggregatedParities*n.c.NoAggrParities + p
		out = append(out, PartRoot{Part: part, Root: n.SMTRoots[part]})
	}
	return out
}

// SetIDedSMTRoots installs the given partition roots, flagging the PoI
// outdated if the node's own partition is among those that actually
// changed. It returns whether the node's freshly recalculated prime
// root now matches what it already believed: false means the parity
// lanes checked out but the prime hash itself didn't ("parity got
// unlucky" in the original), signalling the caller should fall back to
// a full resync.
func (n *Node) SetIDedSMTRoots(roots []PartRoot) bool {
	for _, r := range roots {
		if r.Part == n.SMTPart && r.Root != n.SMTRoots[r.Part] {
			n.OutdatedPoI = true
		}
		n.SMTRoots[r.Part] = r.Root
	}
	return n.CalcPrimeRoot().Equal(n.PrimeRoot)
}

// SetSomeSMTRoots installs a batch of affected partition roots pushed
// out by the CA as part of an ordinary update, independent of the
// parity-lane resync path above.
func (n *Node) SetSomeSMTRoots(roots []PartRoot) {
	for _, r := range roots {
		if r.Part == n.SMTPart && n.SMTRoots[r.Part] != r.Root {
			n.OutdatedPoI = true
		}
		n.SMTRoots[r.Part] = r.Root
	}
}

// CalcPrimeRoot recomputes the prime root this node's current SMTRoots
// beliefs would produce, mirroring CA.calcPrimeRoot with an identical
// partition/parity layout.
func (n *Node) CalcPrimeRoot() ca.PrimeRoot {
	allRoots := ""
	aggr := make([]string, n.c.NoAggrParities)
	main := make([]string, n.c.MainParities)
	aggrPart := 0
	mainPart := 0
	mainCutoff := n.c.NoSMTParts - n.c.MainParities
	for i, root := range n.SMTRoots {
		allRoots += root
		lane := hashops.ParitySuffix(root, n.c.ParityLengthBytes)
		if i < mainCutoff {
			aggr[aggrPart] = hashops.XORParity(aggr[aggrPart], lane, n.c.ParityLengthBytes)
			if (i+1)%n.c.AggregatedParities == 0 {
				aggrPart++
			}
		} else {
			main[mainPart] = lane
			mainPart++
		}
	}
	return ca.PrimeRoot{Hash: n.c.HashFunction(allRoots), AggrParities: aggr, MainParities: main}
}

// TryPoIRepair folds a peer's PoI for a (possibly different) leaf into
// this node's own stale PoI and reports whether the result now matches
// the partition root the node believes is current. The fold always
// treats both leaves as non-revoked, matching try_poi_repair's own
// calc_path_root/update_poi_with_poi calls, which never pass their
// revoked argument: a node's stale PoI is repaired the same way whether
// or not either party has since been revoked, and ProcessUpdate is the
// path that actually removes a revoked leaf from the tree.
func (n *Node) TryPoIRepair(cert string, poi merkle.Proof) bool {
	pbm, path := merkle.UpdatePoIWithPoI(n.c.HashFunction, n.c.HashDepth, n.Cert, n.PoI.Path, n.PoI.PBM, cert, poi.Path, poi.PBM, false)
	n.PoI.Path, n.PoI.PBM = path, pbm
	return n.SMTRoots[n.SMTPart] == merkle.CalcPathRoot(n.c.HashFunction, n.c.HashDepth, n.Cert, n.PoI.Path, n.PoI.PBM, 0, false)
}

// TryLvlcRepair folds a peer's level-cache for this node's partition
// into its own stale PoI and reports whether the result now matches the
// partition root the node believes is current.
func (n *Node) TryLvlcRepair(lvlCache []string, cacheLevel int) bool {
	merkle.UpdatePoIWithLvlCache(n.c.HashFunction, n.c.HashDepth, n.Cert, n.PoI.Path, lvlCache, cacheLevel)
	return n.SMTRoots[n.SMTPart] == merkle.CalcPathRoot(n.c.HashFunction, n.c.HashDepth, n.Cert, n.PoI.Path, n.PoI.PBM, 0, n.Revoked)
}

// ProcessUpdate applies the update entries addressed to this node's own
// partition in order: an entry for some other certificate is folded in
// with UpdatePoIWithPoI; the entry for this node's own certificate is
// adopted outright as its new PoI and ends the loop. Returns
// true if a sanity-check mismatch was detected (only meaningful when
// c.SanityChecks is set).
func (n *Node) ProcessUpdate(update []ca.Update) bool {
	previousSet := false
	potentialChange := false
	for _, u := range update {
		if u.Part != n.SMTPart {
			continue
		}
		if u.Hash == n.Cert {
			n.PoI = u.PoI.Clone()
			n.OutdatedPoI = false
			break
		}
		if n.c.SanityChecks && !previousSet {
			n.PreviousUpdateHash = u.Hash
			n.PreviousUpdatePoI = u.PoI.Clone()
			n.PreviousUpdateRevoked = u.Revoked
			n.PreviousPoI = n.PoI.Clone()
			previousSet = true
			potentialChange = true
		}
		pbm, path := merkle.UpdatePoIWithPoI(n.c.HashFunction, n.c.HashDepth, n.Cert, n.PoI.Path, n.PoI.PBM, u.Hash, u.PoI.Path, u.PoI.PBM, u.Revoked)
		n.PoI.Path, n.PoI.PBM = path, pbm
	}

	if n.OutdatedPoI && potentialChange &&
		n.SMTRoots[n.SMTPart] == merkle.CalcPathRoot(n.c.HashFunction, n.c.HashDepth, n.Cert, n.PoI.Path, n.PoI.PBM, 0, n.Revoked) {
		n.OutdatedPoI = false
	}

	if n.c.SanityChecks && !n.OutdatedPoI && !n.OutdatedPrime &&
		n.SMTRoots[n.SMTPart] != merkle.CalcPathRoot(n.c.HashFunction, n.c.HashDepth, n.Cert, n.PoI.Path, n.PoI.PBM, 0, n.Revoked) {
		glog.Errorf("node: update failed for %s", n)
		return true
	}
	return false
}
