package sim

import (
	"math/rand"

	"github.com/revocd/smtrevoke/ca"
	"github.com/revocd/smtrevoke/merkle"
	"github.com/revocd/smtrevoke/node"
)

// Actor is the common surface Simulator drives over a mixed population
// of plain end-entities (*node.Node) and level-cache-holding peers
// (*node.Cacher). It covers everything the original's duck-typed
// BigNetSim.sim() does on a bare Node plus the handful of fields
// Simulator itself needs to mutate directly (partition index, revoked
// flag) that the original mutates by aliasing the very same object CA
// holds internally — an aliasing this module's ca/node package split
// deliberately gives up (see DESIGN.md), so Simulator re-derives it
// explicitly via mirrorOf/applyMirrors in simulator.go.
type Actor interface {
	GetID() int
	GetSMTPart() int
	SetSMTPart(part int)
	GetCert() string
	GetRevoked() bool
	SetRevokedFlag(v bool)

	GetOutdatedPrime() bool
	SetOutdatedPrimeFlag(v bool)
	GetOutdatedPoI() bool
	SetOutdatedPoIFlag(v bool)
	GetLvlCacheTried() bool
	SetLvlCacheTriedFlag(v bool)

	GetUpdateTry() int
	IncUpdateTry()
	ResetUpdateTry()

	GetPoI() merkle.Proof
	SetPoI(p merkle.Proof)
	GetSMTRootsSnapshot() []string
	SetSMTRootsSnapshot(r []string)
	GetPrimeRootSnapshot() ca.PrimeRoot
	SetPrimeRootSnapshot(p ca.PrimeRoot)

	SetPrimeIDWrongParts(prime ca.PrimeRoot) (wrongAggr, wrongMain []int)
	GetIDedSMTRoots(wrongAggr, wrongMain []int) []node.PartRoot
	SetIDedSMTRoots(roots []node.PartRoot) bool
	SetSomeSMTRoots(roots []node.PartRoot)

	TryPoIRepair(cert string, poi merkle.Proof) bool
	TryLvlcRepair(lvlCache []string, cacheLevel int) bool
	ProcessUpdate(update []ca.Update) bool

	String() string
}

var (
	_ Actor = (*node.Node)(nil)
	_ Actor = (*node.Cacher)(nil)
)

// PeerSampler draws a random subset of a node population, the Go
// analogue of the original's repeated random.sample(self.all_nodes, k)
// calls. It is its own interface (rather than a free function) so tests
// can substitute a deterministic or gomock-generated stand-in instead
// of relying on math/rand's global source.
type PeerSampler interface {
	Sample(pool []Actor, k int) []Actor
}

// randSampler is the production PeerSampler: the first k entries of a
// full (*rand.Rand).Perm over its own *rand.Rand, matching Python's random.sample
// (sampling without replacement, order not significant to callers).
type randSampler struct {
	rng *rand.Rand
}

// NewRandSampler returns a PeerSampler seeded from seed. Callers that
// want run-to-run variation should seed from a wall-clock source
// themselves (e.g. time.Now().UnixNano()); Simulator never reads the
// clock on its own so a run stays reproducible end to end given a seed.
func NewRandSampler(seed int64) PeerSampler {
	return &randSampler{rng: rand.New(rand.NewSource(seed))}
}

func (s *randSampler) Sample(pool []Actor, k int) []Actor {
	if k >= len(pool) {
		out := make([]Actor, len(pool))
		copy(out, pool)
		return out
	}
	if k <= 0 {
		return nil
	}
	idx := s.rng.Perm(len(pool))[:k]
	out := make([]Actor, k)
	for i, j := range idx {
		out[i] = pool[j]
	}
	return out
}
