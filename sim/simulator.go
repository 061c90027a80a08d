// Package sim drives a population of nodes and cachers against a
// partitioned CA over simulated time, reproducing the encounter-based
// gossip/repair protocol the rest of this module implements: random
// peer meetings propagate prime-root and PoI freshness, a repair ladder
// climbs from level-cache to peer-PoI to CA fallback, and every
// exchange's assumed wire size is tallied into Metrics.
package sim

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/revocd/smtrevoke/ca"
	"github.com/revocd/smtrevoke/config"
	"github.com/revocd/smtrevoke/node"
	"github.com/revocd/smtrevoke/storage/cache"
)

// Simulator is the Go analogue of the original's BigNetSim: it owns the
// CA, the full node/cacher population, and the running metrics, and
// drives them through Run's time-stepped loop.
type Simulator struct {
	cfg       *config.Config
	authority *ca.CA
	actors    []Actor
	byID      map[int]Actor
	sampler   PeerSampler
	metrics   *Metrics

	// revokedIDs is the Go stand-in for the original's self.revoked_nodes:
	// IDs revoked in the most recent sub-epoch, due for reissue in the
	// next one. The original holds live Node aliases here; since this
	// module's ca/node split gives that aliasing up (see DESIGN.md), the
	// simulator tracks IDs and re-derives a fresh *ca.Node mirror from
	// the live actor whenever the CA needs one.
	revokedIDs []int
}

// NewSimulator builds a CA, seeds it per cfg, and populates the actor
// population (cfg.NoCacher cachers, then cfg.StartNoNodes-cfg.NoCacher
// plain nodes), mirroring BigNetSim.__init__.
func NewSimulator(cfg *config.Config, sampler PeerSampler) (*Simulator, error) {
	authority, err := ca.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("sim: new ca: %w", err)
	}
	authority.Initialize()
	return NewSimulatorFromCA(cfg, sampler, authority)
}

// NewSimulatorFromCA populates a Simulator's actor population against
// an already-initialized CA, letting a caller seed that CA from a
// persisted snapshot (storage.Load + ca.CA.SeedFromSnapshot) instead
// of rebuilding its passive-leaf setup from scratch every run.
func NewSimulatorFromCA(cfg *config.Config, sampler PeerSampler, authority *ca.CA) (*Simulator, error) {
	lvlCaches := authority.GetLvlCaches(cfg.CacheLevel)
	for _, c := range lvlCaches {
		for _, h := range c {
			if h == "" {
				return nil, fmt.Errorf("sim: unfilled level-cache element found during setup")
			}
		}
	}
	smtRoots := authority.GetSMTRoots()
	prime := authority.GetPrime()

	actors := make([]Actor, 0, cfg.StartNoNodes)
	byID := make(map[int]Actor, cfg.StartNoNodes)

	for i := 0; i < cfg.NoCacher; i++ {
		part := i % cfg.NoSMTParts
		poi, err := authority.GetNodePoI(i, part)
		if err != nil {
			return nil, fmt.Errorf("sim: seed cacher %d: %w", i, err)
		}
		base := node.New(i, part, poi, append([]string(nil), smtRoots...), prime.Clone(), cfg)
		c := node.NewCacher(cfg.CacheLevel, cache.NewLevelCacheSet(cfg.CacheLevel, lvlCaches).Clone(), base)
		actors = append(actors, c)
		byID[i] = c
	}
	for i := cfg.NoCacher; i < cfg.StartNoNodes; i++ {
		part := i % cfg.NoSMTParts
		poi, err := authority.GetNodePoI(i, part)
		if err != nil {
			return nil, fmt.Errorf("sim: seed node %d: %w", i, err)
		}
		n := node.New(i, part, poi, append([]string(nil), smtRoots...), prime.Clone(), cfg)
		actors = append(actors, n)
		byID[i] = n
	}

	return &Simulator{
		cfg:       cfg,
		authority: authority,
		actors:    actors,
		byID:      byID,
		sampler:   sampler,
		metrics:   NewMetrics(),
	}, nil
}

// Actors returns the live actor population, in seed order.
func (s *Simulator) Actors() []Actor { return s.actors }

// Authority returns the CA the simulator drives.
func (s *Simulator) Authority() *ca.CA { return s.authority }

// Metrics returns the simulator's running counters.
func (s *Simulator) Metrics() *Metrics { return s.metrics }

// Run drives cfg.TotalTimeSteps of simulated time: epoch actions every
// SubsPerEpoch sub-epochs, reissue/revoke/update actions every
// TimeStepsPerSubEpoch steps, and a full round of random peer
// encounters every step, mirroring BigNetSim.sim(). It returns the
// summarized Result once done, or an error if ctx is canceled first.
func (s *Simulator) Run(ctx context.Context) (Result, error) {
	cfg := s.cfg
	subEpoch := 1

	for step := 0; step < cfg.TotalTimeSteps; step++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		if subEpoch%cfg.SubsPerEpoch == 0 {
			subEpoch++
			s.authority.EpochTreeChange()
			s.epochUpdateNodes()
			s.issueNewCerts()
		}

		if step%cfg.TimeStepsPerSubEpoch == 0 {
			subEpoch++
			s.runSubEpochAction()
		}

		s.runEncounters()
	}

	s.metrics.Sync()
	return s.metrics.Summarize(cfg), nil
}

func (s *Simulator) runSubEpochAction() {
	cfg := s.cfg

	reissueMirrors := s.mirrorsByID(s.revokedIDs)
	s.authority.ReissueNodes(reissueMirrors)
	s.applyMirrors(reissueMirrors)

	revokeSample := s.sampler.Sample(s.actors, cfg.RevokedPerSubEpoch)
	revokeSample = filterByExcludedIDs(revokeSample, s.revokedIDs)
	revokeMirrors := mirrorsFromActors(revokeSample)
	s.authority.RevokeNodes(revokeMirrors)
	s.applyMirrors(revokeMirrors)
	s.metrics.TotalRevokes += len(revokeSample)

	update := s.authority.ConstructUpdate(reissueMirrors, false)
	update = append(update, s.authority.ConstructUpdate(revokeMirrors, true)...)

	toUpdateIDs := make(map[int]bool, len(reissueMirrors)+len(revokeMirrors))
	for _, m := range reissueMirrors {
		toUpdateIDs[m.ID] = true
	}
	for _, m := range revokeMirrors {
		toUpdateIDs[m.ID] = true
	}

	s.revokedIDs = idsOf(revokeSample)
	s.sendUpdate(update, toUpdateIDs)
}

func (s *Simulator) sendUpdate(update []ca.Update, toUpdateIDs map[int]bool) {
	cfg := s.cfg
	smtRoots := s.authority.GetSMTRoots()

	var affectedSMTs []node.PartRoot
	affectedSeen := make(map[int]bool)
	updatePerPart := make([][]ca.Update, cfg.NoSMTParts)
	for _, u := range update {
		if !affectedSeen[u.Part] {
			affectedSeen[u.Part] = true
			affectedSMTs = append(affectedSMTs, node.PartRoot{Part: u.Part, Root: smtRoots[u.Part]})
		}
		updatePerPart[u.Part] = append(updatePerPart[u.Part], u)
	}
	uniqueHashes := ca.UniqueHashCount(update)

	if cfg.SanityChecks {
		dirty := s.authority.DrainDirtyPartitions()
		if len(dirty) != len(affectedSMTs) {
			glog.Errorf("sim: ca reports %d dirty partitions but update touches %d", len(dirty), len(affectedSMTs))
		}
	}

	sampled := s.sampler.Sample(s.actors, cfg.NoMissingNodes)
	nonUpdated := make(map[Actor]bool, len(sampled))
	for _, a := range sampled {
		if toUpdateIDs[a.GetID()] {
			continue
		}
		nonUpdated[a] = true
		a.SetOutdatedPrimeFlag(true)
	}
	updateCount := len(s.actors) - len(nonUpdated)

	for _, n := range s.actors {
		if nonUpdated[n] {
			continue
		}
		n.SetSomeSMTRoots(affectedSMTs)
		n.SetPrimeRootSnapshot(s.authority.GetPrime())
		n.SetOutdatedPrimeFlag(false)

		var updateFail bool
		if c, ok := n.(*node.Cacher); ok {
			updateFail = c.ProcessUpdate(update)
		} else {
			updateFail = n.ProcessUpdate(updatePerPart[n.GetSMTPart()])
		}
		if cfg.SanityChecks && updateFail {
			glog.Errorf("sim: update failed sanity check for node %s", n)
		}
	}

	msgSize := int64(cfg.MsgSizePrimeRoot+cfg.SigSize) +
		int64(len(affectedSMTs)*cfg.HashBytes) + int64(uniqueHashes*cfg.HashBytes)
	s.metrics.UpdateCount += updateCount
	s.metrics.AggrUpdateSize += int64(updateCount) * msgSize
	glog.V(1).Infof("sim: sent update containing %d update-pois", len(update))
}

// epochUpdateNodes rotates every actor's partition index down by one
// (matching ca.CA.EpochTreeChange's rotation, which it must run after),
// flags PoIs whose remembered root no longer matches the CA's current
// root at the new index, and refreshes every actor's full root/prime
// belief and (for cachers) level-cache set.
func (s *Simulator) epochUpdateNodes() {
	cfg := s.cfg
	freshLvlCaches := s.authority.GetLvlCaches(cfg.CacheLevel)
	oldestCount := 0

	for _, n := range s.actors {
		oldPart := n.GetSMTPart()
		newPart := oldPart - 1
		if oldPart == 0 {
			newPart = cfg.NoSMTParts - 1
			oldestCount++
		}
		n.SetSMTPart(newPart)

		oldRoot := n.GetSMTRootsSnapshot()[oldPart]
		if newRoot, err := s.authority.GetASMTRoot(newPart); err == nil && oldRoot != newRoot {
			n.SetOutdatedPoIFlag(true)
		}

		n.SetPrimeRootSnapshot(s.authority.GetPrime())
		n.SetSMTRootsSnapshot(append([]string(nil), s.authority.GetSMTRoots()...))
		n.SetOutdatedPrimeFlag(false)

		if c, ok := n.(*node.Cacher); ok {
			c.LvlCaches = cache.NewLevelCacheSet(cfg.CacheLevel, freshLvlCaches).Clone()
			c.OutdatedLvlC = false
			c.OutdatedRoots = nil
		}
	}

	s.metrics.MsgSizesCAOut += int64(oldestCount*cfg.HashBytes) + int64(cfg.MsgSizePrimeRoot+cfg.SigSize)
	s.metrics.PruneCount++
	s.metrics.AggrPruneSize += int64(oldestCount * cfg.HashBytes)
}

func (s *Simulator) issueNewCerts() {
	cfg := s.cfg
	s.metrics.MsgSizesCAOut += int64(cfg.NewIssuesPerEpoch * cfg.HashBytes)
	s.metrics.AggrPruneSize += int64(cfg.NewIssuesPerEpoch * cfg.HashBytes)
}

func (s *Simulator) runEncounters() {
	cfg := s.cfg
	s.metrics.TotalEncounters += cfg.EncountersPerNode * len(s.actors)

	for _, n := range s.actors {
		nCacher, isCacher := n.(*node.Cacher)
		if !n.GetOutdatedPrime() && !n.GetOutdatedPoI() {
			if !isCacher || !nCacher.OutdatedLvlC {
				continue
			}
		}

		for _, e := range s.sampler.Sample(s.actors, cfg.EncountersPerNode) {
			if e == n {
				continue
			}
			s.metrics.MsgSizesAll += int64(cfg.MsgSizePrimeRoot)

			if e.GetOutdatedPoI() && !e.GetOutdatedPrime() && n.GetOutdatedPoI() && !n.GetOutdatedPrime() {
				s.metrics.EncountersBothNoPoI++
			}
			if e.GetOutdatedPrime() {
				continue
			}

			if n.GetOutdatedPrime() {
				s.updatePrime(n, e)
			}

			if isCacher && nCacher.OutdatedLvlC {
				nCacher.UpdateTryLvlc++
				if eCacher, ok := e.(*node.Cacher); ok && !eCacher.OutdatedLvlC {
					s.updateLvlCache(nCacher, eCacher)
				} else if cfg.EnableLvlCacheViaPoI && !e.GetOutdatedPoI() {
					s.repairLvlcViaPoI(nCacher, e)
				}
			}

			if n.GetOutdatedPoI() {
				if !n.GetRevoked() {
					n.IncUpdateTry()
				}
			} else {
				continue
			}

			if eCacher, ok := e.(*node.Cacher); ok && !n.GetLvlCacheTried() && !eCacher.OutdatedLvlC {
				s.repairViaLvlc(n, eCacher)
			}
			if n.GetOutdatedPoI() && !e.GetOutdatedPoI() && e.GetSMTPart() == n.GetSMTPart() &&
				(!n.GetRevoked() || !e.GetRevoked()) {
				s.repairViaPoi(n, e)
			}
		}

		if n.GetOutdatedPoI() && n.GetUpdateTry() > cfg.MaxRepairTries {
			s.resetOutdated(n)
			s.metrics.FailedRepairs++
		}
		if isCacher && nCacher.OutdatedLvlC && nCacher.UpdateTryLvlc > cfg.MaxRepairTries {
			s.resetOutdatedCacher(nCacher)
		}
	}
}

func (s *Simulator) updatePrime(outdated, helper Actor) {
	cfg := s.cfg
	wrongAggr, wrongMain := outdated.SetPrimeIDWrongParts(helper.GetPrimeRootSnapshot())
	selected := helper.GetIDedSMTRoots(wrongAggr, wrongMain)

	if outdated.SetIDedSMTRoots(selected) {
		s.metrics.PrimeSuccesses++
		size := int64(len(selected)*cfg.HashBytes) + int64(cfg.SigSize)
		s.metrics.MsgSizesAll += size
		s.metrics.MsgSizesUpdate += size
		return
	}

	s.metrics.ParityFails++
	caRoots := s.authority.GetSMTRoots()
	if outdated.GetSMTRootsSnapshot()[outdated.GetSMTPart()] != caRoots[outdated.GetSMTPart()] {
		outdated.SetOutdatedPoIFlag(true)
	}
	if c, ok := outdated.(*node.Cacher); ok {
		for i := 0; i < cfg.NoSMTParts; i++ {
			if outdated.GetSMTRootsSnapshot()[i] != caRoots[i] {
				c.NoteOutdatedPartition(i)
			}
		}
		if c.OutdatedPartitionCount() > 1 {
			c.OutdatedLvlC = true
		}
	}
	outdated.SetPrimeRootSnapshot(s.authority.GetPrime())
	outdated.SetSMTRootsSnapshot(append([]string(nil), caRoots...))
	outdated.SetOutdatedPrimeFlag(false)

	size := int64(cfg.NoSMTParts*cfg.HashBytes) + int64(cfg.SigSize)
	s.metrics.MsgSizesAll += size
	s.metrics.MsgSizesUpdate += size
}

func (s *Simulator) updateLvlCache(outdated, helper *node.Cacher) {
	cfg := s.cfg
	some := helper.GetSomeLvlCaches(outdated.OutdatedPartitionList())
	if fail := outdated.UpdateSomeLvlCaches(cfg.SanityChecks, some); fail {
		glog.Errorf("sim: level-cache repair failed sanity check for node %s", outdated)
	}
	outdated.OutdatedLvlC = false
	outdated.UpdateTryLvlc = 0
	outdated.ClearOutdatedPartitions()

	size := int64(cfg.MsgSizeLvlCache * len(some))
	s.metrics.MsgSizesAll += size
	s.metrics.MsgSizesRepair += size
}

// repairLvlcViaPoI folds a single peer's own PoI into outdated's
// level-cache for that peer's partition, the EnableLvlCacheViaPoI path
// (config.Config.EnableLvlCacheViaPoI, off by default): a fallback for
// when no fellow non-outdated cacher is around to hand over a whole
// cache bucket, at the cost of only refreshing one partition's lane per
// encounter instead of every outdated bucket at once.
func (s *Simulator) repairLvlcViaPoI(outdated *node.Cacher, helper Actor) {
	cfg := s.cfg
	s.metrics.MsgSizesAll += int64(cfg.MsgSizePoI)
	s.metrics.MsgSizesRepair += int64(cfg.MsgSizePoI)
	outdated.RepairLevelCacheWithPoI(cfg, helper.GetSMTPart(), helper.GetCert(), helper.GetPoI(), helper.GetRevoked())
}

func (s *Simulator) repairViaLvlc(outdated Actor, helper *node.Cacher) {
	cfg := s.cfg
	s.metrics.MsgSizesAll += int64(cfg.MsgSizePoI * 2)
	s.metrics.MsgSizesRepair += int64(cfg.MsgSizePoI * 2)

	lc, err := helper.LvlCaches.Part(outdated.GetSMTPart())
	if err != nil {
		return
	}
	if outdated.TryLvlcRepair(lc, helper.CacheLevel) {
		s.metrics.SuccessfulRepairs++
		s.metrics.LvlcRepairs++
		s.metrics.RepairTryAggr += outdated.GetUpdateTry()
		outdated.ResetUpdateTry()
		outdated.SetOutdatedPoIFlag(false)
		outdated.SetLvlCacheTriedFlag(false)
	} else {
		outdated.SetLvlCacheTriedFlag(true)
	}
}

func (s *Simulator) repairViaPoi(outdated, helper Actor) {
	cfg := s.cfg
	s.metrics.MsgSizesAll += int64(cfg.MsgSizePoI)
	s.metrics.MsgSizesRepair += int64(cfg.MsgSizePoI)

	if outdated.TryPoIRepair(helper.GetCert(), helper.GetPoI()) {
		s.metrics.SuccessfulRepairs++
		s.metrics.RepairTryAggr += outdated.GetUpdateTry()
		outdated.ResetUpdateTry()
		outdated.SetOutdatedPoIFlag(false)
		outdated.SetLvlCacheTriedFlag(false)
	}
}

func (s *Simulator) resetOutdated(a Actor) {
	cfg := s.cfg
	s.metrics.MsgSizesCAOut += int64(cfg.MsgSizePoI)

	poi, err := s.authority.GetNodePoI(a.GetID(), a.GetSMTPart())
	if err != nil {
		glog.Errorf("sim: reset outdated node %s: %v", a, err)
		return
	}
	a.SetPoI(poi)
	a.SetSMTRootsSnapshot(append([]string(nil), s.authority.GetSMTRoots()...))
	a.SetPrimeRootSnapshot(s.authority.GetPrime())
	a.ResetUpdateTry()
	a.SetOutdatedPoIFlag(false)
	a.SetOutdatedPrimeFlag(false)
	a.SetLvlCacheTriedFlag(false)
}

func (s *Simulator) resetOutdatedCacher(c *node.Cacher) {
	cfg := s.cfg
	some := s.authority.GetSomeLvlCaches(c.OutdatedPartitionList())
	if fail := c.UpdateSomeLvlCaches(cfg.SanityChecks, some); fail {
		glog.Errorf("sim: CA-forced level-cache reset failed sanity check for node %s", c)
	}
	c.OutdatedLvlC = false
	c.UpdateTryLvlc = 0
	c.ClearOutdatedPartitions()

	size := int64(cfg.MsgSizeLvlCache * len(some))
	s.metrics.MsgSizesCAOut += size
	s.metrics.MsgSizesCAOutLvlc += size
}

// mirrorsByID builds fresh CA-side node stubs from the live actors
// behind ids, reading their current partition/cert/revoked state.
func (s *Simulator) mirrorsByID(ids []int) []*ca.Node {
	out := make([]*ca.Node, 0, len(ids))
	for _, id := range ids {
		if a, ok := s.byID[id]; ok {
			out = append(out, mirrorOf(a))
		}
	}
	return out
}

func mirrorsFromActors(actors []Actor) []*ca.Node {
	out := make([]*ca.Node, len(actors))
	for i, a := range actors {
		out[i] = mirrorOf(a)
	}
	return out
}

func mirrorOf(a Actor) *ca.Node {
	return &ca.Node{ID: a.GetID(), SMTPart: a.GetSMTPart(), Cert: a.GetCert(), Revoked: a.GetRevoked()}
}

// applyMirrors writes back the partition/revoked state the CA just
// mutated on each mirror onto its live actor, standing in for the
// direct-aliasing the original relies on (see DESIGN.md).
func (s *Simulator) applyMirrors(mirrors []*ca.Node) {
	for _, m := range mirrors {
		if a, ok := s.byID[m.ID]; ok {
			a.SetSMTPart(m.SMTPart)
			a.SetRevokedFlag(m.Revoked)
		}
	}
}

func filterByExcludedIDs(actors []Actor, excludeIDs []int) []Actor {
	if len(excludeIDs) == 0 {
		return actors
	}
	excluded := make(map[int]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	out := make([]Actor, 0, len(actors))
	for _, a := range actors {
		if !excluded[a.GetID()] {
			out = append(out, a)
		}
	}
	return out
}

func idsOf(actors []Actor) []int {
	out := make([]int, len(actors))
	for i, a := range actors {
		out[i] = a.GetID()
	}
	return out
}
