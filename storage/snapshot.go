// Package storage persists and restores the CA's passive-leaf SMT
// setup ("stuff that's in the SMT but not actively used", per the
// original's comment) so repeated simulation runs don't have to
// re-hash hundreds of thousands of passive leaves from scratch.
package storage

import (
	"fmt"
	"os"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/golang/glog"
	"github.com/nightlyone/lockfile"

	"github.com/revocd/smtrevoke/hashops"
	"github.com/revocd/smtrevoke/merkle"
)

// snapshotFormat is the on-disk CBOR encoding of a forest of partition
// trees: enough to rebuild every merkle.SMT by re-inserting its stored
// leaf hashes. It is opaque to callers outside this package.
type snapshotFormat struct {
	Depth  int                 `cbor:"depth"`
	Leaves [][]leafEntry       `cbor:"leaves"` // per partition, inserted leaf hashes in insertion order
}

type leafEntry struct {
	Hash string `cbor:"h"`
}

// Store encodes the forest's leaf sets to path as CBOR, guarded by an
// advisory lock file so two concurrent first-run populations of the
// same snapshot can't corrupt each other. Only the leaves are
// persisted; internal nodes are rebuilt by re-insertion on Load, which
// keeps the format small and independent of the hash function used to
// build it.
func Store(path string, hf hashops.Func, depth int, forest [][]string) error {
	lock, err := lockfile.New(path + ".lock")
	if err != nil {
		return fmt.Errorf("storage: creating lock for %s: %w", path, err)
	}
	if err := lock.TryLock(); err != nil {
		return fmt.Errorf("storage: locking %s: %w", path, err)
	}
	defer lock.Unlock() //nolint:errcheck

	snap := snapshotFormat{Depth: depth, Leaves: make([][]leafEntry, len(forest))}
	for i, leaves := range forest {
		entries := make([]leafEntry, 0, len(leaves))
		for _, h := range leaves {
			if h == "" {
				continue
			}
			entries = append(entries, leafEntry{Hash: h})
		}
		snap.Leaves[i] = entries
	}

	data, err := cbor.Marshal(snap)
	if err != nil {
		return fmt.Errorf("storage: encoding snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("storage: writing %s: %w", path, err)
	}
	glog.V(1).Infof("storage: wrote snapshot %s (%d bytes, %d partitions)", path, len(data), len(forest))
	return nil
}

// Load decodes a snapshot previously written by Store into a fresh
// forest of merkle.SMT partitions, hashed with hf. When useMmap is
// true, the encoded file is memory-mapped rather than read fully into
// the heap, trading a page-fault-driven read pattern for lower resident
// memory on very large snapshots.
func Load(path string, hf hashops.Func, useMmap bool) ([]*merkle.SMT, error) {
	start := time.Now()
	var data []byte
	if useMmap {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("storage: opening %s: %w", path, err)
		}
		defer f.Close()
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("storage: mmapping %s: %w", path, err)
		}
		defer m.Unmap() //nolint:errcheck
		data = m
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("storage: reading %s: %w", path, err)
		}
	}

	var snap snapshotFormat
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("storage: decoding %s: %w", path, err)
	}

	forest := make([]*merkle.SMT, len(snap.Leaves))
	for i, entries := range snap.Leaves {
		s, err := merkle.NewSMT(hf, snap.Depth)
		if err != nil {
			return nil, fmt.Errorf("storage: rebuilding partition %d: %w", i, err)
		}
		for _, e := range entries {
			s.AddLeaf(e.Hash, false)
		}
		forest[i] = s
	}
	glog.V(1).Infof("storage: loaded snapshot %s (%d partitions) in %s", path, len(forest), time.Since(start))
	return forest, nil
}

// Exists reports whether a snapshot file is present at path, the same
// check the original makes with os.path.exists before deciding whether
// to build or load the passive-node setup.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Snapshotter is the interface Store/Load/Exists satisfy, extracted so
// callers (cmd/smtrevoke, and tests driving them) can depend on an
// interface instead of the package's free functions and substitute a
// gomock-generated stand-in, matching the mocking approach applied to
// sim.PeerSampler.
type Snapshotter interface {
	Store(path string, hf hashops.Func, depth int, forest [][]string) error
	Load(path string, hf hashops.Func, useMmap bool) ([]*merkle.SMT, error)
	Exists(path string) bool
}

// FileSnapshotter is the production Snapshotter, backed by this
// package's CBOR-on-disk Store/Load/Exists.
type FileSnapshotter struct{}

func (FileSnapshotter) Store(path string, hf hashops.Func, depth int, forest [][]string) error {
	return Store(path, hf, depth, forest)
}

func (FileSnapshotter) Load(path string, hf hashops.Func, useMmap bool) ([]*merkle.SMT, error) {
	return Load(path, hf, useMmap)
}

func (FileSnapshotter) Exists(path string) bool { return Exists(path) }

var _ Snapshotter = FileSnapshotter{}
