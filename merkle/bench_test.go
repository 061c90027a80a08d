package merkle

import (
	"math/big"
	"testing"

	"github.com/revocd/smtrevoke/hashops"
)

const benchDepth = 256

// benchHashLeaf hashes at SHA256Hex's full 256-bit width, matching
// benchDepth; the package-level hashLeaf is sized for testDepth's 32-bit
// XXHash32Hex tree instead and would crowd every leaf into the low 32
// bits of this one's keyspace, under a single shared spine, if reused here.
func benchHashLeaf(n int) string {
	return hashops.SHA256Hex(big.NewInt(int64(n)).Text(16))
}

func benchTree(b *testing.B, n int) (*SMT, []string) {
	b.Helper()
	s, err := NewSMT(hashops.SHA256Hex, benchDepth)
	if err != nil {
		b.Fatal(err)
	}
	leaves := make([]string, n)
	for i := 0; i < n; i++ {
		leaves[i] = benchHashLeaf(i + 1)
		s.AddLeaf(leaves[i], false)
	}
	return s, leaves
}

// BenchmarkCalcPathRoot mirrors the "PoI authentication" measurement in the
// reference runtime benchmark: verifying a single proof of inclusion.
func BenchmarkCalcPathRoot(b *testing.B) {
	s, leaves := benchTree(b, 64)
	h := leaves[0]
	p := s.Path(h)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CalcPathRoot(hashops.SHA256Hex, benchDepth, h, p.Path, p.PBM, 0, false)
	}
}

// BenchmarkUpdatePoIWithPoI mirrors the reference's "Repair PoI with PoI"
// measurement: folding one peer update into a stale proof.
func BenchmarkUpdatePoIWithPoI(b *testing.B) {
	s, leaves := benchTree(b, 64)
	h := leaves[0]
	p := s.Path(h)

	s.AddLeaf(benchHashLeaf(9001), false)
	newH := benchHashLeaf(9001)
	newP := s.Path(newH)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		path := append([]string(nil), p.Path...)
		UpdatePoIWithPoI(hashops.SHA256Hex, benchDepth, h, path, p.PBM, newH, newP.Path, newP.PBM, false)
	}
}

// BenchmarkUpdatePoIWithLvlCache mirrors the reference's "Repair PoI with
// Level-Cache" measurement, at the same cache_level=7 the original uses.
func BenchmarkUpdatePoIWithLvlCache(b *testing.B) {
	s, leaves := benchTree(b, 256)
	h := leaves[0]
	p := s.Path(h)
	cache := s.ConstructLvlCache(7)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		path := append([]string(nil), p.Path...)
		UpdatePoIWithLvlCache(hashops.SHA256Hex, benchDepth, h, path, cache, 7)
	}
}

// BenchmarkProcessXPoIUpdates mirrors the reference's "processing x PoI
// Updates" measurement: folding a batch of 20 sequential peer updates into
// one stale proof before re-verifying it.
func BenchmarkProcessXPoIUpdates(b *testing.B) {
	const x = 20
	s, leaves := benchTree(b, 64)
	h := leaves[0]
	p := s.Path(h)

	updates := make([]struct {
		hash string
		path []string
		pbm  *big.Int
	}, x)
	for i := 0; i < x; i++ {
		s.AddLeaf(benchHashLeaf(9100+i), false)
		nh := benchHashLeaf(9100 + i)
		np := s.Path(nh)
		updates[i].hash = nh
		updates[i].path = np.Path
		updates[i].pbm = np.PBM
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		path := append([]string(nil), p.Path...)
		pbm := new(big.Int).Set(p.PBM)
		for _, u := range updates {
			pbm, path = UpdatePoIWithPoI(hashops.SHA256Hex, benchDepth, h, path, pbm, u.hash, u.path, u.pbm, false)
		}
		CalcPathRoot(hashops.SHA256Hex, benchDepth, h, path, pbm, 0, false)
	}
}
