// Package hashops provides the pluggable hash primitive and the integer /
// hex conversions that the rest of the module builds on. The empty string
// "" is the distinguished sentinel for "empty subtree, no leaf": every
// Func in this package must map "" to "" so that hashing an empty subtree
// never produces work, and so an all-empty concatenation collapses back
// to "" rather than to H("").
package hashops

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"github.com/cespare/xxhash/v2"
	"github.com/templexxx/xor"
	"golang.org/x/crypto/sha3"
)

// Func is a pluggable hash function: deterministic, collision-resistant
// for practical inputs, fixed output length, and H("") == "".
type Func func(s string) string

// SHA256Hex is the reference production hash: SHA-256 rendered as lower
// case hex, 64 characters wide.
func SHA256Hex(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SHA3256Hex is a second real hash instance, exercised so the "pluggable
// hash" contract of the design is never accidentally married to one
// implementation.
func SHA3256Hex(s string) string {
	if s == "" {
		return ""
	}
	sum := sha3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// XXHash32Hex is a fast, non-cryptographic hash used by benchmarks and by
// TestSMT-style large-tree tests, where collision resistance is
// unimportant but raw throughput matters. It truncates the 64-bit xxhash
// digest to 8 hex characters (32 bits), mirroring the reference's
// truncated-SHA1 "testing" hash instance.
func XXHash32Hex(s string) string {
	if s == "" {
		return ""
	}
	sum := xxhash.Sum64String(s)
	return hex.EncodeToString([]byte{
		byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum),
	})
}

// HashAdd combines two child hashes into a parent hash. Per the load
// bearing empty-hash shortcut: hashadd("", "") == "", and hashadd of any
// non-empty operand hashes the concatenation normally (including when the
// other side is "" — that is NOT elided, only the both-empty case is).
func HashAdd(hf Func, a, b string) string {
	if a == "" && b == "" {
		return ""
	}
	return hf(a + b)
}

// ToInt parses a hex hash into an integer, treating "" as 0.
func ToInt(h string) *big.Int {
	if h == "" {
		return big.NewInt(0)
	}
	n, ok := new(big.Int).SetString(h, 16)
	if !ok {
		// Not reachable for hashes produced by this package; a corrupt
		// input is treated as the empty sentinel rather than panicking,
		// since the proof algebra must never abort mid-computation.
		return big.NewInt(0)
	}
	return n
}

// FromInt renders an integer as zero-padded hex of the given byte length,
// collapsing 0 back to the empty sentinel "".
func FromInt(n *big.Int, byteLength int) string {
	if n.Sign() == 0 {
		return ""
	}
	return padHex(n.Text(16), byteLength*2)
}

func padHex(s string, width int) string {
	if len(s) >= width {
		return s
	}
	pad := make([]byte, width-len(s))
	for i := range pad {
		pad[i] = '0'
	}
	return string(pad) + s
}

// ParitySuffix returns the last k bytes (2k hex chars) of a subroot hash,
// the "parity lane" the prime root aggregates over. A subroot no longer
// than 2k hex chars is returned unchanged, so the empty sentinel yields "".
func ParitySuffix(hash string, k int) string {
	want := 2 * k
	if len(hash) <= want {
		return hash
	}
	return hash[len(hash)-want:]
}

// XORParity XORs two k-byte parity lanes (as produced by ParitySuffix),
// returning the empty sentinel if the result is all-zero. Used to fold a
// new subroot's parity lane into a running aggregated-parity accumulator.
func XORParity(a, b string, k int) string {
	ab := toFixedBytes(a, k)
	bb := toFixedBytes(b, k)
	out := make([]byte, k)
	xor.Bytes(out, ab, bb)
	for _, c := range out {
		if c != 0 {
			return hex.EncodeToString(out)
		}
	}
	return ""
}

func toFixedBytes(h string, k int) []byte {
	out := make([]byte, k)
	if h == "" {
		return out
	}
	decoded, err := hex.DecodeString(h)
	if err != nil {
		return out
	}
	// Right-align: the parity lane is always the low-order bytes.
	if len(decoded) >= k {
		copy(out, decoded[len(decoded)-k:])
	} else {
		copy(out[k-len(decoded):], decoded)
	}
	return out
}

// EmptyHashList returns, for levels 1..bitLength, the hash of an entirely
// empty subtree rooted at that level: tmp = HashAdd(hf, tmp, tmp),
// starting from "". Every entry is "" by the empty-hash shortcut; kept as
// a named helper (mirroring the reference's get_empty_hash_list) for
// callers that want to assert the elision explicitly rather than rely on
// it implicitly.
func EmptyHashList(hf Func, bitLength int) []string {
	result := make([]string, bitLength)
	tmp := ""
	for i := 0; i < bitLength; i++ {
		tmp = HashAdd(hf, tmp, tmp)
		result[i] = tmp
	}
	return result
}
