package merkle

import (
	"math/big"

	"github.com/revocd/smtrevoke/hashops"
)

// CalcPathRoot recomputes the root (or, starting from startLevel>0, the
// subroot of the subtree rooted at that level) that hash h together with
// path/pbm would produce. When revoked is true, h's own contribution is
// replaced by the empty sentinel before climbing, matching how a revoked
// leaf verifies against a tree that no longer holds it.
//
// startLevel lets the same routine verify a partial proof: the first
// depth-startLevel entries of the climb are performed, which is exactly
// the work needed to derive a subroot from the tail of a longer proof —
// the technique every patch operation below relies on.
func CalcPathRoot(hf hashops.Func, depth int, h string, path []string, pbm *big.Int, startLevel int, revoked bool) string {
	tmpPath := path
	hashBM := hashops.ToInt(h)
	result := h
	if revoked {
		result = ""
	}
	for i := 0; i < depth-startLevel; i++ {
		var neighbor string
		if pbm.Bit(i) == 1 {
			neighbor = tmpPath[0]
			tmpPath = tmpPath[1:]
		}
		if hashBM.Bit(i) == 1 {
			result = hashops.HashAdd(hf, neighbor, result)
		} else {
			result = hashops.HashAdd(hf, result, neighbor)
		}
	}
	return result
}

// UpdatePoIWithPoI patches myPath/myPBM using another party's current PoI
// for a different leaf (newHash/newPath/newPBM) in the same tree. It is
// the critical repair primitive: given the split level where the two
// leaves' addresses first diverge (counted from the root), everything
// strictly above that level is shared between the two proofs and can be
// copied over verbatim; at the split level itself, the subroot covering
// the other leaf is exactly myPath's sibling there, and is rederived from
// newPath by a partial CalcPathRoot below the split.
//
// Returns the (possibly unchanged) myPBM and the (possibly
// inserted-into/removed-from) myPath. The caller owns both slices handed
// in; myPath's backing array may be reallocated, so the returned slice
// must replace the caller's reference.
func UpdatePoIWithPoI(hf hashops.Func, depth int, myHash string, myPath []string, myPBM *big.Int, newHash string, newPath []string, newPBM *big.Int, revoked bool) (*big.Int, []string) {
	myBM := hashops.ToInt(myHash)
	newBM := hashops.ToInt(newHash)
	xorHash := new(big.Int).Xor(myBM, newBM)
	andPath := new(big.Int).And(myPBM, newPBM)

	targetPos := -1
	for i := 0; i < depth; i++ {
		if xorHash.Bit(depth-1-i) == 1 {
			targetPos = i
			break
		}
	}
	if targetPos < 0 {
		// myHash == newHash: nothing to split on, not a legal call for
		// two distinct leaves. Leave the proof untouched.
		return myPBM, myPath
	}

	pathCount := 0
	isUpdate := false
	isRemoval := false

loop:
	for i := 0; i < depth; i++ {
		if andPath.Bit(depth-1-i) == 1 {
			switch {
			case i < targetPos:
				pathCount++
				myPath[len(myPath)-pathCount] = newPath[len(newPath)-pathCount]
			case i == targetPos:
				pathCount++
				if len(newPath) == pathCount {
					pathCount--
					isRemoval = true
				} else {
					isUpdate = true
				}
				break loop
			default:
				isUpdate = false
				if newPBM.Bit(depth-1-targetPos) == 0 {
					isRemoval = true
				}
				break loop
			}
		}
		if i == depth-1 {
			newHasTarget := newPBM.Bit(depth-1-targetPos) == 1
			myHasTarget := myPBM.Bit(depth-1-targetPos) == 1
			switch {
			case !newHasTarget && myHasTarget:
				isRemoval = true
			case newHasTarget && !myHasTarget:
				// insert: my_pbm had nothing there, nothing more to decide.
			default:
				foundBit := false
				for j := targetPos + 1; j < depth; j++ {
					if newPBM.Bit(depth-1-j) == 1 {
						foundBit = true
					}
				}
				if !foundBit {
					return myPBM, myPath
				}
				pathCount++
				isUpdate = true
			}
		}
	}

	var updateHash string
	if !isRemoval {
		updateHash = CalcPathRoot(hf, depth, newHash, newPath, newPBM, targetPos+1, revoked)
	}

	newMyPBM := new(big.Int).Set(myPBM)
	switch {
	case isUpdate:
		myPath[len(myPath)-pathCount] = updateHash
	case isRemoval:
		myPath = removeAt(myPath, len(myPath)-pathCount-1)
		newMyPBM.SetBit(newMyPBM, depth-1-targetPos, 0)
	default:
		myPath = insertAt(myPath, len(myPath)-pathCount, updateHash)
		newMyPBM.SetBit(newMyPBM, depth-1-targetPos, 1)
	}
	return newMyPBM, myPath
}

func insertAt(s []string, idx int, v string) []string {
	s = append(s, "")
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

func removeAt(s []string, idx int) []string {
	out := make([]string, 0, len(s)-1)
	out = append(out, s[:idx]...)
	out = append(out, s[idx+1:]...)
	return out
}

// UpdatePoIWithLvlCache patches the top cacheLevel entries of myPath
// in-place using an up-to-date level-cache, assuming every sibling on
// the path within that band is non-empty (overwhelmingly true once the
// tree is dense in the cached band — see spec design notes).
func UpdatePoIWithLvlCache(hf hashops.Func, depth int, myHash string, myPath []string, lvlCache []string, cacheLevel int) {
	myBM := hashops.ToInt(myHash)
	shift := uint(depth - cacheLevel)
	delBits := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), shift), big.NewInt(1))
	bucket := new(big.Int).Rsh(new(big.Int).AndNot(myBM, delBits), shift)

	for i := 0; i < cacheLevel; i++ {
		xorBucket := new(big.Int).Xor(bucket, new(big.Int).Lsh(big.NewInt(1), uint(cacheLevel-1-i)))
		myPath[len(myPath)-1-i] = lvlCacheHelper(hf, xorBucket, i+1, cacheLevel, lvlCache)
	}
}

// lvlCacheHelper reconstructs the subroot rooted at `target` (a bucket
// index, not yet fully resolved below onLvl) by recursively combining
// cache entries, exactly mirroring the reference's lvl_cache_helper.
func lvlCacheHelper(hf hashops.Func, target *big.Int, onLvl, cacheLevel int, lvlCache []string) string {
	if onLvl >= cacheLevel {
		return lvlCache[target.Int64()]
	}
	bit := uint(cacheLevel - 1 - onLvl)
	left := lvlCacheHelper(hf, new(big.Int).SetBit(new(big.Int).Set(target), int(bit), 0), onLvl+1, cacheLevel, lvlCache)
	right := lvlCacheHelper(hf, new(big.Int).SetBit(new(big.Int).Set(target), int(bit), 1), onLvl+1, cacheLevel, lvlCache)
	return hashops.HashAdd(hf, left, right)
}

// UpdatePoIWithSubCache patches myPath/myPBM using a subtree-cache
// covering some bounded region below cacheOriginDepth, returning the
// (possibly unchanged) path and bitmap.
func UpdatePoIWithSubCache(hf hashops.Func, depth int, myHash string, myPath []string, myPBM *big.Int, cacheOriginDepth int, subCache map[SubCacheKey]string) ([]string, *big.Int) {
	myBM := hashops.ToInt(myHash)
	newPBM := new(big.Int).Set(myPBM)

	for k := range subCache {
		posInt := k.PosInt()
		xorHash := new(big.Int).Xor(myBM, posInt)
		targetPos := -1
		for i := 0; i < k.Level; i++ {
			if xorHash.Bit(depth-1-i) == 1 {
				if i >= cacheOriginDepth {
					targetPos = i
				}
				break
			}
		}
		if targetPos < 0 {
			continue
		}

		updateHash := subCacheHelper(hf, depth, posInt, targetPos+1, k.Level, subCache)

		pathCount := 0
		isUpdate := false
	inner:
		for i := 0; i <= targetPos; i++ {
			if newPBM.Bit(depth-1-i) == 1 {
				switch {
				case i < targetPos:
					pathCount++
				case i == targetPos:
					pathCount++
					isUpdate = true
					break inner
				}
			}
		}
		if isUpdate {
			myPath[len(myPath)-pathCount] = updateHash
		} else {
			myPath = insertAt(myPath, len(myPath)-pathCount, updateHash)
			newPBM.SetBit(newPBM, depth-targetPos-1, 1)
		}
	}
	return myPath, newPBM
}

// subCacheHelper reconstructs the subroot at (target, onLvl) from a
// sparse subtree-cache, walking down to cacheDepthLevel where entries are
// looked up directly.
func subCacheHelper(hf hashops.Func, depth int, target *big.Int, onLvl, cacheDepthLevel int, subCache map[SubCacheKey]string) string {
	if onLvl >= cacheDepthLevel {
		return subCache[SubCacheKey{Pos: normalizePos(depth, target, onLvl).Text(16), Level: onLvl}]
	}
	bit := uint(depth - 1 - onLvl)
	left := subCacheHelper(hf, depth, new(big.Int).SetBit(new(big.Int).Set(target), int(bit), 0), onLvl+1, cacheDepthLevel, subCache)
	right := subCacheHelper(hf, depth, new(big.Int).SetBit(new(big.Int).Set(target), int(bit), 1), onLvl+1, cacheDepthLevel, subCache)
	return hashops.HashAdd(hf, left, right)
}

// RootFromLvlCache reconstructs the full tree root from a complete
// level-cache, the check a cacher runs after applying an update to
// confirm its cache is internally consistent again.
func RootFromLvlCache(hf hashops.Func, lvlCache []string, cacheLevel int) string {
	return lvlCacheHelper(hf, big.NewInt(0), 0, cacheLevel, lvlCache)
}

// UpdateLvlCacheWithPoI folds an incoming (now-authoritative) PoI into a
// level-cache: it derives the partial root of the subtree below the
// cached band and stores it in the bucket newHash falls into.
func UpdateLvlCacheWithPoI(hf hashops.Func, depth int, newHash string, newPath []string, newPBM *big.Int, lvlCache []string, cacheLevel int, revoked bool) {
	newCacheHash := CalcPathRoot(hf, depth, newHash, newPath, newPBM, cacheLevel, revoked)
	bucket := new(big.Int).Rsh(hashops.ToInt(newHash), uint(depth-cacheLevel))
	lvlCache[bucket.Int64()] = newCacheHash
}
