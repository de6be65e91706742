package player

// ResolveTarget returns the output size for a native nativeW x nativeH
// picture. Zero for both target sides means native size. Zero for one side
// derives it from the other, keeping the aspect ratio and rounding up to an
// even number of at least 2.
func ResolveTarget(nativeW, nativeH, targetW, targetH int) (int, int) {
	targetW = max(targetW, 0)
	targetH = max(targetH, 0)

	switch {
	case targetW == 0 && targetH == 0:
		return nativeW, nativeH
	case targetW == 0:
		if nativeH <= 0 {
			return 0, targetH
		}
		return even(int(int64(nativeW) * int64(targetH) / int64(nativeH))), targetH
	case targetH == 0:
		if nativeW <= 0 {
			return targetW, 0
		}
		return targetW, even(int(int64(nativeH) * int64(targetW) / int64(nativeW)))
	default:
		return targetW, targetH
	}
}

func even(v int) int {
	return max((v+1)&^1, 2)
}

// packSize and unpackSize keep both target sides in one atomic word.
func packSize(w, h int) uint64 {
	return uint64(uint32(w))<<32 | uint64(uint32(h))
}

func unpackSize(v uint64) (int, int) {
	return int(int32(v >> 32)), int(int32(v))
}
