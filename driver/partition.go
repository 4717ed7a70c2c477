package driver

import "github.com/harriteja/mtz4/compress"

// segment describes one job's slice of the source in a one-shot compress
// (spec.md §4.3).
type segment struct {
	start      int
	prefixSize int
	size       int
}

// plan is the computed partitioning geometry for one input.
type plan struct {
	segments          []segment
	targetPrefixSize  int
	compressWithinDst int // segments [0, compressWithinDst) may write directly into the caller's dst
}

// bound mirrors compress.CompressBound, named locally to match spec.md's
// "bound(n)" vocabulary at call sites in this package.
func bound(n int) int {
	return compress.CompressBound(n)
}

// computePlan implements spec.md §4.3's partitioning arithmetic: target
// segment size and count from src size, window log and worker count, then
// overlap size from overlap_log, then how many leading segments can write
// straight into the caller's destination buffer.
func computePlan(srcSize, windowLog, overlapLog, workers, dstCapacity int) plan {
	if workers < 1 {
		workers = 1
	}

	target := 1 << uint(windowLog+2)
	max := target << 2
	passMax := max * workers

	multiplier := srcSize/passMax + 1

	var nb int
	if multiplier > 1 {
		nb = multiplier * workers
	} else {
		nb = min(srcSize/target+1, workers)
	}
	if nb < 1 {
		nb = 1
	}

	proposed := ceilDiv(srcSize, nb)

	var avg int
	if ((proposed-1)&0x1FFFF) < 0x7FFF {
		avg = proposed + 0xFFFF
	} else {
		avg = proposed
	}
	if avg < 1 {
		avg = 1
	}

	overlapR := 0
	if 9-overlapLog > 0 {
		overlapR = 9 - overlapLog
	}
	overlapSize := 0
	if overlapR < 9 {
		shift := windowLog - overlapR
		if shift > 0 {
			overlapSize = 1 << uint(shift)
		}
	}

	var segs []segment
	pos := 0
	for pos < srcSize || len(segs) == 0 {
		size := avg
		if pos+size > srcSize {
			size = srcSize - pos
		}
		prefix := 0
		if pos > 0 {
			prefix = overlapSize
			if prefix > pos {
				prefix = pos
			}
		}
		segs = append(segs, segment{start: pos - prefix, prefixSize: prefix, size: size})
		pos += size
		if size == 0 {
			break
		}
	}

	compressWithinDst := len(segs)
	if dstCapacity < bound(srcSize) {
		compressWithinDst = dstCapacity / bound(avg)
		if compressWithinDst > len(segs) {
			compressWithinDst = len(segs)
		}
	}

	return plan{
		segments:          segs,
		targetPrefixSize:  overlapSize,
		compressWithinDst: compressWithinDst,
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
