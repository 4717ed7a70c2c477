package driver

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/harriteja/mtz4/compress"
	"github.com/harriteja/mtz4/mtjob"
	"github.com/harriteja/mtz4/pool"
	"github.com/harriteja/mtz4/workerpool"
)

// Driver is the multi-threaded compression core: it owns the worker pool,
// job table, and the Buffer/Context pools, and implements both the
// blocking one-shot API (spec.md §4.3) and the non-blocking streaming API
// (spec.md §4.5-§4.8).
type Driver struct {
	workers    int
	windowLog  int
	overlapLog int
	params     compress.Params

	wp      *workerpool.Pool
	table   *mtjob.Table
	ctxPool *pool.ContextPool
	bufPool *pool.BufferPool

	// singleBlockingThread mirrors spec.md's degenerate fast path: with a
	// single worker there is nothing to parallelize, so both APIs fall
	// back to a plain compress.CCtx run.
	singleBlockingThread bool

	// streaming state (spec.md §3's "driver state")
	in                 stagingBuffer
	targetSectionSize  int
	targetPrefixSize   int
	jobReady           bool
	pendingJob         mtjob.Slot
	frameEnded         bool
	allJobsCompleted   bool
	frameContentSize   uint64
	xxh                *xxhash.Digest
	consumed, produced int
	firstJobSubmitted  bool
}

// New creates a Driver with workers worker goroutines.
func New(workers int, windowLog, overlapLog int, params compress.Params) *Driver {
	if workers < 1 {
		workers = 1
	}
	if windowLog <= 0 {
		windowLog = compress.DefaultWindowLog
	}

	d := &Driver{
		workers:              workers,
		windowLog:            windowLog,
		overlapLog:           overlapLog,
		params:               params,
		singleBlockingThread: workers <= 1,
		xxh:                  xxhash.New(),
	}

	// The admission queue is sized strictly smaller than the job-table ring
	// (workers vs workers*2): a full ring always implies a full queue, but
	// not vice versa, so TryAdd can genuinely refuse — and createJob's
	// jobReady mailbox retry path actually run — while the ring still has
	// room for the job once a worker frees up.
	d.wp = workerpool.New(workers, workers)
	d.table = mtjob.New(workers * 2)
	d.ctxPool = pool.NewContextPool(workers, func() pool.Context { return compress.NewCCtx() })

	sectionTarget := 1 << uint(windowLog+2)
	d.targetSectionSize = sectionTarget
	overlapR := 0
	if 9-overlapLog > 0 {
		overlapR = 9 - overlapLog
	}
	if overlapR < 9 {
		shift := windowLog - overlapR
		if shift > 0 {
			d.targetPrefixSize = 1 << uint(shift)
		}
	}
	d.bufPool = pool.NewBufferPool(bound(sectionTarget+d.targetPrefixSize), 2*workers+3)

	return d
}

// SizeOf reports approximate memory owned by the driver's pools.
func (d *Driver) SizeOf() int {
	return d.bufPool.SizeOf()*d.workers + d.table.Size()
}

// NbWorkers reports the configured worker count.
func (d *Driver) NbWorkers() int {
	return d.workers
}

// SetParams updates the per-frame compression parameters (level, checksum,
// window log). Worker count and partition geometry are fixed at New and
// cannot be changed afterward (spec.md §1's Non-goals: "dynamic resizing
// of the worker pool after construction").
func (d *Driver) SetParams(p compress.Params) {
	d.params = p
}

// Params returns the driver's current per-frame compression parameters.
func (d *Driver) Params() compress.Params {
	return d.params
}

// Close tears down the worker pool. Close must be called at most once and
// only after all in-flight jobs have been harvested.
func (d *Driver) Close() {
	d.wp.Free()
	d.bufPool.Destroy()
	d.ctxPool.Destroy()
}

// CompressOneShot implements spec.md §4.3: partitions src, submits all
// segments, then harvests them in ascending order into dst.
func (d *Driver) CompressOneShot(dst, src []byte) (int, error) {
	if d.singleBlockingThread || len(src) == 0 {
		return d.compressSingleThreaded(dst, src)
	}

	pl := computePlan(len(src), d.windowLog, d.overlapLog, d.workers, len(dst))
	if len(pl.segments) <= 1 {
		return d.compressSingleThreaded(dst, src)
	}

	checksumOn := d.params.ChecksumFlag
	var digest *xxhash.Digest
	if checksumOn {
		digest = xxhash.New()
	}

	// Out-of-dst segments allocate from the Buffer Pool; resize its target
	// to this one-shot call's segment bound first (spec.md §4.1: "the
	// target size is mutable; changed only between frames or when the
	// driver knows no worker is currently acquiring" — true here since no
	// job has been submitted yet).
	d.bufPool.SetTargetSize(bound(avgFromPlan(pl, 0)))

	// Every segment is submitted before any is harvested, so the ring must
	// hold them all at once.
	if d.table.Size() < len(pl.segments) {
		d.table = mtjob.New(len(pl.segments))
	}

	ids := make([]uint64, len(pl.segments))
	dstOffsets := make([]int, len(pl.segments))
	offset := 0

	for u, seg := range pl.segments {
		lastChunk := u == len(pl.segments)-1
		p := d.params
		if u > 0 {
			p.ChecksumFlag = false
		}

		var segDst []byte
		if u < pl.compressWithinDst {
			segBound := bound(avgFromPlan(pl, u))
			end := offset + segBound
			if end > len(dst) {
				end = len(dst)
			}
			segDst = dst[offset:end]
			dstOffsets[u] = offset
			offset += segBound
		} else {
			dstOffsets[u] = -1
		}

		if checksumOn {
			digest.Write(src[seg.start+seg.prefixSize : seg.start+seg.prefixSize+seg.size])
		}

		slot := mtjob.Slot{
			Src:                 src,
			SrcStart:            seg.start,
			PrefixSize:          seg.prefixSize,
			SrcSize:             seg.size,
			DstBuff:             segDst,
			FirstChunk:          u == 0,
			LastChunk:           lastChunk,
			FrameChecksumNeeded: lastChunk && u > 0 && checksumOn,
			FullFrameSize:       uint64(len(src)),
			Params:              p,
		}
		id := d.table.Submit(slot)
		ids[u] = id
		d.wp.Add(func(id uint64) func() {
			return func() { runWorker(d.table, id, d.ctxPool, d.bufPool) }
		}(id))
	}

	pos := 0
	for u, id := range ids {
		final := d.table.WaitComplete(id)
		if err := final.Err(); err != mtjob.ErrNone {
			d.table.WaitAll()
			return 0, mapJobErr(err)
		}

		if final.FrameChecksumNeeded {
			sum := digest.Sum64()
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(sum))
			copy(final.DstBuff[final.CSize:final.CSize+4], b[:])
			final.CSize += 4
		}

		if dstOffsets[u] >= 0 {
			copy(dst[pos:], final.DstBuff[:final.CSize])
		} else {
			copy(dst[pos:], final.DstBuff[:final.CSize])
			d.bufPool.Release(final.DstBuff)
		}
		pos += final.CSize
		d.table.Retire(id)
	}

	return pos, nil
}

// avgFromPlan recovers the per-segment dst-bound basis used when computing
// direct-to-dst offsets; segments after the first may be shorter (the
// final segment), but offsets were pre-computed using the uniform "avg"
// bound so consecutive in-dst regions never overlap (spec.md §4.3's
// bound(a)+bound(b) <= bound(a+b) invariant).
func avgFromPlan(pl plan, u int) int {
	if len(pl.segments) == 0 {
		return 0
	}
	return pl.segments[0].size
}

// compressSingleThreaded is the degenerate fallback (spec.md §4.3's "nb==1
// or W<=1") and the single-pass shortcut's inner call: it runs one
// compress.CCtx over the whole input with no job table involved.
func (d *Driver) compressSingleThreaded(dst, src []byte) (int, error) {
	cctx := compress.NewCCtx()
	if err := cctx.Begin(src, 0, true, d.params, uint64(len(src))); err != nil {
		return 0, newError(KindUnderlying, nil)
	}

	const blockSize = compress.BlockSizeMax
	numFullBlocks := len(src) / blockSize
	tail := len(src) % blockSize
	if tail == 0 && numFullBlocks > 0 {
		numFullBlocks--
		tail = blockSize
	}

	pos := 0
	for i := 0; i < numFullBlocks; i++ {
		n, err := cctx.CompressContinue(dst[pos:], blockSize)
		if err != nil {
			return 0, newError(KindDstSizeTooSmall, ErrDstSizeTooSmall)
		}
		pos += n
	}
	n, err := cctx.CompressEnd(dst[pos:], tail, true)
	if err != nil {
		return 0, newError(KindDstSizeTooSmall, ErrDstSizeTooSmall)
	}
	pos += n

	if d.params.ChecksumFlag {
		sum := xxhash.Sum64(src)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(sum))
		copy(dst[pos:], b[:])
		pos += 4
	}

	return pos, nil
}
