package driver

import (
	"encoding/binary"

	"github.com/harriteja/mtz4/mtjob"
)

// EndOp selects how a CompressStream call should treat the end of the
// caller's input, matching the underlying collaborator's end-op vocabulary.
type EndOp int

const (
	// OpContinue: more input is coming; do not close the frame.
	OpContinue EndOp = iota
	// OpFlush: push out whatever is ready, but keep the frame open.
	OpFlush
	// OpEnd: close the frame once all input is consumed.
	OpEnd
)

// ResetCStream (re)initializes streaming state for a new frame, implementing
// spec.md §7's "re-initialization while all_jobs_completed == 0 triggers a
// synchronous wait-and-release" by waiting out any still-open frame first.
func (d *Driver) ResetCStream(pledged uint64) {
	if d.firstJobSubmitted && !d.allJobsCompleted {
		d.table.WaitAll()
	}

	d.in = stagingBuffer{}
	d.jobReady = false
	d.pendingJob = mtjob.Slot{}
	d.frameEnded = false
	d.allJobsCompleted = false
	d.frameContentSize = pledged
	d.consumed = 0
	d.produced = 0
	d.firstJobSubmitted = false
	d.xxh.Reset()
}

// CompressStream implements spec.md §4.5's state machine.
func (d *Driver) CompressStream(out *OutputBuffer, in *InputBuffer, endOp EndOp) (int, error) {
	if d.singleBlockingThread {
		return d.compressStreamSingleThreaded(out, in, endOp)
	}

	if d.frameEnded && endOp == OpContinue {
		return 0, newError(KindStageWrong, ErrStageWrong)
	}

	// Single-pass shortcut (spec.md §4.5 step 3).
	if !d.firstJobSubmitted && d.in.filled == 0 && endOp == OpEnd &&
		len(out.Remaining()) >= bound(len(in.Remaining())) {
		n, err := d.compressSingleThreaded(out.Remaining(), in.Remaining())
		if err != nil {
			return 0, err
		}
		in.Advance(len(in.Remaining()))
		out.Advance(n)
		d.frameEnded = true
		d.allJobsCompleted = true
		return 0, nil
	}

	madeProgress := false

	// Ingest (step 4).
	if !d.jobReady && len(in.Remaining()) > 0 {
		if d.in.buf == nil {
			buf, ok := d.bufPool.Acquire()
			if !ok {
				return 0, newError(KindMemoryAllocation, ErrMemoryAllocation)
			}
			d.in.reset(buf, d.in.prefixSize)
		}
		n := d.in.ingest(in.Remaining())
		if n > 0 {
			in.Advance(n)
			madeProgress = true
		}
		if len(in.Remaining()) > 0 && endOp == OpEnd {
			endOp = OpFlush
		}
	}

	// Decide whether to form a job (step 5).
	segSize := d.in.filled - d.in.prefixSize
	shouldJob := d.jobReady ||
		segSize >= d.targetSectionSize ||
		(endOp != OpContinue && d.in.filled > 0) ||
		(endOp == OpEnd && !d.frameEnded)

	if shouldJob {
		srcSize := min(segSize, d.targetSectionSize)
		if srcSize < 0 {
			srcSize = 0
		}
		if err := d.createJob(srcSize, endOp == OpEnd); err != nil {
			return 0, err
		}
	}

	// Drain (step 6): block only if this call made no forward input progress.
	remaining, err := d.flushProduced(out, !madeProgress)
	if err != nil {
		return 0, err
	}

	if len(in.Remaining()) > 0 {
		if remaining < 1 {
			remaining = 1
		}
	}
	return remaining, nil
}

// FlushStream drains ready output without closing the frame.
func (d *Driver) FlushStream(out *OutputBuffer) (int, error) {
	empty := &InputBuffer{}
	return d.CompressStream(out, empty, OpFlush)
}

// EndStream drains remaining output and closes the frame.
func (d *Driver) EndStream(out *OutputBuffer) (int, error) {
	empty := &InputBuffer{}
	return d.CompressStream(out, empty, OpEnd)
}

// createJob implements spec.md §4.6.
func (d *Driver) createJob(srcSize int, endFrame bool) error {
	if d.table.Full() {
		return nil // ring full: nothing formed or submitted; the next call tries again
	}

	if !d.jobReady {
		firstChunk := !d.firstJobSubmitted
		checksumOn := d.params.ChecksumFlag
		p := d.params
		if !firstChunk {
			p.ChecksumFlag = false
		}

		lastChunk := endFrame

		slot := mtjob.Slot{
			Src:                 d.in.buf,
			SrcStart:            0,
			PrefixSize:          d.in.prefixSize,
			SrcSize:             srcSize,
			FirstChunk:          firstChunk,
			LastChunk:           lastChunk,
			FrameChecksumNeeded: lastChunk && !firstChunk && checksumOn,
			FullFrameSize:       d.frameContentSize,
			Params:              p,
		}

		if checksumOn {
			d.xxh.Write(d.in.buf[d.in.prefixSize : d.in.prefixSize+srcSize])
		}

		// job 0 covering the whole frame: the worker appends its own
		// checksum, so the driver must not also append one.
		if firstChunk && endFrame {
			p.ChecksumFlag = checksumOn
			slot.Params = p
		}

		d.pendingJob = slot

		// Prepare the next input buffer now, while d.in still holds this
		// job's bytes to carry forward as overlap. This must run exactly
		// once per job, not on a jobReady retry: retrying would re-acquire
		// a buffer (leaking the one already carried into d.in) and
		// recompute carry against d.in's already-reset filled length.
		if !endFrame {
			newPrefix := min(slot.SrcSize+slot.PrefixSize, d.targetPrefixSize)
			buf, ok := d.bufPool.Acquire()
			if !ok {
				return newError(KindMemoryAllocation, ErrMemoryAllocation)
			}
			carry := d.in.filled - (slot.SrcSize + slot.PrefixSize - newPrefix)
			copy(buf, d.in.buf[d.in.filled-carry:d.in.filled])
			d.in.reset(buf, newPrefix)
			d.in.filled = carry
		} else {
			d.in = stagingBuffer{}
			d.frameEnded = true
		}
	}

	outgoing := d.pendingJob

	// Submission is non-blocking (spec.md §4.6): a busy worker pool leaves
	// the job parked in d.pendingJob as a one-slot mailbox, retried at the
	// top of the next createJob call rather than overwritten.
	accepted := false
	id := d.table.Submit(outgoing)
	if d.wp.TryAdd(func() {
		runWorker(d.table, id, d.ctxPool, d.bufPool)
		d.bufPool.Release(outgoing.Src)
	}) {
		accepted = true
	} else {
		// Undo the speculative Submit; the slot stays free for the retry.
		d.table.Unsubmit(id)
	}

	if accepted {
		d.jobReady = false
		d.firstJobSubmitted = true
	} else {
		d.jobReady = true
	}
	return nil
}

// flushProduced implements spec.md §4.7.
func (d *Driver) flushProduced(out *OutputBuffer, block bool) (int, error) {
	doneID := d.table.DoneJobID()
	nextID := d.table.NextJobID()
	if doneID == nextID {
		if d.frameEnded && !d.jobReady && d.in.filled == 0 {
			d.allJobsCompleted = true
			return 0, nil
		}
		return 1, nil
	}

	snap := d.table.Snapshot(doneID)
	if block {
		snap = d.table.WaitProgress(doneID, snap.DstFlushed)
	}

	if err := snap.Err(); err != mtjob.ErrNone {
		d.table.WaitAll()
		return 0, mapJobErr(err)
	}

	if snap.JobCompleted && snap.FrameChecksumNeeded {
		sum := d.xxh.Sum64()
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(sum))
		copy(snap.DstBuff[snap.CSize:snap.CSize+4], b[:])
		snap.CSize += 4
		d.table.AddChecksumBytes(doneID, 4)
		d.table.ClearChecksumNeeded(doneID)
	}

	n := min(snap.CSize-snap.DstFlushed, len(out.Remaining()))
	if n > 0 {
		copy(out.Remaining(), snap.DstBuff[snap.DstFlushed:snap.DstFlushed+n])
		out.Advance(n)
		snap.DstFlushed += n
	}

	if snap.JobCompleted && snap.DstFlushed == snap.CSize {
		d.bufPool.Release(snap.DstBuff)
		d.consumed += snap.SrcSize
		d.produced += snap.CSize
		d.table.Retire(doneID)
	} else {
		d.table.SetDstFlushed(doneID, snap.DstFlushed)
	}

	switch {
	case snap.CSize-snap.DstFlushed > 0:
		return snap.CSize - snap.DstFlushed, nil
	case !snap.JobCompleted:
		return 1, nil
	case d.table.NextJobID() > d.table.DoneJobID():
		return 1, nil
	case d.jobReady:
		return 1, nil
	case d.in.filled > 0:
		return 1, nil
	default:
		d.allJobsCompleted = d.frameEnded
		return 0, nil
	}
}

// Progression implements spec.md §4.8.
func (d *Driver) Progression() (consumed, ingested, produced int) {
	inFlight := d.table.InFlightSrcBytes()
	ingestedNow := d.consumed + (d.in.filled - d.in.prefixSize) + inFlight
	return d.consumed, ingestedNow, d.produced
}

// compressStreamSingleThreaded implements the W<=1 degenerate path: it
// buffers whole-frame input and defers to compressSingleThreaded at
// OpEnd, since a single worker gives the job table no parallelism to
// coordinate.
func (d *Driver) compressStreamSingleThreaded(out *OutputBuffer, in *InputBuffer, endOp EndOp) (int, error) {
	if d.in.buf == nil {
		d.in.buf = make([]byte, 0, 1<<20)
	}
	d.in.buf = append(d.in.buf, in.Remaining()...)
	in.Advance(len(in.Remaining()))

	if endOp != OpEnd {
		return 0, nil
	}

	scratch := make([]byte, bound(len(d.in.buf)))
	written, werr := d.compressSingleThreaded(scratch, d.in.buf)
	if werr != nil {
		return 0, werr
	}
	if written > len(out.Remaining()) {
		return 0, newError(KindDstSizeTooSmall, ErrDstSizeTooSmall)
	}
	copy(out.Remaining(), scratch[:written])
	out.Advance(written)
	d.frameEnded = true
	d.allJobsCompleted = true
	return 0, nil
}
