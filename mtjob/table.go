// Package mtjob implements the Job Table and its shared coordination core:
// a power-of-two ring of job descriptors indexed by a monotonic job ID
// masked to the ring size, plus the single mutex/condition-variable pair
// that a worker and the driver use to hand off per-block progress and
// completion (spec.md §3, §4.4, §4.7). The mutex/condvar shape is grounded
// in parallel.ResultsCollector (results.go): one sync.Mutex guarding a
// slice of results plus a sync.Cond broadcast on every state change,
// generalized here to a ring instead of a flat completed/not-completed
// slice, and to per-block (not just per-job) progress.
package mtjob

import (
	"sync"

	"github.com/harriteja/mtz4/compress"
)

// ErrCode is a job-level error, carried in a Slot's CSize field as a
// negative sentinel rather than a side channel, mirroring spec.md §7's
// "errors are carried as reserved high values in the same size-typed
// return."
type ErrCode int

const (
	// ErrNone indicates no error.
	ErrNone ErrCode = 0
	// ErrMemoryAllocation indicates a pool could not produce a buffer or context.
	ErrMemoryAllocation ErrCode = -1
	// ErrDstSizeTooSmall indicates the caller's output buffer was too small.
	ErrDstSizeTooSmall ErrCode = -2
	// ErrUnderlying wraps an error surfaced by the block codec collaborator.
	ErrUnderlying ErrCode = -3
)

// Slot is one job descriptor. Field ownership follows spec.md §3's table:
// the driver owns Src/SrcStart/PrefixSize/SrcSize/FirstChunk/LastChunk/
// FrameChecksumNeeded/FullFrameSize/Params/DstFlushed; the worker owns
// CSize/Consumed/JobCompleted while the job is in flight, always under the
// Table's mutex.
type Slot struct {
	Src        []byte
	SrcStart   int
	PrefixSize int
	SrcSize    int

	DstBuff []byte

	FirstChunk          bool
	LastChunk           bool
	FrameChecksumNeeded bool
	FullFrameSize       uint64
	Params              compress.Params

	// CSize is bytes of compressed output written so far, or a negative
	// ErrCode if the job failed.
	CSize      int
	Consumed   int
	DstFlushed int

	JobCompleted bool

	// InUse marks the slot as occupied by a submitted-but-not-yet-harvested
	// job; false outside [doneJobID, nextJobID).
	InUse bool
}

// Err reports the job's error, if CSize currently holds one.
func (s *Slot) Err() ErrCode {
	if s.CSize < 0 {
		return ErrCode(s.CSize)
	}
	return ErrNone
}

// Table is the ring of job slots plus the shared coordination core.
type Table struct {
	mu   sync.Mutex
	cond *sync.Cond

	slots []Slot
	mask  int

	nextJobID uint64
	doneJobID uint64
}

// New creates a Table with a power-of-two ring of at least minSlots slots.
func New(minSlots int) *Table {
	n := 1
	for n < minSlots {
		n <<= 1
	}
	t := &Table{
		slots: make([]Slot, n),
		mask:  n - 1,
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Size returns the ring's slot count.
func (t *Table) Size() int {
	return len(t.slots)
}

// Full reports whether the ring has no free slot for a new job.
func (t *Table) Full() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextJobID-t.doneJobID == uint64(len(t.slots))
}

// Submit installs slot as job nextJobID and returns that ID. The caller
// must already know the ring has room (see Full); Submit itself does not
// block or reject.
func (t *Table) Submit(slot Slot) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextJobID
	slot.InUse = true
	t.slots[id&uint64(t.mask)] = slot
	t.nextJobID++
	return id
}

// NextJobID and DoneJobID expose the driver's monotonic counters.
func (t *Table) NextJobID() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextJobID
}

func (t *Table) DoneJobID() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doneJobID
}

// slotAt returns a pointer to the ring slot for id. Callers must hold t.mu.
func (t *Table) slotAt(id uint64) *Slot {
	return &t.slots[id&uint64(t.mask)]
}

// AddProgress is called by a worker after compressing one block: it folds
// n bytes into the job's CSize, records consumed source bytes, and wakes
// the driver. Called under the Table's own lock.
func (t *Table) AddProgress(id uint64, n int, consumed int) {
	t.mu.Lock()
	slot := t.slotAt(id)
	if slot.CSize >= 0 {
		slot.CSize += n
	}
	slot.Consumed = consumed
	t.cond.Broadcast()
	t.mu.Unlock()
}

// Fail marks the job as failed with the given error code and wakes the driver.
func (t *Table) Fail(id uint64, code ErrCode) {
	t.mu.Lock()
	t.slotAt(id).CSize = int(code)
	t.slotAt(id).JobCompleted = true
	t.cond.Broadcast()
	t.mu.Unlock()
}

// Complete marks the job finished and wakes the driver.
func (t *Table) Complete(id uint64) {
	t.mu.Lock()
	slot := t.slotAt(id)
	slot.Consumed = slot.SrcSize
	slot.JobCompleted = true
	t.cond.Broadcast()
	t.mu.Unlock()
}

// Snapshot returns a copy of the job's current slot state.
func (t *Table) Snapshot(id uint64) Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.slotAt(id)
}

// WaitProgress blocks until the job at id has JobCompleted set, or its
// CSize has advanced past dstFlushed — spec.md §4.7's "wait on the condvar
// while dst_flushed == c_size and not job_completed."
func (t *Table) WaitProgress(id uint64, dstFlushed int) Slot {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot := t.slotAt(id)
	for slot.CSize == dstFlushed && !slot.JobCompleted {
		t.cond.Wait()
	}
	return *slot
}

// Unsubmit undoes a Submit that turned out not to be admitted anywhere
// (e.g. the worker pool's try_add refused it): id must be the most
// recently submitted job. This lets the driver retry submission next call
// without leaving a phantom job occupying a ring slot.
func (t *Table) Unsubmit(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id != t.nextJobID-1 {
		panic("mtjob: Unsubmit called out of order")
	}
	t.slots[id&uint64(t.mask)] = Slot{}
	t.nextJobID--
}

// WaitComplete blocks until the job at id has JobCompleted set, regardless
// of progress in between. Used by callers (like the one-shot driver) that
// only care about the final result, not per-block streaming progress.
func (t *Table) WaitComplete(id uint64) Slot {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot := t.slotAt(id)
	for !slot.JobCompleted {
		t.cond.Wait()
	}
	return *slot
}

// SetDstBuff records the buffer a worker acquired for its own output, when
// the driver did not provide one directly.
func (t *Table) SetDstBuff(id uint64, buf []byte) {
	t.mu.Lock()
	t.slotAt(id).DstBuff = buf
	t.mu.Unlock()
}

// SetDstFlushed persists the driver's drain progress back into the slot.
func (t *Table) SetDstFlushed(id uint64, n int) {
	t.mu.Lock()
	t.slotAt(id).DstFlushed = n
	t.mu.Unlock()
}

// ClearChecksumNeeded clears the one-time checksum-append flag on a slot.
func (t *Table) ClearChecksumNeeded(id uint64) {
	t.mu.Lock()
	t.slotAt(id).FrameChecksumNeeded = false
	t.mu.Unlock()
}

// AddChecksumBytes bumps CSize by n after the driver appends the trailing
// digest directly into the job's destination buffer.
func (t *Table) AddChecksumBytes(id uint64, n int) {
	t.mu.Lock()
	t.slotAt(id).CSize += n
	t.mu.Unlock()
}

// Retire clears the slot at doneJobID and advances doneJobID, releasing the
// slot back to the ring.
func (t *Table) Retire(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id != t.doneJobID {
		panic("mtjob: Retire called out of order")
	}
	t.slots[id&uint64(t.mask)] = Slot{}
	t.doneJobID++
}

// WaitAll blocks until every submitted job has JobCompleted set. Used on
// the error path (spec.md §7) and at teardown.
func (t *Table) WaitAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := t.doneJobID; id < t.nextJobID; id++ {
		slot := t.slotAt(id)
		for !slot.JobCompleted {
			t.cond.Wait()
		}
	}
}

// InFlightSrcBytes sums SrcSize across all currently submitted, not yet
// retired jobs — used by Progression (spec.md §4.8).
func (t *Table) InFlightSrcBytes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for id := t.doneJobID; id < t.nextJobID; id++ {
		total += t.slotAt(id).SrcSize
	}
	return total
}
