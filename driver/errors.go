// Package driver implements the multi-threaded compression core: input
// partitioning, job submission, the worker routine, and both the blocking
// one-shot and non-blocking streaming drivers described in SPEC_FULL.md
// §4. It is grounded in parallel.Dispatcher's job/result split, generalized
// from "one big split, process, recombine" into the job-ring, overlap, and
// ordered-drain machinery a real streaming frame format needs.
package driver

import (
	"errors"

	"github.com/harriteja/mtz4/mtjob"
)

// ErrorKind classifies a driver-level failure, following spec.md §7's
// error-kind taxonomy.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindMemoryAllocation
	KindDstSizeTooSmall
	KindParameterUnsupported
	KindStageWrong
	KindDictionaryWrong
	KindUnderlying
)

func (k ErrorKind) String() string {
	switch k {
	case KindMemoryAllocation:
		return "memory_allocation"
	case KindDstSizeTooSmall:
		return "dst_size_too_small"
	case KindParameterUnsupported:
		return "parameter_unsupported"
	case KindStageWrong:
		return "stage_wrong"
	case KindDictionaryWrong:
		return "dictionary_wrong"
	case KindUnderlying:
		return "underlying"
	default:
		return "none"
	}
}

// Error wraps an ErrorKind with the underlying cause, when there is one.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Sentinel errors for errors.Is comparisons against Error.Kind-classified
// failures that carry no further detail.
var (
	ErrMemoryAllocation     = errors.New("memory allocation failed")
	ErrDstSizeTooSmall      = errors.New("destination buffer too small")
	ErrParameterUnsupported = errors.New("unsupported parameter")
	ErrStageWrong           = errors.New("operation invalid in current stream stage")
	ErrDictionaryWrong      = errors.New("dictionary usage invalid for this call")
	ErrUnderlying           = errors.New("block codec failed")
)

func newError(kind ErrorKind, sentinel error) *Error {
	return &Error{Kind: kind, Err: sentinel}
}

// mapJobErr translates a worker's mtjob.ErrCode into the driver.Error kind
// spec.md §7 requires callers be able to distinguish — in particular,
// scenario 6 (memory_allocation) from scenario 5 (dst_size_too_small),
// which a single hardcoded kind would otherwise collapse into each other.
func mapJobErr(code mtjob.ErrCode) *Error {
	switch code {
	case mtjob.ErrMemoryAllocation:
		return newError(KindMemoryAllocation, ErrMemoryAllocation)
	case mtjob.ErrDstSizeTooSmall:
		return newError(KindDstSizeTooSmall, ErrDstSizeTooSmall)
	default:
		return newError(KindUnderlying, ErrUnderlying)
	}
}
