// Package mtz4 is a pure-Go, multi-threaded implementation of a
// block-oriented LZ4-family streaming compressor, modeled on ZSTD's
// multi-threading core (ZSTDMT): an input is partitioned into overlapping
// segments, each compressed by a worker drawn from a fixed pool, and the
// outputs are reassembled into one valid frame.
//
// Single-threaded convenience wrappers (CompressBlock, Reader, Writer) are
// also exported for callers that only need the block codec directly.
package mtz4

import (
	"io"

	"github.com/harriteja/mtz4/compress"
	"github.com/harriteja/mtz4/driver"
)

// Version identifies this module's release.
const Version = "1.0.0"

// CompressBlock compresses src using the default compression level.
func CompressBlock(src []byte, dst []byte) ([]byte, error) {
	return compress.CompressBlock(src, dst)
}

// CompressBlockLevel compresses src at the given level (1 fastest..12 best).
func CompressBlockLevel(src []byte, dst []byte, level int) ([]byte, error) {
	return compress.CompressBlockLevel(src, dst, compress.CompressionLevel(level))
}

// CompressBlockV2 compresses src using the LZ4X matcher at the default level.
func CompressBlockV2(src []byte, dst []byte) ([]byte, error) {
	return compress.CompressBlockV2(src, dst)
}

// CompressBlockV2Level compresses src using the LZ4X matcher at the given level.
func CompressBlockV2Level(src []byte, dst []byte, level int) ([]byte, error) {
	return compress.CompressBlockV2Level(src, dst, compress.CompressionLevel(level))
}

// DecompressBlock decompresses an LZ4-token-format block. maxSize sizes
// the first allocation when dst is nil or too small; the output may grow
// past it.
func DecompressBlock(src []byte, dst []byte, maxSize int) ([]byte, error) {
	return compress.DecompressBlock(src, dst, maxSize)
}

// Reader decompresses a single-threaded LZ4 frame stream.
type Reader struct{ r *compress.Reader }

// NewReader creates a Reader reading from r.
func NewReader(r io.Reader) *Reader { return &Reader{r: compress.NewReader(r)} }

func (r *Reader) Read(p []byte) (int, error) { return r.r.Read(p) }

// Writer compresses to a single-threaded LZ4 frame stream.
type Writer struct{ w *compress.Writer }

// NewWriter creates a Writer at the default level.
func NewWriter(w io.Writer) *Writer { return &Writer{w: compress.NewWriter(w)} }

// NewWriterLevel creates a Writer at the given level.
func NewWriterLevel(w io.Writer, level int) *Writer {
	return &Writer{w: compress.NewWriterLevel(w, compress.CompressionLevel(level))}
}

func (w *Writer) Write(p []byte) (int, error) { return w.w.Write(p) }
func (w *Writer) Close() error                { return w.w.Close() }
func (w *Writer) Reset(dst io.Writer)         { w.w.Reset(dst) }

// CCtx is the multi-threaded compression context: the public facade over
// package driver's job-table/pool machinery (SPEC_FULL.md §6.2's abstract
// API surface).
type CCtx struct {
	d      *driver.Driver
	params compress.Params
}

// NewCCtx creates a context with nbWorkers worker goroutines. nbWorkers is
// clamped to [1, 200] (spec.md §6.1's NBTHREADS_MAX).
func NewCCtx(nbWorkers int) *CCtx {
	if nbWorkers < 1 {
		nbWorkers = 1
	}
	if nbWorkers > 200 {
		nbWorkers = 200
	}
	params := compress.Params{Level: compress.DefaultLevel, WindowLog: compress.DefaultWindowLog}
	return &CCtx{
		d:      driver.New(nbWorkers, compress.DefaultWindowLog, 6, params),
		params: params,
	}
}

// Close releases the context's worker pool and pooled buffers/contexts.
func (c *CCtx) Close() { c.d.Close() }

// SizeOf reports the approximate memory owned by the context's pools.
func (c *CCtx) SizeOf() int { return c.d.SizeOf() }

// NbWorkers reports the configured worker count.
func (c *CCtx) NbWorkers() int { return c.d.NbWorkers() }

// ParamKey names a settable CCtx parameter.
type ParamKey int

const (
	ParamCompressionLevel ParamKey = iota
	ParamChecksumFlag
	ParamWindowLog
)

// SetParameter sets a single compression parameter, taking effect on the
// next frame (ResetCStream or one-shot call). ParamWindowLog is stored in
// Params.WindowLog, which no compression path reads; the driver's window
// log is fixed when the context is created.
func (c *CCtx) SetParameter(key ParamKey, value int) error {
	switch key {
	case ParamCompressionLevel:
		if value < 0 || value > int(compress.MaxLevel) {
			return &driver.Error{Kind: driver.KindParameterUnsupported, Err: driver.ErrParameterUnsupported}
		}
		c.params.Level = compress.CompressionLevel(value)
	case ParamChecksumFlag:
		c.params.ChecksumFlag = value != 0
	case ParamWindowLog:
		if value < 0 {
			return &driver.Error{Kind: driver.KindParameterUnsupported, Err: driver.ErrParameterUnsupported}
		}
		c.params.WindowLog = value
	default:
		return &driver.Error{Kind: driver.KindParameterUnsupported, Err: driver.ErrParameterUnsupported}
	}
	c.d.SetParams(c.params)
	return nil
}

// CompressCCtx is the blocking one-shot API at the given level.
func (c *CCtx) CompressCCtx(dst, src []byte, level int) (int, error) {
	if err := c.SetParameter(ParamCompressionLevel, level); err != nil {
		return 0, err
	}
	return c.d.CompressOneShot(dst, src)
}

// CompressAdvanced is the blocking one-shot API with explicit parameters.
func (c *CCtx) CompressAdvanced(dst, src []byte, params compress.Params) (int, error) {
	c.params = params
	c.d.SetParams(params)
	return c.d.CompressOneShot(dst, src)
}

// Reset begins a new frame for the streaming API; pledgedSize is the total
// content size if known, else 0.
func (c *CCtx) Reset(pledgedSize uint64) {
	c.d.ResetCStream(pledgedSize)
}

// CompressStream ingests as much of src as fits this call and writes any
// ready output into dst, returning bytes written to dst and consumed from
// src.
func (c *CCtx) CompressStream(dst, src []byte) (nDst, nSrc int, err error) {
	out := &driver.OutputBuffer{Dst: dst}
	in := &driver.InputBuffer{Src: src}
	_, err = c.d.CompressStream(out, in, driver.OpContinue)
	return out.Pos, in.Pos, err
}

// FlushStream drains ready output without closing the frame.
func (c *CCtx) FlushStream(dst []byte) (int, error) {
	out := &driver.OutputBuffer{Dst: dst}
	_, err := c.d.FlushStream(out)
	return out.Pos, err
}

// EndStream drains remaining output and closes the frame, returning the
// number of bytes written to dst. The driver's remaining-bytes hint is not
// returned.
func (c *CCtx) EndStream(dst []byte) (int, error) {
	out := &driver.OutputBuffer{Dst: dst}
	_, err := c.d.EndStream(out)
	return out.Pos, err
}

// Progression reports (consumed, ingested, produced) byte counts for the
// current frame.
func (c *CCtx) Progression() (consumed, ingested, produced int) {
	return c.d.Progression()
}
