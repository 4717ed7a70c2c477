package compress

import (
	"encoding/binary"

	"github.com/harriteja/mtz4/matcher"
)

// CCtx is a stateful, reusable compressor context — the per-worker
// collaborator spec.md §6.3 describes as begin_advanced_internal /
// compress_continue / compress_end / invalidate_rep_codes. It is pooled by
// package pool's Context Pool and satisfies pool.Context.
//
// A CCtx compresses one job's (priorBytes + segment) buffer, where
// priorBytes is either the raw-content overlap carried from the previous
// segment, or an explicit preset dictionary on the first chunk of a frame.
// Either way priorBytes is never itself emitted to the output: the worker
// only ever asks for the segment portion to be encoded, and matches are
// free to reach back into priorBytes. See SPEC_FULL.md §4.3a for why this
// keeps decompression correct without a separate dictionary-loading step
// on the decode side, for the overlap case.
type CCtx struct {
	matcher *matcher.LZ4XMatcher
	buf     []byte
	params  Params

	priorLen   int // bytes of buf before the segment proper (dictionary/prefix)
	consumed   int // segment bytes already handed to CompressContinue/CompressEnd
	segmentLen int

	firstChunk  bool
	wroteHeader bool

	hdrBuf [4]byte
}

// NewCCtx allocates a fresh compressor context.
func NewCCtx() *CCtx {
	return &CCtx{matcher: matcher.NewLZ4XMatcher(matcher.DefaultLZ4XConfig())}
}

// Reset clears per-frame state, satisfying pool.Context. It does not touch
// c.params — callers must call Begin before reusing the context.
func (c *CCtx) Reset() {
	c.buf = nil
	c.priorLen = 0
	c.consumed = 0
	c.segmentLen = 0
	c.firstChunk = false
	c.wroteHeader = false
}

// InvalidateRepCodes clears match-finder state carried over from a previous
// job. Real LZ4 has no repeat-offset cache to invalidate (unlike the
// zstd-shaped collaborator spec.md §4.4 describes); for this codec the
// equivalent safety action is discarding stale hash/chain tables so a
// reused CCtx never matches against a previous job's bytes.
func (c *CCtx) InvalidateRepCodes() {
	c.matcher.Reset(nil)
}

// matcherConfigForLevel scales match-search effort with level, mirroring
// improved_block.go's NewV2Block level ladder.
func matcherConfigForLevel(level CompressionLevel) matcher.LZ4XConfig {
	cfg := matcher.DefaultLZ4XConfig()
	switch {
	case level <= 3:
		cfg.MaxAttempts, cfg.SkipStrength = 4, 1
	case level <= 6:
		cfg.MaxAttempts, cfg.SkipStrength = 8, 2
	case level <= 9:
		cfg.MaxAttempts, cfg.SkipStrength = 16, 2
	default:
		cfg.MaxAttempts, cfg.SkipStrength = 32, 3
	}
	return cfg
}

// Begin initializes the context for one job's segment.
//
//   - buf is priorBytes (dictionary or carried-overlap content) immediately
//     followed by the segment's own bytes.
//   - priorLen marks where the segment proper starts within buf.
//   - firstChunk controls whether the frame header is emitted by the next
//     CompressContinue/CompressEnd call (spec.md §3: "only job 0 carries
//     the frame header").
//   - pledged is the total frame content size, when known; the frame
//     descriptor emitted here never sets flagContentSize, so pledged is
//     presently only tracked by the caller (see SPEC_FULL.md §4.3) for
//     Progression reporting, not encoded into the stream.
func (c *CCtx) Begin(buf []byte, priorLen int, firstChunk bool, params Params, pledged uint64) error {
	c.params = params
	c.buf = buf
	c.priorLen = priorLen
	c.segmentLen = len(buf) - priorLen
	c.consumed = 0
	c.firstChunk = firstChunk
	c.wroteHeader = false
	_ = pledged

	c.matcher = matcher.NewLZ4XMatcher(matcherConfigForLevel(params.Level))
	c.matcher.Reset(buf)
	for i := 0; i+4 <= priorLen; i++ {
		c.matcher.InsertHash(i)
	}
	c.matcher.Advance(priorLen)
	return nil
}

// writeHeaderIfNeeded emits the frame magic + descriptor once, on the first
// chunk of the frame only.
func (c *CCtx) writeHeaderIfNeeded(dst []byte) int {
	if !c.firstChunk || c.wroteHeader {
		return 0
	}
	c.wroteHeader = true

	// flagBlockIndependence is left clear: a job's blocks (and, via the
	// carried-overlap prefix, the previous job's trailing bytes) may be
	// referenced by later back-references, so this frame's blocks are
	// linked, not independent. See compress.Reader.readBlock's window.
	var flg byte
	if c.params.ChecksumFlag {
		flg |= flagContentChecksum
	}
	bd := byte(7) << 4 // 4MB block-size code, matching BlockSizeMax

	binary.LittleEndian.PutUint32(dst, frameMagic)
	dst[4] = flg
	dst[5] = bd
	dst[6] = headerChecksum(flg, bd)
	return 7
}

// compressChunk compresses the next blockLen segment bytes into exactly one
// size-prefixed frame block, written at dst[off:]. dst must have room for
// the frame header (if any), a 4-byte size word, and CompressBound(blockLen)
// bytes of body. It returns the number of bytes written.
func (c *CCtx) compressChunk(dst []byte, blockLen int) (int, error) {
	off := c.writeHeaderIfNeeded(dst)

	// A zero-size block word is the frame terminator (see stream.go's
	// readBlock), so an empty chunk must write nothing rather than a
	// spurious zero-length block.
	if blockLen == 0 {
		return off, nil
	}

	start := c.priorLen + c.consumed
	end := start + blockLen
	c.matcher.SetLimit(end)

	body := dst[off+4:]
	n := encodeLZ4Sequences(c.buf, c.matcher, start, end, body)

	stored := n >= blockLen
	if stored {
		copy(body, c.buf[start:end])
		n = end - start
	}

	word := uint32(n)
	if stored {
		word |= uncompressedBlockFlag
	}
	binary.LittleEndian.PutUint32(dst[off:], word)

	c.consumed += blockLen
	return off + 4 + n, nil
}

// CompressContinue compresses the next blockLen bytes of the segment,
// writing one frame block. blockLen must not exceed the bytes remaining in
// the segment.
func (c *CCtx) CompressContinue(dst []byte, blockLen int) (int, error) {
	return c.compressChunk(dst, blockLen)
}

// CompressEnd compresses the final blockLen bytes of the segment (which may
// be zero) and, if last, appends the frame terminator.
func (c *CCtx) CompressEnd(dst []byte, blockLen int, last bool) (int, error) {
	n, err := c.compressChunk(dst, blockLen)
	if err != nil {
		return 0, err
	}
	if last {
		binary.LittleEndian.PutUint32(c.hdrBuf[:], 0)
		copy(dst[n:], c.hdrBuf[:])
		n += 4
	}
	return n, nil
}

// Remaining reports how many segment bytes are still unconsumed.
func (c *CCtx) Remaining() int {
	return c.segmentLen - c.consumed
}

// encodeLZ4Sequences greedily token-encodes buf[start:end] into dst using m,
// which must already be positioned at start (via Reset+Advance or a prior
// call's Advance to end) and limited to end (via SetLimit). It is the one
// token-encoding loop shared by CCtx (called once per output block, so a
// segment can span several size-prefixed blocks without losing
// match-finder state between them) and V2Block.CompressToBuffer in
// improved_block.go (called once over the whole input).
func encodeLZ4Sequences(buf []byte, m *matcher.LZ4XMatcher, start, end int, dst []byte) int {
	dstPos := 0
	srcPos := start
	lastLiteral := start

	for !m.End() {
		offset, matchLen := m.FindBestMatch()
		if matchLen < 4 {
			m.Advance(1)
			srcPos++
			continue
		}

		literalLen := srcPos - lastLiteral
		literalLenCode := min(literalLen, 15)
		matchLenCode := min(matchLen-4, 15)

		dst[dstPos] = byte(literalLenCode<<4 | matchLenCode)
		dstPos++

		if literalLen >= 15 {
			remaining := literalLen - 15
			for remaining >= 255 {
				dst[dstPos] = 255
				dstPos++
				remaining -= 255
			}
			dst[dstPos] = byte(remaining)
			dstPos++
		}

		copy(dst[dstPos:], buf[lastLiteral:srcPos])
		dstPos += literalLen

		dst[dstPos] = byte(offset)
		dst[dstPos+1] = byte(offset >> 8)
		dstPos += 2

		if matchLen-4 >= 15 {
			remaining := matchLen - 4 - 15
			for remaining >= 255 {
				dst[dstPos] = 255
				dstPos++
				remaining -= 255
			}
			dst[dstPos] = byte(remaining)
			dstPos++
		}

		srcPos += matchLen
		lastLiteral = srcPos
		m.Advance(matchLen)
	}

	if lastLiteral < end {
		literalLen := end - lastLiteral
		literalLenCode := min(literalLen, 15)
		dst[dstPos] = byte(literalLenCode << 4)
		dstPos++

		if literalLen >= 15 {
			remaining := literalLen - 15
			for remaining >= 255 {
				dst[dstPos] = 255
				dstPos++
				remaining -= 255
			}
			dst[dstPos] = byte(remaining)
			dstPos++
		}

		copy(dst[dstPos:], buf[lastLiteral:end])
		dstPos += literalLen
	}

	m.Advance(end - m.Current())
	return dstPos
}
