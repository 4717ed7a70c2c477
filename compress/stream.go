package compress

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
)

const (
	// DefaultChunkSize is the default size of chunks for streaming
	DefaultChunkSize = 256 * 1024 // 256KB

	// Magic number for LZ4 frame detection
	frameMagic uint32 = 0x184D2204

	// Maximum size for frame header
	maxHeaderSize = 20

	// uncompressedBlockFlag marks a stored (not compressed) block in the
	// 4-byte block-size word, mirroring the real LZ4 frame format.
	uncompressedBlockFlag uint32 = 0x80000000
)

// Frame descriptor flag bits (FLG byte), shared by the single-threaded
// Writer/Reader here and by the driver package's multi-threaded workers.
const (
	flagDictID            byte = 0x01
	flagContentChecksum   byte = 0x04
	flagContentSize       byte = 0x08
	flagBlockChecksum     byte = 0x10
	flagBlockIndependence byte = 0x20
)

var (
	// ErrInvalidFrame indicates an invalid frame format
	ErrInvalidFrame = errors.New("invalid LZ4 frame format")
)

// Reader is an io.Reader that decompresses from an LZ4 stream
type Reader struct {
	r        io.Reader
	sizeBuf  [4]byte
	blockBuf []byte
	current  []byte

	// window accumulates every byte decoded so far in the current frame.
	// Blocks may be linked (see cctx.go's writeHeaderIfNeeded): a match
	// offset can reach past the block boundary into content produced by an
	// earlier block, so decoding must resume from the same running
	// position rather than a fresh buffer per block.
	window []byte

	header     frameHeader
	readHeader bool
	reachedEof bool
	mu         sync.Mutex
}

// Writer is an io.WriteCloser that compresses to an LZ4 stream
type Writer struct {
	w           io.Writer
	level       CompressionLevel
	useV2       bool
	blockSize   int
	contentSize uint64
	closed      bool
	header      frameHeader
	hdrBuf      [4]byte
	buf         []byte
	bufUsed     int
	written     uint64
	wroteHdr    bool
	mu          sync.Mutex
}

// WriterOptions configures NewWriterWithOptions.
type WriterOptions struct {
	// Level is the compression level each flushed block is encoded at.
	Level CompressionLevel
	// UseV2 encodes every flushed block with CompressBlockV2Level instead
	// of CompressBlockLevel. Both run the same LZ4X matcher
	// (CompressBlockLevel goes through NewV2Block), so the output is the same.
	UseV2 bool
}

// frameHeader contains LZ4 frame information
type frameHeader struct {
	blockIndependence bool
	blockChecksum     bool
	contentSize       bool
	contentChecksum   bool
	dictID            bool
	blockSizeCode     uint8
}

// NewReader returns a new Reader that decompresses from r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read implements io.Reader
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.readHeader {
		if err := r.readFrameHeader(); err != nil {
			return 0, err
		}
		r.readHeader = true
	}

	for len(r.current) == 0 {
		if r.reachedEof {
			return 0, io.EOF
		}
		if err := r.readBlock(); err != nil {
			return 0, err
		}
	}

	n := copy(p, r.current)
	r.current = r.current[n:]
	return n, nil
}

// readBlock reads one size-prefixed block; a zero size word is the frame
// terminator.
func (r *Reader) readBlock() error {
	if _, err := io.ReadFull(r.r, r.sizeBuf[:]); err != nil {
		return err
	}

	word := binary.LittleEndian.Uint32(r.sizeBuf[:])
	if word == 0 {
		r.reachedEof = true
		return nil
	}

	stored := word&uncompressedBlockFlag != 0
	size := int(word &^ uncompressedBlockFlag)

	if cap(r.blockBuf) < size {
		r.blockBuf = make([]byte, size)
	}
	block := r.blockBuf[:size]
	if _, err := io.ReadFull(r.r, block); err != nil {
		return err
	}

	start := len(r.window)
	if stored {
		r.window = append(r.window, block...)
		r.current = r.window[start:]
		return nil
	}

	maxSize := size*8 + 64
	r.window = append(r.window, make([]byte, maxSize)...)
	decoded, err := decodeLZ4Sequences(block, r.window, start)
	if err != nil {
		return err
	}
	r.window = decoded
	r.current = r.window[start:]
	return nil
}

// readFrameHeader reads and validates the LZ4 frame header
func (r *Reader) readFrameHeader() error {
	var magicBuf [4]byte
	if _, err := io.ReadFull(r.r, magicBuf[:]); err != nil {
		return err
	}

	magic := binary.LittleEndian.Uint32(magicBuf[:])
	if magic != frameMagic {
		return ErrInvalidFrame
	}

	var descBuf [3]byte
	if _, err := io.ReadFull(r.r, descBuf[:]); err != nil {
		return err
	}

	flg := descBuf[0]
	bd := descBuf[1]

	r.header.blockIndependence = flg&flagBlockIndependence != 0
	r.header.blockChecksum = flg&flagBlockChecksum != 0
	r.header.contentSize = flg&flagContentSize != 0
	r.header.contentChecksum = flg&flagContentChecksum != 0
	r.header.dictID = flg&flagDictID != 0
	r.header.blockSizeCode = (bd >> 4) & 0x7

	// descBuf[2] is the header checksum byte; not verified here since the
	// frame is produced by this package's own Writer or the driver package's
	// multi-threaded CCtx.

	return nil
}

// NewWriter returns a new Writer that compresses to w
func NewWriter(w io.Writer) *Writer {
	return NewWriterLevel(w, DefaultLevel)
}

// NewWriterLevel returns a new Writer that compresses to w with the given level
func NewWriterLevel(w io.Writer, level CompressionLevel) *Writer {
	return NewWriterWithOptions(w, WriterOptions{Level: level})
}

// NewWriterWithOptions returns a new Writer that compresses to w per options.
func NewWriterWithOptions(w io.Writer, options WriterOptions) *Writer {
	return &Writer{
		w:         w,
		level:     options.Level,
		useV2:     options.UseV2,
		blockSize: DefaultChunkSize,
		buf:       make([]byte, DefaultChunkSize),
		header: frameHeader{
			blockIndependence: true,
			blockSizeCode:     7, // 4MB
		},
	}
}

// Write implements io.Writer
func (z *Writer) Write(p []byte) (int, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.closed {
		return 0, errors.New("write to closed writer")
	}

	// Write the frame header once, before the frame's first data
	if !z.wroteHdr {
		if err := z.writeFrameHeader(); err != nil {
			return 0, err
		}
		z.wroteHdr = true
	}

	total := 0
	for len(p) > 0 {
		// If the buffer is full, flush it
		if z.bufUsed == len(z.buf) {
			if err := z.flush(); err != nil {
				return total, err
			}
		}

		// Copy data to the buffer
		n := copy(z.buf[z.bufUsed:], p)
		z.bufUsed += n
		total += n
		p = p[n:]
	}

	return total, nil
}

// writeFrameHeader writes the LZ4 frame header
func (z *Writer) writeFrameHeader() error {
	// Magic number
	binary.LittleEndian.PutUint32(z.hdrBuf[:], frameMagic)
	if _, err := z.w.Write(z.hdrBuf[:]); err != nil {
		return err
	}

	// Frame descriptor
	var flg byte
	if z.header.blockIndependence {
		flg |= flagBlockIndependence
	}
	if z.header.blockChecksum {
		flg |= flagBlockChecksum
	}
	if z.header.contentSize {
		flg |= flagContentSize
	}
	if z.header.contentChecksum {
		flg |= flagContentChecksum
	}
	if z.header.dictID {
		flg |= flagDictID
	}

	bd := z.header.blockSizeCode << 4
	hc := headerChecksum(flg, bd)

	if _, err := z.w.Write([]byte{flg, bd, hc}); err != nil {
		return err
	}

	return nil
}

// headerChecksum computes the single-byte frame descriptor checksum shared
// by the single-threaded Writer and the driver package's frame headers.
func headerChecksum(flg, bd byte) byte {
	return (flg >> 2) + (flg << 6) + (bd >> 2) + (bd << 6)
}

// flush compresses and writes a block
func (z *Writer) flush() error {
	if z.bufUsed == 0 {
		return nil
	}

	// Buffers shorter than MinBlockSize are below what the block encoder
	// accepts, so they are written as stored blocks.
	stored := z.bufUsed < MinBlockSize
	var compressed []byte
	if !stored {
		var err error
		if z.useV2 {
			compressed, err = CompressBlockV2Level(z.buf[:z.bufUsed], nil, z.level)
		} else {
			compressed, err = CompressBlockLevel(z.buf[:z.bufUsed], nil, z.level)
		}
		if err != nil {
			return err
		}
		stored = len(compressed) >= z.bufUsed
	}

	if stored {
		word := uint32(z.bufUsed) | uncompressedBlockFlag
		binary.LittleEndian.PutUint32(z.hdrBuf[:], word)
		if _, err := z.w.Write(z.hdrBuf[:]); err != nil {
			return err
		}
		if _, err := z.w.Write(z.buf[:z.bufUsed]); err != nil {
			return err
		}
	} else {
		binary.LittleEndian.PutUint32(z.hdrBuf[:], uint32(len(compressed)))
		if _, err := z.w.Write(z.hdrBuf[:]); err != nil {
			return err
		}
		if _, err := z.w.Write(compressed); err != nil {
			return err
		}
	}

	z.written += uint64(z.bufUsed)
	z.bufUsed = 0

	return nil
}

// Close closes the Writer, flushing any unwritten data to the underlying io.Writer
func (z *Writer) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.closed {
		return nil
	}

	z.closed = true

	// A frame closed without any data still gets its header
	if !z.wroteHdr {
		if err := z.writeFrameHeader(); err != nil {
			return err
		}
		z.wroteHdr = true
	}

	// Flush any remaining data
	if err := z.flush(); err != nil {
		return err
	}

	// Write end marker (empty block)
	binary.LittleEndian.PutUint32(z.hdrBuf[:], 0)
	_, err := z.w.Write(z.hdrBuf[:])

	return err
}

// Reset discards the Writer's state and makes it equivalent to the result of NewWriter
func (z *Writer) Reset(w io.Writer) {
	z.mu.Lock()
	defer z.mu.Unlock()

	z.w = w
	z.bufUsed = 0
	z.written = 0
	z.wroteHdr = false
	z.closed = false
}
