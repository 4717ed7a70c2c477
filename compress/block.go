// Package compress provides LZ4HC compression algorithms.
package compress

import (
	"errors"
)

const (
	// MinBlockSize is the minimum size of a block
	MinBlockSize = 16
	// MaxBlockSize is the maximum size of a block
	MaxBlockSize = 4 << 20 // 4MB
	// MinMatch is the shortest back-reference the block codec will emit;
	// decodeLZ4Sequences uses it, and matcher.LZ4XMatcher keeps its own
	// local constant of the same value.
	MinMatch = 4
)

// CompressionLevel defines how much effort to spend on compression
type CompressionLevel int

const (
	// DefaultLevel is the default compression level (6)
	DefaultLevel CompressionLevel = 6
	// FastLevel optimizes for speed over compression ratio
	FastLevel CompressionLevel = 3
	// MaxLevel provides the highest compression at the cost of speed
	MaxLevel CompressionLevel = 12
)

var (
	// ErrInvalidBlockSize indicates the block is too small or too large
	ErrInvalidBlockSize = errors.New("invalid block size")
	// ErrInvalidCompressionLevel indicates the compression level is outside valid range
	ErrInvalidCompressionLevel = errors.New("invalid compression level")
	// ErrParameterUnsupported indicates an unknown parameter key was set
	ErrParameterUnsupported = errors.New("unsupported parameter")
)

// Block represents a compressible data block with a specific compression level
type Block[T ~[]byte] struct {
	input   T
	level   CompressionLevel
	options BlockOptions
}

// BlockOptions provides configuration for block compression
type BlockOptions struct {
	// PreallocateBuffer preallocates an output buffer of a given size
	PreallocateBuffer int
	// SkipChecksums skips calculating checksums
	SkipChecksums bool
}

// NewBlock creates a new block from input with default options
func NewBlock[T ~[]byte](input T, level CompressionLevel) (*Block[T], error) {
	return NewBlockWithOptions(input, level, BlockOptions{})
}

// NewBlockWithOptions creates a new block with specific options
func NewBlockWithOptions[T ~[]byte](input T, level CompressionLevel, options BlockOptions) (*Block[T], error) {
	if len(input) < MinBlockSize || len(input) > MaxBlockSize {
		return nil, ErrInvalidBlockSize
	}

	if level < 0 || level > MaxLevel {
		return nil, ErrInvalidCompressionLevel
	}

	return &Block[T]{
		input:   input,
		level:   level,
		options: options,
	}, nil
}

// CompressToBuffer compresses the block data to the provided buffer using
// the LZ4X matcher (see improved_block.go) at every level; the matcher
// scales its search effort with the level.
func (b *Block[T]) CompressToBuffer(dst []byte) ([]byte, error) {
	v2, err := NewV2Block([]byte(b.input), b.level, b.options)
	if err != nil {
		return nil, err
	}
	return v2.CompressToBuffer(dst)
}

// CompressBlock compresses input using LZ4HC algorithm with default compression level.
// If dst is nil or too small, a new buffer will be allocated.
func CompressBlock(src []byte, dst []byte) ([]byte, error) {
	return CompressBlockLevel(src, dst, DefaultLevel)
}

// CompressBlockLevel compresses input with specified compression level.
// If dst is nil or too small, a new buffer will be allocated.
func CompressBlockLevel(src []byte, dst []byte, level CompressionLevel) ([]byte, error) {
	block, err := NewBlock(src, level)
	if err != nil {
		return nil, err
	}

	// Now actually use the block object for compression
	return block.CompressToBuffer(dst)
}

// DecompressBlock decompresses an LZ4-token-format compressed block (see
// improved_block.go for the matching encoder). If dst is nil or shorter
// than maxSize, a new buffer of maxSize bytes is allocated; the decoder
// grows it further when the block decodes to more than that.
func DecompressBlock(src []byte, dst []byte, maxSize int) ([]byte, error) {
	if len(src) == 0 {
		return nil, errors.New("empty source buffer")
	}

	if maxSize <= 0 {
		maxSize = 64 * 1024 // Default max size if not specified
	}

	if dst == nil || len(dst) < maxSize {
		dst = make([]byte, maxSize)
	}

	return decodeLZ4Sequences(src, dst, 0)
}
