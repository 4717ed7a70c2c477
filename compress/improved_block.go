package compress

import (
	"github.com/harriteja/mtz4/matcher"
)

const (
	// Maximum size of a literal sequence
	maxLiteralLength = 0xFFFFFF
	// Maximum size of a match sequence
	maxMatchLength = 0xFFFF
)

// V2Block represents an improved LZ4 block with better compression capabilities
type V2Block struct {
	// Input data
	src []byte
	// Compression level
	level CompressionLevel
	// LZ4X matcher
	matcher *matcher.LZ4XMatcher
	// Options
	options BlockOptions
}

// NewV2Block creates a new V2Block with improved compression
func NewV2Block(src []byte, level CompressionLevel, options BlockOptions) (*V2Block, error) {
	if len(src) < MinBlockSize || len(src) > MaxBlockSize {
		return nil, ErrInvalidBlockSize
	}

	if level < 0 || level > MaxLevel {
		return nil, ErrInvalidCompressionLevel
	}

	// Create configuration based on compression level
	config := matcher.LZ4XConfig{
		HashLog:      16,
		WindowSize:   65535,
		MaxAttempts:  8,
		SkipStrength: 1,
	}

	// Adjust settings based on compression level for better performance
	// Higher levels do more thorough searching for matches
	switch {
	case level <= 3:
		config.MaxAttempts = 4
		config.SkipStrength = 1
	case level <= 6:
		config.MaxAttempts = 8
		config.SkipStrength = 2
	case level <= 9:
		config.MaxAttempts = 16
		config.SkipStrength = 2
	default:
		config.MaxAttempts = 32
		config.SkipStrength = 3
	}

	// Create matcher
	lz4xMatcher := matcher.NewLZ4XMatcher(config)
	lz4xMatcher.Reset(src)

	return &V2Block{
		src:     src,
		level:   level,
		matcher: lz4xMatcher,
		options: options,
	}, nil
}

// CompressToBuffer compresses the block data to the provided buffer. The
// token-encoding loop itself lives in cctx.go's encodeLZ4Sequences, shared
// with the multi-threaded driver's per-chunk encoder so the two paths never
// drift apart; this method only owns V2Block's own hash-priming warmup.
func (b *V2Block) CompressToBuffer(dst []byte) ([]byte, error) {
	inputLen := len(b.src)

	worstCaseSize := inputLen + (inputLen / 255) + 16
	if dst == nil || len(dst) < worstCaseSize {
		dst = make([]byte, worstCaseSize)
	}

	// Pre-initialize hash table for better compression
	if b.level >= 4 {
		// Initialize more of the hash table for higher levels
		limit := min(inputLen-4, 512)
		if b.level >= 8 {
			limit = min(inputLen-4, 1024)
		}

		step := 4
		for i := 0; i < limit; i += step {
			b.matcher.InsertHash(i)
		}
	}

	n := encodeLZ4Sequences(b.src, b.matcher, 0, inputLen, dst)
	return dst[:n], nil
}

// CompressBlockV2 compresses the src data using the improved LZ4X algorithm
// with default compression level. It returns the compressed data.
func CompressBlockV2(src []byte, dst []byte) ([]byte, error) {
	return CompressBlockV2Level(src, dst, DefaultLevel)
}

// CompressBlockV2Level compresses the src data using the improved LZ4X algorithm
// with specified compression level. It returns the compressed data.
func CompressBlockV2Level(src []byte, dst []byte, level CompressionLevel) ([]byte, error) {
	// Create a V2Block
	block, err := NewV2Block(src, level, BlockOptions{})
	if err != nil {
		return nil, err
	}

	// Compress the data
	return block.CompressToBuffer(dst)
}

// min returns the smaller of two integers
func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// DecompressBlockV2 decompresses a block of data compressed with LZ4X v0.2
// The implementation is compatible with regular LZ4 decompression
func DecompressBlockV2(src []byte, dst []byte, maxSize int) ([]byte, error) {
	// Reuse the existing decompression code since the format is compatible
	return DecompressBlock(src, dst, maxSize)
}
