package mtz4

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"
)

// Helper functions for generating test data
func generateRandomData(size int) []byte {
	data := make([]byte, size)
	rand.Read(data)
	return data
}

func generateCompressibleData(size int) []byte {
	// Create data with a repeating pattern for high compressibility
	data := make([]byte, size)
	pattern := []byte("abcdefghijklmnopqrstuvwxyz0123456789")

	for i := 0; i < size; i += len(pattern) {
		n := copy(data[i:], pattern)
		if n < len(pattern) {
			break
		}
	}

	return data
}

// Test CompressBlock function
func TestCompressBlock(t *testing.T) {
	tests := []struct {
		name         string
		inputSize    int
		compressible bool
		preAllocBuf  bool
	}{
		{"Small random data, nil buffer", 1024, false, false},
		{"Small compressible data, nil buffer", 1024, true, false},
		{"Medium random data, nil buffer", 64 * 1024, false, false},
		{"Medium compressible data, nil buffer", 64 * 1024, true, false},
		{"Small random data, pre-allocated buffer", 1024, false, true},
		{"Small compressible data, pre-allocated buffer", 1024, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var input []byte
			if tt.compressible {
				input = generateCompressibleData(tt.inputSize)
			} else {
				input = generateRandomData(tt.inputSize)
			}

			var buf []byte
			if tt.preAllocBuf {
				// Allocate a buffer large enough for the worst case
				buf = make([]byte, tt.inputSize+(tt.inputSize/255)+16)
			}

			compressed, err := CompressBlock(input, buf)
			if err != nil {
				t.Fatalf("CompressBlock() error = %v", err)
			}

			if compressed == nil {
				t.Errorf("CompressBlock() returned nil buffer")
			}

			// For compressible data, compression should reduce size
			if tt.compressible && tt.inputSize > 100 {
				compressionRatio := float64(len(compressed)) / float64(len(input))
				t.Logf("Compression ratio: %.2f", compressionRatio)

				if compressionRatio > 0.9 {
					t.Logf("Warning: Compression ratio %.2f is higher than expected for compressible data", compressionRatio)
				}
			}

			// Verify the compressed data can be decompressed back to the original
			decompressed, err := DecompressBlock(compressed, nil, tt.inputSize)
			if err != nil {
				t.Fatalf("DecompressBlock() error = %v", err)
			}

			if !bytes.Equal(decompressed, input) {
				t.Errorf("Decompressed data does not match original")
			}
		})
	}
}

// Test CompressBlockLevel function
func TestCompressBlockLevel(t *testing.T) {
	inputSize := 64 * 1024
	input := generateCompressibleData(inputSize)

	// Test with different compression levels
	levels := []int{1, 6, 12}

	for _, level := range levels {
		t.Run("Level "+string(rune('0'+level)), func(t *testing.T) {
			compressed, err := CompressBlockLevel(input, nil, level)
			if err != nil {
				t.Fatalf("CompressBlockLevel(%d) error = %v", level, err)
			}

			if compressed == nil {
				t.Errorf("CompressBlockLevel(%d) returned nil buffer", level)
			}

			// Verify the compressed data can be decompressed
			decompressed, err := DecompressBlock(compressed, nil, inputSize)
			if err != nil {
				t.Fatalf("DecompressBlock() error = %v", err)
			}

			if !bytes.Equal(decompressed, input) {
				t.Errorf("Decompressed data does not match original for level %d", level)
			}
		})
	}
}

// Test DecompressBlock function
func TestDecompressBlock(t *testing.T) {
	inputSize := 16 * 1024
	input := generateCompressibleData(inputSize)

	// Compress the data first
	compressed, err := CompressBlock(input, nil)
	if err != nil {
		t.Fatalf("CompressBlock() error = %v", err)
	}

	tests := []struct {
		name      string
		dst       []byte
		maxSize   int
		wantError bool
	}{
		{"Nil destination, zero maxSize", nil, 0, false},
		{"Nil destination, specific maxSize", nil, inputSize, false},
		{"Pre-allocated destination", make([]byte, inputSize), inputSize, false},
		{"Small pre-allocated destination", make([]byte, 1024), inputSize, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decompressed, err := DecompressBlock(compressed, tt.dst, tt.maxSize)
			if tt.wantError {
				if err == nil {
					t.Errorf("DecompressBlock() error = nil, wantError = true")
				}
			} else {
				if err != nil {
					t.Errorf("DecompressBlock() error = %v", err)
				}

				if !bytes.Equal(decompressed, input) {
					t.Errorf("Decompressed data does not match original")
				}
			}
		})
	}
}

// Test NewReader and Reader functionality
func TestReader(t *testing.T) {
	// Prepare test data
	testData := "This is test data for the LZ4 Reader."

	// Compress the data
	var buf bytes.Buffer
	w := NewWriter(&buf)
	_, err := io.WriteString(w, testData)
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	err = w.Close()
	if err != nil {
		t.Fatalf("Close error: %v", err)
	}

	compressed := buf.Bytes()

	// Test NewReader
	r := NewReader(bytes.NewReader(compressed))

	// Read and verify the data
	var result bytes.Buffer
	_, err = io.Copy(&result, r)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}

	if result.String() != testData {
		t.Errorf("Read data doesn't match original")
		t.Errorf("Got: %q", result.String())
		t.Errorf("Want: %q", testData)
	}
}

// Test NewWriter, NewWriterLevel, and Writer functionality
func TestWriter(t *testing.T) {
	tests := []struct {
		name         string
		useLevel     bool
		level        int
		inputSize    int
		compressible bool
	}{
		{"Default level, small random data", false, 0, 1024, false},
		{"Default level, small compressible data", false, 0, 1024, true},
		{"Fast level, medium data", true, 3, 16 * 1024, true},
		{"High level, medium data", true, 9, 16 * 1024, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Generate input data
			var input []byte
			if tt.compressible {
				input = generateCompressibleData(tt.inputSize)
			} else {
				input = generateRandomData(tt.inputSize)
			}

			// Create writer
			var buf bytes.Buffer
			var w *Writer

			if tt.useLevel {
				w = NewWriterLevel(&buf, tt.level)
			} else {
				w = NewWriter(&buf)
			}

			// Write data
			n, err := w.Write(input)
			if err != nil {
				t.Fatalf("Write error: %v", err)
			}
			if n != len(input) {
				t.Errorf("Write returned %d, want %d", n, len(input))
			}

			// Close to flush data
			err = w.Close()
			if err != nil {
				t.Fatalf("Close error: %v", err)
			}

			// Verify output is not empty
			if buf.Len() == 0 {
				t.Errorf("Output buffer is empty")
			}

			// Verify we can read back the data
			r := NewReader(bytes.NewReader(buf.Bytes()))
			var result bytes.Buffer
			_, err = io.Copy(&result, r)
			if err != nil {
				t.Fatalf("Read error: %v", err)
			}

			if !bytes.Equal(result.Bytes(), input) {
				t.Errorf("Decompressed data does not match original")
			}
		})
	}
}

// Test Writer Reset functionality
func TestWriterReset(t *testing.T) {
	// Create initial buffer and writer
	var buf1 bytes.Buffer
	w := NewWriter(&buf1)

	// Write and close
	_, err := io.WriteString(w, "data1")
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	err = w.Close()
	if err != nil {
		t.Fatalf("Close error: %v", err)
	}

	// Reset with new buffer
	var buf2 bytes.Buffer
	w.Reset(&buf2)

	// Write and close again
	_, err = io.WriteString(w, "data2")
	if err != nil {
		t.Fatalf("Write after Reset error: %v", err)
	}
	err = w.Close()
	if err != nil {
		t.Fatalf("Close after Reset error: %v", err)
	}

	// Verify both outputs can be read correctly
	r1 := NewReader(bytes.NewReader(buf1.Bytes()))
	var result1 bytes.Buffer
	_, err = io.Copy(&result1, r1)
	if err != nil {
		t.Fatalf("Read error on first buffer: %v", err)
	}
	if result1.String() != "data1" {
		t.Errorf("First buffer data mismatch")
	}

	r2 := NewReader(bytes.NewReader(buf2.Bytes()))
	var result2 bytes.Buffer
	_, err = io.Copy(&result2, r2)
	if err != nil {
		t.Fatalf("Read error on second buffer: %v", err)
	}
	if result2.String() != "data2" {
		t.Errorf("Second buffer data mismatch")
	}
}

// Test streaming compression and decompression with large data
func TestStreamingLargeData(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping large data test in short mode")
	}

	// Generate large test data (1MB)
	size := 1 * 1024 * 1024
	testData := generateCompressibleData(size)

	// Compress using streaming API
	var buf bytes.Buffer
	w := NewWriter(&buf)

	// Write in chunks to test multiple Write calls
	chunkSize := 64 * 1024
	for i := 0; i < len(testData); i += chunkSize {
		end := i + chunkSize
		if end > len(testData) {
			end = len(testData)
		}

		_, err := w.Write(testData[i:end])
		if err != nil {
			t.Fatalf("Write error at chunk %d: %v", i/chunkSize, err)
		}
	}

	err := w.Close()
	if err != nil {
		t.Fatalf("Close error: %v", err)
	}

	// Report compression stats
	compressed := buf.Bytes()
	compressionRatio := float64(len(compressed)) / float64(len(testData))
	t.Logf("Original size: %d, Compressed size: %d, Ratio: %.2f%%",
		len(testData), len(compressed), compressionRatio*100)

	// Decompress
	r := NewReader(bytes.NewReader(compressed))
	result := make([]byte, 0, size)
	resultBuf := bytes.NewBuffer(result)

	// Read in chunks
	buffer := make([]byte, 32*1024)
	for {
		n, err := r.Read(buffer)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read error: %v", err)
		}

		resultBuf.Write(buffer[:n])
	}

	// Verify
	if !bytes.Equal(resultBuf.Bytes(), testData) {
		t.Errorf("Decompressed data does not match original")
	}
}
