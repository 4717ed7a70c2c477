package driver

import (
	"bytes"
	"testing"

	"github.com/harriteja/mtz4/compress"
)

func drainStream(t *testing.T, d *Driver, src []byte, chunkSize int) []byte {
	t.Helper()

	var out bytes.Buffer
	dst := make([]byte, 1<<20)

	for off := 0; off < len(src); off += chunkSize {
		end := off + chunkSize
		if end > len(src) {
			end = len(src)
		}
		in := &InputBuffer{Src: src[off:end]}
		for len(in.Remaining()) > 0 {
			outBuf := &OutputBuffer{Dst: dst}
			if _, err := d.CompressStream(outBuf, in, OpContinue); err != nil {
				t.Fatalf("CompressStream: %v", err)
			}
			out.Write(dst[:outBuf.Pos])
		}
	}

	for {
		outBuf := &OutputBuffer{Dst: dst}
		remaining, err := d.EndStream(outBuf)
		if err != nil {
			t.Fatalf("EndStream: %v", err)
		}
		out.Write(dst[:outBuf.Pos])
		if remaining == 0 {
			break
		}
	}

	return out.Bytes()
}

func TestCompressStreamMultiWorkerRoundTrips(t *testing.T) {
	d := New(4, 10, 6, compress.Params{Level: compress.DefaultLevel, WindowLog: 10})
	defer d.Close()

	src := compressibleData(3 << 20)
	d.ResetCStream(uint64(len(src)))

	frame := drainStream(t, d, src, 64*1024)
	got := decompressFrame(t, frame)
	if !bytes.Equal(got, src) {
		t.Fatal("streaming round trip mismatch")
	}
}

func TestCompressStreamSingleWorkerDegenerateRoundTrips(t *testing.T) {
	d := New(1, 10, 6, compress.Params{Level: compress.DefaultLevel, WindowLog: 10})
	defer d.Close()

	src := compressibleData(512 * 1024)
	d.ResetCStream(uint64(len(src)))

	frame := drainStream(t, d, src, 32*1024)
	got := decompressFrame(t, frame)
	if !bytes.Equal(got, src) {
		t.Fatal("single-worker streaming round trip mismatch")
	}
}

func TestCompressStreamWithChecksumRoundTrips(t *testing.T) {
	params := compress.Params{Level: compress.DefaultLevel, WindowLog: 10, ChecksumFlag: true}
	d := New(4, 10, 6, params)
	defer d.Close()

	src := compressibleData(2 << 20)
	d.ResetCStream(uint64(len(src)))

	frame := drainStream(t, d, src, 48*1024)
	got := decompressFrame(t, frame)
	if !bytes.Equal(got, src) {
		t.Fatal("streaming round trip with checksum mismatch")
	}
}

func TestCompressStreamSinglePassShortcut(t *testing.T) {
	d := New(4, 10, 6, compress.Params{Level: compress.DefaultLevel, WindowLog: 10})
	defer d.Close()

	src := compressibleData(8 * 1024)
	d.ResetCStream(uint64(len(src)))

	dst := make([]byte, bound(len(src)))
	out := &OutputBuffer{Dst: dst}
	in := &InputBuffer{Src: src}
	if _, err := d.CompressStream(out, in, OpEnd); err != nil {
		t.Fatalf("CompressStream single-pass: %v", err)
	}
	if in.Pos != len(src) {
		t.Fatalf("single-pass shortcut should consume all input, consumed %d of %d", in.Pos, len(src))
	}

	got := decompressFrame(t, dst[:out.Pos])
	if !bytes.Equal(got, src) {
		t.Fatal("single-pass shortcut round trip mismatch")
	}
}

func TestCompressStreamRejectsContinueAfterFrameEnded(t *testing.T) {
	d := New(4, 10, 6, compress.Params{Level: compress.DefaultLevel, WindowLog: 10})
	defer d.Close()

	src := compressibleData(4096)
	d.ResetCStream(uint64(len(src)))
	_ = drainStream(t, d, src, 4096)

	in := &InputBuffer{Src: []byte("more")}
	out := &OutputBuffer{Dst: make([]byte, 64)}
	_, err := d.CompressStream(out, in, OpContinue)
	if err == nil {
		t.Fatal("expected stage_wrong error continuing a stream after its frame ended")
	}
}

func TestResetCStreamAllowsReuseAcrossFrames(t *testing.T) {
	d := New(4, 10, 6, compress.Params{Level: compress.DefaultLevel, WindowLog: 10})
	defer d.Close()

	for i := 0; i < 2; i++ {
		src := compressibleData(256 * 1024)
		d.ResetCStream(uint64(len(src)))
		frame := drainStream(t, d, src, 16*1024)
		got := decompressFrame(t, frame)
		if !bytes.Equal(got, src) {
			t.Fatalf("round %d: streaming round trip mismatch after reset", i)
		}
	}
}

func TestProgressionReflectsConsumedAndProduced(t *testing.T) {
	d := New(4, 10, 6, compress.Params{Level: compress.DefaultLevel, WindowLog: 10})
	defer d.Close()

	src := compressibleData(1 << 20)
	d.ResetCStream(uint64(len(src)))
	frame := drainStream(t, d, src, 64*1024)

	consumed, _, produced := d.Progression()
	if consumed != len(src) {
		t.Fatalf("expected consumed %d, got %d", len(src), consumed)
	}
	if produced != len(frame) {
		t.Fatalf("expected produced %d, got %d", len(frame), produced)
	}
}
