package compress

import "errors"

// ErrCorruptBlock indicates a compressed block could not be parsed.
var ErrCorruptBlock = errors.New("corrupt compressed block")

// decodeLZ4Sequences reverses the token stream written by
// encodeLZ4Sequences/(*V2Block).CompressToBuffer: a sequence of
// [token][literal-length extension][literals][offset][match-length
// extension] groups, with the final sequence in a block omitting the
// offset/match part entirely. This is the decoder half of the block codec
// collaborator described in SPEC_FULL.md §4.3a; it is a plain
// implementation of the standard LZ4 block format, not a novel one.
//
// dst[:start] is prior window content already decoded (earlier blocks of
// the same frame); a match offset may reach back into it exactly as a
// linked-block LZ4 frame allows, since dstPos begins at start rather than
// 0. Passing start=0 recovers the independent-block case.
func decodeLZ4Sequences(src []byte, dst []byte, start int) ([]byte, error) {
	srcPos, dstPos := 0, start

	readExtra := func(base int) (int, error) {
		n := base
		for {
			if srcPos >= len(src) {
				return 0, ErrCorruptBlock
			}
			b := src[srcPos]
			srcPos++
			n += int(b)
			if b != 255 {
				break
			}
		}
		return n, nil
	}

	for srcPos < len(src) {
		token := src[srcPos]
		srcPos++

		litLen := int(token >> 4)
		if litLen == 15 {
			var err error
			litLen, err = readExtra(15)
			if err != nil {
				return nil, err
			}
		}

		if srcPos+litLen > len(src) {
			return nil, ErrCorruptBlock
		}
		if dstPos+litLen > len(dst) {
			grown := make([]byte, (dstPos+litLen)*2)
			copy(grown, dst[:dstPos])
			dst = grown
		}
		copy(dst[dstPos:], src[srcPos:srcPos+litLen])
		srcPos += litLen
		dstPos += litLen

		if srcPos >= len(src) {
			break // final sequence: literals only, no match part
		}

		if srcPos+2 > len(src) {
			return nil, ErrCorruptBlock
		}
		offset := int(src[srcPos]) | int(src[srcPos+1])<<8
		srcPos += 2
		if offset <= 0 || offset > dstPos {
			return nil, ErrCorruptBlock
		}

		matchLen := int(token&0xF) + MinMatch
		if token&0xF == 15 {
			var err error
			matchLen, err = readExtra(15 + MinMatch)
			if err != nil {
				return nil, err
			}
		}

		if dstPos+matchLen > len(dst) {
			grown := make([]byte, (dstPos+matchLen)*2)
			copy(grown, dst[:dstPos])
			dst = grown
		}
		matchPos := dstPos - offset
		for i := 0; i < matchLen; i++ {
			dst[dstPos] = dst[matchPos]
			dstPos++
			matchPos++
		}
	}

	return dst[:dstPos], nil
}
