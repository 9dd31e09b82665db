package upload

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"
)

var decoder = mustDecoder()

func mustDecoder() *zstd.Decoder {
	d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic(fmt.Sprintf("upload: zstd decoder: %v", err))
	}
	return d
}

// Decode returns a frame's raw payload after checking length and digest.
func Decode(f Frame) ([]byte, error) {
	raw, err := decoder.DecodeAll(f.Payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decode %s frame for slot %d: %w", f.Kind, f.Slot, err)
	}
	if len(raw) != f.RawLen {
		return nil, fmt.Errorf("decode %s frame for slot %d: got %d bytes want %d", f.Kind, f.Slot, len(raw), f.RawLen)
	}
	if xxh3.Hash(raw) != f.Digest {
		return nil, fmt.Errorf("decode %s frame for slot %d: digest mismatch", f.Kind, f.Slot)
	}
	return raw, nil
}

// Cells reinterprets a raw payload as little-endian uint16 cells.
func Cells(raw []byte) []uint16 {
	out := make([]uint16, len(raw)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	return out
}
