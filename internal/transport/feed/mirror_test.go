package feed

import (
	"testing"

	"voxelstream.ai/internal/stream/upload"
	"voxelstream.ai/internal/voxel/mathx"
	"voxelstream.ai/internal/voxel/volume"
)

type slab []byte

func (s slab) Bytes() []byte          { return s }
func (s slab) Occupied(c [3]int) bool { return false }

func encodedBatch(t *testing.T, withSlot1 bool) []upload.Frame {
	t.Helper()
	enc, err := upload.NewEncoder(upload.Options{Mode: upload.Dense, ChunkSide: 8, AtlasWidth: 4})
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	defer enc.Close()
	var frames []upload.Frame
	f, _, err := enc.Encode(0, mathx.Vec3i{}, slab{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	frames = append(frames, f)
	if withSlot1 {
		f, _, _ = enc.Encode(1, mathx.Vec3i{X: 1}, slab{5, 6})
		frames = append(frames, f)
	}
	m := volume.NewFilled[uint16](params.MapSide, 0xFFFF)
	_ = m.Set([3]int{2, 2, 2}, 0)
	_ = m.Set([3]int{3, 2, 2}, 1)
	return append(frames, enc.EncodeIndexMap(mathx.Vec3i{}, m))
}

func TestMirrorFollowsFeed(t *testing.T) {
	s, url := newTestServer(t, Options{})
	s.Publish(encodedBatch(t, true))

	conn := dial(t, url)
	m := NewMirror()
	// dial consumed HELLO; feed it back so the mirror has params.
	hello := []byte(`{"type":"HELLO","protocol_version":"0.1","params":{"chunk_side":8,"slots":33,"map_side":5}}`)
	if err := m.Apply(hello); err != nil {
		t.Fatalf("hello: %v", err)
	}
	for i := 0; i < 3; i++ {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if err := m.Apply(msg); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	if m.Resident() != 2 {
		t.Fatalf("resident = %d", m.Resident())
	}
	if s, ok := m.Lookup([3]int{1, 0, 0}); !ok || s != 1 {
		t.Fatalf("lookup +x = %d, %v", s, ok)
	}
	if _, ok := m.Lookup([3]int{0, 1, 0}); ok {
		t.Fatalf("empty cell resolved")
	}
	if b, _ := m.Slot(0); string(b) != "\x01\x02\x03\x04" {
		t.Fatalf("slot 0 payload %v", b)
	}
}

func TestMirrorRejectsDanglingIndexMap(t *testing.T) {
	m := NewMirror()
	if err := m.Apply([]byte(`{"type":"HELLO","protocol_version":"0.1","params":{"slots":33,"map_side":5}}`)); err != nil {
		t.Fatalf("hello: %v", err)
	}
	for _, f := range encodedBatch(t, false) {
		err := m.applyFrame(frameMsg(1, f))
		if f.Kind == upload.KindIndexMap && err == nil {
			t.Fatalf("index map pointing at slot 1 accepted before its content")
		}
		if f.Kind == upload.KindChunk && err != nil {
			t.Fatalf("chunk: %v", err)
		}
	}
}

func TestMirrorRequiresHello(t *testing.T) {
	if err := NewMirror().Apply([]byte(`{"type":"FRAME"}`)); err == nil {
		t.Fatalf("FRAME before HELLO accepted")
	}
}
