package feed

import (
	"encoding/json"
	"fmt"

	"voxelstream.ai/internal/feedproto"
	"voxelstream.ai/internal/stream/upload"
	"voxelstream.ai/internal/voxel/volume"
)

// Mirror is the consumer half of the feed: it replays messages into a
// local copy of the atlas and index map and checks that every index map
// only references slots whose content has arrived.
type Mirror struct {
	params feedproto.StreamParams
	hello  bool
	seq    uint64

	slots    map[int][]byte
	indexMap []uint16
	anchor   [3]int
}

func NewMirror() *Mirror {
	return &Mirror{slots: map[int][]byte{}}
}

func (m *Mirror) Params() feedproto.StreamParams { return m.params }
func (m *Mirror) Seq() uint64                    { return m.seq }
func (m *Mirror) Resident() int                  { return len(m.slots) }
func (m *Mirror) Anchor() [3]int                 { return m.anchor }

// Slot returns the decoded payload currently held for slot.
func (m *Mirror) Slot(slot int) ([]byte, bool) {
	b, ok := m.slots[slot]
	return b, ok
}

// Lookup resolves a chunk offset from the anchor through the index map.
func (m *Mirror) Lookup(rel [3]int) (int, bool) {
	side := m.params.MapSide
	if m.indexMap == nil || side == 0 {
		return 0, false
	}
	c := [3]int{rel[0] + side/2, rel[1] + side/2, rel[2] + side/2}
	if !volume.InCube(c, side) {
		return 0, false
	}
	s := m.indexMap[volume.Index(c, side)]
	if s == 0xFFFF {
		return 0, false
	}
	return int(s), true
}

// Apply consumes one raw feed message.
func (m *Mirror) Apply(msg []byte) error {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &base); err != nil {
		return err
	}
	switch base.Type {
	case feedproto.TypeHello:
		var h feedproto.HelloMsg
		if err := json.Unmarshal(msg, &h); err != nil {
			return err
		}
		if h.ProtocolVersion != feedproto.Version {
			return fmt.Errorf("feed protocol %q, want %q", h.ProtocolVersion, feedproto.Version)
		}
		m.params = h.Params
		m.hello = true
		return nil
	case feedproto.TypeFrame:
		if !m.hello {
			return fmt.Errorf("FRAME before HELLO")
		}
		var f feedproto.FrameMsg
		if err := json.Unmarshal(msg, &f); err != nil {
			return err
		}
		return m.applyFrame(f)
	default:
		return fmt.Errorf("unknown message type %q", base.Type)
	}
}

func (m *Mirror) applyFrame(msg feedproto.FrameMsg) error {
	raw, err := upload.Decode(msg.Frame)
	if err != nil {
		return err
	}
	if msg.Seq > m.seq {
		m.seq = msg.Seq
	}
	f := msg.Frame
	if f.Kind != upload.KindIndexMap {
		if f.Slot < 0 || f.Slot >= m.params.Slots {
			return fmt.Errorf("chunk frame for slot %d outside [0,%d)", f.Slot, m.params.Slots)
		}
		m.slots[f.Slot] = raw
		return nil
	}

	if f.Side != m.params.MapSide {
		return fmt.Errorf("index map side %d, want %d", f.Side, m.params.MapSide)
	}
	cells := upload.Cells(raw)
	for i, s := range cells {
		if s == 0xFFFF {
			continue
		}
		if _, ok := m.slots[int(s)]; !ok {
			return fmt.Errorf("index map cell %v references slot %d with no content", volume.Coords(i, f.Side), s)
		}
	}
	m.indexMap = cells
	m.anchor = f.World
	return nil
}
