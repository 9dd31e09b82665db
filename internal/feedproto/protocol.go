// Package feedproto defines the JSON messages of the chunk feed websocket.
package feedproto

import "voxelstream.ai/internal/stream/upload"

// Version is the feed protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeHello     = "HELLO"
	TypeFrame     = "FRAME"
)

// Client -> Server. Must be the first message on the connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// StreamParams tells a consumer how to size its atlas and index map.
type StreamParams struct {
	ChunkSide  int    `json:"chunk_side"`
	Radii      [3]int `json:"radii"`
	Slots      int    `json:"slots"`
	MapSide    int    `json:"map_side"`
	AtlasWidth int    `json:"atlas_width"`
	CellSide   int    `json:"cell_side"`
	Encoding   string `json:"encoding"`
	TickRateHz int    `json:"tick_rate_hz"`
}

// HTTP response for GET /feed/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string       `json:"protocol_version"`
	Seq             uint64       `json:"seq"`
	Params          StreamParams `json:"params"`
}

// Server -> Client. First message after a valid SUBSCRIBE.
type HelloMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	SessionID       string       `json:"session_id"`
	Params          StreamParams `json:"params"`
}

// Server -> Client. Seq is the publish batch the frame belongs to; replayed
// frames carry the batch they were first published in.
type FrameMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Seq             uint64       `json:"seq"`
	Frame           upload.Frame `json:"frame"`
}
