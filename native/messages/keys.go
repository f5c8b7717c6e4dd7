package messages

import "encoding/binary"

// Storage keys are derived deterministically from a fixed namespace plus the
// lane id and nonce. Both chains derive keys for each other's storage when
// verifying proofs, so the derivation must be byte-identical across
// implementations; the layout below is frozen.
var (
	operatingModeKey       = []byte("messages/mode")
	outboundLaneDataPrefix = []byte("messages/out/lane/")
	inboundLaneDataPrefix  = []byte("messages/in/lane/")
	outboundMessagePrefix  = []byte("messages/out/msg/")
)

// OperatingModeKey returns the key of the persisted bridge operating mode.
func OperatingModeKey() []byte {
	return append([]byte(nil), operatingModeKey...)
}

// OutboundLaneDataKey returns the key of the outbound lane record.
func OutboundLaneDataKey(lane LaneID) []byte {
	buf := make([]byte, 0, len(outboundLaneDataPrefix)+len(lane))
	buf = append(buf, outboundLaneDataPrefix...)
	return append(buf, lane[:]...)
}

// InboundLaneDataKey returns the key of the inbound lane record.
func InboundLaneDataKey(lane LaneID) []byte {
	buf := make([]byte, 0, len(inboundLaneDataPrefix)+len(lane))
	buf = append(buf, inboundLaneDataPrefix...)
	return append(buf, lane[:]...)
}

// OutboundMessageKey returns the key of one queued outbound message payload.
// The nonce is encoded big-endian so messages of one lane iterate in nonce
// order.
func OutboundMessageKey(key MessageKey) []byte {
	buf := make([]byte, 0, len(outboundMessagePrefix)+len(key.Lane)+1+8)
	buf = append(buf, outboundMessagePrefix...)
	buf = append(buf, key.Lane[:]...)
	buf = append(buf, '/')
	return binary.BigEndian.AppendUint64(buf, uint64(key.Nonce))
}
