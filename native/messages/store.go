package messages

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"lanebridge/state"
)

// LaneStore is the persistence boundary of the lane core. LanesManager owns
// the mapping from lane ids to the two lane records; lane objects are
// transient views over this store for the duration of one call.
type LaneStore interface {
	OutboundLaneData(lane LaneID) (*OutboundLaneData, error)
	SetOutboundLaneData(lane LaneID, data OutboundLaneData) error
	RemoveOutboundLaneData(lane LaneID) error

	InboundLaneData(lane LaneID) (*InboundLaneData, error)
	SetInboundLaneData(lane LaneID, data InboundLaneData) error
	RemoveInboundLaneData(lane LaneID) error

	SaveMessage(key MessageKey, payload []byte) error
	Message(key MessageKey) ([]byte, bool, error)
	RemoveMessage(key MessageKey) error

	OperatingMode() (OperatingMode, error)
	SetOperatingMode(mode OperatingMode) error

	// ForEachOutboundLane walks every stored outbound lane record in lane id
	// order. Used by the consistency audit.
	ForEachOutboundLane(fn func(lane LaneID, data OutboundLaneData) error) error
}

// Store persists lane records through the RLP-backed state manager.
type Store struct {
	kv *state.Manager
}

// NewStore wraps the given state manager.
func NewStore(kv *state.Manager) *Store {
	return &Store{kv: kv}
}

// OutboundLaneData loads the outbound lane record, nil when absent.
func (s *Store) OutboundLaneData(lane LaneID) (*OutboundLaneData, error) {
	var data OutboundLaneData
	ok, err := s.kv.KVGet(OutboundLaneDataKey(lane), &data)
	if err != nil || !ok {
		return nil, err
	}
	return &data, nil
}

// SetOutboundLaneData stores the outbound lane record.
func (s *Store) SetOutboundLaneData(lane LaneID, data OutboundLaneData) error {
	return s.kv.KVPut(OutboundLaneDataKey(lane), &data)
}

// RemoveOutboundLaneData deletes the outbound lane record.
func (s *Store) RemoveOutboundLaneData(lane LaneID) error {
	return s.kv.KVDelete(OutboundLaneDataKey(lane))
}

// InboundLaneData loads the inbound lane record, nil when absent.
func (s *Store) InboundLaneData(lane LaneID) (*InboundLaneData, error) {
	var data InboundLaneData
	ok, err := s.kv.KVGet(InboundLaneDataKey(lane), &data)
	if err != nil || !ok {
		return nil, err
	}
	return &data, nil
}

// SetInboundLaneData stores the inbound lane record.
func (s *Store) SetInboundLaneData(lane LaneID, data InboundLaneData) error {
	return s.kv.KVPut(InboundLaneDataKey(lane), &data)
}

// RemoveInboundLaneData deletes the inbound lane record.
func (s *Store) RemoveInboundLaneData(lane LaneID) error {
	return s.kv.KVDelete(InboundLaneDataKey(lane))
}

// SaveMessage stores one queued outbound message payload.
func (s *Store) SaveMessage(key MessageKey, payload []byte) error {
	return s.kv.KVPut(OutboundMessageKey(key), payload)
}

// Message loads one queued outbound message payload.
func (s *Store) Message(key MessageKey) ([]byte, bool, error) {
	var payload []byte
	ok, err := s.kv.KVGet(OutboundMessageKey(key), &payload)
	if err != nil || !ok {
		return nil, false, err
	}
	return payload, true, nil
}

// RemoveMessage deletes one queued outbound message payload.
func (s *Store) RemoveMessage(key MessageKey) error {
	return s.kv.KVDelete(OutboundMessageKey(key))
}

// OperatingMode loads the persisted operating mode, ModeNormal when unset.
func (s *Store) OperatingMode() (OperatingMode, error) {
	var mode uint8
	ok, err := s.kv.KVGet(OperatingModeKey(), &mode)
	if err != nil || !ok {
		return ModeNormal, err
	}
	return OperatingMode(mode), nil
}

// SetOperatingMode persists the operating mode.
func (s *Store) SetOperatingMode(mode OperatingMode) error {
	return s.kv.KVPut(OperatingModeKey(), uint8(mode))
}

// ForEachOutboundLane walks every stored outbound lane record.
func (s *Store) ForEachOutboundLane(fn func(lane LaneID, data OutboundLaneData) error) error {
	return s.kv.KVIterate(outboundLaneDataPrefix, func(key, value []byte) error {
		raw := key[len(outboundLaneDataPrefix):]
		if len(raw) != len(LaneID{}) {
			return fmt.Errorf("messages: malformed outbound lane key %x", key)
		}
		var lane LaneID
		copy(lane[:], raw)

		var data OutboundLaneData
		if err := rlp.DecodeBytes(value, &data); err != nil {
			return fmt.Errorf("messages: decode outbound lane %s: %w", lane, err)
		}
		return fn(lane, data)
	})
}
