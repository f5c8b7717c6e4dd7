package messages

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// MessageNonce identifies a message within one lane direction. Nonces are
// assigned sequentially starting from 1; nonce 0 means "no messages yet".
type MessageNonce uint64

// MaxMessageNonce is the largest assignable nonce.
const MaxMessageNonce = MessageNonce(math.MaxUint64)

// LaneID identifies a bidirectional channel between two bridge endpoints.
type LaneID [32]byte

var laneIDNamespace = []byte("lanebridge/lane/v1")

// NewLaneID derives a lane identifier from a pair of endpoint descriptors.
// The derivation is order-independent: both peers obtain the same id no
// matter which endpoint they pass first. Endpoints are length-prefixed before
// hashing so distinct pairs can never collide by concatenation.
func NewLaneID(a, b []byte) LaneID {
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	buf := make([]byte, 0, len(laneIDNamespace)+len(a)+len(b)+2*binary.MaxVarintLen64)
	buf = append(buf, laneIDNamespace...)
	buf = binary.AppendUvarint(buf, uint64(len(a)))
	buf = append(buf, a...)
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	buf = append(buf, b...)

	var id LaneID
	copy(id[:], ethcrypto.Keccak256(buf))
	return id
}

// Bytes returns the raw lane id bytes.
func (id LaneID) Bytes() []byte { return id[:] }

func (id LaneID) String() string { return hex.EncodeToString(id[:]) }

// ParseLaneID decodes the hex form produced by String.
func ParseLaneID(s string) (LaneID, error) {
	var id LaneID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return LaneID{}, fmt.Errorf("messages: parse lane id: %w", err)
	}
	if len(raw) != len(id) {
		return LaneID{}, fmt.Errorf("messages: lane id must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// RelayerID identifies a relayer account on the bridged chain.
type RelayerID [20]byte

func (r RelayerID) String() string { return hex.EncodeToString(r[:]) }

// LaneState is the lifecycle state shared by both halves of a lane.
type LaneState uint8

const (
	// LaneOpened accepts new sends and receives.
	LaneOpened LaneState = iota
	// LaneClosed is terminal: no new sends or receives, but stored data may
	// still be drained and confirmed.
	LaneClosed
)

func (s LaneState) String() string {
	switch s {
	case LaneOpened:
		return "opened"
	case LaneClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// OperatingMode gates what the bridge currently accepts.
type OperatingMode uint8

const (
	// ModeNormal accepts both outbound sends and inbound proofs.
	ModeNormal OperatingMode = iota
	// ModeRejectingOutboundMessages refuses new sends but still processes
	// inbound proofs and delivery confirmations.
	ModeRejectingOutboundMessages
	// ModeHalted refuses everything.
	ModeHalted
)

func (m OperatingMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeRejectingOutboundMessages:
		return "rejecting_outbound_messages"
	case ModeHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// NonceRange is an inclusive range of nonces, empty when End < Begin.
type NonceRange struct {
	Begin MessageNonce
	End   MessageNonce
}

// IsEmpty reports whether the range contains no nonces.
func (r NonceRange) IsEmpty() bool { return r.End < r.Begin }

// Contains reports whether the range includes the nonce.
func (r NonceRange) Contains(nonce MessageNonce) bool {
	return nonce >= r.Begin && nonce <= r.End
}

// CheckedLen returns the number of nonces in the range. The second return is
// false only when the length itself does not fit in a uint64 (the full
// [0, MaxUint64] range); an empty range has length 0.
func (r NonceRange) CheckedLen() (uint64, bool) {
	if r.IsEmpty() {
		return 0, true
	}
	diff := uint64(r.End - r.Begin)
	if diff == math.MaxUint64 {
		return 0, false
	}
	return diff + 1, true
}

// SaturatingLen returns the number of nonces in the range, clamping to
// MaxUint64 on overflow.
func (r NonceRange) SaturatingLen() uint64 {
	length, ok := r.CheckedLen()
	if !ok {
		return math.MaxUint64
	}
	return length
}

// MessageKey addresses one stored message payload.
type MessageKey struct {
	Lane  LaneID
	Nonce MessageNonce
}

// Message is a message as carried by a messages proof: its key plus the
// opaque payload that the dispatcher interprets.
type Message struct {
	Key     MessageKey
	Payload []byte
}

// OutboundLaneData is the persisted state of one outbound lane half.
type OutboundLaneData struct {
	State LaneState
	// OldestUnprunedNonce is the smallest nonce whose payload is still
	// stored. Pruning and the received-nonce advance are one atomic step, so
	// in consistent storage this always equals LatestReceivedNonce + 1.
	OldestUnprunedNonce MessageNonce
	// LatestReceivedNonce is the highest nonce the bridged chain has
	// confirmed receipt of.
	LatestReceivedNonce MessageNonce
	// LatestGeneratedNonce is the highest nonce ever assigned on this lane.
	LatestGeneratedNonce MessageNonce
}

// NewOutboundLaneData returns the initial state of a freshly opened lane.
func NewOutboundLaneData() OutboundLaneData {
	return OutboundLaneData{State: LaneOpened, OldestUnprunedNonce: 1}
}

// QueuedMessages returns the range of messages sent but not yet confirmed by
// the bridged chain.
func (d OutboundLaneData) QueuedMessages() NonceRange {
	return NonceRange{Begin: d.LatestReceivedNonce + 1, End: d.LatestGeneratedNonce}
}

// StoredMessages returns the range of message payloads still held in storage.
// It trails QueuedMessages only while a closing lane is being drained:
// draining removes payloads without touching the confirmation bookkeeping.
func (d OutboundLaneData) StoredMessages() NonceRange {
	return NonceRange{Begin: d.OldestUnprunedNonce, End: d.LatestGeneratedNonce}
}

// DeliveredMessages is an inclusive range of consecutively delivered nonces
// attributed to a single relayer streak.
type DeliveredMessages struct {
	Begin MessageNonce
	End   MessageNonce
}

// NewDeliveredMessages starts a streak containing a single nonce.
func NewDeliveredMessages(nonce MessageNonce) DeliveredMessages {
	return DeliveredMessages{Begin: nonce, End: nonce}
}

// Contains reports whether the streak includes the nonce.
func (d DeliveredMessages) Contains(nonce MessageNonce) bool {
	return nonce >= d.Begin && nonce <= d.End
}

// TotalMessages returns the number of nonces in the streak.
func (d DeliveredMessages) TotalMessages() uint64 {
	return NonceRange{Begin: d.Begin, End: d.End}.SaturatingLen()
}

// UnrewardedRelayer records one relayer streak awaiting reward confirmation.
type UnrewardedRelayer struct {
	Relayer  RelayerID
	Messages DeliveredMessages
}

// InboundLaneData is the persisted state of one inbound lane half.
//
// Relayers is ordered by ascending Messages.Begin and the ranges are
// contiguous and non-overlapping: entry i+1 begins at entry i's End + 1, and
// the first entry begins at LastConfirmedNonce + 1.
type InboundLaneData struct {
	State    LaneState
	Relayers []UnrewardedRelayer
	// LastConfirmedNonce is the highest nonce the sending chain has
	// acknowledged; no unrewarded-relayer entry reaches at or below it.
	LastConfirmedNonce MessageNonce
}

// NewInboundLaneData returns the initial state of a freshly opened lane.
func NewInboundLaneData() InboundLaneData {
	return InboundLaneData{State: LaneOpened}
}

// LastDeliveredNonce returns the highest nonce delivered on this lane.
func (d InboundLaneData) LastDeliveredNonce() MessageNonce {
	if len(d.Relayers) == 0 {
		return d.LastConfirmedNonce
	}
	return d.Relayers[len(d.Relayers)-1].Messages.End
}

// TotalUnrewardedMessages returns the number of delivered-but-unrewarded
// messages across all relayer entries.
func (d InboundLaneData) TotalUnrewardedMessages() uint64 {
	var total uint64
	for _, entry := range d.Relayers {
		count := entry.Messages.TotalMessages()
		if total > math.MaxUint64-count {
			return math.MaxUint64
		}
		total += count
	}
	return total
}

// UnrewardedRelayersState is the relayer's declaration of the remote inbound
// lane bookkeeping it is about to prove. Binding the declaration to the
// decoded proof prevents under-declaring the transaction cost.
type UnrewardedRelayersState struct {
	UnrewardedRelayerEntries uint64
	MessagesInOldestEntry    uint64
	TotalMessages            uint64
	LastDeliveredNonce       MessageNonce
}

// IsValidFor reports whether the declared state matches the decoded inbound
// lane snapshot.
func (s UnrewardedRelayersState) IsValidFor(d InboundLaneData) bool {
	if s.UnrewardedRelayerEntries != uint64(len(d.Relayers)) {
		return false
	}
	var oldest uint64
	if len(d.Relayers) > 0 {
		oldest = d.Relayers[0].Messages.TotalMessages()
	}
	if s.MessagesInOldestEntry != oldest {
		return false
	}
	return s.TotalMessages == d.TotalUnrewardedMessages() &&
		s.LastDeliveredNonce == d.LastDeliveredNonce()
}
