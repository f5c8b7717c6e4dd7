package messages

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// MessagesProof carries a batch of messages from the bridged chain's outbound
// lane storage, proved against one of its finalized headers.
type MessagesProof struct {
	// BridgedHeaderHash is the finalized bridged-chain header the storage
	// proof is anchored to.
	BridgedHeaderHash [32]byte
	// StorageProof is the opaque proof blob handed to the verifier.
	StorageProof []byte
	Lane         LaneID
	// NoncesBegin and NoncesEnd delimit the proved batch, inclusive.
	NoncesBegin MessageNonce
	NoncesEnd   MessageNonce
}

// Nonces returns the proved nonce range.
func (p MessagesProof) Nonces() NonceRange {
	return NonceRange{Begin: p.NoncesBegin, End: p.NoncesEnd}
}

// MessagesDeliveryProof proves the bridged chain's inbound lane record,
// carrying its delivery and reward bookkeeping back to the sender.
type MessagesDeliveryProof struct {
	BridgedHeaderHash [32]byte
	StorageProof      []byte
	Lane              LaneID
}

// provedMessages is the decoded content of a verified messages proof: the
// batch itself plus the remote outbound lane snapshot when the proof carried
// one.
type provedMessages struct {
	laneState *OutboundLaneData
	messages  []Message
}

// verifyMessagesProof resolves the proof's header to a state root, verifies
// the storage proof and decodes the proved values. The declared messagesCount
// must equal the proved range length exactly; every message in the range must
// be present, while the remote lane snapshot is optional.
func verifyMessagesProof(
	headers HeaderChain,
	verifier StateProofVerifier,
	proof MessagesProof,
	messagesCount uint64,
) (*provedMessages, error) {
	length, ok := proof.Nonces().CheckedLen()
	if !ok || length != messagesCount {
		return nil, fmt.Errorf("declared %d messages, proof covers %d", messagesCount, length)
	}

	root, err := headers.StateRoot(proof.BridgedHeaderHash)
	if err != nil {
		return nil, fmt.Errorf("resolve bridged header: %w", err)
	}

	laneKey := OutboundLaneDataKey(proof.Lane)
	keys := make([][]byte, 0, 1+length)
	keys = append(keys, laneKey)
	for i := uint64(0); i < length; i++ {
		nonce := proof.NoncesBegin + MessageNonce(i)
		keys = append(keys, OutboundMessageKey(MessageKey{Lane: proof.Lane, Nonce: nonce}))
	}

	values, err := verifier.VerifyStorageProof(proof.StorageProof, root, keys)
	if err != nil {
		return nil, fmt.Errorf("verify storage proof: %w", err)
	}

	proved := &provedMessages{messages: make([]Message, 0, length)}
	if raw, ok := values[string(laneKey)]; ok {
		var data OutboundLaneData
		if err := rlp.DecodeBytes(raw, &data); err != nil {
			return nil, fmt.Errorf("decode bridged outbound lane record: %w", err)
		}
		proved.laneState = &data
	}
	for i := uint64(0); i < length; i++ {
		nonce := proof.NoncesBegin + MessageNonce(i)
		key := MessageKey{Lane: proof.Lane, Nonce: nonce}
		raw, ok := values[string(OutboundMessageKey(key))]
		if !ok {
			return nil, fmt.Errorf("message %d missing from proof", nonce)
		}
		var payload []byte
		if err := rlp.DecodeBytes(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode message %d payload: %w", nonce, err)
		}
		proved.messages = append(proved.messages, Message{Key: key, Payload: payload})
	}

	// An empty proof must at least carry the lane snapshot, otherwise it
	// proves nothing.
	if len(proved.messages) == 0 && proved.laneState == nil {
		return nil, fmt.Errorf("proof carries neither messages nor a lane record")
	}
	return proved, nil
}

// verifyDeliveryProof resolves the proof's header to a state root, verifies
// the storage proof and decodes the proved inbound lane record, which must be
// present.
func verifyDeliveryProof(
	headers HeaderChain,
	verifier StateProofVerifier,
	proof MessagesDeliveryProof,
) (*InboundLaneData, error) {
	root, err := headers.StateRoot(proof.BridgedHeaderHash)
	if err != nil {
		return nil, fmt.Errorf("resolve bridged header: %w", err)
	}

	laneKey := InboundLaneDataKey(proof.Lane)
	values, err := verifier.VerifyStorageProof(proof.StorageProof, root, [][]byte{laneKey})
	if err != nil {
		return nil, fmt.Errorf("verify storage proof: %w", err)
	}
	raw, ok := values[string(laneKey)]
	if !ok {
		return nil, fmt.Errorf("inbound lane record missing from proof")
	}
	var data InboundLaneData
	if err := rlp.DecodeBytes(raw, &data); err != nil {
		return nil, fmt.Errorf("decode bridged inbound lane record: %w", err)
	}
	return &data, nil
}
