package messages

// OutboundLane tracks locally-generated messages awaiting delivery
// confirmation. It is a transient view over the lane store: acquire it
// through LanesManager, use it within one call, drop it.
type OutboundLane struct {
	id    LaneID
	store LaneStore
	data  OutboundLaneData
}

func newOutboundLane(id LaneID, store LaneStore, data OutboundLaneData) *OutboundLane {
	return &OutboundLane{id: id, store: store, data: data}
}

// ID returns the lane identifier.
func (l *OutboundLane) ID() LaneID { return l.id }

// Data returns a copy of the current lane record.
func (l *OutboundLane) Data() OutboundLaneData { return l.data }

// QueuedMessages returns the range of sent-but-unconfirmed messages.
func (l *OutboundLane) QueuedMessages() NonceRange { return l.data.QueuedMessages() }

// StoredMessages returns the range of payloads still stored for this lane.
func (l *OutboundLane) StoredMessages() NonceRange { return l.data.StoredMessages() }

// SendMessage assigns the next nonce to the payload and stores it. The caller
// is responsible for prior validation (operating mode, lane state, payload
// size); this method performs none.
func (l *OutboundLane) SendMessage(payload []byte) (MessageNonce, error) {
	if l.data.LatestGeneratedNonce == MaxMessageNonce {
		return 0, ErrNonceOverflow
	}
	nonce := l.data.LatestGeneratedNonce + 1
	if err := l.store.SaveMessage(MessageKey{Lane: l.id, Nonce: nonce}, payload); err != nil {
		return 0, err
	}
	l.data.LatestGeneratedNonce = nonce
	if err := l.store.SetOutboundLaneData(l.id, l.data); err != nil {
		return 0, err
	}
	return nonce, nil
}

// ConfirmDelivery marks messages up to latestDeliveredNonce as received by
// the bridged chain and prunes their payloads. A stale or replayed
// confirmation is a no-op returning nil; confirming nonces that were never
// generated, or more messages than maxAllowedMessages, is a protocol
// violation.
func (l *OutboundLane) ConfirmDelivery(
	maxAllowedMessages uint64,
	latestDeliveredNonce MessageNonce,
	relayers []UnrewardedRelayer,
) (*DeliveredMessages, error) {
	if latestDeliveredNonce <= l.data.LatestReceivedNonce {
		return nil, nil
	}
	if latestDeliveredNonce > l.data.LatestGeneratedNonce {
		return nil, ErrTryingToConfirmMoreMessagesThanExpected
	}

	confirmed := DeliveredMessages{
		Begin: l.data.LatestReceivedNonce + 1,
		End:   latestDeliveredNonce,
	}
	if confirmed.TotalMessages() > maxAllowedMessages {
		return nil, ErrTryingToConfirmMoreMessagesThanExpected
	}
	if err := ensureUnrewardedRelayersAreCorrect(latestDeliveredNonce, relayers); err != nil {
		return nil, err
	}

	// Pruning and the received-nonce advance are one atomic step: there is
	// no "confirmed but unpruned" resting state.
	for nonce := l.data.OldestUnprunedNonce; nonce <= latestDeliveredNonce; nonce++ {
		if err := l.store.RemoveMessage(MessageKey{Lane: l.id, Nonce: nonce}); err != nil {
			return nil, err
		}
		if nonce == latestDeliveredNonce {
			// The increment would wrap at the nonce ceiling.
			break
		}
	}
	l.data.LatestReceivedNonce = latestDeliveredNonce
	// Never rewind: closure draining may already have advanced past the
	// confirmed range.
	if l.data.OldestUnprunedNonce < latestDeliveredNonce+1 {
		l.data.OldestUnprunedNonce = latestDeliveredNonce + 1
	}
	if err := l.store.SetOutboundLaneData(l.id, l.data); err != nil {
		return nil, err
	}
	return &confirmed, nil
}

// ensureUnrewardedRelayersAreCorrect checks that the proved relayer entries
// are non-empty, contiguous and end exactly at the latest delivered nonce.
func ensureUnrewardedRelayersAreCorrect(latestDeliveredNonce MessageNonce, relayers []UnrewardedRelayer) error {
	if len(relayers) == 0 {
		return nil
	}
	for i, entry := range relayers {
		if entry.Messages.End < entry.Messages.Begin {
			return ErrEmptyUnrewardedRelayerEntry
		}
		if i > 0 && entry.Messages.Begin != relayers[i-1].Messages.End+1 {
			return ErrNonConsecutiveUnrewardedRelayerEntries
		}
	}
	if relayers[len(relayers)-1].Messages.End != latestDeliveredNonce {
		return ErrNonConsecutiveUnrewardedRelayerEntries
	}
	return nil
}

// RemoveOldestUnprunedMessage drains one stored message. It is used while
// closing a lane to drop messages that will never be delivered; callers must
// check StoredMessages first. Draining removes payloads only, leaving
// QueuedMessages to keep reporting the unconfirmed range.
func (l *OutboundLane) RemoveOldestUnprunedMessage() error {
	if l.data.StoredMessages().IsEmpty() {
		return ErrNoQueuedMessages
	}
	if err := l.store.RemoveMessage(MessageKey{Lane: l.id, Nonce: l.data.OldestUnprunedNonce}); err != nil {
		return err
	}
	l.data.OldestUnprunedNonce++
	return l.store.SetOutboundLaneData(l.id, l.data)
}

// SetState assigns the lane lifecycle state. Transition policy lives above
// this layer.
func (l *OutboundLane) SetState(state LaneState) error {
	l.data.State = state
	return l.store.SetOutboundLaneData(l.id, l.data)
}

// Purge removes the lane record entirely. All stored payloads must be pruned
// or drained first, otherwise orphaned entries would leak in storage.
func (l *OutboundLane) Purge() error {
	if !l.data.StoredMessages().IsEmpty() {
		return ErrLaneNotEmpty
	}
	return l.store.RemoveOutboundLaneData(l.id)
}
