package messages

// ReceptionResult classifies the outcome of one inbound message reception.
type ReceptionResult uint8

const (
	// ReceptionDispatched means the message consumed its nonce and was
	// handed to the dispatcher (whatever the dispatch outcome was).
	ReceptionDispatched ReceptionResult = iota
	// ReceptionInvalidNonce means the message did not carry the next
	// expected nonce.
	ReceptionInvalidNonce
	// ReceptionTooManyUnrewardedRelayers means accepting the message would
	// overflow the unrewarded-relayer ledger.
	ReceptionTooManyUnrewardedRelayers
	// ReceptionTooManyUnconfirmedMessages means delivery has run too far
	// ahead of the latest confirmed nonce.
	ReceptionTooManyUnconfirmedMessages
)

func (r ReceptionResult) String() string {
	switch r {
	case ReceptionDispatched:
		return "dispatched"
	case ReceptionInvalidNonce:
		return "invalid_nonce"
	case ReceptionTooManyUnrewardedRelayers:
		return "too_many_unrewarded_relayers"
	case ReceptionTooManyUnconfirmedMessages:
		return "too_many_unconfirmed_messages"
	default:
		return "unknown"
	}
}

// worst-case RLP size of one unrewarded relayer entry: 20-byte relayer id
// plus two full-width nonces plus list headers.
const unrewardedRelayerEncodedCap = 44

// InboundLane tracks messages received from the bridged chain and the ledger
// of relayers awaiting reward confirmation. Like OutboundLane it is a
// transient view acquired through LanesManager.
type InboundLane struct {
	id    LaneID
	store LaneStore
	data  InboundLaneData

	maxUnrewardedRelayerEntries uint64
	maxUnconfirmedMessages      uint64
}

func newInboundLane(id LaneID, store LaneStore, data InboundLaneData, limits Limits) *InboundLane {
	return &InboundLane{
		id:                          id,
		store:                       store,
		data:                        data,
		maxUnrewardedRelayerEntries: limits.MaxUnrewardedRelayerEntries,
		maxUnconfirmedMessages:      limits.MaxUnconfirmedMessages,
	}
}

// ID returns the lane identifier.
func (l *InboundLane) ID() LaneID { return l.id }

// Data returns a copy of the current lane record.
func (l *InboundLane) Data() InboundLaneData { return l.data }

// ReceiveMessage attempts to deliver one message. Messages must arrive in
// strict nonce order with no gaps or duplicates. A dispatch failure or a
// malformed payload still consumes the nonce: the message is recorded as
// delivered so a single bad payload cannot stall the lane.
func (l *InboundLane) ReceiveMessage(
	relayer RelayerID,
	nonce MessageNonce,
	payload []byte,
	dispatch MessageDispatch,
) (ReceptionResult, DispatchOutcome, error) {
	if nonce != l.data.LastDeliveredNonce()+1 {
		return ReceptionInvalidNonce, DispatchOutcome{}, nil
	}

	extendsLastStreak := len(l.data.Relayers) > 0 &&
		l.data.Relayers[len(l.data.Relayers)-1].Relayer == relayer
	if !extendsLastStreak && uint64(len(l.data.Relayers)) >= l.maxUnrewardedRelayerEntries {
		return ReceptionTooManyUnrewardedRelayers, DispatchOutcome{}, nil
	}
	if uint64(nonce-l.data.LastConfirmedNonce) > l.maxUnconfirmedMessages {
		return ReceptionTooManyUnconfirmedMessages, DispatchOutcome{}, nil
	}

	outcome := dispatch.Dispatch(Message{Key: MessageKey{Lane: l.id, Nonce: nonce}, Payload: payload})

	if extendsLastStreak {
		l.data.Relayers[len(l.data.Relayers)-1].Messages.End = nonce
	} else {
		l.data.Relayers = append(l.data.Relayers, UnrewardedRelayer{
			Relayer:  relayer,
			Messages: NewDeliveredMessages(nonce),
		})
	}
	if err := l.store.SetInboundLaneData(l.id, l.data); err != nil {
		return ReceptionDispatched, outcome, err
	}
	return ReceptionDispatched, outcome, nil
}

// ReceiveStateUpdate applies the remote outbound lane's self-reported
// latest received nonce, trimming relayer-reward bookkeeping the sending
// chain has already acknowledged. An entry straddling the new boundary keeps
// only its still-unconfirmed tail. Returns the new confirmed nonce when the
// update advanced anything.
func (l *InboundLane) ReceiveStateUpdate(latestReceivedNonce MessageNonce) (*MessageNonce, error) {
	if latestReceivedNonce > l.data.LastDeliveredNonce() {
		// The remote claims receipt of messages we never recorded as
		// delivered; ignore the bogus snapshot.
		return nil, nil
	}
	if latestReceivedNonce <= l.data.LastConfirmedNonce {
		return nil, nil
	}

	l.data.LastConfirmedNonce = latestReceivedNonce
	kept := l.data.Relayers[:0]
	for _, entry := range l.data.Relayers {
		if entry.Messages.End <= latestReceivedNonce {
			continue
		}
		if entry.Messages.Begin <= latestReceivedNonce {
			entry.Messages.Begin = latestReceivedNonce + 1
		}
		kept = append(kept, entry)
	}
	l.data.Relayers = kept
	if err := l.store.SetInboundLaneData(l.id, l.data); err != nil {
		return nil, err
	}
	confirmed := latestReceivedNonce
	return &confirmed, nil
}

// ExtraProofSizeBytes returns how many proof-size bytes a confirmation
// transaction may be refunded because the relayer ledger is smaller than the
// configured worst case. A cost-accounting hint only: monotonic in the free
// ledger capacity and zero at or above the cap.
func (l *InboundLane) ExtraProofSizeBytes() uint64 {
	entries := uint64(len(l.data.Relayers))
	if entries >= l.maxUnrewardedRelayerEntries {
		return 0
	}
	return (l.maxUnrewardedRelayerEntries - entries) * unrewardedRelayerEncodedCap
}

// SetState assigns the lane lifecycle state.
func (l *InboundLane) SetState(state LaneState) error {
	l.data.State = state
	return l.store.SetInboundLaneData(l.id, l.data)
}

// Purge removes the lane record, including any remaining relayer
// bookkeeping. Used once all rewards are settled and the bridge is being
// torn down.
func (l *InboundLane) Purge() error {
	return l.store.RemoveInboundLaneData(l.id)
}
