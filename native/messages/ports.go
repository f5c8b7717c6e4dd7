package messages

// The lane core is isolated from chain-specific plumbing through the
// capability interfaces below. They are injected into the engine at
// construction; the core never reaches around them.

// HeaderChain resolves finalized bridged-chain headers to their state roots.
// How the two chains agree on finalized headers is outside this module.
type HeaderChain interface {
	// StateRoot returns the storage root committed to by the given finalized
	// header, or an error when the header is unknown.
	StateRoot(headerHash [32]byte) ([32]byte, error)
}

// StateProofVerifier validates storage proofs against an expected state root.
type StateProofVerifier interface {
	// VerifyStorageProof checks proof against root and returns the values of
	// the requested keys, keyed by the raw key bytes. Keys absent from the
	// proved storage are omitted from the result; a malformed proof or a
	// root mismatch returns an error.
	VerifyStorageProof(proof []byte, root [32]byte, keys [][]byte) (map[string][]byte, error)
}

// DispatchKind classifies the outcome of one message dispatch.
type DispatchKind uint8

const (
	// DispatchSuccess means the payload decoded and the dispatcher executed
	// it; whether the execution itself succeeded is opaque to the lane.
	DispatchSuccess DispatchKind = iota
	// DispatchFailure means the dispatcher executed the payload and reports
	// that execution failed. The message still consumed its nonce.
	DispatchFailure
	// DispatchMalformedPayload means the payload failed to decode at the
	// dispatch boundary. The message still consumed its nonce so a single
	// bad payload cannot stall the lane.
	DispatchMalformedPayload
)

func (k DispatchKind) String() string {
	switch k {
	case DispatchSuccess:
		return "success"
	case DispatchFailure:
		return "failure"
	case DispatchMalformedPayload:
		return "malformed_payload"
	default:
		return "unknown"
	}
}

// DispatchOutcome reports one dispatch attempt plus the part of the declared
// per-message budget that execution did not consume.
type DispatchOutcome struct {
	Kind          DispatchKind
	UnspentBudget uint64
}

// MessageDispatch executes delivered message payloads.
type MessageDispatch interface {
	// IsActive reports whether the dispatcher currently accepts work for the
	// lane. When it returns false the lane refuses new batches and truncates
	// batches in progress.
	IsActive(lane LaneID) bool
	// Cost returns the declared budget required to dispatch the message.
	Cost(msg Message) uint64
	// Dispatch executes the message payload.
	Dispatch(msg Message) DispatchOutcome
}

// RewardPayer credits relayers for delivered messages. Payment mechanics are
// outside this module; the lane only decides who gets credited how much.
type RewardPayer interface {
	Credit(relayer RelayerID, lane LaneID, messages uint64)
}

// DeliveryObserver is notified after each processed delivery confirmation,
// e.g. for channel back-pressure signalling in an orchestration layer above.
type DeliveryObserver interface {
	// MessagesDelivered receives the lane and the number of messages still
	// enqueued after the confirmation was applied.
	MessagesDelivered(lane LaneID, enqueued uint64)
}
