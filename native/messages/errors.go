package messages

import "errors"

// Caller-input errors: detected before any mutation, safe to retry with
// corrected input.
var (
	// ErrNotOperatingNormally rejects sends while the bridge is not in the
	// normal operating mode.
	ErrNotOperatingNormally = errors.New("messages: bridge is not operating normally")
	// ErrBridgeHalted rejects everything while the bridge is halted.
	ErrBridgeHalted = errors.New("messages: bridge is halted")
	// ErrMessageTooLarge rejects payloads the bridged chain could never
	// accept on its inbound lanes.
	ErrMessageTooLarge = errors.New("messages: message payload exceeds bridged chain limit")
	// ErrTooManyMessagesInTheProof rejects proofs declaring more messages
	// than a single delivery transaction may carry.
	ErrTooManyMessagesInTheProof = errors.New("messages: too many messages in the proof")
	// ErrInvalidMessagesProof rejects messages proofs that fail verification
	// or decoding.
	ErrInvalidMessagesProof = errors.New("messages: invalid messages proof")
	// ErrInvalidMessagesDeliveryProof rejects delivery proofs that fail
	// verification or decoding.
	ErrInvalidMessagesDeliveryProof = errors.New("messages: invalid messages delivery proof")
	// ErrInvalidUnrewardedRelayersState rejects confirmations whose declared
	// relayers state does not match the proved snapshot.
	ErrInvalidUnrewardedRelayersState = errors.New("messages: invalid unrewarded relayers state")
	// ErrInsufficientDispatchBudget rejects deliveries whose declared budget
	// cannot cover the bundled messages.
	ErrInsufficientDispatchBudget = errors.New("messages: insufficient dispatch budget")
	// ErrMessageAlreadySent rejects reuse of an already-consumed validated
	// message token.
	ErrMessageAlreadySent = errors.New("messages: validated message already consumed")
)

// Protocol-invariant violations: these should never occur against a
// correctly-behaving counterparty; their presence indicates a bug or an
// adversarial proof.
var (
	// ErrNonceOverflow guards nonce assignment at MaxMessageNonce.
	ErrNonceOverflow = errors.New("messages: outbound nonce overflow")
	// ErrNonceOutOfOrder rejects a delivery batch that does not start at the
	// next expected nonce.
	ErrNonceOutOfOrder = errors.New("messages: message nonce out of order")
	// ErrTryingToConfirmMoreMessagesThanExpected rejects confirmations of
	// nonces the sender never generated, or of more messages than declared.
	ErrTryingToConfirmMoreMessagesThanExpected = errors.New("messages: trying to confirm more messages than expected")
	// ErrEmptyUnrewardedRelayerEntry rejects proved relayer entries covering
	// no messages.
	ErrEmptyUnrewardedRelayerEntry = errors.New("messages: empty unrewarded relayer entry")
	// ErrNonConsecutiveUnrewardedRelayerEntries rejects proved relayer
	// entries that are not contiguous.
	ErrNonConsecutiveUnrewardedRelayerEntries = errors.New("messages: non-consecutive unrewarded relayer entries")
)

// Downstream-capacity and lifecycle conditions.
var (
	// ErrMessageDispatchInactive refuses delivery batches while the message
	// dispatcher reports it cannot accept work. Transient; resubmit later.
	ErrMessageDispatchInactive = errors.New("messages: message dispatcher is inactive")
	// ErrNoQueuedMessages rejects draining an empty outbound queue.
	ErrNoQueuedMessages = errors.New("messages: no queued messages to remove")
	// ErrLaneNotEmpty rejects purging an outbound lane that still stores
	// message payloads.
	ErrLaneNotEmpty = errors.New("messages: outbound lane still stores messages")
)

// Lanes manager errors.
var (
	ErrUnknownInboundLane        = errors.New("messages: unknown inbound lane")
	ErrUnknownOutboundLane       = errors.New("messages: unknown outbound lane")
	ErrClosedInboundLane         = errors.New("messages: inbound lane is closed")
	ErrClosedOutboundLane        = errors.New("messages: outbound lane is closed")
	ErrInboundLaneAlreadyExists  = errors.New("messages: inbound lane already exists")
	ErrOutboundLaneAlreadyExists = errors.New("messages: outbound lane already exists")
)
