package messages

import (
	"errors"
	"fmt"
	"log/slog"

	"lanebridge/core/events"
	"lanebridge/observability"
)

var (
	errNilHeaderChain = errors.New("messages: header chain not configured")
	errNilVerifier    = errors.New("messages: proof verifier not configured")
	errNilDispatcher  = errors.New("messages: message dispatcher not configured")
)

// Engine is the message-lane entry point. It owns the operating-mode gate,
// proof verification and the orchestration of lane state transitions; the
// lanes themselves only know their own bookkeeping.
//
// The engine itself is not safe for concurrent use. Callers serialise
// operations per lane; operations on distinct lanes touch disjoint storage
// keys apart from the shared operating mode.
type Engine struct {
	lanes  *LanesManager
	store  LaneStore
	limits Limits

	headers  HeaderChain
	verifier StateProofVerifier
	dispatch MessageDispatch
	rewards  RewardPayer
	observer DeliveryObserver

	emitter events.Emitter
	logger  *slog.Logger
	metrics *observability.MessagesMetrics
}

// NewEngine creates an engine over the given lane store. Chain-specific
// collaborators are injected through the Set* methods before the engine
// processes proofs.
func NewEngine(store LaneStore, limits Limits) *Engine {
	return &Engine{
		lanes:   NewLanesManager(store, limits),
		store:   store,
		limits:  limits,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: observability.Messages(),
	}
}

// Lanes returns the lane manager for lifecycle operations (create, close,
// drain, purge).
func (e *Engine) Lanes() *LanesManager { return e.lanes }

// SetHeaderChain wires the finalized-header source.
func (e *Engine) SetHeaderChain(headers HeaderChain) {
	if headers != nil {
		e.headers = headers
	}
}

// SetProofVerifier wires the storage proof verifier.
func (e *Engine) SetProofVerifier(verifier StateProofVerifier) {
	if verifier != nil {
		e.verifier = verifier
	}
}

// SetDispatcher wires the inbound message dispatcher.
func (e *Engine) SetDispatcher(dispatch MessageDispatch) {
	if dispatch != nil {
		e.dispatch = dispatch
	}
}

// SetRewardPayer wires relayer reward crediting.
func (e *Engine) SetRewardPayer(rewards RewardPayer) {
	if rewards != nil {
		e.rewards = rewards
	}
}

// SetObserver wires the delivery confirmation observer.
func (e *Engine) SetObserver(observer DeliveryObserver) {
	if observer != nil {
		e.observer = observer
	}
}

// SetEmitter wires the event emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter != nil {
		e.emitter = emitter
	}
}

// SetLogger overrides the default logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// OperatingMode returns the persisted bridge operating mode.
func (e *Engine) OperatingMode() (OperatingMode, error) {
	return e.store.OperatingMode()
}

// SetOperatingMode persists the bridge operating mode. Governance-only.
func (e *Engine) SetOperatingMode(mode OperatingMode) error {
	if err := e.store.SetOperatingMode(mode); err != nil {
		return err
	}
	e.logger.Info("bridge operating mode changed", "mode", mode.String())
	return nil
}

// ValidMessage is a single-use token proving a payload passed outbound
// validation. SendMessage consumes it.
type ValidMessage struct {
	lane     LaneID
	payload  []byte
	consumed bool
}

// Lane returns the validated target lane.
func (v *ValidMessage) Lane() LaneID { return v.lane }

// ValidateMessage checks a payload against the operating mode, the lane state
// and the bridged chain's size limit, without mutating anything.
func (e *Engine) ValidateMessage(lane LaneID, payload []byte) (*ValidMessage, error) {
	mode, err := e.store.OperatingMode()
	if err != nil {
		return nil, err
	}
	if mode != ModeNormal {
		return nil, ErrNotOperatingNormally
	}
	if _, err := e.lanes.ActiveOutboundLane(lane); err != nil {
		return nil, err
	}
	if uint64(len(payload)) > e.limits.MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	return &ValidMessage{lane: lane, payload: payload}, nil
}

// SendMessageArtifacts reports the result of one accepted outbound message.
type SendMessageArtifacts struct {
	Nonce MessageNonce
	// EnqueuedMessages is the lane queue depth after the send, for
	// back-pressure decisions in the layer above.
	EnqueuedMessages uint64
}

// SendMessage consumes a validated message token and enqueues the payload.
// The lane is re-acquired so a close between validation and send is caught.
func (e *Engine) SendMessage(msg *ValidMessage) (SendMessageArtifacts, error) {
	if msg == nil || msg.consumed {
		return SendMessageArtifacts{}, ErrMessageAlreadySent
	}
	lane, err := e.lanes.ActiveOutboundLane(msg.lane)
	if err != nil {
		return SendMessageArtifacts{}, err
	}
	nonce, err := lane.SendMessage(msg.payload)
	if err != nil {
		return SendMessageArtifacts{}, err
	}
	msg.consumed = true
	msg.payload = nil

	e.metrics.MessageAccepted()
	e.emitter.Emit(MessageAcceptedEvent{Lane: msg.lane, Nonce: nonce})
	e.logger.Info("outbound message accepted",
		"lane", msg.lane.String(),
		"nonce", uint64(nonce),
	)
	return SendMessageArtifacts{
		Nonce:            nonce,
		EnqueuedMessages: lane.QueuedMessages().SaturatingLen(),
	}, nil
}

// MessageReceptionStatus is the per-message record of one delivery batch.
type MessageReceptionStatus struct {
	Nonce    MessageNonce
	Result   ReceptionResult
	Dispatch DispatchOutcome
}

// ReceiveMessagesReceipt summarises one processed delivery batch.
type ReceiveMessagesReceipt struct {
	Lane LaneID
	// Total is the number of messages the proof carried; Valid counts the
	// ones that consumed their nonce.
	Total uint64
	Valid uint64
	// UnspentBudget is the part of the declared dispatch budget left after
	// executing the batch, refundable to the submitting relayer.
	UnspentBudget uint64
	// ExtraProofSizeBytes is the refundable proof-size headroom of the
	// inbound lane after the batch.
	ExtraProofSizeBytes uint64
	// PaysFee reports whether the submission is charged. Deliveries always
	// pay; the refund components above soften the cost.
	PaysFee bool
	Results []MessageReceptionStatus
}

// ReceiveMessagesProof verifies a proved batch of bridged-chain messages and
// dispatches them in nonce order. Messages that hit the unrewarded-relayer or
// unconfirmed-message caps truncate the batch; the progress made up to that
// point stays committed.
func (e *Engine) ReceiveMessagesProof(
	relayer RelayerID,
	proof MessagesProof,
	messagesCount uint64,
	dispatchBudget uint64,
) (*ReceiveMessagesReceipt, error) {
	mode, err := e.store.OperatingMode()
	if err != nil {
		return nil, err
	}
	if mode == ModeHalted {
		return nil, ErrBridgeHalted
	}
	if messagesCount > e.limits.MaxMessagesInDeliveryTx {
		e.metrics.ProofRejected("too_many_messages")
		return nil, ErrTooManyMessagesInTheProof
	}
	if e.headers == nil {
		return nil, errNilHeaderChain
	}
	if e.verifier == nil {
		return nil, errNilVerifier
	}
	if e.dispatch == nil {
		return nil, errNilDispatcher
	}
	if !e.dispatch.IsActive(proof.Lane) {
		return nil, ErrMessageDispatchInactive
	}

	proved, err := verifyMessagesProof(e.headers, e.verifier, proof, messagesCount)
	if err != nil {
		e.metrics.ProofRejected("invalid_messages_proof")
		e.logger.Warn("rejected messages proof",
			"lane", proof.Lane.String(),
			"err", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessagesProof, err)
	}

	lane, err := e.lanes.ActiveInboundLane(proof.Lane)
	if err != nil {
		return nil, err
	}

	// The whole batch must fit the declared budget before any dispatch runs,
	// so a relayer cannot land half a batch on an under-declared budget.
	var required uint64
	for _, msg := range proved.messages {
		required += e.dispatch.Cost(msg)
	}
	if required > dispatchBudget {
		return nil, ErrInsufficientDispatchBudget
	}

	// The proved lane snapshot applies first: it can free unconfirmed-message
	// headroom the batch below needs.
	if proved.laneState != nil {
		if _, err := lane.ReceiveStateUpdate(proved.laneState.LatestReceivedNonce); err != nil {
			return nil, err
		}
	}

	receipt := &ReceiveMessagesReceipt{
		Lane:    proof.Lane,
		Total:   uint64(len(proved.messages)),
		PaysFee: true,
		Results: make([]MessageReceptionStatus, 0, len(proved.messages)),
	}
	var consumed uint64
	for _, msg := range proved.messages {
		result, outcome, err := lane.ReceiveMessage(relayer, msg.Key.Nonce, msg.Payload, e.dispatch)
		if err != nil {
			return nil, err
		}
		e.metrics.MessageReceived(result.String())
		switch result {
		case ReceptionInvalidNonce:
			// Proved batches are contiguous, so a nonce mismatch can only hit
			// the first message; nothing has been committed yet.
			return nil, ErrNonceOutOfOrder
		case ReceptionTooManyUnrewardedRelayers, ReceptionTooManyUnconfirmedMessages:
			receipt.Results = append(receipt.Results, MessageReceptionStatus{
				Nonce:  msg.Key.Nonce,
				Result: result,
			})
		case ReceptionDispatched:
			cost := e.dispatch.Cost(msg)
			unspent := outcome.UnspentBudget
			if unspent > cost {
				unspent = cost
			}
			consumed += cost - unspent
			receipt.Valid++
			receipt.Results = append(receipt.Results, MessageReceptionStatus{
				Nonce:    msg.Key.Nonce,
				Result:   result,
				Dispatch: outcome,
			})
		}
		if result != ReceptionDispatched {
			// The cap outcomes persist for the rest of the batch, and every
			// later nonce would now be out of order anyway.
			break
		}
		if !e.dispatch.IsActive(proof.Lane) {
			break
		}
	}

	if receipt.Valid > 0 && e.rewards != nil {
		e.rewards.Credit(relayer, proof.Lane, receipt.Valid)
		e.metrics.RewardsCredited(receipt.Valid)
	}
	receipt.UnspentBudget = dispatchBudget - consumed
	receipt.ExtraProofSizeBytes = lane.ExtraProofSizeBytes()

	e.emitter.Emit(MessagesReceivedEvent{
		Lane:    proof.Lane,
		Relayer: relayer,
		Total:   receipt.Total,
		Valid:   receipt.Valid,
	})
	e.logger.Info("processed messages proof",
		"lane", proof.Lane.String(),
		"relayer", relayer.String(),
		"total", receipt.Total,
		"valid", receipt.Valid,
	)
	return receipt, nil
}

// ConfirmationReceipt summarises one applied delivery confirmation.
type ConfirmationReceipt struct {
	Lane LaneID
	// Confirmed is the newly confirmed range, nil when the proof was stale.
	Confirmed *DeliveredMessages
	// RewardedMessages counts the message rewards credited to relayers.
	RewardedMessages uint64
}

// ReceiveMessagesDeliveryProof verifies a proved bridged-chain inbound lane
// record, confirms the delivered messages on the outbound lane and credits
// the relayers recorded in the snapshot. Confirmation works on closed lanes
// too: in-flight messages settle after a close.
func (e *Engine) ReceiveMessagesDeliveryProof(
	proof MessagesDeliveryProof,
	claimed UnrewardedRelayersState,
) (*ConfirmationReceipt, error) {
	mode, err := e.store.OperatingMode()
	if err != nil {
		return nil, err
	}
	if mode == ModeHalted {
		return nil, ErrBridgeHalted
	}
	if e.headers == nil {
		return nil, errNilHeaderChain
	}
	if e.verifier == nil {
		return nil, errNilVerifier
	}

	snapshot, err := verifyDeliveryProof(e.headers, e.verifier, proof)
	if err != nil {
		e.metrics.ProofRejected("invalid_delivery_proof")
		e.logger.Warn("rejected delivery proof",
			"lane", proof.Lane.String(),
			"err", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessagesDeliveryProof, err)
	}
	if !claimed.IsValidFor(*snapshot) {
		e.metrics.ProofRejected("invalid_relayers_state")
		return nil, ErrInvalidUnrewardedRelayersState
	}

	lane, err := e.lanes.AnyStateOutboundLane(proof.Lane)
	if err != nil {
		return nil, err
	}
	confirmed, err := lane.ConfirmDelivery(
		claimed.TotalMessages,
		snapshot.LastDeliveredNonce(),
		snapshot.Relayers,
	)
	if err != nil {
		return nil, err
	}

	receipt := &ConfirmationReceipt{Lane: proof.Lane, Confirmed: confirmed}
	if confirmed != nil {
		for _, entry := range snapshot.Relayers {
			// Only streaks entirely inside the newly confirmed range earn
			// rewards now; replayed portions were credited earlier.
			if entry.Messages.Begin < confirmed.Begin || entry.Messages.End > confirmed.End {
				continue
			}
			count := entry.Messages.TotalMessages()
			if e.rewards != nil {
				e.rewards.Credit(entry.Relayer, proof.Lane, count)
			}
			receipt.RewardedMessages += count
		}
		e.metrics.MessagesDelivered(confirmed.TotalMessages())
		e.metrics.RewardsCredited(receipt.RewardedMessages)
		e.emitter.Emit(MessagesDeliveredEvent{
			Lane:  proof.Lane,
			Begin: confirmed.Begin,
			End:   confirmed.End,
		})
		e.logger.Info("confirmed delivered messages",
			"lane", proof.Lane.String(),
			"begin", uint64(confirmed.Begin),
			"end", uint64(confirmed.End),
			"rewarded", receipt.RewardedMessages,
		)
	}
	if e.observer != nil {
		e.observer.MessagesDelivered(proof.Lane, lane.QueuedMessages().SaturatingLen())
	}
	return receipt, nil
}

// OutboundMessagePayload returns a queued outbound payload, false when the
// message was never sent or has been pruned.
func (e *Engine) OutboundMessagePayload(lane LaneID, nonce MessageNonce) ([]byte, bool, error) {
	return e.store.Message(MessageKey{Lane: lane, Nonce: nonce})
}

// OutboundLaneData returns the outbound lane record, nil when absent.
func (e *Engine) OutboundLaneData(lane LaneID) (*OutboundLaneData, error) {
	return e.store.OutboundLaneData(lane)
}

// InboundLaneData returns the inbound lane record, nil when absent.
func (e *Engine) InboundLaneData(lane LaneID) (*InboundLaneData, error) {
	return e.store.InboundLaneData(lane)
}
