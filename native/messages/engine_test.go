package messages

import (
	"errors"
	"testing"

	"lanebridge/core/events"
)

type recordingRewards struct {
	credits map[RelayerID]uint64
}

func newRecordingRewards() *recordingRewards {
	return &recordingRewards{credits: make(map[RelayerID]uint64)}
}

func (r *recordingRewards) Credit(relayer RelayerID, _ LaneID, messages uint64) {
	r.credits[relayer] += messages
}

type recordingEmitter struct {
	events []events.Event
}

func (e *recordingEmitter) Emit(evt events.Event) { e.events = append(e.events, evt) }

func (e *recordingEmitter) typesSeen() []string {
	seen := make([]string, 0, len(e.events))
	for _, evt := range e.events {
		seen = append(seen, evt.EventType())
	}
	return seen
}

type recordingObserver struct {
	lastLane     LaneID
	lastEnqueued uint64
	calls        int
}

func (o *recordingObserver) MessagesDelivered(lane LaneID, enqueued uint64) {
	o.lastLane = lane
	o.lastEnqueued = enqueued
	o.calls++
}

// bridgeEnd is one side of a simulated bridge: an engine over its own store
// plus the header and verifier doubles the other side uses to prove this
// side's state.
type bridgeEnd struct {
	chain  *remoteChain
	engine *Engine
}

// newBridgePair wires two engines so each verifies proofs against the other's
// storage, with the given lane open in both directions.
func newBridgePair(t *testing.T, lane LaneID, limits Limits) (*bridgeEnd, *bridgeEnd) {
	t.Helper()
	a := &bridgeEnd{chain: newRemoteChain()}
	b := &bridgeEnd{chain: newRemoteChain()}
	a.engine = NewEngine(a.chain.store, limits)
	b.engine = NewEngine(b.chain.store, limits)
	a.engine.SetHeaderChain(b.chain.headers)
	a.engine.SetProofVerifier(b.chain.verifier)
	b.engine.SetHeaderChain(a.chain.headers)
	b.engine.SetProofVerifier(a.chain.verifier)

	if _, err := a.engine.Lanes().CreateOutboundLane(lane); err != nil {
		t.Fatalf("CreateOutboundLane: %v", err)
	}
	if _, err := b.engine.Lanes().CreateInboundLane(lane); err != nil {
		t.Fatalf("CreateInboundLane: %v", err)
	}
	return a, b
}

func sendViaEngine(t *testing.T, e *Engine, lane LaneID, payload []byte) MessageNonce {
	t.Helper()
	msg, err := e.ValidateMessage(lane, payload)
	if err != nil {
		t.Fatalf("ValidateMessage: %v", err)
	}
	artifacts, err := e.SendMessage(msg)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	return artifacts.Nonce
}

func TestEngineSendReceiveConfirmRoundTrip(t *testing.T) {
	lane := testLane("peer")
	a, b := newBridgePair(t, lane, testLimits())

	aEmitter := &recordingEmitter{}
	a.engine.SetEmitter(aEmitter)
	aRewards := newRecordingRewards()
	a.engine.SetRewardPayer(aRewards)
	observer := &recordingObserver{}
	a.engine.SetObserver(observer)

	bRewards := newRecordingRewards()
	b.engine.SetRewardPayer(bRewards)
	dispatch := &testDispatch{}
	b.engine.SetDispatcher(dispatch)

	for _, payload := range []string{"one", "two", "three"} {
		sendViaEngine(t, a.engine, lane, []byte(payload))
	}

	// Relayer 9 carries the batch to chain B.
	relayer := RelayerID{9}
	receipt, err := b.engine.ReceiveMessagesProof(relayer, a.chain.messagesProof(lane, 1, 3), 3, 100)
	if err != nil {
		t.Fatalf("ReceiveMessagesProof: %v", err)
	}
	if receipt.Total != 3 || receipt.Valid != 3 {
		t.Fatalf("receipt = %+v", receipt)
	}
	if len(dispatch.dispatched) != 3 {
		t.Fatalf("dispatched %d messages", len(dispatch.dispatched))
	}
	if bRewards.credits[relayer] != 3 {
		t.Fatalf("delivery rewards = %v", bRewards.credits)
	}

	// The delivery proof carries chain B's inbound record back to chain A.
	confirmation, err := a.engine.ReceiveMessagesDeliveryProof(
		b.chain.deliveryProof(lane),
		UnrewardedRelayersState{
			UnrewardedRelayerEntries: 1,
			MessagesInOldestEntry:    3,
			TotalMessages:            3,
			LastDeliveredNonce:       3,
		},
	)
	if err != nil {
		t.Fatalf("ReceiveMessagesDeliveryProof: %v", err)
	}
	if confirmation.Confirmed == nil || confirmation.Confirmed.Begin != 1 || confirmation.Confirmed.End != 3 {
		t.Fatalf("confirmed = %+v", confirmation.Confirmed)
	}
	if confirmation.RewardedMessages != 3 || aRewards.credits[relayer] != 3 {
		t.Fatalf("confirmation rewards: receipt=%d credits=%v", confirmation.RewardedMessages, aRewards.credits)
	}

	// Confirmed payloads are pruned and the queue is empty again.
	data, err := a.engine.OutboundLaneData(lane)
	if err != nil {
		t.Fatalf("OutboundLaneData: %v", err)
	}
	if data.LatestReceivedNonce != 3 || data.OldestUnprunedNonce != 4 {
		t.Fatalf("outbound data = %+v", data)
	}
	if _, ok, _ := a.engine.OutboundMessagePayload(lane, 1); ok {
		t.Fatal("confirmed payload not pruned")
	}
	if observer.calls != 1 || observer.lastEnqueued != 0 {
		t.Fatalf("observer: calls=%d enqueued=%d", observer.calls, observer.lastEnqueued)
	}

	seen := aEmitter.typesSeen()
	want := []string{
		EventTypeMessageAccepted, EventTypeMessageAccepted, EventTypeMessageAccepted,
		EventTypeMessagesDelivered,
	}
	if len(seen) != len(want) {
		t.Fatalf("events = %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestEngineValidateMessage(t *testing.T) {
	lane := testLane("peer")
	limits := testLimits()
	a, _ := newBridgePair(t, lane, limits)

	// Exactly at the limit passes, one byte over fails.
	boundary := make([]byte, limits.MaxMessageSize)
	if _, err := a.engine.ValidateMessage(lane, boundary); err != nil {
		t.Fatalf("boundary payload rejected: %v", err)
	}
	if _, err := a.engine.ValidateMessage(lane, append(boundary, 0)); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("oversized payload err = %v", err)
	}

	if _, err := a.engine.ValidateMessage(testLane("other"), []byte("x")); !errors.Is(err, ErrUnknownOutboundLane) {
		t.Fatalf("unknown lane err = %v", err)
	}

	if err := a.engine.SetOperatingMode(ModeRejectingOutboundMessages); err != nil {
		t.Fatalf("SetOperatingMode: %v", err)
	}
	if _, err := a.engine.ValidateMessage(lane, []byte("x")); !errors.Is(err, ErrNotOperatingNormally) {
		t.Fatalf("rejecting mode err = %v", err)
	}
}

func TestEngineSendMessageTokenSingleUse(t *testing.T) {
	lane := testLane("peer")
	a, _ := newBridgePair(t, lane, testLimits())

	msg, err := a.engine.ValidateMessage(lane, []byte("once"))
	if err != nil {
		t.Fatalf("ValidateMessage: %v", err)
	}
	if _, err := a.engine.SendMessage(msg); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := a.engine.SendMessage(msg); !errors.Is(err, ErrMessageAlreadySent) {
		t.Fatalf("token reuse err = %v", err)
	}
	if _, err := a.engine.SendMessage(nil); !errors.Is(err, ErrMessageAlreadySent) {
		t.Fatalf("nil token err = %v", err)
	}
}

func TestEngineHaltedRefusesProofs(t *testing.T) {
	lane := testLane("peer")
	a, b := newBridgePair(t, lane, testLimits())
	b.engine.SetDispatcher(&testDispatch{})
	sendViaEngine(t, a.engine, lane, []byte("x"))

	if err := b.engine.SetOperatingMode(ModeHalted); err != nil {
		t.Fatalf("SetOperatingMode: %v", err)
	}
	if _, err := b.engine.ReceiveMessagesProof(RelayerID{1}, a.chain.messagesProof(lane, 1, 1), 1, 10); !errors.Is(err, ErrBridgeHalted) {
		t.Fatalf("ReceiveMessagesProof err = %v", err)
	}

	if err := a.engine.SetOperatingMode(ModeHalted); err != nil {
		t.Fatalf("SetOperatingMode: %v", err)
	}
	if _, err := a.engine.ReceiveMessagesDeliveryProof(b.chain.deliveryProof(lane), UnrewardedRelayersState{}); !errors.Is(err, ErrBridgeHalted) {
		t.Fatalf("ReceiveMessagesDeliveryProof err = %v", err)
	}
}

func TestEngineReceiveBatchGuards(t *testing.T) {
	lane := testLane("peer")
	limits := testLimits()
	limits.MaxMessagesInDeliveryTx = 2
	a, b := newBridgePair(t, lane, limits)
	dispatch := &testDispatch{costPerMessage: 10}
	b.engine.SetDispatcher(dispatch)
	for i := 0; i < 3; i++ {
		sendViaEngine(t, a.engine, lane, []byte("x"))
	}

	if _, err := b.engine.ReceiveMessagesProof(RelayerID{1}, a.chain.messagesProof(lane, 1, 3), 3, 100); !errors.Is(err, ErrTooManyMessagesInTheProof) {
		t.Fatalf("oversized batch err = %v", err)
	}

	// Budget below the upfront cost of the batch.
	if _, err := b.engine.ReceiveMessagesProof(RelayerID{1}, a.chain.messagesProof(lane, 1, 2), 2, 19); !errors.Is(err, ErrInsufficientDispatchBudget) {
		t.Fatalf("underfunded batch err = %v", err)
	}
	if len(dispatch.dispatched) != 0 {
		t.Fatal("underfunded batch reached the dispatcher")
	}

	dispatch.inactive = true
	if _, err := b.engine.ReceiveMessagesProof(RelayerID{1}, a.chain.messagesProof(lane, 1, 2), 2, 100); !errors.Is(err, ErrMessageDispatchInactive) {
		t.Fatalf("inactive dispatcher err = %v", err)
	}
}

func TestEngineReceiveInvalidProof(t *testing.T) {
	lane := testLane("peer")
	a, b := newBridgePair(t, lane, testLimits())
	b.engine.SetDispatcher(&testDispatch{})
	sendViaEngine(t, a.engine, lane, []byte("x"))

	proof := a.chain.messagesProof(lane, 1, 1)
	proof.BridgedHeaderHash = [32]byte{0xde, 0xad}
	if _, err := b.engine.ReceiveMessagesProof(RelayerID{1}, proof, 1, 10); !errors.Is(err, ErrInvalidMessagesProof) {
		t.Fatalf("err = %v, want ErrInvalidMessagesProof", err)
	}

	delivery := b.chain.deliveryProof(lane)
	delivery.BridgedHeaderHash = [32]byte{0xde, 0xad}
	if _, err := a.engine.ReceiveMessagesDeliveryProof(delivery, UnrewardedRelayersState{}); !errors.Is(err, ErrInvalidMessagesDeliveryProof) {
		t.Fatalf("err = %v, want ErrInvalidMessagesDeliveryProof", err)
	}
}

func TestEngineReceiveNonceOutOfOrder(t *testing.T) {
	lane := testLane("peer")
	a, b := newBridgePair(t, lane, testLimits())
	b.engine.SetDispatcher(&testDispatch{})
	for i := 0; i < 4; i++ {
		sendViaEngine(t, a.engine, lane, []byte("x"))
	}

	// Skipping nonces 1 and 2: the batch starts beyond the expected nonce.
	if _, err := b.engine.ReceiveMessagesProof(RelayerID{1}, a.chain.messagesProof(lane, 3, 4), 2, 10); !errors.Is(err, ErrNonceOutOfOrder) {
		t.Fatalf("err = %v, want ErrNonceOutOfOrder", err)
	}
	data, err := b.engine.InboundLaneData(lane)
	if err != nil {
		t.Fatalf("InboundLaneData: %v", err)
	}
	if data.LastDeliveredNonce() != 0 {
		t.Fatal("rejected batch mutated the lane")
	}
}

func TestEnginePartialBatchAtUnconfirmedCap(t *testing.T) {
	lane := testLane("peer")
	limits := testLimits()
	limits.MaxUnconfirmedMessages = 2
	a, b := newBridgePair(t, lane, limits)
	b.engine.SetDispatcher(&testDispatch{})
	for i := 0; i < 4; i++ {
		sendViaEngine(t, a.engine, lane, []byte("x"))
	}

	receipt, err := b.engine.ReceiveMessagesProof(RelayerID{1}, a.chain.messagesProof(lane, 1, 4), 4, 100)
	if err != nil {
		t.Fatalf("ReceiveMessagesProof: %v", err)
	}
	if receipt.Valid != 2 {
		t.Fatalf("valid = %d, want 2", receipt.Valid)
	}
	last := receipt.Results[len(receipt.Results)-1]
	if last.Result != ReceptionTooManyUnconfirmedMessages {
		t.Fatalf("last result = %v", last.Result)
	}
	// Partial progress stays committed: the lane sits at nonce 2.
	data, err := b.engine.InboundLaneData(lane)
	if err != nil {
		t.Fatalf("InboundLaneData: %v", err)
	}
	if data.LastDeliveredNonce() != 2 {
		t.Fatalf("LastDeliveredNonce = %d, want 2", data.LastDeliveredNonce())
	}

	// After confirmation frees headroom, the remainder of the batch lands.
	if _, err := a.engine.ReceiveMessagesDeliveryProof(b.chain.deliveryProof(lane), UnrewardedRelayersState{
		UnrewardedRelayerEntries: 1,
		MessagesInOldestEntry:    2,
		TotalMessages:            2,
		LastDeliveredNonce:       2,
	}); err != nil {
		t.Fatalf("ReceiveMessagesDeliveryProof: %v", err)
	}
	receipt, err = b.engine.ReceiveMessagesProof(RelayerID{1}, a.chain.messagesProof(lane, 3, 4), 2, 100)
	if err != nil {
		t.Fatalf("resumed ReceiveMessagesProof: %v", err)
	}
	if receipt.Valid != 2 {
		t.Fatalf("resumed valid = %d, want 2", receipt.Valid)
	}
}

func TestEngineBatchTruncatesWhenDispatcherDeactivates(t *testing.T) {
	lane := testLane("peer")
	a, b := newBridgePair(t, lane, testLimits())
	dispatch := &testDispatch{deactivateAfter: 2}
	b.engine.SetDispatcher(dispatch)
	for i := 0; i < 4; i++ {
		sendViaEngine(t, a.engine, lane, []byte("x"))
	}

	receipt, err := b.engine.ReceiveMessagesProof(RelayerID{1}, a.chain.messagesProof(lane, 1, 4), 4, 100)
	if err != nil {
		t.Fatalf("ReceiveMessagesProof: %v", err)
	}
	if receipt.Valid != 2 || len(dispatch.dispatched) != 2 {
		t.Fatalf("valid=%d dispatched=%d, want 2 each", receipt.Valid, len(dispatch.dispatched))
	}
}

func TestEngineUnspentBudgetRefund(t *testing.T) {
	lane := testLane("peer")
	a, b := newBridgePair(t, lane, testLimits())
	dispatch := &testDispatch{
		costPerMessage: 10,
		outcomes: map[MessageNonce]DispatchOutcome{
			1: {Kind: DispatchSuccess, UnspentBudget: 4},
			// A dispatcher claiming more unspent than the declared cost is
			// clamped.
			2: {Kind: DispatchSuccess, UnspentBudget: 25},
		},
	}
	b.engine.SetDispatcher(dispatch)
	sendViaEngine(t, a.engine, lane, []byte("x"))
	sendViaEngine(t, a.engine, lane, []byte("y"))

	receipt, err := b.engine.ReceiveMessagesProof(RelayerID{1}, a.chain.messagesProof(lane, 1, 2), 2, 50)
	if err != nil {
		t.Fatalf("ReceiveMessagesProof: %v", err)
	}
	// Consumed: (10-4) for message 1, (10-10) for message 2.
	if receipt.UnspentBudget != 44 {
		t.Fatalf("UnspentBudget = %d, want 44", receipt.UnspentBudget)
	}
}

func TestEngineConfirmationRejectsBadRelayersState(t *testing.T) {
	lane := testLane("peer")
	a, b := newBridgePair(t, lane, testLimits())
	b.engine.SetDispatcher(&testDispatch{})
	for i := 0; i < 2; i++ {
		sendViaEngine(t, a.engine, lane, []byte("x"))
	}
	if _, err := b.engine.ReceiveMessagesProof(RelayerID{1}, a.chain.messagesProof(lane, 1, 2), 2, 10); err != nil {
		t.Fatalf("ReceiveMessagesProof: %v", err)
	}

	// Declares fewer messages than the proved snapshot carries.
	_, err := a.engine.ReceiveMessagesDeliveryProof(b.chain.deliveryProof(lane), UnrewardedRelayersState{
		UnrewardedRelayerEntries: 1,
		MessagesInOldestEntry:    1,
		TotalMessages:            1,
		LastDeliveredNonce:       2,
	})
	if !errors.Is(err, ErrInvalidUnrewardedRelayersState) {
		t.Fatalf("err = %v, want ErrInvalidUnrewardedRelayersState", err)
	}
	data, err := a.engine.OutboundLaneData(lane)
	if err != nil {
		t.Fatalf("OutboundLaneData: %v", err)
	}
	if data.LatestReceivedNonce != 0 {
		t.Fatal("rejected confirmation mutated the lane")
	}
}

func TestEngineStaleConfirmationIsNoop(t *testing.T) {
	lane := testLane("peer")
	a, b := newBridgePair(t, lane, testLimits())
	b.engine.SetDispatcher(&testDispatch{})
	aRewards := newRecordingRewards()
	a.engine.SetRewardPayer(aRewards)

	sendViaEngine(t, a.engine, lane, []byte("x"))
	if _, err := b.engine.ReceiveMessagesProof(RelayerID{1}, a.chain.messagesProof(lane, 1, 1), 1, 10); err != nil {
		t.Fatalf("ReceiveMessagesProof: %v", err)
	}
	claimed := UnrewardedRelayersState{
		UnrewardedRelayerEntries: 1,
		MessagesInOldestEntry:    1,
		TotalMessages:            1,
		LastDeliveredNonce:       1,
	}
	if _, err := a.engine.ReceiveMessagesDeliveryProof(b.chain.deliveryProof(lane), claimed); err != nil {
		t.Fatalf("ReceiveMessagesDeliveryProof: %v", err)
	}
	if aRewards.credits[RelayerID{1}] != 1 {
		t.Fatalf("credits = %v", aRewards.credits)
	}

	// The same proof again: no new confirmation, no double rewards.
	confirmation, err := a.engine.ReceiveMessagesDeliveryProof(b.chain.deliveryProof(lane), claimed)
	if err != nil {
		t.Fatalf("replayed ReceiveMessagesDeliveryProof: %v", err)
	}
	if confirmation.Confirmed != nil || confirmation.RewardedMessages != 0 {
		t.Fatalf("replay confirmation = %+v", confirmation)
	}
	if aRewards.credits[RelayerID{1}] != 1 {
		t.Fatalf("credits after replay = %v", aRewards.credits)
	}
}

// hidingVerifier omits one storage key from verified proofs, standing in for
// a relayer that left the optional outbound lane snapshot out of its proof.
type hidingVerifier struct {
	inner StateProofVerifier
	key   []byte
}

func (v *hidingVerifier) VerifyStorageProof(proof []byte, root [32]byte, keys [][]byte) (map[string][]byte, error) {
	values, err := v.inner.VerifyStorageProof(proof, root, keys)
	if err != nil {
		return nil, err
	}
	delete(values, string(v.key))
	return values, nil
}

func TestEngineConfirmationCreditsEachRelayerOnce(t *testing.T) {
	lane := testLane("peer")
	a, b := newBridgePair(t, lane, testLimits())
	b.engine.SetDispatcher(&testDispatch{})
	// Without outbound snapshots in the messages proofs the inbound ledger
	// keeps already-confirmed relayer entries around, so later delivery
	// proofs still carry them.
	b.engine.SetProofVerifier(&hidingVerifier{inner: a.chain.verifier, key: OutboundLaneDataKey(lane)})
	aRewards := newRecordingRewards()
	a.engine.SetRewardPayer(aRewards)

	relayerA, relayerB := RelayerID{1}, RelayerID{2}
	sendViaEngine(t, a.engine, lane, []byte("x"))
	sendViaEngine(t, a.engine, lane, []byte("y"))

	if _, err := b.engine.ReceiveMessagesProof(relayerA, a.chain.messagesProof(lane, 1, 1), 1, 10); err != nil {
		t.Fatalf("ReceiveMessagesProof: %v", err)
	}
	first, err := a.engine.ReceiveMessagesDeliveryProof(b.chain.deliveryProof(lane), UnrewardedRelayersState{
		UnrewardedRelayerEntries: 1,
		MessagesInOldestEntry:    1,
		TotalMessages:            1,
		LastDeliveredNonce:       1,
	})
	if err != nil {
		t.Fatalf("first ReceiveMessagesDeliveryProof: %v", err)
	}
	if first.RewardedMessages != 1 || aRewards.credits[relayerA] != 1 {
		t.Fatalf("first confirmation: rewarded=%d credits=%v", first.RewardedMessages, aRewards.credits)
	}

	if _, err := b.engine.ReceiveMessagesProof(relayerB, a.chain.messagesProof(lane, 2, 2), 1, 10); err != nil {
		t.Fatalf("ReceiveMessagesProof: %v", err)
	}
	// The second snapshot lists both entries; only relayer B's newly
	// confirmed streak earns a reward.
	second, err := a.engine.ReceiveMessagesDeliveryProof(b.chain.deliveryProof(lane), UnrewardedRelayersState{
		UnrewardedRelayerEntries: 2,
		MessagesInOldestEntry:    1,
		TotalMessages:            2,
		LastDeliveredNonce:       2,
	})
	if err != nil {
		t.Fatalf("second ReceiveMessagesDeliveryProof: %v", err)
	}
	if second.Confirmed == nil || second.Confirmed.Begin != 2 || second.Confirmed.End != 2 {
		t.Fatalf("second confirmation = %+v", second.Confirmed)
	}
	if second.RewardedMessages != 1 {
		t.Fatalf("second RewardedMessages = %d, want 1", second.RewardedMessages)
	}
	if aRewards.credits[relayerA] != 1 || aRewards.credits[relayerB] != 1 {
		t.Fatalf("credits = %v, want one message each", aRewards.credits)
	}
}

func TestEngineConfirmationWorksOnClosedLane(t *testing.T) {
	lane := testLane("peer")
	a, b := newBridgePair(t, lane, testLimits())
	b.engine.SetDispatcher(&testDispatch{})

	sendViaEngine(t, a.engine, lane, []byte("x"))
	if _, err := b.engine.ReceiveMessagesProof(RelayerID{1}, a.chain.messagesProof(lane, 1, 1), 1, 10); err != nil {
		t.Fatalf("ReceiveMessagesProof: %v", err)
	}

	out, err := a.engine.Lanes().AnyStateOutboundLane(lane)
	if err != nil {
		t.Fatalf("AnyStateOutboundLane: %v", err)
	}
	if err := out.SetState(LaneClosed); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	confirmation, err := a.engine.ReceiveMessagesDeliveryProof(b.chain.deliveryProof(lane), UnrewardedRelayersState{
		UnrewardedRelayerEntries: 1,
		MessagesInOldestEntry:    1,
		TotalMessages:            1,
		LastDeliveredNonce:       1,
	})
	if err != nil {
		t.Fatalf("ReceiveMessagesDeliveryProof: %v", err)
	}
	if confirmation.Confirmed == nil || confirmation.Confirmed.End != 1 {
		t.Fatalf("confirmation = %+v", confirmation)
	}
}
