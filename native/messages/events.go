package messages

import (
	"strconv"

	"lanebridge/core/types"
)

const (
	// EventTypeMessageAccepted is emitted when an outbound message is
	// enqueued for delivery.
	EventTypeMessageAccepted = "messages.accepted"
	// EventTypeMessagesReceived is emitted after an inbound delivery batch
	// was processed.
	EventTypeMessagesReceived = "messages.received"
	// EventTypeMessagesDelivered is emitted when a delivery confirmation
	// advances the outbound lane.
	EventTypeMessagesDelivered = "messages.delivered"
)

// MessageAcceptedEvent reports one enqueued outbound message.
type MessageAcceptedEvent struct {
	Lane  LaneID
	Nonce MessageNonce
}

func (MessageAcceptedEvent) EventType() string { return EventTypeMessageAccepted }

func (e MessageAcceptedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeMessageAccepted,
		Attributes: map[string]string{
			"lane":  e.Lane.String(),
			"nonce": strconv.FormatUint(uint64(e.Nonce), 10),
		},
	}
}

// MessagesReceivedEvent reports one processed inbound delivery batch.
type MessagesReceivedEvent struct {
	Lane    LaneID
	Relayer RelayerID
	Total   uint64
	Valid   uint64
}

func (MessagesReceivedEvent) EventType() string { return EventTypeMessagesReceived }

func (e MessagesReceivedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeMessagesReceived,
		Attributes: map[string]string{
			"lane":    e.Lane.String(),
			"relayer": e.Relayer.String(),
			"total":   strconv.FormatUint(e.Total, 10),
			"valid":   strconv.FormatUint(e.Valid, 10),
		},
	}
}

// MessagesDeliveredEvent reports one applied delivery confirmation.
type MessagesDeliveredEvent struct {
	Lane  LaneID
	Begin MessageNonce
	End   MessageNonce
}

func (MessagesDeliveredEvent) EventType() string { return EventTypeMessagesDelivered }

func (e MessagesDeliveredEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeMessagesDelivered,
		Attributes: map[string]string{
			"lane":  e.Lane.String(),
			"begin": strconv.FormatUint(uint64(e.Begin), 10),
			"end":   strconv.FormatUint(uint64(e.End), 10),
		},
	}
}
