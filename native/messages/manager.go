package messages

// Limits are the bridged-chain bounds the lane core enforces on untrusted
// relayer input. They mirror the bridged chain's runtime configuration.
type Limits struct {
	// MaxMessageSize bounds encoded outbound payloads by the bridged
	// chain's inbound limit.
	MaxMessageSize uint64
	// MaxMessagesInDeliveryTx bounds the declared message count of one
	// messages proof.
	MaxMessagesInDeliveryTx uint64
	// MaxUnrewardedRelayerEntries bounds the unrewarded-relayer ledger of
	// one inbound lane.
	MaxUnrewardedRelayerEntries uint64
	// MaxUnconfirmedMessages bounds how far delivery may run ahead of the
	// latest confirmed nonce.
	MaxUnconfirmedMessages uint64
}

// LanesManager gates all lane-handle acquisition through existence and state
// checks, so lane methods never re-validate "does this lane exist" or "is it
// open".
//
// The four getters share one decision table:
//
//	exists  state   active result     any-state result
//	no      -       Unknown*Lane      Unknown*Lane
//	yes     Opened  lane              lane
//	yes     Closed  Closed*Lane       lane
type LanesManager struct {
	store  LaneStore
	limits Limits
}

// NewLanesManager creates a manager over the given store.
func NewLanesManager(store LaneStore, limits Limits) *LanesManager {
	return &LanesManager{store: store, limits: limits}
}

// Store exposes the underlying lane store.
func (m *LanesManager) Store() LaneStore { return m.store }

// CreateOutboundLane initializes a new outbound lane in the Opened state.
func (m *LanesManager) CreateOutboundLane(id LaneID) (*OutboundLane, error) {
	existing, err := m.store.OutboundLaneData(id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrOutboundLaneAlreadyExists
	}
	data := NewOutboundLaneData()
	if err := m.store.SetOutboundLaneData(id, data); err != nil {
		return nil, err
	}
	return newOutboundLane(id, m.store, data), nil
}

// CreateInboundLane initializes a new inbound lane in the Opened state.
func (m *LanesManager) CreateInboundLane(id LaneID) (*InboundLane, error) {
	existing, err := m.store.InboundLaneData(id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrInboundLaneAlreadyExists
	}
	data := NewInboundLaneData()
	if err := m.store.SetInboundLaneData(id, data); err != nil {
		return nil, err
	}
	return newInboundLane(id, m.store, data, m.limits), nil
}

// ActiveOutboundLane returns the lane only while it is open.
func (m *LanesManager) ActiveOutboundLane(id LaneID) (*OutboundLane, error) {
	return m.outboundLane(id, false)
}

// AnyStateOutboundLane returns the lane regardless of its state. Used by
// closure, draining and confirmation flows that must operate on closed
// lanes.
func (m *LanesManager) AnyStateOutboundLane(id LaneID) (*OutboundLane, error) {
	return m.outboundLane(id, true)
}

// ActiveInboundLane returns the lane only while it is open.
func (m *LanesManager) ActiveInboundLane(id LaneID) (*InboundLane, error) {
	return m.inboundLane(id, false)
}

// AnyStateInboundLane returns the lane regardless of its state.
func (m *LanesManager) AnyStateInboundLane(id LaneID) (*InboundLane, error) {
	return m.inboundLane(id, true)
}

func (m *LanesManager) outboundLane(id LaneID, anyState bool) (*OutboundLane, error) {
	data, err := m.store.OutboundLaneData(id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrUnknownOutboundLane
	}
	if !anyState && data.State != LaneOpened {
		return nil, ErrClosedOutboundLane
	}
	return newOutboundLane(id, m.store, *data), nil
}

func (m *LanesManager) inboundLane(id LaneID, anyState bool) (*InboundLane, error) {
	data, err := m.store.InboundLaneData(id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrUnknownInboundLane
	}
	if !anyState && data.State != LaneOpened {
		return nil, ErrClosedInboundLane
	}
	return newInboundLane(id, m.store, *data, m.limits), nil
}
