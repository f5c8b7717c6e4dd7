package types

// Event represents a structured record emitted by the bridge during state
// transitions. Attributes are flat string pairs so downstream consumers
// (RPC, indexers) can forward them without knowing the concrete event type.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
