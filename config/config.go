package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Default limits mirror the values the bridged-chain runtime declares. They
// bound the untrusted inputs a relayer can submit in a single transaction.
const (
	DefaultMaxMessageSize              = 65536
	DefaultMaxMessagesInDeliveryTx     = 1024
	DefaultMaxUnrewardedRelayerEntries = 128
	DefaultMaxUnconfirmedMessages      = 8192
)

// Bridge holds the node-local configuration of the message-lane bridge.
type Bridge struct {
	DataDir string `toml:"DataDir"`

	// MaxMessageSize is the maximal encoded payload size the bridged chain
	// accepts on its inbound lanes. The receiving side's limit governs: an
	// oversized message could never be delivered there.
	MaxMessageSize uint64 `toml:"MaxMessageSize"`

	// MaxMessagesInDeliveryTx caps the declared message count of a single
	// messages proof before any verification work is done.
	MaxMessagesInDeliveryTx uint64 `toml:"MaxMessagesInDeliveryTx"`

	// MaxUnrewardedRelayerEntries caps the unrewarded-relayer ledger of one
	// inbound lane; entries above the cap are refused until a confirmation
	// trims the ledger.
	MaxUnrewardedRelayerEntries uint64 `toml:"MaxUnrewardedRelayerEntries"`

	// MaxUnconfirmedMessages caps how far message delivery may run ahead of
	// the latest confirmed nonce on one inbound lane.
	MaxUnconfirmedMessages uint64 `toml:"MaxUnconfirmedMessages"`
}

// Default returns the bridge configuration used when no file is present.
func Default() *Bridge {
	return &Bridge{
		DataDir:                     "./lanebridge-data",
		MaxMessageSize:              DefaultMaxMessageSize,
		MaxMessagesInDeliveryTx:     DefaultMaxMessagesInDeliveryTx,
		MaxUnrewardedRelayerEntries: DefaultMaxUnrewardedRelayerEntries,
		MaxUnconfirmedMessages:      DefaultMaxUnconfirmedMessages,
	}
}

// Load loads the configuration from the given path, writing the defaults to
// disk when the file does not exist yet.
func Load(path string) (*Bridge, error) {
	cfg := &Bridge{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	for _, undecoded := range meta.Undecoded() {
		return nil, fmt.Errorf("config: unknown key %q in %s", strings.Join(undecoded, "."), path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the lane core cannot operate
// with.
func (b *Bridge) Validate() error {
	if strings.TrimSpace(b.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if b.MaxMessageSize == 0 {
		return fmt.Errorf("config: MaxMessageSize must be positive")
	}
	if b.MaxMessagesInDeliveryTx == 0 {
		return fmt.Errorf("config: MaxMessagesInDeliveryTx must be positive")
	}
	if b.MaxUnrewardedRelayerEntries == 0 {
		return fmt.Errorf("config: MaxUnrewardedRelayerEntries must be positive")
	}
	if b.MaxUnconfirmedMessages < b.MaxUnrewardedRelayerEntries {
		return fmt.Errorf("config: MaxUnconfirmedMessages must be at least MaxUnrewardedRelayerEntries")
	}
	return nil
}

func createDefault(path string) (*Bridge, error) {
	cfg := Default()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
