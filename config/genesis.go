package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/klingon-tech/cbrledger/pkg/cryptoutil"
	"github.com/klingon-tech/cbrledger/pkg/money"
	"github.com/klingon-tech/cbrledger/pkg/types"
)

// Genesis holds the protocol rules a cluster must agree on before its
// first block: cluster identity, initial per-wallet balances, and the
// consensus-timing constants spec §4.4 requires every node to share.
// This is immutable after the cluster starts — changing it means
// starting a new cluster, not a runtime reconfiguration.
type Genesis struct {
	// ClusterID identifies the ledger instance; nodes bootstrapping
	// against mismatched genesis files must refuse to join the same
	// cluster.
	ClusterID string `json:"cluster_id"`
	Timestamp uint64 `json:"timestamp"`
	ExtraData string `json:"extra_data,omitempty"`

	// Alloc is the genesis allocation: wallet address (bech32) -> balance
	// in the free-text two-decimal form, e.g. "1000.00". Parsed via
	// Allocations().
	Alloc map[string]string `json:"alloc"`

	// AuthorityNodeID is the node ID that starts the cluster holding
	// consensus leadership (spec §4.4). Fallback-observer nodes are
	// whatever other node IDs join via AddPeer; they are not named here
	// because membership beyond the one authority is not a genesis-time
	// protocol rule.
	AuthorityNodeID string `json:"authority_node_id"`

	// Consensus timing (spec §4.4's election/heartbeat parameters).
	ElectionTimeoutSeconds   int `json:"election_timeout_seconds"`
	HeartbeatIntervalSeconds int `json:"heartbeat_interval_seconds"`
}

// DefaultGenesis returns the genesis configuration for the single-process
// simulated cluster cmd/cbrledgerd boots by default.
func DefaultGenesis() *Genesis {
	return &Genesis{
		ClusterID: "cbrledger-sim-1",
		Timestamp: 1785571200, // 2026-08-01 08:00 UTC
		ExtraData: "cbrledger genesis",
		Alloc: map[string]string{
			// Empty by default: cmd/cbrledgerd funds every address listed
			// here at startup but adds none of its own, and a genesis
			// wallet address cannot be hardcoded without a corresponding
			// private key to spend from it.
		},
		AuthorityNodeID:          "cbr-1",
		ElectionTimeoutSeconds:   5,
		HeartbeatIntervalSeconds: 1,
	}
}

// Allocations parses Alloc into wallet addresses mapped to money.Amount,
// rejecting malformed entries at load time rather than at first use.
func (g *Genesis) Allocations() (map[string]money.Amount, error) {
	out := make(map[string]money.Amount, len(g.Alloc))
	for addr, amountStr := range g.Alloc {
		amt, err := money.Parse(amountStr)
		if err != nil {
			return nil, fmt.Errorf("alloc %q: %w", addr, err)
		}
		if amt.IsNegative() {
			return nil, fmt.Errorf("alloc %q: negative amount %s", addr, amountStr)
		}
		out[addr] = amt
	}
	return out, nil
}

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is well-formed.
func (g *Genesis) Validate() error {
	if g.ClusterID == "" {
		return fmt.Errorf("cluster_id is required")
	}
	if g.AuthorityNodeID == "" {
		return fmt.Errorf("authority_node_id is required")
	}
	if g.ElectionTimeoutSeconds <= 0 {
		return fmt.Errorf("election_timeout_seconds must be positive")
	}
	if g.HeartbeatIntervalSeconds <= 0 {
		return fmt.Errorf("heartbeat_interval_seconds must be positive")
	}
	if g.HeartbeatIntervalSeconds >= g.ElectionTimeoutSeconds {
		return fmt.Errorf("heartbeat_interval_seconds must be smaller than election_timeout_seconds")
	}

	if _, err := g.Allocations(); err != nil {
		return err
	}

	return nil
}

// Hash returns a BLAKE3 hash of the genesis configuration, used to detect
// genesis mismatches between nodes joining the same cluster.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return cryptoutil.Hash(data), nil
}
