// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: defined in genesis, immutable, must match across all
//     nodes in the cluster
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
// These settings can vary between nodes without breaking consensus.
type Config struct {
	// Core
	NodeID      string `conf:"node.id"`
	IsAuthority bool   `conf:"node.authority"`
	DataDir     string `conf:"datadir"`
	GenesisFile string `conf:"genesis.file"`

	// P2P networking
	P2P P2PConfig

	// Logging
	Log LogConfig
}

// P2PConfig holds peer-to-peer network settings. ListenAddr is a full
// libp2p multiaddr (e.g. "/ip4/0.0.0.0/tcp/30303"), passed straight
// through to internal/p2p.NewGossipTransport.
type P2PConfig struct {
	Enabled    bool     `conf:"p2p.enabled"`
	ListenAddr string   `conf:"p2p.listen"`
	Seeds      []string `conf:"p2p.seeds"`
	MaxPeers   int      `conf:"p2p.maxpeers"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.cbrledger
//	macOS:   ~/Library/Application Support/CBRLedger
//	Windows: %APPDATA%\CBRLedger
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cbrledger"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "CBRLedger")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "CBRLedger")
		}
		return filepath.Join(home, "AppData", "Roaming", "CBRLedger")
	default:
		return filepath.Join(home, ".cbrledger")
	}
}

// NodeDataDir returns this node's own subdirectory within DataDir, keyed by
// node ID so a simulated multi-node cluster run from one data root never
// collides between nodes.
func (c *Config) NodeDataDir() string {
	return filepath.Join(c.DataDir, c.NodeID)
}

// LedgerDir returns the block storage directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.NodeDataDir(), "ledger")
}

// UTXODir returns the UTXO database directory.
func (c *Config) UTXODir() string {
	return filepath.Join(c.NodeDataDir(), "utxo")
}

// RegistryDir returns the node registry database directory.
func (c *Config) RegistryDir() string {
	return filepath.Join(c.NodeDataDir(), "registry")
}

// KeystoreDir returns the client keystore directory. Never read by node
// code — see internal/keystore's package doc.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.DataDir, "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.NodeDataDir(), "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.NodeDataDir(), "cbrledger.conf")
}
