package config

// DefaultConfig returns the default runtime configuration for a node with
// the given ID. isAuthority marks whether the node starts as the cluster's
// leader-eligible authority (spec §4.4's fixed membership: exactly one
// authority plus any number of fallback-observer nodes).
func DefaultConfig(nodeID string, isAuthority bool) *Config {
	return &Config{
		NodeID:      nodeID,
		IsAuthority: isAuthority,
		DataDir:     DefaultDataDir(),
		GenesisFile: "",
		P2P: P2PConfig{
			Enabled:    true,
			ListenAddr: "/ip4/127.0.0.1/tcp/0",
			MaxPeers:   50,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
