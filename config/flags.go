package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	NodeID      string
	Authority   bool
	DataDir     string
	Config      string
	GenesisFile string

	// P2P
	P2P      bool
	P2PListen string
	Seeds    string
	MaxPeers int

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetP2P       bool
	SetAuthority bool
	SetLogJSON   bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("cbrledgerd", flag.ContinueOnError)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	fs.StringVar(&f.NodeID, "node-id", "", "This node's ID")
	fs.BoolVar(&f.Authority, "authority", false, "Start as the cluster's consensus authority")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")
	fs.StringVar(&f.GenesisFile, "genesis", "", "Genesis file path")

	fs.BoolVar(&f.P2P, "p2p", true, "Enable P2P networking")
	fs.StringVar(&f.P2PListen, "p2p-listen", "", "P2P listen multiaddr")
	fs.StringVar(&f.Seeds, "seeds", "", "Seed nodes as comma-separated libp2p multiaddrs")
	fs.IntVar(&f.MaxPeers, "maxpeers", 0, "Maximum number of peers")

	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() {
		printUsage()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	f.SetP2P = isFlagSet(fs, "p2p")
	f.SetAuthority = isFlagSet(fs, "authority")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			fmt.Fprintf(os.Stderr, "Error: flag %q was not parsed (positional argument stopped parsing)\n", arg)
			os.Exit(1)
		}
	}

	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.NodeID != "" {
		cfg.NodeID = f.NodeID
	}
	if f.SetAuthority {
		cfg.IsAuthority = f.Authority
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.GenesisFile != "" {
		cfg.GenesisFile = f.GenesisFile
	}

	if f.SetP2P {
		cfg.P2P.Enabled = f.P2P
	}
	if f.P2PListen != "" {
		cfg.P2P.ListenAddr = f.P2PListen
	}
	if f.Seeds != "" {
		cfg.P2P.Seeds = parseStringList(f.Seeds)
	}
	if f.MaxPeers != 0 {
		cfg.P2P.MaxPeers = f.MaxPeers
	}

	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `cbrledgerd - simulated central-bank ledger cluster node

Usage:
  cbrledgerd [options]
  cbrledgerd --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --node-id       This node's ID (default: node-1)
  --authority     Start as the cluster's consensus authority
  --datadir       Data directory (default: ~/.cbrledger)
  --config, -c    Config file path (default: <datadir>/<node-id>/cbrledger.conf)
  --genesis       Genesis file path

P2P Options:
  --p2p           Enable P2P networking (default: true)
  --p2p-listen    P2P listen multiaddr (default: /ip4/0.0.0.0/tcp/0)
  --seeds         Seed nodes as comma-separated libp2p multiaddrs
  --maxpeers      Maximum number of peers (default: 50)

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Examples:
  # Start the cluster's authority node
  cbrledgerd --node-id=cbr-1 --authority

  # Start a fallback-observer node
  cbrledgerd --node-id=fo-1 --seeds=/ip4/127.0.0.1/tcp/30303/p2p/12D3KooW...
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("cbrledgerd version 0.1.0")
		os.Exit(0)
	}

	nodeID := flags.NodeID
	if nodeID == "" {
		nodeID = "node-1"
	}

	cfg := DefaultConfig(nodeID, flags.Authority)

	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}

	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Idempotent — safe to call on every
// startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NodeDataDir(),
		cfg.LedgerDir(),
		cfg.UTXODir(),
		cfg.RegistryDir(),
		cfg.KeystoreDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.NodeID, cfg.IsAuthority); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
