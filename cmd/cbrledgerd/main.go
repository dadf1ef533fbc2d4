// cbrledgerd boots a simulated CBR ledger cluster: one permanent
// authority node and a configurable set of fallback-observer nodes, all
// wired together as direct in-process peers (spec §5's per-node actor
// model), each with its own durable store. Real cross-process
// deployment would instead run one cbrledgerd per node, replicating
// over internal/p2p's GossipTransport — this binary is the one-process
// simulation SPEC_FULL.md's expansion calls for.
//
// Usage:
//
//	cbrledgerd [--genesis=path] [--fo=fo-1,fo-2] [--datadir=...]
//	cbrledgerd --help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/klingon-tech/cbrledger/config"
	"github.com/klingon-tech/cbrledger/internal/log"
	"github.com/klingon-tech/cbrledger/internal/node"
	"github.com/klingon-tech/cbrledger/internal/storage"
	"github.com/klingon-tech/cbrledger/pkg/clock"
)

func main() {
	genesisPath := ""
	datadir := config.DefaultDataDir()
	foIDs := []string{"fo-1"}
	logLevel := "info"
	logJSON := false

	args := os.Args[1:]
	for _, arg := range args {
		switch {
		case arg == "--help" || arg == "-h":
			printUsage()
			return
		case strings.HasPrefix(arg, "--genesis="):
			genesisPath = strings.TrimPrefix(arg, "--genesis=")
		case strings.HasPrefix(arg, "--datadir="):
			datadir = strings.TrimPrefix(arg, "--datadir=")
		case strings.HasPrefix(arg, "--fo="):
			foIDs = splitNonEmpty(strings.TrimPrefix(arg, "--fo="))
		case strings.HasPrefix(arg, "--log-level="):
			logLevel = strings.TrimPrefix(arg, "--log-level=")
		case arg == "--log-json":
			logJSON = true
		default:
			fmt.Fprintf(os.Stderr, "Error: unrecognized flag %q\n", arg)
			printUsage()
			os.Exit(1)
		}
	}

	if err := log.Init(logLevel, logJSON, ""); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := log.WithComponent("cbrledgerd")

	genesis, err := loadOrCreateGenesis(genesisPath, foIDs)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load genesis")
	}

	genesisHash, err := genesis.Hash()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to hash genesis")
	}
	logger.Info().
		Str("cluster_id", genesis.ClusterID).
		Str("genesis_hash", genesisHash.String()[:16]+"...").
		Str("authority", genesis.AuthorityNodeID).
		Strs("fallback_observers", foIDs).
		Msg("starting cbrledger simulated cluster")

	clk := clock.Default

	nodeIDs := append([]string{genesis.AuthorityNodeID}, foIDs...)
	nodes := make(map[string]*node.Node, len(nodeIDs))
	dbs := make([]storage.DB, 0, len(nodeIDs))

	for _, id := range nodeIDs {
		isAuthority := id == genesis.AuthorityNodeID
		cfg := config.DefaultConfig(id, isAuthority)
		cfg.DataDir = datadir

		if err := os.MkdirAll(cfg.NodeDataDir(), 0755); err != nil {
			logger.Fatal().Err(err).Str("node", id).Msg("failed to create node data dir")
		}
		db, err := storage.NewBadger(cfg.LedgerDir())
		if err != nil {
			logger.Fatal().Err(err).Str("node", id).Msg("failed to open node store")
		}
		dbs = append(dbs, db)

		n := node.New(node.Config{
			NodeID:                   id,
			IsAuthority:              isAuthority,
			Address:                  id,
			ElectionTimeoutSeconds:   int64(genesis.ElectionTimeoutSeconds),
			HeartbeatIntervalSeconds: int64(genesis.HeartbeatIntervalSeconds),
		}, db, clk)
		nodes[id] = n
	}
	defer func() {
		for _, db := range dbs {
			_ = db.Close()
		}
	}()

	for _, a := range nodeIDs {
		for _, b := range nodeIDs {
			if a == b {
				continue
			}
			if err := nodes[a].AddPeer(nodes[b]); err != nil {
				logger.Fatal().Err(err).Str("node", a).Str("peer", b).Msg("failed to wire peer")
			}
		}
	}

	for _, id := range nodeIDs {
		if _, err := nodes[id].Bootstrap(genesis.AuthorityNodeID); err != nil {
			logger.Fatal().Err(err).Str("node", id).Msg("genesis bootstrap failed")
		}
	}

	allocs, err := genesis.Allocations()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid genesis allocations")
	}
	for owner, amount := range allocs {
		for _, id := range nodeIDs {
			if err := nodes[id].Fund(owner, amount); err != nil {
				logger.Fatal().Err(err).Str("node", id).Str("owner", owner).Msg("genesis funding failed")
			}
		}
	}

	logger.Info().Int("nodes", len(nodeIDs)).Msg("cluster bootstrapped and ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
}

func loadOrCreateGenesis(path string, foIDs []string) (*config.Genesis, error) {
	if path == "" {
		return config.DefaultGenesis(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		g := config.DefaultGenesis()
		if err := g.Save(path); err != nil {
			return nil, fmt.Errorf("writing default genesis: %w", err)
		}
		return g, nil
	}
	return config.LoadGenesis(path)
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printUsage() {
	fmt.Print(`cbrledgerd - simulated central-bank ledger cluster

Usage:
  cbrledgerd [options]
  cbrledgerd --help

Options:
  --genesis=PATH    Genesis file path (created with defaults if missing)
  --datadir=PATH    Data directory (default: ~/.cbrledger)
  --fo=ID,ID,...    Fallback-observer node IDs (default: fo-1)
  --log-level=LVL   Log level: debug, info, warn, error (default: info)
  --log-json        Output logs as JSON
  --help, -h        Show this help message
`)
}
