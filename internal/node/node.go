// Package node implements the per-node actor of spec §5: one Node per
// cluster member, wiring together that member's ledger, UTXO set,
// consensus engine and registry and exposing every cluster operation of
// spec §6 as a method. In the simulated cluster cmd/cbrledgerd boots,
// peers are wired as direct Go pointers to sibling Nodes (mirroring the
// teacher's in-process validator wiring); a real deployment would instead
// run one Node per process behind internal/p2p's GossipTransport.
package node

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/klingon-tech/cbrledger/internal/consensus"
	"github.com/klingon-tech/cbrledger/internal/fork"
	"github.com/klingon-tech/cbrledger/internal/ledger"
	"github.com/klingon-tech/cbrledger/internal/log"
	"github.com/klingon-tech/cbrledger/internal/p2p"
	"github.com/klingon-tech/cbrledger/internal/registry"
	"github.com/klingon-tech/cbrledger/internal/storage"
	"github.com/klingon-tech/cbrledger/internal/utxo"
	"github.com/klingon-tech/cbrledger/pkg/block"
	"github.com/klingon-tech/cbrledger/pkg/clock"
	"github.com/klingon-tech/cbrledger/pkg/money"
	"github.com/klingon-tech/cbrledger/pkg/oracle"
	"github.com/klingon-tech/cbrledger/pkg/txn"
	"github.com/klingon-tech/cbrledger/pkg/types"
)

// Node is one cluster member: the authority (CBR) or a follower-operator
// (FO). Every exported method on Node corresponds to one operation named
// in spec §6.
type Node struct {
	id          string
	isAuthority bool
	address     string
	clock       clock.Clock
	logger      zerolog.Logger
	oracle      oracle.Oracle

	ledger    *ledger.Engine
	utxo      *utxo.Engine
	consensus *consensus.Engine
	registry  *registry.Registry
	fork      *fork.Resolver

	seq atomic.Uint64

	mu    sync.Mutex
	peers map[string]*Node
	down  bool

	offlineMu sync.Mutex
	offline   map[string]*offlinePending
}

// offlinePending is a buffered OFFLINE_BUFFER transaction awaiting
// reconciliation by SyncOffline, keyed by the id of the anchor UTXO its
// own creation minted (spec §4.3).
type offlinePending struct {
	tx       *txn.Transaction
	anchorID string
}

// New wires a node's storage-backed engines together. db is this node's
// own store — in the simulated cluster each node gets an independent
// storage.DB; a real deployment would point every node at its own Badger
// instance.
func New(cfg Config, db storage.DB, clk clock.Clock) *Node {
	store := storage.NewStore(db)
	n := &Node{
		id:          cfg.NodeID,
		isAuthority: cfg.IsAuthority,
		address:     cfg.Address,
		clock:       clk,
		logger:      log.WithNodeID(cfg.NodeID),
		oracle:      oracle.NewDefault(),
		ledger:      ledger.NewEngine(ledger.NewStore(store), clk),
		utxo:        utxo.NewEngine(utxo.NewStore(db), clk),
		consensus:   consensus.NewEngine(cfg.NodeID, cfg.IsAuthority, clk, cfg.ElectionTimeoutSeconds, cfg.HeartbeatIntervalSeconds),
		registry:    registry.New(db),
		peers:       make(map[string]*Node),
		offline:     make(map[string]*offlinePending),
	}
	n.fork = fork.NewResolver(n.ledger)

	role := registry.RoleFO
	if cfg.IsAuthority {
		role = registry.RoleCBR
	}
	if err := n.registry.RegisterNode(registry.Record{
		NodeID: cfg.NodeID, Role: role, Status: registry.StatusActive,
		Address: cfg.Address, LastSeen: clk.Now().Unix(),
	}); err != nil {
		n.logger.Warn().Err(err).Msg("failed to self-register in node registry")
	}
	return n
}

func (n *Node) ID() string                    { return n.id }
func (n *Node) IsAuthority() bool              { return n.isAuthority }
func (n *Node) Ledger() *ledger.Engine         { return n.ledger }
func (n *Node) UTXO() *utxo.Engine             { return n.utxo }
func (n *Node) Consensus() *consensus.Engine   { return n.consensus }
func (n *Node) Registry() *registry.Registry   { return n.registry }

func (n *Node) nextSeq() uint64 { return n.seq.Add(1) }

// Balance returns owner's spendable UNSPENT balance (spec §4.3's
// balance(owner) query, exposed at the node boundary).
func (n *Node) Balance(owner string) (money.Amount, error) {
	return n.utxo.Balance(owner)
}

// Bootstrap seals the genesis block if this node's chain is empty
// (spec §4.2). GenesisIfEmpty is idempotent, so any node in a freshly
// created cluster may call this; every node must be seeded with the same
// signer and clock so their genesis blocks hash identically.
func (n *Node) Bootstrap(signer string) (*block.Block, error) {
	return n.ledger.GenesisIfEmpty(signer)
}

// Fund mints a UTXO for owner outside of any transaction, for seeding a
// freshly bootstrapped cluster with its genesis allocations (spec §4.2's
// genesis block carries no transactions, so initial balances can't be
// expressed as a transfer; every node in the cluster must apply the same
// allocations independently so their UTXO sets agree without being
// replicated like a submitted transaction).
func (n *Node) Fund(owner string, amount money.Amount) error {
	_, err := n.utxo.Create(owner, amount, "genesis-alloc", owner+"-genesis-"+amount.String())
	return err
}

// AddPeer wires a direct handle to another cluster member and records it
// as ACTIVE in the local registry (spec §6's "open a handle to another
// node's store, for in-cluster replication").
func (n *Node) AddPeer(peer *Node) error {
	n.mu.Lock()
	n.peers[peer.id] = peer
	n.mu.Unlock()

	role := registry.RoleFO
	if peer.isAuthority {
		role = registry.RoleCBR
	}
	return n.registry.RegisterNode(registry.Record{
		NodeID: peer.id, Role: role, Status: registry.StatusActive,
		Address: peer.address, LastSeen: n.clock.Now().Unix(),
	})
}

func (n *Node) peerList() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Node, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p)
	}
	return out
}

func (n *Node) getPeer(peerID string) (*Node, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.peers[peerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}
	return p, nil
}

func (n *Node) isDown() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.down
}

// RegisterNode and UpdateStatus delegate to the local registry (spec §6).
func (n *Node) RegisterNode(rec registry.Record) error { return n.registry.RegisterNode(rec) }

func (n *Node) UpdateStatus(nodeID string, status registry.Status, lastSeen int64, height uint64, hash types.Hash) error {
	return n.registry.UpdateStatus(nodeID, status, lastSeen, height, hash)
}

// GetActiveNodes returns every node this node's registry currently marks
// ACTIVE (spec §6).
func (n *Node) GetActiveNodes() ([]registry.Record, error) { return n.registry.GetActiveNodes() }

// GetConnected returns every ACTIVE node other than this one (spec §6).
func (n *Node) GetConnected() ([]registry.Record, error) { return n.registry.GetConnected(n.id) }

// consensusPeers adapts every wired peer to consensus.Peer, excluding the
// authority: voting peers are "all non-authority active nodes" (spec
// §4.4), both for replication's acceptance votes and for the election
// candidate set. Including the authority here would let a downed
// authority still win the election tie-break (it never stops reporting
// its own node id) and would inflate the voting population so a lone FO
// can never reach majority on its own vote.
func (n *Node) consensusPeers() []consensus.Peer {
	peers := n.peerList()
	out := make([]consensus.Peer, 0, len(peers))
	for _, p := range peers {
		if p.isAuthority {
			continue
		}
		out = append(out, consensusPeer{target: p})
	}
	return out
}

// p2pPeers adapts every wired peer to p2p.Peer via a direct in-process
// handle to its ledger engine.
func (n *Node) p2pPeers() []p2p.Peer {
	peers := n.peerList()
	out := make([]p2p.Peer, 0, len(peers))
	for _, p := range peers {
		out = append(out, p2p.NewSimPeer(p.id, p.ledger))
	}
	return out
}
