package p2p

import (
	"fmt"

	"github.com/klingon-tech/cbrledger/internal/ledger"
	"github.com/klingon-tech/cbrledger/pkg/block"
	"github.com/klingon-tech/cbrledger/pkg/txn"
	"github.com/klingon-tech/cbrledger/pkg/types"
)

// SimPeer is the in-process Peer implementation for the simulated
// cluster `cmd/cbrledgerd` boots in a single binary: instead of
// serialising over a network stream, it calls straight into the target
// node's own ledger engine. This is the simulation shortcut spec §5's
// concurrency model assumes is available between co-located nodes.
type SimPeer struct {
	nodeID string
	ledger *ledger.Engine
}

// NewSimPeer wraps a node's ledger engine as a directly-addressable Peer.
func NewSimPeer(nodeID string, l *ledger.Engine) *SimPeer {
	return &SimPeer{nodeID: nodeID, ledger: l}
}

func (p *SimPeer) NodeID() string { return p.nodeID }

// Broadcast delivers one block and its transactions to this peer,
// implementing spec §4.5's per-peer replication step: idempotent if the
// block already exists at that height, otherwise re-validated and
// inserted by the target's own ledger engine.
func (p *SimPeer) Broadcast(b *block.Block, txs []*txn.Transaction) error {
	if err := p.ledger.InsertBlock(b, txs); err != nil {
		return fmt.Errorf("broadcast to %s: %w", p.nodeID, err)
	}
	return nil
}

// RequestSync returns up to maxBlocks blocks (and their transactions)
// from this peer's chain starting at fromHeight.
func (p *SimPeer) RequestSync(fromHeight uint64, maxBlocks uint32) (*SyncResponse, error) {
	length, err := p.ledger.ChainLength()
	if err != nil {
		return nil, fmt.Errorf("request_sync %s: %w", p.nodeID, err)
	}
	if length == 0 || fromHeight >= length {
		return &SyncResponse{Txs: map[types.Hash][]*txn.Transaction{}}, nil
	}

	to := fromHeight + uint64(maxBlocks) - 1
	if maxBlocks == 0 || to >= length {
		to = length - 1
	}
	blocks, err := p.ledger.GetBlocksFrom(fromHeight, &to)
	if err != nil {
		return nil, fmt.Errorf("request_sync %s: %w", p.nodeID, err)
	}

	txs := make(map[types.Hash][]*txn.Transaction, len(blocks))
	for _, b := range blocks {
		blockTxs, err := p.ledger.GetTransactionsForBlock(b.Hash)
		if err != nil {
			return nil, fmt.Errorf("request_sync %s: %w", p.nodeID, err)
		}
		txs[b.Hash] = blockTxs
	}
	return &SyncResponse{Blocks: blocks, Txs: txs}, nil
}
