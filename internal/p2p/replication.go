package p2p

import (
	"fmt"

	"github.com/klingon-tech/cbrledger/internal/registry"
	"github.com/klingon-tech/cbrledger/pkg/block"
	"github.com/klingon-tech/cbrledger/pkg/txn"
)

// Broadcast delivers a block and its transactions to every peer except
// the sender, implementing spec §4.5's broadcast(block, txs) operation.
// For each peer: deliver, and on success update its last-known height
// and hash in reg; on failure, leave the peer's registry record alone
// (the node registry's own heartbeat path is what eventually marks it
// INACTIVE/DISCONNECTED) and record the error in the returned map. The
// result map is spec §6's replicate(block, txs) -> {peer: ok|err}.
func Broadcast(peers []Peer, b *block.Block, txs []*txn.Transaction, reg *registry.Registry) map[string]error {
	results := make(map[string]error, len(peers))
	for _, p := range peers {
		err := p.Broadcast(b, txs)
		results[p.NodeID()] = err
		if err != nil {
			continue
		}
		if reg == nil {
			continue
		}
		if rec, getErr := reg.GetNode(p.NodeID()); getErr == nil {
			reg.UpdateStatus(p.NodeID(), rec.Status, rec.LastSeen, b.Height, b.Hash)
		}
	}
	return results
}

// RequestSync asks one peer for blocks starting at fromHeight.
func RequestSync(peer Peer, fromHeight uint64, maxBlocks uint32) (*SyncResponse, error) {
	resp, err := peer.RequestSync(fromHeight, maxBlocks)
	if err != nil {
		return nil, fmt.Errorf("request_sync: %w", err)
	}
	return resp, nil
}

// ApplySyncFunc inserts one received block (and its transactions) into
// the local chain; internal/node supplies this as a thin wrapper around
// its own ledger engine's InsertBlock, since p2p has no ledger
// dependency of its own beyond the Peer interface.
type ApplySyncFunc func(b *block.Block, txs []*txn.Transaction) error

// ApplySync applies every block in a sync response in order, counting
// how many were added successfully versus how many failed — sync
// errors are recorded per block and never abort the remaining blocks,
// per spec §7's propagation policy.
func ApplySync(resp *SyncResponse, apply ApplySyncFunc) (added, failed int) {
	if resp == nil {
		return 0, 0
	}
	for _, b := range resp.Blocks {
		if err := apply(b, resp.Txs[b.Hash]); err != nil {
			failed++
			continue
		}
		added++
	}
	return added, failed
}
