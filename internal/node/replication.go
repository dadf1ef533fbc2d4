package node

import (
	"github.com/klingon-tech/cbrledger/internal/p2p"
	"github.com/klingon-tech/cbrledger/pkg/block"
	"github.com/klingon-tech/cbrledger/pkg/txn"
)

// AppendBlock seals txs into a new block on the local chain (spec §6's
// append_block). It does not replicate; call Replicate afterward to
// propagate the sealed block to peers.
func (n *Node) AppendBlock(txs []*txn.Transaction) (*block.Block, error) {
	return n.ledger.AppendBlock(txs, n.id)
}

// Replicate broadcasts a sealed block and its transactions to every
// connected peer (spec §6's replicate(block, txs) -> {peer: ok|err}),
// updating the local registry's view of each peer's chain position on
// success. Per spec §7's propagation policy, a replication failure is
// recorded per peer but never fails the caller — the local commit and
// consensus rules are what the submission path's success depends on.
func (n *Node) Replicate(b *block.Block, txs []*txn.Transaction) map[string]error {
	results := p2p.Broadcast(n.p2pPeers(), b, txs, n.registry)
	for peerID, err := range results {
		if err != nil {
			n.logger.Warn().Str("peer", peerID).Err(err).Msg("replication failed")
		}
	}
	return results
}

// RequestSync asks peerID for blocks starting at fromHeight (spec §6's
// request_sync).
func (n *Node) RequestSync(peerID string, fromHeight uint64, maxBlocks uint32) (*p2p.SyncResponse, error) {
	peer, err := n.getPeer(peerID)
	if err != nil {
		return nil, err
	}
	return p2p.RequestSync(p2p.NewSimPeer(peer.id, peer.ledger), fromHeight, maxBlocks)
}

// ApplySync applies every block in resp to the local chain in order,
// never aborting on a single block's failure (spec §6's apply_sync;
// spec §7's per-block sync error policy).
func (n *Node) ApplySync(resp *p2p.SyncResponse) (added, failed int) {
	return p2p.ApplySync(resp, n.ledger.InsertBlock)
}
