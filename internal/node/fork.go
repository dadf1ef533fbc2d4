package node

import (
	"github.com/klingon-tech/cbrledger/internal/fork"
	"github.com/klingon-tech/cbrledger/pkg/block"
	"github.com/klingon-tech/cbrledger/pkg/txn"
)

// DetectFork checks whether peerID's chain has diverged from this node's
// (spec §6's detect_fork). It returns (nil, nil) when the two chains
// agree on the tip.
func (n *Node) DetectFork(peerID string) (*fork.ForkInfo, error) {
	peer, err := n.getPeer(peerID)
	if err != nil {
		return nil, err
	}
	tipHash, _, ok, err := peer.ledger.ChainTipHashHeight()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return n.fork.Detect(tipHash, peer.ledger)
}

// ResolveFork decides whether to adopt peerID's branch following a
// detected fork and, if so, performs the switch (spec §6's resolve_fork
// composed with switch_to_chain).
func (n *Node) ResolveFork(peerID string, info *fork.ForkInfo) (switched bool, removed uint64, err error) {
	peer, err := n.getPeer(peerID)
	if err != nil {
		return false, 0, err
	}
	otherBlocks, err := peer.ledger.GetBlocksFrom(info.DivergencePoint, nil)
	if err != nil {
		return false, 0, err
	}
	should, wouldRemove, err := n.fork.Resolve(info, otherBlocks)
	if err != nil || !should {
		return should, wouldRemove, err
	}
	if _, _, err := n.SwitchToChain(peerID, info, otherBlocks); err != nil {
		return should, wouldRemove, err
	}
	return should, wouldRemove, nil
}

// SwitchToChain atomically replaces the local chain's tail with
// newBlocks fetched from peerID, fetching each block's transaction
// bodies first (spec §6's switch_to_chain).
func (n *Node) SwitchToChain(peerID string, info *fork.ForkInfo, newBlocks []*block.Block) (removed, added int, err error) {
	peer, err := n.getPeer(peerID)
	if err != nil {
		return 0, 0, err
	}
	var newTxs []*txn.Transaction
	for _, b := range newBlocks {
		txs, err := peer.ledger.GetTransactionsForBlock(b.Hash)
		if err != nil {
			return 0, 0, err
		}
		newTxs = append(newTxs, txs...)
	}
	return n.fork.Switch(info, newBlocks, newTxs)
}
