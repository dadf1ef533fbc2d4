// Package p2p implements spec §4.5 block replication: a transport-agnostic
// Peer handle to another node's store, a direct in-process implementation
// for the simulated cluster, and a libp2p-pubsub transport for gossiping
// blocks (with their transactions) over a real network.
package p2p

import (
	"github.com/klingon-tech/cbrledger/pkg/block"
	"github.com/klingon-tech/cbrledger/pkg/txn"
	"github.com/klingon-tech/cbrledger/pkg/types"
)

// Peer is a handle to another node's store, per spec §6's Peer
// collaborator ("open a handle to another node's Store, for in-cluster
// replication"). Broadcast delivers one block and its transactions;
// RequestSync asks for a range of blocks starting at a height.
type Peer interface {
	NodeID() string
	Broadcast(b *block.Block, txs []*txn.Transaction) error
	RequestSync(fromHeight uint64, maxBlocks uint32) (*SyncResponse, error)
}

// SyncResponse carries the blocks (and their transactions) a peer
// returns for a sync request, mirroring the teacher's sync.go
// SyncResponse shape.
type SyncResponse struct {
	Blocks []*block.Block
	Txs    map[types.Hash][]*txn.Transaction
}
